package progress

import (
	"fmt"
	"sync"
	"time"
)

// warmup is how long throughput is reported as zero after an item starts
const warmup = 500 * time.Millisecond

// maxETA caps the ETA shown; longer estimates render as unknown
const maxETA = 24 * time.Hour

// Reporter handles progress reporting for transfer batches
type Reporter interface {
	// SetTotal sets the number of items and bytes in the batch
	SetTotal(totalItems int, totalBytes int64)
	// Start begins tracking a new item
	Start(name string, totalBytes int64)
	// Update reports the bytes transferred so far for the current item
	Update(bytesTransferred int64)
	// Indeterminate reports activity with no numeric progress
	Indeterminate(activity string)
	// Complete marks the current item as finished
	Complete()
	// Error reports a failure on the current item
	Error(err error)
}

// Callback is a function that receives progress updates
type Callback func(update Update)

// Update represents a progress update
type Update struct {
	Type           UpdateType
	CurrentItem    string
	CurrentBytes   int64
	CurrentTotal   int64
	ItemsCompleted int
	ItemsTotal     int
	BytesCompleted int64
	BytesTotal     int64
	BytesPerSecond float64
	// Percent of the current item, 0-100; -1 when the total is unknown
	Percent float64
	// ETA for the current item; negative when unknown
	ETA      time.Duration
	Activity string
	Error    error
}

// UpdateType indicates the type of progress update
type UpdateType int

const (
	UpdateStart UpdateType = iota
	UpdateProgress
	UpdateIndeterminate
	UpdateComplete
	UpdateError
)

// CallbackReporter implements Reporter with a callback function
type CallbackReporter struct {
	callback       Callback
	mu             sync.Mutex
	currentItem    string
	currentTotal   int64
	currentBytes   int64
	itemsTotal     int
	bytesTotal     int64
	itemsCompleted int
	bytesCompleted int64
	startTime      time.Time
	now            func() time.Time
}

// NewCallbackReporter creates a new CallbackReporter
func NewCallbackReporter(callback Callback) *CallbackReporter {
	return &CallbackReporter{
		callback: callback,
		now:      time.Now,
	}
}

// SetTotal sets the total number of items and bytes to transfer
func (r *CallbackReporter) SetTotal(totalItems int, totalBytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.itemsTotal = totalItems
	r.bytesTotal = totalBytes
}

func (r *CallbackReporter) base(t UpdateType) Update {
	return Update{
		Type:           t,
		CurrentItem:    r.currentItem,
		CurrentBytes:   r.currentBytes,
		CurrentTotal:   r.currentTotal,
		ItemsCompleted: r.itemsCompleted,
		ItemsTotal:     r.itemsTotal,
		BytesCompleted: r.bytesCompleted + r.currentBytes,
		BytesTotal:     r.bytesTotal,
		Percent:        -1,
		ETA:            -1,
	}
}

func (r *CallbackReporter) emit(update Update) {
	// callback runs outside the lock to prevent deadlock
	if r.callback != nil {
		r.callback(update)
	}
}

// Start begins tracking a new item
func (r *CallbackReporter) Start(name string, totalBytes int64) {
	r.mu.Lock()
	r.currentItem = name
	r.currentTotal = totalBytes
	r.currentBytes = 0
	r.startTime = r.now()
	update := r.base(UpdateStart)
	r.mu.Unlock()

	r.emit(update)
}

// Update reports progress on the current item
func (r *CallbackReporter) Update(bytesTransferred int64) {
	r.mu.Lock()
	r.currentBytes = bytesTransferred
	update := r.base(UpdateProgress)
	update.BytesPerSecond = Throughput(bytesTransferred, r.now().Sub(r.startTime))
	update.Percent = Percent(bytesTransferred, r.currentTotal)
	update.ETA = EstimateETA(r.currentTotal-bytesTransferred, update.BytesPerSecond)
	r.mu.Unlock()

	r.emit(update)
}

// Indeterminate reports activity without a byte count
func (r *CallbackReporter) Indeterminate(activity string) {
	r.mu.Lock()
	update := r.base(UpdateIndeterminate)
	update.Activity = activity
	r.mu.Unlock()

	r.emit(update)
}

// Complete marks the current item as complete
func (r *CallbackReporter) Complete() {
	r.mu.Lock()
	r.itemsCompleted++
	r.bytesCompleted += r.currentTotal
	r.currentBytes = 0
	update := r.base(UpdateComplete)
	update.CurrentBytes = r.currentTotal
	update.Percent = 100
	r.mu.Unlock()

	r.emit(update)
}

// Error reports an error on the current item
func (r *CallbackReporter) Error(err error) {
	r.mu.Lock()
	r.currentBytes = 0
	update := r.base(UpdateError)
	update.Error = err
	r.mu.Unlock()

	r.emit(update)
}

// Throughput returns bytes per second, or 0 during the warm-up window
func Throughput(bytes int64, elapsed time.Duration) float64 {
	if elapsed < warmup || bytes <= 0 {
		return 0
	}
	return float64(bytes) / elapsed.Seconds()
}

// Percent returns current/total as 0-100, clamped; -1 when total is unknown
func Percent(current, total int64) float64 {
	if total <= 0 {
		return -1
	}
	p := float64(current) / float64(total) * 100
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}

// EstimateETA returns remaining ÷ speed, or -1 when speed is zero or the
// estimate exceeds 24h
func EstimateETA(remaining int64, bytesPerSecond float64) time.Duration {
	if bytesPerSecond <= 0 {
		return -1
	}
	if remaining < 0 {
		remaining = 0
	}
	secs := float64(remaining) / bytesPerSecond
	if secs > maxETA.Seconds() {
		return -1
	}
	return time.Duration(secs * float64(time.Second))
}

// FormatETA renders an ETA as HH:MM:SS, or --:--:-- when unknown
func FormatETA(eta time.Duration) string {
	if eta < 0 || eta > maxETA {
		return "--:--:--"
	}
	s := int64(eta.Round(time.Second).Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s/60)%60, s%60)
}

// RefreshInterval scales the progress poll interval with the batch size
func RefreshInterval(totalBytes int64) time.Duration {
	const (
		MB = 1024 * 1024
		GB = 1024 * MB
	)
	switch {
	case totalBytes >= GB:
		return 500 * time.Millisecond
	case totalBytes >= 100*MB:
		return 250 * time.Millisecond
	default:
		return 100 * time.Millisecond
	}
}

// NullReporter is a no-op reporter
type NullReporter struct{}

func (NullReporter) SetTotal(totalItems int, totalBytes int64) {}
func (NullReporter) Start(name string, totalBytes int64)       {}
func (NullReporter) Update(bytesTransferred int64)             {}
func (NullReporter) Indeterminate(activity string)             {}
func (NullReporter) Complete()                                 {}
func (NullReporter) Error(err error)                           {}

// FormatBytes formats bytes into human-readable string
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// FormatSpeed formats bytes per second into human-readable string
func FormatSpeed(bytesPerSecond float64) string {
	return FormatBytes(int64(bytesPerSecond)) + "/s"
}

// FormatProgress returns a progress bar string
func FormatProgress(current, total int64, width int) string {
	if total == 0 {
		return ""
	}

	percent := float64(current) / float64(total)
	if percent > 1 {
		percent = 1
	}
	filled := int(percent * float64(width))

	bar := make([]byte, width)
	for i := 0; i < width; i++ {
		if i < filled {
			bar[i] = '='
		} else if i == filled {
			bar[i] = '>'
		} else {
			bar[i] = ' '
		}
	}

	return fmt.Sprintf("[%s] %5.1f%%", string(bar), percent*100)
}
