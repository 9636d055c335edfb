package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// NewTerminalReporter renders progress to w: an animated bar on a terminal,
// throttled plain lines otherwise
func NewTerminalReporter(w io.Writer, isTTY bool, refresh time.Duration) *CallbackReporter {
	if isTTY {
		b := &barRenderer{w: w, refresh: refresh}
		return NewCallbackReporter(b.handle)
	}
	l := &lineRenderer{w: w, every: time.Second}
	return NewCallbackReporter(l.handle)
}

// Describe renders the status text shown beside the bar
func Describe(u Update) string {
	speed := "--"
	if u.BytesPerSecond > 0 {
		speed = FormatSpeed(u.BytesPerSecond)
	}
	return fmt.Sprintf("%s [%d/%d] %s ETA %s", u.CurrentItem, u.ItemsCompleted+1, u.ItemsTotal, speed, FormatETA(u.ETA))
}

type barRenderer struct {
	w       io.Writer
	refresh time.Duration

	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

func (b *barRenderer) newBar(total int64, description string) *progressbar.ProgressBar {
	opts := []progressbar.Option{
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(b.w),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(b.refresh),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(b.w, "\n")
		}),
	}
	if total > 0 {
		opts = append(opts, progressbar.OptionShowBytes(true))
	} else {
		total = -1
	}
	return progressbar.NewOptions64(total, opts...)
}

func (b *barRenderer) handle(u Update) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch u.Type {
	case UpdateStart:
		b.bar = b.newBar(u.CurrentTotal, Describe(u))
	case UpdateProgress:
		if b.bar == nil {
			return
		}
		b.bar.Describe(Describe(u))
		_ = b.bar.Set64(u.CurrentBytes)
	case UpdateIndeterminate:
		if b.bar == nil {
			return
		}
		b.bar.Describe(u.CurrentItem + " " + u.Activity)
		_ = b.bar.Add64(0)
	case UpdateComplete:
		if b.bar != nil {
			_ = b.bar.Finish()
			b.bar = nil
		}
	case UpdateError:
		if b.bar != nil {
			_ = b.bar.Exit()
			b.bar = nil
		}
		if u.Error != nil {
			fmt.Fprintf(b.w, "\nError: %s: %v\n", u.CurrentItem, u.Error)
		}
	}
}

// lineRenderer prints at most one progress line per interval
type lineRenderer struct {
	w     io.Writer
	every time.Duration

	mu   sync.Mutex
	last time.Time
}

func (l *lineRenderer) handle(u Update) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch u.Type {
	case UpdateStart:
		l.last = time.Time{}
		fmt.Fprintf(l.w, "%s (%s)\n", u.CurrentItem, FormatBytes(u.CurrentTotal))
	case UpdateProgress, UpdateIndeterminate:
		if time.Since(l.last) < l.every {
			return
		}
		l.last = time.Now()
		if u.Type == UpdateIndeterminate || u.CurrentTotal <= 0 {
			fmt.Fprintf(l.w, "  %s %s\n", u.CurrentItem, u.Activity)
			return
		}
		fmt.Fprintf(l.w, "  %s %s/%s %s\n", FormatProgress(u.CurrentBytes, u.CurrentTotal, 30),
			FormatBytes(u.CurrentBytes), FormatBytes(u.CurrentTotal), Describe(u))
	case UpdateComplete:
		fmt.Fprintf(l.w, "  done %s\n", u.CurrentItem)
	case UpdateError:
		fmt.Fprintf(l.w, "  failed %s: %v\n", u.CurrentItem, u.Error)
	}
}
