// Package keys watches the terminal for cancel key presses during transfers.
package keys

import (
	"errors"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

const pollInterval = 50 * time.Millisecond

const (
	keyEscape = 27
	keyCtrlC  = 3
)

// IsCancelKey reports whether b cancels the current transfer item
func IsCancelKey(b byte) bool {
	return b == keyEscape || b == 'q' || b == 'Q'
}

// Watcher reads single key presses from a raw terminal. Escape, q and Q
// request cancellation of the current item; Ctrl-C calls onInterrupt since
// raw mode suppresses SIGINT.
type Watcher struct {
	fd          int
	in          *os.File
	old         *term.State
	onInterrupt func()

	mu      sync.Mutex
	pending bool

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Start puts in into raw mode and begins watching. When in is not a
// terminal a watcher that never reports a press is returned.
func Start(in *os.File, onInterrupt func()) (*Watcher, error) {
	w := &Watcher{
		in:          in,
		onInterrupt: onInterrupt,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	if in == nil || !term.IsTerminal(int(in.Fd())) {
		close(w.done)
		return w, nil
	}

	w.fd = int(in.Fd())
	old, err := term.MakeRaw(w.fd)
	if err != nil {
		close(w.done)
		return w, err
	}
	w.old = old
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.done)
	var buf [1]byte
	for {
		select {
		case <-w.stop:
			return
		default:
		}

		ready, err := waitReadable(w.fd, pollInterval)
		if err != nil {
			return
		}
		if !ready {
			continue
		}

		n, err := w.in.Read(buf[:])
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			return
		}
		if n == 0 {
			continue
		}
		w.handle(buf[0])
	}
}

func (w *Watcher) handle(b byte) {
	switch {
	case b == keyCtrlC:
		if w.onInterrupt != nil {
			w.onInterrupt()
		}
	case IsCancelKey(b):
		w.mu.Lock()
		w.pending = true
		w.mu.Unlock()
	}
}

// Cancelled reports and consumes a pending cancel request
func (w *Watcher) Cancelled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := w.pending
	w.pending = false
	return p
}

// Stop ends watching and restores the terminal
func (w *Watcher) Stop() error {
	var err error
	w.once.Do(func() {
		close(w.stop)
		<-w.done
		if w.old != nil {
			err = term.Restore(w.fd, w.old)
		}
	})
	return err
}
