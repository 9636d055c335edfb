package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/Ning0612/adbexplorer/internal/domain"
	"github.com/Ning0612/adbexplorer/internal/logger"
	"github.com/Ning0612/adbexplorer/internal/session"
)

// DefaultTimeout applies when neither the call nor the session policy sets one
const DefaultTimeout = 120 * time.Second

var disconnectPattern = regexp.MustCompile(`(?i)no devices/emulators found|device offline|device '[^']*' not found|device not found|no device`)

// destructiveCommands are remote command words that change the filesystem
var destructiveCommands = map[string]bool{"rm": true, "mv": true, "cp": true, "mkdir": true}

// Options tunes a single invocation
type Options struct {
	// Timeout overrides the session default; zero keeps it
	Timeout time.Duration
	// HideOutput keeps failure output out of warnings (logged at debug only)
	HideOutput bool
	// SuppressSerial omits the -s scoping argument
	SuppressSerial bool
	// Merge appends stderr to Output on success
	Merge bool
}

// Result is the outcome of one bridge call. Failures are values, not errors
// thrown past the caller: Err explains why Success is false.
type Result struct {
	Success  bool
	Stdout   string
	Stderr   string
	Output   string
	ExitCode int
	Err      error
	// DryRun is set when the command was suppressed by what-if mode
	DryRun bool
	Args   []string
}

// Diagnostic returns the most useful failure text: stderr, else stdout
func (r Result) Diagnostic() string {
	if s := strings.TrimSpace(r.Stderr); s != "" {
		return s
	}
	return strings.TrimSpace(r.Stdout)
}

// Invoker serializes calls to the device bridge
type Invoker struct {
	runner Runner
	mu     sync.Mutex
	notice io.Writer
	log    logger.Logger
}

// NewInvoker creates an invoker over runner. What-if notices go to stdout.
func NewInvoker(runner Runner) *Invoker {
	return &Invoker{
		runner: runner,
		notice: os.Stdout,
		log:    logger.With("component", "bridge"),
	}
}

// SetNoticeWriter redirects what-if notices
func (inv *Invoker) SetNoticeWriter(w io.Writer) {
	inv.notice = w
}

// Runner returns the underlying runner
func (inv *Invoker) Runner() Runner {
	return inv.runner
}

// IsDestructive reports whether args would transfer files or change the remote filesystem
func IsDestructive(args []string) bool {
	if len(args) == 0 {
		return false
	}
	switch args[0] {
	case "push", "pull":
		return true
	case "shell":
		for _, word := range CommandWords(strings.Join(args[1:], " ")) {
			if destructiveCommands[word] {
				return true
			}
		}
	}
	return false
}

// IsDisconnect reports whether bridge output carries a disconnection signature
func IsDisconnect(output string) bool {
	return disconnectPattern.MatchString(output)
}

func (inv *Invoker) scoped(st *session.State, args []string, suppress bool) []string {
	serial := st.Device.Serial
	if serial == "" {
		serial = st.Serial
	}
	if suppress || serial == "" {
		return append([]string(nil), args...)
	}
	return append([]string{"-s", serial}, args...)
}

func (inv *Invoker) dryRun(full []string) {
	line := "adb " + strings.Join(full, " ")
	inv.log.Info("what-if: command not executed", "args", full)
	fmt.Fprintf(inv.notice, "what-if: %s\n", line)
}

// Invoke runs one bridge call to completion, enforcing the timeout and
// resetting session state when the output shows the device went away
func (inv *Invoker) Invoke(ctx context.Context, st *session.State, args []string, opts Options) Result {
	full := inv.scoped(st, args, opts.SuppressSerial)

	if st.Config.WhatIf && IsDestructive(args) {
		inv.dryRun(full)
		return Result{Success: true, DryRun: true, Args: full}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = st.Config.DefaultTimeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	out, err := inv.runner.Run(callCtx, full)
	res := Result{
		Stdout:   out.Stdout,
		Stderr:   out.Stderr,
		Output:   out.Stdout,
		ExitCode: out.ExitCode,
		Args:     full,
	}

	switch {
	case ctx.Err() != nil:
		res.ExitCode = -1
		res.Err = ctx.Err()
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		res.ExitCode = -1
		res.Err = fmt.Errorf("%w after %s: %s", domain.ErrTimeout, timeout, strings.Join(args, " "))
	case err != nil:
		if res.ExitCode == 0 {
			res.ExitCode = -1
		}
		res.Err = fmt.Errorf("%w: %v", domain.ErrBridgeFailed, err)
	case out.ExitCode != 0:
		res.Err = fmt.Errorf("%w: exit status %d: %s", domain.ErrBridgeFailed, out.ExitCode, firstLine(res.Diagnostic()))
	default:
		res.Success = true
		if opts.Merge {
			res.Output = out.Stdout + out.Stderr
		}
	}

	if !res.Success {
		if inv.NoteFailure(st, out.Stderr+"\n"+out.Stdout) {
			res.Err = fmt.Errorf("%w: %w", domain.ErrDisconnected, res.Err)
		}
		log := inv.log.Warn
		if opts.HideOutput {
			log = inv.log.Debug
		}
		log("bridge call failed", "args", full, "exit_code", res.ExitCode,
			"elapsed", time.Since(start), "error", res.Err)
	} else {
		inv.log.Debug("bridge call", "args", full, "elapsed", time.Since(start))
	}

	return res
}

// NoteFailure inspects failure output for disconnection and resets the
// session if found. It reports whether a disconnection was detected.
func (inv *Invoker) NoteFailure(st *session.State, output string) bool {
	if !IsDisconnect(output) {
		return false
	}
	inv.log.Warn("device disconnected, clearing session state", "serial", st.Device.Serial)
	st.HandleDisconnect()
	return true
}

// Start launches a streaming bridge call. Streaming calls do not hold the
// invoker lock, so short Invoke calls (remote progress polling) can run
// while a transfer is in flight. Under what-if mode destructive calls are
// reported and an already-finished process with exit code 0 is returned.
func (inv *Invoker) Start(ctx context.Context, st *session.State, args []string, stdout, stderr io.Writer) (Process, error) {
	full := inv.scoped(st, args, false)

	if st.Config.WhatIf && IsDestructive(args) {
		inv.dryRun(full)
		return newFinishedProcess(0), nil
	}

	inv.log.Debug("starting streaming bridge call", "args", full)
	p, err := inv.runner.Start(ctx, full, stdout, stderr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBridgeFailed, err)
	}
	return p, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
