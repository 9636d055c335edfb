// Package bridgetest provides a scripted Runner for tests that would
// otherwise need a connected device.
package bridgetest

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Ning0612/adbexplorer/internal/bridge"
)

// Response is a scripted bridge reply
type Response struct {
	ExitCode int
	Stdout   string
	Stderr   string
	// Err is returned from Run as a start failure
	Err error
	// Delay holds the reply back; a context deadline shorter than Delay
	// yields a killed call
	Delay time.Duration
	// Effect runs when a streaming process finishes normally, e.g. to
	// materialize pulled files
	Effect func()
}

type handler struct {
	match string
	fn    func(args []string) Response
}

// FakeRunner matches the joined argument vector against registered
// substrings. The most recently registered match wins.
type FakeRunner struct {
	mu       sync.Mutex
	handlers []handler
	calls    [][]string
	procs    []*Process
}

// NewFakeRunner creates a runner with no scripted responses
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{}
}

// On scripts a fixed response for calls whose joined args contain substr
func (f *FakeRunner) On(substr string, resp Response) *FakeRunner {
	return f.OnFunc(substr, func([]string) Response { return resp })
}

// OnFunc scripts a computed response
func (f *FakeRunner) OnFunc(substr string, fn func(args []string) Response) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, handler{match: substr, fn: fn})
	return f
}

func (f *FakeRunner) respond(args []string) Response {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), args...))
	joined := strings.Join(args, " ")
	var fn func([]string) Response
	for i := len(f.handlers) - 1; i >= 0; i-- {
		if strings.Contains(joined, f.handlers[i].match) {
			fn = f.handlers[i].fn
			break
		}
	}
	f.mu.Unlock()

	if fn == nil {
		return Response{ExitCode: 1, Stderr: "unexpected command: " + joined}
	}
	return fn(args)
}

// Run implements bridge.Runner
func (f *FakeRunner) Run(ctx context.Context, args []string) (bridge.RunOutput, error) {
	resp := f.respond(args)
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-ctx.Done():
			return bridge.RunOutput{ExitCode: -1}, ctx.Err()
		}
	}
	if resp.Err != nil {
		return bridge.RunOutput{ExitCode: -1}, resp.Err
	}
	return bridge.RunOutput{ExitCode: resp.ExitCode, Stdout: resp.Stdout, Stderr: resp.Stderr}, nil
}

// Start implements bridge.Runner with a process that writes the scripted
// output and exits after Delay unless killed first
func (f *FakeRunner) Start(ctx context.Context, args []string, stdout, stderr io.Writer) (bridge.Process, error) {
	resp := f.respond(args)
	if resp.Err != nil {
		return nil, resp.Err
	}

	p := &Process{done: make(chan struct{}), kill: make(chan struct{}), exitCode: -1}
	f.mu.Lock()
	f.procs = append(f.procs, p)
	f.mu.Unlock()
	go func() {
		defer close(p.done)
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-p.kill:
				return
			case <-ctx.Done():
				return
			}
		}
		io.WriteString(stdout, resp.Stdout)
		io.WriteString(stderr, resp.Stderr)
		if resp.Effect != nil {
			resp.Effect()
		}
		p.mu.Lock()
		p.exitCode = resp.ExitCode
		p.mu.Unlock()
	}()
	return p, nil
}

// Calls returns every argument vector seen so far
func (f *FakeRunner) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// Processes returns every streaming process started so far, in order
func (f *FakeRunner) Processes() []*Process {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Process(nil), f.procs...)
}

// CallsMatching counts calls whose joined args contain substr
func (f *FakeRunner) CallsMatching(substr string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.Contains(strings.Join(c, " "), substr) {
			n++
		}
	}
	return n
}

// Process is the fake streaming process
type Process struct {
	done     chan struct{}
	kill     chan struct{}
	killOnce sync.Once

	mu       sync.Mutex
	exitCode int
	killed   bool
}

func (p *Process) Done() <-chan struct{} { return p.done }

func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *Process) Kill() error {
	p.killOnce.Do(func() {
		p.mu.Lock()
		p.killed = true
		p.mu.Unlock()
		close(p.kill)
	})
	return nil
}

func (p *Process) Wait() error {
	<-p.done
	return nil
}

// Killed reports whether Kill was called
func (p *Process) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}
