package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// killGrace bounds how long Wait blocks on output pipes after a kill
const killGrace = 2 * time.Second

// RunOutput is the captured result of one completed bridge call
type RunOutput struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Process is a running streaming bridge call
type Process interface {
	// Done is closed once the process has exited
	Done() <-chan struct{}
	// ExitCode is valid after Done is closed; -1 if killed or not started
	ExitCode() int
	// Kill force-terminates the process
	Kill() error
	// Wait blocks until exit and returns the wait error, if any
	Wait() error
}

// Runner executes the device bridge. The default implementation shells out
// to the bridge executable; tests substitute a scripted fake.
type Runner interface {
	Run(ctx context.Context, args []string) (RunOutput, error)
	Start(ctx context.Context, args []string, stdout, stderr io.Writer) (Process, error)
}

// ExecRunner runs the bridge executable at Path
type ExecRunner struct {
	Path string
}

// NewExecRunner creates a runner for the given bridge executable
func NewExecRunner(path string) *ExecRunner {
	return &ExecRunner{Path: path}
}

// Run executes the bridge and waits for it. A non-zero exit is reported in
// RunOutput, not as an error; the error is reserved for start failures and
// context cancellation, in which case the process has been killed.
func (r *ExecRunner) Run(ctx context.Context, args []string) (RunOutput, error) {
	cmd := exec.CommandContext(ctx, r.Path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = killGrace

	err := cmd.Run()
	out := RunOutput{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return out, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		out.ExitCode = -1
		return out, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}

	out.ExitCode = -1
	return out, fmt.Errorf("failed to run %s: %w", r.Path, err)
}

// Start launches the bridge with stdout and stderr redirected to the given writers
func (r *ExecRunner) Start(ctx context.Context, args []string, stdout, stderr io.Writer) (Process, error) {
	cmd := exec.CommandContext(ctx, r.Path, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = killGrace

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", r.Path, err)
	}

	p := &execProcess{cmd: cmd, done: make(chan struct{}), exitCode: -1}
	go p.wait()
	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu       sync.Mutex
	exitCode int
	waitErr  error
}

func (p *execProcess) wait() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.waitErr = err
	if p.cmd.ProcessState != nil {
		p.exitCode = p.cmd.ProcessState.ExitCode()
	}
	p.mu.Unlock()
	close(p.done)
}

func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *execProcess) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (p *execProcess) Wait() error {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

// finishedProcess is handed out for calls that were never executed
type finishedProcess struct {
	done     chan struct{}
	exitCode int
}

func newFinishedProcess(exitCode int) *finishedProcess {
	p := &finishedProcess{done: make(chan struct{}), exitCode: exitCode}
	close(p.done)
	return p
}

func (p *finishedProcess) Done() <-chan struct{} { return p.done }
func (p *finishedProcess) ExitCode() int         { return p.exitCode }
func (p *finishedProcess) Kill() error           { return nil }
func (p *finishedProcess) Wait() error           { return nil }
