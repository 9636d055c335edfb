// Package transfer runs pull, push and move batches with live progress,
// per-item cancellation and verified source removal.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Ning0612/adbexplorer/internal/adapter"
	"github.com/Ning0612/adbexplorer/internal/bridge"
	"github.com/Ning0612/adbexplorer/internal/dircache"
	"github.com/Ning0612/adbexplorer/internal/domain"
	"github.com/Ning0612/adbexplorer/internal/lister"
	"github.com/Ning0612/adbexplorer/internal/logger"
	"github.com/Ning0612/adbexplorer/internal/mutate"
	"github.com/Ning0612/adbexplorer/internal/progress"
	"github.com/Ning0612/adbexplorer/internal/session"
	"github.com/Ning0612/adbexplorer/internal/sizecalc"
)

const (
	// remotePollInterval limits remote size queries during a push
	remotePollInterval = time.Second
	remotePollTimeout  = 5 * time.Second
	// outputTail bounds how much captured output is scanned for a percentage
	outputTail = 4096
)

var percentPattern = regexp.MustCompile(`\[\s*(\d{1,3})%\]`)

// errorMarkers flag a failed transfer even when the tool exits 0
var errorMarkers = []string{
	"no such file or directory",
	"error:",
	"failed to copy",
	"permission denied",
	"read-only file system",
	"does not exist",
}

// HasErrorText reports whether transfer output carries a known failure message
func HasErrorText(output string) bool {
	lower := strings.ToLower(output)
	for _, m := range errorMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// LastPercent returns the last "[ NN%]" marker in output
func LastPercent(output string) (int, bool) {
	matches := percentPattern.FindAllStringSubmatch(output, -1)
	if len(matches) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(matches[len(matches)-1][1])
	if err != nil || n > 100 {
		return 0, false
	}
	return n, true
}

// CancelPoller is polled between progress ticks; a true result cancels the
// running item only
type CancelPoller interface {
	Cancelled() bool
}

// Options tunes one batch
type Options struct {
	// Move removes each source after its copy is verified
	Move bool
	// Reporter receives progress; nil discards it
	Reporter progress.Reporter
	// Cancel is the per-item cancellation source; nil disables it
	Cancel CancelPoller
	// Confirm is asked once the total size is known. Returning false aborts
	// the batch before anything is transferred.
	Confirm func(sizecalc.Sizes) bool
}

func (o Options) reporter() progress.Reporter {
	if o.Reporter == nil {
		return progress.NullReporter{}
	}
	return o.Reporter
}

// Engine executes transfer batches one item at a time
type Engine struct {
	inv    *bridge.Invoker
	lister *lister.Lister
	sizes  *sizecalc.Calculator
	mut    *mutate.Mutator
	local  adapter.LocalFS

	// TempDir holds captured transfer output; empty uses the OS default
	TempDir string

	log logger.Logger
}

// New creates an engine
func New(inv *bridge.Invoker, ls *lister.Lister, sizes *sizecalc.Calculator, mut *mutate.Mutator, local adapter.LocalFS) *Engine {
	return &Engine{
		inv:    inv,
		lister: ls,
		sizes:  sizes,
		mut:    mut,
		local:  local,
		log:    logger.With("component", "transfer"),
	}
}

// job is one streaming bridge call
type job struct {
	args  []string
	name  string
	total int64
	// measure reports bytes transferred so far; false falls back to output parsing
	measure func(ctx context.Context) (int64, bool)
}

// Pull copies remote items into destDir. Item failures are recorded in the
// summary; the returned error is set only when the batch itself could not
// run or the context ended it.
func (e *Engine) Pull(ctx context.Context, st *session.State, items []domain.TransferItem, destDir string, opts Options) (Summary, error) {
	start := time.Now()
	sum := Summary{Direction: Pull, Move: opts.Move, DryRun: st.Config.WhatIf}
	if len(items) == 0 {
		return sum, nil
	}

	sum.Sizes = e.sizes.SizeOf(ctx, st, items)
	if opts.Confirm != nil && !opts.Confirm(sum.Sizes) {
		return sum, domain.ErrNotConfirmed
	}
	if err := e.local.MkdirAll(ctx, destDir); err != nil {
		return sum, fmt.Errorf("failed to create %s: %w", destDir, err)
	}

	sum.Items = make([]ItemResult, len(items))
	for i, it := range items {
		sum.Items[i] = ItemResult{
			Name:   it.Name,
			Source: it.FullPath,
			Dest:   filepath.Join(destDir, it.Name),
			IsDir:  it.IsDirLike(),
		}
	}

	rep := opts.reporter()
	rep.SetTotal(len(items), sum.Sizes.Total)
	interval := progress.RefreshInterval(sum.Sizes.Total)
	e.log.Info("pull started", "items", len(items), "bytes", sum.Sizes.Total, "dest", destDir, "move", opts.Move)

	for i, it := range items {
		if err := ctx.Err(); err != nil {
			sum.abort(i, err)
			break
		}
		r := &sum.Items[i]
		dest := r.Dest
		j := job{
			args:  []string{"pull", it.FullPath, destDir},
			name:  it.Name,
			total: sum.Sizes.PerItem[it.FullPath],
			measure: func(ctx context.Context) (int64, bool) {
				n, err := e.local.Size(ctx, dest)
				return n, err == nil
			},
		}
		e.runItem(ctx, st, r, j, rep, opts.Cancel, interval)
		if r.State != StateSucceeded {
			continue
		}
		if !sum.DryRun {
			if n, err := e.local.Size(ctx, dest); err == nil {
				r.Bytes = n
			}
		}
		if opts.Move {
			e.finishPullMove(ctx, st, it, r)
		}
	}

	sum.finish(start)
	e.log.Info("pull finished", "succeeded", sum.Succeeded, "failed", sum.Failed,
		"cancelled", sum.Cancelled, "bytes", sum.Bytes, "elapsed", sum.Elapsed)
	return sum, ctx.Err()
}

// Push copies local files or directories into the remote directory destDir,
// creating it when missing
func (e *Engine) Push(ctx context.Context, st *session.State, localPaths []string, destDir string, opts Options) (Summary, error) {
	start := time.Now()
	sum := Summary{Direction: Push, Move: opts.Move, DryRun: st.Config.WhatIf}
	if len(localPaths) == 0 {
		return sum, nil
	}

	destDir = dircache.Normalize(destDir)
	if err := mutate.ValidatePath(destDir); err != nil {
		return sum, err
	}

	infos := make([]adapter.FileInfo, len(localPaths))
	sum.Sizes = sizecalc.Sizes{PerItem: make(map[string]int64, len(localPaths))}
	sum.Items = make([]ItemResult, len(localPaths))
	for i, p := range localPaths {
		name := filepath.Base(filepath.Clean(p))
		r := &sum.Items[i]
		*r = ItemResult{Name: name, Source: p, Dest: domain.JoinRemote(destDir, name)}

		info, err := e.local.Stat(ctx, p)
		if err != nil {
			r.State = StateFailed
			r.Err = fmt.Errorf("%s: %w", p, err)
			continue
		}
		size, err := e.local.Size(ctx, p)
		if err != nil {
			r.State = StateFailed
			r.Err = fmt.Errorf("%s: %w", p, err)
			continue
		}
		infos[i] = info
		r.IsDir = info.IsDir
		sum.Sizes.PerItem[p] = size
		sum.Sizes.Total += size
	}

	if opts.Confirm != nil && !opts.Confirm(sum.Sizes) {
		return sum, domain.ErrNotConfirmed
	}
	if err := e.ensureRemoteDir(ctx, st, destDir); err != nil {
		return sum, err
	}

	rep := opts.reporter()
	rep.SetTotal(len(localPaths), sum.Sizes.Total)
	interval := progress.RefreshInterval(sum.Sizes.Total)
	e.log.Info("push started", "items", len(localPaths), "bytes", sum.Sizes.Total, "dest", destDir, "move", opts.Move)

	for i, p := range localPaths {
		if err := ctx.Err(); err != nil {
			sum.abort(i, err)
			break
		}
		r := &sum.Items[i]
		if r.State != StatePending {
			continue
		}
		j := job{
			args:    []string{"push", p, destDir},
			name:    r.Name,
			total:   sum.Sizes.PerItem[p],
			measure: e.remoteMeter(st, r.Dest),
		}
		e.runItem(ctx, st, r, j, rep, opts.Cancel, interval)
		// partial pushes leave files behind too
		st.Cache.Forget(ctx, r.Dest, true, e.lister.Resolver(st))
		if r.State != StateSucceeded {
			continue
		}
		if !sum.DryRun {
			r.Bytes = j.total
		}
		if opts.Move {
			e.finishPushMove(ctx, st, infos[i], j.total, r)
		}
	}

	sum.finish(start)
	e.log.Info("push finished", "succeeded", sum.Succeeded, "failed", sum.Failed,
		"cancelled", sum.Cancelled, "bytes", sum.Bytes, "elapsed", sum.Elapsed)
	return sum, ctx.Err()
}

func (e *Engine) ensureRemoteDir(ctx context.Context, st *session.State, dir string) error {
	entry, err := e.lister.Lookup(ctx, st, dir)
	if err == nil {
		if !entry.IsDirLike() {
			return fmt.Errorf("%w: %s", domain.ErrNotDirectory, dir)
		}
		return nil
	}
	if !st.Device.Connected {
		return err
	}
	return e.mut.Mkdir(ctx, st, dir)
}

func (e *Engine) runItem(ctx context.Context, st *session.State, r *ItemResult, j job, rep progress.Reporter, cancel CancelPoller, interval time.Duration) {
	r.State = StateRunning
	rep.Start(j.name, j.total)

	err := e.execute(ctx, st, j, rep, cancel, interval)
	switch {
	case err == nil:
		r.State = StateSucceeded
		rep.Complete()
	case errors.Is(err, domain.ErrCancelled), ctx.Err() != nil:
		r.State = StateCancelled
		r.Err = err
		rep.Error(err)
		e.log.Warn("transfer cancelled", "item", j.name)
	default:
		r.State = StateFailed
		r.Err = err
		rep.Error(err)
		e.log.Warn("transfer failed", "item", j.name, "error", err)
	}
}

// execute runs one streaming call with output captured to temporary files,
// polling progress and cancellation until it exits
func (e *Engine) execute(ctx context.Context, st *session.State, j job, rep progress.Reporter, cancel CancelPoller, interval time.Duration) error {
	stdout, err := e.local.TempFile(e.TempDir, "adbexplorer-out-*")
	if err != nil {
		return fmt.Errorf("failed to capture output: %w", err)
	}
	defer e.discard(stdout)
	stderr, err := e.local.TempFile(e.TempDir, "adbexplorer-err-*")
	if err != nil {
		return fmt.Errorf("failed to capture output: %w", err)
	}
	defer e.discard(stderr)

	proc, err := e.inv.Start(ctx, st, j.args, stdout, stderr)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrTransferFailed, j.name, err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

wait:
	for {
		select {
		case <-proc.Done():
			break wait
		case <-ctx.Done():
			proc.Kill()
			proc.Wait()
			return ctx.Err()
		case <-ticker.C:
			if cancel != nil && cancel.Cancelled() {
				proc.Kill()
				proc.Wait()
				return fmt.Errorf("%w: %s", domain.ErrCancelled, j.name)
			}
			e.report(ctx, j, rep, stdout.Name(), stderr.Name())
		}
	}
	proc.Wait()

	output := e.read(stdout.Name()) + e.read(stderr.Name())
	code := proc.ExitCode()
	if code == 0 && !HasErrorText(output) {
		return nil
	}
	err = fmt.Errorf("%w: %s: exit status %d: %s", domain.ErrTransferFailed, j.name, code, lastLine(output))
	if e.inv.NoteFailure(st, output) {
		err = fmt.Errorf("%w: %w", domain.ErrDisconnected, err)
	}
	return err
}

func (e *Engine) report(ctx context.Context, j job, rep progress.Reporter, outputs ...string) {
	if j.measure != nil {
		if n, ok := j.measure(ctx); ok {
			rep.Update(n)
			return
		}
	}
	if j.total > 0 {
		var tail string
		for _, name := range outputs {
			tail += e.read(name)
		}
		if len(tail) > outputTail {
			tail = tail[len(tail)-outputTail:]
		}
		if pct, ok := LastPercent(tail); ok {
			rep.Update(j.total * int64(pct) / 100)
			return
		}
	}
	rep.Indeterminate("transferring " + j.name)
}

// remoteMeter polls the remote size of a pushed item at most once per second
func (e *Engine) remoteMeter(st *session.State, remote string) func(context.Context) (int64, bool) {
	var (
		last time.Time
		n    int64
		ok   bool
	)
	return func(ctx context.Context) (int64, bool) {
		if !last.IsZero() && time.Since(last) < remotePollInterval {
			return n, ok
		}
		last = time.Now()
		n, ok = e.sizes.PathSize(ctx, st, remote, remotePollTimeout)
		return n, ok
	}
}

func (e *Engine) read(name string) string {
	data, err := e.local.ReadFile(name)
	if err != nil {
		return ""
	}
	return string(data)
}

func (e *Engine) discard(f adapter.TempFile) {
	f.Close()
	if err := e.local.RemoveAll(context.Background(), f.Name()); err != nil {
		e.log.Debug("failed to remove capture file", "path", f.Name(), "error", err)
	}
}

func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func (e *Engine) finishPullMove(ctx context.Context, st *session.State, it domain.TransferItem, r *ItemResult) {
	if st.Config.WhatIf {
		// surfaces the rm without running it
		if err := e.mut.RemoveTree(ctx, st, it.FullPath); err != nil {
			r.Kept = err.Error()
			return
		}
		r.Kept = "what-if"
		return
	}

	err := e.verifyDest(ctx, r.Dest, it.IsDirLike())
	if err == nil {
		if it.IsDirLike() {
			err = e.verifyTree(ctx, st, it.FullPath, r.Dest)
		} else {
			err = e.verifyFile(ctx, r.Dest, it.Size)
		}
	}
	if err == nil {
		err = e.mut.RemoveTree(ctx, st, it.FullPath)
	}
	if err != nil {
		r.Kept = err.Error()
		e.log.Warn("move source kept", "item", it.FullPath, "reason", err)
		return
	}
	r.Deleted = true
}

func (e *Engine) finishPushMove(ctx context.Context, st *session.State, info adapter.FileInfo, size int64, r *ItemResult) {
	if st.Config.WhatIf {
		e.log.Info("what-if: local source not removed", "path", r.Source)
		r.Kept = "what-if"
		return
	}

	var err error
	if info.IsDir {
		err = e.verifyTree(ctx, st, r.Dest, r.Source)
	} else {
		err = e.verifyRemoteFile(ctx, st, r.Dest, size)
	}
	if err == nil {
		err = e.local.RemoveAll(ctx, r.Source)
	}
	if err != nil {
		r.Kept = err.Error()
		e.log.Warn("move source kept", "item", r.Source, "reason", err)
		return
	}
	r.Deleted = true
}

// verifyDest requires the pulled copy to exist with the source's kind.
// Size walks report a missing path as 0 bytes, so they cannot tell an empty
// copy from no copy.
func (e *Engine) verifyDest(ctx context.Context, dest string, wantDir bool) error {
	ok, err := e.local.Exists(ctx, dest)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrVerifyFailed, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s was not created", domain.ErrVerifyFailed, dest)
	}
	info, err := e.local.Stat(ctx, dest)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrVerifyFailed, err)
	}
	if info.IsDir != wantDir {
		return fmt.Errorf("%w: %s is not a %s", domain.ErrVerifyFailed, dest, kindWord(wantDir))
	}
	return nil
}

func kindWord(dir bool) string {
	if dir {
		return "directory"
	}
	return "file"
}

func (e *Engine) verifyFile(ctx context.Context, local string, want int64) error {
	got, err := e.local.Size(ctx, local)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrVerifyFailed, err)
	}
	if got != want {
		return fmt.Errorf("%w: %s has %d bytes, source has %d", domain.ErrVerifyFailed, local, got, want)
	}
	return nil
}

func (e *Engine) verifyRemoteFile(ctx context.Context, st *session.State, remote string, want int64) error {
	got, ok := e.sizes.FileBytes(ctx, st, remote, false)
	if !ok {
		entry, err := e.lister.Lookup(ctx, st, remote)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrVerifyFailed, err)
		}
		got = entry.Size
	}
	if got != want {
		return fmt.Errorf("%w: %s has %d bytes, source has %d", domain.ErrVerifyFailed, remote, got, want)
	}
	return nil
}

// verifyTree compares regular-file bytes on both sides, or immediate child
// counts when the remote shell cannot stat files
func (e *Engine) verifyTree(ctx context.Context, st *session.State, remote, local string) error {
	if remoteBytes, ok := e.sizes.FileBytes(ctx, st, remote, true); ok {
		localBytes, err := e.local.Size(ctx, local)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrVerifyFailed, err)
		}
		if localBytes != remoteBytes {
			return fmt.Errorf("%w: %s has %d bytes, %s has %d", domain.ErrVerifyFailed, local, localBytes, remote, remoteBytes)
		}
		return nil
	}

	entries, err := e.lister.Refresh(ctx, st, remote)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrVerifyFailed, err)
	}
	n, err := e.local.ChildCount(ctx, local)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrVerifyFailed, err)
	}
	if n != len(entries) {
		return fmt.Errorf("%w: %s has %d entries, %s has %d", domain.ErrVerifyFailed, local, n, remote, len(entries))
	}
	return nil
}
