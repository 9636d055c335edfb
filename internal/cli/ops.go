package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/Ning0612/adbexplorer/internal/config"
	"github.com/Ning0612/adbexplorer/internal/dircache"
	"github.com/Ning0612/adbexplorer/internal/domain"
	"github.com/Ning0612/adbexplorer/internal/history"
	"github.com/Ning0612/adbexplorer/internal/keys"
	"github.com/Ning0612/adbexplorer/internal/lister"
	"github.com/Ning0612/adbexplorer/internal/lock"
	"github.com/Ning0612/adbexplorer/internal/mutate"
	"github.com/Ning0612/adbexplorer/internal/progress"
	"github.com/Ning0612/adbexplorer/internal/session"
	"github.com/Ning0612/adbexplorer/internal/sizecalc"
	"github.com/Ning0612/adbexplorer/internal/transfer"
)

// barThrottle limits terminal redraws of the progress bar
const barThrottle = 100 * time.Millisecond

func (a *app) list(ctx context.Context, p string, refresh bool) error {
	var (
		entries []domain.Entry
		err     error
	)
	if refresh {
		entries, err = a.lister.Refresh(ctx, a.state, p)
	} else {
		entries, err = a.lister.List(ctx, a.state, p)
	}
	if err != nil {
		var le *lister.ListError
		if errors.As(err, &le) && le.Raw != "" {
			return fmt.Errorf("cannot list %s: %s", le.Path, le.Raw)
		}
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, e := range entries {
		size := ""
		if e.IsFile() {
			size = progress.FormatBytes(e.Size)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", kindMarker(e), size, displayName(e))
	}
	tw.Flush()
	if len(entries) == 0 {
		a.printf("(empty)\n")
	}
	return nil
}

func kindMarker(e domain.Entry) string {
	switch {
	case e.IsDir():
		return "d"
	case e.Kind == domain.KindLink:
		return "l"
	case e.IsFile():
		return "-"
	default:
		return "?"
	}
}

func displayName(e domain.Entry) string {
	if e.IsDirLike() {
		return e.Name + "/"
	}
	return e.Name
}

// selectRemote resolves remote arguments to transfer items. With a match
// pattern, directory arguments contribute their matching children instead
// of themselves.
func (a *app) selectRemote(ctx context.Context, cwd string, args []string, match string) ([]domain.TransferItem, error) {
	var items []domain.TransferItem
	for _, arg := range args {
		p := resolveRemote(cwd, arg)
		entry, err := a.lister.Lookup(ctx, a.state, p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		if match == "" || !entry.IsDirLike() {
			items = append(items, domain.NewTransferItem(entry))
			continue
		}
		children, err := a.lister.List(ctx, a.state, entry.FullPath)
		if err != nil {
			return nil, err
		}
		selected, err := transfer.Select(children, match)
		if err != nil {
			return nil, err
		}
		items = append(items, transfer.Items(selected)...)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("nothing matched %q", match)
	}
	return items, nil
}

// resolveRemote joins a relative remote argument onto cwd
func resolveRemote(cwd, arg string) string {
	if arg == "" {
		return dircache.Normalize(cwd)
	}
	if arg[0] == '/' {
		return dircache.Normalize(arg)
	}
	return dircache.Normalize(domain.JoinRemote(cwd, arg))
}

func localPath(p string) (string, error) {
	abs, err := filepath.Abs(config.ExpandPath(p))
	if err != nil {
		return "", fmt.Errorf("invalid local path %s: %w", p, err)
	}
	return abs, nil
}

// transferUI owns the cancel-key watcher for one batch. The watcher only
// starts after the confirmation prompt so raw mode never swallows the answer.
type transferUI struct {
	a       *app
	cancel  context.CancelFunc
	watcher *keys.Watcher
}

func (u *transferUI) start() {
	f, ok := u.a.in.(*os.File)
	if !ok {
		return
	}
	w, err := keys.Start(f, u.cancel)
	if err != nil {
		u.a.log.Debug("cancel keys unavailable", "error", err)
	}
	u.watcher = w
	if isTerminal(f) {
		fmt.Fprintln(u.a.errOut, "Press Esc or q to skip the current item")
	}
}

func (u *transferUI) stop() {
	if u.watcher != nil {
		u.watcher.Stop()
	}
}

func (u *transferUI) Cancelled() bool {
	return u.watcher != nil && u.watcher.Cancelled()
}

func (a *app) transferOptions(ctx context.Context, verb string, items int, move, yes bool) (transfer.Options, *transferUI, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	ui := &transferUI{a: a, cancel: cancel}
	if move {
		verb = "Move (" + verb + ")"
	}
	opts := transfer.Options{
		Move:     move,
		Reporter: progress.NewTerminalReporter(a.errOut, isTerminal(a.errOut), barThrottle),
		Cancel:   ui,
		Confirm: func(s sizecalc.Sizes) bool {
			total := progress.FormatBytes(s.Total)
			if s.Incomplete() {
				total += " (some directory sizes unknown)"
			}
			ok := yes
			if !ok {
				var err error
				ok, err = a.prompter().Confirm(fmt.Sprintf("%s %d item(s), %s?", verb, items, total))
				if err != nil {
					a.log.Warn("confirmation failed", "error", err)
				}
			}
			if ok {
				ui.start()
			}
			return ok
		},
	}
	return opts, ui, ctx
}

func (a *app) pull(ctx context.Context, items []domain.TransferItem, dest string, move, yes bool) error {
	dest, err := localPath(dest)
	if err != nil {
		return err
	}
	sources := make([]string, len(items))
	for i, it := range items {
		sources[i] = it.FullPath
	}

	return a.withDeviceLock("pull", func() error {
		opts, ui, tctx := a.transferOptions(ctx, "Pull", len(items), move, yes)
		defer ui.cancel()
		start := time.Now()
		sum, err := a.engine.Pull(tctx, a.state, items, dest, opts)
		ui.stop()
		return a.finishBatch(sources, dest, start, sum, err)
	})
}

func (a *app) push(ctx context.Context, paths []string, dest string, move, yes bool) error {
	sources := make([]string, len(paths))
	for i, p := range paths {
		abs, err := localPath(p)
		if err != nil {
			return err
		}
		sources[i] = abs
	}

	return a.withDeviceLock("push", func() error {
		opts, ui, tctx := a.transferOptions(ctx, "Push", len(paths), move, yes)
		defer ui.cancel()
		start := time.Now()
		sum, err := a.engine.Push(tctx, a.state, sources, dest, opts)
		ui.stop()
		return a.finishBatch(sources, dest, start, sum, err)
	})
}

func (a *app) finishBatch(sources []string, dest string, start time.Time, sum transfer.Summary, batchErr error) error {
	if errors.Is(batchErr, domain.ErrNotConfirmed) {
		a.printf("Cancelled.\n")
		return nil
	}
	a.printSummary(sum)
	a.record(sources, dest, start, sum, batchErr)
	if batchErr != nil {
		return batchErr
	}
	if sum.Failed > 0 {
		return fmt.Errorf("%d of %d item(s) did not transfer", sum.Failed, len(sum.Items))
	}
	return nil
}

func (a *app) printSummary(sum transfer.Summary) {
	for _, it := range sum.Items {
		switch it.State {
		case transfer.StateFailed:
			a.printf("FAILED    %s: %v\n", it.Name, it.Err)
		case transfer.StateCancelled:
			a.printf("CANCELLED %s\n", it.Name)
		}
		if sum.Move && it.State == transfer.StateSucceeded && !it.Deleted {
			a.printf("KEPT      %s: %s\n", it.Source, it.Kept)
		}
	}

	prefix := ""
	if sum.DryRun {
		prefix = "what-if: "
	}
	rate := ""
	if secs := sum.Elapsed.Seconds(); secs > 0 && sum.Bytes > 0 {
		rate = ", " + progress.FormatSpeed(float64(sum.Bytes)/secs)
	}
	a.printf("%s%s: %d succeeded, %d failed, %s in %s%s\n", prefix, sum.Direction, sum.Succeeded, sum.Failed,
		progress.FormatBytes(sum.Bytes), sum.Elapsed.Round(time.Millisecond), rate)
}

// record stores the batch in the history database when enabled
func (a *app) record(sources []string, dest string, start time.Time, sum transfer.Summary, batchErr error) {
	if !a.cfg.Data.History || len(sum.Items) == 0 {
		return
	}
	store, err := history.Open(a.cfg.HistoryPath())
	if err != nil {
		a.log.Warn("transfer history unavailable", "error", err)
		return
	}
	defer store.Close()
	if err := store.Save(history.FromSummary(a.state.Device.Serial, sources, dest, start, sum, batchErr)); err != nil {
		a.log.Warn("failed to record transfer", "error", err)
	}
}

// withDeviceLock runs fn holding the lock file of the connected device
func (a *app) withDeviceLock(operation string, fn func() error) error {
	l, err := lock.New(a.cfg.LockDir(), a.state.Device.Serial)
	if err != nil {
		return err
	}
	if err := l.Acquire(operation); err != nil {
		return err
	}
	defer func() {
		if err := l.Release(); err != nil {
			a.log.Warn("failed to release device lock", "error", err)
		}
	}()
	return fn()
}

func (a *app) remove(ctx context.Context, cwd string, args []string, yes bool) error {
	var confirmer mutate.Confirmer = a.prompter()
	if yes {
		confirmer = mutate.AssumeYes{}
	}
	return a.withDeviceLock("delete", func() error {
		for _, arg := range args {
			p := resolveRemote(cwd, arg)
			entry, err := a.lister.Lookup(ctx, a.state, p)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			if err := a.mut.Delete(ctx, a.state, entry, confirmer); err != nil {
				if errors.Is(err, domain.ErrNotConfirmed) {
					a.printf("Skipped %s\n", p)
					continue
				}
				return err
			}
			a.printf("Deleted %s\n", p)
		}
		return nil
	})
}

func (a *app) mkdir(ctx context.Context, p string) error {
	return a.withDeviceLock("mkdir", func() error {
		if err := a.mut.Mkdir(ctx, a.state, p); err != nil {
			return err
		}
		a.printf("Created %s\n", p)
		return nil
	})
}

func (a *app) rename(ctx context.Context, p, newName string) error {
	return a.withDeviceLock("rename", func() error {
		newPath, err := a.mut.Rename(ctx, a.state, p, newName)
		if err != nil {
			return err
		}
		a.printf("Renamed %s -> %s\n", p, newPath)
		return nil
	})
}

func (a *app) info() {
	st := a.state
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Device\t%s\n", st.Device.DisplayName)
	fmt.Fprintf(tw, "Serial\t%s\n", st.Device.Serial)
	fmt.Fprintf(tw, "Bridge version\t%s\n", valueOr(st.Features.BridgeVersion, "unknown"))
	fmt.Fprintf(tw, "Batch stat\t%s\n", st.Features.Get(session.CapBatchStat))
	fmt.Fprintf(tw, "du -sb\t%s\n", st.Features.Get(session.CapDuSb))
	fmt.Fprintf(tw, "ls --time-style\t%s\n", st.Features.Get(session.CapLsTimeStyle))
	fmt.Fprintf(tw, "Safe root\t%s\n", st.Config.SafeRoot)
	fmt.Fprintf(tw, "Unsafe allowed\t%v\n", st.Config.AllowUnsafe)
	fmt.Fprintf(tw, "What-if\t%v\n", st.Config.WhatIf)
	fmt.Fprintf(tw, "Cached listings\t%d\n", st.Cache.Len())
	tw.Flush()
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
