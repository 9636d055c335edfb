// Package lister fetches remote directory listings through the cheapest
// strategy the device supports and caches the sorted result.
package lister

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Ning0612/adbexplorer/internal/bridge"
	"github.com/Ning0612/adbexplorer/internal/dircache"
	"github.com/Ning0612/adbexplorer/internal/domain"
	"github.com/Ning0612/adbexplorer/internal/logger"
	"github.com/Ning0612/adbexplorer/internal/probe"
	"github.com/Ning0612/adbexplorer/internal/session"
)

const (
	resolveTimeout = 10 * time.Second
	reprobeBatch   = 50
)

// unsupportedPattern matches remote shell complaints about a missing command or flag
var unsupportedPattern = regexp.MustCompile(`(?im)(unknown|invalid|unrecognized|illegal|bad) option|: not found|applet not found|unknown format|^usage:`)

// IsUnsupported reports whether failure text means the command or flag is unavailable
func IsUnsupported(text string) bool {
	return unsupportedPattern.MatchString(text)
}

// ListError reports a listing failure with the attempted path and raw remote text
type ListError struct {
	Path string
	Raw  string
	Err  error
}

func (e *ListError) Error() string {
	if e.Raw == "" {
		return fmt.Sprintf("failed to list %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("failed to list %s: %s", e.Path, e.Raw)
}

func (e *ListError) Unwrap() error {
	return e.Err
}

// strategy is one way of listing a directory
type strategy interface {
	// gate returns the capability guarding this strategy; ok is false for the last resort
	gate() (c session.Capability, ok bool)
	command(canonical string) string
	parse(output, requested string) []domain.Entry
}

type batchStat struct{}

func (batchStat) gate() (session.Capability, bool) { return session.CapBatchStat, true }
func (batchStat) command(canonical string) string {
	return fmt.Sprintf("find %s -mindepth 1 -maxdepth 1 -exec stat -c %s {} +", bridge.Quote(dirArg(canonical)), bridge.Quote(statFormat))
}
func (batchStat) parse(output, requested string) []domain.Entry {
	return ParseBatchStat(output, requested)
}

type lsTimeStyle struct{}

func (lsTimeStyle) gate() (session.Capability, bool) { return session.CapLsTimeStyle, true }
func (lsTimeStyle) command(canonical string) string {
	return "ls -la --time-style=+%s " + bridge.Quote(dirArg(canonical))
}
func (lsTimeStyle) parse(output, requested string) []domain.Entry {
	return ParseLs(output, requested)
}

type lsPlain struct{}

func (lsPlain) gate() (session.Capability, bool) { return "", false }
func (lsPlain) command(canonical string) string {
	return "ls -la " + bridge.Quote(dirArg(canonical))
}
func (lsPlain) parse(output, requested string) []domain.Entry {
	return ParseLs(output, requested)
}

var strategies = []strategy{batchStat{}, lsTimeStyle{}, lsPlain{}}

// dirArg adds a trailing slash so a symlinked directory is listed through
func dirArg(p string) string {
	if p == "/" {
		return p
	}
	return p + "/"
}

// Lister lists remote directories
type Lister struct {
	inv    *bridge.Invoker
	prober *probe.Prober
	log    logger.Logger
}

// New creates a lister. prober may be nil, in which case capabilities are
// learned from listing failures alone.
func New(inv *bridge.Invoker, prober *probe.Prober) *Lister {
	return &Lister{inv: inv, prober: prober, log: logger.With("component", "lister")}
}

// Resolver returns a dircache.Resolver backed by "readlink -f"
func Resolver(inv *bridge.Invoker, st *session.State) dircache.Resolver {
	return func(ctx context.Context, p string) (string, error) {
		res := inv.Invoke(ctx, st, bridge.Shell("readlink -f "+bridge.Quote(p)), bridge.Options{Timeout: resolveTimeout, HideOutput: true})
		if !res.Success {
			return "", res.Err
		}
		target := strings.TrimSpace(res.Stdout)
		if target == "" || !strings.HasPrefix(target, "/") {
			return "", fmt.Errorf("%w: no link target for %s", domain.ErrUnsupported, p)
		}
		return target, nil
	}
}

// Resolver returns the symlink resolver bound to st
func (l *Lister) Resolver(st *session.State) dircache.Resolver {
	return Resolver(l.inv, st)
}

// List returns the sorted entries of a remote directory. A cached line is
// answered without touching the bridge. On failure an empty slice and a
// *ListError are returned so callers can render an inaccessible directory.
func (l *Lister) List(ctx context.Context, st *session.State, raw string) ([]domain.Entry, error) {
	requested := dircache.Normalize(raw)
	if l.prober != nil {
		l.prober.Ensure(ctx, st)
	}

	canonical := st.Cache.Canonicalize(ctx, requested, l.Resolver(st))
	if cached, ok := st.Cache.Get(canonical); ok {
		return rebase(cached, requested), nil
	}

	entries, err := l.fetch(ctx, st, canonical, requested)
	if err != nil {
		l.log.Warn("listing failed", "path", requested, "error", err)
		return []domain.Entry{}, err
	}

	l.reprobe(ctx, st, canonical, entries)
	SortEntries(entries)
	st.Cache.Put(canonical, entries)
	return rebase(entries, requested), nil
}

// Refresh drops the cached line for a directory and lists it again
func (l *Lister) Refresh(ctx context.Context, st *session.State, raw string) ([]domain.Entry, error) {
	st.Cache.Invalidate(raw)
	return l.List(ctx, st, raw)
}

// Lookup finds a single entry by listing its parent. The root directory
// is synthesized.
func (l *Lister) Lookup(ctx context.Context, st *session.State, raw string) (domain.Entry, error) {
	p := dircache.Normalize(raw)
	if p == "/" {
		return domain.Entry{Name: "/", Kind: domain.KindDirectory, FullPath: "/"}, nil
	}
	entries, err := l.List(ctx, st, dircache.Parent(p))
	if err != nil {
		return domain.Entry{}, err
	}
	name := domain.BaseRemote(p)
	for _, e := range entries {
		if e.Name == name {
			return e, nil
		}
	}
	return domain.Entry{}, &ListError{Path: p, Raw: "No such file or directory", Err: domain.ErrBridgeFailed}
}

func (l *Lister) fetch(ctx context.Context, st *session.State, canonical, requested string) ([]domain.Entry, error) {
	for _, s := range strategies {
		c, gated := s.gate()
		if gated && !st.Features.Allows(c) {
			continue
		}

		res := l.inv.Invoke(ctx, st, bridge.Shell(s.command(canonical)), bridge.Options{HideOutput: gated})
		if res.Success {
			if gated && st.Features.Get(c) == session.Unknown {
				st.Features.Set(c, session.Supported)
			}
			return s.parse(res.Stdout, requested), nil
		}

		if ctx.Err() != nil || !st.Device.Connected {
			return nil, &ListError{Path: requested, Raw: res.Diagnostic(), Err: res.Err}
		}
		if gated && IsUnsupported(res.Diagnostic()) {
			probe.Fallback(l.log, st, c, res.Diagnostic())
			continue
		}
		return nil, &ListError{Path: requested, Raw: res.Diagnostic(), Err: res.Err}
	}
	return nil, &ListError{Path: requested, Err: domain.ErrUnsupported}
}

// reprobe resolves links and unknown kinds with batched directory tests
func (l *Lister) reprobe(ctx context.Context, st *session.State, canonical string, entries []domain.Entry) {
	index := make(map[string]int)
	var paths []string
	for i, e := range entries {
		if e.Kind != domain.KindLink && e.Kind != domain.KindOther {
			continue
		}
		p := domain.JoinRemote(canonical, e.Name)
		index[p] = i
		paths = append(paths, p)
	}

	for start := 0; start < len(paths); start += reprobeBatch {
		end := min(start+reprobeBatch, len(paths))
		cmd := fmt.Sprintf(`for p in %s; do if [ -d "$p" ]; then echo "d $p"; elif [ -f "$p" ]; then echo "f $p"; else echo "o $p"; fi; done`,
			bridge.QuoteAll(paths[start:end]))
		res := l.inv.Invoke(ctx, st, bridge.Shell(cmd), bridge.Options{HideOutput: true})
		if !res.Success {
			l.log.Debug("kind re-probe failed", "path", canonical, "error", res.Err)
			return
		}
		applyReprobe(res.Stdout, index, entries)
	}
}

func applyReprobe(output string, index map[string]int, entries []domain.Entry) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if len(line) < 3 || line[1] != ' ' {
			continue
		}
		i, ok := index[line[2:]]
		if !ok {
			continue
		}
		e := &entries[i]
		switch line[0] {
		case 'd':
			if e.Kind == domain.KindLink {
				e.LinkDir = true
			} else {
				e.Kind = domain.KindDirectory
			}
		case 'f':
			if e.Kind == domain.KindOther {
				e.Kind = domain.KindFile
			}
		}
	}
}

// rebase copies entries with FullPath joined to the requested directory
func rebase(entries []domain.Entry, requested string) []domain.Entry {
	out := make([]domain.Entry, len(entries))
	for i, e := range entries {
		e.FullPath = domain.JoinRemote(requested, e.Name)
		out[i] = e
	}
	return out
}
