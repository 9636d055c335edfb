// Package sizecalc computes aggregate remote sizes for a transfer selection.
package sizecalc

import (
	"bufio"
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Ning0612/adbexplorer/internal/bridge"
	"github.com/Ning0612/adbexplorer/internal/dircache"
	"github.com/Ning0612/adbexplorer/internal/domain"
	"github.com/Ning0612/adbexplorer/internal/logger"
	"github.com/Ning0612/adbexplorer/internal/probe"
	"github.com/Ning0612/adbexplorer/internal/session"
)

// QueryTimeout bounds the batched du call
const QueryTimeout = 60 * time.Second

var duLine = regexp.MustCompile(`^(\d+)\t(.*)$`)

// Sizes is the outcome of a size calculation
type Sizes struct {
	Total int64
	// PerItem maps each item's FullPath to its size
	PerItem map[string]int64
	// Unresolved lists directories that contributed 0 because their size
	// could not be determined
	Unresolved []string
}

// Incomplete reports whether Total may undercount
func (s Sizes) Incomplete() bool {
	return len(s.Unresolved) > 0
}

// Calculator sizes selections through one batched remote query
type Calculator struct {
	inv *bridge.Invoker
	log logger.Logger
	// Timeout bounds each du call
	Timeout time.Duration
}

// New creates a calculator
func New(inv *bridge.Invoker) *Calculator {
	return &Calculator{inv: inv, log: logger.With("component", "sizecalc"), Timeout: QueryTimeout}
}

// SizeOf sums file sizes directly and resolves every directory in a single
// du call. Directories that cannot be resolved count as 0 and are listed in
// Unresolved; SizeOf never fails.
func (c *Calculator) SizeOf(ctx context.Context, st *session.State, items []domain.TransferItem) Sizes {
	sizes := Sizes{PerItem: make(map[string]int64, len(items))}

	var dirs []string
	for _, it := range items {
		if it.IsDirLike() {
			dirs = append(dirs, it.FullPath)
			continue
		}
		sizes.PerItem[it.FullPath] = it.Size
		sizes.Total += it.Size
	}
	if len(dirs) == 0 {
		return sizes
	}

	resolved := c.queryDirs(ctx, st, dirs)
	for _, d := range dirs {
		n, ok := resolved[dircache.Normalize(d)]
		if !ok {
			sizes.Unresolved = append(sizes.Unresolved, d)
		}
		sizes.PerItem[d] = n
		sizes.Total += n
	}
	if sizes.Incomplete() {
		c.log.Warn("directory sizes unavailable, totals may be incomplete", "unresolved", sizes.Unresolved)
	}
	return sizes
}

// DirSize returns the size of one remote directory
func (c *Calculator) DirSize(ctx context.Context, st *session.State, dir string) (int64, bool) {
	n, ok := c.queryDirs(ctx, st, []string{dir})[dircache.Normalize(dir)]
	return n, ok
}

func (c *Calculator) queryDirs(ctx context.Context, st *session.State, dirs []string) map[string]int64 {
	if !st.Features.Allows(session.CapDuSb) {
		return nil
	}

	// trailing slash follows symlinked directories
	args := make([]string, len(dirs))
	for i, d := range dirs {
		args[i] = strings.TrimRight(d, "/") + "/"
	}
	res := c.inv.Invoke(ctx, st, bridge.Shell("du -sb "+bridge.QuoteAll(args)), bridge.Options{Timeout: c.Timeout, HideOutput: true})

	resolved := ParseDu(res.Stdout)
	if !res.Success {
		if IsUnsupportedDu(res.Diagnostic()) {
			probe.Fallback(c.log, st, session.CapDuSb, res.Diagnostic())
			return nil
		}
		// du exits non-zero on unreadable subdirectories but still prints totals
		c.log.Warn("size query failed", "dirs", len(dirs), "error", res.Err)
		return resolved
	}
	if st.Features.Get(session.CapDuSb) == session.Unknown {
		st.Features.Set(session.CapDuSb, session.Supported)
	}
	return resolved
}

// ParseDu parses "<bytes>\t<path>" lines keyed by normalized path
func ParseDu(output string) map[string]int64 {
	out := make(map[string]int64)
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		m := duLine.FindStringSubmatch(strings.TrimRight(scanner.Text(), "\r"))
		if m == nil {
			continue
		}
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		out[dircache.Normalize(m[2])] = n
	}
	return out
}

var duUnsupported = regexp.MustCompile(`(?im)(unknown|invalid|unrecognized|illegal|bad) option|: not found|applet not found|^usage:`)

// IsUnsupportedDu reports whether du rejected the -b flag or is missing
func IsUnsupportedDu(text string) bool {
	return duUnsupported.MatchString(text)
}

// PathSize returns the apparent size of one remote file or directory.
// It does not downgrade the du capability on failure: the path may simply
// not exist yet while a push is creating it.
func (c *Calculator) PathSize(ctx context.Context, st *session.State, p string, timeout time.Duration) (int64, bool) {
	if !st.Features.Allows(session.CapDuSb) {
		return 0, false
	}
	res := c.inv.Invoke(ctx, st, bridge.Shell("du -sb "+bridge.Quote(p)), bridge.Options{Timeout: timeout, HideOutput: true})
	if !res.Success {
		return 0, false
	}
	for _, n := range ParseDu(res.Stdout) {
		return n, true
	}
	return 0, false
}

// FileBytes sums the sizes of every regular file at or below p. Unlike du it
// does not count directory blocks, so the result compares directly with a
// local tree. It requires stat -c support.
func (c *Calculator) FileBytes(ctx context.Context, st *session.State, p string, isDir bool) (int64, bool) {
	if !st.Features.Allows(session.CapBatchStat) {
		return 0, false
	}
	target := p
	if isDir {
		target = strings.TrimRight(p, "/") + "/"
	}
	cmd := "find " + bridge.Quote(target) + " -type f -exec stat -c %s {} +"
	res := c.inv.Invoke(ctx, st, bridge.Shell(cmd), bridge.Options{Timeout: c.Timeout, HideOutput: true})
	if !res.Success {
		return 0, false
	}
	return SumLines(res.Stdout)
}

// SumLines adds one integer per line. Any malformed line fails the sum.
func SumLines(output string) (int64, bool) {
	var total int64
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		n, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return 0, false
		}
		total += n
	}
	return total, true
}
