// Package probe detects which remote shell features a device supports.
package probe

import (
	"context"
	"regexp"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/Ning0612/adbexplorer/internal/bridge"
	"github.com/Ning0612/adbexplorer/internal/logger"
	"github.com/Ning0612/adbexplorer/internal/session"
)

// MinBridgeVersion is the oldest bridge release known to handle every command used here
const MinBridgeVersion = "v1.0.39"

// ScratchPath is the world-writable directory used for the du probe
const ScratchPath = "/data/local/tmp"

const probeTimeout = 10 * time.Second

var versionPattern = regexp.MustCompile(`(?i)version\s+(\d+\.\d+\.\d+)`)

// test describes one capability probe
type test struct {
	capability session.Capability
	command    string
	// accept validates successful output; nil accepts any exit-0 result
	accept func(out string) bool
}

var tests = []test{
	{
		capability: session.CapBatchStat,
		command:    "stat -c '%F|%s|%n' /",
		accept:     func(out string) bool { return strings.Count(strings.TrimSpace(out), "|") >= 2 },
	},
	{
		capability: session.CapDuSb,
		command:    "du -sb " + bridge.Quote(ScratchPath),
		accept:     func(out string) bool { return duLine.MatchString(out) },
	},
	{
		capability: session.CapLsTimeStyle,
		command:    "ls -la --time-style=+%s /",
	},
}

var duLine = regexp.MustCompile(`(?m)^\d+\s`)

// Prober runs capability probes through an invoker
type Prober struct {
	inv *bridge.Invoker
	log logger.Logger
}

// New creates a prober
func New(inv *bridge.Invoker) *Prober {
	return &Prober{inv: inv, log: logger.With("component", "probe")}
}

// ParseVersion extracts a semantic version ("v1.0.41") from bridge version output
func ParseVersion(output string) (string, bool) {
	m := versionPattern.FindStringSubmatch(output)
	if m == nil {
		return "", false
	}
	v := "v" + m[1]
	if !semver.IsValid(v) {
		return "", false
	}
	return v, true
}

// Ensure probes once per connection lifetime. It is idempotent: once the
// features are marked probed nothing is re-run until a disconnect resets them.
// Probe failures never surface as errors; they downgrade the capability.
func (p *Prober) Ensure(ctx context.Context, st *session.State) {
	if !st.Features.VersionChecked() {
		p.checkVersion(ctx, st)
	}
	if st.Features.Probed || !st.Device.Connected {
		return
	}

	for _, tc := range tests {
		if st.Features.Get(tc.capability) != session.Unknown {
			continue
		}
		res := p.inv.Invoke(ctx, st, bridge.Shell(tc.command), bridge.Options{Timeout: probeTimeout, HideOutput: true})
		if !st.Device.Connected {
			// the probe itself observed a disconnect; try again on the next connection
			return
		}
		if res.Success && (tc.accept == nil || tc.accept(res.Stdout)) {
			st.Features.Set(tc.capability, session.Supported)
			continue
		}
		Fallback(p.log, st, tc.capability, res.Diagnostic())
	}
	st.Features.Probed = true
	p.log.Debug("capabilities probed",
		"batch_stat", st.Features.SupportsBatchStat.String(),
		"du_sb", st.Features.SupportsDuSb.String(),
		"ls_time_style", st.Features.SupportsLsTimeStyle.String())
}

func (p *Prober) checkVersion(ctx context.Context, st *session.State) {
	st.Features.MarkVersionChecked()
	res := p.inv.Invoke(ctx, st, []string{"version"}, bridge.Options{SuppressSerial: true, Timeout: probeTimeout, HideOutput: true})
	if !res.Success {
		p.log.Warn("could not query bridge version", "error", res.Err)
		return
	}
	v, ok := ParseVersion(res.Stdout)
	if !ok {
		p.log.Warn("unrecognized bridge version output", "output", strings.TrimSpace(res.Stdout))
		return
	}
	st.Features.BridgeVersion = strings.TrimPrefix(v, "v")
	if semver.Compare(v, MinBridgeVersion) < 0 {
		p.log.Warn("bridge is older than the minimum known-good version",
			"version", st.Features.BridgeVersion, "minimum", strings.TrimPrefix(MinBridgeVersion, "v"))
	}
}

// Fallback marks a capability unsupported and logs a notice the first time only
func Fallback(log logger.Logger, st *session.State, c session.Capability, detail string) {
	if st.Features.Downgrade(c) {
		log.Warn("remote shell feature unavailable, falling back", "capability", string(c), "detail", firstLine(detail))
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
