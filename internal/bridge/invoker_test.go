package bridge_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Ning0612/adbexplorer/internal/bridge"
	"github.com/Ning0612/adbexplorer/internal/bridge/bridgetest"
	"github.com/Ning0612/adbexplorer/internal/domain"
	"github.com/Ning0612/adbexplorer/internal/session"
)

func newState(t *testing.T) *session.State {
	t.Helper()
	st, err := session.New(domain.Policy{SafeRoot: "/sdcard", DefaultTimeout: time.Second}, 10)
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}
	st.Device = domain.DeviceStatus{Connected: true, Serial: "SER1", DisplayName: "Pixel"}
	return st
}

func TestInvoke_PrependsSerial(t *testing.T) {
	fake := bridgetest.NewFakeRunner().On("shell echo", bridgetest.Response{Stdout: "hi\n"})
	inv := bridge.NewInvoker(fake)
	st := newState(t)

	res := inv.Invoke(context.Background(), st, []string{"shell", "echo hi"}, bridge.Options{})
	if !res.Success {
		t.Fatalf("Invoke() failed: %v", res.Err)
	}
	calls := fake.Calls()
	if len(calls) != 1 || strings.Join(calls[0][:2], " ") != "-s SER1" {
		t.Errorf("calls = %v, want -s SER1 prefix", calls)
	}

	inv.Invoke(context.Background(), st, []string{"version"}, bridge.Options{SuppressSerial: true})
	if got := fake.Calls()[1][0]; got != "version" {
		t.Errorf("suppressed call starts with %q, want version", got)
	}
}

func TestInvoke_Merge(t *testing.T) {
	fake := bridgetest.NewFakeRunner().On("pull", bridgetest.Response{Stdout: "a\n", Stderr: "1 file pulled\n"})
	inv := bridge.NewInvoker(fake)
	st := newState(t)

	res := inv.Invoke(context.Background(), st, []string{"pull", "/x", "/y"}, bridge.Options{Merge: true})
	if res.Output != "a\n1 file pulled\n" {
		t.Errorf("Output = %q", res.Output)
	}

	res = inv.Invoke(context.Background(), st, []string{"pull", "/x", "/y"}, bridge.Options{})
	if res.Output != "a\n" {
		t.Errorf("unmerged Output = %q", res.Output)
	}
}

func TestInvoke_Timeout(t *testing.T) {
	fake := bridgetest.NewFakeRunner().On("du -sb", bridgetest.Response{Delay: time.Second})
	inv := bridge.NewInvoker(fake)
	st := newState(t)

	res := inv.Invoke(context.Background(), st, []string{"shell", "du -sb /x"}, bridge.Options{Timeout: 20 * time.Millisecond})
	if res.Success {
		t.Fatal("expected timeout failure")
	}
	if res.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1", res.ExitCode)
	}
	if !errors.Is(res.Err, domain.ErrTimeout) {
		t.Errorf("Err = %v, want ErrTimeout", res.Err)
	}
}

func TestInvoke_NonZeroExit(t *testing.T) {
	fake := bridgetest.NewFakeRunner().On("ls", bridgetest.Response{ExitCode: 1, Stderr: "ls: /nope: No such file or directory\n"})
	inv := bridge.NewInvoker(fake)
	st := newState(t)

	res := inv.Invoke(context.Background(), st, []string{"shell", "ls /nope"}, bridge.Options{})
	if res.Success || !errors.Is(res.Err, domain.ErrBridgeFailed) {
		t.Errorf("Invoke() = %+v, want ErrBridgeFailed", res)
	}
	if !st.Device.Connected {
		t.Error("ordinary failure must not disconnect the session")
	}
}

func TestInvoke_DisconnectResetsSession(t *testing.T) {
	signatures := []string{
		"error: no devices/emulators found",
		"error: device offline",
		"error: device 'SER1' not found",
	}
	for _, sig := range signatures {
		t.Run(sig, func(t *testing.T) {
			fake := bridgetest.NewFakeRunner().On("shell", bridgetest.Response{ExitCode: 1, Stderr: sig})
			inv := bridge.NewInvoker(fake)
			st := newState(t)
			st.LastStatusCheck = time.Now()
			st.Cache.Put("/sdcard", []domain.Entry{{Name: "DCIM"}})
			st.Features.Probed = true

			res := inv.Invoke(context.Background(), st, []string{"shell", "ls /sdcard"}, bridge.Options{})
			if !errors.Is(res.Err, domain.ErrDisconnected) {
				t.Errorf("Err = %v, want ErrDisconnected", res.Err)
			}
			if st.Device.Connected || st.Cache.Len() != 0 || st.Features.Probed || !st.LastStatusCheck.IsZero() {
				t.Errorf("session not reset: device=%+v cache=%d probed=%v", st.Device, st.Cache.Len(), st.Features.Probed)
			}
		})
	}
}

func TestInvoke_WhatIf(t *testing.T) {
	fake := bridgetest.NewFakeRunner().On("", bridgetest.Response{})
	inv := bridge.NewInvoker(fake)
	notices := &bytes.Buffer{}
	inv.SetNoticeWriter(notices)
	st := newState(t)
	st.Config.WhatIf = true

	res := inv.Invoke(context.Background(), st, []string{"shell", "rm -rf '/sdcard/x'"}, bridge.Options{})
	if !res.Success || !res.DryRun {
		t.Errorf("expected synthetic success, got %+v", res)
	}
	if fake.CallsMatching("rm -rf") != 0 {
		t.Error("destructive command executed under what-if")
	}
	if !strings.Contains(notices.String(), "what-if: adb -s SER1 shell rm -rf '/sdcard/x'") {
		t.Errorf("notice = %q", notices.String())
	}

	inv.Invoke(context.Background(), st, []string{"shell", "ls -la /sdcard"}, bridge.Options{})
	if fake.CallsMatching("ls -la") != 1 {
		t.Error("read-only command should run under what-if")
	}
}

func TestInvoke_WhatIfRunsReadsOfPathsNamedLikeCommands(t *testing.T) {
	fake := bridgetest.NewFakeRunner().On("", bridgetest.Response{Stdout: "ok\n"})
	inv := bridge.NewInvoker(fake)
	notices := &bytes.Buffer{}
	inv.SetNoticeWriter(notices)
	st := newState(t)
	st.Config.WhatIf = true

	reads := []string{
		"ls -la '/sdcard/old rm stuff/'",
		"readlink -f '/sdcard/mv this'",
		"find '/sdcard/a; cp b/' -mindepth 1 -maxdepth 1",
	}
	for _, cmd := range reads {
		res := inv.Invoke(context.Background(), st, []string{"shell", cmd}, bridge.Options{})
		if !res.Success || res.DryRun {
			t.Errorf("Invoke(%q) = %+v, want a real run", cmd, res)
		}
		if fake.CallsMatching(cmd) != 1 {
			t.Errorf("Invoke(%q) did not reach the bridge", cmd)
		}
	}
	if notices.Len() != 0 {
		t.Errorf("notices = %q, want none", notices.String())
	}
}

func TestIsDestructive(t *testing.T) {
	tests := []struct {
		args []string
		want bool
	}{
		{[]string{"push", "a", "b"}, true},
		{[]string{"pull", "a", "b"}, true},
		{[]string{"shell", "rm -rf '/sdcard/x'"}, true},
		{[]string{"shell", "mv '/a' '/b'"}, true},
		{[]string{"shell", "cp '/a' '/b'"}, true},
		{[]string{"shell", "ls -la '/sdcard'"}, false},
		{[]string{"shell", "mkdir -p '/sdcard/x'"}, true},
		{[]string{"shell", "readlink -f '/sdcard'"}, false},
		{[]string{"shell", "ls -la '/sdcard/old rm stuff/'"}, false},
		{[]string{"shell", "find '/sdcard/a; rm x/' -mindepth 1"}, false},
		{[]string{"shell", "du -sb '/sdcard/mv cp/'"}, false},
		{[]string{"shell", "stat -c %s '/sdcard/it'\\''s rm'"}, false},
		{[]string{"shell", "cd /x; rm -rf y"}, true},
		{[]string{"shell", "test -d '/a' && mv '/a' '/b'"}, true},
		{[]string{"shell", "for p in '/a'; do test -d \"$p\"; done"}, false},
		{[]string{"devices", "-l"}, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := bridge.IsDestructive(tt.args); got != tt.want {
			t.Errorf("IsDestructive(%v) = %v, want %v", tt.args, got, tt.want)
		}
	}
}

func TestCommandWords(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"ls -la '/sdcard/old rm stuff/'", []string{"ls"}},
		{"cd /x; rm -rf y", []string{"cd", "rm"}},
		{"a | b && c\nd", []string{"a", "b", "c", "d"}},
		{"'r'm -rf /x", []string{"rm"}},
		{"echo 'a;b' \"c|d\" e\\;f", []string{"echo"}},
		{"  ", nil},
	}
	for _, tt := range tests {
		got := bridge.CommandWords(tt.line)
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("CommandWords(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestQuote(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/sdcard/DCIM", "'/sdcard/DCIM'"},
		{"/sdcard/My Photos", "'/sdcard/My Photos'"},
		{"/sdcard/it's", `'/sdcard/it'\''s'`},
	}
	for _, tt := range tests {
		if got := bridge.Quote(tt.in); got != tt.want {
			t.Errorf("Quote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
	if got := bridge.QuoteAll([]string{"/a", "/b c"}); got != "'/a' '/b c'" {
		t.Errorf("QuoteAll() = %s", got)
	}
}

func TestStart_WhatIfReturnsFinishedProcess(t *testing.T) {
	fake := bridgetest.NewFakeRunner()
	inv := bridge.NewInvoker(fake)
	inv.SetNoticeWriter(&bytes.Buffer{})
	st := newState(t)
	st.Config.WhatIf = true

	p, err := inv.Start(context.Background(), st, []string{"pull", "/sdcard/a", "/tmp/a"}, &bytes.Buffer{}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	select {
	case <-p.Done():
	default:
		t.Fatal("dry-run process should already be done")
	}
	if p.ExitCode() != 0 {
		t.Errorf("ExitCode = %d, want 0", p.ExitCode())
	}
	if len(fake.Calls()) != 0 {
		t.Error("runner called under what-if")
	}
}
