package lister

import (
	"context"
	"errors"
	"testing"

	"github.com/Ning0612/adbexplorer/internal/bridge"
	"github.com/Ning0612/adbexplorer/internal/bridge/bridgetest"
	"github.com/Ning0612/adbexplorer/internal/domain"
	"github.com/Ning0612/adbexplorer/internal/session"
)

const dcimStat = "directory|4096|/storage/emulated/0/DCIM/Screenshots\n" +
	"regular file|500000|/storage/emulated/0/DCIM/a.jpg\n" +
	"directory|4096|/storage/emulated/0/DCIM/.thumbnails\n" +
	"regular file|250000|/storage/emulated/0/DCIM/b.jpg\n" +
	"directory|4096|/storage/emulated/0/DCIM/Camera\n"

func newSession(t *testing.T) *session.State {
	t.Helper()
	st, err := session.New(domain.Policy{SafeRoot: "/sdcard"}, 10)
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}
	st.Device = domain.DeviceStatus{Connected: true, Serial: "SER1"}
	return st
}

func dcimRunner() *bridgetest.FakeRunner {
	return bridgetest.NewFakeRunner().
		On("readlink -f '/sdcard/DCIM'", bridgetest.Response{Stdout: "/storage/emulated/0/DCIM\n"}).
		On("readlink -f '/storage/emulated/0/DCIM'", bridgetest.Response{Stdout: "/storage/emulated/0/DCIM\n"}).
		On("find '/storage/emulated/0/DCIM/'", bridgetest.Response{Stdout: dcimStat})
}

func TestList_BatchStatScenario(t *testing.T) {
	fake := dcimRunner()
	l := New(bridge.NewInvoker(fake), nil)
	st := newSession(t)

	entries, err := l.List(context.Background(), st, "/sdcard/DCIM")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	want := []string{"Camera", "Screenshots", ".thumbnails", "a.jpg", "b.jpg"}
	if got := names(entries); len(got) != len(want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
	for i, name := range want {
		if entries[i].Name != name {
			t.Errorf("entries[%d] = %q, want %q", i, entries[i].Name, name)
		}
	}
	if entries[3].Size != 500000 {
		t.Errorf("a.jpg size = %d, want 500000", entries[3].Size)
	}
	if entries[0].FullPath != "/sdcard/DCIM/Camera" {
		t.Errorf("FullPath = %q, want requested parent", entries[0].FullPath)
	}
	if st.Features.SupportsBatchStat != session.Supported {
		t.Errorf("SupportsBatchStat = %v, want supported", st.Features.SupportsBatchStat)
	}
}

func TestList_AliasAndCanonicalShareLine(t *testing.T) {
	fake := dcimRunner()
	l := New(bridge.NewInvoker(fake), nil)
	st := newSession(t)
	ctx := context.Background()

	if _, err := l.List(ctx, st, "/sdcard/DCIM"); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	again, err := l.List(ctx, st, "/sdcard/DCIM/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	canon, err := l.List(ctx, st, "/storage/emulated/0/DCIM")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if n := fake.CallsMatching("find"); n != 1 {
		t.Errorf("find calls = %d, want 1", n)
	}
	if n := fake.CallsMatching("readlink"); n != 1 {
		t.Errorf("readlink calls = %d, want 1", n)
	}
	if again[0].FullPath != "/sdcard/DCIM/Camera" {
		t.Errorf("alias FullPath = %q", again[0].FullPath)
	}
	if canon[0].FullPath != "/storage/emulated/0/DCIM/Camera" {
		t.Errorf("canonical FullPath = %q", canon[0].FullPath)
	}
}

func TestList_ReturnsCopies(t *testing.T) {
	l := New(bridge.NewInvoker(dcimRunner()), nil)
	st := newSession(t)
	ctx := context.Background()

	first, _ := l.List(ctx, st, "/sdcard/DCIM")
	first[0].Name = "mutated"

	second, _ := l.List(ctx, st, "/sdcard/DCIM")
	if second[0].Name != "Camera" {
		t.Error("caller mutation leaked into the cache")
	}
}

func TestList_FallsBackOnceWhenUnsupported(t *testing.T) {
	fake := bridgetest.NewFakeRunner().
		On("readlink", bridgetest.Response{ExitCode: 1, Stderr: "readlink: Unknown option f\n"}).
		On("find", bridgetest.Response{ExitCode: 1, Stderr: "find: Unknown option -mindepth\n"}).
		On("--time-style", bridgetest.Response{Stdout: "total 8\n" +
			"drwxrwx--x 2 root sdcard_rw 4096 1706708700 Camera\n" +
			"-rw-rw---- 1 root sdcard_rw 500000 1706708700 a.jpg\n"})
	l := New(bridge.NewInvoker(fake), nil)
	st := newSession(t)
	ctx := context.Background()

	entries, err := l.List(ctx, st, "/sdcard/DCIM")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "Camera" || entries[1].Size != 500000 {
		t.Errorf("entries = %+v", entries)
	}
	if _, err := l.List(ctx, st, "/sdcard/Music"); err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if n := fake.CallsMatching("find"); n != 1 {
		t.Errorf("find calls = %d, want exactly 1 failed attempt", n)
	}
	if st.Features.SupportsBatchStat != session.Unsupported {
		t.Errorf("SupportsBatchStat = %v, want unsupported", st.Features.SupportsBatchStat)
	}
	if st.Features.SupportsLsTimeStyle != session.Supported {
		t.Errorf("SupportsLsTimeStyle = %v, want supported", st.Features.SupportsLsTimeStyle)
	}
}

func TestList_PlainLsLastResort(t *testing.T) {
	fake := bridgetest.NewFakeRunner().
		On("readlink", bridgetest.Response{ExitCode: 1}).
		On("ls -la '/sdcard/'", bridgetest.Response{Stdout: "-rw-r--r-- 1 root root 10 Jan 5 10:22 x.txt\n"})
	l := New(bridge.NewInvoker(fake), nil)
	st := newSession(t)
	st.Features.SupportsBatchStat = session.Unsupported
	st.Features.SupportsLsTimeStyle = session.Unsupported

	entries, err := l.List(context.Background(), st, "/sdcard")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "x.txt" {
		t.Errorf("entries = %+v", entries)
	}
	if fake.CallsMatching("find") != 0 || fake.CallsMatching("--time-style") != 0 {
		t.Error("unsupported strategies must be skipped")
	}
}

func TestList_FailureReturnsEmptyAndListError(t *testing.T) {
	fake := bridgetest.NewFakeRunner().
		On("readlink", bridgetest.Response{ExitCode: 1}).
		On("find", bridgetest.Response{ExitCode: 1, Stderr: "find: '/sdcard/secret/': Permission denied\n"})
	l := New(bridge.NewInvoker(fake), nil)
	st := newSession(t)

	entries, err := l.List(context.Background(), st, "/sdcard/secret")
	if entries == nil || len(entries) != 0 {
		t.Errorf("entries = %v, want empty non-nil slice", entries)
	}
	var le *ListError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want *ListError", err)
	}
	if le.Path != "/sdcard/secret" || le.Raw == "" {
		t.Errorf("ListError = %+v", le)
	}
	if st.Features.SupportsBatchStat == session.Unsupported {
		t.Error("ordinary failure must not downgrade the capability")
	}
	if st.Cache.Contains("/sdcard/secret") {
		t.Error("failed listing must not be cached")
	}
}

func TestList_ReprobesLinks(t *testing.T) {
	fake := bridgetest.NewFakeRunner().
		On("readlink", bridgetest.Response{Stdout: "/\n"}).
		On("find", bridgetest.Response{Stdout: "symbolic link|21|/sdcard\n" +
			"symbolic link|8|/etc-link\n" +
			"character special file|0|/null\n" +
			"directory|4096|/system\n"}).
		On("for p in", bridgetest.Response{Stdout: "d /sdcard\nf /etc-link\no /null\n"})
	l := New(bridge.NewInvoker(fake), nil)
	st := newSession(t)

	entries, err := l.List(context.Background(), st, "/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if got := names(entries); got[0] != "sdcard" || got[1] != "system" {
		t.Errorf("order = %v, want link-to-dir sorted first", got)
	}
	if !entries[0].IsDirLike() {
		t.Errorf("sdcard = %+v, want link to directory", entries[0])
	}
	if n := fake.CallsMatching("for p in"); n != 1 {
		t.Errorf("re-probe calls = %d, want 1 batched call", n)
	}
}

func TestLookup(t *testing.T) {
	l := New(bridge.NewInvoker(dcimRunner()), nil)
	st := newSession(t)
	ctx := context.Background()

	e, err := l.Lookup(ctx, st, "/sdcard/DCIM/a.jpg")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if e.Kind != domain.KindFile || e.Size != 500000 || e.FullPath != "/sdcard/DCIM/a.jpg" {
		t.Errorf("Lookup() = %+v", e)
	}

	if _, err := l.Lookup(ctx, st, "/sdcard/DCIM/missing.jpg"); err == nil {
		t.Error("expected error for missing entry")
	}

	root, err := l.Lookup(ctx, st, "/")
	if err != nil || !root.IsDir() {
		t.Errorf("Lookup(/) = %+v, %v", root, err)
	}
}

func TestIsUnsupported(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"stat: Unknown option c", true},
		{"ls: unrecognized option '--time-style=+%s'", true},
		{"du: invalid option -- 'b'", true},
		{"/system/bin/sh: find: not found", true},
		{"usage: ls [-ACDHLRSZacdfhiklmnopqrstux1] [FILE...]", true},
		{"ls: /x: No such file or directory", false},
		{"Permission denied", false},
	}
	for _, tt := range tests {
		if got := IsUnsupported(tt.text); got != tt.want {
			t.Errorf("IsUnsupported(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
