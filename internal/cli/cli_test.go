package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/Ning0612/adbexplorer/internal/bridge/bridgetest"
	"github.com/Ning0612/adbexplorer/internal/domain"
	"github.com/Ning0612/adbexplorer/internal/testutil"
)

const (
	devicesList = "List of devices attached\nSER1           device usb:1-1 product:panther model:Pixel_7 device:panther\n"
	sdcardLs    = "total 16\n" +
		"drwxrwx--x 2 root sdcard_rw 4096 Jan 5 10:22 DCIM\n" +
		"-rw-rw---- 1 root sdcard_rw 10 Jan 5 10:22 x.txt\n"
	dcimLs = "total 8\n" +
		"-rw-rw---- 1 root sdcard_rw 2048 Jan 5 10:22 a.jpg\n" +
		"-rw-rw---- 1 root sdcard_rw 512 Jan 5 10:22 b.png\n"
)

type harness struct {
	fake    *bridgetest.FakeRunner
	fs      afero.Fs
	config  string
	dataDir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := testutil.TempDir(t)
	dataDir := filepath.Join(dir, "data")
	config := filepath.Join(dir, "config.yaml")
	content := "safety:\n  safe_root: /sdcard\n" +
		"transfer:\n  temp_dir: /tmp\n" +
		"logging:\n  level: error\n" +
		"data:\n  dir: " + dataDir + "\n"
	if err := os.WriteFile(config, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	fake := bridgetest.NewFakeRunner().
		On("devices -l", bridgetest.Response{Stdout: devicesList}).
		On("ls -la '/sdcard/'", bridgetest.Response{Stdout: sdcardLs}).
		On("ls -la '/sdcard/DCIM/'", bridgetest.Response{Stdout: dcimLs})

	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/tmp", 0755); err != nil {
		t.Fatal(err)
	}
	return &harness{fake: fake, fs: fs, config: config, dataDir: dataDir}
}

func (h *harness) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd(WithRunner(h.fake), WithFs(h.fs), WithIO(strings.NewReader(stdin), &out, &errOut))
	cmd.SetArgs(append([]string{"--config", h.config}, args...))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestDevices(t *testing.T) {
	h := newHarness(t)

	out, _, err := h.run(t, "", "devices")
	if err != nil {
		t.Fatalf("devices error = %v", err)
	}
	if !strings.Contains(out, "SER1") || !strings.Contains(out, "Pixel 7") {
		t.Errorf("output = %q, want serial and model", out)
	}
}

func TestLs_DefaultsToSafeRoot(t *testing.T) {
	h := newHarness(t)

	out, _, err := h.run(t, "", "ls")
	if err != nil {
		t.Fatalf("ls error = %v", err)
	}
	if !strings.Contains(out, "DCIM/") || !strings.Contains(out, "x.txt") {
		t.Errorf("output = %q", out)
	}
	if h.fake.CallsMatching("ls -la '/sdcard/'") != 1 {
		t.Errorf("calls = %v", h.fake.Calls())
	}
}

func TestLs_NoDevice(t *testing.T) {
	h := newHarness(t)
	h.fake.On("devices -l", bridgetest.Response{Stdout: "List of devices attached\n"})

	_, _, err := h.run(t, "", "ls")
	if !errors.Is(err, domain.ErrNoDevice) {
		t.Errorf("ls error = %v, want ErrNoDevice", err)
	}
}

func TestPull_MatchSelectsChildren(t *testing.T) {
	h := newHarness(t)
	h.fake.On("pull /sdcard/DCIM/a.jpg", bridgetest.Response{Effect: func() {
		afero.WriteFile(h.fs, "/out/a.jpg", make([]byte, 2048), 0644)
	}})

	out, _, err := h.run(t, "", "pull", "DCIM", "--match", "*.jpg", "--dest", "/out", "--yes")
	if err != nil {
		t.Fatalf("pull error = %v", err)
	}
	if h.fake.CallsMatching("pull /sdcard/DCIM/a.jpg") != 1 {
		t.Errorf("a.jpg not pulled: %v", h.fake.Calls())
	}
	if h.fake.CallsMatching("b.png") != 0 {
		t.Errorf("b.png pulled despite the pattern")
	}
	if !strings.Contains(out, "1 succeeded, 0 failed") {
		t.Errorf("output = %q", out)
	}

	out, _, err = h.run(t, "", "history")
	if err != nil {
		t.Fatalf("history error = %v", err)
	}
	if !strings.Contains(out, "success") || !strings.Contains(out, "/sdcard/DCIM/a.jpg") {
		t.Errorf("history output = %q", out)
	}
}

func TestPull_Declined(t *testing.T) {
	h := newHarness(t)

	out, _, err := h.run(t, "n\n", "pull", "x.txt", "--dest", "/out")
	if err != nil {
		t.Fatalf("pull error = %v", err)
	}
	if !strings.Contains(out, "Cancelled.") {
		t.Errorf("output = %q", out)
	}
	if h.fake.CallsMatching("pull ") != 0 {
		t.Errorf("calls = %v, want no pull", h.fake.Calls())
	}
}

func TestPull_FailureReturnsError(t *testing.T) {
	h := newHarness(t)
	h.fake.On("pull /sdcard/x.txt", bridgetest.Response{ExitCode: 1, Stderr: "adb: error: failed to copy"})

	out, _, err := h.run(t, "", "pull", "x.txt", "--dest", "/out", "-y")
	if err == nil {
		t.Fatal("pull error = nil, want failure")
	}
	if !strings.Contains(out, "FAILED") {
		t.Errorf("output = %q", out)
	}
}

func TestRm_PromptDeclined(t *testing.T) {
	h := newHarness(t)

	out, _, err := h.run(t, "n\n", "rm", "x.txt")
	if err != nil {
		t.Fatalf("rm error = %v", err)
	}
	if !strings.Contains(out, "Skipped /sdcard/x.txt") {
		t.Errorf("output = %q", out)
	}
	if h.fake.CallsMatching("rm -rf") != 0 {
		t.Errorf("calls = %v, want no rm", h.fake.Calls())
	}
}

func TestRm_Confirmed(t *testing.T) {
	h := newHarness(t)
	h.fake.On("rm -rf", bridgetest.Response{})

	if _, _, err := h.run(t, "y\n", "rm", "x.txt"); err != nil {
		t.Fatalf("rm error = %v", err)
	}
	if h.fake.CallsMatching("rm -rf '/sdcard/x.txt'") != 1 {
		t.Errorf("calls = %v", h.fake.Calls())
	}
}

func TestRm_WhatIf(t *testing.T) {
	h := newHarness(t)

	out, _, err := h.run(t, "", "--what-if", "rm", "x.txt", "--yes")
	if err != nil {
		t.Fatalf("rm error = %v", err)
	}
	if !strings.Contains(out, "what-if: adb") {
		t.Errorf("output = %q, want what-if notice", out)
	}
	if h.fake.CallsMatching("rm -rf") != 0 {
		t.Errorf("rm reached the bridge under what-if")
	}
}

func TestMkdir_OutsideSafeRoot(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run(t, "", "mkdir", "/system/new")
	if !errors.Is(err, domain.ErrOutsideSafeRoot) {
		t.Errorf("mkdir error = %v, want ErrOutsideSafeRoot", err)
	}
}

func TestRename_RejectsPathName(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run(t, "", "rename", "x.txt", "../y.txt")
	if !errors.Is(err, domain.ErrInvalidName) {
		t.Errorf("rename error = %v, want ErrInvalidName", err)
	}
}

func TestShell_NavigatesAndLists(t *testing.T) {
	h := newHarness(t)

	out, errOut, err := h.run(t, "cd DCIM\nls\ncd nowhere\nexit\n", "shell")
	if err != nil {
		t.Fatalf("shell error = %v", err)
	}
	if !strings.Contains(out, "Pixel 7:/sdcard/DCIM> ") {
		t.Errorf("prompt did not follow cd: %q", out)
	}
	if !strings.Contains(out, "a.jpg") || !strings.Contains(out, "b.png") {
		t.Errorf("ls output missing entries: %q", out)
	}
	if !strings.Contains(errOut, "error:") {
		t.Errorf("cd into a missing directory did not report: %q", errOut)
	}
}

func TestShell_EOFExits(t *testing.T) {
	h := newHarness(t)

	if _, _, err := h.run(t, "ls\n", "shell"); err != nil {
		t.Fatalf("shell error = %v", err)
	}
}

func TestResolveRemote(t *testing.T) {
	tests := []struct {
		cwd, arg, want string
	}{
		{"/sdcard", "DCIM", "/sdcard/DCIM"},
		{"/sdcard/DCIM", "..", "/sdcard"},
		{"/sdcard", "/storage/emulated/0", "/storage/emulated/0"},
		{"/sdcard", "", "/sdcard"},
		{"/sdcard", `Pictures\Screenshots`, "/sdcard/Pictures/Screenshots"},
	}
	for _, tt := range tests {
		if got := resolveRemote(tt.cwd, tt.arg); got != tt.want {
			t.Errorf("resolveRemote(%q, %q) = %q, want %q", tt.cwd, tt.arg, got, tt.want)
		}
	}
}

func TestLocalDest(t *testing.T) {
	dest, rest := localDest([]string{"a.jpg", "-d", "/tmp/out", "b.jpg"})
	if dest != "/tmp/out" || len(rest) != 2 || rest[0] != "a.jpg" || rest[1] != "b.jpg" {
		t.Errorf("localDest() = %q, %v", dest, rest)
	}
	if dest, _ := localDest([]string{"a.jpg"}); dest != "." {
		t.Errorf("default dest = %q, want .", dest)
	}
}
