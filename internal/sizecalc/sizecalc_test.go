package sizecalc

import (
	"context"
	"testing"
	"time"

	"github.com/Ning0612/adbexplorer/internal/bridge"
	"github.com/Ning0612/adbexplorer/internal/bridge/bridgetest"
	"github.com/Ning0612/adbexplorer/internal/domain"
	"github.com/Ning0612/adbexplorer/internal/session"
)

func newSession(t *testing.T) *session.State {
	t.Helper()
	st, err := session.New(domain.Policy{SafeRoot: "/sdcard"}, 10)
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}
	st.Device = domain.DeviceStatus{Connected: true, Serial: "SER1"}
	return st
}

var selection = []domain.TransferItem{
	{Name: "a.jpg", FullPath: "/sdcard/DCIM/a.jpg", Kind: domain.KindFile, Size: 500000},
	{Name: "Camera", FullPath: "/sdcard/DCIM/Camera", Kind: domain.KindDirectory},
	{Name: "Screenshots", FullPath: "/sdcard/DCIM/Screenshots", Kind: domain.KindDirectory},
}

func TestSizeOf_BatchesDirectories(t *testing.T) {
	fake := bridgetest.NewFakeRunner().On("du -sb", bridgetest.Response{
		Stdout: "1000000\t/sdcard/DCIM/Camera/\n250\t/sdcard/DCIM/Screenshots/\n",
	})
	st := newSession(t)

	sizes := New(bridge.NewInvoker(fake)).SizeOf(context.Background(), st, selection)

	if sizes.Total != 500000+1000000+250 {
		t.Errorf("Total = %d, want %d", sizes.Total, 500000+1000000+250)
	}
	if sizes.PerItem["/sdcard/DCIM/Camera"] != 1000000 {
		t.Errorf("Camera = %d", sizes.PerItem["/sdcard/DCIM/Camera"])
	}
	if sizes.Incomplete() {
		t.Errorf("Unresolved = %v, want none", sizes.Unresolved)
	}
	if n := fake.CallsMatching("du -sb"); n != 1 {
		t.Errorf("du calls = %d, want 1", n)
	}
	if st.Features.SupportsDuSb != session.Supported {
		t.Errorf("SupportsDuSb = %v", st.Features.SupportsDuSb)
	}
}

func TestSizeOf_FilesOnlyNoRoundTrip(t *testing.T) {
	fake := bridgetest.NewFakeRunner()
	sizes := New(bridge.NewInvoker(fake)).SizeOf(context.Background(), newSession(t), selection[:1])

	if sizes.Total != 500000 {
		t.Errorf("Total = %d, want 500000", sizes.Total)
	}
	if len(fake.Calls()) != 0 {
		t.Errorf("calls = %v, want none", fake.Calls())
	}
}

func TestSizeOf_TimeoutDefaultsToZero(t *testing.T) {
	fake := bridgetest.NewFakeRunner().On("du -sb", bridgetest.Response{Delay: time.Second})
	st := newSession(t)

	c := New(bridge.NewInvoker(fake))
	c.Timeout = 20 * time.Millisecond
	sizes := c.SizeOf(context.Background(), st, selection[:2])

	if sizes.Total != 500000 {
		t.Errorf("Total = %d, want file size + 0", sizes.Total)
	}
	if len(sizes.Unresolved) != 1 || sizes.Unresolved[0] != "/sdcard/DCIM/Camera" {
		t.Errorf("Unresolved = %v", sizes.Unresolved)
	}
	if st.Features.SupportsDuSb == session.Unsupported {
		t.Error("a timeout must not downgrade the capability")
	}
}

func TestSizeOf_PartialOutput(t *testing.T) {
	fake := bridgetest.NewFakeRunner().On("du -sb", bridgetest.Response{
		ExitCode: 1,
		Stdout:   "1000000\t/sdcard/DCIM/Camera/\n",
		Stderr:   "du: /sdcard/DCIM/Screenshots/x: Permission denied\n",
	})
	sizes := New(bridge.NewInvoker(fake)).SizeOf(context.Background(), newSession(t), selection)

	if sizes.Total != 1500000 {
		t.Errorf("Total = %d, want 1500000", sizes.Total)
	}
	if len(sizes.Unresolved) != 1 || sizes.Unresolved[0] != "/sdcard/DCIM/Screenshots" {
		t.Errorf("Unresolved = %v", sizes.Unresolved)
	}
}

func TestSizeOf_UnsupportedSkipsQuery(t *testing.T) {
	fake := bridgetest.NewFakeRunner().On("du -sb", bridgetest.Response{ExitCode: 1, Stderr: "du: invalid option -- 'b'\n"})
	st := newSession(t)
	c := New(bridge.NewInvoker(fake))

	c.SizeOf(context.Background(), st, selection)
	sizes := c.SizeOf(context.Background(), st, selection)

	if n := fake.CallsMatching("du -sb"); n != 1 {
		t.Errorf("du calls = %d, want 1", n)
	}
	if st.Features.SupportsDuSb != session.Unsupported {
		t.Errorf("SupportsDuSb = %v, want unsupported", st.Features.SupportsDuSb)
	}
	if sizes.Total != 500000 || len(sizes.Unresolved) != 2 {
		t.Errorf("sizes = %+v", sizes)
	}
}

func TestParseDu(t *testing.T) {
	got := ParseDu("4096\t/sdcard/My Files/\nnot a line\n12\t/sdcard/x\r\n")
	if got["/sdcard/My Files"] != 4096 || got["/sdcard/x"] != 12 || len(got) != 2 {
		t.Errorf("ParseDu() = %v", got)
	}
}
