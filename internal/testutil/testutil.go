// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Ning0612/adbexplorer/internal/domain"
	"github.com/Ning0612/adbexplorer/internal/session"
)

// TestSerial is the serial of the device every connected session reports
const TestSerial = "SER1"

// TempDir creates a temporary directory removed when the test ends
func TempDir(t *testing.T) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "adbexplorer-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// CreateFile creates a zero-filled file of size bytes, creating parents
func CreateFile(t *testing.T, dir, name string, size int) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create parent dir: %v", err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	return path
}

// ConnectedSession returns a session attached to TestSerial with the given safe root
func ConnectedSession(t *testing.T, safeRoot string) *session.State {
	t.Helper()

	st, err := session.New(domain.Policy{SafeRoot: safeRoot}, 10)
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}
	st.Device = domain.DeviceStatus{Connected: true, Serial: TestSerial, DisplayName: "Pixel 7"}
	return st
}
