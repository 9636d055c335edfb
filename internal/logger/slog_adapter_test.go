package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSlogLogger_Basic(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := NewSlogLogger(Config{
		Level:   LevelDebug,
		Format:  FormatText,
		Outputs: []OutputConfig{{Type: OutputStdout, Writer: buf}},
	})
	if err != nil {
		t.Fatalf("NewSlogLogger() error = %v", err)
	}
	defer logger.Shutdown()

	logger.Info("test message", "key", "value")

	output := buf.String()
	if !strings.Contains(output, "test message") || !strings.Contains(output, "key=value") {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestSlogLogger_Levels(t *testing.T) {
	tests := []struct {
		name      string
		level     Level
		logFunc   func(*SlogLogger)
		shouldLog bool
	}{
		{"debug at debug level", LevelDebug, func(l *SlogLogger) { l.Debug("msg") }, true},
		{"debug at info level", LevelInfo, func(l *SlogLogger) { l.Debug("msg") }, false},
		{"warn at error level", LevelError, func(l *SlogLogger) { l.Warn("msg") }, false},
		{"error at warn level", LevelWarn, func(l *SlogLogger) { l.Error("msg") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger, err := NewSlogLogger(Config{
				Level:   tt.level,
				Outputs: []OutputConfig{{Type: OutputStdout, Writer: buf}},
			})
			if err != nil {
				t.Fatalf("NewSlogLogger() error = %v", err)
			}
			tt.logFunc(logger)
			if got := buf.Len() > 0; got != tt.shouldLog {
				t.Errorf("logged = %v, want %v", got, tt.shouldLog)
			}
		})
	}
}

func TestSlogLogger_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, _ := NewSlogLogger(Config{
		Format:  FormatJSON,
		Outputs: []OutputConfig{{Type: OutputStdout, Writer: buf}},
	})
	logger.Warn("fallback", "capability", "du-sb")

	if !strings.Contains(buf.String(), `"capability":"du-sb"`) {
		t.Errorf("expected JSON output, got %s", buf.String())
	}
}

func TestSlogLogger_SanitizesSerial(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, _ := NewSlogLogger(Config{
		Outputs: []OutputConfig{{Type: OutputStdout, Writer: buf}},
	})
	logger.With("serial", "R58M12ABCDE").Info("connected")

	if strings.Contains(buf.String(), "R58M12ABCDE") {
		t.Errorf("serial leaked into log: %s", buf.String())
	}
}

func TestSlogLogger_FileOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "adbexplorer.log")

	logger, err := NewSlogLogger(Config{
		Outputs: []OutputConfig{{Type: OutputFile}},
		File:    FileConfig{Enabled: true, Path: path, MaxSizeMB: 1},
	})
	if err != nil {
		t.Fatalf("NewSlogLogger() error = %v", err)
	}
	logger.Info("to file")
	if err := logger.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file missing message: %s", data)
	}
}

func TestSlogLogger_FileOutputEmptyPath(t *testing.T) {
	_, err := NewSlogLogger(Config{
		Outputs: []OutputConfig{{Type: OutputFile}},
		File:    FileConfig{Enabled: true},
	})
	if err == nil {
		t.Error("expected error for empty log path")
	}
}
