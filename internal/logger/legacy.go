package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// LegacyLogger writes plain "[LEVEL] msg k=v" lines with fmt; used as a fallback
type LegacyLogger struct {
	level  Level
	fields []any
	out    io.Writer
	errOut io.Writer
	mu     *sync.RWMutex
}

// NewLegacyLogger creates a legacy logger at info level
func NewLegacyLogger() *LegacyLogger {
	return &LegacyLogger{
		level:  LevelInfo,
		out:    os.Stderr,
		errOut: os.Stderr,
		mu:     &sync.RWMutex{},
	}
}

// SetLevel changes the minimum level
func (l *LegacyLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *LegacyLogger) shouldLog(level Level) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= l.level
}

func (l *LegacyLogger) write(w io.Writer, level Level, msg string, args []any) {
	if !l.shouldLog(level) {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", strings.ToUpper(level.String()), msg)
	all := append(append([]any{}, l.fields...), args...)
	for i := 0; i+1 < len(all); i += 2 {
		fmt.Fprintf(&b, " %v=%v", all[i], all[i+1])
	}
	fmt.Fprintln(w, b.String())
}

func (l *LegacyLogger) Debug(msg string, args ...any) { l.write(l.out, LevelDebug, msg, args) }
func (l *LegacyLogger) Info(msg string, args ...any)  { l.write(l.out, LevelInfo, msg, args) }
func (l *LegacyLogger) Warn(msg string, args ...any)  { l.write(l.errOut, LevelWarn, msg, args) }
func (l *LegacyLogger) Error(msg string, args ...any) { l.write(l.errOut, LevelError, msg, args) }

// With returns a child sharing the level and appending fields
func (l *LegacyLogger) With(args ...any) Logger {
	child := *l
	child.fields = append(append([]any{}, l.fields...), args...)
	return &child
}

func (l *LegacyLogger) Sync() error     { return nil }
func (l *LegacyLogger) Shutdown() error { return nil }
