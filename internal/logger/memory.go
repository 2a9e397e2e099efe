package logger

import (
	"fmt"
	"strings"
	"sync"
)

// MemoryLogger keeps every accepted line in memory. Tests use it to assert on
// what a component logged.
type MemoryLogger struct {
	m     sync.Mutex
	lines []string
	level LogLevel
}

func NewMemoryLogger() *MemoryLogger {
	return NewMemoryLoggerWithLevel(LogLevelFromEnvironment())
}

func NewMemoryLoggerWithLevel(level LogLevel) *MemoryLogger {
	return &MemoryLogger{level: level}
}

func (l *MemoryLogger) Errorf(f string, args ...interface{}) {
	l.addLog(LogError, "ERR", f, args)
}

func (l *MemoryLogger) Warningf(f string, args ...interface{}) {
	l.addLog(LogWarn, "WRN", f, args)
}

func (l *MemoryLogger) Infof(f string, args ...interface{}) {
	l.addLog(LogInfo, "INF", f, args)
}

func (l *MemoryLogger) Debugf(f string, args ...interface{}) {
	l.addLog(LogDebug, "DBG", f, args)
}

// GetLogs returns a copy of the collected lines.
func (l *MemoryLogger) GetLogs() []string {
	l.m.Lock()
	defer l.m.Unlock()

	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}

// Contains reports whether any collected line contains s.
func (l *MemoryLogger) Contains(s string) bool {
	for _, line := range l.GetLogs() {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

func (l *MemoryLogger) Close() error {
	return nil
}

func (l *MemoryLogger) addLog(level LogLevel, prefix string, f string, args []interface{}) {
	if level < l.level {
		return
	}

	line := prefix + ": " + fmt.Sprintf(f, args...)

	l.m.Lock()
	defer l.m.Unlock()
	l.lines = append(l.lines, line)
}
