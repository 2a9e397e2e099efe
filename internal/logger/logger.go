// Package logger is the leveled logging interface shared by the worker pool,
// the stress harness and the stackdemo command.
package logger

import (
	"os"
	"strings"
)

// LogLevel orders messages by severity.
type LogLevel int8

// Log levels
const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogError
)

var levelToString = map[LogLevel]string{
	LogDebug: "debug",
	LogInfo:  "info",
	LogWarn:  "warn",
	LogError: "error",
}

func (l LogLevel) String() string {
	if s, ok := levelToString[l]; ok {
		return s
	}
	return "unknown"
}

// Logger is implemented by every logger in this package.
type Logger interface {
	Errorf(string, ...interface{})
	Warningf(string, ...interface{})
	Infof(string, ...interface{})
	Debugf(string, ...interface{})
	Close() error
}

// ParseLevel maps a level name to a LogLevel. Unknown names yield LogInfo and
// ok == false.
func ParseLevel(s string) (level LogLevel, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return LogError, true
	case "warn", "warning":
		return LogWarn, true
	case "info":
		return LogInfo, true
	case "debug":
		return LogDebug, true
	}
	return LogInfo, false
}

// LogLevelFromEnvironment reads LOG_LEVEL, defaulting to info.
func LogLevelFromEnvironment() LogLevel {
	level, _ := ParseLevel(os.Getenv("LOG_LEVEL"))
	return level
}
