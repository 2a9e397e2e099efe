package logger

import (
	"io"
	"log"
	"os"

	"github.com/fatih/color"
)

var (
	errorTag   = color.New(color.FgRed, color.Bold).SprintFunc()
	warningTag = color.New(color.FgYellow).SprintFunc()
	infoTag    = color.New(color.FgCyan).SprintFunc()
	debugTag   = color.New(color.FgHiBlack).SprintFunc()
)

// SimpleLogger writes one line per message through a *log.Logger.
type SimpleLogger struct {
	Logger   *log.Logger
	LogLevel LogLevel

	// Colored enables ANSI colors on the level tag.
	Colored bool
}

// NewSimpleLogger returns a SimpleLogger whose level comes from LOG_LEVEL.
func NewSimpleLogger(name string, out io.Writer) Logger {
	return NewSimpleLoggerWithLevel(name, out, LogLevelFromEnvironment())
}

// NewSimpleLoggerWithLevel returns a SimpleLogger with an explicit level.
func NewSimpleLoggerWithLevel(name string, out io.Writer, level LogLevel) Logger {
	return &SimpleLogger{
		Logger:   log.New(out, name+" ", log.LstdFlags|log.Lmicroseconds),
		LogLevel: level,
		Colored:  isTerminal(out),
	}
}

// Errorf ...
func (l *SimpleLogger) Errorf(f string, v ...interface{}) {
	if l.LogLevel <= LogError {
		l.Logger.Printf(l.tag(errorTag, "ERROR")+": "+f, v...)
	}
}

// Warningf ...
func (l *SimpleLogger) Warningf(f string, v ...interface{}) {
	if l.LogLevel <= LogWarn {
		l.Logger.Printf(l.tag(warningTag, "WARNING")+": "+f, v...)
	}
}

// Infof ...
func (l *SimpleLogger) Infof(f string, v ...interface{}) {
	if l.LogLevel <= LogInfo {
		l.Logger.Printf(l.tag(infoTag, "INFO")+": "+f, v...)
	}
}

// Debugf ...
func (l *SimpleLogger) Debugf(f string, v ...interface{}) {
	if l.LogLevel <= LogDebug {
		l.Logger.Printf(l.tag(debugTag, "DEBUG")+": "+f, v...)
	}
}

// Close the logger ...
func (l *SimpleLogger) Close() error {
	return nil
}

func (l *SimpleLogger) tag(paint func(...interface{}) string, s string) string {
	if !l.Colored {
		return s
	}
	return paint(s)
}

func isTerminal(out io.Writer) bool {
	if color.NoColor {
		return false
	}
	f, ok := out.(*os.File)
	return ok && (f == os.Stdout || f == os.Stderr)
}
