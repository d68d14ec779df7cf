package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// Level controls which messages the logger emits.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

// Logger writes leveled messages. Nothing in the sync path is allowed to
// be fatal; failures are logged here and surfaced to the UI only as an
// aggregate error string.
type Logger struct {
	mu    sync.RWMutex
	level Level
	out   *log.Logger
}

var (
	globalLogger *Logger
	loggerOnce   sync.Once
)

// GetLogger returns the global logger instance.
func GetLogger() *Logger {
	loggerOnce.Do(func() {
		globalLogger = &Logger{
			level: LevelInfo,
			out:   log.New(os.Stderr, "", 0),
		}
	})
	return globalLogger
}

// SetLevel adjusts the minimum level the logger emits.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	if level >= LevelDebug {
		l.out.SetFlags(log.Ldate | log.Ltime)
	} else {
		l.out.SetFlags(0)
	}
}

// SetOutput redirects log output, mainly for tests and the TUI which
// owns the terminal.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.SetOutput(w)
}

func (l *Logger) logf(level Level, format string, args ...interface{}) {
	l.mu.RLock()
	enabled := level <= l.level
	l.mu.RUnlock()
	if !enabled {
		return
	}
	l.out.Printf("["+level.String()+"] "+format, args...)
}

func (l *Logger) Debug(format string, args ...interface{}) { l.logf(LevelDebug, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.logf(LevelInfo, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.logf(LevelWarn, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.logf(LevelError, format, args...) }

// Debugf is a convenience function for debug logging.
func Debugf(format string, args ...interface{}) {
	GetLogger().Debug(format, args...)
}

// Infof is a convenience function for info logging.
func Infof(format string, args ...interface{}) {
	GetLogger().Info(format, args...)
}

// Warnf is a convenience function for warning logging.
func Warnf(format string, args ...interface{}) {
	GetLogger().Warn(format, args...)
}

// Errorf is a convenience function for error logging.
func Errorf(format string, args ...interface{}) {
	GetLogger().Error(format, args...)
}

// SetVerboseMode switches the global logger between info and debug level.
func SetVerboseMode(verbose bool) {
	if verbose {
		GetLogger().SetLevel(LevelDebug)
	} else {
		GetLogger().SetLevel(LevelInfo)
	}
}

// TimedOperation runs fn and logs its duration at debug level.
func TimedOperation(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start).Round(time.Millisecond)
	if err != nil {
		Debugf("%s failed after %s: %v", name, elapsed, err)
	} else {
		Debugf("%s completed in %s", name, elapsed)
	}
	return err
}

// FormatCount renders a count with a singular or plural noun.
func FormatCount(n int, singular, plural string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%d %s", n, plural)
}
