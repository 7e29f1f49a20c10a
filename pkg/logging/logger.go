// Package logging provides file-based diagnostic logging for patrol components.
//
// Every component obtains its own Logger tagged with a component name. All
// loggers in a process append to the same session-specific file under
// ~/.patrol/logs/, so one run produces one log file regardless of how many
// components participated. The minimum level is controlled by the
// PATROL_LOG_LEVEL environment variable (debug, info, warn, error).
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level is a log severity threshold.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the uppercase label used in log lines.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseLevel maps a level name to a Level. Unknown names map to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger writes structured log lines for one component.
type Logger struct {
	sessionID string
	component string
	minLevel  Level
	out       io.Writer
	file      *os.File
	logPath   string
	mu        sync.Mutex
	closeOnce sync.Once
}

var (
	sessionID     string
	sessionIDOnce sync.Once

	logDir   string
	initOnce sync.Once
	initErr  error
)

func getSessionID() string {
	sessionIDOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}

func initLogDirectory() error {
	initOnce.Do(func() {
		home, err := os.UserHomeDir()
		if err != nil {
			initErr = fmt.Errorf("failed to get home directory: %w", err)
			return
		}
		logDir = filepath.Join(home, ".patrol", "logs")
		if err := os.MkdirAll(logDir, 0o750); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
		}
	})
	return initErr
}

// New creates a logger for the given component, appending to
// ~/.patrol/logs/<session-id>-patrol.log. Multiple components share the
// session file. If the file cannot be opened the returned logger falls back
// to stderr and the error is returned so callers can surface a warning.
func New(component string) (*Logger, error) {
	minLevel := ParseLevel(os.Getenv("PATROL_LOG_LEVEL"))

	if err := initLogDirectory(); err != nil {
		return newFallback(component, minLevel, err), err
	}

	logPath := filepath.Join(logDir, fmt.Sprintf("%s-patrol.log", getSessionID()))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		err = fmt.Errorf("failed to open log file: %w", err)
		return newFallback(component, minLevel, err), err
	}

	return &Logger{
		sessionID: getSessionID(),
		component: component,
		minLevel:  minLevel,
		out:       file,
		file:      file,
		logPath:   logPath,
	}, nil
}

// NewWithWriter creates a logger that writes to w instead of the session
// file. Used by tests and by callers that already own an output stream.
func NewWithWriter(component string, w io.Writer) *Logger {
	return &Logger{
		sessionID: getSessionID(),
		component: component,
		minLevel:  ParseLevel(os.Getenv("PATROL_LOG_LEVEL")),
		out:       w,
	}
}

func newFallback(component string, minLevel Level, err error) *Logger {
	l := &Logger{
		sessionID: getSessionID(),
		component: component,
		minLevel:  minLevel,
		out:       os.Stderr,
	}
	l.Warnf("file logging unavailable, falling back to stderr: %v", err)
	return l
}

var defaultLogger *Logger
var defaultOnce sync.Once

// Default returns the process-wide logger for code without an injected one.
func Default() *Logger {
	defaultOnce.Do(func() {
		defaultLogger, _ = New("patrol")
	})
	return defaultLogger
}

func (l *Logger) log(level Level, format string, v ...any) {
	if level < l.minLevel {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := time.Now().Format("2006-01-02 15:04:05.000")
	fmt.Fprintf(l.out, "[%s] [%s] [%s] %s\n", ts, l.component, level, fmt.Sprintf(format, v...))
}

// Debugf logs a debug-level message.
func (l *Logger) Debugf(format string, v ...any) { l.log(LevelDebug, format, v...) }

// Infof logs an info-level message.
func (l *Logger) Infof(format string, v ...any) { l.log(LevelInfo, format, v...) }

// Warnf logs a warning-level message.
func (l *Logger) Warnf(format string, v ...any) { l.log(LevelWarn, format, v...) }

// Errorf logs an error-level message.
func (l *Logger) Errorf(format string, v ...any) { l.log(LevelError, format, v...) }

// Component returns a child logger sharing this logger's output but tagged
// with a different component name.
func (l *Logger) Component(name string) *Logger {
	return &Logger{
		sessionID: l.sessionID,
		component: name,
		minLevel:  l.minLevel,
		out:       l.out,
		file:      nil, // the parent owns the file handle
		logPath:   l.logPath,
	}
}

// Writer exposes the underlying output for subprocesses that need a sink.
func (l *Logger) Writer() io.Writer {
	if l.out != nil {
		return l.out
	}
	return os.Stderr
}

// SessionID returns the logging session id shared by all components.
func (l *Logger) SessionID() string { return l.sessionID }

// LogPath returns the log file path, or "" when logging to a plain writer.
func (l *Logger) LogPath() string { return l.logPath }

// Close closes the underlying file if this logger owns one. Safe to call
// multiple times; child loggers from Component never own the file.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}

// SessionID returns the process-wide logging session id.
func SessionID() string { return getSessionID() }

// Dir returns the directory where log files are stored.
func Dir() (string, error) {
	if err := initLogDirectory(); err != nil {
		return "", err
	}
	return logDir, nil
}
