package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger defines a simple interface for logging.
// This allows for easy replacement with a more sophisticated logger if needed.
type Logger interface {
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
	Fatalf(format string, v ...interface{})
}

// LogLevel defines the verbosity of the logger.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorDim    = "\033[2m"
)

// Log callbacks let the progress bar clear its line before a log message is
// printed and redraw itself afterwards, so logs and the bar never interleave
// on the same terminal line.
var (
	logCallbackMu   sync.Mutex
	preLogCallback  func()
	postLogCallback func()
)

// RegisterLogCallbacks installs hooks invoked around every emitted log line.
func RegisterLogCallbacks(pre, post func()) {
	logCallbackMu.Lock()
	defer logCallbackMu.Unlock()
	preLogCallback = pre
	postLogCallback = post
}

// UnregisterLogCallbacks removes any installed log hooks.
func UnregisterLogCallbacks() {
	logCallbackMu.Lock()
	defer logCallbackMu.Unlock()
	preLogCallback = nil
	postLogCallback = nil
}

func invokeLogCallbacks() (post func()) {
	logCallbackMu.Lock()
	pre := preLogCallback
	post = postLogCallback
	logCallbackMu.Unlock()
	if pre != nil {
		pre()
	}
	return post
}

func colorize(s string, color string, noColor bool) string {
	if noColor {
		return s
	}
	return color + s + colorReset
}

// defaultLogger is a basic implementation of the Logger interface.
type defaultLogger struct {
	stdout   *log.Logger
	stderr   *log.Logger
	logLevel LogLevel
	noColor  bool
}

// NewDefaultLogger creates a new logger with the specified options.
// Debug/info/warn messages go to stdout (discarded in silent mode);
// error/fatal messages always go to stderr.
func NewDefaultLogger(level LogLevel, noColor bool, silent bool) Logger {
	var stdoutDest io.Writer = os.Stdout
	if silent {
		stdoutDest = io.Discard
	}
	return &defaultLogger{
		stdout:   log.New(stdoutDest, "", 0),
		stderr:   log.New(os.Stderr, "", 0),
		logLevel: level,
		noColor:  noColor,
	}
}

func (l *defaultLogger) emit(dest *log.Logger, levelStr string, levelColor string, format string, v ...interface{}) {
	post := invokeLogCallbacks()
	prefix := fmt.Sprintf("%s [%s] ",
		colorize(fmt.Sprintf("[%s]", time.Now().Format("15:04:05")), colorDim, l.noColor),
		colorize(levelStr, levelColor, l.noColor),
	)
	dest.Print(prefix + fmt.Sprintf(format, v...))
	if post != nil {
		post()
	}
}

func (l *defaultLogger) Debugf(format string, v ...interface{}) {
	if l.logLevel <= LevelDebug {
		l.emit(l.stdout, "DEBUG", colorBlue, format, v...)
	}
}

func (l *defaultLogger) Infof(format string, v ...interface{}) {
	if l.logLevel <= LevelInfo {
		l.emit(l.stdout, "INFO", colorGreen, format, v...)
	}
}

func (l *defaultLogger) Warnf(format string, v ...interface{}) {
	if l.logLevel <= LevelWarn {
		l.emit(l.stdout, "WARN", colorYellow, format, v...)
	}
}

func (l *defaultLogger) Errorf(format string, v ...interface{}) {
	if l.logLevel <= LevelError {
		l.emit(l.stderr, "ERROR", colorRed, format, v...)
	}
}

func (l *defaultLogger) Fatalf(format string, v ...interface{}) {
	l.emit(l.stderr, "FATAL", colorRed, format, v...)
	os.Exit(1)
}

// NoOpLogger discards every message. Useful in tests and for components that
// require a Logger but should stay quiet.
type NoOpLogger struct{}

func (l *NoOpLogger) Debugf(format string, v ...interface{}) {}
func (l *NoOpLogger) Infof(format string, v ...interface{})  {}
func (l *NoOpLogger) Warnf(format string, v ...interface{})  {}
func (l *NoOpLogger) Errorf(format string, v ...interface{}) {}
func (l *NoOpLogger) Fatalf(format string, v ...interface{}) {}

// StringToLogLevel converts a log level string to LogLevel type.
// Defaults to LevelInfo if the string is unrecognized.
func StringToLogLevel(levelStr string) LogLevel {
	switch strings.ToLower(levelStr) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		fmt.Fprintf(os.Stderr, "Unknown log level string '%s', defaulting to INFO.\n", levelStr)
		return LevelInfo
	}
}
