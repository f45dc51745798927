package logger

import (
	"context"
	"io"
	"os"
	"regexp"
	"strings"
)

// LogLevel defines the level of logging
type LogLevel int

const (
	LevelTrace LogLevel = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelNone
)

// EnvLogLevel is the environment variable consulted by GetLevelFromEnv.
const EnvLogLevel = "CELLULAR_LOG_LEVEL"

var levelNames = [...]string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR", "NONE"}

func (l LogLevel) String() string {
	if l < LevelTrace || l > LevelNone {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel converts a case-insensitive level name into a LogLevel.
func ParseLevel(s string) (LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, true
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	case "none", "off":
		return LevelNone, true
	}
	return LevelInfo, false
}

// GetLevelFromEnv will look at the environment var `CELLULAR_LOG_LEVEL` and convert it into the
// appropriate LogLevel. Unset or invalid values yield LevelInfo.
func GetLevelFromEnv() LogLevel {
	level, _ := ParseLevel(os.Getenv(EnvLogLevel))
	return level
}

type Sink io.Writer

// Logger is an interface for logging
type Logger interface {
	// With will return a new logger using metadata as the base context
	With(metadata map[string]interface{}) Logger
	// WithPrefix will return a new logger with a prefix prepended to the message
	WithPrefix(prefix string) Logger
	// WithContext will return a new logger with the given context
	WithContext(ctx context.Context) Logger
	// Trace level logging
	Trace(msg string, args ...interface{})
	// Debug level logging
	Debug(msg string, args ...interface{})
	// Info level logging
	Info(msg string, args ...interface{})
	// Warning level logging
	Warn(msg string, args ...interface{})
	// Error level logging
	Error(msg string, args ...interface{})
	// Fatal level logging and exit with code 1
	Fatal(msg string, args ...interface{})
	// Stack will return a new logger that logs to the given logger as well as the current logger
	Stack(next Logger) Logger
}

type SinkLogger interface {
	Logger
	// SetSink will set the sink, and level to sink
	SetSink(sink Sink, level LogLevel)
}

var ansiColorStripper = regexp.MustCompile("\x1b\\[[0-9;]*[mK]")

// WithKV is shorthand for With with a single key.
func WithKV(l Logger, key string, value interface{}) Logger {
	return l.With(map[string]interface{}{key: value})
}

// base carries the state shared by the console and json loggers.
type base struct {
	metadata     map[string]interface{}
	sink         Sink
	logLevel     LogLevel
	sinkLogLevel LogLevel
	child        Logger
}

func (b base) copy() base {
	metadata := make(map[string]interface{}, len(b.metadata))
	for k, v := range b.metadata {
		metadata[k] = v
	}
	b.metadata = metadata
	return b
}

func (b *base) enabled(level LogLevel) bool {
	return level >= b.logLevel || (b.sink != nil && level >= b.sinkLogLevel)
}

func (b *base) setSink(sink Sink, level LogLevel) {
	b.sink = sink
	b.sinkLogLevel = level
	if child, ok := b.child.(SinkLogger); ok {
		child.SetSink(sink, level)
	}
}

func (b *base) forward(level LogLevel, msg string, args ...interface{}) {
	if b.child == nil {
		return
	}
	switch level {
	case LevelTrace:
		b.child.Trace(msg, args...)
	case LevelDebug:
		b.child.Debug(msg, args...)
	case LevelInfo:
		b.child.Info(msg, args...)
	case LevelWarn:
		b.child.Warn(msg, args...)
	default:
		// Error rather than Fatal so the child logs before the parent exits
		b.child.Error(msg, args...)
	}
}
