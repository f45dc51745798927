package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"
)

// JSONLogEntry is one machine readable log line.
type JSONLogEntry struct {
	Timestamp time.Time              `json:"timestamp,omitempty"`
	Message   string                 `json:"message"`
	Severity  string                 `json:"severity,omitempty"`
	Session   string                 `json:"session,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Component string                 `json:"component,omitempty"`
}

func (e JSONLogEntry) String() string {
	if e.Severity == "" {
		e.Severity = "INFO"
	}
	out, err := json.Marshal(e)
	if err != nil {
		log.Printf("json.Marshal: %v", err)
	}
	return string(out)
}

type jsonLogger struct {
	base
	session   string
	component string
	noConsole bool
	ts        *time.Time // for unit testing
}

var _ SinkLogger = (*jsonLogger)(nil)

func (c *jsonLogger) clone() *jsonLogger {
	return &jsonLogger{
		base:      c.base.copy(),
		session:   c.session,
		component: c.component,
		noConsole: c.noConsole,
		ts:        c.ts,
	}
}

func (c *jsonLogger) WithContext(ctx context.Context) Logger {
	clone := c.clone()
	if clone.child != nil {
		clone.child = clone.child.WithContext(ctx)
	}
	return clone
}

func (c *jsonLogger) SetSink(sink Sink, level LogLevel) {
	c.setSink(sink, level)
}

func (c *jsonLogger) SetLogLevel(level LogLevel) {
	c.logLevel = level
}

// WithPrefix will return a new logger with a prefix prepended to the message
func (c *jsonLogger) WithPrefix(prefix string) Logger {
	clone := c.clone()
	if clone.component == "" {
		clone.component = prefix
	} else if !strings.Contains(clone.component, prefix) {
		clone.component = clone.component + " " + prefix
	}
	if clone.child != nil {
		clone.child = clone.child.WithPrefix(prefix)
	}
	return clone
}

// With merges fields into the metadata. The "session" and "component" keys are promoted to
// top level entry fields.
func (c *jsonLogger) With(fields map[string]interface{}) Logger {
	clone := c.clone()
	for k, v := range fields {
		clone.metadata[k] = v
	}
	if session, ok := clone.metadata["session"].(string); ok {
		clone.session = session
		delete(clone.metadata, "session")
	}
	if comp, ok := clone.metadata["component"].(string); ok {
		clone.component = comp
		delete(clone.metadata, "component")
	}
	if clone.child != nil {
		clone.child = clone.child.With(fields)
	}
	return clone
}

var bracketRegex = regexp.MustCompile(`\[(.*?)\]`)

// tokenize turns "[dns] [udp]" into "dns, udp".
func tokenize(val string) string {
	matches := bracketRegex.FindAllStringSubmatch(val, -1)
	if len(matches) == 0 {
		return val
	}
	vals := make([]string, 0, len(matches))
	for _, m := range matches {
		vals = append(vals, m[1])
	}
	return strings.Join(vals, ", ")
}

func (c *jsonLogger) log(level LogLevel, severity string, msg string, args ...interface{}) {
	if c.enabled(level) {
		text := msg
		if len(args) > 0 {
			text = fmt.Sprintf(msg, args...)
		}
		entry := JSONLogEntry{
			Severity:  severity,
			Message:   text,
			Session:   c.session,
			Component: tokenize(c.component),
			Timestamp: time.Now(),
		}
		if len(c.metadata) > 0 {
			entry.Metadata = c.metadata
		}
		if c.ts != nil {
			entry.Timestamp = *c.ts
		}
		if !c.noConsole && level >= c.logLevel {
			log.Println(entry)
		}
		if c.sink != nil && level >= c.sinkLogLevel {
			entry.Message = ansiColorStripper.ReplaceAllString(entry.Message, "")
			buf, _ := json.Marshal(entry)
			if _, err := c.sink.Write(append(buf, '\n')); err != nil {
				log.Printf("sink.Write: %v", err)
			}
		}
	}
	c.forward(level, msg, args...)
}

func (c *jsonLogger) Trace(msg string, args ...interface{}) { c.log(LevelTrace, "TRACE", msg, args...) }
func (c *jsonLogger) Debug(msg string, args ...interface{}) { c.log(LevelDebug, "DEBUG", msg, args...) }
func (c *jsonLogger) Info(msg string, args ...interface{})  { c.log(LevelInfo, "INFO", msg, args...) }
func (c *jsonLogger) Warn(msg string, args ...interface{})  { c.log(LevelWarn, "WARNING", msg, args...) }
func (c *jsonLogger) Error(msg string, args ...interface{}) { c.log(LevelError, "ERROR", msg, args...) }

// Fatal logs at error level. The json logger is used by embedders so it never exits the process.
func (c *jsonLogger) Fatal(msg string, args ...interface{}) {
	c.log(LevelError, "ERROR", msg, args...)
}

func (c *jsonLogger) Stack(next Logger) Logger {
	clone := c.clone()
	clone.child = next
	return clone
}

// NewJSONLogger returns a new Logger instance which can be used for structured logging
func NewJSONLogger(levels ...LogLevel) SinkLogger {
	level := GetLevelFromEnv()
	if len(levels) > 0 {
		level = levels[0]
	}
	return &jsonLogger{base: base{metadata: map[string]interface{}{}, logLevel: level, sinkLogLevel: LevelNone}}
}

// NewJSONLoggerWithSink returns a new Logger instance using a sink and suppressing the console logging
func NewJSONLoggerWithSink(sink Sink, level LogLevel) SinkLogger {
	return &jsonLogger{
		base:      base{metadata: map[string]interface{}{}, sink: sink, logLevel: LevelNone, sinkLogLevel: level},
		noConsole: true,
	}
}
