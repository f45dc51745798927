package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var noColor = runtime.GOOS == "windows" || os.Getenv("TERM") == "dumb" ||
	(!isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()))

var isCI = os.Getenv("CI") != ""

type levelStyle struct {
	label   lipgloss.Style
	message lipgloss.Style
}

var consoleStyles = map[LogLevel]levelStyle{
	LevelTrace: {lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")), lipgloss.NewStyle().Foreground(lipgloss.Color("8"))},
	LevelDebug: {lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4")), lipgloss.NewStyle().Foreground(lipgloss.Color("2"))},
	LevelInfo:  {lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3")), lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))},
	LevelWarn:  {lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5")), lipgloss.NewStyle().Foreground(lipgloss.Color("5"))},
	LevelError: {lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1")), lipgloss.NewStyle().Foreground(lipgloss.Color("1"))},
}

var (
	prefixStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("200"))
	metadataStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func paint(style lipgloss.Style, val string) string {
	if noColor {
		return val
	}
	return style.Render(val)
}

type consoleLogger struct {
	base
	prefixes []string
}

var _ SinkLogger = (*consoleLogger)(nil)

func (c *consoleLogger) clone() *consoleLogger {
	return &consoleLogger{base: c.base.copy(), prefixes: slices.Clone(c.prefixes)}
}

func (c *consoleLogger) WithContext(ctx context.Context) Logger {
	clone := c.clone()
	if clone.child != nil {
		clone.child = clone.child.WithContext(ctx)
	}
	return clone
}

// WithPrefix will return a new logger with a prefix prepended to the message
func (c *consoleLogger) WithPrefix(prefix string) Logger {
	clone := c.clone()
	if !slices.Contains(clone.prefixes, prefix) {
		clone.prefixes = append(clone.prefixes, prefix)
	}
	if clone.child != nil {
		clone.child = clone.child.WithPrefix(prefix)
	}
	return clone
}

func (c *consoleLogger) With(metadata map[string]interface{}) Logger {
	clone := c.clone()
	for k, v := range metadata {
		clone.metadata[k] = v
	}
	if clone.child != nil {
		clone.child = clone.child.With(metadata)
	}
	return clone
}

func (c *consoleLogger) SetSink(sink Sink, level LogLevel) {
	c.setSink(sink, level)
}

func (c *consoleLogger) SetLogLevel(level LogLevel) {
	c.logLevel = level
}

func (c *consoleLogger) format(level LogLevel, msg string) string {
	style := consoleStyles[level]
	label := level.String()
	if level == LevelWarn {
		label = "WARN"
	}
	var sb strings.Builder
	sb.WriteString(paint(style.label, fmt.Sprintf("[%-5s]", label)))
	sb.WriteByte(' ')
	if len(c.prefixes) > 0 {
		sb.WriteString(paint(prefixStyle, strings.Join(c.prefixes, " ")))
		sb.WriteByte(' ')
	}
	sb.WriteString(paint(style.message, msg))
	if len(c.metadata) > 0 {
		buf, _ := json.Marshal(c.metadata)
		sb.WriteByte(' ')
		if isCI {
			sb.WriteString(paint(style.label, string(buf)))
		} else {
			sb.WriteString(paint(metadataStyle, string(buf)))
		}
	}
	return sb.String()
}

func (c *consoleLogger) log(level LogLevel, msg string, args ...interface{}) {
	if c.enabled(level) {
		out := c.format(level, fmt.Sprintf(msg, args...))
		if level >= c.logLevel {
			log.Println(out)
		}
		if c.sink != nil && level >= c.sinkLogLevel {
			ts := time.Now().Format(time.RFC3339Nano)
			c.sink.Write([]byte(ts + " " + ansiColorStripper.ReplaceAllString(out, "") + "\n"))
		}
	}
	c.forward(level, msg, args...)
}

func (c *consoleLogger) Trace(msg string, args ...interface{}) { c.log(LevelTrace, msg, args...) }
func (c *consoleLogger) Debug(msg string, args ...interface{}) { c.log(LevelDebug, msg, args...) }
func (c *consoleLogger) Info(msg string, args ...interface{})  { c.log(LevelInfo, msg, args...) }
func (c *consoleLogger) Warn(msg string, args ...interface{})  { c.log(LevelWarn, msg, args...) }
func (c *consoleLogger) Error(msg string, args ...interface{}) { c.log(LevelError, msg, args...) }

func (c *consoleLogger) Fatal(msg string, args ...interface{}) {
	c.log(LevelError, msg, args...)
	os.Exit(1)
}

func (c *consoleLogger) Stack(next Logger) Logger {
	clone := c.clone()
	clone.child = next
	return clone
}

// NewConsoleLogger returns a new Logger instance which will log to the console
func NewConsoleLogger(levels ...LogLevel) SinkLogger {
	level := GetLevelFromEnv()
	if len(levels) > 0 {
		level = levels[0]
	}
	return &consoleLogger{base: base{metadata: map[string]interface{}{}, logLevel: level, sinkLogLevel: LevelNone}}
}
