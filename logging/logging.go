// Package logging provides the leveled console logger shared by the agent
// and the monitor. Components receive a *Logger and scope it with
// WithComponent; nothing logs through a package-level global.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger provides structured logging to stdout.
type Logger struct {
	mu        *sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
}

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// New creates a new Logger.
func New() *Logger {
	return &Logger{
		mu:       &sync.Mutex{},
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	l := New()
	l.output = io.Discard
	return l
}

// ParseLevel converts a level name (case-insensitive) into a Level.
func ParseLevel(s string) (Level, error) {
	level := Level(strings.ToUpper(strings.TrimSpace(s)))
	if level == "WARNING" {
		level = LevelWarn
	}
	if _, ok := levelPriority[level]; !ok {
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// WithComponent returns a new logger with the given component name.
// The returned logger shares the parent's output and lock.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		mu:        l.mu,
		output:    l.output,
		minLevel:  l.minLevel,
		component: component,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats a map of fields as key=value pairs, sorted by key.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return " " + strings.Join(parts, " ")
}

// log writes a log entry in traditional format: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// --- Event logging methods ---

// Connected logs a successful broker connection.
func (l *Logger) Connected(host string, port int) {
	l.Info("connected", map[string]interface{}{
		"host": host,
		"port": port,
	})
}

// ConnectionLost logs an unexpected disconnect and the retry policy in effect.
func (l *Logger) ConnectionLost(err error, retryEvery time.Duration) {
	fields := map[string]interface{}{
		"retry_every": retryEvery.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error("disconnected from broker, reconnecting", fields)
}

// HostUp logs a participant being marked available.
func (l *Logger) HostUp(id, reason string) {
	l.Info("host up", map[string]interface{}{
		"id":     id,
		"reason": reason,
	})
}

// HostDown logs a participant being marked unavailable.
func (l *Logger) HostDown(id string, silentFor time.Duration) {
	l.Warn("host seems to be down, marking it so", map[string]interface{}{
		"id":         id,
		"silent_for": silentFor.Round(time.Millisecond).String(),
	})
}

// Published logs an outbound message at debug level.
func (l *Logger) Published(topic string, retained bool) {
	l.Debug("published", map[string]interface{}{
		"topic":    topic,
		"retained": retained,
	})
}

// Fatal logs an unrecoverable error with its metadata.
// It does not exit; the caller decides what to do next.
func (l *Logger) Fatal(msg string, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["fatal"] = true
	l.Error(msg, fields)
}
