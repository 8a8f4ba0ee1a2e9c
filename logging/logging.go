// Package logging provides real-time, leveled log output for agentwire
// transports. Transports never write diagnostics to the wire they manage;
// everything goes through a Logger bound to a writer of the host's choosing.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// Logger provides structured logging with component and trace-id fields.
type Logger struct {
	mu        sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
	traceID   string
}

// New creates a new Logger writing to stderr at Info level. Stderr is the
// default because a stdio transport owns stdout for JSON-RPC frames.
func New() *Logger {
	return &Logger{
		output:   os.Stderr,
		minLevel: LevelInfo,
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{
		output:   io.Discard,
		minLevel: LevelError,
	}
}

// NewTraceID returns a fresh identifier suitable for WithTraceID.
func NewTraceID() string {
	return uuid.NewString()
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: component,
		traceID:   l.traceID,
	}
}

// WithTraceID returns a new logger with the given trace ID.
func (l *Logger) WithTraceID(traceID string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: l.component,
		traceID:   traceID,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stderr).
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

// formatFields formats a map of fields as key=value pairs.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	var parts []string
	for k, v := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return " " + strings.Join(parts, " ")
}

// log writes a log entry: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if l == nil {
		return
	}
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		if l.traceID != "" {
			fields[0]["trace"] = l.traceID
		}
		fieldStr = formatFields(fields[0])
	} else if l.traceID != "" {
		fieldStr = " trace=" + l.traceID
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

// --- Transport event helpers ---
// Called by the transports on the wire path. All stay on Debug except
// the events an operator actually needs to see.

// Sent logs an outbound frame.
func (l *Logger) Sent(kind, method string, id string) {
	l.Debug("sent", map[string]interface{}{
		"kind":   kind,
		"method": method,
		"id":     id,
	})
}

// Received logs an inbound frame.
func (l *Logger) Received(kind, method string, id string) {
	l.Debug("received", map[string]interface{}{
		"kind":   kind,
		"method": method,
		"id":     id,
	})
}

// FrameDropped logs an inbound line that failed to parse and was discarded.
func (l *Logger) FrameDropped(err error, size int) {
	l.Warn("frame_dropped", map[string]interface{}{
		"error": err.Error(),
		"bytes": size,
	})
}

// ResponseDiscarded logs a response with no matching pending request.
func (l *Logger) ResponseDiscarded(id string) {
	l.Debug("response_discarded", map[string]interface{}{
		"id": id,
	})
}

// StateChange logs a connection state transition.
func (l *Logger) StateChange(from, to string) {
	l.Info("state_change", map[string]interface{}{
		"from": from,
		"to":   to,
	})
}

// RequestDone logs a resolved request with its latency.
func (l *Logger) RequestDone(method string, duration time.Duration, err error) {
	fields := map[string]interface{}{
		"method":   method,
		"duration": duration.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		l.Debug("request_failed", fields)
	} else {
		l.Debug("request_done", fields)
	}
}
