// Package logger provides structured logging for the storefront client
package logger

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the logging level
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
	FATAL LogLevel = "FATAL"
)

var levelRank = map[LogLevel]int{
	DEBUG: 0,
	INFO:  1,
	WARN:  2,
	ERROR: 3,
	FATAL: 4,
}

// Fields represents structured logging fields
type Fields map[string]interface{}

// Logger provides structured logging capabilities
type Logger struct {
	mu        sync.Mutex
	level     LogLevel
	service   string
	component string
	out       io.Writer
	exit      func(int)
}

// logEntry represents a single log entry
type logEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Service   string                 `json:"service,omitempty"`
	Component string                 `json:"component,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	UserEmail string                 `json:"user_email,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	File      string                 `json:"file,omitempty"`
	Line      int                    `json:"line,omitempty"`
}

// globalLogger is the default logger instance
var globalLogger *Logger

func init() {
	globalLogger = NewLogger("storefront", "")
}

// NewLogger creates a new structured logger writing JSON lines to stderr
func NewLogger(service, component string) *Logger {
	return &Logger{
		level:     INFO,
		service:   service,
		component: component,
		out:       os.Stderr,
		exit:      os.Exit,
	}
}

// With returns a logger sharing output and level, tagged with another component
func (l *Logger) With(component string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Logger{
		level:     l.level,
		service:   l.service,
		component: component,
		out:       l.out,
		exit:      l.exit,
	}
}

// SetOutput redirects log output
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
}

// SetLevel sets the minimum logging level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns current logging level
func (l *Logger) GetLevel() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// ParseLevel converts a config string into a LogLevel, defaulting to INFO
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

func (l *Logger) shouldLog(level LogLevel) bool {
	return levelRank[level] >= levelRank[l.GetLevel()]
}

// getCallerInfo gets file and line info of the caller
func getCallerInfo(skip int) (string, int) {
	_, file, line, ok := runtime.Caller(skip + 2)
	if !ok {
		return "unknown", 0
	}

	// Show only filename, not full path
	if idx := strings.LastIndex(file, "/"); idx >= 0 {
		file = file[idx+1:]
	}

	return file, line
}

// log performs the actual logging
func (l *Logger) log(ctx context.Context, level LogLevel, message string, fields Fields) {
	if !l.shouldLog(level) {
		return
	}

	file, line := getCallerInfo(1)

	entry := logEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     string(level),
		Service:   l.service,
		Component: l.component,
		Message:   message,
		File:      file,
		Line:      line,
	}
	if len(fields) > 0 {
		entry.Fields = map[string]interface{}(fields)
	}

	if ctx != nil {
		entry.RequestID = getString(ctx, requestIDKey)
		entry.SessionID = getString(ctx, sessionIDKey)
		entry.UserEmail = getString(ctx, userEmailKey)
	}

	b, err := json.Marshal(entry)
	if err != nil {
		// Unserializable field values: keep the line, drop the fields
		entry.Fields = map[string]interface{}{"fields_error": err.Error()}
		b, _ = json.Marshal(entry)
	}

	l.mu.Lock()
	_, _ = l.out.Write(append(b, '\n'))
	exit := l.exit
	l.mu.Unlock()

	// Fatal level should exit the program
	if level == FATAL {
		exit(1)
	}
}

// Context key types for avoiding collisions
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	sessionIDKey contextKey = "session_id"
	userEmailKey contextKey = "user_email"
)

func getString(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// WithRequestID adds request ID to context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the request ID stored in ctx, if any
func RequestID(ctx context.Context) string {
	return getString(ctx, requestIDKey)
}

// WithSession tags the context with the session id and user email
func WithSession(ctx context.Context, sessionID, email string) context.Context {
	ctx = context.WithValue(ctx, sessionIDKey, sessionID)
	return context.WithValue(ctx, userEmailKey, email)
}

// Logging methods for the default logger
func Debug(ctx context.Context, message string, fields ...Fields) {
	globalLogger.log(ctx, DEBUG, message, mergeFields(fields...))
}

func Info(ctx context.Context, message string, fields ...Fields) {
	globalLogger.log(ctx, INFO, message, mergeFields(fields...))
}

func Warn(ctx context.Context, message string, fields ...Fields) {
	globalLogger.log(ctx, WARN, message, mergeFields(fields...))
}

func Error(ctx context.Context, message string, fields ...Fields) {
	globalLogger.log(ctx, ERROR, message, mergeFields(fields...))
}

func Fatal(ctx context.Context, message string, fields ...Fields) {
	globalLogger.log(ctx, FATAL, message, mergeFields(fields...))
}

// Logging methods for Logger instance
func (l *Logger) Debug(ctx context.Context, message string, fields ...Fields) {
	l.log(ctx, DEBUG, message, mergeFields(fields...))
}

func (l *Logger) Info(ctx context.Context, message string, fields ...Fields) {
	l.log(ctx, INFO, message, mergeFields(fields...))
}

func (l *Logger) Warn(ctx context.Context, message string, fields ...Fields) {
	l.log(ctx, WARN, message, mergeFields(fields...))
}

func (l *Logger) Error(ctx context.Context, message string, fields ...Fields) {
	l.log(ctx, ERROR, message, mergeFields(fields...))
}

func (l *Logger) Fatal(ctx context.Context, message string, fields ...Fields) {
	l.log(ctx, FATAL, message, mergeFields(fields...))
}

// LogError logs an error with optional fields
func (l *Logger) LogError(ctx context.Context, err error, message string, fields ...Fields) {
	if err == nil {
		return
	}
	all := append([]Fields{{"error": err.Error()}}, fields...)
	l.log(ctx, ERROR, message, mergeFields(all...))
}

// mergeFields combines multiple field maps
func mergeFields(fieldMaps ...Fields) Fields {
	result := make(Fields)
	for _, fields := range fieldMaps {
		for k, v := range fields {
			result[k] = v
		}
	}
	return result
}

// LogError logs an error with optional fields on the default logger
func LogError(ctx context.Context, err error, message string, fields ...Fields) {
	globalLogger.LogError(ctx, err, message, fields...)
}

// SetGlobalLevel sets the global logger level
func SetGlobalLevel(level LogLevel) {
	globalLogger.SetLevel(level)
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	return globalLogger
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	l := NewLogger("", "")
	l.out = io.Discard
	l.level = FATAL
	l.exit = func(int) {}
	return l
}
