// Package logging provides the kernel's structured logger: a small level-
// and field-aware wrapper around the standard library's log.Logger, with an
// optional JSON output mode for log aggregation.
package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"sync"
	"time"
)

// LogLevel represents the available log levels.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
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
		return "UNKNOWN"
	}
}

// Config holds logging configuration.
type Config struct {
	Level LogLevel
	// Format is "text" (default) or "json".
	Format string
	Output io.Writer
	// Sync forces every write to flush immediately; the stdlib logger
	// already writes synchronously, this only exists so tests can assert
	// output is visible without racing a buffered writer.
	Sync bool
	// NoColor disables ANSI color in text mode. Text mode never emits
	// color today, so this only documents intent for future formatters.
	NoColor bool
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:   LevelInfo,
		Format:  "text",
		Output:  os.Stderr,
		NoColor: true,
	}
}

// Logger wraps stdlib log with level support and structured fields.
type Logger struct {
	logger *log.Logger
	level  LogLevel
	format string
	mu     sync.Mutex
	fields []field
}

type field struct {
	key string
	val interface{}
}

var (
	defaultLogger *Logger
	defaultMu     sync.RWMutex
)

// NewLogger creates a new logger.
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	format := config.Format
	if format == "" {
		format = "text"
	}
	return &Logger{
		logger: log.New(output, "", 0),
		level:  config.Level,
		format: format,
	}
}

// Default returns the default logger, creating it if necessary.
func Default() *Logger {
	defaultMu.RLock()
	if defaultLogger != nil {
		defer defaultMu.RUnlock()
		return defaultLogger
	}
	defaultMu.RUnlock()

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault sets the default logger.
func SetDefault(logger *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}

// with returns a copy of the logger carrying one additional field. Used by
// the WithXxx helpers to build a chain of contextual loggers the way a
// subsystem (scheduler, virtio, paging) tags every line it emits.
func (l *Logger) with(key string, val interface{}) *Logger {
	next := &Logger{
		logger: l.logger,
		level:  l.level,
		format: l.format,
		fields: make([]field, len(l.fields), len(l.fields)+1),
	}
	copy(next.fields, l.fields)
	next.fields = append(next.fields, field{key, val})
	return next
}

// Named tags subsequent log lines with a component name, e.g. "scheduler"
// or "virtio". Every kernel subsystem calls this once at construction time.
func (l *Logger) Named(component string) *Logger {
	return l.with("component", component)
}

// WithPid tags subsequent log lines with a process id.
func (l *Logger) WithPid(pid int) *Logger {
	return l.with("pid", pid)
}

// WithHart tags subsequent log lines with a hart id.
func (l *Logger) WithHart(hart int) *Logger {
	return l.with("hart", hart)
}

// WithSyscall tags subsequent log lines with a syscall number and name.
func (l *Logger) WithSyscall(num int, name string) *Logger {
	return l.with("syscall", fmt.Sprintf("%d:%s", num, name))
}

// WithError tags subsequent log lines with an error value.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with("error", err.Error())
}

func (l *Logger) allFields(args []any) []field {
	if len(args) == 0 {
		return l.fields
	}
	fields := make([]field, len(l.fields), len(l.fields)+len(args)/2)
	copy(fields, l.fields)
	for i := 0; i+1 < len(args); i += 2 {
		key := fmt.Sprintf("%v", args[i])
		fields = append(fields, field{key, args[i+1]})
	}
	return fields
}

func (l *Logger) writeJSON(level LogLevel, msg string, fields []field) {
	entry := make(map[string]interface{}, len(fields)+3)
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level.String()
	entry["msg"] = msg
	for _, f := range fields {
		entry[f.key] = f.val
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(entry); err != nil {
		l.logger.Printf("[ERROR] failed to encode log entry: %v", err)
		return
	}
	l.logger.Print(buf.String())
}

func (l *Logger) writeText(prefix, msg string, fields []field) {
	var extra string
	if len(fields) > 0 {
		kv := make([]string, 0, len(fields))
		for _, f := range fields {
			kv = append(kv, fmt.Sprintf("%s=%v", f.key, f.val))
		}
		sort.Strings(kv)
		for _, s := range kv {
			extra += " " + s
		}
	}
	l.logger.Printf("%s %s%s", prefix, msg, extra)
}

func (l *Logger) log(level LogLevel, prefix, msg string, args ...any) {
	if level < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fields := l.allFields(args)
	if l.format == "json" {
		l.writeJSON(level, msg, fields)
		return
	}
	l.writeText(prefix, msg, fields)
}

func (l *Logger) Debug(msg string, args ...any) { l.log(LevelDebug, "[DEBUG]", msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.log(LevelInfo, "[INFO]", msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(LevelWarn, "[WARN]", msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.log(LevelError, "[ERROR]", msg, args...) }

// Debugf, Infof, Warnf, Errorf are printf-style variants that skip the
// key/value field formatting, useful when the message already embeds the
// structure (e.g. a hex dump of a register).
func (l *Logger) Debugf(format string, args ...any) {
	l.log(LevelDebug, "[DEBUG]", fmt.Sprintf(format, args...))
}
func (l *Logger) Infof(format string, args ...any) {
	l.log(LevelInfo, "[INFO]", fmt.Sprintf(format, args...))
}
func (l *Logger) Warnf(format string, args ...any) {
	l.log(LevelWarn, "[WARN]", fmt.Sprintf(format, args...))
}
func (l *Logger) Errorf(format string, args ...any) {
	l.log(LevelError, "[ERROR]", fmt.Sprintf(format, args...))
}

// Printf is kept for interfaces.Logger compatibility (printf-style callers).
func (l *Logger) Printf(format string, args ...any) { l.Infof(format, args...) }

// Global convenience functions operate on the default logger.
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
