package standard

import (
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of a log entry.
type LogLevel string

const (
	LevelError LogLevel = "ERROR"
	LevelWarn  LogLevel = "WARN"
	LevelInfo  LogLevel = "INFO"
	LevelDebug LogLevel = "DEBUG"
)

// LogEntry represents a single log entry.
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     LogLevel               `json:"level"`
	Logger    string                 `json:"logger,omitempty"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// RecentLogs keeps the last log records of the process.
type RecentLogs struct {
	mu         sync.Mutex
	entries    []LogEntry
	maxEntries int
}

// NewRecentLogs creates a new RecentLogs tracker.
func NewRecentLogs(maxEntries int) *RecentLogs {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &RecentLogs{
		entries:    make([]LogEntry, 0, maxEntries),
		maxEntries: maxEntries,
	}
}

// Core returns a zapcore.Core that records every enabled entry into r.
// Tee it next to the output core.
func (r *RecentLogs) Core(enab zapcore.LevelEnabler) zapcore.Core {
	return &recentCore{LevelEnabler: enab, logs: r}
}

func (r *RecentLogs) add(entry LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, entry)

	// ringbuffer
	if len(r.entries) > r.maxEntries {
		r.entries = r.entries[len(r.entries)-r.maxEntries:]
	}
}

// Entries returns a copy of the retained entries, oldest first.
func (r *RecentLogs) Entries() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]LogEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// GetData returns log data for the status document.
func (r *RecentLogs) GetData() interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errorCount, warnCount, infoCount, debugCount int
	for _, entry := range r.entries {
		switch entry.Level {
		case LevelError:
			errorCount++
		case LevelWarn:
			warnCount++
		case LevelInfo:
			infoCount++
		case LevelDebug:
			debugCount++
		}
	}

	entries := make([]LogEntry, len(r.entries))
	copy(entries, r.entries)

	return map[string]interface{}{
		"entries": entries,
		"stats": map[string]interface{}{
			"total_count":    len(r.entries),
			"errors_count":   errorCount,
			"warnings_count": warnCount,
			"info_count":     infoCount,
			"debug_count":    debugCount,
			"max_entries":    r.maxEntries,
		},
	}
}

type recentCore struct {
	zapcore.LevelEnabler
	logs   *RecentLogs
	fields []zapcore.Field
}

func (c *recentCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &recentCore{LevelEnabler: c.LevelEnabler, logs: c.logs, fields: merged}
}

func (c *recentCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *recentCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	entry := LogEntry{
		Timestamp: ent.Time.UTC(),
		Level:     levelOf(ent.Level),
		Logger:    ent.LoggerName,
		Message:   ent.Message,
	}
	if len(enc.Fields) > 0 {
		entry.Context = enc.Fields
	}
	c.logs.add(entry)
	return nil
}

func (c *recentCore) Sync() error {
	return nil
}

// levelOf folds zap's panic and fatal levels into ERROR.
func levelOf(l zapcore.Level) LogLevel {
	switch {
	case l >= zapcore.ErrorLevel:
		return LevelError
	case l == zapcore.WarnLevel:
		return LevelWarn
	case l == zapcore.InfoLevel:
		return LevelInfo
	default:
		return LevelDebug
	}
}
