// Package logging writes JSON log lines and keeps the most recent entries
// in memory so the service can serve them back from /logs.
package logging

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is a log severity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

var levelOrder = []Level{LevelDebug, LevelInfo, LevelWarn, LevelError}

// rank orders levels; unknown levels rank as info.
func (l Level) rank() int {
	for i, lv := range levelOrder {
		if lv == l {
			return i
		}
	}
	return 1
}

// ParseLevel maps a level name to a Level. Unknown names report false.
func ParseLevel(s string) (Level, bool) {
	name := Level(strings.ToLower(strings.TrimSpace(s)))
	if name == "warning" {
		return LevelWarn, true
	}
	for _, lv := range levelOrder {
		if lv == name {
			return lv, true
		}
	}
	return LevelInfo, false
}

// Entry is one recorded log line.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	StreamID  string         `json:"stream_id,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Config holds logger configuration.
type Config struct {
	Output     io.Writer // default os.Stderr
	Level      Level     // default info
	MaxEntries int       // entries retained for Query, default 1000
	Component  string
}

// Logger writes entries at or above its level to Output and retains the
// last MaxEntries of them.
type Logger struct {
	level     Level
	component string

	mu     sync.Mutex
	enc    *json.Encoder
	ring   []Entry
	next   int // slot the next entry is written to
	filled bool
	counts [4]int64
}

// New creates a logger.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.Level == "" {
		cfg.Level = LevelInfo
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1000
	}
	return &Logger{
		level:     cfg.Level,
		component: cfg.Component,
		enc:       json.NewEncoder(cfg.Output),
		ring:      make([]Entry, cfg.MaxEntries),
	}
}

func (l *Logger) record(level Level, streamID, msg string, fields []map[string]any) {
	if level.rank() < l.level.rank() {
		return
	}
	entry := Entry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   msg,
		Component: l.component,
		StreamID:  streamID,
	}
	if len(fields) > 0 {
		entry.Fields = fields[0]
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[level.rank()]++
	l.ring[l.next] = entry
	l.next = (l.next + 1) % len(l.ring)
	if l.next == 0 {
		l.filled = true
	}
	if err := l.enc.Encode(entry); err != nil {
		// Unencodable fields; keep the line, drop the fields.
		entry.Fields = map[string]any{"log_error": err.Error()}
		l.enc.Encode(entry)
	}
}

func (l *Logger) Debug(msg string, fields ...map[string]any) { l.record(LevelDebug, "", msg, fields) }
func (l *Logger) Info(msg string, fields ...map[string]any) { l.record(LevelInfo, "", msg, fields) }
func (l *Logger) Warn(msg string, fields ...map[string]any) { l.record(LevelWarn, "", msg, fields) }
func (l *Logger) Error(msg string, fields ...map[string]any) { l.record(LevelError, "", msg, fields) }

// WithStream returns a logger stamping every entry with streamID.
func (l *Logger) WithStream(streamID string) *StreamLogger {
	return &StreamLogger{parent: l, streamID: streamID}
}

// StreamLogger logs on behalf of one stream.
type StreamLogger struct {
	parent   *Logger
	streamID string
}

func (s *StreamLogger) Debug(msg string, fields ...map[string]any) {
	s.parent.record(LevelDebug, s.streamID, msg, fields)
}

func (s *StreamLogger) Info(msg string, fields ...map[string]any) {
	s.parent.record(LevelInfo, s.streamID, msg, fields)
}

func (s *StreamLogger) Warn(msg string, fields ...map[string]any) {
	s.parent.record(LevelWarn, s.streamID, msg, fields)
}

func (s *StreamLogger) Error(msg string, fields ...map[string]any) {
	s.parent.record(LevelError, s.streamID, msg, fields)
}

// Query filters retained entries. Zero fields do not filter.
type Query struct {
	Level     Level // minimum level
	StreamID  string
	Component string
	Since     time.Time
	Until     time.Time
	Limit     int // keep the newest Limit matches
}

// QueryResult is the answer to a Query, oldest entry first.
type QueryResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"` // matches before Limit
	Counts  Stats   `json:"counts"`
}

// Stats counts every entry logged since start, including evicted ones.
type Stats struct {
	Debug int64 `json:"debug"`
	Info  int64 `json:"info"`
	Warn  int64 `json:"warn"`
	Error int64 `json:"error"`
	Total int64 `json:"total"`
}

func (q Query) matches(e Entry) bool {
	switch {
	case q.Level != "" && e.Level.rank() < q.Level.rank():
		return false
	case q.StreamID != "" && e.StreamID != q.StreamID:
		return false
	case q.Component != "" && e.Component != q.Component:
		return false
	case !q.Since.IsZero() && e.Timestamp.Before(q.Since):
		return false
	case !q.Until.IsZero() && e.Timestamp.After(q.Until):
		return false
	}
	return true
}

// Query returns the retained entries matching q.
func (l *Logger) Query(q Query) QueryResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	start, n := 0, l.next
	if l.filled {
		start, n = l.next, len(l.ring)
	}
	matched := []Entry{}
	for i := 0; i < n; i++ {
		if e := l.ring[(start+i)%len(l.ring)]; q.matches(e) {
			matched = append(matched, e)
		}
	}

	res := QueryResult{Total: len(matched), Counts: l.statsLocked()}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[len(matched)-q.Limit:]
	}
	res.Entries = matched
	return res
}

// Stats returns the per-level counters.
func (l *Logger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.statsLocked()
}

func (l *Logger) statsLocked() Stats {
	s := Stats{Debug: l.counts[0], Info: l.counts[1], Warn: l.counts[2], Error: l.counts[3]}
	s.Total = s.Debug + s.Info + s.Warn + s.Error
	return s
}
