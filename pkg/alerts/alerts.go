// Package alerts keeps a deduplicated history of violation alerts.
package alerts

import (
	"encoding/json"
	"sync"
	"time"
)

// Severities.
const (
	SeverityWarning = 50
	SeverityAlert   = 90
)

// Entry is one alert shown to the proctor.
type Entry struct {
	Code      string
	Message   string
	Severity  int
	Timestamp time.Time
}

type entryJSON struct {
	Code      string  `json:"code"`
	Message   string  `json:"message"`
	Severity  int     `json:"severity"`
	Timestamp float64 `json:"timestamp"` // Unix seconds
}

// MarshalJSON encodes the timestamp as fractional unix seconds.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryJSON{
		Code:      e.Code,
		Message:   e.Message,
		Severity:  e.Severity,
		Timestamp: float64(e.Timestamp.UnixNano()) / 1e9,
	})
}

// UnmarshalJSON accepts the MarshalJSON encoding.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	sec := int64(raw.Timestamp)
	nsec := int64((raw.Timestamp - float64(sec)) * 1e9)
	*e = Entry{
		Code:      raw.Code,
		Message:   raw.Message,
		Severity:  raw.Severity,
		Timestamp: time.Unix(sec, nsec),
	}
	return nil
}

// Config holds alert log parameters.
type Config struct {
	DedupeWindow time.Duration // Repeats of the last code inside this window are dropped
	Visible      int           // Entries returned by Recent
	MaxHistory   int           // Oldest entries are dropped beyond this
}

// DefaultConfig returns a 2 s dedupe window and the last 5 entries visible.
func DefaultConfig() Config {
	return Config{
		DedupeWindow: 2 * time.Second,
		Visible:      5,
		MaxHistory:   1000,
	}
}

// Log is an append-only alert history.
type Log struct {
	mu      sync.Mutex
	config  Config
	entries []Entry
}

// NewLog creates an empty log.
func NewLog(config Config) *Log {
	return &Log{config: config}
}

// Add appends an alert unless the last entry has the same code and is
// younger than the dedupe window. It reports whether the entry was added.
func (l *Log) Add(code string, severity int, at time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n := len(l.entries); n > 0 {
		last := l.entries[n-1]
		if last.Code == code && at.Sub(last.Timestamp) < l.config.DedupeWindow {
			return false
		}
	}

	l.entries = append(l.entries, Entry{
		Code:      code,
		Message:   code,
		Severity:  severity,
		Timestamp: at,
	})

	if limit := l.config.MaxHistory; limit > 0 && len(l.entries) > limit {
		l.entries = append(l.entries[:0:0], l.entries[len(l.entries)-limit:]...)
	}
	return true
}

// Recent returns up to Visible of the newest entries, oldest first.
func (l *Log) Recent() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.entries)
	start := max(n-l.config.Visible, 0)
	out := make([]Entry, n-start)
	copy(out, l.entries[start:])
	return out
}

// Len returns the number of stored entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
