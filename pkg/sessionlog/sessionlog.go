// Package sessionlog appends proctoring session events to a JSON Lines file.
package sessionlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Cavumnigrum/cheating-detector/internal/log"
)

// FileName is the log file created inside the log directory.
const FileName = "sessions.jsonl"

// Record is one line of the session log.
type Record struct {
	Timestamp string         `json:"timestamp"`
	Event     string         `json:"event"`
	SessionID string         `json:"session_id"`
	IPAddress string         `json:"ip_address,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Logger writes session records. It is shared by every session and is
// safe for concurrent use. Write failures are logged, never returned.
type Logger struct {
	mu     sync.Mutex
	path   string
	now    func() time.Time
	logger *slog.Logger
}

// New creates the log directory and returns a logger appending to
// dir/sessions.jsonl.
func New(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session log dir: %w", err)
	}
	return &Logger{
		path:   filepath.Join(dir, FileName),
		now:    time.Now,
		logger: log.With("component", "sessionlog"),
	}, nil
}

// Path returns the log file path.
func (l *Logger) Path() string { return l.path }

// LogSessionStart records a new connection.
func (l *Logger) LogSessionStart(sessionID, ipAddress string) {
	if ipAddress == "" {
		ipAddress = "unknown"
	}
	l.append(Record{Event: "SESSION_START", SessionID: sessionID, IPAddress: ipAddress})
}

// LogEvent records a session event with its details.
func (l *Logger) LogEvent(sessionID, eventType string, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	l.append(Record{Event: eventType, SessionID: sessionID, Details: details})
}

// LogSessionEnd records a disconnect.
func (l *Logger) LogSessionEnd(sessionID string) {
	l.append(Record{Event: "SESSION_END", SessionID: sessionID})
}

func (l *Logger) append(r Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r.Timestamp = l.now().Format(time.RFC3339Nano)
	line, err := json.Marshal(r)
	if err != nil {
		l.logger.Error("encode session record", "event", r.Event, "error", err)
		return
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.logger.Error("open session log", "path", l.path, "error", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		l.logger.Error("write session log", "path", l.path, "error", err)
	}
}
