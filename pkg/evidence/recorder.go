// Package evidence keeps a pre-roll of recent frames and turns escalations
// into video clips on disk.
package evidence

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Cavumnigrum/cheating-detector/internal/log"
)

// ErrEmptyClip is returned by clip writers handed no frames.
var ErrEmptyClip = errors.New("evidence: empty clip")

// ReasonRecorded is the reason attached to every saved clip.
const ReasonRecorded = "ALERT_RECORDED"

// ClipWriter encodes frames into a video file at path.
type ClipWriter interface {
	WriteClip(path string, frames []Frame, fps float64) error
}

// Config holds recorder parameters.
type Config struct {
	FPS            int
	PreRoll        time.Duration // Video kept from before the escalation
	CooldownFrames int           // Quiet frames tolerated before a clip is closed
	Dir            string
	Confidence     float64
}

// DefaultConfig returns 5 s of pre-roll at 30 fps and a 90 frame cooldown.
func DefaultConfig() Config {
	return Config{
		FPS:            30,
		PreRoll:        5 * time.Second,
		CooldownFrames: 90,
		Dir:            "evidence",
		Confidence:     1.0,
	}
}

// RingSize is the number of frames covering PreRoll.
func (c Config) RingSize() int {
	return int(c.PreRoll.Seconds() * float64(c.FPS))
}

// Event describes a saved clip.
type Event struct {
	Timestamp    time.Time `json:"timestamp"`
	Reason       string    `json:"reason"`
	Confidence   float64   `json:"confidence"`
	EvidencePath string    `json:"evidence_path"`
}

// Outcome reports what a call to Observe did.
type Outcome struct {
	Started bool   // A recording began on this frame
	Stopped bool   // The cooldown expired and the recording was closed
	Saved   *Event // Set when the closed recording was written
	Err     error  // Write failure; the recording is dropped regardless
}

// Recorder buffers frames and records clips while a session is escalated.
// Not safe for concurrent use.
type Recorder struct {
	config Config
	writer ClipWriter
	logger *slog.Logger

	ring      *Ring
	recording bool
	clip      []Frame
	cooldown  int
	events    []Event
}

// NewRecorder creates a recorder writing clips through writer.
func NewRecorder(config Config, writer ClipWriter) *Recorder {
	return &Recorder{
		config: config,
		writer: writer,
		logger: log.With("component", "evidence"),
		ring:   NewRing(config.RingSize()),
	}
}

// Observe feeds one frame. escalated reports whether the session is in ALERT
// or CHEATING; active reports whether this frame renewed the violation.
//
// The frame always enters the pre-roll ring first. A recording opens with a
// snapshot of the ring, which already ends with the triggering frame, and
// every escalated frame is then appended, so the trigger appears twice.
func (r *Recorder) Observe(f Frame, now time.Time, escalated, active bool) Outcome {
	r.ring.Push(f)

	var out Outcome
	if !escalated {
		return out
	}

	if !r.recording {
		r.recording = true
		r.clip = r.ring.Snapshot()
		r.cooldown = 0
		out.Started = true
		r.logger.Info("recording started", "preroll_frames", len(r.clip))
	}
	r.clip = append(r.clip, f)

	if active {
		r.cooldown = 0
		return out
	}

	r.cooldown++
	if r.cooldown > r.config.CooldownFrames {
		out.Stopped = true
		out.Saved, out.Err = r.persist(now)
	}
	return out
}

// persist writes the recording and resets the recorder. The buffer is
// cleared whether or not the write succeeds.
func (r *Recorder) persist(now time.Time) (*Event, error) {
	frames := r.clip
	r.clip = nil
	r.recording = false
	r.cooldown = 0

	if len(frames) == 0 {
		r.logger.Debug("recording empty, nothing saved")
		return nil, nil
	}

	if err := os.MkdirAll(r.config.Dir, 0o755); err != nil {
		r.logger.Error("evidence dir", "dir", r.config.Dir, "error", err)
		return nil, fmt.Errorf("create evidence dir: %w", err)
	}

	path := filepath.Join(r.config.Dir, fmt.Sprintf("evidence_%d.avi", now.Unix()))
	if err := r.writer.WriteClip(path, frames, float64(r.config.FPS)); err != nil {
		r.logger.Error("evidence save failed", "path", path, "frames", len(frames), "error", err)
		return nil, fmt.Errorf("write clip %s: %w", path, err)
	}

	ev := Event{
		Timestamp:    now,
		Reason:       ReasonRecorded,
		Confidence:   r.config.Confidence,
		EvidencePath: path,
	}
	r.events = append(r.events, ev)
	r.logger.Info("evidence saved", "path", path, "frames", len(frames))
	return &ev, nil
}

// Recording reports whether a clip is being captured.
func (r *Recorder) Recording() bool { return r.recording }

// Buffered returns the number of frames in the current recording.
func (r *Recorder) Buffered() int { return len(r.clip) }

// Preroll returns the number of frames in the pre-roll ring.
func (r *Recorder) Preroll() int { return r.ring.Len() }

// Events returns the clips saved so far.
func (r *Recorder) Events() []Event {
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Discard drops an in-flight recording without writing it.
func (r *Recorder) Discard() {
	if r.recording {
		r.logger.Warn("recording discarded", "frames", len(r.clip))
	}
	r.clip = nil
	r.recording = false
	r.cooldown = 0
}
