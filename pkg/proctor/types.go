// Package proctor runs the per-session detection pipeline: pose estimation,
// calibration, zone classification, the behavior state machine, evidence
// recording and the alert log.
package proctor

import (
	"time"

	"github.com/Cavumnigrum/cheating-detector/pkg/alerts"
	"github.com/Cavumnigrum/cheating-detector/pkg/behavior"
	"github.com/Cavumnigrum/cheating-detector/pkg/evidence"
	"github.com/Cavumnigrum/cheating-detector/pkg/pose"
)

// DefaultMessage is reported on frames without a violation reason.
const DefaultMessage = "Monitoring..."

// Session event types, in addition to the behavior violation events.
const (
	EventSessionStart   = "SESSION_START"
	EventSessionEnd     = "SESSION_END"
	EventEvidenceSaved  = "EVIDENCE_SAVED"
	EventEvidenceFailed = "EVIDENCE_FAILED"
)

// Frame is one analyzed camera frame.
type Frame struct {
	Landmarks       []pose.Landmark // Normalized face mesh, nil when no face was found
	PhoneDetected   bool
	PhoneConfidence float64 // Highest phone confidence on the frame
	PhoneCount      int
	Image           evidence.Frame // BGR pixels, owned by the session after Process
	Timestamp       time.Time
}

// Status is the per-frame result returned to the client.
type Status struct {
	HeadPose          [3]float64      `json:"head_pose"` // pitch, yaw, roll
	State             behavior.State  `json:"state"`
	Message           string          `json:"message"`
	Score             int             `json:"score"`
	History           []alerts.Entry  `json:"history"`
	LandmarksDetected bool            `json:"landmarks_detected"`
	Landmarks         []pose.Landmark `json:"landmarks"`
}

// Score maps a state to the 0-100 suspicion score shown in the UI.
func Score(s behavior.State) int {
	switch s {
	case behavior.StateSuspicious:
		return 60
	case behavior.StateAlert:
		return 95
	case behavior.StateCheating:
		return 100
	default:
		return 10
	}
}

// Config bundles the tunables of every pipeline stage.
type Config struct {
	Pose     pose.Config
	Behavior behavior.Config
	Evidence evidence.Config
	Alerts   alerts.Config
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		Pose:     pose.DefaultConfig(),
		Behavior: behavior.DefaultConfig(),
		Evidence: evidence.DefaultConfig(),
		Alerts:   alerts.DefaultConfig(),
	}
}

// EventSink receives session events for durable logging.
// Implementations must be safe for concurrent use across sessions.
type EventSink interface {
	LogSessionStart(sessionID, ipAddress string)
	LogEvent(sessionID, eventType string, details map[string]any)
	LogSessionEnd(sessionID string)
}
