package proctor

import (
	"log/slog"
	"sync"

	"github.com/Cavumnigrum/cheating-detector/internal/log"
	"github.com/Cavumnigrum/cheating-detector/pkg/alerts"
	"github.com/Cavumnigrum/cheating-detector/pkg/behavior"
	"github.com/Cavumnigrum/cheating-detector/pkg/evidence"
	"github.com/Cavumnigrum/cheating-detector/pkg/pose"
)

// Session is the detection state of one monitored subject.
//
// Process is serialized per session. RequestCalibration may be called from
// any goroutine.
type Session struct {
	id     string
	config Config
	sink   EventSink
	logger *slog.Logger

	mu          sync.Mutex
	estimator   *pose.Estimator
	calibration *behavior.Calibration
	machine     *behavior.Machine
	recorder    *evidence.Recorder
	alerts      *alerts.Log
	closed      bool
}

// NewSession creates a session. A nil sink discards events.
func NewSession(id string, config Config, solver pose.Solver, writer evidence.ClipWriter, sink EventSink) *Session {
	if sink == nil {
		sink = nopSink{}
	}
	return &Session{
		id:          id,
		config:      config,
		sink:        sink,
		logger:      log.Session(id),
		estimator:   pose.NewEstimator(config.Pose, solver),
		calibration: &behavior.Calibration{},
		machine:     behavior.NewMachine(config.Behavior),
		recorder:    evidence.NewRecorder(config.Evidence, writer),
		alerts:      alerts.NewLog(config.Alerts),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Start records the session start with the client address.
func (s *Session) Start(ipAddress string) {
	s.logger.Info("session started", "ip", ipAddress)
	s.sink.LogSessionStart(s.id, ipAddress)
}

// RequestCalibration arms calibration for the next frame with a face.
func (s *Session) RequestCalibration() {
	s.calibration.RequestCalibration()
	s.logger.Info("calibration requested")
}

// Calibrated reports whether the session has a reference pose.
func (s *Session) Calibrated() bool {
	return s.calibration.Calibrated()
}

// Process runs one frame through the pipeline and returns its status.
// Frames arriving after Close only report the last state.
func (s *Session) Process(f Frame) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		state := s.machine.State()
		return Status{
			State:     state,
			Message:   DefaultMessage,
			Score:     Score(state),
			History:   s.alerts.Recent(),
			Landmarks: []pose.Landmark{},
		}
	}

	face := len(f.Landmarks) > 0
	res := s.estimator.Estimate(f.Landmarks, f.Image.Width, f.Image.Height)

	// A face without a solved pose calibrates to the neutral pose.
	if s.calibration.Consume(face, res.Pose) {
		s.logger.Info("calibrated", "pitch", res.Pose.Pitch, "yaw", res.Pose.Yaw, "roll", res.Pose.Roll)
	}

	var current *pose.Pose
	if res.Valid {
		current = &res.Pose
	}
	zone := behavior.Classify(s.calibration, current, s.config.Behavior.Thresholds)
	zone = behavior.ApplyGaze(zone, res.Gaze)

	if res.HasIris {
		s.logger.Debug("frame",
			"pitch", res.Pose.Pitch, "yaw", res.Pose.Yaw, "roll", res.Pose.Roll,
			"eye_ratio", res.IrisRatio, "gaze", res.Gaze.String(), "zone", string(zone))
	}

	d := s.machine.Step(f.Timestamp, behavior.Input{
		Phone:           f.PhoneDetected,
		PhoneConfidence: f.PhoneConfidence,
		Zone:            zone,
		Calibrated:      s.calibration.Calibrated(),
		Override:        res.Gaze != pose.GazeNone,
	})

	for _, ev := range d.Events {
		s.logger.Debug("violation", "event", ev.Type, "details", ev.Details)
		s.sink.LogEvent(s.id, ev.Type, ev.Details)
	}

	out := s.recorder.Observe(f.Image, f.Timestamp, d.State.Escalated(), d.Active)
	if out.Stopped {
		s.machine.Reset()
	}
	if out.Saved != nil {
		s.sink.LogEvent(s.id, EventEvidenceSaved, map[string]any{"path": out.Saved.EvidencePath})
	}
	if out.Err != nil {
		s.sink.LogEvent(s.id, EventEvidenceFailed, map[string]any{"error": out.Err.Error()})
	}

	if d.Reason != "" {
		severity := alerts.SeverityWarning
		if d.Prolonged || d.State == behavior.StateAlert {
			severity = alerts.SeverityAlert
		}
		s.alerts.Add(d.Reason, severity, f.Timestamp)
	}

	state := s.machine.State()
	st := Status{
		State:             state,
		Message:           DefaultMessage,
		Score:             Score(state),
		History:           s.alerts.Recent(),
		LandmarksDetected: face,
		Landmarks:         []pose.Landmark{},
	}
	if d.Reason != "" {
		st.Message = d.Reason
	}
	if res.Valid {
		st.HeadPose = res.Pose.Triple()
	}
	if face {
		st.Landmarks = f.Landmarks
	}
	return st
}

// Evidence returns the clips saved by this session.
func (s *Session) Evidence() []evidence.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recorder.Events()
}

// Close ends the session. An in-flight recording is dropped.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.recorder.Discard()
	s.mu.Unlock()

	s.logger.Info("session ended")
	s.sink.LogSessionEnd(s.id)
}

type nopSink struct{}

func (nopSink) LogSessionStart(string, string)          {}
func (nopSink) LogEvent(string, string, map[string]any) {}
func (nopSink) LogSessionEnd(string)                    {}
