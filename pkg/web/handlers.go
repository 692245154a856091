package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/Cavumnigrum/cheating-detector/pkg/behavior"
	"github.com/Cavumnigrum/cheating-detector/pkg/evidence"
	"github.com/Cavumnigrum/cheating-detector/pkg/hub"
	"github.com/Cavumnigrum/cheating-detector/pkg/proctor"
)

// FrameTimeout bounds the model calls made for one frame.
const FrameTimeout = 5 * time.Second

// Monitor event kinds.
const (
	MonitorStart = "session_start"
	MonitorState = "state"
	MonitorEnd   = "session_end"
)

// MonitorEvent is pushed to /ws/monitor clients.
type MonitorEvent struct {
	SessionID string         `json:"session_id"`
	Event     string         `json:"event"`
	State     behavior.State `json:"state,omitempty"`
	Message   string         `json:"message,omitempty"`
	Score     int            `json:"score,omitempty"`
	Timestamp float64        `json:"timestamp"`
}

// Command is a JSON control message sent as a websocket text frame.
type Command struct {
	Type string `json:"type"`
}

// FrameReply is sent back for every processed frame.
type FrameReply struct {
	Detections []proctor.Detection `json:"detections"`
	Behavior   proctor.Status      `json:"behavior"`
}

// SessionInfo describes an open session.
type SessionInfo struct {
	SessionID  string `json:"session_id"`
	Calibrated bool   `json:"calibrated"`
}

// handleHealth reports liveness and the number of open sessions
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":          "ok",
		"active_sessions": s.ActiveSessions(),
	})
}

// handleDetect runs phone detection on one uploaded image
func (s *Server) handleDetect(c *fiber.Ctx) error {
	if s.opts.Phones == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Phone detector not configured",
		})
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "File is required",
		})
	}
	if !strings.HasPrefix(fh.Header.Get("Content-Type"), "image/") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "File must be an image",
		})
	}

	f, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	dets, err := s.opts.Phones.DetectPhones(data)
	if err != nil {
		s.logger.Warn("detect failed", "filename", fh.Filename, "error", err)
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if dets == nil {
		dets = []proctor.Detection{}
	}

	return c.JSON(fiber.Map{
		"filename":   fh.Filename,
		"detections": dets,
	})
}

// handleListSessions returns the open sessions
func (s *Server) handleListSessions(c *fiber.Ctx) error {
	s.sessionsMu.RLock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for id, sess := range s.sessions {
		out = append(out, SessionInfo{SessionID: id, Calibrated: sess.Calibrated()})
	}
	s.sessionsMu.RUnlock()
	return c.JSON(out)
}

// handleSessionEvidence returns the clips saved by an open session
func (s *Server) handleSessionEvidence(c *fiber.Ctx) error {
	sess, ok := s.session(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}
	ev := sess.Evidence()
	if ev == nil {
		ev = []evidence.Event{}
	}
	return c.JSON(ev)
}

// handleMonitorWS streams session state changes to a proctor dashboard.
// ?session=<id> follows a single session.
func (s *Server) handleMonitorWS(c *websocket.Conn) {
	hub.NewClient(s.monitor, c, c.Query("session")).Run()
}

// handleDetectWS runs one detection session per connection
func (s *Server) handleDetectWS(c *websocket.Conn) {
	ip, _ := c.Locals("ip").(string)
	sess := s.openSession(ip)
	defer s.closeSession(sess)

	// Model calls in flight are abandoned once the read loop exits.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dc := newDetectConn(ctx, s, sess)
	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				dc.logger.Warn("connection error", "error", err)
			} else {
				dc.logger.Info("client disconnected")
			}
			return
		}

		reply := dc.handle(mt, data)
		if reply == nil {
			continue
		}
		if err := c.WriteMessage(websocket.TextMessage, reply); err != nil {
			dc.logger.Warn("write failed", "error", err)
			return
		}
	}
}

// detectConn is the per-connection frame loop state.
type detectConn struct {
	ctx       context.Context
	server    *Server
	session   *proctor.Session
	logger    *slog.Logger
	frames    int
	lastState behavior.State
}

func newDetectConn(ctx context.Context, s *Server, sess *proctor.Session) *detectConn {
	return &detectConn{
		ctx:       ctx,
		server:    s,
		session:   sess,
		logger:    s.logger.With("session_id", sess.ID()),
		lastState: behavior.StateNormal,
	}
}

// handle processes one websocket message and returns the reply to send,
// or nil when nothing is sent back.
func (d *detectConn) handle(mt int, data []byte) []byte {
	switch mt {
	case websocket.TextMessage:
		d.command(data)
		return nil
	case websocket.BinaryMessage:
		return d.frame(data)
	default:
		return nil
	}
}

func (d *detectConn) command(data []byte) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		d.logger.Warn("bad command", "error", err)
		return
	}
	switch cmd.Type {
	case "calibrate":
		d.session.RequestCalibration()
	default:
		d.logger.Debug("unknown command", "type", cmd.Type)
	}
}

func (d *detectConn) frame(data []byte) []byte {
	ctx, cancel := context.WithTimeout(d.ctx, FrameTimeout)
	defer cancel()

	f, dets, err := d.server.opts.Analyzer.Analyze(ctx, data, d.server.now())
	if err != nil {
		d.logger.Warn("frame skipped", "error", err)
		return nil
	}

	d.frames++
	if d.frames%HeartbeatFrames == 0 {
		d.logger.Debug("frames processed", "count", d.frames)
	}

	st := d.session.Process(f)
	if st.State != d.lastState {
		d.lastState = st.State
		d.server.publish(MonitorEvent{
			SessionID: d.session.ID(),
			Event:     MonitorState,
			State:     st.State,
			Message:   st.Message,
			Score:     st.Score,
		})
	}

	reply, err := json.Marshal(FrameReply{Detections: dets, Behavior: st})
	if err != nil {
		d.logger.Error("encode reply", "error", err)
		return nil
	}
	return reply
}
