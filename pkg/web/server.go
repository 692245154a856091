// Package web serves the proctoring API: the detection websocket, single
// image phone detection, health and a live monitor feed for proctors.
package web

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/Cavumnigrum/cheating-detector/internal/log"
	"github.com/Cavumnigrum/cheating-detector/pkg/evidence"
	"github.com/Cavumnigrum/cheating-detector/pkg/hub"
	"github.com/Cavumnigrum/cheating-detector/pkg/pose"
	"github.com/Cavumnigrum/cheating-detector/pkg/proctor"
)

// HeartbeatFrames is how often a connection logs its frame count.
const HeartbeatFrames = 30

// Options wires the server to the detection backends.
type Options struct {
	Port      string
	Config    proctor.Config
	Analyzer  *proctor.Analyzer
	Phones    proctor.PhoneDetector // Serves POST /api/detect; nil disables it
	Solver    pose.Solver
	Writer    evidence.ClipWriter
	Sink      proctor.EventSink
	StaticDir string // Optional directory served at /
}

// Server is the proctoring HTTP and websocket server
type Server struct {
	app    *fiber.App
	opts   Options
	logger *slog.Logger

	sessions   map[string]*proctor.Session
	sessionsMu sync.RWMutex

	// Session state changes for proctor dashboards
	monitor *hub.Hub

	now   func() time.Time
	newID func() string
}

// NewServer creates a new server
func NewServer(opts Options) *Server {
	s := &Server{
		opts:     opts,
		logger:   log.With("component", "web"),
		sessions: make(map[string]*proctor.Session),
		monitor:  hub.New("monitor"),
		now:      time.Now,
		newID:    uuid.NewString,
	}

	app := fiber.New(fiber.Config{
		AppName:               "Cheating Detector",
		DisableStartupMessage: true,
		BodyLimit:             16 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(cors.New())

	if opts.StaticDir != "" {
		app.Static("/", opts.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Post("/detect", s.handleDetect)
	api.Get("/sessions", s.handleListSessions)
	api.Get("/sessions/:id/evidence", s.handleSessionEvidence)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("ip", c.IP())
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/detect", websocket.New(s.handleDetectWS))
	app.Get("/ws/monitor", websocket.New(s.handleMonitorWS))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start runs the monitor hub and blocks serving HTTP until the listener fails
// or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	go s.monitor.Run(ctx)
	s.logger.Info("listening", "addr", "http://localhost:"+s.opts.Port)
	return s.app.Listen(":" + s.opts.Port)
}

// StartAsync starts the server in a goroutine
func (s *Server) StartAsync(ctx context.Context) {
	go func() {
		if err := s.Start(ctx); err != nil {
			s.logger.Error("server stopped", "error", err)
		}
	}()
}

// Shutdown gracefully stops the server and closes every session
func (s *Server) Shutdown() error {
	err := s.app.Shutdown()

	s.sessionsMu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*proctor.Session)
	s.sessionsMu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
	return err
}

// ActiveSessions returns the number of open detection sessions
func (s *Server) ActiveSessions() int {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return len(s.sessions)
}

// openSession creates and registers a session for a new connection.
func (s *Server) openSession(ip string) *proctor.Session {
	sess := proctor.NewSession(s.newID(), s.opts.Config, s.opts.Solver, s.opts.Writer, s.opts.Sink)

	s.sessionsMu.Lock()
	s.sessions[sess.ID()] = sess
	s.sessionsMu.Unlock()

	sess.Start(ip)
	s.publish(MonitorEvent{SessionID: sess.ID(), Event: MonitorStart})
	return sess
}

// closeSession unregisters and closes a session.
func (s *Server) closeSession(sess *proctor.Session) {
	s.sessionsMu.Lock()
	delete(s.sessions, sess.ID())
	s.sessionsMu.Unlock()

	sess.Close()
	s.publish(MonitorEvent{SessionID: sess.ID(), Event: MonitorEnd})
}

func (s *Server) session(id string) (*proctor.Session, bool) {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Server) publish(ev MonitorEvent) {
	ev.Timestamp = float64(s.now().UnixNano()) / 1e9
	if err := s.monitor.Publish(ev.SessionID, ev); err != nil {
		s.logger.Warn("monitor broadcast", "error", err)
	}
}
