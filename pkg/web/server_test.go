package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/Cavumnigrum/cheating-detector/pkg/behavior"
	"github.com/Cavumnigrum/cheating-detector/pkg/evidence"
	"github.com/Cavumnigrum/cheating-detector/pkg/pose"
	"github.com/Cavumnigrum/cheating-detector/pkg/proctor"
)

type identitySolver struct{}

func (identitySolver) Solve([]pose.Point3, []pose.Point2, pose.Camera) (pose.Matrix3, error) {
	return pose.Identity(), nil
}

type fakeDecoder struct{}

func (fakeDecoder) Decode(jpeg []byte) (evidence.Frame, error) {
	if string(jpeg) == "garbage" {
		return evidence.Frame{}, errors.New("bad jpeg")
	}
	return evidence.Frame{Width: 4, Height: 4, Data: make([]byte, 48)}, nil
}

// fakePhones reports a phone for any payload starting with "phone".
type fakePhones struct{ err error }

func (p fakePhones) DetectPhones(data []byte) ([]proctor.Detection, error) {
	if p.err != nil {
		return nil, p.err
	}
	if bytes.HasPrefix(data, []byte("phone")) {
		return []proctor.Detection{{BBox: [4]float64{1, 2, 3, 4}, Confidence: 0.9, Class: 67, Label: proctor.PhoneLabel}}, nil
	}
	return nil, nil
}

// ctxLandmarker records the context error seen by each call.
type ctxLandmarker struct {
	mu   sync.Mutex
	errs []error
}

func (l *ctxLandmarker) Landmarks(ctx context.Context, _ []byte) ([]pose.Landmark, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, ctx.Err())
	return nil, ctx.Err()
}

type nopWriter struct{}

func (nopWriter) WriteClip(string, []evidence.Frame, float64) error { return nil }

func newTestServer(t *testing.T, phones proctor.PhoneDetector) *Server {
	t.Helper()
	cfg := proctor.DefaultConfig()
	cfg.Evidence.Dir = filepath.Join(t.TempDir(), "evidence")
	s := NewServer(Options{
		Port:     "0",
		Config:   cfg,
		Analyzer: proctor.NewAnalyzer(fakeDecoder{}, phones, nil),
		Phones:   phones,
		Solver:   identitySolver{},
		Writer:   nopWriter{},
	})
	n := 0
	s.newID = func() string {
		n++
		return "session-" + string(rune('0'+n))
	}
	s.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return s
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
}

func uploadRequest(t *testing.T, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/detect", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	s.openSession("127.0.0.1")

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var got struct {
		Status         string `json:"status"`
		ActiveSessions int    `json:"active_sessions"`
	}
	decodeBody(t, resp, &got)
	if got.Status != "ok" || got.ActiveSessions != 1 {
		t.Errorf("got %+v, want ok/1", got)
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		phones   proctor.PhoneDetector
		req      func(t *testing.T) *http.Request
		status   int
		wantDets int
	}{
		{
			name:   "not configured",
			phones: nil,
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "a.jpg", "image/jpeg", []byte("phone"))
			},
			status: http.StatusServiceUnavailable,
		},
		{
			name:   "missing file",
			phones: fakePhones{},
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/detect", nil)
			},
			status: http.StatusBadRequest,
		},
		{
			name:   "not an image",
			phones: fakePhones{},
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "notes.txt", "text/plain", []byte("phone"))
			},
			status: http.StatusBadRequest,
		},
		{
			name:   "phone found",
			phones: fakePhones{},
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "desk.jpg", "image/jpeg", []byte("phone-jpeg"))
			},
			status:   http.StatusOK,
			wantDets: 1,
		},
		{
			name:   "nothing found",
			phones: fakePhones{},
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "desk.jpg", "image/jpeg", []byte("jpeg"))
			},
			status: http.StatusOK,
		},
		{
			name:   "detector error",
			phones: fakePhones{err: errors.New("bad image")},
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "desk.jpg", "image/jpeg", []byte("jpeg"))
			},
			status: http.StatusUnprocessableEntity,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t, tc.phones)
			resp, err := s.App().Test(tc.req(t))
			if err != nil {
				t.Fatalf("Test: %v", err)
			}
			if resp.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.status)
			}
			if tc.status != http.StatusOK {
				return
			}

			var got struct {
				Filename   string              `json:"filename"`
				Detections []proctor.Detection `json:"detections"`
			}
			decodeBody(t, resp, &got)
			if got.Filename != "desk.jpg" {
				t.Errorf("filename = %q", got.Filename)
			}
			if len(got.Detections) != tc.wantDets || got.Detections == nil {
				t.Errorf("detections = %v, want %d", got.Detections, tc.wantDets)
			}
		})
	}
}

func TestSessionsAndEvidence(t *testing.T) {
	s := newTestServer(t, nil)
	sess := s.openSession("10.1.1.1")

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	if err != nil {
		t.Fatal(err)
	}
	var list []SessionInfo
	decodeBody(t, resp, &list)
	if len(list) != 1 || list[0].SessionID != sess.ID() || list[0].Calibrated {
		t.Errorf("sessions = %+v", list)
	}

	resp, err = s.App().Test(httptest.NewRequest(http.MethodGet, "/api/sessions/"+sess.ID()+"/evidence", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var ev []evidence.Event
	decodeBody(t, resp, &ev)
	if ev == nil || len(ev) != 0 {
		t.Errorf("evidence = %v, want empty list", ev)
	}

	resp, err = s.App().Test(httptest.NewRequest(http.MethodGet, "/api/sessions/nope/evidence", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}

	s.closeSession(sess)
	if s.ActiveSessions() != 0 {
		t.Errorf("ActiveSessions() = %d after close", s.ActiveSessions())
	}
}

func TestWSRequiresUpgrade(t *testing.T) {
	s := newTestServer(t, nil)
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/ws/detect", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Errorf("status = %d, want 426", resp.StatusCode)
	}
}

func TestDetectConn_Frames(t *testing.T) {
	s := newTestServer(t, fakePhones{})
	sess := s.openSession("10.1.1.1")
	dc := newDetectConn(context.Background(), s, sess)

	if reply := dc.handle(websocket.BinaryMessage, []byte("garbage")); reply != nil {
		t.Errorf("undecodable frame produced a reply: %s", reply)
	}

	reply := dc.handle(websocket.BinaryMessage, []byte("jpeg"))
	var got FrameReply
	if err := json.Unmarshal(reply, &got); err != nil {
		t.Fatalf("reply %s: %v", reply, err)
	}
	if got.Behavior.State != behavior.StateNormal || got.Behavior.Message != proctor.DefaultMessage {
		t.Errorf("behavior = %+v", got.Behavior)
	}
	if got.Detections == nil || len(got.Detections) != 0 {
		t.Errorf("detections = %v, want []", got.Detections)
	}

	reply = dc.handle(websocket.BinaryMessage, []byte("phone-jpeg"))
	if err := json.Unmarshal(reply, &got); err != nil {
		t.Fatal(err)
	}
	if got.Behavior.State != behavior.StateCheating || got.Behavior.Score != 100 {
		t.Errorf("behavior = %+v, want CHEATING", got.Behavior)
	}
	if len(got.Detections) != 1 || got.Detections[0].Label != proctor.PhoneLabel {
		t.Errorf("detections = %+v", got.Detections)
	}
	if dc.lastState != behavior.StateCheating {
		t.Errorf("lastState = %s", dc.lastState)
	}
	if dc.frames != 2 {
		t.Errorf("frames = %d, want 2", dc.frames)
	}
}

func TestDetectConn_Commands(t *testing.T) {
	s := newTestServer(t, nil)
	sess := s.openSession("10.1.1.1")
	dc := newDetectConn(context.Background(), s, sess)

	for _, msg := range []string{`not json`, `{"type":"dance"}`} {
		if reply := dc.handle(websocket.TextMessage, []byte(msg)); reply != nil {
			t.Errorf("command %q produced a reply", msg)
		}
	}

	dc.handle(websocket.TextMessage, []byte(`{"type":"calibrate"}`))
	if sess.Calibrated() {
		t.Fatal("calibrated before any face frame")
	}

	// A face frame applies the pending calibration.
	lms := make([]pose.Landmark, 478)
	sess.Process(proctor.Frame{
		Landmarks: lms,
		Image:     evidence.Frame{Width: 4, Height: 4, Data: make([]byte, 48)},
		Timestamp: s.now(),
	})
	if !sess.Calibrated() {
		t.Error("calibrate command not applied")
	}
}

func TestDetectConn_ModelCallsFollowConnection(t *testing.T) {
	s := newTestServer(t, nil)
	lm := &ctxLandmarker{}
	s.opts.Analyzer = proctor.NewAnalyzer(fakeDecoder{}, nil, lm)
	sess := s.openSession("10.1.1.1")

	ctx, cancel := context.WithCancel(context.Background())
	dc := newDetectConn(ctx, s, sess)

	dc.handle(websocket.BinaryMessage, []byte("jpeg"))
	cancel()
	dc.handle(websocket.BinaryMessage, []byte("jpeg"))

	lm.mu.Lock()
	defer lm.mu.Unlock()
	if len(lm.errs) != 2 {
		t.Fatalf("landmark calls = %d, want 2", len(lm.errs))
	}
	if lm.errs[0] != nil {
		t.Errorf("live connection: ctx err = %v", lm.errs[0])
	}
	if !errors.Is(lm.errs[1], context.Canceled) {
		t.Errorf("closed connection: ctx err = %v, want canceled", lm.errs[1])
	}
}
