package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/Cavumnigrum/cheating-detector/pkg/behavior"
	"github.com/Cavumnigrum/cheating-detector/pkg/proctor"
	"github.com/Cavumnigrum/cheating-detector/pkg/vision"
)

// fakeSource yields the given frames then ErrEndOfStream.
type fakeSource struct {
	frames [][]byte
	err    error
}

func (f *fakeSource) CaptureFrame() ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.frames) == 0 {
		return nil, vision.ErrEndOfStream
	}
	next := f.frames[0]
	f.frames = f.frames[1:]
	return next, nil
}

func (f *fakeSource) Close() error { return nil }

type commandLog struct {
	mu   sync.Mutex
	msgs []string
}

func (c *commandLog) add(m string) {
	c.mu.Lock()
	c.msgs = append(c.msgs, m)
	c.mu.Unlock()
}

func (c *commandLog) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

// fakeServer answers each binary frame with a state keyed on its payload:
// "look" is SUSPICIOUS, "phone" is CHEATING, anything else NORMAL. Text
// messages are recorded as commands.
func fakeServer(t *testing.T, commands *commandLog) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.TextMessage {
				commands.add(string(data))
				continue
			}

			reply := frameReply{Detections: []proctor.Detection{}}
			reply.Behavior.State = behavior.StateNormal
			switch string(data) {
			case "look":
				reply.Behavior.State = behavior.StateSuspicious
				reply.Behavior.Message = "Looking Left"
			case "phone":
				reply.Behavior.State = behavior.StateCheating
				reply.Detections = append(reply.Detections, proctor.Detection{Label: proctor.PhoneLabel})
			}
			reply.Behavior.Score = proctor.Score(reply.Behavior.State)
			b, _ := json.Marshal(reply)
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialTest(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, err := dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { closeConn(conn) })
	return conn
}

func frames(names ...string) [][]byte {
	out := make([][]byte, len(names))
	for i, n := range names {
		out[i] = []byte(n)
	}
	return out
}

func TestReplay_Transitions(t *testing.T) {
	var commands commandLog
	srv := fakeServer(t, &commands)
	conn := dialTest(t, srv)

	src := &fakeSource{frames: frames("face", "face", "look", "look", "phone", "face")}
	var out bytes.Buffer
	sum, err := replay(context.Background(), conn, src, replayOptions{CalibrateAfter: 1}, &out)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	want := summary{Frames: 6, Transitions: 3, Alerts: 1, Phones: 1, Final: behavior.StateNormal}
	if sum != want {
		t.Errorf("summary = %+v, want %+v", sum, want)
	}
	if got := commands.all(); len(got) != 1 || !strings.Contains(got[0], `"calibrate"`) {
		t.Errorf("commands = %v, want one calibrate", got)
	}
	if !strings.Contains(out.String(), "frame 2: NORMAL -> SUSPICIOUS (Looking Left, score 60)") {
		t.Errorf("output missing transition:\n%s", out.String())
	}
}

func TestReplay_MaxFrames(t *testing.T) {
	var commands commandLog
	conn := dialTest(t, fakeServer(t, &commands))

	src := &fakeSource{frames: frames("face", "face", "face", "face")}
	sum, err := replay(context.Background(), conn, src, replayOptions{CalibrateAfter: -1, MaxFrames: 2}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if sum.Frames != 2 {
		t.Errorf("Frames = %d, want 2", sum.Frames)
	}
	if got := commands.all(); len(got) != 0 {
		t.Errorf("commands = %v, want none", got)
	}
}

func TestReplay_SourceError(t *testing.T) {
	var commands commandLog
	conn := dialTest(t, fakeServer(t, &commands))

	boom := errors.New("camera unplugged")
	_, err := replay(context.Background(), conn, &fakeSource{err: boom}, replayOptions{CalibrateAfter: -1}, &bytes.Buffer{})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestReplay_Canceled(t *testing.T) {
	var commands commandLog
	conn := dialTest(t, fakeServer(t, &commands))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := replay(ctx, conn, &fakeSource{frames: frames("face")}, replayOptions{CalibrateAfter: -1}, &bytes.Buffer{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestDial_Refused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	if _, err := dial(context.Background(), url); err == nil {
		t.Error("expected dial error")
	}
}
