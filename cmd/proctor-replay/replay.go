package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Cavumnigrum/cheating-detector/pkg/behavior"
	"github.com/Cavumnigrum/cheating-detector/pkg/proctor"
	"github.com/Cavumnigrum/cheating-detector/pkg/vision"
)

// replayOptions controls one replay run.
type replayOptions struct {
	Interval       time.Duration // Delay between frames; 0 sends as fast as replies arrive
	CalibrateAfter int           // Send a calibrate command after this many frames; <0 never
	MaxFrames      int           // Stop after this many frames; 0 means until the source ends
}

// frameReply mirrors the server's per-frame JSON.
type frameReply struct {
	Detections []proctor.Detection `json:"detections"`
	Behavior   proctor.Status      `json:"behavior"`
}

// summary is what a replay observed.
type summary struct {
	Frames      int
	Transitions int
	Alerts      int
	Phones      int
	Final       behavior.State
}

// replay streams frames from src to conn, one reply per frame, and writes a
// line to out for every state change.
func replay(ctx context.Context, conn *websocket.Conn, src vision.Provider, opts replayOptions, out io.Writer) (summary, error) {
	sum := summary{Final: behavior.StateNormal}

	var ticker *time.Ticker
	if opts.Interval > 0 {
		ticker = time.NewTicker(opts.Interval)
		defer ticker.Stop()
	}

	for opts.MaxFrames == 0 || sum.Frames < opts.MaxFrames {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return sum, ctx.Err()
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			return sum, err
		}

		if sum.Frames == opts.CalibrateAfter {
			if err := conn.WriteJSON(proctorCommand{Type: "calibrate"}); err != nil {
				return sum, fmt.Errorf("send calibrate: %w", err)
			}
			fmt.Fprintf(out, "frame %d: calibrate requested\n", sum.Frames)
		}

		jpeg, err := src.CaptureFrame()
		if errors.Is(err, vision.ErrEndOfStream) {
			return sum, nil
		}
		if err != nil {
			return sum, fmt.Errorf("capture frame %d: %w", sum.Frames, err)
		}

		if err := conn.WriteMessage(websocket.BinaryMessage, jpeg); err != nil {
			return sum, fmt.Errorf("send frame %d: %w", sum.Frames, err)
		}

		var reply frameReply
		if err := conn.ReadJSON(&reply); err != nil {
			return sum, fmt.Errorf("read reply %d: %w", sum.Frames, err)
		}

		if len(reply.Detections) > 0 {
			sum.Phones++
		}
		st := reply.Behavior
		if st.State != sum.Final {
			sum.Transitions++
			if st.State.Escalated() {
				sum.Alerts++
			}
			fmt.Fprintf(out, "frame %d: %s -> %s (%s, score %d)\n", sum.Frames, sum.Final, st.State, st.Message, st.Score)
			sum.Final = st.State
		}
		sum.Frames++
	}
	return sum, nil
}

type proctorCommand struct {
	Type string `json:"type"`
}

// dial connects to a proctor server's detect endpoint.
func dial(ctx context.Context, url string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", url, err)
	}
	return conn, nil
}

// closeConn sends a normal close frame before closing.
func closeConn(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replay done")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
}
