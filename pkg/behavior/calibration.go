package behavior

import (
	"sync"
	"sync/atomic"

	"github.com/Cavumnigrum/cheating-detector/pkg/pose"
)

// Calibration stores the zero-reference head pose of a session.
//
// Offsets only change through Calibrate. RequestCalibration may be called
// from any goroutine; the request is consumed by the frame loop on the next
// frame that has a face.
type Calibration struct {
	mu         sync.RWMutex
	offset     pose.Pose
	calibrated bool

	requested atomic.Bool
}

// Calibrate makes p the new zero reference.
func (c *Calibration) Calibrate(p pose.Pose) {
	c.mu.Lock()
	c.offset = p
	c.calibrated = true
	c.mu.Unlock()
}

// Calibrated reports whether a reference pose has been captured.
func (c *Calibration) Calibrated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.calibrated
}

// Offset returns the reference pose.
func (c *Calibration) Offset() pose.Pose {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// RequestCalibration arms a one-shot calibration for the next face.
func (c *Calibration) RequestCalibration() {
	c.requested.Store(true)
}

// Pending reports whether a calibration request is armed.
func (c *Calibration) Pending() bool {
	return c.requested.Load()
}

// Consume applies an armed request using p when a face is present.
// It reports whether a calibration happened. Without a face the request
// stays armed.
func (c *Calibration) Consume(faceDetected bool, p pose.Pose) bool {
	if !faceDetected {
		return false
	}
	if !c.requested.CompareAndSwap(true, false) {
		return false
	}
	c.Calibrate(p)
	return true
}
