// Package behavior fuses head pose, gaze and phone signals into a severity state.
package behavior

import (
	"strings"

	"github.com/Cavumnigrum/cheating-detector/pkg/pose"
)

// Zone is where the subject is looking on a given frame.
type Zone string

const (
	ZoneScreen        Zone = "Looking at Screen"
	ZoneLeft          Zone = "Looking Left"
	ZoneRight         Zone = "Looking Right"
	ZoneUp            Zone = "Looking Up"
	ZoneDown          Zone = "Looking Down"
	ZoneTilted        Zone = "Tilted"
	ZoneNotCalibrated Zone = "Not Calibrated"
)

// Code returns the zone as an upper snake case token, e.g. LOOKING_LEFT.
func (z Zone) Code() string {
	return strings.ToUpper(strings.ReplaceAll(string(z), " ", "_"))
}

// Thresholds are the per-axis tolerances, in degrees, around the calibrated pose.
type Thresholds struct {
	Yaw   float64
	Pitch float64
	Roll  float64
}

// Classify maps a raw head pose to a zone relative to the calibration.
// A nil pose (no face, or no solution) is treated as the calibrated reference.
//
// Off-screen conditions are checked in a fixed order and the first match wins:
// yaw right, yaw left, pitch down, pitch up, roll.
func Classify(cal *Calibration, p *pose.Pose, th Thresholds) Zone {
	if !cal.Calibrated() {
		return ZoneNotCalibrated
	}
	if p == nil {
		return ZoneScreen
	}

	rel := p.Sub(cal.Offset())

	if abs(rel.Yaw) <= th.Yaw && abs(rel.Pitch) <= th.Pitch && abs(rel.Roll) <= th.Roll {
		return ZoneScreen
	}

	switch {
	case rel.Yaw < -th.Yaw:
		return ZoneRight
	case rel.Yaw > th.Yaw:
		return ZoneLeft
	case rel.Pitch > th.Pitch:
		return ZoneDown
	case rel.Pitch < -th.Pitch:
		return ZoneUp
	default:
		// Only roll is left out of tolerance.
		return ZoneTilted
	}
}

// ApplyGaze lets an iris override replace a centered or uncalibrated zone.
// A head turn that was already detected is never replaced.
func ApplyGaze(z Zone, g pose.Gaze) Zone {
	if z != ZoneScreen && z != ZoneNotCalibrated {
		return z
	}
	switch g {
	case pose.GazeLeft:
		return ZoneLeft
	case pose.GazeRight:
		return ZoneRight
	default:
		return z
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
