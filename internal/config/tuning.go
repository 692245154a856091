package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Cavumnigrum/cheating-detector/pkg/proctor"
)

// Tuning is the YAML overlay for detector tunables. Unset fields keep
// their defaults.
//
//	thresholds: {yaw: 30, pitch: 20, roll: 12}
//	alert_dwell: 3s
//	evidence: {fps: 30, preroll: 5s, cooldown_frames: 90}
//	alerts: {dedupe_window: 2s, visible: 5, max_history: 1000}
//	iris: {low: 0.375, high: 0.625}
type Tuning struct {
	Thresholds struct {
		Yaw   *float64 `yaml:"yaw"`
		Pitch *float64 `yaml:"pitch"`
		Roll  *float64 `yaml:"roll"`
	} `yaml:"thresholds"`
	AlertDwell *time.Duration `yaml:"alert_dwell"`
	Evidence   struct {
		FPS            *int           `yaml:"fps"`
		PreRoll        *time.Duration `yaml:"preroll"`
		CooldownFrames *int           `yaml:"cooldown_frames"`
	} `yaml:"evidence"`
	Alerts struct {
		DedupeWindow *time.Duration `yaml:"dedupe_window"`
		Visible      *int           `yaml:"visible"`
		MaxHistory   *int           `yaml:"max_history"`
	} `yaml:"alerts"`
	Iris struct {
		Low  *float64 `yaml:"low"`
		High *float64 `yaml:"high"`
	} `yaml:"iris"`
}

// LoadTuning reads a YAML tuning file.
func LoadTuning(path string) (*Tuning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tuning file: %w", err)
	}

	var t Tuning
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse tuning: %w", err)
	}
	return &t, nil
}

// Apply overlays the set fields onto cfg and validates the result.
func (t *Tuning) Apply(cfg *proctor.Config) error {
	setFloat(&cfg.Behavior.Thresholds.Yaw, t.Thresholds.Yaw)
	setFloat(&cfg.Behavior.Thresholds.Pitch, t.Thresholds.Pitch)
	setFloat(&cfg.Behavior.Thresholds.Roll, t.Thresholds.Roll)
	setDuration(&cfg.Behavior.AlertDwell, t.AlertDwell)

	setInt(&cfg.Evidence.FPS, t.Evidence.FPS)
	setDuration(&cfg.Evidence.PreRoll, t.Evidence.PreRoll)
	setInt(&cfg.Evidence.CooldownFrames, t.Evidence.CooldownFrames)

	setDuration(&cfg.Alerts.DedupeWindow, t.Alerts.DedupeWindow)
	setInt(&cfg.Alerts.Visible, t.Alerts.Visible)
	setInt(&cfg.Alerts.MaxHistory, t.Alerts.MaxHistory)

	setFloat(&cfg.Pose.IrisLow, t.Iris.Low)
	setFloat(&cfg.Pose.IrisHigh, t.Iris.High)

	return Validate(cfg)
}

// Validate rejects configurations the pipeline cannot run with.
func Validate(cfg *proctor.Config) error {
	var errs []error
	th := cfg.Behavior.Thresholds
	if th.Yaw <= 0 || th.Pitch <= 0 || th.Roll <= 0 {
		errs = append(errs, fmt.Errorf("thresholds must be positive: %+v", th))
	}
	if cfg.Behavior.AlertDwell < 0 {
		errs = append(errs, fmt.Errorf("alert_dwell must not be negative"))
	}
	if cfg.Evidence.FPS <= 0 {
		errs = append(errs, fmt.Errorf("evidence fps must be positive"))
	}
	if cfg.Evidence.RingSize() < 1 {
		errs = append(errs, fmt.Errorf("evidence preroll must hold at least one frame"))
	}
	if cfg.Evidence.CooldownFrames < 0 {
		errs = append(errs, fmt.Errorf("cooldown_frames must not be negative"))
	}
	if cfg.Alerts.Visible < 1 {
		errs = append(errs, fmt.Errorf("alerts visible must be at least 1"))
	}
	if cfg.Pose.IrisLow >= cfg.Pose.IrisHigh {
		errs = append(errs, fmt.Errorf("iris low %.3f must be below high %.3f", cfg.Pose.IrisLow, cfg.Pose.IrisHigh))
	}
	return errors.Join(errs...)
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *time.Duration) {
	if v != nil {
		*dst = *v
	}
}
