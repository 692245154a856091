package behavior

import (
	"time"
)

// State is the severity of the observed behavior.
type State string

const (
	StateNormal     State = "NORMAL"
	StateSuspicious State = "SUSPICIOUS"
	StateAlert      State = "ALERT"
	StateCheating   State = "CHEATING"
)

// Escalated reports whether the state keeps evidence recording active.
func (s State) Escalated() bool {
	return s == StateAlert || s == StateCheating
}

// Reason codes attached to violation frames.
const (
	ReasonPhone         = "PHONE_CONFIRMED"
	reasonProlongedPref = "PROLONGED_"
)

// ProlongedReason is the reason code for a sustained off-screen zone.
func ProlongedReason(z Zone) string {
	return reasonProlongedPref + z.Code()
}

// Domain events emitted by the machine.
const (
	EventPhone          = "VIOLATION_PHONE"
	EventGazeSuspicious = "VIOLATION_GAZE_SUSPICIOUS"
	EventGazeAlert      = "VIOLATION_GAZE_ALERT"
)

// Event is a discrete violation to hand to the session logger.
type Event struct {
	Type    string
	Details map[string]any
}

// Config holds the state machine parameters.
type Config struct {
	Thresholds Thresholds
	// AlertDwell is how long an off-screen zone must persist before ALERT.
	AlertDwell time.Duration
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		Thresholds: Thresholds{Yaw: 30, Pitch: 20, Roll: 12},
		AlertDwell: 3 * time.Second,
	}
}

// Input is one frame worth of fused signals.
type Input struct {
	Phone           bool
	PhoneConfidence float64
	Zone            Zone // Zone after gaze override
	Calibrated      bool
	Override        bool // An iris override was present on this frame
}

// Decision is the machine output for one frame.
type Decision struct {
	State      State
	Zone       Zone
	Reason     string // Empty outside violation frames
	Calibrated bool
	// Active marks frames that renew a violation; the evidence
	// recorder resets its cooldown on them.
	Active bool
	// Prolonged marks frames where an off-screen zone has outlasted
	// AlertDwell, whether or not a phone already escalated to CHEATING.
	Prolonged bool
	Events    []Event
}

// Machine is the per-session behavior state machine.
//
// A phone moves straight to CHEATING. An off-screen zone enters SUSPICIOUS on
// the first frame and ALERT once it has persisted for AlertDwell. ALERT and
// CHEATING are only left through Reset, which the evidence recorder triggers
// when its cooldown expires. A prolonged glance during CHEATING keeps
// CHEATING but is still announced with a gaze alert event.
type Machine struct {
	config Config
	state  State

	suspicionStart time.Time
	timing         bool
	alerted        bool // gaze alert already announced for this timer run
}

// NewMachine creates a machine in the NORMAL state.
func NewMachine(config Config) *Machine {
	return &Machine{config: config, state: StateNormal}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Timing reports whether the suspicion timer is running, and since when.
func (m *Machine) Timing() (time.Time, bool) {
	return m.suspicionStart, m.timing
}

// Step advances the machine by one frame observed at now.
func (m *Machine) Step(now time.Time, in Input) Decision {
	d := Decision{Zone: in.Zone, Calibrated: in.Calibrated}

	switch {
	case in.Phone:
		m.state = StateCheating
		d.Reason = ReasonPhone
		d.Active = true
		d.Events = append(d.Events, Event{
			Type:    EventPhone,
			Details: map[string]any{"confidence": in.PhoneConfidence},
		})

	case in.Zone != ZoneScreen && (in.Calibrated || in.Override):
		if !m.timing {
			m.suspicionStart = now
			m.timing = true
			if !m.state.Escalated() {
				m.state = StateSuspicious
			}
			d.Events = append(d.Events, Event{
				Type:    EventGazeSuspicious,
				Details: map[string]any{"state": string(in.Zone)},
			})
		} else if now.Sub(m.suspicionStart) >= m.config.AlertDwell {
			if m.state != StateAlert && !m.alerted {
				m.alerted = true
				d.Events = append(d.Events, Event{
					Type: EventGazeAlert,
					Details: map[string]any{
						"state":    string(in.Zone),
						"duration": m.config.AlertDwell.Seconds(),
					},
				})
			}
			if !m.state.Escalated() {
				m.state = StateAlert
			}
			d.Reason = ProlongedReason(in.Zone)
			d.Active = true
			d.Prolonged = true
		}

	default:
		m.timing = false
		m.alerted = false
		m.suspicionStart = time.Time{}
		if !m.state.Escalated() {
			m.state = StateNormal
		}
	}

	d.State = m.state
	return d
}

// Reset forces the machine back to NORMAL. The suspicion timer is kept so an
// ongoing off-screen glance continues to count and escalates again.
func (m *Machine) Reset() {
	m.state = StateNormal
	m.alerted = false
}
