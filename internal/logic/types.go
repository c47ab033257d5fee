// Package logic contains pure control logic for the solar charge limiter.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Config holds the limiter tuning parameters. All fields are fixed at
// construction; there is no runtime reconfiguration surface.
type Config struct {
	// MinDuty and MaxDuty bound the commanded duty on the 0-255 scale.
	// The bounds correspond to the externally calibrated charge-current
	// range (MinDuty ~ 6 A, MaxDuty ~ 18 A).
	MinDuty int
	MaxDuty int

	// StepSize is the base duty increment/decrement per step (2 units ~ 1 A).
	StepSize int

	// StepUpAggression and StepDownAggression multiply StepSize for the
	// respective direction.
	StepUpAggression   int
	StepDownAggression int

	// MinUpdateInterval gates controller evaluation: a tick is admitted
	// only if at least this long has passed since the previous one.
	MinUpdateInterval time.Duration

	// StepUpDelay is the minimum spacing between two step-ups.
	StepUpDelay time.Duration

	// CurtailmentTimeout is how long curtailment may go unobserved before
	// the controller starts stepping down.
	CurtailmentTimeout time.Duration

	// ShutdownTimeout is how long curtailment may go unobserved before the
	// inverter enable line is latched off.
	ShutdownTimeout time.Duration
}

// Calibration endpoints of the commanded-current range, in amps.
// Display only; there is no current measurement in this system.
const (
	MinAmps = 6.0
	MaxAmps = 18.0
)

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		MinDuty:            25,
		MaxDuty:            82,
		StepSize:           2,
		StepUpAggression:   1,
		StepDownAggression: 1,
		MinUpdateInterval:  250 * time.Millisecond,
		StepUpDelay:        5 * time.Second,
		CurtailmentTimeout: 500 * time.Millisecond,
		ShutdownTimeout:    60 * time.Second,
	}
}

// ApproxAmps maps a commanded duty to the calibrated current range.
func (c Config) ApproxAmps(duty int) float64 {
	if c.MaxDuty == c.MinDuty {
		return MinAmps
	}
	frac := float64(duty-c.MinDuty) / float64(c.MaxDuty-c.MinDuty)
	return MinAmps + frac*(MaxAmps-MinAmps)
}

// Action is the step decision applied on an admitted tick.
type Action string

const (
	ActionStepUp   Action = "STEP_UP"
	ActionStepDown Action = "STEP_DOWN"
	ActionHold     Action = "HOLD"
)

// Command is the outcome of one admitted tick: what the output driver
// should now be applying.
type Command struct {
	Time time.Time

	// Action is the rule that fired this tick.
	Action Action

	// Duty is the commanded duty after clamping, always within
	// [MinDuty, MaxDuty].
	Duty int

	// DutyChanged reports whether Duty differs from the previous tick
	// (a step at the clamp boundary leaves the duty unchanged).
	DutyChanged bool

	// CurtailmentAge is how long ago curtailment was last observed,
	// measured at this tick.
	CurtailmentAge time.Duration

	// InverterOn is the state of the inverter enable latch after this tick.
	InverterOn bool

	// InverterTripped is true only on the tick the shutdown latch fires.
	InverterTripped bool
}

// EventType identifies a published limiter event.
type EventType string

const (
	EventStepUp      EventType = "STEP_UP"
	EventStepDown    EventType = "STEP_DOWN"
	EventInverterOff EventType = "INVERTER_OFF"
)

// Event represents a limiter state change to be published.
type Event struct {
	Timestamp      time.Time
	Type           EventType
	Duty           int
	Amps           float64
	CurtailmentAge time.Duration
}

// Counters tracks tick outcomes since startup.
type Counters struct {
	StepUps       int
	StepDowns     int
	Holds         int
	InverterTrips int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Duty      int
	Counts    Counters
}
