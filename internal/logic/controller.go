package logic

import (
	"sync/atomic"
	"time"
)

// Controller is the duty-cycle ramp state machine. It keeps the charger
// current as high as curtailment allows: curtailment observed recently
// means headroom exists and the duty may creep up; curtailment unobserved
// for too long means demand has caught up with supply and the duty is
// stepped down without delay.
//
// SignalCurtailment may be called from any goroutine (it is the edge
// handler's entry point); everything else must be called from the single
// control-loop goroutine.
type Controller struct {
	cfg Config

	// edgePending is set by the falling-edge handler and drained by Step.
	// Single producer, single consumer; no further synchronization needed.
	edgePending atomic.Bool

	lastCurtailment time.Time
	lastTick        time.Time
	lastStepUp      time.Time

	duty       int
	inverterOn bool

	startTime     time.Time
	lastHeartbeat time.Time

	counts Counters
}

// NewController creates a controller with all timers initialized to start.
// The duty begins at zero; the first admitted tick clamps it up to
// cfg.MinDuty. The inverter enable latch begins on.
func NewController(cfg Config, start time.Time) *Controller {
	return &Controller{
		cfg:             cfg,
		lastCurtailment: start,
		lastTick:        start,
		lastStepUp:      start,
		inverterOn:      true,
		startTime:       start,
		lastHeartbeat:   start,
	}
}

// SignalCurtailment latches a falling-edge notification. It does minimal
// work — a single flag store — because it runs on the edge handler's
// goroutine and may interleave with Step at any point.
func (c *Controller) SignalCurtailment() {
	c.edgePending.Store(true)
}

// Step runs one iteration of the control loop. It always performs the
// monitor update (edge drain + level stamp); the ramp rules and the
// shutdown latch run only when the tick gate admits, i.e. at least
// MinUpdateInterval after the previous admitted tick. The bool result
// reports admission.
//
// Exactly one of step-down, step-up, or hold applies per admitted tick,
// in that priority order, and the duty is clamped unconditionally after.
func (c *Controller) Step(now time.Time, levelActive bool) (Command, bool) {
	// Monitor: a latched edge or an active level both mean curtailment is
	// happening right now. Stamp once; the timestamp only ever advances.
	if c.edgePending.Swap(false) || levelActive {
		if now.After(c.lastCurtailment) {
			c.lastCurtailment = now
		}
	}

	// Tick gate.
	if now.Sub(c.lastTick) < c.cfg.MinUpdateInterval {
		return Command{}, false
	}
	c.lastTick = now

	age := now.Sub(c.lastCurtailment)
	prevDuty := c.duty

	action := ActionHold
	switch {
	case age > c.cfg.CurtailmentTimeout:
		// Curtailment gone stale: demand is at or above supply. React
		// immediately, rate-limited only by the tick gate itself.
		c.duty -= c.cfg.StepSize * c.cfg.StepDownAggression
		action = ActionStepDown
	case now.Sub(c.lastStepUp) > c.cfg.StepUpDelay:
		// Headroom exists; exploit it cautiously.
		c.duty += c.cfg.StepSize * c.cfg.StepUpAggression
		c.lastStepUp = now
		action = ActionStepUp
	}

	// Clamp every tick, whichever rule fired.
	if c.duty < c.cfg.MinDuty {
		c.duty = c.cfg.MinDuty
	}
	if c.duty > c.cfg.MaxDuty {
		c.duty = c.cfg.MaxDuty
	}

	cmd := Command{
		Time:           now,
		Action:         action,
		Duty:           c.duty,
		DutyChanged:    c.duty != prevDuty,
		CurtailmentAge: age,
		InverterOn:     c.inverterOn,
	}

	// Shutdown latch: independent of the step rules, and one-way.
	// Re-enabling requires a restart.
	if c.inverterOn && age > c.cfg.ShutdownTimeout {
		c.inverterOn = false
		cmd.InverterOn = false
		cmd.InverterTripped = true
	}

	switch action {
	case ActionStepUp:
		c.counts.StepUps++
	case ActionStepDown:
		c.counts.StepDowns++
	default:
		c.counts.Holds++
	}
	if cmd.InverterTripped {
		c.counts.InverterTrips++
	}

	return cmd, true
}

// Duty returns the current commanded duty.
func (c *Controller) Duty() int {
	return c.duty
}

// InverterOn reports the state of the inverter enable latch.
func (c *Controller) InverterOn() bool {
	return c.inverterOn
}

// CountsSnapshot returns a copy of the tick outcome counters.
func (c *Controller) CountsSnapshot() Counters {
	return c.counts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since
// the last heartbeat (or startup). Returns nil if the interval has not
// elapsed or if interval is <= 0 (disabled).
func (c *Controller) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if now.Sub(c.lastHeartbeat) < interval {
		return nil
	}

	c.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(c.startTime),
		Duty:      c.duty,
		Counts:    c.CountsSnapshot(),
	}
}
