// Package status provides a thread-safe status tracker for the
// charge-limiter daemon. It is read by the HTTP handlers and feeds the
// MQTT status snapshots.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/charge-limiter/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	PollMs      int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	MinDuty     int
	MaxDuty     int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type — safe to use after the lock is released.
type Snapshot struct {
	Duty              int
	ApproxAmps        float64
	CurtailmentActive bool
	CurtailmentAge    time.Duration
	InverterOn        bool
	Counts            logic.Counters
	StartTime         time.Time
	Now               time.Time
	MQTTConnected     bool
	Config            Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
// The inverter starts enabled, matching the controller.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime:  startTime,
			InverterOn: true,
			Config:     cfg,
		},
	}
}

// Update sets the controller state. Called from the run loop on every
// admitted tick.
func (t *Tracker) Update(duty int, amps float64, curtailActive bool, curtailAge time.Duration, inverterOn bool, counts logic.Counters) {
	t.mu.Lock()
	t.snap.Duty = duty
	t.snap.ApproxAmps = amps
	t.snap.CurtailmentActive = curtailActive
	t.snap.CurtailmentAge = curtailAge
	t.snap.InverterOn = inverterOn
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
