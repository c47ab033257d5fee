package main

import (
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/charge-limiter/internal/gpio"
	"github.com/sweeney/charge-limiter/internal/logic"
	"github.com/sweeney/charge-limiter/internal/mqtt"
	"github.com/sweeney/charge-limiter/internal/status"
)

func TestLevelString(t *testing.T) {
	if levelString(true) != "ACTIVE" {
		t.Errorf("levelString(true): got %q", levelString(true))
	}
	if levelString(false) != "IDLE" {
		t.Errorf("levelString(false): got %q", levelString(false))
	}
}

func TestEventsFor(t *testing.T) {
	cfg := logic.DefaultConfig()
	ts := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		cmd  logic.Command
		want []logic.EventType
	}{
		{
			name: "hold produces nothing",
			cmd:  logic.Command{Time: ts, Action: logic.ActionHold, Duty: 27, InverterOn: true},
			want: nil,
		},
		{
			name: "step-up",
			cmd:  logic.Command{Time: ts, Action: logic.ActionStepUp, Duty: 27, DutyChanged: true, InverterOn: true},
			want: []logic.EventType{logic.EventStepUp},
		},
		{
			name: "step-down",
			cmd:  logic.Command{Time: ts, Action: logic.ActionStepDown, Duty: 25, DutyChanged: true, InverterOn: true},
			want: []logic.EventType{logic.EventStepDown},
		},
		{
			name: "step-down absorbed by clamp",
			cmd:  logic.Command{Time: ts, Action: logic.ActionStepDown, Duty: 25, DutyChanged: false, InverterOn: true},
			want: nil,
		},
		{
			name: "initial clamp is not a step",
			cmd:  logic.Command{Time: ts, Action: logic.ActionHold, Duty: 25, DutyChanged: true, InverterOn: true},
			want: nil,
		},
		{
			name: "trip alone",
			cmd:  logic.Command{Time: ts, Action: logic.ActionStepDown, Duty: 25, InverterTripped: true},
			want: []logic.EventType{logic.EventInverterOff},
		},
		{
			name: "step-down and trip on the same tick",
			cmd:  logic.Command{Time: ts, Action: logic.ActionStepDown, Duty: 23, DutyChanged: true, InverterTripped: true},
			want: []logic.EventType{logic.EventStepDown, logic.EventInverterOff},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := eventsFor(tt.cmd, cfg)
			if len(events) != len(tt.want) {
				t.Fatalf("got %d events, want %d", len(events), len(tt.want))
			}
			for i, w := range tt.want {
				if events[i].Type != w {
					t.Errorf("event %d: got %s, want %s", i, events[i].Type, w)
				}
				if events[i].Duty != tt.cmd.Duty {
					t.Errorf("event %d: duty %d, want %d", i, events[i].Duty, tt.cmd.Duty)
				}
			}
		})
	}
}

// fakeClock returns a clock that advances by step on every call.
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(step)
		return t
	}
}

// faultCurtailment wraps a FakeCurtailment and returns errors for a range
// of Level() calls. The fault range is fixed at construction.
type faultCurtailment struct {
	inner      *gpio.FakeCurtailment
	call       int
	faultStart int // first call index that returns error (inclusive)
	faultEnd   int // last call index that returns error (exclusive)
}

func (c *faultCurtailment) Level() (bool, error) {
	i := c.call
	c.call++
	if i >= c.faultStart && i < c.faultEnd {
		return false, errors.New("gpio fault")
	}
	return c.inner.Level()
}

func (c *faultCurtailment) Close() error { return c.inner.Close() }

func repeat(level bool, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = level
	}
	return out
}

// runRunLoop drives runLoop with the given fakes, sending nTicks ticks
// followed by a signal, and returns the loop's error.
func runRunLoop(t *testing.T, ctl *logic.Controller, curtail gpio.Curtailment, charger gpio.Charger, pub *mqtt.FakePublisher, tracker *status.Tracker, heartbeat time.Duration, clock func() time.Time, nTicks int, signal os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(ctl, logic.DefaultConfig(), curtail, charger, pub, pub, tracker, heartbeat, clock, tick, sig)
	}()

	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	sig <- signal

	return <-errCh
}

func TestRunLoopAppliesDuty(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	ctl := logic.NewController(logic.DefaultConfig(), start)
	curtail := gpio.NewFakeCurtailment(repeat(true, 4))
	charger := gpio.NewFakeCharger()
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(start, 250*time.Millisecond)

	err := runRunLoop(t, ctl, curtail, charger, pub, nil, 0, clock, 4, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	// Every tick is admitted at a 250ms clock step; each writes the duty.
	if len(charger.Duties) != 4 {
		t.Fatalf("expected 4 duty writes, got %d", len(charger.Duties))
	}
	for i, d := range charger.Duties {
		if d != 25 {
			t.Errorf("write %d: duty %d, want 25 (clamped to MinDuty)", i, d)
		}
	}
	// The inverter is driven only on a trip, and none happened.
	if len(charger.InverterWrites) != 0 {
		t.Errorf("expected no inverter writes, got %v", charger.InverterWrites)
	}
}

func TestRunLoopTickGatePacesWrites(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	ctl := logic.NewController(logic.DefaultConfig(), start)
	curtail := gpio.NewFakeCurtailment(repeat(true, 10))
	charger := gpio.NewFakeCharger()
	pub := mqtt.NewFakePublisher()
	// 100ms clock step: only every 250ms boundary admits.
	clock := fakeClock(start, 100*time.Millisecond)

	err := runRunLoop(t, ctl, curtail, charger, pub, nil, 0, clock, 10, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	// Ticks at 100..1000ms; admissions at 300, 600, 900ms.
	if len(charger.Duties) != 3 {
		t.Errorf("expected 3 admitted ticks, got %d duty writes", len(charger.Duties))
	}
}

func TestRunLoopStepUpEvent(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	ctl := logic.NewController(logic.DefaultConfig(), start)
	curtail := gpio.NewFakeCurtailment(repeat(true, 25))
	charger := gpio.NewFakeCharger()
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(start, 250*time.Millisecond)

	// 25 ticks at 250ms = 6.25s; one step-up due shortly after 5s.
	err := runRunLoop(t, ctl, curtail, charger, pub, nil, 0, clock, 25, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.Events) != 1 {
		t.Fatalf("expected 1 limiter event, got %d", len(pub.Events))
	}
	if pub.Events[0].Type != logic.EventStepUp {
		t.Errorf("expected STEP_UP, got %s", pub.Events[0].Type)
	}
	if pub.Events[0].Duty != 27 {
		t.Errorf("step-up duty: got %d, want 27", pub.Events[0].Duty)
	}
	if charger.LastDuty() != 27 {
		t.Errorf("last written duty: got %d, want 27", charger.LastDuty())
	}
}

func TestRunLoopInverterTrip(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	ctl := logic.NewController(logic.DefaultConfig(), start)
	curtail := gpio.NewFakeCurtailment(repeat(false, 4))
	charger := gpio.NewFakeCharger()
	pub := mqtt.NewFakePublisher()
	// 30s clock step: curtailment goes stale fast, trip on the third tick.
	clock := fakeClock(start, 30*time.Second)

	err := runRunLoop(t, ctl, curtail, charger, pub, nil, 0, clock, 4, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(charger.InverterWrites) != 1 {
		t.Fatalf("expected 1 inverter write, got %v", charger.InverterWrites)
	}
	if charger.InverterWrites[0] != false {
		t.Error("inverter should be driven off on trip")
	}

	var trips int
	for _, e := range pub.Events {
		if e.Type == logic.EventInverterOff {
			trips++
		}
	}
	if trips != 1 {
		t.Errorf("expected 1 INVERTER_OFF event, got %d", trips)
	}
}

func TestRunLoopShutdownEvent(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	ctl := logic.NewController(logic.DefaultConfig(), start)
	curtail := gpio.NewFakeCurtailment(repeat(false, 1))
	charger := gpio.NewFakeCharger()
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(start, 250*time.Millisecond)

	err := runRunLoop(t, ctl, curtail, charger, pub, nil, 0, clock, 1, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(pub.SystemEvents))
	}
	se := pub.SystemEvents[0]
	if se.Event != "SHUTDOWN" {
		t.Errorf("expected SHUTDOWN event, got %q", se.Event)
	}
	if se.Reason != "SIGTERM" {
		t.Errorf("expected reason SIGTERM, got %q", se.Reason)
	}
	if !se.Retained {
		t.Error("shutdown event should be retained")
	}
}

func TestRunLoopReadError(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	ctl := logic.NewController(logic.DefaultConfig(), start)
	// 2 valid reads then 2 faults. Loop should continue past errors
	// and still publish SHUTDOWN.
	curtail := &faultCurtailment{
		inner:      gpio.NewFakeCurtailment(repeat(true, 2)),
		faultStart: 2,
		faultEnd:   4,
	}
	charger := gpio.NewFakeCharger()
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(start, 250*time.Millisecond)

	err := runRunLoop(t, ctl, curtail, charger, pub, nil, 0, clock, 4, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	// Faulted iterations skip the controller entirely.
	if len(charger.Duties) != 2 {
		t.Errorf("expected 2 duty writes, got %d", len(charger.Duties))
	}

	found := false
	for _, se := range pub.SystemEvents {
		if se.Event == "SHUTDOWN" {
			found = true
		}
	}
	if !found {
		t.Error("expected SHUTDOWN system event after read errors")
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	ctl := logic.NewController(logic.DefaultConfig(), start)
	curtail := gpio.NewFakeCurtailment(repeat(true, 8))
	charger := gpio.NewFakeCharger()
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(start, 250*time.Millisecond)

	// 8 ticks at 250ms with a 1s heartbeat: heartbeats at 1s and 2s.
	err := runRunLoop(t, ctl, curtail, charger, pub, nil, time.Second, clock, 8, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	var heartbeats int
	for _, se := range pub.SystemEvents {
		if se.Event == "HEARTBEAT" {
			heartbeats++
		}
	}
	if heartbeats != 2 {
		t.Errorf("expected 2 HEARTBEAT events, got %d", heartbeats)
	}
}

func TestRunLoopUpdatesTracker(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	cfg := logic.DefaultConfig()
	ctl := logic.NewController(cfg, start)
	curtail := gpio.NewFakeCurtailment(repeat(true, 4))
	charger := gpio.NewFakeCharger()
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	tracker := status.NewTracker(start, status.Config{MinDuty: cfg.MinDuty, MaxDuty: cfg.MaxDuty})
	clock := fakeClock(start, 250*time.Millisecond)

	err := runRunLoop(t, ctl, curtail, charger, pub, tracker, 0, clock, 4, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	snap := tracker.Snapshot()
	if snap.Duty != 25 {
		t.Errorf("tracker duty: got %d, want 25", snap.Duty)
	}
	if !snap.CurtailmentActive {
		t.Error("tracker should show curtailment active")
	}
	if !snap.MQTTConnected {
		t.Error("tracker should show MQTT connected")
	}
	if !snap.InverterOn {
		t.Error("tracker should show inverter enabled")
	}
}
