package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string          `json:"event,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Duty          int             `json:"duty"`
	ApproxAmps    float64         `json:"approx_amps"`
	Curtailment   CurtailmentJSON `json:"curtailment"`
	Inverter      string          `json:"inverter"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	StartTime     string          `json:"start_time"`
	Timestamp     string          `json:"timestamp"`
	MQTT          MQTTStatus      `json:"mqtt"`
	Counts        CountsJSON      `json:"tick_counts"`
	Config        ConfigJSON      `json:"config"`
}

// CurtailmentJSON reports curtailment recency.
type CurtailmentJSON struct {
	Active bool  `json:"active"`
	AgeMs  int64 `json:"age_ms"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of tick outcome counters.
type CountsJSON struct {
	StepUps       int `json:"step_ups"`
	StepDowns     int `json:"step_downs"`
	Holds         int `json:"holds"`
	InverterTrips int `json:"inverter_trips"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs      int64  `json:"poll_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	MinDuty     int    `json:"min_duty"`
	MaxDuty     int    `json:"max_duty"`
}

func buildInner(snap Snapshot) StatusInner {
	inverter := "ENABLED"
	if !snap.InverterOn {
		inverter = "TRIPPED"
	}

	return StatusInner{
		Duty:       snap.Duty,
		ApproxAmps: snap.ApproxAmps,
		Curtailment: CurtailmentJSON{
			Active: snap.CurtailmentActive,
			AgeMs:  snap.CurtailmentAge.Milliseconds(),
		},
		Inverter:      inverter,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			StepUps:       snap.Counts.StepUps,
			StepDowns:     snap.Counts.StepDowns,
			Holds:         snap.Counts.Holds,
			InverterTrips: snap.Counts.InverterTrips,
		},
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			MinDuty:     snap.Config.MinDuty,
			MaxDuty:     snap.Config.MaxDuty,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
