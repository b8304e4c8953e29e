package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/plant-waterer/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event                 string       `json:"event,omitempty"`
	Reason                string       `json:"reason,omitempty"`
	Mode                  string       `json:"mode"`
	IntervalMinutes       uint16       `json:"interval_minutes"`
	AmountML              uint16       `json:"amount_ml"`
	ManualTriggerPending  bool         `json:"manual_trigger_pending"`
	Watering              string       `json:"watering"`
	LastWateredAt         string       `json:"last_watered_at,omitempty"`
	NextWateringAt        string       `json:"next_watering_at,omitempty"`
	TimeSinceLastWatering uint32       `json:"time_since_last_watering"`
	TimeUntilNextWatering uint32       `json:"time_until_next_watering"`
	UptimeSeconds         int64        `json:"uptime_seconds"`
	StartTime             string       `json:"start_time"`
	Timestamp             string       `json:"timestamp"`
	MQTT                  MQTTStatus   `json:"mqtt"`
	Counts                CountsJSON   `json:"counts"`
	Network               *NetworkJSON `json:"network,omitempty"`
	Config                ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of activity counts.
type CountsJSON struct {
	Cycles         int `json:"cycles"`
	DriverFailures int `json:"driver_failures"`
	RejectedWrites int `json:"rejected_writes"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs      int64  `json:"tick_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	PumpPin     int    `json:"pump_pin"`
	ActiveLow   bool   `json:"active_low"`
	Broker      string `json:"broker"`
	TopicPrefix string `json:"topic_prefix"`
	HTTPAddr    string `json:"http_addr"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	return StatusInner{
		Mode:                  snap.Settings.Mode.String(),
		IntervalMinutes:       snap.Settings.IntervalMinutes,
		AmountML:              snap.Settings.AmountML,
		ManualTriggerPending:  snap.TriggerPending,
		Watering:              string(logic.StateOf(snap.Watering)),
		LastWateredAt:         formatTime(snap.LastWateredAt),
		NextWateringAt:        formatTime(snap.NextWateringAt),
		TimeSinceLastWatering: snap.SecondsSinceLastWatering(),
		TimeUntilNextWatering: snap.SecondsUntilNextWatering(),
		UptimeSeconds:         int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:             formatTime(snap.StartTime),
		Timestamp:             formatTime(snap.Now),
		MQTT:                  MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Cycles:         snap.Counts.Cycles,
			DriverFailures: snap.Counts.DriverFailures,
			RejectedWrites: snap.Counts.RejectedWrites,
		},
		Config: ConfigJSON{
			TickMs:      snap.Config.TickMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			PumpPin:     snap.Config.PumpPin,
			ActiveLow:   snap.Config.ActiveLow,
			Broker:      snap.Config.Broker,
			TopicPrefix: snap.Config.TopicPrefix,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
