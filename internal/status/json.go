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
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Keys          []KeyJSON    `json:"keys"`
	RemoteKeys    int          `json:"remote_keys"`
	Entry         string       `json:"entry"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// KeyJSON is the JSON representation of one active key.
type KeyJSON struct {
	Slot  int    `json:"slot"`
	Key   string `json:"key"`
	Code  int    `json:"code"`
	State string `json:"state"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of transition counts.
type CountsJSON struct {
	Pressed  int `json:"pressed"`
	Hold     int `json:"hold"`
	Released int `json:"released"`
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
	Rows        int    `json:"rows"`
	Columns     int    `json:"columns"`
	Keymap      string `json:"keymap"`
	PollMs      int64  `json:"poll_ms"`
	DebounceMs  int64  `json:"debounce_ms"`
	HoldMs      int64  `json:"hold_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPPort    string `json:"http_port"`
	GPIO        string `json:"gpio"`
}

func buildInner(snap Snapshot) StatusInner {
	keys := make([]KeyJSON, 0, len(snap.Keys))
	for _, k := range snap.Keys {
		keys = append(keys, KeyJSON{
			Slot:  k.Slot,
			Key:   string(k.Key),
			Code:  k.Code,
			State: k.State.String(),
		})
	}

	inner := StatusInner{
		Keys:          keys,
		RemoteKeys:    snap.RemoteKeys,
		Entry:         snap.Entry,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Pressed:  snap.Counts.Pressed,
			Hold:     snap.Counts.Hold,
			Released: snap.Counts.Released,
		},
		Config: ConfigJSON{
			Rows:        snap.Config.Rows,
			Columns:     snap.Config.Columns,
			Keymap:      snap.Config.Keymap,
			PollMs:      snap.Config.PollMs,
			DebounceMs:  snap.Config.DebounceMs,
			HoldMs:      snap.Config.HoldMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPPort:    snap.Config.HTTPPort,
			GPIO:        snap.Config.GPIO,
		},
	}

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
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
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
