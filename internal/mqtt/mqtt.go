// Package mqtt provides MQTT publishing and command subscription with
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/keypad-sensor/internal/events"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "keypad/sensor"

// DefaultDisplayTopic is where submitted entry lines are sent. An OLED
// display node subscribes to it and renders the text.
const DefaultDisplayTopic = "oled/text"

// Topics names every topic the daemon uses.
type Topics struct {
	Events  string // key transitions
	System  string // lifecycle events
	Command string // inbound remote key commands
	Display string // entry lines; empty disables
}

// NewTopics derives the topic set from a prefix.
func NewTopics(prefix, display string) Topics {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{
		Events:  prefix + "/events",
		System:  prefix + "/system",
		Command: prefix + "/command",
		Display: display,
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a key event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event events.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// PublishText sends a line of text to the display topic.
	PublishText(text string) error

	// Close disconnects from the broker.
	Close() error
}

// Subscriber delivers inbound messages for a topic.
type Subscriber interface {
	// Subscribe registers handler for topic. Subscriptions survive reconnects.
	Subscribe(topic string, handler func(payload []byte)) error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Keypad KeyPayload `json:"keypad"`
}

// KeyPayload contains the key event details.
type KeyPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Key       string `json:"key"`
	Code      int    `json:"code"`
	Slot      int    `json:"slot"`
}

// FormatPayload creates the JSON payload for a key event.
func FormatPayload(event events.Event) ([]byte, error) {
	payload := Payload{
		Keypad: KeyPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
			Event:     event.State.String(),
			Key:       string(event.Key),
			Code:      event.Code,
			Slot:      event.Slot,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
