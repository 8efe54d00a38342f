// Package events turns keypad listener callbacks into timestamped events.
// This package has no I/O. Time is always injected via time.Time parameters.
package events

import (
	"time"

	"github.com/sweeney/keypad-sensor/internal/keypad"
)

// Event is one key transition to be published.
type Event struct {
	Timestamp time.Time
	Key       rune
	Code      int
	Slot      int
	State     keypad.State
}

// Counts tracks the number of transitions of each kind since startup.
type Counts struct {
	Pressed  int
	Hold     int
	Released int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    Counts
}
