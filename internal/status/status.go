// Package status provides a thread-safe status tracker for the keypad-sensor daemon.
// It is read by HTTP handlers and used for MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/keypad-sensor/internal/events"
	"github.com/sweeney/keypad-sensor/internal/keypad"
)

// NetworkInfo contains network state.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Rows        int
	Columns     int
	Keymap      string
	PollMs      int64
	DebounceMs  int64
	HoldMs      int64
	HeartbeatMs int64
	Broker      string
	HTTPPort    string
	GPIO        string
}

// ActiveKey is one occupied slot of the keypad's active-key list.
type ActiveKey struct {
	Slot  int
	Key   rune
	Code  int
	State keypad.State
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Keys          []ActiveKey
	Counts        events.Counts
	RemoteKeys    int
	Entry         string
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// ActiveKeys returns the occupied slots of a key list in slot order.
func ActiveKeys(keys [keypad.ListMax]keypad.Key) []ActiveKey {
	var out []ActiveKey
	for i, k := range keys {
		if k.Free() {
			continue
		}
		out = append(out, ActiveKey{Slot: i, Key: k.Char, Code: k.Code, State: k.State})
	}
	return out
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets the active keys and transition counts.
// Called from runLoop after every accepted scan.
func (t *Tracker) Update(keys []ActiveKey, counts events.Counts) {
	t.mu.Lock()
	t.snap.Keys = keys
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetRemoteKeys sets the number of keys currently held by remote commands.
func (t *Tracker) SetRemoteKeys(n int) {
	t.mu.Lock()
	t.snap.RemoteKeys = n
	t.mu.Unlock()
}

// SetEntry sets the text typed so far on the entry line.
func (t *Tracker) SetEntry(text string) {
	t.mu.Lock()
	t.snap.Entry = text
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Keys = append([]ActiveKey(nil), t.snap.Keys...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
