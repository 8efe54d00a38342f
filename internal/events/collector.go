package events

import (
	"time"

	"github.com/sweeney/keypad-sensor/internal/keypad"
)

// Source is the part of the keypad the collector queries when notified.
// The listener only carries a character, so state and slot are looked up.
type Source interface {
	FindByChar(ch rune) int
	Key(idx int) (keypad.Key, error)
}

// Collector records keypad transitions between drains.
type Collector struct {
	src           Source
	passTime      time.Time
	pending       []Event
	counts        Counts
	startTime     time.Time
	lastHeartbeat time.Time
}

// NewCollector creates a collector reading slot details from src.
// The startTime is used for calculating uptime in heartbeat events.
func NewCollector(src Source, startTime time.Time) *Collector {
	return &Collector{
		src:           src,
		passTime:      startTime,
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Mark sets the timestamp for events recorded by the next pass.
func (c *Collector) Mark(t time.Time) {
	c.passTime = t
}

// OnKey is a keypad.Listener. Register it with AddEventListener.
func (c *Collector) OnKey(ch rune) {
	idx := c.src.FindByChar(ch)
	if idx < 0 {
		return
	}
	key, err := c.src.Key(idx)
	if err != nil {
		return
	}

	c.pending = append(c.pending, Event{
		Timestamp: c.passTime,
		Key:       key.Char,
		Code:      key.Code,
		Slot:      idx,
		State:     key.State,
	})

	switch key.State {
	case keypad.Pressed:
		c.counts.Pressed++
	case keypad.Hold:
		c.counts.Hold++
	case keypad.Released:
		c.counts.Released++
	}
}

// Drain returns the events recorded since the last drain, oldest first.
func (c *Collector) Drain() []Event {
	events := c.pending
	c.pending = nil
	return events
}

// CountsSnapshot returns the transition counts since startup.
func (c *Collector) CountsSnapshot() Counts {
	return c.counts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed or
// if interval is <= 0 (disabled).
func (c *Collector) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
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
		Counts:    c.counts,
	}
}
