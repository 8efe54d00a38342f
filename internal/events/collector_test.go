package events

import (
	"testing"
	"time"

	"github.com/sweeney/keypad-sensor/internal/gpio"
	"github.com/sweeney/keypad-sensor/internal/keypad"
)

func setupKeypad(t *testing.T) (*keypad.Keypad, *gpio.FakeMatrix) {
	t.Helper()
	rows, cols := []int{5, 6, 13, 19}, []int{12, 16, 20, 21}
	m := gpio.NewFakeMatrix(rows, cols)
	kp, err := keypad.New(keypad.Config{
		Rows:       4,
		Columns:    4,
		RowPins:    rows,
		ColumnPins: cols,
		Keymap:     "123A456B789C*0#D",
	}, m)
	if err != nil {
		t.Fatalf("keypad.New: %v", err)
	}
	return kp, m
}

func TestCollectorRecordsTransitions(t *testing.T) {
	kp, _ := setupKeypad(t)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewCollector(kp, start)
	kp.AddEventListener(c.OnKey)

	down := keypad.NewBitmap(4)
	down.Set(0, 3, true) // 'A'
	up := keypad.NewBitmap(4)

	steps := []struct {
		bm   keypad.Bitmap
		want keypad.State
	}{
		{down, keypad.Pressed},
		{up, keypad.Released},
		{up, keypad.Idle},
	}

	for i, step := range steps {
		at := start.Add(time.Duration(i+1) * 20 * time.Millisecond)
		c.Mark(at)
		kp.Update(step.bm, at)

		events := c.Drain()
		if len(events) != 1 {
			t.Fatalf("pass %d: expected 1 event, got %d", i, len(events))
		}
		e := events[0]
		if e.Key != 'A' || e.Code != 3 || e.Slot != 0 {
			t.Errorf("pass %d: unexpected event %+v", i, e)
		}
		if e.State != step.want {
			t.Errorf("pass %d: expected %s, got %s", i, step.want, e.State)
		}
		if !e.Timestamp.Equal(at) {
			t.Errorf("pass %d: expected timestamp %v, got %v", i, at, e.Timestamp)
		}
	}

	counts := c.CountsSnapshot()
	if counts != (Counts{Pressed: 1, Released: 1}) {
		t.Errorf("unexpected counts: %+v", counts)
	}
}

func TestCollectorMultipleKeysInOnePass(t *testing.T) {
	kp, _ := setupKeypad(t)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewCollector(kp, start)
	kp.AddEventListener(c.OnKey)

	bm := keypad.NewBitmap(4)
	bm.Set(0, 0, true) // '1'
	bm.Set(3, 2, true) // '#'
	c.Mark(start)
	kp.Update(bm, start)

	events := c.Drain()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Key != '1' || events[0].Slot != 0 {
		t.Errorf("event 0: expected '1' in slot 0, got %q in slot %d", events[0].Key, events[0].Slot)
	}
	if events[1].Key != '#' || events[1].Slot != 1 {
		t.Errorf("event 1: expected '#' in slot 1, got %q in slot %d", events[1].Key, events[1].Slot)
	}

	if again := c.Drain(); again != nil {
		t.Errorf("expected nil from second drain, got %d events", len(again))
	}
}

func TestCollectorCountsHold(t *testing.T) {
	kp, _ := setupKeypad(t)
	kp.SetHoldTime(50 * time.Millisecond)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewCollector(kp, start)
	kp.AddEventListener(c.OnKey)

	bm := keypad.NewBitmap(4)
	bm.Set(2, 2, true)
	for i := 0; i < 6; i++ {
		at := start.Add(time.Duration(i) * 20 * time.Millisecond)
		c.Mark(at)
		kp.Update(bm, at)
	}

	if got := c.CountsSnapshot(); got != (Counts{Pressed: 1, Hold: 1}) {
		t.Errorf("unexpected counts: %+v", got)
	}
}

func TestCollectorIgnoresUnknownKey(t *testing.T) {
	kp, _ := setupKeypad(t)
	c := NewCollector(kp, time.Now())

	c.OnKey('Z')
	if events := c.Drain(); len(events) != 0 {
		t.Errorf("expected no events for a key not on the list, got %d", len(events))
	}
}

func TestCheckHeartbeat(t *testing.T) {
	kp, _ := setupKeypad(t)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewCollector(kp, start)

	if hb := c.CheckHeartbeat(start.Add(10*time.Minute), 15*time.Minute); hb != nil {
		t.Error("expected no heartbeat before interval")
	}

	hb := c.CheckHeartbeat(start.Add(15*time.Minute), 15*time.Minute)
	if hb == nil {
		t.Fatal("expected heartbeat at interval")
	}
	if hb.Uptime != 15*time.Minute {
		t.Errorf("expected uptime 15m, got %v", hb.Uptime)
	}

	if hb := c.CheckHeartbeat(start.Add(20*time.Minute), 15*time.Minute); hb != nil {
		t.Error("expected no heartbeat 5m after the last one")
	}
	if hb := c.CheckHeartbeat(start.Add(30*time.Minute), 15*time.Minute); hb == nil {
		t.Error("expected second heartbeat")
	}
}

func TestCheckHeartbeatDisabled(t *testing.T) {
	kp, _ := setupKeypad(t)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewCollector(kp, start)

	for _, interval := range []time.Duration{0, -time.Minute} {
		if hb := c.CheckHeartbeat(start.Add(24*time.Hour), interval); hb != nil {
			t.Errorf("interval %v: expected heartbeat disabled", interval)
		}
	}
}
