package keypad

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/sweeney/keypad-sensor/internal/gpio"
)

var (
	testRowPins = []int{5, 6, 13, 19}
	testColPins = []int{12, 16, 20, 21}
)

const testKeymap = "123A456B789C*0#D"

func testConfig() Config {
	return Config{
		Rows:       4,
		Columns:    4,
		RowPins:    testRowPins,
		ColumnPins: testColPins,
		Keymap:     testKeymap,
	}
}

func newTestKeypad(t *testing.T) (*Keypad, *gpio.FakeMatrix) {
	t.Helper()
	m := gpio.NewFakeMatrix(testRowPins, testColPins)
	k, err := New(testConfig(), m)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return k, m
}

// passes returns successive pass times step apart starting at start.
func passes(start time.Time, step time.Duration, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * step)
	}
	return out
}

func bitmapWith(rows int, keys ...[2]int) Bitmap {
	bm := NewBitmap(rows)
	for _, k := range keys {
		bm.Set(k[0], k[1], true)
	}
	return bm
}

func TestNewDefaults(t *testing.T) {
	k, _ := newTestKeypad(t)
	if k.debounce != 10*time.Millisecond {
		t.Errorf("expected debounce 10ms, got %v", k.debounce)
	}
	if k.hold != 500*time.Millisecond {
		t.Errorf("expected hold 500ms, got %v", k.hold)
	}
	if k.NumKeys() != ListMax {
		t.Errorf("expected NumKeys %d, got %d", ListMax, k.NumKeys())
	}
	if k.ActiveCount() != 0 {
		t.Errorf("expected empty list, got %d active", k.ActiveCount())
	}
	for i, key := range k.Keys() {
		if !key.Free() || key.Code != -1 || key.State != Idle || key.Changed {
			t.Errorf("slot %d: expected free slot, got %+v", i, key)
		}
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Config)
	}{
		{"keymap too short", func(c *Config) { c.Keymap = "123" }},
		{"keymap too long", func(c *Config) { c.Keymap = testKeymap + "E" }},
		{"keymap contains NUL", func(c *Config) { c.Keymap = "123A456B789C*0#\x00" }},
		{"keymap repeats a character", func(c *Config) { c.Keymap = "123A456B789C*0#1" }},
		{"zero rows", func(c *Config) { c.Rows = 0 }},
		{"row pin count", func(c *Config) { c.RowPins = c.RowPins[:3] }},
		{"column pin count", func(c *Config) { c.ColumnPins = []int{12} }},
		{"duplicate pin", func(c *Config) { c.ColumnPins = []int{12, 16, 20, 5} }},
		{"too many columns", func(c *Config) {
			c.Rows = 1
			c.Columns = 33
			c.RowPins = []int{100}
			c.ColumnPins = make([]int, 33)
			for i := range c.ColumnPins {
				c.ColumnPins[i] = i
			}
			c.Keymap = "abcdefghijklmnopqrstuvwxyzABCDEFG"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mod(&cfg)
			_, err := New(cfg, gpio.NewFakeMatrix(cfg.RowPins, cfg.ColumnPins))
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestMultiByteKeymap(t *testing.T) {
	cfg := Config{Rows: 1, Columns: 2, RowPins: []int{1}, ColumnPins: []int{2, 3}, Keymap: "↑↓"}
	k, err := New(cfg, gpio.NewFakeMatrix(cfg.RowPins, cfg.ColumnPins))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if k.Char(1) != '↓' {
		t.Errorf("expected '↓' at code 1, got %q", k.Char(1))
	}
}

func TestPressHoldOffRelease(t *testing.T) {
	k, _ := newTestKeypad(t)
	times := passes(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), 20*time.Millisecond, 6)
	down := bitmapWith(4, [2]int{0, 0})
	up := NewBitmap(4)

	type want struct {
		state   State
		changed bool
		active  bool
	}
	steps := []struct {
		bm   Bitmap
		want want
	}{
		{down, want{Pressed, true, true}},
		{down, want{Pressed, false, false}},
		{down, want{Pressed, false, false}},
		{up, want{Released, true, true}},
		{up, want{Idle, true, true}},
	}

	for i, step := range steps {
		active := k.Update(step.bm, times[i])
		key := k.Keys()[0]
		if key.Char != '1' || key.Code != 0 {
			t.Fatalf("pass %d: expected key '1' code 0 in slot 0, got %q code %d", i+1, key.Char, key.Code)
		}
		if key.State != step.want.state || key.Changed != step.want.changed {
			t.Errorf("pass %d: expected %s(changed=%v), got %s(changed=%v)",
				i+1, step.want.state, step.want.changed, key.State, key.Changed)
		}
		if active != step.want.active {
			t.Errorf("pass %d: expected activity %v, got %v", i+1, step.want.active, active)
		}
	}

	// Next pass sweeps the IDLE slot.
	if k.Update(up, times[5]) {
		t.Error("expected no activity once the slot is swept")
	}
	if !k.Keys()[0].Free() {
		t.Errorf("expected slot 0 freed, got %+v", k.Keys()[0])
	}
	if k.ActiveCount() != 0 {
		t.Errorf("expected no active keys, got %d", k.ActiveCount())
	}
}

func TestDebounceIntervalRejectsEarlyPass(t *testing.T) {
	k, _ := newTestKeypad(t)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	k.Update(bitmapWith(4, [2]int{1, 1}), start)
	before := k.Keys()

	// 5ms later: inside the 10ms debounce interval.
	if k.Update(bitmapWith(4, [2]int{2, 2}), start.Add(5*time.Millisecond)) {
		t.Error("expected no activity for a pass within the debounce interval")
	}
	if !reflect.DeepEqual(before, k.Keys()) {
		t.Errorf("list changed on rejected pass:\nbefore %+v\nafter  %+v", before, k.Keys())
	}
	if !k.lastScan.Equal(start) {
		t.Errorf("rejected pass moved lastScan to %v", k.lastScan)
	}

	// Exactly at the interval is still too soon.
	if k.Update(NewBitmap(4), start.Add(10*time.Millisecond)) {
		t.Error("expected no activity exactly at the debounce interval")
	}

	if !k.Update(NewBitmap(4), start.Add(11*time.Millisecond)) {
		t.Error("expected the release to register after the interval")
	}
}

func TestSetDebounceTimeFloor(t *testing.T) {
	k, _ := newTestKeypad(t)

	k.SetDebounceTime(0)
	if k.debounce != time.Millisecond {
		t.Errorf("expected debounce floored to 1ms, got %v", k.debounce)
	}
	k.SetDebounceTime(-5 * time.Millisecond)
	if k.debounce != time.Millisecond {
		t.Errorf("expected debounce floored to 1ms, got %v", k.debounce)
	}
	k.SetDebounceTime(25 * time.Millisecond)
	if k.debounce != 25*time.Millisecond {
		t.Errorf("expected 25ms, got %v", k.debounce)
	}
}

func TestHoldFiresOnce(t *testing.T) {
	k, _ := newTestKeypad(t)
	k.SetHoldTime(100 * time.Millisecond)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	down := bitmapWith(4, [2]int{3, 3})

	var holds, presses int
	for i, at := range passes(start, 20*time.Millisecond, 20) {
		k.Update(down, at)
		key := k.Keys()[0]
		if !key.Changed {
			continue
		}
		switch key.State {
		case Pressed:
			presses++
			if i != 0 {
				t.Errorf("pass %d: unexpected PRESSED transition", i)
			}
		case Hold:
			holds++
			// Pressed at 0ms, hold must wait until strictly more than 100ms.
			if elapsed := at.Sub(start); elapsed <= 100*time.Millisecond {
				t.Errorf("HOLD after %v, expected > 100ms", elapsed)
			}
		default:
			t.Errorf("pass %d: unexpected transition to %s", i, key.State)
		}
	}

	if presses != 1 {
		t.Errorf("expected 1 PRESSED transition, got %d", presses)
	}
	if holds != 1 {
		t.Errorf("expected exactly 1 HOLD transition, got %d", holds)
	}
	if k.State() != Hold {
		t.Errorf("expected key still in HOLD, got %s", k.State())
	}
}

func TestReleaseFromHold(t *testing.T) {
	k, _ := newTestKeypad(t)
	k.SetHoldTime(50 * time.Millisecond)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	down := bitmapWith(4, [2]int{0, 1})
	up := NewBitmap(4)

	k.Update(down, start)
	k.Update(down, start.Add(60*time.Millisecond))
	if k.State() != Hold {
		t.Fatalf("expected HOLD, got %s", k.State())
	}

	k.Update(up, start.Add(80*time.Millisecond))
	if k.State() != Released || !k.KeyStateChanged() {
		t.Errorf("expected RELEASED(changed), got %s(changed=%v)", k.State(), k.KeyStateChanged())
	}

	// RELEASED -> IDLE regardless of reading.
	k.Update(down, start.Add(100*time.Millisecond))
	if k.State() != Idle || !k.KeyStateChanged() {
		t.Errorf("expected IDLE(changed), got %s(changed=%v)", k.State(), k.KeyStateChanged())
	}
}

func TestReleaseAfterHoldIntervalGoesStraightToReleased(t *testing.T) {
	k, _ := newTestKeypad(t)
	k.SetHoldTime(50 * time.Millisecond)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	k.Update(bitmapWith(4, [2]int{0, 0}), start)
	if k.State() != Pressed {
		t.Fatalf("expected PRESSED, got %s", k.State())
	}
	// Let go only after the hold interval has elapsed: no HOLD in between.
	k.Update(NewBitmap(4), start.Add(60*time.Millisecond))
	if k.State() != Released || !k.KeyStateChanged() {
		t.Fatalf("expected RELEASED(changed), got %s(changed=%v)", k.State(), k.KeyStateChanged())
	}
	k.Update(NewBitmap(4), start.Add(80*time.Millisecond))
	if k.State() != Idle {
		t.Errorf("expected IDLE on the following pass, got %s", k.State())
	}
}

func TestRepressAfterReleaseTakesNewSlot(t *testing.T) {
	k, _ := newTestKeypad(t)
	times := passes(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), 20*time.Millisecond, 4)
	down := bitmapWith(4, [2]int{0, 0})

	k.Update(down, times[0])
	k.Update(NewBitmap(4), times[1])
	k.Update(down, times[2]) // RELEASED -> IDLE even though pressed
	if k.State() != Idle {
		t.Fatalf("expected IDLE, got %s", k.State())
	}
	k.Update(down, times[3]) // swept, then reallocated
	if k.State() != Pressed || !k.KeyStateChanged() {
		t.Errorf("expected new PRESSED occurrence, got %s(changed=%v)", k.State(), k.KeyStateChanged())
	}
}

func TestNeverPressedKeyNotListed(t *testing.T) {
	k, _ := newTestKeypad(t)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for _, at := range passes(start, 20*time.Millisecond, 10) {
		k.Update(bitmapWith(4, [2]int{2, 1}), at)
	}
	for _, ch := range []rune("123A456B79C*0#D") {
		if idx := k.FindByChar(ch); idx != -1 {
			t.Errorf("key %q never pressed but found in slot %d", ch, idx)
		}
	}
	if idx := k.FindByChar('8'); idx != 0 {
		t.Errorf("expected '8' in slot 0, got %d", idx)
	}
	if idx := k.FindByCode(9); idx != 0 {
		t.Errorf("expected code 9 in slot 0, got %d", idx)
	}
}

func TestListCapacity(t *testing.T) {
	k, _ := newTestKeypad(t)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	// Press 11 keys at once: codes 0..10.
	var all [][2]int
	for code := 0; code <= ListMax; code++ {
		all = append(all, [2]int{code / 4, code % 4})
	}
	k.Update(bitmapWith(4, all...), start)

	if k.ActiveCount() != ListMax {
		t.Fatalf("expected %d active keys, got %d", ListMax, k.ActiveCount())
	}
	dropped := k.keymap[ListMax]
	if idx := k.FindByChar(dropped); idx != -1 {
		t.Errorf("expected %q dropped, found in slot %d", dropped, idx)
	}

	// Release code 0 only; keep the rest (and the dropped key) down.
	held := all[1:]
	k.Update(bitmapWith(4, held...), start.Add(20*time.Millisecond)) // 0: RELEASED
	if idx := k.FindByChar(dropped); idx != -1 {
		t.Errorf("list still full, %q should not be added", dropped)
	}
	k.Update(bitmapWith(4, held...), start.Add(40*time.Millisecond)) // 0: IDLE
	if idx := k.FindByChar(dropped); idx != -1 {
		t.Errorf("slot not swept yet, %q should not be added", dropped)
	}
	k.Update(bitmapWith(4, held...), start.Add(60*time.Millisecond)) // sweep, add

	idx := k.FindByChar(dropped)
	if idx != 0 {
		t.Fatalf("expected %q in freed slot 0, got %d", dropped, idx)
	}
	if key := k.Keys()[0]; key.State != Pressed || !key.Changed {
		t.Errorf("expected PRESSED(changed), got %s(changed=%v)", key.State, key.Changed)
	}
}

func TestSlotOrderIsStable(t *testing.T) {
	k, _ := newTestKeypad(t)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	// 'D' takes slot 0, then '1' takes slot 1.
	k.Update(bitmapWith(4, [2]int{3, 3}), start)
	k.Update(bitmapWith(4, [2]int{3, 3}, [2]int{0, 0}), start.Add(20*time.Millisecond))

	keys := k.Keys()
	if keys[0].Char != 'D' || keys[1].Char != '1' {
		t.Errorf("expected slots [D 1], got [%q %q]", keys[0].Char, keys[1].Char)
	}
}

func TestMultiKeyListener(t *testing.T) {
	k, _ := newTestKeypad(t)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	var got []rune
	k.AddEventListener(func(ch rune) { got = append(got, ch) })

	// A pressed
	k.Update(bitmapWith(4, [2]int{0, 3}), start)
	// B pressed
	k.Update(bitmapWith(4, [2]int{0, 3}, [2]int{1, 3}), start.Add(20*time.Millisecond))
	// A released
	k.Update(bitmapWith(4, [2]int{1, 3}), start.Add(40*time.Millisecond))

	want := []rune{'A', 'B', 'A'}
	if string(got) != string(want) {
		t.Errorf("listener calls: got %q, want %q", string(got), string(want))
	}
}

func TestSingleKeyListenerOnlySlotZero(t *testing.T) {
	k, _ := newTestKeypad(t)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	var got []rune
	k.AddEventListener(func(ch rune) { got = append(got, ch) })
	k.singleKey = true

	// A -> slot 0
	k.Update(bitmapWith(4, [2]int{0, 3}), start)
	// B -> slot 1
	k.Update(bitmapWith(4, [2]int{0, 3}, [2]int{1, 3}), start.Add(20*time.Millisecond))
	// B released
	k.Update(bitmapWith(4, [2]int{0, 3}), start.Add(40*time.Millisecond))
	// A released, B idle
	k.Update(NewBitmap(4), start.Add(60*time.Millisecond))

	for _, ch := range got {
		if ch != 'A' {
			t.Errorf("single-key listener fired for %q", ch)
		}
	}
	if len(got) != 2 {
		t.Errorf("expected 2 notifications for 'A', got %d (%q)", len(got), string(got))
	}
}

func TestListenerReplaceAndClear(t *testing.T) {
	k, _ := newTestKeypad(t)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	var first, second int
	k.AddEventListener(func(rune) { first++ })
	k.AddEventListener(func(rune) { second++ })
	k.Update(bitmapWith(4, [2]int{0, 0}), start)
	if first != 0 || second != 1 {
		t.Errorf("expected only the replacement listener to fire, got first=%d second=%d", first, second)
	}

	k.AddEventListener(nil)
	// No listener: transitions still happen without error.
	if !k.Update(NewBitmap(4), start.Add(20*time.Millisecond)) {
		t.Error("expected activity without a listener")
	}
	if second != 1 {
		t.Errorf("cleared listener was called")
	}
}

func TestIsPressedOnlyAtTransition(t *testing.T) {
	k, _ := newTestKeypad(t)
	times := passes(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), 20*time.Millisecond, 3)
	down := bitmapWith(4, [2]int{2, 0})

	k.Update(down, times[0])
	if !k.IsPressed('7') {
		t.Error("expected IsPressed('7') on the pass it was pressed")
	}
	k.Update(down, times[1])
	if k.IsPressed('7') {
		t.Error("expected IsPressed('7') false while still held")
	}
	if k.IsPressed('8') {
		t.Error("unpressed key reported pressed")
	}
}

func TestGetKeysScansThroughPins(t *testing.T) {
	k, m := newTestKeypad(t)
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	k.SetClock(func() time.Time { return clock })

	m.Press(3, 1) // '0'
	active, err := k.GetKeys()
	if err != nil {
		t.Fatalf("GetKeys: %v", err)
	}
	if !active {
		t.Fatal("expected activity")
	}
	if idx := k.FindByChar('0'); idx != 0 {
		t.Errorf("expected '0' in slot 0, got %d", idx)
	}

	// Same clock reading: debounce not elapsed, pins untouched.
	reads := m.Reads
	active, err = k.GetKeys()
	if err != nil || active {
		t.Errorf("expected no-op, got active=%v err=%v", active, err)
	}
	if m.Reads != reads {
		t.Errorf("pins read during debounce interval: %d reads", m.Reads-reads)
	}
}

func TestGetKeysScanError(t *testing.T) {
	k, m := newTestKeypad(t)
	m.ReadError = errors.New("bus fault")

	active, err := k.GetKeys()
	if err == nil {
		t.Fatal("expected error")
	}
	if active {
		t.Error("expected no activity on scan error")
	}
	if k.ActiveCount() != 0 {
		t.Errorf("expected list untouched, got %d active", k.ActiveCount())
	}
}

func TestGetKey(t *testing.T) {
	k, m := newTestKeypad(t)
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	k.SetClock(func() time.Time { return clock })
	step := func() { clock = clock.Add(20 * time.Millisecond) }

	ch, err := k.GetKey()
	if err != nil || ch != NoKey {
		t.Fatalf("expected NoKey, got %q err=%v", ch, err)
	}
	if k.singleKey {
		t.Error("single-key mode should be cleared when no key is returned")
	}

	step()
	m.Press(1, 2) // '6'
	ch, err = k.GetKey()
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	if ch != '6' {
		t.Errorf("expected '6', got %q", ch)
	}
	if !k.singleKey {
		t.Error("single-key mode should stay set after returning a key")
	}

	step()
	if ch, _ := k.GetKey(); ch != NoKey {
		t.Errorf("expected NoKey while key stays down, got %q", ch)
	}
}

func TestWaitForKey(t *testing.T) {
	k, m := newTestKeypad(t)
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	k.SetClock(func() time.Time {
		calls++
		if calls == 5 {
			m.Press(0, 2) // '3'
		}
		clock = clock.Add(20 * time.Millisecond)
		return clock
	})

	ch, err := k.WaitForKey(context.Background())
	if err != nil {
		t.Fatalf("WaitForKey: %v", err)
	}
	if ch != '3' {
		t.Errorf("expected '3', got %q", ch)
	}
}

func TestWaitForKeyCancelled(t *testing.T) {
	k, _ := newTestKeypad(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch, err := k.WaitForKey(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if ch != NoKey {
		t.Errorf("expected NoKey, got %q", ch)
	}
}

func TestSetKeymap(t *testing.T) {
	k, _ := newTestKeypad(t)
	if err := k.SetKeymap("short"); err == nil {
		t.Error("expected error for wrong-size keymap")
	}
	if err := k.SetKeymap("abcdefghijklmnoa"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for repeated character, got %v", err)
	}
	if k.Char(0) != '1' {
		t.Errorf("rejected keymap was applied: code 0 is %q", k.Char(0))
	}
	if err := k.SetKeymap("abcdefghijklmnop"); err != nil {
		t.Fatalf("SetKeymap: %v", err)
	}
	if k.Char(15) != 'p' {
		t.Errorf("expected 'p' at code 15, got %q", k.Char(15))
	}
	row, col, ok := k.Position('g')
	if !ok || row != 1 || col != 2 {
		t.Errorf("Position('g') = (%d, %d, %v), want (1, 2, true)", row, col, ok)
	}
}

func TestKeyOutOfRange(t *testing.T) {
	k, _ := newTestKeypad(t)
	if _, err := k.Key(ListMax); err == nil {
		t.Error("expected error for slot out of range")
	}
	if _, err := k.Key(0); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{Idle: "IDLE", Pressed: "PRESSED", Hold: "HOLD", Released: "RELEASED"} {
		if s.String() != want {
			t.Errorf("%d: got %q, want %q", int(s), s.String(), want)
		}
	}
}
