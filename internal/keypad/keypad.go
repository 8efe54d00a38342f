package keypad

import (
	"context"
	"fmt"
	"time"

	"github.com/sweeney/keypad-sensor/internal/gpio"
)

// Keypad owns the grid geometry, the active-key list and the timers.
type Keypad struct {
	rows, cols int
	keymap     []rune
	scanner    scanner

	keys [ListMax]Key

	debounce time.Duration
	hold     time.Duration
	lastScan time.Time
	now      func() time.Time

	listener  Listener
	singleKey bool
}

// New validates cfg and returns a Keypad scanning through pins.
func New(cfg Config, pins gpio.Pins) (*Keypad, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	km, _ := parseKeymap(cfg.Keymap, cfg.Rows, cfg.Columns)

	k := &Keypad{
		rows:   cfg.Rows,
		cols:   cfg.Columns,
		keymap: km,
		scanner: scanner{
			pins: pins,
			rows: append([]int(nil), cfg.RowPins...),
			cols: append([]int(nil), cfg.ColumnPins...),
		},
		debounce: DefaultDebounce,
		hold:     DefaultHold,
		now:      time.Now,
	}
	for i := range k.keys {
		k.keys[i] = freeKey()
	}
	return k, nil
}

func freeKey() Key {
	return Key{Char: NoKey, Code: -1, State: Idle}
}

// SetKeymap replaces the keymap. The new keymap must fit the same grid.
// Keys already on the list keep the character they were added with.
func (k *Keypad) SetKeymap(keymap string) error {
	km, err := parseKeymap(keymap, k.rows, k.cols)
	if err != nil {
		return err
	}
	k.keymap = km
	return nil
}

// SetDebounceTime sets the minimum time between accepted passes.
// Values below 1ms are raised to 1ms.
func (k *Keypad) SetDebounceTime(d time.Duration) {
	if d < MinDebounce {
		d = MinDebounce
	}
	k.debounce = d
}

// SetHoldTime sets how long a key must stay pressed before it becomes HOLD.
func (k *Keypad) SetHoldTime(d time.Duration) {
	k.hold = d
}

// SetClock replaces the time source used by GetKeys and GetKey.
func (k *Keypad) SetClock(now func() time.Time) {
	k.now = now
}

// AddEventListener installs the transition listener, replacing any previous
// one. A nil listener disables notification.
func (k *Keypad) AddEventListener(fn Listener) {
	k.listener = fn
}

// Rows returns the number of grid rows.
func (k *Keypad) Rows() int { return k.rows }

// Columns returns the number of grid columns.
func (k *Keypad) Columns() int { return k.cols }

// Keymap returns a copy of the keymap.
func (k *Keypad) Keymap() []rune { return append([]rune(nil), k.keymap...) }

// Char returns the keymap character for a key code, or NoKey if out of range.
func (k *Keypad) Char(code int) rune {
	if code < 0 || code >= len(k.keymap) {
		return NoKey
	}
	return k.keymap[code]
}

// Position returns the (row, col) of the first keymap entry for ch.
func (k *Keypad) Position(ch rune) (row, col int, ok bool) {
	for i, c := range k.keymap {
		if c == ch {
			return i / k.cols, i % k.cols, true
		}
	}
	return 0, 0, false
}

// Due reports whether a pass at now would be accepted.
func (k *Keypad) Due(now time.Time) bool {
	return k.lastScan.IsZero() || now.Sub(k.lastScan) > k.debounce
}

// Scan performs one electrical pass and returns a fresh bitmap.
// It does not touch the key list.
func (k *Keypad) Scan() (Bitmap, error) {
	bm := NewBitmap(k.rows)
	if err := k.scanner.scan(bm); err != nil {
		return nil, err
	}
	return bm, nil
}

// GetKeys scans the grid and updates the key list if the debounce interval
// has elapsed. It returns true if any key changed state.
func (k *Keypad) GetKeys() (bool, error) {
	now := k.now()
	if !k.Due(now) {
		return false, nil
	}
	bm, err := k.Scan()
	if err != nil {
		return false, err
	}
	return k.Update(bm, now), nil
}

// Update applies one scan pass taken at now and returns true if any slot
// changed state. Calls within the debounce interval of the previous accepted
// pass do nothing and return false.
//
// The list is never rearranged: IDLE slots are freed first, then every grid
// position either advances its existing slot or, when newly pressed, takes the
// first free slot. A press with no free slot is dropped.
func (k *Keypad) Update(bm Bitmap, now time.Time) bool {
	if !k.Due(now) {
		return false
	}
	k.lastScan = now

	for i := range k.keys {
		if k.keys[i].State == Idle {
			k.keys[i] = freeKey()
		}
	}

	for r := 0; r < k.rows; r++ {
		for c := 0; c < k.cols; c++ {
			pressed := r < len(bm) && bm.Pressed(r, c)
			code := r*k.cols + c

			if idx := k.FindByCode(code); idx >= 0 {
				k.advance(idx, pressed, now)
				continue
			}
			if !pressed {
				continue
			}
			for i := range k.keys {
				if k.keys[i].Free() {
					k.keys[i] = Key{Char: k.keymap[code], Code: code, State: Idle}
					k.advance(i, pressed, now)
					break
				}
			}
		}
	}

	for _, key := range k.keys {
		if key.Changed {
			return true
		}
	}
	return false
}

// advance runs one step of the slot's state machine.
func (k *Keypad) advance(idx int, pressed bool, now time.Time) {
	key := &k.keys[idx]
	key.Changed = false

	switch key.State {
	case Idle:
		if pressed {
			key.holdStart = now
			k.transition(idx, Pressed)
		}
	case Pressed:
		if !pressed {
			k.transition(idx, Released)
		} else if now.Sub(key.holdStart) > k.hold {
			k.transition(idx, Hold)
		}
	case Hold:
		if !pressed {
			k.transition(idx, Released)
		}
	case Released:
		k.transition(idx, Idle)
	}
}

func (k *Keypad) transition(idx int, next State) {
	k.keys[idx].State = next
	k.keys[idx].Changed = true

	if k.listener == nil {
		return
	}
	if k.singleKey && idx != 0 {
		return
	}
	k.listener(k.keys[idx].Char)
}

// GetKey runs one pass in single-key mode and returns the character in slot
// 0 if it became PRESSED on this pass, otherwise NoKey.
func (k *Keypad) GetKey() (rune, error) {
	k.singleKey = true

	active, err := k.GetKeys()
	if err == nil && active && k.keys[0].Changed && k.keys[0].State == Pressed {
		return k.keys[0].Char, nil
	}

	k.singleKey = false
	return NoKey, err
}

// WaitForKey calls GetKey in a tight loop until a key is pressed.
//
// It busy-waits and starves everything else on the calling goroutine's
// schedule; do not use it in a loop that also services network or other
// timed work. ctx only allows the caller to abandon the wait.
func (k *Keypad) WaitForKey(ctx context.Context) (rune, error) {
	for {
		if err := ctx.Err(); err != nil {
			return NoKey, err
		}
		ch, err := k.GetKey()
		if err != nil {
			return NoKey, err
		}
		if ch != NoKey {
			return ch, nil
		}
	}
}

// IsPressed reports whether ch became PRESSED on the most recent pass.
// A key that stays down reports false on later passes.
func (k *Keypad) IsPressed(ch rune) bool {
	for _, key := range k.keys {
		if key.Char == ch && key.State == Pressed && key.Changed {
			return true
		}
	}
	return false
}

// FindByChar returns the slot index holding ch, or -1.
func (k *Keypad) FindByChar(ch rune) int {
	for i, key := range k.keys {
		if key.Char == ch {
			return i
		}
	}
	return -1
}

// FindByCode returns the slot index holding code, or -1.
func (k *Keypad) FindByCode(code int) int {
	for i, key := range k.keys {
		if key.Code == code {
			return i
		}
	}
	return -1
}

// Keys returns a copy of the active-key list.
func (k *Keypad) Keys() [ListMax]Key {
	return k.keys
}

// Key returns the slot at idx.
func (k *Keypad) Key(idx int) (Key, error) {
	if idx < 0 || idx >= ListMax {
		return Key{}, fmt.Errorf("keypad: slot %d out of range", idx)
	}
	return k.keys[idx], nil
}

// State returns the state of slot 0.
func (k *Keypad) State() State {
	return k.keys[0].State
}

// KeyStateChanged reports whether slot 0 transitioned on the last pass.
func (k *Keypad) KeyStateChanged() bool {
	return k.keys[0].Changed
}

// NumKeys returns the capacity of the active-key list.
func (k *Keypad) NumKeys() int {
	return ListMax
}

// ActiveCount returns the number of occupied slots.
func (k *Keypad) ActiveCount() int {
	n := 0
	for _, key := range k.keys {
		if !key.Free() {
			n++
		}
	}
	return n
}
