// Package keypad scans a row/column key matrix and tracks active keys.
//
// Every accepted pass scans the grid into a Bitmap, matches set bits against a
// fixed list of ListMax slots and advances each slot's IDLE -> PRESSED ->
// HOLD -> RELEASED -> IDLE state machine. Transitions are reported to a single
// listener as they happen.
//
// A Keypad is not safe for concurrent use. Time is read only at call
// boundaries, so the caller must drive GetKeys (or Scan plus Update) on a
// regular cadence.
package keypad

import (
	"errors"
	"fmt"
	"time"
)

// ListMax is the capacity of the active-key list.
const ListMax = 10

// MaxColumns is the widest grid a Bitmap row mask can hold.
const MaxColumns = 32

// NoKey marks a free slot and is returned when no key is available.
const NoKey rune = 0

// Default timing.
const (
	DefaultDebounce = 10 * time.Millisecond
	DefaultHold     = 500 * time.Millisecond
	MinDebounce     = time.Millisecond
)

// ErrInvalidConfig is wrapped by every geometry or keymap validation error.
var ErrInvalidConfig = errors.New("keypad: invalid config")

// State is the lifecycle state of a key slot.
type State int

const (
	Idle State = iota
	Pressed
	Hold
	Released
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Pressed:
		return "PRESSED"
	case Hold:
		return "HOLD"
	case Released:
		return "RELEASED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Key is one slot of the active-key list.
type Key struct {
	Char    rune  // NoKey when the slot is free
	Code    int   // row*columns + column, -1 when free
	State   State
	Changed bool // true only on the pass in which State transitioned

	holdStart time.Time
}

// Free reports whether the slot holds no key.
func (k Key) Free() bool {
	return k.Char == NoKey
}

// Listener is called with the slot's character on every reported transition.
type Listener func(ch rune)

// Config describes the key grid.
type Config struct {
	Rows       int
	Columns    int
	RowPins    []int
	ColumnPins []int
	// Keymap holds Rows*Columns characters in row-major order.
	Keymap string
}

// Validate checks that the geometry is consistent.
func (c Config) Validate() error {
	if c.Rows <= 0 || c.Columns <= 0 {
		return fmt.Errorf("%w: grid %dx%d", ErrInvalidConfig, c.Rows, c.Columns)
	}
	if c.Columns > MaxColumns {
		return fmt.Errorf("%w: %d columns exceeds %d", ErrInvalidConfig, c.Columns, MaxColumns)
	}
	if len(c.RowPins) != c.Rows {
		return fmt.Errorf("%w: %d row pins for %d rows", ErrInvalidConfig, len(c.RowPins), c.Rows)
	}
	if len(c.ColumnPins) != c.Columns {
		return fmt.Errorf("%w: %d column pins for %d columns", ErrInvalidConfig, len(c.ColumnPins), c.Columns)
	}
	seen := make(map[int]bool, c.Rows+c.Columns)
	for _, p := range append(append([]int(nil), c.RowPins...), c.ColumnPins...) {
		if seen[p] {
			return fmt.Errorf("%w: pin %d used twice", ErrInvalidConfig, p)
		}
		seen[p] = true
	}
	_, err := parseKeymap(c.Keymap, c.Rows, c.Columns)
	return err
}

func parseKeymap(keymap string, rows, cols int) ([]rune, error) {
	km := []rune(keymap)
	if len(km) != rows*cols {
		return nil, fmt.Errorf("%w: keymap has %d keys, grid needs %d", ErrInvalidConfig, len(km), rows*cols)
	}
	seen := make(map[rune]int, len(km))
	for i, ch := range km {
		if ch == NoKey {
			return nil, fmt.Errorf("%w: keymap position %d is NUL", ErrInvalidConfig, i)
		}
		if j, ok := seen[ch]; ok {
			return nil, fmt.Errorf("%w: keymap character %q at positions %d and %d", ErrInvalidConfig, ch, j, i)
		}
		seen[ch] = i
	}
	return km, nil
}
