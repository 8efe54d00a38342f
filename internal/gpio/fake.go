package gpio

import "fmt"

// FakeMatrix is a test double that simulates a key matrix wired to row and
// column pins. A row pin configured as a pulled-up input reads Low when a
// pressed key connects it to a column pin that is driven Low.
type FakeMatrix struct {
	rows []int
	cols []int

	pressed map[[2]int]bool

	// Modes holds the last mode set for each pin.
	Modes map[int]Mode

	// Levels holds the last level written to each pin.
	Levels map[int]Level

	// Closed tracks if Close was called.
	Closed bool

	// ReadError, if set, will be returned by Read().
	ReadError error

	// WriteError, if set, will be returned by Write().
	WriteError error

	// Reads counts calls to Read.
	Reads int
}

// NewFakeMatrix creates a FakeMatrix for the given row and column pins.
func NewFakeMatrix(rows, cols []int) *FakeMatrix {
	return &FakeMatrix{
		rows:    rows,
		cols:    cols,
		pressed: make(map[[2]int]bool),
		Modes:   make(map[int]Mode),
		Levels:  make(map[int]Level),
	}
}

// Press closes the switch at (row, col).
func (f *FakeMatrix) Press(row, col int) {
	f.pressed[[2]int{row, col}] = true
}

// Release opens the switch at (row, col).
func (f *FakeMatrix) Release(row, col int) {
	delete(f.pressed, [2]int{row, col})
}

// ReleaseAll opens every switch.
func (f *FakeMatrix) ReleaseAll() {
	f.pressed = make(map[[2]int]bool)
}

// SetMode records the pin mode. Output pins start High.
func (f *FakeMatrix) SetMode(pin int, mode Mode) error {
	f.Modes[pin] = mode
	if mode == Output {
		f.Levels[pin] = High
	}
	return nil
}

// Write records the level of an output pin.
func (f *FakeMatrix) Write(pin int, level Level) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	if f.Modes[pin] != Output {
		return fmt.Errorf("fake: write to pin %d in mode %s", pin, f.Modes[pin])
	}
	f.Levels[pin] = level
	return nil
}

// Read returns the simulated level of a pin.
func (f *FakeMatrix) Read(pin int) (Level, error) {
	f.Reads++
	if f.ReadError != nil {
		return High, f.ReadError
	}

	if f.Modes[pin] == Output {
		return f.Levels[pin], nil
	}

	r := indexOf(f.rows, pin)
	if r < 0 {
		// Unconnected or column input: floating, report pull state.
		return f.Modes[pin] == InputPullUp, nil
	}

	for c, colPin := range f.cols {
		if !f.pressed[[2]int{r, c}] {
			continue
		}
		if f.Modes[colPin] == Output && f.Levels[colPin] == Low {
			return Low, nil
		}
	}

	// Nothing pulls the row down. Without a pull-up the line floats; model it
	// as High, the same way an idle matrix usually reads.
	return High, nil
}

// Close marks the matrix as closed and returns all pins to input.
func (f *FakeMatrix) Close() error {
	for pin := range f.Modes {
		f.Modes[pin] = Input
	}
	f.Closed = true
	return nil
}

// Reset releases every key and clears recorded state.
func (f *FakeMatrix) Reset() {
	f.ReleaseAll()
	f.Modes = make(map[int]Mode)
	f.Levels = make(map[int]Level)
	f.Closed = false
	f.ReadError = nil
	f.WriteError = nil
	f.Reads = 0
}

func indexOf(pins []int, pin int) int {
	for i, p := range pins {
		if p == pin {
			return i
		}
	}
	return -1
}
