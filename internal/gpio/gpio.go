// Package gpio provides pin-level access for the keypad matrix with hardware abstraction.
// Real implementations use the Linux GPIO character device, periph.io or /dev/gpiomem.
// The fake implementation simulates a key matrix so scans can be tested without hardware.
package gpio

import "fmt"

// Level is the logic level of a pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "HIGH"
	}
	return "LOW"
}

// Mode is the drive mode of a pin.
type Mode int

const (
	// Input is a high-impedance input with no bias.
	Input Mode = iota
	// InputPullUp is an input with the internal pull-up enabled.
	InputPullUp
	// Output drives the pin to the last written level.
	Output
)

func (m Mode) String() string {
	switch m {
	case Input:
		return "INPUT"
	case InputPullUp:
		return "INPUT_PULLUP"
	case Output:
		return "OUTPUT"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Pins reads and drives individual GPIO lines.
// Pins are addressed by BCM number (line offset on gpiochip0).
type Pins interface {
	// SetMode reconfigures the pin. Switching to Output drives the pin high
	// until the first Write.
	SetMode(pin int, mode Mode) error

	// Write sets the level of a pin in Output mode.
	Write(pin int, level Level) error

	// Read returns the current level of the pin.
	Read(pin int) (Level, error)

	// Close returns all touched pins to input and releases resources.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendCdev   = "cdev"
	BackendPeriph = "periph"
	BackendRpio   = "rpio"
)

// DefaultChip is the GPIO character device used by the cdev backend.
const DefaultChip = "gpiochip0"

// Open returns a Pins implementation for the named backend.
// The chip argument is only used by the cdev backend.
func Open(backend, chip string) (Pins, error) {
	switch backend {
	case BackendCdev, "":
		if chip == "" {
			chip = DefaultChip
		}
		p, err := NewCdevPins(chip)
		if err != nil {
			return nil, err
		}
		return p, nil
	case BackendPeriph:
		p, err := NewPeriphPins()
		if err != nil {
			return nil, err
		}
		return p, nil
	case BackendRpio:
		p, err := NewRpioPins()
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, fmt.Errorf("gpio: unknown backend %q", backend)
}
