//go:build linux

package gpio

import (
	"fmt"

	"github.com/stianeikeland/go-rpio/v4"
)

// RpioPins drives pins through /dev/gpiomem using go-rpio.
// Only one RpioPins may be open at a time since rpio keeps global state.
type RpioPins struct {
	touched map[int]bool
}

// NewRpioPins maps the GPIO register block.
func NewRpioPins() (*RpioPins, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("rpio open: %w", err)
	}
	return &RpioPins{touched: make(map[int]bool)}, nil
}

func (p *RpioPins) SetMode(pin int, mode Mode) error {
	rp := rpio.Pin(pin)
	switch mode {
	case Input:
		rp.Input()
		rp.PullOff()
	case InputPullUp:
		rp.Input()
		rp.PullUp()
	case Output:
		rp.Output()
		rp.High()
	default:
		return fmt.Errorf("pin %d: unsupported mode %s", pin, mode)
	}
	p.touched[pin] = true
	return nil
}

func (p *RpioPins) Write(pin int, level Level) error {
	if level {
		rpio.Pin(pin).Write(rpio.High)
	} else {
		rpio.Pin(pin).Write(rpio.Low)
	}
	return nil
}

func (p *RpioPins) Read(pin int) (Level, error) {
	return rpio.Pin(pin).Read() == rpio.High, nil
}

// Close returns touched pins to plain inputs and unmaps the registers.
func (p *RpioPins) Close() error {
	for pin := range p.touched {
		rp := rpio.Pin(pin)
		rp.Input()
		rp.PullOff()
	}
	p.touched = make(map[int]bool)
	if err := rpio.Close(); err != nil {
		return fmt.Errorf("rpio close: %w", err)
	}
	return nil
}
