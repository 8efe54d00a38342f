//go:build linux

package gpio

import (
	"fmt"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PeriphPins drives pins through periph.io. Pins are addressed by BCM
// number and resolved as "GPIO<n>" in the periph registry.
type PeriphPins struct {
	pins map[int]pgpio.PinIO
}

// NewPeriphPins initialises the periph host drivers.
func NewPeriphPins() (*PeriphPins, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return &PeriphPins{pins: make(map[int]pgpio.PinIO)}, nil
}

func (p *PeriphPins) lookup(pin int) (pgpio.PinIO, error) {
	if io, ok := p.pins[pin]; ok {
		return io, nil
	}
	io := gpioreg.ByName(fmt.Sprintf("GPIO%d", pin))
	if io == nil {
		return nil, fmt.Errorf("periph: no pin GPIO%d", pin)
	}
	p.pins[pin] = io
	return io, nil
}

func (p *PeriphPins) SetMode(pin int, mode Mode) error {
	io, err := p.lookup(pin)
	if err != nil {
		return err
	}
	switch mode {
	case Input:
		err = io.In(pgpio.Float, pgpio.NoEdge)
	case InputPullUp:
		err = io.In(pgpio.PullUp, pgpio.NoEdge)
	case Output:
		err = io.Out(pgpio.High)
	default:
		return fmt.Errorf("pin %d: unsupported mode %s", pin, mode)
	}
	if err != nil {
		return fmt.Errorf("set pin %d as %s: %w", pin, mode, err)
	}
	return nil
}

func (p *PeriphPins) Write(pin int, level Level) error {
	io, err := p.lookup(pin)
	if err != nil {
		return err
	}
	if err := io.Out(pgpio.Level(level)); err != nil {
		return fmt.Errorf("write pin %d: %w", pin, err)
	}
	return nil
}

func (p *PeriphPins) Read(pin int) (Level, error) {
	io, err := p.lookup(pin)
	if err != nil {
		return Low, err
	}
	return Level(io.Read()), nil
}

// Close returns every touched pin to a floating input.
func (p *PeriphPins) Close() error {
	var errs []error
	for pin, io := range p.pins {
		if err := io.In(pgpio.Float, pgpio.NoEdge); err != nil {
			errs = append(errs, fmt.Errorf("release pin %d: %w", pin, err))
		}
	}
	p.pins = make(map[int]pgpio.PinIO)
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
