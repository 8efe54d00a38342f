//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// CdevPins drives pins through the Linux GPIO character device.
// Lines are requested lazily on first use and kept until Close.
type CdevPins struct {
	chip  *gpiocdev.Chip
	lines map[int]*gpiocdev.Line
}

// NewCdevPins opens the named GPIO chip (e.g. "gpiochip0").
func NewCdevPins(chip string) (*CdevPins, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &CdevPins{
		chip:  c,
		lines: make(map[int]*gpiocdev.Line),
	}, nil
}

// SetMode requests the line on first use, otherwise reconfigures it.
func (p *CdevPins) SetMode(pin int, mode Mode) error {
	if l, ok := p.lines[pin]; ok {
		var err error
		switch mode {
		case Input:
			err = l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithBiasDisabled)
		case InputPullUp:
			err = l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp)
		case Output:
			err = l.Reconfigure(gpiocdev.AsOutput(1))
		default:
			return fmt.Errorf("pin %d: unsupported mode %s", pin, mode)
		}
		if err != nil {
			return fmt.Errorf("reconfigure pin %d as %s: %w", pin, mode, err)
		}
		return nil
	}

	var (
		l   *gpiocdev.Line
		err error
	)
	switch mode {
	case Input:
		l, err = p.chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithBiasDisabled)
	case InputPullUp:
		l, err = p.chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullUp)
	case Output:
		l, err = p.chip.RequestLine(pin, gpiocdev.AsOutput(1))
	default:
		return fmt.Errorf("pin %d: unsupported mode %s", pin, mode)
	}
	if err != nil {
		return fmt.Errorf("request pin %d as %s: %w", pin, mode, err)
	}
	p.lines[pin] = l
	return nil
}

// Write sets an output line.
func (p *CdevPins) Write(pin int, level Level) error {
	l, ok := p.lines[pin]
	if !ok {
		return fmt.Errorf("write pin %d: line not requested", pin)
	}
	v := 0
	if level {
		v = 1
	}
	if err := l.SetValue(v); err != nil {
		return fmt.Errorf("write pin %d: %w", pin, err)
	}
	return nil
}

// Read returns the raw level of a line.
func (p *CdevPins) Read(pin int) (Level, error) {
	l, ok := p.lines[pin]
	if !ok {
		return Low, fmt.Errorf("read pin %d: line not requested", pin)
	}
	v, err := l.Value()
	if err != nil {
		return Low, fmt.Errorf("read pin %d: %w", pin, err)
	}
	return v != 0, nil
}

// Close releases GPIO resources.
// Lines are reconfigured to plain inputs before closing so no column is left
// driving the matrix after the daemon exits.
func (p *CdevPins) Close() error {
	var errs []error

	for pin, l := range p.lines {
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithBiasDisabled); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", pin, err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
	}
	p.lines = make(map[int]*gpiocdev.Line)

	if p.chip != nil {
		if err := p.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
