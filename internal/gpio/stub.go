//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// CdevPins is not available on non-Linux platforms.
type CdevPins struct{}

// NewCdevPins returns an error on non-Linux platforms.
func NewCdevPins(chip string) (*CdevPins, error) { return nil, errUnsupported }

func (p *CdevPins) SetMode(pin int, mode Mode) error { return errUnsupported }
func (p *CdevPins) Write(pin int, level Level) error { return errUnsupported }
func (p *CdevPins) Read(pin int) (Level, error)      { return Low, errUnsupported }
func (p *CdevPins) Close() error                     { return nil }

// PeriphPins is not available on non-Linux platforms.
type PeriphPins struct{}

// NewPeriphPins returns an error on non-Linux platforms.
func NewPeriphPins() (*PeriphPins, error) { return nil, errUnsupported }

func (p *PeriphPins) SetMode(pin int, mode Mode) error { return errUnsupported }
func (p *PeriphPins) Write(pin int, level Level) error { return errUnsupported }
func (p *PeriphPins) Read(pin int) (Level, error)      { return Low, errUnsupported }
func (p *PeriphPins) Close() error                     { return nil }

// RpioPins is not available on non-Linux platforms.
type RpioPins struct{}

// NewRpioPins returns an error on non-Linux platforms.
func NewRpioPins() (*RpioPins, error) { return nil, errUnsupported }

func (p *RpioPins) SetMode(pin int, mode Mode) error { return errUnsupported }
func (p *RpioPins) Write(pin int, level Level) error { return errUnsupported }
func (p *RpioPins) Read(pin int) (Level, error)      { return Low, errUnsupported }
func (p *RpioPins) Close() error                     { return nil }
