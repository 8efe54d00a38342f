package keypad

import (
	"errors"
	"fmt"

	"github.com/sweeney/keypad-sensor/internal/gpio"
)

// scanner drives the column-by-column electrical scan.
type scanner struct {
	pins gpio.Pins
	rows []int
	cols []int
}

// scan fills bm from one pass over the grid. Keys are active low: a column
// is pulled low and every row that reads low has a closed switch on it.
//
// Rows are reset to pulled-up inputs on every call. Columns not being
// pulsed stay high-impedance inputs.
func (s *scanner) scan(bm Bitmap) error {
	for _, pin := range s.rows {
		if err := s.pins.SetMode(pin, gpio.InputPullUp); err != nil {
			return fmt.Errorf("scan: row: %w", err)
		}
	}

	for c, colPin := range s.cols {
		if err := s.pins.SetMode(colPin, gpio.Output); err != nil {
			return fmt.Errorf("scan: column: %w", errors.Join(err, s.release(colPin)))
		}
		if err := s.pins.Write(colPin, gpio.Low); err != nil {
			return fmt.Errorf("scan: column: %w", errors.Join(err, s.release(colPin)))
		}
		for r, rowPin := range s.rows {
			level, err := s.pins.Read(rowPin)
			if err != nil {
				return fmt.Errorf("scan: row: %w", errors.Join(err, s.release(colPin)))
			}
			bm.Set(r, c, level == gpio.Low)
		}
		if err := s.release(colPin); err != nil {
			return fmt.Errorf("scan: column: %w", err)
		}
	}
	return nil
}

// release ends the column pulse and returns the pin to high impedance. The
// mode change is attempted even when driving the pin high fails.
func (s *scanner) release(pin int) error {
	werr := s.pins.Write(pin, gpio.High)
	merr := s.pins.SetMode(pin, gpio.Input)
	return errors.Join(werr, merr)
}
