package keypad

import "strings"

// Bitmap holds one scan pass: bit c of row r is set when the key at (r, c)
// reads pressed. It carries raw readings with no debouncing.
type Bitmap []uint32

// NewBitmap returns a cleared bitmap with the given number of rows.
func NewBitmap(rows int) Bitmap {
	return make(Bitmap, rows)
}

// Set records the reading for (row, col).
func (b Bitmap) Set(row, col int, pressed bool) {
	if pressed {
		b[row] |= 1 << uint(col)
	} else {
		b[row] &^= 1 << uint(col)
	}
}

// Pressed reports the reading for (row, col).
func (b Bitmap) Pressed(row, col int) bool {
	return b[row]&(1<<uint(col)) != 0
}

// Clear resets every bit.
func (b Bitmap) Clear() {
	for i := range b {
		b[i] = 0
	}
}

// Format renders the bitmap as one line per row using the keymap character
// for pressed positions and '.' otherwise.
func (b Bitmap) Format(cols int, keymap []rune) string {
	var sb strings.Builder
	for r := range b {
		for c := 0; c < cols; c++ {
			if b.Pressed(r, c) {
				sb.WriteRune(keymap[r*cols+c])
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
