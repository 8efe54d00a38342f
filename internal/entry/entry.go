// Package entry builds a line of text from key presses for a display sink.
package entry

// Defaults for the control keys and line length.
const (
	DefaultSubmit = '#'
	DefaultClear  = '*'
	DefaultMaxLen = 16
)

// Line accumulates pressed characters until the submit key.
// Not safe for concurrent use.
type Line struct {
	buf []rune

	Submit    rune
	Clear     rune
	Backspace rune // 0 disables
	MaxLen    int
}

// New creates a Line with the default control keys.
func New() *Line {
	return &Line{
		Submit: DefaultSubmit,
		Clear:  DefaultClear,
		MaxLen: DefaultMaxLen,
	}
}

// Press applies one pressed key. It returns the completed line and true when
// ch is the submit key; the buffer is then cleared. Characters beyond MaxLen
// are ignored.
func (l *Line) Press(ch rune) (string, bool) {
	switch {
	case ch == 0:
		return "", false
	case ch == l.Submit:
		s := string(l.buf)
		l.buf = l.buf[:0]
		return s, true
	case ch == l.Clear:
		l.buf = l.buf[:0]
	case l.Backspace != 0 && ch == l.Backspace:
		if len(l.buf) > 0 {
			l.buf = l.buf[:len(l.buf)-1]
		}
	default:
		if l.MaxLen > 0 && len(l.buf) >= l.MaxLen {
			return "", false
		}
		l.buf = append(l.buf, ch)
	}
	return "", false
}

// String returns the text entered so far.
func (l *Line) String() string {
	return string(l.buf)
}

// Len returns the number of characters entered so far.
func (l *Line) Len() int {
	return len(l.buf)
}
