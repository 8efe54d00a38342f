// Package remote accepts key commands from the network and merges them into
// keypad scans as virtual presses.
package remote

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/sweeney/keypad-sensor/internal/keypad"
)

// Command verbs.
const (
	VerbPress      = "press"
	VerbRelease    = "release"
	VerbReleaseAll = "release-all"
)

// ErrUnknownKey is returned for a command naming a character not in the keymap.
var ErrUnknownKey = errors.New("remote: unknown key")

// Command is a parsed remote key command.
type Command struct {
	Verb string
	Key  rune
}

// ParseCommand parses "press <c>", "release <c>" or "release-all".
func ParseCommand(payload []byte) (Command, error) {
	fields := strings.Fields(string(payload))
	if len(fields) == 0 {
		return Command{}, errors.New("remote: empty command")
	}

	verb := strings.ToLower(fields[0])
	switch verb {
	case VerbReleaseAll:
		if len(fields) != 1 {
			return Command{}, fmt.Errorf("remote: %s takes no argument", verb)
		}
		return Command{Verb: verb}, nil
	case VerbPress, VerbRelease:
		if len(fields) != 2 || utf8.RuneCountInString(fields[1]) != 1 {
			return Command{}, fmt.Errorf("remote: %s needs exactly one character", verb)
		}
		r, _ := utf8.DecodeRuneInString(fields[1])
		return Command{Verb: verb, Key: r}, nil
	}
	return Command{}, fmt.Errorf("remote: unknown verb %q", fields[0])
}

// Injector holds keys pressed remotely. Handle is called from the network
// goroutine and Apply from the scan loop.
type Injector struct {
	cols  int
	codes map[rune]int

	mu      sync.Mutex
	pressed map[int]bool
}

// NewInjector creates an injector for a grid with the given keymap.
func NewInjector(keymap []rune, cols int) *Injector {
	codes := make(map[rune]int, len(keymap))
	for i, ch := range keymap {
		codes[ch] = i
	}
	return &Injector{
		cols:    cols,
		codes:   codes,
		pressed: make(map[int]bool),
	}
}

// Handle parses and applies one command payload.
func (in *Injector) Handle(payload []byte) (Command, error) {
	cmd, err := ParseCommand(payload)
	if err != nil {
		return cmd, err
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	if cmd.Verb == VerbReleaseAll {
		in.pressed = make(map[int]bool)
		return cmd, nil
	}

	code, ok := in.codes[cmd.Key]
	if !ok {
		return cmd, fmt.Errorf("%w: %q", ErrUnknownKey, cmd.Key)
	}
	if cmd.Verb == VerbPress {
		in.pressed[code] = true
	} else {
		delete(in.pressed, code)
	}
	return cmd, nil
}

// Apply sets the bit of every remotely pressed key in bm.
func (in *Injector) Apply(bm keypad.Bitmap) {
	in.mu.Lock()
	defer in.mu.Unlock()

	for code := range in.pressed {
		r, c := code/in.cols, code%in.cols
		if r < len(bm) {
			bm.Set(r, c, true)
		}
	}
}

// Pressed returns the number of keys currently held remotely.
func (in *Injector) Pressed() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.pressed)
}
