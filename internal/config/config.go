// Package config loads keypad-sensor settings from an optional file.
// Command-line flags are applied on top by the daemon.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/keypad-sensor/internal/entry"
	"github.com/sweeney/keypad-sensor/internal/gpio"
	"github.com/sweeney/keypad-sensor/internal/keypad"
	"github.com/sweeney/keypad-sensor/internal/mqtt"
)

// Duration is a time.Duration written as a string such as "10ms" in files.
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config is the complete daemon configuration.
type Config struct {
	Keypad KeypadSection `toml:"keypad" yaml:"keypad" json:"keypad"`
	GPIO   GPIOSection   `toml:"gpio" yaml:"gpio" json:"gpio"`
	MQTT   MQTTSection   `toml:"mqtt" yaml:"mqtt" json:"mqtt"`
	HTTP   HTTPSection   `toml:"http" yaml:"http" json:"http"`
	Entry  EntrySection  `toml:"entry" yaml:"entry" json:"entry"`
}

// KeypadSection describes the matrix and its timing.
type KeypadSection struct {
	Rows       int      `toml:"rows" yaml:"rows" json:"rows"`
	Columns    int      `toml:"columns" yaml:"columns" json:"columns"`
	RowPins    []int    `toml:"row_pins" yaml:"row_pins" json:"row_pins"`
	ColumnPins []int    `toml:"column_pins" yaml:"column_pins" json:"column_pins"`
	Keymap     string   `toml:"keymap" yaml:"keymap" json:"keymap"`
	Poll       Duration `toml:"poll" yaml:"poll" json:"poll"`
	Debounce   Duration `toml:"debounce" yaml:"debounce" json:"debounce"`
	Hold       Duration `toml:"hold" yaml:"hold" json:"hold"`
}

// GPIOSection selects the pin backend.
type GPIOSection struct {
	Backend string `toml:"backend" yaml:"backend" json:"backend"`
	Chip    string `toml:"chip" yaml:"chip" json:"chip"`
}

// MQTTSection configures the broker connection and topics.
type MQTTSection struct {
	Broker       string   `toml:"broker" yaml:"broker" json:"broker"`
	ClientID     string   `toml:"client_id" yaml:"client_id" json:"client_id"`
	TopicPrefix  string   `toml:"topic_prefix" yaml:"topic_prefix" json:"topic_prefix"`
	DisplayTopic string   `toml:"display_topic" yaml:"display_topic" json:"display_topic"`
	Heartbeat    Duration `toml:"heartbeat" yaml:"heartbeat" json:"heartbeat"`
}

// HTTPSection configures the status server.
type HTTPSection struct {
	Addr string `toml:"addr" yaml:"addr" json:"addr"`
}

// EntrySection configures the entry line control keys. Each is a single
// character; an empty backspace disables it.
type EntrySection struct {
	Submit    string `toml:"submit" yaml:"submit" json:"submit"`
	Clear     string `toml:"clear" yaml:"clear" json:"clear"`
	Backspace string `toml:"backspace" yaml:"backspace" json:"backspace"`
	MaxLen    int    `toml:"max_len" yaml:"max_len" json:"max_len"`
}

// DefaultConfig returns the configuration for a 4x4 membrane keypad on a Raspberry Pi.
func DefaultConfig() *Config {
	return &Config{
		Keypad: KeypadSection{
			Rows:       4,
			Columns:    4,
			RowPins:    []int{5, 6, 13, 19},
			ColumnPins: []int{12, 16, 20, 21},
			Keymap:     "123A456B789C*0#D",
			Poll:       Duration(5 * time.Millisecond),
			Debounce:   Duration(keypad.DefaultDebounce),
			Hold:       Duration(keypad.DefaultHold),
		},
		GPIO: GPIOSection{
			Backend: gpio.BackendCdev,
			Chip:    gpio.DefaultChip,
		},
		MQTT: MQTTSection{
			Broker:       "tcp://192.168.1.200:1883",
			ClientID:     "keypad-sensor",
			TopicPrefix:  mqtt.DefaultPrefix,
			DisplayTopic: mqtt.DefaultDisplayTopic,
			Heartbeat:    Duration(15 * time.Minute),
		},
		HTTP: HTTPSection{
			Addr: ":80",
		},
		Entry: EntrySection{
			Submit: string(entry.DefaultSubmit),
			Clear:  string(entry.DefaultClear),
			MaxLen: entry.DefaultMaxLen,
		},
	}
}

// Load reads path over the defaults. The format is chosen by extension:
// .toml, .yaml, .yml or .json. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("config: unsupported file extension %q", ext)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if err := c.KeypadConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Keypad.Poll <= 0 {
		errs = append(errs, errors.New("keypad.poll must be positive"))
	}
	if c.Keypad.Debounce < 0 {
		errs = append(errs, errors.New("keypad.debounce must not be negative"))
	}
	if c.Keypad.Hold <= 0 {
		errs = append(errs, errors.New("keypad.hold must be positive"))
	}

	switch c.GPIO.Backend {
	case gpio.BackendCdev, gpio.BackendPeriph, gpio.BackendRpio:
	default:
		errs = append(errs, fmt.Errorf("gpio.backend %q must be one of %s, %s, %s",
			c.GPIO.Backend, gpio.BackendCdev, gpio.BackendPeriph, gpio.BackendRpio))
	}

	if c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required"))
	}
	if c.MQTT.Heartbeat < 0 {
		errs = append(errs, errors.New("mqtt.heartbeat must not be negative"))
	}

	for name, s := range map[string]string{"entry.submit": c.Entry.Submit, "entry.clear": c.Entry.Clear} {
		if utf8.RuneCountInString(s) != 1 {
			errs = append(errs, fmt.Errorf("%s must be a single character, got %q", name, s))
		}
	}
	if utf8.RuneCountInString(c.Entry.Backspace) > 1 {
		errs = append(errs, fmt.Errorf("entry.backspace must be at most one character, got %q", c.Entry.Backspace))
	}
	if c.Entry.MaxLen < 0 {
		errs = append(errs, errors.New("entry.max_len must not be negative"))
	}

	return errors.Join(errs...)
}

// KeypadConfig returns the matrix geometry for keypad.New.
func (c *Config) KeypadConfig() keypad.Config {
	return keypad.Config{
		Rows:       c.Keypad.Rows,
		Columns:    c.Keypad.Columns,
		RowPins:    c.Keypad.RowPins,
		ColumnPins: c.Keypad.ColumnPins,
		Keymap:     c.Keypad.Keymap,
	}
}

// EntryLine returns an entry line using the configured control keys.
func (c *Config) EntryLine() *entry.Line {
	l := entry.New()
	l.Submit = firstRune(c.Entry.Submit)
	l.Clear = firstRune(c.Entry.Clear)
	l.Backspace = firstRune(c.Entry.Backspace)
	l.MaxLen = c.Entry.MaxLen
	return l
}

func firstRune(s string) rune {
	if s == "" {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r
}

// ParsePins parses a comma-separated list of GPIO line numbers such as "5,6,13,19".
func ParsePins(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	pins := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid pin %q: %w", p, err)
		}
		if n < 0 {
			return nil, fmt.Errorf("invalid pin %d: must not be negative", n)
		}
		pins = append(pins, n)
	}
	return pins, nil
}

// FormatPins is the inverse of ParsePins.
func FormatPins(pins []int) string {
	s := make([]string, len(pins))
	for i, p := range pins {
		s[i] = strconv.Itoa(p)
	}
	return strings.Join(s, ",")
}
