package mqtt

import (
	"github.com/sweeney/keypad-sensor/internal/events"
)

// FakePublisher records published events for test assertions.
type FakePublisher struct {
	// Events contains all key events that were published.
	Events []events.Event

	// Payloads contains the JSON payloads that were published.
	Payloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// Texts contains every line sent to the display topic.
	Texts []string

	// Handlers maps subscribed topics to their handlers.
	Handlers map[string]func([]byte)

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// SubscribeError, if set, will be returned by Subscribe.
	SubscribeError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{Handlers: make(map[string]func([]byte))}
}

// Publish records the key event.
func (f *FakePublisher) Publish(event events.Event) error {
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.Payloads = append(f.Payloads, payload)

	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)

	return nil
}

// PublishText records the display line.
func (f *FakePublisher) PublishText(text string) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Texts = append(f.Texts, text)
	return nil
}

// Subscribe records the handler for topic.
func (f *FakePublisher) Subscribe(topic string, handler func([]byte)) error {
	if f.SubscribeError != nil {
		return f.SubscribeError
	}
	f.Handlers[topic] = handler
	return nil
}

// Deliver simulates an inbound message. It reports whether a handler was subscribed.
func (f *FakePublisher) Deliver(topic string, payload []byte) bool {
	h, ok := f.Handlers[topic]
	if ok {
		h(payload)
	}
	return ok
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.Events = nil
	f.Payloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Texts = nil
	f.Handlers = make(map[string]func([]byte))
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.SubscribeError = nil
	f.Connected = false
}
