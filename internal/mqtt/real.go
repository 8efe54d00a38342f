package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/keypad-sensor/internal/events"
)

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	topics Topics

	// mu guards everything below. online only turns true with the buffer
	// empty.
	mu       sync.Mutex
	online   bool
	epoch    uint64
	buf      *ringBuffer
	overflow bool
	subs     map[string]func([]byte)
}

// NewRealPublisher creates a publisher connected to the given broker.
// If the broker is unreachable the client keeps retrying in the background
// and messages are buffered until it connects.
func NewRealPublisher(broker, clientID string, topics Topics) (*RealPublisher, error) {
	p := &RealPublisher{
		topics: topics,
		buf:    newRingBuffer(DefaultBufferSize),
		subs:   make(map[string]func([]byte)),
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "LWT"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(topics.System, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
			p.goOffline()
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt: broker %s not reachable yet, buffering until connected", broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// onConnect replays buffered messages and restores subscriptions.
// paho calls it on its own goroutine for every (re)connection.
func (p *RealPublisher) onConnect(_ paho.Client) {
	epoch := p.beginReplay()
	replayed := 0
	for {
		pending, subs, ok := p.takePending(epoch)
		if !ok {
			log.Printf("mqtt: connection lost during replay after %d messages", replayed)
			return
		}
		if pending == nil {
			log.Printf("mqtt: connected, replayed %d buffered messages", replayed)
			for topic, h := range subs {
				if err := p.subscribe(topic, h); err != nil {
					log.Printf("mqtt: resubscribe %s: %v", topic, err)
				}
			}
			return
		}
		for _, msg := range pending {
			if err := p.send(msg); err != nil {
				log.Printf("mqtt: replay to %s failed: %v", msg.topic, err)
			}
		}
		replayed += len(pending)
	}
}

func (p *RealPublisher) beginReplay() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.epoch++
	return p.epoch
}

// takePending drains the buffer for the replay started at epoch. Once the
// buffer is empty the publisher goes online in the same critical section and
// the subscriptions to restore are returned with a nil message slice. ok is
// false if the connection was lost since the replay began.
func (p *RealPublisher) takePending(epoch uint64) (pending []bufferedMsg, subs map[string]func([]byte), ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.epoch != epoch {
		return nil, nil, false
	}
	p.overflow = false
	if pending = p.buf.drainAll(); pending != nil {
		return pending, nil, true
	}
	p.online = true
	subs = make(map[string]func([]byte), len(p.subs))
	for topic, h := range p.subs {
		subs[topic] = h
	}
	return nil, subs, true
}

func (p *RealPublisher) goOffline() {
	p.mu.Lock()
	p.online = false
	p.epoch++
	p.mu.Unlock()
}

// enqueue buffers msg if the publisher is offline. It reports whether the
// caller should send msg itself.
func (p *RealPublisher) enqueue(msg bufferedMsg) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.online {
		return true
	}
	if p.buf.push(msg) && !p.overflow {
		log.Printf("mqtt: buffer full (%d messages), dropping oldest", DefaultBufferSize)
		p.overflow = true
	}
	return false
}

// Publish sends a key event to the MQTT broker.
func (p *RealPublisher) Publish(event events.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	return p.publish(bufferedMsg{topic: p.topics.Events, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	return p.publish(bufferedMsg{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained})
}

// PublishText sends a line of text to the display topic.
func (p *RealPublisher) PublishText(text string) error {
	if p.topics.Display == "" {
		return nil
	}
	return p.publish(bufferedMsg{topic: p.topics.Display, payload: []byte(text), qos: 1})
}

func (p *RealPublisher) publish(msg bufferedMsg) error {
	if !p.enqueue(msg) {
		return nil
	}
	return p.send(msg)
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", msg.topic, err)
	}
	return nil
}

// Subscribe registers handler for topic. The subscription is restored after
// every reconnect.
func (p *RealPublisher) Subscribe(topic string, handler func(payload []byte)) error {
	p.mu.Lock()
	p.subs[topic] = handler
	online := p.online
	p.mu.Unlock()

	if !online {
		return nil
	}
	return p.subscribe(topic, handler)
}

func (p *RealPublisher) subscribe(topic string, handler func([]byte)) error {
	token := p.client.Subscribe(topic, 1, func(_ paho.Client, m paho.Message) {
		handler(m.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports whether the client currently has an open connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
