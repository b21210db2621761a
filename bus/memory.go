package bus

import (
	"sort"
	"sync"
)

// MemoryBroker is an in-process broker that implements Dialer.
// It supports retained messages, MQTT wildcard filters and fault injection,
// which makes it suitable for testing the connection state machine.
type MemoryBroker struct {
	mu         sync.Mutex
	retained   map[string][]byte
	sessions   map[*memoryClient]struct{}
	connectErr error
	attempts   int
	history    []Published
}

// Published records one message accepted by the broker.
type Published struct {
	Topic   string
	Payload []byte
	Retain  bool
}

// NewMemoryBroker creates an empty broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		retained: make(map[string][]byte),
		sessions: make(map[*memoryClient]struct{}),
	}
}

// Dial implements Dialer.
func (b *MemoryBroker) Dial(cfg DialConfig, events Events) Client {
	return &memoryClient{
		broker:  b,
		id:      cfg.ClientID,
		events:  events,
		filters: make(map[string]struct{}),
	}
}

// SetConnectError makes every subsequent Connect fail with err until it is
// cleared with nil.
func (b *MemoryBroker) SetConnectError(err error) {
	b.mu.Lock()
	b.connectErr = err
	b.mu.Unlock()
}

// ConnectAttempts returns the number of Connect calls seen so far.
func (b *MemoryBroker) ConnectAttempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Sessions returns the number of connected clients.
func (b *MemoryBroker) Sessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// Retained returns the stored value for a topic.
func (b *MemoryBroker) Retained(topic string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.retained[topic]
	return v, ok
}

// RetainedTopics returns all topics holding a retained value, sorted.
func (b *MemoryBroker) RetainedTopics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	topics := make([]string, 0, len(b.retained))
	for t := range b.retained {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// History returns every message published through the broker.
func (b *MemoryBroker) History() []Published {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Published, len(b.history))
	copy(out, b.history)
	return out
}

// Publish injects a message as if an external client had sent it.
func (b *MemoryBroker) Publish(topic string, payload []byte, opts PublishOptions) error {
	if err := ValidateTopic(topic); err != nil {
		return err
	}
	b.route(topic, payload, opts.Retain)
	return nil
}

// DropAll severs every session. Each client's Events sink receives
// ConnectionLost with err.
func (b *MemoryBroker) DropAll(err error) {
	b.mu.Lock()
	dropped := make([]*memoryClient, 0, len(b.sessions))
	for c := range b.sessions {
		dropped = append(dropped, c)
	}
	b.sessions = make(map[*memoryClient]struct{})
	b.mu.Unlock()

	for _, c := range dropped {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		c.events.ConnectionLost(err)
	}
}

// route stores retained values and fans the message out to matching sessions.
func (b *MemoryBroker) route(topic string, payload []byte, retain bool) {
	b.mu.Lock()
	b.history = append(b.history, Published{Topic: topic, Payload: payload, Retain: retain})
	if retain {
		if len(payload) == 0 {
			delete(b.retained, topic)
		} else {
			b.retained[topic] = payload
		}
	}
	var targets []*memoryClient
	for c := range b.sessions {
		if c.matches(topic) {
			targets = append(targets, c)
		}
	}
	b.mu.Unlock()

	for _, c := range targets {
		c.events.MessageReceived(Message{Topic: topic, Payload: payload})
	}
}

type memoryClient struct {
	broker *MemoryBroker
	id     string
	events Events

	mu        sync.Mutex
	connected bool
	filters   map[string]struct{}
}

func (c *memoryClient) matches(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for f := range c.filters {
		if MatchTopic(f, topic) {
			return true
		}
	}
	return false
}

func (c *memoryClient) isConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect registers the session with the broker.
func (c *memoryClient) Connect() error {
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempts++
	if b.connectErr != nil {
		return b.connectErr
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	b.sessions[c] = struct{}{}
	return nil
}

// Publish routes a message through the broker.
func (c *memoryClient) Publish(topic string, payload []byte, opts PublishOptions) error {
	if err := ValidateTopic(topic); err != nil {
		return err
	}
	if !c.isConnected() {
		return ErrNotConnected
	}
	c.broker.route(topic, payload, opts.Retain)
	return nil
}

// Subscribe adds a filter and delivers matching retained values.
func (c *memoryClient) Subscribe(filter string) error {
	if err := ValidateFilter(filter); err != nil {
		return err
	}
	if !c.isConnected() {
		return ErrNotConnected
	}

	c.mu.Lock()
	c.filters[filter] = struct{}{}
	c.mu.Unlock()

	b := c.broker
	b.mu.Lock()
	var topics []string
	for t := range b.retained {
		if MatchTopic(filter, t) {
			topics = append(topics, t)
		}
	}
	sort.Strings(topics)
	msgs := make([]Message, 0, len(topics))
	for _, t := range topics {
		msgs = append(msgs, Message{Topic: t, Payload: b.retained[t], Retained: true})
	}
	b.mu.Unlock()

	for _, m := range msgs {
		c.events.MessageReceived(m)
	}
	return nil
}

// Unsubscribe removes a filter.
func (c *memoryClient) Unsubscribe(filter string) error {
	if !c.isConnected() {
		return ErrNotConnected
	}
	c.mu.Lock()
	delete(c.filters, filter)
	c.mu.Unlock()
	return nil
}

// Disconnect leaves the broker without triggering ConnectionLost.
func (c *memoryClient) Disconnect() {
	c.mu.Lock()
	c.connected = false
	c.filters = make(map[string]struct{})
	c.mu.Unlock()

	b := c.broker
	b.mu.Lock()
	delete(b.sessions, c)
	b.mu.Unlock()
}
