package bus

import (
	"errors"
	"strings"
	"time"
)

// Common errors.
var (
	ErrClosed        = errors.New("bus closed")
	ErrNotConnected  = errors.New("not connected")
	ErrInvalidTopic  = errors.New("invalid topic")
	ErrInvalidFilter = errors.New("invalid topic filter")
)

// Message represents a message received from the bus.
type Message struct {
	// Topic the message was published to.
	Topic string

	// Payload is the message body. An empty payload on a retained topic
	// clears the retained value.
	Payload []byte

	// Retained is true when the broker delivered a stored value in
	// response to a new subscription.
	Retained bool
}

// PublishOptions controls how a message is published.
type PublishOptions struct {
	// Retain asks the broker to keep this value for late subscribers.
	Retain bool

	// QoS is the MQTT quality of service level (0, 1 or 2).
	QoS byte
}

// Events receives asynchronous notifications from a Client.
// Implementations must be safe for concurrent use and must not block.
type Events interface {
	// MessageReceived is called for every inbound message.
	MessageReceived(msg Message)

	// ConnectionLost is called when an established session drops.
	ConnectionLost(err error)

	// AsyncError reports a failure of an operation that completed after
	// its call returned (publish, subscribe, unsubscribe).
	AsyncError(op, topic string, err error)
}

// Client is a single broker session.
type Client interface {
	// Connect performs the handshake. It blocks until the session is
	// established or fails, and must not be called on the event loop.
	Connect() error

	// Publish sends a message. It does not wait for broker acknowledgement.
	Publish(topic string, payload []byte, opts PublishOptions) error

	// Subscribe registers interest in a topic filter (wildcards allowed).
	Subscribe(filter string) error

	// Unsubscribe removes a subscription.
	Unsubscribe(filter string) error

	// Disconnect closes the session. Safe to call more than once.
	Disconnect()
}

// DialConfig holds everything needed to open one session.
type DialConfig struct {
	Host     string
	Port     int
	ClientID string

	Username string
	Password string

	// ConnectTimeout bounds the handshake.
	ConnectTimeout time.Duration

	// KeepAlive is the MQTT keep-alive period.
	KeepAlive time.Duration
}

// Dialer creates unconnected clients.
type Dialer interface {
	Dial(cfg DialConfig, events Events) Client
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(cfg DialConfig, events Events) Client

// Dial implements Dialer.
func (f DialerFunc) Dial(cfg DialConfig, events Events) Client {
	return f(cfg, events)
}

// ValidateTopic checks that a topic is usable for publishing.
// Wildcards are not allowed in published topics.
func ValidateTopic(topic string) error {
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return ErrInvalidTopic
	}
	return nil
}

// ValidateFilter checks a subscription filter. '+' must occupy a whole
// level and '#' must be the last level.
func ValidateFilter(filter string) error {
	if filter == "" {
		return ErrInvalidFilter
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, "#") && (level != "#" || i != len(levels)-1) {
			return ErrInvalidFilter
		}
		if strings.Contains(level, "+") && level != "+" {
			return ErrInvalidFilter
		}
	}
	return nil
}

// MatchTopic reports whether topic matches the subscription filter using
// MQTT wildcard rules.
func MatchTopic(filter, topic string) bool {
	if filter == topic {
		return true
	}
	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")

	for i, level := range fl {
		if level == "#" {
			return true
		}
		if i >= len(tl) {
			return false
		}
		if level != "+" && level != tl[i] {
			return false
		}
	}
	return len(fl) == len(tl)
}
