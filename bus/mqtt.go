package bus

import (
	"fmt"
	"net"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// disconnectQuiesce is how long Disconnect lets in-flight work drain.
const disconnectQuiesce = 250 * time.Millisecond

// MQTTDialer dials broker sessions with the Paho MQTT client.
type MQTTDialer struct {
	// Scheme is the broker URL scheme ("tcp", "ssl", "ws"). Default: tcp.
	Scheme string
}

// NewMQTTDialer returns a dialer for plain TCP brokers.
func NewMQTTDialer() *MQTTDialer {
	return &MQTTDialer{Scheme: "tcp"}
}

// BrokerURL formats the broker address for cfg.
func (d *MQTTDialer) BrokerURL(cfg DialConfig) string {
	scheme := d.Scheme
	if scheme == "" {
		scheme = "tcp"
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))
}

// Dial implements Dialer. The returned client has Paho's automatic
// reconnect and connect-retry disabled.
func (d *MQTTDialer) Dial(cfg DialConfig, events Events) Client {
	opts := buildMQTTOptions(d.BrokerURL(cfg), cfg)

	c := &mqttClient{events: events}
	opts.SetDefaultPublishHandler(func(_ mqtt.Client, m mqtt.Message) {
		events.MessageReceived(Message{
			Topic:    m.Topic(),
			Payload:  m.Payload(),
			Retained: m.Retained(),
		})
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		events.ConnectionLost(err)
	})

	c.client = mqtt.NewClient(opts)
	return c
}

// buildMQTTOptions constructs Paho client options from config.
func buildMQTTOptions(broker string, cfg DialConfig) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetOrderMatters(true)

	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}
	if cfg.KeepAlive > 0 {
		opts.SetKeepAlive(cfg.KeepAlive)
	}
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	return opts
}

// mqttClient wraps a Paho client.
type mqttClient struct {
	client mqtt.Client
	events Events
}

// Connect blocks until the handshake completes.
func (c *mqttClient) Connect() error {
	token := c.client.Connect()
	token.Wait()
	return token.Error()
}

// Publish sends a message; delivery failures are reported via AsyncError.
func (c *mqttClient) Publish(topic string, payload []byte, opts PublishOptions) error {
	if err := ValidateTopic(topic); err != nil {
		return err
	}
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	c.watch("publish", topic, c.client.Publish(topic, opts.QoS, opts.Retain, payload))
	return nil
}

// Subscribe registers a filter; inbound messages go to the default handler.
func (c *mqttClient) Subscribe(filter string) error {
	if err := ValidateFilter(filter); err != nil {
		return err
	}
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	c.watch("subscribe", filter, c.client.Subscribe(filter, 0, nil))
	return nil
}

// Unsubscribe removes a filter.
func (c *mqttClient) Unsubscribe(filter string) error {
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	c.watch("unsubscribe", filter, c.client.Unsubscribe(filter))
	return nil
}

// Disconnect closes the session if it is open.
func (c *mqttClient) Disconnect() {
	if c.client.IsConnected() {
		c.client.Disconnect(uint(disconnectQuiesce / time.Millisecond))
	}
}

// watch reports a token's eventual error without blocking the caller.
func (c *mqttClient) watch(op, topic string, token mqtt.Token) {
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			c.events.AsyncError(op, topic, err)
		}
	}()
}
