package bus

import (
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"
)

// getMQTTBroker returns the broker address for testing, or skips the test.
func getMQTTBroker(t *testing.T) (string, int) {
	if testing.Short() {
		t.Skip("skipping MQTT test in short mode")
	}

	host := os.Getenv("MQTT_HOST")
	if host == "" {
		t.Skip("skipping: MQTT_HOST not set")
	}
	port := 1883
	if p := os.Getenv("MQTT_PORT"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			t.Fatalf("invalid MQTT_PORT %q: %v", p, err)
		}
		port = n
	}
	return host, port
}

// chanEvents forwards messages onto a channel.
type chanEvents struct {
	msgs chan Message
}

func (e *chanEvents) MessageReceived(msg Message) {
	select {
	case e.msgs <- msg:
	default:
	}
}

func (e *chanEvents) ConnectionLost(err error) {}

func (e *chanEvents) AsyncError(op, topic string, err error) {}

// --- Unit Tests ---

func TestMQTTDialer_BrokerURL(t *testing.T) {
	tests := []struct {
		scheme string
		host   string
		port   int
		want   string
	}{
		{"", "localhost", 1883, "tcp://localhost:1883"},
		{"tcp", "broker.local", 1884, "tcp://broker.local:1884"},
		{"ssl", "10.0.0.1", 8883, "ssl://10.0.0.1:8883"},
		{"tcp", "::1", 1883, "tcp://[::1]:1883"},
	}

	for _, tt := range tests {
		d := &MQTTDialer{Scheme: tt.scheme}
		got := d.BrokerURL(DialConfig{Host: tt.host, Port: tt.port})
		if got != tt.want {
			t.Errorf("BrokerURL(%s, %s, %d) = %q, want %q", tt.scheme, tt.host, tt.port, got, tt.want)
		}
	}
}

func TestBuildMQTTOptions(t *testing.T) {
	opts := buildMQTTOptions("tcp://localhost:1883", DialConfig{
		ClientID:       "hostwatch-test",
		Username:       "user",
		Password:       "secret",
		ConnectTimeout: 3 * time.Second,
		KeepAlive:      20 * time.Second,
	})

	if opts.AutoReconnect {
		t.Error("auto reconnect should be disabled")
	}
	if opts.ConnectRetry {
		t.Error("connect retry should be disabled")
	}
	if opts.ClientID != "hostwatch-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "user" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if opts.ConnectTimeout != 3*time.Second {
		t.Errorf("ConnectTimeout = %v", opts.ConnectTimeout)
	}
	if opts.KeepAlive != 20 {
		t.Errorf("KeepAlive = %d seconds, want 20", opts.KeepAlive)
	}
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://localhost:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
}

// --- Integration Tests ---

func TestMQTTClient_RetainedRoundTrip(t *testing.T) {
	host, port := getMQTTBroker(t)
	topic := fmt.Sprintf("/hostwatch-test/%d/isUp", time.Now().UnixNano())

	dialer := NewMQTTDialer()
	pub := dialer.Dial(DialConfig{Host: host, Port: port, ClientID: "hw-pub", ConnectTimeout: 2 * time.Second}, &chanEvents{msgs: make(chan Message, 4)})
	if err := pub.Connect(); err != nil {
		t.Skipf("skipping: MQTT not available at %s:%d: %v", host, port, err)
	}
	defer pub.Disconnect()

	if err := pub.Publish(topic, []byte("true"), PublishOptions{Retain: true, QoS: 1}); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	defer pub.Publish(topic, nil, PublishOptions{Retain: true, QoS: 1})
	time.Sleep(200 * time.Millisecond)

	events := &chanEvents{msgs: make(chan Message, 4)}
	sub := dialer.Dial(DialConfig{Host: host, Port: port, ClientID: "hw-sub", ConnectTimeout: 2 * time.Second}, events)
	if err := sub.Connect(); err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	defer sub.Disconnect()

	if err := sub.Subscribe(topic); err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}

	select {
	case msg := <-events.msgs:
		if string(msg.Payload) != "true" {
			t.Errorf("payload = %q, want %q", msg.Payload, "true")
		}
		if !msg.Retained {
			t.Error("expected retained flag")
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for retained message")
	}
}
