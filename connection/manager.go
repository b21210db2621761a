package connection

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/hostwatch/bus"
	"github.com/vinayprograms/hostwatch/clock"
	"github.com/vinayprograms/hostwatch/errors"
	"github.com/vinayprograms/hostwatch/logging"
)

// Default values for Config.
const (
	DefaultReconnectInterval = 5 * time.Second
	DefaultConnectTimeout    = 10 * time.Second
	DefaultKeepAlive         = 30 * time.Second
	DefaultClientIDPrefix    = "hostwatch"
)

// Config holds connection parameters.
type Config struct {
	Host string
	Port int

	// ClientIDPrefix is combined with a random suffix for every session.
	ClientIDPrefix string

	Username string
	Password string

	// ReconnectInterval is the period of the reconnect timer.
	ReconnectInterval time.Duration

	ConnectTimeout time.Duration
	KeepAlive      time.Duration
}

// Validate checks the config for errors.
func (c Config) Validate() error {
	if c.Host == "" {
		return errors.Config("broker host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Configf("broker port %d out of range", c.Port)
	}
	return nil
}

// Handler receives connection events on the event loop.
type Handler interface {
	// OnConnect is called each time a session is established.
	OnConnect()

	// OnMessage is called for every inbound message.
	OnMessage(msg bus.Message)

	// OnDisconnected is called when an established session drops.
	OnDisconnected()
}

// Observer receives connection statistics. Implementations must not block.
type Observer interface {
	ObserveState(s State)
	ObserveReconnectAttempt()
}

type nopObserver struct{}

func (nopObserver) ObserveState(State)       {}
func (nopObserver) ObserveReconnectAttempt() {}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the time source for timers.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.log = l.WithComponent("connection") }
}

// WithObserver sets the statistics observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

// Manager owns one logical connection and the event loop.
type Manager struct {
	cfg      Config
	dialer   bus.Dialer
	clock    clock.Clock
	log      *logging.Logger
	observer Observer

	queue   *eventQueue
	running atomic.Bool
	closed  atomic.Bool
	state   atomic.Int32

	// Loop-owned fields.
	handler       Handler
	client        bus.Client
	generation    uint64
	attempting    bool
	lostInFlight  bool
	everConnected bool
	reconnect     *Timer
	timers        map[*Timer]struct{}
	fatal         *errors.Error
}

// New creates a Manager. The config is validated and defaults are applied
// to zero durations.
func New(cfg Config, dialer bus.Dialer, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dialer == nil {
		return nil, errors.Config("bus dialer is required")
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	if cfg.ClientIDPrefix == "" {
		cfg.ClientIDPrefix = DefaultClientIDPrefix
	}

	m := &Manager{
		cfg:      cfg,
		dialer:   dialer,
		clock:    clock.Real(),
		log:      logging.New().WithComponent("connection"),
		observer: nopObserver{},
		queue:    newEventQueue(),
		timers:   make(map[*Timer]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Run starts the event loop and the first connection attempt, and blocks
// until ctx is cancelled (returns nil) or a fatal error occurs. On return
// all timers are stopped and the session is closed. Run may be called once.
func (m *Manager) Run(ctx context.Context, h Handler) error {
	if h == nil {
		return errors.Internal("connection handler is required")
	}
	if m.running.Swap(true) {
		return errors.Internal("connection manager already running")
	}
	m.handler = h
	m.queue.push(m.connect)

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return nil
		default:
		}

		if fn, ok := m.queue.pop(); ok {
			fn()
			if m.fatal != nil {
				m.shutdown()
				return m.fatal
			}
			continue
		}

		select {
		case <-ctx.Done():
			m.shutdown()
			return nil
		case <-m.queue.wake:
		}
	}
}

// Post enqueues fn to run on the loop. Safe from any goroutine.
func (m *Manager) Post(fn func()) {
	m.queue.push(fn)
}

// Go runs work on a new goroutine and then, if non-nil, posts then to the
// loop. Variables written by work are visible to then.
func (m *Manager) Go(work func(), then func()) {
	go func() {
		work()
		if then != nil {
			m.queue.push(then)
		}
	}()
}

// Now returns the current time from the Manager's clock.
func (m *Manager) Now() time.Time {
	return m.clock.Now()
}

// State returns the current connection state. Safe from any goroutine.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Publish sends a message on the current session. Must be called from the loop.
func (m *Manager) Publish(topic string, payload []byte, opts bus.PublishOptions) error {
	if m.client == nil || m.State() != Connected {
		return bus.ErrNotConnected
	}
	if err := m.client.Publish(topic, payload, opts); err != nil {
		return err
	}
	m.log.Published(topic, opts.Retain)
	return nil
}

// Subscribe adds a topic filter on the current session. Must be called from the loop.
func (m *Manager) Subscribe(filter string) error {
	if m.client == nil || m.State() != Connected {
		return bus.ErrNotConnected
	}
	if err := m.client.Subscribe(filter); err != nil {
		return err
	}
	m.log.Debug("subscribed", map[string]interface{}{"filter": filter})
	return nil
}

// Unsubscribe removes a topic filter. Must be called from the loop.
func (m *Manager) Unsubscribe(filter string) error {
	if m.client == nil || m.State() != Connected {
		return bus.ErrNotConnected
	}
	if err := m.client.Unsubscribe(filter); err != nil {
		return err
	}
	m.log.Debug("unsubscribed", map[string]interface{}{"filter": filter})
	return nil
}

func (m *Manager) setState(s State) {
	if State(m.state.Swap(int32(s))) != s {
		m.observer.ObserveState(s)
	}
}

func (m *Manager) clientID() string {
	return fmt.Sprintf("%s-%s", m.cfg.ClientIDPrefix, uuid.NewString()[:8])
}

// connect starts a handshake on a freshly dialled client.
func (m *Manager) connect() {
	if m.attempting {
		return
	}
	m.attempting = true
	m.lostInFlight = false
	m.generation++
	gen := m.generation

	m.setState(Connecting)
	client := m.dialer.Dial(bus.DialConfig{
		Host:           m.cfg.Host,
		Port:           m.cfg.Port,
		ClientID:       m.clientID(),
		Username:       m.cfg.Username,
		Password:       m.cfg.Password,
		ConnectTimeout: m.cfg.ConnectTimeout,
		KeepAlive:      m.cfg.KeepAlive,
	}, &session{m: m, generation: gen})
	m.client = client

	m.log.Debug("connecting", map[string]interface{}{
		"host": m.cfg.Host,
		"port": m.cfg.Port,
	})

	var err error
	m.Go(func() {
		err = client.Connect()
		if err == nil && m.closed.Load() {
			client.Disconnect()
		}
	}, func() {
		m.connectDone(gen, client, err)
	})
}

func (m *Manager) connectDone(gen uint64, client bus.Client, err error) {
	m.attempting = false
	if gen != m.generation || m.closed.Load() {
		client.Disconnect()
		return
	}

	if err != nil {
		m.client = nil
		m.setState(Disconnected)
		cerr := classify(err, m.cfg, !m.everConnected)
		if !errors.IsRetryable(cerr) {
			m.fail(cerr)
			return
		}
		m.log.Warn("connection attempt failed", map[string]interface{}{
			"error":       err.Error(),
			"syscall":     cerr.Metadata()["syscall"],
			"retry_every": m.cfg.ReconnectInterval.String(),
		})
		m.scheduleReconnect()
		return
	}

	// The session dropped before the handshake was acknowledged.
	if m.lostInFlight {
		m.lostInFlight = false
		client.Disconnect()
		m.client = nil
		m.setState(Disconnected)
		m.log.Warn("connection lost during handshake", map[string]interface{}{
			"retry_every": m.cfg.ReconnectInterval.String(),
		})
		m.scheduleReconnect()
		return
	}

	m.everConnected = true
	m.setState(Connected)
	m.stopReconnect()
	m.log.Connected(m.cfg.Host, m.cfg.Port)
	m.handler.OnConnect()
}

func (m *Manager) connectionLost(gen uint64, err error) {
	if gen != m.generation {
		return
	}
	if m.attempting {
		m.lostInFlight = true
		return
	}
	if m.State() != Connected {
		return
	}
	m.client = nil
	m.setState(Disconnected)
	m.log.ConnectionLost(err, m.cfg.ReconnectInterval)
	m.handler.OnDisconnected()
	m.scheduleReconnect()
}

// scheduleReconnect arms the reconnect timer unless one is already live.
func (m *Manager) scheduleReconnect() {
	if m.reconnect.Active() {
		return
	}
	m.reconnect = m.Every(m.cfg.ReconnectInterval, m.reconnectTick)
}

func (m *Manager) stopReconnect() {
	m.reconnect.Stop()
	m.reconnect = nil
}

func (m *Manager) reconnectTick() {
	if m.attempting {
		m.log.Debug("reconnect tick skipped, attempt in flight", nil)
		return
	}
	if m.State() == Connected {
		m.stopReconnect()
		return
	}
	m.observer.ObserveReconnectAttempt()
	m.log.Info("reconnecting", map[string]interface{}{
		"host": m.cfg.Host,
		"port": m.cfg.Port,
	})
	m.connect()
}

// fail records a fatal error; Run returns it after the current event.
func (m *Manager) fail(err *errors.Error) {
	fields := make(map[string]interface{})
	for k, v := range err.Metadata() {
		fields[k] = v
	}
	fields["code"] = string(err.Code())
	fields["error"] = err.Error()
	m.log.Fatal("unrecoverable connection error", fields)
	m.fatal = err
}

// shutdown stops every loop timer and closes the session.
func (m *Manager) shutdown() {
	m.closed.Store(true)
	for t := range m.timers {
		t.Stop()
	}
	m.reconnect = nil
	if m.client != nil {
		m.client.Disconnect()
		m.client = nil
	}
	m.generation++
	m.setState(Disconnected)
}

// session adapts bus.Events for one client, tagging every event with the
// generation it belongs to so events from superseded clients are dropped.
type session struct {
	m          *Manager
	generation uint64
}

func (s *session) MessageReceived(msg bus.Message) {
	s.m.queue.push(func() {
		if s.generation != s.m.generation || s.m.State() != Connected {
			return
		}
		s.m.handler.OnMessage(msg)
	})
}

func (s *session) ConnectionLost(err error) {
	s.m.queue.push(func() {
		s.m.connectionLost(s.generation, err)
	})
}

func (s *session) AsyncError(op, topic string, err error) {
	s.m.queue.push(func() {
		s.m.log.Warn("broker operation failed", map[string]interface{}{
			"op":    op,
			"topic": topic,
			"error": err.Error(),
		})
	})
}
