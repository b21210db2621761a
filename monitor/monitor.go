package monitor

import (
	"time"

	"github.com/vinayprograms/hostwatch/bus"
	"github.com/vinayprograms/hostwatch/connection"
	"github.com/vinayprograms/hostwatch/errors"
	"github.com/vinayprograms/hostwatch/logging"
	"github.com/vinayprograms/hostwatch/metrics"
	"github.com/vinayprograms/hostwatch/presence"
	"github.com/vinayprograms/hostwatch/protocol"
)

// DefaultCheckInterval is the sweep period when none is configured.
const DefaultCheckInterval = 10 * time.Second

var (
	payloadTrue  = []byte("true")
	payloadFalse = []byte("false")
)

// Conn is the part of connection.Manager the monitor uses. All calls happen
// on the manager's event loop.
type Conn interface {
	Publish(topic string, payload []byte, opts bus.PublishOptions) error
	Subscribe(filter string) error
	Unsubscribe(filter string) error
	Every(interval time.Duration, fn func()) *connection.Timer
	Now() time.Time
}

// Config configures a Monitor.
type Config struct {
	Topics protocol.Topics

	// CheckInterval is the sweep period.
	CheckInterval time.Duration

	// DefaultReportInterval applies to registrations and static entries
	// without an interval.
	DefaultReportInterval time.Duration

	// Static participants are tracked from startup and never removed.
	Static []presence.StaticParticipant
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Monitor) { m.log = l.WithComponent("monitor") }
}

// WithMetrics sets the metrics sink.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Monitor) { m.metrics = mt }
}

// Monitor tracks participant liveness and publishes availability.
// It implements connection.Handler.
type Monitor struct {
	conn          Conn
	topics        protocol.Topics
	checkInterval time.Duration
	registry      *presence.Registry
	sweep         *connection.Timer

	log     *logging.Logger
	metrics *metrics.Metrics
}

var _ connection.Handler = (*Monitor)(nil)

// New creates a Monitor and registers the static participants. Invalid
// static entries are reported as ErrCodeConfig errors.
func New(conn Conn, cfg Config, opts ...Option) (*Monitor, error) {
	if conn == nil {
		return nil, errors.Config("monitor needs a connection")
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}

	m := &Monitor{
		conn:          conn,
		topics:        cfg.Topics,
		checkInterval: cfg.CheckInterval,
		registry:      presence.New(cfg.Topics, cfg.DefaultReportInterval),
		log:           logging.New().WithComponent("monitor"),
	}
	for _, opt := range opts {
		opt(m)
	}

	for _, sp := range cfg.Static {
		if err := m.registry.RegisterStatic(sp); err != nil {
			return nil, err
		}
	}
	m.updateGauges()
	return m, nil
}

// Participants returns the tracked participants. Call from the event loop.
func (m *Monitor) Participants() []presence.Participant {
	return m.registry.List()
}

// OnConnect subscribes everything the monitor listens to, asks agents to
// register again and restarts the sweep timer.
func (m *Monitor) OnConnect() {
	m.subscribe(m.topics.Register())
	m.subscribe(m.topics.AvailabilityFilter())
	for _, topic := range m.registry.ReportTopics() {
		m.subscribe(topic)
	}

	m.publish(m.topics.Reregister(), payloadTrue, false)
	m.log.Info("requested re-registration", map[string]interface{}{
		"participants": m.registry.Len(),
	})

	m.sweep.Stop()
	m.sweep = m.conn.Every(m.checkInterval, m.runSweep)
}

// OnDisconnected stops the sweep timer; nothing can be published until the
// connection returns.
func (m *Monitor) OnDisconnected() {
	m.sweep.Stop()
	m.sweep = nil
}

// OnMessage routes an inbound message.
func (m *Monitor) OnMessage(msg bus.Message) {
	if msg.Topic == m.topics.Register() {
		m.handleRegistration(msg)
		return
	}
	if _, ok := m.topics.IsAvailability(msg.Topic); ok {
		m.handleAvailability(msg)
		return
	}
	m.handleReport(msg)
}

func (m *Monitor) handleRegistration(msg bus.Message) {
	reg, err := protocol.ParseRegistration(msg.Payload)
	if err != nil {
		m.metrics.Registration(metrics.ResultInvalid)
		m.log.Warn("dropping malformed registration", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	res, err := m.registry.ObserveRegistration(reg, m.conn.Now())
	if err != nil {
		m.metrics.Registration(metrics.ResultRejected)
		fields := map[string]interface{}{"error": err.Error()}
		for k, v := range errors.GetMetadata(err) {
			fields[k] = v
		}
		m.log.Warn("rejecting registration", fields)
		return
	}

	if res.Unsubscribe != "" {
		m.unsubscribe(res.Unsubscribe)
	}
	if res.Subscribe {
		m.subscribe(res.Participant.ReportTopic)
	}

	result := metrics.ResultAccepted
	if res.Merged {
		result = metrics.ResultMerged
	}
	m.metrics.Registration(result)
	m.log.Info("registered", map[string]interface{}{
		"id":       res.Participant.ID,
		"topic":    res.Participant.ReportTopic,
		"interval": res.Participant.ReportInterval.String(),
		"static":   res.Participant.Static,
	})

	if res.MarkAvailable && m.setAvailability(res.Participant, true) {
		m.log.HostUp(res.Participant.ID, "registered")
	}
	m.updateGauges()
}

func (m *Monitor) handleAvailability(msg bus.Message) {
	if len(msg.Payload) == 0 {
		return
	}
	if !m.registry.OwnsAvailabilityTopic(msg.Topic) {
		m.publish(msg.Topic, nil, true)
		m.metrics.RetainedScrubbed()
		m.log.Info("removing stale availability topic", map[string]interface{}{
			"topic": msg.Topic,
		})
		return
	}
	if msg.Retained && string(msg.Payload) == string(payloadTrue) {
		if m.registry.AdoptAvailability(msg.Topic, true, m.conn.Now()) {
			m.log.Debug("adopted retained availability", map[string]interface{}{
				"topic": msg.Topic,
			})
			m.updateGauges()
		}
	}
}

func (m *Monitor) handleReport(msg bus.Message) {
	res := m.registry.ObserveReport(msg.Topic, m.conn.Now())
	if !res.Known {
		return
	}
	m.metrics.Report()
	if res.MarkAvailable && m.setAvailability(res.Participant, true) {
		m.log.HostUp(res.Participant.ID, "report received")
		m.updateGauges()
	}
}

func (m *Monitor) runSweep() {
	m.log.Debug("checking participants", map[string]interface{}{
		"participants": m.registry.Len(),
	})
	actions := m.registry.Sweep(m.conn.Now())
	m.metrics.Sweep()

	for _, a := range actions {
		switch a.Kind {
		case presence.MarkDown:
			m.log.HostDown(a.Participant.ID, a.SilentFor)
			m.setAvailability(a.Participant, false)
		case presence.Remove:
			m.unsubscribe(a.Participant.ReportTopic)
			m.log.Info("removed participant", map[string]interface{}{
				"id":         a.Participant.ID,
				"topic":      a.Participant.ReportTopic,
				"silent_for": a.SilentFor.Round(time.Millisecond).String(),
			})
		}
	}
	if len(actions) > 0 {
		m.updateGauges()
	}
}

// setAvailability publishes up to the participant's availability topic and
// records it in the registry only once the publish went through.
func (m *Monitor) setAvailability(p presence.Participant, up bool) bool {
	payload := payloadFalse
	if up {
		payload = payloadTrue
	}
	if !m.publish(p.AvailabilityTopic, payload, true) {
		return false
	}
	m.registry.SetMarked(p.ReportTopic, up)
	m.metrics.AvailabilityChanged(up)
	return true
}

func (m *Monitor) publish(topic string, payload []byte, retain bool) bool {
	if err := m.conn.Publish(topic, payload, bus.PublishOptions{Retain: retain}); err != nil {
		m.log.Warn("publish failed", map[string]interface{}{
			"topic": topic,
			"error": err.Error(),
		})
		return false
	}
	return true
}

func (m *Monitor) subscribe(filter string) {
	if err := m.conn.Subscribe(filter); err != nil {
		m.log.Warn("subscribe failed", map[string]interface{}{
			"filter": filter,
			"error":  err.Error(),
		})
	}
}

func (m *Monitor) unsubscribe(filter string) {
	if err := m.conn.Unsubscribe(filter); err != nil {
		m.log.Warn("unsubscribe failed", map[string]interface{}{
			"filter": filter,
			"error":  err.Error(),
		})
	}
}

func (m *Monitor) updateGauges() {
	static, dynamic, up := m.registry.Counts()
	m.metrics.SetParticipants(static, dynamic, up)
}
