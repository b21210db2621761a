package agent

import (
	"context"
	"strings"
	"time"

	"github.com/vinayprograms/hostwatch/bus"
	"github.com/vinayprograms/hostwatch/connection"
	"github.com/vinayprograms/hostwatch/errors"
	"github.com/vinayprograms/hostwatch/logging"
	"github.com/vinayprograms/hostwatch/metrics"
	"github.com/vinayprograms/hostwatch/protocol"
	"github.com/vinayprograms/hostwatch/telemetry"
)

// Defaults.
const (
	DefaultReportInterval = 5 * time.Second
	DefaultCollectTimeout = 10 * time.Second
)

// Conn is the part of connection.Manager the agent uses.
type Conn interface {
	Publish(topic string, payload []byte, opts bus.PublishOptions) error
	Subscribe(filter string) error
	Every(interval time.Duration, fn func()) *connection.Timer
	Go(work func(), then func())
}

// Config configures an Agent.
type Config struct {
	// ID identifies this host; see ResolveID.
	ID string

	Topics protocol.Topics

	// ReportTopic overrides the default /<root>/<id>/<reportName>.
	ReportTopic string

	ReportInterval time.Duration

	// CollectTimeout bounds a single telemetry collection.
	CollectTimeout time.Duration
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *Agent) { a.log = l.WithComponent("agent") }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

// Agent registers with the monitor and publishes telemetry.
type Agent struct {
	conn      Conn
	collector telemetry.Collector
	cfg       Config

	registration []byte
	report       *connection.Timer
	collecting   bool
	hostInfo     []byte

	log     *logging.Logger
	metrics *metrics.Metrics
}

var _ connection.Handler = (*Agent)(nil)

// New creates an Agent.
func New(conn Conn, collector telemetry.Collector, cfg Config, opts ...Option) (*Agent, error) {
	if conn == nil || collector == nil {
		return nil, errors.Config("agent needs a connection and a collector")
	}
	if cfg.ID == "" {
		return nil, errors.Config("agent id is required")
	}
	if strings.ContainsAny(cfg.ID, "/+#") {
		return nil, errors.Config("agent id must be a single topic level without wildcards",
			errors.WithMetadata("id", cfg.ID))
	}
	if cfg.ReportTopic == "" {
		cfg.ReportTopic = cfg.Topics.Report(cfg.ID)
	}
	if err := bus.ValidateTopic(cfg.ReportTopic); err != nil {
		return nil, errors.Configf("invalid report topic %q", cfg.ReportTopic)
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = DefaultReportInterval
	}
	if cfg.ReportInterval > protocol.MaxReportInterval {
		return nil, errors.Configf("report interval %s is too large", cfg.ReportInterval)
	}
	if cfg.CollectTimeout <= 0 {
		cfg.CollectTimeout = DefaultCollectTimeout
	}

	reg, err := protocol.Registration{
		ID:             cfg.ID,
		ReportTopic:    cfg.ReportTopic,
		ReportInterval: cfg.ReportInterval,
	}.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "encode registration")
	}

	a := &Agent{
		conn:         conn,
		collector:    collector,
		cfg:          cfg,
		registration: reg,
		log:          logging.New().WithComponent("agent"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// ID returns the agent's identity.
func (a *Agent) ID() string { return a.cfg.ID }

// ReportTopic returns the topic snapshots are published to.
func (a *Agent) ReportTopic() string { return a.cfg.ReportTopic }

// OnConnect registers, subscribes to re-registration requests, publishes
// host info and starts reporting.
func (a *Agent) OnConnect() {
	a.register()

	if err := a.conn.Subscribe(a.cfg.Topics.Reregister()); err != nil {
		a.log.Warn("subscribe failed", map[string]interface{}{
			"filter": a.cfg.Topics.Reregister(),
			"error":  err.Error(),
		})
	}

	a.publishHostInfo()

	a.report.Stop()
	a.report = a.conn.Every(a.cfg.ReportInterval, a.collect)
}

// OnDisconnected stops reporting until the next connect.
func (a *Agent) OnDisconnected() {
	a.report.Stop()
	a.report = nil
}

// OnMessage answers re-registration requests.
func (a *Agent) OnMessage(msg bus.Message) {
	if msg.Topic == a.cfg.Topics.Reregister() {
		a.log.Info("re-registration requested", nil)
		a.register()
	}
}

func (a *Agent) register() {
	topic := a.cfg.Topics.Register()
	if err := a.conn.Publish(topic, a.registration, bus.PublishOptions{}); err != nil {
		a.log.Warn("registration failed", map[string]interface{}{
			"topic": topic,
			"error": err.Error(),
		})
		return
	}
	a.log.Info("published registration", map[string]interface{}{
		"topic":    topic,
		"id":       a.cfg.ID,
		"interval": a.cfg.ReportInterval.String(),
	})
}

// publishHostInfo sends static host info once per connect. The first
// collection runs off the loop; later connects reuse the cached payload.
func (a *Agent) publishHostInfo() {
	topic := a.cfg.Topics.HostInfo(a.cfg.ID)
	if a.hostInfo != nil {
		a.publishRetained(topic, a.hostInfo)
		return
	}

	var (
		data []byte
		err  error
	)
	a.conn.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.CollectTimeout)
		defer cancel()
		var info telemetry.HostInfo
		if info, err = a.collector.HostInfo(ctx); err == nil {
			data, err = info.Marshal()
		}
	}, func() {
		if err != nil {
			a.log.Warn("host info unavailable", map[string]interface{}{"error": err.Error()})
			return
		}
		a.hostInfo = data
		a.publishRetained(topic, data)
	})
}

func (a *Agent) publishRetained(topic string, data []byte) {
	if err := a.conn.Publish(topic, data, bus.PublishOptions{Retain: true}); err != nil {
		a.log.Warn("publish failed", map[string]interface{}{
			"topic": topic,
			"error": err.Error(),
		})
	}
}

// collect runs one telemetry collection unless one is still in flight.
func (a *Agent) collect() {
	if a.collecting {
		a.log.Debug("previous collection still running, skipping", nil)
		return
	}
	a.collecting = true

	var (
		data []byte
		err  error
	)
	a.conn.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.CollectTimeout)
		defer cancel()
		var snap telemetry.Snapshot
		if snap, err = a.collector.Snapshot(ctx); err == nil {
			data, err = snap.Marshal()
		}
	}, func() {
		a.collecting = false
		if err != nil {
			a.log.Warn("telemetry collection failed", map[string]interface{}{"error": err.Error()})
			return
		}
		if err := a.conn.Publish(a.cfg.ReportTopic, data, bus.PublishOptions{}); err != nil {
			a.log.Warn("publish failed", map[string]interface{}{
				"topic": a.cfg.ReportTopic,
				"error": err.Error(),
			})
			return
		}
		a.metrics.TelemetryPublished()
	})
}
