package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/tidwall/jsonc"

	"github.com/vinayprograms/hostwatch/agent"
	"github.com/vinayprograms/hostwatch/connection"
	"github.com/vinayprograms/hostwatch/errors"
	"github.com/vinayprograms/hostwatch/logging"
	"github.com/vinayprograms/hostwatch/monitor"
	"github.com/vinayprograms/hostwatch/presence"
	"github.com/vinayprograms/hostwatch/protocol"
)

// EnvPrefix prefixes every environment override, e.g. HOSTWATCH_HOST.
const EnvPrefix = "HOSTWATCH"

// Config holds every setting of both binaries. Fields only one of them uses
// are ignored by the other.
type Config struct {
	// Broker
	Host              string `json:"host" envconfig:"HOST"`
	Port              int    `json:"port" envconfig:"PORT"`
	Username          string `json:"username" envconfig:"USERNAME"`
	Password          string `json:"password" envconfig:"PASSWORD"`
	CredentialsFile   string `json:"credentialsFile" envconfig:"CREDENTIALS_FILE"`
	ClientIDPrefix    string `json:"clientIdPrefix" envconfig:"CLIENT_ID_PREFIX"`
	ReconnectInterval Millis `json:"reconnectInterval" envconfig:"RECONNECT_INTERVAL"`
	ConnectTimeout    Millis `json:"connectTimeout" envconfig:"CONNECT_TIMEOUT"`
	KeepAlive         Millis `json:"keepAlive" envconfig:"KEEP_ALIVE"`

	// Topics
	TopicRoot       string `json:"topicRoot" envconfig:"TOPIC_ROOT"`
	ReportTopicName string `json:"reportTopicName" envconfig:"REPORT_TOPIC_NAME"`

	// Agent
	ID             string `json:"id" envconfig:"ID"`
	UseMACAsID     bool   `json:"useMacAsId" envconfig:"USE_MAC_AS_ID"`
	ReportInterval Millis `json:"reportInterval" envconfig:"REPORT_INTERVAL"`

	// Monitor
	CheckInterval         Millis   `json:"checkInterval" envconfig:"CHECK_INTERVAL"`
	DefaultReportInterval Millis   `json:"defaultReportInterval" envconfig:"DEFAULT_REPORT_INTERVAL"`
	Clients               []Client `json:"clients" ignored:"true"`

	// Process
	LogLevel    string `json:"logLevel" envconfig:"LOG_LEVEL"`
	MetricsAddr string `json:"metricsAddr" envconfig:"METRICS_ADDR"`
}

// Client is a participant the monitor tracks from startup.
type Client struct {
	ID string `json:"id"`

	ReportTopic string `json:"reportTopic"`
	SystemTopic string `json:"systemTopic"`

	ReportInterval  Millis `json:"reportInterval"`
	PublishInterval Millis `json:"publishInterval"`
}

// Topic returns the report topic, accepting the older systemTopic key.
func (c Client) Topic() string {
	if c.ReportTopic != "" {
		return c.ReportTopic
	}
	return c.SystemTopic
}

// Interval returns the report interval, accepting the older
// publishInterval key. Zero means the monitor default.
func (c Client) Interval() time.Duration {
	if c.ReportInterval > 0 {
		return c.ReportInterval.Duration()
	}
	return c.PublishInterval.Duration()
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Host:                  "localhost",
		Port:                  1883,
		ClientIDPrefix:        connection.DefaultClientIDPrefix,
		ReconnectInterval:     Millis(connection.DefaultReconnectInterval),
		ConnectTimeout:        Millis(connection.DefaultConnectTimeout),
		KeepAlive:             Millis(connection.DefaultKeepAlive),
		TopicRoot:             protocol.DefaultRoot,
		ReportTopicName:       protocol.DefaultReportName,
		ReportInterval:        Millis(agent.DefaultReportInterval),
		CheckInterval:         Millis(monitor.DefaultCheckInterval),
		DefaultReportInterval: Millis(presence.DefaultReportInterval),
		LogLevel:              string(logging.LevelInfo),
	}
}

// Load reads the configuration file at path and applies environment
// overrides and credentials. Every failure is an ErrCodeConfig error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrCodeConfig, "reading configuration",
				errors.WithMetadata("path", path))
		}
		if err := cfg.merge(data); err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrCodeConfig, "parsing configuration",
				errors.WithMetadata("path", path))
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeConfig, "processing environment")
	}

	if cfg.CredentialsFile != "" {
		creds, err := LoadCredentials(cfg.CredentialsFile)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrCodeConfig, "loading credentials",
				errors.WithMetadata("path", cfg.CredentialsFile))
		}
		cfg.applyCredentials(creds)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// merge decodes a JSONC document over cfg.
func (c *Config) merge(data []byte) error {
	stripped := jsonc.ToJSON(data)
	if err := json.Unmarshal(stripped, c); err != nil {
		return err
	}

	// publishInterval is the older name of reportInterval.
	var aliases struct {
		ReportInterval  *Millis `json:"reportInterval"`
		PublishInterval *Millis `json:"publishInterval"`
	}
	if err := json.Unmarshal(stripped, &aliases); err != nil {
		return err
	}
	if aliases.ReportInterval == nil && aliases.PublishInterval != nil {
		c.ReportInterval = *aliases.PublishInterval
	}
	return nil
}

func (c *Config) applyCredentials(creds *Credentials) {
	if creds.Broker.Username != "" {
		c.Username = creds.Broker.Username
	}
	if creds.Broker.Password != "" {
		c.Password = creds.Broker.Password
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Host == "" {
		return invalid("host", "broker host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return invalid("port", "port must be between 1 and 65535")
	}
	for field, d := range map[string]Millis{
		"reportInterval":    c.ReportInterval,
		"reconnectInterval": c.ReconnectInterval,
		"checkInterval":     c.CheckInterval,
	} {
		if d <= 0 {
			return invalid(field, "interval must be positive")
		}
		if d.Duration() > protocol.MaxReportInterval {
			return invalid(field, "interval is too large")
		}
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return invalid("logLevel", err.Error())
	}

	seen := make(map[string]bool, len(c.Clients))
	for _, cl := range c.Clients {
		if cl.ID == "" || cl.Topic() == "" {
			return invalid("clients", "each client needs an id and a reportTopic")
		}
		if cl.Interval() > protocol.MaxReportInterval {
			return invalid("clients", "client "+cl.ID+" report interval is too large")
		}
		if seen[cl.ID] {
			return invalid("clients", "client "+cl.ID+" is listed twice")
		}
		seen[cl.ID] = true
	}
	return nil
}

func invalid(field, msg string) error {
	return errors.Config(msg, errors.WithMetadata("field", field))
}

// Level returns the configured log level.
func (c *Config) Level() logging.Level {
	level, _ := logging.ParseLevel(c.LogLevel)
	return level
}

// Topics returns the topic builder for the configured root.
func (c *Config) Topics() protocol.Topics {
	return protocol.NewTopics(c.TopicRoot, c.ReportTopicName)
}

// Connection returns the connection manager settings.
func (c *Config) Connection() connection.Config {
	return connection.Config{
		Host:              c.Host,
		Port:              c.Port,
		ClientIDPrefix:    c.ClientIDPrefix,
		Username:          c.Username,
		Password:          c.Password,
		ReconnectInterval: c.ReconnectInterval.Duration(),
		ConnectTimeout:    c.ConnectTimeout.Duration(),
		KeepAlive:         c.KeepAlive.Duration(),
	}
}

// Monitor returns the monitor settings.
func (c *Config) Monitor() monitor.Config {
	static := make([]presence.StaticParticipant, 0, len(c.Clients))
	for _, cl := range c.Clients {
		static = append(static, presence.StaticParticipant{
			ID:             cl.ID,
			ReportTopic:    cl.Topic(),
			ReportInterval: cl.Interval(),
		})
	}
	return monitor.Config{
		Topics:                c.Topics(),
		CheckInterval:         c.CheckInterval.Duration(),
		DefaultReportInterval: c.DefaultReportInterval.Duration(),
		Static:                static,
	}
}

// Agent returns the agent settings for the resolved id.
func (c *Config) Agent(id string) agent.Config {
	return agent.Config{
		ID:             id,
		Topics:         c.Topics(),
		ReportInterval: c.ReportInterval.Duration(),
	}
}
