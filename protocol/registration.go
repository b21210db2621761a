package protocol

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/vinayprograms/hostwatch/errors"
)

// MaxReportInterval is the largest accepted report interval. Five times
// it, the removal threshold, still fits in a time.Duration.
const MaxReportInterval = time.Duration(math.MaxInt64 / 5)

// Registration announces a participant to the monitor.
type Registration struct {
	ID          string
	ReportTopic string

	// ReportInterval is how often the participant reports. Zero means the
	// sender did not say; the monitor applies its default.
	ReportInterval time.Duration
}

// wireRegistration is the JSON form. systemTopic and publishInterval are
// accepted and emitted for older agents and monitors.
type wireRegistration struct {
	ID              string      `json:"id"`
	ReportTopic     string      `json:"reportTopic,omitempty"`
	ReportInterval  json.Number `json:"reportInterval,omitempty"`
	SystemTopic     string      `json:"systemTopic,omitempty"`
	PublishInterval json.Number `json:"publishInterval,omitempty"`
}

// Marshal encodes the registration with intervals in milliseconds.
func (r Registration) Marshal() ([]byte, error) {
	ms := json.Number("")
	if r.ReportInterval > 0 {
		ms = json.Number(formatMillis(r.ReportInterval))
	}
	return json.Marshal(wireRegistration{
		ID:              r.ID,
		ReportTopic:     r.ReportTopic,
		ReportInterval:  ms,
		SystemTopic:     r.ReportTopic,
		PublishInterval: ms,
	})
}

// ParseRegistration decodes and validates a registration payload.
// Failures are ErrCodeProtocolParse errors.
func ParseRegistration(payload []byte) (Registration, error) {
	var w wireRegistration
	if err := json.Unmarshal(payload, &w); err != nil {
		return Registration{}, errors.ProtocolParse("registration is not valid JSON",
			errors.WithCause(err))
	}

	reg := Registration{
		ID:          strings.TrimSpace(w.ID),
		ReportTopic: firstNonEmpty(w.ReportTopic, w.SystemTopic),
	}
	if reg.ID == "" {
		return Registration{}, errors.ProtocolParse("registration has no id")
	}
	if strings.ContainsAny(reg.ID, "/+#") {
		return Registration{}, errors.ProtocolParse("registration id is not a single topic level",
			errors.WithMetadata("id", reg.ID))
	}
	if reg.ReportTopic == "" {
		return Registration{}, errors.ProtocolParse("registration has no report topic",
			errors.WithMetadata("id", reg.ID))
	}
	if strings.ContainsAny(reg.ReportTopic, "+#") {
		return Registration{}, errors.ProtocolParse("report topic contains wildcards",
			errors.WithMetadata("id", reg.ID),
			errors.WithMetadata("topic", reg.ReportTopic))
	}

	raw := w.ReportInterval
	if raw == "" {
		raw = w.PublishInterval
	}
	if raw != "" {
		ms, err := raw.Float64()
		if err != nil || ms < 0 {
			return Registration{}, errors.ProtocolParse("report interval must be a non-negative number of milliseconds",
				errors.WithMetadata("id", reg.ID),
				errors.WithMetadata("interval", raw.String()))
		}
		if ms > float64(MaxReportInterval/time.Millisecond) {
			return Registration{}, errors.ProtocolParse("report interval is too large",
				errors.WithMetadata("id", reg.ID),
				errors.WithMetadata("interval", raw.String()))
		}
		reg.ReportInterval = time.Duration(ms * float64(time.Millisecond))
	}
	return reg, nil
}

func formatMillis(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
