package protocol

import "strings"

// Topic level names.
const (
	DefaultRoot       = "monitoring"
	DefaultReportName = "systemInfo"

	levelRegister     = "register"
	levelReregister   = "reregister"
	levelAvailability = "isUp"
	levelHostInfo     = "hostInfo"
)

// Topics builds topic names under one root.
type Topics struct {
	root       string
	reportName string
}

// NewTopics returns a builder for root. Surrounding slashes are ignored;
// empty values fall back to the defaults.
func NewTopics(root, reportName string) Topics {
	root = strings.Trim(root, "/")
	if root == "" {
		root = DefaultRoot
	}
	reportName = strings.Trim(reportName, "/")
	if reportName == "" {
		reportName = DefaultReportName
	}
	return Topics{root: root, reportName: reportName}
}

// Root returns the root level without slashes.
func (t Topics) Root() string { return t.root }

// Register is the topic agents announce themselves on.
func (t Topics) Register() string { return "/" + t.root + "/" + levelRegister }

// Reregister is the topic the monitor uses to ask every agent to register again.
func (t Topics) Reregister() string { return "/" + t.root + "/" + levelReregister }

// Availability is the retained up/down topic for a participant.
func (t Topics) Availability(id string) string {
	return "/" + t.root + "/" + id + "/" + levelAvailability
}

// AvailabilityFilter matches every participant's availability topic.
func (t Topics) AvailabilityFilter() string { return t.Availability("+") }

// Report is the default telemetry topic for a participant.
func (t Topics) Report(id string) string {
	return "/" + t.root + "/" + id + "/" + t.reportName
}

// HostInfo is the retained static host information topic.
func (t Topics) HostInfo(id string) string {
	return "/" + t.root + "/" + id + "/" + levelHostInfo
}

// IsAvailability reports whether topic has the form /<root>/<id>/isUp and
// returns the id.
func (t Topics) IsAvailability(topic string) (string, bool) {
	prefix := "/" + t.root + "/"
	suffix := "/" + levelAvailability
	if !strings.HasPrefix(topic, prefix) || !strings.HasSuffix(topic, suffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(topic, prefix), suffix)
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
