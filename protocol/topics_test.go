package protocol

import "testing"

// --- Unit Tests ---

func TestTopics(t *testing.T) {
	topics := NewTopics("monitoring", "")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"register", topics.Register(), "/monitoring/register"},
		{"reregister", topics.Reregister(), "/monitoring/reregister"},
		{"availability", topics.Availability("h1"), "/monitoring/h1/isUp"},
		{"availability filter", topics.AvailabilityFilter(), "/monitoring/+/isUp"},
		{"report", topics.Report("h1"), "/monitoring/h1/systemInfo"},
		{"host info", topics.HostInfo("h1"), "/monitoring/h1/hostInfo"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestNewTopics_Normalizes(t *testing.T) {
	tests := []struct {
		root, report string
		wantRegister string
		wantReport   string
	}{
		{"", "", "/monitoring/register", "/monitoring/h/systemInfo"},
		{"/fleet/", "stats", "/fleet/register", "/fleet/h/stats"},
		{"lab", "/telemetry/", "/lab/register", "/lab/h/telemetry"},
	}
	for _, tt := range tests {
		topics := NewTopics(tt.root, tt.report)
		if got := topics.Register(); got != tt.wantRegister {
			t.Errorf("NewTopics(%q).Register() = %q, want %q", tt.root, got, tt.wantRegister)
		}
		if got := topics.Report("h"); got != tt.wantReport {
			t.Errorf("NewTopics(%q, %q).Report() = %q, want %q", tt.root, tt.report, got, tt.wantReport)
		}
	}
}

func TestTopics_IsAvailability(t *testing.T) {
	topics := NewTopics("monitoring", "")

	tests := []struct {
		topic  string
		wantID string
		wantOK bool
	}{
		{"/monitoring/h1/isUp", "h1", true},
		{"/monitoring/ghost/isUp", "ghost", true},
		{"/monitoring/isUp", "", false},
		{"/monitoring//isUp", "", false},
		{"/monitoring/a/b/isUp", "", false},
		{"/other/h1/isUp", "", false},
		{"/monitoring/h1/systemInfo", "", false},
	}
	for _, tt := range tests {
		id, ok := topics.IsAvailability(tt.topic)
		if id != tt.wantID || ok != tt.wantOK {
			t.Errorf("IsAvailability(%q) = (%q, %v), want (%q, %v)", tt.topic, id, ok, tt.wantID, tt.wantOK)
		}
	}
}
