package bus

import "testing"

// --- Unit Tests ---

func TestValidateTopic(t *testing.T) {
	tests := []struct {
		topic   string
		wantErr bool
	}{
		{"/monitoring/register", false},
		{"/monitoring/h1/isUp", false},
		{"plain", false},
		{"", true},
		{"/monitoring/+/isUp", true},
		{"/monitoring/#", true},
	}

	for _, tt := range tests {
		err := ValidateTopic(tt.topic)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateTopic(%q) = %v, wantErr %v", tt.topic, err, tt.wantErr)
		}
	}
}

func TestValidateFilter(t *testing.T) {
	tests := []struct {
		filter  string
		wantErr bool
	}{
		{"/monitoring/register", false},
		{"/monitoring/+/isUp", false},
		{"/monitoring/#", false},
		{"#", false},
		{"+", false},
		{"", true},
		{"/monitoring/#/isUp", true},
		{"/monitoring/h+/isUp", true},
		{"/monitoring/ab#", true},
	}

	for _, tt := range tests {
		err := ValidateFilter(tt.filter)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateFilter(%q) = %v, wantErr %v", tt.filter, err, tt.wantErr)
		}
	}
}

func TestMatchTopic(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"/monitoring/register", "/monitoring/register", true},
		{"/monitoring/register", "/monitoring/reregister", false},
		{"/monitoring/+/isUp", "/monitoring/h1/isUp", true},
		{"/monitoring/+/isUp", "/monitoring/h1/systemInfo", false},
		{"/monitoring/+/isUp", "/monitoring/a/b/isUp", false},
		{"/monitoring/#", "/monitoring/h1/isUp", true},
		{"/monitoring/#", "/monitoring", true},
		{"/monitoring/#", "/other/h1", false},
		{"#", "/anything/at/all", true},
		{"/monitoring/+", "/monitoring", false},
	}

	for _, tt := range tests {
		if got := MatchTopic(tt.filter, tt.topic); got != tt.want {
			t.Errorf("MatchTopic(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
		}
	}
}
