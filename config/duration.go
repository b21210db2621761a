package config

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// maxMillis is the largest millisecond count a time.Duration holds.
const maxMillis = math.MaxInt64 / int64(time.Millisecond)

// Millis is a duration written as integer milliseconds or as a Go
// duration string ("1500ms", "10s").
type Millis time.Duration

// Duration returns m as a time.Duration.
func (m Millis) Duration() time.Duration { return time.Duration(m) }

// MarshalJSON writes integer milliseconds.
func (m Millis) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(m).Milliseconds())
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Millis) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		if v < 0 {
			return fmt.Errorf("negative duration %v", v)
		}
		if v > float64(maxMillis) {
			return fmt.Errorf("duration %v out of range", v)
		}
		*m = Millis(time.Duration(v * float64(time.Millisecond)))
		return nil
	case string:
		return m.Decode(v)
	default:
		return fmt.Errorf("duration must be a number of milliseconds or a string, got %s", data)
	}
}

// Decode implements envconfig.Decoder.
func (m *Millis) Decode(value string) error {
	value = strings.TrimSpace(value)
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		if ms < 0 {
			return fmt.Errorf("negative duration %d", ms)
		}
		if ms > maxMillis {
			return fmt.Errorf("duration %d out of range", ms)
		}
		*m = Millis(time.Duration(ms) * time.Millisecond)
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration %q", value)
	}
	if d < 0 {
		return fmt.Errorf("negative duration %q", value)
	}
	*m = Millis(d)
	return nil
}

// String formats m like time.Duration.
func (m Millis) String() string { return time.Duration(m).String() }
