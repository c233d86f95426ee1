// Package timex contains time helpers shared by config loading and the
// remote update protocol.
package timex

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SinceLayout is the fixed-precision timestamp format the remote service
// expects for the since parameter: microseconds and a numeric zone offset.
const SinceLayout = "2006-01-02T15:04:05.000000-07:00"

// FormatSince renders t in SinceLayout, normalized to UTC.
func FormatSince(t time.Time) string {
	return t.UTC().Format(SinceLayout)
}

// ParseTimestamp accepts the timestamps the remote service emits: SinceLayout
// and RFC 3339 with or without fractional seconds.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{SinceLayout, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Duration wraps time.Duration so JSON config files can use either strings
// like "5s" or integer nanoseconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		var err error
		d.Duration, err = time.ParseDuration(value)
		return err
	default:
		return errors.New("invalid duration")
	}
}
