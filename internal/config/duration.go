package config

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Duration is a time.Duration that reads from JSON as either a duration
// string ("250ms", "1s") or an integer number of milliseconds, and writes
// as a string.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String returns the duration in time.Duration notation.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch x := v.(type) {
	case string:
		parsed, err := time.ParseDuration(x)
		if err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", x, err)
		}
		*d = Duration(parsed)
	case float64:
		if x != math.Trunc(x) {
			return fmt.Errorf("config: duration %v is not a whole number of milliseconds", x)
		}
		*d = Duration(time.Duration(x) * time.Millisecond)
	default:
		return fmt.Errorf("config: invalid duration %s", b)
	}
	return nil
}
