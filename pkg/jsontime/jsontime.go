// Package jsontime provides JSON-serializable time types used on the wire
// and in persisted snapshots: Milli (Unix milliseconds) and Duration
// (string or int64 nanoseconds).
package jsontime

import (
	"encoding/json"
	"time"
)

// Milli is a time.Time that serializes to/from Unix milliseconds in JSON.
// Millisecond precision matches the feed's event timestamps; finer
// precision is dropped on a round trip.
type Milli time.Time

// NowMilli returns the current time as Milli.
func NowMilli() Milli {
	return Milli(time.Now())
}

// Time returns the underlying time.Time value.
func (m Milli) Time() time.Time { return time.Time(m) }

// UnixMilli returns the time as Unix milliseconds.
func (m Milli) UnixMilli() int64 { return time.Time(m).UnixMilli() }

// IsZero reports whether m represents the zero time instant.
func (m Milli) IsZero() bool { return time.Time(m).IsZero() }

// Before reports whether m is before t.
func (m Milli) Before(t Milli) bool { return time.Time(m).Before(time.Time(t)) }

// After reports whether m is after t.
func (m Milli) After(t Milli) bool { return time.Time(m).After(time.Time(t)) }

// Equal reports whether m and t land on the same millisecond.
func (m Milli) Equal(t Milli) bool {
	return m.UnixMilli() == t.UnixMilli()
}

// Sub returns the duration m-t.
func (m Milli) Sub(t Milli) time.Duration { return time.Time(m).Sub(time.Time(t)) }

// Add returns the time m+d.
func (m Milli) Add(d time.Duration) Milli { return Milli(time.Time(m).Add(d)) }

// String returns the time formatted as a string.
func (m Milli) String() string { return time.Time(m).String() }

// MarshalJSON implements json.Marshaler.
func (m Milli) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(m).UnixMilli())
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Milli) UnmarshalJSON(b []byte) error {
	var ms int64
	if err := json.Unmarshal(b, &ms); err != nil {
		return err
	}
	*m = Milli(time.UnixMilli(ms))
	return nil
}

// Duration is a time.Duration that marshals to its string form ("2.5s")
// and unmarshals from either a string or an int64 nanosecond count.
// Used for window overrides in config files.
type Duration time.Duration

// Duration returns the underlying time.Duration value. Returns 0 if d is nil.
func (d *Duration) Duration() time.Duration {
	if d == nil {
		return 0
	}
	return time.Duration(*d)
}

// String returns the duration formatted as a string.
func (d Duration) String() string { return time.Duration(d).String() }

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) >= 2 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		dur, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(dur)
		return nil
	}
	var ns int64
	if err := json.Unmarshal(b, &ns); err != nil {
		return err
	}
	*d = Duration(ns)
	return nil
}

// MarshalYAML implements yaml.Marshaler via the string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}
