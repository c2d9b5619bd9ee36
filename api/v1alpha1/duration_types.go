package v1alpha1

import (
	"fmt"
	"time"
)

// Duration is a protobuf-style duration.
// Templates exported from a running cluster carry durations as strings, which
// are kept in Raw until the request is normalized.
type Duration struct {
	Seconds int64  `json:"seconds"`
	Nanos   int32  `json:"nanos"`
	Raw     string `json:"-"`
}

// IsNormalized returns true when the duration holds no unparsed string form
func (d *Duration) IsNormalized() bool {
	return d.Raw == ""
}

// AsDuration converts to a time.Duration
func (d Duration) AsDuration() time.Duration {
	return time.Duration(d.Seconds)*time.Second + time.Duration(d.Nanos)
}

// String formats the duration the way the REST API expects it, e.g. "600s"
func (d Duration) String() string {
	if d.Nanos == 0 {
		return fmt.Sprintf("%ds", d.Seconds)
	}
	return fmt.Sprintf("%d.%09ds", d.Seconds, d.Nanos)
}

// DurationFromTime builds a normalized Duration
func DurationFromTime(t time.Duration) *Duration {
	return &Duration{
		Seconds: int64(t / time.Second),
		Nanos:   int32(t % time.Second),
	}
}
