package telemetry

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrRetryable marks a publish or time fetch failure that the caller
	// recovers from by resetting the network and trying again.
	ErrRetryable = errors.New("telemetry request failed")
	// ErrThrottled is reported alongside ErrRetryable when the service
	// rate-limits the client.
	ErrThrottled = errors.New("rate limited")
	// ErrNotFound is returned for an unknown feed.
	ErrNotFound = errors.New("not found")
)

// Publisher sends one value to a feed. A nil location publishes the value
// without position metadata.
type Publisher interface {
	SendData(ctx context.Context, feedKey, value string, loc *Location) error
}

// DatumSender is a Publisher that reports the datum stored by the service.
type DatumSender interface {
	Send(ctx context.Context, feedKey, value string, loc *Location) (Datum, error)
}

// TimeSource returns the service's current wall time.
type TimeSource interface {
	ReceiveTime(ctx context.Context) (Time, error)
}

// Ensure AIO implements Publisher.
var _ Publisher = (*AIO)(nil)

// Ensure AIO reports stored data.
var _ DatumSender = (*AIO)(nil)

// Ensure AIO implements TimeSource.
var _ TimeSource = (*AIO)(nil)

// Ensure MQTT implements Publisher.
var _ Publisher = (*MQTT)(nil)

// Location is attached to published values.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Ele float64 `json:"ele"`
}

// Time is the broken-down local time reported by the time service.
type Time struct {
	Year    int `json:"year"`
	Month   int `json:"mon"`
	Day     int `json:"mday"`
	Hour    int `json:"hour"`
	Minute  int `json:"min"`
	Second  int `json:"sec"`
	Weekday int `json:"wday"`
	Yearday int `json:"yday"`
	IsDST   int `json:"isdst"`
}

// String formats t as YYYY-MM-DD HH:MM:SS.
func (t Time) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", t.Year, t.Month, t.Day, t.Hour, t.Minute, t.Second)
}

// payload is the JSON body of a published value.
type payload struct {
	Value string   `json:"value"`
	Lat   *float64 `json:"lat,omitempty"`
	Lon   *float64 `json:"lon,omitempty"`
	Ele   *float64 `json:"ele,omitempty"`
}

func newPayload(value string, loc *Location) payload {
	p := payload{Value: value}
	if loc != nil {
		p.Lat, p.Lon, p.Ele = &loc.Lat, &loc.Lon, &loc.Ele
	}
	return p
}
