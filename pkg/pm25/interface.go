package pm25

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTransient marks a read failure that is expected during normal
	// operation (no data ready, framing or checksum error). Callers retry.
	ErrTransient = errors.New("transient sensor fault")
	// ErrNotConnected is returned when reading from a closed source.
	ErrNotConnected = errors.New("not connected")
)

// Reading is a single PM2.5 concentration captured from one sensor channel.
type Reading struct {
	Channel   string
	Value     float64 // µg/m³
	Timestamp time.Time
}

// String returns a well-formatted string for the reading.
func (r Reading) String() string {
	return fmt.Sprintf("%s %s: %.1f µg/m³ (PM2.5)", r.Timestamp.Format(time.RFC3339), r.Channel, r.Value)
}

// Source defines the interface for PM2.5 sensor channels (real or mocked).
type Source interface {
	Channel() string
	Connect() error
	Close() error
	// Read blocks until one sample is available or fails. Failures are
	// transient and the caller is expected to retry on its own schedule.
	Read(ctx context.Context) (Reading, error)
	IsConnected() bool
}

// Ensure Serial implements Source.
var _ Source = (*Serial)(nil)

// Ensure Mock implements Source.
var _ Source = (*Mock)(nil)
