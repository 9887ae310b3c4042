package telemetry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/itohio/aqnode/pkg/wallclock"
)

// Ensure Console implements Publisher.
var _ Publisher = (*Console)(nil)

// Ensure LocalTime implements TimeSource.
var _ TimeSource = (*LocalTime)(nil)

// Console logs published values instead of sending them. It backs offline
// runs with simulated sensors.
type Console struct {
	log *slog.Logger

	mu   sync.Mutex
	sent map[string]string
}

// NewConsole creates a logging publisher.
func NewConsole(logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{log: logger.With("service", "console"), sent: make(map[string]string)}
}

// SendData logs the value and remembers it as the feed's latest.
func (c *Console) SendData(ctx context.Context, feedKey, value string, loc *Location) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	c.sent[feedKey] = value
	c.mu.Unlock()

	attrs := []any{"feed", feedKey, "value", value}
	if loc != nil {
		attrs = append(attrs, "lat", loc.Lat, "lon", loc.Lon, "ele", loc.Ele)
	}
	c.log.Info("send", attrs...)
	return nil
}

// Latest returns the last value sent to feedKey.
func (c *Console) Latest(feedKey string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.sent[feedKey]
	return v, ok
}

// LocalTime reports the time of a local clock.
type LocalTime struct {
	clock wallclock.Clock
}

// NewLocalTime creates a time source backed by clock; nil uses the system
// clock.
func NewLocalTime(clock wallclock.Clock) *LocalTime {
	if clock == nil {
		clock = wallclock.Real{}
	}
	return &LocalTime{clock: clock}
}

// ReceiveTime returns the clock's current time broken down.
func (l *LocalTime) ReceiveTime(ctx context.Context) (Time, error) {
	if err := ctx.Err(); err != nil {
		return Time{}, err
	}

	now := l.clock.Now()
	isDST := 0
	if now.IsDST() {
		isDST = 1
	}
	return Time{
		Year:    now.Year(),
		Month:   int(now.Month()),
		Day:     now.Day(),
		Hour:    now.Hour(),
		Minute:  now.Minute(),
		Second:  now.Second(),
		Weekday: (int(now.Weekday()) + 6) % 7,
		Yearday: now.YearDay(),
		IsDST:   isDST,
	}, nil
}
