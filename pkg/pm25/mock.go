package pm25

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chewxy/math32"

	"github.com/itohio/aqnode/pkg/config"
	"github.com/itohio/aqnode/pkg/wallclock"
)

// Mock simulates a PM2.5 sensor channel for testing and development.
type Mock struct {
	channel string
	base    float64
	cfg     config.MockConfig
	clock   wallclock.Clock

	mu        sync.Mutex
	connected bool
	startTime time.Time
	reads     int
}

// NewMock creates a simulated channel around a base concentration.
// A nil cfg means no noise and no simulated failures.
func NewMock(channel string, base float64, cfg *config.MockConfig, clock wallclock.Clock) *Mock {
	m := &Mock{
		channel: channel,
		base:    base,
		clock:   clock,
	}
	if cfg != nil {
		m.cfg = *cfg
	}
	if m.clock == nil {
		m.clock = wallclock.Real{}
	}
	return m
}

// Channel returns the simulated channel name.
func (m *Mock) Channel() string { return m.channel }

// Connect simulates opening the sensor.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	m.connected = true
	m.startTime = m.clock.Now()
	m.reads = 0

	return nil
}

// Close stops the simulated sensor.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// IsConnected returns whether the simulated sensor is open.
func (m *Mock) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Read returns the base concentration plus a smooth pseudo-random
// disturbance. Every cfg.FailEvery-th read fails transiently.
func (m *Mock) Read(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return Reading{}, fmt.Errorf("%s: %w", m.channel, ErrNotConnected)
	}

	m.reads++
	if m.cfg.FailEvery > 0 && m.reads%m.cfg.FailEvery == 0 {
		return Reading{}, fmt.Errorf("%s: %w: simulated checksum mismatch", m.channel, ErrTransient)
	}

	now := m.clock.Now()
	elapsed := float32(now.Sub(m.startTime).Seconds())
	noise := (math32.Sin(elapsed*1.3) + math32.Cos(elapsed*0.7)) * float32(m.cfg.Noise) * 0.5

	value := m.base + float64(noise)
	if value < 0 {
		value = 0
	}

	return Reading{
		Channel:   m.channel,
		Value:     value,
		Timestamp: now,
	}, nil
}
