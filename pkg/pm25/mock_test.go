package pm25

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/aqnode/pkg/config"
	"github.com/itohio/aqnode/pkg/wallclock"
)

func TestMock_ReadWithoutNoise(t *testing.T) {
	m := NewMock("mock-1", 10.0, nil, nil)

	_, err := m.Read(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, m.Connect())
	assert.True(t, m.IsConnected())
	assert.Error(t, m.Connect(), "already connected")

	for n := 0; n < 5; n++ {
		r, err := m.Read(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "mock-1", r.Channel)
		assert.Equal(t, 10.0, r.Value)
	}

	require.NoError(t, m.Close())
	assert.False(t, m.IsConnected())
}

func TestMock_NoiseBounded(t *testing.T) {
	clock := wallclock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	m := NewMock("mock-1", 20.0, &config.MockConfig{Noise: 2.0}, clock)
	require.NoError(t, m.Connect())

	for n := 0; n < 50; n++ {
		clock.Advance(370 * time.Millisecond)
		r, err := m.Read(context.Background())
		require.NoError(t, err)
		assert.InDelta(t, 20.0, r.Value, 2.0+1e-3)
		assert.Equal(t, clock.Now(), r.Timestamp)
	}
}

func TestMock_NeverNegative(t *testing.T) {
	clock := wallclock.NewFake(time.Time{})
	m := NewMock("mock-1", 0.1, &config.MockConfig{Noise: 50}, clock)
	require.NoError(t, m.Connect())

	for n := 0; n < 50; n++ {
		clock.Advance(time.Second)
		r, err := m.Read(context.Background())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, r.Value, 0.0)
	}
}

func TestMock_FailEvery(t *testing.T) {
	m := NewMock("mock-1", 5.0, &config.MockConfig{FailEvery: 3}, nil)
	require.NoError(t, m.Connect())

	var failures int
	for n := 0; n < 9; n++ {
		if _, err := m.Read(context.Background()); err != nil {
			assert.ErrorIs(t, err, ErrTransient)
			failures++
		}
	}
	assert.Equal(t, 3, failures)
}

func TestReading_String(t *testing.T) {
	r := Reading{
		Channel:   "pm25-1",
		Value:     12.34,
		Timestamp: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, "2024-03-01T10:00:00Z pm25-1: 12.3 µg/m³ (PM2.5)", r.String())
}
