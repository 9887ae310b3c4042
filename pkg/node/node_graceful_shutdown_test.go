package node

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/itohio/aqnode/pkg/sample"
	"github.com/itohio/aqnode/pkg/telemetry"
)

func TestStep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := new(samplerMock)
	f := newFixture(t, s, 1)
	f.times.On("ReceiveTime").Return(telemetry.Time{}, context.Canceled)

	err := f.loop.Step(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.net.Resets())
}

func TestRun_ConnectsThenLoopsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := new(samplerMock)
	s.On("Sample").Return(sample.Result{Concentration: 8.0, Values: []float64{8}}, nil)
	f := newFixture(t, s, 1)
	f.net.FailConnects(1)

	f.times.On("ReceiveTime").Return(telemetry.Time{Minute: 5}, nil)
	f.publisher.On("SendData", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	published := 0
	f.loop.OnUpdate(func(r Report) {
		if r.Outcome == OutcomePublished {
			published++
		}
		if published == 3 {
			cancel()
		}
	})

	err := f.loop.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 2, f.net.Connects(), "startup connect retries until associated")
	assert.Equal(t, 3, published)
	f.publisher.AssertNumberOfCalls(t, "SendData", 9)
}

func TestStep_CancelledDuringPublish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := new(samplerMock)
	s.On("Sample").Return(sample.Result{Concentration: 12.0, Values: []float64{12}}, nil)
	f := newFixture(t, s, 1)

	f.times.On("ReceiveTime").Return(telemetry.Time{Minute: 7}, nil)
	f.publisher.On("SendData", "raw", "12.0", loc).
		Run(func(mock.Arguments) { cancel() }).
		Return(context.Canceled).Once()

	err := f.loop.Step(ctx)
	require.ErrorIs(t, err, context.Canceled)

	f.publisher.AssertNumberOfCalls(t, "SendData", 1)
	assert.Zero(t, f.net.Resets(), "shutdown is not treated as a network fault")
	assert.Empty(t, f.reports)
	assert.Empty(t, f.clock.Sleeps())
}

func TestRun_CancelledBeforeConnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := new(samplerMock)
	f := newFixture(t, s, 1)

	err := f.loop.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.net.Connects())
	f.times.AssertNotCalled(t, "ReceiveTime")
	s.AssertNotCalled(t, "Sample")
}
