package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/itohio/aqnode/pkg/wallclock"
)

const (
	defaultMinInterval = time.Second
	defaultMaxInterval = 30 * time.Second

	// jitterFactor spreads each wait over 95% to 105% of its value.
	jitterFactor = 0.05
)

// Task is one attempt of a retried operation. It reports whether a failed
// attempt may be retried.
type Task func(ctx context.Context) (retry bool, err error)

// ExponentialBackoff implements a retry policy with exponential backoff and
// optional jitter.
type ExponentialBackoff struct {
	// MaxAttempts sets the maximum number of attempts. The default value of 0
	// indicates unlimited attempts; setting this to 1 will disable retries.
	MaxAttempts uint64

	// MinInterval is the interval before the first retry (before jitter).
	// Will be set to a default of 1s if unspecified.
	MinInterval time.Duration

	// MaxInterval caps the interval between retries (before jitter).
	// Will be set to a default of 30s if unspecified.
	MaxInterval time.Duration

	// NoJitter removes the default jitter.
	NoJitter bool

	// Clock drives the waits; nil uses the system clock.
	Clock wallclock.Clock

	// Logger is used to log attempts and results; nil disables logging.
	Logger *slog.Logger
}

// Start runs task until it succeeds, reports a non-retryable error, runs out
// of attempts, or ctx is done.
func (e *ExponentialBackoff) Start(ctx context.Context, name string, task Task) error {
	clock := e.clock()

	attempt := uint64(0)
	op := func() error {
		attempt++
		e.log(ctx, slog.LevelDebug, "attempt", name, attempt, nil)
		retry, err := task(ctx)
		switch {
		case err == nil:
			e.log(ctx, slog.LevelDebug, "complete", name, attempt, nil)
			return nil
		case !retry:
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		e.log(ctx, slog.LevelWarn, "retrying", name, attempt, err, slog.Duration("after", next))
	}

	err := backoff.RetryNotifyWithTimer(op, e.policy(ctx, clock), notify, &clockTimer{ctx: ctx, clock: clock})
	if err != nil {
		e.log(ctx, slog.LevelError, "giving up", name, attempt, err)
	}
	return err
}

// policy builds the backoff sequence for one Start call.
func (e *ExponentialBackoff) policy(ctx context.Context, clock wallclock.Clock) backoff.BackOff {
	minInterval := e.MinInterval
	if minInterval <= 0 {
		minInterval = defaultMinInterval
	}
	maxInterval := e.MaxInterval
	if maxInterval <= 0 {
		maxInterval = defaultMaxInterval
	}
	maxInterval = max(maxInterval, minInterval)

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = minInterval
	exp.MaxInterval = maxInterval
	exp.Multiplier = 2
	exp.RandomizationFactor = jitterFactor
	if e.NoJitter {
		exp.RandomizationFactor = 0
	}
	exp.MaxElapsedTime = 0
	exp.Clock = clock
	exp.Reset()

	var b backoff.BackOff = exp
	if e.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, e.MaxAttempts-1)
	}
	return backoff.WithContext(b, ctx)
}

func (e *ExponentialBackoff) clock() wallclock.Clock {
	if e.Clock == nil {
		return wallclock.Real{}
	}
	return e.Clock
}

// clockTimer waits on a wallclock so fake clocks record every wait.
type clockTimer struct {
	ctx   context.Context
	clock wallclock.Clock
	c     chan time.Time
}

func (t *clockTimer) Start(d time.Duration) {
	t.c = make(chan time.Time, 1)
	if err := t.clock.Sleep(t.ctx, d); err == nil {
		t.c <- t.clock.Now()
	}
}

func (t *clockTimer) Stop() {}

func (t *clockTimer) C() <-chan time.Time {
	return t.c
}

func (e *ExponentialBackoff) log(
	ctx context.Context,
	level slog.Level,
	msg, name string,
	attempt uint64,
	err error,
	attrs ...slog.Attr,
) {
	if e.Logger == nil {
		return
	}
	attrs = append(attrs, slog.String("task", name), slog.Uint64("attempt", attempt))
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	e.Logger.LogAttrs(ctx, level, msg, attrs...)
}
