package sample

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/itohio/aqnode/pkg/pm25"
	"github.com/itohio/aqnode/pkg/wallclock"
)

const (
	// DefaultWindow is the sampling window length.
	DefaultWindow = 2300 * time.Millisecond
	// DefaultPollInterval matches the sensor's 1 Hz output rate.
	DefaultPollInterval = time.Second
)

// ErrEmptyWindow is returned when a window closes without a single reading.
// The cycle must be abandoned; there is no concentration to report.
var ErrEmptyWindow = errors.New("empty sample window")

// Source is a sensor channel the sampler can poll.
type Source interface {
	Channel() string
	Read(ctx context.Context) (pm25.Reading, error)
}

// Result is the outcome of one sampling window.
type Result struct {
	Concentration float64 // mean of Values (µg/m³)
	Values        []float64
	Channels      []ChannelStats
	Failures      int
	Elapsed       time.Duration
}

// Sampler polls every source in passes until the window has elapsed and
// reduces the collected readings to their mean.
type Sampler struct {
	sources      []Source
	window       time.Duration
	pollInterval time.Duration
	clock        wallclock.Clock
	log          *slog.Logger
}

// New creates a sampler. Zero durations fall back to the defaults, a nil
// clock to the system clock and a nil logger to slog.Default().
func New(sources []Source, window, pollInterval time.Duration, clock wallclock.Clock, logger *slog.Logger) *Sampler {
	if window <= 0 {
		window = DefaultWindow
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if clock == nil {
		clock = wallclock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Sampler{
		sources:      sources,
		window:       window,
		pollInterval: pollInterval,
		clock:        clock,
		log:          logger,
	}
}

// Sample runs one sampling window.
//
// Each pass reads every source once; a failed read is logged and skipped.
// After each pass the sampler sleeps for the poll interval. The window
// closes once more than the window length has elapsed since the start, so
// Sample never returns early and overruns by at most one pass.
func (s *Sampler) Sample(ctx context.Context) (Result, error) {
	start := s.clock.Now()

	values := make([]float64, 0, len(s.sources)*s.expectedPasses())
	channels := make([]ChannelStats, len(s.sources))
	sums := make([]float64, len(s.sources))
	for i, src := range s.sources {
		channels[i].Channel = src.Channel()
	}

	var failures int
	for s.clock.Now().Sub(start) <= s.window {
		for i, src := range s.sources {
			r, err := src.Read(ctx)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return Result{}, ctxErr
				}
				s.log.Warn("unable to read from sensor, retrying", "channel", channels[i].Channel, "error", err)
				channels[i].Failures++
				failures++
				continue
			}
			values = append(values, r.Value)
			channels[i].Count++
			sums[i] += r.Value
		}

		if err := s.clock.Sleep(ctx, s.pollInterval); err != nil {
			return Result{}, err
		}
	}

	for i := range channels {
		channels[i].Mean = math.NaN()
		if channels[i].Count > 0 {
			channels[i].Mean = sums[i] / float64(channels[i].Count)
		}
	}

	res := Result{
		Values:   values,
		Channels: channels,
		Failures: failures,
		Elapsed:  s.clock.Now().Sub(start),
	}

	mean, err := Mean(values)
	if err != nil {
		return res, fmt.Errorf("%w: %d failed reads in %s", err, failures, res.Elapsed)
	}
	res.Concentration = mean

	s.log.Debug("sampling window closed",
		"samples", values,
		"failures", failures,
		"elapsed", res.Elapsed,
		"mean", mean,
		"spread", Spread(channels),
	)

	return res, nil
}

// Window returns the configured window length.
func (s *Sampler) Window() time.Duration { return s.window }

// PollInterval returns the configured pause between passes.
func (s *Sampler) PollInterval() time.Duration { return s.pollInterval }

func (s *Sampler) expectedPasses() int {
	return int(s.window/s.pollInterval) + 1
}
