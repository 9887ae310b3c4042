package node

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/itohio/aqnode/pkg/aqi"
	"github.com/itohio/aqnode/pkg/network"
	"github.com/itohio/aqnode/pkg/retry"
	"github.com/itohio/aqnode/pkg/sample"
	"github.com/itohio/aqnode/pkg/schedule"
	"github.com/itohio/aqnode/pkg/telemetry"
	"github.com/itohio/aqnode/pkg/wallclock"
)

// DefaultSleep is the pause at the end of every iteration.
const DefaultSleep = 30 * time.Second

// Sampler produces the averaged concentration of one sampling window.
type Sampler interface {
	Sample(ctx context.Context) (sample.Result, error)
}

// Ensure the window sampler can drive the loop.
var _ Sampler = (*sample.Sampler)(nil)

// Feeds names the three feeds written per publish cycle.
type Feeds struct {
	Raw      string
	AQI      string
	Category string
}

// Outcome classifies how an iteration ended.
type Outcome string

const (
	OutcomePublished    Outcome = "published"
	OutcomeEmptyWindow  Outcome = "empty_window"
	OutcomeTimeFault    Outcome = "time_fault"
	OutcomePublishFault Outcome = "publish_fault"
)

// Report describes one completed or aborted cycle.
type Report struct {
	Timestamp     time.Time `json:"timestamp"`
	ServiceTime   string    `json:"service_time,omitempty"`
	Outcome       Outcome   `json:"outcome"`
	Concentration float64   `json:"concentration"`
	Index         int       `json:"index"`
	Category      string    `json:"category"`
	Samples       int       `json:"samples"`
	Failures      int       `json:"failures"`
	PublishedAt   time.Time `json:"published_at,omitzero"`
	Error         string    `json:"error,omitempty"`
}

// Options wires the loop's collaborators. Clock, Scheduler, Backoff and
// Logger are optional.
type Options struct {
	TimeSource  telemetry.TimeSource
	Sampler     Sampler
	Publisher   telemetry.Publisher
	Network     network.Adapter
	Credentials network.Credentials
	Feeds       Feeds
	Location    *telemetry.Location
	Scheduler   *schedule.Scheduler
	Backoff     *retry.ExponentialBackoff
	Sleep       time.Duration
	Clock       wallclock.Clock
	Logger      *slog.Logger
}

// Loop is the node's control loop: fetch time, check the publish schedule,
// sample, compute the AQI, publish, sleep. Network faults are recovered by
// resetting and reconnecting the adapter; the loop never gives up.
type Loop struct {
	times     telemetry.TimeSource
	sampler   Sampler
	publisher telemetry.Publisher
	net       network.Adapter
	creds     network.Credentials
	feeds     Feeds
	location  *telemetry.Location
	sched     *schedule.Scheduler
	backoff   *retry.ExponentialBackoff
	sleep     time.Duration
	clock     wallclock.Clock
	log       *slog.Logger

	// Update callbacks
	callbacks []func(Report)
	cbMu      sync.RWMutex
}

// New creates a control loop.
func New(opts Options) *Loop {
	l := &Loop{
		times:     opts.TimeSource,
		sampler:   opts.Sampler,
		publisher: opts.Publisher,
		net:       opts.Network,
		creds:     opts.Credentials,
		feeds:     opts.Feeds,
		location:  opts.Location,
		sched:     opts.Scheduler,
		backoff:   opts.Backoff,
		sleep:     opts.Sleep,
		clock:     opts.Clock,
		log:       opts.Logger,
	}

	if l.sched == nil {
		l.sched = schedule.New(schedule.DefaultInterval)
	}
	if l.sleep <= 0 {
		l.sleep = DefaultSleep
	}
	if l.clock == nil {
		l.clock = wallclock.Real{}
	}
	if l.log == nil {
		l.log = slog.Default()
	}
	if l.backoff == nil {
		l.backoff = &retry.ExponentialBackoff{Clock: l.clock, Logger: l.log}
	}

	return l
}

// OnUpdate registers a callback invoked after every publish attempt or
// aborted cycle. The callback should return quickly.
func (l *Loop) OnUpdate(callback func(Report)) {
	l.cbMu.Lock()
	defer l.cbMu.Unlock()
	l.callbacks = append(l.callbacks, callback)
}

// Run connects the network and then iterates until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("connecting", "ssid", l.creds.SSID)
	if err := l.connect(ctx); err != nil {
		return err
	}

	for {
		if err := l.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.log.Error("iteration failed", "error", err)
		}
	}
}

// Step runs one iteration. It returns an error only when ctx is done.
func (l *Loop) Step(ctx context.Context) error {
	l.log.Debug("fetching time")
	t, err := l.times.ReceiveTime(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.log.Warn("failed to fetch time, retrying", "error", err)
		l.notify(Report{Outcome: OutcomeTimeFault, Index: aqi.InvalidIndex, Category: aqi.CategoryNone.String(), Error: err.Error()})
		return l.reconnect(ctx)
	}

	if l.sched.OnTick(t.Minute) {
		if err := l.cycle(ctx, t); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return l.reconnect(ctx)
		}
	} else {
		l.log.Debug("minutes elapsed", "elapsed", l.sched.Elapsed(), "interval", l.sched.Interval(), "minute", t.Minute)
	}

	return l.clock.Sleep(ctx, l.sleep)
}

// cycle samples, computes and publishes. A returned error is a publish
// fault requiring network recovery; an empty window is logged and absorbed.
func (l *Loop) cycle(ctx context.Context, t telemetry.Time) error {
	report := Report{ServiceTime: t.String(), Index: aqi.InvalidIndex, Category: aqi.CategoryNone.String()}

	l.log.Info("sampling")
	res, err := l.sampler.Sample(ctx)
	report.Samples, report.Failures = len(res.Values), res.Failures
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		l.log.Warn("sampling window aborted", "error", err, "failures", res.Failures)
		report.Outcome = OutcomeEmptyWindow
		report.Error = err.Error()
		l.notify(report)
		return nil
	}

	r := aqi.Calculate(res.Concentration)
	report.Concentration, report.Index, report.Category = res.Concentration, r.Index, r.Category.String()
	if !r.Valid() {
		l.log.Warn("invalid PM2.5 concentration", "concentration", res.Concentration)
	}
	l.log.Info("air quality", "pm25", res.Concentration, "aqi", r.Index, "category", r.Category)

	publishedAt, err := l.publish(ctx, res.Concentration, r)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		l.log.Warn("failed to send data, retrying", "error", err)
		report.Outcome = OutcomePublishFault
		report.Error = err.Error()
		l.notify(report)
		return err
	}

	l.log.Info("published")
	l.sched.Reset()
	report.Outcome = OutcomePublished
	report.PublishedAt = publishedAt
	l.notify(report)
	return nil
}

// publish sends the raw concentration, index and category in that order and
// stops at the first failure. It returns the service's timestamp for the
// raw value when the publisher reports stored data.
func (l *Loop) publish(ctx context.Context, concentration float64, r aqi.Result) (time.Time, error) {
	sends := []struct {
		feed  string
		value string
		loc   *telemetry.Location
	}{
		{l.feeds.Raw, FormatConcentration(concentration), l.location},
		{l.feeds.AQI, strconv.Itoa(r.Index), l.location},
		{l.feeds.Category, r.Category.String(), nil},
	}

	var publishedAt time.Time
	sender, stored := l.publisher.(telemetry.DatumSender)
	for i, s := range sends {
		if !stored {
			if err := l.publisher.SendData(ctx, s.feed, s.value, s.loc); err != nil {
				return time.Time{}, err
			}
			continue
		}

		d, err := sender.Send(ctx, s.feed, s.value, s.loc)
		if err != nil {
			return time.Time{}, err
		}
		if i == 0 {
			publishedAt = d.CreatedAt
		}
	}
	return publishedAt, nil
}

// reconnect resets the adapter and reconnects. It returns an error only when
// ctx is done.
func (l *Loop) reconnect(ctx context.Context) error {
	if err := l.net.Reset(); err != nil {
		l.log.Warn("network reset failed", "error", err)
	}
	return l.connect(ctx)
}

func (l *Loop) connect(ctx context.Context) error {
	if err := network.Connect(ctx, l.net, l.creds, l.backoff); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	network.LogStatus(l.log, l.net, l.creds)
	return nil
}

// notify invokes all registered callbacks without holding the lock.
func (l *Loop) notify(r Report) {
	r.Timestamp = l.clock.Now()

	l.cbMu.RLock()
	callbacks := make([]func(Report), len(l.callbacks))
	copy(callbacks, l.callbacks)
	l.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(r)
		}
	}
}

// FormatConcentration renders a concentration the way it is published:
// shortest decimal form, always with a fractional part.
func FormatConcentration(c float64) string {
	s := strconv.FormatFloat(c, 'f', -1, 64)
	if !strings.ContainsAny(s, ".NI") {
		s += ".0"
	}
	return s
}
