package schedule

// DefaultInterval is the publish interval in minutes.
const DefaultInterval = 1

// Scheduler counts elapsed minutes from an external wall clock and reports
// when a publish cycle is due.
//
// The counter only advances when the observed minute has not decreased.
// A backwards step (clock correction) is ignored rather than counted, and
// minute 0 realigns the marker so the hourly wraparound keeps counting.
type Scheduler struct {
	interval   int
	lastMinute int
	elapsed    int
}

// New creates a scheduler that is due every interval minutes.
// Non-positive intervals fall back to DefaultInterval.
func New(interval int) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{interval: interval}
}

// OnTick feeds the current minute-of-hour and reports whether a publish is due.
func (s *Scheduler) OnTick(minute int) bool {
	if minute == 0 {
		s.lastMinute = 0
	}
	if minute >= s.lastMinute {
		s.elapsed++
		s.lastMinute = minute
	}
	return s.Due()
}

// Due reports whether the elapsed count has reached the interval.
func (s *Scheduler) Due() bool {
	return s.elapsed >= s.interval
}

// Reset clears the elapsed count after a completed publish cycle.
func (s *Scheduler) Reset() {
	s.elapsed = 0
}

// Elapsed returns the number of counted ticks since the last reset.
func (s *Scheduler) Elapsed() int { return s.elapsed }

// LastMinute returns the last minute value that advanced the counter.
func (s *Scheduler) LastMinute() int { return s.lastMinute }

// Interval returns the configured interval in minutes.
func (s *Scheduler) Interval() int { return s.interval }
