package sample

import "math"

// Mean returns the arithmetic mean of values, or ErrEmptyWindow if there
// are none.
func Mean(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmptyWindow
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), nil
}

// ChannelStats summarises one channel's contribution to a sampling window.
type ChannelStats struct {
	Channel  string
	Count    int
	Failures int
	Mean     float64 // NaN when Count is 0
}

// Spread returns the difference between the highest and lowest per-channel
// mean, a rough agreement measure between redundant sensors. Channels
// without readings are ignored; fewer than two reporting channels give 0.
func Spread(channels []ChannelStats) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	n := 0
	for _, c := range channels {
		if c.Count == 0 {
			continue
		}
		lo = math.Min(lo, c.Mean)
		hi = math.Max(hi, c.Mean)
		n++
	}
	if n < 2 {
		return 0
	}
	return hi - lo
}
