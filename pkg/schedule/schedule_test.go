package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_DefaultInterval(t *testing.T) {
	assert.Equal(t, DefaultInterval, New(0).Interval())
	assert.Equal(t, DefaultInterval, New(-3).Interval())
	assert.Equal(t, 5, New(5).Interval())
}

func TestOnTick_DueEveryMinute(t *testing.T) {
	s := New(1)

	assert.True(t, s.OnTick(7))
	s.Reset()
	assert.False(t, s.Due())
	assert.True(t, s.OnTick(8))
}

func TestOnTick_Interval(t *testing.T) {
	s := New(3)

	assert.False(t, s.OnTick(10))
	assert.False(t, s.OnTick(11))
	assert.True(t, s.OnTick(12))
	assert.Equal(t, 3, s.Elapsed())

	s.Reset()
	assert.Equal(t, 0, s.Elapsed())
	assert.False(t, s.OnTick(13))
}

func TestOnTick_RepeatedMinuteCounts(t *testing.T) {
	// The loop ticks every 30s, so the same minute is usually seen twice.
	s := New(2)

	assert.False(t, s.OnTick(4))
	assert.True(t, s.OnTick(4))
	assert.Equal(t, 2, s.Elapsed())
}

func TestOnTick_HourlyRealignment(t *testing.T) {
	s := New(1000)

	minutes := []int{0, 0}
	for m := 1; m <= 59; m++ {
		minutes = append(minutes, m)
	}

	for i, m := range minutes {
		s.OnTick(m)
		assert.Equal(t, i+1, s.Elapsed(), "tick %d (minute %d)", i, m)
		assert.Equal(t, m, s.LastMinute())
	}

	// Without the realignment, 0 < 59 would be ignored.
	s.OnTick(0)
	assert.Equal(t, len(minutes)+1, s.Elapsed())
	assert.Equal(t, 0, s.LastMinute())

	s.OnTick(1)
	assert.Equal(t, len(minutes)+2, s.Elapsed())
}

func TestOnTick_DecreasingMinuteIgnored(t *testing.T) {
	s := New(1000)

	s.OnTick(5)
	assert.Equal(t, 1, s.Elapsed())

	s.OnTick(3)
	assert.Equal(t, 1, s.Elapsed())
	assert.Equal(t, 5, s.LastMinute())

	s.OnTick(5)
	assert.Equal(t, 2, s.Elapsed())
}

func TestOnTick_DueSurvivesUntilReset(t *testing.T) {
	s := New(1)

	assert.True(t, s.OnTick(20))
	// A failed cycle does not reset; the next tick is still due.
	assert.True(t, s.OnTick(20))
	assert.True(t, s.OnTick(19))
}
