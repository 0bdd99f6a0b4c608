package patterns

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifySchedule(t *testing.T) {
	cases := []struct {
		name      string
		intervals []float64
		want      SchedulePattern
	}{
		{"empty", nil, ScheduleIrregular},
		{"daily", []float64{1, 1, 1}, ScheduleDaily},
		{"daily lower edge", []float64{0.8}, ScheduleDaily},
		{"daily upper edge", []float64{1.2}, ScheduleDaily},
		{"weekly", []float64{7, 7, 7}, ScheduleWeekly},
		{"weekly with jitter", []float64{6, 8, 7}, ScheduleWeekly},
		{"biweekly", []float64{14, 14}, ScheduleBiweekly},
		{"monthly", []float64{30, 30, 31}, ScheduleMonthly},
		{"monthly lower edge", []float64{28}, ScheduleMonthly},
		{"between bands", []float64{4, 4, 4}, ScheduleIrregular},
		{"too sparse", []float64{60, 90}, ScheduleIrregular},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifySchedule(tc.intervals))
		})
	}
}

func TestIntervalConfidence(t *testing.T) {
	t.Run("too few intervals", func(t *testing.T) {
		assert.Equal(t, defaultConfidence, intervalConfidence(nil))
		assert.Equal(t, defaultConfidence, intervalConfidence([]float64{7}))
	})

	t.Run("zero mean", func(t *testing.T) {
		assert.Equal(t, defaultConfidence, intervalConfidence([]float64{0, 0, 0}))
	})

	t.Run("perfectly regular", func(t *testing.T) {
		assert.InDelta(t, 1.0, intervalConfidence([]float64{7, 7, 7}), 1e-9)
	})

	t.Run("monotone in variance", func(t *testing.T) {
		regular := intervalConfidence([]float64{7, 7, 7, 7})
		wobbly := intervalConfidence([]float64{5, 9, 6, 8})
		chaotic := intervalConfidence([]float64{1, 20, 3, 15})
		assert.Greater(t, regular, wobbly)
		assert.Greater(t, wobbly, chaotic)
	})

	t.Run("never negative", func(t *testing.T) {
		c := intervalConfidence([]float64{1, 100, 1, 100})
		assert.GreaterOrEqual(t, c, 0.0)
	})

	t.Run("sample size boost at five", func(t *testing.T) {
		small := intervalConfidence([]float64{6, 8, 6, 8})
		boosted := intervalConfidence([]float64{6, 8, 6, 8, 7})
		assert.Greater(t, boosted, small)
		assert.LessOrEqual(t, boosted, 1.0)
	})

	t.Run("sample size boost at ten", func(t *testing.T) {
		// With ten intervals the x1.5 multiplier applies, not the x1.2 one.
		intervals := []float64{10, 20, 10, 20, 10, 20, 10, 20, 10, 20}
		base := 1.0 - stdDev(intervals, mean(intervals))/mean(intervals)
		got := intervalConfidence(intervals)
		assert.InDelta(t, base*1.5, got, 1e-9)
	})

	t.Run("boost clamps at one", func(t *testing.T) {
		intervals := []float64{7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7}
		assert.Equal(t, 1.0, intervalConfidence(intervals))
	})
}

func TestDayIntervals(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	stamps := []time.Time{
		base,
		base.AddDate(0, 0, 7),
		base.AddDate(0, 0, 14),
	}
	assert.Equal(t, []float64{7, 7}, dayIntervals(stamps))
	assert.Nil(t, dayIntervals(stamps[:1]))

	t.Run("sub-day gaps truncate to zero", func(t *testing.T) {
		got := dayIntervals([]time.Time{base, base.Add(6 * time.Hour)})
		assert.Equal(t, []float64{0}, got)
	})
}

func TestConsistencyScore(t *testing.T) {
	t.Run("single day is perfectly consistent", func(t *testing.T) {
		score := consistencyScore(map[time.Weekday]int{time.Monday: 12})
		assert.Equal(t, 1.0, score)
	})

	t.Run("uniform spread approaches zero", func(t *testing.T) {
		counts := make(map[time.Weekday]int)
		for d := time.Sunday; d <= time.Saturday; d++ {
			counts[d] = 5
		}
		assert.InDelta(t, 0.0, consistencyScore(counts), 1e-9)
	})

	t.Run("zero-count days are ignored", func(t *testing.T) {
		withZeros := consistencyScore(map[time.Weekday]int{
			time.Monday: 6, time.Tuesday: 0, time.Wednesday: 0,
		})
		without := consistencyScore(map[time.Weekday]int{time.Monday: 6})
		assert.Equal(t, without, withZeros)
	})

	t.Run("empty counts", func(t *testing.T) {
		assert.Equal(t, 0.0, consistencyScore(nil))
	})

	t.Run("concentration orders scores", func(t *testing.T) {
		focused := consistencyScore(map[time.Weekday]int{time.Monday: 9, time.Friday: 1})
		split := consistencyScore(map[time.Weekday]int{time.Monday: 5, time.Friday: 5})
		assert.Greater(t, focused, split)
	})
}

func TestDayPart(t *testing.T) {
	assert.Equal(t, Morning, dayPart(5))
	assert.Equal(t, Morning, dayPart(11))
	assert.Equal(t, Afternoon, dayPart(12))
	assert.Equal(t, Afternoon, dayPart(16))
	assert.Equal(t, Evening, dayPart(17))
	assert.Equal(t, Evening, dayPart(20))
	assert.Equal(t, Night, dayPart(21))
	assert.Equal(t, Night, dayPart(0))
	assert.Equal(t, Night, dayPart(4))
}
