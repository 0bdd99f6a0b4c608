package patterns

import (
	"math"
	"time"
)

// defaultConfidence is used when a group has too few intervals (or a zero
// mean interval) to measure regularity.
const defaultConfidence = 0.5

// mean returns the arithmetic mean, or 0 for an empty slice.
func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stdDev returns the population standard deviation around m.
func stdDev(xs []float64, m float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var variance float64
	for _, x := range xs {
		d := x - m
		variance += d * d
	}
	variance /= float64(len(xs))
	return math.Sqrt(variance)
}

// intervalConfidence scores the regularity of a series of day-intervals as
// clamp(1 - coefficient_of_variation). Larger samples get a fixed boost:
// x1.5 at ten or more intervals, x1.2 at five or more, never past 1.0.
// Fewer than two intervals, or a zero mean, yields the default confidence.
func intervalConfidence(intervals []float64) float64 {
	if len(intervals) < 2 {
		return defaultConfidence
	}
	m := mean(intervals)
	if m == 0 {
		return defaultConfidence
	}

	cv := stdDev(intervals, m) / m
	confidence := 1.0 - cv
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	switch {
	case len(intervals) >= 10:
		confidence = math.Min(1.0, confidence*1.5)
	case len(intervals) >= 5:
		confidence = math.Min(1.0, confidence*1.2)
	}
	return confidence
}

// classifySchedule maps a mean day-interval onto a cadence label. The bands
// are fixed tolerances around 1, 7, 14 and 30 days; everything else is
// irregular.
func classifySchedule(intervals []float64) SchedulePattern {
	if len(intervals) == 0 {
		return ScheduleIrregular
	}
	switch avg := mean(intervals); {
	case avg >= 0.8 && avg <= 1.2:
		return ScheduleDaily
	case avg >= 6.5 && avg <= 7.5:
		return ScheduleWeekly
	case avg >= 13.5 && avg <= 14.5:
		return ScheduleBiweekly
	case avg >= 28 && avg <= 32:
		return ScheduleMonthly
	default:
		return ScheduleIrregular
	}
}

// dayIntervals converts sorted timestamps into whole-day gaps between
// consecutive occurrences.
func dayIntervals(timestamps []time.Time) []float64 {
	if len(timestamps) < 2 {
		return nil
	}
	intervals := make([]float64, 0, len(timestamps)-1)
	for i := 1; i < len(timestamps); i++ {
		days := timestamps[i].Sub(timestamps[i-1]) / (24 * time.Hour)
		intervals = append(intervals, float64(days))
	}
	return intervals
}

// maxWeekEntropy is the entropy of a uniform distribution over the 7 days of
// the week, the normalization base for consistency scores.
var maxWeekEntropy = math.Log2(7)

// consistencyScore measures how concentrated day-of-week counts are:
// 1.0 when every occurrence falls on one day, approaching 0 as occurrences
// spread evenly across all seven. Zero-count days contribute no entropy term.
func consistencyScore(dayCounts map[time.Weekday]int) float64 {
	total := 0
	for _, c := range dayCounts {
		total += c
	}
	if total == 0 {
		return 0
	}

	entropy := 0.0
	for _, c := range dayCounts {
		if c == 0 {
			continue
		}
		p := float64(c) / float64(total)
		entropy -= p * math.Log2(p)
	}

	score := 1.0 - entropy/maxWeekEntropy
	if score < 0 {
		return 0
	}
	return score
}

// dayPart buckets an hour of day into one of the four fixed day parts.
func dayPart(hour int) TimeOfDay {
	switch {
	case hour >= 5 && hour < 12:
		return Morning
	case hour >= 12 && hour < 17:
		return Afternoon
	case hour >= 17 && hour < 21:
		return Evening
	default:
		return Night
	}
}
