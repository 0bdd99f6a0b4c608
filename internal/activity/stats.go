package activity

import (
	"fmt"
	"sort"
)

// statsWindowDays is the lookback used for the derived statistics reports.
const statsWindowDays = 365

// Statistics computes a derived report over the user's last year of
// activity. It is read-only and never persisted.
func (t *Tracker) Statistics(userID string) Statistics {
	activities := t.UserActivities(userID, statsWindowDays)
	if len(activities) == 0 {
		return Statistics{}
	}

	stats := Statistics{
		TotalActivities:    len(activities),
		ActivityTypes:      make(map[string]int),
		SuccessRatesByType: make(map[string]float64),
	}

	successes := make(map[string]int)
	contexts := make(map[string]int)
	var totalDuration float64
	durationCount := 0

	first := activities[0].Timestamp
	last := activities[0].Timestamp
	for _, rec := range activities {
		stats.ActivityTypes[rec.ActivityType]++
		if rec.Success {
			successes[rec.ActivityType]++
		}
		if rec.Duration > 0 {
			totalDuration += rec.Duration
			durationCount++
		}
		for k, v := range rec.Context {
			contexts[fmt.Sprintf("%s:%s", k, v)]++
		}
		if rec.Timestamp.Before(first) {
			first = rec.Timestamp
		}
		if rec.Timestamp.After(last) {
			last = rec.Timestamp
		}
	}

	for typ, total := range stats.ActivityTypes {
		stats.SuccessRatesByType[typ] = float64(successes[typ]) / float64(total)
	}
	stats.TotalDuration = totalDuration
	if durationCount > 0 {
		stats.AverageDuration = totalDuration / float64(durationCount)
	}

	activeDays := int(last.Sub(first).Hours()/24) + 1
	if activeDays < 1 {
		activeDays = 1
	}
	stats.ActiveDays = activeDays
	stats.AverageDailyActivities = float64(len(activities)) / float64(activeDays)
	stats.MostCommonContexts = topCounts(contexts, 10)
	stats.FirstActivity = first
	stats.LastActivity = last
	return stats
}

// SessionStatistics computes a derived report over the user's last year of
// sessions.
func (t *Tracker) SessionStatistics(userID string) SessionStatistics {
	sessions := t.UserSessions(userID, statsWindowDays)
	if len(sessions) == 0 {
		return SessionStatistics{}
	}

	stats := SessionStatistics{TotalSessions: len(sessions)}

	goals := make(map[string]int)
	projects := make(map[string]int)
	var durationSum float64
	durationCount := 0
	for _, ses := range sessions {
		stats.TotalActivitiesInSessions += len(ses.Activities)
		if ses.EndTime != nil {
			durationSum += ses.Duration().Seconds()
			durationCount++
		}
		if ses.Goal != "" {
			goals[ses.Goal]++
		}
		if ses.ProjectContext != "" {
			projects[ses.ProjectContext]++
		}
	}

	stats.AverageActivitiesPerSession = float64(stats.TotalActivitiesInSessions) / float64(len(sessions))
	if durationCount > 0 {
		stats.AverageSessionDuration = durationSum / float64(durationCount)
	}
	stats.MostCommonGoals = topCounts(goals, 10)
	stats.MostCommonProjectContexts = topCounts(projects, 10)
	return stats
}

// topCounts returns the n highest counts, breaking ties by key so the result
// is deterministic.
func topCounts(counts map[string]int, n int) map[string]int {
	if len(counts) == 0 {
		return map[string]int{}
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	out := make(map[string]int, len(keys))
	for _, k := range keys {
		out[k] = counts[k]
	}
	return out
}
