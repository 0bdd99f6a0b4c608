package patterns

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/normanking/cadence/internal/activity"
	"github.com/normanking/cadence/internal/knowledge"
)

// Lookback windows per detector. Coarser signals need longer baselines to
// avoid false positives from short bursts.
const (
	recurringWindowDays = 90
	workflowWindowDays  = 90
	habitWindowDays     = 180
	projectWindowDays   = 180
	timeWindowDays      = 365
)

// DefaultMinFrequency is the occurrence threshold below which a group is not
// considered a pattern.
const DefaultMinFrequency = 2

// workflowTopN and summaryTopN bound the result sizes.
const (
	workflowTopN = 20
	summaryTopN  = 10
)

// Recognizer detects behavioral patterns for a user. It is stateless: it
// holds only references to its data sources and recomputes every pattern
// from a fresh window on each call.
type Recognizer struct {
	source       ActivitySource
	episodic     knowledge.EpisodicStore
	now          func() time.Time
	minFrequency int
}

// RecognizerOption configures a Recognizer.
type RecognizerOption func(*Recognizer)

// WithRecognizerClock overrides the recognizer clock. Used by tests.
func WithRecognizerClock(now func() time.Time) RecognizerOption {
	return func(r *Recognizer) { r.now = now }
}

// WithMinFrequency overrides the occurrence threshold used by Summary.
// Values below one fall back to the default.
func WithMinFrequency(n int) RecognizerOption {
	return func(r *Recognizer) {
		if n >= 1 {
			r.minFrequency = n
		}
	}
}

// NewRecognizer creates a Recognizer over an activity source and the
// episodic collaborator. episodic may be nil, in which case project patterns
// are computed from sessions alone.
func NewRecognizer(source ActivitySource, episodic knowledge.EpisodicStore, opts ...RecognizerOption) *Recognizer {
	r := &Recognizer{
		source:       source,
		episodic:     episodic,
		now:          func() time.Time { return time.Now().UTC() },
		minFrequency: DefaultMinFrequency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MinFrequency returns the occurrence threshold Summary applies.
func (r *Recognizer) MinFrequency() int { return r.minFrequency }

// DetectRecurringTasks finds context-scoped activity groupings that recur at
// least minFrequency times in the last 90 days, scored by interval
// regularity. Groups below the threshold are silently dropped.
func (r *Recognizer) DetectRecurringTasks(ctx context.Context, userID string, minFrequency int) ([]TaskPattern, error) {
	activities := r.source.UserActivities(userID, recurringWindowDays)
	if len(activities) == 0 {
		return nil, nil
	}

	groups := make(map[string][]*activity.Record)
	for _, rec := range activities {
		key := rec.ActivityType + ":" + NewSignature(rec.Context).String()
		groups[key] = append(groups[key], rec)
	}

	var tasks []TaskPattern
	for key, group := range groups {
		if len(group) < minFrequency {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].Timestamp.Before(group[j].Timestamp) })
		timestamps := make([]time.Time, len(group))
		for i, rec := range group {
			timestamps[i] = rec.Timestamp
		}
		intervals := dayIntervals(timestamps)

		taskName, sigStr, _ := strings.Cut(key, ":")
		tasks = append(tasks, TaskPattern{
			TaskName:        taskName,
			Frequency:       len(group),
			AvgIntervalDays: mean(intervals),
			Context:         ParseSignature(sigStr).Context(),
			Confidence:      intervalConfidence(intervals),
			SchedulePattern: classifySchedule(intervals),
		})
	}

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Confidence != tasks[j].Confidence {
			return tasks[i].Confidence > tasks[j].Confidence
		}
		if tasks[i].Frequency != tasks[j].Frequency {
			return tasks[i].Frequency > tasks[j].Frequency
		}
		return tasks[i].TaskName < tasks[j].TaskName
	})
	return tasks, nil
}

// DetectHabits finds activity types that recur at least minFrequency times
// in the last 180 days, characterized by their dominant time of day.
func (r *Recognizer) DetectHabits(ctx context.Context, userID string, minFrequency int) ([]HabitPattern, error) {
	activities := r.source.UserActivities(userID, habitWindowDays)
	if len(activities) == 0 {
		return nil, nil
	}

	groups := make(map[string][]*activity.Record)
	for _, rec := range activities {
		groups[rec.ActivityType] = append(groups[rec.ActivityType], rec)
	}

	var habits []HabitPattern
	for name, group := range groups {
		if len(group) < minFrequency {
			continue
		}

		buckets := make(map[TimeOfDay]int)
		for _, rec := range group {
			buckets[dayPart(rec.Timestamp.Hour())]++
		}

		sort.Slice(group, func(i, j int) bool { return group[i].Timestamp.Before(group[j].Timestamp) })
		timestamps := make([]time.Time, len(group))
		for i, rec := range group {
			timestamps[i] = rec.Timestamp
		}
		intervals := dayIntervals(timestamps)

		habits = append(habits, HabitPattern{
			HabitName:       name,
			Frequency:       len(group),
			AvgIntervalDays: mean(intervals),
			TimeOfDay:       pluralityDayPart(buckets),
			Context:         group[0].Context,
			Confidence:      intervalConfidence(intervals),
		})
	}

	sort.Slice(habits, func(i, j int) bool {
		if habits[i].Confidence != habits[j].Confidence {
			return habits[i].Confidence > habits[j].Confidence
		}
		if habits[i].Frequency != habits[j].Frequency {
			return habits[i].Frequency > habits[j].Frequency
		}
		return habits[i].HabitName < habits[j].HabitName
	})
	return habits, nil
}

// pluralityDayPart picks the bucket with the most occurrences, breaking ties
// in fixed day order.
func pluralityDayPart(buckets map[TimeOfDay]int) TimeOfDay {
	order := []TimeOfDay{Morning, Afternoon, Evening, Night}
	best := Morning
	bestCount := -1
	for _, part := range order {
		if buckets[part] > bestCount {
			best = part
			bestCount = buckets[part]
		}
	}
	return best
}

// workflowStep is one element of a session sequence.
type workflowStep struct {
	activityType string
	signature    string
}

// DetectWorkflows mines contiguous subsequences of length two or more from
// session activity sequences over the last 90 days. Brute force over every
// subsequence is O(n^2) per session, acceptable at expected session sizes.
func (r *Recognizer) DetectWorkflows(ctx context.Context, userID string, minFrequency int) ([]WorkflowPattern, error) {
	sessions := r.source.UserSessions(userID, workflowWindowDays)
	if len(sessions) == 0 {
		return nil, nil
	}

	type candidate struct {
		steps []workflowStep
		count int
	}
	counts := make(map[string]*candidate)

	for _, ses := range sessions {
		if len(ses.Activities) < 2 {
			continue
		}
		seq := make([]workflowStep, len(ses.Activities))
		for i, rec := range ses.Activities {
			seq[i] = workflowStep{
				activityType: rec.ActivityType,
				signature:    NewSignature(rec.Context).String(),
			}
		}
		for i := 0; i < len(seq); i++ {
			for j := i + 2; j <= len(seq); j++ {
				sub := seq[i:j]
				key := encodeSteps(sub)
				if c, ok := counts[key]; ok {
					c.count++
				} else {
					counts[key] = &candidate{steps: sub, count: 1}
				}
			}
		}
	}

	var workflows []WorkflowPattern
	for key, c := range counts {
		if c.count < minFrequency {
			continue
		}
		activities := make([]string, len(c.steps))
		contexts := make([]string, len(c.steps))
		for i, step := range c.steps {
			activities[i] = step.activityType
			contexts[i] = step.signature
		}
		confidence := float64(c.count) / 5.0
		if confidence > 1 {
			confidence = 1
		}
		workflows = append(workflows, WorkflowPattern{
			PatternID:  workflowID(key),
			Activities: activities,
			Contexts:   contexts,
			Frequency:  c.count,
			Confidence: confidence,
		})
	}

	sort.Slice(workflows, func(i, j int) bool {
		if workflows[i].Frequency != workflows[j].Frequency {
			return workflows[i].Frequency > workflows[j].Frequency
		}
		if workflows[i].Confidence != workflows[j].Confidence {
			return workflows[i].Confidence > workflows[j].Confidence
		}
		return workflows[i].PatternID < workflows[j].PatternID
	})
	if len(workflows) > workflowTopN {
		workflows = workflows[:workflowTopN]
	}
	return workflows, nil
}

// encodeSteps builds a collision-safe counting key using control-character
// separators that cannot appear in activity types or signatures.
func encodeSteps(steps []workflowStep) string {
	var sb strings.Builder
	for i, step := range steps {
		if i > 0 {
			sb.WriteByte(0x1e)
		}
		sb.WriteString(step.activityType)
		sb.WriteByte(0x1f)
		sb.WriteString(step.signature)
	}
	return sb.String()
}

// workflowID derives a stable short identifier for a mined sequence.
func workflowID(key string) string {
	sum := sha1.Sum([]byte(key))
	return "wf_" + hex.EncodeToString(sum[:4])
}

// DetectTimePatterns summarizes hour-of-day and day-of-week activity over
// the last year, including an entropy-based consistency score per activity
// type.
func (r *Recognizer) DetectTimePatterns(ctx context.Context, userID string) (TimePatterns, error) {
	out := TimePatterns{
		MostActiveHour:          -1,
		MostActiveDay:           -1,
		TimeOfDayPreferences:    make(map[TimeOfDay]int),
		ActivityTypeConsistency: make(map[string]float64),
		HourlyDistribution:      make(map[int]int),
		DailyDistribution:       make(map[time.Weekday]int),
	}

	activities := r.source.UserActivities(userID, timeWindowDays)
	if len(activities) == 0 {
		return out, nil
	}

	weekdaysByType := make(map[string]map[time.Weekday]int)
	for _, rec := range activities {
		hour := rec.Timestamp.Hour()
		day := rec.Timestamp.Weekday()
		out.HourlyDistribution[hour]++
		out.DailyDistribution[day]++
		out.TimeOfDayPreferences[dayPart(hour)]++

		if weekdaysByType[rec.ActivityType] == nil {
			weekdaysByType[rec.ActivityType] = make(map[time.Weekday]int)
		}
		weekdaysByType[rec.ActivityType][day]++
	}

	out.MostActiveHour = argmaxInt(out.HourlyDistribution)
	out.MostActiveDay = argmaxWeekday(out.DailyDistribution)
	for typ, days := range weekdaysByType {
		out.ActivityTypeConsistency[typ] = consistencyScore(days)
	}
	return out, nil
}

// argmaxInt returns the key with the highest count, smallest key on ties.
func argmaxInt(counts map[int]int) int {
	best, bestCount := -1, -1
	for k, c := range counts {
		if c > bestCount || (c == bestCount && k < best) {
			best, bestCount = k, c
		}
	}
	return best
}

// argmaxWeekday returns the weekday with the highest count as an int,
// earliest day on ties.
func argmaxWeekday(counts map[time.Weekday]int) int {
	best, bestCount := -1, -1
	for k, c := range counts {
		if c > bestCount || (c == bestCount && int(k) < best) {
			best, bestCount = int(k), c
		}
	}
	return best
}

// DetectProjectPatterns joins episodic interactions and tracked sessions by
// project over the last 180 days.
func (r *Recognizer) DetectProjectPatterns(ctx context.Context, userID string) ([]ProjectPattern, error) {
	var interactions []knowledge.Interaction
	if r.episodic != nil {
		var err error
		interactions, err = r.episodic.UserInteractions(ctx, userID, projectWindowDays)
		if err != nil {
			return nil, fmt.Errorf("load interactions: %w", err)
		}
	}
	sessions := r.source.UserSessions(userID, projectWindowDays)

	byProjectInteractions := make(map[string][]knowledge.Interaction)
	for _, i := range interactions {
		if i.ProjectContext != "" {
			byProjectInteractions[i.ProjectContext] = append(byProjectInteractions[i.ProjectContext], i)
		}
	}
	byProjectSessions := make(map[string][]*activity.Session)
	for _, ses := range sessions {
		if ses.ProjectContext != "" {
			byProjectSessions[ses.ProjectContext] = append(byProjectSessions[ses.ProjectContext], ses)
		}
	}

	projectIDs := make(map[string]struct{})
	for id := range byProjectInteractions {
		projectIDs[id] = struct{}{}
	}
	for id := range byProjectSessions {
		projectIDs[id] = struct{}{}
	}

	var projects []ProjectPattern
	for id := range projectIDs {
		pInteractions := byProjectInteractions[id]
		pSessions := byProjectSessions[id]
		if len(pInteractions)+len(pSessions) == 0 {
			continue
		}

		typeCounts := make(map[string]int)
		totalActivities := 0
		for _, i := range pInteractions {
			typeCounts[i.InteractionType]++
		}
		for _, ses := range pSessions {
			totalActivities += len(ses.Activities)
			for _, rec := range ses.Activities {
				typeCounts[rec.ActivityType]++
			}
		}

		primary := "unknown"
		bestCount := -1
		for typ, c := range typeCounts {
			if c > bestCount || (c == bestCount && typ < primary) {
				primary, bestCount = typ, c
			}
		}

		projects = append(projects, ProjectPattern{
			ProjectID:                  id,
			TotalInteractions:          len(pInteractions),
			TotalSessions:              len(pSessions),
			TotalActivities:            totalActivities,
			PrimaryActivityType:        primary,
			DurationDays:               projectSpanDays(pInteractions, pSessions),
			ActiveDays:                 distinctDays(pInteractions),
			MostCommonInteractionTypes: topTypeCounts(typeCounts, 5),
		})
	}

	sort.Slice(projects, func(i, j int) bool {
		ei := projects[i].TotalInteractions + projects[i].TotalSessions
		ej := projects[j].TotalInteractions + projects[j].TotalSessions
		if ei != ej {
			return ei > ej
		}
		return projects[i].ProjectID < projects[j].ProjectID
	})
	return projects, nil
}

// projectSpanDays measures first-to-last engagement. Interactions take
// precedence; sessions are the fallback.
func projectSpanDays(interactions []knowledge.Interaction, sessions []*activity.Session) int {
	if len(interactions) > 0 {
		first, last := interactions[0].Timestamp, interactions[0].Timestamp
		for _, i := range interactions {
			if i.Timestamp.Before(first) {
				first = i.Timestamp
			}
			if i.Timestamp.After(last) {
				last = i.Timestamp
			}
		}
		return int(last.Sub(first).Hours() / 24)
	}
	if len(sessions) > 0 {
		first, last := sessions[0].StartTime, sessions[0].StartTime
		for _, ses := range sessions {
			if ses.StartTime.Before(first) {
				first = ses.StartTime
			}
			end := ses.StartTime
			if ses.EndTime != nil {
				end = *ses.EndTime
			}
			if end.After(last) {
				last = end
			}
		}
		return int(last.Sub(first).Hours() / 24)
	}
	return 0
}

// distinctDays counts unique calendar dates across interactions.
func distinctDays(interactions []knowledge.Interaction) int {
	days := make(map[string]struct{})
	for _, i := range interactions {
		days[i.Timestamp.Format("2006-01-02")] = struct{}{}
	}
	return len(days)
}

// topTypeCounts keeps the n highest entries, ties broken by type name.
func topTypeCounts(counts map[string]int, n int) map[string]int {
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

// Summary runs all five detectors and returns the top slices plus totals.
// This is the entry point the consolidator uses.
func (r *Recognizer) Summary(ctx context.Context, userID string) (*Summary, error) {
	tasks, err := r.DetectRecurringTasks(ctx, userID, r.minFrequency)
	if err != nil {
		return nil, err
	}
	habits, err := r.DetectHabits(ctx, userID, r.minFrequency)
	if err != nil {
		return nil, err
	}
	workflows, err := r.DetectWorkflows(ctx, userID, r.minFrequency)
	if err != nil {
		return nil, err
	}
	timePatterns, err := r.DetectTimePatterns(ctx, userID)
	if err != nil {
		return nil, err
	}
	projects, err := r.DetectProjectPatterns(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		RecurringTasks: head(tasks, summaryTopN),
		Habits:         head(habits, summaryTopN),
		Workflows:      head(workflows, summaryTopN),
		TimePatterns:   timePatterns,
		Projects:       head(projects, summaryTopN),
		Totals: SummaryTotals{
			RecurringTasks: len(tasks),
			Habits:         len(habits),
			Workflows:      len(workflows),
			Projects:       len(projects),
		},
	}

	log.Debug().
		Str("user_id", userID).
		Int("recurring_tasks", len(tasks)).
		Int("habits", len(habits)).
		Int("workflows", len(workflows)).
		Int("projects", len(projects)).
		Msg("pattern summary generated")
	return summary, nil
}

// head returns the first n elements of s.
func head[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
