// Package patterns implements statistical pattern detection over user
// activity history: recurring tasks, habits, workflow sequences, time-of-day
// regularity, and project-centric aggregates. Every detected pattern is a
// pure function of the activity window at computation time; patterns are
// recomputed, never mutated.
package patterns

import (
	"time"

	"github.com/normanking/cadence/internal/activity"
)

// SchedulePattern classifies the cadence of a recurring task.
type SchedulePattern string

const (
	ScheduleDaily     SchedulePattern = "daily"
	ScheduleWeekly    SchedulePattern = "weekly"
	ScheduleBiweekly  SchedulePattern = "biweekly"
	ScheduleMonthly   SchedulePattern = "monthly"
	ScheduleIrregular SchedulePattern = "irregular"
)

// TimeOfDay is one of four fixed day-part buckets.
type TimeOfDay string

const (
	Morning   TimeOfDay = "morning"   // 05:00-11:59
	Afternoon TimeOfDay = "afternoon" // 12:00-16:59
	Evening   TimeOfDay = "evening"   // 17:00-20:59
	Night     TimeOfDay = "night"     // 21:00-04:59
)

// TaskPattern is a recurring, context-scoped activity grouping with an
// inferred cadence.
type TaskPattern struct {
	TaskName        string            `json:"task_name"`
	Frequency       int               `json:"frequency"`
	AvgIntervalDays float64           `json:"avg_interval_days"`
	Context         map[string]string `json:"context,omitempty"`
	Confidence      float64           `json:"confidence"`
	SchedulePattern SchedulePattern   `json:"schedule_pattern"`
}

// HabitPattern is a recurring activity type characterized by its time-of-day
// regularity.
type HabitPattern struct {
	HabitName       string            `json:"habit_name"`
	Frequency       int               `json:"frequency"`
	AvgIntervalDays float64           `json:"avg_interval_days"`
	TimeOfDay       TimeOfDay         `json:"time_of_day"`
	Context         map[string]string `json:"context,omitempty"`
	Confidence      float64           `json:"confidence"`
}

// WorkflowPattern is a frequently repeated contiguous subsequence of
// activities within sessions.
type WorkflowPattern struct {
	PatternID  string   `json:"pattern_id"`
	Activities []string `json:"pattern_activities"`
	Contexts   []string `json:"pattern_contexts"`
	Frequency  int      `json:"frequency"`
	Confidence float64  `json:"confidence"`
}

// TimePatterns summarizes when a user is active. MostActiveHour is -1 and
// MostActiveDay is -1 when no activity exists.
type TimePatterns struct {
	MostActiveHour          int                  `json:"most_active_hour"`
	MostActiveDay           int                  `json:"most_active_day"` // time.Weekday, Sunday = 0
	TimeOfDayPreferences    map[TimeOfDay]int    `json:"time_of_day_preferences"`
	ActivityTypeConsistency map[string]float64   `json:"activity_type_consistency"`
	HourlyDistribution      map[int]int          `json:"hourly_activity_distribution"`
	DailyDistribution       map[time.Weekday]int `json:"daily_activity_distribution"`
}

// ProjectPattern aggregates a user's engagement with one project across
// episodic interactions and tracked sessions.
type ProjectPattern struct {
	ProjectID                  string         `json:"project_id"`
	TotalInteractions          int            `json:"total_interactions"`
	TotalSessions              int            `json:"total_sessions"`
	TotalActivities            int            `json:"total_activities"`
	PrimaryActivityType        string         `json:"primary_activity_type"`
	DurationDays               int            `json:"duration_days"`
	ActiveDays                 int            `json:"active_days"`
	MostCommonInteractionTypes map[string]int `json:"most_common_interaction_types"`
}

// Summary aggregates the five detectors. The slice fields hold the top 10 of
// each view; Totals carries the full counts.
type Summary struct {
	RecurringTasks []TaskPattern     `json:"recurring_tasks"`
	Habits         []HabitPattern    `json:"habits"`
	Workflows      []WorkflowPattern `json:"workflow_patterns"`
	TimePatterns   TimePatterns      `json:"time_based_patterns"`
	Projects       []ProjectPattern  `json:"project_patterns"`
	Totals         SummaryTotals     `json:"summary"`
}

// SummaryTotals counts every detected pattern before top-N truncation.
type SummaryTotals struct {
	RecurringTasks int `json:"total_recurring_tasks"`
	Habits         int `json:"total_habits"`
	Workflows      int `json:"total_workflow_patterns"`
	Projects       int `json:"total_project_patterns"`
}

// ActivitySource provides time-windowed reads over the activity log. The
// activity tracker satisfies this.
type ActivitySource interface {
	UserActivities(userID string, daysBack int) []*activity.Record
	UserSessions(userID string, daysBack int) []*activity.Session
}
