// Package activity implements the activity log store and session tracker:
// an append-mostly log of discrete user activities, grouped into goal-scoped
// sessions, persisted wholesale through a pluggable Store backend.
package activity

import (
	"time"
)

// SchemaVersion is written into every persisted document. Loaders accept
// version 0 (documents written before versioning was added).
const SchemaVersion = 1

// Record is a single logged user activity. Records are immutable once
// created; identity is ActivityID. They are removed only by the retention
// pass.
type Record struct {
	ActivityID   string            `json:"activity_id"`
	UserID       string            `json:"user_id"`
	ActivityType string            `json:"activity_type"`
	Description  string            `json:"description"`
	Timestamp    time.Time         `json:"timestamp"`
	Duration     float64           `json:"duration,omitempty"` // seconds
	Success      bool              `json:"success"`
	Context      map[string]string `json:"context,omitempty"`
	Metadata     map[string]any    `json:"metadata,omitempty"`
}

// Session is a bounded sequence of activities sharing a goal or project
// context. A session with no EndTime is open; at most one session per user is
// open at a time.
type Session struct {
	SessionID      string         `json:"session_id"`
	UserID         string         `json:"user_id"`
	StartTime      time.Time      `json:"start_time"`
	EndTime        *time.Time     `json:"end_time,omitempty"`
	Goal           string         `json:"goal,omitempty"`
	ProjectContext string         `json:"project_context,omitempty"`
	Activities     []*Record      `json:"activities"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Open reports whether the session has not been closed yet.
func (s *Session) Open() bool { return s.EndTime == nil }

// Close stamps the session end time if it is still open.
func (s *Session) Close(at time.Time) {
	if s.EndTime == nil {
		t := at
		s.EndTime = &t
	}
}

// Duration returns the session length, or zero while the session is open.
func (s *Session) Duration() time.Duration {
	if s.EndTime == nil {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// Snapshot is the full persisted state of the tracker: the activity log plus
// all sessions.
type Snapshot struct {
	SchemaVersion int        `json:"schema_version"`
	Activities    []*Record  `json:"activities"`
	Sessions      []*Session `json:"sessions"`
}

// Statistics is a derived, read-only report over a user's activity history.
type Statistics struct {
	TotalActivities        int                `json:"total_activities"`
	ActivityTypes          map[string]int     `json:"activity_types"`
	SuccessRatesByType     map[string]float64 `json:"success_rates_by_type"`
	AverageDuration        float64            `json:"average_duration"`
	TotalDuration          float64            `json:"total_duration"`
	ActiveDays             int                `json:"active_days"`
	AverageDailyActivities float64            `json:"average_daily_activities"`
	MostCommonContexts     map[string]int     `json:"most_common_contexts"`
	FirstActivity          time.Time          `json:"first_activity"`
	LastActivity           time.Time          `json:"last_activity"`
}

// SessionStatistics is a derived report over a user's session history.
type SessionStatistics struct {
	TotalSessions               int            `json:"total_sessions"`
	TotalActivitiesInSessions   int            `json:"total_activities_in_sessions"`
	AverageActivitiesPerSession float64        `json:"average_activities_per_session"`
	AverageSessionDuration      float64        `json:"average_session_duration"` // seconds
	MostCommonGoals             map[string]int `json:"most_common_goals"`
	MostCommonProjectContexts   map[string]int `json:"most_common_project_contexts"`
}
