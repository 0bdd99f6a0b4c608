package patterns

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cadence/internal/activity"
	"github.com/normanking/cadence/internal/knowledge"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

// stubSource is an in-memory ActivitySource. Window filtering is the
// tracker's job and is tested there; the stub only filters by user.
type stubSource struct {
	activities []*activity.Record
	sessions   []*activity.Session
}

func (s *stubSource) UserActivities(userID string, daysBack int) []*activity.Record {
	var out []*activity.Record
	for _, rec := range s.activities {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out
}

func (s *stubSource) UserSessions(userID string, daysBack int) []*activity.Session {
	var out []*activity.Session
	for _, ses := range s.sessions {
		if ses.UserID == userID {
			out = append(out, ses)
		}
	}
	return out
}

func newTestRecognizer(source *stubSource, episodic knowledge.EpisodicStore) *Recognizer {
	return NewRecognizer(source, episodic, WithRecognizerClock(func() time.Time { return testNow }))
}

func deployRecord(daysAgo int, hour int) *activity.Record {
	return &activity.Record{
		UserID:       "norman",
		ActivityType: "deploy",
		Timestamp:    testNow.AddDate(0, 0, -daysAgo).Truncate(24 * time.Hour).Add(time.Duration(hour) * time.Hour),
		Success:      true,
		Context:      map[string]string{"project_context": "api", "goal_type": "release"},
	}
}

func TestDetectRecurringTasksWeekly(t *testing.T) {
	source := &stubSource{activities: []*activity.Record{
		deployRecord(21, 10),
		deployRecord(14, 10),
		deployRecord(7, 10),
		deployRecord(0, 10),
	}}
	r := newTestRecognizer(source, nil)

	tasks, err := r.DetectRecurringTasks(context.Background(), "norman", 2)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	task := tasks[0]
	assert.Equal(t, "deploy", task.TaskName)
	assert.Equal(t, 4, task.Frequency)
	assert.Equal(t, ScheduleWeekly, task.SchedulePattern)
	assert.Greater(t, task.Confidence, 0.8)
	assert.InDelta(t, 7.0, task.AvgIntervalDays, 1e-9)
	assert.Equal(t, map[string]string{"project_context": "api", "goal_type": "release"}, task.Context)
}

func TestDetectRecurringTasksMinFrequency(t *testing.T) {
	source := &stubSource{activities: []*activity.Record{
		deployRecord(7, 10),
		deployRecord(0, 10),
		{
			UserID:       "norman",
			ActivityType: "review",
			Timestamp:    testNow.AddDate(0, 0, -3),
		},
	}}
	r := newTestRecognizer(source, nil)

	tasks, err := r.DetectRecurringTasks(context.Background(), "norman", 2)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "deploy", tasks[0].TaskName)

	tasks, err = r.DetectRecurringTasks(context.Background(), "norman", 3)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestDetectRecurringTasksContextSplitsGroups(t *testing.T) {
	// Same activity type in two projects forms two groups.
	mk := func(daysAgo int, project string) *activity.Record {
		return &activity.Record{
			UserID:       "norman",
			ActivityType: "deploy",
			Timestamp:    testNow.AddDate(0, 0, -daysAgo),
			Context:      map[string]string{"project_context": project},
		}
	}
	source := &stubSource{activities: []*activity.Record{
		mk(10, "api"), mk(9, "api"),
		mk(8, "web"), mk(7, "web"),
	}}
	r := newTestRecognizer(source, nil)

	tasks, err := r.DetectRecurringTasks(context.Background(), "norman", 2)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	projects := []string{
		tasks[0].Context["project_context"],
		tasks[1].Context["project_context"],
	}
	assert.ElementsMatch(t, []string{"api", "web"}, projects)
}

func TestDetectRecurringTasksEmptyUser(t *testing.T) {
	r := newTestRecognizer(&stubSource{}, nil)
	tasks, err := r.DetectRecurringTasks(context.Background(), "nobody", 2)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestDetectHabits(t *testing.T) {
	source := &stubSource{activities: []*activity.Record{
		deployRecord(3, 9),
		deployRecord(2, 9),
		deployRecord(1, 14), // one afternoon outlier
	}}
	r := newTestRecognizer(source, nil)

	habits, err := r.DetectHabits(context.Background(), "norman", 2)
	require.NoError(t, err)
	require.Len(t, habits, 1)
	assert.Equal(t, "deploy", habits[0].HabitName)
	assert.Equal(t, 3, habits[0].Frequency)
	assert.Equal(t, Morning, habits[0].TimeOfDay)
}

func TestDetectHabitsGroupsIgnoreContext(t *testing.T) {
	// Habits group by type alone: two deploys in different projects still
	// form one habit.
	source := &stubSource{activities: []*activity.Record{
		{UserID: "norman", ActivityType: "deploy", Timestamp: testNow.AddDate(0, 0, -2),
			Context: map[string]string{"project_context": "api"}},
		{UserID: "norman", ActivityType: "deploy", Timestamp: testNow.AddDate(0, 0, -1),
			Context: map[string]string{"project_context": "web"}},
	}}
	r := newTestRecognizer(source, nil)

	habits, err := r.DetectHabits(context.Background(), "norman", 2)
	require.NoError(t, err)
	require.Len(t, habits, 1)
	assert.Equal(t, 2, habits[0].Frequency)
}

func sessionOf(userID, project string, daysAgo int, types ...string) *activity.Session {
	start := testNow.AddDate(0, 0, -daysAgo)
	ses := &activity.Session{
		SessionID:      "ses-" + userID + "-" + project + "-" + types[0],
		UserID:         userID,
		StartTime:      start,
		ProjectContext: project,
	}
	for i, typ := range types {
		ses.Activities = append(ses.Activities, &activity.Record{
			UserID:       userID,
			ActivityType: typ,
			Timestamp:    start.Add(time.Duration(i) * time.Minute),
		})
	}
	end := start.Add(time.Hour)
	ses.EndTime = &end
	return ses
}

func TestDetectWorkflowsSubsequences(t *testing.T) {
	// Five sessions of [edit, test, commit] yield exactly three patterns:
	// (edit,test), (test,commit) and (edit,test,commit), each seen 5 times.
	var sessions []*activity.Session
	for i := 0; i < 5; i++ {
		ses := sessionOf("norman", "api", i+1, "edit", "test", "commit")
		ses.SessionID = ses.SessionID + string(rune('a'+i))
		sessions = append(sessions, ses)
	}
	r := newTestRecognizer(&stubSource{sessions: sessions}, nil)

	workflows, err := r.DetectWorkflows(context.Background(), "norman", 2)
	require.NoError(t, err)
	require.Len(t, workflows, 3)

	var stepLists [][]string
	for _, wf := range workflows {
		assert.Equal(t, 5, wf.Frequency)
		assert.Equal(t, 1.0, wf.Confidence)
		assert.NotEmpty(t, wf.PatternID)
		stepLists = append(stepLists, wf.Activities)
	}
	assert.ElementsMatch(t, [][]string{
		{"edit", "test"},
		{"test", "commit"},
		{"edit", "test", "commit"},
	}, stepLists)
}

func TestDetectWorkflowsConfidenceScalesWithCount(t *testing.T) {
	sessions := []*activity.Session{
		sessionOf("norman", "api", 2, "edit", "test"),
	}
	ses2 := sessionOf("norman", "api", 1, "edit", "test")
	ses2.SessionID = "ses-2"
	sessions = append(sessions, ses2)
	r := newTestRecognizer(&stubSource{sessions: sessions}, nil)

	workflows, err := r.DetectWorkflows(context.Background(), "norman", 2)
	require.NoError(t, err)
	require.Len(t, workflows, 1)
	assert.Equal(t, 2, workflows[0].Frequency)
	assert.InDelta(t, 0.4, workflows[0].Confidence, 1e-9)
}

func TestDetectWorkflowsSkipsShortSessions(t *testing.T) {
	sessions := []*activity.Session{
		sessionOf("norman", "api", 2, "edit"),
		sessionOf("norman", "api", 1, "edit"),
	}
	r := newTestRecognizer(&stubSource{sessions: sessions}, nil)

	workflows, err := r.DetectWorkflows(context.Background(), "norman", 1)
	require.NoError(t, err)
	assert.Empty(t, workflows)
}

func TestDetectTimePatterns(t *testing.T) {
	source := &stubSource{activities: []*activity.Record{
		deployRecord(7, 9),
		deployRecord(7, 9),
		deployRecord(7, 15),
	}}
	r := newTestRecognizer(source, nil)

	tp, err := r.DetectTimePatterns(context.Background(), "norman")
	require.NoError(t, err)
	assert.Equal(t, 9, tp.MostActiveHour)
	assert.Equal(t, 2, tp.TimeOfDayPreferences[Morning])
	assert.Equal(t, 1, tp.TimeOfDayPreferences[Afternoon])
	assert.Equal(t, 3, tp.DailyDistribution[testNow.AddDate(0, 0, -7).Weekday()])
	// all on one weekday: perfectly consistent
	assert.Equal(t, 1.0, tp.ActivityTypeConsistency["deploy"])
}

func TestDetectTimePatternsEmptyUser(t *testing.T) {
	r := newTestRecognizer(&stubSource{}, nil)

	tp, err := r.DetectTimePatterns(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, -1, tp.MostActiveHour)
	assert.Equal(t, -1, tp.MostActiveDay)
	assert.NotNil(t, tp.HourlyDistribution)
	assert.Empty(t, tp.HourlyDistribution)
	assert.NotNil(t, tp.ActivityTypeConsistency)
}

func TestDetectProjectPatterns(t *testing.T) {
	episodic := knowledge.NewMemoryEpisodicStore()
	episodic.Now = func() time.Time { return testNow }
	for i := 0; i < 3; i++ {
		episodic.AddInteraction(knowledge.Interaction{
			InteractionID:   "int-" + string(rune('a'+i)),
			UserID:          "norman",
			InteractionType: "question",
			ProjectContext:  "api",
			Timestamp:       testNow.AddDate(0, 0, -(i + 1)),
		})
	}

	sessions := []*activity.Session{
		sessionOf("norman", "api", 2, "edit", "test"),
		sessionOf("norman", "web", 1, "design", "edit"),
	}
	r := newTestRecognizer(&stubSource{sessions: sessions}, episodic)

	projects, err := r.DetectProjectPatterns(context.Background(), "norman")
	require.NoError(t, err)
	require.Len(t, projects, 2)

	// "api" has more combined engagement and sorts first.
	api := projects[0]
	assert.Equal(t, "api", api.ProjectID)
	assert.Equal(t, 3, api.TotalInteractions)
	assert.Equal(t, 1, api.TotalSessions)
	assert.Equal(t, 2, api.TotalActivities)
	assert.Equal(t, "question", api.PrimaryActivityType)
	assert.Equal(t, 3, api.ActiveDays)
	assert.Equal(t, 2, api.DurationDays)

	web := projects[1]
	assert.Equal(t, "web", web.ProjectID)
	assert.Equal(t, 0, web.TotalInteractions)
	assert.Equal(t, 1, web.TotalSessions)
}

func TestDetectProjectPatternsNilEpisodic(t *testing.T) {
	sessions := []*activity.Session{
		sessionOf("norman", "api", 1, "edit", "test"),
	}
	r := newTestRecognizer(&stubSource{sessions: sessions}, nil)

	projects, err := r.DetectProjectPatterns(context.Background(), "norman")
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "api", projects[0].ProjectID)
}

func TestSummary(t *testing.T) {
	var sessions []*activity.Session
	activities := []*activity.Record{
		deployRecord(21, 10),
		deployRecord(14, 10),
		deployRecord(7, 10),
		deployRecord(0, 10),
	}
	for i := 0; i < 3; i++ {
		ses := sessionOf("norman", "api", i+1, "edit", "test")
		ses.SessionID = ses.SessionID + string(rune('a'+i))
		sessions = append(sessions, ses)
	}
	r := newTestRecognizer(&stubSource{activities: activities, sessions: sessions}, nil)

	summary, err := r.Summary(context.Background(), "norman")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Totals.RecurringTasks)
	assert.Equal(t, 1, summary.Totals.Habits)
	assert.Equal(t, 1, summary.Totals.Workflows)
	assert.Equal(t, 1, summary.Totals.Projects)
	require.Len(t, summary.RecurringTasks, 1)
	assert.Equal(t, ScheduleWeekly, summary.RecurringTasks[0].SchedulePattern)
	assert.Equal(t, 10, summary.TimePatterns.MostActiveHour)
}

func TestSummaryEmptyUser(t *testing.T) {
	r := newTestRecognizer(&stubSource{}, nil)

	summary, err := r.Summary(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, summary.RecurringTasks)
	assert.Empty(t, summary.Habits)
	assert.Empty(t, summary.Workflows)
	assert.Empty(t, summary.Projects)
	assert.Equal(t, SummaryTotals{}, summary.Totals)
	assert.Equal(t, -1, summary.TimePatterns.MostActiveHour)
}

func TestSummaryHonorsMinFrequency(t *testing.T) {
	source := &stubSource{activities: []*activity.Record{
		deployRecord(21, 10),
		deployRecord(14, 10),
		deployRecord(7, 10),
		deployRecord(0, 10),
	}}
	r := NewRecognizer(source, nil,
		WithRecognizerClock(func() time.Time { return testNow }),
		WithMinFrequency(5))

	assert.Equal(t, 5, r.MinFrequency())
	summary, err := r.Summary(context.Background(), "norman")
	require.NoError(t, err)
	assert.Empty(t, summary.RecurringTasks)
	assert.Empty(t, summary.Habits)
}

func TestWithMinFrequencyIgnoresNonPositive(t *testing.T) {
	r := NewRecognizer(&stubSource{}, nil, WithMinFrequency(0))
	assert.Equal(t, DefaultMinFrequency, r.MinFrequency())
}
