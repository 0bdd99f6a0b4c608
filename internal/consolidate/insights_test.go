package consolidate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cadence/internal/patterns"
)

func storedProfileConsolidator(t *testing.T, profile *UserProfile) *Consolidator {
	t.Helper()
	fx := setupFixture(t)
	require.NoError(t, fx.profiles.Save(context.Background(), []*UserProfile{profile}))
	return setupConsolidator(t, fx.semantic, fx)
}

func TestInsights(t *testing.T) {
	c := storedProfileConsolidator(t, &UserProfile{
		UserID:    "norman",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Habits: map[string]patterns.HabitPattern{
			"deploy": {HabitName: "deploy", Confidence: 0.9, TimeOfDay: patterns.Morning, Frequency: 8},
			"review": {HabitName: "review", Confidence: 0.5, TimeOfDay: patterns.Evening, Frequency: 3},
		},
		RecurringTasks: map[string]patterns.TaskPattern{
			"deploy": {TaskName: "deploy", Frequency: 10, AvgIntervalDays: 7},
			"review": {TaskName: "review", Frequency: 4, AvgIntervalDays: 14},
		},
		Preferences: map[string][]PreferenceValue{
			"activity_type": {
				{Value: "deploy", Confidence: 0.8},
				{Value: "browse", Confidence: 0.3},
			},
		},
		ProjectContexts: map[string]ProjectSummary{
			"web": {Name: "Web"},
			"api": {Name: "API"},
		},
		Goals:  map[string]float64{"ship v2": 0.6, "learn rust": 0.8},
		Skills: map[string]float64{"golang": 0.9, "sql": 0.5},
	})

	insights := c.Insights("norman")
	require.NotNil(t, insights)

	require.NotNil(t, insights.Productivity.MostConsistentHabit)
	assert.Equal(t, "deploy", insights.Productivity.MostConsistentHabit.HabitName)
	require.NotNil(t, insights.Productivity.MostFrequentTask)
	assert.Equal(t, "deploy", insights.Productivity.MostFrequentTask.TaskName)
	assert.InDelta(t, 10.5, insights.Productivity.AverageTaskIntervalDays, 1e-9)
	// one morning habit, one evening habit: ties resolve to the earlier part
	assert.Equal(t, patterns.Morning, insights.Productivity.PreferredWorkingTime)

	strong := insights.Preferences.StrongPreferences["activity_type"]
	require.Len(t, strong, 1)
	assert.Equal(t, "deploy", strong[0].Value)
	assert.Equal(t, []string{"api", "web"}, insights.Preferences.ProjectPreferences)

	assert.Equal(t, 2, insights.Goals.TrackedGoals)
	assert.InDelta(t, 0.7, insights.Goals.AverageConfidence, 1e-9)

	assert.Equal(t, 2, insights.Skills.TrackedSkills)
	assert.InDelta(t, 0.7, insights.Skills.AverageConfidence, 1e-9)
	require.Len(t, insights.Skills.TopSkills, 2)
	assert.Equal(t, "golang", insights.Skills.TopSkills[0].Skill)
}

func TestInsightsNoProfile(t *testing.T) {
	fx := setupFixture(t)
	c := setupConsolidator(t, fx.semantic, fx)
	assert.Nil(t, c.Insights("nobody"))
}

func TestInsightsEmptyProfile(t *testing.T) {
	c := storedProfileConsolidator(t, &UserProfile{UserID: "norman"})

	insights := c.Insights("norman")
	require.NotNil(t, insights)
	assert.Nil(t, insights.Productivity.MostConsistentHabit)
	assert.Nil(t, insights.Productivity.MostFrequentTask)
	assert.Zero(t, insights.Goals.TrackedGoals)
	assert.Empty(t, insights.Skills.TopSkills)
	assert.NotNil(t, insights.Preferences.StrongPreferences)
}
