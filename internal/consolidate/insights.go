package consolidate

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/normanking/cadence/internal/patterns"
)

// strongPreferenceThreshold filters which preferences count as strong.
const strongPreferenceThreshold = 0.7

// Insights is a human-oriented reading of a stored profile.
type Insights struct {
	Productivity ProductivityInsights `json:"productivity_insights"`
	Preferences  PreferenceInsights   `json:"preference_insights"`
	Goals        GoalInsights         `json:"goal_progress"`
	Skills       SkillInsights        `json:"skill_development"`
}

// ProductivityInsights summarizes working rhythm.
type ProductivityInsights struct {
	MostConsistentHabit     *patterns.HabitPattern `json:"most_consistent_habit,omitempty"`
	PreferredWorkingTime    patterns.TimeOfDay     `json:"preferred_working_time,omitempty"`
	MostFrequentTask        *patterns.TaskPattern  `json:"most_frequent_task,omitempty"`
	AverageTaskIntervalDays float64                `json:"average_task_interval,omitempty"`
}

// PreferenceInsights lists preferences above the confidence threshold.
type PreferenceInsights struct {
	StrongPreferences  map[string][]PreferenceValue `json:"strong_preferences"`
	ProjectPreferences []string                     `json:"project_preferences,omitempty"`
}

// GoalInsights summarizes tracked goals.
type GoalInsights struct {
	TrackedGoals      int     `json:"tracked_goals"`
	AverageConfidence float64 `json:"average_goal_confidence"`
}

// SkillScore pairs a skill with its confidence.
type SkillScore struct {
	Skill      string  `json:"skill"`
	Confidence float64 `json:"confidence"`
}

// SkillInsights summarizes tracked skills.
type SkillInsights struct {
	TrackedSkills     int          `json:"tracked_skills"`
	AverageConfidence float64      `json:"average_skill_confidence"`
	TopSkills         []SkillScore `json:"top_skills,omitempty"`
}

// Insights derives long-term insights from the user's stored profile. It is
// a pure function of the profile; nil is returned when no profile exists.
func (c *Consolidator) Insights(userID string) *Insights {
	profile := c.Profile(userID)
	if profile == nil {
		log.Warn().Str("user_id", userID).Msg("no profile for insights")
		return nil
	}

	return &Insights{
		Productivity: productivityInsights(profile),
		Preferences:  preferenceInsights(profile),
		Goals:        goalInsights(profile),
		Skills:       skillInsights(profile),
	}
}

func productivityInsights(profile *UserProfile) ProductivityInsights {
	var out ProductivityInsights

	if len(profile.Habits) > 0 {
		var best *patterns.HabitPattern
		timePrefs := make(map[patterns.TimeOfDay]int)
		for name := range profile.Habits {
			h := profile.Habits[name]
			if best == nil || h.Confidence > best.Confidence ||
				(h.Confidence == best.Confidence && h.HabitName < best.HabitName) {
				habit := h
				best = &habit
			}
			timePrefs[h.TimeOfDay]++
		}
		out.MostConsistentHabit = best

		bestCount := -1
		for _, part := range []patterns.TimeOfDay{patterns.Morning, patterns.Afternoon, patterns.Evening, patterns.Night} {
			if timePrefs[part] > bestCount {
				out.PreferredWorkingTime = part
				bestCount = timePrefs[part]
			}
		}
	}

	if len(profile.RecurringTasks) > 0 {
		var best *patterns.TaskPattern
		var intervals []float64
		for name := range profile.RecurringTasks {
			t := profile.RecurringTasks[name]
			if best == nil || t.Frequency > best.Frequency ||
				(t.Frequency == best.Frequency && t.TaskName < best.TaskName) {
				task := t
				best = &task
			}
			if t.AvgIntervalDays > 0 {
				intervals = append(intervals, t.AvgIntervalDays)
			}
		}
		out.MostFrequentTask = best
		if len(intervals) > 0 {
			var sum float64
			for _, v := range intervals {
				sum += v
			}
			out.AverageTaskIntervalDays = sum / float64(len(intervals))
		}
	}

	return out
}

func preferenceInsights(profile *UserProfile) PreferenceInsights {
	out := PreferenceInsights{StrongPreferences: make(map[string][]PreferenceValue)}

	for prefType, values := range profile.Preferences {
		var strong []PreferenceValue
		for _, v := range values {
			if v.Confidence > strongPreferenceThreshold {
				strong = append(strong, v)
			}
		}
		if len(strong) > 0 {
			out.StrongPreferences[prefType] = strong
		}
	}

	if len(profile.ProjectContexts) > 0 {
		ids := make([]string, 0, len(profile.ProjectContexts))
		for id := range profile.ProjectContexts {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		out.ProjectPreferences = ids
	}

	return out
}

func goalInsights(profile *UserProfile) GoalInsights {
	out := GoalInsights{TrackedGoals: len(profile.Goals)}
	if len(profile.Goals) == 0 {
		return out
	}
	var sum float64
	for _, confidence := range profile.Goals {
		sum += confidence
	}
	out.AverageConfidence = sum / float64(len(profile.Goals))
	return out
}

func skillInsights(profile *UserProfile) SkillInsights {
	out := SkillInsights{TrackedSkills: len(profile.Skills)}
	if len(profile.Skills) == 0 {
		return out
	}

	var sum float64
	scores := make([]SkillScore, 0, len(profile.Skills))
	for skill, confidence := range profile.Skills {
		sum += confidence
		scores = append(scores, SkillScore{Skill: skill, Confidence: confidence})
	}
	out.AverageConfidence = sum / float64(len(profile.Skills))

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Confidence != scores[j].Confidence {
			return scores[i].Confidence > scores[j].Confidence
		}
		return scores[i].Skill < scores[j].Skill
	})
	if len(scores) > 5 {
		scores = scores[:5]
	}
	out.TopSkills = scores
	return out
}
