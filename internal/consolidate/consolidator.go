package consolidate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/normanking/cadence/internal/activity"
	"github.com/normanking/cadence/internal/knowledge"
	"github.com/normanking/cadence/internal/patterns"
)

// Config tunes the consolidator.
type Config struct {
	// Interval between periodic consolidation runs. Default: 24h
	Interval time.Duration `json:"interval"`

	// RetentionDays is how long raw activity and interaction records are
	// kept before they become eligible for pruning. Default: 365
	RetentionDays int `json:"retention_days"`

	// SummaryRetentionDays is the longer horizon for session history.
	// Default: 730
	SummaryRetentionDays int `json:"summary_retention_days"`

	// StopTimeout bounds how long Stop waits for the worker. Default: 5s
	StopTimeout time.Duration `json:"stop_timeout"`

	// ErrorBackoff is the fixed sleep after a failed loop iteration.
	// Default: 5m
	ErrorBackoff time.Duration `json:"error_backoff"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:             24 * time.Hour,
		RetentionDays:        365,
		SummaryRetentionDays: 730,
		StopTimeout:          5 * time.Second,
		ErrorBackoff:         5 * time.Minute,
	}
}

// ActivityLog is the slice of the activity tracker the consolidator needs:
// user discovery and the retention hooks.
type ActivityLog interface {
	UserIDs() []string
	PruneActivities(ctx context.Context, cutoff time.Time, keep func(*activity.Record) bool) (int, error)
	PruneSessions(ctx context.Context, cutoff time.Time) (int, error)
}

// Consolidator merges pattern summaries with semantic and episodic knowledge
// into per-user profiles, persists them, and manages retention.
type Consolidator struct {
	cfg        Config
	recognizer *patterns.Recognizer
	semantic   knowledge.SemanticStore
	episodic   knowledge.EpisodicStore
	activities ActivityLog
	store      ProfileStore
	now        func() time.Time

	mu       sync.Mutex
	profiles map[string]*UserProfile

	svcMu   sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// ConsolidatorOption configures a Consolidator.
type ConsolidatorOption func(*Consolidator)

// WithConsolidatorClock overrides the clock. Used by tests.
func WithConsolidatorClock(now func() time.Time) ConsolidatorOption {
	return func(c *Consolidator) { c.now = now }
}

// NewConsolidator creates a Consolidator and loads any previously persisted
// profiles.
func NewConsolidator(
	cfg Config,
	recognizer *patterns.Recognizer,
	semantic knowledge.SemanticStore,
	episodic knowledge.EpisodicStore,
	activities ActivityLog,
	store ProfileStore,
	opts ...ConsolidatorOption,
) (*Consolidator, error) {
	c := &Consolidator{
		cfg:        cfg,
		recognizer: recognizer,
		semantic:   semantic,
		episodic:   episodic,
		activities: activities,
		store:      store,
		now:        func() time.Time { return time.Now().UTC() },
		profiles:   make(map[string]*UserProfile),
	}
	for _, opt := range opts {
		opt(c)
	}

	loaded, err := store.Load(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	for _, p := range loaded {
		c.profiles[p.UserID] = p
	}
	log.Info().Int("profiles", len(c.profiles)).Msg("consolidator loaded profiles")
	return c, nil
}

// ConsolidateUser rebuilds the user's long-term profile from the current
// pattern summary and the knowledge collaborators, then persists the full
// profile set.
func (c *Consolidator) ConsolidateUser(ctx context.Context, userID string) (*UserProfile, error) {
	now := c.now()

	summary, err := c.recognizer.Summary(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("pattern summary for %s: %w", userID, err)
	}

	prefs, err := c.semantic.UserPreferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("preferences for %s: %w", userID, err)
	}
	prefsByType := make(map[string][]PreferenceValue)
	for _, p := range prefs {
		prefsByType[p.PreferenceType] = append(prefsByType[p.PreferenceType], PreferenceValue{
			Value:      p.PreferenceValue,
			Confidence: p.Confidence,
		})
	}

	learned, err := c.semantic.LearnedKnowledge(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("learned knowledge for %s: %w", userID, err)
	}
	skills := make(map[string]float64)
	goals := make(map[string]float64)
	for _, item := range learned {
		switch item.KnowledgeType {
		case "skill":
			skills[item.KnowledgeContent] = item.Confidence
		case "goal":
			goals[item.KnowledgeContent] = item.Confidence
		}
	}

	projects, err := c.semantic.Projects(ctx)
	if err != nil {
		return nil, fmt.Errorf("projects: %w", err)
	}
	projectContexts := make(map[string]ProjectSummary)
	for _, proj := range projects {
		for _, collaborator := range proj.Collaborators {
			if collaborator == userID {
				projectContexts[proj.ProjectID] = ProjectSummary{
					Name:         proj.ProjectName,
					Type:         proj.ProjectType,
					LastAccessed: proj.LastAccessed,
				}
				break
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	profile, ok := c.profiles[userID]
	if !ok {
		profile = &UserProfile{UserID: userID, CreatedAt: now}
		c.profiles[userID] = profile
	}
	profile.LastConsolidated = now
	profile.Preferences = prefsByType
	profile.Habits = make(map[string]patterns.HabitPattern, len(summary.Habits))
	for _, h := range summary.Habits {
		profile.Habits[h.HabitName] = h
	}
	profile.RecurringTasks = make(map[string]patterns.TaskPattern, len(summary.RecurringTasks))
	for _, t := range summary.RecurringTasks {
		profile.RecurringTasks[t.TaskName] = t
	}
	profile.ProjectContexts = projectContexts
	profile.Skills = skills
	profile.Goals = goals
	if profile.Metadata == nil {
		profile.Metadata = make(map[string]any)
	}
	profile.Metadata["last_consolidation_run"] = now.Format(time.RFC3339)
	profile.Metadata["consolidation_source"] = "memory_consolidator"

	if err := c.saveLocked(ctx); err != nil {
		return profile, err
	}

	log.Info().Str("user_id", userID).Msg("profile consolidated")
	return profile, nil
}

// ConsolidateAll consolidates every user observed across the activity log,
// the episodic store, and the semantic store. One user's failure is logged
// and does not abort the batch.
func (c *Consolidator) ConsolidateAll(ctx context.Context) map[string]*UserProfile {
	userIDs := make(map[string]struct{})
	for _, id := range c.activities.UserIDs() {
		userIDs[id] = struct{}{}
	}
	if ids, err := c.episodic.UserIDs(ctx); err != nil {
		log.Warn().Err(err).Msg("episodic user discovery failed")
	} else {
		for _, id := range ids {
			userIDs[id] = struct{}{}
		}
	}
	if ids, err := c.semantic.UserIDs(ctx); err != nil {
		log.Warn().Err(err).Msg("semantic user discovery failed")
	} else {
		for _, id := range ids {
			userIDs[id] = struct{}{}
		}
	}

	ordered := make([]string, 0, len(userIDs))
	for id := range userIDs {
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)

	consolidated := make(map[string]*UserProfile)
	for _, id := range ordered {
		profile, err := c.ConsolidateUser(ctx, id)
		if err != nil {
			log.Error().Err(err).Str("user_id", id).Msg("user consolidation failed")
			continue
		}
		consolidated[id] = profile
	}

	log.Info().Int("users", len(consolidated)).Msg("consolidation batch complete")
	return consolidated
}

// Profile returns the consolidated profile for a user, or nil when none
// exists.
func (c *Consolidator) Profile(userID string) *UserProfile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profiles[userID]
}

// Profiles returns a copy of the profile map.
func (c *Consolidator) Profiles() map[string]*UserProfile {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*UserProfile, len(c.profiles))
	for id, p := range c.profiles {
		out[id] = p
	}
	return out
}

// CleanupOldMemories prunes raw history older than the retention cutoffs,
// except records whose type backs a currently recognized pattern or a stored
// profile's recurring tasks. Returns the number of pruned activity and
// interaction records.
func (c *Consolidator) CleanupOldMemories(ctx context.Context) (int, error) {
	now := c.now()
	cutoff := now.AddDate(0, 0, -c.cfg.RetentionDays)
	summaryCutoff := now.AddDate(0, 0, -c.cfg.SummaryRetentionDays)

	keepList := c.buildKeepList(ctx)

	prunedInteractions, err := c.episodic.PruneInteractions(ctx, cutoff, func(i knowledge.Interaction) bool {
		if _, ok := keepList[i.GoalType]; ok && i.GoalType != "" {
			return true
		}
		if _, ok := keepList[i.ProjectContext]; ok && i.ProjectContext != "" {
			return true
		}
		return false
	})
	if err != nil {
		return 0, fmt.Errorf("prune interactions: %w", err)
	}

	prunedActivities, err := c.activities.PruneActivities(ctx, cutoff, func(rec *activity.Record) bool {
		_, ok := keepList[rec.ActivityType]
		return ok
	})
	if err != nil {
		return prunedInteractions, fmt.Errorf("prune activities: %w", err)
	}

	prunedSessions, err := c.activities.PruneSessions(ctx, summaryCutoff)
	if err != nil {
		return prunedInteractions + prunedActivities, fmt.Errorf("prune sessions: %w", err)
	}

	total := prunedInteractions + prunedActivities
	log.Info().
		Int("interactions", prunedInteractions).
		Int("activities", prunedActivities).
		Int("sessions", prunedSessions).
		Msg("retention cleanup complete")
	return total, nil
}

// buildKeepList assembles the set of load-bearing names: activity types of
// currently recognized recurring tasks and workflow steps, plus every stored
// profile's recurring task keys. History backing these is never pruned.
func (c *Consolidator) buildKeepList(ctx context.Context) map[string]struct{} {
	keep := make(map[string]struct{})

	minFreq := c.recognizer.MinFrequency()
	for _, id := range c.activities.UserIDs() {
		tasks, err := c.recognizer.DetectRecurringTasks(ctx, id, minFreq)
		if err != nil {
			log.Warn().Err(err).Str("user_id", id).Msg("recurring detection failed during cleanup")
		}
		for _, t := range tasks {
			keep[t.TaskName] = struct{}{}
		}
		workflows, err := c.recognizer.DetectWorkflows(ctx, id, minFreq)
		if err != nil {
			log.Warn().Err(err).Str("user_id", id).Msg("workflow detection failed during cleanup")
		}
		for _, wf := range workflows {
			for _, typ := range wf.Activities {
				keep[typ] = struct{}{}
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, profile := range c.profiles {
		for name := range profile.RecurringTasks {
			keep[name] = struct{}{}
		}
	}
	return keep
}

// saveLocked persists the full profile set. Callers must hold c.mu.
func (c *Consolidator) saveLocked(ctx context.Context) error {
	all := make([]*UserProfile, 0, len(c.profiles))
	for _, p := range c.profiles {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UserID < all[j].UserID })

	if err := c.store.Save(ctx, all); err != nil {
		log.Error().Err(err).Msg("profile persist failed, in-memory profiles remain authoritative")
		return fmt.Errorf("persist profiles: %w", err)
	}
	return nil
}
