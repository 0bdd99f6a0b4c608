// Package knowledge defines the external memory collaborators consumed by the
// pattern-mining engine: the semantic store (preferences, learned knowledge,
// project registry) and the episodic store (raw user interactions). The engine
// only reads from these stores, except for the retention pass which prunes
// episodic interactions, and the preference sink fed by the activity tracker.
package knowledge

import (
	"context"
	"time"
)

// Preference is a typed user preference with a confidence score.
type Preference struct {
	UserID          string  `json:"user_id"`
	PreferenceType  string  `json:"preference_type"`
	PreferenceValue string  `json:"preference_value"`
	Confidence      float64 `json:"confidence"`
}

// KnowledgeItem is a unit of learned knowledge about a user. KnowledgeType
// distinguishes skills from goals during consolidation.
type KnowledgeItem struct {
	UserID           string  `json:"user_id"`
	KnowledgeType    string  `json:"knowledge_type"` // skill, goal, fact
	KnowledgeContent string  `json:"knowledge_content"`
	Confidence       float64 `json:"confidence"`
}

// Project describes a registered project and its collaborators.
type Project struct {
	ProjectID     string         `json:"project_id"`
	ProjectName   string         `json:"project_name"`
	ProjectType   string         `json:"project_type,omitempty"`
	Collaborators []string       `json:"collaborators,omitempty"`
	LastAccessed  time.Time      `json:"last_accessed"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Interaction is a single episodic interaction record.
type Interaction struct {
	InteractionID   string         `json:"interaction_id"`
	UserID          string         `json:"user_id"`
	InteractionType string         `json:"interaction_type"`
	Content         string         `json:"content,omitempty"`
	ProjectContext  string         `json:"project_context,omitempty"`
	GoalType        string         `json:"goal_type,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// SemanticStore is the read surface of the semantic memory collaborator.
type SemanticStore interface {
	// UserPreferences returns all stored preferences for a user.
	UserPreferences(ctx context.Context, userID string) ([]Preference, error)

	// LearnedKnowledge returns all learned knowledge items for a user.
	LearnedKnowledge(ctx context.Context, userID string) ([]KnowledgeItem, error)

	// Projects returns every registered project.
	Projects(ctx context.Context) ([]Project, error)

	// UserIDs returns every user id with at least one preference.
	UserIDs(ctx context.Context) ([]string, error)
}

// EpisodicStore is the surface of the episodic memory collaborator.
type EpisodicStore interface {
	// UserInteractions returns a user's interactions within the lookback window.
	UserInteractions(ctx context.Context, userID string, daysBack int) ([]Interaction, error)

	// PruneInteractions removes interactions older than cutoff for which keep
	// returns false, and reports how many were removed.
	PruneInteractions(ctx context.Context, cutoff time.Time, keep func(Interaction) bool) (int, error)

	// UserIDs returns every user id with at least one interaction.
	UserIDs(ctx context.Context) ([]string, error)
}

// PreferenceSink receives preference observations derived from logged
// activity. The activity tracker reports each logged activity type as a
// medium-confidence preference.
type PreferenceSink interface {
	ObservePreference(ctx context.Context, pref Preference) error
}
