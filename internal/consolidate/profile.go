// Package consolidate merges mined patterns and external knowledge into
// durable per-user profiles, runs the periodic consolidation service, derives
// long-term insights, and prunes raw history that no live pattern depends on.
package consolidate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/normanking/cadence/internal/patterns"
)

// SchemaVersion is written into the persisted profile document. Loaders
// accept version 0 (documents written before versioning was added).
const SchemaVersion = 1

// PreferenceValue is one observed preference value with its confidence.
type PreferenceValue struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// ProjectSummary is the per-project slice of a consolidated profile.
type ProjectSummary struct {
	Name         string    `json:"name"`
	Type         string    `json:"type,omitempty"`
	LastAccessed time.Time `json:"last_accessed"`
}

// UserProfile is the consolidated long-term profile for one user. It is the
// only entity in the engine with independent lifecycle state: CreatedAt is
// set on first consolidation and the rest is overwritten in place on every
// subsequent run.
type UserProfile struct {
	UserID           string                           `json:"user_id"`
	CreatedAt        time.Time                        `json:"created_at"`
	LastConsolidated time.Time                        `json:"last_consolidated"`
	Preferences      map[string][]PreferenceValue     `json:"preferences"`
	Habits           map[string]patterns.HabitPattern `json:"habits"`
	RecurringTasks   map[string]patterns.TaskPattern  `json:"recurring_tasks"`
	ProjectContexts  map[string]ProjectSummary        `json:"project_contexts"`
	Skills           map[string]float64               `json:"skills"`
	Goals            map[string]float64               `json:"goals"`
	Metadata         map[string]any                   `json:"metadata"`
}

// ProfileStore persists the full profile set wholesale.
type ProfileStore interface {
	Load(ctx context.Context) ([]*UserProfile, error)
	Save(ctx context.Context, profiles []*UserProfile) error
}

// MemoryProfileStore keeps profiles in memory. Used as a test fixture.
type MemoryProfileStore struct {
	profiles []*UserProfile
}

// NewMemoryProfileStore creates an empty MemoryProfileStore.
func NewMemoryProfileStore() *MemoryProfileStore { return &MemoryProfileStore{} }

// Load implements ProfileStore.
func (s *MemoryProfileStore) Load(_ context.Context) ([]*UserProfile, error) {
	return s.profiles, nil
}

// Save implements ProfileStore.
func (s *MemoryProfileStore) Save(_ context.Context, profiles []*UserProfile) error {
	s.profiles = profiles
	return nil
}

// JSONProfileStore persists profiles as a single JSON document.
type JSONProfileStore struct {
	path string
}

// NewJSONProfileStore creates a store writing user_profiles.json under dir.
func NewJSONProfileStore(dir string) (*JSONProfileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create profile storage dir: %w", err)
	}
	return &JSONProfileStore{path: filepath.Join(dir, "user_profiles.json")}, nil
}

type profileDocument struct {
	SchemaVersion int            `json:"schema_version"`
	Profiles      []*UserProfile `json:"profiles"`
}

// Load implements ProfileStore.
func (s *JSONProfileStore) Load(_ context.Context) ([]*UserProfile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var doc profileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal profiles: %w", err)
	}
	if doc.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("profile schema version %d is newer than supported %d", doc.SchemaVersion, SchemaVersion)
	}
	return doc.Profiles, nil
}

// Save implements ProfileStore.
func (s *JSONProfileStore) Save(_ context.Context, profiles []*UserProfile) error {
	doc := profileDocument{SchemaVersion: SchemaVersion, Profiles: profiles}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal profiles: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("save profiles: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("save profiles: %w", err)
	}
	return nil
}
