package knowledge

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemorySemanticStore is an in-memory SemanticStore. It doubles as a
// PreferenceSink so the activity tracker can feed it directly.
type MemorySemanticStore struct {
	mu          sync.RWMutex
	preferences map[string][]Preference
	knowledge   map[string][]KnowledgeItem
	projects    map[string]Project
}

// NewMemorySemanticStore creates an empty in-memory semantic store.
func NewMemorySemanticStore() *MemorySemanticStore {
	return &MemorySemanticStore{
		preferences: make(map[string][]Preference),
		knowledge:   make(map[string][]KnowledgeItem),
		projects:    make(map[string]Project),
	}
}

// AddPreference stores a preference.
func (s *MemorySemanticStore) AddPreference(pref Preference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preferences[pref.UserID] = append(s.preferences[pref.UserID], pref)
}

// AddKnowledge stores a learned knowledge item.
func (s *MemorySemanticStore) AddKnowledge(item KnowledgeItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.knowledge[item.UserID] = append(s.knowledge[item.UserID], item)
}

// AddProject registers a project.
func (s *MemorySemanticStore) AddProject(project Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[project.ProjectID] = project
}

// ObservePreference implements PreferenceSink.
func (s *MemorySemanticStore) ObservePreference(_ context.Context, pref Preference) error {
	s.AddPreference(pref)
	return nil
}

// UserPreferences implements SemanticStore.
func (s *MemorySemanticStore) UserPreferences(_ context.Context, userID string) ([]Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Preference, len(s.preferences[userID]))
	copy(out, s.preferences[userID])
	return out, nil
}

// LearnedKnowledge implements SemanticStore.
func (s *MemorySemanticStore) LearnedKnowledge(_ context.Context, userID string) ([]KnowledgeItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]KnowledgeItem, len(s.knowledge[userID]))
	copy(out, s.knowledge[userID])
	return out, nil
}

// Projects implements SemanticStore.
func (s *MemorySemanticStore) Projects(_ context.Context) ([]Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProjectID < out[j].ProjectID })
	return out, nil
}

// UserIDs implements SemanticStore.
func (s *MemorySemanticStore) UserIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.preferences))
	for id := range s.preferences {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// MemoryEpisodicStore is an in-memory EpisodicStore.
type MemoryEpisodicStore struct {
	mu           sync.RWMutex
	interactions []Interaction

	// Now overrides the clock used for lookback windows. Nil means time.Now.
	Now func() time.Time
}

// NewMemoryEpisodicStore creates an empty in-memory episodic store.
func NewMemoryEpisodicStore() *MemoryEpisodicStore {
	return &MemoryEpisodicStore{}
}

// AddInteraction stores an interaction.
func (s *MemoryEpisodicStore) AddInteraction(i Interaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactions = append(s.interactions, i)
}

// UserInteractions implements EpisodicStore.
func (s *MemoryEpisodicStore) UserInteractions(_ context.Context, userID string, daysBack int) ([]Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	cutoff := now().UTC().AddDate(0, 0, -daysBack)
	var out []Interaction
	for _, i := range s.interactions {
		if i.UserID == userID && !i.Timestamp.Before(cutoff) {
			out = append(out, i)
		}
	}
	return out, nil
}

// PruneInteractions implements EpisodicStore.
func (s *MemoryEpisodicStore) PruneInteractions(_ context.Context, cutoff time.Time, keep func(Interaction) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.interactions[:0]
	pruned := 0
	for _, i := range s.interactions {
		if i.Timestamp.Before(cutoff) && (keep == nil || !keep(i)) {
			pruned++
			continue
		}
		kept = append(kept, i)
	}
	s.interactions = kept
	return pruned, nil
}

// UserIDs implements EpisodicStore.
func (s *MemoryEpisodicStore) UserIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var ids []string
	for _, i := range s.interactions {
		if _, ok := seen[i.UserID]; ok {
			continue
		}
		seen[i.UserID] = struct{}{}
		ids = append(ids, i.UserID)
	}
	sort.Strings(ids)
	return ids, nil
}
