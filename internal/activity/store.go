package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Store persists tracker state. Save rewrites the full snapshot on every
// call: throughput is O(total records) per write, which is acceptable for a
// periodic-batch workload and a known scaling limit for high-frequency
// logging.
type Store interface {
	// Load returns the persisted snapshot, or an empty snapshot when nothing
	// has been persisted yet.
	Load(ctx context.Context) (*Snapshot, error)

	// Save persists the snapshot wholesale.
	Save(ctx context.Context, snap *Snapshot) error
}

// MemoryStore keeps the snapshot in memory. Used as a test fixture and for
// callers that manage persistence themselves.
type MemoryStore struct {
	mu   sync.Mutex
	snap *Snapshot
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return &Snapshot{SchemaVersion: SchemaVersion}, nil
	}
	return s.snap, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	return nil
}

// JSONStore persists the snapshot as two JSON documents under a directory:
// activity_log.json and sessions.json. Each document carries a schema
// version.
type JSONStore struct {
	dir string
}

// NewJSONStore creates a JSONStore rooted at dir, creating it if needed.
func NewJSONStore(dir string) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create activity storage dir: %w", err)
	}
	return &JSONStore{dir: dir}, nil
}

type activityDocument struct {
	SchemaVersion int       `json:"schema_version"`
	Activities    []*Record `json:"activities"`
}

type sessionDocument struct {
	SchemaVersion int        `json:"schema_version"`
	Sessions      []*Session `json:"sessions"`
}

func (s *JSONStore) activityPath() string { return filepath.Join(s.dir, "activity_log.json") }
func (s *JSONStore) sessionPath() string  { return filepath.Join(s.dir, "sessions.json") }

// Load implements Store.
func (s *JSONStore) Load(_ context.Context) (*Snapshot, error) {
	snap := &Snapshot{SchemaVersion: SchemaVersion}

	var actDoc activityDocument
	if err := readJSON(s.activityPath(), &actDoc); err != nil {
		return nil, fmt.Errorf("load activity log: %w", err)
	}
	if actDoc.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("activity log schema version %d is newer than supported %d", actDoc.SchemaVersion, SchemaVersion)
	}
	snap.Activities = actDoc.Activities

	var sesDoc sessionDocument
	if err := readJSON(s.sessionPath(), &sesDoc); err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	if sesDoc.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("session schema version %d is newer than supported %d", sesDoc.SchemaVersion, SchemaVersion)
	}
	snap.Sessions = sesDoc.Sessions

	log.Debug().
		Int("activities", len(snap.Activities)).
		Int("sessions", len(snap.Sessions)).
		Msg("loaded activity snapshot")
	return snap, nil
}

// Save implements Store.
func (s *JSONStore) Save(_ context.Context, snap *Snapshot) error {
	actDoc := activityDocument{SchemaVersion: SchemaVersion, Activities: snap.Activities}
	if err := writeJSON(s.activityPath(), actDoc); err != nil {
		return fmt.Errorf("save activity log: %w", err)
	}

	sesDoc := sessionDocument{SchemaVersion: SchemaVersion, Sessions: snap.Sessions}
	if err := writeJSON(s.sessionPath(), sesDoc); err != nil {
		return fmt.Errorf("save sessions: %w", err)
	}

	log.Debug().
		Int("activities", len(snap.Activities)).
		Int("sessions", len(snap.Sessions)).
		Msg("persisted activity snapshot")
	return nil
}

// readJSON decodes path into v. A missing file leaves v untouched.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// writeJSON writes v to path via a temp file and rename so a crashed write
// never leaves a truncated document behind.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
