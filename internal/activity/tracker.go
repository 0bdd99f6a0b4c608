package activity

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/normanking/cadence/internal/knowledge"
)

// Tracker is the activity log store and session tracker. All state lives in
// memory under a single lock; every mutation persists a wholesale snapshot
// through the configured Store. When persistence fails the in-memory state
// stays authoritative and the error is returned so callers can retry.
type Tracker struct {
	mu    sync.Mutex
	store Store
	sink  knowledge.PreferenceSink
	now   func() time.Time

	activities []*Record
	sessions   []*Session
	byID       map[string]*Session
	active     map[string]*Session // user_id -> open session
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithPreferenceSink wires a sink that receives an activity_type preference
// observation for every logged activity.
func WithPreferenceSink(sink knowledge.PreferenceSink) TrackerOption {
	return func(t *Tracker) { t.sink = sink }
}

// WithClock overrides the tracker clock. Used by tests.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a Tracker backed by store, recovering any previously
// persisted state. Open sessions are restored as active.
func NewTracker(ctx context.Context, store Store, opts ...TrackerOption) (*Tracker, error) {
	t := &Tracker{
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		byID:   make(map[string]*Session),
		active: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(t)
	}

	snap, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("recover tracker state: %w", err)
	}
	t.activities = snap.Activities
	t.sessions = snap.Sessions
	for _, ses := range t.sessions {
		t.byID[ses.SessionID] = ses
		if ses.Open() {
			if prev, ok := t.active[ses.UserID]; ok {
				log.Warn().
					Str("user_id", ses.UserID).
					Str("session_id", prev.SessionID).
					Msg("multiple open sessions recovered, keeping latest")
			}
			t.active[ses.UserID] = ses
		}
	}

	log.Info().
		Int("activities", len(t.activities)).
		Int("sessions", len(t.sessions)).
		Msg("activity tracker recovered")
	return t, nil
}

// StartSession opens a new session for the user. If the user already has an
// open session it is closed first; silently orphaning it would corrupt
// session-duration statistics.
func (t *Tracker) StartSession(ctx context.Context, userID, goal, projectContext string) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if prev, ok := t.active[userID]; ok {
		prev.Close(now)
		delete(t.active, userID)
		log.Warn().
			Str("user_id", userID).
			Str("session_id", prev.SessionID).
			Msg("auto-closed prior open session")
	}

	ses := &Session{
		SessionID:      "ses_" + uuid.New().String(),
		UserID:         userID,
		StartTime:      now,
		Goal:           goal,
		ProjectContext: projectContext,
	}
	t.sessions = append(t.sessions, ses)
	t.byID[ses.SessionID] = ses
	t.active[userID] = ses

	err := t.persistLocked(ctx)
	log.Info().Str("user_id", userID).Str("session_id", ses.SessionID).Msg("session started")
	return ses, err
}

// EndSession closes and returns the user's open session. Returns (nil, nil)
// when no session is open.
func (t *Tracker) EndSession(ctx context.Context, userID string) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ses, ok := t.active[userID]
	if !ok {
		log.Warn().Str("user_id", userID).Msg("no active session to end")
		return nil, nil
	}
	ses.Close(t.now())
	delete(t.active, userID)

	err := t.persistLocked(ctx)
	log.Info().Str("user_id", userID).Str("session_id", ses.SessionID).Msg("session ended")
	return ses, err
}

// LogOption customizes a logged activity.
type LogOption func(*Record)

// WithDuration sets the activity duration in seconds.
func WithDuration(seconds float64) LogOption {
	return func(r *Record) { r.Duration = seconds }
}

// WithSuccess marks whether the activity succeeded. The default is true.
func WithSuccess(ok bool) LogOption {
	return func(r *Record) { r.Success = ok }
}

// WithContext attaches context key/value pairs.
func WithContext(ctx map[string]string) LogOption {
	return func(r *Record) { r.Context = ctx }
}

// WithMetadata attaches free-form metadata.
func WithMetadata(md map[string]any) LogOption {
	return func(r *Record) { r.Metadata = md }
}

// LogActivity appends an activity to the log and, if the user has an open
// session, to that session. The log write happens before any derived
// computation, so a downstream failure never loses the raw record.
func (t *Tracker) LogActivity(ctx context.Context, userID, activityType, description string, opts ...LogOption) (*Record, error) {
	rec := &Record{
		ActivityID:   "act_" + uuid.New().String(),
		UserID:       userID,
		ActivityType: activityType,
		Description:  description,
		Timestamp:    t.now(),
		Success:      true,
	}
	for _, opt := range opts {
		opt(rec)
	}

	t.mu.Lock()
	t.activities = append(t.activities, rec)
	if ses, ok := t.active[userID]; ok {
		ses.Activities = append(ses.Activities, rec)
	}
	err := t.persistLocked(ctx)
	t.mu.Unlock()

	if t.sink != nil {
		pref := knowledge.Preference{
			UserID:          userID,
			PreferenceType:  "activity_type",
			PreferenceValue: activityType,
			Confidence:      0.8,
		}
		if sinkErr := t.sink.ObservePreference(ctx, pref); sinkErr != nil {
			log.Warn().Err(sinkErr).Str("user_id", userID).Msg("preference sink rejected observation")
		}
	}

	log.Debug().
		Str("user_id", userID).
		Str("activity_type", activityType).
		Str("activity_id", rec.ActivityID).
		Msg("activity logged")
	return rec, err
}

// UserActivities returns the user's activities within the lookback window,
// inclusive of the cutoff instant.
func (t *Tracker) UserActivities(userID string, daysBack int) []*Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().AddDate(0, 0, -daysBack)
	var out []*Record
	for _, rec := range t.activities {
		if rec.UserID == userID && !rec.Timestamp.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out
}

// UserSessions returns the user's sessions started within the lookback
// window.
func (t *Tracker) UserSessions(userID string, daysBack int) []*Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().AddDate(0, 0, -daysBack)
	var out []*Session
	for _, ses := range t.sessions {
		if ses.UserID == userID && !ses.StartTime.Before(cutoff) {
			out = append(out, ses)
		}
	}
	return out
}

// ActiveSession returns the user's open session, or nil.
func (t *Tracker) ActiveSession(userID string) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active[userID]
}

// SessionActivities returns the activities of a session, or nil for an
// unknown session id.
func (t *Tracker) SessionActivities(sessionID string) []*Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ses, ok := t.byID[sessionID]; ok {
		return ses.Activities
	}
	return nil
}

// UserIDs returns every user id present in the activity log or sessions.
func (t *Tracker) UserIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[string]struct{})
	for _, rec := range t.activities {
		seen[rec.UserID] = struct{}{}
	}
	for _, ses := range t.sessions {
		seen[ses.UserID] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PruneActivities removes activities older than cutoff for which keep returns
// false and reports how many were removed. Session-embedded copies of pruned
// records are left in place; sessions have their own retention horizon.
func (t *Tracker) PruneActivities(ctx context.Context, cutoff time.Time, keep func(*Record) bool) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.activities[:0]
	pruned := 0
	for _, rec := range t.activities {
		if rec.Timestamp.Before(cutoff) && (keep == nil || !keep(rec)) {
			pruned++
			continue
		}
		kept = append(kept, rec)
	}
	t.activities = kept

	if pruned == 0 {
		return 0, nil
	}
	return pruned, t.persistLocked(ctx)
}

// PruneSessions removes sessions started before cutoff and reports how many
// were removed.
func (t *Tracker) PruneSessions(ctx context.Context, cutoff time.Time) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.sessions[:0]
	pruned := 0
	for _, ses := range t.sessions {
		if ses.StartTime.Before(cutoff) {
			pruned++
			delete(t.byID, ses.SessionID)
			if t.active[ses.UserID] == ses {
				delete(t.active, ses.UserID)
			}
			continue
		}
		kept = append(kept, ses)
	}
	t.sessions = kept

	if pruned == 0 {
		return 0, nil
	}
	return pruned, t.persistLocked(ctx)
}

// persistLocked saves the current snapshot. Callers must hold t.mu.
func (t *Tracker) persistLocked(ctx context.Context) error {
	snap := &Snapshot{
		SchemaVersion: SchemaVersion,
		Activities:    t.activities,
		Sessions:      t.sessions,
	}
	if err := t.store.Save(ctx, snap); err != nil {
		log.Error().Err(err).Msg("activity snapshot persist failed, in-memory state remains authoritative")
		return fmt.Errorf("persist activity snapshot: %w", err)
	}
	return nil
}
