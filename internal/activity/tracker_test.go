package activity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cadence/internal/knowledge"
)

var baseTime = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

// testClock is a settable clock for tracker tests.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func (c *testClock) AdvanceDays(days int) { c.now = c.now.AddDate(0, 0, days) }

func setupTracker(t *testing.T, opts ...TrackerOption) (*Tracker, *testClock) {
	t.Helper()
	clock := &testClock{now: baseTime}
	opts = append(opts, WithClock(clock.Now))
	tracker, err := NewTracker(context.Background(), NewMemoryStore(), opts...)
	require.NoError(t, err)
	return tracker, clock
}

func TestLogActivityDefaults(t *testing.T) {
	tracker, _ := setupTracker(t)

	rec, err := tracker.LogActivity(context.Background(), "norman", "deploy", "shipped v2")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rec.ActivityID, "act_"))
	assert.Equal(t, "norman", rec.UserID)
	assert.Equal(t, "deploy", rec.ActivityType)
	assert.True(t, rec.Success)
	assert.Equal(t, baseTime, rec.Timestamp)
	assert.Zero(t, rec.Duration)
}

func TestLogActivityOptions(t *testing.T) {
	tracker, _ := setupTracker(t)

	rec, err := tracker.LogActivity(context.Background(), "norman", "test_run", "unit tests",
		WithDuration(42.5),
		WithSuccess(false),
		WithContext(map[string]string{"project_context": "api"}),
		WithMetadata(map[string]any{"exit_code": 1}),
	)
	require.NoError(t, err)
	assert.Equal(t, 42.5, rec.Duration)
	assert.False(t, rec.Success)
	assert.Equal(t, "api", rec.Context["project_context"])
	assert.Equal(t, 1, rec.Metadata["exit_code"])
}

func TestSessionLifecycle(t *testing.T) {
	tracker, clock := setupTracker(t)
	ctx := context.Background()

	ses, err := tracker.StartSession(ctx, "norman", "ship release", "api")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ses.SessionID, "ses_"))
	assert.True(t, ses.Open())
	assert.Same(t, ses, tracker.ActiveSession("norman"))

	_, err = tracker.LogActivity(ctx, "norman", "edit", "fix config")
	require.NoError(t, err)
	_, err = tracker.LogActivity(ctx, "norman", "deploy", "ship it")
	require.NoError(t, err)
	assert.Len(t, tracker.SessionActivities(ses.SessionID), 2)

	clock.Advance(90 * time.Minute)
	ended, err := tracker.EndSession(ctx, "norman")
	require.NoError(t, err)
	require.NotNil(t, ended)
	assert.Equal(t, ses.SessionID, ended.SessionID)
	assert.False(t, ended.Open())
	assert.Equal(t, 90*time.Minute, ended.Duration())
	assert.Nil(t, tracker.ActiveSession("norman"))
}

func TestEndSessionWithoutActive(t *testing.T) {
	tracker, _ := setupTracker(t)

	ses, err := tracker.EndSession(context.Background(), "norman")
	require.NoError(t, err)
	assert.Nil(t, ses)
}

func TestStartSessionAutoClosesPrior(t *testing.T) {
	tracker, clock := setupTracker(t)
	ctx := context.Background()

	first, err := tracker.StartSession(ctx, "norman", "morning work", "api")
	require.NoError(t, err)

	clock.Advance(time.Hour)
	second, err := tracker.StartSession(ctx, "norman", "afternoon work", "web")
	require.NoError(t, err)

	assert.False(t, first.Open())
	assert.Equal(t, clock.Now(), *first.EndTime)
	assert.Same(t, second, tracker.ActiveSession("norman"))
}

func TestActivityOutsideSessionNotAttached(t *testing.T) {
	tracker, _ := setupTracker(t)
	ctx := context.Background()

	_, err := tracker.LogActivity(ctx, "norman", "edit", "standalone edit")
	require.NoError(t, err)

	ses, err := tracker.StartSession(ctx, "norman", "work", "api")
	require.NoError(t, err)
	assert.Empty(t, tracker.SessionActivities(ses.SessionID))
}

func TestUserActivitiesWindow(t *testing.T) {
	tracker, clock := setupTracker(t)
	ctx := context.Background()

	_, err := tracker.LogActivity(ctx, "norman", "deploy", "old")
	require.NoError(t, err)
	clock.AdvanceDays(3)
	_, err = tracker.LogActivity(ctx, "norman", "deploy", "edge")
	require.NoError(t, err)
	clock.AdvanceDays(7)
	_, err = tracker.LogActivity(ctx, "norman", "deploy", "recent")
	require.NoError(t, err)

	// Window of 7 days: the record exactly at the cutoff instant is kept,
	// the older one is not.
	got := tracker.UserActivities("norman", 7)
	require.Len(t, got, 2)
	assert.Equal(t, "edge", got[0].Description)
	assert.Equal(t, "recent", got[1].Description)

	assert.Len(t, tracker.UserActivities("norman", 30), 3)
	assert.Empty(t, tracker.UserActivities("someone-else", 30))
}

func TestUserSessionsWindow(t *testing.T) {
	tracker, clock := setupTracker(t)
	ctx := context.Background()

	_, err := tracker.StartSession(ctx, "norman", "old", "api")
	require.NoError(t, err)
	clock.AdvanceDays(10)
	_, err = tracker.StartSession(ctx, "norman", "recent", "api")
	require.NoError(t, err)

	got := tracker.UserSessions("norman", 7)
	require.Len(t, got, 1)
	assert.Equal(t, "recent", got[0].Goal)
}

func TestUserIDs(t *testing.T) {
	tracker, _ := setupTracker(t)
	ctx := context.Background()

	_, err := tracker.LogActivity(ctx, "zoe", "edit", "x")
	require.NoError(t, err)
	_, err = tracker.StartSession(ctx, "alice", "work", "api")
	require.NoError(t, err)
	_, err = tracker.LogActivity(ctx, "alice", "edit", "y")
	require.NoError(t, err)

	assert.Equal(t, []string{"alice", "zoe"}, tracker.UserIDs())
}

func TestRecoverFromStore(t *testing.T) {
	store := NewMemoryStore()
	clock := &testClock{now: baseTime}
	ctx := context.Background()

	tracker, err := NewTracker(ctx, store, WithClock(clock.Now))
	require.NoError(t, err)
	ses, err := tracker.StartSession(ctx, "norman", "long task", "api")
	require.NoError(t, err)
	_, err = tracker.LogActivity(ctx, "norman", "edit", "before restart")
	require.NoError(t, err)

	// Simulated restart: a fresh tracker over the same store recovers the
	// log and re-attaches the open session.
	recovered, err := NewTracker(ctx, store, WithClock(clock.Now))
	require.NoError(t, err)
	assert.Len(t, recovered.UserActivities("norman", 30), 1)
	active := recovered.ActiveSession("norman")
	require.NotNil(t, active)
	assert.Equal(t, ses.SessionID, active.SessionID)
}

func TestPreferenceSinkObservation(t *testing.T) {
	semantic := knowledge.NewMemorySemanticStore()
	tracker, _ := setupTracker(t, WithPreferenceSink(semantic))

	_, err := tracker.LogActivity(context.Background(), "norman", "deploy", "ship it")
	require.NoError(t, err)

	prefs, err := semantic.UserPreferences(context.Background(), "norman")
	require.NoError(t, err)
	require.Len(t, prefs, 1)
	assert.Equal(t, "activity_type", prefs[0].PreferenceType)
	assert.Equal(t, "deploy", prefs[0].PreferenceValue)
	assert.Equal(t, 0.8, prefs[0].Confidence)
}

func TestPruneActivitiesKeepsProtectedTypes(t *testing.T) {
	tracker, clock := setupTracker(t)
	ctx := context.Background()

	_, err := tracker.LogActivity(ctx, "norman", "deploy", "old deploy")
	require.NoError(t, err)
	_, err = tracker.LogActivity(ctx, "norman", "browse", "old browsing")
	require.NoError(t, err)
	clock.AdvanceDays(400)
	_, err = tracker.LogActivity(ctx, "norman", "browse", "fresh browsing")
	require.NoError(t, err)

	cutoff := clock.Now().AddDate(0, 0, -365)
	pruned, err := tracker.PruneActivities(ctx, cutoff, func(rec *Record) bool {
		return rec.ActivityType == "deploy"
	})
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	remaining := tracker.UserActivities("norman", 10000)
	require.Len(t, remaining, 2)
	assert.Equal(t, "old deploy", remaining[0].Description)
	assert.Equal(t, "fresh browsing", remaining[1].Description)
}

func TestPruneActivitiesNoopSkipsPersist(t *testing.T) {
	tracker, clock := setupTracker(t)

	pruned, err := tracker.PruneActivities(context.Background(), clock.Now().AddDate(0, 0, -365), nil)
	require.NoError(t, err)
	assert.Zero(t, pruned)
}

func TestPruneSessions(t *testing.T) {
	tracker, clock := setupTracker(t)
	ctx := context.Background()

	old, err := tracker.StartSession(ctx, "norman", "ancient", "api")
	require.NoError(t, err)
	clock.AdvanceDays(800)

	pruned, err := tracker.PruneSessions(ctx, clock.Now().AddDate(0, 0, -730))
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)
	assert.Nil(t, tracker.SessionActivities(old.SessionID))
	assert.Nil(t, tracker.ActiveSession("norman"))
}

// failingStore loads fine but refuses writes once armed.
type failingStore struct {
	MemoryStore
	fail bool
}

func (s *failingStore) Save(ctx context.Context, snap *Snapshot) error {
	if s.fail {
		return errors.New("disk full")
	}
	return s.MemoryStore.Save(ctx, snap)
}

func TestPersistFailureKeepsMemoryAuthoritative(t *testing.T) {
	store := &failingStore{}
	clock := &testClock{now: baseTime}
	tracker, err := NewTracker(context.Background(), store, WithClock(clock.Now))
	require.NoError(t, err)

	store.fail = true
	rec, err := tracker.LogActivity(context.Background(), "norman", "deploy", "doomed write")
	require.Error(t, err)
	require.NotNil(t, rec)

	// The record is still served from memory.
	got := tracker.UserActivities("norman", 30)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ActivityID, got[0].ActivityID)
}
