package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// SQLiteStore persists tracker state in SQLite. Save replaces the full
// contents inside one transaction, matching the wholesale-rewrite contract of
// Store while keeping the on-disk format queryable.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore creates a SQLite-backed activity store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// InitSchema creates the activity tables if they don't exist.
func (s *SQLiteStore) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS activity_log (
			activity_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			activity_type TEXT NOT NULL,
			description TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			duration REAL DEFAULT 0,
			success INTEGER DEFAULT 1,
			context TEXT,  -- JSON object
			metadata TEXT, -- JSON object
			session_id TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_activity_log_user
			ON activity_log(user_id);
		CREATE INDEX IF NOT EXISTS idx_activity_log_timestamp
			ON activity_log(timestamp);

		CREATE TABLE IF NOT EXISTS activity_sessions (
			session_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			start_time DATETIME NOT NULL,
			end_time DATETIME,
			goal TEXT,
			project_context TEXT,
			metadata TEXT -- JSON object
		);
		CREATE INDEX IF NOT EXISTS idx_activity_sessions_user
			ON activity_sessions(user_id);
		CREATE INDEX IF NOT EXISTS idx_activity_sessions_start
			ON activity_sessions(start_time);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init activity schema: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{SchemaVersion: SchemaVersion}

	// Sessions first so activities can be attached by session_id.
	sessions := make(map[string]*Session)
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, user_id, start_time, end_time, goal, project_context, metadata
		FROM activity_sessions ORDER BY start_time
	`)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ses Session
		var endTime sql.NullTime
		var goal, project, metadata sql.NullString
		if err := rows.Scan(&ses.SessionID, &ses.UserID, &ses.StartTime, &endTime, &goal, &project, &metadata); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if endTime.Valid {
			t := endTime.Time
			ses.EndTime = &t
		}
		ses.Goal = goal.String
		ses.ProjectContext = project.String
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &ses.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal session metadata: %w", err)
			}
		}
		sessions[ses.SessionID] = &ses
		snap.Sessions = append(snap.Sessions, &ses)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	actRows, err := s.db.QueryContext(ctx, `
		SELECT activity_id, user_id, activity_type, description, timestamp,
		       duration, success, context, metadata, session_id
		FROM activity_log ORDER BY timestamp
	`)
	if err != nil {
		return nil, fmt.Errorf("load activities: %w", err)
	}
	defer actRows.Close()
	for actRows.Next() {
		var rec Record
		var contextJSON, metadataJSON, sessionID sql.NullString
		if err := actRows.Scan(&rec.ActivityID, &rec.UserID, &rec.ActivityType, &rec.Description,
			&rec.Timestamp, &rec.Duration, &rec.Success, &contextJSON, &metadataJSON, &sessionID); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if contextJSON.Valid && contextJSON.String != "" {
			if err := json.Unmarshal([]byte(contextJSON.String), &rec.Context); err != nil {
				return nil, fmt.Errorf("unmarshal activity context: %w", err)
			}
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &rec.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal activity metadata: %w", err)
			}
		}
		snap.Activities = append(snap.Activities, &rec)
		if sessionID.Valid {
			if ses, ok := sessions[sessionID.String]; ok {
				ses.Activities = append(ses.Activities, &rec)
			}
		}
	}
	if err := actRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}

	return snap, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM activity_log`); err != nil {
		return fmt.Errorf("clear activity log: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM activity_sessions`); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}

	// Map activities back to their owning session.
	owner := make(map[string]string)
	for _, ses := range snap.Sessions {
		for _, rec := range ses.Activities {
			owner[rec.ActivityID] = ses.SessionID
		}
	}

	for _, rec := range snap.Activities {
		contextJSON, err := marshalOrNil(rec.Context)
		if err != nil {
			return fmt.Errorf("marshal activity context: %w", err)
		}
		metadataJSON, err := marshalOrNil(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshal activity metadata: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO activity_log (
				activity_id, user_id, activity_type, description, timestamp,
				duration, success, context, metadata, session_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.ActivityID, rec.UserID, rec.ActivityType, rec.Description, rec.Timestamp,
			rec.Duration, rec.Success, contextJSON, metadataJSON, nullStr(owner[rec.ActivityID])); err != nil {
			return fmt.Errorf("insert activity: %w", err)
		}
	}

	for _, ses := range snap.Sessions {
		metadataJSON, err := marshalOrNil(ses.Metadata)
		if err != nil {
			return fmt.Errorf("marshal session metadata: %w", err)
		}
		var endTime any
		if ses.EndTime != nil {
			endTime = *ses.EndTime
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO activity_sessions (
				session_id, user_id, start_time, end_time, goal, project_context, metadata
			) VALUES (?, ?, ?, ?, ?, ?, ?)
		`, ses.SessionID, ses.UserID, ses.StartTime, endTime,
			nullStr(ses.Goal), nullStr(ses.ProjectContext), metadataJSON); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save tx: %w", err)
	}
	return nil
}

// marshalOrNil returns the JSON encoding of v, or nil for empty values so the
// column stays NULL.
func marshalOrNil[M ~map[string]string | ~map[string]any](m M) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// nullStr converts an empty string to nil so the column stays NULL.
func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// OpenSQLite opens (creating if needed) the SQLite database at path and
// initializes the activity schema.
func OpenSQLite(ctx context.Context, driver, path string) (*sql.DB, *SQLiteStore, error) {
	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	store := NewSQLiteStore(db)
	if err := store.InitSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, store, nil
}
