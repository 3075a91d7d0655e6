// Package sqlite provides a SQLite-backed session store.
//
// Sessions written here survive process restarts. Attribute values round-trip
// through JSON, so they must be JSON-serializable and numeric values decode
// as float64.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loomwork/loom/internal/platform/storage/sqlitemigrate"
	"github.com/loomwork/loom/session"
	"github.com/loomwork/loom/session/sqlite/migrations"
)

// Store persists sessions in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite session store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Get loads the session with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("session id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, locale, attributes, created_at, last_active_at
		 FROM sessions WHERE id = ?`,
		id,
	)

	var snap session.Snapshot
	var rawAttributes string
	var createdAt int64
	var lastActiveAt int64
	err := row.Scan(&snap.ID, &snap.Locale, &rawAttributes, &createdAt, &lastActiveAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	if err := json.Unmarshal([]byte(rawAttributes), &snap.Attributes); err != nil {
		return nil, fmt.Errorf("decode session attributes: %w", err)
	}
	snap.CreatedAt = fromMillis(createdAt)
	snap.LastActiveAt = fromMillis(lastActiveAt)
	return session.Restore(snap), nil
}

// Put saves the session, replacing any existing row with the same ID.
func (s *Store) Put(ctx context.Context, sess *session.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if sess == nil {
		return fmt.Errorf("session is required")
	}

	snap := sess.Snapshot()
	if strings.TrimSpace(snap.ID) == "" {
		return fmt.Errorf("session id is required")
	}
	rawAttributes, err := json.Marshal(snap.Attributes)
	if err != nil {
		return fmt.Errorf("encode session attributes: %w", err)
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO sessions (id, locale, attributes, created_at, last_active_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   locale = excluded.locale,
		   attributes = excluded.attributes,
		   last_active_at = excluded.last_active_at`,
		snap.ID,
		snap.Locale,
		string(rawAttributes),
		toMillis(snap.CreatedAt),
		toMillis(snap.LastActiveAt),
	)
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

// Delete removes the session with the given ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ExpireBefore removes sessions idle since before cutoff and returns their IDs.
func (s *Store) ExpireBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id FROM sessions WHERE last_active_at < ?`,
		toMillis(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("list expired sessions: %w", err)
	}
	defer rows.Close()

	var expired []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired session: %w", err)
		}
		expired = append(expired, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired sessions: %w", err)
	}

	if len(expired) > 0 {
		if _, err := s.sqlDB.ExecContext(
			ctx,
			`DELETE FROM sessions WHERE last_active_at < ?`,
			toMillis(cutoff),
		); err != nil {
			return nil, fmt.Errorf("delete expired sessions: %w", err)
		}
	}
	return expired, nil
}

// Destroy closes the SQLite handle. Stored sessions stay on disk.
func (s *Store) Destroy() error {
	return s.Close()
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}
