// Package sqlite backs sessions with the shared database, the production
// session backend.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dottie-ai/assistant-server/googleauth"
	apperrors "github.com/dottie-ai/assistant-server/internal/errors"
	"github.com/dottie-ai/assistant-server/internal/utils"
	"github.com/dottie-ai/assistant-server/session"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

type Store struct {
	sqlDB *sql.DB
}

var _ session.Repo = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	bundle TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
)`

func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create sessions table: %w", err)
	}
	return &Store{sqlDB: db}, nil
}

func (s *Store) Upsert(ctx context.Context, sess session.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sess.ID == "" {
		return fmt.Errorf("session ID is required")
	}

	var bundleJSON string
	if sess.Bundle != nil {
		data, err := json.Marshal(sess.Bundle)
		if err != nil {
			return fmt.Errorf("encode session bundle: %w", err)
		}
		bundleJSON = string(data)
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO sessions (id, bundle, created_at, expires_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	bundle = excluded.bundle,
	expires_at = excluded.expires_at
`,
		sess.ID,
		bundleJSON,
		timeToMillis(sess.CreatedAt),
		timeToMillis(sess.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (session.Session, error) {
	if err := ctx.Err(); err != nil {
		return session.Session{}, err
	}
	if id == "" {
		return session.Session{}, fmt.Errorf("session ID is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, bundle, created_at, expires_at FROM sessions WHERE id = ?
`, id)

	var sess session.Session
	var bundleJSON string
	var createdAt, expiresAt int64
	if err := row.Scan(&sess.ID, &bundleJSON, &createdAt, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Session{}, apperrors.ErrNotFound
		}
		return session.Session{}, fmt.Errorf("get session: %w", err)
	}

	sess.CreatedAt = millisToTime(createdAt)
	sess.ExpiresAt = millisToTime(expiresAt)

	if sess.Expired(NowTimeFunc()) {
		_ = s.Delete(ctx, id)
		return session.Session{}, apperrors.ErrNotFound
	}

	if bundleJSON != "" {
		var bundle googleauth.TokenBundle
		if err := json.Unmarshal([]byte(bundleJSON), &bundle); err != nil {
			return session.Session{}, fmt.Errorf("decode session bundle: %w", err)
		}
		sess.Bundle = utils.Ptr(bundle)
	}
	return sess, nil
}

// A zero time is stored as 0 so "no expiry" survives the round trip.
func timeToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("session ID is required")
	}

	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
