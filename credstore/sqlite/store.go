// Package sqlite is the durable credential store backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dottie-ai/assistant-server/credstore"
	"github.com/dottie-ai/assistant-server/googleauth"
	apperrors "github.com/dottie-ai/assistant-server/internal/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

type Store struct {
	sqlDB *sql.DB
}

var _ credstore.Repo = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS user_tokens (
	key TEXT PRIMARY KEY,
	access_token TEXT NOT NULL,
	refresh_token TEXT NOT NULL DEFAULT '',
	scope TEXT NOT NULL DEFAULT '',
	token_type TEXT NOT NULL DEFAULT '',
	expiry_date INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
)`

// New prepares the token table and returns the store.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create user_tokens table: %w", err)
	}
	return &Store{sqlDB: db}, nil
}

func (s *Store) Get(ctx context.Context, key string) (*credstore.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("key is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT key, access_token, refresh_token, scope, token_type, expiry_date, created_at, updated_at
FROM user_tokens
WHERE key = ?
`, key)

	var rec credstore.Record
	var createdAt, updatedAt int64
	err := row.Scan(
		&rec.Key,
		&rec.Bundle.AccessToken,
		&rec.Bundle.RefreshToken,
		&rec.Bundle.Scope,
		&rec.Bundle.TokenType,
		&rec.Bundle.ExpiryDate,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get user tokens: %w", err)
	}

	rec.CreatedAt = time.UnixMilli(createdAt)
	rec.UpdatedAt = time.UnixMilli(updatedAt)
	return &rec, nil
}

func (s *Store) Set(ctx context.Context, key string, bundle googleauth.TokenBundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("key is required")
	}

	now := NowTimeFunc().UnixMilli()
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO user_tokens (key, access_token, refresh_token, scope, token_type, expiry_date, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	access_token = excluded.access_token,
	refresh_token = excluded.refresh_token,
	scope = excluded.scope,
	token_type = excluded.token_type,
	expiry_date = excluded.expiry_date,
	updated_at = excluded.updated_at
`,
		key,
		bundle.AccessToken,
		bundle.RefreshToken,
		bundle.Scope,
		bundle.TokenType,
		bundle.ExpiryDate,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("set user tokens: %w", err)
	}
	return nil
}

// Update merges partial fields into the stored bundle. The read and the
// write are two statements, not one transaction; concurrent updates for
// the same key resolve last-write-wins.
func (s *Store) Update(ctx context.Context, key string, partial googleauth.TokenBundle) error {
	existing, err := s.Get(ctx, key)
	if err != nil {
		return err
	}

	merged := existing.Bundle.Merge(partial)
	_, err = s.sqlDB.ExecContext(ctx, `
UPDATE user_tokens SET
	access_token = ?,
	refresh_token = ?,
	scope = ?,
	token_type = ?,
	expiry_date = ?,
	updated_at = ?
WHERE key = ?
`,
		merged.AccessToken,
		merged.RefreshToken,
		merged.Scope,
		merged.TokenType,
		merged.ExpiryDate,
		NowTimeFunc().UnixMilli(),
		key,
	)
	if err != nil {
		return fmt.Errorf("update user tokens: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("key is required")
	}

	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM user_tokens WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete user tokens: %w", err)
	}
	return nil
}
