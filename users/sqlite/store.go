// Package sqlite is the durable user store backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/dottie-ai/assistant-server/internal/errors"
	"github.com/dottie-ai/assistant-server/users"
)

type Store struct {
	sqlDB *sql.DB
}

var _ users.UserRepo = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL DEFAULT '',
	photo_url TEXT NOT NULL DEFAULT '',
	date_joined INTEGER NOT NULL,
	last_login INTEGER NOT NULL DEFAULT 0
)`

// New prepares the users table and returns the store.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create users table: %w", err)
	}
	return &Store{sqlDB: db}, nil
}

func (s *Store) Upsert(ctx context.Context, user *users.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil || user.ID == "" {
		return fmt.Errorf("user with id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO users (id, email, display_name, photo_url, date_joined, last_login)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	email = excluded.email,
	display_name = excluded.display_name,
	photo_url = excluded.photo_url,
	last_login = excluded.last_login
`,
		user.ID,
		normalizeEmail(user.Email),
		user.DisplayName,
		user.PhotoURL,
		timeToMillis(user.DateJoined),
		timeToMillis(user.LastLogin),
	)
	if err != nil {
		return fmt.Errorf("upsert user %q: %w", user.ID, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete user %q: %w", id, err)
	}
	return nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return s.getBy(ctx, `email = ?`, normalizeEmail(email))
}

func (s *Store) GetByID(ctx context.Context, id string) (*users.User, error) {
	return s.getBy(ctx, `id = ?`, id)
}

func (s *Store) getBy(ctx context.Context, where string, arg string) (*users.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, email, display_name, photo_url, date_joined, last_login
FROM users
WHERE `+where, arg)

	var user users.User
	var dateJoined, lastLogin int64
	err := row.Scan(&user.ID, &user.Email, &user.DisplayName, &user.PhotoURL, &dateJoined, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	user.DateJoined = millisToTime(dateJoined)
	user.LastLogin = millisToTime(lastLogin)
	return &user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

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
