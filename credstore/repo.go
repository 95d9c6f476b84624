// Package credstore persists one token bundle per identity key. The store
// is the source of truth for durable credentials; any session-held copy is
// a cache layered on top by the caller.
package credstore

import (
	"context"
	"time"

	"github.com/dottie-ai/assistant-server/googleauth"
)

// Record is the durable state kept per identity key.
type Record struct {
	Key       string
	Bundle    googleauth.TokenBundle
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repo is the credential store contract. Get returns ErrNotFound for an
// absent key; callers treat that as a normal outcome. Set upserts, keeping
// the creation timestamp of the first write. Update merges partial fields
// into an existing bundle, preserving any stored refresh token that the
// partial does not replace, and fails with ErrNotFound when nothing is
// stored. Delete is idempotent.
//
// Individual operations are atomic documents writes; concurrent writers
// for the same key resolve last-write-wins.
type Repo interface {
	Get(ctx context.Context, key string) (*Record, error)
	Set(ctx context.Context, key string, bundle googleauth.TokenBundle) error
	Update(ctx context.Context, key string, partial googleauth.TokenBundle) error
	Delete(ctx context.Context, key string) error
}
