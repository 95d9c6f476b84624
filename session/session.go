// Package session holds per-browser transient state. The token bundle
// kept here is a fast-path cache of the credential store, repopulated on
// miss and treated as possibly stale.
package session

import (
	"context"
	"time"

	"github.com/dottie-ai/assistant-server/googleauth"
)

type Session struct {
	ID        string
	Bundle    *googleauth.TokenBundle
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && s.ExpiresAt.Before(now)
}

type Repo interface {
	Upsert(ctx context.Context, sess Session) error
	Get(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
}
