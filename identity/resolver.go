package identity

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dottie-ai/assistant-server/credstore"
	"github.com/dottie-ai/assistant-server/googleauth"
	apperrors "github.com/dottie-ai/assistant-server/internal/errors"
	"github.com/dottie-ai/assistant-server/internal/utils"
	"github.com/dottie-ai/assistant-server/session"
)

const defaultSessionTTL = 24 * time.Hour

// Resolver decides where a caller's token bundle lives and keeps the
// session cache coherent with the credential store.
type Resolver struct {
	store      credstore.Repo
	sessions   session.Repo
	sessionTTL time.Duration
	nowTime    func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithSessionTTL sets the lifetime stamped on sessions the resolver
// creates when mirroring a bundle.
func WithSessionTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.sessionTTL = ttl }
}

// WithNowTime overrides the clock, used in testing.
func WithNowTime(now func() time.Time) Option {
	return func(r *Resolver) { r.nowTime = now }
}

func NewResolver(store credstore.Repo, sessions session.Repo, opts ...Option) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("[NewResolver] credential store is required")
	}
	if sessions == nil {
		return nil, errors.New("[NewResolver] session repo is required")
	}
	r := &Resolver{
		store:      store,
		sessions:   sessions,
		sessionTTL: defaultSessionTTL,
		nowTime:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// LookupBundle finds the token bundle for id.
//
// Durable identities read the credential store directly; the store is the
// source of truth and the identity may span sessions and instances, so
// there is no session fast path. Transient identities read the session
// cache first, fall back to the store under the same transient id, and
// repopulate the session on a store hit.
//
// A miss distinguishes "no Google account linked" (durable identity, no
// bundle) from "not signed in at all" so callers can render the right
// remediation.
func (r *Resolver) LookupBundle(ctx context.Context, id Identity) (googleauth.TokenBundle, error) {
	if id.Authenticated() {
		record, err := r.store.Get(ctx, id.StableUserID)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrNotFound) {
				return googleauth.TokenBundle{}, apperrors.ErrGoogleNotLinked
			}
			return googleauth.TokenBundle{}, errors.Wrap(err, "[LookupBundle] store.Get")
		}
		return record.Bundle, nil
	}

	if id.TransientID == "" {
		return googleauth.TokenBundle{}, apperrors.ErrSignInRequired
	}

	if sess, err := r.sessions.Get(ctx, id.TransientID); err == nil && sess.Bundle != nil {
		return *sess.Bundle, nil
	}

	record, err := r.store.Get(ctx, id.TransientID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return googleauth.TokenBundle{}, apperrors.ErrSignInRequired
		}
		return googleauth.TokenBundle{}, errors.Wrap(err, "[LookupBundle] store.Get fallback")
	}

	r.MirrorToSession(ctx, id.TransientID, record.Bundle)
	log.Debug().Str("sessionID", id.TransientID).Msg("repopulated session token cache from credential store")
	return record.Bundle, nil
}

// LinkKey picks the key a freshly exchanged bundle is stored under. A
// pending durable id captured at flow start always wins over the
// transient session id; a durable identity on the inbound request wins
// next.
func (r *Resolver) LinkKey(pendingUserID string, id Identity) string {
	if pendingUserID != "" {
		return pendingUserID
	}
	return id.Key()
}

// AdoptBundle moves a bundle stored under a transient key to a durable
// identity once one exists, so later lookups under the durable id find
// it. The transient record is removed; the session cache keeps its copy.
func (r *Resolver) AdoptBundle(ctx context.Context, transientID, stableUserID string, bundle googleauth.TokenBundle) error {
	if err := r.store.Set(ctx, stableUserID, bundle); err != nil {
		return errors.Wrap(err, "[AdoptBundle] store.Set")
	}
	if transientID != "" && transientID != stableUserID {
		if err := r.store.Delete(ctx, transientID); err != nil {
			log.Warn().Err(err).Str("sessionID", transientID).Msg("failed to remove transient credential record after adoption")
		}
	}
	return nil
}

// MirrorToSession caches a bundle on the transient session for fast-path
// reuse. Failures are logged and swallowed; the durable copy is already
// safe.
func (r *Resolver) MirrorToSession(ctx context.Context, transientID string, bundle googleauth.TokenBundle) {
	if transientID == "" {
		return
	}
	sess, err := r.sessions.Get(ctx, transientID)
	if err != nil {
		// A synthesized session still gets a lifetime; a zero ExpiresAt
		// would never expire.
		now := r.nowTime()
		sess = session.Session{ID: transientID, CreatedAt: now, ExpiresAt: now.Add(r.sessionTTL)}
	}
	sess.Bundle = utils.Ptr(bundle)
	if err := r.sessions.Upsert(ctx, sess); err != nil {
		log.Warn().Err(err).Str("sessionID", transientID).Msg("failed to mirror tokens into session")
	}
}
