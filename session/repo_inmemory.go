package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/dottie-ai/assistant-server/internal/errors"
)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo
// interface, the development session backend.
type InMemoryRepo struct {
	mu       sync.RWMutex
	sessions map[string]Session
	nowTime  func() time.Time
}

var _ Repo = (*InMemoryRepo)(nil)

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		sessions: make(map[string]Session),
		nowTime:  time.Now,
	}
}

func (r *InMemoryRepo) Upsert(_ context.Context, sess Session) error {
	if sess.ID == "" {
		return fmt.Errorf("session ID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if sess.Bundle != nil {
		// Copy the bundle so callers cannot mutate stored state
		bundle := *sess.Bundle
		sess.Bundle = &bundle
	}
	r.sessions[sess.ID] = sess
	return nil
}

func (r *InMemoryRepo) Get(_ context.Context, id string) (Session, error) {
	if id == "" {
		return Session{}, fmt.Errorf("session ID is required")
	}

	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok {
		return Session{}, apperrors.ErrNotFound
	}
	if sess.Expired(r.nowTime()) {
		r.mu.Lock()
		delete(r.sessions, id)
		r.mu.Unlock()
		return Session{}, apperrors.ErrNotFound
	}

	if sess.Bundle != nil {
		bundle := *sess.Bundle
		sess.Bundle = &bundle
	}
	return sess, nil
}

func (r *InMemoryRepo) Delete(_ context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("session ID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	return nil
}
