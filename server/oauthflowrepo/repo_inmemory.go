package oauthflowrepo

import (
	"errors"
	"sync"
	"time"

	apperrors "github.com/dottie-ai/assistant-server/internal/errors"
)

// NowTimeFunc returns the current time, can be overridden for testing
var NowTimeFunc = time.Now

// InMemoryRepo is a thread-safe in-memory implementation of the Repo
// interface. States older than ttl are evicted on Upsert so abandoned
// flows do not accumulate.
type InMemoryRepo struct {
	mu     sync.Mutex
	ttl    time.Duration
	states map[string]*FlowState
}

var _ Repo = (*InMemoryRepo)(nil)

// NewInMemoryRepo creates a new in-memory oauth flow state repository.
// A ttl of zero disables eviction.
func NewInMemoryRepo(ttl time.Duration) *InMemoryRepo {
	return &InMemoryRepo{
		ttl:    ttl,
		states: make(map[string]*FlowState),
	}
}

// Upsert stores a flow state under its state token
func (r *InMemoryRepo) Upsert(state string, flowState *FlowState) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	if flowState == nil {
		return errors.New("flowState cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ttl > 0 {
		cutoff := NowTimeFunc().Add(-r.ttl)
		for token, fs := range r.states {
			if fs.CreatedAt.Before(cutoff) {
				delete(r.states, token)
			}
		}
	}

	// Store a copy to prevent external modifications
	copied := *flowState
	r.states[state] = &copied
	return nil
}

// Consume returns and deletes the flow state for a state token
func (r *InMemoryRepo) Consume(state string) (*FlowState, error) {
	if state == "" {
		return nil, apperrors.ErrCsrf
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	flowState, ok := r.states[state]
	if !ok {
		return nil, apperrors.ErrCsrf
	}
	delete(r.states, state)

	copied := *flowState
	return &copied, nil
}
