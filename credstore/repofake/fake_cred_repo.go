package credrepofake

import (
	"context"
	"sync"
	"time"

	"github.com/dottie-ai/assistant-server/credstore"
	"github.com/dottie-ai/assistant-server/googleauth"
	apperrors "github.com/dottie-ai/assistant-server/internal/errors"
)

var _ credstore.Repo = (*FakeCredRepo)(nil)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

type FakeCredRepo struct {
	records map[string]*credstore.Record
	lock    sync.RWMutex
}

func NewFakeCredRepo() *FakeCredRepo {
	return &FakeCredRepo{
		records: make(map[string]*credstore.Record),
	}
}

func (cr *FakeCredRepo) Get(_ context.Context, key string) (*credstore.Record, error) {
	cr.lock.RLock()
	defer cr.lock.RUnlock()

	record, ok := cr.records[key]
	if !ok {
		return nil, apperrors.ErrNotFound
	}

	// Return a copy to prevent external modifications
	copied := *record
	return &copied, nil
}

func (cr *FakeCredRepo) Set(_ context.Context, key string, bundle googleauth.TokenBundle) error {
	cr.lock.Lock()
	defer cr.lock.Unlock()

	now := NowTimeFunc()
	if existing, ok := cr.records[key]; ok {
		existing.Bundle = bundle
		existing.UpdatedAt = now
		return nil
	}

	cr.records[key] = &credstore.Record{
		Key:       key,
		Bundle:    bundle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (cr *FakeCredRepo) Update(_ context.Context, key string, partial googleauth.TokenBundle) error {
	cr.lock.Lock()
	defer cr.lock.Unlock()

	existing, ok := cr.records[key]
	if !ok {
		return apperrors.ErrNotFound
	}

	existing.Bundle = existing.Bundle.Merge(partial)
	existing.UpdatedAt = NowTimeFunc()
	return nil
}

func (cr *FakeCredRepo) Delete(_ context.Context, key string) error {
	cr.lock.Lock()
	defer cr.lock.Unlock()

	delete(cr.records, key)
	return nil
}
