package repository

import (
	"context"
	"sync"
	"time"

	"github.com/noah-isme/sma-roster-sync/internal/models"
	appErrors "github.com/noah-isme/sma-roster-sync/pkg/errors"
)

// MemoryDraftRepository keeps drafts in process memory. Used by tests and
// single-node development setups; contents are lost on restart.
type MemoryDraftRepository struct {
	mu     sync.RWMutex
	prefix string
	items  map[string][]byte
}

// NewMemoryDraftRepository constructs an empty in-memory repository.
func NewMemoryDraftRepository(prefix string) *MemoryDraftRepository {
	return &MemoryDraftRepository{prefix: prefix, items: make(map[string][]byte)}
}

// Get returns a copy of the stored payload.
func (r *MemoryDraftRepository) Get(ctx context.Context, scope models.DraftScope) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	payload, ok := r.items[scope.StorageKey(r.prefix)]
	if !ok {
		return nil, appErrors.ErrDraftNotFound
	}
	return append([]byte(nil), payload...), nil
}

// Put replaces the payload stored for scope.
func (r *MemoryDraftRepository) Put(ctx context.Context, scope models.DraftScope, payload []byte, _ time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[scope.StorageKey(r.prefix)] = append([]byte(nil), payload...)
	return nil
}

// Delete removes the payload stored for scope.
func (r *MemoryDraftRepository) Delete(ctx context.Context, scope models.DraftScope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, scope.StorageKey(r.prefix))
	return nil
}

// Len reports how many drafts are held.
func (r *MemoryDraftRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
