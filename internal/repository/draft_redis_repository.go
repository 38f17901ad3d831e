package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/sma-roster-sync/internal/models"
	appErrors "github.com/noah-isme/sma-roster-sync/pkg/errors"
)

// RedisDraftRepository stores each draft under its own string key with no
// expiry.
type RedisDraftRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisDraftRepository constructs a redis-backed draft repository.
func NewRedisDraftRepository(client *redis.Client, prefix string) *RedisDraftRepository {
	return &RedisDraftRepository{client: client, prefix: prefix}
}

// Get retrieves the raw draft payload.
func (r *RedisDraftRepository) Get(ctx context.Context, scope models.DraftScope) ([]byte, error) {
	if r.client == nil {
		return nil, appErrors.ErrDraftNotFound
	}

	key := scope.StorageKey(r.prefix)
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, appErrors.ErrDraftNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	return raw, nil
}

// Put stores the payload without a TTL.
func (r *RedisDraftRepository) Put(ctx context.Context, scope models.DraftScope, payload []byte, _ time.Time) error {
	if r.client == nil {
		return errors.New("redis draft repository has no client")
	}

	key := scope.StorageKey(r.prefix)
	if err := r.client.Set(ctx, key, payload, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	return nil
}

// Delete removes the draft key.
func (r *RedisDraftRepository) Delete(ctx context.Context, scope models.DraftScope) error {
	if r.client == nil {
		return nil
	}

	key := scope.StorageKey(r.prefix)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}

	return nil
}

// Close releases the underlying Redis connection if present.
func (r *RedisDraftRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
