package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"cryptosentry/models"
)

// ColdTier is the external backend cold entries spill into.
type ColdTier interface {
	// PutBatch persists a batch of entries keyed "exchange:symbol".
	PutBatch(ctx context.Context, entries map[string]models.StoreEntry) error
	Get(ctx context.Context, key string) (models.StoreEntry, bool, error)
}

// RedisCold stores entries as JSON strings under tick:<exchange>:<symbol>.
type RedisCold struct {
	client *redis.Client
}

func NewRedisCold(url string) (*RedisCold, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return &RedisCold{client: redis.NewClient(opts)}, nil
}

func redisKey(key string) string { return "tick:" + key }

func (r *RedisCold) PutBatch(ctx context.Context, entries map[string]models.StoreEntry) error {
	pipe := r.client.Pipeline()
	for key, entry := range entries {
		payload, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal entry %s: %w", key, err)
		}
		pipe.Set(ctx, redisKey(key), payload, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline exec: %w", err)
	}
	return nil
}

func (r *RedisCold) Get(ctx context.Context, key string) (models.StoreEntry, bool, error) {
	raw, err := r.client.Get(ctx, redisKey(key)).Bytes()
	if err == redis.Nil {
		return models.StoreEntry{}, false, nil
	}
	if err != nil {
		return models.StoreEntry{}, false, err
	}
	var entry models.StoreEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return models.StoreEntry{}, false, fmt.Errorf("decode entry %s: %w", key, err)
	}
	return entry, true, nil
}
