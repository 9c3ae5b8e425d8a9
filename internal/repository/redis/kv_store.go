package redis

import (
	"context"
	"errors"
	"fmt"

	"moment-mint/internal/client"
)

const kvPrefix = "kv:"

// KVStore is a storage.Store backed by plain Redis string keys.
type KVStore struct {
	client *client.RedisClient
	prefix string
}

func NewKVStore(c *client.RedisClient, keyPrefix string) *KVStore {
	return &KVStore{client: c, prefix: keyPrefix + kvPrefix}
}

func (s *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+key)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *KVStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0); err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key); err != nil {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}
