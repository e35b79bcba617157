package store

import (
	"context"
	"time"

	"github.com/omaldonado/snapfield-backend/pkg/redis"
)

// redisRemote adapts the shared redis client to the Remote surface,
// namespacing every collection key.
type redisRemote struct {
	client *redis.Client
}

// NewRedisRemote wraps a connected redis client for use by the facade.
func NewRedisRemote(client *redis.Client) Remote {
	if client == nil {
		return nil
	}
	return &redisRemote{client: client}
}

func (r *redisRemote) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, r.client.CollectionKey(key))
}

func (r *redisRemote) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return r.client.Set(ctx, r.client.CollectionKey(key), value, ttl)
}

func (r *redisRemote) Del(ctx context.Context, keys ...string) error {
	namespaced := make([]string, 0, len(keys))
	for _, key := range keys {
		namespaced = append(namespaced, r.client.CollectionKey(key))
	}
	return r.client.Del(ctx, namespaced...)
}
