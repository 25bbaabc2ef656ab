package lkgstore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/rockestra/rockestra/internal/rockestra/ports"
)

// RedisStore persists one ConfigSnapshot under a fixed key, for deployments
// where several Rockestra processes should share one last-known-good
// snapshot. Each process still resolves its own ConfigSnapshotProvider chain
// independently — this is a shared-disk substitute, not a consensus mechanism.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore wraps an existing go-redis client. key namespaces the
// snapshot so multiple Rockestra deployments can share one Redis instance.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) TryLoad(ctx context.Context) (ports.LkgLoadStatus, ports.Snapshot, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ports.LkgNotFound, ports.Snapshot{}, nil
	}
	if err != nil {
		return ports.LkgError, ports.Snapshot{}, err
	}

	var snapshot ports.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return ports.LkgCorrupt, ports.Snapshot{}, nil
	}
	return ports.LkgLoaded, snapshot, nil
}

func (s *RedisStore) TryStore(ctx context.Context, snapshot ports.Snapshot) bool {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return false
	}
	return s.client.Set(ctx, s.key, raw, 0).Err() == nil
}

var _ ports.LkgSnapshotStore = (*RedisStore)(nil)
