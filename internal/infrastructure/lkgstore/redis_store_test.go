package lkgstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/rockestra/rockestra/internal/rockestra/ports"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "rockestra:lkg:rank")
}

func TestRedisStoreTryLoadNotFound(t *testing.T) {
	store := newTestRedisStore(t)
	status, _, err := store.TryLoad(context.Background())
	require.NoError(t, err)
	require.Equal(t, ports.LkgNotFound, status)
}

func TestRedisStoreStoreThenLoadRoundTrips(t *testing.T) {
	store := newTestRedisStore(t)
	snapshot := ports.Snapshot{ConfigVersion: 3, PatchJSON: `{"schemaVersion":"v1","flows":{}}`}
	require.True(t, store.TryStore(context.Background(), snapshot))

	status, loaded, err := store.TryLoad(context.Background())
	require.NoError(t, err)
	require.Equal(t, ports.LkgLoaded, status)
	require.Equal(t, snapshot.ConfigVersion, loaded.ConfigVersion)
}
