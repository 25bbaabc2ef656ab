package configsource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileProviderReadsPatchJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patch.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"schemaVersion":"v1","flows":{}}`), 0o644))

	provider, err := NewFileProvider(path)
	require.NoError(t, err)
	defer provider.Close()

	snapshot, err := provider.GetSnapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(1), snapshot.ConfigVersion)
	require.Equal(t, "file", snapshot.Source)
}

func TestFileProviderInvalidatesCacheOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patch.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"schemaVersion":"v1","flows":{}}`), 0o644))

	provider, err := NewFileProvider(path)
	require.NoError(t, err)
	defer provider.Close()

	first, err := provider.GetSnapshot(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"schemaVersion":"v1","flows":{"rank":{}}}`), 0o644))

	require.Eventually(t, func() bool {
		second, err := provider.GetSnapshot(context.Background())
		return err == nil && second.ConfigVersion == first.ConfigVersion+1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFileProviderMalformedJSONFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patch.json")
	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o644))

	provider, err := NewFileProvider(path)
	require.NoError(t, err)
	defer provider.Close()

	_, err = provider.GetSnapshot(context.Background())
	require.Error(t, err)
}
