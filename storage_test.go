package cloudobjects

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStorage(t *testing.T, storage Storage) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := storage.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, storage.Set(ctx, "k1", "v1"))
	value, ok, err := storage.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", value)

	require.NoError(t, storage.Set(ctx, "k1", "v2"))
	value, _, err = storage.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "v2", value, "set overwrites")

	require.NoError(t, storage.Remove(ctx, "k1"))
	_, ok, err = storage.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	// removing an absent key is not an error
	require.NoError(t, storage.Remove(ctx, "k1"))
}

func TestMemoryStorage(t *testing.T) {
	exerciseStorage(t, NewMemoryStorage())
}

func TestMemoryStorageConcurrentAccess(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", n)
			for j := 0; j < 50; j++ {
				_ = storage.Set(ctx, key, "v")
				_, _, _ = storage.Get(ctx, key)
				_ = storage.Remove(ctx, key)
			}
		}(i)
	}
	wg.Wait()
}

func TestSQLiteStorage(t *testing.T) {
	ctx := context.Background()
	storage, err := NewSQLiteStorage(ctx, "file::memory:?cache=shared")
	require.NoError(t, err)
	defer storage.Close()

	exerciseStorage(t, storage)
}

func TestSQLiteStorageSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + t.TempDir() + "/sessions.db"

	storage, err := NewSQLiteStorage(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, storage.Set(ctx, "k1", "v1"))
	require.NoError(t, storage.Close())

	reopened, err := NewSQLiteStorage(ctx, dsn)
	require.NoError(t, err)
	defer reopened.Close()

	value, ok, err := reopened.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", value)
}
