package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]Memory {
	sqlite, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Memory{
		"in-memory": NewInMemoryStore(),
		"sqlite":    sqlite,
	}
}

func TestMemoryReadWriteRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			data, err := store.Read(ctx, "subj-1")
			require.NoError(t, err)
			assert.Nil(t, data)

			require.NoError(t, store.Write(ctx, "subj-1", []byte(`{"v":1}`), nil))
			data, err = store.Read(ctx, "subj-1")
			require.NoError(t, err)
			assert.Equal(t, `{"v":1}`, string(data))

			require.NoError(t, store.Write(ctx, "subj-1", []byte(`{"v":2}`), []byte(`{"v":1}`)))
			data, err = store.Read(ctx, "subj-1")
			require.NoError(t, err)
			assert.Equal(t, `{"v":2}`, string(data))
		})
	}
}

func TestMemoryWriteConflict(t *testing.T) {
	ctx := context.Background()
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Write(ctx, "subj-1", []byte(`{"v":1}`), nil))

			err := store.Write(ctx, "subj-1", []byte(`{"v":2}`), []byte(`{"v":stale}`))
			assert.Error(t, err)

			err = store.Write(ctx, "subj-2", []byte(`{"v":1}`), []byte(`{}`))
			assert.Error(t, err, "non-nil prevRecord against missing subject must conflict")
		})
	}
}

func TestMemoryLockUnlock(t *testing.T) {
	ctx := context.Background()
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			res, err := store.Lock(ctx, "subj-1", "token-a")
			require.NoError(t, err)
			assert.Equal(t, Acquired, res)

			res, err = store.Lock(ctx, "subj-1", "token-a")
			require.NoError(t, err)
			assert.Equal(t, AlreadyAcquired, res, "same token re-entry is idempotent")

			res, err = store.Lock(ctx, "subj-1", "token-b")
			require.NoError(t, err)
			assert.Equal(t, NotAcquired, res)

			store.Unlock(ctx, "subj-1", "token-a")

			res, err = store.Lock(ctx, "subj-1", "token-b")
			require.NoError(t, err)
			assert.Equal(t, Acquired, res)
		})
	}
}
