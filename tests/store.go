package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/swcache/core/cache"
)

// RunStoreTests checks the cache.Store contract against the stores returned by newStore (one per subtest).
func RunStoreTests(t *testing.T, newStore func(t *testing.T) cache.Store) {
	ctx := context.Background()
	storedAt := time.Date(2026, 10, 16, 8, 30, 0, 0, time.UTC)

	entry := func(key, body string, status int) cache.Entry {
		return cache.Entry{
			Key:      key,
			URL:      key + "#top",
			Status:   status,
			Header:   http.Header{"Content-Type": {"text/html"}, "Etag": {`"abc"`}},
			Body:     []byte(body),
			StoredAt: storedAt,
		}
	}

	t.Run("open creates", func(t *testing.T) {
		store := newStore(t)

		has, err := store.Has(ctx, "v1")
		require.NoError(t, err)
		assert.False(t, has)

		gen, err := store.Open(ctx, "v1")
		require.NoError(t, err)
		assert.Equal(t, "v1", gen.Name())

		has, err = store.Has(ctx, "v1")
		require.NoError(t, err)
		assert.True(t, has)

		keys, err := gen.Keys(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("put & match", func(t *testing.T) {
		store := newStore(t)
		gen, err := store.Open(ctx, "v1")
		require.NoError(t, err)

		want := entry("https://app.test/", "<html>home</html>", http.StatusOK)
		require.NoError(t, gen.Put(ctx, want))

		got, ok, err := gen.Match(ctx, want.Key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want.Key, got.Key)
		assert.Equal(t, want.URL, got.URL)
		assert.Equal(t, want.Status, got.Status)
		assert.Equal(t, want.Header, got.Header)
		assert.Equal(t, want.Body, got.Body)
		assert.True(t, want.StoredAt.Equal(got.StoredAt), "stored_at = %v; want %v", got.StoredAt, want.StoredAt)

		// replace
		require.NoError(t, gen.Put(ctx, entry(want.Key, "<html>home v2</html>", http.StatusOK)))
		got, ok, err = gen.Match(ctx, want.Key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "<html>home v2</html>", string(got.Body))

		_, ok, err = gen.Match(ctx, "https://app.test/other")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("generations are isolated", func(t *testing.T) {
		store := newStore(t)
		v1, err := store.Open(ctx, "v1")
		require.NoError(t, err)
		v2, err := store.Open(ctx, "v2")
		require.NoError(t, err)

		require.NoError(t, v1.Put(ctx, entry("https://app.test/", "v1", http.StatusOK)))
		_, ok, err := v2.Match(ctx, "https://app.test/")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("put all", func(t *testing.T) {
		store := newStore(t)
		gen, err := store.Open(ctx, "v1")
		require.NoError(t, err)

		require.NoError(t, gen.PutAll(ctx, nil))
		require.NoError(t, gen.PutAll(ctx, []cache.Entry{
			entry("https://app.test/b.js", "b", http.StatusOK),
			entry("https://app.test/a.css", "a", http.StatusOK),
		}))

		keys, err := gen.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"https://app.test/a.css", "https://app.test/b.js"}, keys)
	})

	t.Run("names & delete", func(t *testing.T) {
		store := newStore(t)
		for _, name := range []string{"v2", "v1", "v3"} {
			gen, err := store.Open(ctx, name)
			require.NoError(t, err)
			require.NoError(t, gen.Put(ctx, entry("https://app.test/", name, http.StatusOK)))
		}

		names, err := store.Names(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"v1", "v2", "v3"}, names)

		existed, err := store.Delete(ctx, "v2")
		require.NoError(t, err)
		assert.True(t, existed)

		existed, err = store.Delete(ctx, "v2")
		require.NoError(t, err)
		assert.False(t, existed)

		names, err = store.Names(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"v1", "v3"}, names)

		// re-opening a deleted generation starts empty
		gen, err := store.Open(ctx, "v2")
		require.NoError(t, err)
		keys, err := gen.Keys(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("lookup never creates", func(t *testing.T) {
		store := newStore(t)

		gen, ok, err := store.Lookup(ctx, "v1")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, gen)
		names, err := store.Names(ctx)
		require.NoError(t, err)
		assert.Empty(t, names)

		_, err = store.Open(ctx, "v1")
		require.NoError(t, err)
		gen, ok, err = store.Lookup(ctx, "v1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "v1", gen.Name())
	})

	t.Run("writes after delete fail", func(t *testing.T) {
		store := newStore(t)
		gen, err := store.Open(ctx, "v1")
		require.NoError(t, err)
		require.NoError(t, gen.Put(ctx, entry("https://app.test/", "v1", http.StatusOK)))

		_, err = store.Delete(ctx, "v1")
		require.NoError(t, err)

		assert.Equal(t, cache.ErrGenerationNotFound, errors.Cause(gen.Put(ctx, entry("https://app.test/docs", "late", http.StatusOK))))
		assert.Equal(t, cache.ErrGenerationNotFound, errors.Cause(gen.PutAll(ctx, []cache.Entry{entry("https://app.test/docs", "late", http.StatusOK)})))

		has, err := store.Has(ctx, "v1")
		require.NoError(t, err)
		assert.False(t, has, "a late write does not bring the generation back")
	})
}
