package cache

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	cachekey "github.com/always-cache/spa-shell/pkg/cache-key"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryFor(url, body string) Entry {
	return Entry{
		Key:      cachekey.Key{Method: "GET", URL: url},
		StoredAt: time.Unix(1700000000, 0),
		Response: []byte("HTTP/1.1 200 OK\r\nContent-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body),
	}
}

// storageSuite runs the behaviour every Storage implementation shares.
func storageSuite(t *testing.T, newStorage func(t *testing.T) Storage) {
	ctx := context.Background()

	t.Run("put then match", func(t *testing.T) {
		s := newStorage(t)
		c, err := s.Open(ctx, "v1")
		require.NoError(t, err)

		e := entryFor("https://dev.localhost/api/movies", `{"movies":[]}`)
		require.NoError(t, c.Put(ctx, e))

		got, ok, err := c.Match(ctx, e.Key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, e.Response, got.Response)
		assert.True(t, e.StoredAt.Equal(got.StoredAt))
		assert.Equal(t, e.Key, got.Key)
	})

	t.Run("miss", func(t *testing.T) {
		s := newStorage(t)
		c, err := s.Open(ctx, "v1")
		require.NoError(t, err)
		_, ok, err := c.Match(ctx, cachekey.Key{Method: "GET", URL: "https://dev.localhost/nothing"})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("last write wins", func(t *testing.T) {
		s := newStorage(t)
		c, err := s.Open(ctx, "v1")
		require.NoError(t, err)
		require.NoError(t, c.Put(ctx, entryFor("https://dev.localhost/app.js", "one")))
		second := entryFor("https://dev.localhost/app.js", "two")
		require.NoError(t, c.Put(ctx, second))

		got, ok, err := c.Match(ctx, second.Key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, second.Response, got.Response)

		keys, err := c.Keys(ctx)
		require.NoError(t, err)
		assert.Len(t, keys, 1)
	})

	t.Run("open is idempotent", func(t *testing.T) {
		s := newStorage(t)
		a, err := s.Open(ctx, "v1")
		require.NoError(t, err)
		require.NoError(t, a.Put(ctx, entryFor("https://dev.localhost/", "home")))
		b, err := s.Open(ctx, "v1")
		require.NoError(t, err)
		_, ok, err := b.Match(ctx, cachekey.Key{Method: "GET", URL: "https://dev.localhost/"})
		require.NoError(t, err)
		assert.True(t, ok)

		names, err := s.Names(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"v1"}, names)
	})

	t.Run("lookup does not create", func(t *testing.T) {
		s := newStorage(t)
		_, ok, err := s.Lookup(ctx, "v1")
		require.NoError(t, err)
		assert.False(t, ok)
		has, err := s.Has(ctx, "v1")
		require.NoError(t, err)
		assert.False(t, has)

		created, err := s.Open(ctx, "v1")
		require.NoError(t, err)
		require.NoError(t, created.Put(ctx, entryFor("https://dev.localhost/", "home")))
		found, ok, err := s.Lookup(ctx, "v1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "v1", found.Name())

		_, err = s.Delete(ctx, "v1")
		require.NoError(t, err)
		_, ok, err = s.Lookup(ctx, "v1")
		require.NoError(t, err)
		assert.False(t, ok)
		names, err := s.Names(ctx)
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("names in creation order", func(t *testing.T) {
		s := newStorage(t)
		for _, name := range []string{"movies-cache-v1", "movies-cache-v3", "movies-cache-v2"} {
			_, err := s.Open(ctx, name)
			require.NoError(t, err)
		}
		names, err := s.Names(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"movies-cache-v1", "movies-cache-v3", "movies-cache-v2"}, names)
	})

	t.Run("delete generation", func(t *testing.T) {
		s := newStorage(t)
		old, err := s.Open(ctx, "v1")
		require.NoError(t, err)
		e := entryFor("https://dev.localhost/index.html", "<html>")
		require.NoError(t, old.Put(ctx, e))

		deleted, err := s.Delete(ctx, "v1")
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = s.Delete(ctx, "v1")
		require.NoError(t, err)
		assert.False(t, deleted)

		has, err := s.Has(ctx, "v1")
		require.NoError(t, err)
		assert.False(t, has)

		// writes through a stale handle are discarded
		require.NoError(t, old.Put(ctx, e))
		has, err = s.Has(ctx, "v1")
		require.NoError(t, err)
		assert.False(t, has)
		_, ok, err := s.Match(ctx, e.Key)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("match searches every generation oldest first", func(t *testing.T) {
		s := newStorage(t)
		v1, err := s.Open(ctx, "v1")
		require.NoError(t, err)
		v2, err := s.Open(ctx, "v2")
		require.NoError(t, err)

		older := entryFor("https://dev.localhost/api/movies/top", "older")
		newer := entryFor("https://dev.localhost/api/movies/top", "newer")
		require.NoError(t, v2.Put(ctx, newer))
		only := entryFor("https://dev.localhost/api/genres", "genres")
		require.NoError(t, v2.Put(ctx, only))
		require.NoError(t, v1.Put(ctx, older))

		got, ok, err := s.Match(ctx, older.Key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, older.Response, got.Response)

		got, ok, err = s.Match(ctx, only.Key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, only.Response, got.Response)
	})

	t.Run("put all", func(t *testing.T) {
		s := newStorage(t)
		c, err := s.Open(ctx, "v1")
		require.NoError(t, err)
		entries := []Entry{
			entryFor("https://dev.localhost/offline.html", "offline"),
			entryFor("https://dev.localhost/index.html", "index"),
			entryFor("https://dev.localhost/images/logo.svg", "<svg/>"),
			entryFor("https://dev.localhost/images/icon.png", "png"),
		}
		require.NoError(t, c.PutAll(ctx, entries))
		keys, err := c.Keys(ctx)
		require.NoError(t, err)
		assert.Len(t, keys, len(entries))
		for _, e := range entries {
			assert.Contains(t, keys, e.Key)
		}
	})

	t.Run("delete entry", func(t *testing.T) {
		s := newStorage(t)
		c, err := s.Open(ctx, "v1")
		require.NoError(t, err)
		e := entryFor("https://dev.localhost/app.css", "body{}")
		require.NoError(t, c.Put(ctx, e))
		ok, err := c.Delete(ctx, e.Key)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = c.Delete(ctx, e.Key)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("concurrent puts", func(t *testing.T) {
		s := newStorage(t)
		c, err := s.Open(ctx, "v1")
		require.NoError(t, err)
		wg := sync.WaitGroup{}
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, c.Put(ctx, entryFor("https://dev.localhost/race", strconv.Itoa(i))))
			}(i)
		}
		wg.Wait()
		keys, err := c.Keys(ctx)
		require.NoError(t, err)
		assert.Len(t, keys, 1)
	})
}

func TestMemStorage(t *testing.T) {
	storageSuite(t, func(t *testing.T) Storage {
		return NewMemStorage()
	})
}

func TestSQLiteStorage(t *testing.T) {
	storageSuite(t, func(t *testing.T) Storage {
		s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "cache.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestSQLiteStoragePersists(t *testing.T) {
	ctx := context.Background()
	file := filepath.Join(t.TempDir(), "cache.db")

	s, err := NewSQLiteStorage(file)
	require.NoError(t, err)
	c, err := s.Open(ctx, "movies-cache-v3")
	require.NoError(t, err)
	e := entryFor("https://dev.localhost/offline.html", "offline")
	require.NoError(t, c.Put(ctx, e))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStorage(file)
	require.NoError(t, err)
	defer s.Close()
	got, ok, err := s.Match(ctx, e.Key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, e.Response, got.Response)
}

func TestMemCacheCopiesResponse(t *testing.T) {
	ctx := context.Background()
	s := NewMemStorage()
	c, _ := s.Open(ctx, "v1")
	e := entryFor("https://dev.localhost/", "home")
	require.NoError(t, c.Put(ctx, e))
	e.Response[0] = 'X'
	got, _, _ := c.Match(ctx, e.Key)
	assert.Equal(t, byte('H'), got.Response[0])
}
