package cache

import (
	"context"
	"time"

	cachekey "github.com/always-cache/spa-shell/pkg/cache-key"

	"go.trai.ch/zerr"
)

var (
	// ErrCorruptEntry indicates a stored entry failed its integrity check or could not be decoded.
	ErrCorruptEntry = zerr.New("corrupt cache entry")
	// ErrStoreUnavailable indicates the backing store could not be reached or opened.
	ErrStoreUnavailable = zerr.New("cache store unavailable")
)

// Storage is the set of named cache generations, comparable to the browser's CacheStorage.
// Exactly one generation is considered current by the strategy engine;
// the storage itself does not know which one that is.
//
// Implementations must be thread-safe!
type Storage interface {
	// Open returns the generation with the given name, creating it if needed.
	Open(ctx context.Context, name string) (Cache, error)
	// Lookup returns the generation with the given name without creating it.
	Lookup(ctx context.Context, name string) (Cache, bool, error)
	// Has checks if a generation with the given name exists.
	Has(ctx context.Context, name string) (bool, error)
	// Delete removes the generation and all its entries.
	// It reports whether a generation was actually deleted.
	// Writes through handles to a deleted generation are discarded.
	Delete(ctx context.Context, name string) (bool, error)
	// Names enumerates the generation names in creation order.
	Names(ctx context.Context) ([]string, error)
	// Match looks up the key in every generation, in creation order, and returns the first entry found.
	Match(ctx context.Context, key cachekey.Key) (Entry, bool, error)
	// Close releases the underlying resources.
	Close() error
}

// Cache is a single named generation holding request key → response snapshot entries.
// Entries never expire; they are only overwritten or deleted along with the generation.
type Cache interface {
	Name() string
	// Match returns the entry stored for the key, if any.
	Match(ctx context.Context, key cachekey.Key) (Entry, bool, error)
	// Put stores the entry, atomically replacing any previous entry with the same key.
	Put(ctx context.Context, entry Entry) error
	// PutAll stores all entries or none of them.
	PutAll(ctx context.Context, entries []Entry) error
	// Delete removes the entry for the key and reports whether it existed.
	Delete(ctx context.Context, key cachekey.Key) (bool, error)
	// Keys enumerates the keys stored in the generation.
	Keys(ctx context.Context) ([]cachekey.Key, error)
}

// Entry is an immutable snapshot of a network response captured at StoredAt.
// Response holds the HTTP/1.1 wire representation (see the response-serializer package).
type Entry struct {
	Key      cachekey.Key
	StoredAt time.Time
	Response []byte
}

type generations interface {
	Names(ctx context.Context) ([]string, error)
	Lookup(ctx context.Context, name string) (Cache, bool, error)
}

// matchInOrder implements Storage.Match on top of Names.
func matchInOrder(ctx context.Context, s generations, key cachekey.Key) (Entry, bool, error) {
	names, err := s.Names(ctx)
	if err != nil {
		return Entry{}, false, err
	}
	for _, name := range names {
		c, ok, err := s.Lookup(ctx, name)
		if err != nil {
			return Entry{}, false, err
		} else if !ok {
			// deleted in the meantime
			continue
		}
		if e, ok, err := c.Match(ctx, key); err != nil {
			return Entry{}, false, err
		} else if ok {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}
