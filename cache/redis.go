package cache

import (
	"context"
	"errors"

	cachekey "github.com/always-cache/spa-shell/pkg/cache-key"

	"github.com/redis/go-redis/v9"
	"go.trai.ch/zerr"
)

const (
	redisLayer = "redis"
	// DefaultRedisPrefix namespaces all keys written by RedisStorage.
	DefaultRedisPrefix = "spa-shell"
)

// putIfGeneration writes hash fields only while the generation is still registered.
// KEYS[1] generations zset, KEYS[2] generation hash, ARGV[1] generation name,
// ARGV[2..] field/value pairs.
var putIfGeneration = redis.NewScript(`
if redis.call("ZSCORE", KEYS[1], ARGV[1]) == false then
	return 0
end
for i = 2, #ARGV, 2 do
	redis.call("HSET", KEYS[2], ARGV[i], ARGV[i + 1])
end
return 1
`)

// RedisStorage keeps generations in Redis: a sorted set of generation names
// (scored by creation sequence) and one hash of entries per generation.
type RedisStorage struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStorage creates a storage on the given client.
// An empty prefix uses DefaultRedisPrefix.
func NewRedisStorage(client redis.UniversalClient, prefix string) *RedisStorage {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStorage{
		redis:  client,
		prefix: prefix,
	}
}

func (s *RedisStorage) generationsKey() string {
	return s.prefix + ":generations"
}

func (s *RedisStorage) sequenceKey() string {
	return s.prefix + ":generations:seq"
}

func (s *RedisStorage) entriesKey(name string) string {
	return s.prefix + ":gen:" + name
}

func (s *RedisStorage) Open(ctx context.Context, name string) (Cache, error) {
	if ok, err := s.Has(ctx, name); err != nil {
		CacheErrors.WithLabelValues(redisLayer, "open").Inc()
		return nil, zerr.With(zerr.Wrap(err, ErrStoreUnavailable.Error()), "generation", name)
	} else if !ok {
		seq, err := s.redis.Incr(ctx, s.sequenceKey()).Result()
		if err != nil {
			CacheErrors.WithLabelValues(redisLayer, "open").Inc()
			return nil, zerr.With(zerr.Wrap(err, "redis incr"), "generation", name)
		}
		// NX keeps the original sequence if another process opened it concurrently
		if err := s.redis.ZAddNX(ctx, s.generationsKey(), redis.Z{Score: float64(seq), Member: name}).Err(); err != nil {
			CacheErrors.WithLabelValues(redisLayer, "open").Inc()
			return nil, zerr.With(zerr.Wrap(err, "redis zadd"), "generation", name)
		}
	}
	return &RedisCache{name: name, storage: s}, nil
}

func (s *RedisStorage) Lookup(ctx context.Context, name string) (Cache, bool, error) {
	if ok, err := s.Has(ctx, name); err != nil || !ok {
		return nil, false, err
	}
	return &RedisCache{name: name, storage: s}, true, nil
}

func (s *RedisStorage) Has(ctx context.Context, name string) (bool, error) {
	err := s.redis.ZScore(ctx, s.generationsKey(), name).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	return err == nil, err
}

func (s *RedisStorage) Delete(ctx context.Context, name string) (bool, error) {
	var removed *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.ZRem(ctx, s.generationsKey(), name)
		pipe.Del(ctx, s.entriesKey(name))
		return nil
	})
	if err != nil {
		CacheErrors.WithLabelValues(redisLayer, "delete").Inc()
		return false, zerr.With(zerr.Wrap(err, "redis delete generation"), "generation", name)
	}
	return removed.Val() > 0, nil
}

func (s *RedisStorage) Names(ctx context.Context) ([]string, error) {
	return s.redis.ZRange(ctx, s.generationsKey(), 0, -1).Result()
}

func (s *RedisStorage) Match(ctx context.Context, key cachekey.Key) (Entry, bool, error) {
	return matchInOrder(ctx, s, key)
}

// Close closes the underlying client.
func (s *RedisStorage) Close() error {
	return s.redis.Close()
}

// RedisCache is a handle to one generation in a RedisStorage.
type RedisCache struct {
	name    string
	storage *RedisStorage
}

func (c *RedisCache) Name() string {
	return c.name
}

func (c *RedisCache) Match(ctx context.Context, key cachekey.Key) (Entry, bool, error) {
	blob, err := c.storage.redis.HGet(ctx, c.storage.entriesKey(c.name), key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		observeMatch(redisLayer, false, nil)
		return Entry{}, false, nil
	} else if err != nil {
		observeMatch(redisLayer, false, err)
		return Entry{}, false, zerr.Wrap(err, "redis hget")
	}
	entry, err := decodeEntry(key, blob)
	observeMatch(redisLayer, err == nil, err)
	if err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

func (c *RedisCache) Put(ctx context.Context, entry Entry) error {
	return c.PutAll(ctx, []Entry{entry})
}

// PutAll writes all entries atomically.
// Entries for a generation that has been deleted are silently dropped.
func (c *RedisCache) PutAll(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	args := make([]interface{}, 0, 1+2*len(entries))
	args = append(args, c.name)
	for _, e := range entries {
		args = append(args, e.Key.String(), encodeEntry(e))
	}
	keys := []string{c.storage.generationsKey(), c.storage.entriesKey(c.name)}
	err := putIfGeneration.Run(ctx, c.storage.redis, keys, args...).Err()
	observeWrite(redisLayer, len(entries), err)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "redis put"), "generation", c.name)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key cachekey.Key) (bool, error) {
	n, err := c.storage.redis.HDel(ctx, c.storage.entriesKey(c.name), key.String()).Result()
	if err != nil {
		CacheErrors.WithLabelValues(redisLayer, "delete").Inc()
		return false, zerr.Wrap(err, "redis hdel")
	}
	return n > 0, nil
}

func (c *RedisCache) Keys(ctx context.Context) ([]cachekey.Key, error) {
	fields, err := c.storage.redis.HKeys(ctx, c.storage.entriesKey(c.name)).Result()
	if err != nil {
		CacheErrors.WithLabelValues(redisLayer, "keys").Inc()
		return nil, zerr.Wrap(err, "redis hkeys")
	}
	keys := make([]cachekey.Key, 0, len(fields))
	for _, field := range fields {
		key, err := cachekey.ParseKey(field)
		if err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
