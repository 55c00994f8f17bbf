package cache

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"

	cachekey "github.com/always-cache/spa-shell/pkg/cache-key"

	_ "github.com/glebarez/go-sqlite"
	"go.trai.ch/zerr"
)

const (
	sqliteLayer = "sqlite"
	// MemoryDSN is a shared in-memory database.
	MemoryDSN = "file::memory:?cache=shared"
)

// SQLiteStorage stores generations in a single SQLite database.
type SQLiteStorage struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteStorage opens (and if needed creates) the cache db with the given file name.
// If file name is empty, a shared in-memory db is opened.
func NewSQLiteStorage(filename string) (*SQLiteStorage, error) {
	if filename == "" {
		filename = MemoryDSN
	}
	sep := "?"
	if strings.Contains(filename, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", filename+sep+"_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, ErrStoreUnavailable.Error()), "file", filename)
	}
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS generations (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS entries (
			generation TEXT NOT NULL,
			key TEXT NOT NULL,
			blob BLOB,
			PRIMARY KEY (generation, key)
		)`,
		"PRAGMA journal_mode=WAL",
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, zerr.With(zerr.Wrap(err, ErrStoreUnavailable.Error()), "file", filename)
		}
	}
	return &SQLiteStorage{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

func (s *SQLiteStorage) Open(ctx context.Context, name string) (Cache, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	if _, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO generations (name) VALUES (?)", name); err != nil {
		CacheErrors.WithLabelValues(sqliteLayer, "open").Inc()
		return nil, zerr.With(zerr.Wrap(err, "could not open generation"), "generation", name)
	}
	return &SQLiteCache{name: name, storage: s}, nil
}

func (s *SQLiteStorage) Lookup(ctx context.Context, name string) (Cache, bool, error) {
	if ok, err := s.Has(ctx, name); err != nil || !ok {
		return nil, false, err
	}
	return &SQLiteCache{name: name, storage: s}, true, nil
}

func (s *SQLiteStorage) Has(ctx context.Context, name string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM generations WHERE name = ?", name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLiteStorage) Delete(ctx context.Context, name string) (bool, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		CacheErrors.WithLabelValues(sqliteLayer, "delete").Inc()
		return false, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE generation = ?", name); err != nil {
		CacheErrors.WithLabelValues(sqliteLayer, "delete").Inc()
		return false, err
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM generations WHERE name = ?", name)
	if err != nil {
		CacheErrors.WithLabelValues(sqliteLayer, "delete").Inc()
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, tx.Commit()
}

func (s *SQLiteStorage) Names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM generations ORDER BY seq ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteStorage) Match(ctx context.Context, key cachekey.Key) (Entry, bool, error) {
	return matchInOrder(ctx, s, key)
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// SQLiteCache is a handle to one generation in a SQLiteStorage.
type SQLiteCache struct {
	name    string
	storage *SQLiteStorage
}

func (c *SQLiteCache) Name() string {
	return c.name
}

func (c *SQLiteCache) Match(ctx context.Context, key cachekey.Key) (Entry, bool, error) {
	var blob []byte
	err := c.storage.db.QueryRowContext(ctx,
		"SELECT blob FROM entries WHERE generation = ? AND key = ?",
		c.name, key.String(),
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		observeMatch(sqliteLayer, false, nil)
		return Entry{}, false, nil
	} else if err != nil {
		observeMatch(sqliteLayer, false, err)
		return Entry{}, false, err
	}
	entry, err := decodeEntry(key, blob)
	observeMatch(sqliteLayer, err == nil, err)
	if err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

func (c *SQLiteCache) Put(ctx context.Context, entry Entry) error {
	return c.PutAll(ctx, []Entry{entry})
}

// PutAll writes the entries in one transaction.
// Entries for a generation that has been deleted are silently dropped.
func (c *SQLiteCache) PutAll(ctx context.Context, entries []Entry) error {
	c.storage.writeMutex.Lock()
	defer c.storage.writeMutex.Unlock()
	tx, err := c.storage.db.BeginTx(ctx, nil)
	if err != nil {
		observeWrite(sqliteLayer, 0, err)
		return err
	}
	defer tx.Rollback()
	for _, e := range entries {
		_, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO entries (generation, key, blob)
			SELECT ?, ?, ? WHERE EXISTS (SELECT 1 FROM generations WHERE name = ?)`,
			c.name, e.Key.String(), encodeEntry(e), c.name)
		if err != nil {
			observeWrite(sqliteLayer, 0, err)
			return zerr.With(zerr.Wrap(err, "could not write entry"), "key", e.Key.String())
		}
	}
	err = tx.Commit()
	observeWrite(sqliteLayer, len(entries), err)
	return err
}

func (c *SQLiteCache) Delete(ctx context.Context, key cachekey.Key) (bool, error) {
	c.storage.writeMutex.Lock()
	defer c.storage.writeMutex.Unlock()
	result, err := c.storage.db.ExecContext(ctx,
		"DELETE FROM entries WHERE generation = ? AND key = ?", c.name, key.String())
	if err != nil {
		CacheErrors.WithLabelValues(sqliteLayer, "delete").Inc()
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows > 0, err
}

func (c *SQLiteCache) Keys(ctx context.Context) ([]cachekey.Key, error) {
	rows, err := c.storage.db.QueryContext(ctx, "SELECT key FROM entries WHERE generation = ?", c.name)
	if err != nil {
		CacheErrors.WithLabelValues(sqliteLayer, "keys").Inc()
		return nil, err
	}
	defer rows.Close()

	keys := make([]cachekey.Key, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return keys, err
		}
		key, err := cachekey.ParseKey(raw)
		if err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
