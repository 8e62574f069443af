package resourcecache

import (
	"context"
	"database/sql"
	"fmt"

	// Registers the "sqlite3" database/sql driver used below. The
	// teacher uses this driver to stand up an in-memory fixture
	// database for SQL test execution; here it backs the resource
	// cache's own path->bytes table instead.
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteCache is a reference Cache backed by a SQLite BLOB table.
// It is a stand-in for whatever persistent cache fronts the real XQTS
// file corpus; its caching/eviction policy is out of scope (spec.md §1).
type SQLiteCache struct {
	db *sql.DB
}

// OpenSQLiteCache opens (creating if necessary) a SQLite-backed resource
// cache at dsn. Use ":memory:" for a throwaway cache.
func OpenSQLiteCache(dsn string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening resource cache database: %w", err)
	}

	const schema = `CREATE TABLE IF NOT EXISTS resources (
		path TEXT PRIMARY KEY,
		bytes BLOB NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating resources table: %w", err)
	}

	return &SQLiteCache{db: db}, nil
}

// Put seeds path with bytes, as if the corpus had already populated the
// cache. Real caches fill themselves from a filesystem or network fetch;
// this reference implementation leaves that population to the caller.
func (c *SQLiteCache) Put(ctx context.Context, path string, bytes []byte) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO resources(path, bytes) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET bytes = excluded.bytes`,
		path, bytes)
	if err != nil {
		return fmt.Errorf("caching resource %q: %w", path, err)
	}

	return nil
}

// Fetch implements Cache by looking path up in the SQLite table.
func (c *SQLiteCache) Fetch(ctx context.Context, req GetResource, onOK func(CachedResource), onErr func(ResourceGetError)) {
	var b []byte

	err := c.db.QueryRowContext(ctx, `SELECT bytes FROM resources WHERE path = ?`, req.Path).Scan(&b)
	if err != nil {
		if err == sql.ErrNoRows {
			onErr(ResourceGetError{Path: req.Path, Err: ErrNotFound})
			return
		}

		onErr(ResourceGetError{Path: req.Path, Err: fmt.Errorf("querying resource cache: %w", err)})

		return
	}

	onOK(CachedResource{Path: req.Path, Bytes: b})
}

// Close releases the underlying database handle.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

var _ Cache = (*SQLiteCache)(nil)
