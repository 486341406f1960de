// Package cache stores compiled bytecode artifacts in a SQLite database,
// keyed by a hash of the source text. Recompiling an unchanged module
// becomes a lookup.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/tliron/commonlog"

	"github.com/larklang/lark/bytecode"
)

// ErrMiss indicates no artifact is stored for the source.
var ErrMiss = errors.New("cache miss")

var log = commonlog.GetLogger("lark.cache")

// Cache is a SQLite-backed artifact store. Safe for concurrent use.
type Cache struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Open opens (creating if needed) the cache database at dbPath.
func Open(dbPath string) (*Cache, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS artifacts (
		hash TEXT PRIMARY KEY,
		id TEXT NOT NULL,
		module TEXT NOT NULL,
		data BLOB NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating artifacts table: %w", err)
	}

	log.Debugf("opened artifact cache at %s", dbPath)
	return &Cache{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Key returns the cache key for a module's source text.
func Key(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// Put stores the compiled artifact for source, replacing any previous one.
func (c *Cache) Put(moduleName, source string, fn *bytecode.Fn) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := bytecode.MarshalFn(fn)
	if err != nil {
		return fmt.Errorf("serializing artifact: %w", err)
	}

	hash := Key(source)
	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO artifacts (hash, id, module, data, created_at) VALUES (?, ?, ?, ?, ?)",
		hash, uuid.NewString(), moduleName, data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storing artifact: %w", err)
	}

	log.Debugf("stored %s (%d bytes) as %s", moduleName, len(data), hash[:12])
	return nil
}

// Get loads the compiled artifact for source. Returns ErrMiss when the
// source has not been compiled before, or has changed since.
func (c *Cache) Get(source string) (*bytecode.Fn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash := Key(source)
	var data []byte
	err := c.db.QueryRow("SELECT data FROM artifacts WHERE hash = ?", hash).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("querying artifact: %w", err)
	}

	fn, err := bytecode.UnmarshalFn(data)
	if err != nil {
		// A corrupt or stale entry is not fatal; treat it as a miss so the
		// caller recompiles and overwrites it.
		log.Warningf("discarding unreadable artifact %s: %s", hash[:12], err.Error())
		return nil, ErrMiss
	}

	log.Debugf("hit for %s", hash[:12])
	return fn, nil
}

// Len returns the number of stored artifacts.
func (c *Cache) Len() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM artifacts").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting artifacts: %w", err)
	}
	return n, nil
}

// Prune removes artifacts older than the given age.
func (c *Cache) Prune(maxAge time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.Exec("DELETE FROM artifacts WHERE created_at < ?",
		time.Now().UTC().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("pruning artifacts: %w", err)
	}
	return res.RowsAffected()
}
