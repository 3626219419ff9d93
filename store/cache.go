// Package store keeps compiled scripts in a SQLite database so unchanged
// programs are not recompiled.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("locobasic.store")

// ErrNotFound indicates the source has not been compiled before.
var ErrNotFound = errors.New("script not cached")

// Cache maps BASIC source to generated script.
type Cache struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Open opens or creates the cache database at dbPath.
func Open(dbPath string) (*Cache, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS scripts (
		key TEXT PRIMARY KEY,
		variant TEXT NOT NULL,
		script TEXT NOT NULL,
		hits INTEGER NOT NULL DEFAULT 0
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Cache{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Path returns the database file.
func (c *Cache) Path() string { return c.dbPath }

// Variant names the grammar a script was compiled with.
func Variant(strict bool) string {
	if strict {
		return "strict"
	}
	return "permissive"
}

// Key is sha256 over the variant and the source.
func Key(src, variant string) string {
	h := sha256.New()
	h.Write([]byte(variant))
	h.Write([]byte{0})
	h.Write([]byte(src))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached script for src.
func (c *Cache) Get(src, variant string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(src, variant)
	var script string
	err := c.db.QueryRow("SELECT script FROM scripts WHERE key = ?", key).Scan(&script)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("querying script: %w", err)
	}
	if _, err := c.db.Exec("UPDATE scripts SET hits = hits + 1 WHERE key = ?", key); err != nil {
		log.Warningf("counting hit: %s", err)
	}
	return script, nil
}

// Put stores the script compiled from src.
func (c *Cache) Put(src, variant, script string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(
		"INSERT OR REPLACE INTO scripts (key, variant, script) VALUES (?, ?, ?)",
		Key(src, variant), variant, script,
	)
	if err != nil {
		return fmt.Errorf("saving script: %w", err)
	}
	return nil
}

// Compile returns the cached script for src or calls compile and caches a
// successful result. Failed compilations are not cached.
func (c *Cache) Compile(src, variant string, compile func(string) (string, error)) (script string, hit bool, err error) {
	script, err = c.Get(src, variant)
	if err == nil {
		log.Debugf("cache hit (%s)", variant)
		return script, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", false, err
	}
	script, err = compile(src)
	if err != nil {
		return "", false, err
	}
	if err := c.Put(src, variant, script); err != nil {
		return "", false, err
	}
	return script, false, nil
}

// Stats reports the number of entries and recorded hits.
func (c *Cache) Stats() (entries, hits int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err = c.db.QueryRow("SELECT COUNT(*), COALESCE(SUM(hits), 0) FROM scripts").Scan(&entries, &hits)
	if err != nil {
		return 0, 0, fmt.Errorf("querying stats: %w", err)
	}
	return entries, hits, nil
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec("DELETE FROM scripts"); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	return nil
}
