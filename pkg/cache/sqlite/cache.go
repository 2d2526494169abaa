// Package sqlite persists two-tier cache entries in SQLite.
package sqlite

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/glimpse/pkg/models"
)

// Store is a cache.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS cache_entries (
	cache_key TEXT PRIMARY KEY,
	embedding BLOB,
	answer TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	last_used DATETIME NOT NULL,
	hit_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_cache_last_used ON cache_entries(last_used);
`

// New opens the store at dbPath and runs auto-migration.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Store{db: db}, nil
}

// Upsert inserts or replaces an entry.
func (s *Store) Upsert(e models.CacheEntry) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO cache_entries (cache_key, embedding, answer, created_at, last_used, hit_count)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.Key, encodeVector(e.Embedding), e.Answer, e.CreatedAt.UTC(), e.LastUsed.UTC(), e.HitCount,
	)
	if err != nil {
		return fmt.Errorf("cache upsert: %w", err)
	}
	return nil
}

// Delete removes an entry by key.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM cache_entries WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// LoadAll returns every persisted entry, least recently used first.
func (s *Store) LoadAll() ([]models.CacheEntry, error) {
	rows, err := s.db.Query(
		`SELECT cache_key, embedding, answer, created_at, last_used, hit_count
		 FROM cache_entries ORDER BY last_used ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("cache load: %w", err)
	}
	defer rows.Close()

	var entries []models.CacheEntry
	for rows.Next() {
		var e models.CacheEntry
		var blob []byte
		var created, used time.Time
		if err := rows.Scan(&e.Key, &blob, &e.Answer, &created, &used, &e.HitCount); err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		e.Embedding = decodeVector(blob)
		e.CreatedAt = created.UTC()
		e.LastUsed = used.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Clear removes all entries.
func (s *Store) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Count returns the number of persisted entries.
func (s *Store) Count() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM cache_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("cache count: %w", err)
	}
	return n, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// encodeVector packs v as little-endian float32s.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
