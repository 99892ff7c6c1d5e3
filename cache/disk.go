package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// diskStore is the SQLite persistence tier behind a Cache.
type diskStore struct {
	db *sql.DB
}

const diskSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key         TEXT PRIMARY KEY,
	val         BLOB NOT NULL,
	size        INTEGER NOT NULL,
	created_at  INTEGER NOT NULL,
	accessed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_created ON cache_entries (created_at);
`

func openDiskStore(path string) (*diskStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	if _, err := db.Exec(diskSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema: %w", err)
	}
	return &diskStore{db: db}, nil
}

func (s *diskStore) get(key string) ([]byte, time.Time, error) {
	var val []byte
	var createdAt int64
	err := s.db.QueryRow(
		`SELECT val, created_at FROM cache_entries WHERE key = ?`, key,
	).Scan(&val, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, err
	}

	_, _ = s.db.Exec(`UPDATE cache_entries SET accessed_at = ? WHERE key = ?`,
		time.Now().UnixMilli(), key)
	return val, time.UnixMilli(createdAt), nil
}

func (s *diskStore) put(key string, val []byte) error {
	now := time.Now().UnixMilli()
	_, err := s.db.Exec(`
		INSERT INTO cache_entries (key, val, size, created_at, accessed_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT(key) DO UPDATE SET
			val = excluded.val,
			size = excluded.size,
			created_at = excluded.created_at,
			accessed_at = excluded.accessed_at`,
		key, val, len(val), now, now)
	return err
}

func (s *diskStore) delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key)
	return err
}

func (s *diskStore) deleteOlderThan(cutoff time.Time) error {
	_, err := s.db.Exec(`DELETE FROM cache_entries WHERE created_at < ?`, cutoff.UnixMilli())
	return err
}

func (s *diskStore) clear() error {
	_, err := s.db.Exec(`DELETE FROM cache_entries`)
	return err
}

func (s *diskStore) close() error {
	return s.db.Close()
}
