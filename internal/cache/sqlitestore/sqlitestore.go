package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"marketdata/internal/cache"
)

// Store is a cache.Store backed by a local sqlite file, so cached series
// survive process restarts. Expired rows are deleted lazily on access and
// rows least recently read are evicted past maxRows.
type Store struct {
	db      *sql.DB
	maxRows int

	now func() time.Time
}

// Open creates (or reuses) the database at path and migrates the schema.
// maxRows <= 0 means unbounded.
func Open(path string, maxRows int) (*Store, error) {
	if path == "" {
		path = "data/cache.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA busy_timeout=3000;"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("pragma: %w", err)
		}
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &Store{db: db, maxRows: maxRows, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bars_cache (
			key TEXT PRIMARY KEY,
			payload BLOB NOT NULL,
			fetched_at INTEGER NOT NULL,
			ttl_ns INTEGER NOT NULL,
			last_access INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_bars_cache_last_access ON bars_cache(last_access);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key cache.Key) (cache.Entry, bool, error) {
	ks := key.String()
	var payload []byte
	var fetchedAt, ttlNS int64
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, fetched_at, ttl_ns FROM bars_cache WHERE key = ?`, ks).
		Scan(&payload, &fetchedAt, &ttlNS)
	if errors.Is(err, sql.ErrNoRows) {
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("cache get: %w", err)
	}
	entry := cache.Entry{
		FetchedAt: time.Unix(0, fetchedAt).UTC(),
		TTL:       time.Duration(ttlNS),
	}
	if entry.Expired(s.now()) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM bars_cache WHERE key = ?`, ks)
		return cache.Entry{}, false, nil
	}
	if err := json.Unmarshal(payload, &entry.Bars); err != nil {
		// Unreadable rows are dropped rather than served.
		_, _ = s.db.ExecContext(ctx, `DELETE FROM bars_cache WHERE key = ?`, ks)
		return cache.Entry{}, false, nil
	}
	_, _ = s.db.ExecContext(ctx,
		`UPDATE bars_cache SET last_access = ? WHERE key = ?`, s.now().UnixNano(), ks)
	return entry, true, nil
}

func (s *Store) Put(ctx context.Context, key cache.Key, entry cache.Entry) error {
	payload, err := json.Marshal(entry.Bars)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	now := s.now().UnixNano()
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO bars_cache (key, payload, fetched_at, ttl_ns, last_access)
		 VALUES (?, ?, ?, ?, ?)`,
		key.String(), payload, entry.FetchedAt.UnixNano(), int64(entry.TTL), now)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	if s.maxRows > 0 {
		_, _ = s.db.ExecContext(ctx,
			`DELETE FROM bars_cache WHERE key IN (
				SELECT key FROM bars_cache ORDER BY last_access DESC LIMIT -1 OFFSET ?
			)`, s.maxRows)
	}
	return nil
}

func (s *Store) Invalidate(ctx context.Context, key cache.Key) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM bars_cache WHERE key = ?`, key.String()); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

// Sweep deletes every expired row in one pass.
func (s *Store) Sweep(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM bars_cache WHERE ttl_ns > 0 AND fetched_at + ttl_ns < ?`, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("cache sweep: %w", err)
	}
	return nil
}

var _ cache.Store = (*Store)(nil)
