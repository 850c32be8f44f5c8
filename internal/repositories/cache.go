package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/agin/internal/shared"
)

// CacheRepository stores raw catalog payloads with an expiry.
type CacheRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewCacheRepository creates a new CacheRepository with the given database connection
func NewCacheRepository(db *sql.DB) *CacheRepository {
	return &CacheRepository{db: db, now: time.Now}
}

// WithClock replaces the time source used for expiry checks.
func (r *CacheRepository) WithClock(now func() time.Time) *CacheRepository {
	r.now = now
	return r
}

func cacheKey(kind, id string) string { return kind + ":" + id }

// Get returns the payload stored for kind/id, or [shared.ErrCacheMiss] when absent or expired.
func (r *CacheRepository) Get(kind, id string) ([]byte, error) {
	var (
		data      []byte
		expiresAt time.Time
	)

	err := r.db.QueryRow(
		`SELECT data, expires_at FROM catalog_cache WHERE key = ?`, cacheKey(kind, id),
	).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache: %w", err)
	}

	if !r.now().Before(expiresAt) {
		return nil, shared.ErrCacheMiss
	}
	return data, nil
}

// Put upserts the payload for kind/id, valid for ttl.
func (r *CacheRepository) Put(kind, id string, data []byte, ttl time.Duration) error {
	now := r.now()
	_, err := r.db.Exec(`
		INSERT INTO catalog_cache (key, kind, data, cached_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, cached_at = excluded.cached_at, expires_at = excluded.expires_at
	`, cacheKey(kind, id), kind, data, now, now.Add(ttl))
	if err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}

// Invalidate drops the entry for kind/id if present.
func (r *CacheRepository) Invalidate(kind, id string) error {
	if _, err := r.db.Exec(`DELETE FROM catalog_cache WHERE key = ?`, cacheKey(kind, id)); err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}
	return nil
}

// Prune deletes expired entries and returns how many were removed.
func (r *CacheRepository) Prune() (int, error) {
	result, err := r.db.Exec(`DELETE FROM catalog_cache WHERE expires_at <= ?`, r.now())
	if err != nil {
		return 0, fmt.Errorf("failed to prune cache: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(n), nil
}
