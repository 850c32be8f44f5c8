package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/agin/internal/models"
	"github.com/desertthunder/agin/internal/shared"
)

const (
	kindSong     = "song"
	kindPlaylist = "playlist"
	kindAlbum    = "album"
)

// CacheStore is the persistence used by [CachedCatalog].
type CacheStore interface {
	Get(kind, id string) ([]byte, error)
	Put(kind, id string, data []byte, ttl time.Duration) error
	Invalidate(kind, id string) error
}

// CachedCatalog serves lookups from a [CacheStore] before asking the upstream [Catalog].
//
// Cache failures are logged and treated as misses; they never fail a lookup.
type CachedCatalog struct {
	upstream Catalog
	store    CacheStore
	ttl      time.Duration
	logger   *log.Logger
}

// NewCachedCatalog wraps upstream with store.
func NewCachedCatalog(upstream Catalog, store CacheStore, ttl time.Duration, logger *log.Logger) *CachedCatalog {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &CachedCatalog{upstream: upstream, store: store, ttl: ttl, logger: logger}
}

func (c *CachedCatalog) FetchChild(ctx context.Context, id string, forceRefresh bool) (*models.Child, error) {
	return cached(c, kindSong, id, forceRefresh, func() (*models.Child, error) {
		return c.upstream.FetchChild(ctx, id, true)
	})
}

func (c *CachedCatalog) GetPlaylist(ctx context.Context, id string) (*models.Playlist, error) {
	return cached(c, kindPlaylist, id, false, func() (*models.Playlist, error) {
		return c.upstream.GetPlaylist(ctx, id)
	})
}

// RefreshPlaylist bypasses the cache and stores the fresh playlist.
func (c *CachedCatalog) RefreshPlaylist(ctx context.Context, id string) (*models.Playlist, error) {
	return cached(c, kindPlaylist, id, true, func() (*models.Playlist, error) {
		return c.upstream.GetPlaylist(ctx, id)
	})
}

func (c *CachedCatalog) GetAlbum(ctx context.Context, id string) (*models.Album, error) {
	return cached(c, kindAlbum, id, false, func() (*models.Album, error) {
		return c.upstream.GetAlbum(ctx, id)
	})
}

// Star stars upstream and drops the cached track so the next read sees the new timestamp.
func (c *CachedCatalog) Star(ctx context.Context, id string, kind StarKind) error {
	if err := c.upstream.Star(ctx, id, kind); err != nil {
		return err
	}
	c.invalidate(kind, id)
	return nil
}

func (c *CachedCatalog) Unstar(ctx context.Context, id string, kind StarKind) error {
	if err := c.upstream.Unstar(ctx, id, kind); err != nil {
		return err
	}
	c.invalidate(kind, id)
	return nil
}

func (c *CachedCatalog) Scrobble(ctx context.Context, id string) error {
	return c.upstream.Scrobble(ctx, id)
}

func (c *CachedCatalog) invalidate(kind StarKind, id string) {
	cacheKind := kindSong
	if kind == StarAlbum {
		cacheKind = kindAlbum
	} else if kind == StarArtist {
		return
	}
	if err := c.store.Invalidate(cacheKind, id); err != nil {
		c.logger.Warn("cache invalidate failed", "kind", cacheKind, "id", id, "err", err)
	}
}

func cached[T any](c *CachedCatalog, kind, id string, forceRefresh bool, fetch func() (*T, error)) (*T, error) {
	if !forceRefresh {
		data, err := c.store.Get(kind, id)
		switch {
		case err == nil:
			var v T
			if err := json.Unmarshal(data, &v); err == nil {
				return &v, nil
			}
			c.logger.Warn("discarding corrupt cache entry", "kind", kind, "id", id)
		case !errors.Is(err, shared.ErrCacheMiss):
			c.logger.Warn("cache read failed", "kind", kind, "id", id, "err", err)
		}
	}

	v, err := fetch()
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(v); err != nil {
		c.logger.Warn("cache encode failed", "kind", kind, "id", id, "err", err)
	} else if err := c.store.Put(kind, id, data, c.ttl); err != nil {
		c.logger.Warn("cache write failed", "kind", kind, "id", id, "err", err)
	}
	return v, nil
}
