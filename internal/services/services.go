package services

import (
	"context"

	"github.com/desertthunder/agin/internal/models"
)

// Catalog resolves identifiers to catalog entities and records user actions.
type Catalog interface {
	// FetchChild resolves a track. A missing track yields [shared.ErrTrackNotFound].
	// forceRefresh skips any local cache.
	FetchChild(ctx context.Context, id string, forceRefresh bool) (*models.Child, error)

	GetPlaylist(ctx context.Context, id string) (*models.Playlist, error)
	GetAlbum(ctx context.Context, id string) (*models.Album, error)

	Star(ctx context.Context, id string, kind StarKind) error
	Unstar(ctx context.Context, id string, kind StarKind) error

	// Scrobble records a now-playing submission for the track.
	Scrobble(ctx context.Context, id string) error
}

// PlaylistRefresher is implemented by catalogs that keep a local copy of playlists.
type PlaylistRefresher interface {
	RefreshPlaylist(ctx context.Context, id string) (*models.Playlist, error)
}

// GetPlaylist fetches a playlist, bypassing any local copy when refresh is set.
func GetPlaylist(ctx context.Context, c Catalog, id string, refresh bool) (*models.Playlist, error) {
	if r, ok := c.(PlaylistRefresher); ok && refresh {
		return r.RefreshPlaylist(ctx, id)
	}
	return c.GetPlaylist(ctx, id)
}

// StarKind selects which id parameter a star/unstar call uses.
type StarKind int

const (
	StarTrack StarKind = iota
	StarAlbum
	StarArtist
)

func (k StarKind) param() string {
	switch k {
	case StarAlbum:
		return "albumId"
	case StarArtist:
		return "artistId"
	default:
		return "id"
	}
}
