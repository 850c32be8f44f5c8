package testing

import (
	"context"
	"fmt"
	"sync"

	"github.com/desertthunder/agin/internal/models"
	"github.com/desertthunder/agin/internal/services"
	"github.com/desertthunder/agin/internal/shared"
)

// FakeCatalog is an in-memory [services.Catalog].
//
// When Block is set, FetchChild reports the id on Entered and waits for Block to close.
type FakeCatalog struct {
	FetchErr error
	StarErr  error
	Block    chan struct{}
	Entered  chan string

	mu        sync.Mutex
	tracks    map[string]models.Child
	playlists map[string]models.Playlist
	albums    map[string]models.Album
	fetches   map[string]int
	starred   []string
	unstarred []string
	scrobbles []string
}

func NewFakeCatalog(tracks ...models.Child) *FakeCatalog {
	c := &FakeCatalog{
		tracks:    make(map[string]models.Child),
		playlists: make(map[string]models.Playlist),
		albums:    make(map[string]models.Album),
		fetches:   make(map[string]int),
	}
	for _, t := range tracks {
		c.tracks[t.ID] = t
	}
	return c
}

func (c *FakeCatalog) AddPlaylist(p models.Playlist) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playlists[p.ID] = p
	for _, t := range p.Entry {
		c.tracks[t.ID] = t
	}
}

func (c *FakeCatalog) AddAlbum(a models.Album) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.albums[a.ID] = a
	for _, t := range a.Song {
		c.tracks[t.ID] = t
	}
}

func (c *FakeCatalog) FetchChild(ctx context.Context, id string, _ bool) (*models.Child, error) {
	c.mu.Lock()
	c.fetches[id]++
	block, entered := c.Block, c.Entered
	c.mu.Unlock()

	if entered != nil {
		entered <- id
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FetchErr != nil {
		return nil, c.FetchErr
	}
	t, ok := c.tracks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, id)
	}
	return &t, nil
}

func (c *FakeCatalog) GetPlaylist(_ context.Context, id string) (*models.Playlist, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.playlists[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}
	return &p, nil
}

func (c *FakeCatalog) GetAlbum(_ context.Context, id string) (*models.Album, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.albums[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrAlbumNotFound, id)
	}
	return &a, nil
}

func (c *FakeCatalog) Star(_ context.Context, id string, _ services.StarKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starred = append(c.starred, id)
	return c.StarErr
}

func (c *FakeCatalog) Unstar(_ context.Context, id string, _ services.StarKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unstarred = append(c.unstarred, id)
	return c.StarErr
}

func (c *FakeCatalog) Scrobble(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scrobbles = append(c.scrobbles, id)
	return nil
}

// Fetches returns how many times id was looked up.
func (c *FakeCatalog) Fetches(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches[id]
}

func (c *FakeCatalog) Starred() []string   { return c.snapshot(&c.starred) }
func (c *FakeCatalog) Unstarred() []string { return c.snapshot(&c.unstarred) }
func (c *FakeCatalog) Scrobbles() []string { return c.snapshot(&c.scrobbles) }

func (c *FakeCatalog) snapshot(s *[]string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), (*s)...)
}

// URLs is a [services.URLBuilder] with predictable output.
type URLs struct{}

func (URLs) StreamURL(id string) string         { return "stream://" + id }
func (URLs) DownloadURL(id string) string       { return "download://" + id }
func (URLs) CoverURL(art string, _ int) string { return "cover://" + art }
