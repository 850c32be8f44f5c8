package services

import "github.com/desertthunder/agin/internal/models"

// URLBuilder produces media URLs for catalog ids.
type URLBuilder interface {
	StreamURL(id string) string
	DownloadURL(id string) string
	CoverURL(coverArt string, size int) string
}

// TrackItems converts catalog tracks into engine descriptors.
type TrackItems struct {
	urls        URLBuilder
	artworkSize int
}

// NewTrackItems creates a converter; artworkSize 0 requests original-size artwork.
func NewTrackItems(urls URLBuilder, artworkSize int) *TrackItems {
	return &TrackItems{urls: urls, artworkSize: artworkSize}
}

// ForPlayback builds an item whose URL honors the streaming settings.
func (b *TrackItems) ForPlayback(c models.Child) models.TrackItem {
	item := b.base(c)
	item.URL = b.urls.StreamURL(c.ID)
	return item
}

// ForDownload builds an item whose URL fetches the original file.
func (b *TrackItems) ForDownload(c models.Child) models.TrackItem {
	item := b.base(c)
	item.URL = b.urls.DownloadURL(c.ID)
	return item
}

func (b *TrackItems) base(c models.Child) models.TrackItem {
	art := c.CoverArt
	if art == "" {
		art = c.ID
	}
	return models.TrackItem{
		ID:       c.ID,
		Title:    c.Title,
		Artist:   c.Artist,
		Album:    c.Album,
		Duration: float64(c.Duration),
		Artwork:  b.urls.CoverURL(art, b.artworkSize),
		Extra:    c,
	}
}
