package models

import (
	"fmt"
	"time"
)

// Child is a track as returned by the catalog.
type Child struct {
	ID          string     `json:"id"`
	Parent      string     `json:"parent,omitempty"`
	Title       string     `json:"title"`
	Artist      string     `json:"artist,omitempty"`
	ArtistID    string     `json:"artistId,omitempty"`
	Album       string     `json:"album,omitempty"`
	AlbumID     string     `json:"albumId,omitempty"`
	Track       int        `json:"track,omitempty"`
	Year        int        `json:"year,omitempty"`
	Genre       string     `json:"genre,omitempty"`
	Duration    int        `json:"duration,omitempty"`
	Size        int64      `json:"size,omitempty"`
	ContentType string     `json:"contentType,omitempty"`
	Suffix      string     `json:"suffix,omitempty"`
	BitRate     int        `json:"bitRate,omitempty"`
	CoverArt    string     `json:"coverArt,omitempty"`
	Starred     *time.Time `json:"starred,omitempty"`
}

// IsStarred reports whether the track carries a starred timestamp.
func (c Child) IsStarred() bool { return c.Starred != nil }

// Empty reports whether c is the "nothing playing" sentinel.
func (c Child) Empty() bool { return c.ID == "" }

// Playlist is a catalog playlist with its entries.
type Playlist struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Owner     string  `json:"owner,omitempty"`
	SongCount int     `json:"songCount"`
	Duration  int     `json:"duration"`
	CoverArt  string  `json:"coverArt,omitempty"`
	Entry     []Child `json:"entry,omitempty"`
}

// Album is a catalog album with its songs.
type Album struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Artist    string  `json:"artist,omitempty"`
	ArtistID  string  `json:"artistId,omitempty"`
	SongCount int     `json:"songCount"`
	Duration  int     `json:"duration"`
	CoverArt  string  `json:"coverArt,omitempty"`
	Year      int     `json:"year,omitempty"`
	Song      []Child `json:"song,omitempty"`
}

// TrackItem is the descriptor handed to the download and playback engines.
//
// Extra carries the originating [Child] so rich metadata can be recovered from an
// engine's position-addressed queue.
type TrackItem struct {
	ID       string
	Title    string
	Artist   string
	Album    string
	Duration float64
	URL      string
	Artwork  string
	Extra    any
}

// QueueItem pairs an engine track with the catalog track it was built from.
type QueueItem struct {
	TrackItem
	Child Child
}

// SourceKind names where the current queue came from.
type SourceKind string

const (
	SourceNone     SourceKind = "none"
	SourcePlaylist SourceKind = "playlist"
	SourceAlbum    SourceKind = "album"
)

// QueueSource is the display-only provenance of the current queue.
type QueueSource struct {
	Source     SourceKind
	SourceID   string
	SourceName string
}

// String renders the source as shown in "Playing from ..." labels.
func (s QueueSource) String() string {
	switch s.Source {
	case SourcePlaylist, SourceAlbum:
		if s.SourceName != "" {
			return s.SourceName
		}
		return fmt.Sprintf("%s %s", s.Source, s.SourceID)
	default:
		return ""
	}
}

// RepeatMode is the player repeat setting.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatPlaylist
	RepeatTrack
)

// Next returns the mode that follows m in the off, playlist, track cycle.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatOff:
		return RepeatPlaylist
	case RepeatPlaylist:
		return RepeatTrack
	default:
		return RepeatOff
	}
}

func (m RepeatMode) String() string {
	switch m {
	case RepeatPlaylist:
		return "playlist"
	case RepeatTrack:
		return "track"
	default:
		return "off"
	}
}

// DownloadState is the lifecycle state of a single transfer.
type DownloadState string

const (
	DownloadPending     DownloadState = "pending"
	DownloadDownloading DownloadState = "downloading"
	DownloadPaused      DownloadState = "paused"
	DownloadCompleted   DownloadState = "completed"
	DownloadFailed      DownloadState = "failed"
	DownloadCancelled   DownloadState = "cancelled"
)

// IsTerminal reports whether s ends a transfer.
func (s DownloadState) IsTerminal() bool {
	switch s {
	case DownloadCompleted, DownloadFailed, DownloadCancelled:
		return true
	}
	return false
}

// IsActive reports whether s belongs in the active downloads view.
func (s DownloadState) IsActive() bool {
	switch s {
	case DownloadPending, DownloadDownloading, DownloadPaused:
		return true
	}
	return false
}

// DownloadProgress is one active transfer, keyed by TrackID.
type DownloadProgress struct {
	DownloadID      string
	TrackID         string
	BytesDownloaded int64
	TotalBytes      int64
	Progress        float64
	State           DownloadState
}

// Percent returns the progress fraction as a 0-100 integer.
func (p DownloadProgress) Percent() int {
	switch {
	case p.Progress <= 0:
		return 0
	case p.Progress >= 1:
		return 100
	}
	return int(p.Progress * 100)
}

// DownloadedTrack is a track persisted for offline playback.
type DownloadedTrack struct {
	TrackID      string
	PlaylistID   string
	Title        string
	Artist       string
	Album        string
	Duration     float64
	FilePath     string
	ArtworkPath  string
	FileSize     int64
	DownloadedAt time.Time
}

// StorageInfo summarizes disk usage of downloaded tracks.
type StorageInfo struct {
	TotalBytes int64
	TrackCount int
}

// CatalogTrack recovers the catalog track carried in Extra, or rebuilds a minimal one
// from the item's own fields.
func (t TrackItem) CatalogTrack() Child {
	switch c := t.Extra.(type) {
	case Child:
		return c
	case *Child:
		if c != nil {
			return *c
		}
	}
	return Child{
		ID:       t.ID,
		Title:    t.Title,
		Artist:   t.Artist,
		Album:    t.Album,
		Duration: int(t.Duration),
	}
}

// NewQueueItem pairs an engine item with its catalog track.
func NewQueueItem(t TrackItem) QueueItem {
	return QueueItem{TrackItem: t, Child: t.CatalogTrack()}
}
