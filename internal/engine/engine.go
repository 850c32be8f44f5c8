package engine

import (
	"context"

	"github.com/desertthunder/agin/internal/models"
)

// DownloadOptions configures a [DownloadEngine] once at startup.
type DownloadOptions struct {
	MaxConcurrent       int
	AutoRetry           bool
	MaxRetryAttempts    int
	DownloadArtwork     bool
	BackgroundDownloads bool
	PlaybackSource      string
}

// DownloadEngine transfers tracks to local storage.
//
// Mutating calls return once the request is accepted; progress and outcome arrive as events.
type DownloadEngine interface {
	Configure(opts DownloadOptions) error
	SyncDownloads(ctx context.Context) error

	IsTrackDownloaded(trackID string) bool
	IsDownloading(trackID string) bool
	GetActiveDownloads() []models.DownloadProgress
	GetDownloadedTracks() ([]models.DownloadedTrack, error)
	GetStorageInfo() (models.StorageInfo, error)

	DownloadTrack(ctx context.Context, item models.TrackItem, playlistID string) (string, error)
	DownloadPlaylist(ctx context.Context, playlistID string, items []models.TrackItem) ([]string, error)
	PauseDownload(ctx context.Context, downloadID string) error
	ResumeDownload(ctx context.Context, downloadID string) error
	CancelDownload(ctx context.Context, downloadID string) error
	RetryDownload(ctx context.Context, downloadID string) error
	DeleteTrack(ctx context.Context, trackID string) error
	DeleteAll(ctx context.Context) error

	Subscribe(kind EventKind, handler Handler) Subscription
}

// PlayerState is the playback engine's view of the current position.
type PlayerState struct {
	// CurrentIndex is -1 when nothing is loaded.
	CurrentIndex int
	Position     float64
	Duration     float64
	Playing      bool
}

// PlaybackEngine owns the ordered play queue and audio output.
type PlaybackEngine interface {
	GetState() (PlayerState, error)
	GetActualQueue() ([]models.TrackItem, error)

	Play() error
	Pause() error
	Seek(seconds float64) error
	SkipToIndex(index int) error
	SkipToNext() error
	SkipToPrevious() error
	AddToUpNext(items []models.TrackItem) error
	PlayNext(items []models.TrackItem) error
	SetRepeatMode(mode models.RepeatMode) error

	CreatePlaylist(id string, items []models.TrackItem) error
	LoadPlaylist(id string) error

	Subscribe(kind EventKind, handler Handler) Subscription
}
