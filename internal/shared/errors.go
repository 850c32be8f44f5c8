package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Catalog errors
	ErrServerResponse   = fmt.Errorf("server returned an error")
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrTrackNotFound    = fmt.Errorf("track not found")
	ErrPlaylistNotFound = fmt.Errorf("playlist not found")
	ErrAlbumNotFound    = fmt.Errorf("album not found")
	ErrCacheMiss        = fmt.Errorf("cache miss")

	// Download errors
	ErrAlreadyDownloaded  = fmt.Errorf("track already downloaded")
	ErrAlreadyDownloading = fmt.Errorf("track already downloading")
	ErrDownloadNotFound   = fmt.Errorf("download not found")
	ErrInvalidState       = fmt.Errorf("invalid download state")
	ErrDirectoryLocked    = fmt.Errorf("downloads directory is locked by another process")

	// Playback errors
	ErrIndexOutOfRange = fmt.Errorf("queue index out of range")
	ErrNoActiveTrack   = fmt.Errorf("no active track")

	ErrEngineClosed = fmt.Errorf("engine closed")

	// Input validation errors
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
