package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofrs/flock"

	"github.com/desertthunder/agin/internal/engine"
	"github.com/desertthunder/agin/internal/models"
	"github.com/desertthunder/agin/internal/shared"
)

const (
	defaultMaxConcurrent    = 3
	defaultProgressInterval = 250 * time.Millisecond
	defaultRetryBackoff     = time.Second
	partialDir              = ".partial"
	artworkDir              = "artwork"
	lockFile                = ".agin.lock"
)

var (
	errPaused    = errors.New("download paused")
	errCancelled = errors.New("download cancelled")
	errShutdown  = errors.New("engine shutting down")
)

// Store persists completed downloads.
type Store interface {
	Save(track models.DownloadedTrack) error
	Get(trackID string) (models.DownloadedTrack, error)
	List(playlistID string) ([]models.DownloadedTrack, error)
	Delete(trackID string) error
	DeleteAll() (int, error)
	Storage() (models.StorageInfo, error)
}

// Options configures a [Manager].
type Options struct {
	Dir              string
	Store            Store
	HTTPClient       *http.Client
	Logger           *log.Logger
	ProgressInterval time.Duration
	RetryBackoff     time.Duration
}

// Manager runs downloads in the background and reports through an [engine.Bus].
type Manager struct {
	dir              string
	store            Store
	client           *http.Client
	logger           *log.Logger
	bus              *engine.Bus
	lock             *flock.Flock
	progressInterval time.Duration
	retryBackoff     time.Duration

	mu         sync.Mutex
	cfg        engine.DownloadOptions
	slots      chan struct{}
	jobs       map[string]*job
	byTrack    map[string]string
	downloaded map[string]bool
	seq        uint64
	locked     bool
	closed     bool
	wg         sync.WaitGroup
}

type job struct {
	id         string
	trackID    string
	playlistID string
	item       models.TrackItem
	seq        uint64

	state    models.DownloadState
	written  int64
	total    int64
	attempts int
	running  bool
	cancel   context.CancelCauseFunc
}

func (j *job) progress() models.DownloadProgress {
	p := models.DownloadProgress{
		DownloadID:      j.id,
		TrackID:         j.trackID,
		BytesDownloaded: j.written,
		TotalBytes:      j.total,
		State:           j.state,
	}
	if j.total > 0 {
		p.Progress = float64(j.written) / float64(j.total)
	}
	return p
}

// New creates a Manager writing into opts.Dir.
func New(opts Options) (*Manager, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("%w: downloads directory is required", shared.ErrInvalidArgument)
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: store is required", shared.ErrInvalidArgument)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = defaultProgressInterval
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}

	for _, dir := range []string{opts.Dir, filepath.Join(opts.Dir, partialDir), filepath.Join(opts.Dir, artworkDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	m := &Manager{
		dir:              opts.Dir,
		store:            opts.Store,
		client:           opts.HTTPClient,
		logger:           opts.Logger,
		bus:              engine.NewBus(),
		lock:             flock.New(filepath.Join(opts.Dir, lockFile)),
		progressInterval: opts.ProgressInterval,
		retryBackoff:     opts.RetryBackoff,
		jobs:             make(map[string]*job),
		byTrack:          make(map[string]string),
		downloaded:       make(map[string]bool),
	}
	m.applyConfig(engine.DownloadOptions{MaxConcurrent: defaultMaxConcurrent, PlaybackSource: "auto"})
	return m, nil
}

func (m *Manager) applyConfig(opts engine.DownloadOptions) {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	m.cfg = opts
	m.slots = make(chan struct{}, opts.MaxConcurrent)
}

// Configure replaces the engine options. Transfers already holding a slot keep it.
func (m *Manager) Configure(opts engine.DownloadOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.applyConfig(opts)
	m.logger.Debug("download engine configured",
		"max_concurrent", m.cfg.MaxConcurrent,
		"auto_retry", m.cfg.AutoRetry,
		"max_retry_attempts", m.cfg.MaxRetryAttempts,
		"artwork", m.cfg.DownloadArtwork,
		"background", m.cfg.BackgroundDownloads,
	)
	return nil
}

// Subscribe registers handler for engine events.
func (m *Manager) Subscribe(kind engine.EventKind, handler engine.Handler) engine.Subscription {
	return m.bus.Subscribe(kind, handler)
}

// SyncDownloads takes the directory lock, then drops rows whose file no longer exists.
func (m *Manager) SyncDownloads(ctx context.Context) error {
	m.mu.Lock()
	if !m.locked {
		ok, err := m.lock.TryLock()
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("failed to lock downloads directory: %w", err)
		}
		if !ok {
			m.mu.Unlock()
			return shared.ErrDirectoryLocked
		}
		m.locked = true
	}
	m.mu.Unlock()

	tracks, err := m.store.List("")
	if err != nil {
		return err
	}

	present := make(map[string]bool, len(tracks))
	for _, t := range tracks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := os.Stat(t.FilePath); err != nil {
			m.logger.Warn("dropping download with missing file", "track", t.TrackID, "path", t.FilePath)
			if err := m.store.Delete(t.TrackID); err != nil {
				return err
			}
			continue
		}
		present[t.TrackID] = true
	}

	m.mu.Lock()
	m.downloaded = present
	m.mu.Unlock()
	return nil
}

func (m *Manager) IsTrackDownloaded(trackID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.downloaded[trackID]
}

func (m *Manager) IsDownloading(trackID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byTrack[trackID]
	return ok
}

// GetActiveDownloads lists pending, downloading and paused transfers in submission order.
func (m *Manager) GetActiveDownloads() []models.DownloadProgress {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobs := make([]*job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.state.IsActive() {
			jobs = append(jobs, j)
		}
	}
	slices.SortFunc(jobs, func(a, b *job) int { return int(a.seq) - int(b.seq) })

	out := make([]models.DownloadProgress, len(jobs))
	for i, j := range jobs {
		out[i] = j.progress()
	}
	return out
}

func (m *Manager) GetDownloadedTracks() ([]models.DownloadedTrack, error) {
	return m.store.List("")
}

func (m *Manager) GetStorageInfo() (models.StorageInfo, error) {
	return m.store.Storage()
}

// DownloadTrack queues one transfer and returns its download id.
func (m *Manager) DownloadTrack(ctx context.Context, item models.TrackItem, playlistID string) (string, error) {
	m.mu.Lock()
	j, err := m.enqueueLocked(item, playlistID)
	m.mu.Unlock()
	if err != nil {
		return "", err
	}

	m.publishState(j.id, j.trackID, models.DownloadPending, nil)
	m.start(j)
	return j.id, nil
}

// DownloadPlaylist queues every item not already downloaded or downloading.
func (m *Manager) DownloadPlaylist(ctx context.Context, playlistID string, items []models.TrackItem) ([]string, error) {
	var queued []*job

	m.mu.Lock()
	for _, item := range items {
		j, err := m.enqueueLocked(item, playlistID)
		if errors.Is(err, shared.ErrAlreadyDownloaded) || errors.Is(err, shared.ErrAlreadyDownloading) {
			continue
		}
		if err != nil {
			m.mu.Unlock()
			return nil, err
		}
		queued = append(queued, j)
	}
	m.mu.Unlock()

	ids := make([]string, len(queued))
	for i, j := range queued {
		ids[i] = j.id
		m.publishState(j.id, j.trackID, models.DownloadPending, nil)
		m.start(j)
	}
	return ids, nil
}

func (m *Manager) enqueueLocked(item models.TrackItem, playlistID string) (*job, error) {
	switch {
	case m.closed:
		return nil, shared.ErrEngineClosed
	case item.ID == "" || item.URL == "":
		return nil, fmt.Errorf("%w: track id and url are required", shared.ErrInvalidArgument)
	case m.downloaded[item.ID]:
		return nil, fmt.Errorf("%w: %s", shared.ErrAlreadyDownloaded, item.ID)
	}
	if _, ok := m.byTrack[item.ID]; ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrAlreadyDownloading, item.ID)
	}

	m.seq++
	j := &job{
		id:         shared.GenerateID(),
		trackID:    item.ID,
		playlistID: playlistID,
		item:       item,
		seq:        m.seq,
		state:      models.DownloadPending,
	}
	m.jobs[j.id] = j
	m.byTrack[j.trackID] = j.id
	return j, nil
}

func (m *Manager) PauseDownload(ctx context.Context, downloadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.jobLocked(downloadID)
	if err != nil {
		return err
	}
	if !j.running || (j.state != models.DownloadPending && j.state != models.DownloadDownloading) {
		return fmt.Errorf("%w: cannot pause %s download", shared.ErrInvalidState, j.state)
	}
	j.cancel(errPaused)
	return nil
}

func (m *Manager) ResumeDownload(ctx context.Context, downloadID string) error {
	m.mu.Lock()
	j, err := m.jobLocked(downloadID)
	if err == nil && (j.state != models.DownloadPaused || j.running) {
		err = fmt.Errorf("%w: cannot resume %s download", shared.ErrInvalidState, j.state)
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.start(j)
	return nil
}

func (m *Manager) CancelDownload(ctx context.Context, downloadID string) error {
	m.mu.Lock()
	j, err := m.jobLocked(downloadID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if j.running {
		j.cancel(errCancelled)
		m.mu.Unlock()
		return nil
	}
	m.forgetLocked(j)
	m.mu.Unlock()

	m.discardPartial(j)
	m.publishState(j.id, j.trackID, models.DownloadCancelled, nil)
	return nil
}

// RetryDownload restarts a failed transfer with a fresh attempt budget.
func (m *Manager) RetryDownload(ctx context.Context, downloadID string) error {
	m.mu.Lock()
	j, err := m.jobLocked(downloadID)
	if err == nil && j.state != models.DownloadFailed {
		err = fmt.Errorf("%w: cannot retry %s download", shared.ErrInvalidState, j.state)
	}
	if err == nil {
		if other, ok := m.byTrack[j.trackID]; ok && other != j.id {
			err = fmt.Errorf("%w: %s", shared.ErrAlreadyDownloading, j.trackID)
		} else if m.downloaded[j.trackID] {
			err = fmt.Errorf("%w: %s", shared.ErrAlreadyDownloaded, j.trackID)
		}
	}
	if err == nil {
		j.attempts = 0
		j.state = models.DownloadPending
		m.byTrack[j.trackID] = j.id
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.publishState(j.id, j.trackID, models.DownloadPending, nil)
	m.start(j)
	return nil
}

func (m *Manager) DeleteTrack(ctx context.Context, trackID string) error {
	track, err := m.store.Get(trackID)
	if err != nil {
		return err
	}

	removeFile(m.logger, track.FilePath)
	removeFile(m.logger, track.ArtworkPath)
	if err := m.store.Delete(trackID); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.downloaded, trackID)
	m.mu.Unlock()
	return nil
}

func (m *Manager) DeleteAll(ctx context.Context) error {
	tracks, err := m.store.List("")
	if err != nil {
		return err
	}
	for _, t := range tracks {
		removeFile(m.logger, t.FilePath)
		removeFile(m.logger, t.ArtworkPath)
	}
	if _, err := m.store.DeleteAll(); err != nil {
		return err
	}

	m.mu.Lock()
	m.downloaded = make(map[string]bool)
	m.mu.Unlock()
	return nil
}

// Close stops running transfers, leaving their partial files for a later resume,
// and releases the directory lock.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	for _, j := range m.jobs {
		if j.running {
			j.cancel(errShutdown)
		}
	}
	m.mu.Unlock()

	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked {
		m.locked = false
		return m.lock.Unlock()
	}
	return nil
}

func (m *Manager) jobLocked(downloadID string) (*job, error) {
	j, ok := m.jobs[downloadID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrDownloadNotFound, downloadID)
	}
	return j, nil
}

func (m *Manager) forgetLocked(j *job) {
	delete(m.jobs, j.id)
	if m.byTrack[j.trackID] == j.id {
		delete(m.byTrack, j.trackID)
	}
}

func (m *Manager) publishState(downloadID, trackID string, state models.DownloadState, err error) {
	m.bus.Publish(engine.StateChangeEvent{DownloadID: downloadID, TrackID: trackID, State: state, Err: err})
}

func (m *Manager) publishProgress(j *job) {
	m.mu.Lock()
	p := j.progress()
	m.mu.Unlock()
	m.bus.Publish(engine.ProgressEvent{Progress: p})
}

func removeFile(logger *log.Logger, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to remove file", "path", path, "err", err)
	}
}
