package downloads

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/agin/internal/engine"
	"github.com/desertthunder/agin/internal/models"
	"github.com/desertthunder/agin/internal/notify"
	"github.com/desertthunder/agin/internal/shared"
)

const (
	DefaultFlushInterval   = 500 * time.Millisecond
	DefaultCompletionHold  = 800 * time.Millisecond
	DefaultRefreshDebounce = 100 * time.Millisecond
)

// Catalog resolves track ids to metadata.
type Catalog interface {
	FetchChild(ctx context.Context, id string, forceRefresh bool) (*models.Child, error)
}

// ItemBuilder turns a catalog track into a download descriptor.
type ItemBuilder interface {
	ForDownload(c models.Child) models.TrackItem
}

// Options wires a [Coordinator].
type Options struct {
	Engine   engine.DownloadEngine
	Catalog  Catalog
	Items    ItemBuilder
	Notifier notify.Notifier
	Clock    shared.Clock
	Logger   *log.Logger

	// EngineOptions is passed to Configure on Start.
	EngineOptions engine.DownloadOptions

	FlushInterval   time.Duration
	CompletionHold  time.Duration
	RefreshDebounce time.Duration
}

// Snapshot is an immutable view of the coordinator state. Maps must not be modified.
type Snapshot struct {
	Version    uint64
	Progress   map[string]models.DownloadProgress
	Metadata   map[string]models.Child
	Active     []models.DownloadProgress
	Downloaded []models.DownloadedTrack
	Storage    models.StorageInfo
}

// IsDownloading reports whether any transfer is in the active view.
func (s Snapshot) IsDownloading() bool { return len(s.Active) > 0 }

// FormattedSize renders the storage total, e.g. "42 MiB".
func (s Snapshot) FormattedSize() string { return shared.FormatBytes(s.Storage.TotalBytes) }

// Title returns the metadata title for trackID or a fallback label.
func (s Snapshot) Title(trackID string) string {
	if c, ok := s.Metadata[trackID]; ok && c.Title != "" {
		return c.Title
	}
	return "Downloading..."
}

// Coordinator drives a [engine.DownloadEngine] and publishes [Snapshot] values.
type Coordinator struct {
	engine     engine.DownloadEngine
	catalog    Catalog
	items      ItemBuilder
	notifier   notify.Notifier
	clock      shared.Clock
	logger     *log.Logger
	engineOpts engine.DownloadOptions

	flushInterval   time.Duration
	completionHold  time.Duration
	refreshDebounce time.Duration

	mu            sync.Mutex
	progress      map[string]models.DownloadProgress
	metadata      map[string]models.Child
	order         map[string]uint64
	orderSeq      uint64
	buffer        map[string]models.DownloadProgress
	flushTimer    shared.Timer
	refreshTimer  shared.Timer
	holds         map[string]shared.Timer
	inFlight      map[string]struct{}
	unresolvable  map[string]struct{}
	downloaded    []models.DownloadedTrack
	downloadedSet map[string]bool
	storage       models.StorageInfo
	version       uint64
	snap          Snapshot
	subs          []engine.Subscription
	closed        bool

	listeners shared.Listeners[Snapshot]
	fetches   sync.WaitGroup
}

// New creates a Coordinator. Engine, Catalog and Items are required.
func New(opts Options) (*Coordinator, error) {
	if opts.Engine == nil || opts.Catalog == nil || opts.Items == nil {
		return nil, fmt.Errorf("%w: engine, catalog and item builder are required", shared.ErrInvalidArgument)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewLogNotifier(opts.Logger)
	}
	if opts.Clock == nil {
		opts.Clock = shared.SystemClock{}
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.CompletionHold <= 0 {
		opts.CompletionHold = DefaultCompletionHold
	}
	if opts.RefreshDebounce <= 0 {
		opts.RefreshDebounce = DefaultRefreshDebounce
	}

	c := &Coordinator{
		engine:          opts.Engine,
		catalog:         opts.Catalog,
		items:           opts.Items,
		notifier:        opts.Notifier,
		clock:           opts.Clock,
		logger:          opts.Logger.With("component", "downloads"),
		engineOpts:      opts.EngineOptions,
		flushInterval:   opts.FlushInterval,
		completionHold:  opts.CompletionHold,
		refreshDebounce: opts.RefreshDebounce,
		progress:        map[string]models.DownloadProgress{},
		metadata:        map[string]models.Child{},
		order:           map[string]uint64{},
		buffer:          map[string]models.DownloadProgress{},
		holds:           map[string]shared.Timer{},
		inFlight:        map[string]struct{}{},
		unresolvable:    map[string]struct{}{},
		downloadedSet:   map[string]bool{},
	}
	c.snap = c.buildSnapshotLocked()
	return c, nil
}

// Start configures and syncs the engine, subscribes to its events, adopts transfers
// the engine already knows about and loads the downloaded list.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.engine.Configure(c.engineOpts); err != nil {
		return fmt.Errorf("configure download engine: %w", err)
	}
	if err := c.engine.SyncDownloads(ctx); err != nil {
		return fmt.Errorf("sync downloads: %w", err)
	}

	subs := []engine.Subscription{
		c.engine.Subscribe(engine.EventDownloadProgress, c.handle),
		c.engine.Subscribe(engine.EventDownloadStateChange, c.handle),
		c.engine.Subscribe(engine.EventDownloadComplete, c.handle),
	}

	c.mu.Lock()
	c.subs = append(c.subs, subs...)
	changed := false
	for _, p := range c.engine.GetActiveDownloads() {
		if _, ok := c.progress[p.TrackID]; ok || p.State.IsTerminal() {
			continue
		}
		c.setProgressLocked(p)
		changed = true
	}
	snap, ok := c.commitLocked(changed)
	c.mu.Unlock()

	c.deliver(snap, ok)
	c.Refresh()
	return nil
}

// Close unsubscribes from the engine, applies buffered progress and pending
// completion holds immediately, and waits for in-flight metadata lookups.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}

	c.mu.Lock()
	if c.flushTimer != nil {
		c.flushTimer.Stop()
		c.flushTimer = nil
	}
	changed := c.applyBufferLocked()
	released := len(c.holds) > 0
	for id, t := range c.holds {
		t.Stop()
		delete(c.holds, id)
		c.removeLocked(id)
		changed = true
	}
	pending := c.refreshTimer != nil
	if pending {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
	snap, ok := c.commitLocked(changed)
	c.mu.Unlock()

	c.deliver(snap, ok)
	if released || pending {
		c.Refresh()
	}
	c.fetches.Wait()
}

// Subscribe registers listener for every published snapshot and returns a function
// that removes it. Listeners may be called from engine and timer goroutines.
func (c *Coordinator) Subscribe(listener func(Snapshot)) func() {
	return c.listeners.Add(listener)
}

// Snapshot returns the latest published state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// IsTrackDownloaded reports whether trackID is in the downloaded list.
func (c *Coordinator) IsTrackDownloaded(trackID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.downloadedSet[trackID]
}

// GetTrackProgress returns the published progress record for trackID.
func (c *Coordinator) GetTrackProgress(trackID string) (models.DownloadProgress, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.progress[trackID]
	return p, ok
}

// GetDownloadingMeta returns the metadata recorded for an active trackID.
func (c *Coordinator) GetDownloadingMeta(trackID string) (models.Child, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.metadata[trackID]
	return m, ok
}

// Refresh reloads the downloaded list and storage totals from the engine.
func (c *Coordinator) Refresh() {
	tracks, err := c.engine.GetDownloadedTracks()
	if err != nil {
		c.logger.Warn("failed to load downloaded tracks", "err", err)
		return
	}
	storage, err := c.engine.GetStorageInfo()
	if err != nil {
		c.logger.Warn("failed to load storage info", "err", err)
		return
	}

	set := make(map[string]bool, len(tracks))
	for _, t := range tracks {
		set[t.TrackID] = true
	}

	c.mu.Lock()
	c.downloaded = tracks
	c.downloadedSet = set
	c.storage = storage
	snap, ok := c.commitLocked(true)
	c.mu.Unlock()

	c.deliver(snap, ok)
}

func (c *Coordinator) setProgressLocked(p models.DownloadProgress) {
	next := maps.Clone(c.progress)
	next[p.TrackID] = p
	c.progress = next

	if _, ok := c.order[p.TrackID]; !ok {
		c.orderSeq++
		c.order[p.TrackID] = c.orderSeq
	}
}

func (c *Coordinator) setMetadataLocked(trackID string, child models.Child) {
	next := maps.Clone(c.metadata)
	next[trackID] = child
	c.metadata = next
}

func (c *Coordinator) deleteMetadataLocked(trackID string) bool {
	if _, ok := c.metadata[trackID]; !ok {
		return false
	}
	next := maps.Clone(c.metadata)
	delete(next, trackID)
	c.metadata = next
	return true
}

// removeLocked drops every trace of trackID from the active view.
func (c *Coordinator) removeLocked(trackID string) bool {
	delete(c.buffer, trackID)
	delete(c.order, trackID)

	removed := c.deleteMetadataLocked(trackID)
	if _, ok := c.progress[trackID]; ok {
		next := maps.Clone(c.progress)
		delete(next, trackID)
		c.progress = next
		removed = true
	}
	return removed
}

// commitLocked bumps the version and rebuilds the snapshot when changed is true.
func (c *Coordinator) commitLocked(changed bool) (Snapshot, bool) {
	if !changed {
		return Snapshot{}, false
	}
	c.version++
	c.snap = c.buildSnapshotLocked()
	return c.snap, true
}

func (c *Coordinator) buildSnapshotLocked() Snapshot {
	active := make([]models.DownloadProgress, 0, len(c.progress))
	for _, p := range c.progress {
		if p.State.IsActive() {
			active = append(active, p)
		}
	}
	slices.SortFunc(active, func(a, b models.DownloadProgress) int {
		return cmp.Compare(c.order[a.TrackID], c.order[b.TrackID])
	})

	return Snapshot{
		Version:    c.version,
		Progress:   c.progress,
		Metadata:   c.metadata,
		Active:     active,
		Downloaded: c.downloaded,
		Storage:    c.storage,
	}
}

// deliver hands snap to listeners unless a newer snapshot already went out, then
// starts metadata lookups for any tracks that need them.
func (c *Coordinator) deliver(snap Snapshot, ok bool) {
	if !ok {
		return
	}
	if c.listeners.Notify(snap.Version, snap) {
		c.ResolveMetadata()
	}
}

func (c *Coordinator) notify(n notify.Notice) {
	if c.notifier != nil {
		c.notifier.Notify(n)
	}
}
