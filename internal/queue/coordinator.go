package queue

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/agin/internal/engine"
	"github.com/desertthunder/agin/internal/models"
	"github.com/desertthunder/agin/internal/notify"
	"github.com/desertthunder/agin/internal/services"
	"github.com/desertthunder/agin/internal/shared"
)

const (
	DefaultPlaylistID       = "agin-queue"
	DefaultRestartThreshold = 5 * time.Second
	DefaultClearDelay       = 500 * time.Millisecond
)

// Catalog is the subset of [services.Catalog] the queue needs.
type Catalog interface {
	FetchChild(ctx context.Context, id string, forceRefresh bool) (*models.Child, error)
	Star(ctx context.Context, id string, kind services.StarKind) error
	Unstar(ctx context.Context, id string, kind services.StarKind) error
	Scrobble(ctx context.Context, id string) error
}

// ItemBuilder turns a catalog track into a playable item.
type ItemBuilder interface {
	ForPlayback(c models.Child) models.TrackItem
}

// Options wires a [Coordinator].
type Options struct {
	Engine    engine.PlaybackEngine
	Catalog   Catalog
	Items     ItemBuilder
	Notifier  notify.Notifier
	Confirmer notify.Confirmer
	Clock     shared.Clock
	Logger    *log.Logger
	// Rand shuffles queues. A nil Rand uses the global source.
	Rand *rand.Rand

	PlaylistID string
	// SkipBackward restarts the current track when the position is past RestartThreshold.
	RestartThreshold time.Duration
	ClearDelay       time.Duration
	Scrobble         bool
}

// Snapshot is an immutable view of the queue. Slices must not be modified.
type Snapshot struct {
	Version     uint64
	Queue       []models.QueueItem
	NowPlaying  models.Child
	ActiveIndex int
	Source      models.QueueSource
	RepeatMode  models.RepeatMode
	Position    float64
	Duration    float64
	Playing     bool
}

// CanGoForward reports whether an entry follows the active one.
func (s Snapshot) CanGoForward() bool {
	return s.ActiveIndex >= 0 && s.ActiveIndex < len(s.Queue)-1
}

// CanGoBackward reports whether a track is playing.
func (s Snapshot) CanGoBackward() bool { return s.NowPlaying.ID != "" }

// ReplaceOptions control [Coordinator.Replace].
type ReplaceOptions struct {
	InitialIndex int
	// Source replaces the displayed provenance when its kind is set.
	Source  models.QueueSource
	Shuffle bool
}

// ClearOptions control [Coordinator.ClearConfirm].
type ClearOptions struct {
	// Wait pauses playback, calls OnConfirm and waits the clear delay before clearing.
	Wait      bool
	OnConfirm func()
}

// Coordinator serializes queue mutations against a [engine.PlaybackEngine].
type Coordinator struct {
	engine    engine.PlaybackEngine
	catalog   Catalog
	items     ItemBuilder
	notifier  notify.Notifier
	confirmer notify.Confirmer
	clock     shared.Clock
	logger    *log.Logger
	rand      *rand.Rand

	playlistID       string
	restartThreshold time.Duration
	clearDelay       time.Duration
	scrobble         bool

	// op serializes mutations. Engine calls made under it may emit track changes
	// synchronously, so event handlers only take mu.
	op sync.Mutex

	mu         sync.Mutex
	queue      []models.QueueItem
	nowPlaying models.Child
	active     int
	source     models.QueueSource
	repeat     models.RepeatMode
	position   float64
	duration   float64
	playing    bool
	stars      map[string]*time.Time
	scrobbled  string
	version    uint64
	snap       Snapshot
	subs       []engine.Subscription
	closed     bool

	listeners shared.Listeners[Snapshot]
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
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
	if opts.Confirmer == nil {
		opts.Confirmer = notify.Static(true)
	}
	if opts.Clock == nil {
		opts.Clock = shared.SystemClock{}
	}
	if opts.PlaylistID == "" {
		opts.PlaylistID = DefaultPlaylistID
	}
	if opts.RestartThreshold <= 0 {
		opts.RestartThreshold = DefaultRestartThreshold
	}
	if opts.ClearDelay <= 0 {
		opts.ClearDelay = DefaultClearDelay
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		engine:           opts.Engine,
		catalog:          opts.Catalog,
		items:            opts.Items,
		notifier:         opts.Notifier,
		confirmer:        opts.Confirmer,
		clock:            opts.Clock,
		logger:           opts.Logger.With("component", "queue"),
		rand:             opts.Rand,
		playlistID:       opts.PlaylistID,
		restartThreshold: opts.RestartThreshold,
		clearDelay:       opts.ClearDelay,
		scrobble:         opts.Scrobble,
		active:           -1,
		source:           models.QueueSource{Source: models.SourceNone},
		stars:            map[string]*time.Time{},
		ctx:              ctx,
		cancel:           cancel,
	}
	c.snap = c.buildSnapshotLocked()
	return c, nil
}

// Start turns repeat off, subscribes to engine events and reads the engine state.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.ChangeRepeatMode(models.RepeatOff); err != nil {
		return err
	}

	subs := []engine.Subscription{
		c.engine.Subscribe(engine.EventTrackChange, c.handle),
		c.engine.Subscribe(engine.EventPlaybackProgress, c.handle),
	}
	c.mu.Lock()
	c.subs = append(c.subs, subs...)
	c.mu.Unlock()

	c.refresh()
	return nil
}

// Close unsubscribes from the engine and waits for pending scrobbles.
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
	c.cancel()
	c.wg.Wait()
}

// Subscribe registers listener for every published snapshot and returns a function
// that removes it. Listeners run while a mutation may be in progress and must not
// call mutating methods synchronously.
func (c *Coordinator) Subscribe(listener func(Snapshot)) func() {
	return c.listeners.Add(listener)
}

// Snapshot returns the latest published state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

func (c *Coordinator) CanGoForward() bool  { return c.Snapshot().CanGoForward() }
func (c *Coordinator) CanGoBackward() bool { return c.Snapshot().CanGoBackward() }

func (c *Coordinator) handle(e engine.Event) {
	switch ev := e.(type) {
	case engine.TrackChangeEvent:
		c.refresh()
	case engine.PlaybackProgressEvent:
		c.mu.Lock()
		c.position, c.duration = ev.Position, ev.Duration
		snap := c.commitLocked()
		c.mu.Unlock()
		c.listeners.Notify(snap.Version, snap)
	}
}

// refresh replaces local state with the engine's actual queue and active entry.
func (c *Coordinator) refresh() {
	state, err := c.engine.GetState()
	if err != nil {
		c.logger.Warn("failed to read player state", "err", err)
		return
	}
	items, err := c.engine.GetActualQueue()
	if err != nil {
		c.logger.Warn("failed to read player queue", "err", err)
		return
	}

	c.mu.Lock()
	queue := make([]models.QueueItem, len(items))
	for i, item := range items {
		q := models.NewQueueItem(item)
		if starred, ok := c.stars[q.Child.ID]; ok {
			q.Child.Starred = starred
		}
		queue[i] = q
	}

	c.queue = queue
	c.active = state.CurrentIndex
	c.position, c.duration, c.playing = state.Position, state.Duration, state.Playing
	if state.CurrentIndex >= 0 && state.CurrentIndex < len(queue) {
		c.nowPlaying = queue[state.CurrentIndex].Child
	} else {
		c.active = -1
		c.nowPlaying = models.Child{}
	}

	scrobble := ""
	if c.scrobble && !c.closed && c.nowPlaying.ID != "" && c.nowPlaying.ID != c.scrobbled {
		scrobble = c.nowPlaying.ID
		c.scrobbled = scrobble
		c.wg.Add(1)
	}
	snap := c.commitLocked()
	c.mu.Unlock()

	c.listeners.Notify(snap.Version, snap)
	if scrobble != "" {
		go c.submitScrobble(scrobble)
	}
}

func (c *Coordinator) submitScrobble(id string) {
	defer c.wg.Done()
	if err := c.catalog.Scrobble(c.ctx, id); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("scrobble failed", "track", id, "err", err)
	}
}

func (c *Coordinator) commitLocked() Snapshot {
	c.version++
	c.snap = c.buildSnapshotLocked()
	return c.snap
}

func (c *Coordinator) buildSnapshotLocked() Snapshot {
	return Snapshot{
		Version:     c.version,
		Queue:       c.queue,
		NowPlaying:  c.nowPlaying,
		ActiveIndex: c.active,
		Source:      c.source,
		RepeatMode:  c.repeat,
		Position:    c.position,
		Duration:    c.duration,
		Playing:     c.playing,
	}
}

// applyStarLocked overrides the starred value of id in the published state.
func (c *Coordinator) applyStarLocked(id string, starred *time.Time) {
	c.stars[id] = starred

	queue := slices.Clone(c.queue)
	for i := range queue {
		if queue[i].Child.ID == id {
			queue[i].Child.Starred = starred
		}
	}
	c.queue = queue
	if c.nowPlaying.ID == id {
		c.nowPlaying.Starred = starred
	}
}

func (c *Coordinator) notify(n notify.Notice) {
	if c.notifier != nil {
		c.notifier.Notify(n)
	}
}
