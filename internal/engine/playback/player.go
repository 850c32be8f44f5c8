// Package playback is a headless [engine.PlaybackEngine].
//
// It keeps the named playlists, the actual play queue, the active index and a
// position clock, and emits track-change and progress events. No audio is produced;
// position only moves when [Engine.Advance] is called, either by [Engine.Run] or a test.
package playback

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/agin/internal/engine"
	"github.com/desertthunder/agin/internal/models"
	"github.com/desertthunder/agin/internal/shared"
)

// Track change reasons.
const (
	ReasonLoad   = "load"
	ReasonPlay   = "play"
	ReasonSkip   = "skip"
	ReasonEnd    = "end"
	ReasonRepeat = "repeat"
)

// Engine is an in-memory player.
type Engine struct {
	bus    *engine.Bus
	logger *log.Logger

	mu        sync.Mutex
	playlists map[string][]models.TrackItem
	queue     []models.TrackItem
	current   int
	position  float64
	playing   bool
	repeat    models.RepeatMode
}

// New creates an empty player.
func New(logger *log.Logger) *Engine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Engine{
		bus:       engine.NewBus(),
		logger:    logger,
		playlists: make(map[string][]models.TrackItem),
		current:   -1,
	}
}

func (e *Engine) Subscribe(kind engine.EventKind, handler engine.Handler) engine.Subscription {
	return e.bus.Subscribe(kind, handler)
}

func (e *Engine) GetState() (engine.PlayerState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := engine.PlayerState{CurrentIndex: e.current, Position: e.position, Playing: e.playing}
	if e.current >= 0 {
		s.Duration = e.queue[e.current].Duration
	}
	return s, nil
}

func (e *Engine) GetActualQueue() ([]models.TrackItem, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.queue), nil
}

// Play starts playback, activating the first entry when nothing is active.
func (e *Engine) Play() error {
	e.mu.Lock()
	var ev *engine.TrackChangeEvent
	if e.current < 0 && len(e.queue) > 0 {
		ev = e.moveLocked(0, ReasonPlay)
	}
	e.playing = e.current >= 0
	e.mu.Unlock()

	e.emit(ev)
	return nil
}

func (e *Engine) Pause() error {
	e.mu.Lock()
	e.playing = false
	e.mu.Unlock()
	return nil
}

// Seek moves within the active track, clamped to its duration.
func (e *Engine) Seek(seconds float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current < 0 {
		return shared.ErrNoActiveTrack
	}
	seconds = max(seconds, 0)
	if d := e.queue[e.current].Duration; d > 0 {
		seconds = min(seconds, d)
	}
	e.position = seconds
	return nil
}

func (e *Engine) SkipToIndex(index int) error {
	e.mu.Lock()
	if index < 0 || index >= len(e.queue) {
		e.mu.Unlock()
		return fmt.Errorf("%w: %d of %d", shared.ErrIndexOutOfRange, index, len(e.queue))
	}
	ev := e.moveLocked(index, ReasonSkip)
	e.mu.Unlock()

	e.emit(ev)
	return nil
}

// SkipToNext advances, wrapping only under playlist repeat. At the end of the queue it is a no-op.
func (e *Engine) SkipToNext() error {
	e.mu.Lock()
	var ev *engine.TrackChangeEvent
	switch {
	case e.current+1 < len(e.queue):
		ev = e.moveLocked(e.current+1, ReasonSkip)
	case e.repeat == models.RepeatPlaylist && len(e.queue) > 0:
		ev = e.moveLocked(0, ReasonSkip)
	}
	e.mu.Unlock()

	e.emit(ev)
	return nil
}

// SkipToPrevious steps back one entry, or restarts the first entry.
func (e *Engine) SkipToPrevious() error {
	e.mu.Lock()
	var ev *engine.TrackChangeEvent
	if e.current > 0 {
		ev = e.moveLocked(e.current-1, ReasonSkip)
	} else {
		e.position = 0
	}
	e.mu.Unlock()

	e.emit(ev)
	return nil
}

// AddToUpNext appends items to the end of the queue.
func (e *Engine) AddToUpNext(items []models.TrackItem) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = append(e.queue, items...)
	return nil
}

// PlayNext inserts items directly after the active entry.
func (e *Engine) PlayNext(items []models.TrackItem) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = slices.Insert(e.queue, e.current+1, items...)
	return nil
}

func (e *Engine) SetRepeatMode(mode models.RepeatMode) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.repeat = mode
	return nil
}

// RepeatMode returns the current repeat setting.
func (e *Engine) RepeatMode() models.RepeatMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.repeat
}

// CreatePlaylist stores items under id, replacing any previous contents.
func (e *Engine) CreatePlaylist(id string, items []models.TrackItem) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playlists[id] = slices.Clone(items)
	return nil
}

// LoadPlaylist makes playlist id the actual queue and activates its first entry.
func (e *Engine) LoadPlaylist(id string) error {
	e.mu.Lock()
	items, ok := e.playlists[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}

	e.queue = slices.Clone(items)
	var ev *engine.TrackChangeEvent
	if len(e.queue) > 0 {
		ev = e.moveLocked(0, ReasonLoad)
	} else {
		e.current, e.position, e.playing = -1, 0, false
		ev = &engine.TrackChangeEvent{Index: -1, Reason: ReasonLoad}
	}
	e.mu.Unlock()

	e.emit(ev)
	return nil
}

// Advance moves the position clock by d while playing and handles track end.
func (e *Engine) Advance(d time.Duration) {
	e.mu.Lock()
	if !e.playing || e.current < 0 {
		e.mu.Unlock()
		return
	}

	e.position += d.Seconds()
	duration := e.queue[e.current].Duration

	var ev *engine.TrackChangeEvent
	if duration > 0 && e.position >= duration {
		switch {
		case e.repeat == models.RepeatTrack:
			ev = e.moveLocked(e.current, ReasonRepeat)
		case e.current+1 < len(e.queue):
			ev = e.moveLocked(e.current+1, ReasonEnd)
		case e.repeat == models.RepeatPlaylist:
			ev = e.moveLocked(0, ReasonEnd)
		default:
			e.position = duration
			e.playing = false
		}
	}
	progress := engine.PlaybackProgressEvent{Position: e.position, Duration: e.queue[e.current].Duration}
	e.mu.Unlock()

	e.emit(ev)
	e.bus.Publish(progress)
}

// Run advances the clock every interval until ctx is done.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Advance(interval)
		}
	}
}

func (e *Engine) moveLocked(index int, reason string) *engine.TrackChangeEvent {
	e.current = index
	e.position = 0
	item := e.queue[index]
	e.logger.Debug("track change", "index", index, "track", item.ID, "reason", reason)
	return &engine.TrackChangeEvent{Index: index, Track: &item, Reason: reason}
}

func (e *Engine) emit(ev *engine.TrackChangeEvent) {
	if ev != nil {
		e.bus.Publish(*ev)
	}
}
