package queue

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/desertthunder/agin/internal/models"
	"github.com/desertthunder/agin/internal/notify"
	"github.com/desertthunder/agin/internal/services"
	"github.com/desertthunder/agin/internal/shared"
)

// Replace makes items the whole queue and starts playback at opts.InitialIndex.
func (c *Coordinator) Replace(ctx context.Context, items []models.Child, opts ReplaceOptions) error {
	c.op.Lock()
	defer c.op.Unlock()
	defer c.refresh()

	items = append([]models.Child(nil), items...)
	if opts.Shuffle {
		c.shuffle(items)
	}
	if opts.Source.Source != "" {
		c.mu.Lock()
		c.source = opts.Source
		c.mu.Unlock()
	}

	tracks := make([]models.TrackItem, len(items))
	for i, item := range items {
		tracks[i] = c.items.ForPlayback(item)
	}
	if err := c.load(tracks); err != nil {
		return fmt.Errorf("replace queue: %w", err)
	}
	if opts.InitialIndex > 0 {
		if err := c.engine.SkipToIndex(opts.InitialIndex); err != nil {
			return fmt.Errorf("replace queue: %w", err)
		}
	}
	if err := c.engine.Play(); err != nil {
		return fmt.Errorf("replace queue: %w", err)
	}
	return nil
}

func (c *Coordinator) shuffle(items []models.Child) {
	swap := func(i, j int) { items[i], items[j] = items[j], items[i] }
	if c.rand != nil {
		c.rand.Shuffle(len(items), swap)
		return
	}
	rand.Shuffle(len(items), swap)
}

// SetQueue rebuilds the queue in the order of items. When a track is playing and
// still present, the engine is pointed back at it.
func (c *Coordinator) SetQueue(items []models.QueueItem) error {
	c.op.Lock()
	defer c.op.Unlock()
	defer c.refresh()

	state, err := c.engine.GetState()
	if err != nil {
		return fmt.Errorf("reorder queue: %w", err)
	}
	current, err := c.engine.GetActualQueue()
	if err != nil {
		return fmt.Errorf("reorder queue: %w", err)
	}

	tracks := make([]models.TrackItem, len(items))
	for i, q := range items {
		tracks[i] = q.TrackItem
		tracks[i].Extra = q.Child
	}

	if state.CurrentIndex < 0 || state.CurrentIndex >= len(current) {
		if err := c.load(tracks); err != nil {
			return fmt.Errorf("reorder queue: %w", err)
		}
		return nil
	}

	playing := current[state.CurrentIndex].CatalogTrack().ID
	index := -1
	for i, q := range items {
		if q.Child.ID == playing {
			index = i
			break
		}
	}

	if err := c.load(tracks); err != nil {
		return fmt.Errorf("reorder queue: %w", err)
	}
	if index >= 0 {
		if err := c.engine.SkipToIndex(index); err != nil {
			return fmt.Errorf("reorder queue: %w", err)
		}
	}
	return nil
}

// Add appends track id to the queue, or starts a new queue with it when the
// queue is empty. It reports false when the catalog cannot resolve id.
func (c *Coordinator) Add(ctx context.Context, id string) (bool, error) {
	child, ok := c.fetch(ctx, id)
	if !ok {
		return false, nil
	}

	c.op.Lock()
	defer c.op.Unlock()
	defer c.refresh()

	current, err := c.engine.GetActualQueue()
	if err != nil {
		return false, fmt.Errorf("add %s: %w", id, err)
	}
	item := c.items.ForPlayback(child)
	if len(current) == 0 {
		if err := c.load([]models.TrackItem{item}); err != nil {
			return false, fmt.Errorf("add %s: %w", id, err)
		}
		if err := c.engine.Play(); err != nil {
			return false, fmt.Errorf("add %s: %w", id, err)
		}
		return true, nil
	}
	if err := c.engine.AddToUpNext([]models.TrackItem{item}); err != nil {
		return false, fmt.Errorf("add %s: %w", id, err)
	}
	return true, nil
}

// PlayNext inserts track id directly after the active entry.
func (c *Coordinator) PlayNext(ctx context.Context, id string) (bool, error) {
	child, ok := c.fetch(ctx, id)
	if !ok {
		return false, nil
	}

	c.op.Lock()
	defer c.op.Unlock()
	defer c.refresh()

	if err := c.engine.PlayNext([]models.TrackItem{c.items.ForPlayback(child)}); err != nil {
		return false, fmt.Errorf("play %s next: %w", id, err)
	}
	return true, nil
}

// PlayTrackNow replaces the queue with track id and plays it. A track the catalog
// cannot resolve produces a notice and false rather than an error.
func (c *Coordinator) PlayTrackNow(ctx context.Context, id string) (bool, error) {
	child, ok := c.fetch(ctx, id)
	if !ok {
		c.notify(notify.Notice{
			Title:    "Track Not Found",
			Subtitle: "The track you're trying to play does not exist on this server.",
			Icon:     notify.IconWarning,
			Haptics:  notify.HapticsError,
		})
		return false, nil
	}

	c.op.Lock()
	defer c.op.Unlock()
	defer c.refresh()

	if err := c.load([]models.TrackItem{c.items.ForPlayback(child)}); err != nil {
		return false, fmt.Errorf("play %s: %w", id, err)
	}
	if err := c.engine.Play(); err != nil {
		return false, fmt.Errorf("play %s: %w", id, err)
	}
	return true, nil
}

// fetch resolves id, treating every catalog failure as a miss.
func (c *Coordinator) fetch(ctx context.Context, id string) (models.Child, bool) {
	child, err := c.catalog.FetchChild(ctx, id, false)
	switch {
	case errors.Is(err, shared.ErrTrackNotFound):
		c.logger.Debug("track not found", "track", id)
		return models.Child{}, false
	case err != nil:
		c.logger.Warn("failed to fetch track", "track", id, "err", err)
		return models.Child{}, false
	case child == nil:
		return models.Child{}, false
	}
	return *child, true
}

// JumpTo activates the entry at index.
func (c *Coordinator) JumpTo(index int) error {
	c.op.Lock()
	defer c.op.Unlock()
	defer c.refresh()

	if err := c.engine.SkipToIndex(index); err != nil {
		return fmt.Errorf("jump to %d: %w", index, err)
	}
	return nil
}

// SkipForward moves to the next entry.
func (c *Coordinator) SkipForward() error {
	c.op.Lock()
	defer c.op.Unlock()
	defer c.refresh()

	if err := c.engine.SkipToNext(); err != nil {
		return fmt.Errorf("skip forward: %w", err)
	}
	return nil
}

// SkipBackward restarts the current track once it has played past the restart
// threshold, and moves to the previous entry otherwise.
func (c *Coordinator) SkipBackward() error {
	c.op.Lock()
	defer c.op.Unlock()
	defer c.refresh()

	state, err := c.engine.GetState()
	if err != nil {
		return fmt.Errorf("skip backward: %w", err)
	}
	if state.Position > c.restartThreshold.Seconds() {
		err = c.engine.Seek(0)
	} else {
		err = c.engine.SkipToPrevious()
	}
	if err != nil {
		return fmt.Errorf("skip backward: %w", err)
	}
	return nil
}

// Clear pauses playback and empties the queue.
func (c *Coordinator) Clear() error {
	c.op.Lock()
	defer c.op.Unlock()
	defer c.refresh()

	if err := c.engine.Pause(); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	if err := c.load(nil); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	return nil
}

// ClearConfirm asks before clearing. It reports whether the queue was cleared.
func (c *Coordinator) ClearConfirm(ctx context.Context, opts ClearOptions) (bool, error) {
	ok, err := c.confirmer.Confirm(ctx, notify.Confirmation{
		Title:       "Clear Queue",
		Message:     "Are you sure you want to clear the queue?",
		ConfirmText: "Clear",
		CancelText:  "Cancel",
		Variant:     notify.VariantDestructive,
	})
	if err != nil {
		return false, fmt.Errorf("confirm clear: %w", err)
	}
	if !ok {
		return false, nil
	}

	if opts.Wait {
		c.op.Lock()
		err := c.engine.Pause()
		c.op.Unlock()
		c.refresh()
		if err != nil {
			return false, fmt.Errorf("clear queue: %w", err)
		}

		if opts.OnConfirm != nil {
			opts.OnConfirm()
		}
		if err := shared.Sleep(ctx, c.clock, c.clearDelay); err != nil {
			return false, err
		}
	}

	if err := c.Clear(); err != nil {
		return false, err
	}
	return true, nil
}

// ChangeRepeatMode sets the engine repeat mode.
func (c *Coordinator) ChangeRepeatMode(mode models.RepeatMode) error {
	c.op.Lock()
	defer c.op.Unlock()
	return c.setRepeat(mode)
}

// CycleRepeatMode steps through off, playlist and track repeat.
func (c *Coordinator) CycleRepeatMode() error {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	next := c.repeat.Next()
	c.mu.Unlock()
	return c.setRepeat(next)
}

func (c *Coordinator) setRepeat(mode models.RepeatMode) error {
	if err := c.engine.SetRepeatMode(mode); err != nil {
		return fmt.Errorf("set repeat %s: %w", mode, err)
	}

	c.mu.Lock()
	c.repeat = mode
	snap := c.commitLocked()
	c.mu.Unlock()
	c.listeners.Notify(snap.Version, snap)
	return nil
}

// ToggleStar flips the starred flag of the now-playing track, updating the view
// before the server call. A failed call restores the previous value.
func (c *Coordinator) ToggleStar(ctx context.Context) error {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	track := c.nowPlaying
	if track.ID == "" {
		c.mu.Unlock()
		return nil
	}
	previous := track.Starred
	var starred *time.Time
	if !track.IsStarred() {
		now := c.clock.Now()
		starred = &now
	}
	c.applyStarLocked(track.ID, starred)
	snap := c.commitLocked()
	c.mu.Unlock()
	c.listeners.Notify(snap.Version, snap)

	var err error
	if track.IsStarred() {
		err = c.catalog.Unstar(ctx, track.ID, services.StarTrack)
	} else {
		err = c.catalog.Star(ctx, track.ID, services.StarTrack)
	}
	if err != nil {
		c.mu.Lock()
		c.applyStarLocked(track.ID, previous)
		snap := c.commitLocked()
		c.mu.Unlock()
		c.listeners.Notify(snap.Version, snap)

		c.notify(notify.Notice{
			Title:    "Error",
			Subtitle: "An error occurred while liking the track.",
			Icon:     notify.IconError,
			Haptics:  notify.HapticsError,
		})
		return fmt.Errorf("toggle star %s: %w", track.ID, err)
	}

	if _, err := c.catalog.FetchChild(ctx, track.ID, true); err != nil {
		c.logger.Warn("failed to refresh starred track", "track", track.ID, "err", err)
	}
	return nil
}

func (c *Coordinator) load(tracks []models.TrackItem) error {
	if err := c.engine.CreatePlaylist(c.playlistID, tracks); err != nil {
		return err
	}
	return c.engine.LoadPlaylist(c.playlistID)
}
