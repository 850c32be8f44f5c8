package downloads

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/agin/internal/models"
	"github.com/desertthunder/agin/internal/notify"
	"github.com/desertthunder/agin/internal/shared"
)

// PlaylistResult counts the outcome of [Coordinator.DownloadPlaylist].
type PlaylistResult struct {
	Queued  int
	Skipped int
}

// DownloadTrack submits track unless it is already downloaded or in flight.
//
// Metadata is recorded before the engine is called so the first progress event
// renders with a title. It is removed again if the engine rejects the request.
func (c *Coordinator) DownloadTrack(ctx context.Context, track models.Child, playlistID string) error {
	if c.engine.IsTrackDownloaded(track.ID) {
		c.notify(notify.Notice{Title: "Already Downloaded", Subtitle: track.Title, Icon: notify.IconCheck})
		return nil
	}
	inEngine := c.engine.IsDownloading(track.ID)

	c.mu.Lock()
	_, active := c.progress[track.ID]
	_, claimed := c.metadata[track.ID]
	if inEngine || active || claimed {
		c.mu.Unlock()
		c.notify(notify.Notice{Title: "Already Downloading", Subtitle: track.Title, Icon: notify.IconDownload})
		return nil
	}
	c.setMetadataLocked(track.ID, track)
	snap, ok := c.commitLocked(true)
	c.mu.Unlock()
	c.deliver(snap, ok)

	if _, err := c.engine.DownloadTrack(ctx, c.items.ForDownload(track), playlistID); err != nil {
		c.rollback(track.ID)
		c.notify(notify.Notice{Title: "Download Error", Subtitle: err.Error(), Icon: notify.IconError, Haptics: notify.HapticsError})
		return fmt.Errorf("download %s: %w", track.ID, err)
	}

	c.notify(notify.Notice{Title: "Downloading", Subtitle: track.Title, Icon: notify.IconDownload})
	return nil
}

// DownloadTrackByID resolves id through the catalog and downloads it. It reports
// false without an error when the catalog has no such track.
func (c *Coordinator) DownloadTrackByID(ctx context.Context, id string) (bool, error) {
	child, err := c.catalog.FetchChild(ctx, id, false)
	switch {
	case errors.Is(err, shared.ErrTrackNotFound) || (err == nil && child == nil):
		c.notify(notify.Notice{Title: "Track Not Found", Subtitle: id, Icon: notify.IconWarning})
		return false, nil
	case err != nil:
		c.notify(notify.Notice{Title: "Download Error", Subtitle: err.Error(), Icon: notify.IconError, Haptics: notify.HapticsError})
		return false, fmt.Errorf("fetch track %s: %w", id, err)
	}
	if err := c.DownloadTrack(ctx, *child, ""); err != nil {
		return false, err
	}
	return true, nil
}

// DownloadPlaylist submits every track of playlistID that is neither downloaded
// nor in flight. Calling it twice in a row queues nothing the second time.
func (c *Coordinator) DownloadPlaylist(ctx context.Context, playlistID string, tracks []models.Child) (PlaylistResult, error) {
	seen := make(map[string]bool, len(tracks))
	candidates := make([]models.Child, 0, len(tracks))
	for _, t := range tracks {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		if c.engine.IsTrackDownloaded(t.ID) || c.engine.IsDownloading(t.ID) {
			continue
		}
		candidates = append(candidates, t)
	}

	c.mu.Lock()
	queued := candidates[:0]
	for _, t := range candidates {
		_, active := c.progress[t.ID]
		_, claimed := c.metadata[t.ID]
		if active || claimed {
			continue
		}
		c.setMetadataLocked(t.ID, t)
		queued = append(queued, t)
	}
	snap, ok := c.commitLocked(len(queued) > 0)
	c.mu.Unlock()
	c.deliver(snap, ok)

	res := PlaylistResult{Queued: len(queued), Skipped: len(tracks) - len(queued)}
	if len(queued) == 0 {
		c.notify(notify.Notice{
			Title:    "Already Downloaded",
			Subtitle: fmt.Sprintf("All %d tracks are downloaded or downloading", len(tracks)),
			Icon:     notify.IconCheck,
		})
		return res, nil
	}

	items := make([]models.TrackItem, len(queued))
	for i, t := range queued {
		items[i] = c.items.ForDownload(t)
	}
	if _, err := c.engine.DownloadPlaylist(ctx, playlistID, items); err != nil {
		for _, t := range queued {
			c.rollback(t.ID)
		}
		c.notify(notify.Notice{Title: "Download Error", Subtitle: err.Error(), Icon: notify.IconError, Haptics: notify.HapticsError})
		return PlaylistResult{Skipped: len(tracks)}, fmt.Errorf("download playlist %s: %w", playlistID, err)
	}

	subtitle := fmt.Sprintf("%d tracks queued", res.Queued)
	if res.Skipped > 0 {
		subtitle += fmt.Sprintf(", %d skipped", res.Skipped)
	}
	c.notify(notify.Notice{Title: "Downloading Playlist", Subtitle: subtitle, Icon: notify.IconDownload})
	return res, nil
}

func (c *Coordinator) rollback(trackID string) {
	c.mu.Lock()
	changed := c.deleteMetadataLocked(trackID)
	snap, ok := c.commitLocked(changed)
	c.mu.Unlock()
	c.deliver(snap, ok)
}

// PauseDownload pauses the transfer identified by downloadID.
func (c *Coordinator) PauseDownload(ctx context.Context, downloadID string) error {
	return c.control(ctx, "Pause", downloadID, c.engine.PauseDownload)
}

// ResumeDownload resumes a paused transfer.
func (c *Coordinator) ResumeDownload(ctx context.Context, downloadID string) error {
	return c.control(ctx, "Resume", downloadID, c.engine.ResumeDownload)
}

// CancelDownload cancels a transfer. The record disappears when the engine reports it.
func (c *Coordinator) CancelDownload(ctx context.Context, downloadID string) error {
	return c.control(ctx, "Cancel", downloadID, c.engine.CancelDownload)
}

// RetryDownload restarts a failed transfer.
func (c *Coordinator) RetryDownload(ctx context.Context, downloadID string) error {
	return c.control(ctx, "Retry", downloadID, c.engine.RetryDownload)
}

func (c *Coordinator) control(ctx context.Context, verb, downloadID string, op func(context.Context, string) error) error {
	if err := op(ctx, downloadID); err != nil {
		c.notify(notify.Notice{
			Title:    verb + " Failed",
			Subtitle: err.Error(),
			Icon:     notify.IconError,
			Haptics:  notify.HapticsError,
		})
		return fmt.Errorf("%s download %s: %w", strings.ToLower(verb), downloadID, err)
	}
	return nil
}

// DeleteTrack removes a downloaded track and refreshes the downloaded list.
func (c *Coordinator) DeleteTrack(ctx context.Context, trackID string) error {
	if err := c.engine.DeleteTrack(ctx, trackID); err != nil {
		c.notify(notify.Notice{Title: "Delete Failed", Subtitle: err.Error(), Icon: notify.IconError, Haptics: notify.HapticsError})
		return fmt.Errorf("delete track %s: %w", trackID, err)
	}
	c.Refresh()
	return nil
}

// DeleteAll removes every downloaded track and refreshes the downloaded list.
func (c *Coordinator) DeleteAll(ctx context.Context) error {
	if err := c.engine.DeleteAll(ctx); err != nil {
		c.notify(notify.Notice{Title: "Delete Failed", Subtitle: err.Error(), Icon: notify.IconError, Haptics: notify.HapticsError})
		return fmt.Errorf("delete all downloads: %w", err)
	}
	c.Refresh()
	return nil
}
