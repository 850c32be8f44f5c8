package downloads

import (
	"context"
	"errors"

	"github.com/desertthunder/agin/internal/engine"
	"github.com/desertthunder/agin/internal/models"
	"github.com/desertthunder/agin/internal/notify"
	"github.com/desertthunder/agin/internal/shared"
)

func (c *Coordinator) handle(e engine.Event) {
	switch ev := e.(type) {
	case engine.ProgressEvent:
		c.onProgress(ev.Progress)
	case engine.StateChangeEvent:
		c.onStateChange(ev)
	case engine.CompleteEvent:
		c.onComplete(ev)
	}
}

// onProgress buffers p until the next flush. The first event after a flush arms the timer.
func (c *Coordinator) onProgress(p models.DownloadProgress) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.buffer[p.TrackID] = p
	if c.flushTimer == nil {
		c.flushTimer = c.clock.AfterFunc(c.flushInterval, c.flush)
	}
}

func (c *Coordinator) flush() {
	c.mu.Lock()
	c.flushTimer = nil
	changed := c.applyBufferLocked()
	snap, ok := c.commitLocked(changed)
	c.mu.Unlock()

	c.deliver(snap, ok)
}

// applyBufferLocked merges buffered progress into the published map and empties
// the buffer. Terminal entries delete their record.
func (c *Coordinator) applyBufferLocked() bool {
	if len(c.buffer) == 0 {
		return false
	}

	changed := false
	for id, p := range c.buffer {
		if _, held := c.holds[id]; held {
			continue
		}
		if p.State.IsTerminal() {
			changed = c.removeLocked(id) || changed
			continue
		}
		c.setProgressLocked(p)
		changed = true
	}
	clear(c.buffer)
	return changed
}

func (c *Coordinator) onStateChange(e engine.StateChangeEvent) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	rec, exists := c.progress[e.TrackID]
	title := c.titleLocked(e.TrackID)
	changed := false

	switch e.State {
	case models.DownloadPending:
		if !exists {
			c.setProgressLocked(models.DownloadProgress{
				DownloadID: e.DownloadID,
				TrackID:    e.TrackID,
				State:      models.DownloadPending,
			})
			changed = true
		}
	case models.DownloadDownloading:
		if !exists {
			c.setProgressLocked(models.DownloadProgress{
				DownloadID: e.DownloadID,
				TrackID:    e.TrackID,
				State:      models.DownloadDownloading,
			})
			changed = true
		} else if rec.State != models.DownloadDownloading {
			rec.State = models.DownloadDownloading
			c.setProgressLocked(rec)
			changed = true
		}
	case models.DownloadPaused:
		delete(c.buffer, e.TrackID)
		if !exists {
			rec = models.DownloadProgress{DownloadID: e.DownloadID, TrackID: e.TrackID}
		}
		if !exists || rec.State != models.DownloadPaused {
			rec.State = models.DownloadPaused
			c.setProgressLocked(rec)
			changed = true
		}
	case models.DownloadFailed, models.DownloadCancelled:
		if t, held := c.holds[e.TrackID]; held {
			t.Stop()
			delete(c.holds, e.TrackID)
		}
		changed = c.removeLocked(e.TrackID)
	case models.DownloadCompleted:
		changed = c.completeLocked(e.TrackID)
	}

	snap, ok := c.commitLocked(changed)
	c.mu.Unlock()

	c.logger.Debug("download state changed", "track", e.TrackID, "state", e.State)
	if e.State == models.DownloadFailed {
		subtitle := title
		if e.Err != nil {
			subtitle = e.Err.Error()
		}
		c.notify(notify.Notice{
			Title:    "Download Failed",
			Subtitle: subtitle,
			Icon:     notify.IconError,
			Haptics:  notify.HapticsError,
		})
	}
	c.deliver(snap, ok)
}

func (c *Coordinator) onComplete(e engine.CompleteEvent) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	title := e.Track.Title
	if title == "" {
		title = c.titleLocked(e.Track.TrackID)
	}
	changed := c.completeLocked(e.Track.TrackID)
	snap, ok := c.commitLocked(changed)
	c.mu.Unlock()

	c.notify(notify.Notice{
		Title:    "Download Complete",
		Subtitle: title,
		Icon:     notify.IconCheck,
		Haptics:  notify.HapticsSuccess,
	})
	c.deliver(snap, ok)
}

// completeLocked clamps the record to full progress and arms the removal hold.
// Repeated completions for a held track are ignored.
func (c *Coordinator) completeLocked(trackID string) bool {
	delete(c.buffer, trackID)
	if _, held := c.holds[trackID]; held {
		return false
	}

	changed := false
	if rec, ok := c.progress[trackID]; ok {
		rec.Progress = 1
		if rec.TotalBytes > 0 {
			rec.BytesDownloaded = rec.TotalBytes
		}
		c.setProgressLocked(rec)
		changed = true
	}
	c.holds[trackID] = c.clock.AfterFunc(c.completionHold, func() { c.release(trackID) })
	return changed
}

// release ends a completion hold.
func (c *Coordinator) release(trackID string) {
	c.mu.Lock()
	if _, held := c.holds[trackID]; !held {
		c.mu.Unlock()
		return
	}
	delete(c.holds, trackID)
	changed := c.removeLocked(trackID)
	c.scheduleRefreshLocked()
	snap, ok := c.commitLocked(changed)
	c.mu.Unlock()

	c.deliver(snap, ok)
}

func (c *Coordinator) scheduleRefreshLocked() {
	if c.closed {
		return
	}
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
	}
	c.refreshTimer = c.clock.AfterFunc(c.refreshDebounce, func() {
		c.mu.Lock()
		c.refreshTimer = nil
		c.mu.Unlock()
		c.Refresh()
	})
}

func (c *Coordinator) titleLocked(trackID string) string {
	if m, ok := c.metadata[trackID]; ok && m.Title != "" {
		return m.Title
	}
	return trackID
}

// ResolveMetadata starts a catalog lookup for every published track that has no
// metadata, is not already being looked up, and has not failed before.
func (c *Coordinator) ResolveMetadata() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	var ids []string
	for id := range c.progress {
		if _, ok := c.metadata[id]; ok {
			continue
		}
		if _, ok := c.inFlight[id]; ok {
			continue
		}
		if _, ok := c.unresolvable[id]; ok {
			continue
		}
		c.inFlight[id] = struct{}{}
		ids = append(ids, id)
	}
	c.fetches.Add(len(ids))
	c.mu.Unlock()

	for _, id := range ids {
		go c.fetchMetadata(id)
	}
}

func (c *Coordinator) fetchMetadata(trackID string) {
	defer c.fetches.Done()

	child, err := c.catalog.FetchChild(context.Background(), trackID, false)

	c.mu.Lock()
	delete(c.inFlight, trackID)
	if err != nil || child == nil {
		c.unresolvable[trackID] = struct{}{}
		c.mu.Unlock()

		if errors.Is(err, shared.ErrTrackNotFound) {
			c.logger.Debug("track metadata unavailable", "track", trackID)
		} else {
			c.logger.Warn("failed to resolve track metadata", "track", trackID, "err", err)
		}
		return
	}

	_, tracked := c.progress[trackID]
	_, known := c.metadata[trackID]
	changed := tracked && !known && !c.closed
	if changed {
		c.setMetadataLocked(trackID, *child)
	}
	snap, ok := c.commitLocked(changed)
	c.mu.Unlock()

	c.deliver(snap, ok)
}
