package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/agin/internal/downloads"
	"github.com/desertthunder/agin/internal/models"
	"github.com/desertthunder/agin/internal/services"
	"github.com/desertthunder/agin/internal/shared"
)

// DownloadTrack downloads one track by catalog id and waits for it to finish.
func (r *Runner) DownloadTrack(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: track id", shared.ErrMissingArgument)
	}

	s, err := r.open(ctx, sessionOpts{})
	if err != nil {
		return err
	}
	defer s.Close()

	ok, err := s.downloads.DownloadTrackByID(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrTrackNotFound, id)
	}
	return r.waitForDownloads(ctx, s.downloads, []string{id})
}

// DownloadPlaylist downloads every track of a playlist and waits for them to finish.
func (r *Runner) DownloadPlaylist(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

	s, err := r.open(ctx, sessionOpts{})
	if err != nil {
		return err
	}
	defer s.Close()

	playlist, err := services.GetPlaylist(ctx, s.catalog, id, cmd.Bool("refresh"))
	if err != nil {
		return fmt.Errorf("failed to fetch playlist: %w", err)
	}
	return r.downloadAll(ctx, s, playlist.ID, playlist.Name, playlist.Entry)
}

// DownloadAlbum downloads every track of an album and waits for them to finish.
func (r *Runner) DownloadAlbum(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: album id", shared.ErrMissingArgument)
	}

	s, err := r.open(ctx, sessionOpts{})
	if err != nil {
		return err
	}
	defer s.Close()

	album, err := s.catalog.GetAlbum(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch album: %w", err)
	}
	return r.downloadAll(ctx, s, album.ID, album.Name, album.Song)
}

func (r *Runner) downloadAll(ctx context.Context, s *session, id, name string, tracks []models.Child) error {
	r.logger.Info("downloading", "id", id, "name", name, "tracks", len(tracks))

	result, err := s.downloads.DownloadPlaylist(ctx, id, tracks)
	if err != nil {
		return err
	}
	r.writePlain("%s: %d queued, %d skipped\n", name, result.Queued, result.Skipped)

	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	return r.waitForDownloads(ctx, s.downloads, ids)
}

// progressTracker follows coordinator snapshots for a fixed set of tracks.
type progressTracker struct {
	mu        sync.Mutex
	version   uint64
	ids       []string
	tracked   map[string]bool
	completed map[string]bool
	percent   map[string]int
	lines     []string
	changed   chan struct{}
}

func newProgressTracker(ids []string) *progressTracker {
	return &progressTracker{
		ids:       ids,
		tracked:   make(map[string]bool),
		completed: make(map[string]bool),
		percent:   make(map[string]int),
		changed:   make(chan struct{}, 1),
	}
}

// observe runs for every delivered snapshot, so no completion is missed.
func (t *progressTracker) observe(snap downloads.Snapshot) {
	t.mu.Lock()
	if snap.Version < t.version {
		t.mu.Unlock()
		return
	}
	t.version = snap.Version
	for _, id := range t.ids {
		p, inProgress := snap.Progress[id]
		_, claimed := snap.Metadata[id]
		t.tracked[id] = inProgress || claimed
		if !inProgress {
			continue
		}
		if p.Progress >= 1 {
			t.completed[id] = true
		}
		bucket := p.Percent() / 25 * 25
		if last, ok := t.percent[id]; !ok || bucket != last {
			t.percent[id] = bucket
			t.lines = append(t.lines, fmt.Sprintf("  %-40s %3d%% %s", snap.Title(id), p.Percent(), p.State))
		}
	}
	t.mu.Unlock()

	select {
	case t.changed <- struct{}{}:
	default:
	}
}

// drain returns pending progress lines and whether every track has settled.
func (t *progressTracker) drain() ([]string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	lines := t.lines
	t.lines = nil
	for _, id := range t.ids {
		if t.tracked[id] {
			return lines, false
		}
	}
	return lines, true
}

func (t *progressTracker) isCompleted(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed[id]
}

// waitForDownloads blocks until the coordinator stops tracking every id, printing coarse progress.
func (r *Runner) waitForDownloads(ctx context.Context, coord *downloads.Coordinator, ids []string) error {
	tracker := newProgressTracker(ids)
	unsubscribe := coord.Subscribe(tracker.observe)
	defer unsubscribe()
	tracker.observe(coord.Snapshot())

	for {
		lines, done := tracker.drain()
		for _, line := range lines {
			r.writePlain("%s\n", line)
		}
		if done {
			break
		}
		select {
		case <-tracker.changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var ok, failed int
	for _, id := range ids {
		if coord.IsTrackDownloaded(id) || tracker.isCompleted(id) {
			ok++
		} else {
			failed++
		}
	}
	r.writePlain("✓ %d downloaded", ok)
	if failed > 0 {
		r.writePlain(", %d failed", failed)
	}
	r.writePlain("\n")
	return nil
}
