package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/agin/internal/formatter"
	"github.com/desertthunder/agin/internal/models"
	"github.com/desertthunder/agin/internal/queue"
	"github.com/desertthunder/agin/internal/services"
	"github.com/desertthunder/agin/internal/shared"
	"github.com/desertthunder/agin/internal/ui"
)

// PlayPlaylist replaces the queue with a playlist and opens the TUI on it.
func (r *Runner) PlayPlaylist(ctx context.Context, cmd *cli.Command) error {
	return r.play(ctx, cmd, models.SourcePlaylist, func(ctx context.Context, s *session, id string) (string, []models.Child, error) {
		playlist, err := services.GetPlaylist(ctx, s.catalog, id, cmd.Bool("refresh"))
		if err != nil {
			return "", nil, fmt.Errorf("failed to fetch playlist: %w", err)
		}
		return playlist.Name, playlist.Entry, nil
	})
}

// PlayAlbum replaces the queue with an album and opens the TUI on it.
func (r *Runner) PlayAlbum(ctx context.Context, cmd *cli.Command) error {
	return r.play(ctx, cmd, models.SourceAlbum, func(ctx context.Context, s *session, id string) (string, []models.Child, error) {
		album, err := s.catalog.GetAlbum(ctx, id)
		if err != nil {
			return "", nil, fmt.Errorf("failed to fetch album: %w", err)
		}
		return album.Name, album.Song, nil
	})
}

type fetchTracks func(ctx context.Context, s *session, id string) (string, []models.Child, error)

func (r *Runner) play(ctx context.Context, cmd *cli.Command, kind models.SourceKind, fetch fetchTracks) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: %s id", shared.ErrMissingArgument, kind)
	}

	headless := cmd.Bool("no-tui")
	if headless {
		return r.withSession(ctx, sessionOpts{queue: true}, func(s *session) error {
			return r.loadQueue(ctx, cmd, s, kind, id, fetch)
		})
	}

	return r.runTUI(ctx, ui.QueueTab, func(s *session) error {
		return r.loadQueue(ctx, cmd, s, kind, id, fetch)
	})
}

func (r *Runner) loadQueue(ctx context.Context, cmd *cli.Command, s *session, kind models.SourceKind, id string, fetch fetchTracks) error {
	name, tracks, err := fetch(ctx, s, id)
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		return fmt.Errorf("%w: %s %s has no tracks", shared.ErrInvalidArgument, kind, id)
	}

	err = s.queue.Replace(ctx, tracks, queue.ReplaceOptions{
		InitialIndex: cmd.Int("index"),
		Shuffle:      cmd.Bool("shuffle"),
		Source:       models.QueueSource{Source: kind, SourceID: id, SourceName: name},
	})
	if err != nil {
		return err
	}

	snap := s.queue.Snapshot()
	if path := cmd.String("export"); path != "" {
		format, err := formatter.ParseFormat(cmd.String("format"))
		if err != nil {
			return err
		}
		files, err := formatter.Write(format, formatter.FromQueue(snap.Queue, snap.Source, snap.ActiveIndex), path, "")
		if err != nil {
			return err
		}
		for _, f := range files {
			r.logger.Info("exported queue", "file", f)
		}
	}

	if cmd.Bool("no-tui") {
		r.writeQueue(snap)
	}
	return nil
}

func (r *Runner) writeQueue(snap queue.Snapshot) {
	r.writePlainHeader("Playing from " + snap.Source.String())
	for i, item := range snap.Queue {
		marker := "  "
		if i == snap.ActiveIndex {
			marker = "> "
		}
		r.writePlain("%s%2d. %s - %s [%s]\n", marker, i+1, item.Child.Artist, item.Child.Title, shared.FormatDuration(item.Child.Duration))
	}
}

// withSession opens a session, runs fn, and closes the session.
func (r *Runner) withSession(ctx context.Context, opts sessionOpts, fn func(*session) error) error {
	s, err := r.open(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}
