package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/agin/internal/formatter"
	"github.com/desertthunder/agin/internal/notify"
	"github.com/desertthunder/agin/internal/shared"
)

// ListDownloads prints the downloaded library.
func (r *Runner) ListDownloads(ctx context.Context, cmd *cli.Command) error {
	s, err := r.open(ctx, sessionOpts{})
	if err != nil {
		return err
	}
	defer s.Close()

	snap := s.downloads.Snapshot()
	if cmd.Bool("json") {
		return r.writeJSON(formatter.FromDownloads(snap.Downloaded, snap.Storage).Tracks, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Downloads (%d tracks, %s)", snap.Storage.TrackCount, snap.FormattedSize()))
	for _, t := range snap.Downloaded {
		r.writePlain("%-24s %s - %s [%s]\n", t.TrackID, t.Artist, t.Title, shared.FormatBytes(t.FileSize))
	}
	for _, p := range snap.Active {
		r.writePlain("%-24s %s (%d%%, %s)\n", p.TrackID, snap.Title(p.TrackID), p.Percent(), p.State)
	}
	return nil
}

// DeleteDownload removes one downloaded track.
func (r *Runner) DeleteDownload(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: track id", shared.ErrMissingArgument)
	}

	s, err := r.open(ctx, sessionOpts{})
	if err != nil {
		return err
	}
	defer s.Close()

	if !s.downloads.IsTrackDownloaded(id) {
		return fmt.Errorf("%w: %s is not downloaded", shared.ErrTrackNotFound, id)
	}
	if err := s.downloads.DeleteTrack(ctx, id); err != nil {
		return err
	}
	r.writePlain("✓ Deleted %s\n", id)
	return nil
}

// ClearDownloads deletes every downloaded track after confirmation.
func (r *Runner) ClearDownloads(ctx context.Context, cmd *cli.Command) error {
	s, err := r.open(ctx, sessionOpts{})
	if err != nil {
		return err
	}
	defer s.Close()

	snap := s.downloads.Snapshot()
	if len(snap.Downloaded) == 0 {
		r.writePlain("No downloaded tracks\n")
		return nil
	}

	if !cmd.Bool("yes") {
		ok, err := notify.NewPromptConfirmer(r.input, r.output).Confirm(ctx, notify.Confirmation{
			Title:       "Delete All Downloads",
			Message:     fmt.Sprintf("Delete %d tracks (%s)?", len(snap.Downloaded), snap.FormattedSize()),
			ConfirmText: "Delete",
			CancelText:  "Cancel",
			Variant:     notify.VariantDestructive,
		})
		if err != nil {
			return err
		}
		if !ok {
			r.writePlain("Cancelled\n")
			return nil
		}
	}

	if err := s.downloads.DeleteAll(ctx); err != nil {
		return err
	}
	r.writePlain("✓ Deleted %d tracks\n", len(snap.Downloaded))
	return nil
}

// ExportDownloads writes the downloaded library in the requested format.
func (r *Runner) ExportDownloads(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	s, err := r.open(ctx, sessionOpts{})
	if err != nil {
		return err
	}
	defer s.Close()

	snap := s.downloads.Snapshot()
	files, err := formatter.Write(format, formatter.FromDownloads(snap.Downloaded, snap.Storage), cmd.String("output"), "")
	if err != nil {
		return err
	}
	for _, f := range files {
		r.writePlain("✓ Wrote %s\n", f)
	}
	return nil
}
