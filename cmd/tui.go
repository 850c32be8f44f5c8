package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/agin/internal/notify"
	"github.com/desertthunder/agin/internal/shared"
	"github.com/desertthunder/agin/internal/ui"
)

const noticeBuffer = 32

// TUI launches the interactive terminal UI on the downloads tab.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	return r.runTUI(ctx, ui.DownloadsTab, nil)
}

// runTUI opens a playing session, applies setup, and runs the TUI until the user quits.
func (r *Runner) runTUI(ctx context.Context, tab ui.Tab, setup func(*session) error) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, closer, err := shared.NewFileLogger(filepath.Join("tmp", "agin-tui.log"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer closer.Close()

	previous := r.logger
	shared.SetLogLevel(fileLogger, previous.GetLevel())
	r.SetLogger(fileLogger)
	defer r.SetLogger(previous)

	notices := notify.NewChannelNotifier(noticeBuffer)
	confirmer := ui.NewConfirmer()

	s, err := r.open(ctx, sessionOpts{
		queue:     true,
		play:      true,
		notifier:  notify.Multi{notify.NewLogNotifier(fileLogger), notices},
		confirmer: confirmer,
	})
	if err != nil {
		return err
	}
	defer s.Close()

	if setup != nil {
		if err := setup(s); err != nil {
			return err
		}
	}

	if err := ui.Run(ctx, ui.Options{
		Downloads: s.downloads,
		Queue:     s.queue,
		Notices:   notices.C(),
		Confirmer: confirmer,
		Tab:       tab,
	}); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
