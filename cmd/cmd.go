// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write an example configuration file",
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Initialize database and run migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Roll back the latest migration instead",
					},
				},
				Action: r.SetupDatabase,
			},
			{
				Name:   "server",
				Usage:  "Check the server connection and credentials",
				Action: r.SetupServer,
			},
		},
	}
}

func refreshFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "refresh",
		Usage: "Bypass the catalog cache for the playlist",
	}
}

// downloadCommand queues tracks for offline playback.
func downloadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "download",
		Aliases: []string{"dl"},
		Usage:   "Download tracks for offline playback",
		Commands: []*cli.Command{
			{
				Name:      "track",
				Usage:     "Download a single track",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.DownloadTrack,
			},
			{
				Name:      "playlist",
				Usage:     "Download every track in a playlist",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags:     []cli.Flag{refreshFlag()},
				Action:    r.DownloadPlaylist,
			},
			{
				Name:      "album",
				Usage:     "Download every track on an album",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.DownloadAlbum,
			},
		},
	}
}

// downloadsCommand manages tracks already on disk.
func downloadsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "downloads",
		Usage: "Manage downloaded tracks",
		Commands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List downloaded tracks",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.ListDownloads,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Delete a downloaded track",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.DeleteDownload,
			},
			{
				Name:  "clear",
				Usage: "Delete every downloaded track",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Skip the confirmation prompt",
					},
				},
				Action: r.ClearDownloads,
			},
			{
				Name:  "export",
				Usage: "Export the downloaded library",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format (csv, markdown, text)",
						Value:   "markdown",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output path (a directory for markdown)",
						Value:   "downloads",
					},
				},
				Action: r.ExportDownloads,
			},
		},
	}
}

// playCommand loads a queue and opens the TUI on it.
func playCommand(r *Runner) *cli.Command {
	flags := func() []cli.Flag {
		return []cli.Flag{
			&cli.BoolFlag{
				Name:  "shuffle",
				Usage: "Shuffle the queue before playing",
			},
			&cli.IntFlag{
				Name:  "index",
				Usage: "Start at this position in the queue",
			},
			&cli.StringFlag{
				Name:  "export",
				Usage: "Write the loaded queue to this path",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Export format (csv, markdown, text)",
				Value:   "text",
			},
			&cli.BoolFlag{
				Name:  "no-tui",
				Usage: "Print the queue instead of opening the TUI",
			},
		}
	}
	return &cli.Command{
		Name:  "play",
		Usage: "Play a playlist or album",
		Commands: []*cli.Command{
			{
				Name:      "playlist",
				Usage:     "Play a playlist",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags:     append(flags(), refreshFlag()),
				Action:    r.PlayPlaylist,
			},
			{
				Name:      "album",
				Usage:     "Play an album",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags:     flags(),
				Action:    r.PlayAlbum,
			},
		},
	}
}

// exportCommand writes catalog playlists and albums to disk.
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export playlists and albums (playlist:<id>, album:<id> or a bare playlist id)",
		ArgsUsage: "<ref> [ref...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Export format (csv, markdown, text, json)",
				Value:   "markdown",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output directory (default: agin_export_{epoch})",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Concurrent writers (max 10)",
				Value: 5,
			},
			&cli.FloatFlag{
				Name:  "rate",
				Usage: "Catalog requests per second",
				Value: 5,
			},
		},
		Action: r.Export,
	}
}

// cacheCommand manages the catalog response cache.
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Manage the catalog cache",
		Commands: []*cli.Command{
			{
				Name:   "prune",
				Usage:  "Remove expired catalog entries",
				Action: r.CachePrune,
			},
		},
	}
}

// tuiCommand returns the top-level TUI command.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive downloads and queue TUI",
		Action:  r.TUI,
	}
}
