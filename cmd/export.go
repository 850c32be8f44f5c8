package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/agin/internal/formatter"
	"github.com/desertthunder/agin/internal/shared"
	"github.com/desertthunder/agin/internal/tasks"
)

// Export writes catalog playlists and albums to disk with a manifest.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args().Slice()
	if len(args) == 0 {
		return fmt.Errorf("%w: at least one playlist or album", shared.ErrMissingArgument)
	}
	refs := make([]tasks.Ref, len(args))
	for i, arg := range args {
		ref, err := tasks.ParseRef(arg)
		if err != nil {
			return err
		}
		refs[i] = ref
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	s, err := r.open(ctx, sessionOpts{catalogOnly: true})
	if err != nil {
		return err
	}
	defer s.Close()

	r.logger.Info("starting export", "collections", len(refs), "format", format)
	exporter := tasks.NewExporter(s.catalog, s.urls, shared.WithLogger(r.logger, "component", "export"))

	progressCh := make(chan tasks.ProgressUpdate, 50)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for update := range progressCh {
			switch update.Phase {
			case tasks.FetchCollection:
				r.writePlain("📥 %s\n", update.Message)
			case tasks.WriteCollection:
				r.writePlain("   %s\n", update.Message)
			}
		}
	}()

	result, err := exporter.BulkExport(ctx, progressCh, refs, tasks.BulkExportOpts{
		Format:     format,
		OutputDir:  cmd.String("output"),
		NumWorkers: cmd.Int("workers"),
		RateLimit:  cmd.Float("rate"),
		CoverSize:  artworkSize * 2,
	})
	close(progressCh)
	<-printed
	if err != nil {
		return err
	}

	r.writePlain("\n✓ Exported %d/%d collections to %s\n", result.SuccessfulExports, result.TotalCollections, result.OutputDirectory)
	if result.FailedExports > 0 {
		r.writePlain("\nFailed to export %d collections:\n", result.FailedExports)
		for _, res := range result.Results {
			if !res.Success {
				r.writePlain("  - %s %s: %s\n", res.Kind, res.ID, res.ErrorMessage)
			}
		}
	}
	r.writePlain("Manifest: %s\n", result.ManifestPath)
	return nil
}
