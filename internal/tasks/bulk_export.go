package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/desertthunder/agin/internal/formatter"
	"github.com/desertthunder/agin/internal/shared"
)

const (
	defaultWorkers   = 5
	maxWorkers       = 10
	defaultRateLimit = 5.0
	defaultCoverSize = 600
	manifestFilename = "export_manifest.json"
)

// BulkExportOpts contains configuration for bulk collection exports.
type BulkExportOpts struct {
	Format     formatter.Format // Export format (default: markdown)
	OutputDir  string           // Base output directory (default: agin_export_{epoch})
	NumWorkers int              // Concurrent writers (default: 5, max: 10)
	RateLimit  float64          // Catalog requests per second (default: 5)
	CoverSize  int              // Cover art edge in pixels for Markdown exports (default: 600)
}

// ExportResult is the outcome of exporting one collection.
type ExportResult struct {
	ID           string   `json:"id"`
	Kind         string   `json:"kind"`
	Name         string   `json:"name"`
	Success      bool     `json:"success"`
	Files        []string `json:"files,omitempty"`
	Error        error    `json:"-"`
	ErrorMessage string   `json:"error,omitempty"`
}

// BulkExportResult summarizes a bulk export and doubles as its manifest.
type BulkExportResult struct {
	Format            formatter.Format `json:"format"`
	ExportedAt        time.Time        `json:"exported_at"`
	TotalCollections  int              `json:"total_collections"`
	SuccessfulExports int              `json:"successful_exports"`
	FailedExports     int              `json:"failed_exports"`
	OutputDirectory   string           `json:"output_directory"`
	ManifestPath      string           `json:"-"`
	Results           []ExportResult   `json:"results"`
}

type exportJob struct {
	ref      Ref
	export   *formatter.Export
	coverArt string
}

// BulkExport exports many playlists and albums concurrently with rate limiting and progress tracking.
//
// Catalog fetches are paced by a token bucket while a bounded pool of workers writes files.
// A collection that cannot be fetched or written is recorded as failed and the run continues.
// When ctx is cancelled the partial result is returned with the context error.
func (e *Exporter) BulkExport(ctx context.Context, prog chan<- ProgressUpdate, refs []Ref, opts BulkExportOpts) (*BulkExportResult, error) {
	if e.catalog == nil {
		return nil, fmt.Errorf("%w: catalog not configured", shared.ErrInvalidConfig)
	}

	if opts.Format == "" {
		opts.Format = formatter.FormatMarkdown
	}
	format, err := formatter.ParseFormat(string(opts.Format))
	if err != nil {
		return nil, err
	}
	opts.Format = format
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("agin_export_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = defaultWorkers
	}
	opts.NumWorkers = min(opts.NumWorkers, maxWorkers)
	if opts.RateLimit <= 0 {
		opts.RateLimit = defaultRateLimit
	}
	if opts.CoverSize <= 0 {
		opts.CoverSize = defaultCoverSize
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &BulkExportResult{
		Format:           opts.Format,
		ExportedAt:       time.Now().UTC(),
		TotalCollections: len(refs),
		OutputDirectory:  opts.OutputDir,
		Results:          make([]ExportResult, 0, len(refs)),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	jobs := make(chan exportJob, len(refs))
	results := make(chan ExportResult, len(refs))

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go e.exportWorker(ctx, &wg, jobs, results, opts)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(jobs)
		for i, ref := range refs {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			e.sendProgress(prog, fetchingUpdate(i+1, len(refs), ref))

			export, coverArt, err := e.fetch(ctx, ref)
			if err != nil {
				results <- ExportResult{
					ID:    ref.ID,
					Kind:  ref.Kind.String(),
					Name:  fmt.Sprintf("Unknown (%s)", ref.ID),
					Error: fmt.Errorf("failed to fetch %s: %w", ref.Kind, err),
				}
				continue
			}
			jobs <- exportJob{ref: ref, export: export, coverArt: coverArt}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		if res.Success {
			result.SuccessfulExports++
			e.sendProgress(prog, exportCompletedUpdate(completed, len(refs), res.Name, len(res.Files)))
		} else {
			result.FailedExports++
			res.ErrorMessage = res.Error.Error()
			e.logger.Warn("export failed", "id", res.ID, "kind", res.Kind, "error", res.Error)
			e.sendProgress(prog, exportFailedUpdate(completed, len(refs), res.Name, res.Error))
		}
		result.Results = append(result.Results, res)
	}

	manifestPath := filepath.Join(opts.OutputDir, manifestFilename)
	data, err := shared.MarshalJSON(result, true)
	if err == nil {
		err = os.WriteFile(manifestPath, data, 0644)
	}
	if err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath

	return result, ctx.Err()
}

// exportWorker writes collections from the jobs channel until it closes.
func (e *Exporter) exportWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	jobs <-chan exportJob,
	results chan<- ExportResult,
	opts BulkExportOpts,
) {
	defer wg.Done()

	for job := range jobs {
		if ctx.Err() != nil {
			return
		}
		results <- e.exportSingle(job, opts)
	}
}

// exportSingle writes one collection in the configured format.
func (e *Exporter) exportSingle(j exportJob, opts BulkExportOpts) ExportResult {
	result := ExportResult{
		ID:   j.ref.ID,
		Kind: j.ref.Kind.String(),
		Name: j.export.Title,
	}

	var path, imageURL string
	switch opts.Format {
	case formatter.FormatCSV:
		path = filepath.Join(opts.OutputDir, j.ref.ID)
	case formatter.FormatMarkdown:
		path = filepath.Join(opts.OutputDir, j.ref.ID)
		if e.urls != nil && j.coverArt != "" {
			imageURL = e.urls.CoverURL(j.coverArt, opts.CoverSize)
		}
	case formatter.FormatText:
		path = filepath.Join(opts.OutputDir, j.ref.ID+"_tracks.txt")
	default:
		path = filepath.Join(opts.OutputDir, j.ref.ID+".json")
	}

	files, err := formatter.Write(opts.Format, j.export, path, imageURL)
	if err != nil {
		result.Error = fmt.Errorf("%s export failed: %w", opts.Format, err)
		return result
	}
	result.Files = files
	result.Success = true
	return result
}
