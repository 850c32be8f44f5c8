// Package tasks runs long catalog operations with real-time progress reporting.
//
// # Bulk Export
//
// [Exporter.BulkExport] writes many playlists and albums to disk at once:
//   - A feeder fetches each collection from the [services.Catalog], paced by a token bucket limiter
//   - A bounded worker pool renders each fetched collection through the formatter package
//   - Failed fetches and failed writes are reported per collection without aborting the run
//   - An export_manifest.json summarizing every result is written to the output directory
//
// # Progress Reporting
//
// Operations accept an optional send-only channel of [ProgressUpdate].
// Updates use select with default so a slow or absent reader never blocks the export.
package tasks
