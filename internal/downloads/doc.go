// Package downloads reconciles a download engine's event stream with catalog
// metadata into a stable, batched view of active and completed downloads.
//
// # Reconciliation
//
// Progress events are buffered per track (last write wins) and published on a
// fixed flush interval. State changes apply immediately:
//
//   - pending inserts a zero-progress record if none exists
//   - downloading updates the state only when it differs
//   - paused drops any buffered progress before updating the state
//   - failed and cancelled remove the record and its metadata
//   - completed clamps progress to 1, then removes the record after a short hold
//
// Removals after the hold trigger a debounced refresh of the downloaded list and
// storage totals, so a burst of completions costs one refresh.
//
// Tracks that appear without metadata (for example, transfers discovered at
// startup) are looked up in the catalog once. Lookups that fail mark the track
// unresolvable for the life of the [Coordinator].
//
// Observers receive immutable [Snapshot] values through [Coordinator.Subscribe].
package downloads
