// Package repositories implements SQLite persistence for offline downloads and the catalog cache.
//
// Key Implementations:
//   - [DownloadRepository] : tracks persisted for offline playback, with soft deletes
//   - [CacheRepository] : expiring catalog responses keyed by kind and id
//
// Sequence numbers give downloaded tracks a stable order independent of their UUIDs;
// [NextSequence] derives them from the table itself inside a transaction.
package repositories
