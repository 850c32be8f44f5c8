// Package models defines the domain entities shared by the download and queue layers.
//
// Catalog entities come from a Subsonic-compatible server:
//   - [Child] : a single track with its catalog metadata
//   - [Playlist], [Album] : containers resolving to lists of [Child]
//
// Engine-facing entities describe what the download and playback engines see:
//   - [TrackItem] : a playable/downloadable descriptor (stream URL, artwork URL)
//   - [QueueItem] : a [TrackItem] paired with the [Child] it was built from
//   - [DownloadProgress] : one active transfer, keyed by track id
//   - [DownloadedTrack], [StorageInfo] : persisted offline tracks and totals
package models
