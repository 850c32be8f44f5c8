// Package engine defines the contracts of the download and playback engines and the
// events they emit.
//
// Engines are opaque and eventually consistent: callers drive them through
// [DownloadEngine] and [PlaybackEngine] and learn about outcomes through typed
// [Event] values delivered to handlers registered with Subscribe. [Bus] is the
// in-process fan-out both local engines use.
package engine
