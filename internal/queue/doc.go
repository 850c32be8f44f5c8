// Package queue keeps an observable view of the play queue in step with a
// [engine.PlaybackEngine].
//
// The engine owns the queue. Every mutation made through the [Coordinator] is
// followed by a read-back of the engine's actual queue and active index, and so
// is every track-change event the engine emits. Local state is never predicted.
//
// Mutations are serialized. Reordering with [Coordinator.SetQueue] keeps the
// now-playing track active by matching catalog ids rather than positions.
package queue
