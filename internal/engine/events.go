package engine

import (
	"sync"

	"github.com/desertthunder/agin/internal/models"
)

// EventKind selects which events a handler receives.
type EventKind int

const (
	EventDownloadProgress EventKind = iota
	EventDownloadStateChange
	EventDownloadComplete
	EventTrackChange
	EventPlaybackProgress
)

func (k EventKind) String() string {
	switch k {
	case EventDownloadProgress:
		return "download-progress"
	case EventDownloadStateChange:
		return "download-state-change"
	case EventDownloadComplete:
		return "download-complete"
	case EventTrackChange:
		return "track-change"
	case EventPlaybackProgress:
		return "playback-progress"
	default:
		return "unknown"
	}
}

// Event is emitted by an engine.
type Event interface {
	Kind() EventKind
}

// ProgressEvent reports bytes transferred for one download.
type ProgressEvent struct {
	Progress models.DownloadProgress
}

// StateChangeEvent reports a download lifecycle transition. Err is set for failures.
type StateChangeEvent struct {
	DownloadID string
	TrackID    string
	State      models.DownloadState
	Err        error
}

// CompleteEvent carries the persisted record of a finished download.
type CompleteEvent struct {
	DownloadID string
	Track      models.DownloadedTrack
}

// TrackChangeEvent reports that the active queue entry changed. Track is nil when
// nothing is active.
type TrackChangeEvent struct {
	Index  int
	Track  *models.TrackItem
	Reason string
}

// PlaybackProgressEvent reports the playback position in seconds.
type PlaybackProgressEvent struct {
	Position float64
	Duration float64
}

func (ProgressEvent) Kind() EventKind         { return EventDownloadProgress }
func (StateChangeEvent) Kind() EventKind      { return EventDownloadStateChange }
func (CompleteEvent) Kind() EventKind         { return EventDownloadComplete }
func (TrackChangeEvent) Kind() EventKind      { return EventTrackChange }
func (PlaybackProgressEvent) Kind() EventKind { return EventPlaybackProgress }

// Handler receives events. It is called on the emitting goroutine.
type Handler func(Event)

// Subscription is the token returned by Subscribe.
type Subscription interface {
	Unsubscribe()
}

// Bus fans events out to subscribed handlers in registration order.
type Bus struct {
	mu       sync.RWMutex
	next     uint64
	handlers map[EventKind][]entry
}

type entry struct {
	id      uint64
	handler Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[EventKind][]entry)}
}

// Subscribe registers handler for kind.
func (b *Bus) Subscribe(kind EventKind, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	id := b.next
	b.handlers[kind] = append(b.handlers[kind], entry{id: id, handler: handler})
	return &busSubscription{bus: b, kind: kind, id: id}
}

// Publish delivers e synchronously to every handler subscribed to its kind.
//
// Handlers run outside the bus lock and may subscribe or unsubscribe.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := append([]entry(nil), b.handlers[e.Kind()]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		h.handler(e)
	}
}

// Len returns the number of handlers registered for kind.
func (b *Bus) Len(kind EventKind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[kind])
}

func (b *Bus) remove(kind EventKind, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	hs := b.handlers[kind]
	for i, h := range hs {
		if h.id == id {
			b.handlers[kind] = append(hs[:i:i], hs[i+1:]...)
			return
		}
	}
}

type busSubscription struct {
	bus  *Bus
	kind EventKind
	id   uint64
	once sync.Once
}

func (s *busSubscription) Unsubscribe() {
	s.once.Do(func() { s.bus.remove(s.kind, s.id) })
}
