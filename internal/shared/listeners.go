package shared

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"
)

// Listeners fans versioned values out to registered callbacks. The zero value is
// ready to use.
//
// A value whose version is not newer than the last one handed out is dropped, so
// a slow publisher never overwrites a newer state with an older one. Each listener
// is called by one publisher at a time and sees versions in increasing order.
// A listener must not publish into the same set it is registered with.
type Listeners[T any] struct {
	mu        sync.Mutex
	next      uint64
	fns       map[uint64]*listener[T]
	delivered atomic.Uint64
}

type listener[T any] struct {
	mu   sync.Mutex
	last uint64
	fn   func(T)
}

// call runs fn with v unless the listener already saw version or a newer one.
func (l *listener[T]) call(version uint64, v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if version <= l.last {
		return
	}
	l.last = version
	l.fn(v)
}

// Add registers fn and returns a function that removes it.
func (l *Listeners[T]) Add(fn func(T)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fns == nil {
		l.fns = make(map[uint64]*listener[T])
	}
	l.next++
	id := l.next
	l.fns[id] = &listener[T]{fn: fn}
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.fns, id)
	}
}

// Notify calls every listener with v in registration order. It reports false
// when v was stale and nothing was called.
func (l *Listeners[T]) Notify(version uint64, v T) bool {
	for {
		last := l.delivered.Load()
		if version <= last {
			return false
		}
		if l.delivered.CompareAndSwap(last, version) {
			break
		}
	}

	l.mu.Lock()
	ids := slices.Sorted(maps.Keys(l.fns))
	fns := make([]*listener[T], len(ids))
	for i, id := range ids {
		fns[i] = l.fns[id]
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn.call(version, v)
	}
	return true
}

// Len returns the number of registered listeners.
func (l *Listeners[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}
