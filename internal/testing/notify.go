package testing

import (
	"context"
	"sync"

	"github.com/desertthunder/agin/internal/notify"
)

// RecordingNotifier keeps every notice it receives.
type RecordingNotifier struct {
	mu      sync.Mutex
	notices []notify.Notice
}

func (r *RecordingNotifier) Notify(n notify.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *RecordingNotifier) Notices() []notify.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notice(nil), r.notices...)
}

// Titles returns the titles of recorded notices in order.
func (r *RecordingNotifier) Titles() []string {
	var titles []string
	for _, n := range r.Notices() {
		titles = append(titles, n.Title)
	}
	return titles
}

// Last returns the most recent notice.
func (r *RecordingNotifier) Last() (notify.Notice, bool) {
	ns := r.Notices()
	if len(ns) == 0 {
		return notify.Notice{}, false
	}
	return ns[len(ns)-1], true
}

// ScriptedConfirmer answers with Answer, optionally waiting on Gate first.
type ScriptedConfirmer struct {
	Answer bool
	Err    error
	Gate   chan struct{}

	mu    sync.Mutex
	asked []notify.Confirmation
}

func (s *ScriptedConfirmer) Confirm(ctx context.Context, c notify.Confirmation) (bool, error) {
	s.mu.Lock()
	s.asked = append(s.asked, c)
	s.mu.Unlock()

	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return s.Answer, s.Err
}

func (s *ScriptedConfirmer) Asked() []notify.Confirmation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Confirmation(nil), s.asked...)
}
