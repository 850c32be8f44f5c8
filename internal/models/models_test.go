package models

import "testing"

func TestRepeatModeNext(t *testing.T) {
	tc := []struct {
		mode RepeatMode
		want RepeatMode
	}{
		{RepeatOff, RepeatPlaylist},
		{RepeatPlaylist, RepeatTrack},
		{RepeatTrack, RepeatOff},
	}

	for _, tt := range tc {
		t.Run(tt.mode.String(), func(t *testing.T) {
			if got := tt.mode.Next(); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestDownloadState(t *testing.T) {
	tc := []struct {
		state    DownloadState
		terminal bool
		active   bool
	}{
		{DownloadPending, false, true},
		{DownloadDownloading, false, true},
		{DownloadPaused, false, true},
		{DownloadCompleted, true, false},
		{DownloadFailed, true, false},
		{DownloadCancelled, true, false},
	}

	for _, tt := range tc {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
			if got := tt.state.IsActive(); got != tt.active {
				t.Errorf("IsActive() = %v, want %v", got, tt.active)
			}
		})
	}
}

func TestDownloadProgressPercent(t *testing.T) {
	tc := []struct {
		name     string
		progress float64
		want     int
	}{
		{"negative", -0.5, 0},
		{"zero", 0, 0},
		{"half", 0.5, 50},
		{"complete", 1, 100},
		{"overshoot", 1.2, 100},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			p := DownloadProgress{Progress: tt.progress}
			if got := p.Percent(); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestQueueSourceString(t *testing.T) {
	tc := []struct {
		name   string
		source QueueSource
		want   string
	}{
		{"none", QueueSource{Source: SourceNone}, ""},
		{"named playlist", QueueSource{Source: SourcePlaylist, SourceID: "p1", SourceName: "Road Trip"}, "Road Trip"},
		{"unnamed album", QueueSource{Source: SourceAlbum, SourceID: "a1"}, "album a1"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.source.String(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestTrackItemCatalogTrack(t *testing.T) {
	child := Child{ID: "1", Title: "One", Genre: "Jazz"}

	t.Run("value extra", func(t *testing.T) {
		got := TrackItem{ID: "1", Extra: child}.CatalogTrack()
		if got.Genre != "Jazz" {
			t.Errorf("expected extra to be recovered, got %+v", got)
		}
	})

	t.Run("pointer extra", func(t *testing.T) {
		got := TrackItem{ID: "1", Extra: &child}.CatalogTrack()
		if got.Genre != "Jazz" {
			t.Errorf("expected extra to be recovered, got %+v", got)
		}
	})

	t.Run("fallback", func(t *testing.T) {
		got := TrackItem{ID: "2", Title: "Two", Duration: 61.5}.CatalogTrack()
		if got.ID != "2" || got.Title != "Two" || got.Duration != 61 {
			t.Errorf("unexpected fallback %+v", got)
		}
	})

	t.Run("queue item", func(t *testing.T) {
		q := NewQueueItem(TrackItem{ID: "1", Extra: child})
		if q.Child.ID != "1" || q.TrackItem.ID != "1" {
			t.Errorf("unexpected queue item %+v", q)
		}
	})
}
