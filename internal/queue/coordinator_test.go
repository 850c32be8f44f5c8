package queue

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/agin/internal/engine/playback"
	"github.com/desertthunder/agin/internal/models"
	"github.com/desertthunder/agin/internal/notify"
	"github.com/desertthunder/agin/internal/services"
	"github.com/desertthunder/agin/internal/shared"
	tu "github.com/desertthunder/agin/internal/testing"
)

var (
	trackA = models.Child{ID: "a", Title: "Alpha", Artist: "Band", Duration: 180}
	trackB = models.Child{ID: "b", Title: "Bravo", Artist: "Band", Duration: 200}
	trackC = models.Child{ID: "c", Title: "Charlie", Artist: "Band", Duration: 220}
	trackD = models.Child{ID: "d", Title: "Delta", Artist: "Band", Duration: 240}
)

type harness struct {
	coord     *Coordinator
	player    *tu.RecordingPlayer
	cat       *tu.FakeCatalog
	clock     *tu.FakeClock
	notes     *tu.RecordingNotifier
	confirmer *tu.ScriptedConfirmer
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	logger := shared.NewLogger(io.Discard)
	h := &harness{
		player:    tu.NewRecordingPlayer(playback.New(logger)),
		cat:       tu.NewFakeCatalog(trackA, trackB, trackC, trackD),
		clock:     tu.NewFakeClock(),
		notes:     &tu.RecordingNotifier{},
		confirmer: &tu.ScriptedConfirmer{Answer: true},
	}

	opts.Engine = h.player
	opts.Catalog = h.cat
	opts.Items = services.NewTrackItems(tu.URLs{}, 300)
	opts.Notifier = h.notes
	opts.Confirmer = h.confirmer
	opts.Clock = h.clock
	opts.Logger = logger

	coord, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, coord.Start(context.Background()))
	t.Cleanup(coord.Close)
	h.coord = coord
	return h
}

func (h *harness) mark() int { return len(h.player.Calls()) }

func (h *harness) since(mark int) []string { return h.player.Calls()[mark:] }

func (h *harness) replace(t *testing.T, index int, tracks ...models.Child) {
	t.Helper()
	require.NoError(t, h.coord.Replace(context.Background(), tracks, ReplaceOptions{InitialIndex: index}))
}

func ids(q []models.QueueItem) []string {
	out := make([]string, len(q))
	for i, item := range q {
		out[i] = item.Child.ID
	}
	return out
}

func TestNewValidates(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestStart(t *testing.T) {
	h := newHarness(t, Options{})

	assert.Equal(t, []string{"repeat:off"}, h.player.Calls())
	snap := h.coord.Snapshot()
	assert.Equal(t, -1, snap.ActiveIndex)
	assert.Empty(t, snap.Queue)
	assert.Equal(t, models.SourceNone, snap.Source.Source)
	assert.False(t, snap.CanGoBackward())
	assert.False(t, snap.CanGoForward())
}

func TestReplace(t *testing.T) {
	h := newHarness(t, Options{})
	m := h.mark()
	source := models.QueueSource{Source: models.SourcePlaylist, SourceID: "pl-1", SourceName: "Road Trip"}

	err := h.coord.Replace(context.Background(), []models.Child{trackA, trackB, trackC}, ReplaceOptions{InitialIndex: 1, Source: source})
	require.NoError(t, err)

	assert.Equal(t, []string{"create:agin-queue:3", "load:agin-queue", "skip-to:1", "play"}, h.since(m))
	snap := h.coord.Snapshot()
	assert.Equal(t, []string{"a", "b", "c"}, ids(snap.Queue))
	assert.Equal(t, "b", snap.NowPlaying.ID)
	assert.Equal(t, 1, snap.ActiveIndex)
	assert.Equal(t, source, snap.Source)
	assert.True(t, snap.Playing)
	assert.Equal(t, "stream://b", snap.Queue[1].URL)
	assert.True(t, h.coord.CanGoForward())
	assert.True(t, h.coord.CanGoBackward())
}

func TestReplaceKeepsSourceWhenUnset(t *testing.T) {
	h := newHarness(t, Options{})
	source := models.QueueSource{Source: models.SourceAlbum, SourceID: "al-1"}
	require.NoError(t, h.coord.Replace(context.Background(), []models.Child{trackA}, ReplaceOptions{Source: source}))

	h.replace(t, 0, trackB)

	assert.Equal(t, source, h.coord.Snapshot().Source)
}

func TestReplaceShuffle(t *testing.T) {
	h := newHarness(t, Options{Rand: rand.New(rand.NewPCG(1, 2))})
	input := []models.Child{trackA, trackB, trackC, trackD}

	require.NoError(t, h.coord.Replace(context.Background(), input, ReplaceOptions{Shuffle: true}))

	want := slices.Clone(input)
	r := rand.New(rand.NewPCG(1, 2))
	r.Shuffle(len(want), func(i, j int) { want[i], want[j] = want[j], want[i] })

	got := ids(h.coord.Snapshot().Queue)
	assert.Equal(t, []string{want[0].ID, want[1].ID, want[2].ID, want[3].ID}, got)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, got)
	assert.Equal(t, "a", input[0].ID, "input is not modified")
}

func TestSetQueue(t *testing.T) {
	t.Run("keeps the playing track across a reorder", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.replace(t, 1, trackA, trackB, trackC)
		q := h.coord.Snapshot().Queue
		m := h.mark()

		require.NoError(t, h.coord.SetQueue([]models.QueueItem{q[2], q[0], q[1]}))

		snap := h.coord.Snapshot()
		assert.Equal(t, []string{"c", "a", "b"}, ids(snap.Queue))
		assert.Equal(t, "b", snap.NowPlaying.ID)
		assert.Equal(t, 2, snap.ActiveIndex)
		assert.Equal(t, []string{"create:agin-queue:3", "load:agin-queue", "skip-to:2"}, h.since(m))
		assert.Equal(t, "Bravo", snap.Queue[2].Child.Title)
	})

	t.Run("playing track removed", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.replace(t, 1, trackA, trackB, trackC)
		q := h.coord.Snapshot().Queue
		m := h.mark()

		require.NoError(t, h.coord.SetQueue([]models.QueueItem{q[2], q[0]}))

		assert.NotContains(t, h.since(m), "skip-to:1")
		snap := h.coord.Snapshot()
		assert.Equal(t, 0, snap.ActiveIndex)
		assert.Equal(t, "c", snap.NowPlaying.ID)
	})

	t.Run("nothing playing is a plain replace", func(t *testing.T) {
		h := newHarness(t, Options{})
		items := []models.QueueItem{
			models.NewQueueItem(services.NewTrackItems(tu.URLs{}, 0).ForPlayback(trackD)),
			models.NewQueueItem(services.NewTrackItems(tu.URLs{}, 0).ForPlayback(trackA)),
		}
		m := h.mark()

		require.NoError(t, h.coord.SetQueue(items))

		assert.Equal(t, []string{"create:agin-queue:2", "load:agin-queue"}, h.since(m))
		assert.Equal(t, []string{"d", "a"}, ids(h.coord.Snapshot().Queue))
	})
}

func TestAdd(t *testing.T) {
	ctx := context.Background()

	t.Run("empty queue starts playback", func(t *testing.T) {
		h := newHarness(t, Options{})
		m := h.mark()

		ok, err := h.coord.Add(ctx, "c")
		require.NoError(t, err)
		assert.True(t, ok)

		assert.Equal(t, []string{"create:agin-queue:1", "load:agin-queue", "play"}, h.since(m))
		snap := h.coord.Snapshot()
		assert.Equal(t, "c", snap.NowPlaying.ID)
		assert.True(t, snap.Playing)
	})

	t.Run("appends without disturbing playback", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.replace(t, 0, trackA, trackB)
		m := h.mark()

		ok, err := h.coord.Add(ctx, "d")
		require.NoError(t, err)
		assert.True(t, ok)

		assert.Equal(t, []string{"add-up-next:1"}, h.since(m))
		snap := h.coord.Snapshot()
		assert.Equal(t, []string{"a", "b", "d"}, ids(snap.Queue))
		assert.Equal(t, "a", snap.NowPlaying.ID)
	})

	t.Run("unknown track", func(t *testing.T) {
		h := newHarness(t, Options{})
		m := h.mark()

		ok, err := h.coord.Add(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, h.since(m))
	})
}

func TestPlayNext(t *testing.T) {
	h := newHarness(t, Options{})
	h.replace(t, 0, trackA, trackB)

	ok, err := h.coord.PlayNext(context.Background(), "d")
	require.NoError(t, err)
	assert.True(t, ok)

	snap := h.coord.Snapshot()
	assert.Equal(t, []string{"a", "d", "b"}, ids(snap.Queue))
	assert.Equal(t, "a", snap.NowPlaying.ID)

	h.cat.FetchErr = errors.New("server unavailable")
	ok, err = h.coord.PlayNext(context.Background(), "c")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPlayTrackNow(t *testing.T) {
	h := newHarness(t, Options{})
	h.replace(t, 0, trackA, trackB)

	ok, err := h.coord.PlayTrackNow(context.Background(), "c")
	require.NoError(t, err)
	assert.True(t, ok)
	snap := h.coord.Snapshot()
	assert.Equal(t, []string{"c"}, ids(snap.Queue))
	assert.Equal(t, "c", snap.NowPlaying.ID)

	ok, err = h.coord.PlayTrackNow(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	last, _ := h.notes.Last()
	assert.Equal(t, "Track Not Found", last.Title)
	assert.True(t, last.IsError())
	assert.Equal(t, "c", h.coord.Snapshot().NowPlaying.ID)
}

func TestNavigation(t *testing.T) {
	t.Run("jump", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.replace(t, 0, trackA, trackB, trackC)

		require.NoError(t, h.coord.JumpTo(2))
		assert.Equal(t, "c", h.coord.Snapshot().NowPlaying.ID)
		assert.False(t, h.coord.CanGoForward())

		assert.ErrorIs(t, h.coord.JumpTo(7), shared.ErrIndexOutOfRange)
		assert.Equal(t, 2, h.coord.Snapshot().ActiveIndex)
	})

	t.Run("skip forward stops at the end", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.replace(t, 0, trackA, trackB)

		require.NoError(t, h.coord.SkipForward())
		assert.Equal(t, 1, h.coord.Snapshot().ActiveIndex)
		require.NoError(t, h.coord.SkipForward())
		assert.Equal(t, 1, h.coord.Snapshot().ActiveIndex)
	})

	tests := []struct {
		name     string
		position float64
		call     string
		active   int
	}{
		{"early goes to previous track", 2, "previous", 0},
		{"at threshold goes to previous track", 5, "previous", 0},
		{"late restarts current track", 10, "seek:0", 1},
	}
	for _, tt := range tests {
		t.Run("skip backward "+tt.name, func(t *testing.T) {
			h := newHarness(t, Options{})
			h.replace(t, 1, trackA, trackB, trackC)
			require.NoError(t, h.player.Engine.Seek(tt.position))
			m := h.mark()

			require.NoError(t, h.coord.SkipBackward())

			assert.Equal(t, []string{tt.call}, h.since(m))
			snap := h.coord.Snapshot()
			assert.Equal(t, tt.active, snap.ActiveIndex)
			assert.Zero(t, snap.Position)
		})
	}
}

func TestEngineEventsRefresh(t *testing.T) {
	h := newHarness(t, Options{})
	h.replace(t, 0, trackA, trackB)

	h.player.Advance(10 * time.Second)
	assert.Equal(t, 10.0, h.coord.Snapshot().Position)

	h.player.Advance(175 * time.Second)
	snap := h.coord.Snapshot()
	assert.Equal(t, "b", snap.NowPlaying.ID)
	assert.Equal(t, 1, snap.ActiveIndex)
}

func TestClear(t *testing.T) {
	h := newHarness(t, Options{})
	h.replace(t, 1, trackA, trackB, trackC)
	m := h.mark()

	require.NoError(t, h.coord.Clear())

	assert.Equal(t, []string{"pause", "create:agin-queue:0", "load:agin-queue"}, h.since(m))
	snap := h.coord.Snapshot()
	assert.Empty(t, snap.Queue)
	assert.True(t, snap.NowPlaying.Empty())
	assert.Equal(t, -1, snap.ActiveIndex)
	assert.False(t, snap.CanGoBackward())
}

func TestClearConfirm(t *testing.T) {
	ctx := context.Background()

	t.Run("declined", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.replace(t, 0, trackA, trackB)
		h.confirmer.Answer = false

		ok, err := h.coord.ClearConfirm(ctx, ClearOptions{})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Len(t, h.coord.Snapshot().Queue, 2)

		asked := h.confirmer.Asked()
		require.Len(t, asked, 1)
		assert.Equal(t, "Clear Queue", asked[0].Title)
		assert.Equal(t, notify.VariantDestructive, asked[0].Variant)
	})

	t.Run("confirmed without wait", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.replace(t, 0, trackA, trackB)

		ok, err := h.coord.ClearConfirm(ctx, ClearOptions{})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, h.coord.Snapshot().Queue)
	})

	t.Run("wait pauses before clearing", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.replace(t, 0, trackA, trackB)
		m := h.mark()
		var confirmed atomic.Bool

		done := make(chan bool, 1)
		go func() {
			ok, err := h.coord.ClearConfirm(ctx, ClearOptions{Wait: true, OnConfirm: func() { confirmed.Store(true) }})
			assert.NoError(t, err)
			done <- ok
		}()

		require.True(t, h.clock.WaitForTimers(1, time.Second))
		assert.Equal(t, []string{"pause"}, h.since(m))
		assert.True(t, confirmed.Load())
		snap := h.coord.Snapshot()
		assert.Len(t, snap.Queue, 2)
		assert.False(t, snap.Playing)

		h.clock.Advance(499 * time.Millisecond)
		assert.Len(t, h.coord.Snapshot().Queue, 2)

		h.clock.Advance(time.Millisecond)
		assert.True(t, <-done)
		assert.Empty(t, h.coord.Snapshot().Queue)
	})

	t.Run("cancelled while waiting", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.replace(t, 0, trackA, trackB)
		cctx, cancel := context.WithCancel(ctx)

		done := make(chan error, 1)
		go func() {
			_, err := h.coord.ClearConfirm(cctx, ClearOptions{Wait: true})
			done <- err
		}()

		require.True(t, h.clock.WaitForTimers(1, time.Second))
		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
		assert.Len(t, h.coord.Snapshot().Queue, 2)
	})

	t.Run("confirmer error", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.confirmer.Err = io.ErrUnexpectedEOF

		ok, err := h.coord.ClearConfirm(ctx, ClearOptions{})
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
		assert.False(t, ok)
	})
}

func TestRepeatMode(t *testing.T) {
	h := newHarness(t, Options{})
	m := h.mark()

	want := []models.RepeatMode{models.RepeatPlaylist, models.RepeatTrack, models.RepeatOff}
	for _, mode := range want {
		require.NoError(t, h.coord.CycleRepeatMode())
		assert.Equal(t, mode, h.coord.Snapshot().RepeatMode)
		assert.Equal(t, mode, h.player.RepeatMode())
	}
	assert.Equal(t, []string{"repeat:playlist", "repeat:track", "repeat:off"}, h.since(m))

	require.NoError(t, h.coord.ChangeRepeatMode(models.RepeatTrack))
	assert.Equal(t, models.RepeatTrack, h.coord.Snapshot().RepeatMode)

	h.player.Errs["repeat"] = errors.New("unsupported")
	assert.Error(t, h.coord.CycleRepeatMode())
	assert.Equal(t, models.RepeatTrack, h.coord.Snapshot().RepeatMode)
}

func TestToggleStar(t *testing.T) {
	ctx := context.Background()

	t.Run("stars and keeps the flag across refreshes", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.replace(t, 0, trackA, trackB)

		require.NoError(t, h.coord.ToggleStar(ctx))

		snap := h.coord.Snapshot()
		assert.True(t, snap.NowPlaying.IsStarred())
		assert.True(t, snap.Queue[0].Child.IsStarred())
		assert.False(t, snap.Queue[1].Child.IsStarred())
		assert.Equal(t, []string{"a"}, h.cat.Starred())
		assert.Equal(t, 1, h.cat.Fetches("a"), "the catalog entry is refreshed")

		require.NoError(t, h.coord.SkipForward())
		require.NoError(t, h.coord.SkipBackward())
		assert.True(t, h.coord.Snapshot().NowPlaying.IsStarred())

		require.NoError(t, h.coord.ToggleStar(ctx))
		assert.False(t, h.coord.Snapshot().NowPlaying.IsStarred())
		assert.Equal(t, []string{"a"}, h.cat.Unstarred())
	})

	t.Run("failure rolls back", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.replace(t, 0, trackA)
		h.cat.StarErr = shared.ErrServerResponse

		var seen []bool
		h.coord.Subscribe(func(s Snapshot) { seen = append(seen, s.NowPlaying.IsStarred()) })

		err := h.coord.ToggleStar(ctx)
		assert.ErrorIs(t, err, shared.ErrServerResponse)
		assert.False(t, h.coord.Snapshot().NowPlaying.IsStarred())
		assert.Equal(t, []bool{true, false}, seen)

		last, _ := h.notes.Last()
		assert.Equal(t, "Error", last.Title)
	})

	t.Run("nothing playing", func(t *testing.T) {
		h := newHarness(t, Options{})

		require.NoError(t, h.coord.ToggleStar(ctx))
		assert.Empty(t, h.cat.Starred())
	})
}

func TestScrobble(t *testing.T) {
	h := newHarness(t, Options{Scrobble: true})
	h.replace(t, 0, trackA, trackB)
	require.NoError(t, h.coord.SkipForward())
	require.NoError(t, h.coord.SkipForward())
	h.coord.Close()

	assert.ElementsMatch(t, []string{"a", "b"}, h.cat.Scrobbles())
}

func TestScrobbleDisabled(t *testing.T) {
	h := newHarness(t, Options{})
	h.replace(t, 0, trackA)
	h.coord.Close()

	assert.Empty(t, h.cat.Scrobbles())
}

func TestCloseUnsubscribes(t *testing.T) {
	h := newHarness(t, Options{})
	h.coord.Close()

	assert.Empty(t, h.player.Calls()[1:])
	assert.NotPanics(t, func() { h.player.Advance(time.Second) })
}
