package download

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/agin/internal/engine"
	"github.com/desertthunder/agin/internal/models"
	"github.com/desertthunder/agin/internal/repositories"
	"github.com/desertthunder/agin/internal/shared"
)

// mp3Body starts with an ID3 tag so the extension sniffs as mp3.
var mp3Body = append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), bytes.Repeat([]byte{0xAB}, 64*1024)...)

func setupStore(t *testing.T) *repositories.DownloadRepository {
	t.Helper()
	db, err := shared.NewDatabase(":memory:")
	require.NoError(t, err)
	shared.ConfigureDatabase(db, 1, 1)
	require.NoError(t, shared.RunMigrations(db))
	t.Cleanup(func() { db.Close() })
	return repositories.NewDownloadRepository(db)
}

func newManager(t *testing.T, store Store) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	m, err := New(Options{
		Dir:              dir,
		Store:            store,
		Logger:           shared.NewLogger(io.Discard),
		ProgressInterval: time.Millisecond,
		RetryBackoff:     time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m, dir
}

type recorder struct {
	events chan engine.Event
}

func record(m *Manager) *recorder {
	r := &recorder{events: make(chan engine.Event, 4096)}
	for _, kind := range []engine.EventKind{engine.EventDownloadProgress, engine.EventDownloadStateChange, engine.EventDownloadComplete} {
		m.Subscribe(kind, func(e engine.Event) { r.events <- e })
	}
	return r
}

func (r *recorder) waitState(t *testing.T, trackID string, state models.DownloadState) engine.StateChangeEvent {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-r.events:
			if sc, ok := e.(engine.StateChangeEvent); ok && sc.TrackID == trackID && sc.State == state {
				return sc
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s to reach %s", trackID, state)
		}
	}
}

func (r *recorder) waitComplete(t *testing.T) engine.CompleteEvent {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-r.events:
			if c, ok := e.(engine.CompleteEvent); ok {
				return c
			}
		case <-timeout:
			t.Fatal("timed out waiting for completion")
		}
	}
}

func item(id, url string) models.TrackItem {
	return models.TrackItem{ID: id, Title: "Track " + id, Artist: "Artist", URL: url}
}

func TestManagerDownloadTrack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "song", time.Time{}, bytes.NewReader(mp3Body))
	}))
	defer server.Close()

	store := setupStore(t)
	m, dir := newManager(t, store)
	require.NoError(t, m.Configure(engine.DownloadOptions{MaxConcurrent: 2}))
	require.NoError(t, m.SyncDownloads(context.Background()))
	rec := record(m)

	id, err := m.DownloadTrack(context.Background(), item("t1", server.URL), "p1")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	rec.waitState(t, "t1", models.DownloadPending)
	complete := rec.waitComplete(t)

	assert.Equal(t, id, complete.DownloadID)
	assert.Equal(t, filepath.Join(dir, "t1.mp3"), complete.Track.FilePath)
	assert.Equal(t, int64(len(mp3Body)), complete.Track.FileSize)
	assert.Equal(t, "p1", complete.Track.PlaylistID)

	data, err := os.ReadFile(complete.Track.FilePath)
	require.NoError(t, err)
	assert.Equal(t, mp3Body, data)

	assert.True(t, m.IsTrackDownloaded("t1"))
	assert.False(t, m.IsDownloading("t1"))
	assert.Empty(t, m.GetActiveDownloads())

	info, err := m.GetStorageInfo()
	require.NoError(t, err)
	assert.Equal(t, 1, info.TrackCount)

	_, err = m.DownloadTrack(context.Background(), item("t1", server.URL), "")
	assert.ErrorIs(t, err, shared.ErrAlreadyDownloaded)
}

// blockingServer writes half of mp3Body on the first request and then holds the
// connection open until the client goes away. Later requests are served normally.
func blockingServer(t *testing.T) (*httptest.Server, <-chan struct{}, *atomic.Int32) {
	t.Helper()
	started := make(chan struct{}, 1)
	var requests atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.Header().Set("Content-Length", strconv.Itoa(len(mp3Body)))
			w.WriteHeader(http.StatusOK)
			w.Write(mp3Body[:len(mp3Body)/2])
			w.(http.Flusher).Flush()
			started <- struct{}{}
			<-r.Context().Done()
			return
		}
		http.ServeContent(w, r, "song", time.Time{}, bytes.NewReader(mp3Body))
	}))
	t.Cleanup(server.Close)
	return server, started, &requests
}

func TestManagerPauseResume(t *testing.T) {
	server, started, _ := blockingServer(t)
	m, _ := newManager(t, setupStore(t))
	rec := record(m)

	id, err := m.DownloadTrack(context.Background(), item("t1", server.URL), "")
	require.NoError(t, err)
	<-started

	assert.True(t, m.IsDownloading("t1"))
	require.NoError(t, m.PauseDownload(context.Background(), id))
	rec.waitState(t, "t1", models.DownloadPaused)

	active := m.GetActiveDownloads()
	require.Len(t, active, 1)
	assert.Equal(t, models.DownloadPaused, active[0].State)
	assert.True(t, m.IsDownloading("t1"), "paused transfers still count as downloading")

	assert.ErrorIs(t, m.PauseDownload(context.Background(), id), shared.ErrInvalidState)

	require.NoError(t, m.ResumeDownload(context.Background(), id))
	complete := rec.waitComplete(t)

	data, err := os.ReadFile(complete.Track.FilePath)
	require.NoError(t, err)
	assert.Equal(t, mp3Body, data)
}

func TestManagerCancel(t *testing.T) {
	server, started, _ := blockingServer(t)
	m, dir := newManager(t, setupStore(t))
	rec := record(m)

	id, err := m.DownloadTrack(context.Background(), item("t1", server.URL), "")
	require.NoError(t, err)
	<-started

	require.NoError(t, m.CancelDownload(context.Background(), id))
	rec.waitState(t, "t1", models.DownloadCancelled)

	assert.False(t, m.IsDownloading("t1"))
	assert.Empty(t, m.GetActiveDownloads())
	_, err = os.Stat(filepath.Join(dir, partialDir, "t1.part"))
	assert.True(t, os.IsNotExist(err), "partial file should be removed")

	assert.ErrorIs(t, m.CancelDownload(context.Background(), id), shared.ErrDownloadNotFound)
}

func TestManagerRetry(t *testing.T) {
	var (
		healthy  atomic.Bool
		requests atomic.Int32
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if !healthy.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		http.ServeContent(w, r, "song", time.Time{}, bytes.NewReader(mp3Body))
	}))
	defer server.Close()

	m, _ := newManager(t, setupStore(t))
	require.NoError(t, m.Configure(engine.DownloadOptions{MaxConcurrent: 1, AutoRetry: true, MaxRetryAttempts: 3}))
	rec := record(m)

	id, err := m.DownloadTrack(context.Background(), item("t1", server.URL), "")
	require.NoError(t, err)

	failed := rec.waitState(t, "t1", models.DownloadFailed)
	assert.Error(t, failed.Err)
	assert.Equal(t, int32(3), requests.Load())
	assert.False(t, m.IsDownloading("t1"))

	healthy.Store(true)
	require.NoError(t, m.RetryDownload(context.Background(), id))
	rec.waitComplete(t)
	assert.True(t, m.IsTrackDownloaded("t1"))

	assert.ErrorIs(t, m.RetryDownload(context.Background(), "unknown"), shared.ErrDownloadNotFound)
}

func TestManagerDownloadPlaylist(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "song", time.Time{}, bytes.NewReader(mp3Body))
	}))
	defer server.Close()

	m, _ := newManager(t, setupStore(t))
	rec := record(m)

	items := []models.TrackItem{item("a", server.URL), item("b", server.URL), item("a", server.URL)}
	ids, err := m.DownloadPlaylist(context.Background(), "p1", items)
	require.NoError(t, err)
	assert.Len(t, ids, 2, "duplicate items are skipped")

	rec.waitComplete(t)
	rec.waitComplete(t)

	tracks, err := m.GetDownloadedTracks()
	require.NoError(t, err)
	assert.Len(t, tracks, 2)
}

func TestManagerDeleteAndSync(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "song", time.Time{}, bytes.NewReader(mp3Body))
	}))
	defer server.Close()

	store := setupStore(t)
	m, dir := newManager(t, store)
	require.NoError(t, m.SyncDownloads(context.Background()))
	rec := record(m)

	m.DownloadTrack(context.Background(), item("a", server.URL), "")
	a := rec.waitComplete(t)
	m.DownloadTrack(context.Background(), item("b", server.URL), "")
	b := rec.waitComplete(t)

	require.NoError(t, m.DeleteTrack(context.Background(), "a"))
	assert.False(t, m.IsTrackDownloaded("a"))
	_, err := os.Stat(a.Track.FilePath)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, os.Remove(b.Track.FilePath))
	require.NoError(t, m.SyncDownloads(context.Background()))
	assert.False(t, m.IsTrackDownloaded("b"), "rows with missing files are dropped")

	tracks, err := store.List("")
	require.NoError(t, err)
	assert.Empty(t, tracks)

	other, err := New(Options{Dir: dir, Store: store, Logger: shared.NewLogger(io.Discard)})
	require.NoError(t, err)
	assert.ErrorIs(t, other.SyncDownloads(context.Background()), shared.ErrDirectoryLocked)
}

func TestManagerDeleteAll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "song", time.Time{}, bytes.NewReader(mp3Body))
	}))
	defer server.Close()

	m, _ := newManager(t, setupStore(t))
	rec := record(m)

	m.DownloadPlaylist(context.Background(), "", []models.TrackItem{item("a", server.URL), item("b", server.URL)})
	rec.waitComplete(t)
	rec.waitComplete(t)

	require.NoError(t, m.DeleteAll(context.Background()))
	info, err := m.GetStorageInfo()
	require.NoError(t, err)
	assert.Zero(t, info.TrackCount)
	assert.False(t, m.IsTrackDownloaded("a"))
}

func TestNewValidates(t *testing.T) {
	_, err := New(Options{Store: setupStore(t)})
	assert.ErrorIs(t, err, shared.ErrInvalidArgument)

	_, err = New(Options{Dir: t.TempDir()})
	assert.ErrorIs(t, err, shared.ErrInvalidArgument)
}
