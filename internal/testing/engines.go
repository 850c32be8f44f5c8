package testing

import (
	"context"
	"fmt"
	"sync"

	"github.com/desertthunder/agin/internal/engine"
	"github.com/desertthunder/agin/internal/engine/playback"
	"github.com/desertthunder/agin/internal/models"
)

var (
	_ engine.DownloadEngine = (*FakeDownloadEngine)(nil)
	_ engine.PlaybackEngine = (*RecordingPlayer)(nil)
)

// FakeDownloadEngine records calls and lets tests emit events through its [engine.Bus].
//
// Errs maps an operation name (download, playlist, pause, resume, cancel, retry,
// delete, delete-all, sync) to the error it should return.
type FakeDownloadEngine struct {
	*engine.Bus

	mu              sync.Mutex
	Errs            map[string]error
	configured      []engine.DownloadOptions
	downloaded      map[string]bool
	downloading     map[string]bool
	active          []models.DownloadProgress
	tracks          []models.DownloadedTrack
	storage         models.StorageInfo
	submitted       []models.TrackItem
	calls           []string
	downloadedReads int
	storageReads    int
}

func NewFakeDownloadEngine() *FakeDownloadEngine {
	return &FakeDownloadEngine{
		Bus:         engine.NewBus(),
		Errs:        make(map[string]error),
		downloaded:  make(map[string]bool),
		downloading: make(map[string]bool),
	}
}

func (f *FakeDownloadEngine) record(op, arg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op+":"+arg)
	return f.Errs[op]
}

func (f *FakeDownloadEngine) Configure(opts engine.DownloadOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configured = append(f.configured, opts)
	return nil
}

func (f *FakeDownloadEngine) SyncDownloads(context.Context) error {
	return f.record("sync", "")
}

func (f *FakeDownloadEngine) IsTrackDownloaded(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloaded[id]
}

func (f *FakeDownloadEngine) IsDownloading(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloading[id]
}

func (f *FakeDownloadEngine) GetActiveDownloads() []models.DownloadProgress {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.DownloadProgress(nil), f.active...)
}

func (f *FakeDownloadEngine) GetDownloadedTracks() ([]models.DownloadedTrack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloadedReads++
	return append([]models.DownloadedTrack(nil), f.tracks...), nil
}

func (f *FakeDownloadEngine) GetStorageInfo() (models.StorageInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.storageReads++
	return f.storage, nil
}

func (f *FakeDownloadEngine) DownloadTrack(_ context.Context, item models.TrackItem, playlistID string) (string, error) {
	if err := f.record("download", item.ID); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, item)
	return "dl-" + item.ID, nil
}

func (f *FakeDownloadEngine) DownloadPlaylist(_ context.Context, playlistID string, items []models.TrackItem) ([]string, error) {
	if err := f.record("playlist", playlistID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(items))
	for i, item := range items {
		f.submitted = append(f.submitted, item)
		ids[i] = "dl-" + item.ID
	}
	return ids, nil
}

func (f *FakeDownloadEngine) PauseDownload(_ context.Context, id string) error {
	return f.record("pause", id)
}

func (f *FakeDownloadEngine) ResumeDownload(_ context.Context, id string) error {
	return f.record("resume", id)
}

func (f *FakeDownloadEngine) CancelDownload(_ context.Context, id string) error {
	return f.record("cancel", id)
}

func (f *FakeDownloadEngine) RetryDownload(_ context.Context, id string) error {
	return f.record("retry", id)
}

func (f *FakeDownloadEngine) DeleteTrack(_ context.Context, id string) error {
	if err := f.record("delete", id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.downloaded, id)
	return nil
}

func (f *FakeDownloadEngine) DeleteAll(context.Context) error {
	if err := f.record("delete-all", ""); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloaded = make(map[string]bool)
	f.tracks = nil
	return nil
}

// SetDownloaded marks tracks as already on disk.
func (f *FakeDownloadEngine) SetDownloaded(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.downloaded[id] = true
	}
}

// SetDownloading marks tracks as known to the engine's own bookkeeping.
func (f *FakeDownloadEngine) SetDownloading(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.downloading[id] = true
	}
}

func (f *FakeDownloadEngine) SetActive(p ...models.DownloadProgress) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = p
}

func (f *FakeDownloadEngine) SetTracks(tracks []models.DownloadedTrack, storage models.StorageInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks = tracks
	f.storage = storage
}

// Calls returns "op:arg" strings in call order.
func (f *FakeDownloadEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CountCalls returns how many calls were made to op.
func (f *FakeDownloadEngine) CountCalls(op string) int {
	n := 0
	for _, c := range f.Calls() {
		if len(c) > len(op) && c[:len(op)+1] == op+":" {
			n++
		}
	}
	return n
}

func (f *FakeDownloadEngine) Submitted() []models.TrackItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.TrackItem(nil), f.submitted...)
}

func (f *FakeDownloadEngine) Configured() []engine.DownloadOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.DownloadOptions(nil), f.configured...)
}

// Refreshes returns how many times the downloaded list and storage totals were read.
func (f *FakeDownloadEngine) Refreshes() (downloaded, storage int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloadedReads, f.storageReads
}

// EmitProgress publishes a progress event.
func (f *FakeDownloadEngine) EmitProgress(p models.DownloadProgress) {
	f.Publish(engine.ProgressEvent{Progress: p})
}

// EmitState publishes a state-change event.
func (f *FakeDownloadEngine) EmitState(downloadID, trackID string, state models.DownloadState, err error) {
	f.Publish(engine.StateChangeEvent{DownloadID: downloadID, TrackID: trackID, State: state, Err: err})
}

// EmitComplete publishes a completion event.
func (f *FakeDownloadEngine) EmitComplete(downloadID string, track models.DownloadedTrack) {
	f.Publish(engine.CompleteEvent{DownloadID: downloadID, Track: track})
}

// RecordingPlayer wraps the headless player, logging mutating calls and injecting errors.
type RecordingPlayer struct {
	*playback.Engine

	mu    sync.Mutex
	Errs  map[string]error
	calls []string
}

func NewRecordingPlayer(p *playback.Engine) *RecordingPlayer {
	return &RecordingPlayer{Engine: p, Errs: make(map[string]error)}
}

func (r *RecordingPlayer) record(op string, args ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	call := op
	for _, a := range args {
		call += fmt.Sprintf(":%v", a)
	}
	r.calls = append(r.calls, call)
	return r.Errs[op]
}

// Calls returns the recorded operations in order.
func (r *RecordingPlayer) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *RecordingPlayer) Play() error {
	if err := r.record("play"); err != nil {
		return err
	}
	return r.Engine.Play()
}

func (r *RecordingPlayer) Pause() error {
	if err := r.record("pause"); err != nil {
		return err
	}
	return r.Engine.Pause()
}

func (r *RecordingPlayer) Seek(seconds float64) error {
	if err := r.record("seek", seconds); err != nil {
		return err
	}
	return r.Engine.Seek(seconds)
}

func (r *RecordingPlayer) SkipToIndex(i int) error {
	if err := r.record("skip-to", i); err != nil {
		return err
	}
	return r.Engine.SkipToIndex(i)
}

func (r *RecordingPlayer) SkipToNext() error {
	if err := r.record("next"); err != nil {
		return err
	}
	return r.Engine.SkipToNext()
}

func (r *RecordingPlayer) SkipToPrevious() error {
	if err := r.record("previous"); err != nil {
		return err
	}
	return r.Engine.SkipToPrevious()
}

func (r *RecordingPlayer) AddToUpNext(items []models.TrackItem) error {
	if err := r.record("add-up-next", len(items)); err != nil {
		return err
	}
	return r.Engine.AddToUpNext(items)
}

func (r *RecordingPlayer) PlayNext(items []models.TrackItem) error {
	if err := r.record("play-next", len(items)); err != nil {
		return err
	}
	return r.Engine.PlayNext(items)
}

func (r *RecordingPlayer) SetRepeatMode(mode models.RepeatMode) error {
	if err := r.record("repeat", mode); err != nil {
		return err
	}
	return r.Engine.SetRepeatMode(mode)
}

func (r *RecordingPlayer) CreatePlaylist(id string, items []models.TrackItem) error {
	if err := r.record("create", id, len(items)); err != nil {
		return err
	}
	return r.Engine.CreatePlaylist(id, items)
}

func (r *RecordingPlayer) LoadPlaylist(id string) error {
	if err := r.record("load", id); err != nil {
		return err
	}
	return r.Engine.LoadPlaylist(id)
}
