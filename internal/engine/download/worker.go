package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/h2non/filetype"
	"golang.org/x/time/rate"

	"github.com/desertthunder/agin/internal/engine"
	"github.com/desertthunder/agin/internal/models"
)

const (
	copyBufferSize = 32 * 1024
	sniffSize      = 261
)

// start launches the transfer goroutine for j unless it is already running.
func (m *Manager) start(j *job) {
	m.mu.Lock()
	if j.running || m.closed {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	j.running = true
	j.cancel = cancel
	slots := m.slots
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(ctx, j, slots)
}

func (m *Manager) run(ctx context.Context, j *job, slots chan struct{}) {
	defer m.wg.Done()
	logger := m.logger.With("download", j.id, "track", j.trackID)

	select {
	case slots <- struct{}{}:
		defer func() { <-slots }()
	case <-ctx.Done():
		m.stopped(j, context.Cause(ctx))
		return
	}

	m.setState(j, models.DownloadDownloading, nil)

	for {
		err := m.transfer(ctx, j)
		if err == nil {
			err = m.finish(j)
			if err == nil {
				return
			}
		}

		if ctx.Err() != nil {
			m.stopped(j, context.Cause(ctx))
			return
		}

		m.mu.Lock()
		j.attempts++
		attempts, retry := j.attempts, m.cfg.AutoRetry && j.attempts < m.cfg.MaxRetryAttempts
		m.mu.Unlock()

		if !retry {
			logger.Error("download failed", "attempts", attempts, "err", err)
			m.fail(j, err)
			return
		}

		backoff := m.retryBackoff * time.Duration(attempts)
		logger.Warn("download attempt failed, retrying", "attempt", attempts, "backoff", backoff, "err", err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			m.stopped(j, context.Cause(ctx))
			return
		}
	}
}

func (m *Manager) setState(j *job, state models.DownloadState, err error) {
	m.mu.Lock()
	j.state = state
	m.mu.Unlock()
	m.publishState(j.id, j.trackID, state, err)
}

// stopped settles a job whose context was cancelled.
func (m *Manager) stopped(j *job, cause error) {
	m.mu.Lock()
	j.running = false
	if errors.Is(cause, errCancelled) {
		m.forgetLocked(j)
		m.mu.Unlock()
		m.discardPartial(j)
		m.publishState(j.id, j.trackID, models.DownloadCancelled, nil)
		return
	}
	j.state = models.DownloadPaused
	m.mu.Unlock()

	if errors.Is(cause, errShutdown) {
		return
	}
	m.publishState(j.id, j.trackID, models.DownloadPaused, nil)
}

func (m *Manager) fail(j *job, err error) {
	m.mu.Lock()
	j.running = false
	j.state = models.DownloadFailed
	if m.byTrack[j.trackID] == j.id {
		delete(m.byTrack, j.trackID)
	}
	m.mu.Unlock()
	m.publishState(j.id, j.trackID, models.DownloadFailed, err)
}

func (m *Manager) partialPath(j *job) string {
	return filepath.Join(m.dir, partialDir, j.trackID+".part")
}

func (m *Manager) discardPartial(j *job) {
	removeFile(m.logger, m.partialPath(j))
}

// transfer streams the item URL into the partial file, resuming from its current size.
func (m *Manager) transfer(ctx context.Context, j *job) error {
	path := m.partialPath(j)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open partial file: %w", err)
	}
	defer f.Close()

	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("failed to seek partial file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.item.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if offset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		if offset > 0 {
			if err := f.Truncate(0); err != nil {
				return fmt.Errorf("failed to restart partial file: %w", err)
			}
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("failed to restart partial file: %w", err)
			}
			offset = 0
		}
	case http.StatusRequestedRangeNotSatisfiable:
		return nil
	default:
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	m.mu.Lock()
	j.written = offset
	if resp.ContentLength >= 0 {
		j.total = offset + resp.ContentLength
	}
	m.mu.Unlock()

	limiter := rate.NewLimiter(rate.Every(m.progressInterval), 1)
	buf := make([]byte, copyBufferSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := f.Write(buf[:n]); err != nil {
				return fmt.Errorf("failed to write partial file: %w", err)
			}
			m.mu.Lock()
			j.written += int64(n)
			m.mu.Unlock()
			if limiter.Allow() {
				m.publishProgress(j)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}

	m.mu.Lock()
	if j.total < j.written {
		j.total = j.written
	}
	m.mu.Unlock()
	m.publishProgress(j)
	return nil
}

// finish moves the partial file into place, fetches artwork and records the download.
func (m *Manager) finish(j *job) error {
	partial := m.partialPath(j)

	ext, err := sniffExtension(partial)
	if err != nil {
		return err
	}
	if ext == "" {
		ext = j.item.CatalogTrack().Suffix
	}
	if ext == "" {
		ext = "audio"
	}

	dest := filepath.Join(m.dir, j.trackID+"."+ext)
	if err := os.Rename(partial, dest); err != nil {
		return fmt.Errorf("failed to move download into place: %w", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return fmt.Errorf("failed to stat download: %w", err)
	}

	m.mu.Lock()
	withArtwork := m.cfg.DownloadArtwork
	m.mu.Unlock()

	var artwork string
	if withArtwork && j.item.Artwork != "" {
		if artwork, err = m.fetchArtwork(j); err != nil {
			m.logger.Warn("artwork download failed", "track", j.trackID, "err", err)
		}
	}

	record := models.DownloadedTrack{
		TrackID:      j.trackID,
		PlaylistID:   j.playlistID,
		Title:        j.item.Title,
		Artist:       j.item.Artist,
		Album:        j.item.Album,
		Duration:     j.item.Duration,
		FilePath:     dest,
		ArtworkPath:  artwork,
		FileSize:     info.Size(),
		DownloadedAt: time.Now(),
	}
	if err := m.store.Save(record); err != nil {
		return fmt.Errorf("failed to record download: %w", err)
	}

	m.mu.Lock()
	j.running = false
	j.state = models.DownloadCompleted
	m.forgetLocked(j)
	m.downloaded[j.trackID] = true
	m.mu.Unlock()

	m.publishState(j.id, j.trackID, models.DownloadCompleted, nil)
	m.bus.Publish(engine.CompleteEvent{DownloadID: j.id, Track: record})
	return nil
}

func (m *Manager) fetchArtwork(j *job) (string, error) {
	resp, err := m.client.Get(j.item.Artwork)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	ext := "img"
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		ext = kind.Extension
	}

	path := filepath.Join(m.dir, artworkDir, j.trackID+"."+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// sniffExtension returns the extension matching the file's magic bytes, or "".
func sniffExtension(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open download: %w", err)
	}
	defer f.Close()

	head := make([]byte, sniffSize)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read download: %w", err)
	}

	kind, err := filetype.Match(head[:n])
	if err != nil || kind == filetype.Unknown {
		return "", nil
	}
	return kind.Extension, nil
}
