package repositories

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/agin/internal/models"
	"github.com/desertthunder/agin/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	shared.ConfigureDatabase(db, 1, 1)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func downloaded(trackID string, size int64) models.DownloadedTrack {
	return models.DownloadedTrack{
		TrackID:  trackID,
		Title:    "Title " + trackID,
		Artist:   "Artist",
		FilePath: "/music/" + trackID + ".mp3",
		FileSize: size,
	}
}

func TestDownloadRepository(t *testing.T) {
	t.Run("Save and Get", func(t *testing.T) {
		repo := NewDownloadRepository(setupTestDB(t))

		track := downloaded("t1", 1024)
		track.PlaylistID = "p1"
		if err := repo.Save(track); err != nil {
			t.Fatalf("failed to save download: %v", err)
		}

		got, err := repo.Get("t1")
		if err != nil {
			t.Fatalf("failed to get download: %v", err)
		}
		if got.Title != track.Title {
			t.Errorf("expected title %s, got %s", track.Title, got.Title)
		}
		if got.PlaylistID != "p1" {
			t.Errorf("expected playlist p1, got %s", got.PlaylistID)
		}
		if got.DownloadedAt.IsZero() {
			t.Error("expected downloaded_at to be set")
		}
	})

	t.Run("Save validates", func(t *testing.T) {
		repo := NewDownloadRepository(setupTestDB(t))

		if err := repo.Save(models.DownloadedTrack{FilePath: "/x"}); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("Save supersedes existing row", func(t *testing.T) {
		repo := NewDownloadRepository(setupTestDB(t))

		repo.Save(downloaded("t1", 10))
		if err := repo.Save(downloaded("t1", 20)); err != nil {
			t.Fatalf("failed to save again: %v", err)
		}

		tracks, err := repo.List("")
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if len(tracks) != 1 {
			t.Fatalf("expected 1 live row, got %d", len(tracks))
		}
		if tracks[0].FileSize != 20 {
			t.Errorf("expected newest row, got size %d", tracks[0].FileSize)
		}
	})

	t.Run("Get missing", func(t *testing.T) {
		repo := NewDownloadRepository(setupTestDB(t))

		if _, err := repo.Get("nope"); !errors.Is(err, shared.ErrTrackNotFound) {
			t.Errorf("expected ErrTrackNotFound, got %v", err)
		}
	})

	t.Run("List orders and filters", func(t *testing.T) {
		repo := NewDownloadRepository(setupTestDB(t))

		a, b, c := downloaded("a", 1), downloaded("b", 1), downloaded("c", 1)
		b.PlaylistID = "p"
		for _, tr := range []models.DownloadedTrack{a, b, c} {
			if err := repo.Save(tr); err != nil {
				t.Fatalf("failed to save %s: %v", tr.TrackID, err)
			}
		}

		all, _ := repo.List("")
		if len(all) != 3 || all[0].TrackID != "a" || all[2].TrackID != "c" {
			t.Errorf("unexpected order: %+v", all)
		}

		filtered, _ := repo.List("p")
		if len(filtered) != 1 || filtered[0].TrackID != "b" {
			t.Errorf("expected only b, got %+v", filtered)
		}
	})

	t.Run("Delete and Exists", func(t *testing.T) {
		repo := NewDownloadRepository(setupTestDB(t))
		repo.Save(downloaded("t1", 1))

		if ok, _ := repo.Exists("t1"); !ok {
			t.Fatal("expected t1 to exist")
		}
		if err := repo.Delete("t1"); err != nil {
			t.Fatalf("failed to delete: %v", err)
		}
		if ok, _ := repo.Exists("t1"); ok {
			t.Error("expected t1 to be gone")
		}
		if err := repo.Delete("t1"); !errors.Is(err, shared.ErrTrackNotFound) {
			t.Errorf("expected ErrTrackNotFound on second delete, got %v", err)
		}
	})

	t.Run("DeleteAll and Storage", func(t *testing.T) {
		repo := NewDownloadRepository(setupTestDB(t))
		repo.Save(downloaded("a", 100))
		repo.Save(downloaded("b", 250))

		info, err := repo.Storage()
		if err != nil {
			t.Fatalf("failed to get storage: %v", err)
		}
		if info.TotalBytes != 350 || info.TrackCount != 2 {
			t.Errorf("expected 350 bytes over 2 tracks, got %+v", info)
		}

		n, err := repo.DeleteAll()
		if err != nil {
			t.Fatalf("failed to delete all: %v", err)
		}
		if n != 2 {
			t.Errorf("expected 2 rows removed, got %d", n)
		}

		info, _ = repo.Storage()
		if info.TotalBytes != 0 || info.TrackCount != 0 {
			t.Errorf("expected empty storage, got %+v", info)
		}
	})
}

func TestCacheRepository(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	t.Run("Put and Get", func(t *testing.T) {
		repo := NewCacheRepository(setupTestDB(t)).WithClock(clock)

		if err := repo.Put("song", "1", []byte(`{"id":"1"}`), time.Hour); err != nil {
			t.Fatalf("failed to put: %v", err)
		}

		data, err := repo.Get("song", "1")
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		if string(data) != `{"id":"1"}` {
			t.Errorf("unexpected payload %s", data)
		}
	})

	t.Run("Miss and expiry", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewCacheRepository(db).WithClock(clock)

		if _, err := repo.Get("song", "missing"); !errors.Is(err, shared.ErrCacheMiss) {
			t.Errorf("expected ErrCacheMiss, got %v", err)
		}

		repo.Put("song", "1", []byte("x"), time.Minute)
		later := NewCacheRepository(db).WithClock(func() time.Time { return now.Add(2 * time.Minute) })
		if _, err := later.Get("song", "1"); !errors.Is(err, shared.ErrCacheMiss) {
			t.Errorf("expected expired entry to miss, got %v", err)
		}

		n, err := later.Prune()
		if err != nil {
			t.Fatalf("failed to prune: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 pruned entry, got %d", n)
		}
	})

	t.Run("Put overwrites and Invalidate removes", func(t *testing.T) {
		repo := NewCacheRepository(setupTestDB(t)).WithClock(clock)

		repo.Put("playlist", "p", []byte("old"), time.Hour)
		repo.Put("playlist", "p", []byte("new"), time.Hour)

		data, _ := repo.Get("playlist", "p")
		if string(data) != "new" {
			t.Errorf("expected overwrite, got %s", data)
		}

		if err := repo.Invalidate("playlist", "p"); err != nil {
			t.Fatalf("failed to invalidate: %v", err)
		}
		if _, err := repo.Get("playlist", "p"); !errors.Is(err, shared.ErrCacheMiss) {
			t.Errorf("expected miss after invalidate, got %v", err)
		}
	})
}
