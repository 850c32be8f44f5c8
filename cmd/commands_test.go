package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/agin/internal/engine/playback"
	"github.com/desertthunder/agin/internal/models"
	"github.com/desertthunder/agin/internal/shared"
	tu "github.com/desertthunder/agin/internal/testing"
)

var (
	alpha = models.Child{ID: "a", Title: "Alpha", Artist: "Band", Album: "Record", Duration: 61}
	bravo = models.Child{ID: "b", Title: "Bravo", Artist: "Band", Album: "Record", Duration: 125}
)

// syncBuffer guards output written by a command running on another goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	runner  *Runner
	catalog *tu.FakeCatalog
	engine  *tu.FakeDownloadEngine
	config  *shared.Config
	out     *syncBuffer
}

func newFixture(t *testing.T, input string) *fixture {
	t.Helper()
	t.Chdir(t.TempDir())

	config := shared.DefaultConfig()
	config.Database.Path = filepath.Join(t.TempDir(), "agin.db")
	config.Downloads.FlushIntervalMS = 10
	config.Downloads.CompletionHoldMS = 200
	config.Downloads.RefreshDebounceMS = 10
	config.Queue.Scrobble = false

	logger := shared.NewLogger(&bytes.Buffer{})
	f := &fixture{
		catalog: tu.NewFakeCatalog(alpha, bravo),
		engine:  tu.NewFakeDownloadEngine(),
		config:  config,
		out:     &syncBuffer{},
	}
	f.runner = NewRunner(RunnerOpts{
		Config: config,
		Logger: logger,
		Output: f.out,
		Input:  strings.NewReader(input),
		Deps: Deps{
			Catalog: f.catalog,
			URLs:    tu.URLs{},
			Engine:  f.engine,
			Player:  playback.New(logger),
		},
	})
	return f
}

func (f *fixture) run(args ...string) error {
	app := &cli.Command{
		Name: "agin",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "config.toml"},
			&cli.BoolFlag{Name: "debug"},
		},
		Before:   f.runner.Configure,
		Commands: f.runner.register(),
	}
	return app.Run(context.Background(), append([]string{"agin"}, args...))
}

// start runs a command in the background and returns a channel with its result.
func (f *fixture) start(args ...string) <-chan error {
	done := make(chan error, 1)
	go func() { done <- f.run(args...) }()
	return done
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func result(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("command did not return")
		return nil
	}
}

func TestConfigure(t *testing.T) {
	t.Run("loads the config file", func(t *testing.T) {
		f := newFixture(t, "")
		data := "[server]\nurl = \"http://music.example\"\nusername = \"listener\"\n\n[log]\nlevel = \"warn\"\n"
		if err := os.WriteFile("custom.toml", []byte(data), 0o644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		if err := f.run("--config", "custom.toml", "cache", "prune"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if f.runner.config.Server.URL != "http://music.example" {
			t.Errorf("expected server url from file, got %q", f.runner.config.Server.URL)
		}
		if f.runner.logger.GetLevel() != log.WarnLevel {
			t.Errorf("expected warn level, got %v", f.runner.logger.GetLevel())
		}
	})

	t.Run("missing file keeps current config", func(t *testing.T) {
		f := newFixture(t, "")
		if err := f.run("--debug", "cache", "prune"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if f.runner.config != f.config {
			t.Error("expected config to be kept")
		}
		if f.runner.logger.GetLevel() != log.DebugLevel {
			t.Errorf("expected debug level, got %v", f.runner.logger.GetLevel())
		}
	})

	t.Run("invalid file", func(t *testing.T) {
		f := newFixture(t, "")
		if err := os.WriteFile("config.toml", []byte("[server\n"), 0o644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		err := f.run("cache", "prune")
		if !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestSetup(t *testing.T) {
	t.Run("config", func(t *testing.T) {
		f := newFixture(t, "")
		if err := f.run("setup", "config"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, "config.toml")
		if !strings.Contains(f.out.String(), "Configuration written to config.toml") {
			t.Errorf("unexpected output %q", f.out.String())
		}

		if err := f.run("setup", "config"); err == nil {
			t.Error("expected error when config already exists")
		}
	})

	t.Run("database", func(t *testing.T) {
		f := newFixture(t, "")
		if err := f.run("setup", "database"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, f.config.Database.Path)
		if !strings.Contains(f.out.String(), "Database ready") {
			t.Errorf("unexpected output %q", f.out.String())
		}

		if err := f.run("setup", "database", "--rollback"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(f.out.String(), "Rolled back to schema version 1") {
			t.Errorf("unexpected output %q", f.out.String())
		}
	})

	t.Run("server", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			status := `{"status":"ok","version":"1.16.1"}`
			if r.URL.Query().Get("u") != "listener" {
				status = `{"status":"failed","error":{"code":40,"message":"Wrong username or password"}}`
			}
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"subsonic-response":`+status+`}`)
		}))
		defer srv.Close()

		f := newFixture(t, "")
		f.config.Server.URL = srv.URL
		f.config.Server.Username = "listener"
		if err := f.run("setup", "server"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(f.out.String(), "Connected to "+srv.URL+" as listener") {
			t.Errorf("unexpected output %q", f.out.String())
		}

		f.config.Server.Username = "intruder"
		if err := f.run("setup", "server"); !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
	})

	t.Run("server without config", func(t *testing.T) {
		f := newFixture(t, "")
		f.config.Server.URL = ""
		if err := f.run("setup", "server"); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestDownloadTrack(t *testing.T) {
	t.Run("waits for completion", func(t *testing.T) {
		f := newFixture(t, "")
		done := f.start("download", "track", "a")

		waitFor(t, func() bool { return len(f.engine.Submitted()) == 1 })
		f.engine.EmitState("dl-a", "a", models.DownloadDownloading, nil)
		f.engine.EmitComplete("dl-a", models.DownloadedTrack{TrackID: "a", Title: "Alpha"})

		if err := result(t, done); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(f.out.String(), "✓ 1 downloaded") {
			t.Errorf("unexpected output %q", f.out.String())
		}
		if configured := f.engine.Configured(); len(configured) != 1 || configured[0].MaxConcurrent != 3 {
			t.Errorf("expected engine configured from config, got %+v", configured)
		}
	})

	t.Run("reports failure", func(t *testing.T) {
		f := newFixture(t, "")
		done := f.start("download", "track", "a")

		waitFor(t, func() bool { return len(f.engine.Submitted()) == 1 })
		f.engine.EmitState("dl-a", "a", models.DownloadFailed, errors.New("connection reset"))

		if err := result(t, done); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(f.out.String(), "0 downloaded, 1 failed") {
			t.Errorf("unexpected output %q", f.out.String())
		}
	})

	t.Run("unknown track", func(t *testing.T) {
		f := newFixture(t, "")
		err := f.run("download", "track", "missing")
		if !errors.Is(err, shared.ErrTrackNotFound) {
			t.Errorf("expected ErrTrackNotFound, got %v", err)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		f := newFixture(t, "")
		err := f.run("download", "track")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})
}

func TestDownloadPlaylist(t *testing.T) {
	f := newFixture(t, "")
	f.catalog.AddPlaylist(models.Playlist{ID: "p1", Name: "Mix", Entry: []models.Child{alpha, bravo}})
	f.engine.SetDownloaded("b")
	f.engine.SetTracks([]models.DownloadedTrack{{TrackID: "b", Title: "Bravo"}}, models.StorageInfo{TotalBytes: 10, TrackCount: 1})

	done := f.start("download", "playlist", "p1")
	waitFor(t, func() bool { return len(f.engine.Submitted()) == 1 })
	f.engine.EmitState("dl-a", "a", models.DownloadDownloading, nil)
	f.engine.EmitComplete("dl-a", models.DownloadedTrack{TrackID: "a", Title: "Alpha"})

	if err := result(t, done); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	out := f.out.String()
	if !strings.Contains(out, "Mix: 1 queued, 1 skipped") {
		t.Errorf("expected queue summary, got %q", out)
	}
	if !strings.Contains(out, "✓ 2 downloaded") {
		t.Errorf("expected both tracks downloaded, got %q", out)
	}
}

func TestDownloadAlbum(t *testing.T) {
	f := newFixture(t, "")
	f.catalog.AddAlbum(models.Album{ID: "al1", Name: "Record", Song: []models.Child{alpha}})

	done := f.start("download", "album", "al1")
	waitFor(t, func() bool { return len(f.engine.Submitted()) == 1 })
	if got := f.engine.Calls(); !contains(got, "playlist:al1") {
		t.Errorf("expected album submitted as a playlist, got %v", got)
	}
	f.engine.EmitState("dl-a", "a", models.DownloadCancelled, nil)

	if err := result(t, done); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(f.out.String(), "1 failed") {
		t.Errorf("unexpected output %q", f.out.String())
	}
}

func TestDownloadsCommands(t *testing.T) {
	library := func(f *fixture) {
		f.engine.SetDownloaded("a", "b")
		f.engine.SetTracks([]models.DownloadedTrack{
			{TrackID: "a", Title: "Alpha", Artist: "Band", FileSize: 1024},
			{TrackID: "b", Title: "Bravo", Artist: "Band", FileSize: 2048},
		}, models.StorageInfo{TotalBytes: 3072, TrackCount: 2})
	}

	t.Run("list", func(t *testing.T) {
		f := newFixture(t, "")
		library(f)
		if err := f.run("downloads", "list"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		out := f.out.String()
		for _, want := range []string{"Downloads (2 tracks, 3.0 KiB)", "Band - Alpha", "Band - Bravo"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output %q", want, out)
			}
		}
	})

	t.Run("list json", func(t *testing.T) {
		f := newFixture(t, "")
		library(f)
		if err := f.run("downloads", "list", "--json", "--pretty=false"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(f.out.String(), `"id":"a"`) {
			t.Errorf("expected JSON rows, got %q", f.out.String())
		}
	})

	t.Run("delete", func(t *testing.T) {
		f := newFixture(t, "")
		library(f)
		if err := f.run("downloads", "delete", "a"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !contains(f.engine.Calls(), "delete:a") {
			t.Errorf("expected engine delete, got %v", f.engine.Calls())
		}

		if err := f.run("downloads", "delete", "zzz"); !errors.Is(err, shared.ErrTrackNotFound) {
			t.Errorf("expected ErrTrackNotFound, got %v", err)
		}
	})

	t.Run("clear confirmed", func(t *testing.T) {
		f := newFixture(t, "y\n")
		library(f)
		if err := f.run("downloads", "clear"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if f.engine.CountCalls("delete-all") != 1 {
			t.Errorf("expected delete-all, got %v", f.engine.Calls())
		}
		if !strings.Contains(f.out.String(), "Deleted 2 tracks") {
			t.Errorf("unexpected output %q", f.out.String())
		}
	})

	t.Run("clear declined", func(t *testing.T) {
		f := newFixture(t, "n\n")
		library(f)
		if err := f.run("downloads", "clear"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if f.engine.CountCalls("delete-all") != 0 {
			t.Errorf("expected no delete-all, got %v", f.engine.Calls())
		}
		if !strings.Contains(f.out.String(), "Cancelled") {
			t.Errorf("unexpected output %q", f.out.String())
		}
	})

	t.Run("clear skips prompt with --yes", func(t *testing.T) {
		f := newFixture(t, "")
		library(f)
		if err := f.run("downloads", "clear", "--yes"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if f.engine.CountCalls("delete-all") != 1 {
			t.Errorf("expected delete-all, got %v", f.engine.Calls())
		}
	})

	t.Run("export", func(t *testing.T) {
		f := newFixture(t, "")
		library(f)
		if err := f.run("downloads", "export", "--format", "text", "--output", "library.txt"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		content := tu.MustReadFile(t, "library.txt")
		if !strings.Contains(content, "Alpha") || !strings.Contains(content, "Tracks: 2") {
			t.Errorf("unexpected export %q", content)
		}
	})

	t.Run("export rejects unknown format", func(t *testing.T) {
		f := newFixture(t, "")
		err := f.run("downloads", "export", "--format", "pdf")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestPlayHeadless(t *testing.T) {
	t.Run("album", func(t *testing.T) {
		f := newFixture(t, "")
		f.catalog.AddAlbum(models.Album{ID: "al1", Name: "Record", Song: []models.Child{alpha, bravo}})

		if err := f.run("play", "album", "--no-tui", "--index", "1", "--export", "queue.txt", "al1"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		out := f.out.String()
		for _, want := range []string{"Playing from Record", "   1. Band - Alpha [1:01]", ">  2. Band - Bravo [2:05]"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output %q", want, out)
			}
		}
		if content := tu.MustReadFile(t, "queue.txt"); !strings.Contains(content, "> ") {
			t.Errorf("expected current marker in export %q", content)
		}
	})

	t.Run("playlist", func(t *testing.T) {
		f := newFixture(t, "")
		f.catalog.AddPlaylist(models.Playlist{ID: "p1", Name: "Mix", Entry: []models.Child{bravo}})

		if err := f.run("play", "playlist", "--no-tui", "p1"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(f.out.String(), "Playing from Mix") {
			t.Errorf("unexpected output %q", f.out.String())
		}
	})

	t.Run("empty album", func(t *testing.T) {
		f := newFixture(t, "")
		f.catalog.AddAlbum(models.Album{ID: "al2", Name: "Nothing"})
		err := f.run("play", "album", "--no-tui", "al2")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestExport(t *testing.T) {
	t.Run("playlists and albums", func(t *testing.T) {
		f := newFixture(t, "")
		f.catalog.AddPlaylist(models.Playlist{ID: "p1", Name: "Mix", Entry: []models.Child{alpha}})
		f.catalog.AddAlbum(models.Album{ID: "al1", Name: "Record", Artist: "Band", Song: []models.Child{alpha, bravo}})

		err := f.run("export", "--format", "text", "--output", "out", "--rate", "100", "p1", "album:al1", "album:missing")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, filepath.Join("out", "p1_tracks.txt"))
		tu.AssertFileExists(t, filepath.Join("out", "al1_tracks.txt"))
		tu.AssertFileExists(t, filepath.Join("out", "export_manifest.json"))

		out := f.out.String()
		for _, want := range []string{"✓ Exported 2/3 collections to out", "album missing: failed to fetch album", "Manifest: out/export_manifest.json"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
		if len(f.engine.Configured()) != 0 {
			t.Error("export should not start the download engine")
		}
	})

	t.Run("invalid input", func(t *testing.T) {
		f := newFixture(t, "")
		if err := f.run("export"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
		if err := f.run("export", "artist:ar1"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if err := f.run("export", "--format", "pdf", "p1"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestCachePrune(t *testing.T) {
	f := newFixture(t, "")
	if err := f.run("cache", "prune"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(f.out.String(), "Removed 0 expired cache entries") {
		t.Errorf("unexpected output %q", f.out.String())
	}
}

func TestOpenRequiresValidConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	config := shared.DefaultConfig()
	config.Server.URL = ""
	runner := NewRunner(RunnerOpts{Config: config, Logger: shared.NewLogger(&bytes.Buffer{}), Output: &bytes.Buffer{}})

	_, err := runner.open(context.Background(), sessionOpts{})
	if !errors.Is(err, shared.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func contains(calls []string, want string) bool {
	for _, c := range calls {
		if c == want {
			return true
		}
	}
	return false
}
