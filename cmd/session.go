package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/agin/internal/downloads"
	"github.com/desertthunder/agin/internal/engine"
	"github.com/desertthunder/agin/internal/engine/download"
	"github.com/desertthunder/agin/internal/engine/playback"
	"github.com/desertthunder/agin/internal/notify"
	"github.com/desertthunder/agin/internal/queue"
	"github.com/desertthunder/agin/internal/repositories"
	"github.com/desertthunder/agin/internal/services"
	"github.com/desertthunder/agin/internal/shared"
)

const (
	artworkSize  = 300
	tickInterval = 250 * time.Millisecond
)

// Deps overrides the collaborators a [Runner] would otherwise build from its configuration.
type Deps struct {
	Catalog  services.Catalog
	URLs     services.URLBuilder
	Engine   engine.DownloadEngine
	Player   *playback.Engine
	Clock    shared.Clock
	Notifier notify.Notifier
}

// sessionOpts selects what a command needs from [Runner.open].
type sessionOpts struct {
	catalogOnly bool
	queue       bool
	play        bool
	notifier    notify.Notifier
	confirmer   notify.Confirmer
}

// session is the wired set of collaborators behind one command.
type session struct {
	db        *sql.DB
	catalog   services.Catalog
	urls      services.URLBuilder
	downloads *downloads.Coordinator
	queue     *queue.Coordinator
	player    *playback.Engine
	closers   []func()
}

// Close releases everything in reverse order of acquisition.
func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func (s *session) onClose(fn func()) {
	s.closers = append(s.closers, fn)
}

// database validates the configuration and opens the database once per session.
func (r *Runner) database(s *session) (*sql.DB, error) {
	if s.db != nil {
		return s.db, nil
	}
	if err := r.config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrInvalidConfig, err)
	}
	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db
	s.onClose(func() { db.Close() })
	return db, nil
}

// openCatalog sets the session catalog to a cached Subsonic client unless one was injected.
func (r *Runner) openCatalog(s *session) error {
	s.catalog, s.urls = r.deps.Catalog, r.deps.URLs
	if s.catalog != nil && s.urls != nil {
		return nil
	}

	db, err := r.database(s)
	if err != nil {
		return err
	}
	subsonic := services.NewSubsonicServiceFromConfig(r.config, r.logger)
	if s.urls == nil {
		s.urls = subsonic
	}
	if s.catalog == nil {
		cache := repositories.NewCacheRepository(db)
		s.catalog = services.NewCachedCatalog(subsonic, cache, r.config.Catalog.CacheTTL(), r.logger)
	}
	return nil
}

// open builds the catalog, engines and coordinators for a command and starts the coordinators.
func (r *Runner) open(ctx context.Context, opts sessionOpts) (_ *session, err error) {
	s := &session{}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	if err := r.openCatalog(s); err != nil {
		return nil, err
	}
	if opts.catalogOnly {
		return s, nil
	}

	deps := r.deps
	if deps.Engine == nil {
		db, err := r.database(s)
		if err != nil {
			return nil, err
		}
		manager, err := download.New(download.Options{
			Dir:        r.config.Downloads.Dir,
			Store:      repositories.NewDownloadRepository(db),
			HTTPClient: r.httpClient,
			Logger:     shared.WithLogger(r.logger, "component", "download"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create download engine: %w", err)
		}
		s.onClose(func() {
			if err := manager.Close(); err != nil {
				r.logger.Warn("failed to close download engine", "error", err)
			}
		})
		deps.Engine = manager
	}

	if deps.Clock == nil {
		deps.Clock = shared.SystemClock{}
	}
	notifier := opts.notifier
	if notifier == nil {
		notifier = deps.Notifier
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(r.logger)
	}

	items := services.NewTrackItems(s.urls, artworkSize)
	cfg := r.config.Downloads

	s.downloads, err = downloads.New(downloads.Options{
		Engine:   deps.Engine,
		Catalog:  s.catalog,
		Items:    items,
		Notifier: notifier,
		Clock:    deps.Clock,
		Logger:   shared.WithLogger(r.logger, "component", "downloads"),
		EngineOptions: engine.DownloadOptions{
			MaxConcurrent:       cfg.MaxConcurrent,
			AutoRetry:           cfg.AutoRetry,
			MaxRetryAttempts:    cfg.MaxRetryAttempts,
			DownloadArtwork:     cfg.DownloadArtwork,
			BackgroundDownloads: cfg.Background,
			PlaybackSource:      cfg.PlaybackSource,
		},
		FlushInterval:   cfg.FlushInterval(),
		CompletionHold:  cfg.CompletionHold(),
		RefreshDebounce: cfg.RefreshDebounce(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.downloads.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start downloads: %w", err)
	}
	s.onClose(s.downloads.Close)

	if !opts.queue {
		return s, nil
	}

	s.player = deps.Player
	if s.player == nil {
		s.player = playback.New(shared.WithLogger(r.logger, "component", "playback"))
	}
	if opts.play {
		runCtx, cancel := context.WithCancel(ctx)
		go s.player.Run(runCtx, tickInterval)
		s.onClose(cancel)
	}

	s.queue, err = queue.New(queue.Options{
		Engine:           s.player,
		Catalog:          s.catalog,
		Items:            items,
		Notifier:         notifier,
		Confirmer:        opts.confirmer,
		Clock:            deps.Clock,
		Logger:           shared.WithLogger(r.logger, "component", "queue"),
		PlaylistID:       r.config.Queue.PlaylistID,
		RestartThreshold: r.config.Queue.RestartThreshold(),
		ClearDelay:       r.config.Queue.ClearDelay(),
		Scrobble:         r.config.Queue.Scrobble,
	})
	if err != nil {
		return nil, err
	}
	if err := s.queue.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start queue: %w", err)
	}
	s.onClose(s.queue.Close)

	return s, nil
}
