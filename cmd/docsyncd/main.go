// Command docsyncd is the daemon entrypoint: it loads the configured
// folder list from the control-plane database, starts one sync worker
// per folder, and serves the HTTP control API (teacher's cmd/server,
// generalized from one hard-coded folder to the configured set).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"docsync/internal/api"
	"docsync/internal/conflict"
	"docsync/internal/db"
	"docsync/internal/logbus"
	"docsync/internal/models"
	"docsync/internal/reconciler"
	"docsync/internal/remote"
	"docsync/internal/shadowdb"
	"docsync/internal/syncloop"
)

func main() {
	controlDBPath := flag.String("db", "docsyncd.db", "path to the control-plane sqlite database")
	addr := flag.String("addr", ":8080", "HTTP listen address")
	flag.Parse()

	bus := logbus.New()
	logger := zerolog.New(zerolog.MultiLevelWriter(os.Stdout, bus)).
		With().
		Timestamp().
		Str("service", "docsyncd").
		Logger()

	if err := run(*controlDBPath, *addr, logger, bus); err != nil {
		logger.Fatal().Err(err).Msg("docsyncd exited with error")
	}
}

func run(controlDBPath, addr string, logger zerolog.Logger, bus *logbus.Bus) error {
	database, err := db.NewDB(controlDBPath)
	if err != nil {
		return fmt.Errorf("opening control database: %w", err)
	}
	defer database.Close()

	configs, err := models.LoadAll(database.DB)
	if err != nil {
		return fmt.Errorf("loading folder configs: %w", err)
	}
	if len(configs) == 0 {
		logger.Warn().Msg("no folders configured; the control API is up but nothing will sync until one is added via PUT /api/folders and docsyncd is restarted")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	workers := make(map[string]*syncloop.Worker, len(configs))
	g, ctx := errgroup.WithContext(ctx)

	for _, cfg := range configs {
		cfg := cfg
		worker, err := buildWorker(cfg, logger, database)
		if err != nil {
			logger.Error().Err(err).Str("folder", cfg.CanonicalName).Msg("failed to set up folder; skipping")
			continue
		}
		workers[cfg.CanonicalName] = worker
		g.Go(func() error {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(api.CORS)

	apiGroup := e.Group("/api")
	api.SetupRoutes(apiGroup, database, workers, bus.Subscribe, bus.Unsubscribe)

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return e.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	return g.Wait()
}

// buildWorker assembles one folder's full pipeline: WebDAV client,
// shadow DB, conflict handler, reconciler, and the syncloop.Worker
// that drives repeated passes (spec §5: one worker per folder).
func buildWorker(cfg models.Config, logger zerolog.Logger, database *db.DB) (*syncloop.Worker, error) {
	if cfg.RepositoryID != "" {
		logger.Info().Str("folder", cfg.CanonicalName).Str("repositoryId", cfg.RepositoryID).
			Msg("repositoryId is configured but ignored by the WebDAV binding")
	}

	client := remote.NewWebDAVClient(cfg.URL, cfg.User, cfg.Password, 30*time.Second)

	shadow, err := shadowdb.Open(cfg.LocalPath+".cmissync", cfg.LocalPath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening shadow db: %w", err)
	}

	folderLogger := logger.With().Str("folder", cfg.CanonicalName).Logger()
	handler := conflict.New(api.ConflictNotifier(database, cfg.CanonicalName, folderLogger))
	rec := reconciler.New(shadow, cfg.Bidirectional, folderLogger, handler, reconciler.ActivityListener{})

	return &syncloop.Worker{
		Name:       cfg.CanonicalName,
		LocalRoot:  cfg.LocalPath,
		RemoteRoot: cfg.RemoteFolderPath,
		Client:     client,
		Logger:     folderLogger,
		Sync:       rec.Sync,
	}, nil
}
