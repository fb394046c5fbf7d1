// Package server wires storage, services and transports into the running
// template sync application and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/engarde/templatesync/internal/logging"
	"github.com/engarde/templatesync/internal/server/archive"
	"github.com/engarde/templatesync/internal/server/config"
	"github.com/engarde/templatesync/internal/server/httpapi"
	"github.com/engarde/templatesync/internal/server/repositories/repomanager"
	"github.com/engarde/templatesync/internal/server/services"

	gs "github.com/engarde/templatesync/internal/server/grpc"
)

// Services groups the domain services shared by the server and the admin CLI.
type Services struct {
	Folders  *services.FolderResolver
	Sync     *services.SyncService
	Migrate  *services.MigrationService
	Sessions *services.SessionService
}

func NewServices(db *sql.DB, m repomanager.RepositoryManager, archiver archive.Archiver, cfg *config.Config, logger logging.Logger) *Services {
	folders := services.NewFolderResolver(db, m, logger)
	syncer := services.NewSyncService(db, m, folders, services.NewTemplateCopier(), logger)
	return &Services{
		Folders:  folders,
		Sync:     syncer,
		Migrate:  services.NewMigrationService(db, m, archiver, logger),
		Sessions: services.NewSessionService(db, m, folders, syncer, cfg, logger),
	}
}

// newS3Archiver is a seam for tests.
var newS3Archiver = func(ctx context.Context, opts archive.S3Options) (archive.Archiver, error) {
	a, err := archive.NewS3Archiver(ctx, opts)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// NewArchiver returns the S3 archiver when archiving is enabled, a no-op
// archiver otherwise.
func NewArchiver(ctx context.Context, cfg *config.Config) (archive.Archiver, error) {
	if !cfg.ArchiveEnabled {
		return archive.Noop{}, nil
	}
	return newS3Archiver(ctx, archive.S3Options{
		Region:       cfg.S3Region,
		AccessKey:    cfg.S3RootUser,
		SecretKey:    cfg.S3RootPassword,
		Bucket:       cfg.S3Bucket,
		BaseEndpoint: cfg.S3BaseEndpoint,
	})
}

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	services *Services
	health   *gs.HealthServer
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, cfg.SlogLevel())

	db, err := repomanager.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	archiver, err := NewArchiver(ctx, cfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive init error: %w", err)
	}

	return &App{
		config:   cfg,
		logger:   logger,
		db:       db,
		services: NewServices(db, m, archiver, cfg, logger),
		health:   gs.NewHealthServer(cfg.HealthAddrGRPC, logger),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.health.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	secret := []byte(app.config.SecretKey)
	h := httpapi.NewHandler(app.services.Sync, app.services.Migrate, app.services.Sessions, app.logger)
	srv := httpapi.NewServer(app.config.HTTPAddr, httpapi.NewRouter(h, secret, app.logger), app.logger)

	if err := srv.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	app.health.MarkServing()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
