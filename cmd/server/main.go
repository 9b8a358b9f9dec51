package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/gorm"

	"github.com/noel-cartinhas/noel/internal/auth"
	"github.com/noel-cartinhas/noel/internal/cartas"
	"github.com/noel-cartinhas/noel/internal/catalog"
	"github.com/noel-cartinhas/noel/internal/config"
	"github.com/noel-cartinhas/noel/internal/database"
	"github.com/noel-cartinhas/noel/internal/events"
	"github.com/noel-cartinhas/noel/internal/health"
	"github.com/noel-cartinhas/noel/internal/icons"
	"github.com/noel-cartinhas/noel/internal/identity"
	"github.com/noel-cartinhas/noel/internal/models"
	"github.com/noel-cartinhas/noel/internal/relatorios"
	"github.com/noel-cartinhas/noel/internal/router"
	"github.com/noel-cartinhas/noel/internal/storage"
	"github.com/noel-cartinhas/noel/internal/usuarios"
	"github.com/noel-cartinhas/noel/internal/worker"
)

func main() {
	mode := flag.String("mode", "all", "what to run: server, worker or all")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	slog.SetDefault(worker.NewLogger(cfg.LogLevel, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *mode); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *config.Config, mode string) error {
	serve := mode == "server" || mode == "all"
	work := mode == "worker" || mode == "all"
	if !serve && !work {
		return fmt.Errorf("unknown mode %q", mode)
	}
	if mode == "worker" && cfg.RedisURL == "" {
		return errors.New("worker mode needs REDIS_URL")
	}

	if cfg.EncryptionKey != "" {
		if err := models.InitEncryption(cfg.EncryptionKey); err != nil {
			return fmt.Errorf("failed to initialize encryption: %w", err)
		}
	} else {
		log.Println("WARNING: ENCRYPTION_KEY not set, employee IDs are stored in plain text")
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(db); err != nil {
			log.Printf("Failed to close database: %v", err)
		}
	}()

	if err := icons.Init(db, cfg.IconCatalog); err != nil {
		log.Printf("WARNING: icon catalog not loaded: %v", err)
	}

	var files *storage.Client
	if cfg.StorageEnabled() {
		files, err = openStorage(ctx, cfg)
		if err != nil {
			return err
		}
	} else {
		log.Println("MINIO_ENDPOINT not set, attachments are disabled")
	}

	store := events.NewStore(db)
	var recorder events.Recorder = store
	var queue cartas.ThumbnailQueue
	var stops []func()
	defer func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}()

	if cfg.RedisURL != "" {
		pub, err := events.NewPublisher(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to create event publisher: %w", err)
		}
		stops = append(stops, func() { _ = pub.Close() })
		recorder = pub

		client, err := worker.NewClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to create task client: %w", err)
		}
		stops = append(stops, func() { _ = client.Close() })
		queue = client
	} else {
		log.Println("REDIS_URL not set, events are written directly and no background worker runs")
	}

	repo := cartas.NewRepository(db)
	svc := cartas.NewService(repo, recorder)

	var reports *relatorios.Service
	if files != nil {
		reports = relatorios.NewService(files, repo)
	}

	if work && cfg.RedisURL != "" {
		workerStops, err := startBackground(cfg, store, svc, files, reports)
		if err != nil {
			return err
		}
		stops = append(stops, workerStops...)
	}

	if !serve {
		slog.Info("Worker running", "mode", mode)
		<-ctx.Done()
		return nil
	}

	handlers := &cartas.Handlers{
		Service: svc,
		Icons:   icons.NewSuggester(db),
		Thumbs:  queue,
		History: store,
	}
	if files != nil {
		handlers.Files = files
	}

	users := usuarios.NewRepository(db)
	idClient := identity.NewClient(cfg.IdentityAPIURL, cfg.IdentityTimeout, cfg.IdentityStub)
	if cfg.IdentityStub {
		log.Println("WARNING: IDENTITY_STUB enabled, any non-empty password is accepted")
	}

	checker := &health.Checker{
		Version:  cfg.AppVersion,
		Identity: idClient,
		DSN:      database.MaskDSN(cfg.DatabaseURL),
	}
	if sqlDB, err := db.DB(); err == nil {
		checker.DB = sqlDB
	}
	if files != nil {
		checker.Storage = files
	}

	engine := router.New(router.Deps{
		Config:  cfg,
		Auth:    auth.NewService(idClient, users),
		Cartas:  handlers,
		Users:   users,
		Catalog: catalog.NewRepository(db),
		Reports: reports,
		Health:  checker,
	})

	return listen(ctx, cfg, engine)
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Init(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.RunMigrations(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := database.SeedReference(db); err != nil {
		return nil, fmt.Errorf("failed to seed reference data: %w", err)
	}
	if err := database.EnsureBootstrapAdmin(db, cfg.BootstrapAdminEmail); err != nil {
		return nil, fmt.Errorf("failed to ensure bootstrap admin: %w", err)
	}
	if cfg.IsDevelopment() {
		if err := database.SeedDevData(db); err != nil {
			log.Printf("WARNING: failed to seed development data: %v", err)
		}
	}
	return db, nil
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage.Client, error) {
	files, err := storage.New(storage.Config{
		Endpoint:  cfg.MinioEndpoint,
		Bucket:    cfg.MinioBucket,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := files.EnsureBucket(ctx); err != nil {
		log.Printf("WARNING: bucket not ready: %v", err)
	}
	return files, nil
}

// startBackground runs the event consumer, the task worker and the
// scheduler, returning their stop functions in start order.
func startBackground(cfg *config.Config, store *events.Store, svc *cartas.Service, files *storage.Client, reports *relatorios.Service) ([]func(), error) {
	var stops []func()
	fail := func(err error) ([]func(), error) {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
		return nil, err
	}

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "noel"
	}
	stopConsumer, err := events.StartConsumer(cfg.RedisURL, host, store)
	if err != nil {
		return fail(fmt.Errorf("failed to start event consumer: %w", err))
	}
	stops = append(stops, stopConsumer)

	deps := worker.Deps{}
	if files != nil {
		deps.Thumbnails = &worker.Thumbnailer{Objects: files, Letters: svc}
	}
	if reports != nil {
		deps.Reports = reports
	}
	stopWorker, err := worker.Start(cfg, deps)
	if err != nil {
		return fail(err)
	}
	stops = append(stops, stopWorker)

	stopScheduler, err := worker.StartScheduler(cfg)
	if err != nil {
		return fail(err)
	}
	stops = append(stops, stopScheduler)

	return stops, nil
}

func listen(ctx context.Context, cfg *config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
