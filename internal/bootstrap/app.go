package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"submission-backend/internal/bookings"
	"submission-backend/internal/cleanup"
	"submission-backend/internal/janitor"
	"submission-backend/internal/queues"
	"submission-backend/internal/queuestore"
	"submission-backend/internal/shared/config"
	"submission-backend/internal/shared/server"
	"submission-backend/internal/shared/storage/db"
	"submission-backend/internal/shared/storage/object"
	localstore "submission-backend/internal/shared/storage/object/local"
	s3store "submission-backend/internal/shared/storage/object/s3"
	"submission-backend/internal/submissions"
	"submission-backend/internal/uploads"
)

// App holds shared dependencies.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB

	KV      *queuestore.Store
	Queues  *queues.Store
	Objects object.ObjectStore
	Issuer  object.UploadIssuer
	Cleanup cleanup.Client

	Orchestrator      *uploads.Orchestrator
	SubmissionService *submissions.Service
	BookingService    *bookings.Service
	Janitor           *janitor.Janitor

	QueueHandler      *queues.Handler
	SubmissionHandler *submissions.Handler
	BookingHandler    *bookings.Handler
}

// Build prepares shared dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	kv, err := queuestore.Open(cfg.QueueDBPath)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}
	queueStore := queues.NewStore(kv)

	objects, issuer, localUploads, err := buildObjects(ctx, cfg)
	if err != nil {
		return nil, err
	}

	cleanupClient, err := buildCleanup(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:  cfg,
		DB:      sqlDB,
		KV:      kv,
		Queues:  queueStore,
		Objects: objects,
		Issuer:  issuer,
		Cleanup: cleanupClient,
	}

	buildServices(app)

	var gc janitor.GarbageCollector
	if enq := gcFor(app); enq != nil {
		gc = enq
	}
	app.Janitor = janitor.New(queueStore, gc, cfg.JanitorSpec)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:            cfg,
		QueueHandler:      app.QueueHandler,
		SubmissionHandler: app.SubmissionHandler,
		BookingHandler:    app.BookingHandler,
		LocalUploads:      localUploads,
	})

	return app, nil
}

// Close releases the durable queue store and database handles.
func (a *App) Close() error {
	var firstErr error
	if a.KV != nil {
		if err := a.KV.Close(); err != nil {
			firstErr = err
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildObjects(ctx context.Context, cfg config.Config) (object.ObjectStore, object.UploadIssuer, http.Handler, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		store, err := s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, store, nil, nil
	default:
		store := localstore.New(cfg.LocalStoreDir)
		baseURL := strings.TrimRight(cfg.PublicBaseURL, "/")
		if baseURL == "" {
			baseURL = "http://localhost:" + cfg.Port
		}
		return store, store.Issuer(baseURL), store.Handler(), nil
	}
}

func buildCleanup(ctx context.Context, cfg config.Config) (cleanup.Client, error) {
	if strings.TrimSpace(cfg.CleanupQueueURL) == "" {
		if isDevLike(cfg.Env) {
			return &cleanup.MemoryClient{}, nil
		}
		return nil, nil
	}
	return cleanup.NewSQSClient(ctx, cfg.AWSRegion, cfg.CleanupQueueURL)
}

func buildServices(app *App) {
	var records submissions.RecordStore
	var bookingRepo bookings.Repo
	if app.DB != nil {
		records = &submissions.PGRecordStore{DB: app.DB}
		bookingRepo = &bookings.PGRepo{DB: app.DB}
	} else {
		records = submissions.NewMemoryRecordStore()
		bookingRepo = bookings.NewMemoryRepo()
	}

	var probe uploads.Prober = uploads.AlwaysOnline{}
	if addr := strings.TrimSpace(app.Config.ProbeAddress); addr != "" {
		probe = uploads.NewDialProber(addr)
	}
	app.Orchestrator = &uploads.Orchestrator{
		Issuer:  app.Issuer,
		Journal: app.Queues,
		Probe:   probe,
	}

	app.SubmissionService = submissions.NewService(app.Queues, records, app.Objects, app.Orchestrator)
	if enq := gcFor(app); enq != nil {
		app.SubmissionService.GC = enq
	}
	app.BookingService = bookings.NewService(bookingRepo)

	app.QueueHandler = queues.NewHandler(app.Queues, app.Config.QueueTTL)
	app.SubmissionHandler = submissions.NewHandler(app.SubmissionService)
	app.BookingHandler = bookings.NewHandler(app.BookingService)
}

func gcFor(app *App) *cleanup.Enqueuer {
	if app.Cleanup == nil {
		return nil
	}
	return &cleanup.Enqueuer{Queue: app.Cleanup}
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
