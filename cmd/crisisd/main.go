package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lifeline-care/crisis/internal/crisis"
	"github.com/lifeline-care/crisis/internal/crisis/api"
	crisisconfig "github.com/lifeline-care/crisis/internal/crisis/config"
	"github.com/lifeline-care/crisis/internal/crisis/events"
	"github.com/lifeline-care/crisis/internal/crisis/followup"
	"github.com/lifeline-care/crisis/internal/notification"
	"github.com/lifeline-care/crisis/internal/privacy"
	"github.com/lifeline-care/crisis/internal/shared/config"
	"github.com/lifeline-care/crisis/internal/shared/database"
	bus "github.com/lifeline-care/crisis/internal/shared/events"
	"github.com/lifeline-care/crisis/internal/shared/logging"
	"github.com/lifeline-care/crisis/internal/shared/metrics"
	secmiddleware "github.com/lifeline-care/crisis/internal/shared/middleware"
	"github.com/lifeline-care/crisis/internal/storage"
)

// App holds all application dependencies
type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *database.DB
	Redis  *storage.RedisStore
	Bus    *bus.Bus
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Server.Env, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	app := &App{Config: cfg, Logger: logger}
	if err := run(ctx, app); err != nil {
		logger.Error("crisis engine stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, app *App) error {
	cfg, logger := app.Config, app.Logger

	backend, err := openBackend(ctx, app)
	if err != nil {
		return err
	}
	if app.DB != nil {
		defer app.DB.Close()
	}

	sealer, err := privacy.NewSealerFromPassphrase(cfg.Privacy.EncryptionKey)
	if err != nil {
		return fmt.Errorf("encryption key: %w", err)
	}
	primary := storage.NewSecureStore(backend, sealer)
	fallback := storage.NewSecureStore(storage.NewMemoryStore(), sealer)
	locks := storage.NewKeyedMutex()

	recorderOpts := []events.RecorderOption{
		events.WithLocks(locks),
		events.WithLogger(logger),
		events.WithPseudonymizer(privacy.NewPseudonymizer([]byte(cfg.Privacy.PseudonymKey), cfg.Privacy.FacilityCode)),
	}

	// Event streaming is optional
	if cfg.KurrentDB.Enabled {
		b, err := bus.NewBus(ctx, cfg.KurrentDB)
		if err != nil {
			logger.Warn("KurrentDB not available, running without event streaming", zap.Error(err))
		} else {
			app.Bus = b
			defer b.Close()
			recorderOpts = append(recorderOpts, events.WithPublisher(b))
			logger.Info("KurrentDB event bus initialized",
				zap.String("host", cfg.KurrentDB.Host),
				zap.Int("port", cfg.KurrentDB.Port),
			)
		}
	}

	feedback := notification.NewService(
		notification.NewLogProvider(logger),
		notification.NewLogProvider(logger),
		notification.DefaultServiceConfig(),
		logger,
	)
	if err := feedback.Start(ctx); err != nil {
		return fmt.Errorf("start feedback service: %w", err)
	}
	defer feedback.Stop()

	configs := crisisconfig.NewStore(
		crisisconfig.WithOverrideFile(cfg.Crisis.OverrideFile),
		crisisconfig.WithRemote(crisisconfig.NewRemoteLoader(cfg.Crisis.APIBaseURL, cfg.Crisis.RemoteTimeout, logger)),
		crisisconfig.WithLogger(logger),
	)
	if err := configs.Reload(ctx); err != nil {
		logger.Warn("crisis config overrides rejected, serving last valid config", zap.Error(err))
	}
	if cfg.Crisis.OverrideFile != "" {
		if err := configs.Watch(ctx); err != nil {
			logger.Warn("override file watcher not started", zap.Error(err))
		}
	}

	svc := crisis.NewService(crisis.Deps{
		Configs:        configs,
		Recorder:       events.NewRecorder(primary, fallback, recorderOpts...),
		Followups:      followup.NewScheduler(primary, locks, logger),
		Feedback:       feedback,
		DefaultCountry: cfg.Crisis.DefaultCountry,
		ActionTimeout:  cfg.Crisis.ActionTimeout,
		LogTimeout:     cfg.Crisis.LogTimeout,
		Logger:         logger,
	})
	defer svc.Wait()

	handler := api.NewHandler(svc, api.Options{
		Auth:    cfg.Auth,
		Limiter: secmiddleware.NewIPRateLimiter(cfg.Crisis.RateLimitRPS, cfg.Crisis.RateLimitBurst),
		Guard:   privacy.NewGuard(logger),
		Logger:  logger,
	})

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(secmiddleware.BodyLimit(64 << 10))
	r.Use(metrics.Middleware)
	r.Use(secmiddleware.CORS(secmiddleware.DefaultCORSConfig()))

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	r.Mount("/api/v1/crisis", handler.Routes())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("crisis engine listening",
			zap.String("env", cfg.Server.Env),
			zap.Int("port", cfg.Server.Port),
			zap.String("storage", cfg.Crisis.StorageBackend),
			zap.String("default_country", cfg.Crisis.DefaultCountry),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// openBackend connects the configured key-value backend.
func openBackend(ctx context.Context, app *App) (storage.Store, error) {
	cfg, logger := app.Config, app.Logger

	switch cfg.Crisis.StorageBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store := storage.NewRedisStore(client, "crisis:")
		if err := store.Health(ctx); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		app.Redis = store
		logger.Info("redis store connected", zap.String("addr", cfg.Redis.Addr))
		return store, nil

	case "postgres":
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		if err := database.Migrate(ctx, db.Pool, logger); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		app.DB = db
		logger.Info("postgres store connected", zap.String("host", cfg.Database.Host))
		return storage.NewPostgresStore(db.Pool), nil

	default:
		logger.Warn("using in-memory crisis store; events are lost on restart")
		return storage.NewMemoryStore(), nil
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		checks["database"] = check(app.DB != nil, func() error { return app.DB.Health(r.Context()) })
		checks["redis"] = check(app.Redis != nil, func() error { return app.Redis.Health(r.Context()) })
		checks["kurrentdb"] = check(app.Bus != nil, func() error { return app.Bus.Health() })

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}

func check(configured bool, ping func() error) string {
	if !configured {
		return "not configured"
	}
	if err := ping(); err != nil {
		return "not ready: " + err.Error()
	}
	return "ready"
}
