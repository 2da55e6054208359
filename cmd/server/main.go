package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"txledger/internal/auth"
	"txledger/internal/config"
	"txledger/internal/graph"
	"txledger/internal/handlers"
	applog "txledger/internal/log"
	"txledger/internal/models"
	"txledger/internal/storage"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := applog.New(applog.Config{
		Level:     applog.LevelForEnvironment(cfg.Environment),
		Component: applog.ComponentApp,
	})
	applog.SetDefault(logger)

	db, err := storage.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := bootstrapAdmin(ctx, db, cfg, logger); err != nil {
		return err
	}

	authService := auth.NewService(db, logger)
	sessions := auth.NewSessionManager(db, authService, cfg.Secret(), logger)
	registry := graph.NewRegistry(graph.NewResolver(db, db, authService, logger))
	h := handlers.NewHandlers(registry, sessions, authService, db, logger, cfg.IsProduction())

	scheduler, err := scheduleSessionCleanup(ctx, db, cfg.SessionCleanupSchedule, logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           setupRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server starting", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		scheduler.Start()
		<-gctx.Done()
		logger.Info("Shutting down")

		<-scheduler.Stop().Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// setupRouter registers the API routes behind the logging and session
// middleware.
func setupRouter(h *handlers.Handlers) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /graphql", h.Graph)
	mux.HandleFunc("GET /healthz", h.Health)

	return h.RequestLogger(h.SessionMiddleware(mux))
}

// userBootstrapper is the part of the store needed to seed the first account.
type userBootstrapper interface {
	UserCount(ctx context.Context) (int, error)
	CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error)
}

// bootstrapAdmin creates the configured admin account when no user exists yet.
func bootstrapAdmin(ctx context.Context, store userBootstrapper, cfg *config.Config, logger *applog.Logger) error {
	if cfg.AdminUser == "" {
		return nil
	}

	count, err := store.UserCount(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		logger.Debug("Users present, skipping admin bootstrap", applog.FieldCount, count)
		return nil
	}

	hash, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	user, err := store.CreateUser(ctx, cfg.AdminUser, hash)
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	logger.Info("Admin user created", applog.FieldUsername, user.Username, applog.FieldUserID, user.ID)
	return nil
}

// sessionCleaner removes sessions whose lifetime has passed.
type sessionCleaner interface {
	CleanExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// scheduleSessionCleanup registers the periodic purge of expired sessions.
// The returned scheduler is not started.
func scheduleSessionCleanup(ctx context.Context, store sessionCleaner, schedule string, logger *applog.Logger) (*cron.Cron, error) {
	logger = logger.WithComponent(applog.ComponentSchedule)

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		purgeExpiredSessions(ctx, store, logger)
	})
	if err != nil {
		return nil, fmt.Errorf("schedule session cleanup: %w", err)
	}
	return c, nil
}

func purgeExpiredSessions(ctx context.Context, store sessionCleaner, logger *applog.Logger) {
	n, err := store.CleanExpiredSessions(ctx, time.Now().UTC())
	if err != nil {
		logger.Error("Session cleanup failed", applog.FieldError, err)
		return
	}
	if n > 0 {
		logger.Info("Expired sessions removed", applog.FieldCount, n)
	}
}
