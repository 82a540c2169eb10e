package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/taskleaf/taskleaf/internal/app/events"
	"github.com/taskleaf/taskleaf/internal/app/googlecal"
	"github.com/taskleaf/taskleaf/internal/app/identity"
	"github.com/taskleaf/taskleaf/internal/app/pomodoro"
	"github.com/taskleaf/taskleaf/internal/app/remotecache"
	"github.com/taskleaf/taskleaf/internal/app/restapi"
	"github.com/taskleaf/taskleaf/internal/app/tasks"
	"github.com/taskleaf/taskleaf/internal/app/weather"
	"github.com/taskleaf/taskleaf/internal/platform/dbpool"
	"github.com/taskleaf/taskleaf/internal/platform/env"
	"github.com/taskleaf/taskleaf/internal/platform/metrics"
	"github.com/taskleaf/taskleaf/internal/platform/natsutil"
)

func main() {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiAddr := env.String("API_ADDR", env.DefaultAPIAddr)
	uiOrigin := env.String("UI_ORIGIN", "http://localhost:5173")
	pgURL := env.String("DATABASE_URL", env.DefaultDatabaseURL)
	jwtSecret := env.String("JWT_SECRET", "dev-insecure-change-me")
	cacheDir := env.String("REMOTE_CACHE_DIR", "./data/remote-cache")
	shutdownTimeout := env.Duration("SHUTDOWN_TIMEOUT", 10*time.Second)

	pool, err := dbpool.New(runCtx, pgURL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	identityRepo := identity.NewPostgresRepository(pool)
	eventRepo := events.NewPostgresRepository(pool)
	taskRepo := tasks.NewPostgresRepository(pool)
	pomodoroRepo := pomodoro.NewPostgresRepository(pool)
	if err := waitForSchema(runCtx, 30*time.Second,
		identityRepo.EnsureSchema,
		eventRepo.EnsureSchema,
		taskRepo.EnsureSchema,
		pomodoroRepo.EnsureSchema,
	); err != nil {
		log.Fatal(err)
	}

	client, err := natsutil.ConnectJetStreamWithRetry(env.String("NATS_URL", env.DefaultNATSURL), 20*time.Second)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()
	publisher := natsutil.JetStreamPublisher{JS: client.JS}

	identitySvc := identity.NewService(identityRepo, identity.NewTokenManager(jwtSecret))
	oauth := googlecal.NewOAuth(
		env.String("GOOGLE_CLIENT_ID", ""),
		env.String("GOOGLE_CLIENT_SECRET", ""),
		env.String("GOOGLE_REDIRECT_URL", "http://localhost:8000/api/v1/auth/google/callback"),
	)
	provider := googlecal.NewService(identityRepo, oauth)
	cache := remotecache.NewCache(provider, remotecache.NewStore(cacheDir))
	weatherClient := weather.NewClient(env.String("OPENWEATHER_API_KEY", ""))

	taskSvc := tasks.NewService(taskRepo, weatherClient, publisher.Publish)
	eventSvc := events.NewService(eventRepo, cache, taskSvc, publisher.Publish)
	pomodoroSvc := pomodoro.NewService(pomodoroRepo)

	handler := &restapi.Handler{
		Identity:      identitySvc,
		Events:        eventSvc,
		Tasks:         taskSvc,
		Pomodoro:      pomodoroSvc,
		Weather:       weatherClient,
		Cache:         cache,
		OAuth:         oauth,
		AllowedOrigin: uiOrigin,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := checkReadiness(r.Context(), pool, client.Conn); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.DefaultHandler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:              apiAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	fmt.Printf("TaskLeaf API listening on %s\n", apiAddr)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		log.Fatal(err)
	case <-runCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("taskleaf-api graceful shutdown failed: %v", err)
	}
}

func waitForSchema(ctx context.Context, timeout time.Duration, ensure ...func(context.Context) error) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		lastErr = nil
		for _, fn := range ensure {
			if lastErr = fn(attemptCtx); lastErr != nil {
				break
			}
		}
		cancel()
		if lastErr == nil {
			return nil
		}
		log.Printf("waiting for schema readiness: %v", lastErr)
		time.Sleep(500 * time.Millisecond)
	}
	return lastErr
}

func checkReadiness(ctx context.Context, pool *pgxpool.Pool, conn *nats.Conn) error {
	if conn == nil {
		return errors.New("nats connection is nil")
	}
	if conn.Status() != nats.CONNECTED {
		return fmt.Errorf("nats is not connected: %s", conn.Status().String())
	}

	checkCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
	defer cancel()
	if err := pool.Ping(checkCtx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}
