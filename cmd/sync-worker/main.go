package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/taskleaf/taskleaf/internal/app/events"
	"github.com/taskleaf/taskleaf/internal/app/googlecal"
	"github.com/taskleaf/taskleaf/internal/app/identity"
	"github.com/taskleaf/taskleaf/internal/app/remotecache"
	"github.com/taskleaf/taskleaf/internal/app/syncworker"
	"github.com/taskleaf/taskleaf/internal/app/tasks"
	"github.com/taskleaf/taskleaf/internal/messaging"
	"github.com/taskleaf/taskleaf/internal/platform/dbpool"
	"github.com/taskleaf/taskleaf/internal/platform/env"
	"github.com/taskleaf/taskleaf/internal/platform/metrics"
	"github.com/taskleaf/taskleaf/internal/platform/natsutil"
)

func main() {
	ctx := context.Background()

	natsURL := env.String("NATS_URL", env.DefaultNATSURL)
	pgURL := env.String("DATABASE_URL", env.DefaultDatabaseURL)
	cacheDir := env.String("REMOTE_CACHE_DIR", "./data/remote-cache")
	refreshSpec := env.String("CACHE_REFRESH_CRON", "*/15 * * * *")
	metricsAddr := env.String("METRICS_ADDR", ":9102")

	pool, err := dbpool.New(ctx, pgURL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	identityRepo := identity.NewPostgresRepository(pool)
	eventRepo := events.NewPostgresRepository(pool)
	taskRepo := tasks.NewPostgresRepository(pool)
	if err := waitForPostgres(ctx, pool, 30*time.Second); err != nil {
		log.Fatal(err)
	}

	oauth := googlecal.NewOAuth(
		env.String("GOOGLE_CLIENT_ID", ""),
		env.String("GOOGLE_CLIENT_SECRET", ""),
		env.String("GOOGLE_REDIRECT_URL", ""),
	)
	provider := googlecal.NewService(identityRepo, oauth)
	worker := syncworker.NewService(provider, eventRepo, taskRepo)

	client, err := natsutil.ConnectJetStreamWithRetry(natsURL, 20*time.Second)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	sub, err := client.JS.QueueSubscribe(messaging.SyncSubjects, messaging.SyncDurableConsumer, func(msg *nats.Msg) {
		handleCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		if err := worker.Handle(handleCtx, msg.Data); err != nil {
			if errors.Is(err, syncworker.ErrInvalidOperationPayload) {
				log.Printf("discarding invalid sync operation: %v", err)
				_ = msg.Term()
				return
			}
			log.Printf("sync operation failed: %v", err)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	}, nats.ManualAck(), nats.Durable(messaging.SyncDurableConsumer))
	if err != nil {
		log.Fatal(err)
	}

	cache := remotecache.NewCache(provider, remotecache.NewStore(cacheDir))
	refresher := syncworker.NewRefresher(identityRepo, cache)
	if err := refresher.Start(refreshSpec); err != nil {
		log.Fatal(err)
	}
	defer refresher.Stop()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.DefaultHandler())
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Printf("metrics server: %v", err)
		}
	}()

	log.Println("Sync worker listening on subject:", sub.Subject)

	// Keep alive
	select {}
}

func waitForPostgres(ctx context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		lastErr = pool.Ping(attemptCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		log.Printf("waiting for postgres readiness: %v", lastErr)
		time.Sleep(500 * time.Millisecond)
	}
	return lastErr
}
