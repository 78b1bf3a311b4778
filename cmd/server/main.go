/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the allocation ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Initialize logger and SQLite store
  3. Pick the lock backend (Redis when REDIS_URL is set) and notifier
  4. Seed the default catalog (no-op once seeded)
  5. Start the vendor notification scheduler
  6. Configure HTTP router and start server with graceful shutdown

COMMAND-LINE FLAGS (override the environment):
  -port    HTTP server port (PORT)
  -db      SQLite database path (DB_PATH)
           Use ":memory:" for in-memory database
  -demo    Load a demo scenario at startup (SEED_DEMO loads "cascade")

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler
  4. Close database and Redis connections

EXAMPLES:
  JWT_SECRET=dev ./server -db="./data/allocations.db"
  JWT_SECRET=dev ./server -db=":memory:" -demo=dispatched

SEE ALSO:
  - config/config.go: Environment keys
  - api/server.go: Router configuration
  - cmd/devtoken: Tokens for local testing
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/warp/allocation-ledger/allocation"
	"github.com/warp/allocation-ledger/api"
	"github.com/warp/allocation-ledger/auth"
	"github.com/warp/allocation-ledger/config"
	"github.com/warp/allocation-ledger/stock"
	"github.com/warp/allocation-ledger/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Flags
	port := flag.String("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	demo := flag.String("demo", "", "Demo scenario to load at startup")
	flag.Parse()
	if *demo == "" && cfg.SeedDemo {
		*demo = "cascade"
	}

	logger, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.WithField("module", "main")

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	svc := allocation.NewService(store, store, logger)

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = newRedisClient(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to redis")
		}
		defer rdb.Close()
		svc.Locker = allocation.NewRedisLocker(rdb, 10*time.Second)
		log.Info("using redis pool locks")
	}

	var notifier allocation.Notifier = allocation.LogNotifier{Logger: logger}
	if cfg.VendorWebhookURL != "" {
		notifier = allocation.NewWebhookNotifier(cfg.VendorWebhookURL)
	}
	outbox := allocation.NewOutbox(store, notifier, logger)
	outbox.Retry.MaxAttempts = cfg.NotifyMaxAttempts
	svc.Outbox = outbox

	ctx := context.Background()
	handler := api.NewHandler(svc, store, logger)
	if *demo != "" {
		if err := handler.LoadScenarioByID(ctx, *demo); err != nil {
			log.WithError(err).Fatal("failed to load demo scenario")
		}
		log.WithField("scenario", *demo).Info("demo scenario loaded")
	} else {
		opened, err := svc.SeedCatalog(ctx, stock.DefaultCatalog())
		if err != nil {
			log.WithError(err).Fatal("failed to seed catalog")
		}
		if opened > 0 {
			log.WithField("items", opened).Info("catalog seeded")
		}
	}

	rateLimiter, err := newLimiter(cfg.RateLimit, rdb)
	if err != nil {
		log.WithError(err).Fatal("invalid RATE_LIMIT")
	}

	scheduler := api.NewNotificationScheduler(outbox, logger)
	scheduler.CheckInterval = cfg.NotifyInterval
	scheduler.Start()
	defer scheduler.Stop()

	// Create router
	router := api.NewRouter(handler, api.RouterOptions{
		Verifier:       auth.NewVerifier(cfg.JWTSecret),
		Limiter:        rateLimiter,
		AllowedOrigins: cfg.CORSOrigins,
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.WithField("addr", server.Addr).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}

	log.Info("server stopped")
}

// newRedisClient accepts a redis:// URL or a bare host:port.
func newRedisClient(url string) (*redis.Client, error) {
	var opts *redis.Options
	if strings.Contains(url, "://") {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			return nil, err
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: url}
	}

	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// newLimiter keeps counters in Redis when rdb is set, in memory otherwise.
// An empty or "off" rate disables limiting.
func newLimiter(formatted string, rdb *redis.Client) (*limiter.Limiter, error) {
	if formatted == "" || formatted == "off" {
		return nil, nil
	}
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, err
	}

	store := memory.NewStore()
	if rdb != nil {
		store, err = sredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "allocation-ledger:limit"})
		if err != nil {
			return nil, err
		}
	}
	return limiter.New(store, rate), nil
}
