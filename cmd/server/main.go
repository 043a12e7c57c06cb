package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/liamcoop/loanpolicy/audit"
	"github.com/liamcoop/loanpolicy/internal/config"
	"github.com/liamcoop/loanpolicy/internal/logger"
	"github.com/liamcoop/loanpolicy/internal/metrics"
	"github.com/liamcoop/loanpolicy/policy"
	"github.com/liamcoop/loanpolicy/policyadmin"
)

func main() {
	logger.Setup("loanpolicy")

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	var checks []HealthCheck

	// Policy store
	var store policy.PolicyStore
	if cfg.DatabaseURL != "" {
		db, err := openDatabase(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to connect to database", "error", err)
		}
		defer db.Close()
		store = policy.NewPostgresPolicyStore(db)
		checks = append(checks, db.PingContext)
		logger.Info("using postgres policy store")
	} else {
		store = policy.NewInMemoryPolicyStore()
		logger.Info("using in-memory policy store")
	}

	// Policy cache
	cacheConfig := policy.DefaultCacheConfig()
	cacheConfig.TTL = cfg.PolicyCacheTTL
	var cache policy.PolicyCache
	if cfg.RedisURL != "" {
		client, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("failed to connect to redis", "error", err)
		}
		defer client.Close()
		cache = policy.NewRedisPolicyCache(client, cacheConfig)
		checks = append(checks, func(ctx context.Context) error { return client.Ping(ctx).Err() })
		logger.Info("using redis policy cache", "ttl", cacheConfig.TTL)
	} else {
		cache = policy.NewInMemoryPolicyCache(cacheConfig)
	}

	manager := policyadmin.NewManager(store, cache, logger.Logger)

	engineOpts := []policy.EngineOption{
		policy.WithCache(cache),
		policy.WithMetrics(m),
		policy.WithLogger(logger.Logger),
	}

	// Policy definitions from file
	if cfg.PolicyFile != "" {
		set, err := policy.LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			logger.Fatal("failed to load policy file", "path", cfg.PolicyFile, "error", err)
		}
		res, err := manager.Sync(ctx, set.Policies)
		if err != nil {
			logger.Fatal("failed to sync policies", "path", cfg.PolicyFile, "error", err)
		}
		logger.Info("policy file loaded", "path", cfg.PolicyFile,
			"created", res.Created, "updated", res.Updated, "deleted", res.Deleted)

		derived, err := policy.CompileDerivedFields(set.DerivedFields)
		if err != nil {
			logger.Fatal("failed to compile derived fields", "path", cfg.PolicyFile, "error", err)
		}
		engineOpts = append(engineOpts, policy.WithDerivedFields(derived))

		if cfg.PolicyWatch {
			watcher := policyadmin.NewFileWatcher(cfg.PolicyFile, manager, 0, logger.Logger)
			go func() {
				if err := watcher.Watch(ctx); err != nil {
					logger.Error("policy file watcher exited", "error", err)
				}
			}()
		}
	}

	engine := policy.NewEngine(store, engineOpts...)

	// Decision events
	var publisher audit.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := audit.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaDecisionTopic)
		if err != nil {
			logger.Fatal("failed to create kafka publisher", "error", err)
		}
		publisher = kp
		logger.Info("publishing decisions to kafka", "topic", cfg.KafkaDecisionTopic)
	} else {
		publisher = audit.NewLogPublisher(logger.Logger)
	}
	defer publisher.Close()

	server := NewServer(engine, manager, publisher, m, registry, checks...)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := logger.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "logger shutdown error: %v\n", err)
	}

	logger.Info("server stopped")
}

func openDatabase(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func openRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}
