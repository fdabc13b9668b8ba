package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elizandromoreira/feed-control-sub000/config"
	"github.com/elizandromoreira/feed-control-sub000/internal/adapters/cache"
	"github.com/elizandromoreira/feed-control-sub000/internal/adapters/logger"
	"github.com/elizandromoreira/feed-control-sub000/internal/adapters/messaging"
	"github.com/elizandromoreira/feed-control-sub000/internal/adapters/storage"
	"github.com/elizandromoreira/feed-control-sub000/internal/api"
	"github.com/elizandromoreira/feed-control-sub000/internal/api/handlers"
	"github.com/elizandromoreira/feed-control-sub000/internal/feed"
	"github.com/elizandromoreira/feed-control-sub000/internal/scheduler"
	"github.com/elizandromoreira/feed-control-sub000/internal/service"
	syncengine "github.com/elizandromoreira/feed-control-sub000/internal/sync"
	"github.com/elizandromoreira/feed-control-sub000/pkg/interfaces"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log, err := logger.NewZapLogger(cfg.LogLevel, cfg.ENV == "production")
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting service",
		interfaces.LogField{Key: "app_name", Value: cfg.AppName},
		interfaces.LogField{Key: "version", Value: cfg.Version},
		interfaces.LogField{Key: "env", Value: cfg.ENV},
	)

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d&connect_timeout=%d",
		cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.Host, cfg.Postgres.Port,
		cfg.Postgres.DBName, cfg.Postgres.SSLMode, cfg.Postgres.PoolSize,
		int(cfg.Postgres.Timeout.Seconds()),
	)

	db, err := storage.NewCatalogStorage(ctx, connString)
	if err != nil {
		log.Fatal("failed to initialize storage", interfaces.LogField{Key: "error", Value: err.Error()})
	}
	defer db.Close()
	log.Info("storage initialized")

	var cacheClient interfaces.CachePort
	if cfg.Redis.Enabled {
		cacheClient, err = cache.NewRedisCache(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal("failed to initialize cache", interfaces.LogField{Key: "error", Value: err.Error()})
		}
		defer cacheClient.Close()
		log.Info("cache initialized")
	}

	var messagingClient interfaces.MessagingPort
	if cfg.Kafka.Enabled {
		messagingClient, err = messaging.NewKafkaMessaging(cfg.Kafka.Brokers)
		if err != nil {
			log.Fatal("failed to initialize messaging", interfaces.LogField{Key: "error", Value: err.Error()})
		}
		defer messagingClient.Close()
		log.Info("messaging initialized")
	}

	engine := syncengine.NewEngine(db, log, syncengine.Options{
		BatchSize:    cfg.Sync.BatchSize,
		FetchTimeout: cfg.Sync.FetchTimeout,
		MaxTries:     cfg.Sync.MaxTries,
	})

	amazonClient := feed.NewAmazonClient(feed.AmazonConfig{
		Endpoint:      cfg.Amazon.Endpoint,
		TokenEndpoint: cfg.Amazon.TokenEndpoint,
		ClientID:      cfg.Amazon.ClientID,
		ClientSecret:  cfg.Amazon.ClientSecret,
		RefreshToken:  cfg.Amazon.RefreshToken,
		SellerID:      cfg.Amazon.SellerID,
		MarketplaceID: cfg.Amazon.MarketplaceID,
	})
	publisher := feed.NewPublisher(db, amazonClient, log, feed.Options{
		SellerID:        cfg.Amazon.SellerID,
		BatchSize:       cfg.Amazon.BatchSize,
		PollInterval:    cfg.Amazon.PollInterval,
		PollMaxAttempts: cfg.Amazon.PollMaxAttempts,
		SubmitMaxTries:  cfg.Amazon.SubmitMaxRetries,
	})

	runner := service.NewRunner(db, engine, publisher, cacheClient, messagingClient, log, service.Options{
		LifecycleTopic: cfg.Kafka.LifecycleTopic,
		ProgressTTL:    cfg.Redis.ProgressTTL,
	})

	sched := scheduler.New(db, runner, log)
	defer sched.Stop()

	if err := sched.Recover(ctx); err != nil {
		log.Fatal("failed to recover schedules", interfaces.LogField{Key: "error", Value: err.Error()})
	}
	log.Info("schedules recovered")

	handler := handlers.NewStoreHandler(runner, sched, db, log)
	router := api.NewRouter(handler, log, api.RouterOptions{
		AuthEnabled: cfg.Security.AuthEnabled,
		JWTSecret:   cfg.Security.JWTSecret,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Metrics.Port),
			Handler: mux,
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("http server started", interfaces.LogField{Key: "address", Value: server.Addr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	if metricsServer != nil {
		group.Go(func() error {
			log.Info("metrics server started", interfaces.LogField{Key: "address", Value: metricsServer.Addr})
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-quit:
			log.Info("shutdown signal received")
		case <-groupCtx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		sched.Stop()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("http server shutdown failed", interfaces.LogField{Key: "error", Value: err.Error()})
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				log.Error("metrics server shutdown failed", interfaces.LogField{Key: "error", Value: err.Error()})
			}
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		log.Fatal("service failed", interfaces.LogField{Key: "error", Value: err.Error()})
	}
	log.Info("service stopped")
}
