package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/giftcert-ledger/internal/api_gateway"
	"github.com/giftcert-ledger/internal/api_gateway/service"
	"github.com/giftcert-ledger/internal/config"
	"github.com/giftcert-ledger/internal/data/postgres"
	"github.com/giftcert-ledger/internal/externals/mts"
	"github.com/giftcert-ledger/internal/ledger"
	"github.com/giftcert-ledger/internal/logger"
	"github.com/giftcert-ledger/internal/notifier"
	"github.com/giftcert-ledger/internal/platform/cache"
	"github.com/giftcert-ledger/internal/platform/gateway"
	"github.com/giftcert-ledger/internal/platform/messaging/producers"
	"github.com/giftcert-ledger/internal/platform/metrics"
	"github.com/giftcert-ledger/internal/platform/persistence"
	"github.com/giftcert-ledger/internal/reconciler"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("api_gateway")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)
	m := metrics.New()

	// Migrations run before the pool is opened
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	// The cache only serves ancillary reads, so the gateway runs without it
	var store cache.Store
	redisClient, err := cache.NewRedisClient(appCtx, log, &cfg.Redis)
	if err != nil {
		log.Warn("Redis unavailable, running without cache", "error", err)
	} else {
		store = cache.New(log, redisClient, cfg.Redis.Namespace)
	}

	if err := producers.EnsureTopics(appCtx, log, &cfg.Kafka,
		cfg.Kafka.SMSTopic, cfg.Kafka.TelegramTopic, cfg.Kafka.DLQTopic); err != nil {
		log.Error("Failed to ensure Kafka topics", "error", err)
		os.Exit(1)
	}
	eventProducer := producers.NewEventProducer(log, &cfg.Kafka, m)
	bus := notifier.NewBus(eventProducer, &cfg.Kafka, log)

	certRepo := postgres.NewCertificateRepository(log, postgresDB)
	tranRepo := postgres.NewTransactionRepository(log, postgresDB)
	engine := ledger.NewEngine(postgresDB, certRepo, tranRepo, cfg.Ledger, log, m)

	smsGateway := gateway.New(gateway.NewConfig(cfg.SMS.BaseURL, cfg.Gateway), log, m)
	smsClient := mts.New(smsGateway, cfg.SMS, store, log)

	certificateService := service.NewCertificateService(log, engine, bus, store, cfg.Redis.ViewTTL)
	notificationService := service.NewNotificationService(log, engine, bus, smsClient)

	server := api_gateway.NewServer(log, cfg, m, certificateService, notificationService)
	log.Info("REST server initialized")

	sweeper := reconciler.New(postgresDB, certRepo, tranRepo, cfg.Ledger, cfg.Reconciler, log, m)

	errChan := make(chan error, 1)
	var wg sync.WaitGroup

	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	wg.Add(2)
	go func() {
		defer wg.Done()
		sweeper.RunDailySweep(appCtx)
	}()
	go func() {
		defer wg.Done()
		sweeper.RunExpirySweep(appCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Stops the sweep loops; a sweep already running finishes on its own timeout
	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()
	select {
	case <-wgChan:
		log.Info("Reconciler stopped")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached while waiting for reconciler")
	}

	if err = eventProducer.Close(); err != nil {
		log.Error("Error closing Kafka producer", "error", err)
	}

	smsGateway.Close()

	if redisClient != nil {
		if err = redisClient.Close(); err != nil {
			log.Error("Error closing Redis connection", "error", err)
		}
	}

	postgresDB.Close()

	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
		os.Exit(1)
	}
	log.Info("Server shutdown completed")
}
