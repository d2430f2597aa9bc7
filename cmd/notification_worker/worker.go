package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"github.com/giftcert-ledger/internal/config"
	"github.com/giftcert-ledger/internal/data/mongo"
	"github.com/giftcert-ledger/internal/data/postgres"
	"github.com/giftcert-ledger/internal/delivery"
	"github.com/giftcert-ledger/internal/delivery/sms"
	tgdelivery "github.com/giftcert-ledger/internal/delivery/telegram"
	"github.com/giftcert-ledger/internal/domain/journal"
	"github.com/giftcert-ledger/internal/externals/mts"
	tgapi "github.com/giftcert-ledger/internal/externals/telegram"
	"github.com/giftcert-ledger/internal/logger"
	"github.com/giftcert-ledger/internal/platform/gateway"
	"github.com/giftcert-ledger/internal/platform/messaging/consumers"
	"github.com/giftcert-ledger/internal/platform/messaging/producers"
	"github.com/giftcert-ledger/internal/platform/metrics"
	"github.com/giftcert-ledger/internal/platform/persistence"
)

// worker is one consumer group bound to its delivery processor.
type worker struct {
	channel   string
	consumer  *consumers.KafkaConsumer
	processor consumers.Processor
}

// deps holds the process-wide resources the channels share. closers run in
// reverse order on shutdown.
type deps struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics *metrics.Metrics
	journal journal.Repository
	closers []func(ctx context.Context)

	postgresDB *persistence.PostgresDB
}

func (d *deps) onClose(fn func(ctx context.Context)) {
	d.closers = append(d.closers, fn)
}

func (d *deps) close(ctx context.Context) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i](ctx)
	}
}

// ledgerDB opens the ledger database on first use; only the SMS channel
// writes delivery outcomes back onto transactions.
func (d *deps) ledgerDB(ctx context.Context) (*persistence.PostgresDB, error) {
	if d.postgresDB != nil {
		return d.postgresDB, nil
	}
	db, err := persistence.NewPostgresDB(ctx, d.log, &d.cfg.Postgres)
	if err != nil {
		return nil, err
	}
	d.postgresDB = db
	d.onClose(func(context.Context) { db.Close() })
	return db, nil
}

func run(parent context.Context, configName string, channels []string) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	cfg, err := config.LoadConfig(configName)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.NewLogger(cfg)
	m := metrics.New()

	log.Info("Starting notification worker",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
		"channels", channels,
	)

	d := &deps{cfg: cfg, log: log, metrics: m}
	shutdownCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	}
	defer func() {
		sctx, cancel := shutdownCtx()
		defer cancel()
		d.close(sctx)
		log.Info("Notification worker stopped")
	}()

	metricsServer := m.Serve(fmt.Sprintf(":%d", cfg.Metrics.Port), log)
	d.onClose(func(ctx context.Context) {
		if err := metricsServer.Shutdown(ctx); err != nil {
			log.Error("Error stopping metrics server", "error", err)
		}
	})

	mongoDB, err := persistence.NewMongoDB(ctx, log, &cfg.MongoDB)
	if err != nil {
		return fmt.Errorf("failed to initialize MongoDB: %w", err)
	}
	d.onClose(func(ctx context.Context) {
		if err := mongoDB.Close(ctx); err != nil {
			log.Error("Error closing MongoDB connection", "error", err)
		}
	})
	d.journal = mongo.NewDeliveryJournal(log, mongoDB.Database())

	topics := []string{cfg.Kafka.DLQTopic}
	for _, ch := range channels {
		topics = append(topics, channelTopic(&cfg.Kafka, ch))
	}
	if err := producers.EnsureTopics(ctx, log, &cfg.Kafka, topics...); err != nil {
		return fmt.Errorf("failed to ensure Kafka topics: %w", err)
	}

	// A typed nil must not reach the consumers as a non-nil interface.
	var dlq producers.DeadLetterPublisher
	if p := producers.NewDLQProducer(log, &cfg.Kafka); p != nil {
		dlq = p
		d.onClose(func(context.Context) {
			if err := p.Close(); err != nil {
				log.Error("Error closing DLQ Kafka producer", "error", err)
			}
		})
	}

	pool, err := delivery.NewPool(cfg.WorkerPool.Size)
	if err != nil {
		return err
	}
	d.onClose(func(context.Context) { pool.Release() })

	workers := make([]worker, 0, len(channels))
	for _, ch := range channels {
		processor, group, err := buildProcessor(ctx, d, ch)
		if err != nil {
			return err
		}
		pooled := delivery.NewPooledProcessor(processor, pool, log)
		consumer := consumers.NewKafkaConsumer(log, &cfg.Kafka, group, pooled.Topics(), dlq, m)
		d.onClose(func(context.Context) {
			if err := consumer.Close(); err != nil {
				log.Error("Error closing Kafka consumer", "channel", ch, "error", err)
			}
		})
		workers = append(workers, worker{channel: ch, consumer: consumer, processor: pooled})
	}

	return runWorkers(ctx, log, workers, shutdownCtx)
}

// runWorkers blocks until ctx is cancelled or the first consumer stops with
// a fatal error, then stops the others and waits for them.
func runWorkers(
	ctx context.Context,
	log *slog.Logger,
	workers []worker,
	shutdownCtx func() (context.Context, context.CancelFunc),
) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, len(workers))
	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w worker) {
			defer wg.Done()
			log.Info("Starting Kafka consumer", "channel", w.channel, "topics", w.processor.Topics())
			if err := w.consumer.Run(ctx, w.processor); err != nil {
				errChan <- fmt.Errorf("%s consumer: %w", w.channel, err)
			}
		}(w)
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case runErr = <-errChan:
		var fatal *consumers.FatalError
		if errors.As(runErr, &fatal) {
			log.Error("Consumer stopped on an unrecoverable message",
				"topic", fatal.Topic,
				"partition", fatal.Partition,
				"offset", fatal.Offset,
				"error", fatal.Err,
			)
		} else {
			log.Error("Consumer stopped", "error", runErr)
		}
	}
	cancel()

	sctx, cancelShutdown := shutdownCtx()
	defer cancelShutdown()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info("All consumers stopped")
	case <-sctx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}
	return runErr
}

func buildProcessor(ctx context.Context, d *deps, channel string) (consumers.Processor, string, error) {
	cfg := d.cfg
	switch channel {
	case channelSMS:
		db, err := d.ledgerDB(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		gw := gateway.New(gateway.NewConfig(cfg.SMS.BaseURL, cfg.Gateway), d.log, d.metrics)
		d.onClose(func(context.Context) { gw.Close() })

		handler, err := sms.NewHandler(
			cfg.Kafka.SMSTopic,
			mts.New(gw, cfg.SMS, nil, d.log),
			postgres.NewTransactionRepository(d.log, db),
			d.journal,
			cfg.SMS,
			d.log,
			d.metrics,
		)
		if err != nil {
			return nil, "", err
		}
		return handler, cfg.Kafka.SMSConsumerGroup, nil

	case channelTelegram:
		// Telegram messages get exactly one attempt.
		gwCfg := gateway.NewConfig(cfg.Telegram.BaseURL, cfg.Gateway)
		gwCfg.AllowedRetries = 0
		gw := gateway.New(gwCfg, d.log, d.metrics)
		d.onClose(func(context.Context) { gw.Close() })

		handler := tgdelivery.NewHandler(
			cfg.Kafka.TelegramTopic,
			tgapi.New(gw, cfg.Telegram, d.log),
			d.journal,
			d.log,
			d.metrics,
		)
		return handler, cfg.Kafka.TelegramConsumerGroup, nil
	}
	return nil, "", fmt.Errorf("unknown delivery channel %q", channel)
}

func channelTopic(cfg *config.KafkaConfig, channel string) string {
	switch channel {
	case channelSMS:
		return cfg.SMSTopic
	case channelTelegram:
		return cfg.TelegramTopic
	}
	return ""
}
