package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cmlabs-hris/settlement-backend-go/internal/app"
	"github.com/cmlabs-hris/settlement-backend-go/internal/config"
	"github.com/cmlabs-hris/settlement-backend-go/internal/messaging/kafka"
	"github.com/cmlabs-hris/settlement-backend-go/internal/pkg/cron"
	"github.com/cmlabs-hris/settlement-backend-go/internal/repository/postgresql"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Error loading config:", err)
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := app.OpenDatabase(ctx, cfg)
	if err != nil {
		logger.Error("Error connecting to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	settlementService := app.NewSettlementService(cfg, db, nil, logger)

	g, ctx := errgroup.WithContext(ctx)

	var sweeper cron.OutboxSweeper
	if len(cfg.Kafka.Brokers) > 0 {
		writer := kafka.NewWriter(cfg.Kafka.Brokers)
		defer writer.Close()

		relay := kafka.NewRelay(postgresql.NewOutboxRepository(db), kafka.NewPublisher(writer), logger, kafka.RelayOptions{
			BatchSize:  cfg.Worker.OutboxBatchSize,
			MaxRetries: cfg.Worker.OutboxMaxRetries,
		})
		sweeper = relay

		g.Go(func() error {
			return relay.Run(ctx, cfg.Worker.OutboxPollInterval)
		})
	} else {
		logger.Warn("KAFKA_BROKERS not set, outbox events stay pending")
	}

	scheduler := cron.NewScheduler(ctx, logger)
	cron.NewSettlementJobs(settlementService, sweeper, cfg.Worker.AuditInterval, cfg.Worker.OutboxRetention).RegisterJobs(scheduler)

	g.Go(func() error {
		scheduler.Start()
		<-ctx.Done()
		scheduler.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped")
}
