package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cmlabs-hris/settlement-backend-go/internal/config"
	"github.com/cmlabs-hris/settlement-backend-go/internal/domain/settlement"
	"github.com/cmlabs-hris/settlement-backend-go/internal/messaging/kafka"
	"github.com/cmlabs-hris/settlement-backend-go/internal/pkg/database"
	"github.com/cmlabs-hris/settlement-backend-go/internal/pkg/lock"
	"github.com/cmlabs-hris/settlement-backend-go/internal/repository/postgresql"
	settlementService "github.com/cmlabs-hris/settlement-backend-go/internal/service/settlement"
	"github.com/go-chi/httplog/v3"
	"github.com/redis/go-redis/v9"
)

const (
	appName    = "settlement-cmlabs"
	appVersion = "v1.0.0"
)

// NewLogger builds the JSON logger shared by the API and the worker.
func NewLogger(cfg *config.Config, component string) *slog.Logger {
	logFormat := httplog.SchemaECS.Concise(cfg.App.Env != "production")
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       cfg.SlogLevel(),
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", appName),
		slog.String("version", appVersion),
		slog.String("env", cfg.App.Env),
		slog.String("process", component),
	)
}

// OpenDatabase connects the pool and applies migrations when enabled.
func OpenDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.NewPostgreSQLDB(ctx, cfg.DatabaseURL(), database.PoolOptions{
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if cfg.Database.RunMigrations {
		if err := database.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}
	return db, nil
}

// NewRedisClient returns nil when Redis is not configured. An unreachable
// server is logged but not fatal since the guard fails open.
func NewRedisClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) *redis.Client {
	if cfg.Redis.Addr == "" {
		logger.Info("redis not configured, in-flight guard disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping failed", "addr", cfg.Redis.Addr, "error", err)
	}
	return client
}

// NewSettlementService wires the PostgreSQL repositories, the outbox recorder
// and the in-flight guard into the settlement engine.
func NewSettlementService(cfg *config.Config, db *database.DB, rdb *redis.Client, logger *slog.Logger) settlement.SettlementService {
	var guard settlement.InFlightGuard = lock.NoopGuard{}
	if rdb != nil {
		guard = lock.NewRedisGuard(rdb, "lock:", logger)
	}

	outboxRepo := postgresql.NewOutboxRepository(db)

	return settlementService.NewSettlementService(
		postgresql.NewTransactor(db),
		postgresql.NewStaffRepository(db),
		postgresql.NewAttendanceRepository(db),
		postgresql.NewLedgerRepository(db),
		postgresql.NewPaymentRecordRepository(db),
		kafka.NewSettlementRecorder(outboxRepo, cfg.Kafka.Topic),
		guard,
		logger,
		settlementService.Options{
			MaxAttempts:  cfg.Settlement.MaxAttempts,
			RetryBackoff: cfg.Settlement.RetryBackoff,
			LockTTL:      cfg.Redis.LockTTL,
		},
	)
}
