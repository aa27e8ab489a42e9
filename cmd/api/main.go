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

	"github.com/cmlabs-hris/settlement-backend-go/internal/app"
	"github.com/cmlabs-hris/settlement-backend-go/internal/config"
	appHTTP "github.com/cmlabs-hris/settlement-backend-go/internal/handler/http"
	"github.com/cmlabs-hris/settlement-backend-go/internal/pkg/jwt"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Error loading config:", err)
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := app.OpenDatabase(ctx, cfg)
	if err != nil {
		logger.Error("Error connecting to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := app.NewRedisClient(ctx, cfg, logger)
	if rdb != nil {
		defer rdb.Close()
	}

	JWTService := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiration)
	settlementService := app.NewSettlementService(cfg, db, rdb, logger)
	settlementHandler := appHTTP.NewSettlementHandler(settlementService)

	router := appHTTP.NewRouter(cfg, logger, JWTService, settlementHandler)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server started", "port", cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
	}
}
