package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/timeledger/timeledger/pkg/apiserver"
	"github.com/timeledger/timeledger/pkg/config"
	"github.com/timeledger/timeledger/pkg/identity"
	"github.com/timeledger/timeledger/pkg/jobs"
	"github.com/timeledger/timeledger/pkg/store/postgres"
	redisclient "github.com/timeledger/timeledger/pkg/store/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	db, err := postgres.NewStore(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	var redis *redisclient.Client
	if len(cfg.Redis.Addresses) > 0 {
		redis, err = redisclient.NewClient(&cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redis.Close()
	} else {
		logger.Warn("Redis not configured, rate limiting disabled")
	}

	idp := identity.NewClient(&cfg.Identity, logger)

	users := postgres.NewUserRepository(db.DB())
	reconciler := jobs.NewReconciler(cfg.Jobs.ProvisioningSchedule, users, idp, logger)
	if err := reconciler.Start(); err != nil {
		logger.Fatal("Failed to start provisioning reconciler", zap.Error(err))
	}
	defer reconciler.Stop()

	server := apiserver.NewServer(db, redis, idp, cfg, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.ReadTimeout * 2,
	}

	go func() {
		logger.Info("Starting API server", zap.Int("port", cfg.Server.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: promhttp.Handler(),
	}
	go func() {
		logger.Info("Starting metrics server", zap.Int("port", cfg.Server.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error("Metrics server forced to shutdown", zap.Error(err))
	}
}
