package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/config"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/internal/app"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/pkg/logger"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/pkg/telemetry"
)

func main() {
	os.Exit(run())
}

func run() int {
	// .env необязателен
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		return 1
	}

	readConfig, err := config.ReadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	baseLogger, err := logger.BuildLogger(logger.Options{
		Level:      readConfig.LogLevel,
		File:       readConfig.LogFile,
		MaxAgeDays: readConfig.LogMaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		return 1
	}
	applogger := baseLogger.Named("main")
	defer func() { _ = applogger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer, shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		Enabled:        readConfig.EnableTracing,
		ServiceName:    readConfig.ServiceName,
		ServiceVersion: readConfig.ServiceVersion,
		Environment:    readConfig.Environment,
		OTLPEndpoint:   readConfig.OTLPEndpoint,
	}, applogger)
	if err != nil {
		applogger.Error("Failed to initialize tracing", zap.Error(err))
		return 1
	}
	defer func() {
		// контекст запуска уже может быть отменен сигналом
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			applogger.Error("Failed to shutdown tracing", zap.Error(err))
		}
	}()

	if readConfig.EnableMetrics {
		applogger.Info("Prometheus metrics enabled",
			zap.String("pushgateway_url", readConfig.PushgatewayURL))
	} else {
		applogger.Info("Prometheus metrics disabled")
	}

	application, err := app.NewApp(readConfig, baseLogger, tracer)
	if err != nil {
		applogger.Error("Failed to initialize application", zap.Error(err))
		return 1
	}
	defer application.Shutdown()

	applogger.Info("Starting run",
		zap.String("mode", readConfig.Mode),
		zap.String("db_driver", readConfig.DBDriver),
		zap.Strings("sources", readConfig.Sources))

	if err := application.Run(ctx); err != nil {
		applogger.Error("Application error", zap.Error(err))
		return 1
	}
	return 0
}
