package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
)

const instrumentationName = "studentgit.kata.academy/KonstantinDolgov/rate-ingest"

type TracingConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
}

// InitTracing возвращает трассировщик для конвейера и функцию закрытия.
// Если трассировка выключена, трассировщик ничего не пишет.
func InitTracing(ctx context.Context, config TracingConfig, logger *zap.Logger) (trace.Tracer, func(context.Context) error, error) {
	if !config.Enabled {
		logger.Debug("Tracing disabled")
		return noop.NewTracerProvider().Tracer(instrumentationName), func(context.Context) error { return nil }, nil
	}

	// Логируем параметры подключения к коллектору
	logger.Info("Initializing OpenTelemetry tracing",
		zap.String("service", config.ServiceName),
		zap.String("endpoint", config.OTLPEndpoint))

	// Создаем ресурс с информацией о сервисе
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create OpenTelemetry resource: %w", err)
	}

	// Настраиваем коннект к коллектору OTLP без TLS
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(config.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithDialOption(exporterDialOptions(config)...),
	}

	client := otlptracegrpc.NewClient(opts...)
	exporter, err := otlptrace.New(ctx, client)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	// Создаем трассировщик; батч сбрасывается в Shutdown
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	// Устанавливаем глобальный трассировщик
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("OpenTelemetry tracing successfully initialized")

	// Возвращаем трассировщик и функцию закрытия провайдера
	return tp.Tracer(instrumentationName), func(ctx context.Context) error {
		logger.Info("Shutting down OpenTelemetry tracer provider")
		return tp.Shutdown(ctx)
	}, nil
}

// exporterDialOptions - параметры gRPC-соединения с коллектором.
// Запуск короткий, поэтому переподключение ограничено по времени.
func exporterDialOptions(config TracingConfig) []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithUserAgent(config.ServiceName + "/" + config.ServiceVersion),
		grpc.WithConnectParams(grpc.ConnectParams{
			Backoff: backoff.Config{
				BaseDelay:  200 * time.Millisecond,
				Multiplier: 1.6,
				Jitter:     0.2,
				MaxDelay:   5 * time.Second,
			},
			MinConnectTimeout: 5 * time.Second,
		}),
	}
}
