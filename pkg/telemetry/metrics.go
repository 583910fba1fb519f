package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

const namespace = "rate_ingest"

// Итог записи курса
const (
	OutcomeInserted  = "inserted"
	OutcomeDuplicate = "duplicate"
	OutcomeSkipped   = "skipped"
)

// PipelineMetrics - метрики одного процесса. Регистрируются в переданном
// реестре, глобальный реестр не используется.
type PipelineMetrics struct {
	RecordsCollected *prometheus.CounterVec
	RowsDropped      *prometheus.CounterVec
	SourceFailures   *prometheus.CounterVec
	EntitiesCreated  prometheus.Counter
	Rates            *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	LastSuccess      prometheus.Gauge
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	factory := promauto.With(reg)
	return &PipelineMetrics{
		RecordsCollected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_collected_total",
				Help:      "Total number of normalized records per source",
			},
			[]string{"source"},
		),
		RowsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_dropped_total",
				Help:      "Total number of raw rows dropped during normalization",
			},
			[]string{"source", "reason"},
		),
		SourceFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_failures_total",
				Help:      "Total number of source adapter failures",
			},
			[]string{"source"},
		),
		EntitiesCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "entities_created_total",
				Help:      "Total number of entities created",
			},
		),
		Rates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rates_total",
				Help:      "Total number of rate observations by outcome",
			},
			[]string{"outcome"},
		),
		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of pipeline runs in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		LastSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last committed run",
			},
		),
	}
}

type PushConfig struct {
	URL         string
	Job         string
	ServiceName string
	Environment string
}

// Push отправляет собранные метрики в Pushgateway
func Push(ctx context.Context, config PushConfig, gatherer prometheus.Gatherer, logger *zap.Logger) error {
	logger.Info("Pushing metrics", zap.String("url", config.URL), zap.String("job", config.Job))

	pusher := push.New(config.URL, config.Job).
		Gatherer(gatherer).
		Grouping("service", config.ServiceName)
	if config.Environment != "" {
		pusher = pusher.Grouping("environment", config.Environment)
	}

	if err := pusher.PushContext(ctx); err != nil {
		logger.Error("Failed to push metrics", zap.Error(err))
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
