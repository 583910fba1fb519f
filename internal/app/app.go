package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/config"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/internal/model"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/internal/normalizer"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/internal/pipeline"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/internal/repository"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/internal/repository/sqlstore"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/internal/source"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/internal/source/bnr"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/internal/source/valutare"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/pkg/telemetry"
)

type App struct {
	config   *config.Config
	logger   *zap.Logger
	store    repository.Store
	tracer   trace.Tracer
	registry *prometheus.Registry
	out      io.Writer
}

// Переменная для подмены в тестах
var newStoreFunc = openStore

func openStore(cfg *config.Config, logger *zap.Logger) (repository.Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		return sqlstore.NewPostgres(cfg.GetDBConnString(), logger)
	default:
		return sqlstore.NewSQLite(cfg.DBPath, logger)
	}
}

func NewApp(config *config.Config, logger *zap.Logger, tracer trace.Tracer) (*App, error) {
	store, err := newStoreFunc(config, logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("failed to create repository: %w", err)
	}

	return &App{
		config:   config,
		logger:   logger,
		store:    store,
		tracer:   tracer,
		registry: prometheus.NewRegistry(),
		out:      os.Stdout,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	if err := a.store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	switch a.config.Mode {
	case config.ModeList:
		return a.listRates(ctx)
	default:
		return a.ingest(ctx)
	}
}

func (a *App) ingest(ctx context.Context) error {
	sources := a.buildSources()
	norm := normalizer.New(a.config.Location(), a.logger.Named("normalizer"))

	p := pipeline.New(a.logger.Named("pipeline"), a.store, sources, norm,
		pipeline.WithMetrics(telemetry.NewPipelineMetrics(a.registry)),
		pipeline.WithTracer(a.tracer))

	res, runErr := p.Run(ctx)
	a.pushMetrics(ctx)
	if runErr != nil {
		return fmt.Errorf("pipeline run failed: %w", runErr)
	}
	// сбой всех источников - штатный исход запуска, виден по source_failures_total
	if res.AllSourcesFailed(len(sources)) {
		a.logger.Warn("All sources failed, nothing was saved",
			zap.String("run_id", res.RunID.String()),
			zap.Strings("failed_sources", res.FailedSources))
	}
	return nil
}

func (a *App) buildSources() []source.Source {
	client := source.NewPageClient(a.config.HTTPTimeout, a.config.UserAgent, a.logger.Named("http"))

	var sources []source.Source
	if a.config.SourceEnabled(config.SourceBNR) {
		sources = append(sources, bnr.New(a.config.BNRURL, client, a.logger.Named("bnr")))
	}
	if a.config.SourceEnabled(config.SourceValutare) {
		sources = append(sources, valutare.New(a.config.ValutareURL, client, a.logger.Named("valutare")))
	}
	return sources
}

func (a *App) listRates(ctx context.Context) error {
	views, err := a.store.ListLatestRates(ctx, a.config.ListLimit)
	if err != nil {
		return fmt.Errorf("failed to list rates: %w", err)
	}
	return writeRates(a.out, views)
}

func writeRates(w io.Writer, views []model.RateView) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCRAPED AT\tSOURCE\tNAME\tCITY\tTYPE\tCURRENCY\tBUY\tSELL")
	for _, v := range views {
		city := "-"
		if v.City != nil {
			city = *v.City
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%.4f\t%.4f\n",
			v.Timestamp, v.PlatformSource, v.Name, city, v.Type, v.Currency, v.Buy, v.Sell)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write rates: %w", err)
	}
	return nil
}

func (a *App) pushMetrics(ctx context.Context) {
	if !a.config.EnableMetrics {
		return
	}
	err := telemetry.Push(ctx, telemetry.PushConfig{
		URL:         a.config.PushgatewayURL,
		Job:         a.config.ServiceName,
		ServiceName: a.config.ServiceName,
		Environment: a.config.Environment,
	}, a.registry, a.logger)
	if err != nil {
		// метрики не влияют на исход запуска
		a.logger.Warn("Metrics were not pushed", zap.Error(err))
	}
}

// Shutdown закрывает хранилище
func (a *App) Shutdown() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("Failed to close repository", zap.Error(err))
		} else {
			a.logger.Info("Database connection closed")
		}
	}
}
