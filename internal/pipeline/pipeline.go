package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/internal/model"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/internal/normalizer"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/internal/repository"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/internal/service"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/internal/source"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/pkg/telemetry"
)

// Result - итог одного запуска
type Result struct {
	RunID           uuid.UUID
	Collected       int
	Dropped         int
	FailedSources   []string
	EntitiesCreated int
	RatesInserted   int
	RatesDuplicate  int
	Skipped         int
	Duration        time.Duration
	// Empty - ни одной годной записи, транзакция не открывалась
	Empty bool
}

// AllSourcesFailed - ни один адаптер не отдал данные
func (r Result) AllSourcesFailed(total int) bool {
	return total > 0 && len(r.FailedSources) == total
}

type Pipeline struct {
	logger     *zap.Logger
	store      repository.Store
	sources    []source.Source
	normalizer *normalizer.Normalizer
	metrics    *telemetry.PipelineMetrics
	tracer     trace.Tracer
	now        func() time.Time
}

type Option func(*Pipeline)

func WithMetrics(m *telemetry.PipelineMetrics) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

// WithClock задает часы для измерения длительности запуска
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

func New(logger *zap.Logger, store repository.Store, sources []source.Source, norm *normalizer.Normalizer, opts ...Option) *Pipeline {
	p := &Pipeline{
		logger:     logger,
		store:      store,
		sources:    sources,
		normalizer: norm,
		metrics:    telemetry.NewPipelineMetrics(prometheus.NewRegistry()),
		tracer:     noop.NewTracerProvider().Tracer(""),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run выполняет один проход: сбор, нормализация, запись в одной транзакции.
// Ошибка возвращается только при сбое хранилища, в этом случае ничего не записано.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	started := p.now()
	res := Result{RunID: uuid.New()}
	logger := p.logger.With(zap.String("run_id", res.RunID.String()))

	// Создаем спан на весь запуск
	ctx, span := p.tracer.Start(ctx, "Pipeline.Run",
		trace.WithAttributes(attribute.String("run_id", res.RunID.String())))
	defer span.End()

	logger.Info("Pipeline run started", zap.Int("sources", len(p.sources)))

	// Собираем и нормализуем строки всех источников
	records := p.collect(ctx, logger, &res)

	// Пустой запуск не открывает транзакцию
	if len(records) == 0 {
		res.Empty = true
		res.Duration = p.now().Sub(started)
		logger.Warn("No data scraped, nothing to save",
			zap.Strings("failed_sources", res.FailedSources),
			zap.Int("dropped", res.Dropped))
		span.SetAttributes(attribute.Bool("empty", true))
		return res, nil
	}

	// Записываем все записи в одной транзакции
	if err := p.ingest(ctx, logger, records, &res); err != nil {
		res.Duration = p.now().Sub(started)
		span.SetStatus(codes.Error, "Pipeline run failed")
		span.RecordError(err)
		logger.Error("Pipeline run failed, transaction rolled back", zap.Error(err))
		return res, err
	}

	// Обновляем метрики успешного запуска
	res.Duration = p.now().Sub(started)
	p.metrics.RunDuration.Observe(res.Duration.Seconds())
	p.metrics.LastSuccess.SetToCurrentTime()
	span.SetStatus(codes.Ok, "Pipeline run committed")

	logger.Info("Pipeline run committed",
		zap.Int("collected", res.Collected),
		zap.Int("dropped", res.Dropped),
		zap.Int("entities_created", res.EntitiesCreated),
		zap.Int("rates_inserted", res.RatesInserted),
		zap.Int("rates_duplicate", res.RatesDuplicate),
		zap.Int("skipped", res.Skipped),
		zap.Strings("failed_sources", res.FailedSources),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// collect опрашивает адаптеры по очереди; сбой одного не мешает остальным
func (p *Pipeline) collect(ctx context.Context, logger *zap.Logger, res *Result) []model.ScrapedRecord {
	var records []model.ScrapedRecord

	for _, src := range p.sources {
		name := src.Name()
		fetchCtx, span := p.tracer.Start(ctx, "Pipeline.Collect",
			trace.WithAttributes(attribute.String("source", name)))

		rows, err := src.Fetch(fetchCtx)
		if err != nil {
			// Отмечаем сбой источника и переходим к следующему
			srcErr := &source.Error{Source: name, Err: err}
			span.SetStatus(codes.Error, "Source failed")
			span.RecordError(srcErr)
			span.End()

			logger.Error("Source failed, skipping", zap.String("source", name), zap.Error(srcErr))
			p.metrics.SourceFailures.WithLabelValues(name).Inc()
			res.FailedSources = append(res.FailedSources, name)
			continue
		}

		batch, stats := p.normalizer.Normalize(rows)

		// Обновляем метрики по отброшенным и принятым строкам
		for reason, n := range stats.Dropped {
			p.metrics.RowsDropped.WithLabelValues(name, reason).Add(float64(n))
		}
		p.metrics.RecordsCollected.WithLabelValues(name).Add(float64(len(batch)))

		span.SetAttributes(
			attribute.Int("rows", len(rows)),
			attribute.Int("records", len(batch)),
		)
		span.End()

		logger.Info("Collected records",
			zap.String("source", name),
			zap.Int("rows", len(rows)),
			zap.Int("records", len(batch)),
			zap.Int("dropped", stats.DroppedTotal()))

		res.Collected += len(batch)
		res.Dropped += stats.DroppedTotal()
		records = append(records, batch...)
	}

	return records
}

func (p *Pipeline) ingest(ctx context.Context, logger *zap.Logger, records []model.ScrapedRecord, res *Result) (err error) {
	// Открываем единственную транзакцию запуска
	tx, err := p.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin run transaction: %w", err)
	}
	// Любая ошибка откатывает весь запуск
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("Failed to rollback run transaction", zap.Error(rbErr))
		}
	}()

	// Кэш сущностей живет в пределах транзакции
	resolver := service.NewEntityResolver(logger, tx, p.tracer)
	ingestor := service.NewRateIngestor(logger, tx)

	var created, inserted, duplicate, skipped int
	for _, record := range records {
		outcome, isNew, recErr := p.ingestRecord(ctx, resolver, ingestor, record)
		if recErr != nil {
			var validationErr *model.ValidationError
			// Невалидная запись пропускается, остальные ошибки прерывают запуск
			if errors.As(recErr, &validationErr) {
				if isNew {
					created++
				}
				skipped++
				logger.Debug("Skipped invalid record",
					zap.String("source", record.Entity.PlatformSource),
					zap.String("name", record.Entity.Name),
					zap.Error(recErr))
				continue
			}
			return fmt.Errorf("failed to ingest record for %s/%s: %w",
				record.Entity.PlatformSource, record.Entity.Name, recErr)
		}
		if isNew {
			created++
		}
		if outcome == telemetry.OutcomeInserted {
			inserted++
		} else {
			duplicate++
		}
	}

	// Фиксируем запуск одним коммитом
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run transaction: %w", err)
	}

	// счетчики обновляются только после фиксации
	res.EntitiesCreated = created
	res.RatesInserted = inserted
	res.RatesDuplicate = duplicate
	res.Skipped = skipped
	p.metrics.EntitiesCreated.Add(float64(created))
	p.metrics.Rates.WithLabelValues(telemetry.OutcomeInserted).Add(float64(inserted))
	p.metrics.Rates.WithLabelValues(telemetry.OutcomeDuplicate).Add(float64(duplicate))
	p.metrics.Rates.WithLabelValues(telemetry.OutcomeSkipped).Add(float64(skipped))
	return nil
}

func (p *Pipeline) ingestRecord(ctx context.Context, resolver *service.EntityResolver, ingestor *service.RateIngestor,
	record model.ScrapedRecord) (string, bool, error) {
	ctx, span := p.tracer.Start(ctx, "Pipeline.Ingest",
		trace.WithAttributes(
			attribute.String("source", record.Entity.PlatformSource),
			attribute.String("name", record.Entity.Name),
			attribute.String("currency", record.Rate.Currency),
		))
	defer span.End()

	entityID, created, err := resolver.Resolve(ctx, record.Entity)
	if err != nil {
		span.RecordError(err)
		return "", false, err
	}

	inserted, err := ingestor.Ingest(ctx, entityID, record.Rate)
	if err != nil {
		span.RecordError(err)
		return "", created, err
	}
	if !inserted {
		return telemetry.OutcomeDuplicate, created, nil
	}
	return telemetry.OutcomeInserted, created, nil
}
