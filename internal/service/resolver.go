package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/internal/model"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/internal/repository"
)

// EntityResolver сопоставляет сущность с постоянным id.
// Живет не дольше одной транзакции: кэш видит только её записи.
type EntityResolver struct {
	logger *zap.Logger
	repo   repository.EntityRepository
	tracer trace.Tracer
	cache  map[model.EntityKey]int64
}

func NewEntityResolver(logger *zap.Logger, repo repository.EntityRepository, tracer trace.Tracer) *EntityResolver {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &EntityResolver{
		logger: logger,
		repo:   repo,
		tracer: tracer,
		cache:  make(map[model.EntityKey]int64),
	}
}

// Resolve возвращает id существующей сущности или создает новую.
// Атрибуты найденной сущности не обновляются.
func (r *EntityResolver) Resolve(ctx context.Context, entity model.Entity) (int64, bool, error) {
	if err := entity.Validate(); err != nil {
		return 0, false, err
	}

	// Сначала смотрим в кэш текущей транзакции
	key := entity.Key()
	if id, ok := r.cache[key]; ok {
		return id, false, nil
	}

	// Создаем спан для обращения к хранилищу
	ctx, span := r.tracer.Start(ctx, "EntityResolver.Resolve",
		trace.WithAttributes(
			attribute.String("platform_source", key.PlatformSource),
			attribute.String("name", key.Name),
		))
	defer span.End()

	id, found, err := r.repo.FindEntityID(ctx, key)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to find entity")
		span.RecordError(err)
		return 0, false, err
	}
	// Найденная сущность не обновляется
	if found {
		r.cache[key] = id
		return id, false, nil
	}

	// Сущности нет, создаем
	id, err = r.repo.InsertEntity(ctx, entity)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to insert entity")
		span.RecordError(err)
		return 0, false, err
	}
	r.cache[key] = id

	r.logger.Info("Created entity",
		zap.Int64("id", id),
		zap.String("platform_source", key.PlatformSource),
		zap.String("name", key.Name),
		zap.Stringp("city", entity.City),
		zap.String("type", string(entity.Type)))
	span.SetAttributes(attribute.Int64("entity_id", id))
	return id, true, nil
}
