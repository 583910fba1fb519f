package service

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/internal/model"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/internal/repository"
)

var errNoEntity = errors.New("entity id must be positive")

type RateIngestor struct {
	logger *zap.Logger
	repo   repository.RateRepository
}

func NewRateIngestor(logger *zap.Logger, repo repository.RateRepository) *RateIngestor {
	return &RateIngestor{
		logger: logger,
		repo:   repo,
	}
}

// Ingest сохраняет наблюдение; повтор по (entity, currency, timestamp) дает false без ошибки
func (i *RateIngestor) Ingest(ctx context.Context, entityID int64, rate model.ExchangeRate) (bool, error) {
	if entityID <= 0 {
		return false, &repository.StorageError{Op: "insert rate", Err: errNoEntity}
	}

	inserted, err := i.repo.InsertRate(ctx, entityID, rate)
	if err != nil {
		return false, err
	}
	if !inserted {
		i.logger.Debug("Rate already recorded",
			zap.Int64("entity_id", entityID),
			zap.String("currency", rate.Currency),
			zap.String("timestamp", rate.Timestamp))
	}
	return inserted, nil
}
