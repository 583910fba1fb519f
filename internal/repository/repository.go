package repository

import (
	"context"
	"fmt"

	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/internal/model"
)

type EntityRepository interface {
	// FindEntityID ищет сущность по ключу идентичности, found=false если её нет
	FindEntityID(ctx context.Context, key model.EntityKey) (id int64, found bool, err error)
	InsertEntity(ctx context.Context, entity model.Entity) (int64, error)
}

type RateRepository interface {
	// InsertRate возвращает false, если наблюдение с тем же ключом уже есть
	InsertRate(ctx context.Context, entityID int64, rate model.ExchangeRate) (bool, error)
}

// Tx - единица работы одного запуска
type Tx interface {
	EntityRepository
	RateRepository
	Commit() error
	Rollback() error
}

type Store interface {
	// Migrate доводит схему до последней версии
	Migrate(ctx context.Context) error
	Begin(ctx context.Context) (Tx, error)
	ListLatestRates(ctx context.Context, limit int) ([]model.RateView, error)
	Ping(ctx context.Context) error
	Close() error
}

// StorageError - сбой хранилища, запуск прерывается
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
