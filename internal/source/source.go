package source

import (
	"context"
	"fmt"

	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/internal/model"
)

// Row - сырая строка кандидата в том виде, в каком её отдает адаптер.
// Текст не обрезан и не разобран, это задача нормализатора.
type Row struct {
	Source   string
	Name     string
	City     *string // nil - у источника нет города
	Currency string
	Buy      string
	Sell     string
	Type     model.EntityType
}

// Source - адаптер одного сайта: конечный список строк за вызов
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]Row, error)
}

// Error - адаптер не смог отдать ни одной строки
type Error struct {
	Source string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("source %s failed: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
