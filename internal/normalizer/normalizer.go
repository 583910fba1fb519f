package normalizer

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/internal/model"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/internal/source"
)

// Причины отбрасывания строки
const (
	ReasonEmptyField = "empty_field"
	ReasonUnparsable = "unparsable"
	ReasonInvalid    = "invalid"
)

// Stats - сколько строк отброшено и почему
type Stats struct {
	Accepted int
	Dropped  map[string]int
}

func (s Stats) DroppedTotal() int {
	total := 0
	for _, n := range s.Dropped {
		total += n
	}
	return total
}

type Normalizer struct {
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
}

type Option func(*Normalizer)

// WithClock подменяет источник текущего времени
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		n.now = now
	}
}

func New(loc *time.Location, logger *zap.Logger, opts ...Option) *Normalizer {
	n := &Normalizer{
		loc:    loc,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize превращает строки одного прохода адаптера в записи.
// Момент снимается один раз на батч, плохие строки отбрасываются.
func (n *Normalizer) Normalize(rows []source.Row) ([]model.ScrapedRecord, Stats) {
	stats := Stats{Dropped: map[string]int{}}
	timestamp := model.FormatTimestamp(n.now(), n.loc)

	records := make([]model.ScrapedRecord, 0, len(rows))
	for _, row := range rows {
		record, reason, err := n.normalizeRow(row, timestamp)
		if err != nil {
			stats.Dropped[reason]++
			n.logger.Debug("Dropped row",
				zap.String("source", row.Source),
				zap.String("name", row.Name),
				zap.String("reason", reason),
				zap.Error(err))
			continue
		}
		records = append(records, record)
	}
	stats.Accepted = len(records)

	return records, stats
}

var errEmptyField = errors.New("required field is empty")

func (n *Normalizer) normalizeRow(row source.Row, timestamp string) (model.ScrapedRecord, string, error) {
	name := strings.TrimSpace(row.Name)
	buyText := strings.TrimSpace(row.Buy)
	sellText := strings.TrimSpace(row.Sell)
	if name == "" || buyText == "" || sellText == "" {
		return model.ScrapedRecord{}, ReasonEmptyField, errEmptyField
	}

	buy, err := ParseAmount(buyText)
	if err != nil {
		return model.ScrapedRecord{}, ReasonUnparsable, err
	}
	sell, err := ParseAmount(sellText)
	if err != nil {
		return model.ScrapedRecord{}, ReasonUnparsable, err
	}

	entity, err := model.NewEntity(row.Source, name, row.City, row.Type)
	if err != nil {
		return model.ScrapedRecord{}, ReasonInvalid, err
	}
	rate, err := model.NewExchangeRate(row.Currency, buy, sell, timestamp)
	if err != nil {
		return model.ScrapedRecord{}, ReasonInvalid, err
	}

	return model.ScrapedRecord{Entity: entity, Rate: rate}, "", nil
}

// ParseAmount читает число с запятой или точкой как десятичным разделителем
func ParseAmount(text string) (float64, error) {
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(text), ",", "."))
	if err != nil {
		return 0, err
	}
	v := d.InexactFloat64()
	// значение вне диапазона float64 превращается в бесконечность
	if math.IsInf(v, 0) {
		return 0, fmt.Errorf("amount %q is out of range", text)
	}
	return v, nil
}
