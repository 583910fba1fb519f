package model

import (
	"math"
	"strings"
	"time"
)

// TimestampLayout - минутная точность, лексикографически сортируемый формат
const TimestampLayout = "2006-01-02T15:04"

type ExchangeRate struct {
	Currency  string  `db:"currency"`
	Buy       float64 `db:"buy_rate"`
	Sell      float64 `db:"sell_rate"`
	Timestamp string  `db:"scraped_at"`
}

func NewExchangeRate(currency string, buy, sell float64, timestamp string) (ExchangeRate, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return ExchangeRate{}, invalid("currency", "must not be empty")
	}
	// !(x > 0) отсекает и NaN, бесконечность проверяем отдельно
	if !(buy > 0) || !(sell > 0) || math.IsInf(buy, 0) || math.IsInf(sell, 0) {
		return ExchangeRate{}, invalid("rate", "buy=%v sell=%v must both be positive and finite", buy, sell)
	}
	if _, err := time.Parse(TimestampLayout, timestamp); err != nil {
		return ExchangeRate{}, invalid("timestamp", "%q is not in %s form", timestamp, TimestampLayout)
	}
	return ExchangeRate{
		Currency:  currency,
		Buy:       buy,
		Sell:      sell,
		Timestamp: timestamp,
	}, nil
}

// FormatTimestamp приводит момент к единой зоне и минутной точности
func FormatTimestamp(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(TimestampLayout)
}

// ScrapedRecord - единица работы конвейера, как есть не сохраняется
type ScrapedRecord struct {
	Entity Entity
	Rate   ExchangeRate
}

// RateView - строка выборки курсов вместе с данными сущности
type RateView struct {
	ID             int64      `db:"id"`
	EntityID       int64      `db:"entity_id"`
	PlatformSource string     `db:"platform_source"`
	Name           string     `db:"name"`
	City           *string    `db:"city"`
	Type           EntityType `db:"type"`
	Currency       string     `db:"currency"`
	Buy            float64    `db:"buy_rate"`
	Sell           float64    `db:"sell_rate"`
	Timestamp      string     `db:"scraped_at"`
}
