package valutare

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/internal/model"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/internal/source"
)

const (
	SourceName = "Valutare"
	DefaultURL = "https://www.valutare.ro/curs/curs-valutar-case-de-schimb.html"
)

var errNoGrid = errors.New("exchange grid not found on page")

// Scraper читает курсы EUR обменных пунктов с valutare.ro
type Scraper struct {
	url    string
	client *source.PageClient
	logger *zap.Logger
}

func New(url string, client *source.PageClient, logger *zap.Logger) *Scraper {
	return &Scraper{
		url:    url,
		client: client,
		logger: logger,
	}
}

func (s *Scraper) Name() string { return SourceName }

func (s *Scraper) Fetch(ctx context.Context) ([]source.Row, error) {
	doc, err := s.client.Document(ctx, s.url)
	if err != nil {
		return nil, fmt.Errorf("failed to load valutare page: %w", err)
	}
	if doc.Find(".exchangegrid").Length() == 0 {
		return nil, errNoGrid
	}

	var (
		rows  []source.Row
		noise int
	)
	doc.Find(".exchange-row").Each(func(_ int, row *goquery.Selection) {
		name := row.Find(".exchange-name-txt")
		city := row.Find(".oras")
		buy := row.Find(".buy-rate")
		sell := row.Find(".sell-rate")
		if name.Length() == 0 || city.Length() == 0 || buy.Length() == 0 || sell.Length() == 0 {
			noise++
			return
		}

		cityText := city.First().Text()
		rows = append(rows, source.Row{
			Source:   SourceName,
			Name:     name.First().Text(),
			City:     &cityText,
			Currency: "EUR",
			Buy:      firstToken(buy.First().Text()),
			Sell:     firstToken(sell.First().Text()),
			Type:     model.EntityTypeExchangeOffice,
		})
	})

	s.logger.Debug("Extracted valutare rows",
		zap.Int("rows", len(rows)),
		zap.Int("skipped", noise))

	return rows, nil
}

// firstToken отрезает единицы вроде "4,9700 RON"
func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
