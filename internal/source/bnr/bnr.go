package bnr

import (
	"context"
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/internal/model"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/internal/source"
)

const (
	SourceName = "BNR"
	DefaultURL = "https://www.cursbnr.ro/curs-valutar-banci"
)

var errNoTable = errors.New("rate table not found on page")

// Scraper читает таблицу курсов EUR по банкам с cursbnr.ro.
// Банки общенациональные, города у них нет.
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
		return nil, fmt.Errorf("failed to load bnr page: %w", err)
	}
	if doc.Find("table").Length() == 0 {
		return nil, errNoTable
	}

	var (
		rows  []source.Row
		noise int
	)
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < 3 {
			noise++
			return
		}
		rows = append(rows, source.Row{
			Source:   SourceName,
			Name:     cells.Eq(0).Text(),
			Currency: "EUR",
			Buy:      cells.Eq(1).Text(),
			Sell:     cells.Eq(2).Text(),
			Type:     model.EntityTypeBank,
		})
	})

	s.logger.Debug("Extracted bnr rows",
		zap.Int("rows", len(rows)),
		zap.Int("skipped", noise))

	return rows, nil
}
