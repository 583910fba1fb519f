package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const maxPageSize = 8 << 20

// PageClient загружает HTML-страницы источников
type PageClient struct {
	httpClient *http.Client
	userAgent  string
	maxSize    int
	logger     *zap.Logger
}

func NewPageClient(timeout time.Duration, userAgent string, logger *zap.Logger) *PageClient {
	return &PageClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		userAgent: userAgent,
		maxSize:   maxPageSize,
		logger:    logger,
	}
}

func (c *PageClient) Document(ctx context.Context, url string) (*goquery.Document, error) {
	c.logger.Debug("Requesting page", zap.String("url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.logger.Error("Failed to create request", zap.Error(err), zap.String("url", url))
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Failed to make request", zap.Error(err), zap.String("url", url))
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Unexpected status code",
			zap.Int("status_code", resp.StatusCode),
			zap.String("url", url))
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	// Читаем на байт больше лимита, чтобы отличить обрезанную страницу
	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(c.maxSize)+1))
	if err != nil {
		c.logger.Error("Failed to read response body", zap.Error(err), zap.String("url", url))
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) > c.maxSize {
		c.logger.Error("Page exceeds size limit",
			zap.Int("limit_bytes", c.maxSize),
			zap.String("url", url))
		return nil, fmt.Errorf("page exceeds %d bytes", c.maxSize)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		c.logger.Error("Failed to parse page", zap.Error(err), zap.String("url", url))
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	return doc, nil
}
