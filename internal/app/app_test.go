package app

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/config"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/internal/model"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/internal/repository"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockStore) Begin(ctx context.Context) (repository.Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(repository.Tx), args.Error(1)
}

func (m *MockStore) ListLatestRates(ctx context.Context, limit int) ([]model.RateView, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RateView), args.Error(1)
}

func (m *MockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockStore) Close() error {
	return m.Called().Error(0)
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Mode:        config.ModeIngest,
		ListLimit:   10,
		DBDriver:    config.DriverSQLite,
		DBPath:      filepath.Join(t.TempDir(), "rates.db"),
		Timezone:    "Europe/Bucharest",
		Sources:     []string{config.SourceBNR, config.SourceValutare},
		HTTPTimeout: time.Second,
		UserAgent:   "test",
		ServiceName: "rate-ingest",
	}
}

func withStore(t *testing.T, store repository.Store, err error) {
	originalFunc := newStoreFunc
	t.Cleanup(func() { newStoreFunc = originalFunc })
	newStoreFunc = func(*config.Config, *zap.Logger) (repository.Store, error) {
		return store, err
	}
}

func TestNewApp(t *testing.T) {
	logger := zap.NewNop()

	t.Run("success", func(t *testing.T) {
		cfg := testConfig(t)
		mockStore := new(MockStore)
		withStore(t, mockStore, nil)

		app, err := NewApp(cfg, logger, nil)

		assert.NoError(t, err)
		assert.NotNil(t, app)
		assert.Equal(t, cfg, app.config)
		assert.Equal(t, mockStore, app.store)
	})

	t.Run("repository creation error", func(t *testing.T) {
		withStore(t, nil, errors.New("repository creation error"))

		app, err := NewApp(testConfig(t), logger, nil)

		assert.Error(t, err)
		assert.Nil(t, app)
		assert.Contains(t, err.Error(), "failed to create repository")
	})
}

func TestRun_MigrationError(t *testing.T) {
	mockStore := new(MockStore)
	mockStore.On("Migrate", mock.Anything).Return(errors.New("bad schema"))
	withStore(t, mockStore, nil)

	app, err := NewApp(testConfig(t), zap.NewNop(), nil)
	require.NoError(t, err)

	err = app.Run(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to run migrations")
	mockStore.AssertNotCalled(t, "Begin", mock.Anything)
}

func TestRun_ListMode(t *testing.T) {
	city := "Iasi"
	mockStore := new(MockStore)
	mockStore.On("Migrate", mock.Anything).Return(nil)
	mockStore.On("ListLatestRates", mock.Anything, 10).Return([]model.RateView{
		{PlatformSource: "Valutare", Name: "Tempo", City: &city, Type: model.EntityTypeExchangeOffice,
			Currency: "EUR", Buy: 4.96, Sell: 5.04, Timestamp: "2025-06-01T12:41"},
		{PlatformSource: "BNR", Name: "BRD", Type: model.EntityTypeBank,
			Currency: "EUR", Buy: 4.97, Sell: 5.05, Timestamp: "2025-06-01T12:40"},
	}, nil)
	withStore(t, mockStore, nil)

	cfg := testConfig(t)
	cfg.Mode = config.ModeList
	app, err := NewApp(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	var out bytes.Buffer
	app.out = &out

	require.NoError(t, app.Run(context.Background()))

	assert.Contains(t, out.String(), "SCRAPED AT")
	assert.Contains(t, out.String(), "Tempo")
	assert.Contains(t, out.String(), "Iasi")
	assert.Contains(t, out.String(), "4.9700")
	mockStore.AssertExpectations(t)
}

const bnrPage = `<html><body><table>
<tr><th>Banca</th><th>Cumparare</th><th>Vanzare</th></tr>
<tr><td>BRD</td><td>4,9700</td><td>5,0500</td></tr>
</table></body></html>`

const valutarePage = `<html><body><div class="exchangegrid">
<div class="exchange-row">
  <span class="exchange-name-txt">Tempo</span>
  <span class="oras">Iasi</span>
  <span class="buy-rate">4,9600 RON</span>
  <span class="sell-rate">5,0400 RON</span>
</div>
</div></body></html>`

func pageServer(t *testing.T, status int, body string) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRun_IngestEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	cfg.BNRURL = pageServer(t, http.StatusOK, bnrPage).URL
	cfg.ValutareURL = pageServer(t, http.StatusOK, valutarePage).URL

	app, err := NewApp(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	defer app.Shutdown()

	require.NoError(t, app.Run(context.Background()))

	views, err := app.store.ListLatestRates(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, views, 2)
}

func TestRun_AllSourcesFailed(t *testing.T) {
	cfg := testConfig(t)
	cfg.BNRURL = pageServer(t, http.StatusServiceUnavailable, "").URL
	cfg.ValutareURL = pageServer(t, http.StatusOK, "<html><body>maintenance</body></html>").URL

	app, err := NewApp(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	defer app.Shutdown()

	// запуск завершается предупреждением, а не ошибкой
	require.NoError(t, app.Run(context.Background()))

	views, err := app.store.ListLatestRates(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, views)

	families, err := app.registry.Gather()
	require.NoError(t, err)
	failures := 0.0
	for _, mf := range families {
		if mf.GetName() != "rate_ingest_source_failures_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			failures += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 2.0, failures)
}

func TestBuildSources(t *testing.T) {
	mockStore := new(MockStore)
	withStore(t, mockStore, nil)
	cfg := testConfig(t)
	cfg.Sources = []string{config.SourceValutare}

	app, err := NewApp(cfg, zap.NewNop(), nil)
	require.NoError(t, err)

	sources := app.buildSources()
	require.Len(t, sources, 1)
	assert.Equal(t, "Valutare", sources[0].Name())
}

func TestShutdown(t *testing.T) {
	t.Run("closes store", func(t *testing.T) {
		mockStore := new(MockStore)
		mockStore.On("Close").Return(nil).Once()
		withStore(t, mockStore, nil)

		app, err := NewApp(testConfig(t), zap.NewNop(), nil)
		require.NoError(t, err)
		app.Shutdown()

		mockStore.AssertExpectations(t)
	})

	t.Run("close error is logged", func(t *testing.T) {
		mockStore := new(MockStore)
		mockStore.On("Close").Return(errors.New("close error")).Once()
		withStore(t, mockStore, nil)

		app, err := NewApp(testConfig(t), zap.NewNop(), nil)
		require.NoError(t, err)
		assert.NotPanics(t, app.Shutdown)

		mockStore.AssertExpectations(t)
	})
}
