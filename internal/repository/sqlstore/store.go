package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/internal/model"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/internal/repository"
	"studentgit.kata.academy/KonstantinDolgov/rate-ingest/migrations"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

type Repository struct {
	db      *sql.DB
	dialect Dialect
	q       queries
	logger  *zap.Logger
}

// New оборачивает уже открытое соединение
func New(db *sql.DB, dialect Dialect, logger *zap.Logger) *Repository {
	return &Repository{
		db:      db,
		dialect: dialect,
		q:       newQueries(dialect),
		logger:  logger,
	}
}

// NewSQLite открывает файл базы, создавая каталог при необходимости
func NewSQLite(path string, logger *zap.Logger) (repository.Store, error) {
	logger.Debug("Initializing sqlite repository", zap.String("path", path))

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		logger.Error("Failed to open database", zap.Error(err))
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// один писатель: запуск держит единственное соединение
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logger.Error("Failed to ping database", zap.Error(err))
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database repository initialized successfully", zap.String("driver", string(DialectSQLite)))
	return New(db, DialectSQLite, logger), nil
}

func NewPostgres(connString string, logger *zap.Logger) (repository.Store, error) {
	logger.Debug("Initializing postgres repository")

	db, err := sql.Open("pgx", connString)
	if err != nil {
		logger.Error("Failed to open database connection", zap.Error(err))
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Debug("Checking database connection")
	if err := db.Ping(); err != nil {
		_ = db.Close()
		logger.Error("Failed to ping database", zap.Error(err))
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database repository initialized successfully", zap.String("driver", string(DialectPostgres)))
	return New(db, DialectPostgres, logger), nil
}

func (r *Repository) Migrate(ctx context.Context) error {
	applied, err := migrations.Up(ctx, r.db, string(r.dialect))
	if err != nil {
		r.logger.Error("Failed to run migrations", zap.Error(err))
		return &repository.StorageError{Op: "migrate", Err: err}
	}
	r.logger.Info("Database migrations completed successfully", zap.Int64s("applied", applied))
	return nil
}

func (r *Repository) Begin(ctx context.Context) (repository.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin transaction", zap.Error(err))
		return nil, &repository.StorageError{Op: "begin", Err: err}
	}
	return &txRepository{tx: tx, q: r.q, logger: r.logger}, nil
}

func (r *Repository) ListLatestRates(ctx context.Context, limit int) ([]model.RateView, error) {
	rows, err := r.db.QueryContext(ctx, r.q.listLatestRates, limit)
	if err != nil {
		r.logger.Error("Failed to list rates", zap.Error(err))
		return nil, &repository.StorageError{Op: "list rates", Err: err}
	}
	defer rows.Close()

	var out []model.RateView
	for rows.Next() {
		var (
			v    model.RateView
			city sql.NullString
		)
		if err := rows.Scan(&v.ID, &v.EntityID, &v.PlatformSource, &v.Name, &city, &v.Type,
			&v.Currency, &v.Buy, &v.Sell, &v.Timestamp); err != nil {
			return nil, &repository.StorageError{Op: "scan rate", Err: err}
		}
		if city.Valid {
			v.City = &city.String
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, &repository.StorageError{Op: "list rates", Err: err}
	}
	return out, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return &repository.StorageError{Op: "ping", Err: err}
	}
	return nil
}

func (r *Repository) Close() error {
	r.logger.Info("Closing database connection")
	if err := r.db.Close(); err != nil {
		r.logger.Error("Failed to close database connection", zap.Error(err))
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	r.logger.Info("Database connection closed successfully")
	return nil
}

type txRepository struct {
	tx     *sql.Tx
	q      queries
	logger *zap.Logger
}

func (t *txRepository) FindEntityID(ctx context.Context, key model.EntityKey) (int64, bool, error) {
	var id int64
	city := key.CityArg()
	err := t.tx.QueryRowContext(ctx, t.q.findEntity, key.PlatformSource, key.Name, city, city).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		t.logger.Error("Failed to find entity",
			zap.String("platform_source", key.PlatformSource),
			zap.String("name", key.Name),
			zap.Error(err))
		return 0, false, &repository.StorageError{Op: "find entity", Err: err}
	}
	return id, true, nil
}

func (t *txRepository) InsertEntity(ctx context.Context, entity model.Entity) (int64, error) {
	var id int64
	key := entity.Key()
	err := t.tx.QueryRowContext(ctx, t.q.insertEntity,
		key.PlatformSource, key.Name, key.CityArg(), string(entity.Type)).Scan(&id)
	if err != nil {
		t.logger.Error("Failed to insert entity",
			zap.String("platform_source", key.PlatformSource),
			zap.String("name", key.Name),
			zap.Error(err))
		return 0, &repository.StorageError{Op: "insert entity", Err: err}
	}

	t.logger.Debug("Entity inserted",
		zap.Int64("id", id),
		zap.String("platform_source", key.PlatformSource),
		zap.String("name", key.Name))
	return id, nil
}

func (t *txRepository) InsertRate(ctx context.Context, entityID int64, rate model.ExchangeRate) (bool, error) {
	res, err := t.tx.ExecContext(ctx, t.q.insertRate,
		entityID, rate.Currency, rate.Buy, rate.Sell, rate.Timestamp)
	if err != nil {
		t.logger.Error("Failed to save rate",
			zap.Int64("entity_id", entityID),
			zap.String("currency", rate.Currency),
			zap.Float64("buy", rate.Buy),
			zap.Float64("sell", rate.Sell),
			zap.Error(err))
		return false, &repository.StorageError{Op: "insert rate", Err: err}
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, &repository.StorageError{Op: "insert rate", Err: err}
	}
	return affected > 0, nil
}

func (t *txRepository) Commit() error {
	if err := t.tx.Commit(); err != nil {
		t.logger.Error("Failed to commit transaction", zap.Error(err))
		return &repository.StorageError{Op: "commit", Err: err}
	}
	return nil
}

// Rollback после Commit ничего не делает
func (t *txRepository) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		t.logger.Error("Failed to rollback transaction", zap.Error(err))
		return &repository.StorageError{Op: "rollback", Err: err}
	}
	return nil
}

type queries struct {
	findEntity      string
	insertEntity    string
	insertRate      string
	listLatestRates string
}

func newQueries(dialect Dialect) queries {
	return queries{
		findEntity: rebind(dialect, `
			SELECT id FROM entities
			WHERE platform_source = ?
			AND name = ?
			AND (city = ? OR (city IS NULL AND CAST(? AS TEXT) IS NULL))
		`),
		insertEntity: rebind(dialect, `
			INSERT INTO entities (platform_source, name, city, type)
			VALUES (?, ?, ?, ?)
			RETURNING id
		`),
		insertRate: rebind(dialect, `
			INSERT INTO exchange_rates (entity_id, currency, buy_rate, sell_rate, scraped_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (entity_id, currency, scraped_at) DO NOTHING
		`),
		listLatestRates: rebind(dialect, `
			SELECT er.id, er.entity_id, e.platform_source, e.name, e.city, e.type,
			       er.currency, er.buy_rate, er.sell_rate, er.scraped_at
			FROM exchange_rates er
			JOIN entities e ON er.entity_id = e.id
			ORDER BY er.scraped_at DESC, er.id DESC
			LIMIT ?
		`),
	}
}

// rebind переводит плейсхолдеры ? в $1, $2... для postgres
func rebind(dialect Dialect, query string) string {
	if dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}
