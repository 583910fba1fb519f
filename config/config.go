package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // встроенная база часовых поясов

	"github.com/caarlos0/env/v6"
)

const (
	ModeIngest = "ingest"
	ModeList   = "list"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	SourceBNR      = "bnr"
	SourceValutare = "valutare"
)

type Config struct {
	Mode      string `env:"MODE" envDefault:"ingest"`
	ListLimit int    `env:"LIST_LIMIT" envDefault:"50"`

	DBDriver   string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBPath     string `env:"DB_PATH" envDefault:"data/exchange_rates.db"`
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME"`
	DBSSLMode  string `env:"DB_SSL_MODE" envDefault:"disable"`

	Timezone    string        `env:"TIMEZONE" envDefault:"Europe/Bucharest"`
	Sources     []string      `env:"SOURCES" envSeparator:"," envDefault:"bnr,valutare"`
	BNRURL      string        `env:"BNR_URL" envDefault:"https://www.cursbnr.ro/curs-valutar-banci"`
	ValutareURL string        `env:"VALUTARE_URL" envDefault:"https://www.valutare.ro/curs/curs-valutar-case-de-schimb.html"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	UserAgent   string        `env:"USER_AGENT" envDefault:"Mozilla/5.0 (compatible; rate-ingest/1.0)"`

	LogLevel      string `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFile       string `env:"LOG_FILE" envDefault:"logs/pipeline.log"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"14"`

	ServiceName    string `env:"SERVICE_NAME" envDefault:"rate-ingest"`
	ServiceVersion string `env:"SERVICE_VERSION" envDefault:"1.0.0"`
	Environment    string `env:"ENVIRONMENT" envDefault:"development"`

	EnableTracing bool   `env:"ENABLE_TRACING" envDefault:"false"`
	OTLPEndpoint  string `env:"OTLP_ENDPOINT" envDefault:"localhost:4317"`

	EnableMetrics  bool   `env:"ENABLE_METRICS" envDefault:"false"`
	PushgatewayURL string `env:"PUSHGATEWAY_URL"`
}

// ReadConfig читает окружение, затем флаги из args (без имени программы)
func ReadConfig(args []string) (*Config, error) {
	config := Config{}

	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("read config error: %w", err)
	}

	fs := flag.NewFlagSet("rate-ingest", flag.ContinueOnError)
	fs.StringVar(&config.Mode, "mode", config.Mode, "Run mode: ingest or list")
	fs.IntVar(&config.ListLimit, "limit", config.ListLimit, "Number of rates to print in list mode")
	fs.StringVar(&config.DBDriver, "db-driver", config.DBDriver, "Database driver: sqlite or postgres")
	fs.StringVar(&config.DBPath, "db-path", config.DBPath, "SQLite database file")
	fs.StringVar(&config.DBHost, "db-host", config.DBHost, "Database host")
	fs.StringVar(&config.DBPort, "db-port", config.DBPort, "Database port")
	fs.StringVar(&config.DBUser, "db-user", config.DBUser, "Database user")
	fs.StringVar(&config.DBPassword, "db-password", config.DBPassword, "Database password")
	fs.StringVar(&config.DBName, "db-name", config.DBName, "Database name")
	fs.StringVar(&config.DBSSLMode, "db-sslmode", config.DBSSLMode, "Database SSL mode")
	fs.StringVar(&config.Timezone, "timezone", config.Timezone, "Timezone for observation timestamps")
	fs.Func("sources", "Comma separated list of sources to scrape", func(v string) error {
		config.Sources = splitList(v)
		return nil
	})
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "Log level")
	fs.StringVar(&config.LogFile, "log-file", config.LogFile, "Log file, empty for stderr only")

	fs.BoolVar(&config.EnableTracing, "enable-tracing",
		config.EnableTracing, "Enable OpenTelemetry tracing")
	fs.StringVar(&config.OTLPEndpoint, "otlp-endpoint",
		config.OTLPEndpoint, "OpenTelemetry collector endpoint")
	fs.BoolVar(&config.EnableMetrics, "enable-metrics",
		config.EnableMetrics, "Enable Prometheus metrics")
	fs.StringVar(&config.PushgatewayURL, "pushgateway-url",
		config.PushgatewayURL, "Prometheus Pushgateway URL")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("read flags error: %w", err)
	}

	config.Sources = normalizeList(config.Sources)
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Mode {
	case ModeIngest, ModeList:
	default:
		errs = append(errs, fmt.Errorf("unknown mode %q", c.Mode))
	}

	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for sqlite"))
		}
	case DriverPostgres:
		if c.DBName == "" {
			errs = append(errs, errors.New("DB_NAME is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.DBDriver))
	}

	if c.Mode == ModeIngest && len(c.Sources) == 0 {
		errs = append(errs, errors.New("at least one source is required"))
	}
	for _, s := range c.Sources {
		if s != SourceBNR && s != SourceValutare {
			errs = append(errs, fmt.Errorf("unknown source %q", s))
		}
	}

	if c.ListLimit <= 0 {
		errs = append(errs, fmt.Errorf("list limit must be positive, got %d", c.ListLimit))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("http timeout must be positive, got %s", c.HTTPTimeout))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err))
	}
	if c.EnableMetrics && c.PushgatewayURL == "" {
		errs = append(errs, errors.New("PUSHGATEWAY_URL is required when metrics are enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Location - зона, в которой штампуются наблюдения
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) GetDBConnString() string {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)

	return connStr
}

func (c *Config) SourceEnabled(name string) bool {
	for _, s := range c.Sources {
		if s == name {
			return true
		}
	}
	return false
}

func splitList(v string) []string {
	return normalizeList(strings.Split(v, ","))
}

func normalizeList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
