package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/model"
)

//go:embed default_filters.yaml
var defaultFilters []byte

type Config struct {
	Algod        LedgerConfig
	Indexer      LedgerConfig
	RPC          RPCConfig
	Store        StoreConfig
	Subscription SubscriptionConfig
	Fetch        FetchConfig
	Dispatch     DispatchConfig
	Handlers     HandlersConfig
	Filters      []FilterBinding
	Server       ServerConfig
	Log          LogConfig
	Tracing      TracingConfig
	Alert        AlertConfig
}

type LedgerConfig struct {
	URL   string
	Token string
}

type RPCConfig struct {
	Timeout                 time.Duration
	RateLimitRPS            float64
	RateLimitBurst          int
	BreakerFailureThreshold int
	BreakerOpenTimeout      time.Duration
}

type StoreConfig struct {
	// URL selects the watermark backend; empty means a local SQLite file.
	URL                  string
	RedisKey             string
	PGMaxOpenConns       int
	PGMaxIdleConns       int
	PGConnMaxLifetime    time.Duration
	PGStatementTimeoutMS int
}

type SubscriptionConfig struct {
	Name                   string
	SyncBehaviour          model.SyncBehaviour
	MaxRoundsToSync        int
	WaitForBlockWhenAtTip  bool
	PollInterval           time.Duration
	BatchBackoffInitial    time.Duration
	BatchBackoffMax        time.Duration
	MaxConsecutiveFailures int
	ProgressLogInterval    int
	UnhealthyThreshold     int
}

type FetchConfig struct {
	Concurrency    int
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	PageSize       int
	CacheCapacity  int
	CacheTTL       time.Duration
}

type DispatchConfig struct {
	MatchWorkers    int
	DispatchWorkers int
	HandlerTimeout  time.Duration
}

type HandlersConfig struct {
	StatsInterval int
	Idempotent    bool
	FiltersFile   string
}

type ServerConfig struct {
	HealthPort        int
	TrustProxyHeaders bool
}

type LogConfig struct {
	Level  string
	Format string
}

type TracingConfig struct {
	Enabled  bool
	Endpoint string
	Insecure bool
}

type AlertConfig struct {
	WebhookURL      string
	SlackWebhookURL string
	Cooldown        time.Duration
}

// FilterBinding is one entry of the filters file: a named filter and the
// handler catalog names bound to it, in invocation order.
type FilterBinding struct {
	model.NamedFilter `yaml:",inline"`
	Handlers          []string `yaml:"handlers"`
}

type filtersFile struct {
	Filters []FilterBinding `yaml:"filters"`
}

// Load reads an optional .env file (ENV_FILE, default ".env"), then the
// process environment, then the filters file.
func Load() (*Config, error) {
	if err := loadEnvFile(getEnv("ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{
		Algod: LedgerConfig{
			URL:   getEnv("ALGOD_URL", "https://mainnet-api.algonode.cloud"),
			Token: getEnv("ALGOD_TOKEN", ""),
		},
		Indexer: LedgerConfig{
			URL:   getEnvAllowEmpty("INDEXER_URL", "https://mainnet-idx.algonode.cloud"),
			Token: getEnv("INDEXER_TOKEN", ""),
		},
		RPC: RPCConfig{
			Timeout:                 time.Duration(getEnvInt("RPC_TIMEOUT_MS", 10000)) * time.Millisecond,
			RateLimitRPS:            getEnvFloat("RPC_RATE_LIMIT_RPS", 20),
			RateLimitBurst:          getEnvInt("RPC_RATE_LIMIT_BURST", 40),
			BreakerFailureThreshold: getEnvInt("CIRCUIT_BREAKER_FAILURE_THRESHOLD", 5),
			BreakerOpenTimeout:      time.Duration(getEnvInt("CIRCUIT_BREAKER_OPEN_TIMEOUT_SEC", 30)) * time.Second,
		},
		Store: StoreConfig{
			URL:                  getEnv("WATERMARK_STORE_URL", ""),
			RedisKey:             getEnv("WATERMARK_REDIS_KEY", "algomon:watermarks"),
			PGMaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 5),
			PGMaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 2),
			PGConnMaxLifetime:    time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 30)) * time.Minute,
			PGStatementTimeoutMS: getEnvInt("DB_STATEMENT_TIMEOUT_MS", 5000),
		},
		Subscription: SubscriptionConfig{
			Name:                   getEnv("SUBSCRIPTION_NAME", "dex-monitor"),
			MaxRoundsToSync:        getEnvInt("MAX_ROUNDS_TO_SYNC", 50),
			WaitForBlockWhenAtTip:  getEnvBool("WAIT_FOR_BLOCK_WHEN_AT_TIP", true),
			PollInterval:           time.Duration(getEnvFloat("POLL_INTERVAL_SECONDS", 1.0) * float64(time.Second)),
			BatchBackoffInitial:    time.Duration(getEnvInt("BATCH_BACKOFF_INITIAL_MS", 1000)) * time.Millisecond,
			BatchBackoffMax:        time.Duration(getEnvInt("BATCH_BACKOFF_MAX_MS", 30000)) * time.Millisecond,
			MaxConsecutiveFailures: getEnvInt("MAX_CONSECUTIVE_FAILURES", 0),
			ProgressLogInterval:    getEnvInt("PROGRESS_LOG_INTERVAL", 100),
			UnhealthyThreshold:     getEnvInt("UNHEALTHY_THRESHOLD", 5),
		},
		Fetch: FetchConfig{
			Concurrency:    getEnvInt("FETCH_CONCURRENCY", 4),
			MaxAttempts:    getEnvInt("FETCH_RETRY_MAX_ATTEMPTS", 4),
			BackoffInitial: time.Duration(getEnvInt("FETCH_BACKOFF_INITIAL_MS", 200)) * time.Millisecond,
			BackoffMax:     time.Duration(getEnvInt("FETCH_BACKOFF_MAX_MS", 3000)) * time.Millisecond,
			PageSize:       getEnvInt("INDEX_PAGE_SIZE", 1000),
			CacheCapacity:  getEnvInt("ROUND_CACHE_CAPACITY", 256),
			CacheTTL:       time.Duration(getEnvInt("ROUND_CACHE_TTL_SEC", 120)) * time.Second,
		},
		Dispatch: DispatchConfig{
			MatchWorkers:    getEnvInt("MATCH_WORKERS", 1),
			DispatchWorkers: getEnvInt("DISPATCH_WORKERS", 1),
			HandlerTimeout:  time.Duration(getEnvInt("HANDLER_TIMEOUT_MS", 10000)) * time.Millisecond,
		},
		Handlers: HandlersConfig{
			StatsInterval: getEnvInt("STATS_LOG_INTERVAL", 20),
			Idempotent:    getEnvBool("HANDLER_IDEMPOTENT", true),
			FiltersFile:   getEnv("FILTERS_FILE", ""),
		},
		Server: ServerConfig{
			HealthPort:        getEnvInt("HEALTH_PORT", 8080),
			TrustProxyHeaders: getEnvBool("TRUST_PROXY_HEADERS", false),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Tracing: TracingConfig{
			Enabled:  getEnvBool("TRACING_ENABLED", false),
			Endpoint: getEnv("TRACING_ENDPOINT", "localhost:4317"),
			Insecure: getEnvBool("TRACING_INSECURE", true),
		},
		Alert: AlertConfig{
			WebhookURL:      getEnv("ALERT_WEBHOOK_URL", ""),
			SlackWebhookURL: getEnv("ALERT_SLACK_WEBHOOK_URL", ""),
			Cooldown:        time.Duration(getEnvInt("ALERT_COOLDOWN_SEC", 1800)) * time.Second,
		},
	}

	behaviour, err := model.ParseSyncBehaviour(getEnv("SYNC_BEHAVIOUR", string(model.SyncSkipNewest)))
	if err != nil {
		return nil, fmt.Errorf("SYNC_BEHAVIOUR: %w", err)
	}
	cfg.Subscription.SyncBehaviour = behaviour

	filters, err := LoadFilters(cfg.Handlers.FiltersFile)
	if err != nil {
		return nil, err
	}
	cfg.Filters = filters

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Algod.URL == "" {
		return fmt.Errorf("ALGOD_URL is required")
	}
	if c.Subscription.Name == "" {
		return fmt.Errorf("SUBSCRIPTION_NAME is required")
	}
	if c.Subscription.MaxRoundsToSync < 1 {
		return fmt.Errorf("MAX_ROUNDS_TO_SYNC must be positive")
	}
	if c.Subscription.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL_SECONDS must be positive")
	}
	if c.Subscription.ProgressLogInterval < 1 {
		return fmt.Errorf("PROGRESS_LOG_INTERVAL must be positive")
	}
	if c.Subscription.MaxConsecutiveFailures < 0 {
		return fmt.Errorf("MAX_CONSECUTIVE_FAILURES must not be negative")
	}
	if c.Subscription.BatchBackoffMax < c.Subscription.BatchBackoffInitial {
		return fmt.Errorf("BATCH_BACKOFF_MAX_MS must be >= BATCH_BACKOFF_INITIAL_MS")
	}
	if c.Fetch.Concurrency < 1 || c.Fetch.MaxAttempts < 1 {
		return fmt.Errorf("FETCH_CONCURRENCY and FETCH_RETRY_MAX_ATTEMPTS must be >= 1")
	}
	if c.Fetch.BackoffMax < c.Fetch.BackoffInitial {
		return fmt.Errorf("FETCH_BACKOFF_MAX_MS must be >= FETCH_BACKOFF_INITIAL_MS")
	}
	if c.Fetch.PageSize < 1 {
		return fmt.Errorf("INDEX_PAGE_SIZE must be >= 1")
	}
	if c.Dispatch.MatchWorkers < 1 || c.Dispatch.DispatchWorkers < 1 {
		return fmt.Errorf("MATCH_WORKERS and DISPATCH_WORKERS must be >= 1")
	}
	if c.Dispatch.HandlerTimeout <= 0 {
		return fmt.Errorf("HANDLER_TIMEOUT_MS must be positive")
	}
	if c.RPC.Timeout <= 0 {
		return fmt.Errorf("RPC_TIMEOUT_MS must be positive")
	}
	if c.RPC.RateLimitRPS < 0 || c.RPC.RateLimitBurst < 0 {
		return fmt.Errorf("RPC_RATE_LIMIT_RPS and RPC_RATE_LIMIT_BURST must not be negative")
	}
	if c.Server.HealthPort < 0 || c.Server.HealthPort > 65535 {
		return fmt.Errorf("HEALTH_PORT out of range: %d", c.Server.HealthPort)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Log.Format)
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("TRACING_ENDPOINT is required when TRACING_ENABLED is set")
	}
	if len(c.Filters) == 0 {
		return fmt.Errorf("at least one filter is required")
	}
	return nil
}

// FilterSet builds the ordered filter set; duplicate or invalid filters are
// configuration errors.
func (c *Config) FilterSet() (*model.FilterSet, error) {
	named := make([]model.NamedFilter, len(c.Filters))
	for i, fb := range c.Filters {
		named[i] = fb.NamedFilter
	}
	return model.NewFilterSet(named)
}

// LoadFilters parses the filters file at path, or the built-in defaults when
// path is empty.
func LoadFilters(path string) ([]FilterBinding, error) {
	raw := defaultFilters
	source := "default filters"
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read FILTERS_FILE: %w", err)
		}
		raw, source = b, path
	}
	return ParseFilters(raw, source)
}

func ParseFilters(raw []byte, source string) ([]FilterBinding, error) {
	var f filtersFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", source, err)
	}
	for i, fb := range f.Filters {
		if fb.Name == "" {
			return nil, fmt.Errorf("%s: filter #%d has no name", source, i+1)
		}
	}
	return f.Filters, nil
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvAllowEmpty distinguishes "unset" from "set to empty".
func getEnvAllowEmpty(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
