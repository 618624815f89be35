package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	LogLevel         string
	Port             string
	StoreDriver      string
	DatabaseURL      string
	RedisURL         string
	JWTSecret        string
	GatewayServerKey string
	LedgerTimezone   string
	CORSOrigins      []string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	NotifyQueueSize  int
	NotifyLocale     string
	GeoIPDBPath      string
	Reconcile        ReconcileConfig
	Sweep            SweepConfig
}

// ReconcileConfig tunes the transition engine.
type ReconcileConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

// SweepConfig tunes the expiration sweeper.
type SweepConfig struct {
	Interval    time.Duration `yaml:"interval"`
	PendingTTL  time.Duration `yaml:"pending_ttl"`
	BatchSize   int           `yaml:"batch_size"`
	Concurrency int           `yaml:"concurrency"`
	LeaseKey    string        `yaml:"lease_key"`
}

// fileOverlay is the optional CONFIG_FILE document. Only tuning knobs live
// there; secrets stay in the environment.
type fileOverlay struct {
	Reconcile *ReconcileConfig `yaml:"reconcile"`
	Sweep     *SweepConfig     `yaml:"sweep"`
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
		Port:             getEnv("PORT", "8080"),
		StoreDriver:      strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		GatewayServerKey: os.Getenv("GATEWAY_SERVER_KEY"),
		LedgerTimezone:   getEnv("LEDGER_TIMEZONE", "Asia/Jakarta"),
		CORSOrigins:      splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		NotifyQueueSize:  getEnvInt("NOTIFY_QUEUE_SIZE", 256),
		NotifyLocale:     getEnv("NOTIFY_LOCALE", "id"),
		GeoIPDBPath:      os.Getenv("GEOIP_DB_PATH"),
		Reconcile: ReconcileConfig{
			MaxAttempts: getEnvInt("RECONCILE_MAX_ATTEMPTS", 3),
			Backoff:     time.Millisecond * time.Duration(getEnvInt("RECONCILE_BACKOFF_MS", 50)),
		},
		Sweep: SweepConfig{
			Interval:    time.Second * time.Duration(getEnvInt("SWEEP_INTERVAL_SECONDS", 60)),
			PendingTTL:  time.Minute * time.Duration(getEnvInt("PENDING_TTL_MINUTES", 60)),
			BatchSize:   getEnvInt("SWEEP_BATCH_SIZE", 200),
			Concurrency: getEnvInt("SWEEP_CONCURRENCY", 8),
			LeaseKey:    getEnv("SWEEP_LEASE_KEY", "donasi:sweep:lease"),
		},
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if cfg.StoreDriver != StoreDriverPostgres && cfg.StoreDriver != StoreDriverMemory {
		return nil, fmt.Errorf("STORE_DRIVER must be %q or %q", StoreDriverPostgres, StoreDriverMemory)
	}
	if cfg.StoreDriver == StoreDriverPostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.GatewayServerKey == "" {
		return nil, fmt.Errorf("GATEWAY_SERVER_KEY is required")
	}
	if _, err := time.LoadLocation(cfg.LedgerTimezone); err != nil {
		return nil, fmt.Errorf("LEDGER_TIMEZONE: %w", err)
	}
	if cfg.Sweep.Interval <= 0 || cfg.Sweep.PendingTTL <= 0 {
		return nil, fmt.Errorf("sweep interval and pending ttl must be positive")
	}

	return cfg, nil
}

// Location returns the time zone ledger periods are bucketed in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.LedgerTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var overlay fileOverlay
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if r := overlay.Reconcile; r != nil {
		if r.MaxAttempts > 0 {
			c.Reconcile.MaxAttempts = r.MaxAttempts
		}
		if r.Backoff > 0 {
			c.Reconcile.Backoff = r.Backoff
		}
	}
	if s := overlay.Sweep; s != nil {
		if s.Interval > 0 {
			c.Sweep.Interval = s.Interval
		}
		if s.PendingTTL > 0 {
			c.Sweep.PendingTTL = s.PendingTTL
		}
		if s.BatchSize > 0 {
			c.Sweep.BatchSize = s.BatchSize
		}
		if s.Concurrency > 0 {
			c.Sweep.Concurrency = s.Concurrency
		}
		if s.LeaseKey != "" {
			c.Sweep.LeaseKey = s.LeaseKey
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
