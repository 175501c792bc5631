package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"
)

type Config struct {
	DBDriver      string `env:"DB_DRIVER" envDefault:"mysql"`
	DBHost        string `env:"DB_HOST" envDefault:"localhost"`
	DBPort        string `env:"DB_PORT" envDefault:"3306"`
	DBUser        string `env:"DB_USER" envDefault:"planner"`
	DBPassword    string `env:"DB_PASSWORD" envDefault:"plannerpassword"`
	DBName        string `env:"DB_NAME" envDefault:"day_planner"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"planner.db"`
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     string `env:"REDIS_PORT" envDefault:"6379"`
	SessionSecret string `env:"SESSION_SECRET" envDefault:"default-secret-key-change-me"`
	GinMode       string `env:"GIN_MODE" envDefault:"debug"`
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	ListenAddr    string `env:"LISTEN_ADDR" envDefault:":8080"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`

	SweepInterval       time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	RemoteRetryAttempts uint          `env:"REMOTE_RETRY_ATTEMPTS" envDefault:"3"`
	RemoteRetryDelay    time.Duration `env:"REMOTE_RETRY_DELAY" envDefault:"200ms"`
	TimeZone            string        `env:"TZ_NAME" envDefault:"Local"`
}

// Load reads the configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	switch cfg.DBDriver {
	case "mysql", "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", cfg.SweepInterval)
	}
	if cfg.RemoteRetryAttempts < 1 {
		cfg.RemoteRetryAttempts = 1
	}
	return cfg, nil
}

// Location resolves the configured time zone used to decide "today"
func (c *Config) Location() (*time.Location, error) {
	if c.TimeZone == "" || c.TimeZone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid TZ_NAME %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// RedisAddr returns host:port of the session store
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

// IsProduction reports whether gin runs in release mode
func (c *Config) IsProduction() bool {
	return c.GinMode == "release"
}
