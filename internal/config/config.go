package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"pnl-arena/internal/errs"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Database Database `mapstructure:"database"`
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Battle   Battle   `mapstructure:"battle"`
	Engine   Engine   `mapstructure:"engine"`
	Rates    Rates    `mapstructure:"rates"`
	Session  Session  `mapstructure:"session"`
	Redis    Redis    `mapstructure:"redis"`
}

// Database holds the configuration for the database.
type Database struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Server holds the configuration for the HTTP API.
type Server struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// Battle holds battle lifecycle settings.
type Battle struct {
	PollSpec    string        `mapstructure:"poll_spec"`
	MinDuration time.Duration `mapstructure:"min_duration"`
	MaxDuration time.Duration `mapstructure:"max_duration"`
}

// Engine holds query defaults.
type Engine struct {
	StoreTimeout time.Duration `mapstructure:"store_timeout"`
	DefaultLimit int           `mapstructure:"default_limit"`
}

// Rates holds the configuration for the SOL/USD price feed.
type Rates struct {
	BaseURL        string        `mapstructure:"base_url"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// Session holds the battle setup session store settings.
type Session struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// Redis holds the redis connection used by the redis session backend.
type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	SetDefaults(v)

	// A missing file leaves defaults and environment in charge.
	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return
	}
	err = config.Validate()
	return
}

// Validate rejects settings the services cannot start with.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: unsupported database driver %q", errs.ErrInvalidConfiguration, c.Database.Driver)
	}
	switch c.Session.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("%w: unsupported session backend %q", errs.ErrInvalidConfiguration, c.Session.Backend)
	}
	if c.Battle.MinDuration <= 0 || c.Battle.MaxDuration < c.Battle.MinDuration {
		return fmt.Errorf("%w: battle duration bounds [%s, %s]",
			errs.ErrInvalidConfiguration, c.Battle.MinDuration, c.Battle.MaxDuration)
	}
	if c.Engine.DefaultLimit < 1 || c.Engine.DefaultLimit > 100 {
		return fmt.Errorf("%w: engine.default_limit must be 1-100", errs.ErrInvalidConfiguration)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("%w: unsupported server mode %q", errs.ErrInvalidConfiguration, c.Server.Mode)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("%w: server.port must be positive", errs.ErrInvalidConfiguration)
	}
	return nil
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "arena.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "1h")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	v.SetDefault("battle.poll_spec", "@every 30s")
	v.SetDefault("battle.min_duration", "5m")
	v.SetDefault("battle.max_duration", "672h")

	v.SetDefault("engine.store_timeout", "5s")
	v.SetDefault("engine.default_limit", 10)

	v.SetDefault("rates.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("rates.rate_limit", 0.5) // requests per second
	v.SetDefault("rates.rate_limit_burst", 2)
	v.SetDefault("rates.cache_ttl", "5m")
	v.SetDefault("rates.timeout", "10s")

	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.ttl", "15m")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
}
