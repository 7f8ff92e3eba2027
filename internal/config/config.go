package config

import (
	"errors"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	DatabaseURL string `mapstructure:"database_url"`
	RedisURL    string `mapstructure:"redis_url"`
	Port        string `mapstructure:"port"`

	// Sessions are issued by the identity-provider frontend; the API only verifies them.
	SessionJWTSecret string `mapstructure:"session_jwt_secret"`
	// bcrypt hash of the shared key the identity provider presents on auth-event hooks
	AuthHookKeyHash string `mapstructure:"auth_hook_key_hash"`

	Dev     bool `mapstructure:"dev"`
	Tracing bool `mapstructure:"tracing"`

	Database DatabaseConfig `mapstructure:"database"`

	// How long a refreshed session role stays cached in Redis
	RoleCacheTTL time.Duration `mapstructure:"role_cache_ttl"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// App holds the global config instance
var App Config

// ErrMissingDatabaseURL is returned when no database connection string is configured
var ErrMissingDatabaseURL = errors.New("database_url is required")

// LoadConfig loads configuration from file and environment variables
func LoadConfig(path string) error {
	// Auto-load .env file if present (local development convenience)
	if err := godotenv.Load(); err == nil {
		log.Info().Msg("loaded .env file")
	}

	v := viper.New()

	v.SetDefault("port", "8080")
	v.SetDefault("role_cache_ttl", 24*time.Hour)
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.connect_timeout", 30*time.Second)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.SetConfigName("dev.config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("rbrls")

	// Standard keys (DATABASE_URL rather than RBRLS_DATABASE_URL) for Docker/deploy compatibility
	_ = v.BindEnv("database_url", "DATABASE_URL")
	_ = v.BindEnv("redis_url", "REDIS_URL")
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("session_jwt_secret", "SESSION_JWT_SECRET")
	_ = v.BindEnv("auth_hook_key_hash", "AUTH_HOOK_KEY_HASH")

	_ = v.BindEnv("dev", "RBRLS_DEV")
	_ = v.BindEnv("tracing", "RBRLS_TRACING")
	_ = v.BindEnv("role_cache_ttl", "RBRLS_ROLE_CACHE_TTL")
	_ = v.BindEnv("database.max_open_conns", "RBRLS_DB_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.max_idle_conns", "RBRLS_DB_MAX_IDLE_CONNS")
	_ = v.BindEnv("database.conn_max_lifetime", "RBRLS_DB_CONN_MAX_LIFETIME")
	_ = v.BindEnv("database.connect_timeout", "RBRLS_DB_CONNECT_TIMEOUT")

	v.AutomaticEnv()

	// 1. Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
		log.Info().Msg("no config file found, using defaults and environment variables")
	} else {
		log.Info().Str("file", v.ConfigFileUsed()).Msg("loaded config")
	}

	// 2. Unmarshal into struct
	if err := v.Unmarshal(&App); err != nil {
		return err
	}

	// 3. Validate
	if App.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}

	return nil
}
