package conf

import (
	"errors"
	"fmt"
	"time"

	"github.com/adscope/adscope-backend/internal/pkg/database"
	"github.com/adscope/adscope-backend/internal/pkg/logger"
	"github.com/spf13/viper"
)

// Config is the root application configuration
type Config struct {
	Server   ServerConfig     `mapstructure:"server"`
	Database *database.Config `mapstructure:"database"`
	Redis    RedisConfig      `mapstructure:"redis"`
	Cache    CacheConfig      `mapstructure:"cache"`
	Log      *logger.Config   `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig holds the search cache policy
type CacheConfig struct {
	// HistoryLimit bounds the search history index.
	HistoryLimit int `mapstructure:"history_limit"`
	// Retention is how long raw result payloads are kept.
	Retention time.Duration `mapstructure:"retention"`
	// SessionPrefix is the Redis key prefix swept during a full reset.
	SessionPrefix string `mapstructure:"session_prefix"`
	// SweepWorkers sizes the background sweep worker pool.
	SweepWorkers int `mapstructure:"sweep_workers"`
}

// LoadConfig reads the configuration file at path, applying defaults for
// anything the file omits
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("cache.history_limit", 20)
	v.SetDefault("cache.retention", "168h")
	v.SetDefault("cache.session_prefix", "searchcache:session:")
	v.SetDefault("cache.sweep_workers", 2)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	config := &Config{
		Database: database.DefaultConfig(),
		Log:      logger.DefaultConfig(),
	}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server port must be between 1 and 65535")
	}
	if c.Cache.HistoryLimit <= 0 {
		return errors.New("cache history_limit must be greater than 0")
	}
	if c.Cache.Retention <= 0 {
		return errors.New("cache retention must be greater than 0")
	}
	if c.Cache.SessionPrefix == "" {
		return errors.New("cache session_prefix is required")
	}

	if c.Database != nil {
		if err := c.Database.Validate(); err != nil {
			return err
		}
	}
	if c.Log != nil {
		if err := c.Log.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// RedisAddr returns the host:port address of the Redis server
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
