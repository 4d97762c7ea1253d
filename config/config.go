/*
Package config loads the tracker configuration.

SOURCES (later wins):
  1. Defaults
  2. Optional YAML file
  3. Environment variables

ENVIRONMENT:
  HYPIXEL_API_KEY          API key (required)
  PROFILE_UUID             co-op profile to track (required)
  COOPBANK_ADDR            HTTP listen address
  COOPBANK_STORE           json | sqlite | redis | memory
  COOPBANK_DB              data.json path or SQLite database path
  COOPBANK_REDIS_ADDR      host:port for the redis store
  COOPBANK_FETCH_INTERVAL  Go duration between passes, e.g. 10m
  COOPBANK_LOG_LEVEL       zerolog level name
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	StoreJSON   = "json"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type Config struct {
	APIKey      string `yaml:"api_key"`
	ProfileUUID string `yaml:"profile_uuid"`
	APIBaseURL  string `yaml:"api_base_url"`

	Addr          string        `yaml:"addr"`
	Store         string        `yaml:"store"`
	DBPath        string        `yaml:"db_path"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisKey      string        `yaml:"redis_key"`
	FetchInterval time.Duration `yaml:"fetch_interval"`
	LogLevel      string        `yaml:"log_level"`

	// AllowedOrigins feeds the CORS middleware.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

func Default() Config {
	return Config{
		APIBaseURL:     "https://api.hypixel.net",
		Addr:           ":8080",
		Store:          StoreJSON,
		DBPath:         "data.json",
		RedisAddr:      "localhost:6379",
		FetchInterval:  10 * time.Minute,
		LogLevel:       "info",
		AllowedOrigins: []string{"*"},
	}
}

// Load reads path (if non-empty) over the defaults, then applies the
// environment. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"HYPIXEL_API_KEY":     &c.APIKey,
		"PROFILE_UUID":        &c.ProfileUUID,
		"COOPBANK_ADDR":       &c.Addr,
		"COOPBANK_STORE":      &c.Store,
		"COOPBANK_DB":         &c.DBPath,
		"COOPBANK_REDIS_ADDR": &c.RedisAddr,
		"COOPBANK_LOG_LEVEL":  &c.LogLevel,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("COOPBANK_FETCH_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("COOPBANK_FETCH_INTERVAL: %w", err)
		}
		c.FetchInterval = d
	}
	return nil
}

// Validate checks required fields and value ranges.
func (c Config) Validate() error {
	var errs []error
	if c.APIKey == "" {
		errs = append(errs, errors.New("api key is required (HYPIXEL_API_KEY)"))
	}
	if c.ProfileUUID == "" {
		errs = append(errs, errors.New("profile uuid is required (PROFILE_UUID)"))
	}

	switch c.Store {
	case StoreJSON, StoreSQLite:
		if c.DBPath == "" {
			errs = append(errs, fmt.Errorf("db path is required for the %s store", c.Store))
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis address is required for the redis store"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}

	if c.FetchInterval < time.Minute {
		errs = append(errs, fmt.Errorf("fetch interval %s is below one minute", c.FetchInterval))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	return errors.Join(errs...)
}

// Level returns the parsed log level, defaulting to info.
func (c Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
