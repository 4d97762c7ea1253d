package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("HYPIXEL_API_KEY", "key-123")
	t.Setenv("PROFILE_UUID", "profile-abc")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, "key-123", cfg.APIKey)
	assert.Equal(t, "profile-abc", cfg.ProfileUUID)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, StoreJSON, cfg.Store)
	assert.Equal(t, 10*time.Minute, cfg.FetchInterval)
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	// GIVEN: A YAML file and an environment override
	path := filepath.Join(t.TempDir(), "coopbank.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_key: from-file
profile_uuid: profile-file
store: sqlite
db_path: /var/lib/coopbank/ledger.db
fetch_interval: 15m
log_level: debug
allowed_origins:
  - https://bank.example.com
`), 0o644))
	t.Setenv("HYPIXEL_API_KEY", "from-env")
	t.Setenv("COOPBANK_FETCH_INTERVAL", "20m")

	// WHEN: Loading
	cfg, err := Load(path)

	// THEN: The environment wins over the file, the file over defaults
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.APIKey)
	assert.Equal(t, "profile-file", cfg.ProfileUUID)
	assert.Equal(t, StoreSQLite, cfg.Store)
	assert.Equal(t, "/var/lib/coopbank/ledger.db", cfg.DBPath)
	assert.Equal(t, 20*time.Minute, cfg.FetchInterval)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
	assert.Equal(t, []string{"https://bank.example.com"}, cfg.AllowedOrigins)
}

func TestLoad_MissingFile(t *testing.T) {
	setRequired(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))

	assert.Error(t, err)
}

func TestLoad_BadInterval(t *testing.T) {
	setRequired(t)
	t.Setenv("COOPBANK_FETCH_INTERVAL", "soon")

	_, err := Load("")

	assert.ErrorContains(t, err, "COOPBANK_FETCH_INTERVAL")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.APIKey = "k"
		cfg.ProfileUUID = "p"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"memory store", func(c *Config) { c.Store = StoreMemory; c.DBPath = "" }, ""},
		{"missing key", func(c *Config) { c.APIKey = "" }, "HYPIXEL_API_KEY"},
		{"missing profile", func(c *Config) { c.ProfileUUID = "" }, "PROFILE_UUID"},
		{"unknown store", func(c *Config) { c.Store = "postgres" }, "unknown store"},
		{"sqlite without path", func(c *Config) { c.Store = StoreSQLite; c.DBPath = "" }, "db path"},
		{"redis without address", func(c *Config) { c.Store = StoreRedis; c.RedisAddr = "" }, "redis address"},
		{"interval too short", func(c *Config) { c.FetchInterval = 5 * time.Second }, "fetch interval"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()

			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}
