package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/rssnews/internal/config"
	"github.com/jonesrussell/north-cloud/rssnews/internal/storage"
	"github.com/jonesrussell/north-cloud/rssnews/internal/worker"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(viper.New(), writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, config.LockLease, cfg.Redis.Lock)
	assert.Equal(t, storage.BackendMongo, cfg.Storage.Articles)
	assert.Equal(t, storage.BackendMongo, cfg.Storage.Registry)
	assert.Equal(t, "rssnews", cfg.Mongo.Database)
	assert.Equal(t, "news", cfg.Mongo.ArticleCollection)
	assert.Equal(t, worker.ModeAll, cfg.Poller.Mode)
	assert.Equal(t, time.Minute, cfg.Poller.Interval)
	assert.Equal(t, 5, cfg.Fetcher.MaxHops)
	assert.Equal(t, 3, cfg.Fetcher.MaxRetries)
	assert.Equal(t, config.DefaultArticleUserAgent, cfg.Fetcher.UserAgent)
	assert.Equal(t, "pending", cfg.Queue.PendingKey)
	assert.Equal(t, 50*time.Second, cfg.Queue.PopTimeout)
	assert.False(t, cfg.Server.Enabled)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
poller:
  mode: each
  interval: 0s
fetcher:
  max_hops: 2
storage:
  registry: postgres
`)
	t.Setenv("RSSNEWS_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("RSSNEWS_FETCHER_MAX_RETRIES", "7")

	cfg, err := config.Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, worker.ModeEach, cfg.Poller.Mode)
	assert.Zero(t, cfg.Poller.Interval)
	assert.Equal(t, 2, cfg.Fetcher.MaxHops)
	assert.Equal(t, 7, cfg.Fetcher.MaxRetries)
	assert.Equal(t, storage.BackendPostgres, cfg.Storage.Registry)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *config.Config {
		cfg := &config.Config{}
		cfg.Redis.Addr = "localhost:6379"
		cfg.SetDefaults()
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown article backend", func(c *config.Config) { c.Storage.Articles = "postgres" }},
		{"unknown registry backend", func(c *config.Config) { c.Storage.Registry = "elasticsearch" }},
		{"unknown poller mode", func(c *config.Config) { c.Poller.Mode = "some" }},
		{"redlock without instances", func(c *config.Config) { c.Redis.Lock = config.LockRedlock }},
		{"unknown lock", func(c *config.Config) { c.Redis.Lock = "zookeeper" }},
		{"negative interval", func(c *config.Config) { c.Poller.Interval = -time.Second }},
		{"missing redis", func(c *config.Config) { c.Redis.Addr = "" }},
	}

	require.NoError(t, valid().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tt.mutate(cfg)
			require.ErrorIs(t, cfg.Validate(), config.ErrConfigInvalid)
		})
	}
}
