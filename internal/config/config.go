// Package config loads rssnews configuration from an optional config file,
// .env files and RSSNEWS_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/rssnews/internal/api"
	"github.com/jonesrussell/north-cloud/rssnews/internal/coordination"
	"github.com/jonesrussell/north-cloud/rssnews/internal/engine"
	"github.com/jonesrussell/north-cloud/rssnews/internal/fetcher"
	"github.com/jonesrussell/north-cloud/rssnews/internal/logger"
	"github.com/jonesrussell/north-cloud/rssnews/internal/queue"
	"github.com/jonesrussell/north-cloud/rssnews/internal/storage"
	"github.com/jonesrussell/north-cloud/rssnews/internal/worker"
)

// EnvPrefix prefixes every environment variable, e.g. RSSNEWS_REDIS_ADDR.
const EnvPrefix = "RSSNEWS"

// Lock implementations.
const (
	LockLease    = "lease"
	LockRedlock  = "redlock"
	defaultGuard = 5 * time.Second
)

var (
	// ErrConfigInvalid is returned when validation fails.
	ErrConfigInvalid = errors.New("invalid configuration")
)

// Config is the full application configuration.
type Config struct {
	Logger        logger.Config               `mapstructure:"logger"`
	Redis         RedisConfig                 `mapstructure:"redis"`
	Storage       StorageConfig               `mapstructure:"storage"`
	Mongo         storage.MongoConfig         `mapstructure:"mongo"`
	Postgres      storage.PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch storage.ElasticsearchConfig `mapstructure:"elasticsearch"`
	Minio         storage.MinioConfig         `mapstructure:"minio"`
	Queue         queue.Config                `mapstructure:"queue"`
	Engine        engine.Config               `mapstructure:"engine"`
	Poller        PollerConfig                `mapstructure:"poller"`
	Fetcher       FetcherConfig               `mapstructure:"fetcher"`
	Server        api.Config                  `mapstructure:"server"`
}

// RedisConfig configures the shared Redis instance and the lock.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// Lock selects the lock implementation: lease or redlock.
	Lock string `mapstructure:"lock"`
	// LockAddrs lists the independent instances used by redlock.
	LockAddrs []string                `mapstructure:"lock_addrs"`
	LockWait  time.Duration           `mapstructure:"lock_wait"`
	LockLease coordination.LockConfig `mapstructure:"lock_lease"`
	// DedupPrefix namespaces the dedup records.
	DedupPrefix string `mapstructure:"dedup_prefix"`
}

// StorageConfig selects the persistence backends.
type StorageConfig struct {
	Articles string `mapstructure:"articles"`
	Registry string `mapstructure:"registry"`
}

// PollerConfig configures the feed poller.
type PollerConfig struct {
	// Mode is each or all.
	Mode     string `mapstructure:"mode"`
	PoolSize int    `mapstructure:"pool_size"`
	// Interval is slept between cycles; zero polls back to back.
	Interval      time.Duration `mapstructure:"interval"`
	PauseInterval time.Duration `mapstructure:"pause_interval"`
	// GatewayPrefixes and TailKeys override the canonicalizer defaults.
	GatewayPrefixes []string `mapstructure:"gateway_prefixes"`
	TailKeys        []string `mapstructure:"tail_keys"`
}

// FetcherConfig configures the article fetcher.
type FetcherConfig struct {
	fetcher.Config `mapstructure:",squash"`
	// UserAgent is sent with article requests; feeds use engine.user_agent.
	UserAgent     string        `mapstructure:"user_agent"`
	PauseInterval time.Duration `mapstructure:"pause_interval"`
}

// Load reads configuration into a new Config. cfgFile may be empty, in which
// case config.yaml is looked up in the working directory and ./config.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", logger.DefaultLevel)
	v.SetDefault("logger.development", false)
	v.SetDefault("logger.output_paths", []string{"stdout"})

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock", LockLease)
	v.SetDefault("redis.lock_addrs", []string{})
	v.SetDefault("redis.lock_wait", defaultGuard)
	v.SetDefault("redis.lock_lease.ttl", coordination.DefaultLockTTL)
	v.SetDefault("redis.lock_lease.retry_delay", coordination.DefaultRetryDelay)
	v.SetDefault("redis.dedup_prefix", "dedup:")

	v.SetDefault("storage.articles", storage.BackendMongo)
	v.SetDefault("storage.registry", storage.BackendMongo)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "rssnews")
	v.SetDefault("mongo.article_collection", "news")
	v.SetDefault("mongo.feed_collection", "feed")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "rssnews")
	v.SetDefault("postgres.sslmode", "disable")

	v.SetDefault("elasticsearch.addresses", []string{"http://127.0.0.1:9200"})
	v.SetDefault("elasticsearch.username", "")
	v.SetDefault("elasticsearch.password", "")
	v.SetDefault("elasticsearch.index", "rssnews-articles")

	v.SetDefault("minio.enabled", false)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", storage.DefaultArchiveBucket)
	v.SetDefault("minio.region", "")

	v.SetDefault("queue.pending_key", queue.DefaultPendingKey)
	v.SetDefault("queue.handoff_key", queue.DefaultHandoffKey)
	v.SetDefault("queue.channel_prefix", queue.DefaultChannelPrefix)
	v.SetDefault("queue.pop_timeout", queue.DefaultPopTimeout)

	v.SetDefault("engine.user_agent", "rssnews/1.0")
	v.SetDefault("engine.request_timeout", 30*time.Second)
	v.SetDefault("engine.max_body_size", 10*1024*1024)
	v.SetDefault("engine.respect_robots_txt", false)

	v.SetDefault("poller.mode", worker.ModeAll)
	v.SetDefault("poller.pool_size", worker.DefaultPoolSize)
	v.SetDefault("poller.interval", time.Minute)
	v.SetDefault("poller.pause_interval", time.Second)

	v.SetDefault("fetcher.max_hops", 5)
	v.SetDefault("fetcher.max_retries", 3)
	v.SetDefault("fetcher.error_backoff", time.Second)
	v.SetDefault("fetcher.user_agent", DefaultArticleUserAgent)
	v.SetDefault("fetcher.pause_interval", time.Second)

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", api.DefaultPort)
	v.SetDefault("server.debug", false)
}

// DefaultArticleUserAgent is a browser user agent; some publishers serve
// stripped pages to unknown clients.
const DefaultArticleUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// SetDefaults fills values a config file may have zeroed.
func (c *Config) SetDefaults() {
	c.Logger.SetDefaults()
	c.Server.SetDefaults()
	c.Queue = c.Queue.WithDefaults()
	c.Engine = c.Engine.WithDefaults()
	c.Mongo = c.Mongo.WithDefaults()
	c.Fetcher.Config = c.Fetcher.Config.WithDefaults()
	c.Redis.LockLease = c.Redis.LockLease.WithDefaults()

	if c.Redis.Lock == "" {
		c.Redis.Lock = LockLease
	}
	if c.Redis.LockWait <= 0 {
		c.Redis.LockWait = defaultGuard
	}
	if c.Storage.Articles == "" {
		c.Storage.Articles = storage.BackendMongo
	}
	if c.Storage.Registry == "" {
		c.Storage.Registry = storage.BackendMongo
	}
	if c.Poller.Mode == "" {
		c.Poller.Mode = worker.ModeAll
	}
	if c.Poller.PoolSize <= 0 {
		c.Poller.PoolSize = worker.DefaultPoolSize
	}
	if c.Fetcher.UserAgent == "" {
		c.Fetcher.UserAgent = DefaultArticleUserAgent
	}
}

// Validate checks backend names and required settings.
func (c *Config) Validate() error {
	var errs []error

	if c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required"))
	}

	switch c.Redis.Lock {
	case LockLease:
	case LockRedlock:
		if len(c.Redis.LockAddrs) == 0 {
			errs = append(errs, errors.New("redis.lock_addrs is required for redlock"))
		}
	default:
		errs = append(errs, fmt.Errorf("redis.lock must be %s or %s, got %q", LockLease, LockRedlock, c.Redis.Lock))
	}

	switch c.Storage.Articles {
	case storage.BackendMongo, storage.BackendElasticsearch:
	default:
		errs = append(errs, fmt.Errorf("storage.articles must be %s or %s, got %q",
			storage.BackendMongo, storage.BackendElasticsearch, c.Storage.Articles))
	}

	switch c.Storage.Registry {
	case storage.BackendMongo, storage.BackendPostgres:
	default:
		errs = append(errs, fmt.Errorf("storage.registry must be %s or %s, got %q",
			storage.BackendMongo, storage.BackendPostgres, c.Storage.Registry))
	}

	if c.Poller.Mode != worker.ModeEach && c.Poller.Mode != worker.ModeAll {
		errs = append(errs, fmt.Errorf("poller.mode must be %s or %s, got %q",
			worker.ModeEach, worker.ModeAll, c.Poller.Mode))
	}

	if c.Poller.Interval < 0 {
		errs = append(errs, errors.New("poller.interval must not be negative"))
	}

	if c.Minio.Enabled && c.Minio.Endpoint == "" {
		errs = append(errs, errors.New("minio.endpoint is required when minio is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, errors.Join(errs...))
	}

	return nil
}
