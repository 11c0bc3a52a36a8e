package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	strutil "trialstore/pkg/platform/strings"
)

// Config is the whole process configuration.
type Config struct {
	Server    Server      `mapstructure:"server"`
	Store     Store       `mapstructure:"store"`
	Redis     RedisConfig `mapstructure:"redis"`
	Cache     Cache       `mapstructure:"cache"`
	Migration Migration   `mapstructure:"migration"`
	Schemas   Schemas     `mapstructure:"schemas"`
	Audit     Audit       `mapstructure:"audit"`
	Tracing   Tracing     `mapstructure:"tracing"`
	Log       Log         `mapstructure:"log"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr               string        `mapstructure:"addr"`
	APIPrefix          string        `mapstructure:"api_prefix"`
	OperatorSigningKey string        `mapstructure:"operator_signing_key"`
	OperatorIssuer     string        `mapstructure:"operator_issuer"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
}

// Store selects and configures the document store backend.
type Store struct {
	Backend     string `mapstructure:"backend"`
	Database    string `mapstructure:"database"`
	MongoURL    string `mapstructure:"mongo_url"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// RedisConfig configures the cache connection. URL wins over Host/Port.
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	DB           int           `mapstructure:"db"`
	Password     string        `mapstructure:"password"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Cache configures memoisation of analytics and conformance reports.
type Cache struct {
	TTL       time.Duration `mapstructure:"ttl"`
	Namespace string        `mapstructure:"namespace"`
}

// Migration bounds bulk collection migrations.
type Migration struct {
	Workers           int           `mapstructure:"workers"`
	Timeout           time.Duration `mapstructure:"timeout"`
	ConformanceSample int           `mapstructure:"conformance_sample"`
	JobQueueSize      int           `mapstructure:"job_queue_size"`
}

// Schemas configures the catalog bootstrapped at startup.
type Schemas struct {
	ManifestPath     string            `mapstructure:"manifest_path"`
	ActiveContext    string            `mapstructure:"active_context"`
	Rehydrate        bool              `mapstructure:"rehydrate"`
	IrregularPlurals map[string]string `mapstructure:"irregular_plurals"`
}

// Audit configures where schema audit events go.
type Audit struct {
	AsyncBuffer  int      `mapstructure:"async_buffer"`
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
}

// Tracing configures OpenTelemetry export.
type Tracing struct {
	Enabled      bool    `mapstructure:"enabled"`
	Exporter     string  `mapstructure:"exporter"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	ServiceName  string  `mapstructure:"service_name"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const envPrefix = "TRIALSTORE"

// legacyEnv keeps the deployment variable names of the first release working.
var legacyEnv = map[string]string{
	"store.mongo_url":   "MONGODB_URL",
	"store.database":    "DATABASE_NAME",
	"redis.host":        "REDIS_HOST",
	"redis.port":        "REDIS_PORT",
	"redis.db":          "REDIS_DB",
	"redis.password":    "REDIS_PASSWORD",
	"log.level":         "LOG_LEVEL",
	"server.api_prefix": "API_V1_PREFIX",
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.api_prefix", "/api")
	v.SetDefault("server.operator_issuer", "trialstore")
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.database", "clinical_trials")
	v.SetDefault("store.mongo_url", "")
	v.SetDefault("store.postgres_dsn", "")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("cache.namespace", "trialstore")

	v.SetDefault("migration.workers", 4)
	v.SetDefault("migration.timeout", 5*time.Minute)
	v.SetDefault("migration.conformance_sample", 100)
	v.SetDefault("migration.job_queue_size", 16)

	v.SetDefault("schemas.manifest_path", "")
	v.SetDefault("schemas.active_context", "enhanced")
	v.SetDefault("schemas.rehydrate", true)
	v.SetDefault("schemas.irregular_plurals", map[string]string{"companies": "company", "trials": "trial"})

	v.SetDefault("audit.async_buffer", 256)
	v.SetDefault("audit.kafka_brokers", []string{})
	v.SetDefault("audit.kafka_topic", "trialstore.schema-audit")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.service_name", "trialstore")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads defaults, an optional YAML file at path and the environment, in
// increasing precedence.
func Load(v *viper.Viper, path string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Audit.KafkaBrokers = strutil.SplitList(cfg.Audit.KafkaBrokers)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case "memory":
	case "mongo":
		if c.Store.MongoURL == "" {
			errs = append(errs, errors.New("store.mongo_url is required for the mongo backend"))
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgres_dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	if c.Migration.Workers < 1 {
		errs = append(errs, errors.New("migration.workers must be at least 1"))
	}
	if c.Migration.ConformanceSample < 1 {
		errs = append(errs, errors.New("migration.conformance_sample must be at least 1"))
	}
	if !strings.HasPrefix(c.Server.APIPrefix, "/") {
		errs = append(errs, errors.New("server.api_prefix must start with /"))
	}
	return errors.Join(errs...)
}

// Address returns the redis URL, building one from Host/Port when URL is
// unset. Empty means redis is not configured.
func (r RedisConfig) Address() string {
	if r.URL != "" {
		return r.URL
	}
	if r.Host == "" {
		return ""
	}
	u := url.URL{
		Scheme: "redis",
		Host:   net.JoinHostPort(r.Host, strconv.Itoa(r.Port)),
		Path:   "/" + strconv.Itoa(r.DB),
	}
	if r.Password != "" {
		u.User = url.UserPassword("", r.Password)
	}
	return u.String()
}
