package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "/api", cfg.Server.APIPrefix)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "clinical_trials", cfg.Store.Database)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 100, cfg.Migration.ConformanceSample)
	assert.Equal(t, "enhanced", cfg.Schemas.ActiveContext)
	assert.Equal(t, map[string]string{"companies": "company", "trials": "trial"}, cfg.Schemas.IrregularPlurals)
	assert.Empty(t, cfg.Redis.Address())
}

func TestLoadLegacyEnvironment(t *testing.T) {
	t.Setenv("MONGODB_URL", "mongodb://localhost:27017")
	t.Setenv("DATABASE_NAME", "trials_test")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("TRIALSTORE_STORE_BACKEND", "mongo")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "mongodb://localhost:27017", cfg.Store.MongoURL)
	assert.Equal(t, "trials_test", cfg.Store.Database)
	assert.Equal(t, "redis://:secret@cache:6379/0", cfg.Redis.Address())
}

func TestLoadPrefixedEnvironmentWins(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("TRIALSTORE_LOG_LEVEL", "debug")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadKafkaBrokersFromEnvironment(t *testing.T) {
	t.Setenv("TRIALSTORE_AUDIT_KAFKA_BROKERS", "k1:9092, k2:9092,k1:9092")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Audit.KafkaBrokers)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trialstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  backend: postgres
  postgres_dsn: postgres://localhost/trials
migration:
  workers: 8
schemas:
  irregular_plurals:
    analyses: analysis_record
`), 0o600))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, 8, cfg.Migration.Workers)
	assert.Equal(t, "analysis_record", cfg.Schemas.IrregularPlurals["analyses"])
}

func TestValidate(t *testing.T) {
	t.Setenv("TRIALSTORE_STORE_BACKEND", "postgres")
	_, err := Load(viper.New(), "")
	assert.ErrorContains(t, err, "postgres_dsn")

	t.Setenv("TRIALSTORE_STORE_BACKEND", "cassandra")
	_, err = Load(viper.New(), "")
	assert.ErrorContains(t, err, "unknown store backend")
}
