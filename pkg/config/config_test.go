package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 384, cfg.Model.Dimension)
	assert.Equal(t, EmbedderHashing, cfg.Model.Embedder.Type)
	assert.Equal(t, ClassifierCentroid, cfg.Model.Classifier.Type)
	assert.Equal(t, []string{"Sports", "Finance", "Tech/Science"}, cfg.Topics)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORS.AllowOrigins)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlDoc := `
server:
  port: 8123
  writeTimeout: 5s
model:
  classifier:
    type: mlp
    weightsPath: models/classifier.json
topics: [Weather, Politics]
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8123, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout, "unset fields keep defaults")
	assert.Equal(t, ClassifierMLP, cfg.Model.Classifier.Type)
	assert.Equal(t, []string{"Weather", "Politics"}, cfg.Topics)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CH_SERVER_PORT", "9999")
	t.Setenv("CH_REDIS_ENABLED", "true")
	t.Setenv("CH_KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("CH_CORS_ALLOW_ORIGINS", "http://a.test,http://b.test")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowOrigins)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Model.Embedder.Type = "bert"
	cfg.Model.Classifier.Type = ClassifierMLP
	cfg.Corpus.Source = "s3"
	cfg.Topics = nil

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown embedder type "bert"`)
	assert.Contains(t, err.Error(), "weightsPath is required")
	assert.Contains(t, err.Error(), `unknown corpus source "s3"`)
	assert.Contains(t, err.Error(), "topics must not be empty")
}

func TestValidateRemoteEmbedderNeedsURL(t *testing.T) {
	cfg := defaultConfig()
	cfg.Model.Embedder.Type = EmbedderRemote
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "baseUrl is required")
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=d sslmode=disable", p.DSN())
}

func TestAnalyticsAndRateLimitSettings(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Analytics.Enabled)
	assert.Equal(t, 100, cfg.Analytics.BatchSize)
	assert.Zero(t, cfg.Analytics.SnapshotInterval)
	assert.Equal(t, 120, cfg.Server.RateLimit)

	t.Setenv("CH_ANALYTICS_SNAPSHOT_INTERVAL", "1m")
	t.Setenv("CH_SERVER_RATE_LIMIT", "0")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.Analytics.SnapshotInterval)
	assert.Zero(t, cfg.Server.RateLimit)
}

func TestDevelopmentConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "development.yaml"))
	require.NoError(t, err)
	assert.True(t, cfg.RPC.Enabled)
	assert.Equal(t, "digest-events", cfg.Kafka.Topics.DigestEvents)
	assert.Equal(t, 10*time.Second, cfg.Server.RequestTimeout)
}
