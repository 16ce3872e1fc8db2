// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, RPC, Redis, Kafka, Postgres, Model, Corpus, etc.).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Embedder and classifier implementation names accepted in Model config.
const (
	EmbedderHashing    = "hashing"
	EmbedderRemote     = "remote"
	ClassifierMLP      = "mlp"
	ClassifierCentroid = "centroid"
	CorpusFile         = "file"
	CorpusPostgres     = "postgres"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	RPC       RPCConfig       `yaml:"rpc"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	CORS      CORSConfig      `yaml:"cors"`
	Redis     RedisConfig     `yaml:"redis"`
	Cache     CacheConfig     `yaml:"cache"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Model     ModelConfig     `yaml:"model"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Topics    []string        `yaml:"topics"`
	Startup   StartupConfig   `yaml:"startup"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	MaxQueryBytes   int           `yaml:"maxQueryBytes"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	// RateLimit is requests per minute per client address; 0 disables it.
	RateLimit int `yaml:"rateLimit"`
}

// RPCConfig controls the JSON-over-TCP digest endpoint.
type RPCConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// CORSConfig lists the origins allowed to call the chat API from a browser.
type CORSConfig struct {
	AllowOrigins []string `yaml:"allowOrigins"`
	MaxAge       int      `yaml:"maxAge"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// CacheConfig controls the response cache. When Redis is disabled or
// unreachable the in-process store is used.
type CacheConfig struct {
	Enabled         bool          `yaml:"enabled"`
	LocalTTL        time.Duration `yaml:"localTTL"`
	CleanupInterval time.Duration `yaml:"cleanupInterval"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DigestEvents string `yaml:"digestEvents"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// AnalyticsConfig controls digest event collection. A zero SnapshotInterval
// disables persisting aggregated stats to PostgreSQL.
type AnalyticsConfig struct {
	Enabled          bool          `yaml:"enabled"`
	BatchSize        int           `yaml:"batchSize"`
	FlushInterval    time.Duration `yaml:"flushInterval"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// ModelConfig selects the embedding function and topic classifier.
type ModelConfig struct {
	Dimension  int              `yaml:"dimension"`
	Embedder   EmbedderConfig   `yaml:"embedder"`
	Classifier ClassifierConfig `yaml:"classifier"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string               `yaml:"type"`
	Remote RemoteEmbedderConfig `yaml:"remote"`
}

// RemoteEmbedderConfig configures an OpenAI-compatible embeddings endpoint.
type RemoteEmbedderConfig struct {
	BaseURL          string        `yaml:"baseUrl"`
	APIKeyEnv        string        `yaml:"apiKeyEnv"`
	Model            string        `yaml:"model"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold int           `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
}

// ClassifierConfig selects the topic classifier implementation.
type ClassifierConfig struct {
	Type        string  `yaml:"type"`
	WeightsPath string  `yaml:"weightsPath"`
	Temperature float64 `yaml:"temperature"`
}

// CorpusConfig tells the service where the clustered document artifact lives.
type CorpusConfig struct {
	Source string `yaml:"source"`
	Path   string `yaml:"path"`
	Table  string `yaml:"table"`
}

// StartupConfig bounds the time spent loading artifacts at boot.
type StartupConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration with environment overrides
// applied. It is what Load("") returns minus validation.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// Validate checks cross-field constraints that YAML decoding cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Model.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("model.dimension must be positive, got %d", c.Model.Dimension))
	}
	switch c.Model.Embedder.Type {
	case EmbedderHashing:
	case EmbedderRemote:
		if c.Model.Embedder.Remote.BaseURL == "" {
			errs = append(errs, errors.New("model.embedder.remote.baseUrl is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown embedder type %q", c.Model.Embedder.Type))
	}
	switch c.Model.Classifier.Type {
	case ClassifierCentroid:
	case ClassifierMLP:
		if c.Model.Classifier.WeightsPath == "" {
			errs = append(errs, errors.New("model.classifier.weightsPath is required for mlp"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown classifier type %q", c.Model.Classifier.Type))
	}
	switch c.Corpus.Source {
	case CorpusFile:
		if c.Corpus.Path == "" {
			errs = append(errs, errors.New("corpus.path is required for file source"))
		}
	case CorpusPostgres:
		if c.Corpus.Table == "" {
			errs = append(errs, errors.New("corpus.table is required for postgres source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown corpus source %q", c.Corpus.Source))
	}
	if len(c.Topics) == 0 {
		errs = append(errs, errors.New("topics must not be empty"))
	}
	return errors.Join(errs...)
}

// defaultConfig returns a Config with defaults suitable for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxQueryBytes:   4096,
			RequestTimeout:  10 * time.Second,
			RateLimit:       120,
		},
		RPC: RPCConfig{
			Enabled: false,
			Addr:    ":9000",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"http://localhost:5173"},
			MaxAge:       86400,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
		},
		Cache: CacheConfig{
			Enabled:         true,
			LocalTTL:        5 * time.Minute,
			CleanupInterval: 10 * time.Minute,
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "chameleon-analytics",
			Topics: KafkaTopics{
				DigestEvents: "digest-events",
			},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "chameleon",
			User:            "chameleon",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Analytics: AnalyticsConfig{
			Enabled:       true,
			BatchSize:     100,
			FlushInterval: 2 * time.Second,
		},
		Model: ModelConfig{
			Dimension: 384,
			Embedder: EmbedderConfig{
				Type: EmbedderHashing,
				Remote: RemoteEmbedderConfig{
					APIKeyEnv:        "EMBEDDINGS_API_KEY",
					Model:            "all-MiniLM-L6-v2",
					Timeout:          10 * time.Second,
					FailureThreshold: 5,
					ResetTimeout:     30 * time.Second,
				},
			},
			Classifier: ClassifierConfig{
				Type:        ClassifierCentroid,
				Temperature: 10,
			},
		},
		Corpus: CorpusConfig{
			Source: CorpusFile,
			Path:   "data/corpus.yaml",
			Table:  "documents",
		},
		Topics: []string{"Sports", "Finance", "Tech/Science"},
		Startup: StartupConfig{
			Timeout: 30 * time.Second,
		},
	}
}

// applyEnvOverrides reads CH_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CH_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CH_SERVER_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit = n
		}
	}
	if v := os.Getenv("CH_RPC_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RPC.Enabled = b
		}
	}
	if v := os.Getenv("CH_RPC_ADDR"); v != "" {
		cfg.RPC.Addr = v
	}
	if v := os.Getenv("CH_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CH_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("CH_CORS_ALLOW_ORIGINS"); v != "" {
		cfg.CORS.AllowOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("CH_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("CH_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("CH_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("CH_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("CH_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CH_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("CH_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("CH_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("CH_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("CH_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("CH_EMBEDDER_TYPE"); v != "" {
		cfg.Model.Embedder.Type = v
	}
	if v := os.Getenv("CH_EMBEDDER_URL"); v != "" {
		cfg.Model.Embedder.Remote.BaseURL = v
	}
	if v := os.Getenv("CH_CLASSIFIER_TYPE"); v != "" {
		cfg.Model.Classifier.Type = v
	}
	if v := os.Getenv("CH_CLASSIFIER_WEIGHTS"); v != "" {
		cfg.Model.Classifier.WeightsPath = v
	}
	if v := os.Getenv("CH_CORPUS_SOURCE"); v != "" {
		cfg.Corpus.Source = v
	}
	if v := os.Getenv("CH_CORPUS_PATH"); v != "" {
		cfg.Corpus.Path = v
	}
	if v := os.Getenv("CH_ANALYTICS_SNAPSHOT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Analytics.SnapshotInterval = d
		}
	}
}
