// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for the
// coordinator, the shard nodes, the analytics pipeline and their shared
// infrastructure (Postgres, Kafka, Redis).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Facet       FacetConfig       `yaml:"facet"`
	Schema      SchemaConfig      `yaml:"schema"`
	Shard       ShardNodeConfig   `yaml:"shard"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Redis       RedisConfig       `yaml:"redis"`
	Logging     LoggingConfig     `yaml:"logging"`
	Tracing     TracingConfig     `yaml:"tracing"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// CoordinatorConfig controls how the searcher fans facet requests out to
// shard nodes.
type CoordinatorConfig struct {
	Shards              []ShardEndpoint `yaml:"shards"`
	Tolerant            bool            `yaml:"tolerant"`
	RequestTimeout      time.Duration   `yaml:"requestTimeout"`
	PerShardTimeout     time.Duration   `yaml:"perShardTimeout"`
	MaxRefinementRounds int             `yaml:"maxRefinementRounds"`
	RetryAttempts       int             `yaml:"retryAttempts"`
	BreakerThreshold    int             `yaml:"breakerThreshold"`
	BreakerReset        time.Duration   `yaml:"breakerReset"`
	CacheResponses      bool            `yaml:"cacheResponses"`
}

// ShardEndpoint names one logical shard and the RPC address serving it.
type ShardEndpoint struct {
	ID   int    `yaml:"id"`
	Addr string `yaml:"addr"`
}

// FacetConfig holds the defaults applied when a request omits a parameter.
type FacetConfig struct {
	DefaultLimit     int     `yaml:"defaultLimit"`
	OverrequestRatio float64 `yaml:"overrequestRatio"`
	OverrequestCount int     `yaml:"overrequestCount"`
	PivotMinCount    int     `yaml:"pivotMinCount"`
	MaxFacets        int     `yaml:"maxFacets"`
}

// SchemaConfig selects where facetable field definitions come from.
type SchemaConfig struct {
	Source string        `yaml:"source"` // static or postgres
	Fields []FieldConfig `yaml:"fields"`
}

// FieldConfig describes one field of the document schema.
type FieldConfig struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"` // string, int, float, date, bool
	Indexed bool   `yaml:"indexed"`
	Multi   bool   `yaml:"multiValued"`
}

// ShardNodeConfig describes the shards hosted by one indexer process.
type ShardNodeConfig struct {
	RPCAddr     string `yaml:"rpcAddr"`
	ShardIDs    []int  `yaml:"shardIds"`
	TotalShards int    `yaml:"totalShards"`
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

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest string `yaml:"documentIngest"`
	FacetAnalytics string `yaml:"facetAnalytics"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
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

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	if c.Facet.OverrequestRatio < 0 {
		return fmt.Errorf("facet.overrequestRatio must be >= 0, got %v", c.Facet.OverrequestRatio)
	}
	if c.Facet.OverrequestCount < 0 {
		return fmt.Errorf("facet.overrequestCount must be >= 0, got %d", c.Facet.OverrequestCount)
	}
	if c.Coordinator.MaxRefinementRounds <= 0 {
		return fmt.Errorf("coordinator.maxRefinementRounds must be > 0, got %d", c.Coordinator.MaxRefinementRounds)
	}
	seen := make(map[int]bool, len(c.Coordinator.Shards))
	for _, s := range c.Coordinator.Shards {
		if seen[s.ID] {
			return fmt.Errorf("coordinator.shards: duplicate shard id %d", s.ID)
		}
		seen[s.ID] = true
	}
	switch c.Schema.Source {
	case "static", "postgres":
	default:
		return fmt.Errorf("schema.source must be static or postgres, got %q", c.Schema.Source)
	}
	return nil
}

// defaultConfig returns a Config with defaults suited to local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Coordinator: CoordinatorConfig{
			Shards: []ShardEndpoint{
				{ID: 0, Addr: "localhost:9100"},
				{ID: 1, Addr: "localhost:9100"},
			},
			RequestTimeout:      10 * time.Second,
			PerShardTimeout:     2 * time.Second,
			MaxRefinementRounds: 32,
			RetryAttempts:       2,
			BreakerThreshold:    5,
			BreakerReset:        30 * time.Second,
		},
		Facet: FacetConfig{
			DefaultLimit:     100,
			OverrequestRatio: 1.5,
			OverrequestCount: 10,
			PivotMinCount:    1,
			MaxFacets:        64,
		},
		Schema: SchemaConfig{
			Source: "static",
		},
		Shard: ShardNodeConfig{
			RPCAddr:     ":9100",
			ShardIDs:    []int{0, 1},
			TotalShards: 2,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "facetplatform",
			User:            "facetplatform",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "facetplatform-group",
			Topics: KafkaTopics{
				DocumentIngest: "document-ingest",
				FacetAnalytics: "facet-analytics",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			SampleRate: 1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SP_COORDINATOR_SHARDS"); v != "" {
		if shards, err := parseShardList(v); err == nil {
			cfg.Coordinator.Shards = shards
		}
	}
	if v := os.Getenv("SP_COORDINATOR_TOLERANT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Coordinator.Tolerant = b
		}
	}
	if v := os.Getenv("SP_SHARD_RPC_ADDR"); v != "" {
		cfg.Shard.RPCAddr = v
	}
	if v := os.Getenv("SP_SHARD_IDS"); v != "" {
		var ids []int
		for _, part := range strings.Split(v, ",") {
			if id, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
				ids = append(ids, id)
			}
		}
		cfg.Shard.ShardIDs = ids
	}
	if v := os.Getenv("SP_SCHEMA_SOURCE"); v != "" {
		cfg.Schema.Source = v
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// parseShardList parses "0=host:port,1=host:port".
func parseShardList(v string) ([]ShardEndpoint, error) {
	var out []ShardEndpoint
	for _, part := range strings.Split(v, ",") {
		id, addr, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, fmt.Errorf("shard entry %q: expected id=addr", part)
		}
		n, err := strconv.Atoi(id)
		if err != nil {
			return nil, fmt.Errorf("shard entry %q: %w", part, err)
		}
		out = append(out, ShardEndpoint{ID: n, Addr: addr})
	}
	return out, nil
}
