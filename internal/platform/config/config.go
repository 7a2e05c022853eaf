package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"recon/internal/datahive/query"
	"recon/internal/datahive/service"
	"recon/internal/datahive/sideeffect"
	"recon/internal/suspension"
)

// FileEnv names the optional YAML file overlaid on the environment.
const FileEnv = "RECON_CONFIG_FILE"

// Config is the full service configuration.
type Config struct {
	LogLevel   string            `yaml:"log_level"`
	Server     Server            `yaml:"server"`
	Postgres   PostgresConfig    `yaml:"postgres"`
	Redis      RedisConfig       `yaml:"redis"`
	Kafka      KafkaConfig       `yaml:"kafka"`
	DataHive   DataHiveConfig    `yaml:"datahive"`
	QueryRetry query.RetryPolicy `yaml:"query_retry"`
	Reconcile  ReconcileConfig   `yaml:"reconcile"`
	Suspension SuspensionConfig  `yaml:"suspension"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// PostgresConfig locates the case database. An empty DSN selects the
// in-memory store.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig configures the run store. An empty URL keeps runs in memory.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	RunTTL       time.Duration `yaml:"run_ttl"`
}

// KafkaConfig configures result events. No brokers disables publishing.
type KafkaConfig struct {
	Brokers           []string `yaml:"brokers"`
	Topic             string   `yaml:"topic"`
	ClientID          string   `yaml:"client_id"`
	EnsureTopic       bool     `yaml:"ensure_topic"`
	Partitions        int32    `yaml:"partitions"`
	ReplicationFactor int16    `yaml:"replication_factor"`
}

// DataHiveConfig locates the warehouse and the key used to sign tokens.
type DataHiveConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Account        string        `yaml:"account"`
	User           string        `yaml:"user"`
	PrivateKeyPath string        `yaml:"private_key_path"`
	Database       string        `yaml:"database"`
	Schema         string        `yaml:"schema"`
	Warehouse      string        `yaml:"warehouse"`
	Role           string        `yaml:"role"`
	APIMHeader     string        `yaml:"apim_header"`
	APIMKey        string        `yaml:"apim_key"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	MaxPolls       int           `yaml:"max_polls"`
	Concurrency    int           `yaml:"concurrency"`
}

// ReconcileConfig holds the batch and side-effect settings.
type ReconcileConfig struct {
	Service service.Config    `yaml:",inline"`
	Actions sideeffect.Config `yaml:",inline"`
}

// SuspensionConfig configures the status API client.
type SuspensionConfig struct {
	BaseURL         string                   `yaml:"base_url"`
	Endpoint        string                   `yaml:"endpoint"`
	Timeout         time.Duration            `yaml:"timeout"`
	Backoff         suspension.BackoffPolicy `yaml:"backoff"`
	RateLimit       float64                  `yaml:"rate_limit"`
	RateBurst       int                      `yaml:"rate_burst"`
	BreakerFailures int                      `yaml:"breaker_failures"`
	BreakerCooldown time.Duration            `yaml:"breaker_cooldown"`
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		LogLevel: envString("RECON_LOG_LEVEL", "info"),
		Server: Server{
			Addr:            envString("RECON_ADDR", ":8080"),
			ShutdownTimeout: envDuration("RECON_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Postgres: PostgresConfig{
			DSN:             os.Getenv("RECON_POSTGRES_DSN"),
			Schema:          os.Getenv("RECON_POSTGRES_SCHEMA"),
			MaxOpenConns:    envInt("RECON_POSTGRES_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("RECON_POSTGRES_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("RECON_POSTGRES_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("RECON_REDIS_URL"),
			PoolSize:     envInt("RECON_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("RECON_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("RECON_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("RECON_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("RECON_REDIS_WRITE_TIMEOUT", 3*time.Second),
			RunTTL:       envDuration("RECON_RUN_TTL", 7*24*time.Hour),
		},
		Kafka: KafkaConfig{
			Brokers:           envList("RECON_KAFKA_BROKERS"),
			Topic:             envString("RECON_KAFKA_TOPIC", "recon.results"),
			ClientID:          envString("RECON_KAFKA_CLIENT_ID", "recon"),
			EnsureTopic:       envBool("RECON_KAFKA_ENSURE_TOPIC", false),
			Partitions:        int32(envInt("RECON_KAFKA_PARTITIONS", 3)),
			ReplicationFactor: int16(envInt("RECON_KAFKA_REPLICATION_FACTOR", 1)),
		},
		DataHive: DataHiveConfig{
			BaseURL:        os.Getenv("RECON_DATAHIVE_URL"),
			Account:        os.Getenv("RECON_DATAHIVE_ACCOUNT"),
			User:           os.Getenv("RECON_DATAHIVE_USER"),
			PrivateKeyPath: os.Getenv("RECON_DATAHIVE_PRIVATE_KEY_PATH"),
			Database:       os.Getenv("RECON_DATAHIVE_DATABASE"),
			Schema:         os.Getenv("RECON_DATAHIVE_SCHEMA"),
			Warehouse:      os.Getenv("RECON_DATAHIVE_WAREHOUSE"),
			Role:           os.Getenv("RECON_DATAHIVE_ROLE"),
			APIMHeader:     os.Getenv("RECON_DATAHIVE_APIM_HEADER"),
			APIMKey:        os.Getenv("RECON_DATAHIVE_APIM_KEY"),
			PollInterval:   envDuration("RECON_DATAHIVE_POLL_INTERVAL", time.Second),
			MaxPolls:       envInt("RECON_DATAHIVE_MAX_POLLS", 60),
			Concurrency:    envInt("RECON_DATAHIVE_CONCURRENCY", 0),
		},
		QueryRetry: query.RetryPolicy{
			MaxAttempts:    envInt("RECON_QUERY_MAX_ATTEMPTS", 3),
			Delay:          envDuration("RECON_QUERY_RETRY_DELAY", time.Second),
			AttemptTimeout: envDuration("RECON_QUERY_TIMEOUT", 90*time.Second),
		},
		Reconcile: ReconcileConfig{
			Service: service.Config{
				BatchSize:          envInt("RECON_BATCH_SIZE", 100),
				EnrichDeregistered: envBool("RECON_ENRICH_DEREGISTERED", false),
			},
			Actions: sideeffect.Config{
				ActorID:     envString("RECON_ACTOR_ID", "ocmsizmgr"),
				SubsystemID: envString("RECON_SUBSYSTEM_ID", "004"),
				RevivalDays: envInt("RECON_SYS_REVIVAL_DAYS", 14),
			},
		},
		Suspension: SuspensionConfig{
			BaseURL:  os.Getenv("RECON_SUSPENSION_URL"),
			Endpoint: envString("RECON_SUSPENSION_ENDPOINT", suspension.DefaultEndpoint),
			Timeout:  envDuration("RECON_SUSPENSION_TIMEOUT", 30*time.Second),
			Backoff: suspension.BackoffPolicy{
				MaxRetries: envInt("RECON_SUSPENSION_MAX_RETRIES", 3),
				Initial:    envDuration("RECON_SUSPENSION_BACKOFF_INITIAL", 2*time.Second),
				Max:        envDuration("RECON_SUSPENSION_BACKOFF_MAX", 30*time.Second),
				Jitter:     envFloat("RECON_SUSPENSION_BACKOFF_JITTER", 0.15),
			},
			RateLimit:       envFloat("RECON_SUSPENSION_RATE_LIMIT", 10),
			RateBurst:       envInt("RECON_SUSPENSION_RATE_BURST", 10),
			BreakerFailures: envInt("RECON_SUSPENSION_BREAKER_FAILURES", 5),
			BreakerCooldown: envDuration("RECON_SUSPENSION_BREAKER_COOLDOWN", 30*time.Second),
		},
	}
}

// Load reads the environment, then overlays the file named by FileEnv when
// it is set. Keys absent from the file keep their environment value.
func Load() (Config, error) {
	cfg := FromEnv()
	path := os.Getenv(FileEnv)
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := cfg.Overlay(raw); err != nil {
		return Config{}, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Overlay decodes YAML over cfg.
func (c *Config) Overlay(raw []byte) error {
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil {
		return n
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if f, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64); err == nil {
		return f
	}
	return def
}

func envBool(key string, def bool) bool {
	if b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key))); err == nil {
		return b
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key))); err == nil {
		return d
	}
	return def
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
