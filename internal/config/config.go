package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type ElasticsearchConfig struct {
	URL      string
	Username string
	Password string
	Index    string
}

type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	Table    string
}

type PipelineConfig struct {
	FlushInterval time.Duration
	StoreTailSize int // entries of recent history persisted on shutdown
}

type SOCConfig struct {
	Analysts           []string
	EscalationInterval time.Duration
	CorrelationWindow  time.Duration
}

type IncidentConfig struct {
	EscalationInterval time.Duration
	SLAInterval        time.Duration
}

type HuntConfig struct {
	DurationCheckInterval time.Duration
}

type Config struct {
	Environment string
	Server      ServerConfig
	Logging     LoggingConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Elastic     ElasticsearchConfig
	ClickHouse  ClickHouseConfig
	Pipeline    PipelineConfig
	SOC         SOCConfig
	Incident    IncidentConfig
	Hunt        HuntConfig
}

// Load reads configuration from the environment, with .env support for local
// development.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 20),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			Topic:   getEnv("KAFKA_LOG_TOPIC", "secops.logs"),
		},
		Elastic: ElasticsearchConfig{
			URL:      getEnv("ELASTIC_URL", "http://localhost:9200"),
			Username: getEnv("ELASTIC_USERNAME", ""),
			Password: getEnv("ELASTIC_PASSWORD", ""),
			Index:    getEnv("ELASTIC_LOG_INDEX", "secops-logs"),
		},
		ClickHouse: ClickHouseConfig{
			Addr:     getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
			Database: getEnv("CLICKHOUSE_DATABASE", "secops"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			Table:    getEnv("CLICKHOUSE_LOG_TABLE", "log_entries"),
		},
		Pipeline: PipelineConfig{
			FlushInterval: getEnvDuration("PIPELINE_FLUSH_INTERVAL", 30*time.Second),
			StoreTailSize: getEnvInt("PIPELINE_STORE_TAIL", 500),
		},
		SOC: SOCConfig{
			Analysts:           splitList(getEnv("SOC_ANALYSTS", "analyst-1,analyst-2,analyst-3")),
			EscalationInterval: getEnvDuration("SOC_ESCALATION_INTERVAL", time.Minute),
			CorrelationWindow:  getEnvDuration("SOC_CORRELATION_WINDOW", time.Hour),
		},
		Incident: IncidentConfig{
			EscalationInterval: getEnvDuration("INCIDENT_ESCALATION_INTERVAL", time.Minute),
			SLAInterval:        getEnvDuration("INCIDENT_SLA_INTERVAL", time.Minute),
		},
		Hunt: HuntConfig{
			DurationCheckInterval: getEnvDuration("HUNT_DURATION_INTERVAL", 5*time.Minute),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) ServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
