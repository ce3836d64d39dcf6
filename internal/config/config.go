package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	NodeID      int64

	HTTPAddr     string
	OTLPEndpoint string

	// WaiterConfigPath points at the directory holding waiter.yml.
	WaiterConfigPath string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Lock      LockConfig
	Consumer  ConsumerConfig
	Master    MasterConfig
	Telemetry TelemetryConfig
}

// TelemetryConfig drives logging, tracing and OTLP metrics export.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtelProtocol  string
	SamplingRatio float64
}

// LockConfig tunes the Redis resource lock. TTL is the lease length: the
// holder renews it every TTL/3, so it only matters when a holder dies or
// cannot reach Redis for a whole TTL, after which another worker may take
// the lock.
type LockConfig struct {
	TTL          time.Duration
	RetryBackoff time.Duration
}

type ConsumerConfig struct {
	Enabled      bool
	Group        string
	Name         string
	Workers      int
	BlockTimeout time.Duration
	ReclaimIdle  time.Duration
	// RetryBackoff is the first pause before a failed message is retried in
	// place; it doubles up to RetryMaxBackoff.
	RetryBackoff    time.Duration
	RetryMaxBackoff time.Duration
}

type MasterConfig struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	RetryCount   int
	RetryDelay   time.Duration
	RateLimit    int
	RateBurst    int
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "waiter"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		NodeID:            getenvInt64("NODE_ID", 1),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317"))),
		WaiterConfigPath:  strings.TrimSpace(getenv("WAITER_CONFIG_PATH", "")),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "waiter"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "waiter.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		RedisAddr:         strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
		RedisDB:           getenvInt("REDIS_DB", 0),
		Lock: LockConfig{
			TTL:          getenvDuration("LOCK_TTL", 30*time.Second),
			RetryBackoff: getenvDuration("LOCK_RETRY_BACKOFF", 50*time.Millisecond),
		},
		Consumer: ConsumerConfig{
			Enabled:         getenvBool("CONSUMER_ENABLED", false),
			Group:           getenv("CONSUMER_GROUP", "waiter"),
			Name:            getenv("CONSUMER_NAME", hostname()),
			Workers:         getenvInt("CONSUMER_WORKERS", 8),
			BlockTimeout:    getenvDuration("CONSUMER_BLOCK_TIMEOUT", 5*time.Second),
			ReclaimIdle:     getenvDuration("CONSUMER_RECLAIM_IDLE", time.Minute),
			RetryBackoff:    getenvDuration("CONSUMER_RETRY_BACKOFF", 500*time.Millisecond),
			RetryMaxBackoff: getenvDuration("CONSUMER_RETRY_MAX_BACKOFF", 30*time.Second),
		},
		Master: MasterConfig{
			BaseURL:      strings.TrimRight(strings.TrimSpace(getenv("MASTER_URL", "")), "/"),
			APIKey:       strings.TrimSpace(getenv("MASTER_API_KEY", "")),
			Timeout:      getenvDuration("MASTER_TIMEOUT", 10*time.Second),
			RetryCount:   getenvInt("MASTER_RETRY_COUNT", 2),
			RetryDelay:   getenvDuration("MASTER_RETRY_DELAY", 500*time.Millisecond),
			RateLimit:    getenvInt("MASTER_RATE_LIMIT", 600),
			RateBurst:    getenvInt("MASTER_RATE_BURST", 10),
			PollInterval: getenvDuration("MASTER_POLL_INTERVAL", 5*time.Second),
			BatchSize:    getenvInt("MASTER_BATCH_SIZE", 50),
			MaxAttempts:  getenvInt("MASTER_MAX_ATTEMPTS", 20),
		},
		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", true),
			OtelProtocol:  otlpProtocol(),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
	}

	return cfg
}

// RedisEnabled reports whether a redis endpoint is configured.
func (c Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

// otlpProtocol prefers the traces-specific protocol over the generic one.
func otlpProtocol() string {
	protocol := getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))
	return strings.ToLower(strings.TrimSpace(protocol))
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "waiter"
	}
	return name
}
