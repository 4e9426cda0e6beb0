package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderPostgres = "postgres"
	ProviderMemory   = "memory"

	ProviderNats  = "nats"
	ProviderGRPC  = "grpc"
	ProviderLocal = "local"
	ProviderNone  = "none"
)

type Config struct {
	StoreProvider string
	DBUser        string
	DBPass        string
	DBHost        string
	DBPort        string
	DBName        string
	SSLMode       string

	CacheEnabled bool
	RedisHost    string
	RedisPort    string
	CachePrefix  string
	CacheTTL     time.Duration

	NatsHost       string
	NatsPort       string
	BusProvider    string
	WorkerProvider string
	BusBufferSize  int
	GRPCHost       string
	GRPCPort       string
	GRPCListenAddr string

	ApiPort    string
	ApiEnabled string

	LogLevel     string
	LogFormat    string
	ServiceName  string
	OTelEndpoint string
}

// New loads and validates configuration from environment variables.
// HTTP server is optional: if LEDGER_API_ENABLED != "true", ApiAddr() returns an error
// and the HTTP server simply won't start.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		StoreProvider:  getEnv("LEDGER_STORE_PROVIDER", ProviderPostgres),
		DBUser:         os.Getenv("LEDGER_POSTGRES_USER"),
		DBPass:         os.Getenv("LEDGER_POSTGRES_PASSWORD"),
		DBHost:         os.Getenv("LEDGER_POSTGRES_HOST"),
		DBPort:         getEnv("LEDGER_POSTGRES_PORT", "5432"),
		DBName:         os.Getenv("LEDGER_POSTGRES_DB"),
		SSLMode:        getEnv("LEDGER_POSTGRES_SSLMODE", "disable"),
		CacheEnabled:   getEnvBool("LEDGER_CACHE_ENABLED", false),
		RedisHost:      os.Getenv("LEDGER_REDIS_HOST"),
		RedisPort:      getEnv("LEDGER_REDIS_PORT", "6379"),
		CachePrefix:    getEnv("LEDGER_CACHE_PREFIX", "ledger"),
		CacheTTL:       getEnvDuration("LEDGER_CACHE_TTL", 5*time.Minute),
		NatsHost:       os.Getenv("LEDGER_NATS_HOST"),
		NatsPort:       getEnv("LEDGER_NATS_PORT", "4222"),
		BusProvider:    os.Getenv("LEDGER_BUS_PROVIDER"),
		WorkerProvider: os.Getenv("LEDGER_WORKER_PROVIDER"),
		BusBufferSize:  getEnvInt("LEDGER_BUS_BUFFER_SIZE", 1024),
		GRPCHost:       os.Getenv("LEDGER_GRPC_HOST"),
		GRPCPort:       os.Getenv("LEDGER_GRPC_PORT"),
		GRPCListenAddr: getEnv("LEDGER_GRPC_LISTEN_ADDR", ":50051"),
		ApiPort:        os.Getenv("LEDGER_API_PORT"),
		ApiEnabled:     os.Getenv("LEDGER_API_ENABLED"),
		LogLevel:       getEnv("LEDGER_LOG_LEVEL", "info"),
		LogFormat:      getEnv("LEDGER_LOG_FORMAT", "text"),
		ServiceName:    getEnv("LEDGER_SERVICE_NAME", "bankledger"),
		OTelEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	// Required: store
	switch cfg.StoreProvider {
	case ProviderPostgres:
		if cfg.DBUser == "" || cfg.DBHost == "" || cfg.DBName == "" {
			return nil, fmt.Errorf("missing required env for database: LEDGER_POSTGRES_USER/HOST/DB")
		}
	case ProviderMemory:
	default:
		return nil, fmt.Errorf("invalid store provider %q, must be 'postgres' or 'memory'", cfg.StoreProvider)
	}

	// Optional: redis, only when the account cache is on
	if cfg.CacheEnabled && cfg.RedisHost == "" {
		return nil, fmt.Errorf("missing required env for redis cache: LEDGER_REDIS_HOST")
	}

	// Required: bus provider
	if cfg.BusProvider == "" {
		return nil, fmt.Errorf("missing required env: LEDGER_BUS_PROVIDER (nats|grpc|local)")
	}
	if !oneOf(cfg.BusProvider, ProviderNats, ProviderGRPC, ProviderLocal) {
		return nil, fmt.Errorf("invalid bus provider %q, must be 'nats', 'grpc' or 'local'", cfg.BusProvider)
	}

	// Worker provider defaults to bus provider; "none" runs no consumer here.
	if cfg.WorkerProvider == "" {
		cfg.WorkerProvider = cfg.BusProvider
	}
	if !oneOf(cfg.WorkerProvider, ProviderNats, ProviderGRPC, ProviderLocal, ProviderNone) {
		return nil, fmt.Errorf("invalid worker provider %q, must be 'nats', 'grpc', 'local' or 'none'", cfg.WorkerProvider)
	}
	if cfg.BusProvider == ProviderLocal && cfg.WorkerProvider != ProviderLocal {
		return nil, fmt.Errorf("local bus needs the local worker, got worker provider %q", cfg.WorkerProvider)
	}
	if cfg.WorkerProvider == ProviderLocal && cfg.BusProvider != ProviderLocal {
		return nil, fmt.Errorf("local worker only consumes the local bus, got bus provider %q", cfg.BusProvider)
	}
	if cfg.BusProvider == ProviderGRPC && (cfg.GRPCHost == "" || cfg.GRPCPort == "") {
		return nil, fmt.Errorf("missing required env for grpc bus: LEDGER_GRPC_HOST/PORT")
	}
	if (cfg.BusProvider == ProviderNats || cfg.WorkerProvider == ProviderNats) && cfg.NatsHost == "" {
		return nil, fmt.Errorf("missing required env for nats: LEDGER_NATS_HOST")
	}
	if cfg.BusBufferSize <= 0 {
		return nil, fmt.Errorf("LEDGER_BUS_BUFFER_SIZE must be positive, got %d", cfg.BusBufferSize)
	}
	if cfg.ApiEnabled == "true" && cfg.ApiPort == "" {
		return nil, fmt.Errorf("LEDGER_API_PORT is required when LEDGER_API_ENABLED=true")
	}

	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) NatsAddr() string {
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort)
}

// GRPCAddr is the remote EventService used by the grpc bus.
func (c *Config) GRPCAddr() string {
	return fmt.Sprintf("%s:%s", c.GRPCHost, c.GRPCPort)
}

// ApiAddr returns the HTTP listen address if the API is enabled.
// Returns an error if LEDGER_API_ENABLED != "true"; callers then skip the HTTP server.
func (c *Config) ApiAddr() (string, error) {
	if c.ApiEnabled == "true" {
		if c.ApiPort == "" {
			return "", fmt.Errorf("LEDGER_API_PORT is required when LEDGER_API_ENABLED=true")
		}
		return ":" + c.ApiPort, nil
	}
	return "", fmt.Errorf("HTTP API is disabled (LEDGER_API_ENABLED != true)")
}

// BusAddr returns the connection address for the configured bus provider.
func (c *Config) BusAddr() string {
	switch c.BusProvider {
	case ProviderNats:
		return c.NatsAddr()
	case ProviderGRPC:
		return c.GRPCAddr()
	}
	return ""
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return intVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return val
}
