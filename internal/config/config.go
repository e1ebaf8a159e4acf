package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	DriverMemory   = "memory"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

type Config struct {
	AppEnv   string
	LogLevel string
	HTTPPort int
	GinMode  string

	StoreDriver       string
	MongoURI          string
	MongoDatabase     string
	MongoTransactions bool
	DatabaseURL       string

	RedisURL        string
	ProductCacheTTL time.Duration

	AMQPURL string

	JWTSecret string

	PlacementConcurrency int
	ShutdownTimeout      time.Duration
}

func Load() Config {
	return Config{
		AppEnv:   getEnv("APP_ENV", "dev"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		HTTPPort: getEnvInt("HTTP_PORT", 9091),
		GinMode:  getEnv("GIN_MODE", "debug"),

		StoreDriver:       getEnv("STORE_DRIVER", DriverMemory),
		MongoURI:          getEnv("MONGO_URI", ""),
		MongoDatabase:     getEnv("MONGO_DATABASE", "storefront"),
		MongoTransactions: getEnvBool("MONGO_TRANSACTIONS", false),
		DatabaseURL:       getEnv("DATABASE_URL", ""),

		RedisURL:        getEnv("REDIS_URL", ""),
		ProductCacheTTL: getEnvDuration("PRODUCT_CACHE_TTL", 30*time.Second),

		AMQPURL: getEnv("AMQP_URL", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),

		PlacementConcurrency: getEnvInt("PLACEMENT_CONCURRENCY", 8),
		ShutdownTimeout:      getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

// Validate rejects settings the server cannot start with
func (c Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverMemory:
	case DriverMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo driver"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d", c.HTTPPort))
	}
	if c.PlacementConcurrency < 1 {
		errs = append(errs, errors.New("PLACEMENT_CONCURRENCY must be at least 1"))
	}
	return errors.Join(errs...)
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)

	if v == "" {
		return def
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}

	return n
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
