package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUser    string
	DBPass    string
	DBHost    string
	DBPort    string
	DBName    string
	SSLMode   string
	RedisHost string
	RedisPort string
	NatsHost  string
	NatsPort  string
	ApiPort   string
}

// New loads configuration from environment variables.
// The durable backend (Postgres + Redis) is optional: when its variables are
// absent the process runs on the in-memory backend, which loses all data on
// restart. NATS is also optional; without it notifications are dropped and the
// payout drain is reachable over HTTP only.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:    os.Getenv("PIXWALLET_POSTGRES_USER"),
		DBPass:    os.Getenv("PIXWALLET_POSTGRES_PASSWORD"),
		DBHost:    os.Getenv("PIXWALLET_POSTGRES_HOST"),
		DBPort:    getEnv("PIXWALLET_POSTGRES_PORT", "5432"),
		DBName:    os.Getenv("PIXWALLET_POSTGRES_DB"),
		SSLMode:   getEnv("PIXWALLET_POSTGRES_SSLMODE", "disable"),
		RedisHost: os.Getenv("PIXWALLET_REDIS_HOST"),
		RedisPort: getEnv("PIXWALLET_REDIS_PORT", "6379"),
		NatsHost:  os.Getenv("PIXWALLET_NATS_HOST"),
		NatsPort:  getEnv("PIXWALLET_NATS_PORT", "4222"),
		ApiPort:   getEnv("PIXWALLET_API_PORT", "8080"),
	}

	// A partially configured durable backend is a misconfiguration, not a
	// reason to fall back silently.
	if cfg.HasPostgres() && cfg.RedisHost == "" {
		return nil, fmt.Errorf("missing required env for redis: PIXWALLET_REDIS_HOST (required with Postgres)")
	}

	return cfg, nil
}

// HasPostgres reports whether durable-backend configuration is present.
func (c *Config) HasPostgres() bool {
	return c.DBUser != "" && c.DBHost != "" && c.DBName != ""
}

// HasNats reports whether a NATS server is configured.
func (c *Config) HasNats() bool {
	return c.NatsHost != ""
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

func (c *Config) ApiAddr() string {
	return ":" + c.ApiPort
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}
