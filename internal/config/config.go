// Package config loads fleet process configuration from the environment,
// optionally seeded from a .env file, the same pattern the corpus uses for
// process configuration.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the full set of environment-derived settings one fleetd
// process needs to boot.
type Config struct {
	NodeType string

	StoreType     string
	RedisHost     string
	RedisPort     int
	RedisDatabase int

	HTTPServerEnabled bool
	HTTPBindAddress   string
	HTTPAPIKey        string

	MetricsEnabled     bool
	MetricsBindAddress string

	Shell string

	PingIntervalMs      int64
	SchedulerIntervalMs int64
}

// Load reads a .env file if present (ignored if absent) then applies
// defaults over os.Getenv. STORE_TYPE values other than "redis" are a
// startup error: only redis is implemented.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		NodeType: getEnv("NODE_TYPE", "default"),

		StoreType:     getEnv("STORE_TYPE", "redis"),
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnvInt("REDIS_PORT", 6379),
		RedisDatabase: getEnvInt("REDIS_DATABASE", 0),

		HTTPServerEnabled: getEnvBool("HTTP_SERVER_ENABLED", true),
		HTTPBindAddress:   getEnv("HTTP_BIND_ADDRESS", "127.0.0.1:23071"),
		HTTPAPIKey:        getEnv("HTTP_API_KEY", "dev_key"),

		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
		MetricsBindAddress: getEnv("METRICS_BIND_ADDRESS", "127.0.0.1:9090"),

		Shell: getEnv("SHELL", "/bin/bash"),

		PingIntervalMs:      getEnvInt64("PING_INTERVAL_MS", 5000),
		SchedulerIntervalMs: getEnvInt64("SCHEDULER_INTERVAL_MS", 1000),
	}

	if cfg.StoreType != "redis" {
		return nil, fmt.Errorf("config: unsupported STORE_TYPE %q: only \"redis\" is implemented", cfg.StoreType)
	}

	return cfg, nil
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
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

func getEnvInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
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
