// Package config reads service configuration from the environment.
// A .env file in the working directory is honored when present.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the server and poller need.
type Config struct {
	// Realtime feeds
	FeedURLs     []string
	PollInterval time.Duration
	FetchTimeout time.Duration

	// Optional API key attached to every feed request.
	FeedAPIKeyHeader string
	FeedAPIKey       string

	// Static schedule source. StaticPath wins when both are set.
	// StaticCachePath caches downloaded dumps on disk.
	StaticURL       string
	StaticPath      string
	StaticCachePath string

	// Storage backend: "memory", "sqlite" or "postgres".
	DatabaseDriver string
	DatabaseURL    string
	DatabasePath   string

	// Cache. An empty RedisURL selects the in-process cache.
	RedisURL string
	CacheTTL time.Duration

	// Graph and routing
	TransferPenaltyMin time.Duration
	TransferPenaltyMax time.Duration
	DefaultEdge        time.Duration
	MaxTransfers       int

	// HTTP server
	HTTPAddr string
}

// Load reads configuration from the environment with defaults.
func Load() *Config {
	// Missing .env is fine; the environment still applies.
	godotenv.Load()

	return &Config{
		FeedURLs:     splitList(getEnv("FEED_URLS", "")),
		PollInterval: time.Duration(getEnvInt("FEED_POLL_INTERVAL_SECONDS", 45)) * time.Second,
		FetchTimeout: time.Duration(getEnvInt("FEED_FETCH_TIMEOUT_SECONDS", 10)) * time.Second,

		FeedAPIKeyHeader: getEnv("FEED_API_KEY_HEADER", "x-api-key"),
		FeedAPIKey:       getEnv("FEED_API_KEY", ""),

		StaticURL:       getEnv("STATIC_URL", ""),
		StaticPath:      getEnv("STATIC_PATH", ""),
		StaticCachePath: getEnv("STATIC_CACHE_PATH", ""),

		DatabaseDriver: getEnv("DATABASE_DRIVER", "memory"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DatabasePath:   getEnv("DATABASE_PATH", ""),

		RedisURL: getEnv("REDIS_URL", ""),
		CacheTTL: time.Duration(getEnvInt("CACHE_TTL_SECONDS", 90)) * time.Second,

		TransferPenaltyMin: time.Duration(getEnvInt("TRANSFER_PENALTY_MIN_SECONDS", 180)) * time.Second,
		TransferPenaltyMax: time.Duration(getEnvInt("TRANSFER_PENALTY_MAX_SECONDS", 300)) * time.Second,
		DefaultEdge:        time.Duration(getEnvInt("ROUTER_DEFAULT_EDGE_SECONDS", 120)) * time.Second,
		MaxTransfers:       getEnvInt("ROUTER_MAX_TRANSFERS", 3),

		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
	}
}

// FeedHeaders builds the header set attached to feed requests.
func (c *Config) FeedHeaders() map[string]string {
	if c.FeedAPIKey == "" {
		return nil
	}
	return map[string]string{c.FeedAPIKeyHeader: c.FeedAPIKey}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	items := []string{}
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}
