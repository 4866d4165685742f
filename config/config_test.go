package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Empty(t, cfg.FeedURLs)
	assert.Equal(t, 45*time.Second, cfg.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, 180*time.Second, cfg.TransferPenaltyMin)
	assert.Equal(t, 300*time.Second, cfg.TransferPenaltyMax)
	assert.Equal(t, 120*time.Second, cfg.DefaultEdge)
	assert.Equal(t, 3, cfg.MaxTransfers)
	assert.Equal(t, "memory", cfg.DatabaseDriver)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Nil(t, cfg.FeedHeaders())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("FEED_URLS", "https://feeds.example.com/ace, https://feeds.example.com/1234567,")
	t.Setenv("FEED_POLL_INTERVAL_SECONDS", "30")
	t.Setenv("ROUTER_MAX_TRANSFERS", "1")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_PATH", "/data/metrofuse.db")
	t.Setenv("FEED_API_KEY", "sekrit")

	cfg := Load()

	assert.Equal(t, []string{
		"https://feeds.example.com/ace",
		"https://feeds.example.com/1234567",
	}, cfg.FeedURLs)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, 1, cfg.MaxTransfers)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, "/data/metrofuse.db", cfg.DatabasePath)
	assert.Equal(t, map[string]string{"x-api-key": "sekrit"}, cfg.FeedHeaders())
}

func TestLoadBadInt(t *testing.T) {
	t.Setenv("FEED_POLL_INTERVAL_SECONDS", "soon")

	cfg := Load()
	assert.Equal(t, 45*time.Second, cfg.PollInterval)
}
