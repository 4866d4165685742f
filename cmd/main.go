package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/subwaylab/metrofuse"
	"github.com/subwaylab/metrofuse/cache"
	"github.com/subwaylab/metrofuse/config"
	"github.com/subwaylab/metrofuse/downloader"
	"github.com/subwaylab/metrofuse/storage"
)

var rootCmd = &cobra.Command{
	Use:          "metrofuse",
	Short:        "Subway realtime fusion and routing",
	Long:         "Loads static subway schedules, fuses realtime arrival feeds and answers routing queries.",
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func buildStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.DatabaseDriver {
	case "memory":
		return storage.NewMemoryStorage(), nil
	case "sqlite":
		if cfg.DatabasePath != "" {
			return storage.NewSQLiteStorage(storage.SQLiteConfig{
				OnDisk: true,
				Path:   cfg.DatabasePath,
			})
		}
		return storage.NewSQLiteStorage()
	case "postgres":
		return storage.NewPostgresStorage(storage.PostgresConfig{ConnStr: cfg.DatabaseURL})
	}
	return nil, fmt.Errorf("unknown database driver '%s'", cfg.DatabaseDriver)
}

func buildCache(cfg *config.Config) (cache.Cache, error) {
	if cfg.RedisURL != "" {
		return cache.NewRedisCache(cfg.RedisURL, cfg.CacheTTL)
	}
	return cache.NewMemoryCache(cfg.CacheTTL), nil
}

func buildManager(cfg *config.Config, s storage.Storage) (*metrofuse.Manager, error) {
	m := metrofuse.NewManager(s)
	m.DefaultEdge = int(cfg.DefaultEdge.Seconds())
	m.TransferPenaltyMin = int(cfg.TransferPenaltyMin.Seconds())
	m.TransferPenaltyMax = int(cfg.TransferPenaltyMax.Seconds())

	if cfg.StaticCachePath != "" {
		fs, err := downloader.NewFilesystem(cfg.StaticCachePath)
		if err != nil {
			return nil, fmt.Errorf("opening static cache: %w", err)
		}
		m.Downloader = fs
	}

	return m, nil
}
