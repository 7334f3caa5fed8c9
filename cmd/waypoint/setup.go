package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/waypoint-ai/waypoint/pkg/cache"
	"github.com/waypoint-ai/waypoint/pkg/cache/memory"
	"github.com/waypoint-ai/waypoint/pkg/cache/sqlite"
	"github.com/waypoint-ai/waypoint/pkg/clock"
	"github.com/waypoint-ai/waypoint/pkg/config"
)

const defaultConfigPath = "waypoint.yaml"

// loadConfig reads the config file. A missing default config file falls
// back to built-in defaults; an explicitly named one must exist.
func loadConfig(cmd *cobra.Command, path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !cmd.Flags().Changed("config") && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, fmt.Errorf("load config: %w", err)
}

// setupLogging installs the default slog logger.
func setupLogging(w io.Writer, lc config.LogConfig) error {
	var level slog.Level
	if lc.Level != "" {
		if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
			return fmt.Errorf("log.level: %w", err)
		}
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if lc.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

// openStore opens the configured cache backend. For the memory backend a
// sweeper runs until ctx is cancelled.
func openStore(ctx context.Context, cfg *config.Config) (*cache.Store, error) {
	var backend cache.Backend
	switch cfg.Cache.Backend {
	case "sqlite":
		b, err := sqlite.New(cfg.Cache.DBPath)
		if err != nil {
			return nil, fmt.Errorf("init cache: %w", err)
		}
		backend = b
	case "memory", "":
		b := memory.New()
		go b.Run(ctx, sweepInterval(cfg), clock.Real{})
		backend = b
	default:
		return nil, fmt.Errorf("init cache: unknown backend %q", cfg.Cache.Backend)
	}
	return cache.New(backend, clock.Real{}, cfg.Cache.TTL.TTLs()), nil
}

func sweepInterval(cfg *config.Config) time.Duration {
	if cfg.Cache.SweepInterval > 0 {
		return cfg.Cache.SweepInterval
	}
	return time.Minute
}
