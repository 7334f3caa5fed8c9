package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/waypoint-ai/waypoint/pkg/audit"
	"github.com/waypoint-ai/waypoint/pkg/config"
	"github.com/waypoint-ai/waypoint/pkg/geo"
	"github.com/waypoint-ai/waypoint/pkg/llm"
	"github.com/waypoint-ai/waypoint/pkg/reuse"
	"github.com/waypoint-ai/waypoint/pkg/server"
	"github.com/waypoint-ai/waypoint/pkg/session"
	"github.com/waypoint-ai/waypoint/pkg/upstream"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the travel assistant HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, configPath)
			if err != nil {
				return err
			}
			if err := setupLogging(os.Stderr, cfg.Log); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			engine := reuse.New(store, session.New(store, nil), newUpstream(cfg), reuseOptions(cfg), nil)

			var auditor *audit.Logger
			if cfg.Audit.Enabled {
				auditor, err = audit.New(cfg.Audit, nil)
				if err != nil {
					return err
				}
				defer func() { _ = auditor.Close() }()
			}

			srv := server.New(cfg, engine, store, newResponder(cfg), auditor)

			slog.Info("starting waypoint",
				"config", configPath,
				"cache_backend", cfg.Cache.Backend,
				"match", cfg.Reuse.Match,
				"tolerance_m", cfg.Reuse.ToleranceMeters,
				"audit", cfg.Audit.Enabled,
			)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}

func newUpstream(cfg *config.Config) reuse.Upstream {
	google := upstream.NewGoogle(providerOptions(cfg.Maps))
	return reuse.Upstream{
		Maps:     google,
		Geocoder: google,
		Weather:  upstream.NewOpenWeather(providerOptions(cfg.Weather)),
	}
}

func providerOptions(pc config.ProviderConfig) upstream.Options {
	return upstream.Options{
		APIKey:        pc.APIKey,
		BaseURL:       pc.URL,
		Timeout:       pc.Timeout,
		RatePerSecond: pc.RatePerSecond,
		Burst:         pc.Burst,
	}
}

func reuseOptions(cfg *config.Config) reuse.Options {
	opts := reuse.DefaultOptions()
	opts.ToleranceMeters = cfg.Reuse.ToleranceMeters
	opts.BoundingBox = cfg.Reuse.BoundingBox
	opts.Match = reuse.Match(cfg.Reuse.Match)
	if opts.ToleranceMeters <= 0 {
		opts.ToleranceMeters = geo.DefaultToleranceMeters
	}
	return opts
}

// newResponder uses the chat-completion API when a key is configured and
// falls back to the plain summary otherwise or on failure.
func newResponder(cfg *config.Config) llm.Responder {
	if cfg.LLM.APIKey == "" {
		slog.Info("no llm api key configured, answering with snapshot summaries")
		return llm.Summary{}
	}
	return llm.Fallback{
		Primary: llm.NewOpenAI(llm.Config{
			BaseURL:     cfg.LLM.URL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.Timeout,
		}),
		Secondary: llm.Summary{},
	}
}
