package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/waypoint-ai/waypoint/pkg/cache"
	"github.com/waypoint-ai/waypoint/pkg/models"
)

// Config holds all Waypoint configuration.
type Config struct {
	Listen  string             `yaml:"listen"`
	Cache   CacheConfig        `yaml:"cache"`
	Reuse   ReuseConfig        `yaml:"reuse"`
	Maps    ProviderConfig     `yaml:"maps"`
	Weather ProviderConfig     `yaml:"weather"`
	LLM     LLMConfig          `yaml:"llm"`
	Audit   models.AuditConfig `yaml:"audit"`
	Log     LogConfig          `yaml:"log"`
}

// CacheConfig selects the cache backend and namespace lifetimes.
// Backend is "memory" (default) or "sqlite".
type CacheConfig struct {
	Backend       string        `yaml:"backend"`
	DBPath        string        `yaml:"db_path"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	TTL           TTLConfig     `yaml:"ttl"`
}

// TTLConfig holds per-namespace lifetimes in seconds.
type TTLConfig struct {
	SnapshotSeconds int `yaml:"snapshot_ttl_seconds"`
	SessionSeconds  int `yaml:"session_ttl_seconds"`
	SegmentSeconds  int `yaml:"segment_ttl_seconds"`
	WeatherSeconds  int `yaml:"weather_ttl_seconds"`
}

// TTLs converts the configured lifetimes for the cache store.
func (t TTLConfig) TTLs() cache.TTLs {
	return cache.TTLs{
		Snapshot: time.Duration(t.SnapshotSeconds) * time.Second,
		Session:  time.Duration(t.SessionSeconds) * time.Second,
		Segment:  time.Duration(t.SegmentSeconds) * time.Second,
		Weather:  time.Duration(t.WeatherSeconds) * time.Second,
	}
}

// ReuseConfig controls when a cached snapshot is reused.
// Match is "vertex" (default) or "segment".
type ReuseConfig struct {
	ToleranceMeters float64 `yaml:"tolerance_meters"`
	BoundingBox     bool    `yaml:"bounding_box"`
	Match           string  `yaml:"match"`
}

// ProviderConfig defines an upstream maps or weather provider.
type ProviderConfig struct {
	URL           string        `yaml:"url"`
	APIKey        string        `yaml:"api_key"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
}

// LLMConfig defines the chat-completion provider. With no API key answers
// are plain snapshot summaries.
type LLMConfig struct {
	URL         string        `yaml:"url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// LogConfig controls structured logging. Format is "text" or "json".
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	ttls := cache.DefaultTTLs()
	return &Config{
		Listen: ":8080",
		Cache: CacheConfig{
			Backend:       "memory",
			DBPath:        "waypoint.db",
			SweepInterval: time.Minute,
			TTL: TTLConfig{
				SnapshotSeconds: int(ttls.Snapshot / time.Second),
				SessionSeconds:  int(ttls.Session / time.Second),
				SegmentSeconds:  int(ttls.Segment / time.Second),
				WeatherSeconds:  int(ttls.Weather / time.Second),
			},
		},
		Reuse: ReuseConfig{
			ToleranceMeters: 100,
			BoundingBox:     true,
			Match:           "vertex",
		},
		Maps:    ProviderConfig{Timeout: 10 * time.Second, RatePerSecond: 10, Burst: 10},
		Weather: ProviderConfig{Timeout: 10 * time.Second, RatePerSecond: 10, Burst: 10},
		LLM: LLMConfig{
			Model:       "gpt-3.5-turbo",
			Temperature: 0.3,
			MaxTokens:   300,
			Timeout:     30 * time.Second,
		},
		Audit: models.AuditConfig{
			DBPath:        "waypoint_audit.db",
			RetentionDays: 30,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate reports every setting that cannot be used.
func (c *Config) Validate() error {
	var errs []error
	switch c.Cache.Backend {
	case "memory", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("cache.backend: unknown backend %q", c.Cache.Backend))
	}
	if c.Cache.Backend == "sqlite" && c.Cache.DBPath == "" {
		errs = append(errs, errors.New("cache.db_path: required for the sqlite backend"))
	}
	ttl := c.Cache.TTL
	for _, f := range []struct {
		name string
		secs int
	}{
		{"snapshot_ttl_seconds", ttl.SnapshotSeconds},
		{"session_ttl_seconds", ttl.SessionSeconds},
		{"segment_ttl_seconds", ttl.SegmentSeconds},
		{"weather_ttl_seconds", ttl.WeatherSeconds},
	} {
		if f.secs <= 0 {
			errs = append(errs, fmt.Errorf("cache.ttl.%s: must be positive, got %d", f.name, f.secs))
		}
	}
	if c.Reuse.ToleranceMeters <= 0 {
		errs = append(errs, fmt.Errorf("reuse.tolerance_meters: must be positive, got %v", c.Reuse.ToleranceMeters))
	}
	switch c.Reuse.Match {
	case "vertex", "segment":
	default:
		errs = append(errs, fmt.Errorf("reuse.match: unknown mode %q", c.Reuse.Match))
	}
	if c.Audit.Enabled && c.Audit.DBPath == "" {
		errs = append(errs, errors.New("audit.db_path: required when audit is enabled"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
