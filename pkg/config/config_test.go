package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Listen != ":8080" {
		t.Errorf("expected :8080, got %s", cfg.Listen)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("expected memory backend, got %s", cfg.Cache.Backend)
	}
	ttls := cfg.Cache.TTL.TTLs()
	if ttls.Snapshot != 1500*time.Second || ttls.Session != 1800*time.Second ||
		ttls.Segment != 900*time.Second || ttls.Weather != 600*time.Second {
		t.Errorf("unexpected default TTLs: %+v", ttls)
	}
	if cfg.Reuse.ToleranceMeters != 100 {
		t.Errorf("expected 100m tolerance, got %v", cfg.Reuse.ToleranceMeters)
	}
	if cfg.Audit.Enabled || cfg.Audit.RetentionDays != 30 {
		t.Errorf("unexpected default audit config: %+v", cfg.Audit)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_MAPS_KEY", "maps-123")
	t.Setenv("TEST_LLM_KEY", "sk-test-123")

	content := `
listen: ":9090"
cache:
  backend: sqlite
  db_path: "test.db"
  ttl:
    snapshot_ttl_seconds: 60
    weather_ttl_seconds: 30
reuse:
  tolerance_meters: 250
  bounding_box: false
  match: segment
maps:
  api_key: ${TEST_MAPS_KEY}
  rate_per_second: 2.5
llm:
  api_key: ${TEST_LLM_KEY}
  timeout: 5s
audit:
  enabled: true
  db_path: "audit.db"
  include_queries: true
log:
  level: debug
  format: json
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Listen != ":9090" {
		t.Errorf("expected :9090, got %s", cfg.Listen)
	}
	if cfg.Maps.APIKey != "maps-123" {
		t.Errorf("env var not expanded: got %s", cfg.Maps.APIKey)
	}
	if cfg.LLM.APIKey != "sk-test-123" {
		t.Errorf("env var not expanded: got %s", cfg.LLM.APIKey)
	}
	if cfg.LLM.Timeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", cfg.LLM.Timeout)
	}
	ttls := cfg.Cache.TTL.TTLs()
	if ttls.Snapshot != time.Minute {
		t.Errorf("expected 60s snapshot TTL, got %v", ttls.Snapshot)
	}
	if ttls.Session != 1800*time.Second {
		t.Errorf("unset TTL should keep its default, got %v", ttls.Session)
	}
	if cfg.Reuse.BoundingBox {
		t.Error("expected bounding box disabled")
	}
	if cfg.Reuse.Match != "segment" {
		t.Errorf("expected segment match, got %s", cfg.Reuse.Match)
	}
	if cfg.Maps.RatePerSecond != 2.5 {
		t.Errorf("expected 2.5 rps, got %v", cfg.Maps.RatePerSecond)
	}
	if !cfg.Audit.Enabled || cfg.Audit.DBPath != "audit.db" || !cfg.Audit.IncludeQueries {
		t.Errorf("unexpected audit config: %+v", cfg.Audit)
	}
	if cfg.Audit.RetentionDays != 30 {
		t.Errorf("unset retention should keep its default, got %d", cfg.Audit.RetentionDays)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("expected json log format, got %s", cfg.Log.Format)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadInvalid(t *testing.T) {
	content := `
cache:
  backend: redis
  ttl:
    session_ttl_seconds: 0
reuse:
  tolerance_meters: -1
  match: fuzzy
audit:
  enabled: true
  db_path: ""
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"cache.backend", "session_ttl_seconds", "tolerance_meters", "reuse.match", "audit.db_path"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %s", err, want)
		}
	}
}
