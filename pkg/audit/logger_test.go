package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/waypoint-ai/waypoint/pkg/clock"
	"github.com/waypoint-ai/waypoint/pkg/models"
)

var t0 = time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC)

func tempCfg(t *testing.T) models.AuditConfig {
	t.Helper()
	return models.AuditConfig{
		Enabled:       true,
		DBPath:        filepath.Join(t.TempDir(), "audit_test.db"),
		RetentionDays: 30,
	}
}

func mustNew(t *testing.T, cfg models.AuditConfig, c clock.Clock) *Logger {
	t.Helper()
	l, err := New(cfg, c)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func sampleEntry(id, reason string, at time.Time) models.AuditEntry {
	outcome := "refetch"
	if reason == "on_route" || reason == "in_bounds" {
		outcome = "reuse"
	}
	return models.AuditEntry{
		RequestID:  id,
		UserHash:   HashUserID("u1"),
		Outcome:    outcome,
		Reason:     reason,
		SnapshotID: "snap-1",
		Query:      "how long?",
		StatusCode: 200,
		LatencyMs:  12,
		CreatedAt:  at,
	}
}

func TestLogAndQuery(t *testing.T) {
	l := mustNew(t, tempCfg(t), clock.NewFake(t0))
	ctx := context.Background()

	if err := l.Log(ctx, sampleEntry("req-001", "no_session", t0)); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if err := l.Log(ctx, sampleEntry("req-002", "on_route", t0.Add(time.Minute))); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, err := l.Query(ctx, models.AuditQueryOpts{UserHash: HashUserID("u1")})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].RequestID != "req-002" {
		t.Errorf("expected newest first, got %s", entries[0].RequestID)
	}
	if !entries[1].CreatedAt.Equal(t0) {
		t.Errorf("expected created_at %v, got %v", t0, entries[1].CreatedAt)
	}
	if entries[0].Query != "" {
		t.Error("query text should not be stored unless configured")
	}

	byReason, err := l.Query(ctx, models.AuditQueryOpts{Reason: "on_route"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(byReason) != 1 || byReason[0].Outcome != "reuse" {
		t.Errorf("unexpected reason filter result: %+v", byReason)
	}

	byID, err := l.Query(ctx, models.AuditQueryOpts{RequestID: "req-001", Limit: 1})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(byID) != 1 || byID[0].Reason != "no_session" {
		t.Errorf("unexpected request id result: %+v", byID)
	}
}

func TestIncludeQueries(t *testing.T) {
	cfg := tempCfg(t)
	cfg.IncludeQueries = true
	l := mustNew(t, cfg, clock.NewFake(t0))
	ctx := context.Background()

	if err := l.Log(ctx, sampleEntry("req-001", "no_session", t0)); err != nil {
		t.Fatal(err)
	}
	entries, err := l.Query(ctx, models.AuditQueryOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Query != "how long?" {
		t.Errorf("expected query text stored, got %+v", entries)
	}
}

func TestStats(t *testing.T) {
	l := mustNew(t, tempCfg(t), clock.NewFake(t0))
	ctx := context.Background()

	for i, reason := range []string{"no_session", "on_route", "on_route"} {
		e := sampleEntry("req-"+string(rune('a'+i)), reason, t0)
		if err := l.Log(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 stat rows, got %d", len(stats))
	}
	if stats[0].Day != "2025-07-10" || stats[0].Reason != "no_session" || stats[0].Count != 1 {
		t.Errorf("unexpected first row: %+v", stats[0])
	}
	if stats[1].Reason != "on_route" || stats[1].Count != 2 {
		t.Errorf("unexpected second row: %+v", stats[1])
	}
}

func TestCleanup(t *testing.T) {
	clk := clock.NewFake(t0)
	l := mustNew(t, tempCfg(t), clk)
	ctx := context.Background()

	if err := l.Log(ctx, sampleEntry("old", "no_session", t0.AddDate(0, 0, -31))); err != nil {
		t.Fatal(err)
	}
	if err := l.Log(ctx, sampleEntry("new", "no_session", t0)); err != nil {
		t.Fatal(err)
	}

	n, err := l.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted, got %d", n)
	}
}

func TestNilLoggerIsNoop(t *testing.T) {
	var l *Logger
	if err := l.Log(context.Background(), sampleEntry("x", "no_session", t0)); err != nil {
		t.Errorf("nil logger should ignore entries, got %v", err)
	}
}

func TestHashUserID(t *testing.T) {
	h1 := HashUserID("u1")
	if h1 != HashUserID("u1") {
		t.Error("hash should be deterministic")
	}
	if h1 == HashUserID("u2") {
		t.Error("different users should hash differently")
	}
	if len(h1) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(h1))
	}
}
