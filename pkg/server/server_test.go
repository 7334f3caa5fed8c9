package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/waypoint-ai/waypoint/pkg/audit"
	"github.com/waypoint-ai/waypoint/pkg/cache"
	"github.com/waypoint-ai/waypoint/pkg/cache/memory"
	"github.com/waypoint-ai/waypoint/pkg/config"
	"github.com/waypoint-ai/waypoint/pkg/geo"
	"github.com/waypoint-ai/waypoint/pkg/llm"
	"github.com/waypoint-ai/waypoint/pkg/models"
	"github.com/waypoint-ai/waypoint/pkg/reuse"
	"github.com/waypoint-ai/waypoint/pkg/session"
)

type stubUpstream struct {
	fail bool
}

func (s *stubUpstream) FetchDirections(_ context.Context, _, _ float64, _ string, _ []string) (map[string]models.RouteInfo, error) {
	if s.fail {
		return nil, errors.New("maps down")
	}
	line := geo.EncodePolyline([]geo.Point{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 0.01}})
	return map[string]models.RouteInfo{
		models.ModeDriving: {DistanceKm: 1.1, EtaMin: 3, Summary: "Equator Rd", Polyline: line},
	}, nil
}

func (s *stubUpstream) FetchWeather(context.Context, float64, float64) (models.WeatherInfo, error) {
	return models.WeatherInfo{Description: "sunny", TemperatureC: 30}, nil
}

func (s *stubUpstream) Geocode(context.Context, string) (models.Location, error) {
	return models.Location{Lat: 0, Lng: 0.01}, nil
}

func setupServer(t *testing.T) (*Server, *stubUpstream) {
	t.Helper()
	store := cache.New(memory.New(), nil, cache.DefaultTTLs())
	t.Cleanup(func() { store.Close() })

	up := &stubUpstream{}
	engine := reuse.New(store, session.New(store, nil),
		reuse.Upstream{Maps: up, Weather: up, Geocoder: up}, reuse.DefaultOptions(), nil)

	cfg := config.Default()
	cfg.Listen = ":0"
	return New(cfg, engine, store, llm.Summary{}, nil), up
}

func postChat(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestChat(t *testing.T) {
	srv, _ := setupServer(t)

	w := postChat(t, srv, `{"user_id":"u1","lat":0,"lng":0,"query":"how long?","destination":"Cafe"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Waypoint-Cache") != "miss" {
		t.Error("expected cache miss on first turn")
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated request id")
	}

	var first models.ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &first); err != nil {
		t.Fatal(err)
	}
	if first.Source != "api" || first.Decision != reuse.ReasonNoSession {
		t.Errorf("unexpected first turn: source=%s decision=%s", first.Source, first.Decision)
	}
	if !strings.Contains(first.Answer, "Driving to Cafe") {
		t.Errorf("unexpected answer: %s", first.Answer)
	}

	// Second turn a few metres along the route reuses the snapshot.
	w = postChat(t, srv, `{"user_id":"u1","lat":0.0001,"lng":0,"query":"weather?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Waypoint-Cache") != "hit" {
		t.Error("expected cache hit on second turn")
	}
	var second models.ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &second); err != nil {
		t.Fatal(err)
	}
	if second.SnapshotID != first.SnapshotID {
		t.Errorf("expected reused snapshot %s, got %s", first.SnapshotID, second.SnapshotID)
	}
	if second.Decision != reuse.ReasonOnRoute {
		t.Errorf("expected on_route, got %s", second.Decision)
	}
}

func TestChatErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		fail bool
		want int
	}{
		{"bad json", `{`, false, http.StatusBadRequest},
		{"missing user", `{"lat":0,"lng":0,"destination":"Cafe"}`, false, http.StatusBadRequest},
		{"missing lat", `{"user_id":"u1","lng":0,"destination":"Cafe"}`, false, http.StatusBadRequest},
		{"missing lng", `{"user_id":"u1","lat":0,"destination":"Cafe"}`, false, http.StatusBadRequest},
		{"invalid coordinate", `{"user_id":"u1","lat":95,"lng":0,"destination":"Cafe"}`, false, http.StatusBadRequest},
		{"no destination", `{"user_id":"u1","lat":0,"lng":0}`, false, http.StatusBadRequest},
		{"upstream down", `{"user_id":"u1","lat":0,"lng":0,"destination":"Cafe"}`, true, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, up := setupServer(t)
			up.fail = tt.fail
			w := postChat(t, srv, tt.body)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), `"type":"waypoint_error"`) {
				t.Errorf("expected JSON error body, got %s", w.Body.String())
			}
		})
	}
}

func TestChatMethodNotAllowed(t *testing.T) {
	srv, _ := setupServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestRouteInfoAndSnapshot(t *testing.T) {
	srv, _ := setupServer(t)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	w := get("/api/route-info?origin_lat=0&origin_lng=0&destination=Cafe")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp models.RouteInfoResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Source != "api" || resp.Snapshot == nil || resp.Snapshot.Weather.Description != "sunny" {
		t.Fatalf("unexpected route info: %s", w.Body.String())
	}

	w = get("/api/route-info?origin_lat=0&origin_lng=0&destination=Cafe")
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Source != "cache" {
		t.Errorf("expected cached route info, got %s", resp.Source)
	}

	w = get("/api/snapshots/" + url.PathEscape(resp.Snapshot.ID))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for snapshot, got %d: %s", w.Code, w.Body.String())
	}
	var snap models.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.ID != resp.Snapshot.ID {
		t.Errorf("expected snapshot %s, got %s", resp.Snapshot.ID, snap.ID)
	}

	if w := get("/api/snapshots/nope"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if w := get("/api/route-info?origin_lat=x&origin_lng=0&destination=Cafe"); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad latitude, got %d", w.Code)
	}
	if w := get("/api/route-info?origin_lat=0&origin_lng=0"); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without destination, got %d", w.Code)
	}
}

func TestStatsPingRoot(t *testing.T) {
	srv, _ := setupServer(t)
	postChat(t, srv, `{"user_id":"u1","lat":0,"lng":0,"destination":"Cafe"}`)

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var stats models.CacheStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Backend != "memory" || stats.Entries == 0 || len(stats.Namespaces) != 4 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("unexpected ping response: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Travel assistant is running") {
		t.Errorf("unexpected root response: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestRequestIDPropagates(t *testing.T) {
	srv, _ := setupServer(t)
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("expected request id req-42, got %s", got)
	}
}

func TestChatWritesAuditLog(t *testing.T) {
	srv, _ := setupServer(t)
	l, err := audit.New(models.AuditConfig{
		Enabled: true,
		DBPath:  filepath.Join(t.TempDir(), "audit.db"),
	}, nil)
	if err != nil {
		t.Fatalf("audit.New: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	srv.auditor = l

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"user_id":"u1","lat":0,"lng":0,"query":"eta?","destination":"Market St"}`))
	req.Header.Set("X-Request-ID", "req-audit-1")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	srv.audits.Wait()

	entries, err := l.Query(context.Background(), models.AuditQueryOpts{RequestID: "req-audit-1"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(entries))
	}
	e := entries[0]
	if e.UserHash != audit.HashUserID("u1") {
		t.Errorf("expected hashed user id, got %s", e.UserHash)
	}
	if e.Outcome != "refetch" || e.Reason != reuse.ReasonNoSession {
		t.Errorf("unexpected decision: %s/%s", e.Outcome, e.Reason)
	}
	if e.SnapshotID == "" || e.StatusCode != http.StatusOK {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e.Query != "" {
		t.Errorf("query text should be dropped by default, got %q", e.Query)
	}
}
