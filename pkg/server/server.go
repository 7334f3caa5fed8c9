// Package server exposes the travel assistant over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/waypoint-ai/waypoint/pkg/audit"
	"github.com/waypoint-ai/waypoint/pkg/cache"
	"github.com/waypoint-ai/waypoint/pkg/config"
	"github.com/waypoint-ai/waypoint/pkg/geo"
	"github.com/waypoint-ai/waypoint/pkg/llm"
	"github.com/waypoint-ai/waypoint/pkg/models"
	"github.com/waypoint-ai/waypoint/pkg/reuse"
)

const maxBodyBytes = 1 << 20

// Server is the Waypoint HTTP API.
type Server struct {
	cfg       *config.Config
	engine    *reuse.Engine
	store     *cache.Store
	responder llm.Responder
	auditor   *audit.Logger
	mux       *http.ServeMux
	audits    sync.WaitGroup
}

// New creates a Server wired with all dependencies. The audit logger may be
// nil.
func New(cfg *config.Config, e *reuse.Engine, store *cache.Store, r llm.Responder, a *audit.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		engine:    e,
		store:     store,
		responder: r,
		auditor:   a,
		mux:       http.NewServeMux(),
	}
	s.mux.HandleFunc("/api/chat", s.handleChat)
	s.mux.HandleFunc("/api/route-info", s.handleRouteInfo)
	s.mux.HandleFunc("/api/snapshots/{id...}", s.handleSnapshot)
	s.mux.HandleFunc("/api/stats", s.handleStats)
	s.mux.HandleFunc("/ping", s.handlePing)
	s.mux.HandleFunc("/", s.handleRoot)
	return s
}

// ServeHTTP implements http.Handler. Every request gets an X-Request-ID
// and one access log line.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := r.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = uuid.NewString()
		r.Header.Set("X-Request-ID", reqID)
	}
	w.Header().Set("X-Request-ID", reqID)

	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)

	slog.Info("request",
		"request_id", reqID,
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("waypoint listening", "addr", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutCtx)
		s.audits.Wait()
		return err
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req models.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeJSONError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeJSONError(w, http.StatusBadRequest, "lat and lng are required")
		return
	}

	start := time.Now()
	res, err := s.engine.Turn(r.Context(), reuse.TurnRequest{
		UserID:      req.UserID,
		Location:    models.Location{Lat: *req.Lat, Lng: *req.Lng},
		Query:       req.Query,
		Destination: req.Destination,
	})
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	answer, err := s.responder.GenerateResponse(r.Context(), res.Snapshot, req.Query)
	if err != nil {
		slog.Error("generate response", "request_id", r.Header.Get("X-Request-ID"), "error", err)
		writeJSONError(w, http.StatusBadGateway, "failed to generate response")
		s.recordTurn(r, req, res, http.StatusBadGateway, start)
		return
	}

	if res.Source() == "cache" {
		w.Header().Set("X-Waypoint-Cache", "hit")
	} else {
		w.Header().Set("X-Waypoint-Cache", "miss")
	}
	writeJSON(w, http.StatusOK, models.ChatResponse{
		SnapshotID: res.Snapshot.ID,
		Source:     res.Source(),
		Decision:   res.Decision.Reason,
		Answer:     answer,
		Snapshot:   res.Snapshot,
	})
	s.recordTurn(r, req, res, http.StatusOK, start)
}

// recordTurn writes the turn's decision to the audit log in the background.
func (s *Server) recordTurn(r *http.Request, req models.ChatRequest, res reuse.TurnResult, status int, start time.Time) {
	if s.auditor == nil {
		return
	}
	entry := models.AuditEntry{
		RequestID:  r.Header.Get("X-Request-ID"),
		UserHash:   audit.HashUserID(req.UserID),
		Outcome:    string(res.Decision.Outcome),
		Reason:     res.Decision.Reason,
		Query:      req.Query,
		StatusCode: status,
		LatencyMs:  time.Since(start).Milliseconds(),
	}
	if res.Snapshot != nil {
		entry.SnapshotID = res.Snapshot.ID
	}
	s.audits.Add(1)
	go func() {
		defer s.audits.Done()
		if err := s.auditor.Log(context.Background(), entry); err != nil {
			slog.Warn("audit log", "request_id", entry.RequestID, "error", err)
		}
	}()
}

func (s *Server) handleRouteInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("origin_lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("origin_lng"), 64)
	if errLat != nil || errLng != nil {
		writeJSONError(w, http.StatusBadRequest, "origin_lat and origin_lng must be numbers")
		return
	}

	snap, source, err := s.engine.RouteInfo(r.Context(), models.Location{Lat: lat, Lng: lng}, q.Get("destination"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.RouteInfoResponse{Source: source, Snapshot: snap})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	snap, ok := s.engine.Snapshot(r.Context(), r.PathValue("id"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "snapshot not found or expired")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		slog.Error("cache stats", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "cache stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Travel assistant is running"})
}

// writeEngineError maps reuse engine errors to HTTP statuses.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, geo.ErrInvalidCoordinate):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, reuse.ErrNoDestination):
		writeJSONError(w, http.StatusBadRequest, "destination is required")
	case errors.Is(err, reuse.ErrUpstream):
		slog.Warn("upstream failure", "request_id", r.Header.Get("X-Request-ID"), "error", err)
		writeJSONError(w, http.StatusBadGateway, "route or weather provider unavailable")
	default:
		slog.Error("chat turn failed", "request_id", r.Header.Get("X-Request-ID"), "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":"waypoint_error","code":%d}}`, message, code)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
