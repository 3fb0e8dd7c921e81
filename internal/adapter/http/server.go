// Package http exposes the dashboard's operational and state endpoints:
// health, readiness, metrics, read access to the current state, and the
// selection mutations a frontend drives.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ai-labc/cropai/internal/domain"
	"github.com/ai-labc/cropai/internal/maplayer"
	"github.com/ai-labc/cropai/internal/state"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Controller is the slice of the orchestrator the HTTP surface drives.
type Controller interface {
	SelectFarm(ctx context.Context, farmID string) error
	SelectCrop(ctx context.Context, cropID string) error
	SearchLocation(ctx context.Context, lat, lng float64) error
	SetDateRange(ctx context.Context, r domain.DateRange) error
}

// OverlayActivator switches map overlays and renders their cells.
type OverlayActivator interface {
	Activate(ctx context.Context, overlay state.Overlay) error
	Cells() []maplayer.RenderedCell
}

// Server exposes the dashboard HTTP API.
type Server struct {
	httpServer *http.Server
	store      *state.Store
	controller Controller
	overlays   OverlayActivator
	logger     *slog.Logger
}

// NewServer creates an HTTP server with health, metrics, and state routes.
func NewServer(addr string, ready ReadinessChecker, store *state.Store, controller Controller, overlays OverlayActivator, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		store:      store,
		controller: controller,
		overlays:   overlays,
		logger:     logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /state/selection", s.handleSelection)
	mux.HandleFunc("GET /state/boundaries", s.handleBoundaries)
	mux.HandleFunc("GET /state/overlay", s.handleOverlay)
	mux.HandleFunc("GET /state/kpi", s.handleKPI)

	mux.HandleFunc("POST /state/farm", s.handleSelectFarm)
	mux.HandleFunc("POST /state/crop", s.handleSelectCrop)
	mux.HandleFunc("POST /state/search", s.handleSearch)
	mux.HandleFunc("POST /state/daterange", s.handleDateRange)
	mux.HandleFunc("POST /state/overlay", s.handleActivateOverlay)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

type selectionResponse struct {
	Farm         *domain.Farm     `json:"farm,omitempty"`
	Crop         *domain.Crop     `json:"crop,omitempty"`
	DateRange    domain.DateRange `json:"dateRange"`
	SearchStatus string           `json:"searchStatus"`
	Loading      bool             `json:"loading"`
	Error        string           `json:"error,omitempty"`
}

func (s *Server) handleSelection(w http.ResponseWriter, _ *http.Request) {
	snap := s.store.Snapshot()
	resp := selectionResponse{
		Farm:         snap.Selection.Farm,
		Crop:         snap.Selection.Crop,
		DateRange:    snap.Selection.DateRange,
		SearchStatus: snap.Selection.SearchStatus,
		Loading:      snap.Loading,
	}
	if snap.Error != nil {
		resp.Error = snap.Error.Message
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBoundaries(w http.ResponseWriter, _ *http.Request) {
	boundaries := s.store.Boundaries()
	if boundaries == nil {
		boundaries = []domain.FieldBoundary{}
	}
	writeJSON(w, http.StatusOK, boundaries)
}

func (s *Server) handleKPI(w http.ResponseWriter, _ *http.Request) {
	kpi := s.store.Snapshot().KPI
	if kpi == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no kpi summary loaded"})
		return
	}
	writeJSON(w, http.StatusOK, kpi)
}

type overlayResponse struct {
	Overlay state.Overlay           `json:"overlay"`
	Cells   []maplayer.RenderedCell `json:"cells"`
}

func (s *Server) handleOverlay(w http.ResponseWriter, _ *http.Request) {
	cells := s.overlays.Cells()
	if cells == nil {
		cells = []maplayer.RenderedCell{}
	}
	writeJSON(w, http.StatusOK, overlayResponse{Overlay: s.store.Overlay(), Cells: cells})
}

func (s *Server) handleSelectFarm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FarmID string `json:"farmId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.applyMutation(w, s.controller.SelectFarm(r.Context(), req.FarmID))
}

func (s *Server) handleSelectCrop(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CropID string `json:"cropId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.applyMutation(w, s.controller.SelectCrop(r.Context(), req.CropID))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.controller.SearchLocation(r.Context(), req.Lat, req.Lng); err != nil {
		s.applyMutation(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"searchStatus": s.store.Snapshot().Selection.SearchStatus,
	})
}

func (s *Server) handleDateRange(w http.ResponseWriter, r *http.Request) {
	var req domain.DateRange
	if !decodeBody(w, r, &req) {
		return
	}
	s.applyMutation(w, s.controller.SetDateRange(r.Context(), req))
}

func (s *Server) handleActivateOverlay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Overlay state.Overlay `json:"overlay"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.applyMutation(w, s.overlays.Activate(r.Context(), req.Overlay))
}

// applyMutation maps a controller error onto the HTTP surface: validation
// failures are the caller's fault, everything else is upstream trouble.
func (s *Server) applyMutation(w http.ResponseWriter, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	status := http.StatusBadGateway
	var re *domain.RequestError
	if errors.As(err, &re) && re.Kind == domain.ErrValidation {
		status = http.StatusBadRequest
	}
	s.logger.Warn("state mutation failed", "error", err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
