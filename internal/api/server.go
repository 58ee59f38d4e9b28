// Package api implements the read/admin HTTP API (spec §6): one handler
// function per route wired to a shared *Server over a gorilla/mux router
// built once in NewServer, middleware layered with router.Use,
// writeJSON/writeError response helpers, and apperr-based status mapping.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/alphafox02/WarDragonAnalytics/internal/apperr"
	"github.com/alphafox02/WarDragonAnalytics/internal/estimator"
	"github.com/alphafox02/WarDragonAnalytics/internal/logger"
	"github.com/alphafox02/WarDragonAnalytics/internal/models"
	"github.com/alphafox02/WarDragonAnalytics/internal/registry"
	"github.com/alphafox02/WarDragonAnalytics/internal/store"
)

// Reader is the read-only subset of store.Reader the API depends on,
// narrowed for testability against fakes.
type Reader interface {
	FetchTracks(ctx context.Context, q store.TrackQuery) ([]models.Track, error)
	FetchSignals(ctx context.Context, q store.SignalQuery) ([]models.Signal, error)
	FetchHealthInWindow(ctx context.Context, kitIDs []string, tr store.TimeRange) ([]models.Health, error)
	ListKits(ctx context.Context) ([]models.Kit, error)
	GetKit(ctx context.Context, kitID string) (models.Kit, error)
}

// KitAdmin is the subset of *registry.Registry the admin routes need.
type KitAdmin interface {
	CreateKit(ctx context.Context, k models.Kit) error
	UpdateKit(ctx context.Context, patch models.KitUpsert) error
	DeleteKit(ctx context.Context, kitID string, cascade bool) error
	TestConnection(ctx context.Context, baseURL string) registry.TestResult
}

// Pinger reports store reachability for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PatternDefaults configures the parameterised pattern/estimator queries
// where spec §6 leaves request-tunable values unspecified per call.
type PatternDefaults struct {
	MinAppearances          int
	CoordinatedDistanceM    float64
	CoordinatedWindowMin    int
	PilotThresholdM         float64
	LoiterRadiusM           float64
	LoiterMinDurationMin    float64
	RapidDescentMinM        float64
	RapidDescentMinRateMps  float64
	NightStartHour          int
	NightEndHour            int
	Location                *time.Location
	EstimatorParams         estimator.Params
	EstimatorTimeWindow     time.Duration
}

// DefaultPatternDefaults matches the thresholds documented inline in
// spec §4.5.1-§4.5.8.
func DefaultPatternDefaults() PatternDefaults {
	return PatternDefaults{
		MinAppearances:         2,
		CoordinatedDistanceM:   500,
		CoordinatedWindowMin:   60,
		PilotThresholdM:        50,
		LoiterRadiusM:          500,
		LoiterMinDurationMin:   10,
		RapidDescentMinM:       50,
		RapidDescentMinRateMps: 5,
		NightStartHour:         22,
		NightEndHour:           5,
		Location:               time.UTC,
		EstimatorParams:        estimator.DefaultParams(),
		EstimatorTimeWindow:    30 * time.Second,
	}
}

// Server owns the router and the dependencies every handler closes over.
type Server struct {
	reader   Reader
	admin    KitAdmin
	pinger   Pinger
	log      logger.Logger
	defaults PatternDefaults

	maxQueryRangeHours int

	router *mux.Router
}

// NewServer builds a Server with routes registered, ready for
// http.ListenAndServe. maxQueryRangeHours caps every time_range window;
// a non-positive value disables the cap.
func NewServer(reader Reader, admin KitAdmin, pinger Pinger, log logger.Logger, defaults PatternDefaults, maxQueryRangeHours int) *Server {
	s := &Server{
		reader:             reader,
		admin:              admin,
		pinger:             pinger,
		log:                log,
		defaults:           defaults,
		maxQueryRangeHours: maxQueryRangeHours,
		router:             mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// Router returns the underlying mux.Router, e.g. for http.Server.Handler.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(loggingMiddleware(s.log))

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	s.router.HandleFunc("/api/kits", s.handleListKits).Methods(http.MethodGet)
	s.router.HandleFunc("/api/drones", s.handleDrones).Methods(http.MethodGet)
	s.router.HandleFunc("/api/drones/{id}/track", s.handleDroneTrack).Methods(http.MethodGet)
	s.router.HandleFunc("/api/signals", s.handleSignals).Methods(http.MethodGet)
	s.router.HandleFunc("/api/export/csv", s.handleExportCSV).Methods(http.MethodGet)

	s.router.HandleFunc("/api/admin/kits", s.handleCreateKit).Methods(http.MethodPost)
	s.router.HandleFunc("/api/admin/kits/{id}", s.handleUpdateKit).Methods(http.MethodPut)
	s.router.HandleFunc("/api/admin/kits/{id}", s.handleDeleteKit).Methods(http.MethodDelete)
	s.router.HandleFunc("/api/admin/kits/test", s.handleTestKit).Methods(http.MethodPost)
	s.router.HandleFunc("/api/admin/kits/reload-status", s.handleReloadStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/api/admin/kits/{id}/test", s.handleTestExistingKit).Methods(http.MethodPost)

	s.router.HandleFunc("/api/patterns/{kind}", s.handlePattern).Methods(http.MethodGet)
	s.router.HandleFunc("/api/analysis/estimate-location/{drone_id}", s.handleEstimateLocation).Methods(http.MethodGet)
}

func loggingMiddleware(log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			if log != nil {
				log.Debug().Str("method", r.Method).Str("path", r.URL.Path).
					Dur("elapsed", time.Since(start)).Msg("api: request")
			}
		})
	}
}

// handleHealth implements spec §6's "200 healthy, 503 store unavailable".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.pinger != nil {
		if err := s.pinger.Ping(ctx); err != nil {
			writeError(w, apperr.Transient("store unreachable", err))
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// writeJSON encodes data as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError renders err as spec §7's stable {"detail": "..."} envelope,
// classifying via apperr when possible and defaulting to 500 otherwise.
func writeError(w http.ResponseWriter, err error) {
	if appErr, ok := apperr.As(err); ok {
		// admin actions surface the underlying cause verbatim (spec §7);
		// query-layer user/not-found errors have no wrapped cause to leak.
		writeJSON(w, appErr.Status(), map[string]string{"detail": appErr.Error()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
}
