package api

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"github.com/alphafox02/WarDragonAnalytics/internal/apperr"
	"github.com/alphafox02/WarDragonAnalytics/internal/csvutil"
	"github.com/alphafox02/WarDragonAnalytics/internal/models"
	"github.com/alphafox02/WarDragonAnalytics/internal/store"
)

const defaultTrackLimit = 1000

// handleDrones implements GET /api/drones: the track query surface.
func (s *Server) handleDrones(w http.ResponseWriter, r *http.Request) {
	q, err := s.trackQueryFromRequest(r, defaultTrackLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	tracks, err := s.reader.FetchTracks(r.Context(), q)
	if err != nil {
		writeError(w, apperr.Transient("fetch tracks", err))
		return
	}

	dedupe, err := parseBool(r, "deduplicate", false)
	if err != nil {
		writeError(w, err)
		return
	}
	if dedupe {
		tracks = store.DeduplicateByDrone(tracks)
	}

	if tracks == nil {
		tracks = []models.Track{}
	}
	writeJSON(w, http.StatusOK, tracks)
}

// handleDroneTrack implements GET /api/drones/{id}/track: a single
// drone's polyline, time-ascending for direct map rendering.
func (s *Server) handleDroneTrack(w http.ResponseWriter, r *http.Request) {
	droneID := mux.Vars(r)["id"]

	q, err := s.trackQueryFromRequest(r, defaultTrackLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	q.DroneID = droneID

	tracks, err := s.reader.FetchTracks(r.Context(), q)
	if err != nil {
		writeError(w, apperr.Transient("fetch track", err))
		return
	}

	sort.Slice(tracks, func(i, j int) bool { return tracks[i].Time.Before(tracks[j].Time) })

	if tracks == nil {
		tracks = []models.Track{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"drone_id": droneID,
		"points":   tracks,
	})
}

// handleSignals implements GET /api/signals.
func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	q, err := s.signalQueryFromRequest(r, defaultTrackLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	signals, err := s.reader.FetchSignals(r.Context(), q)
	if err != nil {
		writeError(w, apperr.Transient("fetch signals", err))
		return
	}

	if signals == nil {
		signals = []models.Signal{}
	}
	writeJSON(w, http.StatusOK, signals)
}

// handleExportCSV implements GET /api/export/csv: the same track query
// surface as /api/drones, streamed as CSV with a bare header on zero
// rows (spec §7).
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	q, err := s.trackQueryFromRequest(r, maxLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	tracks, err := s.reader.FetchTracks(r.Context(), q)
	if err != nil {
		writeError(w, apperr.Transient("fetch tracks for export", err))
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="tracks-%s.csv"`, r.URL.Query().Get("time_range")))
	w.WriteHeader(http.StatusOK)

	if err := csvutil.WriteTracks(w, tracks); err != nil && s.log != nil {
		s.log.Warn().Err(err).Msg("api: csv export write failed mid-stream")
	}
}
