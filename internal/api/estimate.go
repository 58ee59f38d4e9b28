package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/alphafox02/WarDragonAnalytics/internal/apperr"
	"github.com/alphafox02/WarDragonAnalytics/internal/estimator"
	"github.com/alphafox02/WarDragonAnalytics/internal/geo"
	"github.com/alphafox02/WarDragonAnalytics/internal/models"
	"github.com/alphafox02/WarDragonAnalytics/internal/store"
)

// handleEstimateLocation implements GET
// /api/analysis/estimate-location/{drone_id} (spec §4.5.8): collect
// RSSI observations within ±time_window_seconds of timestamp (default
// now), pair each with its kit's own position from the health sample in
// the same window, and run the estimator.
func (s *Server) handleEstimateLocation(w http.ResponseWriter, r *http.Request) {
	droneID := mux.Vars(r)["drone_id"]

	ts := time.Now().UTC()
	if raw := r.URL.Query().Get("timestamp"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, apperr.User("timestamp must be RFC3339"))
			return
		}
		ts = parsed
	}

	windowSeconds, err := parseFloat(r, "time_window_seconds", s.defaults.EstimatorTimeWindow.Seconds())
	if err != nil {
		writeError(w, err)
		return
	}
	window := time.Duration(windowSeconds * float64(time.Second))

	params := s.defaults.EstimatorParams
	if txPower, perr := parseFloat(r, "tx_power_dbm", params.TxPowerDBm); perr == nil {
		params.TxPowerDBm = txPower
	}
	if n, perr := parseFloat(r, "path_loss_exponent", params.PathLossExponent); perr == nil && n > 0 {
		params.PathLossExponent = n
	}

	tr := store.TimeRange{Start: ts.Add(-window), End: ts.Add(window)}

	tracks, err := s.reader.FetchTracks(r.Context(), store.TrackQuery{
		Range:   tr,
		DroneID: droneID,
	})
	if err != nil {
		writeError(w, apperr.Transient("fetch tracks for estimate", err))
		return
	}

	kitIDs := distinctKitIDsWithRSSI(tracks)
	if len(kitIDs) == 0 {
		writeError(w, apperr.NotFound("no RSSI observations for drone "+droneID+" in the requested window"))
		return
	}

	healthByKit, err := latestHealthPositionByKit(r.Context(), s.reader, kitIDs, tr)
	if err != nil {
		writeError(w, apperr.Transient("fetch kit health for estimate", err))
		return
	}

	observations := buildObservations(tracks, healthByKit)
	if len(observations) == 0 {
		writeError(w, apperr.NotFound("no kit with a health fix observed drone "+droneID+" in the requested window"))
		return
	}

	var actual *geo.Point
	if p := mostRecentPosition(tracks); p != nil {
		actual = p
	}

	result, err := estimator.Estimate(observations, actual, params)
	if err != nil {
		writeError(w, apperr.NotFound(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func distinctKitIDsWithRSSI(tracks []models.Track) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range tracks {
		if t.RSSI == nil {
			continue
		}
		if _, ok := seen[t.KitID]; ok {
			continue
		}
		seen[t.KitID] = struct{}{}
		out = append(out, t.KitID)
	}
	return out
}
