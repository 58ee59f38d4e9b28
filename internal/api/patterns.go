package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/alphafox02/WarDragonAnalytics/internal/apperr"
	"github.com/alphafox02/WarDragonAnalytics/internal/geo"
	"github.com/alphafox02/WarDragonAnalytics/internal/models"
	"github.com/alphafox02/WarDragonAnalytics/internal/patterns"
)

// patternResponse is the stable envelope every pattern kind returns
// (spec §4.5): a result count, the resolved parameters (defaults
// included) the query actually ran with, and the typed result list.
// Clients can always read .count/.parameters regardless of kind.
type patternResponse struct {
	Count      int         `json:"count"`
	Parameters interface{} `json:"parameters"`
	Results    interface{} `json:"results"`
}

func writePattern(w http.ResponseWriter, params interface{}, count int, results interface{}) {
	writeJSON(w, http.StatusOK, patternResponse{Count: count, Parameters: params, Results: results})
}

// handlePattern implements GET /api/patterns/{kind} for every pattern
// query in spec §4.5: each kind runs the shared track query, then the
// matching pure function in internal/patterns.
func (s *Server) handlePattern(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]

	q, err := s.trackQueryFromRequest(r, maxLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	tracks, err := s.reader.FetchTracks(r.Context(), q)
	if err != nil {
		writeError(w, apperr.Transient("fetch tracks for pattern query", err))
		return
	}

	switch kind {
	case "repeated-drones":
		minAppearances, perr := parseInt(r, "min_appearances", s.defaults.MinAppearances)
		if perr != nil {
			writeError(w, perr)
			return
		}
		results := patterns.RepeatedContacts(tracks, minAppearances)
		writePattern(w, map[string]interface{}{"min_appearances": minAppearances}, len(results), results)

	case "coordinated":
		distanceM, perr := parseFloat(r, "distance_m", s.defaults.CoordinatedDistanceM)
		if perr != nil {
			writeError(w, perr)
			return
		}
		windowMin, perr := parseInt(r, "window_minutes", s.defaults.CoordinatedWindowMin)
		if perr != nil {
			writeError(w, perr)
			return
		}
		results := patterns.CoordinatedActivity(tracks, distanceM, windowMin)
		writePattern(w, map[string]interface{}{"distance_m": distanceM, "window_minutes": windowMin}, len(results), results)

	case "pilot-reuse":
		thresholdM, perr := parseFloat(r, "pilot_threshold_m", s.defaults.PilotThresholdM)
		if perr != nil {
			writeError(w, perr)
			return
		}
		results := patterns.PilotReuse(tracks, thresholdM)
		writePattern(w, map[string]interface{}{"pilot_threshold_m": thresholdM}, len(results), results)

	case "anomalies":
		results := patterns.Anomalies(tracks)
		writePattern(w, map[string]interface{}{}, len(results), results)

	case "multi-kit":
		results := patterns.MultiKitCorrelation(tracks)
		writePattern(w, map[string]interface{}{}, len(results), results)

	case "loitering":
		s.handleLoitering(w, r, tracks)

	case "rapid-descent":
		minDescentM, perr := parseFloat(r, "min_descent_m", s.defaults.RapidDescentMinM)
		if perr != nil {
			writeError(w, perr)
			return
		}
		minRate, perr := parseFloat(r, "min_descent_rate_m_s", s.defaults.RapidDescentMinRateMps)
		if perr != nil {
			writeError(w, perr)
			return
		}
		results := patterns.RapidDescent(tracks, minDescentM, minRate)
		writePattern(w, map[string]interface{}{"min_descent_m": minDescentM, "min_descent_rate_m_s": minRate}, len(results), results)

	case "night-activity":
		startHour, perr := parseInt(r, "night_start_hour", s.defaults.NightStartHour)
		if perr != nil {
			writeError(w, perr)
			return
		}
		endHour, perr := parseInt(r, "night_end_hour", s.defaults.NightEndHour)
		if perr != nil {
			writeError(w, perr)
			return
		}
		results := patterns.NightActivity(tracks, startHour, endHour, s.defaults.Location)
		writePattern(w, map[string]interface{}{"night_start_hour": startHour, "night_end_hour": endHour}, len(results), results)

	case "security-alerts":
		startHour, perr := parseInt(r, "night_start_hour", s.defaults.NightStartHour)
		if perr != nil {
			writeError(w, perr)
			return
		}
		endHour, perr := parseInt(r, "night_end_hour", s.defaults.NightEndHour)
		if perr != nil {
			writeError(w, perr)
			return
		}
		results := patterns.SecurityAlerts(tracks, time.Now(), startHour, endHour, s.defaults.Location)
		writePattern(w, map[string]interface{}{"night_start_hour": startHour, "night_end_hour": endHour}, len(results), results)

	default:
		writeError(w, apperr.User("unknown pattern kind: "+kind))
	}
}

// handleLoitering needs a centre point that the other pattern kinds
// don't: lat/lon are required query params (no fixed protected-site
// notion exists elsewhere in this system).
func (s *Server) handleLoitering(w http.ResponseWriter, r *http.Request, tracks []models.Track) {
	lat, err := parseFloat(r, "lat", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	lon, err := parseFloat(r, "lon", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	if r.URL.Query().Get("lat") == "" || r.URL.Query().Get("lon") == "" {
		writeError(w, apperr.User("lat and lon are required for the loitering query"))
		return
	}

	radiusM, err := parseFloat(r, "radius_m", s.defaults.LoiterRadiusM)
	if err != nil {
		writeError(w, err)
		return
	}
	minDurationMin, err := parseFloat(r, "min_duration_min", s.defaults.LoiterMinDurationMin)
	if err != nil {
		writeError(w, err)
		return
	}

	centre := geo.Point{Lat: lat, Lon: lon}
	results := patterns.Loitering(tracks, centre, radiusM, minDurationMin)
	writePattern(w, map[string]interface{}{
		"lat":              lat,
		"lon":              lon,
		"radius_m":         radiusM,
		"min_duration_min": minDurationMin,
	}, len(results), results)
}
