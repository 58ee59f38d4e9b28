package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alphafox02/WarDragonAnalytics/internal/apperr"
	"github.com/alphafox02/WarDragonAnalytics/internal/store"
)

const maxLimit = 10000

// parseTimeRange decodes the common time_range query param (spec §6),
// defaulting to the last hour when absent and clamping to the server's
// configured maximum query range.
func (s *Server) parseTimeRange(r *http.Request) (store.TimeRange, error) {
	tr, err := store.ParseTimeRange(r.URL.Query().Get("time_range"), time.Now())
	if err != nil {
		return store.TimeRange{}, apperr.User(err.Error())
	}
	return store.ClampToMaxRange(tr, s.maxQueryRangeHours), nil
}

// parseKitIDs splits the comma-list kit_id query param.
func parseKitIDs(r *http.Request) []string {
	raw := strings.TrimSpace(r.URL.Query().Get("kit_id"))
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseLimit decodes the limit query param, defaulting to def; a value
// outside [1, maxLimit] is rejected with a User error.
func parseLimit(r *http.Request, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return def, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, apperr.User("limit must be a positive integer")
	}
	if n > maxLimit {
		return 0, apperr.User("limit must not exceed 10000")
	}
	return n, nil
}

// parseBool decodes a boolean query param, defaulting to def on absence
// and rejecting anything unparsable as a precise field-level 4xx.
func parseBool(r *http.Request, name string, def bool) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperr.User(name + " must be a boolean")
	}
	return v, nil
}

// parseFloat decodes a float query param, defaulting to def on absence.
func parseFloat(r *http.Request, name string, def float64) (float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperr.User(name + " must be a number")
	}
	return v, nil
}

// parseInt decodes an integer query param, defaulting to def on absence.
func parseInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.User(name + " must be an integer")
	}
	return v, nil
}

// trackQueryFromRequest builds a store.TrackQuery from the common
// params documented in spec §6.
func (s *Server) trackQueryFromRequest(r *http.Request, defaultLimit int) (store.TrackQuery, error) {
	tr, err := s.parseTimeRange(r)
	if err != nil {
		return store.TrackQuery{}, err
	}

	limit, err := parseLimit(r, defaultLimit)
	if err != nil {
		return store.TrackQuery{}, err
	}

	q := r.URL.Query()
	trackType := q.Get("track_type")
	if trackType != "" && trackType != "drone" && trackType != "aircraft" {
		return store.TrackQuery{}, apperr.User("track_type must be drone or aircraft")
	}

	return store.TrackQuery{
		Range:        tr,
		KitIDs:       parseKitIDs(r),
		Manufacturer: q.Get("rid_make"),
		TrackType:    trackType,
		DroneID:      q.Get("drone_id"),
		Limit:        limit,
	}, nil
}

func (s *Server) signalQueryFromRequest(r *http.Request, defaultLimit int) (store.SignalQuery, error) {
	tr, err := s.parseTimeRange(r)
	if err != nil {
		return store.SignalQuery{}, err
	}

	limit, err := parseLimit(r, defaultLimit)
	if err != nil {
		return store.SignalQuery{}, err
	}

	return store.SignalQuery{
		Range:  tr,
		KitIDs: parseKitIDs(r),
		Limit:  limit,
	}, nil
}
