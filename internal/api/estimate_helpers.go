package api

import (
	"context"

	"github.com/alphafox02/WarDragonAnalytics/internal/estimator"
	"github.com/alphafox02/WarDragonAnalytics/internal/geo"
	"github.com/alphafox02/WarDragonAnalytics/internal/models"
	"github.com/alphafox02/WarDragonAnalytics/internal/store"
)

// latestHealthPositionByKit fetches health samples in the window and
// keeps each kit's most recent fix with a non-zero position.
func latestHealthPositionByKit(ctx context.Context, reader Reader, kitIDs []string, tr store.TimeRange) (map[string]geo.Point, error) {
	samples, err := reader.FetchHealthInWindow(ctx, kitIDs, tr)
	if err != nil {
		return nil, err
	}

	out := make(map[string]geo.Point)
	latest := make(map[string]models.Health)
	for _, h := range samples {
		if h.Lat == nil || h.Lon == nil {
			continue
		}
		if *h.Lat == 0 && *h.Lon == 0 {
			continue
		}
		if prev, ok := latest[h.KitID]; !ok || h.Time.After(prev.Time) {
			latest[h.KitID] = h
		}
	}
	for kitID, h := range latest {
		out[kitID] = geo.Point{Lat: *h.Lat, Lon: *h.Lon}
	}
	return out, nil
}

// buildObservations pairs each kit's most recent RSSI reading of the
// drone with that kit's own position, dropping kits without a health fix
// in the window (spec §4.5.8 item 1).
func buildObservations(tracks []models.Track, healthByKit map[string]geo.Point) []estimator.Observation {
	latestRSSI := make(map[string]models.Track)
	for _, t := range tracks {
		if t.RSSI == nil {
			continue
		}
		if prev, ok := latestRSSI[t.KitID]; !ok || t.Time.After(prev.Time) {
			latestRSSI[t.KitID] = t
		}
	}

	var out []estimator.Observation
	for kitID, t := range latestRSSI {
		pos, ok := healthByKit[kitID]
		if !ok {
			continue
		}
		out = append(out, estimator.Observation{
			KitID: kitID,
			Lat:   pos.Lat,
			Lon:   pos.Lon,
			RSSI:  float64(*t.RSSI),
		})
	}
	return out
}

// mostRecentPosition returns the drone's own most recently reported
// non-zero position in the window, or nil if it never reported one.
func mostRecentPosition(tracks []models.Track) *geo.Point {
	var best *models.Track
	for i := range tracks {
		t := &tracks[i]
		if t.Lat == nil || t.Lon == nil {
			continue
		}
		if *t.Lat == 0 && *t.Lon == 0 {
			continue
		}
		if best == nil || t.Time.After(best.Time) {
			best = t
		}
	}
	if best == nil {
		return nil
	}
	return &geo.Point{Lat: *best.Lat, Lon: *best.Lon}
}
