// Package patterns implements the parameterised pattern-detection
// queries of spec §4.5: repeated contacts, coordinated activity, pilot
// reuse, anomalies, multi-kit correlation, and the security-pattern
// library (loitering, rapid descent, night activity, consolidated
// alerts). Every function here is a pure transform over already-fetched
// track/signal slices — the Reader supplies the time-windowed rows, so
// these stay unit-testable without a database.
package patterns

import (
	"sort"

	"github.com/alphafox02/WarDragonAnalytics/internal/geo"
	"github.com/alphafox02/WarDragonAnalytics/internal/models"
)

func groupByDrone(tracks []models.Track) map[string][]models.Track {
	out := make(map[string][]models.Track)
	for _, t := range tracks {
		out[t.DroneID] = append(out[t.DroneID], t)
	}
	return out
}

// sortByTimeAsc returns a new slice of a drone's tracks ordered oldest
// first, the order consecutive-sample analyses (anomalies, rapid
// descent, loitering) depend on.
func sortByTimeAsc(tracks []models.Track) []models.Track {
	out := append([]models.Track(nil), tracks...)
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

func mostRecentPerDrone(tracks []models.Track) map[string]models.Track {
	latest := make(map[string]models.Track)
	for _, t := range tracks {
		cur, ok := latest[t.DroneID]
		if !ok || t.Time.After(cur.Time) {
			latest[t.DroneID] = t
		}
	}
	return latest
}

func point(lat, lon *float64) (geo.Point, bool) {
	if lat == nil || lon == nil {
		return geo.Point{}, false
	}
	return geo.Point{Lat: *lat, Lon: *lon}, true
}
