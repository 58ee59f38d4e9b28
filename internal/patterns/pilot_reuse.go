package patterns

import (
	"sort"

	"github.com/alphafox02/WarDragonAnalytics/internal/geo"
	"github.com/alphafox02/WarDragonAnalytics/internal/models"
)

// PilotReuseGroup is a set of distinct drones attributed to one pilot,
// per spec §4.5.3.
type PilotReuseGroup struct {
	PilotKey string   `json:"pilot_key"` // operator_id, or a synthetic key for spatial clusters
	Method   string   `json:"method"`    // "operator_id" or "pilot_position"
	DroneIDs []string `json:"drone_ids"`
}

// PilotReuse unions two correlation methods: exact operator_id match,
// and spatial clustering on reported pilot position within
// pilotThresholdM (default 50 m).
func PilotReuse(tracks []models.Track, pilotThresholdM float64) []PilotReuseGroup {
	if pilotThresholdM <= 0 {
		pilotThresholdM = 50
	}

	out := append(pilotReuseByOperatorID(tracks), pilotReuseByPosition(tracks, pilotThresholdM)...)
	return out
}

func pilotReuseByOperatorID(tracks []models.Track) []PilotReuseGroup {
	byOperator := make(map[string]map[string]struct{})
	for _, t := range tracks {
		if t.OperatorID == nil || *t.OperatorID == "" {
			continue
		}
		if byOperator[*t.OperatorID] == nil {
			byOperator[*t.OperatorID] = make(map[string]struct{})
		}
		byOperator[*t.OperatorID][t.DroneID] = struct{}{}
	}

	out := make([]PilotReuseGroup, 0)
	for operatorID, drones := range byOperator {
		if len(drones) < 2 {
			continue
		}
		out = append(out, PilotReuseGroup{
			PilotKey: operatorID,
			Method:   "operator_id",
			DroneIDs: sortedKeys(drones),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].PilotKey < out[j].PilotKey })
	return out
}

// pilotReuseByPosition groups drones by the pilot lat/lon carried on
// each drone's most recent track in the window; a drone whose most
// recent track has no pilot position is left out.
func pilotReuseByPosition(tracks []models.Track, thresholdM float64) []PilotReuseGroup {
	latest := mostRecentPerDrone(tracks)

	type fix struct {
		droneID string
		p       geo.Point
	}
	fixes := make([]fix, 0, len(latest))
	for droneID, t := range latest {
		p, ok := point(t.PilotLat, t.PilotLon)
		if !ok {
			continue
		}
		fixes = append(fixes, fix{droneID: droneID, p: p})
	}
	sort.Slice(fixes, func(i, j int) bool { return fixes[i].droneID < fixes[j].droneID })

	visited := make(map[string]bool)
	out := make([]PilotReuseGroup, 0)

	for i := 0; i < len(fixes); i++ {
		if visited[fixes[i].droneID] {
			continue
		}
		cluster := []string{fixes[i].droneID}
		for j := i + 1; j < len(fixes); j++ {
			if visited[fixes[j].droneID] {
				continue
			}
			if geo.HaversineMeters(fixes[i].p, fixes[j].p) <= thresholdM {
				cluster = append(cluster, fixes[j].droneID)
				visited[fixes[j].droneID] = true
			}
		}
		if len(cluster) < 2 {
			continue
		}
		visited[fixes[i].droneID] = true

		out = append(out, PilotReuseGroup{
			PilotKey: "pilot@" + fixes[i].droneID,
			Method:   "pilot_position",
			DroneIDs: cluster,
		})
	}

	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
