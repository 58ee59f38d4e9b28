package patterns

import (
	"sort"
	"time"

	"github.com/alphafox02/WarDragonAnalytics/internal/geo"
	"github.com/alphafox02/WarDragonAnalytics/internal/models"
)

// CoordinatedGroup is one anchor drone and its paired neighbours, per
// spec §4.5.2. This is single-link clustering, not full transitive
// closure: a reported group is every drone within threshold of the
// anchor, not necessarily of each other.
type CoordinatedGroup struct {
	AnchorDroneID    string   `json:"anchor_drone_id"`
	DroneIDs         []string `json:"drone_ids"` // anchor plus neighbours
	DroneCount       int      `json:"drone_count"`
	PairCount        int      `json:"pair_count"`
	CorrelationScore string   `json:"correlation_score"`
}

// CoordinatedActivity implements spec §4.5.2: pairwise candidates on
// each drone's most recent position in the window, within distanceM and
// windowMinutes of each other.
func CoordinatedActivity(tracks []models.Track, distanceM float64, windowMinutes int) []CoordinatedGroup {
	if distanceM <= 0 {
		distanceM = 500
	}
	if windowMinutes <= 0 {
		windowMinutes = 60
	}
	window := time.Duration(windowMinutes) * time.Minute

	latest := mostRecentPerDrone(tracks)

	ids := make([]string, 0, len(latest))
	for id := range latest {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	neighbors := make(map[string][]string)
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := latest[ids[i]], latest[ids[j]]

			pa, okA := point(a.Lat, a.Lon)
			pb, okB := point(b.Lat, b.Lon)
			if !okA || !okB {
				continue
			}

			if geo.HaversineMeters(pa, pb) > distanceM {
				continue
			}
			if absDuration(a.Time.Sub(b.Time)) > window {
				continue
			}

			neighbors[ids[i]] = append(neighbors[ids[i]], ids[j])
			neighbors[ids[j]] = append(neighbors[ids[j]], ids[i])
		}
	}

	out := make([]CoordinatedGroup, 0, len(neighbors))
	for _, anchor := range ids {
		n := neighbors[anchor]
		if len(n) == 0 {
			continue
		}
		sort.Strings(n)

		group := CoordinatedGroup{
			AnchorDroneID:    anchor,
			DroneIDs:         append([]string{anchor}, n...),
			DroneCount:       len(n) + 1,
			PairCount:        len(n),
			CorrelationScore: correlationScore(len(n)),
		}
		out = append(out, group)
	}

	return out
}

func correlationScore(pairCount int) string {
	switch {
	case pairCount >= 4:
		return "high"
	case pairCount >= 2:
		return "medium"
	default:
		return "low"
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
