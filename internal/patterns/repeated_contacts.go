package patterns

import (
	"sort"
	"time"

	"github.com/alphafox02/WarDragonAnalytics/internal/models"
)

// RepeatedContact is one row of spec §4.5.1's result list, a drone seen
// often enough to flag recurring surveillance of the same site.
type RepeatedContact struct {
	DroneID         string    `json:"drone_id"`
	AppearanceCount int       `json:"appearance_count"`
	DistinctKits    int       `json:"distinct_kits"`
	LastSeen        time.Time `json:"last_seen"`
}

// RepeatedContacts groups tracks by drone_id within the window already
// selected by the caller, keeping drones with at least minAppearances
// observations. Ties break by appearance count desc, then last-seen desc.
func RepeatedContacts(tracks []models.Track, minAppearances int) []RepeatedContact {
	if minAppearances <= 0 {
		minAppearances = 2
	}

	type acc struct {
		count    int
		kits     map[string]struct{}
		lastSeen time.Time
	}
	byDrone := make(map[string]*acc)

	for _, t := range tracks {
		a, ok := byDrone[t.DroneID]
		if !ok {
			a = &acc{kits: make(map[string]struct{})}
			byDrone[t.DroneID] = a
		}
		a.count++
		a.kits[t.KitID] = struct{}{}
		if t.Time.After(a.lastSeen) {
			a.lastSeen = t.Time
		}
	}

	out := make([]RepeatedContact, 0, len(byDrone))
	for droneID, a := range byDrone {
		if a.count < minAppearances {
			continue
		}
		out = append(out, RepeatedContact{
			DroneID:         droneID,
			AppearanceCount: a.count,
			DistinctKits:    len(a.kits),
			LastSeen:        a.lastSeen,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].AppearanceCount != out[j].AppearanceCount {
			return out[i].AppearanceCount > out[j].AppearanceCount
		}
		return out[i].LastSeen.After(out[j].LastSeen)
	})

	return out
}
