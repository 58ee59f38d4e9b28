package patterns

import (
	"sort"
	"time"

	"github.com/alphafox02/WarDragonAnalytics/internal/models"
)

// KitObservation is one kit's contribution to a multi-kit correlation
// group, per spec §4.5.5.
type KitObservation struct {
	KitID   string    `json:"kit_id"`
	Lat     *float64  `json:"lat,omitempty"`
	Lon     *float64  `json:"lon,omitempty"`
	RSSI    *int      `json:"rssi,omitempty"`
	FreqMHz *float64  `json:"freq_mhz,omitempty"`
	Time    time.Time `json:"time"`
}

// MultiKitGroup is one drone's 1-minute observation bucket seen by two
// or more kits.
type MultiKitGroup struct {
	DroneID               string           `json:"drone_id"`
	Bucket                time.Time        `json:"bucket"`
	Observations          []KitObservation `json:"observations"`
	DistinctKits          int              `json:"distinct_kits"`
	TriangulationPossible bool             `json:"triangulation_possible"`
}

// MultiKitCorrelation implements spec §4.5.5: bucket into 1-minute
// slots, group by drone_id, keep groups observed by >= 2 distinct kits,
// observations ordered strongest-RSSI-first.
func MultiKitCorrelation(tracks []models.Track) []MultiKitGroup {
	type key struct {
		droneID string
		bucket  time.Time
	}
	groups := make(map[key][]models.Track)

	for _, t := range tracks {
		b := t.Time.Truncate(time.Minute)
		k := key{droneID: t.DroneID, bucket: b}
		groups[k] = append(groups[k], t)
	}

	out := make([]MultiKitGroup, 0)
	for k, rows := range groups {
		kits := make(map[string]struct{})
		for _, r := range rows {
			kits[r.KitID] = struct{}{}
		}
		if len(kits) < 2 {
			continue
		}

		obs := make([]KitObservation, 0, len(rows))
		for _, r := range rows {
			obs = append(obs, KitObservation{
				KitID:   r.KitID,
				Lat:     r.Lat,
				Lon:     r.Lon,
				RSSI:    r.RSSI,
				FreqMHz: r.Freq,
				Time:    r.Time,
			})
		}
		sort.Slice(obs, func(i, j int) bool {
			switch {
			case obs[i].RSSI == nil && obs[j].RSSI == nil:
				return false
			case obs[i].RSSI == nil:
				return false
			case obs[j].RSSI == nil:
				return true
			default:
				return *obs[i].RSSI > *obs[j].RSSI
			}
		})

		out = append(out, MultiKitGroup{
			DroneID:               k.droneID,
			Bucket:                k.bucket,
			Observations:          obs,
			DistinctKits:          len(kits),
			TriangulationPossible: len(kits) >= 3,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Bucket.Equal(out[j].Bucket) {
			return out[i].Bucket.Before(out[j].Bucket)
		}
		return out[i].DroneID < out[j].DroneID
	})

	return out
}
