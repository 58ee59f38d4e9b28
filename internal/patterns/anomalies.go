package patterns

import (
	"time"

	"github.com/alphafox02/WarDragonAnalytics/internal/models"
)

// Anomaly is one flagged observation or transition, per spec §4.5.4.
// Value is in the anomaly's native unit: m/s for "speed", meters for
// "altitude" and "rapid_altitude_change".
type Anomaly struct {
	DroneID  string    `json:"drone_id"`
	Time     time.Time `json:"time"`
	Type     string    `json:"type"` // "speed", "altitude", "rapid_altitude_change"
	Severity string    `json:"severity"` // "medium", "high", "critical"
	Value    float64   `json:"value"`
}

// Anomalies scans every track row for speed/altitude thresholds, and
// every consecutive same-drone pair for an altitude swing of more than
// 50m within a 10-second window (a possible payload drop).
func Anomalies(tracks []models.Track) []Anomaly {
	out := make([]Anomaly, 0)

	for _, t := range tracks {
		if t.Speed != nil {
			if sev, ok := speedSeverity(*t.Speed); ok {
				out = append(out, Anomaly{DroneID: t.DroneID, Time: t.Time, Type: "speed", Severity: sev, Value: *t.Speed})
			}
		}
		if t.TrackType == models.TrackTypeDrone && t.Alt != nil {
			if sev, ok := altitudeSeverity(*t.Alt); ok {
				out = append(out, Anomaly{DroneID: t.DroneID, Time: t.Time, Type: "altitude", Severity: sev, Value: *t.Alt})
			}
		}
	}

	byDrone := groupByDrone(tracks)
	for droneID, drone := range byDrone {
		ordered := sortByTimeAsc(drone)
		for i := 1; i < len(ordered); i++ {
			prev, cur := ordered[i-1], ordered[i]
			if prev.Alt == nil || cur.Alt == nil {
				continue
			}
			dt := cur.Time.Sub(prev.Time).Seconds()
			if dt <= 0 || dt > 10 {
				continue
			}
			change := *cur.Alt - *prev.Alt
			if sev, ok := rapidChangeSeverity(change); ok {
				out = append(out, Anomaly{DroneID: droneID, Time: cur.Time, Type: "rapid_altitude_change", Severity: sev, Value: change})
			}
		}
	}

	return out
}

func speedSeverity(speed float64) (string, bool) {
	switch {
	case speed > 50:
		return "critical", true
	case speed > 40:
		return "high", true
	case speed > 30:
		return "medium", true
	default:
		return "", false
	}
}

func altitudeSeverity(alt float64) (string, bool) {
	switch {
	case alt > 500:
		return "critical", true
	case alt > 450:
		return "high", true
	case alt > 400:
		return "medium", true
	default:
		return "", false
	}
}

// rapidChangeSeverity buckets a same-drone altitude jump (within the
// 10-second window checked by the caller) by its absolute magnitude in
// meters, flagging a possible payload drop.
func rapidChangeSeverity(altChangeM float64) (string, bool) {
	change := altChangeM
	if change < 0 {
		change = -change
	}
	switch {
	case change > 100:
		return "critical", true
	case change > 75:
		return "high", true
	case change > 50:
		return "medium", true
	default:
		return "", false
	}
}
