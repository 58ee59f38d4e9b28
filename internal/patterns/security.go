package patterns

import (
	"time"

	"github.com/alphafox02/WarDragonAnalytics/internal/geo"
	"github.com/alphafox02/WarDragonAnalytics/internal/models"
)

// LoiteringEvent is one drone's extended presence near a centre point,
// per spec §4.5.6.
type LoiteringEvent struct {
	DroneID     string    `json:"drone_id"`
	DurationMin float64   `json:"duration_min"`
	ThreatLevel string    `json:"threat_level"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// Loitering finds drones whose positions stay within radiusM of centre
// for at least minDurationMin, tracked as a contiguous run across the
// time-ordered sample stream (a single exit resets the run).
func Loitering(tracks []models.Track, centre geo.Point, radiusM, minDurationMin float64) []LoiteringEvent {
	out := make([]LoiteringEvent, 0)

	for droneID, drone := range groupByDrone(tracks) {
		ordered := sortByTimeAsc(drone)

		var runStart, runEnd time.Time
		inRun := false

		flush := func() {
			if !inRun {
				return
			}
			duration := runEnd.Sub(runStart).Minutes()
			if duration >= minDurationMin {
				out = append(out, LoiteringEvent{
					DroneID:     droneID,
					DurationMin: duration,
					ThreatLevel: loiteringThreatLevel(duration),
					FirstSeen:   runStart,
					LastSeen:    runEnd,
				})
			}
			inRun = false
		}

		for _, t := range ordered {
			p, ok := point(t.Lat, t.Lon)
			inside := ok && geo.HaversineMeters(p, centre) <= radiusM

			if inside {
				if !inRun {
					runStart = t.Time
					inRun = true
				}
				runEnd = t.Time
			} else {
				flush()
			}
		}
		flush()
	}

	return out
}

func loiteringThreatLevel(durationMin float64) string {
	switch {
	case durationMin > 30:
		return "critical"
	case durationMin > 15:
		return "high"
	case durationMin > 10:
		return "medium"
	default:
		return "low"
	}
}

// RapidDescentEvent flags a consecutive-sample descent exceeding the
// configured rate, per spec §4.5.6.
type RapidDescentEvent struct {
	DroneID             string    `json:"drone_id"`
	Time                time.Time `json:"time"`
	DescentRateMps      float64   `json:"descent_rate_m_s"`
	PossiblePayloadDrop bool      `json:"possible_payload_drop"`
}

// RapidDescent scans consecutive same-drone samples for a descent of at
// least minDescentM at a rate of at least minDescentRateMps.
func RapidDescent(tracks []models.Track, minDescentM, minDescentRateMps float64) []RapidDescentEvent {
	if minDescentM <= 0 {
		minDescentM = 50
	}
	if minDescentRateMps <= 0 {
		minDescentRateMps = 5
	}

	out := make([]RapidDescentEvent, 0)

	for droneID, drone := range groupByDrone(tracks) {
		ordered := sortByTimeAsc(drone)
		for i := 1; i < len(ordered); i++ {
			prev, cur := ordered[i-1], ordered[i]
			if prev.Alt == nil || cur.Alt == nil {
				continue
			}
			dt := cur.Time.Sub(prev.Time).Seconds()
			if dt <= 0 {
				continue
			}
			descent := *prev.Alt - *cur.Alt
			if descent < minDescentM {
				continue
			}
			rate := descent / dt
			if rate < minDescentRateMps {
				continue
			}

			horizontalSpeed := 0.0
			if cur.Speed != nil {
				horizontalSpeed = *cur.Speed
			}

			out = append(out, RapidDescentEvent{
				DroneID:             droneID,
				Time:                cur.Time,
				DescentRateMps:      rate,
				PossiblePayloadDrop: rate > 8 && horizontalSpeed < 5,
			})
		}
	}

	return out
}

// NightActivityEvent aggregates a drone's observations falling within a
// configured nightly window, per spec §4.5.6.
type NightActivityEvent struct {
	DroneID        string `json:"drone_id"`
	DetectionCount int    `json:"detection_count"`
	RiskLevel      string `json:"risk_level"`
}

// NightActivity filters observations by local hour >= nightStart or <=
// nightEnd (wrapping past midnight) and aggregates per drone.
func NightActivity(tracks []models.Track, nightStartHour, nightEndHour int, loc *time.Location) []NightActivityEvent {
	if loc == nil {
		loc = time.UTC
	}

	counts := make(map[string]int)
	for _, t := range tracks {
		hour := t.Time.In(loc).Hour()
		if isNightHour(hour, nightStartHour, nightEndHour) {
			counts[t.DroneID]++
		}
	}

	out := make([]NightActivityEvent, 0, len(counts))
	for droneID, count := range counts {
		out = append(out, NightActivityEvent{
			DroneID:        droneID,
			DetectionCount: count,
			RiskLevel:      nightRiskLevel(count),
		})
	}
	return out
}

func isNightHour(hour, start, end int) bool {
	if start <= end {
		return hour >= start && hour <= end
	}
	// wraps past midnight, e.g. start=22 end=5
	return hour >= start || hour <= end
}

func nightRiskLevel(count int) string {
	switch {
	case count > 10:
		return "critical"
	case count > 5:
		return "high"
	case count > 2:
		return "medium"
	default:
		return "low"
	}
}

// SecurityAlert is one observation's consolidated weighted-sum finding,
// per spec §4.5.7.
type SecurityAlert struct {
	DroneID string    `json:"drone_id"`
	Time    time.Time `json:"time"`
	Score   int       `json:"score"`
	Level   string    `json:"level"`
	Reasons []string  `json:"reasons"`
}

// SecurityAlerts scores every track in the last 4h window against the
// rapid-descent/night/low-and-slow/high-speed weighted sum and maps the
// total to a level.
func SecurityAlerts(tracks []models.Track, now time.Time, nightStartHour, nightEndHour int, loc *time.Location) []SecurityAlert {
	cutoff := now.Add(-4 * time.Hour)
	var windowed []models.Track
	for _, t := range tracks {
		if !t.Time.Before(cutoff) {
			windowed = append(windowed, t)
		}
	}

	descentEvents := RapidDescent(windowed, 50, 5)
	descentAt := make(map[string]bool)
	for _, e := range descentEvents {
		descentAt[e.DroneID+"@"+e.Time.Format(time.RFC3339Nano)] = true
	}

	if loc == nil {
		loc = time.UTC
	}

	out := make([]SecurityAlert, 0)
	for _, t := range windowed {
		score := 0
		var reasons []string

		if descentAt[t.DroneID+"@"+t.Time.Format(time.RFC3339Nano)] {
			score += 3
			reasons = append(reasons, "rapid descent")
		}
		if isNightHour(t.Time.In(loc).Hour(), nightStartHour, nightEndHour) {
			score += 2
			reasons = append(reasons, "night activity")
		}
		if t.Alt != nil && *t.Alt < 50 && t.Speed != nil && *t.Speed > 0 && *t.Speed < 5 {
			score += 2
			reasons = append(reasons, "low and slow")
		}
		if t.Speed != nil && *t.Speed > 25 {
			score += 1
			reasons = append(reasons, "high speed")
		}

		if score == 0 {
			continue
		}

		out = append(out, SecurityAlert{
			DroneID: t.DroneID,
			Time:    t.Time,
			Score:   score,
			Level:   securityLevel(score),
			Reasons: reasons,
		})
	}

	return out
}

func securityLevel(score int) string {
	switch {
	case score >= 5:
		return "critical"
	case score >= 3:
		return "high"
	case score >= 1:
		return "medium"
	default:
		return "none"
	}
}
