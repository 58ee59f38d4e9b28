package collector

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alphafox02/WarDragonAnalytics/internal/models"
)

// rawDronesResponse mirrors a kit's /api/drones payload. Kits report
// positions using their own native field names; the bus uses a
// different remap table (spec §4.3) but the HTTP collector talks
// straight to the kit's own schema.
type rawDronesResponse struct {
	Drones []rawDrone `json:"drones"`
}

type rawDrone struct {
	DroneID    string   `json:"drone_id"`
	TrackType  string   `json:"track_type"`
	Time       *float64 `json:"time"`
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
	Alt        *float64 `json:"alt_m"`
	Speed      *float64 `json:"speed_m_s"`
	Heading    *float64 `json:"heading_deg"`
	VSpeed     *float64 `json:"vspeed_m_s"`
	Height     *float64 `json:"height_m"`
	Direction  *float64 `json:"direction_deg"`
	PilotLat   *float64 `json:"pilot_lat"`
	PilotLon   *float64 `json:"pilot_lon"`
	HomeLat    *float64 `json:"home_lat"`
	HomeLon    *float64 `json:"home_lon"`
	OperatorID *string  `json:"operator_id"`
	CAAID      *string  `json:"caa_id"`
	Make       *string  `json:"make"`
	Model      *string  `json:"model"`
	RIDSource  *string  `json:"rid_source"`
	MAC        *string  `json:"mac"`
	RSSI       *int     `json:"rssi"`
	Freq       *float64 `json:"freq_mhz"`
}

type rawSignalsResponse struct {
	Signals []rawSignal `json:"signals"`
}

type rawSignal struct {
	Time           *float64 `json:"time"`
	FreqMHz        float64  `json:"freq_mhz"`
	PowerDBm       float64  `json:"power_dbm"`
	BandwidthMHz   *float64 `json:"bandwidth_mhz"`
	Lat            *float64 `json:"lat"`
	Lon            *float64 `json:"lon"`
	DetectionType  string   `json:"detection_type"`
	Stage          string   `json:"stage"`
	PALConfidence  *float64 `json:"pal_confidence"`
	NTSCConfidence *float64 `json:"ntsc_confidence"`
}

type rawStatus struct {
	Time        *float64 `json:"time"`
	CPUPercent  *float64 `json:"cpu_percent"`
	MemPercent  *float64 `json:"mem_percent"`
	DiskPercent *float64 `json:"disk_percent"`
	UptimeHours *float64 `json:"uptime_hours"`
	TempCPU     *float64 `json:"temp_cpu_c"`
	TempGPU     *float64 `json:"temp_gpu_c"`
	TempSDR     *float64 `json:"temp_sdr_c"`
	GPSSpeed    *float64 `json:"gps_speed_m_s"`
	GPSTrack    *float64 `json:"gps_track_deg"`
	GPSFix      *bool    `json:"gps_fix"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
}

func unixToTime(v *float64, fallback time.Time) time.Time {
	if v == nil || *v == 0 {
		return fallback
	}
	sec := int64(*v)
	nsec := int64((*v - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}

func ridSourcePtr(s *string) *models.RIDSource {
	if s == nil || *s == "" {
		return nil
	}
	rs := models.RIDSource(*s)
	return &rs
}

// parseDrones converts a kit's /drones payload into Track rows, tagged
// with kitID.
func parseDrones(body []byte, kitID string, now time.Time) ([]models.Track, error) {
	var resp rawDronesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("collector: decode drones: %w", err)
	}

	out := make([]models.Track, 0, len(resp.Drones))
	for _, d := range resp.Drones {
		if d.DroneID == "" {
			continue // malformed row, skip without aborting the batch
		}

		t := models.Track{
			Time:       unixToTime(d.Time, now),
			KitID:      kitID,
			DroneID:    d.DroneID,
			TrackType:  models.TrackType(d.TrackType),
			Lat:        d.Lat,
			Lon:        d.Lon,
			Alt:        d.Alt,
			Speed:      d.Speed,
			Heading:    d.Heading,
			VSpeed:     d.VSpeed,
			Height:     d.Height,
			Direction:  d.Direction,
			PilotLat:   d.PilotLat,
			PilotLon:   d.PilotLon,
			HomeLat:    d.HomeLat,
			HomeLon:    d.HomeLon,
			OperatorID: d.OperatorID,
			CAAID:      d.CAAID,
			Make:       d.Make,
			Model:      d.Model,
			RIDSource:  ridSourcePtr(d.RIDSource),
			MAC:        d.MAC,
			RSSI:       d.RSSI,
			Freq:       d.Freq,
		}
		if t.TrackType == "" {
			t.TrackType = models.TrackTypeDrone
		}
		out = append(out, t)
	}
	return out, nil
}

// parseSignals converts a kit's /signals payload into Signal rows.
func parseSignals(body []byte, kitID string, now time.Time) ([]models.Signal, error) {
	var resp rawSignalsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("collector: decode signals: %w", err)
	}

	out := make([]models.Signal, 0, len(resp.Signals))
	for _, s := range resp.Signals {
		if s.FreqMHz == 0 {
			continue
		}
		out = append(out, models.Signal{
			Time:           unixToTime(s.Time, now),
			KitID:          kitID,
			FreqMHz:        s.FreqMHz,
			PowerDBm:       s.PowerDBm,
			BandwidthMHz:   s.BandwidthMHz,
			Lat:            s.Lat,
			Lon:            s.Lon,
			DetectionType:  models.DetectionType(s.DetectionType),
			Stage:          models.DetectionStage(s.Stage),
			PALConfidence:  s.PALConfidence,
			NTSCConfidence: s.NTSCConfidence,
		})
	}
	return out, nil
}

// parseStatus converts a kit's /status payload into a single Health row.
func parseStatus(body []byte, kitID string, now time.Time) (models.Health, error) {
	var s rawStatus
	if err := json.Unmarshal(body, &s); err != nil {
		return models.Health{}, fmt.Errorf("collector: decode status: %w", err)
	}

	return models.Health{
		Time:        unixToTime(s.Time, now),
		KitID:       kitID,
		Lat:         s.Lat,
		Lon:         s.Lon,
		CPUPercent:  s.CPUPercent,
		MemPercent:  s.MemPercent,
		DiskPercent: s.DiskPercent,
		UptimeHours: s.UptimeHours,
		TempCPU:     s.TempCPU,
		TempGPU:     s.TempGPU,
		TempSDR:     s.TempSDR,
		GPSSpeed:    s.GPSSpeed,
		GPSTrack:    s.GPSTrack,
		GPSFix:      s.GPSFix,
	}, nil
}
