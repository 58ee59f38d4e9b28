package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/alphafox02/WarDragonAnalytics/internal/models"
)

func unixToTime(v *float64, fallback time.Time) time.Time {
	if v == nil || *v == 0 {
		return fallback
	}
	sec := int64(*v)
	nsec := int64((*v - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}

// preferInternal implements spec §4.3 "the subscriber prefers the
// internal form when present, else maps": drones publish both naming
// conventions, and the bus-native name only applies when the internal
// one is absent.
func preferInternal(internal, busNative *float64) *float64 {
	if internal != nil {
		return internal
	}
	return busNative
}

func ridSourcePtr(s *string) *models.RIDSource {
	if s == nil || *s == "" {
		return nil
	}
	rs := models.RIDSource(*s)
	return &rs
}

type busDroneMessage struct {
	DroneID    string   `json:"drone_id"`
	TrackType  string   `json:"track_type"`
	SeenBy     string   `json:"seen_by"`
	KitID      string   `json:"kit_id"`
	Time       *float64 `json:"time"`
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
	Alt        *float64 `json:"alt"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	HAE        *float64 `json:"hae"`
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

func (m busDroneMessage) kitID() string {
	if m.SeenBy != "" {
		return m.SeenBy
	}
	return m.KitID
}

func (s *Subscriber) handleDrones(ctx context.Context, data []byte, now time.Time) {
	var msg busDroneMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.dropMessage(SubjectDrones, "invalid json")
		return
	}

	kitID := msg.kitID()
	if kitID == "" || msg.DroneID == "" {
		s.dropMessage(SubjectDrones, "missing kit_id/seen_by or drone_id")
		return
	}

	ts := unixToTime(msg.Time, now)

	track := models.Track{
		Time:       ts,
		KitID:      kitID,
		DroneID:    msg.DroneID,
		TrackType:  trackTypeOrDefault(msg.TrackType),
		Lat:        preferInternal(msg.Lat, msg.Latitude),
		Lon:        preferInternal(msg.Lon, msg.Longitude),
		Alt:        preferInternal(msg.Alt, msg.HAE),
		Speed:      msg.Speed,
		Heading:    msg.Heading,
		VSpeed:     msg.VSpeed,
		Height:     msg.Height,
		Direction:  msg.Direction,
		PilotLat:   msg.PilotLat,
		PilotLon:   msg.PilotLon,
		HomeLat:    msg.HomeLat,
		HomeLon:    msg.HomeLon,
		OperatorID: msg.OperatorID,
		CAAID:      msg.CAAID,
		Make:       msg.Make,
		Model:      msg.Model,
		RIDSource:  ridSourcePtr(msg.RIDSource),
		MAC:        msg.MAC,
		RSSI:       msg.RSSI,
		Freq:       msg.Freq,
	}

	if _, err := s.writer.InsertTracks(ctx, []models.Track{track}); err != nil && s.log != nil {
		s.log.Warn().Err(err).Str("kit_id", kitID).Msg("bus: insert track failed")
	}
	s.ensureKit(ctx, kitID, ts)
}

func trackTypeOrDefault(raw string) models.TrackType {
	if raw == "" {
		return models.TrackTypeDrone
	}
	return models.TrackType(raw)
}

func (s *Subscriber) handleAircraft(ctx context.Context, data []byte, now time.Time) {
	var msg busDroneMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.dropMessage(SubjectAircraft, "invalid json")
		return
	}
	msg.TrackType = string(models.TrackTypeAircraft)
	s.handleAircraftOrDroneShaped(ctx, msg, now)
}

func (s *Subscriber) handleAircraftOrDroneShaped(ctx context.Context, msg busDroneMessage, now time.Time) {
	kitID := msg.kitID()
	if kitID == "" || msg.DroneID == "" {
		s.dropMessage(SubjectAircraft, "missing kit_id/seen_by or drone_id")
		return
	}

	ts := unixToTime(msg.Time, now)
	track := models.Track{
		Time:      ts,
		KitID:     kitID,
		DroneID:   msg.DroneID,
		TrackType: models.TrackTypeAircraft,
		Lat:       preferInternal(msg.Lat, msg.Latitude),
		Lon:       preferInternal(msg.Lon, msg.Longitude),
		Alt:       preferInternal(msg.Alt, msg.HAE),
		Speed:     msg.Speed,
		Heading:   msg.Heading,
	}

	if _, err := s.writer.InsertTracks(ctx, []models.Track{track}); err != nil && s.log != nil {
		s.log.Warn().Err(err).Str("kit_id", kitID).Msg("bus: insert aircraft track failed")
	}
	s.ensureKit(ctx, kitID, ts)
}

type busSignalMessage struct {
	SeenBy         string   `json:"seen_by"`
	KitID          string   `json:"kit_id"`
	Time           *float64 `json:"time"`
	FreqMHz        float64  `json:"freq_mhz"`
	PowerDBm       float64  `json:"power_dbm"`
	BandwidthMHz   *float64 `json:"bandwidth_mhz"`
	Lat            *float64 `json:"lat"`
	Lon            *float64 `json:"lon"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	DetectionType  string   `json:"detection_type"`
	Stage          string   `json:"stage"`
	PALConfidence  *float64 `json:"pal_confidence"`
	NTSCConfidence *float64 `json:"ntsc_confidence"`
}

func (m busSignalMessage) kitID() string {
	if m.SeenBy != "" {
		return m.SeenBy
	}
	return m.KitID
}

func (s *Subscriber) handleSignals(ctx context.Context, data []byte, now time.Time) {
	var msg busSignalMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.dropMessage(SubjectSignals, "invalid json")
		return
	}

	kitID := msg.kitID()
	if kitID == "" || msg.FreqMHz == 0 {
		s.dropMessage(SubjectSignals, "missing kit_id/seen_by or freq_mhz")
		return
	}

	ts := unixToTime(msg.Time, now)
	signal := models.Signal{
		Time:           ts,
		KitID:          kitID,
		FreqMHz:        msg.FreqMHz,
		PowerDBm:       msg.PowerDBm,
		BandwidthMHz:   msg.BandwidthMHz,
		Lat:            preferInternal(msg.Lat, msg.Latitude),
		Lon:            preferInternal(msg.Lon, msg.Longitude),
		DetectionType:  models.DetectionType(msg.DetectionType),
		Stage:          models.DetectionStage(msg.Stage),
		PALConfidence:  msg.PALConfidence,
		NTSCConfidence: msg.NTSCConfidence,
	}

	if _, err := s.writer.InsertSignals(ctx, []models.Signal{signal}); err != nil && s.log != nil {
		s.log.Warn().Err(err).Str("kit_id", kitID).Msg("bus: insert signal failed")
	}
	s.ensureKit(ctx, kitID, ts)
}

type busHealthMessage struct {
	SeenBy        string   `json:"seen_by"`
	KitID         string   `json:"kit_id"`
	Time          *float64 `json:"time"`
	CPUUsage      *float64 `json:"cpu_usage"`
	MemTotalMB    *float64 `json:"memory_total_mb"`
	MemAvailMB    *float64 `json:"memory_available_mb"`
	DiskTotalMB   *float64 `json:"disk_total_mb"`
	DiskUsedMB    *float64 `json:"disk_used_mb"`
	UptimeS       *float64 `json:"uptime_s"`
	Temperature   *float64 `json:"temperature"`
	Lat           *float64 `json:"lat"`
	Lon           *float64 `json:"lon"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	GPSSpeed      *float64 `json:"gps_speed_m_s"`
	GPSTrack      *float64 `json:"gps_track_deg"`
	GPSFix        *bool    `json:"gps_fix"`
}

func (m busHealthMessage) kitID() string {
	if m.SeenBy != "" {
		return m.SeenBy
	}
	return m.KitID
}

// memoryPercent implements the remap table's memory_total_mb/
// memory_available_mb → memory_percent transform.
func memoryPercent(totalMB, availMB *float64) *float64 {
	if totalMB == nil || availMB == nil || *totalMB == 0 {
		return nil
	}
	pct := (*totalMB - *availMB) / *totalMB * 100
	return &pct
}

// diskPercent implements the remap table's disk_total_mb/disk_used_mb →
// disk_percent transform.
func diskPercent(totalMB, usedMB *float64) *float64 {
	if totalMB == nil || usedMB == nil || *totalMB == 0 {
		return nil
	}
	pct := *usedMB / *totalMB * 100
	return &pct
}

// uptimeHours implements the remap table's uptime_s → uptime_hours
// transform.
func uptimeHours(uptimeS *float64) *float64 {
	if uptimeS == nil {
		return nil
	}
	hrs := *uptimeS / 3600
	return &hrs
}

func (s *Subscriber) handleSystemHealth(ctx context.Context, data []byte, now time.Time) {
	var msg busHealthMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.dropMessage(SubjectSystemHealth, "invalid json")
		return
	}

	kitID := msg.kitID()
	if kitID == "" {
		s.dropMessage(SubjectSystemHealth, "missing kit_id/seen_by")
		return
	}

	ts := unixToTime(msg.Time, now)
	health := models.Health{
		Time:        ts,
		KitID:       kitID,
		Lat:         preferInternal(msg.Lat, msg.Latitude),
		Lon:         preferInternal(msg.Lon, msg.Longitude),
		CPUPercent:  msg.CPUUsage,
		MemPercent:  memoryPercent(msg.MemTotalMB, msg.MemAvailMB),
		DiskPercent: diskPercent(msg.DiskTotalMB, msg.DiskUsedMB),
		UptimeHours: uptimeHours(msg.UptimeS),
		TempCPU:     msg.Temperature,
		GPSSpeed:    msg.GPSSpeed,
		GPSTrack:    msg.GPSTrack,
		GPSFix:      msg.GPSFix,
	}

	if _, err := s.writer.InsertHealth(ctx, []models.Health{health}); err != nil && s.log != nil {
		s.log.Warn().Err(err).Str("kit_id", kitID).Msg("bus: insert health failed")
	}
	s.ensureKit(ctx, kitID, ts)
}
