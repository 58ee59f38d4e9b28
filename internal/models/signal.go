package models

import "time"

// DetectionType distinguishes analog FPV video detections from DJI
// OcuSync/Lightbridge protocol detections.
type DetectionType string

const (
	DetectionAnalog DetectionType = "analog"
	DetectionDJI    DetectionType = "dji"
)

// DetectionStage is the pipeline stage that produced a Signal: a cheap
// wideband guard scan, or an expensive narrowband confirm pass.
type DetectionStage string

const (
	StageGuard   DetectionStage = "guard"
	StageConfirm DetectionStage = "confirm"
)

// Signal is an RF emission detected by one kit. Composite key:
// (Time, KitID, FreqMHz).
type Signal struct {
	Time         time.Time      `json:"time"`
	KitID        string         `json:"kit_id"`
	FreqMHz      float64        `json:"freq_mhz"`
	PowerDBm     float64        `json:"power_dbm"`
	BandwidthMHz *float64       `json:"bandwidth_mhz,omitempty"`

	Lat *float64 `json:"lat,omitempty"`
	Lon *float64 `json:"lon,omitempty"`

	DetectionType DetectionType  `json:"detection_type"`
	Stage         DetectionStage `json:"stage"`

	PALConfidence  *float64 `json:"pal_confidence,omitempty"`
	NTSCConfidence *float64 `json:"ntsc_confidence,omitempty"`
}

// Health is a kit telemetry sample. Composite key: (Time, KitID).
type Health struct {
	Time  time.Time `json:"time"`
	KitID string    `json:"kit_id"`

	Lat *float64 `json:"lat,omitempty"`
	Lon *float64 `json:"lon,omitempty"`

	CPUPercent  *float64 `json:"cpu_percent,omitempty"`
	MemPercent  *float64 `json:"memory_percent,omitempty"`
	DiskPercent *float64 `json:"disk_percent,omitempty"`
	UptimeHours *float64 `json:"uptime_hours,omitempty"`

	TempCPU *float64 `json:"temperature_cpu,omitempty"`
	TempGPU *float64 `json:"temperature_gpu,omitempty"`
	TempSDR *float64 `json:"temperature_sdr,omitempty"`

	GPSSpeed *float64 `json:"gps_speed_m_s,omitempty"`
	GPSTrack *float64 `json:"gps_track_deg,omitempty"`
	GPSFix   *bool    `json:"gps_fix,omitempty"`
}
