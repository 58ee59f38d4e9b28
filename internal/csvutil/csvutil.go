// Package csvutil implements the CSV track export of spec §6
// ("GET /api/export/csv"): the rows of an already-fetched track slice
// are written one by one to the output, with a bare header line on zero
// rows.
package csvutil

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/alphafox02/WarDragonAnalytics/internal/models"
)

// TrackColumns is the explicit, stable column order of the export.
var TrackColumns = []string{
	"time", "kit_id", "drone_id", "track_type", "lat", "lon", "alt",
	"speed", "heading", "vspeed", "height", "direction",
	"operator_id", "caa_id", "make", "model", "rid_source",
	"pilot_lat", "pilot_lon", "home_lat", "home_lon",
	"mac", "rssi", "freq_mhz",
}

// WriteTracks streams tracks to w as CSV with TrackColumns as the header
// row. Called with zero tracks, it still writes the header line.
func WriteTracks(w io.Writer, tracks []models.Track) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(TrackColumns); err != nil {
		return err
	}

	for _, t := range tracks {
		if err := cw.Write(trackRow(t)); err != nil {
			return err
		}
	}

	return cw.Error()
}

func trackRow(t models.Track) []string {
	return []string{
		t.Time.Format(time.RFC3339),
		t.KitID,
		t.DroneID,
		string(t.TrackType),
		floatStr(t.Lat),
		floatStr(t.Lon),
		floatStr(t.Alt),
		floatStr(t.Speed),
		floatStr(t.Heading),
		floatStr(t.VSpeed),
		floatStr(t.Height),
		floatStr(t.Direction),
		strPtr(t.OperatorID),
		strPtr(t.CAAID),
		strPtr(t.Make),
		strPtr(t.Model),
		ridSourceStr(t.RIDSource),
		floatStr(t.PilotLat),
		floatStr(t.PilotLon),
		floatStr(t.HomeLat),
		floatStr(t.HomeLon),
		strPtr(t.MAC),
		intStr(t.RSSI),
		floatStr(t.Freq),
	}
}

func floatStr(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func intStr(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func strPtr(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func ridSourceStr(v *models.RIDSource) string {
	if v == nil {
		return ""
	}
	return string(*v)
}
