package store

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"

	"github.com/alphafox02/WarDragonAnalytics/internal/models"
)

const insertTrackSQL = `
INSERT INTO tracks (
	time, kit_id, drone_id, track_type, lat, lon, alt,
	speed, heading, vspeed, height, direction,
	operator_id, caa_id, make, model, rid_source,
	pilot_lat, pilot_lon, home_lat, home_lon,
	mac, rssi, freq
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,
	$8,$9,$10,$11,$12,
	$13,$14,$15,$16,$17,
	$18,$19,$20,$21,
	$22,$23,$24
) ON CONFLICT (time, kit_id, drone_id) DO NOTHING`

func (w *Writer) insertTracks(ctx context.Context, records []models.Track) (models.IngestOutcome, error) {
	var outcome models.IngestOutcome

	batch := &pgx.Batch{}
	var order []int

	for i, t := range records {
		if t.KitID == "" || t.DroneID == "" || t.Time.IsZero() {
			outcome.RecordReject(fmt.Sprintf("track[%d]: missing kit_id/drone_id/time", i))
			continue
		}

		var ridSource *string
		if t.RIDSource != nil {
			s := string(*t.RIDSource)
			ridSource = &s
		}

		batch.Queue(insertTrackSQL,
			t.Time, t.KitID, t.DroneID, string(t.TrackType), t.Lat, t.Lon, t.Alt,
			t.Speed, t.Heading, t.VSpeed, t.Height, t.Direction,
			t.OperatorID, t.CAAID, t.Make, t.Model, ridSource,
			t.PilotLat, t.PilotLon, t.HomeLat, t.HomeLon,
			t.MAC, t.RSSI, t.Freq,
		)
		order = append(order, i)
	}

	if len(order) == 0 {
		return outcome, nil
	}

	// A transient error aborts the in-flight attempt; retry reruns the
	// whole batch against a scratch outcome so a prior attempt's tallies
	// (already durably applied or not) are never double-counted.
	err := w.withRetry(ctx, func() error {
		attempt := outcome
		if err := w.execBatch(ctx, batch, len(order), &attempt, order); err != nil {
			return err
		}
		outcome = attempt
		return nil
	})

	return outcome, err
}

// execBatch sends a batch and tallies Inserted/Conflicted/Rejected from
// each statement's command tag. A permanent per-row error rejects that
// row and continues; a transient error aborts the whole batch so the
// caller's withRetry wrapper can retry it.
func (w *Writer) execBatch(ctx context.Context, batch *pgx.Batch, n int, outcome *models.IngestOutcome, order []int) error {
	br := w.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < n; i++ {
		tag, err := br.Exec()
		if err == nil {
			if tag.RowsAffected() > 0 {
				outcome.Inserted++
			} else {
				outcome.Conflicted++
			}
			continue
		}

		if isPermanentDataError(err) {
			outcome.RecordReject(fmt.Sprintf("row %d: %v", order[i], err))
			continue
		}

		return fmt.Errorf("store: batch exec: %w", err)
	}

	return nil
}

const insertSignalSQL = `
INSERT INTO signals (
	time, kit_id, freq_mhz, power_dbm, bandwidth_mhz, lat, lon,
	detection_type, stage, pal_confidence, ntsc_confidence
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,
	$8,$9,$10,$11
) ON CONFLICT (time, kit_id, freq_mhz) DO NOTHING`

func (w *Writer) insertSignals(ctx context.Context, records []models.Signal) (models.IngestOutcome, error) {
	var outcome models.IngestOutcome

	batch := &pgx.Batch{}
	var order []int

	for i, s := range records {
		if s.KitID == "" || s.Time.IsZero() || math.IsNaN(s.FreqMHz) {
			outcome.RecordReject(fmt.Sprintf("signal[%d]: missing kit_id/time or invalid freq", i))
			continue
		}

		batch.Queue(insertSignalSQL,
			s.Time, s.KitID, s.FreqMHz, s.PowerDBm, s.BandwidthMHz, s.Lat, s.Lon,
			string(s.DetectionType), string(s.Stage), s.PALConfidence, s.NTSCConfidence,
		)
		order = append(order, i)
	}

	if len(order) == 0 {
		return outcome, nil
	}

	err := w.withRetry(ctx, func() error {
		attempt := outcome
		if err := w.execBatch(ctx, batch, len(order), &attempt, order); err != nil {
			return err
		}
		outcome = attempt
		return nil
	})

	return outcome, err
}

const insertHealthSQL = `
INSERT INTO health (
	time, kit_id, lat, lon, cpu_percent, mem_percent, disk_percent, uptime_hours,
	temp_cpu, temp_gpu, temp_sdr, gps_speed, gps_track, gps_fix
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,
	$9,$10,$11,$12,$13,$14
) ON CONFLICT (time, kit_id) DO NOTHING`

func (w *Writer) insertHealth(ctx context.Context, records []models.Health) (models.IngestOutcome, error) {
	var outcome models.IngestOutcome

	batch := &pgx.Batch{}
	var order []int

	for i, h := range records {
		if h.KitID == "" || h.Time.IsZero() {
			outcome.RecordReject(fmt.Sprintf("health[%d]: missing kit_id/time", i))
			continue
		}

		batch.Queue(insertHealthSQL,
			h.Time, h.KitID, h.Lat, h.Lon, h.CPUPercent, h.MemPercent, h.DiskPercent, h.UptimeHours,
			h.TempCPU, h.TempGPU, h.TempSDR, h.GPSSpeed, h.GPSTrack, h.GPSFix,
		)
		order = append(order, i)
	}

	if len(order) == 0 {
		return outcome, nil
	}

	err := w.withRetry(ctx, func() error {
		attempt := outcome
		if err := w.execBatch(ctx, batch, len(order), &attempt, order); err != nil {
			return err
		}
		outcome = attempt
		return nil
	})

	return outcome, err
}
