package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alphafox02/WarDragonAnalytics/internal/models"
)

// Reader is the read side of the time-series store, kept separate from
// Writer per spec §9's "thin repository interface" — pattern detection
// and the query API consume it, never the raw pool.
type Reader struct {
	pool *pgxpool.Pool
}

// NewReader wraps a pool for read-only queries.
func NewReader(pool *pgxpool.Pool) *Reader {
	return &Reader{pool: pool}
}

// TrackQuery is the common filter set across the track query, CSV
// export, and several pattern endpoints (spec §6 "common" params).
type TrackQuery struct {
	Range        TimeRange
	KitIDs       []string
	Manufacturer string
	TrackType    string
	DroneID      string
	Limit        int
}

var trackColumns = `time, kit_id, drone_id, track_type, lat, lon, alt,
	speed, heading, vspeed, height, direction,
	operator_id, caa_id, make, model, rid_source,
	pilot_lat, pilot_lon, home_lat, home_lon,
	mac, rssi, freq`

// FetchTracks returns tracks in time-descending order matching q.
func (r *Reader) FetchTracks(ctx context.Context, q TrackQuery) ([]models.Track, error) {
	sql := `SELECT ` + trackColumns + ` FROM tracks WHERE time >= $1 AND time < $2`
	args := []interface{}{q.Range.Start, q.Range.End}

	sql, args = appendTrackFilters(sql, args, q)

	sql += ` ORDER BY time DESC`
	if q.Limit > 0 {
		sql += fmt.Sprintf(` LIMIT %d`, q.Limit)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("store: fetch tracks: %w", err)
	}
	defer rows.Close()

	return scanTracks(rows)
}

func appendTrackFilters(sql string, args []interface{}, q TrackQuery) (string, []interface{}) {
	if len(q.KitIDs) > 0 {
		args = append(args, q.KitIDs)
		sql += fmt.Sprintf(` AND kit_id = ANY($%d)`, len(args))
	}
	if q.Manufacturer != "" {
		args = append(args, q.Manufacturer)
		sql += fmt.Sprintf(` AND make = $%d`, len(args))
	}
	if q.TrackType != "" {
		args = append(args, q.TrackType)
		sql += fmt.Sprintf(` AND track_type = $%d`, len(args))
	}
	if q.DroneID != "" {
		args = append(args, q.DroneID)
		sql += fmt.Sprintf(` AND drone_id = $%d`, len(args))
	}
	return sql, args
}

func scanTracks(rows pgx.Rows) ([]models.Track, error) {
	var out []models.Track

	for rows.Next() {
		var t models.Track
		var trackType, ridSource *string

		if err := rows.Scan(
			&t.Time, &t.KitID, &t.DroneID, &trackType, &t.Lat, &t.Lon, &t.Alt,
			&t.Speed, &t.Heading, &t.VSpeed, &t.Height, &t.Direction,
			&t.OperatorID, &t.CAAID, &t.Make, &t.Model, &ridSource,
			&t.PilotLat, &t.PilotLon, &t.HomeLat, &t.HomeLon,
			&t.MAC, &t.RSSI, &t.Freq,
		); err != nil {
			return nil, fmt.Errorf("store: scan track: %w", err)
		}

		if trackType != nil {
			t.TrackType = models.TrackType(*trackType)
		}
		if ridSource != nil {
			s := models.RIDSource(*ridSource)
			t.RIDSource = &s
		}

		out = append(out, t)
	}

	return out, rows.Err()
}

// DeduplicateByDrone keeps only the most recent row per drone_id (argmax
// time), per spec §8 property 10. Input is assumed time-descending.
func DeduplicateByDrone(tracks []models.Track) []models.Track {
	seen := make(map[string]struct{}, len(tracks))
	out := make([]models.Track, 0, len(tracks))

	for _, t := range tracks {
		if _, ok := seen[t.DroneID]; ok {
			continue
		}
		seen[t.DroneID] = struct{}{}
		out = append(out, t)
	}

	return out
}

// SignalQuery mirrors TrackQuery for the signals relation.
type SignalQuery struct {
	Range  TimeRange
	KitIDs []string
	Limit  int
}

var signalColumns = `time, kit_id, freq_mhz, power_dbm, bandwidth_mhz, lat, lon,
	detection_type, stage, pal_confidence, ntsc_confidence`

// FetchSignals returns signals in time-descending order matching q.
func (r *Reader) FetchSignals(ctx context.Context, q SignalQuery) ([]models.Signal, error) {
	sql := `SELECT ` + signalColumns + ` FROM signals WHERE time >= $1 AND time < $2`
	args := []interface{}{q.Range.Start, q.Range.End}

	if len(q.KitIDs) > 0 {
		args = append(args, q.KitIDs)
		sql += fmt.Sprintf(` AND kit_id = ANY($%d)`, len(args))
	}

	sql += ` ORDER BY time DESC`
	if q.Limit > 0 {
		sql += fmt.Sprintf(` LIMIT %d`, q.Limit)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("store: fetch signals: %w", err)
	}
	defer rows.Close()

	var out []models.Signal
	for rows.Next() {
		var s models.Signal
		var detectionType, stage string

		if err := rows.Scan(
			&s.Time, &s.KitID, &s.FreqMHz, &s.PowerDBm, &s.BandwidthMHz, &s.Lat, &s.Lon,
			&detectionType, &stage, &s.PALConfidence, &s.NTSCConfidence,
		); err != nil {
			return nil, fmt.Errorf("store: scan signal: %w", err)
		}

		s.DetectionType = models.DetectionType(detectionType)
		s.Stage = models.DetectionStage(stage)
		out = append(out, s)
	}

	return out, rows.Err()
}

// FetchHealthInWindow returns health samples for the given kits within
// [start,end), used by the RSSI estimator to recover observer positions.
func (r *Reader) FetchHealthInWindow(ctx context.Context, kitIDs []string, tr TimeRange) ([]models.Health, error) {
	sql := `SELECT time, kit_id, lat, lon FROM health WHERE time >= $1 AND time < $2 AND kit_id = ANY($3)`

	rows, err := r.pool.Query(ctx, sql, tr.Start, tr.End, kitIDs)
	if err != nil {
		return nil, fmt.Errorf("store: fetch health: %w", err)
	}
	defer rows.Close()

	var out []models.Health
	for rows.Next() {
		var h models.Health
		if err := rows.Scan(&h.Time, &h.KitID, &h.Lat, &h.Lon); err != nil {
			return nil, fmt.Errorf("store: scan health: %w", err)
		}
		out = append(out, h)
	}

	return out, rows.Err()
}

// ListKits returns every kit row, used by the registry and /api/kits.
func (r *Reader) ListKits(ctx context.Context) ([]models.Kit, error) {
	rows, err := r.pool.Query(ctx, `SELECT kit_id, name, location, api_url, source, enabled, status, last_seen, created_at, disabled_by_admin FROM kits`)
	if err != nil {
		return nil, fmt.Errorf("store: list kits: %w", err)
	}
	defer rows.Close()

	var out []models.Kit
	for rows.Next() {
		var k models.Kit
		var source, status string

		if err := rows.Scan(&k.KitID, &k.Name, &k.Location, &k.APIURL, &source, &k.Enabled, &status, &k.LastSeen, &k.CreatedAt, &k.DisabledByAdmin); err != nil {
			return nil, fmt.Errorf("store: scan kit: %w", err)
		}

		k.Source = models.Source(source)
		k.Status = models.Status(status)
		out = append(out, k)
	}

	return out, rows.Err()
}

// GetKit returns a single kit, or pgx.ErrNoRows if absent.
func (r *Reader) GetKit(ctx context.Context, kitID string) (models.Kit, error) {
	var k models.Kit
	var source, status string

	row := r.pool.QueryRow(ctx, `SELECT kit_id, name, location, api_url, source, enabled, status, last_seen, created_at, disabled_by_admin FROM kits WHERE kit_id = $1`, kitID)
	if err := row.Scan(&k.KitID, &k.Name, &k.Location, &k.APIURL, &source, &k.Enabled, &status, &k.LastSeen, &k.CreatedAt, &k.DisabledByAdmin); err != nil {
		return models.Kit{}, err
	}

	k.Source = models.Source(source)
	k.Status = models.Status(status)

	return k, nil
}

// DeleteKit removes a kit row. If cascade is true, its tracks/signals/health
// rows are removed first (spec §3 "hard-deleted only by admin, with
// optional cascade").
func (r *Reader) DeleteKit(ctx context.Context, kitID string, cascade bool) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: delete kit begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if cascade {
		for _, table := range []string{"tracks", "signals", "health"} {
			if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE kit_id = $1`, table), kitID); err != nil {
				return fmt.Errorf("store: cascade delete from %s: %w", table, err)
			}
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM kits WHERE kit_id = $1`, kitID); err != nil {
		return fmt.Errorf("store: delete kit: %w", err)
	}

	return tx.Commit(ctx)
}

// MarkDisabledByAdmin sets the sticky flag that config reconciliation
// must never clear (spec §4.4).
func (r *Reader) MarkDisabledByAdmin(ctx context.Context, kitID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE kits SET enabled = false, disabled_by_admin = true WHERE kit_id = $1`, kitID)
	return err
}

// UpdateKitStatus is used by the supervisor sweep to write the derived
// status rollup (spec §4.4).
func (r *Reader) UpdateKitStatus(ctx context.Context, kitID string, status models.Status) error {
	_, err := r.pool.Exec(ctx, `UPDATE kits SET status = $2 WHERE kit_id = $1`, kitID, string(status))
	return err
}

// CreateKitIfAbsent is used by admin POST /api/admin/kits: fails with
// ErrAlreadyExists if the kit_id is already registered.
func (r *Reader) CreateKitIfAbsent(ctx context.Context, k models.Kit) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO kits (kit_id, name, location, api_url, source, enabled, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,'unknown', now())
		ON CONFLICT (kit_id) DO NOTHING`,
		k.KitID, k.Name, k.Location, k.APIURL, string(k.Source), k.Enabled)
	if err != nil {
		return fmt.Errorf("store: create kit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// ErrAlreadyExists is returned by CreateKitIfAbsent on duplicate kit_id.
var ErrAlreadyExists = fmt.Errorf("store: kit already exists")
