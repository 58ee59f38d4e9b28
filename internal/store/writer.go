package store

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alphafox02/WarDragonAnalytics/internal/logger"
	"github.com/alphafox02/WarDragonAnalytics/internal/models"
)

type jobKind int

const (
	jobTracks jobKind = iota
	jobSignals
	jobHealth
	jobUpsertKit
	jobTouchKit
)

type job struct {
	kind    jobKind
	tracks  []models.Track
	signals []models.Signal
	health  []models.Health
	upsert  models.KitUpsert
	touch   struct {
		kitID  string
		seenAt time.Time
	}
	result chan jobResult
}

type jobResult struct {
	outcome models.IngestOutcome
	err     error
}

// Writer is the Persistence Writer (spec §4.1): the sole path that
// mutates storage, owning connection pooling and safe for concurrent use
// from many ingestion fibers. It runs as a lifecycle.Service consuming a
// bounded channel — the channel's capacity is the backpressure mechanism
// of spec §5, with a high/low-water hysteresis so producers don't thrash
// on and off right at the boundary.
type Writer struct {
	pool       *pgxpool.Pool
	log        logger.Logger
	jobs       chan job
	highWater  int
	lowWater   int
	maxRetries int
	backoffCap time.Duration
	closed     atomic.Bool
	loopDone   chan struct{}
}

// NewWriter constructs a Writer. batchSize scales the channel's high-water
// mark (4x batch size), matching spec §6's configurable batch size.
func NewWriter(pool *pgxpool.Pool, log logger.Logger, batchSize, maxRetries int, backoffCap time.Duration) *Writer {
	highWater := batchSize * 4
	if highWater <= 0 {
		highWater = 4000
	}

	return &Writer{
		pool:       pool,
		log:        log,
		jobs:       make(chan job, highWater),
		highWater:  highWater,
		lowWater:   highWater / 2,
		maxRetries: maxRetries,
		backoffCap: backoffCap,
		loopDone:   make(chan struct{}),
	}
}

// Start runs the writer's single consumer loop until the context is
// cancelled or Stop closes the job channel.
func (w *Writer) Start(ctx context.Context) error {
	defer close(w.loopDone)

	for {
		select {
		case j, ok := <-w.jobs:
			if !ok {
				return nil
			}
			w.process(ctx, j)
		case <-ctx.Done():
			return nil
		}
	}
}

// Stop stops accepting new jobs, drains what's already queued, and joins
// within the caller's deadline.
func (w *Writer) Stop(ctx context.Context) error {
	w.closed.Store(true)
	close(w.jobs)

	select {
	case <-w.loopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueDepth reports the number of jobs currently buffered.
func (w *Writer) QueueDepth() int {
	return len(w.jobs)
}

func (w *Writer) waitForCapacity(ctx context.Context) error {
	if len(w.jobs) < w.highWater {
		return nil
	}

	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if len(w.jobs) <= w.lowWater {
				return nil
			}
		}
	}
}

func (w *Writer) submit(ctx context.Context, j job) (models.IngestOutcome, error) {
	if w.closed.Load() {
		return models.IngestOutcome{}, fmt.Errorf("store: writer is shutting down")
	}

	if err := w.waitForCapacity(ctx); err != nil {
		return models.IngestOutcome{}, err
	}

	resultCh := make(chan jobResult, 1)
	j.result = resultCh

	select {
	case w.jobs <- j:
	case <-ctx.Done():
		return models.IngestOutcome{}, ctx.Err()
	}

	select {
	case r := <-resultCh:
		return r.outcome, r.err
	case <-ctx.Done():
		return models.IngestOutcome{}, ctx.Err()
	}
}

// InsertTracks is the best-effort batch insert contract of spec §4.1.
func (w *Writer) InsertTracks(ctx context.Context, records []models.Track) (models.IngestOutcome, error) {
	return w.submit(ctx, job{kind: jobTracks, tracks: records})
}

// InsertSignals mirrors InsertTracks for signal records.
func (w *Writer) InsertSignals(ctx context.Context, records []models.Signal) (models.IngestOutcome, error) {
	return w.submit(ctx, job{kind: jobSignals, signals: records})
}

// InsertHealth mirrors InsertTracks for health samples.
func (w *Writer) InsertHealth(ctx context.Context, records []models.Health) (models.IngestOutcome, error) {
	return w.submit(ctx, job{kind: jobHealth, health: records})
}

// UpsertKit inserts the kit if absent, else updates mutable columns under
// last-writer-wins for explicitly-provided fields, combining Source via
// the monotone http∨mqtt=both lattice.
func (w *Writer) UpsertKit(ctx context.Context, patch models.KitUpsert) error {
	_, err := w.submit(ctx, job{kind: jobUpsertKit, upsert: patch})
	return err
}

// TouchKit advances last_seen if seenAt is newer than the stored value.
func (w *Writer) TouchKit(ctx context.Context, kitID string, seenAt time.Time) error {
	j := job{kind: jobTouchKit}
	j.touch.kitID = kitID
	j.touch.seenAt = seenAt
	_, err := w.submit(ctx, j)
	return err
}

func (w *Writer) process(ctx context.Context, j job) {
	var outcome models.IngestOutcome
	var err error

	switch j.kind {
	case jobTracks:
		outcome, err = w.insertTracks(ctx, j.tracks)
	case jobSignals:
		outcome, err = w.insertSignals(ctx, j.signals)
	case jobHealth:
		outcome, err = w.insertHealth(ctx, j.health)
	case jobUpsertKit:
		err = w.upsertKit(ctx, j.upsert)
	case jobTouchKit:
		err = w.touchKit(ctx, j.touch.kitID, j.touch.seenAt)
	}

	if j.result != nil {
		j.result <- jobResult{outcome: outcome, err: err}
	}
}

func (w *Writer) withRetry(ctx context.Context, op func() error) error {
	attempt := 0

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = w.backoffCap
	b.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		attempt++

		err := op()
		if err == nil {
			return nil
		}

		if isPermanentDataError(err) {
			return backoff.Permanent(err)
		}

		if attempt >= maxInt(w.maxRetries, 1) {
			return backoff.Permanent(err)
		}

		if w.log != nil {
			w.log.Warn().Err(err).Int("attempt", attempt).Msg("store: transient error, retrying")
		}

		return err
	}, backoff.WithContext(b, ctx))
}

func maxInt(a, b int) int {
	return int(math.Max(float64(a), float64(b)))
}

const upsertKitSQL = `
INSERT INTO kits (kit_id, name, location, api_url, source, enabled, status, created_at)
VALUES ($1, COALESCE($2, ''), $3, $4, $5, COALESCE($6, true), 'unknown', now())
ON CONFLICT (kit_id) DO UPDATE SET
	name     = COALESCE($2, kits.name),
	location = COALESCE($3, kits.location),
	api_url  = COALESCE($4, kits.api_url),
	source   = $5,
	enabled  = COALESCE($6, kits.enabled)
`

func (w *Writer) upsertKit(ctx context.Context, patch models.KitUpsert) error {
	return w.withRetry(ctx, func() error {
		tx, err := w.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("store: begin upsert_kit: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		var existingSource *string
		row := tx.QueryRow(ctx, `SELECT source FROM kits WHERE kit_id = $1 FOR UPDATE`, patch.KitID)

		switch scanErr := row.Scan(&existingSource); {
		case scanErr == pgx.ErrNoRows:
			existingSource = nil
		case scanErr != nil:
			return fmt.Errorf("store: upsert_kit lookup: %w", scanErr)
		}

		combined := models.SourceHTTP
		if existingSource != nil {
			combined = models.Source(*existingSource)
		} else {
			combined = models.SourceEmpty
		}
		if patch.Source != nil {
			combined = combined.Combine(*patch.Source)
		}
		if combined == models.SourceEmpty {
			combined = models.SourceHTTP
		}

		if _, err := tx.Exec(ctx, upsertKitSQL,
			patch.KitID, patch.Name, patch.Location, patch.APIURL, string(combined), patch.Enabled,
		); err != nil {
			return fmt.Errorf("store: upsert_kit exec: %w", err)
		}

		return tx.Commit(ctx)
	})
}

func (w *Writer) touchKit(ctx context.Context, kitID string, seenAt time.Time) error {
	return w.withRetry(ctx, func() error {
		_, err := w.pool.Exec(ctx,
			`UPDATE kits SET last_seen = $2 WHERE kit_id = $1 AND (last_seen IS NULL OR last_seen < $2)`,
			kitID, seenAt)
		if err != nil {
			return fmt.Errorf("store: touch_kit: %w", err)
		}
		return nil
	})
}
