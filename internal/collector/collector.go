package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alphafox02/WarDragonAnalytics/internal/health"
	"github.com/alphafox02/WarDragonAnalytics/internal/lifecycle"
	"github.com/alphafox02/WarDragonAnalytics/internal/logger"
	"github.com/alphafox02/WarDragonAnalytics/internal/models"
)

// Writer is the subset of the Persistence Writer a KitCollector needs.
// Narrowing to an interface here keeps the collector testable against an
// in-memory fake without pulling in pgx.
type Writer interface {
	InsertTracks(ctx context.Context, records []models.Track) (models.IngestOutcome, error)
	InsertSignals(ctx context.Context, records []models.Signal) (models.IngestOutcome, error)
	InsertHealth(ctx context.Context, records []models.Health) (models.IngestOutcome, error)
	TouchKit(ctx context.Context, kitID string, seenAt time.Time) error
}

// KitCollector runs one kit's independent polling loop (spec §4.2): on
// each tick, fetch drones/signals/status concurrently, normalise the
// payloads, and hand them to the Writer, then sleep for a delay that
// grows with consecutive failures and resets on success.
type KitCollector struct {
	KitID   string
	BaseURL string

	Fetcher        Fetcher
	Writer         Writer
	Clock          lifecycle.Clock
	Log            logger.Logger
	Thresholds     health.Thresholds
	RequestTimeout time.Duration

	health *health.KitHealth
}

// NewKitCollector builds a KitCollector for one registered HTTP-source kit.
func NewKitCollector(kitID, baseURL string, fetcher Fetcher, writer Writer, clock lifecycle.Clock, log logger.Logger, th health.Thresholds, requestTimeout time.Duration) *KitCollector {
	return &KitCollector{
		KitID:          kitID,
		BaseURL:        baseURL,
		Fetcher:        fetcher,
		Writer:         writer,
		Clock:          clock,
		Log:            log,
		Thresholds:     th,
		RequestTimeout: requestTimeout,
		health:         &health.KitHealth{},
	}
}

// Health exposes the collector's current health snapshot for the kit
// registry / health supervisor (spec §4.4).
func (c *KitCollector) Health() *health.KitHealth {
	return c.health
}

// Start runs the poll loop until ctx is cancelled.
func (c *KitCollector) Start(ctx context.Context) error {
	for {
		tickStart := c.Clock.Now()
		c.tick(ctx)

		delay := health.PollDelay(c.health.ConsecutiveFailures, c.Thresholds)
		remaining := delay - c.Clock.Now().Sub(tickStart)
		if remaining < 0 {
			remaining = 0
		}

		if err := c.Clock.Sleep(ctx, remaining); err != nil {
			return nil // context cancelled, graceful stop
		}
	}
}

// Stop is a no-op: the loop exits on ctx cancellation passed to Start.
func (c *KitCollector) Stop(ctx context.Context) error {
	return nil
}

// tick fetches the three per-kit endpoints independently (spec §4.2 step
// 1: failures are caught per endpoint, not per kit): one endpoint timing
// out or erroring neither cancels the other two in-flight requests nor
// discards whatever they already fetched. Only the aggregate outcome
// (any endpoint failed) feeds the kit's consecutive-failure counter.
func (c *KitCollector) tick(ctx context.Context) {
	now := c.Clock.Now()

	var tracks []models.Track
	var signals []models.Signal
	var stat models.Health
	var tracksErr, signalsErr, statusErr error

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		body, err := fetchWithRetry(ctx, c.Fetcher, c.BaseURL+"/api/drones", c.RequestTimeout)
		if err != nil {
			tracksErr = fmt.Errorf("drones: %w", err)
			return
		}
		tracks, tracksErr = parseDrones(body, c.KitID, now)
	}()

	go func() {
		defer wg.Done()
		body, err := fetchWithRetry(ctx, c.Fetcher, c.BaseURL+"/api/signals", c.RequestTimeout)
		if err != nil {
			signalsErr = fmt.Errorf("signals: %w", err)
			return
		}
		signals, signalsErr = parseSignals(body, c.KitID, now)
	}()

	go func() {
		defer wg.Done()
		body, err := fetchWithRetry(ctx, c.Fetcher, c.BaseURL+"/api/status", c.RequestTimeout)
		if err != nil {
			statusErr = fmt.Errorf("status: %w", err)
			return
		}
		stat, statusErr = parseStatus(body, c.KitID, now)
	}()

	wg.Wait()

	sawContact := false

	if tracksErr != nil {
		if c.Log != nil {
			c.Log.Warn().Err(tracksErr).Str("kit_id", c.KitID).Msg("collector: drones endpoint failed")
		}
	} else {
		sawContact = true
		if len(tracks) > 0 {
			if _, err := c.Writer.InsertTracks(ctx, tracks); err != nil && c.Log != nil {
				c.Log.Warn().Err(err).Str("kit_id", c.KitID).Msg("collector: insert tracks failed")
			}
		}
	}

	if signalsErr != nil {
		if c.Log != nil {
			c.Log.Warn().Err(signalsErr).Str("kit_id", c.KitID).Msg("collector: signals endpoint failed")
		}
	} else {
		sawContact = true
		if len(signals) > 0 {
			if _, err := c.Writer.InsertSignals(ctx, signals); err != nil && c.Log != nil {
				c.Log.Warn().Err(err).Str("kit_id", c.KitID).Msg("collector: insert signals failed")
			}
		}
	}

	if statusErr != nil {
		if c.Log != nil {
			c.Log.Warn().Err(statusErr).Str("kit_id", c.KitID).Msg("collector: status endpoint failed")
		}
	} else {
		sawContact = true
		if _, err := c.Writer.InsertHealth(ctx, []models.Health{stat}); err != nil && c.Log != nil {
			c.Log.Warn().Err(err).Str("kit_id", c.KitID).Msg("collector: insert health failed")
		}
	}

	if tracksErr != nil || signalsErr != nil || statusErr != nil {
		c.health.RecordFailure(now)
	} else {
		c.health.RecordSuccess(now)
	}

	if !sawContact {
		return
	}
	if err := c.Writer.TouchKit(ctx, c.KitID, now); err != nil && c.Log != nil {
		c.Log.Warn().Err(err).Str("kit_id", c.KitID).Msg("collector: touch kit failed")
	}
}
