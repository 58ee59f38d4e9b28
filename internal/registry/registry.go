// Package registry implements the Kit Registry & Health Supervisor
// (spec §4.4): reconciling the logical kit set from YAML config, admin
// CRUD, and ingestion auto-registration, and periodically sweeping
// derived status.
package registry

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/alphafox02/WarDragonAnalytics/internal/apperr"
	"github.com/alphafox02/WarDragonAnalytics/internal/collector"
	"github.com/alphafox02/WarDragonAnalytics/internal/config"
	"github.com/alphafox02/WarDragonAnalytics/internal/health"
	"github.com/alphafox02/WarDragonAnalytics/internal/lifecycle"
	"github.com/alphafox02/WarDragonAnalytics/internal/logger"
	"github.com/alphafox02/WarDragonAnalytics/internal/models"
	"github.com/alphafox02/WarDragonAnalytics/internal/store"
)

// Reader/Writer narrow the store package down to what the registry
// needs, keeping it testable against fakes.
type Reader interface {
	ListKits(ctx context.Context) ([]models.Kit, error)
	GetKit(ctx context.Context, kitID string) (models.Kit, error)
	DeleteKit(ctx context.Context, kitID string, cascade bool) error
	MarkDisabledByAdmin(ctx context.Context, kitID string) error
	UpdateKitStatus(ctx context.Context, kitID string, status models.Status) error
	CreateKitIfAbsent(ctx context.Context, k models.Kit) error
}

type Writer interface {
	UpsertKit(ctx context.Context, patch models.KitUpsert) error
}

// Registry owns kit reconciliation and the periodic status supervisor.
type Registry struct {
	reader     Reader
	writer     Writer
	manager    *collector.Manager
	httpClient *http.Client
	log        logger.Logger
	thresholds health.Thresholds

	sweepInterval time.Duration
	stop          chan struct{}
	done          chan struct{}
}

// New builds a Registry.
func New(reader Reader, writer Writer, manager *collector.Manager, httpClient *http.Client, log logger.Logger, th health.Thresholds, sweepInterval time.Duration) *Registry {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Second
	}
	return &Registry{
		reader:        reader,
		writer:        writer,
		manager:       manager,
		httpClient:    httpClient,
		log:           log,
		thresholds:    th,
		sweepInterval: sweepInterval,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// ReconcileConfig applies the YAML kit-list (spec §4.4 "config adds
// missing kits but never overwrites admin edits").
func (r *Registry) ReconcileConfig(ctx context.Context, file *config.KitFile) error {
	if file == nil {
		return nil
	}

	for _, entry := range file.Kits {
		if entry.KitID == "" {
			continue
		}

		_, err := r.reader.GetKit(ctx, entry.KitID)
		switch {
		case err == pgx.ErrNoRows:
			src := models.SourceHTTP
			enabled := entry.EnabledOrDefault()
			name := entry.Name
			location := entry.Location
			apiURL := entry.APIURL

			if err := r.writer.UpsertKit(ctx, models.KitUpsert{
				KitID:    entry.KitID,
				Name:     &name,
				Location: &location,
				APIURL:   &apiURL,
				Source:   &src,
				Enabled:  &enabled,
			}); err != nil {
				return apperr.Configuration("reconcile config kit "+entry.KitID, err)
			}
		case err != nil:
			return apperr.Configuration("load kit "+entry.KitID, err)
		default:
			// kit already exists: config never overwrites admin edits.
		}
	}

	return r.syncCollectors(ctx)
}

// syncCollectors starts/stops per-kit collectors to match the current
// registry: enabled, non-admin-disabled, HTTP-source kits get a running
// KitCollector; everything else doesn't.
func (r *Registry) syncCollectors(ctx context.Context) error {
	kits, err := r.reader.ListKits(ctx)
	if err != nil {
		return apperr.Transient("list kits", err)
	}

	running := make(map[string]bool)
	for _, k := range kits {
		shouldRun := k.Enabled && !k.DisabledByAdmin && k.Source.RequiresAPIURL() && k.APIURL != nil && *k.APIURL != ""
		running[k.KitID] = shouldRun
		if shouldRun {
			r.manager.EnsureKit(ctx, k.KitID, *k.APIURL)
		} else {
			r.manager.RemoveKit(k.KitID)
		}
	}

	return nil
}

// CreateKit handles admin POST /api/admin/kits.
func (r *Registry) CreateKit(ctx context.Context, k models.Kit) error {
	if k.KitID == "" {
		return apperr.User("kit_id is required")
	}
	if k.Source.RequiresAPIURL() && (k.APIURL == nil || *k.APIURL == "") {
		return apperr.User("api_url is required for source=" + string(k.Source))
	}

	if err := r.reader.CreateKitIfAbsent(ctx, k); err != nil {
		if err == store.ErrAlreadyExists {
			return apperr.User("kit_id already exists")
		}
		return apperr.Transient("create kit", err)
	}

	return r.syncCollectors(ctx)
}

// UpdateKit handles admin PUT /api/admin/kits/{id}.
func (r *Registry) UpdateKit(ctx context.Context, patch models.KitUpsert) error {
	if patch.KitID == "" {
		return apperr.User("kit_id is required")
	}
	if err := r.writer.UpsertKit(ctx, patch); err != nil {
		return apperr.Transient("update kit", err)
	}
	return r.syncCollectors(ctx)
}

// DeleteKit handles admin DELETE /api/admin/kits/{id}: admin delete is
// sticky, config reconciliation can never revive it (spec §4.4).
func (r *Registry) DeleteKit(ctx context.Context, kitID string, cascade bool) error {
	if err := r.reader.MarkDisabledByAdmin(ctx, kitID); err != nil {
		return apperr.Transient("mark disabled", err)
	}
	r.manager.RemoveKit(kitID)

	if err := r.reader.DeleteKit(ctx, kitID, cascade); err != nil {
		return apperr.Transient("delete kit", err)
	}
	return nil
}

// TestResult is the outcome of a connection-test probe. ProbeID
// correlates this result with the "registry: connection test" log line
// so an operator chasing a flaky kit can line up the two.
type TestResult struct {
	ProbeID       string `json:"probe_id"`
	Reachable     bool   `json:"reachable"`
	ResolvedKitID string `json:"resolved_kit_id,omitempty"`
	LatencyMs     int64  `json:"latency_ms"`
	Error         string `json:"error,omitempty"`
}

// TestConnection issues a single bounded HTTP probe to a candidate URL
// (spec §4.4 "connection-test endpoint").
func (r *Registry) TestConnection(ctx context.Context, baseURL string) TestResult {
	probeID := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result := TestResult{ProbeID: probeID}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/status", nil)
	if err != nil {
		result.Error = err.Error()
		r.logProbe(probeID, baseURL, result)
		return result
	}

	resp, err := r.httpClient.Do(req)
	result.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		r.logProbe(probeID, baseURL, result)
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		result.Error = http.StatusText(resp.StatusCode)
		r.logProbe(probeID, baseURL, result)
		return result
	}

	result.Reachable = true
	r.logProbe(probeID, baseURL, result)
	return result
}

func (r *Registry) logProbe(probeID, baseURL string, result TestResult) {
	if r.log == nil {
		return
	}
	ev := r.log.Info()
	if !result.Reachable {
		ev = r.log.Warn()
	}
	ev.Str("probe_id", probeID).Str("api_url", baseURL).Bool("reachable", result.Reachable).Int64("latency_ms", result.LatencyMs).Msg("registry: connection test")
}

// Start runs the periodic supervisor sweep (spec §4.4 "a periodic
// supervisor sweeps all kits, recomputes status from last_seen").
func (r *Registry) Start(ctx context.Context) error {
	clock := lifecycle.Real()
	ticker := clock.Ticker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			r.sweep(ctx)
		}
	}
}

func (r *Registry) sweep(ctx context.Context) {
	kits, err := r.reader.ListKits(ctx)
	if err != nil {
		if r.log != nil {
			r.log.Warn().Err(err).Msg("registry: sweep list kits failed")
		}
		return
	}

	now := time.Now()
	for _, k := range kits {
		kh := r.manager.Health(k.KitID)
		var status models.Status
		if kh == nil {
			status = models.StatusUnknown
		} else {
			status = kh.Status(now, r.thresholds)
		}

		if status != k.Status {
			if err := r.reader.UpdateKitStatus(ctx, k.KitID, status); err != nil && r.log != nil {
				r.log.Warn().Err(err).Str("kit_id", k.KitID).Msg("registry: update status failed")
			}
		}
	}
}

// Stop is a no-op: the sweep loop exits on the ctx passed to Start.
func (r *Registry) Stop(ctx context.Context) error {
	return nil
}
