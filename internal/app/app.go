// Package app wires the persistence writer, ingestion paths, kit
// registry/supervisor, and read API into one process, the way the
// teacher's cmd/*/main.go + a thin Service composition root does it,
// but collapsed into a single App since this system has one binary
// rather than one per subsystem.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alphafox02/WarDragonAnalytics/internal/api"
	"github.com/alphafox02/WarDragonAnalytics/internal/apperr"
	"github.com/alphafox02/WarDragonAnalytics/internal/bus"
	"github.com/alphafox02/WarDragonAnalytics/internal/collector"
	"github.com/alphafox02/WarDragonAnalytics/internal/config"
	"github.com/alphafox02/WarDragonAnalytics/internal/estimator"
	"github.com/alphafox02/WarDragonAnalytics/internal/health"
	"github.com/alphafox02/WarDragonAnalytics/internal/lifecycle"
	"github.com/alphafox02/WarDragonAnalytics/internal/logger"
	"github.com/alphafox02/WarDragonAnalytics/internal/registry"
	"github.com/alphafox02/WarDragonAnalytics/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
)

// App owns every long-lived service and the shared pool beneath them.
type App struct {
	cfg *config.Config
	log logger.Logger

	pool       *pgxpool.Pool
	writer     *store.Writer
	manager    *collector.Manager
	subscriber *bus.Subscriber
	registry   *registry.Registry
	httpServer *http.Server

	services []lifecycle.Service
}

// ErrStoreUnreachable distinguishes a failed initial store connection
// from every other startup failure, for the CLI's exit code table.
var ErrStoreUnreachable = errors.New("app: store unreachable at startup")

// New builds an App: dials the store, runs migrations, reconciles the
// kit list, and wires the HTTP API. Returns a Configuration-kind error
// (spec §7) when validation, the store connection, migrations, the kit
// file or the bus connection fails; a kit-reconciliation error is
// returned as the registry reports it (Configuration for a failed kit
// lookup or write, Transient for a failed kit listing). No service has
// been started when New returns an error.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apperr.Configuration("invalid configuration", err)
	}

	pool, err := store.NewPool(ctx, cfg.StoreDSN, log)
	if err != nil {
		return nil, apperr.Configuration("store unreachable at startup", fmt.Errorf("%w: %v", ErrStoreUnreachable, err))
	}

	if err := store.RunMigrations(ctx, pool, log); err != nil {
		pool.Close()
		return nil, apperr.Configuration("schema migration failed", err)
	}

	kitFile, err := config.LoadKitFile(cfg.KitFilePath)
	if err != nil {
		pool.Close()
		return nil, apperr.Configuration("malformed kit file", err)
	}

	writer := store.NewWriter(pool, log, cfg.BatchSize, cfg.MaxRetries, cfg.BackoffCap)
	reader := store.NewReader(pool)

	thresholds := health.Thresholds{
		StaleAfter:   cfg.StaleThreshold,
		OfflineAfter: cfg.OfflineThreshold,
		BaseInterval: cfg.PollInterval,
		BackoffCap:   cfg.BackoffCap,
		FailureCap:   health.DefaultThresholds().FailureCap,
	}

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	manager := collector.NewManager(httpClient, writer, lifecycle.Real(), log, thresholds, cfg.RequestTimeout)

	reg := registry.New(reader, writer, manager, httpClient, log, thresholds, cfg.PollInterval)
	if err := reg.ReconcileConfig(ctx, kitFile); err != nil {
		pool.Close()
		return nil, err
	}

	var subscriber *bus.Subscriber
	if cfg.BusURL != "" {
		subscriber, err = bus.NewSubscriber(cfg.BusURL, cfg.BusUsername, cfg.BusPassword, cfg.BusTLS, writer, log)
		if err != nil {
			pool.Close()
			return nil, apperr.Configuration("bus connection failed", err)
		}
	}

	defaults := api.DefaultPatternDefaults()
	defaults.EstimatorParams = estimator.Params{
		TxPowerDBm:       cfg.TxPowerDBm,
		PathLossExponent: cfg.PathLossExponent,
	}

	apiServer := api.NewServer(reader, reg, pool, log, defaults, cfg.MaxQueryRangeHours)
	httpServer := &http.Server{
		Addr:              cfg.HTTPBind,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	a := &App{
		cfg:        cfg,
		log:        log,
		pool:       pool,
		writer:     writer,
		manager:    manager,
		subscriber: subscriber,
		registry:   reg,
		httpServer: httpServer,
	}

	a.services = []lifecycle.Service{writer, reg}
	if subscriber != nil {
		a.services = append(a.services, subscriber)
	}

	return a, nil
}

// Run starts every service and the HTTP listener, blocking until ctx is
// cancelled, then drains within cfg.ShutdownGrace (spec §5).
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(a.services)+1)

	for _, svc := range a.services {
		svc := svc
		go func() {
			if err := svc.Start(runCtx); err != nil {
				errCh <- err
			}
		}()
	}

	go func() {
		if a.log != nil {
			a.log.Info().Str("addr", a.httpServer.Addr).Msg("app: serving http api")
		}
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("app: http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if a.log != nil {
			a.log.Error().Err(err).Msg("app: service failed, shutting down")
		}
	}

	return a.shutdown()
}

// shutdown stops the HTTP listener and every service within
// cfg.ShutdownGrace, graceful-drain per spec §5.
func (a *App) shutdown() error {
	grace := a.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil && a.log != nil {
		a.log.Warn().Err(err).Msg("app: http shutdown did not complete cleanly")
	}

	if err := a.manager.Stop(shutdownCtx); err != nil && a.log != nil {
		a.log.Warn().Err(err).Msg("app: collector manager shutdown error")
	}

	for _, svc := range a.services {
		if err := svc.Stop(shutdownCtx); err != nil && a.log != nil {
			a.log.Warn().Err(err).Msg("app: service shutdown error")
		}
	}

	a.pool.Close()

	return nil
}
