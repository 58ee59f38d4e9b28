package collector

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/alphafox02/WarDragonAnalytics/internal/health"
	"github.com/alphafox02/WarDragonAnalytics/internal/lifecycle"
	"github.com/alphafox02/WarDragonAnalytics/internal/logger"
)

// Manager owns one KitCollector per enabled HTTP-source kit and starts
// or stops collectors as the kit registry's reconciliation adds, removes,
// or disables kits, without restarting the whole process.
type Manager struct {
	fetcher        Fetcher
	writer         Writer
	clock          lifecycle.Clock
	log            logger.Logger
	thresholds     health.Thresholds
	requestTimeout time.Duration

	mu      sync.Mutex
	running map[string]managedCollector
}

type managedCollector struct {
	collector *KitCollector
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewManager builds a Manager sharing one HTTP client across all kits.
func NewManager(httpClient *http.Client, writer Writer, clock lifecycle.Clock, log logger.Logger, th health.Thresholds, requestTimeout time.Duration) *Manager {
	return &Manager{
		fetcher:        NewHTTPFetcher(httpClient),
		writer:         writer,
		clock:          clock,
		log:            log,
		thresholds:     th,
		requestTimeout: requestTimeout,
		running:        make(map[string]managedCollector),
	}
}

// EnsureKit starts a collector for kitID/baseURL if one isn't already
// running, or restarts it if baseURL changed.
func (m *Manager) EnsureKit(parent context.Context, kitID, baseURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.running[kitID]; ok {
		if existing.collector.BaseURL == baseURL {
			return
		}
		existing.cancel()
		<-existing.done
		delete(m.running, kitID)
	}

	c := NewKitCollector(kitID, baseURL, m.fetcher, m.writer, m.clock, m.log, m.thresholds, m.requestTimeout)
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = c.Start(ctx)
	}()

	m.running[kitID] = managedCollector{collector: c, cancel: cancel, done: done}
}

// RemoveKit stops and forgets a kit's collector, e.g. when it's deleted
// or disabled by an admin.
func (m *Manager) RemoveKit(kitID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.running[kitID]
	if !ok {
		return
	}
	existing.cancel()
	<-existing.done
	delete(m.running, kitID)
}

// Health returns the live health snapshot for a running kit, or nil if
// no collector is running for it.
func (m *Manager) Health(kitID string) *health.KitHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.running[kitID]
	if !ok {
		return nil
	}
	return existing.collector.Health()
}

// Stop cancels and joins every running collector, per spec §5's
// graceful-shutdown drain.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for kitID, existing := range m.running {
		existing.cancel()
		select {
		case <-existing.done:
		case <-ctx.Done():
		}
		delete(m.running, kitID)
	}
	return nil
}
