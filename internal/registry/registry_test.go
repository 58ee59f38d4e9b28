package registry

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alphafox02/WarDragonAnalytics/internal/collector"
	"github.com/alphafox02/WarDragonAnalytics/internal/config"
	"github.com/alphafox02/WarDragonAnalytics/internal/health"
	"github.com/alphafox02/WarDragonAnalytics/internal/lifecycle"
	"github.com/alphafox02/WarDragonAnalytics/internal/models"
)

type fakeReader struct {
	kits          map[string]models.Kit
	disabledCalls []string
	deletedCalls  []string
}

func newFakeReader() *fakeReader {
	return &fakeReader{kits: make(map[string]models.Kit)}
}

func (r *fakeReader) ListKits(ctx context.Context) ([]models.Kit, error) {
	out := make([]models.Kit, 0, len(r.kits))
	for _, k := range r.kits {
		out = append(out, k)
	}
	return out, nil
}

func (r *fakeReader) GetKit(ctx context.Context, kitID string) (models.Kit, error) {
	if k, ok := r.kits[kitID]; ok {
		return k, nil
	}
	return models.Kit{}, pgx.ErrNoRows
}

func (r *fakeReader) DeleteKit(ctx context.Context, kitID string, cascade bool) error {
	r.deletedCalls = append(r.deletedCalls, kitID)
	delete(r.kits, kitID)
	return nil
}

func (r *fakeReader) MarkDisabledByAdmin(ctx context.Context, kitID string) error {
	r.disabledCalls = append(r.disabledCalls, kitID)
	k := r.kits[kitID]
	k.DisabledByAdmin = true
	k.Enabled = false
	r.kits[kitID] = k
	return nil
}

func (r *fakeReader) UpdateKitStatus(ctx context.Context, kitID string, status models.Status) error {
	k := r.kits[kitID]
	k.Status = status
	r.kits[kitID] = k
	return nil
}

func (r *fakeReader) CreateKitIfAbsent(ctx context.Context, k models.Kit) error {
	if _, ok := r.kits[k.KitID]; ok {
		return fmt.Errorf("kit already exists")
	}
	r.kits[k.KitID] = k
	return nil
}

type fakeWriter struct {
	upserts []models.KitUpsert
}

func (w *fakeWriter) UpsertKit(ctx context.Context, patch models.KitUpsert) error {
	w.upserts = append(w.upserts, patch)
	return nil
}

type noopCollectorWriter struct{}

func (noopCollectorWriter) InsertTracks(ctx context.Context, records []models.Track) (models.IngestOutcome, error) {
	return models.IngestOutcome{}, nil
}
func (noopCollectorWriter) InsertSignals(ctx context.Context, records []models.Signal) (models.IngestOutcome, error) {
	return models.IngestOutcome{}, nil
}
func (noopCollectorWriter) InsertHealth(ctx context.Context, records []models.Health) (models.IngestOutcome, error) {
	return models.IngestOutcome{}, nil
}
func (noopCollectorWriter) TouchKit(ctx context.Context, kitID string, seenAt time.Time) error {
	return nil
}

func newTestManager() *collector.Manager {
	return collector.NewManager(nil, noopCollectorWriter{}, lifecycle.NewFakeClock(time.Now()), nil, health.DefaultThresholds(), time.Second)
}

func TestReconcileConfigAddsMissingKitsOnly(t *testing.T) {
	reader := newFakeReader()
	reader.kits["existing"] = models.Kit{KitID: "existing", Source: models.SourceHTTP, Enabled: true}

	writer := &fakeWriter{}
	mgr := newTestManager()
	reg := New(reader, writer, mgr, nil, nil, health.DefaultThresholds(), time.Minute)

	file := &config.KitFile{Kits: []config.KitEntry{
		{KitID: "existing", APIURL: "http://should-not-apply"},
		{KitID: "new-kit", APIURL: "http://new-kit"},
	}}

	if err := reg.ReconcileConfig(context.Background(), file); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(writer.upserts) != 1 || writer.upserts[0].KitID != "new-kit" {
		t.Errorf("expected exactly one upsert for the missing kit, got %+v", writer.upserts)
	}
}

func TestDeleteKitIsSticky(t *testing.T) {
	reader := newFakeReader()
	reader.kits["k1"] = models.Kit{KitID: "k1", Enabled: true}

	mgr := newTestManager()
	reg := New(reader, &fakeWriter{}, mgr, nil, nil, health.DefaultThresholds(), time.Minute)

	if err := reg.DeleteKit(context.Background(), "k1", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(reader.disabledCalls) != 1 || reader.disabledCalls[0] != "k1" {
		t.Errorf("expected mark_disabled_by_admin to be called before delete, got %+v", reader.disabledCalls)
	}
	if len(reader.deletedCalls) != 1 || reader.deletedCalls[0] != "k1" {
		t.Errorf("expected delete_kit to be called, got %+v", reader.deletedCalls)
	}
}

func TestTestConnectionAssignsUniqueProbeID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := New(newFakeReader(), &fakeWriter{}, newTestManager(), nil, nil, health.DefaultThresholds(), time.Minute)

	first := reg.TestConnection(context.Background(), srv.URL)
	second := reg.TestConnection(context.Background(), srv.URL)

	if first.ProbeID == "" || second.ProbeID == "" {
		t.Fatalf("expected a non-empty probe id on every call, got %q and %q", first.ProbeID, second.ProbeID)
	}
	if first.ProbeID == second.ProbeID {
		t.Errorf("expected distinct probe ids across calls, both were %q", first.ProbeID)
	}
	if !first.Reachable || !second.Reachable {
		t.Errorf("expected both probes to report reachable, got %+v and %+v", first, second)
	}
}
