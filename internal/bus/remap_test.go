package bus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alphafox02/WarDragonAnalytics/internal/models"
)

func marshalTestMessage(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

type fakeWriter struct {
	mu      sync.Mutex
	tracks  []models.Track
	signals []models.Signal
	health  []models.Health
	upserts []models.KitUpsert
	touched []string
}

func (w *fakeWriter) InsertTracks(ctx context.Context, records []models.Track) (models.IngestOutcome, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tracks = append(w.tracks, records...)
	return models.IngestOutcome{Inserted: len(records)}, nil
}

func (w *fakeWriter) InsertSignals(ctx context.Context, records []models.Signal) (models.IngestOutcome, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.signals = append(w.signals, records...)
	return models.IngestOutcome{Inserted: len(records)}, nil
}

func (w *fakeWriter) InsertHealth(ctx context.Context, records []models.Health) (models.IngestOutcome, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.health = append(w.health, records...)
	return models.IngestOutcome{Inserted: len(records)}, nil
}

func (w *fakeWriter) UpsertKit(ctx context.Context, patch models.KitUpsert) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.upserts = append(w.upserts, patch)
	return nil
}

func (w *fakeWriter) TouchKit(ctx context.Context, kitID string, seenAt time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touched = append(w.touched, kitID)
	return nil
}

func newTestSubscriber(w Writer) *Subscriber {
	return &Subscriber{writer: w}
}

func TestHandleDronesPrefersInternalFieldNames(t *testing.T) {
	fw := &fakeWriter{}
	s := newTestSubscriber(fw)

	lat, lon, busLat, busLon := 1.0, 2.0, 9.0, 9.0
	msg := busDroneMessage{DroneID: "d1", SeenBy: "kit-1", Lat: &lat, Lon: &lon, Latitude: &busLat, Longitude: &busLon}
	data, _ := marshalTestMessage(msg)

	s.handleDrones(context.Background(), data, time.Now())

	if len(fw.tracks) != 1 {
		t.Fatalf("expected 1 track, got %d", len(fw.tracks))
	}
	if *fw.tracks[0].Lat != 1.0 || *fw.tracks[0].Lon != 2.0 {
		t.Errorf("expected internal lat/lon to win over bus-native, got %+v", fw.tracks[0])
	}
}

func TestHandleDronesFallsBackToBusNativeFieldNames(t *testing.T) {
	fw := &fakeWriter{}
	s := newTestSubscriber(fw)

	busLat, busLon := 5.0, 6.0
	msg := busDroneMessage{DroneID: "d1", KitID: "kit-1", Latitude: &busLat, Longitude: &busLon}
	data, _ := marshalTestMessage(msg)

	s.handleDrones(context.Background(), data, time.Now())

	if len(fw.tracks) != 1 {
		t.Fatalf("expected 1 track, got %d", len(fw.tracks))
	}
	if *fw.tracks[0].Lat != 5.0 || *fw.tracks[0].Lon != 6.0 {
		t.Errorf("expected fallback to bus-native lat/lon, got %+v", fw.tracks[0])
	}
}

// TestAutoRegistrationScenarioS2 mirrors spec scenario S2: a bus
// message for an existing HTTP kit promotes it to source=both via the
// Writer's UpsertKit call.
func TestAutoRegistrationScenarioS2(t *testing.T) {
	fw := &fakeWriter{}
	s := newTestSubscriber(fw)

	lat, lon := 1.0, 2.0
	msg := busDroneMessage{DroneID: "d1", SeenBy: "K", Lat: &lat, Lon: &lon}
	data, _ := marshalTestMessage(msg)

	s.handleDrones(context.Background(), data, time.Now())

	if len(fw.upserts) != 1 {
		t.Fatalf("expected 1 upsert_kit call, got %d", len(fw.upserts))
	}
	if fw.upserts[0].KitID != "K" || fw.upserts[0].Source == nil || *fw.upserts[0].Source != models.SourceMQTT {
		t.Errorf("expected upsert_kit(K, source=mqtt), got %+v", fw.upserts[0])
	}
	if len(fw.touched) != 1 || fw.touched[0] != "K" {
		t.Errorf("expected touch_kit(K), got %+v", fw.touched)
	}
}

func TestHandleSystemHealthAppliesRemapTransforms(t *testing.T) {
	fw := &fakeWriter{}
	s := newTestSubscriber(fw)

	cpu, total, avail, diskTotal, diskUsed, uptime := 42.0, 1000.0, 250.0, 500.0, 100.0, 7200.0
	msg := busHealthMessage{
		SeenBy: "kit-1", CPUUsage: &cpu,
		MemTotalMB: &total, MemAvailMB: &avail,
		DiskTotalMB: &diskTotal, DiskUsedMB: &diskUsed,
		UptimeS: &uptime,
	}
	data, _ := marshalTestMessage(msg)

	s.handleSystemHealth(context.Background(), data, time.Now())

	if len(fw.health) != 1 {
		t.Fatalf("expected 1 health row, got %d", len(fw.health))
	}
	h := fw.health[0]
	if h.MemPercent == nil || *h.MemPercent != 75.0 {
		t.Errorf("memory_percent = %v, want 75.0", h.MemPercent)
	}
	if h.DiskPercent == nil || *h.DiskPercent != 20.0 {
		t.Errorf("disk_percent = %v, want 20.0", h.DiskPercent)
	}
	if h.UptimeHours == nil || *h.UptimeHours != 2.0 {
		t.Errorf("uptime_hours = %v, want 2.0", h.UptimeHours)
	}
}

func TestHandleDronesDropsMessageMissingIdentity(t *testing.T) {
	fw := &fakeWriter{}
	s := newTestSubscriber(fw)

	data, _ := marshalTestMessage(busDroneMessage{})
	s.handleDrones(context.Background(), data, time.Now())

	if len(fw.tracks) != 0 {
		t.Errorf("expected no track written for a message missing kit_id/drone_id")
	}
	if s.DroppedCount() != 1 {
		t.Errorf("expected dropped count = 1, got %d", s.DroppedCount())
	}
}
