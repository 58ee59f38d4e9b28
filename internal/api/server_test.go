package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/alphafox02/WarDragonAnalytics/internal/apperr"
	"github.com/alphafox02/WarDragonAnalytics/internal/models"
	"github.com/alphafox02/WarDragonAnalytics/internal/registry"
	"github.com/alphafox02/WarDragonAnalytics/internal/store"
)

type fakeReader struct {
	kits      []models.Kit
	tracks    []models.Track
	signals   []models.Signal
	health    []models.Health
	fetchErr  error
}

func (f *fakeReader) FetchTracks(ctx context.Context, q store.TrackQuery) ([]models.Track, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var out []models.Track
	for _, t := range f.tracks {
		if q.DroneID != "" && t.DroneID != q.DroneID {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeReader) FetchSignals(ctx context.Context, q store.SignalQuery) ([]models.Signal, error) {
	return f.signals, f.fetchErr
}

func (f *fakeReader) FetchHealthInWindow(ctx context.Context, kitIDs []string, tr store.TimeRange) ([]models.Health, error) {
	return f.health, nil
}

func (f *fakeReader) ListKits(ctx context.Context) ([]models.Kit, error) {
	return f.kits, nil
}

func (f *fakeReader) GetKit(ctx context.Context, kitID string) (models.Kit, error) {
	for _, k := range f.kits {
		if k.KitID == kitID {
			return k, nil
		}
	}
	return models.Kit{}, pgx.ErrNoRows
}

type fakeAdmin struct {
	createErr  error
	created    []models.Kit
	updated    []models.KitUpsert
	deleted    []string
	testedURLs []string
}

func (f *fakeAdmin) CreateKit(ctx context.Context, k models.Kit) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, k)
	return nil
}

func (f *fakeAdmin) UpdateKit(ctx context.Context, patch models.KitUpsert) error {
	f.updated = append(f.updated, patch)
	return nil
}

func (f *fakeAdmin) DeleteKit(ctx context.Context, kitID string, cascade bool) error {
	f.deleted = append(f.deleted, kitID)
	return nil
}

func (f *fakeAdmin) TestConnection(ctx context.Context, baseURL string) registry.TestResult {
	f.testedURLs = append(f.testedURLs, baseURL)
	return registry.TestResult{Reachable: true, LatencyMs: 5}
}

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(ctx context.Context) error { return f.err }

func newTestServer(reader Reader, admin KitAdmin, pinger Pinger) *Server {
	return NewServer(reader, admin, pinger, nil, DefaultPatternDefaults(), 168)
}

func TestHandleHealthOK(t *testing.T) {
	s := newTestServer(&fakeReader{}, &fakeAdmin{}, &fakePinger{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleHealthUnavailable(t *testing.T) {
	s := newTestServer(&fakeReader{}, &fakeAdmin{}, &fakePinger{err: fmt.Errorf("connection refused")})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleListKits(t *testing.T) {
	reader := &fakeReader{kits: []models.Kit{{KitID: "k1", Name: "Kit One"}}}
	s := newTestServer(reader, &fakeAdmin{}, &fakePinger{})

	req := httptest.NewRequest(http.MethodGet, "/api/kits", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got []models.Kit
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, "k1", got[0].KitID)
}

func TestHandleCreateKitDuplicate(t *testing.T) {
	admin := &fakeAdmin{createErr: apperr.User("kit_id already exists")}
	s := newTestServer(&fakeReader{}, admin, &fakePinger{})

	body := strings.NewReader(`{"kit_id":"k1","name":"Kit One"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/kits", body)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code, "a User-kind error must map to 400")
}

func TestHandleDeleteKitParsesCascadeFlag(t *testing.T) {
	admin := &fakeAdmin{}
	s := newTestServer(&fakeReader{}, admin, &fakePinger{})

	req := httptest.NewRequest(http.MethodDelete, "/api/admin/kits/k1?delete_data=true", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, []string{"k1"}, admin.deleted)
}

func TestHandlePatternUnknownKind(t *testing.T) {
	s := newTestServer(&fakeReader{}, &fakeAdmin{}, &fakePinger{})

	req := httptest.NewRequest(http.MethodGet, "/api/patterns/not-a-real-kind", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePatternReturnsCountParametersResultsEnvelope(t *testing.T) {
	alt := 120.0
	reader := &fakeReader{tracks: []models.Track{
		{DroneID: "d1", TrackType: models.TrackTypeDrone, Alt: &alt},
	}}
	s := newTestServer(reader, &fakeAdmin{}, &fakePinger{})

	req := httptest.NewRequest(http.MethodGet, "/api/patterns/anomalies", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got patternResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, 0, got.Count)
	require.NotNil(t, got.Parameters)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	require.Contains(t, raw, "count")
	require.Contains(t, raw, "parameters")
	require.Contains(t, raw, "results")
}

func TestHandlePatternRepeatedDronesEchoesParameters(t *testing.T) {
	s := newTestServer(&fakeReader{}, &fakeAdmin{}, &fakePinger{})

	req := httptest.NewRequest(http.MethodGet, "/api/patterns/repeated-drones?min_appearances=7", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	params, ok := raw["parameters"].(map[string]interface{})
	require.True(t, ok, "expected parameters to be an object, got %T", raw["parameters"])
	require.Equal(t, float64(7), params["min_appearances"])
}

func TestHandleExportCSVHeaderOnlyOnZeroRows(t *testing.T) {
	s := newTestServer(&fakeReader{}, &fakeAdmin{}, &fakePinger{})

	req := httptest.NewRequest(http.MethodGet, "/api/export/csv", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 1, "expected exactly the header line, got %q", rec.Body.String())
}

func TestHandleEstimateLocationNotFoundWithoutObservations(t *testing.T) {
	s := newTestServer(&fakeReader{}, &fakeAdmin{}, &fakePinger{})

	req := httptest.NewRequest(http.MethodGet, "/api/analysis/estimate-location/drone-1", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
}

func TestHandleTestExistingKitNotFound(t *testing.T) {
	s := newTestServer(&fakeReader{}, &fakeAdmin{}, &fakePinger{})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/kits/nope/test", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
}

func TestHandleTestExistingKitProbesStoredURL(t *testing.T) {
	apiURL := "http://kit1.local:8000"
	reader := &fakeReader{kits: []models.Kit{{KitID: "k1", Name: "Kit One", APIURL: &apiURL}}}
	admin := &fakeAdmin{}
	s := newTestServer(reader, admin, &fakePinger{})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/kits/k1/test", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, []string{apiURL}, admin.testedURLs)
}

func TestHandleTestExistingKitRejectsKitWithoutAPIURL(t *testing.T) {
	reader := &fakeReader{kits: []models.Kit{{KitID: "k1", Name: "MQTT-only kit"}}}
	s := newTestServer(reader, &fakeAdmin{}, &fakePinger{})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/kits/k1/test", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestHandleReloadStatusCounts(t *testing.T) {
	reader := &fakeReader{kits: []models.Kit{
		{KitID: "k1", Enabled: true, Status: models.StatusOnline},
		{KitID: "k2", Enabled: true, Status: models.StatusOffline},
		{KitID: "k3", Enabled: false, Status: models.StatusUnknown},
	}}
	s := newTestServer(reader, &fakeAdmin{}, &fakePinger{})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/kits/reload-status", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got reloadStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, 3, got.TotalKits)
	require.Equal(t, 2, got.EnabledKits)
	require.Equal(t, 1, got.OnlineKits)
}

func TestParseTimeRangeClampsToServerMax(t *testing.T) {
	s := NewServer(&fakeReader{}, &fakeAdmin{}, &fakePinger{}, nil, DefaultPatternDefaults(), 1)

	req := httptest.NewRequest(http.MethodGet, "/api/drones?time_range=7d", nil)
	tr, err := s.parseTimeRange(req)
	require.NoError(t, err)
	require.InDelta(t, float64(1*3600), tr.End.Sub(tr.Start).Seconds(), 1)
}

func TestRouterRegistersMuxVars(t *testing.T) {
	// sanity check that path params are wired through gorilla/mux.
	r := mux.NewRouter()
	r.HandleFunc("/api/drones/{id}/track", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "abc", mux.Vars(r)["id"])
	})
	req := httptest.NewRequest(http.MethodGet, "/api/drones/abc/track", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)
}
