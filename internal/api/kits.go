package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"

	"github.com/alphafox02/WarDragonAnalytics/internal/apperr"
	"github.com/alphafox02/WarDragonAnalytics/internal/models"
)

// handleListKits implements GET /api/kits.
func (s *Server) handleListKits(w http.ResponseWriter, r *http.Request) {
	kits, err := s.reader.ListKits(r.Context())
	if err != nil {
		writeError(w, apperr.Transient("list kits", err))
		return
	}
	if kits == nil {
		kits = []models.Kit{}
	}
	writeJSON(w, http.StatusOK, kits)
}

// createKitRequest is the admin create body: a Kit without the
// server-derived fields (status, created_at, disabled_by_admin).
type createKitRequest struct {
	KitID    string         `json:"kit_id"`
	Name     string         `json:"name"`
	Location *string        `json:"location,omitempty"`
	APIURL   *string        `json:"api_url,omitempty"`
	Source   models.Source  `json:"source"`
	Enabled  *bool          `json:"enabled,omitempty"`
}

// handleCreateKit implements POST /api/admin/kits. A duplicate kit_id
// comes back from the registry as a User error and is answered with 400;
// there is no 409 response.
func (s *Server) handleCreateKit(w http.ResponseWriter, r *http.Request) {
	var req createKitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.User("invalid JSON body"))
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	source := req.Source
	if source == models.SourceEmpty {
		source = models.SourceHTTP
	}

	k := models.Kit{
		KitID:    req.KitID,
		Name:     req.Name,
		Location: req.Location,
		APIURL:   req.APIURL,
		Source:   source,
		Enabled:  enabled,
		Status:   models.StatusUnknown,
	}

	if err := s.admin.CreateKit(r.Context(), k); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, k)
}

// handleUpdateKit implements PUT /api/admin/kits/{id}: a partial patch.
func (s *Server) handleUpdateKit(w http.ResponseWriter, r *http.Request) {
	kitID := mux.Vars(r)["id"]

	var patch models.KitUpsert
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, apperr.User("invalid JSON body"))
		return
	}
	patch.KitID = kitID

	if err := s.admin.UpdateKit(r.Context(), patch); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"kit_id": kitID, "status": "updated"})
}

// handleDeleteKit implements DELETE /api/admin/kits/{id}?delete_data=bool.
func (s *Server) handleDeleteKit(w http.ResponseWriter, r *http.Request) {
	kitID := mux.Vars(r)["id"]

	cascade, err := parseBool(r, "delete_data", false)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.admin.DeleteKit(r.Context(), kitID, cascade); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"kit_id": kitID, "status": "deleted"})
}

// handleTestKit implements POST /api/admin/kits/test?api_url=... (a
// bounded connectivity probe, not a persisted kit).
func (s *Server) handleTestKit(w http.ResponseWriter, r *http.Request) {
	apiURL := r.URL.Query().Get("api_url")
	if apiURL == "" {
		writeError(w, apperr.User("api_url is required"))
		return
	}

	result := s.admin.TestConnection(r.Context(), apiURL)
	writeJSON(w, http.StatusOK, result)
}

// handleTestExistingKit implements POST /api/admin/kits/{id}/test: probe
// an already-registered kit's stored api_url rather than an ad hoc one.
func (s *Server) handleTestExistingKit(w http.ResponseWriter, r *http.Request) {
	kitID := mux.Vars(r)["id"]

	k, err := s.reader.GetKit(r.Context(), kitID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, apperr.NotFound("kit not found: "+kitID))
			return
		}
		writeError(w, apperr.Transient("get kit", err))
		return
	}
	if k.APIURL == nil || *k.APIURL == "" {
		writeError(w, apperr.User("kit has no api_url to test"))
		return
	}

	result := s.admin.TestConnection(r.Context(), *k.APIURL)
	writeJSON(w, http.StatusOK, result)
}

// reloadStatus is the response shape of GET /api/admin/kits/reload-status.
type reloadStatus struct {
	TotalKits   int          `json:"total_kits"`
	EnabledKits int          `json:"enabled_kits"`
	OnlineKits  int          `json:"online_kits"`
	Kits        []models.Kit `json:"kits"`
}

// handleReloadStatus implements GET /api/admin/kits/reload-status: a
// summary of the registry's current view of configured kits, useful for
// confirming a kit-file reconcile landed.
func (s *Server) handleReloadStatus(w http.ResponseWriter, r *http.Request) {
	kits, err := s.reader.ListKits(r.Context())
	if err != nil {
		writeError(w, apperr.Transient("list kits", err))
		return
	}
	if kits == nil {
		kits = []models.Kit{}
	}

	status := reloadStatus{TotalKits: len(kits), Kits: kits}
	for _, k := range kits {
		if k.Enabled {
			status.EnabledKits++
		}
		if k.Status == models.StatusOnline {
			status.OnlineKits++
		}
	}

	writeJSON(w, http.StatusOK, status)
}
