package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/Mindburn-Labs/leadgrid/pkg/config"
	"github.com/Mindburn-Labs/leadgrid/pkg/distributor"
	"github.com/Mindburn-Labs/leadgrid/pkg/lead"
	"github.com/Mindburn-Labs/leadgrid/pkg/lifecycle"
	"github.com/Mindburn-Labs/leadgrid/pkg/mapper"
	"github.com/Mindburn-Labs/leadgrid/pkg/store"
)

// defaultBatchLimit caps one batch-distribute sweep.
const defaultBatchLimit = 100

// AdminHandler serves the operator surface: manual distribution, batch
// distribution, reassignment, archival, the effective mapping schema, and
// the audit trail. Every route runs behind AdminAuth.
type AdminHandler struct {
	store    store.Store
	dist     *distributor.Distributor
	ctrl     *lifecycle.Controller
	profiles map[string]*config.MappingProfile
}

// NewAdminHandler builds the handler.
func NewAdminHandler(s store.Store, d *distributor.Distributor, ctrl *lifecycle.Controller, profiles map[string]*config.MappingProfile) *AdminHandler {
	return &AdminHandler{store: s, dist: d, ctrl: ctrl, profiles: profiles}
}

// Distribute handles POST /api/admin/leads/{id}/distribute: push one parked
// or fresh lead through the coordinator.
func (h *AdminHandler) Distribute(w http.ResponseWriter, r *http.Request) {
	leadID := r.PathValue("id")
	l, err := h.store.GetLead(r.Context(), leadID)
	if err != nil {
		if errors.Is(err, lead.ErrLeadNotFound) {
			WriteNotFound(w, "Lead not found")
			return
		}
		WriteInternal(w, err)
		return
	}
	if l.Status != lead.StatusNew && l.Status != lead.StatusUnassigned {
		WriteConflict(w, "Lead is not distributable in its current state")
		return
	}

	a, err := h.dist.Distribute(r.Context(), l, distributor.Options{
		Method: lead.MethodManual,
		Actor:  "admin",
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"assignment": a})
	case errors.Is(err, lead.ErrNoEligibleAgency) || errors.Is(err, lead.ErrNoEligibleAfterExclusion):
		writeJSON(w, http.StatusOK, map[string]any{"assignment": nil, "outcome": "unassigned"})
	default:
		WriteInternal(w, err)
	}
}

type batchDistributeRequest struct {
	Limit int `json:"limit"`
}

// BatchDistribute handles POST /api/admin/leads/batch-distribute: sweep
// undistributed leads. The limit comes from the JSON body ({"limit": n});
// ?limit= works too, with the body winning. Default 100.
func (h *AdminHandler) BatchDistribute(w http.ResponseWriter, r *http.Request) {
	limit := defaultBatchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if r.Body != nil {
		var req batchDistributeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Limit != 0 {
			if req.Limit < 0 {
				WriteBadRequest(w, "limit must be a positive integer")
				return
			}
			limit = req.Limit
		}
	}

	results, err := h.dist.DistributeBatch(r.Context(), limit)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "processed": len(results)})
}

type reassignRequest struct {
	AgencyID string `json:"agency_id"`
}

// Reassign handles PUT /api/admin/leads/{id}/reassign: move a lead to an
// explicit agency, bypassing rotation.
func (h *AdminHandler) Reassign(w http.ResponseWriter, r *http.Request) {
	leadID := r.PathValue("id")

	var req reassignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AgencyID == "" {
		WriteBadRequest(w, "Request body must be JSON with an agency_id field")
		return
	}

	a, err := h.ctrl.Reassign(r.Context(), leadID, req.AgencyID, "admin")
	if err != nil {
		switch {
		case errors.Is(err, lead.ErrLeadNotFound):
			WriteNotFound(w, "Lead not found")
		case errors.Is(err, lead.ErrAssignmentConflict):
			WriteConflict(w, "Lead already holds an active assignment")
		default:
			WriteInternal(w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignment": a})
}

// Archive handles PUT /api/admin/leads/{id}/archive.
func (h *AdminHandler) Archive(w http.ResponseWriter, r *http.Request) {
	leadID := r.PathValue("id")
	if err := h.ctrl.Archive(r.Context(), leadID, "admin"); err != nil {
		switch {
		case errors.Is(err, lead.ErrLeadNotFound):
			WriteNotFound(w, "Lead not found")
		case errors.Is(err, lead.ErrAssignmentNotPending):
			WriteConflict(w, "Lead has an accepted assignment; resolve it first")
		default:
			WriteInternal(w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Schema handles GET /api/admin/portals/{code}/schema: the effective synonym
// table a portal's payloads are mapped with.
func (h *AdminHandler) Schema(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	portal, err := h.store.GetPortalByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, lead.ErrPortalUnknown) {
			WriteNotFound(w, "Portal not found")
			return
		}
		WriteInternal(w, err)
		return
	}

	effective := make(map[string][]string, len(mapper.DefaultSynonyms))
	for field, syns := range mapper.DefaultSynonyms {
		effective[field] = syns
	}
	source := "default"
	if len(portal.MappingOverride) > 0 {
		source = "portal_override"
		for field, syns := range portal.MappingOverride {
			if len(syns) > 0 {
				effective[field] = syns
			}
		}
	} else if profile, ok := h.profiles[portal.Code]; ok {
		source = "profile"
		for field, syns := range profile.Synonyms {
			if len(syns) > 0 {
				effective[field] = syns
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"portal_code": portal.Code,
		"source":      source,
		"synonyms":    effective,
	})
}

// Audit handles GET /api/admin/audit: the append-order audit trail.
// ?limit= caps the page, default 100.
func (h *AdminHandler) Audit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	entries, err := h.store.ListAudit(r.Context(), limit)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
