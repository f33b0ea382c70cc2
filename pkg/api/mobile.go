package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Mindburn-Labs/leadgrid/pkg/lead"
	"github.com/Mindburn-Labs/leadgrid/pkg/lifecycle"
	"github.com/Mindburn-Labs/leadgrid/pkg/store"
)

// MobileHandler serves the agency-facing surface: assigned-lead listing and
// the accept/reject/status actions. Every route runs behind AgencyAuth, so
// the agency identity always comes from the request context.
type MobileHandler struct {
	store store.Store
	ctrl  *lifecycle.Controller
}

// NewMobileHandler builds the handler.
func NewMobileHandler(s store.Store, ctrl *lifecycle.Controller) *MobileHandler {
	return &MobileHandler{store: s, ctrl: ctrl}
}

// ListLeads handles GET /api/leads: the agency's assignments newest first,
// each joined with its lead payload.
func (h *MobileHandler) ListLeads(w http.ResponseWriter, r *http.Request) {
	agencyID, err := AgencyFromContext(r.Context())
	if err != nil {
		WriteUnauthorized(w, "")
		return
	}
	assignments, err := h.store.ListAssignmentsForAgency(r.Context(), agencyID)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": assignments})
}

// Accept handles PUT /api/leads/{id}/accept.
func (h *MobileHandler) Accept(w http.ResponseWriter, r *http.Request) {
	agencyID, err := AgencyFromContext(r.Context())
	if err != nil {
		WriteUnauthorized(w, "")
		return
	}
	leadID := r.PathValue("id")

	a, err := h.ctrl.Accept(r.Context(), leadID, agencyID)
	if err != nil {
		h.writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignment": a})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// Reject handles PUT /api/leads/{id}/reject. The response reports where the
// lead went next: another agency, or back to the unassigned pool.
func (h *MobileHandler) Reject(w http.ResponseWriter, r *http.Request) {
	agencyID, err := AgencyFromContext(r.Context())
	if err != nil {
		WriteUnauthorized(w, "")
		return
	}
	leadID := r.PathValue("id")

	var req rejectRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // reason is optional
	}

	outcome, err := h.ctrl.Reject(r.Context(), leadID, agencyID, req.Reason)
	if err != nil {
		h.writeActionError(w, err)
		return
	}
	resp := map[string]any{"rejected": outcome.Rejected}
	if outcome.Reassigned != nil {
		resp["reassigned_to"] = outcome.Reassigned.AgencyID
	}
	writeJSON(w, http.StatusOK, resp)
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus handles PUT /api/leads/{id}/status: the post-acceptance
// working-status report.
func (h *MobileHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	agencyID, err := AgencyFromContext(r.Context())
	if err != nil {
		WriteUnauthorized(w, "")
		return
	}
	leadID := r.PathValue("id")

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Request body must be JSON with a status field")
		return
	}

	if err := h.ctrl.UpdateWorkingStatus(r.Context(), leadID, agencyID, req.Status); err != nil {
		if verr, ok := lead.IsValidation(err); ok {
			WriteBadRequest(w, verr.Error())
			return
		}
		h.writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// writeActionError maps lifecycle errors to status codes.
func (h *MobileHandler) writeActionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lead.ErrLeadNotFound):
		WriteNotFound(w, "Lead not found")
	case errors.Is(err, lead.ErrAgencyMismatch):
		WriteForbidden(w, "Lead is assigned to a different agency")
	case errors.Is(err, lead.ErrAssignmentNotPending):
		WriteConflict(w, "Lead is not in an actionable state")
	default:
		WriteInternal(w, err)
	}
}
