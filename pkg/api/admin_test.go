package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/leadgrid/pkg/lead"
)

func (h *harness) adminRequest(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("X-Admin-Key", testAdminKey)
	resp, err := h.server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func TestAdmin_RequiresKey(t *testing.T) {
	h := newHarness(t)

	resp, err := h.server.Client().Get(h.server.URL + "/api/admin/audit")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, h.server.URL+"/api/admin/audit", nil)
	req.Header.Set("X-Admin-Key", "wrong")
	resp, err = h.server.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAdmin_DistributeParkedLead(t *testing.T) {
	h := newHarness(t)

	// Ingest with nobody eligible: the lead parks unassigned.
	out := decodeWebhook(t, h.webhook(t, "acme", testPortalSecret, leadPayload("jane@example.com")))
	require.True(t, out.Success)
	require.Empty(t, out.AgencyID)

	// Bring an agency online, then distribute manually.
	h.seedAgency(t, "a1", "78701")
	resp := h.adminRequest(t, http.MethodPost, "/api/admin/leads/"+out.LeadID+"/distribute", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	require.NotNil(t, body["assignment"])

	l, err := h.store.GetLead(t.Context(), out.LeadID)
	require.NoError(t, err)
	assert.Equal(t, lead.StatusAssigned, l.Status)
}

func TestAdmin_DistributeNonDistributable(t *testing.T) {
	h := newHarness(t)
	h.seedAgency(t, "a1", "78701")
	leadID := h.ingest(t, "jane@example.com") // already assigned

	resp := h.adminRequest(t, http.MethodPost, "/api/admin/leads/"+leadID+"/distribute", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestAdmin_BatchDistribute(t *testing.T) {
	h := newHarness(t)
	h.seedAgency(t, "a1", "78701")

	// Leads created directly in the store, outside the webhook path.
	for _, id := range []string{"l1", "l2", "l3"} {
		require.NoError(t, h.store.CreateLead(t.Context(), &lead.Lead{
			ID: id, Name: "x", Email: id + "@y.co", Zipcode: "78701", Status: lead.StatusNew,
		}))
	}

	// The documented contract: limit in the JSON body.
	resp := h.adminRequest(t, http.MethodPost, "/api/admin/leads/batch-distribute", map[string]int{"limit": 1})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(1), body["processed"])

	// No body sweeps the rest under the default limit.
	resp = h.adminRequest(t, http.MethodPost, "/api/admin/leads/batch-distribute", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Equal(t, float64(2), body["processed"])

	resp = h.adminRequest(t, http.MethodPost, "/api/admin/leads/batch-distribute", map[string]int{"limit": -4})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = h.adminRequest(t, http.MethodPost, "/api/admin/leads/batch-distribute?limit=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestAdmin_Reassign(t *testing.T) {
	h := newHarness(t)
	h.seedAgency(t, "a1", "78701")
	h.seedAgency(t, "a2", "78701")
	leadID := h.ingest(t, "jane@example.com")

	resp := h.adminRequest(t, http.MethodPut, "/api/admin/leads/"+leadID+"/reassign", map[string]string{"agency_id": "a2"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assignment := body["assignment"].(map[string]any)
	assert.Equal(t, "a2", assignment["agency_id"])

	// Missing agency_id is a 400.
	resp = h.adminRequest(t, http.MethodPut, "/api/admin/leads/"+leadID+"/reassign", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestAdmin_Archive(t *testing.T) {
	h := newHarness(t)
	h.seedAgency(t, "a1", "78701")
	leadID := h.ingest(t, "jane@example.com")

	resp := h.adminRequest(t, http.MethodPut, "/api/admin/leads/"+leadID+"/archive", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	l, err := h.store.GetLead(t.Context(), leadID)
	require.NoError(t, err)
	assert.Equal(t, lead.StatusArchived, l.Status)
}

func TestAdmin_Schema(t *testing.T) {
	h := newHarness(t)
	h.store.PutPortal(&lead.Portal{
		ID: "p3", Code: "custom", Status: lead.PortalActive,
		MappingOverride: map[string][]string{"email": {"contact_email"}},
	})

	resp := h.adminRequest(t, http.MethodGet, "/api/admin/portals/custom/schema", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "portal_override", body["source"])
	synonyms := body["synonyms"].(map[string]any)
	assert.Equal(t, []any{"contact_email"}, synonyms["email"])

	resp = h.adminRequest(t, http.MethodGet, "/api/admin/portals/acme/schema", nil)
	body = decodeBody(t, resp)
	assert.Equal(t, "default", body["source"])

	resp = h.adminRequest(t, http.MethodGet, "/api/admin/portals/ghost/schema", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestAdmin_Audit(t *testing.T) {
	h := newHarness(t)
	resp := h.adminRequest(t, http.MethodGet, "/api/admin/audit", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
