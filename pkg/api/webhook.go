package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Mindburn-Labs/leadgrid/pkg/audit"
	"github.com/Mindburn-Labs/leadgrid/pkg/config"
	"github.com/Mindburn-Labs/leadgrid/pkg/dedup"
	"github.com/Mindburn-Labs/leadgrid/pkg/distributor"
	"github.com/Mindburn-Labs/leadgrid/pkg/lead"
	"github.com/Mindburn-Labs/leadgrid/pkg/mapper"
	"github.com/Mindburn-Labs/leadgrid/pkg/store"
	"github.com/Mindburn-Labs/leadgrid/pkg/validate"
)

// maxWebhookBody bounds the accepted payload size.
const maxWebhookBody = 1 << 20 // 1 MiB

// WebhookResponse is the fixed contract portals integrate against. Its shape
// is stable regardless of the internal error taxonomy.
type WebhookResponse struct {
	Success   bool     `json:"success"`
	LeadID    string   `json:"lead_id,omitempty"`
	Duplicate bool     `json:"duplicate,omitempty"`
	AgencyID  string   `json:"agency_id,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// PipelineMetrics is the slice of telemetry the ingestion pipeline reports.
// The observability provider satisfies it.
type PipelineMetrics interface {
	LeadCreated(ctx context.Context, portalCode string)
	DuplicateSuppressed(ctx context.Context)
}

type nopPipelineMetrics struct{}

func (nopPipelineMetrics) LeadCreated(context.Context, string) {}
func (nopPipelineMetrics) DuplicateSuppressed(context.Context) {}

// WebhookHandler runs the ingestion pipeline: portal auth, schema mapping,
// validation, dedup, persistence, and distribution, under one deadline.
type WebhookHandler struct {
	store    store.Store
	dedup    *dedup.Deduplicator
	dist     *distributor.Distributor
	auditor  audit.Logger
	clock    lead.Clock
	ids      lead.IDGenerator
	logger   *slog.Logger
	metrics  PipelineMetrics
	deadline time.Duration

	// profiles supplies file-based mapping overrides for portals with no
	// override stored on the portal record.
	profiles map[string]*config.MappingProfile
}

// WebhookConfig wires the handler.
type WebhookConfig struct {
	Store       store.Store
	Dedup       *dedup.Deduplicator
	Distributor *distributor.Distributor
	Auditor     audit.Logger
	Clock       lead.Clock
	IDs         lead.IDGenerator
	Logger      *slog.Logger
	Metrics     PipelineMetrics
	Deadline    time.Duration
	Profiles    map[string]*config.MappingProfile
}

// NewWebhookHandler builds the handler. Nil optional capabilities get safe
// defaults; a non-positive deadline uses 10 seconds.
func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	if cfg.Auditor == nil {
		cfg.Auditor = audit.Nop()
	}
	if cfg.Clock == nil {
		cfg.Clock = lead.SystemClock()
	}
	if cfg.IDs == nil {
		cfg.IDs = lead.UUIDGenerator()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopPipelineMetrics{}
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = 10 * time.Second
	}
	return &WebhookHandler{
		store:    cfg.Store,
		dedup:    cfg.Dedup,
		dist:     cfg.Distributor,
		auditor:  cfg.Auditor,
		clock:    cfg.Clock,
		ids:      cfg.IDs,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		deadline: cfg.Deadline,
		profiles: cfg.Profiles,
	}
}

// ServeHTTP handles POST /api/webhooks/{portal_code}.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.deadline)
	defer cancel()

	portalCode := r.PathValue("portal_code")
	portal, err := h.authenticate(ctx, portalCode, r.Header.Get("X-API-Key"))
	if err != nil {
		h.rejectAuth(ctx, w, r, portalCode, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, WebhookResponse{Errors: []string{"body_unreadable"}})
		return
	}
	payload, err := mapper.DecodePayload(body)
	if err != nil {
		h.record(ctx, portalCode, audit.ActionWebhookRejected, "", map[string]string{
			"reason": "payload_not_object",
		})
		writeJSON(w, http.StatusBadRequest, WebhookResponse{Errors: []string{"payload_not_object"}})
		return
	}

	h.record(ctx, portalCode, audit.ActionWebhookReceived, "", sanitizeHeaders(r.Header))

	canonical := h.mapperFor(portal).Map(payload)
	if err := validate.Canonical(canonical); err != nil {
		verr, _ := lead.IsValidation(err)
		h.record(ctx, portalCode, audit.ActionValidationFailed, "", map[string]any{
			"violations": verr.Violations,
		})
		writeJSON(w, http.StatusBadRequest, WebhookResponse{Errors: verr.Violations})
		return
	}

	if err := h.dedup.Check(ctx, canonical.Email, canonical.Phone); err != nil {
		if dup, ok := lead.IsDuplicate(err); ok {
			h.metrics.DuplicateSuppressed(ctx)
			h.record(ctx, portalCode, audit.ActionDuplicateSuppressed, dup.ExistingID, nil)
			writeJSON(w, http.StatusOK, WebhookResponse{Success: true, LeadID: dup.ExistingID, Duplicate: true})
			return
		}
		WriteInternal(w, err)
		return
	}

	l, err := h.persist(ctx, portal, canonical)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	h.metrics.LeadCreated(ctx, portalCode)
	h.record(ctx, portalCode, audit.ActionLeadCreated, l.ID, nil)

	resp := WebhookResponse{Success: true, LeadID: l.ID}
	assignment, err := h.dist.Distribute(ctx, l, distributor.Options{Method: lead.MethodAuto})
	switch {
	case err == nil:
		resp.AgencyID = assignment.AgencyID
	case errors.Is(err, lead.ErrNoEligibleAgency) || errors.Is(err, lead.ErrNoEligibleAfterExclusion):
		// Lead accepted, nobody to route it to. Still a 200.
	default:
		h.logger.Error("distribution failed after lead creation", "lead_id", l.ID, "error", err)
	}
	writeJSON(w, http.StatusOK, resp)
}

// authenticate resolves the portal and checks the shared-secret header.
func (h *WebhookHandler) authenticate(ctx context.Context, code, apiKey string) (*lead.Portal, error) {
	portal, err := h.store.GetPortalByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if portal.Status != lead.PortalActive {
		return nil, lead.ErrPortalInactive
	}
	if portal.SecretHash == "" || apiKey == "" {
		return nil, lead.ErrPortalAuthFailed
	}
	if err := bcrypt.CompareHashAndPassword([]byte(portal.SecretHash), []byte(apiKey)); err != nil {
		return nil, lead.ErrPortalAuthFailed
	}
	return portal, nil
}

func (h *WebhookHandler) rejectAuth(ctx context.Context, w http.ResponseWriter, r *http.Request, portalCode string, err error) {
	h.record(ctx, portalCode, audit.ActionWebhookRejected, "", map[string]any{
		"reason":  err.Error(),
		"headers": sanitizeHeaders(r.Header),
	})
	switch {
	case errors.Is(err, lead.ErrPortalInactive):
		WriteForbidden(w, "Portal is not accepting leads")
	case errors.Is(err, lead.ErrPortalUnknown), errors.Is(err, lead.ErrPortalAuthFailed):
		WriteUnauthorized(w, "Unknown portal or invalid credentials")
	default:
		WriteInternal(w, err)
	}
}

// mapperFor builds the portal's mapper: a DB-stored override wins, else a
// file profile matching the portal code, else the defaults.
func (h *WebhookHandler) mapperFor(p *lead.Portal) *mapper.Mapper {
	if len(p.MappingOverride) > 0 {
		return mapper.New(p.MappingOverride)
	}
	if profile, ok := h.profiles[p.Code]; ok {
		return mapper.New(profile.Synonyms)
	}
	return mapper.New(nil)
}

func (h *WebhookHandler) persist(ctx context.Context, portal *lead.Portal, c *mapper.Canonical) (*lead.Lead, error) {
	extras, err := c.ExtrasJSON()
	if err != nil {
		return nil, err
	}
	industry := c.Industry
	if industry == "" {
		industry = portal.Industry
	}
	now := h.clock.Now().UTC()
	l := &lead.Lead{
		ID:        h.ids.NewID(),
		PortalID:  portal.ID,
		Name:      c.Name,
		Email:     c.Email,
		Phone:     c.Phone,
		City:      c.City,
		State:     c.State,
		Zipcode:   c.Zipcode,
		Country:   c.Country,
		Industry:  industry,
		Status:    lead.StatusNew,
		Extras:    extras,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.store.CreateLead(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

func (h *WebhookHandler) record(ctx context.Context, portalCode, action, target string, payload any) {
	if err := h.auditor.Record(ctx, "portal:"+portalCode, action, target, payload); err != nil {
		h.logger.Error("audit record failed", "action", action, "error", err)
	}
}

// sanitizeHeaders copies request headers for the audit trail, dropping
// credentials.
func sanitizeHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		switch http.CanonicalHeaderKey(k) {
		case "X-Api-Key", "Authorization", "Cookie":
			continue
		}
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
