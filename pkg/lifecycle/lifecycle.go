// Package lifecycle drives post-assignment transitions: agency accept and
// reject, reject-triggered re-routing, manual reassignment, archival, and
// the post-acceptance working-status trail.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Mindburn-Labs/leadgrid/pkg/audit"
	"github.com/Mindburn-Labs/leadgrid/pkg/distributor"
	"github.com/Mindburn-Labs/leadgrid/pkg/lead"
	"github.com/Mindburn-Labs/leadgrid/pkg/notify"
	"github.com/Mindburn-Labs/leadgrid/pkg/store"
)

// WorkingStatuses is the post-acceptance status vocabulary agencies may
// report. The values land in the audit trail only; the lead row keeps its
// accepted status until archival.
var WorkingStatuses = map[string]bool{
	"contacted": true,
	"quoted":    true,
	"won":       true,
	"lost":      true,
}

// Controller owns lead lifecycle transitions after distribution.
type Controller struct {
	store    store.Store
	dist     *distributor.Distributor
	notifier notify.Notifier
	auditor  audit.Logger
	clock    lead.Clock
	ids      lead.IDGenerator
	logger   *slog.Logger
}

// Config wires the controller's dependencies.
type Config struct {
	Store       store.Store
	Distributor *distributor.Distributor
	Notifier    notify.Notifier
	Auditor     audit.Logger
	Clock       lead.Clock
	IDs         lead.IDGenerator
	Logger      *slog.Logger
}

// New builds a Controller. Nil optional capabilities get safe defaults.
func New(cfg Config) *Controller {
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Nop()
	}
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
	return &Controller{
		store:    cfg.Store,
		dist:     cfg.Distributor,
		notifier: cfg.Notifier,
		auditor:  cfg.Auditor,
		clock:    cfg.Clock,
		ids:      cfg.IDs,
		logger:   cfg.Logger,
	}
}

// Accept transitions the lead's pending assignment, held by agencyID, to
// accepted. The lead row moves to accepted in the same transaction.
func (c *Controller) Accept(ctx context.Context, leadID, agencyID string) (*lead.Assignment, error) {
	a, err := c.store.AcceptAssignment(ctx, leadID, agencyID, c.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	c.record(ctx, agencyID, audit.ActionLeadAccepted, leadID, map[string]string{
		"assignment_id": a.ID,
	})
	return a, nil
}

// RejectOutcome reports where a lead landed after a reject.
type RejectOutcome struct {
	Rejected *lead.Assignment
	// Reassigned is the replacement assignment, nil when no other agency
	// could take the lead.
	Reassigned *lead.Assignment
}

// Reject transitions the pending assignment to rejected and immediately
// re-routes the lead, excluding the rejecting agency from selection. A lead
// nobody else can take parks as unassigned; that is not an error for the
// rejecting caller.
func (c *Controller) Reject(ctx context.Context, leadID, agencyID, reason string) (*RejectOutcome, error) {
	rejected, err := c.store.RejectAssignment(ctx, leadID, agencyID, reason, c.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	c.record(ctx, agencyID, audit.ActionLeadRejected, leadID, map[string]string{
		"assignment_id": rejected.ID,
		"reason":        reason,
	})

	l, err := c.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("reload lead for re-routing: %w", err)
	}
	next, err := c.dist.Distribute(ctx, l, distributor.Options{
		Exclude: map[string]bool{agencyID: true},
		Method:  lead.MethodReassignment,
		Actor:   agencyID,
	})
	switch {
	case err == nil:
		return &RejectOutcome{Rejected: rejected, Reassigned: next}, nil
	case errors.Is(err, lead.ErrNoEligibleAgency) || errors.Is(err, lead.ErrNoEligibleAfterExclusion):
		return &RejectOutcome{Rejected: rejected}, nil
	default:
		return nil, err
	}
}

// Reassign moves a lead to an explicit target agency, bypassing rotation.
// Any active assignment is retired first; a lead with no active assignment
// (rejected out, or parked unassigned) reassigns cleanly. The territory
// cursor is untouched: manual placement must not skew the rotation.
func (c *Controller) Reassign(ctx context.Context, leadID, targetAgencyID, actor string) (*lead.Assignment, error) {
	if _, err := c.store.GetLead(ctx, leadID); err != nil {
		return nil, err
	}
	now := c.clock.Now().UTC()

	prior, err := c.store.MarkActiveReassigned(ctx, leadID, now)
	if err != nil && !errors.Is(err, lead.ErrAssignmentNotPending) {
		return nil, err
	}
	payload := map[string]string{"to_agency_id": targetAgencyID}
	if prior != nil {
		payload["from_agency_id"] = prior.AgencyID
	}

	assignment := &lead.Assignment{
		ID:         c.ids.NewID(),
		LeadID:     leadID,
		AgencyID:   targetAgencyID,
		Status:     lead.AssignmentPending,
		Method:     lead.MethodManual,
		AssignedAt: now,
	}
	if err := c.store.CreateAssignment(ctx, store.AssignParams{Assignment: assignment}); err != nil {
		return nil, err
	}
	c.record(ctx, actor, audit.ActionLeadReassigned, leadID, payload)

	if err := c.notifier.Enqueue(ctx, lead.Notification{LeadID: leadID, AgencyID: targetAgencyID}); err != nil {
		c.logger.Error("notification enqueue failed", "lead_id", leadID, "agency_id", targetAgencyID, "error", err)
	}
	return assignment, nil
}

// Archive retires the lead. A pending assignment is retired alongside; an
// accepted assignment blocks archival so won/lost resolution happens first.
func (c *Controller) Archive(ctx context.Context, leadID, actor string) error {
	active, err := c.store.GetActiveAssignment(ctx, leadID)
	if err != nil {
		return err
	}
	if active != nil {
		if active.Status == lead.AssignmentAccepted {
			return fmt.Errorf("lead %s has an accepted assignment: %w", leadID, lead.ErrAssignmentNotPending)
		}
		if _, err := c.store.MarkActiveReassigned(ctx, leadID, c.clock.Now().UTC()); err != nil {
			return err
		}
	}
	if err := c.store.UpdateLeadStatus(ctx, leadID, lead.StatusArchived, ""); err != nil {
		return err
	}
	c.record(ctx, actor, audit.ActionLeadArchived, leadID, nil)
	return nil
}

// UpdateWorkingStatus appends a post-acceptance status report to the audit
// trail. The lead row is not mutated: accepted is a terminal pipeline state
// and the working trail is reporting, not routing.
func (c *Controller) UpdateWorkingStatus(ctx context.Context, leadID, agencyID, status string) error {
	if !WorkingStatuses[status] {
		return &lead.ValidationError{Violations: []string{"status_invalid"}}
	}
	active, err := c.store.GetActiveAssignment(ctx, leadID)
	if err != nil {
		return err
	}
	if active == nil || active.Status != lead.AssignmentAccepted {
		return lead.ErrAssignmentNotPending
	}
	if active.AgencyID != agencyID {
		return lead.ErrAgencyMismatch
	}
	c.record(ctx, agencyID, audit.ActionStatusUpdated, leadID, map[string]string{
		"status": status,
	})
	return nil
}

func (c *Controller) record(ctx context.Context, actor, action, target string, payload map[string]string) {
	if err := c.auditor.Record(ctx, actor, action, target, payload); err != nil {
		c.logger.Error("audit record failed", "action", action, "error", err)
	}
}
