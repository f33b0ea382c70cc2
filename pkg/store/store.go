// Package store owns all persistent pipeline state: leads, assignments,
// the per-territory distribution sequence, and the audit log. The store is
// the transactional boundary; every other component is a stateless
// transformer parameterized by a Store handle.
package store

import (
	"context"
	"time"

	"github.com/Mindburn-Labs/leadgrid/pkg/audit"
	"github.com/Mindburn-Labs/leadgrid/pkg/lead"
)

// AssignParams describes the atomic commit the coordinator requests: one
// assignment insert, the matching lead-status update, and (when Territory is
// set) a compare-and-set advance of the territory's sequence cursor.
type AssignParams struct {
	Assignment *lead.Assignment

	// Territory selects the cursor to advance; empty skips the advance
	// (manual reassignment bypasses the rotation).
	Territory string
	// ObservedCursor is the cursor the selector read; nil means the caller
	// observed no cursor for the territory. A mismatch at commit time fails
	// with lead.ErrCursorConflict.
	ObservedCursor *lead.SequenceCursor
}

// AgencyAssignment joins an assignment with its lead payload for the mobile
// read surface.
type AgencyAssignment struct {
	Assignment lead.Assignment `json:"assignment"`
	Lead       lead.Lead       `json:"lead"`
}

// Store is the durable persistence contract for the pipeline.
//
// All mutating methods preserve the invariants: at most one pending/accepted
// assignment per lead, atomic assignment+lead-status commits, and serialized
// cursor advances per territory.
type Store interface {
	// GetPortalByCode looks up a portal record for webhook authentication.
	// Returns lead.ErrPortalUnknown when absent.
	GetPortalByCode(ctx context.Context, code string) (*lead.Portal, error)

	// CreateLead inserts a canonical lead (single insert, status preset by
	// the caller, normally StatusNew).
	CreateLead(ctx context.Context, l *lead.Lead) error
	// GetLead returns lead.ErrLeadNotFound when absent.
	GetLead(ctx context.Context, id string) (*lead.Lead, error)
	// UpdateLeadStatus sets the status and current-agency pointer.
	UpdateLeadStatus(ctx context.Context, id string, status lead.Status, agencyID string) error
	// ListLeadsByStatus returns up to limit leads in creation order; used by
	// the batch distributor.
	ListLeadsByStatus(ctx context.Context, statuses []lead.Status, limit int) ([]*lead.Lead, error)
	// FindRecentLeadByContact returns the id of any lead whose normalized
	// email or phone matches and whose created_at is at or after since, or
	// "" when none. Empty email/phone never match.
	FindRecentLeadByContact(ctx context.Context, email, phone string, since time.Time) (string, error)

	// CreateAssignment performs the atomic commit described by AssignParams.
	// Fails with lead.ErrAssignmentConflict when any pending/accepted
	// assignment for the lead already exists, and lead.ErrCursorConflict
	// when the cursor CAS loses.
	CreateAssignment(ctx context.Context, p AssignParams) error
	// GetActiveAssignment returns the lead's pending/accepted assignment,
	// or nil when it has none.
	GetActiveAssignment(ctx context.Context, leadID string) (*lead.Assignment, error)
	// AcceptAssignment transitions the lead's pending assignment (held by
	// agencyID) to accepted and the lead to accepted, atomically. Errors:
	// lead.ErrLeadNotFound, lead.ErrAssignmentNotPending,
	// lead.ErrAgencyMismatch.
	AcceptAssignment(ctx context.Context, leadID, agencyID string, now time.Time) (*lead.Assignment, error)
	// RejectAssignment transitions the pending assignment to rejected with
	// a reason and the lead to pending_reassignment, atomically. Same error
	// set as AcceptAssignment.
	RejectAssignment(ctx context.Context, leadID, agencyID, reason string, now time.Time) (*lead.Assignment, error)
	// MarkActiveReassigned retires the lead's active assignment for a
	// manual reassignment and returns it. Errors with
	// lead.ErrAssignmentNotPending when the lead has no active assignment.
	MarkActiveReassigned(ctx context.Context, leadID string, now time.Time) (*lead.Assignment, error)
	// ListAssignmentsForAgency returns the agency's assignments, newest
	// first, each joined with its lead.
	ListAssignmentsForAgency(ctx context.Context, agencyID string) ([]*AgencyAssignment, error)
	// CountActiveAssignmentsInWindow counts pending+accepted assignments
	// for the agency with assigned_at in [from, to).
	CountActiveAssignmentsInWindow(ctx context.Context, agencyID string, from, to time.Time) (int, error)

	// EligibleCandidates returns the joined view of active agencies holding
	// at least one active/trial subscription, one Candidate per qualifying
	// (agency, subscription) pair. Territory and industry filtering is the
	// resolver's job.
	EligibleCandidates(ctx context.Context) ([]lead.Candidate, error)

	// GetCursor returns the territory's sequence cursor, or nil when the
	// territory has never been assigned.
	GetCursor(ctx context.Context, territory string) (*lead.SequenceCursor, error)

	// AppendAudit appends an immutable audit entry (audit.Sink).
	AppendAudit(ctx context.Context, e *audit.Entry) error
	// ListAudit returns up to limit entries in append order.
	ListAudit(ctx context.Context, limit int) ([]*audit.Entry, error)
}
