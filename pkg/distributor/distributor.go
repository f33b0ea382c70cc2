// Package distributor commits lead assignments: it runs eligibility,
// capacity, and round-robin selection over a store snapshot, then performs
// the atomic assignment transaction, retrying when a concurrent distributor
// wins the territory cursor.
package distributor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Mindburn-Labs/leadgrid/pkg/audit"
	"github.com/Mindburn-Labs/leadgrid/pkg/lead"
	"github.com/Mindburn-Labs/leadgrid/pkg/notify"
	"github.com/Mindburn-Labs/leadgrid/pkg/routing"
	"github.com/Mindburn-Labs/leadgrid/pkg/store"
)

// DefaultRetryMax bounds cursor CAS retries before falling through to the
// next candidate.
const DefaultRetryMax = 3

// Metrics is the slice of telemetry the coordinator reports. The
// observability provider satisfies it; tests use lightweight fakes.
type Metrics interface {
	LeadAssigned(ctx context.Context, method string)
	LeadParked(ctx context.Context)
}

type nopMetrics struct{}

func (nopMetrics) LeadAssigned(context.Context, string) {}
func (nopMetrics) LeadParked(context.Context) {}

// Distributor is the assignment coordinator.
type Distributor struct {
	store    store.Store
	resolver *routing.Resolver
	capacity *routing.CapacityFilter
	notifier notify.Notifier
	auditor  audit.Logger
	clock    lead.Clock
	ids      lead.IDGenerator
	logger   *slog.Logger
	metrics  Metrics
	retryMax int
}

// Config wires the coordinator's dependencies.
type Config struct {
	Store    store.Store
	Notifier notify.Notifier
	Auditor  audit.Logger
	Clock    lead.Clock
	IDs      lead.IDGenerator
	Logger   *slog.Logger
	Metrics  Metrics
	// RetryMax bounds cursor CAS retries; non-positive uses DefaultRetryMax.
	RetryMax int
}

// New builds a Distributor. Nil optional capabilities get safe defaults.
func New(cfg Config) *Distributor {
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
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = DefaultRetryMax
	}
	return &Distributor{
		store:    cfg.Store,
		resolver: routing.NewResolver(cfg.Store),
		capacity: routing.NewCapacityFilter(cfg.Store, cfg.Clock),
		notifier: cfg.Notifier,
		auditor:  cfg.Auditor,
		clock:    cfg.Clock,
		ids:      cfg.IDs,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		retryMax: cfg.RetryMax,
	}
}

// Options tunes a single distribution.
type Options struct {
	// Exclude removes agencies from selection; used for reject re-routing.
	Exclude map[string]bool
	// Method records how the assignment was produced; empty means auto.
	Method lead.AssignmentMethod
	// Actor is recorded in the audit trail; empty means "system".
	Actor string
}

// Distribute selects and commits exactly one assignment for the lead.
//
// When no agency is eligible (or none survives capacity or the exclusion
// set) the lead is parked as unassigned and the routing error is returned;
// callers treat it as a soft failure, the lead itself was accepted. When a
// concurrent worker already assigned the lead, the winner's assignment is
// returned with no error.
func (d *Distributor) Distribute(ctx context.Context, l *lead.Lead, opts Options) (*lead.Assignment, error) {
	if opts.Method == "" {
		opts.Method = lead.MethodAuto
	}
	actor := opts.Actor
	if actor == "" {
		actor = "system"
	}
	territory := l.TerritoryKey()
	if territory == "" {
		return nil, fmt.Errorf("lead %s has no derivable territory", l.ID)
	}

	candidates, err := d.resolver.Resolve(ctx, territory, l.Industry)
	if err != nil {
		return nil, fmt.Errorf("resolve eligibility: %w", err)
	}
	if len(candidates) == 0 {
		return nil, d.parkUnassigned(ctx, l, actor, lead.ErrNoEligibleAgency)
	}

	candidates, err = d.capacity.Apply(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("apply capacity filter: %w", err)
	}
	if len(candidates) == 0 {
		return nil, d.parkUnassigned(ctx, l, actor, lead.ErrNoEligibleAgency)
	}

	assignment, err := d.commit(ctx, l, territory, candidates, opts)
	if err != nil {
		if errors.Is(err, lead.ErrNoEligibleAfterExclusion) {
			return nil, d.parkUnassigned(ctx, l, actor, lead.ErrNoEligibleAfterExclusion)
		}
		return nil, err
	}

	if assignment.Method != "" { // committed by us, not a conflict winner
		d.metrics.LeadAssigned(ctx, string(assignment.Method))
		d.notify(ctx, l, assignment)
	}
	return assignment, nil
}

// commit runs the selector/CAS loop. Cursor contention retries the selector
// with a fresh cursor read up to retryMax times; past that the contended
// choice is skipped so the rotation falls through to the next candidate in
// the current ordering.
func (d *Distributor) commit(ctx context.Context, l *lead.Lead, territory string, candidates []lead.Candidate, opts Options) (*lead.Assignment, error) {
	skip := make(map[string]bool, len(opts.Exclude))
	for id := range opts.Exclude {
		skip[id] = true
	}

	attempts := 0
	var lastChosen string
	for {
		cursor, err := d.store.GetCursor(ctx, territory)
		if err != nil {
			return nil, fmt.Errorf("read cursor: %w", err)
		}
		chosen, err := routing.Select(candidates, cursor, skip)
		if err != nil {
			return nil, err
		}

		now := d.clock.Now().UTC()
		assignment := &lead.Assignment{
			ID:         d.ids.NewID(),
			LeadID:     l.ID,
			AgencyID:   chosen.Agency.ID,
			Status:     lead.AssignmentPending,
			Method:     opts.Method,
			AssignedAt: now,
		}
		err = d.store.CreateAssignment(ctx, store.AssignParams{
			Assignment:     assignment,
			Territory:      territory,
			ObservedCursor: cursor,
		})
		switch {
		case err == nil:
			if aerr := d.auditor.Record(ctx, "system", audit.ActionLeadAssigned, l.ID, map[string]string{
				"agency_id": chosen.Agency.ID,
				"method":    string(opts.Method),
				"territory": territory,
			}); aerr != nil {
				d.logger.Error("audit record failed", "action", audit.ActionLeadAssigned, "error", aerr)
			}
			return assignment, nil

		case errors.Is(err, lead.ErrAssignmentConflict):
			// Another worker assigned this lead; its commit wins.
			winner, gerr := d.store.GetActiveAssignment(ctx, l.ID)
			if gerr != nil {
				return nil, fmt.Errorf("load winning assignment: %w", gerr)
			}
			if winner == nil {
				return nil, lead.ErrAssignmentConflict
			}
			winner.Method = "" // marks a conflict winner for the caller
			return winner, nil

		case errors.Is(err, lead.ErrCursorConflict):
			attempts++
			if attempts > d.retryMax {
				skip[chosen.Agency.ID] = true
				attempts = 0
				lastChosen = chosen.Agency.ID
				d.logger.Warn("cursor contention exhausted retries, skipping candidate",
					"territory", territory, "agency_id", lastChosen)
			}
			continue

		default:
			return nil, fmt.Errorf("create assignment: %w", err)
		}
	}
}

// parkUnassigned records the soft-failure outcome: the lead stays persisted
// with status unassigned and no assignment row.
func (d *Distributor) parkUnassigned(ctx context.Context, l *lead.Lead, actor string, cause error) error {
	if err := d.store.UpdateLeadStatus(ctx, l.ID, lead.StatusUnassigned, ""); err != nil {
		return fmt.Errorf("park lead unassigned: %w", err)
	}
	d.metrics.LeadParked(ctx)
	action := audit.ActionNoEligibleAgency
	if err := d.auditor.Record(ctx, actor, action, l.ID, map[string]string{
		"territory": l.TerritoryKey(),
		"cause":     cause.Error(),
	}); err != nil {
		d.logger.Error("audit record failed", "action", action, "error", err)
	}
	if err := d.auditor.Record(ctx, actor, audit.ActionLeadUnassigned, l.ID, nil); err != nil {
		d.logger.Error("audit record failed", "action", audit.ActionLeadUnassigned, "error", err)
	}
	return cause
}

// notify enqueues the assignment event. Failures are logged, never
// propagated: the commit stands regardless of the sink.
func (d *Distributor) notify(ctx context.Context, l *lead.Lead, a *lead.Assignment) {
	if err := d.notifier.Enqueue(ctx, lead.Notification{LeadID: l.ID, AgencyID: a.AgencyID}); err != nil {
		d.logger.Error("notification enqueue failed", "lead_id", l.ID, "agency_id", a.AgencyID, "error", err)
	}
}

// BatchResult summarizes one lead processed by DistributeBatch.
type BatchResult struct {
	LeadID   string `json:"lead_id"`
	AgencyID string `json:"agency_id,omitempty"`
	Outcome  string `json:"outcome"` // assigned | unassigned | error
	Error    string `json:"error,omitempty"`
}

// DistributeBatch processes up to limit leads currently in state new with
// no assignment. Soft routing failures park the lead and continue; store
// failures stop the batch.
func (d *Distributor) DistributeBatch(ctx context.Context, limit int) ([]BatchResult, error) {
	leads, err := d.store.ListLeadsByStatus(ctx, []lead.Status{lead.StatusNew}, limit)
	if err != nil {
		return nil, fmt.Errorf("list new leads: %w", err)
	}

	results := make([]BatchResult, 0, len(leads))
	for _, l := range leads {
		a, err := d.Distribute(ctx, l, Options{Method: lead.MethodAuto})
		switch {
		case err == nil:
			results = append(results, BatchResult{LeadID: l.ID, AgencyID: a.AgencyID, Outcome: "assigned"})
		case errors.Is(err, lead.ErrNoEligibleAgency) || errors.Is(err, lead.ErrNoEligibleAfterExclusion):
			results = append(results, BatchResult{LeadID: l.ID, Outcome: "unassigned"})
		default:
			results = append(results, BatchResult{LeadID: l.ID, Outcome: "error", Error: err.Error()})
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
		}
	}
	return results, nil
}
