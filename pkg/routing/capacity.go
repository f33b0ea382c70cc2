package routing

import (
	"context"
	"time"

	"github.com/Mindburn-Labs/leadgrid/pkg/lead"
)

// DefaultQuota applies when neither the subscription nor its plan carries a
// monthly limit.
const DefaultQuota = 100

// AssignmentCounter is the windowed count the capacity filter needs.
type AssignmentCounter interface {
	CountActiveAssignmentsInWindow(ctx context.Context, agencyID string, from, to time.Time) (int, error)
}

// CapacityFilter removes candidates whose pending+accepted assignments in
// the current billing window already meet their quota. Input ordering is
// preserved.
type CapacityFilter struct {
	counter AssignmentCounter
	clock   lead.Clock
}

// NewCapacityFilter builds a filter over an assignment counter.
func NewCapacityFilter(counter AssignmentCounter, clock lead.Clock) *CapacityFilter {
	return &CapacityFilter{counter: counter, clock: clock}
}

// Apply retains candidates with current_count strictly less than quota.
// An agency exactly at quota is excluded.
func (f *CapacityFilter) Apply(ctx context.Context, candidates []lead.Candidate) ([]lead.Candidate, error) {
	now := f.clock.Now()
	var out []lead.Candidate
	for _, c := range candidates {
		from, to := BillingWindow(now, c.Subscription.BillingAnchorDay)
		count, err := f.counter.CountActiveAssignmentsInWindow(ctx, c.Agency.ID, from, to)
		if err != nil {
			return nil, err
		}
		if count < Quota(&c) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Quota resolves the effective monthly limit: the subscription's explicit
// limit, then the plan's base units, then DefaultQuota.
func Quota(c *lead.Candidate) int {
	if c.Subscription.MonthlyLeadLimit > 0 {
		return c.Subscription.MonthlyLeadLimit
	}
	if c.PlanBaseUnits > 0 {
		return c.PlanBaseUnits
	}
	return DefaultQuota
}

// BillingWindow returns [from, now) for the agency's billing cycle. With no
// anchor day the window starts at the first of the calendar month; with an
// anchor day d it starts at the most recent occurrence of day d, clamped to
// the month's length.
func BillingWindow(now time.Time, anchorDay int) (time.Time, time.Time) {
	if anchorDay <= 0 {
		from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return from, now
	}

	year, month := now.Year(), now.Month()
	day := clampDay(year, month, anchorDay)
	from := time.Date(year, month, day, 0, 0, 0, 0, now.Location())
	if from.After(now) {
		// Anchor has not occurred yet this month; use last month's.
		prev := now.AddDate(0, -1, 0)
		year, month = prev.Year(), prev.Month()
		day = clampDay(year, month, anchorDay)
		from = time.Date(year, month, day, 0, 0, 0, 0, now.Location())
	}
	return from, now
}

// clampDay bounds an anchor day to the month's last day (31 in February
// becomes 28 or 29).
func clampDay(year int, month time.Month, day int) int {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		return last
	}
	return day
}
