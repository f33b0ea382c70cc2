package routing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/leadgrid/pkg/lead"
	"github.com/Mindburn-Labs/leadgrid/pkg/routing"
)

type staticSource []lead.Candidate

func (s staticSource) EligibleCandidates(context.Context) ([]lead.Candidate, error) {
	return s, nil
}

func candidate(agencyID, industry string, territories ...string) lead.Candidate {
	return lead.Candidate{
		Agency: lead.Agency{ID: agencyID, Industry: industry, Active: true},
		Subscription: lead.Subscription{
			AgencyID:    agencyID,
			Status:      lead.SubscriptionActive,
			Territories: territories,
		},
	}
}

func TestResolve_CoverageFilter(t *testing.T) {
	r := routing.NewResolver(staticSource{
		candidate("a1", "", "78701"),
		candidate("a2", "", "90210"),
		candidate("a3", "", lead.WildcardTerritory),
	})

	got, err := r.Resolve(context.Background(), "78701", "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a1", got[0].Agency.ID)
	assert.Equal(t, "a3", got[1].Agency.ID)
}

func TestResolve_IndustryPartition(t *testing.T) {
	src := staticSource{
		candidate("a1", "roofing", "78701"),
		candidate("a2", "plumbing", "78701"),
		candidate("a3", "", "78701"),
	}
	r := routing.NewResolver(src)

	// Industry match present: only the matched partition.
	got, err := r.Resolve(context.Background(), "78701", "Roofing")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].Agency.ID)

	// No match: all coverage-eligible agencies participate.
	got, err = r.Resolve(context.Background(), "78701", "landscaping")
	require.NoError(t, err)
	assert.Len(t, got, 3)

	// No industry on the lead: everyone is agnostic.
	got, err = r.Resolve(context.Background(), "78701", "")
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestResolve_CollapsesPerAgency(t *testing.T) {
	// Same agency with wildcard and exact coverage: exact wins, one entry.
	r := routing.NewResolver(staticSource{
		candidate("a1", "", lead.WildcardTerritory),
		candidate("a1", "", "78701"),
	})
	got, err := r.Resolve(context.Background(), "78701", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"78701"}, got[0].Subscription.Territories)
}

func TestResolve_Empty(t *testing.T) {
	r := routing.NewResolver(staticSource{candidate("a1", "", "90210")})
	got, err := r.Resolve(context.Background(), "78701", "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

type countMap map[string]int

func (c countMap) CountActiveAssignmentsInWindow(_ context.Context, agencyID string, _, _ time.Time) (int, error) {
	return c[agencyID], nil
}

func TestCapacity_Apply(t *testing.T) {
	counts := countMap{"a1": 99, "a2": 100, "a3": 5}
	f := routing.NewCapacityFilter(counts, lead.SystemClock())

	in := []lead.Candidate{
		candidate("a1", "", "78701"), // 99 < 100 default quota
		candidate("a2", "", "78701"), // exactly at quota: out
		candidate("a3", "", "78701"),
	}
	out, err := f.Apply(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a1", out[0].Agency.ID)
	assert.Equal(t, "a3", out[1].Agency.ID)
}

func TestQuota_Resolution(t *testing.T) {
	c := candidate("a1", "", "78701")
	assert.Equal(t, routing.DefaultQuota, routing.Quota(&c))

	c.PlanBaseUnits = 40
	assert.Equal(t, 40, routing.Quota(&c))

	c.Subscription.MonthlyLeadLimit = 25
	assert.Equal(t, 25, routing.Quota(&c))
}

func TestBillingWindow_CalendarMonth(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC)
	from, to := routing.BillingWindow(now, 0)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, now, to)
}

func TestBillingWindow_AnchorDay(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC)

	// Anchor already passed this month.
	from, _ := routing.BillingWindow(now, 15)
	assert.Equal(t, time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC), from)

	// Anchor still ahead: previous month's occurrence.
	from, _ = routing.BillingWindow(now, 28)
	assert.Equal(t, time.Date(2026, 7, 28, 0, 0, 0, 0, time.UTC), from)
}

func TestBillingWindow_ClampsShortMonths(t *testing.T) {
	// Anchor day 31 in March, before the 31st: February's clamp applies.
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	from, _ := routing.BillingWindow(now, 31)
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), from)
}

func TestSelect_Rotation(t *testing.T) {
	cands := []lead.Candidate{
		candidate("a1", "", "78701"),
		candidate("a2", "", "78701"),
		candidate("a3", "", "78701"),
	}

	// No cursor: start at index 0.
	got, err := routing.Select(cands, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "a1", got.Agency.ID)

	// Cursor on a1: next is a2; wraps from a3 to a1.
	got, err = routing.Select(cands, &lead.SequenceCursor{LastAssignedID: "a1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "a2", got.Agency.ID)

	got, err = routing.Select(cands, &lead.SequenceCursor{LastAssignedID: "a3"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "a1", got.Agency.ID)

	// Cursor agency no longer eligible: rotation restarts.
	got, err = routing.Select(cands, &lead.SequenceCursor{LastAssignedID: "gone"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "a1", got.Agency.ID)
}

func TestSelect_Exclusion(t *testing.T) {
	cands := []lead.Candidate{
		candidate("a1", "", "78701"),
		candidate("a2", "", "78701"),
	}

	got, err := routing.Select(cands, nil, map[string]bool{"a1": true})
	require.NoError(t, err)
	assert.Equal(t, "a2", got.Agency.ID)

	_, err = routing.Select(cands, nil, map[string]bool{"a1": true, "a2": true})
	assert.ErrorIs(t, err, lead.ErrNoEligibleAfterExclusion)
}
