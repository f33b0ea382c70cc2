package distributor_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/leadgrid/pkg/distributor"
	"github.com/Mindburn-Labs/leadgrid/pkg/lead"
	"github.com/Mindburn-Labs/leadgrid/pkg/notify"
	"github.com/Mindburn-Labs/leadgrid/pkg/store"
)

func newFixture(t *testing.T) (*store.Memory, *distributor.Distributor, *notify.Queue) {
	t.Helper()
	m := store.NewMemory()
	q := notify.NewQueue(16, nil)
	seq := 0
	d := distributor.New(distributor.Config{
		Store:    m,
		Notifier: q,
		IDs: lead.IDFunc(func() string {
			seq++
			return fmt.Sprintf("as-%d", seq)
		}),
	})
	return m, d, q
}

func seedAgency(m *store.Memory, id string, territories ...string) {
	m.PutAgency(&lead.Agency{ID: id, Name: id, Active: true})
	m.PutSubscription(lead.Subscription{
		AgencyID:    id,
		Status:      lead.SubscriptionActive,
		Territories: territories,
	})
}

func newLead(t *testing.T, m *store.Memory, id, zipcode string) *lead.Lead {
	t.Helper()
	l := &lead.Lead{
		ID:        id,
		Name:      "Jane Doe",
		Email:     id + "@example.com",
		Zipcode:   zipcode,
		Status:    lead.StatusNew,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, m.CreateLead(context.Background(), l))
	return l
}

func TestDistribute_AssignsAndNotifies(t *testing.T) {
	m, d, q := newFixture(t)
	seedAgency(m, "a1", "78701")
	l := newLead(t, m, "l1", "78701")

	a, err := d.Distribute(context.Background(), l, distributor.Options{})
	require.NoError(t, err)
	assert.Equal(t, "a1", a.AgencyID)
	assert.Equal(t, lead.AssignmentPending, a.Status)
	assert.Equal(t, lead.MethodAuto, a.Method)

	got, err := m.GetLead(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, lead.StatusAssigned, got.Status)

	require.Equal(t, 1, q.Len())
	n := <-q.Events()
	assert.Equal(t, lead.Notification{LeadID: "l1", AgencyID: "a1"}, n)
}

func TestDistribute_RoundRobinAcrossLeads(t *testing.T) {
	m, d, _ := newFixture(t)
	seedAgency(m, "a1", "78701")
	seedAgency(m, "a2", "78701")
	seedAgency(m, "a3", "78701")

	var order []string
	for i := 0; i < 6; i++ {
		l := newLead(t, m, fmt.Sprintf("l%d", i), "78701")
		a, err := d.Distribute(context.Background(), l, distributor.Options{})
		require.NoError(t, err)
		order = append(order, a.AgencyID)
	}
	assert.Equal(t, []string{"a1", "a2", "a3", "a1", "a2", "a3"}, order)
}

func TestDistribute_NoEligibleParksLead(t *testing.T) {
	m, d, q := newFixture(t)
	seedAgency(m, "a1", "90210") // no coverage for the lead's territory
	l := newLead(t, m, "l1", "78701")

	_, err := d.Distribute(context.Background(), l, distributor.Options{})
	assert.ErrorIs(t, err, lead.ErrNoEligibleAgency)

	got, err := m.GetLead(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, lead.StatusUnassigned, got.Status)
	assert.Zero(t, q.Len())
}

func TestDistribute_ExclusionSkipsAgency(t *testing.T) {
	m, d, _ := newFixture(t)
	seedAgency(m, "a1", "78701")
	seedAgency(m, "a2", "78701")
	l := newLead(t, m, "l1", "78701")

	a, err := d.Distribute(context.Background(), l, distributor.Options{
		Exclude: map[string]bool{"a1": true},
		Method:  lead.MethodReassignment,
	})
	require.NoError(t, err)
	assert.Equal(t, "a2", a.AgencyID)
	assert.Equal(t, lead.MethodReassignment, a.Method)
}

func TestDistribute_AllExcludedParksLead(t *testing.T) {
	m, d, _ := newFixture(t)
	seedAgency(m, "a1", "78701")
	l := newLead(t, m, "l1", "78701")

	_, err := d.Distribute(context.Background(), l, distributor.Options{
		Exclude: map[string]bool{"a1": true},
	})
	assert.ErrorIs(t, err, lead.ErrNoEligibleAfterExclusion)

	got, _ := m.GetLead(context.Background(), "l1")
	assert.Equal(t, lead.StatusUnassigned, got.Status)
}

func TestDistribute_ConflictReturnsWinner(t *testing.T) {
	m, d, q := newFixture(t)
	seedAgency(m, "a1", "78701")
	seedAgency(m, "a2", "78701")
	l := newLead(t, m, "l1", "78701")

	// A competitor committed first.
	winner := &lead.Assignment{
		ID: "prior", LeadID: "l1", AgencyID: "a2",
		Status: lead.AssignmentPending, Method: lead.MethodAuto,
		AssignedAt: time.Now().UTC(),
	}
	require.NoError(t, m.CreateAssignment(context.Background(), store.AssignParams{Assignment: winner}))

	a, err := d.Distribute(context.Background(), l, distributor.Options{})
	require.NoError(t, err)
	assert.Equal(t, "prior", a.ID)
	assert.Equal(t, "a2", a.AgencyID)
	// No duplicate notification for the winner's commit.
	assert.Zero(t, q.Len())
}

func TestDistribute_CapacityExhaustedParksLead(t *testing.T) {
	m, d, _ := newFixture(t)
	m.PutAgency(&lead.Agency{ID: "a1", Active: true})
	m.PutSubscription(lead.Subscription{
		AgencyID:         "a1",
		Status:           lead.SubscriptionActive,
		Territories:      []string{"78701"},
		MonthlyLeadLimit: 1,
	})

	l1 := newLead(t, m, "l1", "78701")
	_, err := d.Distribute(context.Background(), l1, distributor.Options{})
	require.NoError(t, err)

	l2 := newLead(t, m, "l2", "78701")
	_, err = d.Distribute(context.Background(), l2, distributor.Options{})
	assert.ErrorIs(t, err, lead.ErrNoEligibleAgency)
}

func TestDistributeBatch(t *testing.T) {
	m, d, _ := newFixture(t)
	seedAgency(m, "a1", "78701")

	newLead(t, m, "l1", "78701")
	newLead(t, m, "l2", "90210") // nobody covers this one

	results, err := d.DistributeBatch(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byLead := map[string]distributor.BatchResult{}
	for _, r := range results {
		byLead[r.LeadID] = r
	}
	assert.Equal(t, "assigned", byLead["l1"].Outcome)
	assert.Equal(t, "a1", byLead["l1"].AgencyID)
	assert.Equal(t, "unassigned", byLead["l2"].Outcome)
}

// contentiousStore fails the assignment commit with a cursor conflict a
// fixed number of times before delegating, simulating a concurrent worker
// winning the territory cursor.
type contentiousStore struct {
	*store.Memory
	casFailures int
	createCalls int
	cursorReads int
}

func (s *contentiousStore) GetCursor(ctx context.Context, territory string) (*lead.SequenceCursor, error) {
	s.cursorReads++
	return s.Memory.GetCursor(ctx, territory)
}

func (s *contentiousStore) CreateAssignment(ctx context.Context, p store.AssignParams) error {
	s.createCalls++
	if s.createCalls <= s.casFailures {
		return lead.ErrCursorConflict
	}
	return s.Memory.CreateAssignment(ctx, p)
}

func newContentiousFixture(t *testing.T, casFailures int) (*contentiousStore, *distributor.Distributor) {
	t.Helper()
	cs := &contentiousStore{Memory: store.NewMemory(), casFailures: casFailures}
	seq := 0
	d := distributor.New(distributor.Config{
		Store: cs,
		IDs: lead.IDFunc(func() string {
			seq++
			return fmt.Sprintf("as-%d", seq)
		}),
	})
	return cs, d
}

func TestDistribute_CursorContentionRetriesWithFreshCursor(t *testing.T) {
	cs, d := newContentiousFixture(t, 2)
	seedAgency(cs.Memory, "a1", "78701")
	l := newLead(t, cs.Memory, "l1", "78701")

	a, err := d.Distribute(context.Background(), l, distributor.Options{})
	require.NoError(t, err)
	assert.Equal(t, "a1", a.AgencyID)

	// Two conflicts then the successful commit; the cursor is re-read on
	// every attempt, not just once up front.
	assert.Equal(t, 3, cs.createCalls)
	assert.Equal(t, 3, cs.cursorReads)
}

func TestDistribute_CursorContentionFallsThroughToNextCandidate(t *testing.T) {
	// Default retry budget is 3: four straight conflicts exhaust it and the
	// contended agency is skipped for the remainder of this distribution.
	cs, d := newContentiousFixture(t, 4)
	seedAgency(cs.Memory, "a1", "78701")
	seedAgency(cs.Memory, "a2", "78701")
	l := newLead(t, cs.Memory, "l1", "78701")

	a, err := d.Distribute(context.Background(), l, distributor.Options{})
	require.NoError(t, err)
	assert.Equal(t, "a2", a.AgencyID)
	assert.Equal(t, 5, cs.createCalls)
	assert.Equal(t, 5, cs.cursorReads)
}

type recordingMetrics struct {
	assigned []string
	parked   int
}

func (m *recordingMetrics) LeadAssigned(_ context.Context, method string) {
	m.assigned = append(m.assigned, method)
}

func (m *recordingMetrics) LeadParked(context.Context) { m.parked++ }

func TestDistribute_ReportsMetrics(t *testing.T) {
	m := store.NewMemory()
	rec := &recordingMetrics{}
	d := distributor.New(distributor.Config{Store: m, Metrics: rec})
	seedAgency(m, "a1", "78701")

	l := newLead(t, m, "l1", "78701")
	_, err := d.Distribute(context.Background(), l, distributor.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"auto"}, rec.assigned)

	parked := newLead(t, m, "l2", "90210")
	_, err = d.Distribute(context.Background(), parked, distributor.Options{})
	assert.ErrorIs(t, err, lead.ErrNoEligibleAgency)
	assert.Equal(t, 1, rec.parked)

	// A conflict winner was committed by someone else; no double count.
	competitor := newLead(t, m, "l3", "78701")
	require.NoError(t, m.CreateAssignment(context.Background(), store.AssignParams{
		Assignment: &lead.Assignment{
			ID: "prior", LeadID: "l3", AgencyID: "a1",
			Status: lead.AssignmentPending, Method: lead.MethodAuto,
			AssignedAt: time.Now().UTC(),
		},
	}))
	_, err = d.Distribute(context.Background(), competitor, distributor.Options{})
	require.NoError(t, err)
	assert.Len(t, rec.assigned, 1)
}

func TestDistribute_NoTerritoryIsHardError(t *testing.T) {
	m, d, _ := newFixture(t)
	l := &lead.Lead{ID: "l1", Name: "x", Status: lead.StatusNew}
	require.NoError(t, m.CreateLead(context.Background(), l))

	_, err := d.Distribute(context.Background(), l, distributor.Options{})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, lead.ErrNoEligibleAgency)
}
