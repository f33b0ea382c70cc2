package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Mindburn-Labs/leadgrid/pkg/audit"
	"github.com/Mindburn-Labs/leadgrid/pkg/lead"
)

// Memory is an in-process Store. It backs tests and single-process dev
// deployments; semantics (conflict detection, cursor CAS) match the SQL
// implementations exactly.
type Memory struct {
	mu sync.RWMutex

	portals       map[string]*lead.Portal // keyed by code
	agencies      map[string]*lead.Agency
	subscriptions []lead.Subscription
	planBaseUnits map[string]int // agency id -> plan fallback quota

	leads       map[string]*lead.Lead
	assignments map[string]*lead.Assignment
	byLead      map[string][]string // lead id -> assignment ids, append order
	cursors     map[string]*lead.SequenceCursor
	auditLog    []*audit.Entry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		portals:       make(map[string]*lead.Portal),
		agencies:      make(map[string]*lead.Agency),
		planBaseUnits: make(map[string]int),
		leads:         make(map[string]*lead.Lead),
		assignments:   make(map[string]*lead.Assignment),
		byLead:        make(map[string][]string),
		cursors:       make(map[string]*lead.SequenceCursor),
	}
}

// PutPortal seeds a portal record (admin surface owns these in production).
func (m *Memory) PutPortal(p *lead.Portal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.portals[p.Code] = &cp
}

// PutAgency seeds an agency record.
func (m *Memory) PutAgency(a *lead.Agency) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.agencies[a.ID] = &cp
}

// PutSubscription seeds a subscription row.
func (m *Memory) PutSubscription(s lead.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = append(m.subscriptions, s)
}

// SetPlanBaseUnits seeds the plan-level quota fallback for an agency.
func (m *Memory) SetPlanBaseUnits(agencyID string, units int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.planBaseUnits[agencyID] = units
}

func (m *Memory) GetPortalByCode(_ context.Context, code string) (*lead.Portal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.portals[code]
	if !ok {
		return nil, lead.ErrPortalUnknown
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) CreateLead(_ context.Context, l *lead.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	m.leads[l.ID] = &cp
	return nil
}

func (m *Memory) GetLead(_ context.Context, id string) (*lead.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.leads[id]
	if !ok {
		return nil, lead.ErrLeadNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *Memory) UpdateLeadStatus(_ context.Context, id string, status lead.Status, agencyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return lead.ErrLeadNotFound
	}
	l.Status = status
	l.AssignedAgencyID = agencyID
	l.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) ListLeadsByStatus(_ context.Context, statuses []lead.Status, limit int) ([]*lead.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := make(map[lead.Status]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var out []*lead.Lead
	for _, l := range m.leads {
		if want[l.Status] {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) FindRecentLeadByContact(_ context.Context, email, phone string, since time.Time) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var bestID string
	var bestAt time.Time
	for _, l := range m.leads {
		if l.CreatedAt.Before(since) {
			continue
		}
		emailMatch := email != "" && l.Email == email
		phoneMatch := phone != "" && l.Phone == phone
		if !emailMatch && !phoneMatch {
			continue
		}
		if bestID == "" || l.CreatedAt.After(bestAt) {
			bestID = l.ID
			bestAt = l.CreatedAt
		}
	}
	return bestID, nil
}

// activeAssignmentLocked returns the lead's pending/accepted assignment.
// Caller holds at least a read lock.
func (m *Memory) activeAssignmentLocked(leadID string) *lead.Assignment {
	for _, id := range m.byLead[leadID] {
		a := m.assignments[id]
		if a.Status.Active() {
			return a
		}
	}
	return nil
}

func (m *Memory) CreateAssignment(_ context.Context, p AssignParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := p.Assignment
	l, ok := m.leads[a.LeadID]
	if !ok {
		return lead.ErrLeadNotFound
	}
	if m.activeAssignmentLocked(a.LeadID) != nil {
		return lead.ErrAssignmentConflict
	}

	if p.Territory != "" {
		cur := m.cursors[p.Territory]
		switch {
		case cur == nil && p.ObservedCursor != nil:
			return lead.ErrCursorConflict
		case cur != nil && p.ObservedCursor == nil:
			return lead.ErrCursorConflict
		case cur != nil && !cur.LastAssignedAt.Equal(p.ObservedCursor.LastAssignedAt):
			return lead.ErrCursorConflict
		}
		next := &lead.SequenceCursor{
			Territory:      p.Territory,
			LastAssignedID: a.AgencyID,
			LastAssignedAt: a.AssignedAt,
		}
		if cur != nil {
			next.AssignmentsCount = cur.AssignmentsCount
		}
		next.AssignmentsCount++
		m.cursors[p.Territory] = next
	}

	cp := *a
	m.assignments[a.ID] = &cp
	m.byLead[a.LeadID] = append(m.byLead[a.LeadID], a.ID)
	l.Status = lead.StatusAssigned
	l.AssignedAgencyID = a.AgencyID
	l.UpdatedAt = a.AssignedAt
	return nil
}

func (m *Memory) GetActiveAssignment(_ context.Context, leadID string) (*lead.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a := m.activeAssignmentLocked(leadID)
	if a == nil {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

// pendingForAgencyLocked validates the accept/reject authorization under the
// write lock: lead exists, has a pending assignment, held by agencyID.
func (m *Memory) pendingForAgencyLocked(leadID, agencyID string) (*lead.Assignment, error) {
	if _, ok := m.leads[leadID]; !ok {
		return nil, lead.ErrLeadNotFound
	}
	a := m.activeAssignmentLocked(leadID)
	if a == nil || a.Status != lead.AssignmentPending {
		return nil, lead.ErrAssignmentNotPending
	}
	if a.AgencyID != agencyID {
		return nil, lead.ErrAgencyMismatch
	}
	return a, nil
}

func (m *Memory) AcceptAssignment(_ context.Context, leadID, agencyID string, now time.Time) (*lead.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.pendingForAgencyLocked(leadID, agencyID)
	if err != nil {
		return nil, err
	}
	a.Status = lead.AssignmentAccepted
	at := now
	a.AcceptedAt = &at
	l := m.leads[leadID]
	l.Status = lead.StatusAccepted
	l.UpdatedAt = now
	cp := *a
	return &cp, nil
}

func (m *Memory) RejectAssignment(_ context.Context, leadID, agencyID, reason string, now time.Time) (*lead.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.pendingForAgencyLocked(leadID, agencyID)
	if err != nil {
		return nil, err
	}
	a.Status = lead.AssignmentRejected
	at := now
	a.RejectedAt = &at
	a.Reason = reason
	l := m.leads[leadID]
	l.Status = lead.StatusPendingReassignment
	l.AssignedAgencyID = ""
	l.UpdatedAt = now
	cp := *a
	return &cp, nil
}

func (m *Memory) MarkActiveReassigned(_ context.Context, leadID string, now time.Time) (*lead.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.leads[leadID]; !ok {
		return nil, lead.ErrLeadNotFound
	}
	a := m.activeAssignmentLocked(leadID)
	if a == nil {
		return nil, lead.ErrAssignmentNotPending
	}
	a.Status = lead.AssignmentReassigned
	l := m.leads[leadID]
	l.AssignedAgencyID = ""
	l.UpdatedAt = now
	cp := *a
	return &cp, nil
}

func (m *Memory) ListAssignmentsForAgency(_ context.Context, agencyID string) ([]*AgencyAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*AgencyAssignment
	for _, a := range m.assignments {
		if a.AgencyID != agencyID {
			continue
		}
		l, ok := m.leads[a.LeadID]
		if !ok {
			continue
		}
		out = append(out, &AgencyAssignment{Assignment: *a, Lead: *l})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Assignment.AssignedAt.After(out[j].Assignment.AssignedAt)
	})
	return out, nil
}

func (m *Memory) CountActiveAssignmentsInWindow(_ context.Context, agencyID string, from, to time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, a := range m.assignments {
		if a.AgencyID != agencyID || !a.Status.Active() {
			continue
		}
		if a.AssignedAt.Before(from) || !a.AssignedAt.Before(to) {
			continue
		}
		count++
	}
	return count, nil
}

func (m *Memory) EligibleCandidates(_ context.Context) ([]lead.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []lead.Candidate
	for _, sub := range m.subscriptions {
		if !sub.Usable() {
			continue
		}
		a, ok := m.agencies[sub.AgencyID]
		if !ok || !a.Active {
			continue
		}
		out = append(out, lead.Candidate{
			Agency:        *a,
			Subscription:  sub,
			PlanBaseUnits: m.planBaseUnits[a.ID],
		})
	}
	return out, nil
}

func (m *Memory) GetCursor(_ context.Context, territory string) (*lead.SequenceCursor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cursors[territory]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) AppendAudit(_ context.Context, e *audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.auditLog = append(m.auditLog, &cp)
	return nil
}

func (m *Memory) ListAudit(_ context.Context, limit int) ([]*audit.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.auditLog
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]*audit.Entry, 0, len(entries))
	for _, e := range entries {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

// LastAuditHead implements audit.HeadSource.
func (m *Memory) LastAuditHead(_ context.Context) (uint64, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.auditLog) == 0 {
		return 0, "", nil
	}
	last := m.auditLog[len(m.auditLog)-1]
	return last.Sequence, last.EntryHash, nil
}

var _ Store = (*Memory)(nil)
