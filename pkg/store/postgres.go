package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Mindburn-Labs/leadgrid/pkg/audit"
	"github.com/Mindburn-Labs/leadgrid/pkg/lead"
)

// Postgres is the durable Store backed by PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// pgSchema creates the pipeline tables. Portals, agencies, subscriptions,
// and plans are owned by the admin surface; they are created here so a
// fresh database can serve the pipeline, but the pipeline only reads them.
const pgSchema = `
CREATE TABLE IF NOT EXISTS portals (
	id TEXT PRIMARY KEY,
	code TEXT UNIQUE NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	industry TEXT NOT NULL DEFAULT '',
	secret_hash TEXT NOT NULL,
	mapping_override JSONB
);

CREATE TABLE IF NOT EXISTS agencies (
	id TEXT PRIMARY KEY,
	business_name TEXT NOT NULL,
	industry TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS plans (
	id TEXT PRIMARY KEY,
	base_units INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS subscriptions (
	id TEXT PRIMARY KEY,
	agency_id TEXT NOT NULL REFERENCES agencies(id),
	plan_id TEXT REFERENCES plans(id),
	status TEXT NOT NULL,
	territories JSONB NOT NULL DEFAULT '[]',
	monthly_lead_limit INTEGER NOT NULL DEFAULT 0,
	billing_anchor_day INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS leads (
	id TEXT PRIMARY KEY,
	portal_id TEXT NOT NULL,
	name TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	city TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL DEFAULT '',
	zipcode TEXT NOT NULL DEFAULT '',
	country TEXT NOT NULL DEFAULT '',
	industry TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	extras JSONB,
	assigned_agency_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS leads_email_created ON leads (email, created_at);
CREATE INDEX IF NOT EXISTS leads_phone_created ON leads (phone, created_at);
CREATE INDEX IF NOT EXISTS leads_status ON leads (status);

CREATE TABLE IF NOT EXISTS lead_assignments (
	id TEXT PRIMARY KEY,
	lead_id TEXT NOT NULL REFERENCES leads(id),
	agency_id TEXT NOT NULL,
	status TEXT NOT NULL,
	method TEXT NOT NULL,
	assigned_at TIMESTAMPTZ NOT NULL,
	accepted_at TIMESTAMPTZ,
	rejected_at TIMESTAMPTZ,
	reason TEXT NOT NULL DEFAULT ''
);
-- One pending/accepted assignment per lead, enforced in the database.
CREATE UNIQUE INDEX IF NOT EXISTS lead_assignments_one_active
	ON lead_assignments (lead_id) WHERE status IN ('pending', 'accepted');
CREATE INDEX IF NOT EXISTS lead_assignments_agency_window
	ON lead_assignments (agency_id, assigned_at);

CREATE TABLE IF NOT EXISTS lead_distribution_sequence (
	territory TEXT PRIMARY KEY,
	last_assigned_agency TEXT NOT NULL,
	last_assigned_at TIMESTAMPTZ NOT NULL,
	counter BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	seq BIGINT NOT NULL,
	actor TEXT NOT NULL,
	action TEXT NOT NULL,
	target TEXT NOT NULL,
	payload JSONB,
	payload_hash TEXT NOT NULL DEFAULT '',
	previous_hash TEXT NOT NULL,
	entry_hash TEXT NOT NULL,
	ts TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_log_seq ON audit_log (seq);
`

// Init creates the schema.
func (s *Postgres) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, pgSchema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *Postgres) GetPortalByCode(ctx context.Context, code string) (*lead.Portal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, code, status, industry, secret_hash, mapping_override FROM portals WHERE code = $1`, code)

	var p lead.Portal
	var override []byte
	err := row.Scan(&p.ID, &p.Code, &p.Status, &p.Industry, &p.SecretHash, &override)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lead.ErrPortalUnknown
	}
	if err != nil {
		return nil, fmt.Errorf("get portal %q: %w", code, err)
	}
	if len(override) > 0 {
		if err := json.Unmarshal(override, &p.MappingOverride); err != nil {
			return nil, fmt.Errorf("corrupt mapping override for portal %q: %w", code, err)
		}
	}
	return &p, nil
}

func (s *Postgres) CreateLead(ctx context.Context, l *lead.Lead) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leads (id, portal_id, name, email, phone, city, state, zipcode, country,
			industry, status, extras, assigned_agency_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		l.ID, l.PortalID, l.Name, l.Email, l.Phone, l.City, l.State, l.Zipcode, l.Country,
		l.Industry, l.Status, nullableJSON(l.Extras), l.AssignedAgencyID, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create lead: %w", err)
	}
	return nil
}

const leadColumns = `id, portal_id, name, email, phone, city, state, zipcode, country,
	industry, status, extras, assigned_agency_id, created_at, updated_at`

func scanLead(row interface{ Scan(...any) error }) (*lead.Lead, error) {
	var l lead.Lead
	var extras []byte
	err := row.Scan(&l.ID, &l.PortalID, &l.Name, &l.Email, &l.Phone, &l.City, &l.State,
		&l.Zipcode, &l.Country, &l.Industry, &l.Status, &extras, &l.AssignedAgencyID,
		&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(extras) > 0 {
		l.Extras = json.RawMessage(extras)
	}
	return &l, nil
}

func (s *Postgres) GetLead(ctx context.Context, id string) (*lead.Lead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	l, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lead.ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead %s: %w", id, err)
	}
	return l, nil
}

func (s *Postgres) UpdateLeadStatus(ctx context.Context, id string, status lead.Status, agencyID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = $2, assigned_agency_id = $3, updated_at = NOW() WHERE id = $1`,
		id, status, agencyID)
	if err != nil {
		return fmt.Errorf("update lead status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return lead.ErrLeadNotFound
	}
	return nil
}

func (s *Postgres) ListLeadsByStatus(ctx context.Context, statuses []lead.Status, limit int) ([]*lead.Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	states := make([]string, len(statuses))
	for i, st := range statuses {
		states[i] = string(st)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE status = ANY($1) ORDER BY created_at ASC LIMIT $2`,
		pq.Array(states), limit)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*lead.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Postgres) FindRecentLeadByContact(ctx context.Context, email, phone string, since time.Time) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM leads
		WHERE created_at >= $3
		  AND (($1 <> '' AND email = $1) OR ($2 <> '' AND phone = $2))
		ORDER BY created_at DESC LIMIT 1`,
		email, phone, since).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("dedup lookup: %w", err)
	}
	return id, nil
}

// isUniqueViolation reports a Postgres unique_violation (code 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (s *Postgres) CreateAssignment(ctx context.Context, p AssignParams) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin assignment tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	a := p.Assignment
	_, err = tx.ExecContext(ctx, `
		INSERT INTO lead_assignments (id, lead_id, agency_id, status, method, assigned_at, reason)
		VALUES ($1, $2, $3, $4, $5, $6, '')`,
		a.ID, a.LeadID, a.AgencyID, a.Status, a.Method, a.AssignedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return lead.ErrAssignmentConflict
		}
		return fmt.Errorf("insert assignment: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE leads SET status = $2, assigned_agency_id = $3, updated_at = $4 WHERE id = $1`,
		a.LeadID, lead.StatusAssigned, a.AgencyID, a.AssignedAt)
	if err != nil {
		return fmt.Errorf("update lead on assignment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return lead.ErrLeadNotFound
	}

	if p.Territory != "" {
		if err := advanceCursorTx(ctx, tx, p, a); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit assignment: %w", err)
	}
	return nil
}

// advanceCursorTx performs the compare-and-set advance of the territory
// cursor inside the assignment transaction. The CAS key is last_assigned_at:
// a concurrent distributor that committed first changes it, and the loser's
// update matches zero rows.
func advanceCursorTx(ctx context.Context, tx *sql.Tx, p AssignParams, a *lead.Assignment) error {
	if p.ObservedCursor == nil {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO lead_distribution_sequence (territory, last_assigned_agency, last_assigned_at, counter)
			VALUES ($1, $2, $3, 1)
			ON CONFLICT (territory) DO NOTHING`,
			p.Territory, a.AgencyID, a.AssignedAt)
		if err != nil {
			return fmt.Errorf("insert cursor: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return lead.ErrCursorConflict
		}
		return nil
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE lead_distribution_sequence
		SET last_assigned_agency = $2, last_assigned_at = $3, counter = counter + 1
		WHERE territory = $1 AND last_assigned_at = $4`,
		p.Territory, a.AgencyID, a.AssignedAt, p.ObservedCursor.LastAssignedAt)
	if err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return lead.ErrCursorConflict
	}
	return nil
}

const assignmentColumns = `id, lead_id, agency_id, status, method, assigned_at, accepted_at, rejected_at, reason`

func scanAssignment(row interface{ Scan(...any) error }) (*lead.Assignment, error) {
	var a lead.Assignment
	var acceptedAt, rejectedAt sql.NullTime
	err := row.Scan(&a.ID, &a.LeadID, &a.AgencyID, &a.Status, &a.Method, &a.AssignedAt,
		&acceptedAt, &rejectedAt, &a.Reason)
	if err != nil {
		return nil, err
	}
	if acceptedAt.Valid {
		a.AcceptedAt = &acceptedAt.Time
	}
	if rejectedAt.Valid {
		a.RejectedAt = &rejectedAt.Time
	}
	return &a, nil
}

func (s *Postgres) GetActiveAssignment(ctx context.Context, leadID string) (*lead.Assignment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM lead_assignments
		 WHERE lead_id = $1 AND status IN ('pending', 'accepted')`, leadID)
	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active assignment: %w", err)
	}
	return a, nil
}

// lockPendingForAgency loads the lead's active assignment FOR UPDATE and
// checks the accept/reject authorization.
func lockPendingForAgency(ctx context.Context, tx *sql.Tx, leadID, agencyID string) (*lead.Assignment, error) {
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT TRUE FROM leads WHERE id = $1 FOR UPDATE`, leadID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, lead.ErrLeadNotFound
		}
		return nil, fmt.Errorf("lock lead: %w", err)
	}

	row := tx.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM lead_assignments
		 WHERE lead_id = $1 AND status IN ('pending', 'accepted') FOR UPDATE`, leadID)
	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lead.ErrAssignmentNotPending
	}
	if err != nil {
		return nil, fmt.Errorf("lock assignment: %w", err)
	}
	if a.Status != lead.AssignmentPending {
		return nil, lead.ErrAssignmentNotPending
	}
	if a.AgencyID != agencyID {
		return nil, lead.ErrAgencyMismatch
	}
	return a, nil
}

func (s *Postgres) AcceptAssignment(ctx context.Context, leadID, agencyID string, now time.Time) (*lead.Assignment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin accept tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	a, err := lockPendingForAgency(ctx, tx, leadID, agencyID)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE lead_assignments SET status = $2, accepted_at = $3 WHERE id = $1`,
		a.ID, lead.AssignmentAccepted, now); err != nil {
		return nil, fmt.Errorf("accept assignment: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE leads SET status = $2, updated_at = $3 WHERE id = $1`,
		leadID, lead.StatusAccepted, now); err != nil {
		return nil, fmt.Errorf("accept lead: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit accept: %w", err)
	}

	a.Status = lead.AssignmentAccepted
	a.AcceptedAt = &now
	return a, nil
}

func (s *Postgres) RejectAssignment(ctx context.Context, leadID, agencyID, reason string, now time.Time) (*lead.Assignment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reject tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	a, err := lockPendingForAgency(ctx, tx, leadID, agencyID)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE lead_assignments SET status = $2, rejected_at = $3, reason = $4 WHERE id = $1`,
		a.ID, lead.AssignmentRejected, now, reason); err != nil {
		return nil, fmt.Errorf("reject assignment: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE leads SET status = $2, assigned_agency_id = '', updated_at = $3 WHERE id = $1`,
		leadID, lead.StatusPendingReassignment, now); err != nil {
		return nil, fmt.Errorf("reject lead: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reject: %w", err)
	}

	a.Status = lead.AssignmentRejected
	a.RejectedAt = &now
	a.Reason = reason
	return a, nil
}

func (s *Postgres) MarkActiveReassigned(ctx context.Context, leadID string, now time.Time) (*lead.Assignment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reassign tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM lead_assignments
		 WHERE lead_id = $1 AND status IN ('pending', 'accepted') FOR UPDATE`, leadID)
	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lead.ErrAssignmentNotPending
	}
	if err != nil {
		return nil, fmt.Errorf("lock assignment for reassign: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE lead_assignments SET status = $2 WHERE id = $1`,
		a.ID, lead.AssignmentReassigned); err != nil {
		return nil, fmt.Errorf("retire assignment: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE leads SET assigned_agency_id = '', updated_at = $2 WHERE id = $1`,
		leadID, now); err != nil {
		return nil, fmt.Errorf("clear lead agency: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reassign: %w", err)
	}

	a.Status = lead.AssignmentReassigned
	return a, nil
}

func (s *Postgres) ListAssignmentsForAgency(ctx context.Context, agencyID string) ([]*AgencyAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.lead_id, a.agency_id, a.status, a.method, a.assigned_at, a.accepted_at, a.rejected_at, a.reason,
		       l.id, l.portal_id, l.name, l.email, l.phone, l.city, l.state, l.zipcode, l.country,
		       l.industry, l.status, l.extras, l.assigned_agency_id, l.created_at, l.updated_at
		FROM lead_assignments a
		JOIN leads l ON l.id = a.lead_id
		WHERE a.agency_id = $1
		ORDER BY a.assigned_at DESC`, agencyID)
	if err != nil {
		return nil, fmt.Errorf("list agency assignments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*AgencyAssignment
	for rows.Next() {
		var a lead.Assignment
		var l lead.Lead
		var acceptedAt, rejectedAt sql.NullTime
		var extras []byte
		err := rows.Scan(&a.ID, &a.LeadID, &a.AgencyID, &a.Status, &a.Method, &a.AssignedAt,
			&acceptedAt, &rejectedAt, &a.Reason,
			&l.ID, &l.PortalID, &l.Name, &l.Email, &l.Phone, &l.City, &l.State, &l.Zipcode,
			&l.Country, &l.Industry, &l.Status, &extras, &l.AssignedAgencyID, &l.CreatedAt, &l.UpdatedAt)
		if err != nil {
			return nil, err
		}
		if acceptedAt.Valid {
			a.AcceptedAt = &acceptedAt.Time
		}
		if rejectedAt.Valid {
			a.RejectedAt = &rejectedAt.Time
		}
		if len(extras) > 0 {
			l.Extras = json.RawMessage(extras)
		}
		out = append(out, &AgencyAssignment{Assignment: a, Lead: l})
	}
	return out, rows.Err()
}

func (s *Postgres) CountActiveAssignmentsInWindow(ctx context.Context, agencyID string, from, to time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM lead_assignments
		WHERE agency_id = $1 AND status IN ('pending', 'accepted')
		  AND assigned_at >= $2 AND assigned_at < $3`,
		agencyID, from, to).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count assignments in window: %w", err)
	}
	return count, nil
}

func (s *Postgres) EligibleCandidates(ctx context.Context) ([]lead.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ag.id, ag.business_name, ag.industry, ag.active,
		       sub.agency_id, sub.status, sub.territories, sub.monthly_lead_limit, sub.billing_anchor_day,
		       COALESCE(p.base_units, 0)
		FROM subscriptions sub
		JOIN agencies ag ON ag.id = sub.agency_id
		LEFT JOIN plans p ON p.id = sub.plan_id
		WHERE ag.active AND sub.status IN ('active', 'trial')`)
	if err != nil {
		return nil, fmt.Errorf("eligible candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []lead.Candidate
	for rows.Next() {
		var c lead.Candidate
		var territories []byte
		err := rows.Scan(&c.Agency.ID, &c.Agency.Name, &c.Agency.Industry, &c.Agency.Active,
			&c.Subscription.AgencyID, &c.Subscription.Status, &territories,
			&c.Subscription.MonthlyLeadLimit, &c.Subscription.BillingAnchorDay,
			&c.PlanBaseUnits)
		if err != nil {
			return nil, err
		}
		if len(territories) > 0 {
			if err := json.Unmarshal(territories, &c.Subscription.Territories); err != nil {
				return nil, fmt.Errorf("corrupt territories for agency %s: %w", c.Agency.ID, err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Postgres) GetCursor(ctx context.Context, territory string) (*lead.SequenceCursor, error) {
	var c lead.SequenceCursor
	err := s.db.QueryRowContext(ctx, `
		SELECT territory, last_assigned_agency, last_assigned_at, counter
		FROM lead_distribution_sequence WHERE territory = $1`, territory).
		Scan(&c.Territory, &c.LastAssignedID, &c.LastAssignedAt, &c.AssignmentsCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cursor: %w", err)
	}
	return &c, nil
}

func (s *Postgres) AppendAudit(ctx context.Context, e *audit.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, seq, actor, action, target, payload, payload_hash, previous_hash, entry_hash, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.Sequence, e.Actor, e.Action, e.Target, nullableJSON(e.Payload),
		e.PayloadHash, e.PreviousHash, e.EntryHash, e.Timestamp)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

func (s *Postgres) ListAudit(ctx context.Context, limit int) ([]*audit.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, actor, action, target, payload, payload_hash, previous_hash, entry_hash, ts
		FROM audit_log ORDER BY seq ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*audit.Entry
	for rows.Next() {
		var e audit.Entry
		var payload []byte
		if err := rows.Scan(&e.ID, &e.Sequence, &e.Actor, &e.Action, &e.Target, &payload,
			&e.PayloadHash, &e.PreviousHash, &e.EntryHash, &e.Timestamp); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			e.Payload = json.RawMessage(payload)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// LastAuditHead implements audit.HeadSource so a restarted logger resumes
// the persisted chain.
func (s *Postgres) LastAuditHead(ctx context.Context) (uint64, string, error) {
	var seq uint64
	var head string
	err := s.db.QueryRowContext(ctx,
		`SELECT seq, entry_hash FROM audit_log ORDER BY seq DESC LIMIT 1`).Scan(&seq, &head)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("audit head: %w", err)
	}
	return seq, head, nil
}

// nullableJSON maps an empty raw message to SQL NULL.
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

var _ Store = (*Postgres)(nil)
var _ audit.HeadSource = (*Postgres)(nil)
