package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/Mindburn-Labs/leadgrid/pkg/audit"
	"github.com/Mindburn-Labs/leadgrid/pkg/lead"
)

// SQLite is the embedded single-node Store, for dev boxes and small
// deployments that don't run Postgres. SQLite serializes writers, so the
// cursor CAS and the one-active-assignment index give the same guarantees
// as the Postgres implementation.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database file and ensures the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection avoids SQLITE_BUSY between pooled writers.
	db.SetMaxOpenConns(1)
	s := &SQLite{db: db}
	if err := s.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS portals (
	id TEXT PRIMARY KEY,
	code TEXT UNIQUE NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	industry TEXT NOT NULL DEFAULT '',
	secret_hash TEXT NOT NULL,
	mapping_override TEXT
);
CREATE TABLE IF NOT EXISTS agencies (
	id TEXT PRIMARY KEY,
	business_name TEXT NOT NULL,
	industry TEXT NOT NULL DEFAULT '',
	active INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS plans (
	id TEXT PRIMARY KEY,
	base_units INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS subscriptions (
	id TEXT PRIMARY KEY,
	agency_id TEXT NOT NULL,
	plan_id TEXT,
	status TEXT NOT NULL,
	territories TEXT NOT NULL DEFAULT '[]',
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
	extras TEXT,
	assigned_agency_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS leads_email_created ON leads (email, created_at);
CREATE INDEX IF NOT EXISTS leads_phone_created ON leads (phone, created_at);
CREATE TABLE IF NOT EXISTS lead_assignments (
	id TEXT PRIMARY KEY,
	lead_id TEXT NOT NULL,
	agency_id TEXT NOT NULL,
	status TEXT NOT NULL,
	method TEXT NOT NULL,
	assigned_at TIMESTAMP NOT NULL,
	accepted_at TIMESTAMP,
	rejected_at TIMESTAMP,
	reason TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS lead_assignments_one_active
	ON lead_assignments (lead_id) WHERE status IN ('pending', 'accepted');
CREATE TABLE IF NOT EXISTS lead_distribution_sequence (
	territory TEXT PRIMARY KEY,
	last_assigned_agency TEXT NOT NULL,
	last_assigned_at TIMESTAMP NOT NULL,
	counter INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	seq INTEGER NOT NULL,
	actor TEXT NOT NULL,
	action TEXT NOT NULL,
	target TEXT NOT NULL,
	payload TEXT,
	payload_hash TEXT NOT NULL DEFAULT '',
	previous_hash TEXT NOT NULL,
	entry_hash TEXT NOT NULL,
	ts TIMESTAMP NOT NULL
);
`

// Init creates the schema.
func (s *SQLite) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("init sqlite schema: %w", err)
	}
	return nil
}

// Close releases the underlying handle.
func (s *SQLite) Close() error { return s.db.Close() }

func isSQLiteUniqueViolation(err error) bool {
	var serr *sqlite.Error
	return errors.As(err, &serr) && serr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func (s *SQLite) GetPortalByCode(ctx context.Context, code string) (*lead.Portal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, code, status, industry, secret_hash, COALESCE(mapping_override, '') FROM portals WHERE code = ?`, code)
	var p lead.Portal
	var override string
	err := row.Scan(&p.ID, &p.Code, &p.Status, &p.Industry, &p.SecretHash, &override)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lead.ErrPortalUnknown
	}
	if err != nil {
		return nil, fmt.Errorf("get portal %q: %w", code, err)
	}
	if override != "" {
		if err := json.Unmarshal([]byte(override), &p.MappingOverride); err != nil {
			return nil, fmt.Errorf("corrupt mapping override for portal %q: %w", code, err)
		}
	}
	return &p, nil
}

func (s *SQLite) CreateLead(ctx context.Context, l *lead.Lead) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leads (id, portal_id, name, email, phone, city, state, zipcode, country,
			industry, status, extras, assigned_agency_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.PortalID, l.Name, l.Email, l.Phone, l.City, l.State, l.Zipcode, l.Country,
		l.Industry, l.Status, rawToText(l.Extras), l.AssignedAgencyID, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create lead: %w", err)
	}
	return nil
}

func (s *SQLite) scanLeadRow(row interface{ Scan(...any) error }) (*lead.Lead, error) {
	var l lead.Lead
	var extras sql.NullString
	err := row.Scan(&l.ID, &l.PortalID, &l.Name, &l.Email, &l.Phone, &l.City, &l.State,
		&l.Zipcode, &l.Country, &l.Industry, &l.Status, &extras, &l.AssignedAgencyID,
		&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if extras.Valid && extras.String != "" {
		l.Extras = json.RawMessage(extras.String)
	}
	return &l, nil
}

func (s *SQLite) GetLead(ctx context.Context, id string) (*lead.Lead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id)
	l, err := s.scanLeadRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lead.ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead %s: %w", id, err)
	}
	return l, nil
}

func (s *SQLite) UpdateLeadStatus(ctx context.Context, id string, status lead.Status, agencyID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = ?, assigned_agency_id = ?, updated_at = ? WHERE id = ?`,
		status, agencyID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update lead status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return lead.ErrLeadNotFound
	}
	return nil
}

func (s *SQLite) ListLeadsByStatus(ctx context.Context, statuses []lead.Status, limit int) ([]*lead.Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, 0, len(statuses)+1)
	for i, st := range statuses {
		placeholders[i] = "?"
		args = append(args, string(st))
	}
	args = append(args, limit)
	query := `SELECT ` + leadColumns + ` FROM leads WHERE status IN (` +
		strings.Join(placeholders, ", ") + `) ORDER BY created_at ASC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*lead.Lead
	for rows.Next() {
		l, err := s.scanLeadRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQLite) FindRecentLeadByContact(ctx context.Context, email, phone string, since time.Time) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM leads
		WHERE created_at >= ?
		  AND ((? <> '' AND email = ?) OR (? <> '' AND phone = ?))
		ORDER BY created_at DESC LIMIT 1`,
		since, email, email, phone, phone).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("dedup lookup: %w", err)
	}
	return id, nil
}

func (s *SQLite) CreateAssignment(ctx context.Context, p AssignParams) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin assignment tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	a := p.Assignment
	_, err = tx.ExecContext(ctx, `
		INSERT INTO lead_assignments (id, lead_id, agency_id, status, method, assigned_at, reason)
		VALUES (?, ?, ?, ?, ?, ?, '')`,
		a.ID, a.LeadID, a.AgencyID, a.Status, a.Method, a.AssignedAt)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return lead.ErrAssignmentConflict
		}
		return fmt.Errorf("insert assignment: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE leads SET status = ?, assigned_agency_id = ?, updated_at = ? WHERE id = ?`,
		lead.StatusAssigned, a.AgencyID, a.AssignedAt, a.LeadID)
	if err != nil {
		return fmt.Errorf("update lead on assignment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return lead.ErrLeadNotFound
	}

	if p.Territory != "" {
		if p.ObservedCursor == nil {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO lead_distribution_sequence (territory, last_assigned_agency, last_assigned_at, counter)
				VALUES (?, ?, ?, 1)
				ON CONFLICT (territory) DO NOTHING`,
				p.Territory, a.AgencyID, a.AssignedAt)
			if err != nil {
				return fmt.Errorf("insert cursor: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return lead.ErrCursorConflict
			}
		} else {
			res, err := tx.ExecContext(ctx, `
				UPDATE lead_distribution_sequence
				SET last_assigned_agency = ?, last_assigned_at = ?, counter = counter + 1
				WHERE territory = ? AND last_assigned_at = ?`,
				a.AgencyID, a.AssignedAt, p.Territory, p.ObservedCursor.LastAssignedAt)
			if err != nil {
				return fmt.Errorf("advance cursor: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return lead.ErrCursorConflict
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit assignment: %w", err)
	}
	return nil
}

func (s *SQLite) scanAssignmentRow(row interface{ Scan(...any) error }) (*lead.Assignment, error) {
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

func (s *SQLite) GetActiveAssignment(ctx context.Context, leadID string) (*lead.Assignment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM lead_assignments
		 WHERE lead_id = ? AND status IN ('pending', 'accepted')`, leadID)
	a, err := s.scanAssignmentRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active assignment: %w", err)
	}
	return a, nil
}

// pendingForAgencyTx validates accept/reject authorization inside the
// transaction. SQLite's single-writer model stands in for row locks.
func (s *SQLite) pendingForAgencyTx(ctx context.Context, tx *sql.Tx, leadID, agencyID string) (*lead.Assignment, error) {
	var one int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM leads WHERE id = ?`, leadID).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, lead.ErrLeadNotFound
		}
		return nil, fmt.Errorf("check lead: %w", err)
	}
	row := tx.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM lead_assignments
		 WHERE lead_id = ? AND status IN ('pending', 'accepted')`, leadID)
	a, err := s.scanAssignmentRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lead.ErrAssignmentNotPending
	}
	if err != nil {
		return nil, fmt.Errorf("load assignment: %w", err)
	}
	if a.Status != lead.AssignmentPending {
		return nil, lead.ErrAssignmentNotPending
	}
	if a.AgencyID != agencyID {
		return nil, lead.ErrAgencyMismatch
	}
	return a, nil
}

func (s *SQLite) AcceptAssignment(ctx context.Context, leadID, agencyID string, now time.Time) (*lead.Assignment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin accept tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	a, err := s.pendingForAgencyTx(ctx, tx, leadID, agencyID)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE lead_assignments SET status = ?, accepted_at = ? WHERE id = ?`,
		lead.AssignmentAccepted, now, a.ID); err != nil {
		return nil, fmt.Errorf("accept assignment: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE leads SET status = ?, updated_at = ? WHERE id = ?`,
		lead.StatusAccepted, now, leadID); err != nil {
		return nil, fmt.Errorf("accept lead: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit accept: %w", err)
	}
	a.Status = lead.AssignmentAccepted
	a.AcceptedAt = &now
	return a, nil
}

func (s *SQLite) RejectAssignment(ctx context.Context, leadID, agencyID, reason string, now time.Time) (*lead.Assignment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reject tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	a, err := s.pendingForAgencyTx(ctx, tx, leadID, agencyID)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE lead_assignments SET status = ?, rejected_at = ?, reason = ? WHERE id = ?`,
		lead.AssignmentRejected, now, reason, a.ID); err != nil {
		return nil, fmt.Errorf("reject assignment: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE leads SET status = ?, assigned_agency_id = '', updated_at = ? WHERE id = ?`,
		lead.StatusPendingReassignment, now, leadID); err != nil {
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

func (s *SQLite) MarkActiveReassigned(ctx context.Context, leadID string, now time.Time) (*lead.Assignment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reassign tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM lead_assignments
		 WHERE lead_id = ? AND status IN ('pending', 'accepted')`, leadID)
	a, err := s.scanAssignmentRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lead.ErrAssignmentNotPending
	}
	if err != nil {
		return nil, fmt.Errorf("load assignment for reassign: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE lead_assignments SET status = ? WHERE id = ?`,
		lead.AssignmentReassigned, a.ID); err != nil {
		return nil, fmt.Errorf("retire assignment: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE leads SET assigned_agency_id = '', updated_at = ? WHERE id = ?`,
		now, leadID); err != nil {
		return nil, fmt.Errorf("clear lead agency: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reassign: %w", err)
	}
	a.Status = lead.AssignmentReassigned
	return a, nil
}

func (s *SQLite) ListAssignmentsForAgency(ctx context.Context, agencyID string) ([]*AgencyAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.lead_id, a.agency_id, a.status, a.method, a.assigned_at, a.accepted_at, a.rejected_at, a.reason,
		       l.id, l.portal_id, l.name, l.email, l.phone, l.city, l.state, l.zipcode, l.country,
		       l.industry, l.status, l.extras, l.assigned_agency_id, l.created_at, l.updated_at
		FROM lead_assignments a
		JOIN leads l ON l.id = a.lead_id
		WHERE a.agency_id = ?
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
		var extras sql.NullString
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
		if extras.Valid && extras.String != "" {
			l.Extras = json.RawMessage(extras.String)
		}
		out = append(out, &AgencyAssignment{Assignment: a, Lead: l})
	}
	return out, rows.Err()
}

func (s *SQLite) CountActiveAssignmentsInWindow(ctx context.Context, agencyID string, from, to time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM lead_assignments
		WHERE agency_id = ? AND status IN ('pending', 'accepted')
		  AND assigned_at >= ? AND assigned_at < ?`,
		agencyID, from, to).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count assignments in window: %w", err)
	}
	return count, nil
}

func (s *SQLite) EligibleCandidates(ctx context.Context) ([]lead.Candidate, error) {
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
		var territories string
		err := rows.Scan(&c.Agency.ID, &c.Agency.Name, &c.Agency.Industry, &c.Agency.Active,
			&c.Subscription.AgencyID, &c.Subscription.Status, &territories,
			&c.Subscription.MonthlyLeadLimit, &c.Subscription.BillingAnchorDay,
			&c.PlanBaseUnits)
		if err != nil {
			return nil, err
		}
		if territories != "" {
			if err := json.Unmarshal([]byte(territories), &c.Subscription.Territories); err != nil {
				return nil, fmt.Errorf("corrupt territories for agency %s: %w", c.Agency.ID, err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLite) GetCursor(ctx context.Context, territory string) (*lead.SequenceCursor, error) {
	var c lead.SequenceCursor
	err := s.db.QueryRowContext(ctx, `
		SELECT territory, last_assigned_agency, last_assigned_at, counter
		FROM lead_distribution_sequence WHERE territory = ?`, territory).
		Scan(&c.Territory, &c.LastAssignedID, &c.LastAssignedAt, &c.AssignmentsCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cursor: %w", err)
	}
	return &c, nil
}

func (s *SQLite) AppendAudit(ctx context.Context, e *audit.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, seq, actor, action, target, payload, payload_hash, previous_hash, entry_hash, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Sequence, e.Actor, e.Action, e.Target, rawToText(e.Payload),
		e.PayloadHash, e.PreviousHash, e.EntryHash, e.Timestamp)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

func (s *SQLite) ListAudit(ctx context.Context, limit int) ([]*audit.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, actor, action, target, COALESCE(payload, ''), payload_hash, previous_hash, entry_hash, ts
		FROM audit_log ORDER BY seq ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*audit.Entry
	for rows.Next() {
		var e audit.Entry
		var payload string
		if err := rows.Scan(&e.ID, &e.Sequence, &e.Actor, &e.Action, &e.Target, &payload,
			&e.PayloadHash, &e.PreviousHash, &e.EntryHash, &e.Timestamp); err != nil {
			return nil, err
		}
		if payload != "" {
			e.Payload = json.RawMessage(payload)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// LastAuditHead implements audit.HeadSource.
func (s *SQLite) LastAuditHead(ctx context.Context) (uint64, string, error) {
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

// rawToText maps an empty raw message to SQL NULL, otherwise TEXT.
func rawToText(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

var _ Store = (*SQLite)(nil)
var _ audit.HeadSource = (*SQLite)(nil)
