// Package lead defines the canonical data model for the ingestion and
// routing pipeline: portals, leads, agencies, subscriptions, assignments,
// and the per-territory distribution cursor.
package lead

import (
	"encoding/json"
	"time"
)

// PortalStatus is the lifecycle state of an external lead source.
type PortalStatus string

const (
	PortalActive      PortalStatus = "active"
	PortalInactive    PortalStatus = "inactive"
	PortalMaintenance PortalStatus = "maintenance"
)

// Portal is an external lead-producing source. Portals are created by the
// admin surface; the pipeline consumes them read-only.
type Portal struct {
	ID         string       `json:"id"`
	Code       string       `json:"code"`
	Status     PortalStatus `json:"status"`
	Industry   string       `json:"industry"`
	SecretHash string       `json:"-"`
	// MappingOverride merges into the default synonym table; override wins
	// on conflict, unseen canonical keys inherit defaults.
	MappingOverride map[string][]string `json:"mapping_override,omitempty"`
}

// Status is the lifecycle state of a lead.
type Status string

const (
	StatusNew                 Status = "new"
	StatusAssigned            Status = "assigned"
	StatusAccepted            Status = "accepted"
	StatusRejected            Status = "rejected"
	StatusPendingReassignment Status = "pending_reassignment"
	StatusUnassigned          Status = "unassigned"
	StatusArchived            Status = "archived"
)

// Lead is a canonical lead record after schema mapping and normalization.
type Lead struct {
	ID       string `json:"id"`
	PortalID string `json:"portal_id"`

	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zipcode string `json:"zipcode,omitempty"`
	Country string `json:"country,omitempty"`

	Industry string `json:"industry,omitempty"`
	Status   Status `json:"status"`

	// Extras preserves payload keys not consumed by the mapper. The bag is
	// opaque: it never participates in equality, validation, or indexing.
	Extras json.RawMessage `json:"extras,omitempty"`

	AssignedAgencyID string    `json:"assigned_agency_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TerritoryKey returns the routing bucket for the lead: the 5-character
// postal prefix when a zipcode is present, else "city, state" lowercased
// by the store boundary. Empty when neither is derivable.
func (l *Lead) TerritoryKey() string {
	return Territory(l.Zipcode, l.City, l.State)
}

// Territory derives a territory key from raw address parts.
func Territory(zipcode, city, state string) string {
	if zipcode != "" {
		if len(zipcode) > 5 {
			return zipcode[:5]
		}
		return zipcode
	}
	if city == "" {
		return ""
	}
	if state == "" {
		return city
	}
	return city + ", " + state
}

// Agency is a lead consumer. Consumed read-only by the pipeline.
type Agency struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Industry string `json:"industry,omitempty"`
	Active   bool   `json:"active"`
}

// SubscriptionStatus is the billing state of an agency subscription.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionTrial     SubscriptionStatus = "trial"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

// WildcardTerritory marks a subscription covering every territory.
const WildcardTerritory = "*"

// Subscription is an agency's purchased capacity. Consumed read-only.
type Subscription struct {
	AgencyID string             `json:"agency_id"`
	Status   SubscriptionStatus `json:"status"`
	// Territories is the explicit coverage set; may contain the wildcard
	// marker "*". Empty coverage is never eligible.
	Territories      []string `json:"territories"`
	MonthlyLeadLimit int      `json:"monthly_lead_limit"`
	// BillingAnchorDay shifts the billing window; zero means calendar month.
	BillingAnchorDay int `json:"billing_anchor_day,omitempty"`
}

// Usable reports whether the subscription counts toward eligibility.
func (s *Subscription) Usable() bool {
	return s.Status == SubscriptionActive || s.Status == SubscriptionTrial
}

// Covers reports whether the subscription's territory set contains the key.
func (s *Subscription) Covers(territory string) bool {
	for _, t := range s.Territories {
		if t == WildcardTerritory || t == territory {
			return true
		}
	}
	return false
}

// AssignmentStatus is the state of a (lead, agency) assignment.
type AssignmentStatus string

const (
	AssignmentPending    AssignmentStatus = "pending"
	AssignmentAccepted   AssignmentStatus = "accepted"
	AssignmentRejected   AssignmentStatus = "rejected"
	AssignmentReassigned AssignmentStatus = "reassigned"
)

// Active reports whether the status counts against the one-active-assignment
// invariant (at most one pending or accepted assignment per lead).
func (s AssignmentStatus) Active() bool {
	return s == AssignmentPending || s == AssignmentAccepted
}

// AssignmentMethod records how an assignment was produced.
type AssignmentMethod string

const (
	MethodAuto         AssignmentMethod = "auto"
	MethodManual       AssignmentMethod = "manual"
	MethodReassignment AssignmentMethod = "reassignment"
)

// Assignment is a (lead, agency) tuple produced by the coordinator.
type Assignment struct {
	ID       string           `json:"id"`
	LeadID   string           `json:"lead_id"`
	AgencyID string           `json:"agency_id"`
	Status   AssignmentStatus `json:"status"`
	Method   AssignmentMethod `json:"method"`

	AssignedAt time.Time  `json:"assigned_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	RejectedAt *time.Time `json:"rejected_at,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

// SequenceCursor is the per-territory round-robin rotation state.
type SequenceCursor struct {
	Territory        string    `json:"territory"`
	LastAssignedID   string    `json:"last_assigned_agency_id"`
	LastAssignedAt   time.Time `json:"last_assigned_at"`
	AssignmentsCount int64     `json:"assignments_count"`
}

// Candidate pairs an agency with the subscription that qualified it for a
// territory; produced by the eligibility resolver, consumed by the capacity
// filter and the selector.
type Candidate struct {
	Agency       Agency
	Subscription Subscription
	// PlanBaseUnits is the plan-level quota fallback when the subscription
	// carries no explicit monthly limit; zero means no plan default.
	PlanBaseUnits int
}

// Notification is the event enqueued to the notifier on assignment.
type Notification struct {
	LeadID   string `json:"lead_id"`
	AgencyID string `json:"agency_id"`
}
