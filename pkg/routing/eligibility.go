// Package routing selects the agency for a lead: eligibility over territory
// and industry, capacity over the billing window, and round-robin rotation
// over the per-territory sequence cursor. Everything here is pure given a
// store snapshot; the coordinator owns the commit.
package routing

import (
	"context"
	"sort"
	"strings"

	"github.com/Mindburn-Labs/leadgrid/pkg/lead"
)

// CandidateSource is the joined read the resolver needs from the store.
type CandidateSource interface {
	EligibleCandidates(ctx context.Context) ([]lead.Candidate, error)
}

// Resolver produces the ordered eligible set for a (territory, industry).
type Resolver struct {
	source CandidateSource
}

// NewResolver builds a Resolver over a candidate source.
func NewResolver(source CandidateSource) *Resolver {
	return &Resolver{source: source}
}

// Resolve returns the candidate agencies for the territory, industry-matched
// partition first when it is non-empty, otherwise the industry-agnostic
// partition. Within a partition candidates are ordered by agency id
// ascending so tie-breaks are deterministic. One candidate per agency; when
// several subscriptions qualify, exact territory coverage beats wildcard.
func (r *Resolver) Resolve(ctx context.Context, territory, industry string) ([]lead.Candidate, error) {
	all, err := r.source.EligibleCandidates(ctx)
	if err != nil {
		return nil, err
	}

	// Collapse to one qualifying subscription per agency.
	byAgency := make(map[string]lead.Candidate)
	for _, c := range all {
		if !c.Subscription.Covers(territory) {
			continue
		}
		prev, seen := byAgency[c.Agency.ID]
		if !seen {
			byAgency[c.Agency.ID] = c
			continue
		}
		if coversExactly(&c.Subscription, territory) && !coversExactly(&prev.Subscription, territory) {
			byAgency[c.Agency.ID] = c
		}
	}
	if len(byAgency) == 0 {
		return nil, nil
	}

	var matched, agnostic []lead.Candidate
	for _, c := range byAgency {
		if industry != "" && strings.EqualFold(c.Agency.Industry, industry) {
			matched = append(matched, c)
		} else {
			agnostic = append(agnostic, c)
		}
	}

	pick := matched
	if len(pick) == 0 {
		pick = agnostic
	}
	sort.Slice(pick, func(i, j int) bool { return pick[i].Agency.ID < pick[j].Agency.ID })
	return pick, nil
}

func coversExactly(s *lead.Subscription, territory string) bool {
	for _, t := range s.Territories {
		if t == territory {
			return true
		}
	}
	return false
}
