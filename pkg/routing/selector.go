package routing

import (
	"github.com/Mindburn-Labs/leadgrid/pkg/lead"
)

// Select picks the next agency from a non-empty candidate list using the
// territory's rotation cursor. The exclusion set serves reject-triggered
// re-routing: a rejecting agency never receives the same lead back.
//
// The cursor references the last agency assigned in the territory; the
// selection is (index(last) + 1) mod n over the filtered list. When the
// cursor is absent or its agency has dropped out of the list, rotation
// restarts at index 0.
func Select(candidates []lead.Candidate, cursor *lead.SequenceCursor, exclude map[string]bool) (lead.Candidate, error) {
	filtered := candidates
	if len(exclude) > 0 {
		filtered = make([]lead.Candidate, 0, len(candidates))
		for _, c := range candidates {
			if !exclude[c.Agency.ID] {
				filtered = append(filtered, c)
			}
		}
	}
	if len(filtered) == 0 {
		return lead.Candidate{}, lead.ErrNoEligibleAfterExclusion
	}

	last := -1
	if cursor != nil {
		for i, c := range filtered {
			if c.Agency.ID == cursor.LastAssignedID {
				last = i
				break
			}
		}
	}
	return filtered[(last+1)%len(filtered)], nil
}
