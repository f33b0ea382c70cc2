// Package dedup suppresses repeat submissions of the same contact inside a
// recency window. Matching is by normalized email OR phone; the window is
// evaluated against created_at only, so later updates to a lead never
// extend its suppression.
package dedup

import (
	"context"
	"time"

	"github.com/Mindburn-Labs/leadgrid/pkg/lead"
)

// DefaultWindow is 24 hours.
const DefaultWindow = 24 * time.Hour

// ContactIndex is the store lookup the deduplicator needs.
type ContactIndex interface {
	FindRecentLeadByContact(ctx context.Context, email, phone string, since time.Time) (string, error)
}

// Deduplicator checks candidates against recent leads.
type Deduplicator struct {
	index  ContactIndex
	clock  lead.Clock
	window time.Duration
}

// New builds a Deduplicator; a non-positive window falls back to
// DefaultWindow.
func New(index ContactIndex, clock lead.Clock, window time.Duration) *Deduplicator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Deduplicator{index: index, clock: clock, window: window}
}

// Check returns a DuplicateError carrying the existing lead id when the
// candidate's contact identity appeared within the window, nil otherwise.
// A candidate with neither email nor phone cannot match.
func (d *Deduplicator) Check(ctx context.Context, email, phone string) error {
	if email == "" && phone == "" {
		return nil
	}
	since := d.clock.Now().Add(-d.window)
	existing, err := d.index.FindRecentLeadByContact(ctx, email, phone, since)
	if err != nil {
		return err
	}
	if existing != "" {
		return &lead.DuplicateError{ExistingID: existing}
	}
	return nil
}
