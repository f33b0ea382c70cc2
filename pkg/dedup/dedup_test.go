package dedup_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/leadgrid/pkg/dedup"
	"github.com/Mindburn-Labs/leadgrid/pkg/lead"
)

type fakeIndex struct {
	existing string
	sawSince time.Time
	sawEmail string
	sawPhone string
}

func (f *fakeIndex) FindRecentLeadByContact(_ context.Context, email, phone string, since time.Time) (string, error) {
	f.sawEmail, f.sawPhone, f.sawSince = email, phone, since
	return f.existing, nil
}

func TestCheck_DuplicateWithinWindow(t *testing.T) {
	idx := &fakeIndex{existing: "lead-1"}
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	d := dedup.New(idx, lead.ClockFunc(func() time.Time { return now }), 24*time.Hour)

	err := d.Check(context.Background(), "a@b.co", "")
	dup, ok := lead.IsDuplicate(err)
	require.True(t, ok)
	assert.Equal(t, "lead-1", dup.ExistingID)
	assert.Equal(t, now.Add(-24*time.Hour), idx.sawSince)
}

func TestCheck_NoMatch(t *testing.T) {
	d := dedup.New(&fakeIndex{}, lead.SystemClock(), 0)
	assert.NoError(t, d.Check(context.Background(), "a@b.co", "5125550134"))
}

func TestCheck_NoContactNeverMatches(t *testing.T) {
	idx := &fakeIndex{existing: "lead-1"}
	d := dedup.New(idx, lead.SystemClock(), time.Hour)
	assert.NoError(t, d.Check(context.Background(), "", ""))
	assert.Empty(t, idx.sawEmail) // index never consulted
}

func TestNew_DefaultWindow(t *testing.T) {
	idx := &fakeIndex{}
	now := time.Now()
	d := dedup.New(idx, lead.ClockFunc(func() time.Time { return now }), -5)
	_ = d.Check(context.Background(), "a@b.co", "")
	assert.Equal(t, now.Add(-dedup.DefaultWindow), idx.sawSince)
}
