package lead_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Mindburn-Labs/leadgrid/pkg/lead"
)

func TestTerritory(t *testing.T) {
	assert.Equal(t, "78701", lead.Territory("78701", "", ""))
	assert.Equal(t, "78701", lead.Territory("78701-1234", "Austin", "TX"))
	assert.Equal(t, "787", lead.Territory("787", "", ""))
	assert.Equal(t, "Austin, TX", lead.Territory("", "Austin", "TX"))
	assert.Equal(t, "Austin", lead.Territory("", "Austin", ""))
	assert.Equal(t, "", lead.Territory("", "", "TX"))
	assert.Equal(t, "", lead.Territory("", "", ""))
}

func TestSubscription_Usable(t *testing.T) {
	assert.True(t, (&lead.Subscription{Status: lead.SubscriptionActive}).Usable())
	assert.True(t, (&lead.Subscription{Status: lead.SubscriptionTrial}).Usable())
	assert.False(t, (&lead.Subscription{Status: lead.SubscriptionCancelled}).Usable())
	assert.False(t, (&lead.Subscription{Status: lead.SubscriptionExpired}).Usable())
}

func TestSubscription_Covers(t *testing.T) {
	s := &lead.Subscription{Territories: []string{"78701", "78702"}}
	assert.True(t, s.Covers("78701"))
	assert.False(t, s.Covers("78709"))

	wild := &lead.Subscription{Territories: []string{lead.WildcardTerritory}}
	assert.True(t, wild.Covers("anything"))

	empty := &lead.Subscription{}
	assert.False(t, empty.Covers("78701"))
}

func TestAssignmentStatus_Active(t *testing.T) {
	assert.True(t, lead.AssignmentPending.Active())
	assert.True(t, lead.AssignmentAccepted.Active())
	assert.False(t, lead.AssignmentRejected.Active())
	assert.False(t, lead.AssignmentReassigned.Active())
}
