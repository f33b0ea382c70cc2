package validate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/leadgrid/pkg/lead"
	"github.com/Mindburn-Labs/leadgrid/pkg/mapper"
	"github.com/Mindburn-Labs/leadgrid/pkg/validate"
)

func valid() *mapper.Canonical {
	return &mapper.Canonical{
		Name:    "Jane Doe",
		Email:   "jane@example.com",
		Phone:   "5125550134",
		City:    "Austin",
		State:   "TX",
		Zipcode: "78701",
	}
}

func violationsOf(t *testing.T, err error) []string {
	t.Helper()
	require.Error(t, err)
	verr, ok := lead.IsValidation(err)
	require.True(t, ok)
	return verr.Violations
}

func TestCanonical_Valid(t *testing.T) {
	assert.NoError(t, validate.Canonical(valid()))
}

func TestCanonical_NameRequired(t *testing.T) {
	c := valid()
	c.Name = "   "
	assert.Contains(t, violationsOf(t, validate.Canonical(c)), validate.ViolationNameRequired)
}

func TestCanonical_ContactRequired(t *testing.T) {
	c := valid()
	c.Email = ""
	c.Phone = ""
	assert.Contains(t, violationsOf(t, validate.Canonical(c)), validate.ViolationContactRequired)
}

func TestCanonical_EmailFormat(t *testing.T) {
	for _, bad := range []string{"no-at-sign", "a@b", "a @b.co", "a@b .co"} {
		c := valid()
		c.Email = bad
		assert.Contains(t, violationsOf(t, validate.Canonical(c)), validate.ViolationEmailFormat, bad)
	}
}

func TestCanonical_PhoneTooShort(t *testing.T) {
	c := valid()
	c.Email = ""
	c.Phone = "123456"
	assert.Contains(t, violationsOf(t, validate.Canonical(c)), validate.ViolationPhoneTooShort)

	c.Phone = "1234567"
	assert.NoError(t, validate.Canonical(c))
}

func TestCanonical_TerritoryUnderivable(t *testing.T) {
	c := valid()
	c.Zipcode = ""
	c.City = ""
	c.State = "TX"
	assert.Contains(t, violationsOf(t, validate.Canonical(c)), validate.ViolationTerritoryMissing)

	// A city alone is enough for a territory.
	c.City = "Austin"
	assert.NoError(t, validate.Canonical(c))
}

func TestCanonical_CollectsAllViolations(t *testing.T) {
	c := &mapper.Canonical{}
	v := violationsOf(t, validate.Canonical(c))
	assert.ElementsMatch(t, []string{
		validate.ViolationNameRequired,
		validate.ViolationContactRequired,
		validate.ViolationTerritoryMissing,
	}, v)
}
