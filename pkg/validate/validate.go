// Package validate enforces the canonical-lead admission rules. The rules
// run after schema mapping and normalization; failures carry the full list
// of violations so the webhook can report them all at once.
package validate

import (
	"regexp"
	"strings"

	"github.com/Mindburn-Labs/leadgrid/pkg/lead"
	"github.com/Mindburn-Labs/leadgrid/pkg/mapper"
)

// emailPattern is the pragmatic check: something@something.something with
// no whitespace. Full RFC 5322 validation is deliberately out of scope.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Violation codes surfaced to webhook callers.
const (
	ViolationNameRequired     = "name_required"
	ViolationContactRequired  = "email_or_phone_required"
	ViolationEmailFormat      = "email_invalid"
	ViolationPhoneTooShort    = "phone_too_short"
	ViolationTerritoryMissing = "territory_underivable"
)

const minPhoneDigits = 7

// Canonical checks a mapped lead and returns nil, or a ValidationError
// listing every violated rule.
func Canonical(c *mapper.Canonical) error {
	var violations []string

	if strings.TrimSpace(c.Name) == "" {
		violations = append(violations, ViolationNameRequired)
	}
	if c.Email == "" && c.Phone == "" {
		violations = append(violations, ViolationContactRequired)
	}
	if c.Email != "" && !emailPattern.MatchString(c.Email) {
		violations = append(violations, ViolationEmailFormat)
	}
	if c.Phone != "" && len(c.Phone) < minPhoneDigits {
		violations = append(violations, ViolationPhoneTooShort)
	}
	if lead.Territory(c.Zipcode, c.City, c.State) == "" {
		violations = append(violations, ViolationTerritoryMissing)
	}

	if len(violations) > 0 {
		return &lead.ValidationError{Violations: violations}
	}
	return nil
}
