package lead

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the pipeline taxonomy. Lower layers return these
// values; the HTTP boundary is the only place that knows status codes.
var (
	ErrPortalUnknown    = errors.New("portal unknown")
	ErrPortalInactive   = errors.New("portal inactive")
	ErrPortalAuthFailed = errors.New("portal authentication failed")

	ErrNoEligibleAgency         = errors.New("no eligible agency")
	ErrNoEligibleAfterExclusion = errors.New("no eligible agency after exclusion")

	ErrAssignmentConflict = errors.New("active assignment already exists for lead")
	ErrCursorConflict     = errors.New("sequence cursor was advanced concurrently")

	ErrAssignmentNotPending = errors.New("assignment is not pending")
	ErrAgencyMismatch       = errors.New("assignment belongs to a different agency")
	ErrLeadNotFound         = errors.New("lead not found")

	ErrStoreUnavailable = errors.New("store unavailable")
)

// ValidationError carries the list of violated rules from the validator.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Violations, "; ")
}

// DuplicateError is the idempotent-suppression outcome: a lead with the same
// contact identity already exists inside the dedup window.
type DuplicateError struct {
	ExistingID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate suppressed: existing lead %s", e.ExistingID)
}

// IsDuplicate extracts a DuplicateError from an error chain.
func IsDuplicate(err error) (*DuplicateError, bool) {
	var d *DuplicateError
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}

// IsValidation extracts a ValidationError from an error chain.
func IsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}
