package user

import (
	"errors"
	"fmt"
)

// SiteInstitution is the name of the platform-wide institution every
// account implicitly relates to. Site-level public folders hang off it.
const SiteInstitution = "site"

// InstitutionMembership is one user's relation to one institution.
type InstitutionMembership struct {
	Institution string `json:"institution"`
	DisplayName string `json:"display_name"`
	Admin       bool   `json:"admin"`
	Staff       bool   `json:"staff"`
	// Theme is the institution's theme name; empty when the institution has
	// theming disabled.
	Theme string `json:"theme,omitempty"`
	// Suspended mirrors the institution's suspension flag at refresh time.
	Suspended bool `json:"suspended"`
	// RegisterAllowed mirrors whether the institution permits
	// self-registration and self-deletion.
	RegisterAllowed bool `json:"register_allowed"`
}

// Theme is the resolved theme descriptor for a user.
type Theme struct {
	Name          string `json:"name"`
	Institution   string `json:"institution"`
	StylesheetURL string `json:"stylesheet_url"`
}

// UnknownPrincipalError reports a lookup that matched no account. It is
// always propagated; a missing principal is never silently converted to an
// anonymous identity.
type UnknownPrincipalError struct {
	Lookup string
}

func (e *UnknownPrincipalError) Error() string {
	return fmt.Sprintf("unknown principal (lookup by %s)", e.Lookup)
}

// IsUnknownPrincipal checks if an error is an unknown principal error.
func IsUnknownPrincipal(err error) bool {
	var target *UnknownPrincipalError
	return errors.As(err, &target)
}

// InvalidArgumentError reports malformed input to a quota or lookup
// operation.
type InvalidArgumentError struct {
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return "invalid argument: " + e.Reason
}

// IsInvalidArgument checks if an error is an invalid argument error.
func IsInvalidArgument(err error) bool {
	var target *InvalidArgumentError
	return errors.As(err, &target)
}

// InvalidOperationError reports a forbidden mutation, such as assigning
// quotaused directly instead of going through the checked add/remove path.
type InvalidOperationError struct {
	Reason string
}

func (e *InvalidOperationError) Error() string {
	return "invalid operation: " + e.Reason
}

// IsInvalidOperation checks if an error is an invalid operation error.
func IsInvalidOperation(err error) bool {
	var target *InvalidOperationError
	return errors.As(err, &target)
}

// QuotaExceededError reports that a quota add would exceed the limit.
type QuotaExceededError struct {
	Requested int64
	Used      int64
	Limit     int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %d bytes requested, %d of %d used", e.Requested, e.Used, e.Limit)
}

// IsQuotaExceeded checks if an error is a quota exceeded error.
func IsQuotaExceeded(err error) bool {
	var target *QuotaExceededError
	return errors.As(err, &target)
}
