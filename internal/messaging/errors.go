// Package messaging resolves tenants, events, templates and transports, and
// composes pending messages for the delivery engine.
package messaging

import "errors"

// Error kinds. Operations wrap one of these with context, so callers classify
// failures with errors.Is.
var (
	// ErrValidation marks malformed input such as an invalid address.
	ErrValidation = errors.New("validation error")
	// ErrContractViolation marks arguments outside the documented range.
	ErrContractViolation = errors.New("contract violation")
	// ErrNotFound marks an unknown identifier supplied by the caller.
	ErrNotFound = errors.New("not found")
	// ErrConfiguration marks missing reference data that must be provisioned
	// out of band.
	ErrConfiguration = errors.New("configuration error")
	// ErrDomain marks a request the current data does not allow.
	ErrDomain = errors.New("domain error")
)
