/*
errors.go - Error taxonomy of the allocation chain

ERROR CATEGORIES:
  1. Validation - Malformed requests, rejected before any mutation
  2. Policy     - Dispatch of a purpose that is not project/marketing
  3. Forbidden  - Role not allowed to perform the action
  4. Not found  - Unknown rootId or allocation
  Stock shortages surface as stock.InsufficientStockError unchanged.

USAGE:
  var verr *allocation.ValidationError
  if errors.As(err, &verr) { ... verr.Field ... }

SEE ALSO:
  - stock/errors.go: Ledger-level errors
  - api/errors.go: HTTP status mapping
*/
package allocation

import (
	"errors"
	"fmt"

	"github.com/warp/allocation-ledger/directory"
	"github.com/warp/allocation-ledger/stock"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	ErrValidation = errors.New("validation failed")

	ErrPolicy = errors.New("policy violation")

	ErrForbidden = errors.New("forbidden")

	ErrAllocationNotFound = errors.New("allocation not found")

	ErrUserNotFound = errors.New("user not found")

	// ErrAlreadyDispatched is reported by the store when a lineage is already
	// with the vendor. Dispatch turns it into a successful no-op.
	ErrAlreadyDispatched = errors.New("already dispatched")

	// ErrLockBusy is returned when the per-pool lock could not be obtained.
	ErrLockBusy = errors.New("stock pool is busy")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// PolicyError reports a dispatch refused because of the lineage purpose.
type PolicyError struct {
	RootID  string
	Purpose string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("purpose %q of %s is not eligible for vendor dispatch (must mention project or marketing)", e.Purpose, e.RootID)
}

func (e *PolicyError) Unwrap() error {
	return ErrPolicy
}

type ForbiddenError struct {
	Role   directory.Role
	Action Action
}

func (e *ForbiddenError) Error() string {
	role := string(e.Role)
	if role == "" {
		role = "anonymous"
	}
	return fmt.Sprintf("role %s may not %s", role, e.Action)
}

func (e *ForbiddenError) Unwrap() error {
	return ErrForbidden
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrAllocationNotFound, id)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the request, not the server.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrPolicy) ||
		errors.Is(err, ErrForbidden) ||
		IsNotFound(err) ||
		stock.IsClientError(err)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrAllocationNotFound) || errors.Is(err, ErrUserNotFound)
}
