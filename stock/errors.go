/*
errors.go - Centralized error types for the stock engine

ERROR CATEGORIES:
  1. Ledger errors - Movement persistence failures
  2. Balance errors - Reserve exceeding the available quantity
  3. Catalog errors - Unknown items, malformed quantities, unit mismatches

USAGE:
  if errors.Is(err, stock.ErrInsufficientStock) {
      var short *stock.InsufficientStockError
      errors.As(err, &short)
  }

SEE ALSO:
  - pool.go: Returns InsufficientStockError
  - allocation/errors.go: Allocation-level taxonomy built on top of these
*/
package stock

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateIdempotencyKey is returned when a movement with the same
	// idempotency key already exists. Expected on retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrInsufficientStock is returned when a reserve exceeds the available balance.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidQuantity is returned for zero, negative or fractional quantities.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrUnknownItem is returned when an item is not in the catalog.
	ErrUnknownItem = errors.New("unknown item")

	// ErrTransactionFailed is returned when a movement cannot be persisted.
	ErrTransactionFailed = errors.New("transaction failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientStockError provides details about a shortage.
type InsufficientStockError struct {
	OwnerID   OwnerID
	Item      ItemName
	Available Amount
	Requested Amount
	Shortfall Amount
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock of %q for %s: available %v, requested %v, shortfall %v",
		e.Item, e.OwnerID, e.Available.Value, e.Requested.Value, e.Shortfall.Value)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// QuantityError reports a quantity that cannot be moved.
type QuantityError struct {
	Item     ItemName
	Quantity Amount
}

func (e *QuantityError) Error() string {
	return fmt.Sprintf("invalid quantity %v for %q: must be a positive whole number", e.Quantity.Value, e.Item)
}

func (e *QuantityError) Unwrap() error {
	return ErrInvalidQuantity
}

// UnitMismatchError reports opening stock in a unit other than the one the
// catalog item is counted in.
type UnitMismatchError struct {
	Item ItemName
	Want Unit
	Got  Unit
}

func (e *UnitMismatchError) Error() string {
	return fmt.Sprintf("item %q is counted in %s, got %s", e.Item, e.Want, e.Got)
}

func (e *UnitMismatchError) Unwrap() error {
	return ErrInvalidQuantity
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrUnknownItem) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}
