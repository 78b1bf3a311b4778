/*
Package stock provides the stock pool engine behind sample-board allocation.

PURPOSE:
  Tracks how many units of each catalog item every holder currently has
  available. A holder is an employee code, or the shared Admin pool. The
  same engine serves every tier of the cascade: the Admin opening stock, a
  Regional Manager's received boards, a Branch Manager's, an Employee's.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (e.g., 40 pcs)
  - Transaction: An immutable ledger entry recording a stock movement
  - OwnerID / ItemName: Type-safe keys of a stock pool entry
  - Holding: Derived (owner, item) -> available view

DESIGN PRINCIPLES:
  1. Immutability: Movements are never modified. Balances are replayed.
  2. Precision: Uses decimal.Decimal; boards are counted in whole units.
  3. Type Safety: Owner and item keys are distinct types.
  4. Auditability: Every movement has reason, reference, and idempotency key.

USAGE:
  pool := stock.NewPool(stock.NewLedger(store))
  err := pool.Reserve(ctx, stock.AdminPool, "Blenze Pro PDB", stock.Pieces(100), ref)

SEE ALSO:
  - pool.go: StockPool operations (Available, Reserve, Credit, Holdings)
  - ledger.go: Movement persistence interface
  - catalog.go: Items the Admin may allocate
*/
package stock

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitPieces Unit = "pcs"
	UnitBoxes  Unit = "boxes"
)

func NewAmount(value int64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromInt(value), Unit: unit}
}

// Pieces is shorthand for a whole number of boards.
func Pieces(n int64) Amount {
	return NewAmount(n, UnitPieces)
}

func (a Amount) Zero() Amount              { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount       { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount       { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Neg() Amount               { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) IsNegative() bool          { return a.Value.IsNegative() }
func (a Amount) IsZero() bool              { return a.Value.IsZero() }
func (a Amount) IsPositive() bool          { return a.Value.IsPositive() }
func (a Amount) IsWhole() bool             { return a.Value.IsInteger() }
func (a Amount) GreaterThan(b Amount) bool { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool    { return a.Value.LessThan(b.Value) }
func (a Amount) Int64() int64              { return a.Value.IntPart() }

// =============================================================================
// IDENTIFIERS
// =============================================================================

// OwnerID is an employee code, or a role-scope key such as AdminPool.
type OwnerID string

type ItemName string

type TransactionID string

// scopePrefix marks owner keys that belong to a role rather than a person.
// Employee codes may not contain ':'.
const scopePrefix = "role:"

// AdminPool is the shared pool every Admin allocates from.
const AdminPool OwnerID = scopePrefix + "admin"

// IsScope reports whether o is a role-scope key such as AdminPool.
func (o OwnerID) IsScope() bool {
	return strings.HasPrefix(string(o), scopePrefix)
}

// ValidEmpCode reports whether code can name a personal pool.
func ValidEmpCode(code string) bool {
	return code != "" && !strings.Contains(code, ":")
}

// =============================================================================
// TRANSACTION - Atomic change to a stock pool entry
// =============================================================================

type TransactionType string

const (
	TxOpening TransactionType = "opening" // Admin opens stock for a catalog item
	TxCredit  TransactionType = "credit"  // Incoming allocation from the tier above
	TxReserve TransactionType = "reserve" // Outgoing allocation to the tier below
)

type Transaction struct {
	ID             TransactionID
	OwnerID        OwnerID
	Item           ItemName
	Delta          Amount
	Type           TransactionType
	ReferenceID    string // allocation that caused the movement
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string // counterparty of a transfer

	CreatedBy string
	CreatedAt time.Time
}

// =============================================================================
// HOLDING - Derived balance for one (owner, item)
// =============================================================================

type Holding struct {
	OwnerID   OwnerID
	Item      ItemName
	Available Amount
}

// Reference ties a movement to the allocation that caused it.
type Reference struct {
	ID     string // allocation id
	Reason string
	Actor  string // empCode of whoever performed the action
}
