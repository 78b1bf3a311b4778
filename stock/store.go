/*
store.go - Persistence interfaces for stock movements and the item catalog

PURPOSE:
  Defines the boundary between the stock engine and the database. The Store
  keeps append-only semantics: movements are written once and never edited.
  A wrong allocation is corrected by an adjustment movement, not an UPDATE.

KEY INTERFACES:
  Store:     Movement persistence (append, load, exists)
  ItemStore: Catalog persistence

IDEMPOTENCY:
  Every movement written by an allocation carries an idempotency key built
  from the allocation id. Replaying the same allocation is rejected instead
  of posting the boards twice.

ATOMIC BATCHES:
  AppendBatch() is all-or-nothing. Transactional grouping across stores
  (movements + allocation record) is provided by allocation.TxStore.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - stock/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: Higher-level interface using Store
*/
package stock

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Interface for movement persistence (append-only)
// =============================================================================

// Store handles persistence of movements.
// IMPORTANT: Store is APPEND-ONLY. No Update, No Delete.
type Store interface {
	// Append persists a movement. Returns ErrDuplicateIdempotencyKey if the key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch persists multiple movements atomically.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Load returns all movements for owner+item, oldest first.
	Load(ctx context.Context, ownerID OwnerID, item ItemName) ([]Transaction, error)

	// LoadByOwner returns all movements for owner across items, oldest first.
	LoadByOwner(ctx context.Context, ownerID OwnerID) ([]Transaction, error)

	// Exists checks if an idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// =============================================================================
// ITEM STORE - Catalog persistence
// =============================================================================

// Item is a catalog entry. Items are referenced by name everywhere else.
type Item struct {
	Name      ItemName
	Unit      Unit
	CreatedAt time.Time
}

type ItemStore interface {
	// SaveItem inserts the item, or leaves an existing item of that name untouched.
	SaveItem(ctx context.Context, item Item) error

	// GetItem returns nil, nil when the item is not in the catalog.
	GetItem(ctx context.Context, name ItemName) (*Item, error)

	ListItems(ctx context.Context) ([]Item, error)
}
