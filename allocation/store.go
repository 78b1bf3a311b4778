/*
store.go - Persistence interfaces of the allocation chain

PURPOSE:
  Allocation records, lineages and their side records live next to the
  stock movements so one database transaction covers a whole allocation:
  the reserve, every credit, the record and its audit entry.

KEY INTERFACES:
  Store:       Movements + catalog + allocation records + lineages + audit
  TxStore:     Store with transactional grouping
  OutboxStore: Vendor notifications awaiting delivery

MUTABLE STATE:
  Allocation records, movements and audit entries are append-only. The
  only updates are on the lineage row: toVendor (false -> true, guarded by
  the store) and lrNo (last write wins).

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go
*/
package allocation

import (
	"context"
	"time"

	"github.com/warp/allocation-ledger/stock"
)

type Store interface {
	stock.Store
	stock.ItemStore

	SaveAllocation(ctx context.Context, a Allocation) error

	// GetAllocation returns nil, nil when id is unknown.
	GetAllocation(ctx context.Context, id string) (*Allocation, error)

	// ListAllocations returns every record newest first, with toVendor and
	// lrNo projected from its lineage.
	ListAllocations(ctx context.Context) ([]Allocation, error)

	// ListAllocationsByRoot returns the records of one lineage, oldest first.
	ListAllocationsByRoot(ctx context.Context, rootID string) ([]Allocation, error)

	CreateLineage(ctx context.Context, l Lineage) error

	// GetLineage returns nil, nil when rootID is unknown.
	GetLineage(ctx context.Context, rootID string) (*Lineage, error)

	// MarkDispatched flips toVendor to true. Returns ErrAlreadyDispatched if
	// it was already true, ErrAllocationNotFound if the lineage is unknown.
	MarkDispatched(ctx context.Context, rootID, by string, at time.Time) error

	// SetLR overwrites lrNo and returns the value it replaced.
	SetLR(ctx context.Context, rootID, lrNo, by string, at time.Time) (previous string, err error)

	AppendAudit(ctx context.Context, e AuditEntry) error
	ListAudit(ctx context.Context, rootID string) ([]AuditEntry, error)

	EnqueueNotification(ctx context.Context, n VendorNotification) error
}

// TxStore groups operations into one atomic unit.
type TxStore interface {
	Store

	// WithTx runs fn against a transactional view of the store. fn's error
	// rolls everything back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

type OutboxStore interface {
	// PendingNotifications returns pending rows due at or before now, oldest first.
	PendingNotifications(ctx context.Context, now time.Time, limit int) ([]VendorNotification, error)

	MarkNotificationSent(ctx context.Context, id string, at time.Time) error

	// MarkNotificationFailed records a failed attempt. dead stops retries.
	MarkNotificationFailed(ctx context.Context, id string, attempts int, next time.Time, lastErr string, dead bool) error
}
