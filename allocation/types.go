/*
Package allocation implements the sample-board allocation chain.

PURPOSE:
  Stock cascades down the organisation: the Admin allocates catalog items to
  Regional Managers, who re-allocate to Branch Managers, who allocate to
  Employees. Every hop is an Allocation record stamped with the lineage ids
  of the tiers it passed through, and every hop moves boards between stock
  pools in one transaction.

KEY CONCEPTS IN THIS FILE (types.go):
  - Actor: The authenticated caller, passed explicitly to every operation
  - Allocation: One distribution event (item, shares, purpose, lineage ids)
  - Lineage: Per-rootId state shared by all records of the chain (dispatch, LR)
  - AuditEntry / VendorNotification: Side records written with the change

LINEAGE IDS:
  rootId  "A..."   stamped by the Admin, inherited by every descendant
  rmId    "RM..."  stamped by a Regional Manager, inherited by Branch Managers
  bmId    "BM..."  stamped by a Branch Manager
  A tier that was never passed through leaves its id empty. "NA" is only
  written when a child allocation could not find its parent.

SEE ALSO:
  - service.go: Creation (root and child)
  - dispatch.go: DispatchGate and LR reconciliation
  - view.go: Read-only projections per role
*/
package allocation

import (
	"strings"
	"time"

	"github.com/warp/allocation-ledger/directory"
	"github.com/warp/allocation-ledger/stock"
)

// NotAssigned is stamped on a lineage id the parent lookup could not resolve.
const NotAssigned = "NA"

// =============================================================================
// ACTOR - Session-scoped caller identity
// =============================================================================

type Actor struct {
	EmpCode string
	Name    string
	Role    directory.Role
	Region  string
	Branch  string
}

// Pool is the stock pool the actor allocates from.
func (a Actor) Pool() stock.OwnerID {
	if a.Role == directory.RoleAdmin {
		return stock.AdminPool
	}
	return stock.OwnerID(a.EmpCode)
}

// =============================================================================
// ALLOCATION
// =============================================================================

// MaxShareQty is the most boards a single share may carry.
const MaxShareQty int64 = 1_000_000

// Share is one recipient's part of an allocation.
type Share struct {
	EmpCode string
	Name    string
	Qty     int64
	Extra   map[string]string // custom columns entered by the allocator
}

type Allocation struct {
	ID       string
	ParentID string // allocation this one was carved out of; empty for roots

	RootID string
	RMID   string
	BMID   string

	Item      stock.ItemName
	Employees []Share
	Purpose   string

	AssignedBy     string
	AssignedByCode string
	Role           directory.Role
	Region         string
	Branch         string
	Date           time.Time

	// Projected from the lineage of RootID.
	ToVendor bool
	LRNo     string
}

// Total is the quantity the allocator gave away.
func (a Allocation) Total() int64 {
	var total int64
	for _, s := range a.Employees {
		total += s.Qty
	}
	return total
}

// Credits reports whether empCode received part of this allocation.
func (a Allocation) Credits(empCode string) bool {
	for _, s := range a.Employees {
		if s.EmpCode == empCode {
			return true
		}
	}
	return false
}

// IsRoot reports whether a is the Admin record that opened its lineage.
func (a Allocation) IsRoot() bool {
	return a.RootID != "" && a.RootID != NotAssigned && a.RMID == "" && a.BMID == ""
}

// AllocationRequest is the input to both creation paths.
type AllocationRequest struct {
	Item    stock.ItemName
	Shares  []Share
	Purpose string

	// Child allocations only.
	ParentRootID string
	ParentID     string
}

// =============================================================================
// LINEAGE - State shared by every record of a rootId
// =============================================================================

type Lineage struct {
	RootID       string
	ToVendor     bool
	DispatchedAt time.Time
	DispatchedBy string
	LRNo         string
	LRUpdatedAt  time.Time
	LRUpdatedBy  string
	CreatedAt    time.Time
}

// IsDispatchEligible reports whether purpose names a project or marketing use.
func IsDispatchEligible(purpose string) bool {
	p := strings.ToLower(purpose)
	return strings.Contains(p, "project") || strings.Contains(p, "marketing")
}

// =============================================================================
// AUDIT
// =============================================================================

type AuditAction string

const (
	AuditAllocationCreated AuditAction = "allocation_created"
	AuditLineageFallback   AuditAction = "lineage_fallback"
	AuditDispatched        AuditAction = "dispatched"
	AuditLRRecorded        AuditAction = "lr_recorded"
)

type AuditEntry struct {
	ID      string
	At      time.Time
	Actor   string
	Action  AuditAction
	RootID  string
	Payload map[string]string
}

// =============================================================================
// VENDOR NOTIFICATION - Outbox row written on dispatch
// =============================================================================

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationDead    NotificationStatus = "dead"
)

// DispatchNotice is what the vendor is told about a dispatched lineage.
type DispatchNotice struct {
	RootID       string    `json:"rootId"`
	Item         string    `json:"item"`
	Purpose      string    `json:"purpose"`
	Quantity     int64     `json:"quantity"`
	DispatchedBy string    `json:"dispatchedBy"`
	DispatchedAt time.Time `json:"dispatchedAt"`
}

type VendorNotification struct {
	ID            string
	Notice        DispatchNotice
	Status        NotificationStatus
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
}
