/*
service.go - Allocation creation at every tier

PURPOSE:
  Service is the single entry point for mutating the allocation chain. It
  checks the caller's role against the Policy, validates the request, and
  moves stock and writes the record inside one store transaction.

HOW CREATION WORKS:
  1. Authorize the actor (Admin for roots, RM/BM for children)
  2. Validate shares and the catalog item
  3. Lock the actor's (pool, item) entry
  4. In one transaction:
     a. Resolve lineage ids (new rootId, or inherit from the parent)
     b. Transfer sum(shares) from the actor's pool to the recipients
        (one reserve, one credit each, as one ledger batch)
     d. Save the record and its audit entry
  Any failure rolls back all of it; an InsufficientStockError leaves every
  balance untouched.

PARENT RESOLUTION (child allocations):
  1. Explicit parentId from the request
  2. Newest allocation of the item, in parentRootId's lineage, that
     credited the actor
  3. Newest allocation of the item that credited the actor
  4. None: rootId = "NA" (and rmId = "NA" for a Branch Manager). The record
     is still created; the fallback is logged and audited.

SEE ALSO:
  - dispatch.go: Dispatch and RecordLR
  - view.go: Read side
*/
package allocation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/warp/allocation-ledger/directory"
	"github.com/warp/allocation-ledger/stock"
)

type Service struct {
	Store  TxStore
	Users  directory.Store
	Policy Policy
	Locker Locker
	IDs    IDGenerator
	Outbox *Outbox // nil: notifications stay pending for the scheduler
	Logger *logrus.Logger
	Now    func() time.Time
}

func NewService(store TxStore, users directory.Store, logger *logrus.Logger) *Service {
	return &Service{
		Store:  store,
		Users:  users,
		Policy: DefaultPolicy(),
		Locker: NewKeyedMutex(),
		IDs:    RandomIDs{},
		Logger: logger,
		Now:    time.Now,
	}
}

// =============================================================================
// CREATION
// =============================================================================

// CreateRootAllocation allocates catalog stock from the Admin pool and opens
// a new lineage.
func (s *Service) CreateRootAllocation(ctx context.Context, actor Actor, req AllocationRequest) (*Allocation, error) {
	if err := s.Policy.Authorize(actor, ActionAllocateRoot); err != nil {
		return nil, err
	}

	return s.create(ctx, actor, req, func(ctx context.Context, tx Store, a *Allocation) error {
		a.RootID = s.IDs.New(PrefixRoot)
		return tx.CreateLineage(ctx, Lineage{RootID: a.RootID, CreatedAt: a.Date})
	})
}

// CreateChildAllocation re-allocates boards the actor received, inheriting
// the lineage of the allocation they came from.
func (s *Service) CreateChildAllocation(ctx context.Context, actor Actor, req AllocationRequest) (*Allocation, error) {
	if err := s.Policy.Authorize(actor, ActionAllocateChild); err != nil {
		return nil, err
	}

	return s.create(ctx, actor, req, func(ctx context.Context, tx Store, a *Allocation) error {
		parent, err := s.resolveParent(ctx, tx, actor, req)
		if err != nil {
			return err
		}

		if parent == nil {
			a.RootID = NotAssigned
			if actor.Role == directory.RoleBranchManager {
				a.RMID = NotAssigned
			}
			s.Logger.WithFields(logrus.Fields{
				"module":       "allocation",
				"funcName":     "CreateChildAllocation",
				"empCode":      actor.EmpCode,
				"item":         a.Item,
				"parentRootId": req.ParentRootID,
			}).Warn("no parent allocation found, lineage ids fall back to NA")
			if err := tx.AppendAudit(ctx, s.audit(actor, AuditLineageFallback, a.RootID, map[string]string{
				"allocationId": a.ID,
				"item":         string(a.Item),
				"parentRootId": req.ParentRootID,
				"parentId":     req.ParentID,
			})); err != nil {
				return err
			}
		} else {
			a.ParentID = parent.ID
			a.RootID = parent.RootID
			if actor.Role == directory.RoleBranchManager {
				a.RMID = parent.RMID
			}
		}

		switch actor.Role {
		case directory.RoleRegionalManager:
			a.RMID = s.IDs.New(PrefixRM)
		case directory.RoleBranchManager:
			a.BMID = s.IDs.New(PrefixBM)
		}
		return nil
	})
}

type lineageFunc func(ctx context.Context, tx Store, a *Allocation) error

func (s *Service) create(ctx context.Context, actor Actor, req AllocationRequest, stamp lineageFunc) (*Allocation, error) {
	req.Item = stock.ItemName(strings.TrimSpace(string(req.Item)))
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	item, err := s.Store.GetItem(ctx, req.Item)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, invalid("item", "%q is not in the catalog", req.Item)
	}

	owner := actor.Pool()
	if !owner.IsScope() && !stock.ValidEmpCode(string(owner)) {
		return nil, invalid("empCode", "%q cannot hold stock", actor.EmpCode)
	}
	unlock, err := s.Locker.Lock(ctx, poolKey(owner, req.Item))
	if err != nil {
		return nil, err
	}
	defer unlock()

	a := Allocation{
		ID:             uuid.NewString(),
		Item:           req.Item,
		Employees:      normalizeShares(req.Shares),
		Purpose:        strings.TrimSpace(req.Purpose),
		AssignedBy:     actor.Name,
		AssignedByCode: actor.EmpCode,
		Role:           actor.Role,
		Region:         actor.Region,
		Branch:         actor.Branch,
		Date:           s.Now().UTC(),
	}

	err = s.Store.WithTx(ctx, func(tx Store) error {
		if err := stamp(ctx, tx, &a); err != nil {
			return err
		}

		pool := stock.NewPool(stock.NewLedger(tx))
		pool.Now = s.Now
		ref := stock.Reference{ID: a.ID, Reason: a.Purpose, Actor: actor.EmpCode}

		recipients := make([]stock.Recipient, len(a.Employees))
		for i, share := range a.Employees {
			recipients[i] = stock.Recipient{To: stock.OwnerID(share.EmpCode), Qty: stock.NewAmount(share.Qty, item.Unit)}
		}
		if _, err := pool.Transfer(ctx, owner, a.Item, recipients, ref); err != nil {
			return err
		}

		if err := tx.SaveAllocation(ctx, a); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, s.audit(actor, AuditAllocationCreated, a.RootID, map[string]string{
			"allocationId": a.ID,
			"rmId":         a.RMID,
			"bmId":         a.BMID,
			"item":         string(a.Item),
			"quantity":     strconv.FormatInt(a.Total(), 10),
		}))
	})
	if err != nil {
		var short *stock.InsufficientStockError
		if errors.As(err, &short) {
			s.Logger.WithFields(logrus.Fields{
				"module":    "allocation",
				"owner":     short.OwnerID,
				"item":      short.Item,
				"available": short.Available.Int64(),
				"requested": short.Requested.Int64(),
			}).Info("allocation rejected: insufficient stock")
		}
		return nil, err
	}

	s.Logger.WithFields(logrus.Fields{
		"module":   "allocation",
		"id":       a.ID,
		"rootId":   a.RootID,
		"rmId":     a.RMID,
		"bmId":     a.BMID,
		"item":     a.Item,
		"quantity": a.Total(),
		"by":       actor.EmpCode,
	}).Info("allocation created")
	return &a, nil
}

func (s *Service) resolveParent(ctx context.Context, tx Store, actor Actor, req AllocationRequest) (*Allocation, error) {
	if req.ParentID != "" {
		parent, err := tx.GetAllocation(ctx, req.ParentID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, invalid("parentId", "unknown allocation %q", req.ParentID)
		}
		if parent.Item != req.Item || !parent.Credits(actor.EmpCode) {
			return nil, invalid("parentId", "allocation %q did not give %s to %s", req.ParentID, req.Item, actor.EmpCode)
		}
		return parent, nil
	}

	all, err := tx.ListAllocations(ctx)
	if err != nil {
		return nil, err
	}

	var fallback *Allocation
	for i := range all {
		a := &all[i]
		if a.Item != req.Item || !a.Credits(actor.EmpCode) {
			continue
		}
		if req.ParentRootID == "" || a.RootID == req.ParentRootID {
			return a, nil
		}
		if fallback == nil {
			fallback = a
		}
	}
	return fallback, nil
}

func (s *Service) audit(actor Actor, action AuditAction, rootID string, payload map[string]string) AuditEntry {
	return AuditEntry{
		ID:      uuid.NewString(),
		At:      s.Now().UTC(),
		Actor:   actor.EmpCode,
		Action:  action,
		RootID:  rootID,
		Payload: payload,
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

func validateRequest(req AllocationRequest) error {
	if req.Item == "" {
		return invalid("item", "required")
	}
	if len(req.Shares) == 0 {
		return invalid("employees", "at least one recipient is required")
	}

	seen := make(map[string]bool, len(req.Shares))
	for i, share := range req.Shares {
		code := strings.TrimSpace(share.EmpCode)
		if code == "" {
			return invalid(fmt.Sprintf("employees[%d].empCode", i), "required")
		}
		if !stock.ValidEmpCode(code) {
			return invalid(fmt.Sprintf("employees[%d].empCode", i), "%q may not contain ':'", code)
		}
		if share.Qty <= 0 {
			return invalid(fmt.Sprintf("employees[%d].qty", i), "must be positive, got %d", share.Qty)
		}
		if share.Qty > MaxShareQty {
			return invalid(fmt.Sprintf("employees[%d].qty", i), "at most %d, got %d", MaxShareQty, share.Qty)
		}
		if seen[code] {
			return invalid(fmt.Sprintf("employees[%d].empCode", i), "%s appears more than once", code)
		}
		seen[code] = true
	}
	return nil
}

func normalizeShares(shares []Share) []Share {
	out := make([]Share, len(shares))
	for i, s := range shares {
		out[i] = Share{
			EmpCode: strings.TrimSpace(s.EmpCode),
			Name:    strings.TrimSpace(s.Name),
			Qty:     s.Qty,
			Extra:   s.Extra,
		}
	}
	return out
}
