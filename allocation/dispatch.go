/*
dispatch.go - DispatchGate and LR reconciliation

STATE MACHINE (per rootId):
  NotDispatched --Dispatch(project/marketing purpose, Admin)--> Dispatched
  Dispatched is terminal. Dispatching again returns the current state.

ORDER OF CHECKS IN Dispatch:
  1. Caller-supplied purpose, if any, must be eligible
  2. Lineage must exist
  3. Recorded root purpose must be eligible
  4. Actor must be allowed to dispatch
  A non-eligible purpose therefore yields PolicyError for any actor.

LR:
  RecordLR overwrites lrNo on the lineage (last write wins) and is allowed
  before dispatch. Every write is logged and audited with the value it
  replaced.
*/
package allocation

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type DispatchResult struct {
	RootID            string
	ToVendor          bool
	AlreadyDispatched bool
	Lineage           Lineage
}

func (r DispatchResult) Message() string {
	if r.AlreadyDispatched {
		return "already sent to vendor"
	}
	return "sent to vendor"
}

// Dispatch forwards the lineage of rootID to the vendor.
func (s *Service) Dispatch(ctx context.Context, actor Actor, rootID, purpose string) (*DispatchResult, error) {
	rootID = strings.TrimSpace(rootID)
	if purpose = strings.TrimSpace(purpose); purpose != "" && !IsDispatchEligible(purpose) {
		return nil, &PolicyError{RootID: rootID, Purpose: purpose}
	}

	lineage, err := s.Store.GetLineage(ctx, rootID)
	if err != nil {
		return nil, err
	}
	if lineage == nil {
		return nil, notFound(rootID)
	}
	root, err := s.rootRecord(ctx, rootID)
	if err != nil {
		return nil, err
	}
	if !IsDispatchEligible(root.Purpose) {
		return nil, &PolicyError{RootID: rootID, Purpose: root.Purpose}
	}

	if err := s.Policy.Authorize(actor, ActionDispatch); err != nil {
		return nil, err
	}

	now := s.Now().UTC()
	// The row only becomes due for the scheduler once the inline attempt
	// has had its chance.
	due := now
	if s.Outbox != nil {
		due = now.Add(s.Outbox.Retry.Backoff(1))
	}
	notification := VendorNotification{
		ID: uuid.NewString(),
		Notice: DispatchNotice{
			RootID:       rootID,
			Item:         string(root.Item),
			Purpose:      root.Purpose,
			Quantity:     root.Total(),
			DispatchedBy: actor.EmpCode,
			DispatchedAt: now,
		},
		Status:        NotificationPending,
		NextAttemptAt: due,
		CreatedAt:     now,
	}

	already := false
	err = s.Store.WithTx(ctx, func(tx Store) error {
		if err := tx.MarkDispatched(ctx, rootID, actor.EmpCode, now); err != nil {
			if errors.Is(err, ErrAlreadyDispatched) {
				already = true
				return nil
			}
			return err
		}
		if err := tx.AppendAudit(ctx, s.audit(actor, AuditDispatched, rootID, map[string]string{
			"purpose": root.Purpose,
		})); err != nil {
			return err
		}
		return tx.EnqueueNotification(ctx, notification)
	})
	if err != nil {
		return nil, err
	}

	log := s.Logger.WithFields(logrus.Fields{"module": "dispatch", "rootId": rootID, "by": actor.EmpCode})
	if already {
		log.Info("dispatch repeated, lineage already with vendor")
	} else {
		log.Info("lineage dispatched")
		if s.Outbox != nil {
			// Failures stay pending for the scheduler.
			_ = s.Outbox.Deliver(ctx, notification)
		}
	}

	current, err := s.Store.GetLineage(ctx, rootID)
	if err != nil {
		return nil, err
	}
	return &DispatchResult{RootID: rootID, ToVendor: current.ToVendor, AlreadyDispatched: already, Lineage: *current}, nil
}

// RecordLR attaches a logistics receipt number to the lineage of rootID.
func (s *Service) RecordLR(ctx context.Context, actor Actor, rootID, lrNo string) (*Lineage, error) {
	rootID = strings.TrimSpace(rootID)
	lrNo = strings.TrimSpace(lrNo)
	if lrNo == "" {
		return nil, invalid("lrNo", "required")
	}
	if err := s.Policy.Authorize(actor, ActionRecordLR); err != nil {
		return nil, err
	}

	now := s.Now().UTC()
	var previous string
	err := s.Store.WithTx(ctx, func(tx Store) error {
		lineage, err := tx.GetLineage(ctx, rootID)
		if err != nil {
			return err
		}
		if lineage == nil {
			return notFound(rootID)
		}

		previous, err = tx.SetLR(ctx, rootID, lrNo, actor.EmpCode, now)
		if err != nil {
			return err
		}
		return tx.AppendAudit(ctx, s.audit(actor, AuditLRRecorded, rootID, map[string]string{
			"previous": previous,
			"lrNo":     lrNo,
			"role":     string(actor.Role),
		}))
	})
	if err != nil {
		return nil, err
	}

	s.Logger.WithFields(logrus.Fields{
		"module":   "lr",
		"rootId":   rootID,
		"lrNo":     lrNo,
		"previous": previous,
		"by":       actor.EmpCode,
		"role":     actor.Role,
	}).Info("lr recorded")

	return s.Store.GetLineage(ctx, rootID)
}

// rootRecord is the Admin allocation that opened rootID's lineage.
func (s *Service) rootRecord(ctx context.Context, rootID string) (*Allocation, error) {
	records, err := s.Store.ListAllocationsByRoot(ctx, rootID)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].IsRoot() {
			return &records[i], nil
		}
	}
	return nil, notFound(rootID)
}
