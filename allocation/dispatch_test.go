package allocation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/allocation-ledger/allocation"
	"github.com/warp/allocation-ledger/directory"
)

// =============================================================================
// DISPATCH
// =============================================================================

func TestDispatch_IsIdempotent(t *testing.T) {
	// GIVEN: A project allocation
	f := newFixture(t)
	ctx := context.Background()
	root := f.root(t, "Project Sunrise", shares("RM1", 10))

	// WHEN: Dispatching twice
	first, err := f.svc.Dispatch(ctx, admin, root.RootID, "")
	require.NoError(t, err)
	second, err := f.svc.Dispatch(ctx, admin, root.RootID, "")
	require.NoError(t, err)

	// THEN: toVendor is true both times, the second is a no-op
	assert.True(t, first.ToVendor)
	assert.False(t, first.AlreadyDispatched)
	assert.True(t, second.ToVendor)
	assert.True(t, second.AlreadyDispatched)
	assert.Equal(t, first.Lineage.DispatchedAt, second.Lineage.DispatchedAt)

	// THEN: One audit entry and one outbox row
	notifications, err := f.store.ListNotifications(ctx, root.RootID)
	require.NoError(t, err)
	assert.Len(t, notifications, 1)

	entries, err := f.store.ListAudit(ctx, root.RootID)
	require.NoError(t, err)
	dispatched := 0
	for _, e := range entries {
		if e.Action == allocation.AuditDispatched {
			dispatched++
		}
	}
	assert.Equal(t, 1, dispatched)
}

func TestDispatch_TeamBifurcationAlwaysPolicyError(t *testing.T) {
	// GIVEN: An internal-only allocation
	f := newFixture(t)
	ctx := context.Background()
	root := f.root(t, "Team Bifurcation", shares("RM1", 10))

	// WHEN/THEN: Any actor gets PolicyError, nothing changes
	for _, actor := range []allocation.Actor{admin, rm1, bm1, e1, vendor} {
		_, err := f.svc.Dispatch(ctx, actor, root.RootID, "")
		var perr *allocation.PolicyError
		require.ErrorAs(t, err, &perr, "actor %s", actor.Role)
		assert.ErrorIs(t, err, allocation.ErrPolicy)

		_, err = f.svc.Dispatch(ctx, actor, root.RootID, "Team Bifurcation")
		assert.ErrorIs(t, err, allocation.ErrPolicy)
	}

	lineage, err := f.store.GetLineage(ctx, root.RootID)
	require.NoError(t, err)
	assert.False(t, lineage.ToVendor)
}

func TestDispatch_PurposeMatchIsCaseInsensitive(t *testing.T) {
	for _, purpose := range []string{"MARKETING", "Project/Marketing", "new project launch", "Trade marketing"} {
		assert.True(t, allocation.IsDispatchEligible(purpose), purpose)
	}
	for _, purpose := range []string{"", "Team Bifurcation", "Display", "proj"} {
		assert.False(t, allocation.IsDispatchEligible(purpose), purpose)
	}
}

func TestDispatch_RequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.root(t, "Marketing", shares("RM1", 10))

	for _, actor := range []allocation.Actor{rm1, bm1, e1, vendor} {
		_, err := f.svc.Dispatch(ctx, actor, root.RootID, "")
		assert.ErrorIs(t, err, allocation.ErrForbidden, "actor %s", actor.Role)
	}
}

func TestDispatch_UnknownRoot(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Dispatch(context.Background(), admin, "A9999", "")

	assert.ErrorIs(t, err, allocation.ErrAllocationNotFound)
	assert.True(t, allocation.IsNotFound(err))
}

// =============================================================================
// LR RECONCILIATION
// =============================================================================

func TestDispatchThenLR_VisibleInEveryView(t *testing.T) {
	// GIVEN: A dispatched project lineage cascaded to E1
	f := newFixture(t)
	ctx := context.Background()
	root := f.root(t, "Project/Marketing", shares("RM1", 100))
	_, err := f.svc.CreateChildAllocation(ctx, rm1, allocation.AllocationRequest{
		Item: blenze, Shares: shares("BM1", 40), ParentRootID: root.RootID,
	})
	require.NoError(t, err)
	_, err = f.svc.CreateChildAllocation(ctx, bm1, allocation.AllocationRequest{
		Item: blenze, Shares: shares("E1", 15), ParentRootID: root.RootID,
	})
	require.NoError(t, err)

	_, err = f.svc.Dispatch(ctx, admin, root.RootID, "")
	require.NoError(t, err)

	// WHEN: The vendor records the LR
	lineage, err := f.svc.RecordLR(ctx, vendor, root.RootID, "  LR123 ")
	require.NoError(t, err)
	assert.Equal(t, "LR123", lineage.LRNo)

	// THEN: Vendor list shows the root record with the LR
	vendorList, err := f.svc.VendorList(ctx, vendor, allocation.Filter{})
	require.NoError(t, err)
	require.Len(t, vendorList, 1)
	assert.Equal(t, root.ID, vendorList[0].ID)
	assert.True(t, vendorList[0].ToVendor)
	assert.Equal(t, "LR123", vendorList[0].LRNo)

	// THEN: Admin, BM and Employee views see it on every record of the lineage
	adminHistory, err := f.svc.AdminHistory(ctx, admin, allocation.Filter{})
	require.NoError(t, err)
	require.Len(t, adminHistory, 3)
	for _, a := range adminHistory {
		assert.Equal(t, "LR123", a.LRNo)
		assert.True(t, a.ToVendor)
	}

	branch, err := f.svc.ScopeView(ctx, bm1, allocation.ScopeBranch, allocation.Filter{})
	require.NoError(t, err)
	require.NotEmpty(t, branch.Assignments)
	for _, a := range branch.Assignments {
		assert.Equal(t, "LR123", a.LRNo)
	}

	employee, err := f.svc.ScopeView(ctx, e1, allocation.ScopeEmployee, allocation.Filter{})
	require.NoError(t, err)
	require.Len(t, employee.Assignments, 1)
	assert.Equal(t, "LR123", employee.Assignments[0].LRNo)
}

func TestRecordLR_LastWriteWinsAndIsAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.root(t, "Marketing", shares("RM1", 10))

	_, err := f.svc.RecordLR(ctx, bm1, root.RootID, "LR1")
	require.NoError(t, err)
	lineage, err := f.svc.RecordLR(ctx, admin, root.RootID, "LR2")
	require.NoError(t, err)

	assert.Equal(t, "LR2", lineage.LRNo)
	assert.Equal(t, "ADM1", lineage.LRUpdatedBy)
	assert.False(t, lineage.ToVendor, "LR is allowed before dispatch")

	entries, err := f.svc.Audit(ctx, admin, root.RootID)
	require.NoError(t, err)
	var lrWrites []allocation.AuditEntry
	for _, e := range entries {
		if e.Action == allocation.AuditLRRecorded {
			lrWrites = append(lrWrites, e)
		}
	}
	require.Len(t, lrWrites, 2)
	assert.Equal(t, "", lrWrites[0].Payload["previous"])
	assert.Equal(t, "LR1", lrWrites[1].Payload["previous"])
	assert.Equal(t, "LR2", lrWrites[1].Payload["lrNo"])
}

func TestRecordLR_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.root(t, "Marketing", shares("RM1", 10))

	_, err := f.svc.RecordLR(ctx, admin, root.RootID, "   ")
	assert.ErrorIs(t, err, allocation.ErrValidation)

	_, err = f.svc.RecordLR(ctx, admin, "A404", "LR9")
	assert.ErrorIs(t, err, allocation.ErrAllocationNotFound)

	for _, actor := range []allocation.Actor{rm1, e1, {EmpCode: "M1", Role: directory.RoleManager}} {
		_, err = f.svc.RecordLR(ctx, actor, root.RootID, "LR9")
		assert.ErrorIs(t, err, allocation.ErrForbidden, "actor %s", actor.Role)
	}
}
