package allocation_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/allocation-ledger/allocation"
	"github.com/warp/allocation-ledger/directory"
	"github.com/warp/allocation-ledger/stock"
	"github.com/warp/allocation-ledger/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const blenze stock.ItemName = "Blenze Pro PDB"

var (
	admin  = allocation.Actor{EmpCode: "ADM1", Name: "Asha Admin", Role: directory.RoleAdmin}
	rm1    = allocation.Actor{EmpCode: "RM1", Name: "Ravi Regional", Role: directory.RoleRegionalManager, Region: "North"}
	bm1    = allocation.Actor{EmpCode: "BM1", Name: "Bina Branch", Role: directory.RoleBranchManager, Region: "North", Branch: "Delhi"}
	e1     = allocation.Actor{EmpCode: "E1", Name: "Esha Employee", Role: directory.RoleEmployee}
	vendor = allocation.Actor{EmpCode: "V1", Name: "Vikram Vendor", Role: directory.RoleVendor}
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	svc   *allocation.Service
	store *sqlite.Store
	clock *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	clock := &testClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc := allocation.NewService(store, store, logger)
	svc.IDs = &allocation.SequenceIDs{}
	svc.Now = clock.Now

	_, err = svc.SeedCatalog(context.Background(), stock.DefaultCatalog())
	require.NoError(t, err)

	return &fixture{svc: svc, store: store, clock: clock}
}

func (f *fixture) balance(t *testing.T, owner stock.OwnerID, item stock.ItemName) int64 {
	t.Helper()
	qty, err := stock.NewPool(stock.NewLedger(f.store)).Available(context.Background(), owner, item)
	require.NoError(t, err)
	return qty.Int64()
}

func shares(pairs ...any) []allocation.Share {
	out := make([]allocation.Share, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		code := pairs[i].(string)
		out = append(out, allocation.Share{EmpCode: code, Name: "Name " + code, Qty: int64(pairs[i+1].(int))})
	}
	return out
}

func (f *fixture) root(t *testing.T, purpose string, s []allocation.Share) *allocation.Allocation {
	t.Helper()
	a, err := f.svc.CreateRootAllocation(context.Background(), admin, allocation.AllocationRequest{
		Item: blenze, Shares: s, Purpose: purpose,
	})
	require.NoError(t, err)
	return a
}

// =============================================================================
// END-TO-END CASCADE
// =============================================================================

func TestCascade_AdminToEmployee(t *testing.T) {
	// GIVEN: 500 Blenze Pro PDB in the Admin pool
	f := newFixture(t)
	ctx := context.Background()
	require.Equal(t, int64(500), f.balance(t, stock.AdminPool, blenze))

	// WHEN: Admin -> RM1 100, RM1 -> BM1 40, BM1 -> E1 15
	root := f.root(t, "Project Marketing", shares("RM1", 100))

	rmAlloc, err := f.svc.CreateChildAllocation(ctx, rm1, allocation.AllocationRequest{
		Item: blenze, Shares: shares("BM1", 40), Purpose: "Project Marketing", ParentRootID: root.RootID,
	})
	require.NoError(t, err)

	bmAlloc, err := f.svc.CreateChildAllocation(ctx, bm1, allocation.AllocationRequest{
		Item: blenze, Shares: shares("E1", 15), Purpose: "Project Marketing", ParentRootID: root.RootID,
	})
	require.NoError(t, err)

	// THEN: Every pool moved by exactly the allocated amounts
	assert.Equal(t, int64(400), f.balance(t, stock.AdminPool, blenze))
	assert.Equal(t, int64(60), f.balance(t, "RM1", blenze))
	assert.Equal(t, int64(25), f.balance(t, "BM1", blenze))
	assert.Equal(t, int64(15), f.balance(t, "E1", blenze))

	// THEN: Lineage ids resolve back to the Admin root
	assert.Equal(t, "A0001", root.RootID)
	assert.Empty(t, root.RMID)
	assert.Empty(t, root.BMID)

	assert.Equal(t, root.RootID, rmAlloc.RootID)
	assert.Equal(t, "RM0001", rmAlloc.RMID)
	assert.Empty(t, rmAlloc.BMID)
	assert.Equal(t, root.ID, rmAlloc.ParentID)

	assert.Equal(t, root.RootID, bmAlloc.RootID)
	assert.Equal(t, rmAlloc.RMID, bmAlloc.RMID)
	assert.Equal(t, "BM0001", bmAlloc.BMID)
	assert.Equal(t, rmAlloc.ID, bmAlloc.ParentID)

	stored, err := f.store.GetAllocation(ctx, bmAlloc.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, root.RootID, stored.RootID)
	assert.Equal(t, directory.RoleBranchManager, stored.Role)
	assert.Equal(t, "Delhi", stored.Branch)
}

func TestCreateRoot_SplitsAcrossRecipients(t *testing.T) {
	f := newFixture(t)

	a := f.root(t, "Team Bifurcation", shares("RM1", 70, "RM2", 30))

	assert.Equal(t, int64(100), a.Total())
	assert.Equal(t, int64(400), f.balance(t, stock.AdminPool, blenze))
	assert.Equal(t, int64(70), f.balance(t, "RM1", blenze))
	assert.Equal(t, int64(30), f.balance(t, "RM2", blenze))
}

func TestCreateRoot_ExtraColumnsArePersisted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.CreateRootAllocation(ctx, admin, allocation.AllocationRequest{
		Item:    blenze,
		Purpose: "Marketing push",
		Shares: []allocation.Share{
			{EmpCode: "RM1", Name: "Ravi", Qty: 5, Extra: map[string]string{"Dealer": "Sharma Ply"}},
		},
	})
	require.NoError(t, err)

	stored, err := f.store.GetAllocation(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sharma Ply", stored.Employees[0].Extra["Dealer"])
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestCreateRoot_RejectsMalformedRequests(t *testing.T) {
	cases := map[string]allocation.AllocationRequest{
		"no recipients":  {Item: blenze},
		"zero qty":       {Item: blenze, Shares: shares("RM1", 0)},
		"negative qty":   {Item: blenze, Shares: shares("RM1", -3)},
		"empty empCode":  {Item: blenze, Shares: []allocation.Share{{Name: "Nobody", Qty: 1}}},
		"duplicate":      {Item: blenze, Shares: shares("RM1", 1, "RM1", 2)},
		"unknown item":   {Item: "Nonexistent PDB", Shares: shares("RM1", 1)},
		"blank item":     {Item: "  ", Shares: shares("RM1", 1)},
		"qty over max":   {Item: blenze, Shares: shares("RM1", int(allocation.MaxShareQty)+1)},
		"scope empCode":  {Item: blenze, Shares: shares(string(stock.AdminPool), 1)},
	}

	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.svc.CreateRootAllocation(context.Background(), admin, req)

			require.Error(t, err)
			assert.ErrorIs(t, err, allocation.ErrValidation)
			assert.True(t, allocation.IsClientError(err))
			assert.Equal(t, int64(500), f.balance(t, stock.AdminPool, blenze), "nothing reserved")
		})
	}
}

func TestCreateRoot_QuantitiesThatWouldWrapAreRejected(t *testing.T) {
	// GIVEN: 500 in the Admin pool
	f := newFixture(t)
	const big = int64(1) << 62

	// WHEN: Four shares whose int64 sum wraps around to 5
	_, err := f.svc.CreateRootAllocation(context.Background(), admin, allocation.AllocationRequest{
		Item: blenze,
		Shares: []allocation.Share{
			{EmpCode: "RM1", Qty: big},
			{EmpCode: "RM2", Qty: big},
			{EmpCode: "RM3", Qty: big},
			{EmpCode: "RM4", Qty: big + 5},
		},
	})

	// THEN: Rejected, nothing reserved or credited
	assert.ErrorIs(t, err, allocation.ErrValidation)
	assert.Equal(t, int64(500), f.balance(t, stock.AdminPool, blenze))
	assert.Equal(t, int64(0), f.balance(t, "RM1", blenze))
}

func TestCreateRoot_MaxShareQtyIsStillBoundedByStock(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateRootAllocation(context.Background(), admin, allocation.AllocationRequest{
		Item:   blenze,
		Shares: shares("RM1", int(allocation.MaxShareQty), "RM2", int(allocation.MaxShareQty)),
	})

	var short *stock.InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, int64(2*allocation.MaxShareQty), short.Requested.Int64())
	assert.Equal(t, int64(500), f.balance(t, stock.AdminPool, blenze))
}

func TestCreate_InsufficientStockIsAllOrNothing(t *testing.T) {
	// GIVEN: RM1 holds 100
	f := newFixture(t)
	ctx := context.Background()
	root := f.root(t, "Project", shares("RM1", 100))

	// WHEN: RM1 tries to hand out 101 across two branch managers
	_, err := f.svc.CreateChildAllocation(ctx, rm1, allocation.AllocationRequest{
		Item: blenze, Shares: shares("BM1", 60, "BM2", 41), ParentRootID: root.RootID,
	})

	// THEN: Rejected with the shortage, no pool or record changed
	var short *stock.InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, int64(1), short.Shortfall.Int64())
	assert.Equal(t, int64(100), f.balance(t, "RM1", blenze))
	assert.Equal(t, int64(0), f.balance(t, "BM1", blenze))

	all, err := f.store.ListAllocations(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// =============================================================================
// AUTHORIZATION
// =============================================================================

func TestCreate_RolesAreEnforced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := allocation.AllocationRequest{Item: blenze, Shares: shares("E1", 1)}

	for _, actor := range []allocation.Actor{rm1, bm1, e1, vendor} {
		_, err := f.svc.CreateRootAllocation(ctx, actor, req)
		assert.ErrorIs(t, err, allocation.ErrForbidden, "root by %s", actor.Role)
	}
	for _, actor := range []allocation.Actor{admin, e1, vendor, {EmpCode: "M1", Role: directory.RoleManager}} {
		_, err := f.svc.CreateChildAllocation(ctx, actor, req)
		assert.ErrorIs(t, err, allocation.ErrForbidden, "child by %s", actor.Role)
	}
}

// =============================================================================
// PARENT RESOLUTION
// =============================================================================

func TestCreateChild_ExplicitParentWins(t *testing.T) {
	// GIVEN: Two lineages of the same item both credited RM1
	f := newFixture(t)
	ctx := context.Background()
	first := f.root(t, "Project A", shares("RM1", 10))
	_ = f.root(t, "Project B", shares("RM1", 10))

	// WHEN: RM1 names the older one explicitly
	child, err := f.svc.CreateChildAllocation(ctx, rm1, allocation.AllocationRequest{
		Item: blenze, Shares: shares("BM1", 5), ParentID: first.ID,
	})

	// THEN
	require.NoError(t, err)
	assert.Equal(t, first.RootID, child.RootID)
	assert.Equal(t, first.ID, child.ParentID)
}

func TestCreateChild_ParentRootSelectsLineage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.root(t, "Project A", shares("RM1", 10))
	second := f.root(t, "Project B", shares("RM1", 10))

	byRoot, err := f.svc.CreateChildAllocation(ctx, rm1, allocation.AllocationRequest{
		Item: blenze, Shares: shares("BM1", 5), ParentRootID: first.RootID,
	})
	require.NoError(t, err)
	assert.Equal(t, first.RootID, byRoot.RootID)

	newest, err := f.svc.CreateChildAllocation(ctx, rm1, allocation.AllocationRequest{
		Item: blenze, Shares: shares("BM2", 5),
	})
	require.NoError(t, err)
	assert.Equal(t, second.RootID, newest.RootID, "without a root hint the newest credit wins")
}

func TestCreateChild_UnknownExplicitParentIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.root(t, "Project", shares("RM1", 10))
	other := f.root(t, "Project", shares("RM2", 10))

	_, err := f.svc.CreateChildAllocation(ctx, rm1, allocation.AllocationRequest{
		Item: blenze, Shares: shares("BM1", 1), ParentID: "does-not-exist",
	})
	assert.ErrorIs(t, err, allocation.ErrValidation)

	_, err = f.svc.CreateChildAllocation(ctx, rm1, allocation.AllocationRequest{
		Item: blenze, Shares: shares("BM1", 1), ParentID: other.ID,
	})
	assert.ErrorIs(t, err, allocation.ErrValidation, "parent must have credited the actor")
}

func TestCreateChild_NoParentFallsBackToNA(t *testing.T) {
	// GIVEN: Stock credited to RM9 and BM9 outside any allocation record
	f := newFixture(t)
	ctx := context.Background()
	pool := stock.NewPool(stock.NewLedger(f.store))
	require.NoError(t, pool.Credit(ctx, "RM9", blenze, stock.Pieces(10), stock.Reference{ID: "import-1", Actor: "ADM1"}))
	require.NoError(t, pool.Credit(ctx, "BM9", blenze, stock.Pieces(10), stock.Reference{ID: "import-2", Actor: "ADM1"}))

	// WHEN: Both re-allocate
	rm := allocation.Actor{EmpCode: "RM9", Role: directory.RoleRegionalManager}
	bm := allocation.Actor{EmpCode: "BM9", Role: directory.RoleBranchManager}
	rmAlloc, err := f.svc.CreateChildAllocation(ctx, rm, allocation.AllocationRequest{Item: blenze, Shares: shares("X1", 4)})
	require.NoError(t, err)
	bmAlloc, err := f.svc.CreateChildAllocation(ctx, bm, allocation.AllocationRequest{Item: blenze, Shares: shares("X2", 4)})
	require.NoError(t, err)

	// THEN: Created with NA lineage ids, the fresh tier id still assigned
	assert.Equal(t, allocation.NotAssigned, rmAlloc.RootID)
	assert.Equal(t, "RM0001", rmAlloc.RMID)
	assert.Empty(t, rmAlloc.ParentID)

	assert.Equal(t, allocation.NotAssigned, bmAlloc.RootID)
	assert.Equal(t, allocation.NotAssigned, bmAlloc.RMID)
	assert.Equal(t, "BM0001", bmAlloc.BMID)

	// THEN: The fallback is on the audit trail
	entries, err := f.store.ListAudit(ctx, allocation.NotAssigned)
	require.NoError(t, err)
	fallbacks := 0
	for _, e := range entries {
		if e.Action == allocation.AuditLineageFallback {
			fallbacks++
		}
	}
	assert.Equal(t, 2, fallbacks)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestCreate_ConcurrentAllocationsNeverOverdraw(t *testing.T) {
	// GIVEN: RM1 holds 100
	f := newFixture(t)
	root := f.root(t, "Project", shares("RM1", 100))

	// WHEN: 10 concurrent allocations of 15
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.CreateChildAllocation(context.Background(), rm1, allocation.AllocationRequest{
				Item:         blenze,
				Shares:       []allocation.Share{{EmpCode: "BM" + string(rune('A'+i)), Qty: 15}},
				ParentRootID: root.RootID,
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, stock.ErrInsufficientStock)
		}(i)
	}
	wg.Wait()

	// THEN: Exactly 6 fit, 10 remain
	assert.Equal(t, 6, succeeded)
	assert.Equal(t, int64(10), f.balance(t, "RM1", blenze))
}
