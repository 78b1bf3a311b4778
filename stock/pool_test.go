package stock_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/allocation-ledger/stock"
	"github.com/warp/allocation-ledger/stock/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const blenze stock.ItemName = "Blenze Pro PDB"

func newTestPool() (*stock.Pool, *store.Memory) {
	mem := store.NewMemory()
	return stock.NewPool(stock.NewLedger(mem)), mem
}

func ref(id string) stock.Reference {
	return stock.Reference{ID: id, Reason: "test", Actor: "ADM1"}
}

func available(t *testing.T, pool *stock.Pool, owner stock.OwnerID, item stock.ItemName) int64 {
	t.Helper()
	qty, err := pool.Available(context.Background(), owner, item)
	require.NoError(t, err)
	return qty.Int64()
}

// =============================================================================
// AVAILABLE
// =============================================================================

func TestAvailable_UnknownEntryIsZero(t *testing.T) {
	pool, _ := newTestPool()

	assert.Equal(t, int64(0), available(t, pool, "E404", blenze))
}

// =============================================================================
// RESERVE
// =============================================================================

func TestReserve_DecrementsBalance(t *testing.T) {
	// GIVEN: 500 boards in the Admin pool
	pool, _ := newTestPool()
	ctx := context.Background()
	require.NoError(t, pool.Open(ctx, blenze, stock.Pieces(500), ref("open-1")))

	// WHEN: Reserving 100
	err := pool.Reserve(ctx, stock.AdminPool, blenze, stock.Pieces(100), ref("alloc-1"))

	// THEN: 400 remain
	require.NoError(t, err)
	assert.Equal(t, int64(400), available(t, pool, stock.AdminPool, blenze))
}

func TestReserve_InsufficientLeavesBalanceUnchanged(t *testing.T) {
	// GIVEN: RM1 holds 60
	pool, _ := newTestPool()
	ctx := context.Background()
	require.NoError(t, pool.Credit(ctx, "RM1", blenze, stock.Pieces(60), ref("alloc-1")))

	// WHEN: Reserving 61, twice
	for i := 0; i < 2; i++ {
		err := pool.Reserve(ctx, "RM1", blenze, stock.Pieces(61), ref("alloc-2"))

		// THEN: Fails with a detailed shortage, nothing written
		require.Error(t, err)
		assert.ErrorIs(t, err, stock.ErrInsufficientStock)

		var short *stock.InsufficientStockError
		require.ErrorAs(t, err, &short)
		assert.Equal(t, int64(60), short.Available.Int64())
		assert.Equal(t, int64(1), short.Shortfall.Int64())
		assert.Equal(t, int64(60), available(t, pool, "RM1", blenze))
	}
}

func TestReserve_ExactBalanceDrainsToZero(t *testing.T) {
	pool, _ := newTestPool()
	ctx := context.Background()
	require.NoError(t, pool.Credit(ctx, "BM1", blenze, stock.Pieces(25), ref("alloc-1")))

	require.NoError(t, pool.Reserve(ctx, "BM1", blenze, stock.Pieces(25), ref("alloc-2")))
	assert.Equal(t, int64(0), available(t, pool, "BM1", blenze))
}

func TestReserve_RejectsNonPositiveQuantity(t *testing.T) {
	pool, _ := newTestPool()
	ctx := context.Background()

	for _, qty := range []int64{0, -5} {
		err := pool.Reserve(ctx, stock.AdminPool, blenze, stock.Pieces(qty), ref("alloc-x"))
		assert.ErrorIs(t, err, stock.ErrInvalidQuantity, "qty %d", qty)
	}
}

func TestReserve_SameReferenceIsRejectedAsDuplicate(t *testing.T) {
	// GIVEN: A reserve already posted for alloc-1
	pool, _ := newTestPool()
	ctx := context.Background()
	require.NoError(t, pool.Open(ctx, blenze, stock.Pieces(500), ref("open-1")))
	require.NoError(t, pool.Reserve(ctx, stock.AdminPool, blenze, stock.Pieces(100), ref("alloc-1")))

	// WHEN: The same allocation is replayed
	err := pool.Reserve(ctx, stock.AdminPool, blenze, stock.Pieces(100), ref("alloc-1"))

	// THEN: Rejected, balance posted once
	assert.ErrorIs(t, err, stock.ErrDuplicateIdempotencyKey)
	assert.Equal(t, int64(400), available(t, pool, stock.AdminPool, blenze))
}

// =============================================================================
// CREDIT / HOLDINGS
// =============================================================================

func TestCredit_HasNoUpperBound(t *testing.T) {
	pool, _ := newTestPool()
	ctx := context.Background()

	require.NoError(t, pool.Credit(ctx, "E1", blenze, stock.Pieces(1_000_000), ref("alloc-1")))
	require.NoError(t, pool.Credit(ctx, "E1", blenze, stock.Pieces(1), ref("alloc-2")))

	assert.Equal(t, int64(1_000_001), available(t, pool, "E1", blenze))
}

func TestHoldings_SortedPerItem(t *testing.T) {
	pool, _ := newTestPool()
	ctx := context.Background()
	require.NoError(t, pool.Credit(ctx, "RM1", "Orna PDB", stock.Pieces(10), ref("a")))
	require.NoError(t, pool.Credit(ctx, "RM1", "Evo PDB", stock.Pieces(5), ref("b")))
	require.NoError(t, pool.Reserve(ctx, "RM1", "Evo PDB", stock.Pieces(2), ref("c")))
	require.NoError(t, pool.Credit(ctx, "RM2", "Impact PDB", stock.Pieces(7), ref("d")))

	holdings, err := pool.Holdings(ctx, "RM1")
	require.NoError(t, err)

	require.Len(t, holdings, 2)
	assert.Equal(t, stock.ItemName("Evo PDB"), holdings[0].Item)
	assert.Equal(t, int64(3), holdings[0].Available.Int64())
	assert.Equal(t, stock.ItemName("Orna PDB"), holdings[1].Item)
	assert.Equal(t, int64(10), holdings[1].Available.Int64())
}

// =============================================================================
// TRANSFER
// =============================================================================

func TestTransfer_ReservesSumAndCreditsEachRecipient(t *testing.T) {
	// GIVEN: 500 boards in the Admin pool
	pool, mem := newTestPool()
	ctx := context.Background()
	require.NoError(t, pool.Open(ctx, blenze, stock.Pieces(500), ref("open-1")))

	// WHEN: Transferring 60 + 40
	total, err := pool.Transfer(ctx, stock.AdminPool, blenze, []stock.Recipient{
		{To: "RM1", Qty: stock.Pieces(60)},
		{To: "RM2", Qty: stock.Pieces(40)},
	}, ref("alloc-1"))

	// THEN: One reserve of 100, one credit each, counterparty recorded
	require.NoError(t, err)
	assert.Equal(t, int64(100), total.Int64())
	assert.Equal(t, int64(400), available(t, pool, stock.AdminPool, blenze))
	assert.Equal(t, int64(60), available(t, pool, "RM1", blenze))
	assert.Equal(t, int64(40), available(t, pool, "RM2", blenze))

	credits, err := mem.Load(ctx, "RM1", blenze)
	require.NoError(t, err)
	require.Len(t, credits, 1)
	assert.Equal(t, string(stock.AdminPool), credits[0].Metadata["from"])
}

func TestTransfer_HugeQuantitiesDoNotWrap(t *testing.T) {
	// GIVEN: 500 boards
	pool, _ := newTestPool()
	ctx := context.Background()
	require.NoError(t, pool.Open(ctx, blenze, stock.Pieces(500), ref("open-1")))

	// WHEN: Four quantities whose int64 sum would wrap around to 5
	const big = int64(1) << 62
	_, err := pool.Transfer(ctx, stock.AdminPool, blenze, []stock.Recipient{
		{To: "RM1", Qty: stock.Pieces(big)},
		{To: "RM2", Qty: stock.Pieces(big)},
		{To: "RM3", Qty: stock.Pieces(big)},
		{To: "RM4", Qty: stock.Pieces(big + 5)},
	}, ref("alloc-1"))

	// THEN: Rejected as a shortage, nothing moved
	var short *stock.InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.True(t, short.Requested.GreaterThan(stock.Pieces(500)))
	assert.Equal(t, int64(500), available(t, pool, stock.AdminPool, blenze))
	assert.Equal(t, int64(0), available(t, pool, "RM1", blenze))
}

func TestTransfer_RejectsEmptyAndNonPositive(t *testing.T) {
	pool, _ := newTestPool()
	ctx := context.Background()
	require.NoError(t, pool.Open(ctx, blenze, stock.Pieces(500), ref("open-1")))

	_, err := pool.Transfer(ctx, stock.AdminPool, blenze, nil, ref("alloc-1"))
	assert.ErrorIs(t, err, stock.ErrInvalidQuantity)

	_, err = pool.Transfer(ctx, stock.AdminPool, blenze, []stock.Recipient{
		{To: "RM1", Qty: stock.Pieces(10)},
		{To: "RM2", Qty: stock.Pieces(0)},
	}, ref("alloc-2"))
	assert.ErrorIs(t, err, stock.ErrInvalidQuantity)
	assert.Equal(t, int64(500), available(t, pool, stock.AdminPool, blenze))
}

func TestOwnerID_ScopeKeysAreNotEmpCodes(t *testing.T) {
	assert.True(t, stock.AdminPool.IsScope())
	assert.False(t, stock.OwnerID("admin").IsScope())
	assert.False(t, stock.ValidEmpCode(string(stock.AdminPool)))
	assert.True(t, stock.ValidEmpCode("admin"))
	assert.False(t, stock.ValidEmpCode(""))
}
