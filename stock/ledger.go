/*
ledger.go - Append-only stock movement log

PURPOSE:
  The Ledger is the source of truth for every stock pool entry. Openings,
  incoming credits, outgoing reserves and corrections are all recorded here.
  Available quantity is always computed by replaying movements; there is no
  separate balance column that can drift.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete.
  2. IMMUTABLE: Once written, movements cannot be modified
  3. IDEMPOTENT: Same idempotency key = same movement (no duplicates)

EXAMPLE FLOW:
  1. Admin opens 500 Blenze Pro PDB:   admin  +500 (opening)
  2. Admin allocates 100 to RM1:       admin  -100 (reserve)
                                       RM1    +100 (credit)
  3. RM1 allocates 40 to BM1:          RM1    -40  (reserve)
                                       BM1    +40  (credit)

  admin = 400, RM1 = 60, BM1 = 40

SEE ALSO:
  - store.go: Low-level persistence interface
  - pool.go: Balance checks on top of the ledger
*/
package stock

import (
	"context"
	"sort"
)

// =============================================================================
// LEDGER - Append-only movement log
// =============================================================================

type Ledger interface {
	// Append adds a movement. Fails if the idempotency key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch adds multiple movements atomically.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Balance replays the movements of owner+item.
	Balance(ctx context.Context, ownerID OwnerID, item ItemName) (Amount, error)

	// Balances replays every item held by owner.
	Balances(ctx context.Context, ownerID OwnerID) ([]Holding, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store Store
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

func (l *DefaultLedger) Append(ctx context.Context, tx Transaction) error {
	if tx.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.Append(ctx, tx)
}

func (l *DefaultLedger) AppendBatch(ctx context.Context, txs []Transaction) error {
	seen := make(map[string]bool, len(txs))
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		if seen[tx.IdempotencyKey] {
			return ErrDuplicateIdempotencyKey
		}
		seen[tx.IdempotencyKey] = true

		exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.AppendBatch(ctx, txs)
}

func (l *DefaultLedger) Balance(ctx context.Context, ownerID OwnerID, item ItemName) (Amount, error) {
	txs, err := l.Store.Load(ctx, ownerID, item)
	if err != nil {
		return Amount{}, err
	}
	return sum(txs), nil
}

func (l *DefaultLedger) Balances(ctx context.Context, ownerID OwnerID) ([]Holding, error) {
	txs, err := l.Store.LoadByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	byItem := make(map[ItemName][]Transaction)
	for _, tx := range txs {
		byItem[tx.Item] = append(byItem[tx.Item], tx)
	}

	holdings := make([]Holding, 0, len(byItem))
	for item, itemTxs := range byItem {
		holdings = append(holdings, Holding{OwnerID: ownerID, Item: item, Available: sum(itemTxs)})
	}
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].Item < holdings[j].Item })
	return holdings, nil
}

func sum(txs []Transaction) Amount {
	total := Pieces(0)
	for i, tx := range txs {
		if i == 0 {
			total = tx.Delta.Zero()
		}
		total = total.Add(tx.Delta)
	}
	return total
}
