/*
pool.go - StockPool: per-holder, per-item available quantity

PURPOSE:
  The operations every allocation tier performs against its own stock:
  check what is available, take boards out (Reserve), and receive boards
  from the tier above (Credit).

RULES:
  - Available is never negative; a holder with no movements has 0.
  - Reserve and Transfer are all-or-nothing. A shortfall returns
    InsufficientStockError and writes nothing.
  - Credit has no upper bound.
  - Quantities must be positive whole numbers.

CONCURRENCY:
  Pool itself does not lock. Reserve is a read-then-append, so callers run
  it inside a store transaction and hold the per-(owner, item) lock; see
  allocation.Service.

SEE ALSO:
  - ledger.go: Balance replay
  - allocation/service.go: Transfer inside one store transaction
*/
package stock

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Pool exposes StockPool operations over a Ledger.
type Pool struct {
	Ledger Ledger
	Now    func() time.Time
}

func NewPool(ledger Ledger) *Pool {
	return &Pool{Ledger: ledger, Now: time.Now}
}

// Available returns the quantity owner can still hand out. Zero if none.
func (p *Pool) Available(ctx context.Context, ownerID OwnerID, item ItemName) (Amount, error) {
	balance, err := p.Ledger.Balance(ctx, ownerID, item)
	if err != nil {
		return Amount{}, err
	}
	if balance.IsNegative() {
		return balance.Zero(), nil
	}
	return balance, nil
}

// Reserve takes qty out of owner's pool.
func (p *Pool) Reserve(ctx context.Context, ownerID OwnerID, item ItemName, qty Amount, ref Reference) error {
	if err := checkQuantity(item, qty); err != nil {
		return err
	}

	available, err := p.Available(ctx, ownerID, item)
	if err != nil {
		return err
	}
	if qty.GreaterThan(available) {
		return &InsufficientStockError{
			OwnerID:   ownerID,
			Item:      item,
			Available: available,
			Requested: qty,
			Shortfall: qty.Sub(available),
		}
	}

	return p.Ledger.Append(ctx, p.movement(ownerID, item, qty.Neg(), TxReserve, ref))
}

// Credit adds qty to owner's pool.
func (p *Pool) Credit(ctx context.Context, ownerID OwnerID, item ItemName, qty Amount, ref Reference) error {
	if err := checkQuantity(item, qty); err != nil {
		return err
	}
	return p.Ledger.Append(ctx, p.movement(ownerID, item, qty, TxCredit, ref))
}

// Recipient is one owner's part of a Transfer.
type Recipient struct {
	To  OwnerID
	Qty Amount
}

// Transfer moves boards from one pool to several recipients as a single
// batch: one reserve of the summed quantity, one credit per recipient. The
// sum is taken in decimal, so it cannot wrap. Returns the reserved total.
func (p *Pool) Transfer(ctx context.Context, from OwnerID, item ItemName, to []Recipient, ref Reference) (Amount, error) {
	if len(to) == 0 {
		return Amount{}, &QuantityError{Item: item, Quantity: Pieces(0)}
	}

	total := to[0].Qty.Zero()
	for _, t := range to {
		if err := checkQuantity(item, t.Qty); err != nil {
			return Amount{}, err
		}
		total = total.Add(t.Qty)
	}

	available, err := p.Available(ctx, from, item)
	if err != nil {
		return Amount{}, err
	}
	if total.GreaterThan(available) {
		return Amount{}, &InsufficientStockError{
			OwnerID:   from,
			Item:      item,
			Available: available,
			Requested: total,
			Shortfall: total.Sub(available),
		}
	}

	reserve := p.movement(from, item, total.Neg(), TxReserve, ref)
	reserve.Metadata = map[string]string{"recipients": strconv.Itoa(len(to))}
	txs := []Transaction{reserve}
	for _, t := range to {
		credit := p.movement(t.To, item, t.Qty, TxCredit, ref)
		credit.Metadata = map[string]string{"from": string(from)}
		txs = append(txs, credit)
	}
	if err := p.Ledger.AppendBatch(ctx, txs); err != nil {
		return Amount{}, err
	}
	return total, nil
}

// Open credits the Admin pool with new stock of item.
func (p *Pool) Open(ctx context.Context, item ItemName, qty Amount, ref Reference) error {
	if err := checkQuantity(item, qty); err != nil {
		return err
	}
	return p.Ledger.Append(ctx, p.movement(AdminPool, item, qty, TxOpening, ref))
}

// Holdings lists every item owner has ever received, sorted by item name.
func (p *Pool) Holdings(ctx context.Context, ownerID OwnerID) ([]Holding, error) {
	holdings, err := p.Ledger.Balances(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for i := range holdings {
		if holdings[i].Available.IsNegative() {
			holdings[i].Available = holdings[i].Available.Zero()
		}
	}
	return holdings, nil
}

func (p *Pool) movement(ownerID OwnerID, item ItemName, delta Amount, txType TransactionType, ref Reference) Transaction {
	tx := Transaction{
		ID:          TransactionID(uuid.NewString()),
		OwnerID:     ownerID,
		Item:        item,
		Delta:       delta,
		Type:        txType,
		ReferenceID: ref.ID,
		Reason:      ref.Reason,
		CreatedBy:   ref.Actor,
		CreatedAt:   p.Now().UTC(),
	}
	if ref.ID != "" {
		tx.IdempotencyKey = fmt.Sprintf("%s:%s:%s:%s", ref.ID, txType, ownerID, item)
	}
	return tx
}

func checkQuantity(item ItemName, qty Amount) error {
	if !qty.IsPositive() || !qty.IsWhole() {
		return &QuantityError{Item: item, Quantity: qty}
	}
	return nil
}
