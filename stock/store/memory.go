// Package store provides in-memory stock.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/allocation-ledger/stock"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	transactions map[key][]stock.Transaction
	idempotency  map[string]bool
	items        map[stock.ItemName]stock.Item
}

type key struct {
	OwnerID stock.OwnerID
	Item    stock.ItemName
}

func NewMemory() *Memory {
	return &Memory{
		transactions: make(map[key][]stock.Transaction),
		idempotency:  make(map[string]bool),
		items:        make(map[stock.ItemName]stock.Item),
	}
}

// Append adds a single movement. Append-only.
func (m *Memory) Append(_ context.Context, tx stock.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tx.IdempotencyKey != "" && m.idempotency[tx.IdempotencyKey] {
		return stock.ErrDuplicateIdempotencyKey
	}
	m.appendLocked(tx)
	return nil
}

// AppendBatch adds multiple movements atomically.
func (m *Memory) AppendBatch(_ context.Context, txs []stock.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check all idempotency keys first (atomic check)
	batch := make(map[string]bool, len(txs))
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		if m.idempotency[tx.IdempotencyKey] || batch[tx.IdempotencyKey] {
			return stock.ErrDuplicateIdempotencyKey
		}
		batch[tx.IdempotencyKey] = true
	}

	for _, tx := range txs {
		m.appendLocked(tx)
	}
	return nil
}

func (m *Memory) appendLocked(tx stock.Transaction) {
	k := key{OwnerID: tx.OwnerID, Item: tx.Item}
	txs := m.transactions[k]

	// Keep chronological order even when CreatedAt arrives out of order.
	i := sort.Search(len(txs), func(i int) bool {
		return txs[i].CreatedAt.After(tx.CreatedAt)
	})
	txs = append(txs, stock.Transaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	m.transactions[k] = txs

	if tx.IdempotencyKey != "" {
		m.idempotency[tx.IdempotencyKey] = true
	}
}

func (m *Memory) Load(_ context.Context, ownerID stock.OwnerID, item stock.ItemName) ([]stock.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k := key{OwnerID: ownerID, Item: item}
	result := make([]stock.Transaction, len(m.transactions[k]))
	copy(result, m.transactions[k])
	return result, nil
}

func (m *Memory) LoadByOwner(_ context.Context, ownerID stock.OwnerID) ([]stock.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []stock.Transaction
	for k, txs := range m.transactions {
		if k.OwnerID == ownerID {
			result = append(result, txs...)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

// =============================================================================
// ITEM STORE
// =============================================================================

func (m *Memory) SaveItem(_ context.Context, item stock.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[item.Name]; !ok {
		m.items[item.Name] = item
	}
	return nil
}

func (m *Memory) GetItem(_ context.Context, name stock.ItemName) (*stock.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[name]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (m *Memory) ListItems(_ context.Context) ([]stock.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]stock.Item, 0, len(m.items))
	for _, item := range m.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}
