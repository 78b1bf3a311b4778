package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/allocation-ledger/allocation"
	"github.com/warp/allocation-ledger/stock"
)

// =============================================================================
// MOVEMENT STORE (stock.Store interface)
// =============================================================================

// Append adds a movement to the ledger.
func (q *queries) Append(ctx context.Context, tx stock.Transaction) error {
	metadataJSON, err := json.Marshal(tx.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	query := `
		INSERT INTO movements
		(id, owner_id, item, delta_value, delta_unit, tx_type,
		 reference_id, reason, idempotency_key, metadata_json, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = q.q.ExecContext(ctx, query,
		tx.ID,
		tx.OwnerID,
		tx.Item,
		tx.Delta.Value.String(),
		tx.Delta.Unit,
		tx.Type,
		nullString(tx.ReferenceID),
		nullString(tx.Reason),
		nullString(tx.IdempotencyKey),
		string(metadataJSON),
		nullString(tx.CreatedBy),
		formatTime(tx.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return stock.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("%w: %v", stock.ErrTransactionFailed, err)
	}
	return nil
}

// AppendBatch inside a transaction appends one by one; the enclosing
// transaction provides atomicity.
func (q *queries) AppendBatch(ctx context.Context, txs []stock.Transaction) error {
	for _, tx := range txs {
		if err := q.Append(ctx, tx); err != nil {
			return err
		}
	}
	return nil
}

// AppendBatch adds multiple movements atomically.
func (s *Store) AppendBatch(ctx context.Context, txs []stock.Transaction) error {
	return s.WithTx(ctx, func(tx allocation.Store) error {
		return tx.AppendBatch(ctx, txs)
	})
}

// Load returns all movements for an owner+item, oldest first.
func (q *queries) Load(ctx context.Context, ownerID stock.OwnerID, item stock.ItemName) ([]stock.Transaction, error) {
	return q.queryMovements(ctx, movementColumns+`
		FROM movements
		WHERE owner_id = ? AND item = ?
		ORDER BY seq ASC
	`, ownerID, item)
}

// LoadByOwner returns all movements of owner across items, oldest first.
func (q *queries) LoadByOwner(ctx context.Context, ownerID stock.OwnerID) ([]stock.Transaction, error) {
	return q.queryMovements(ctx, movementColumns+`
		FROM movements
		WHERE owner_id = ?
		ORDER BY seq ASC
	`, ownerID)
}

// Exists checks if an idempotency key exists.
func (q *queries) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	var count int
	err := q.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM movements WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)
	return count > 0, err
}

const movementColumns = `
	SELECT id, owner_id, item, delta_value, delta_unit, tx_type,
	       reference_id, reason, idempotency_key, metadata_json, created_by, created_at`

func (q *queries) queryMovements(ctx context.Context, query string, args ...any) ([]stock.Transaction, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	var movements []stock.Transaction
	for rows.Next() {
		tx, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, tx)
	}
	return movements, rows.Err()
}

func scanMovement(rows *sql.Rows) (stock.Transaction, error) {
	var (
		tx             stock.Transaction
		deltaValue     string
		deltaUnit      string
		referenceID    sql.NullString
		reason         sql.NullString
		idempotencyKey sql.NullString
		metadataJSON   sql.NullString
		createdBy      sql.NullString
		createdAt      string
	)

	err := rows.Scan(
		&tx.ID, &tx.OwnerID, &tx.Item, &deltaValue, &deltaUnit, &tx.Type,
		&referenceID, &reason, &idempotencyKey, &metadataJSON, &createdBy, &createdAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan movement: %w", err)
	}

	value, err := decimal.NewFromString(deltaValue)
	if err != nil {
		return tx, fmt.Errorf("movement %s: bad delta %q: %w", tx.ID, deltaValue, err)
	}
	tx.Delta = stock.Amount{Value: value, Unit: stock.Unit(deltaUnit)}
	tx.ReferenceID = referenceID.String
	tx.Reason = reason.String
	tx.IdempotencyKey = idempotencyKey.String
	tx.CreatedBy = createdBy.String
	tx.CreatedAt = parseTime(createdAt)

	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &tx.Metadata); err != nil {
			return tx, fmt.Errorf("movement %s: bad metadata: %w", tx.ID, err)
		}
	}
	return tx, nil
}

// =============================================================================
// CATALOG (stock.ItemStore interface)
// =============================================================================

func (q *queries) SaveItem(ctx context.Context, item stock.Item) error {
	_, err := q.q.ExecContext(ctx,
		"INSERT OR IGNORE INTO items (name, unit, created_at) VALUES (?, ?, ?)",
		item.Name, item.Unit, formatTime(item.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save item: %w", err)
	}
	return nil
}

func (q *queries) GetItem(ctx context.Context, name stock.ItemName) (*stock.Item, error) {
	var (
		item      stock.Item
		createdAt string
	)
	err := q.q.QueryRowContext(ctx,
		"SELECT name, unit, created_at FROM items WHERE name = ?", name,
	).Scan(&item.Name, &item.Unit, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	item.CreatedAt = parseTime(createdAt)
	return &item, nil
}

func (q *queries) ListItems(ctx context.Context) ([]stock.Item, error) {
	rows, err := q.q.QueryContext(ctx, "SELECT name, unit, created_at FROM items ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	items := []stock.Item{}
	for rows.Next() {
		var (
			item      stock.Item
			createdAt string
		)
		if err := rows.Scan(&item.Name, &item.Unit, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		item.CreatedAt = parseTime(createdAt)
		items = append(items, item)
	}
	return items, rows.Err()
}
