package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/allocation-ledger/allocation"
	"github.com/warp/allocation-ledger/directory"
	"github.com/warp/allocation-ledger/stock"
)

// =============================================================================
// ALLOCATION RECORDS
// =============================================================================

type shareRow struct {
	EmpCode string            `json:"empCode"`
	Name    string            `json:"name"`
	Qty     int64             `json:"qty"`
	Extra   map[string]string `json:"extra,omitempty"`
}

func (q *queries) SaveAllocation(ctx context.Context, a allocation.Allocation) error {
	shares := make([]shareRow, len(a.Employees))
	for i, s := range a.Employees {
		shares[i] = shareRow{EmpCode: s.EmpCode, Name: s.Name, Qty: s.Qty, Extra: s.Extra}
	}
	employeesJSON, err := json.Marshal(shares)
	if err != nil {
		return fmt.Errorf("failed to encode employees: %w", err)
	}

	query := `
		INSERT INTO allocations
		(id, parent_id, root_id, rm_id, bm_id, item, employees_json, purpose,
		 assigned_by, assigned_by_code, role, region, branch, date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = q.q.ExecContext(ctx, query,
		a.ID, a.ParentID, a.RootID, a.RMID, a.BMID, a.Item, string(employeesJSON), a.Purpose,
		a.AssignedBy, a.AssignedByCode, a.Role, a.Region, a.Branch, formatTime(a.Date),
	)
	if err != nil {
		return fmt.Errorf("failed to save allocation: %w", err)
	}
	return nil
}

const allocationColumns = `
	SELECT a.id, a.parent_id, a.root_id, a.rm_id, a.bm_id, a.item, a.employees_json, a.purpose,
	       a.assigned_by, a.assigned_by_code, a.role, a.region, a.branch, a.date,
	       COALESCE(l.to_vendor, 0), COALESCE(l.lr_no, '')
	FROM allocations a
	LEFT JOIN lineages l ON l.root_id = a.root_id`

func (q *queries) GetAllocation(ctx context.Context, id string) (*allocation.Allocation, error) {
	records, err := q.queryAllocations(ctx, allocationColumns+" WHERE a.id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (q *queries) ListAllocations(ctx context.Context) ([]allocation.Allocation, error) {
	return q.queryAllocations(ctx, allocationColumns+" ORDER BY a.seq DESC")
}

func (q *queries) ListAllocationsByRoot(ctx context.Context, rootID string) ([]allocation.Allocation, error) {
	return q.queryAllocations(ctx, allocationColumns+" WHERE a.root_id = ? ORDER BY a.seq ASC", rootID)
}

func (q *queries) queryAllocations(ctx context.Context, query string, args ...any) ([]allocation.Allocation, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	records := []allocation.Allocation{}
	for rows.Next() {
		var (
			a             allocation.Allocation
			item          string
			employeesJSON string
			role          string
			date          string
			toVendor      int
		)
		err := rows.Scan(
			&a.ID, &a.ParentID, &a.RootID, &a.RMID, &a.BMID, &item, &employeesJSON, &a.Purpose,
			&a.AssignedBy, &a.AssignedByCode, &role, &a.Region, &a.Branch, &date,
			&toVendor, &a.LRNo,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}

		var shares []shareRow
		if err := json.Unmarshal([]byte(employeesJSON), &shares); err != nil {
			return nil, fmt.Errorf("allocation %s: bad employees: %w", a.ID, err)
		}
		a.Employees = make([]allocation.Share, len(shares))
		for i, s := range shares {
			a.Employees[i] = allocation.Share{EmpCode: s.EmpCode, Name: s.Name, Qty: s.Qty, Extra: s.Extra}
		}
		a.Item = stock.ItemName(item)
		a.Role = directory.Role(role)
		a.Date = parseTime(date)
		a.ToVendor = toVendor == 1
		records = append(records, a)
	}
	return records, rows.Err()
}

// =============================================================================
// LINEAGES
// =============================================================================

func (q *queries) CreateLineage(ctx context.Context, l allocation.Lineage) error {
	_, err := q.q.ExecContext(ctx,
		"INSERT INTO lineages (root_id, created_at) VALUES (?, ?)",
		l.RootID, formatTime(l.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("lineage %s already exists", l.RootID)
		}
		return fmt.Errorf("failed to create lineage: %w", err)
	}
	return nil
}

func (q *queries) GetLineage(ctx context.Context, rootID string) (*allocation.Lineage, error) {
	var (
		l                                    allocation.Lineage
		toVendor                             int
		dispatchedAt, lrUpdatedAt, createdAt string
	)
	err := q.q.QueryRowContext(ctx, `
		SELECT root_id, to_vendor, dispatched_at, dispatched_by, lr_no, lr_updated_at, lr_updated_by, created_at
		FROM lineages WHERE root_id = ?
	`, rootID).Scan(&l.RootID, &toVendor, &dispatchedAt, &l.DispatchedBy, &l.LRNo, &lrUpdatedAt, &l.LRUpdatedBy, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lineage: %w", err)
	}
	l.ToVendor = toVendor == 1
	l.DispatchedAt = parseTime(dispatchedAt)
	l.LRUpdatedAt = parseTime(lrUpdatedAt)
	l.CreatedAt = parseTime(createdAt)
	return &l, nil
}

// MarkDispatched only flips rows still at to_vendor = 0.
func (q *queries) MarkDispatched(ctx context.Context, rootID, by string, at time.Time) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE lineages SET to_vendor = 1, dispatched_at = ?, dispatched_by = ?
		WHERE root_id = ? AND to_vendor = 0
	`, formatTime(at), by, rootID)
	if err != nil {
		return fmt.Errorf("failed to mark dispatched: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	existing, err := q.GetLineage(ctx, rootID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: %s", allocation.ErrAllocationNotFound, rootID)
	}
	return allocation.ErrAlreadyDispatched
}

func (q *queries) SetLR(ctx context.Context, rootID, lrNo, by string, at time.Time) (string, error) {
	var previous string
	err := q.q.QueryRowContext(ctx, "SELECT lr_no FROM lineages WHERE root_id = ?", rootID).Scan(&previous)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %s", allocation.ErrAllocationNotFound, rootID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read lr: %w", err)
	}

	_, err = q.q.ExecContext(ctx, `
		UPDATE lineages SET lr_no = ?, lr_updated_at = ?, lr_updated_by = ?
		WHERE root_id = ?
	`, lrNo, formatTime(at), by, rootID)
	if err != nil {
		return "", fmt.Errorf("failed to set lr: %w", err)
	}
	return previous, nil
}

// =============================================================================
// AUDIT
// =============================================================================

func (q *queries) AppendAudit(ctx context.Context, e allocation.AuditEntry) error {
	payloadJSON, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}
	_, err = q.q.ExecContext(ctx,
		"INSERT INTO audit_log (id, at, actor, action, root_id, payload_json) VALUES (?, ?, ?, ?, ?, ?)",
		e.ID, formatTime(e.At), e.Actor, e.Action, e.RootID, string(payloadJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (q *queries) ListAudit(ctx context.Context, rootID string) ([]allocation.AuditEntry, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, at, actor, action, root_id, payload_json
		FROM audit_log WHERE root_id = ? ORDER BY seq ASC
	`, rootID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit: %w", err)
	}
	defer rows.Close()

	entries := []allocation.AuditEntry{}
	for rows.Next() {
		var (
			e           allocation.AuditEntry
			at          string
			action      string
			payloadJSON sql.NullString
		)
		if err := rows.Scan(&e.ID, &at, &e.Actor, &action, &e.RootID, &payloadJSON); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.At = parseTime(at)
		e.Action = allocation.AuditAction(action)
		if payloadJSON.Valid && payloadJSON.String != "" {
			if err := json.Unmarshal([]byte(payloadJSON.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("audit %s: bad payload: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
