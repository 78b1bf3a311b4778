package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/warp/allocation-ledger/directory"
)

// =============================================================================
// USER DIRECTORY (directory.Store interface)
// =============================================================================

// SaveUser inserts or replaces the user with the same empCode.
func (q *queries) SaveUser(ctx context.Context, u directory.User) error {
	reportTo := u.ReportTo
	if reportTo == nil {
		reportTo = []string{}
	}
	reportToJSON, err := json.Marshal(reportTo)
	if err != nil {
		return fmt.Errorf("failed to encode reportTo: %w", err)
	}

	query := `
		INSERT INTO users (emp_code, name, role, region, branch, area, report_to_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(emp_code) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			region = excluded.region,
			branch = excluded.branch,
			area = excluded.area,
			report_to_json = excluded.report_to_json
	`
	_, err = q.q.ExecContext(ctx, query,
		u.EmpCode, u.Name, u.Role, u.Region, u.Branch, u.Area, string(reportToJSON), formatTime(u.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (q *queries) GetUser(ctx context.Context, empCode string) (*directory.User, error) {
	users, err := q.queryUsers(ctx, userColumns+" WHERE emp_code = ?", empCode)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

// ListUsers returns the directory ordered by empCode.
func (q *queries) ListUsers(ctx context.Context) ([]directory.User, error) {
	return q.queryUsers(ctx, userColumns+" ORDER BY emp_code")
}

const userColumns = `
	SELECT emp_code, name, role, region, branch, area, report_to_json, created_at
	FROM users`

func (q *queries) queryUsers(ctx context.Context, query string, args ...any) ([]directory.User, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := []directory.User{}
	for rows.Next() {
		var (
			u            directory.User
			role         string
			reportToJSON sql.NullString
			createdAt    string
		)
		if err := rows.Scan(&u.EmpCode, &u.Name, &role, &u.Region, &u.Branch, &u.Area, &reportToJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.Role = directory.Role(role)
		u.CreatedAt = parseTime(createdAt)
		if reportToJSON.Valid && reportToJSON.String != "" {
			if err := json.Unmarshal([]byte(reportToJSON.String), &u.ReportTo); err != nil {
				return nil, fmt.Errorf("user %s: bad reportTo: %w", u.EmpCode, err)
			}
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
