/*
Package directory is the read model of the user directory.

PURPOSE:
  Users and their reports-to graph are owned by the identity collaborator.
  The allocation core only reads them: empCode and role to scope an action,
  region/branch for provenance, and reportTo to answer "who is on my team".

ROLES:
  Role is a closed set. ParseRole accepts the spellings clients send
  ("RegionalManager", "regional_manager", "Regional Manager") and rejects
  anything else.

SEE ALSO:
  - team.go: BuildTeam, the transitive reports-to closure
  - store/sqlite/users.go: Persistence
*/
package directory

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// ROLE
// =============================================================================

type Role string

const (
	RoleEmployee        Role = "Employee"
	RoleManager         Role = "Manager"
	RoleBranchManager   Role = "BranchManager"
	RoleRegionalManager Role = "RegionalManager"
	RoleAdmin           Role = "Admin"
	RoleVendor          Role = "Vendor"
)

// Roles lists every role, top tier first.
var Roles = []Role{RoleAdmin, RoleRegionalManager, RoleBranchManager, RoleManager, RoleEmployee, RoleVendor}

// ParseRole normalizes case, spaces and underscores.
func ParseRole(s string) (Role, error) {
	norm := strings.ToLower(strings.NewReplacer("_", "", " ", "", "-", "").Replace(strings.TrimSpace(s)))
	for _, r := range Roles {
		if strings.ToLower(string(r)) == norm {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil && r != ""
}

// =============================================================================
// USER
// =============================================================================

type User struct {
	EmpCode   string
	Name      string
	Role      Role
	Region    string
	Branch    string
	Area      string
	ReportTo  []string // empCodes of managers; a user may report to several
	CreatedAt time.Time
}

// ReportsTo reports whether u lists managerEmpCode among its managers.
func (u User) ReportsTo(managerEmpCode string) bool {
	for _, m := range u.ReportTo {
		if m == managerEmpCode {
			return true
		}
	}
	return false
}

// Store persists the directory read model.
type Store interface {
	SaveUser(ctx context.Context, u User) error

	// GetUser returns nil, nil when the user does not exist.
	GetUser(ctx context.Context, empCode string) (*User, error)

	ListUsers(ctx context.Context) ([]User, error)
}
