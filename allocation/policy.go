package allocation

import (
	"github.com/warp/allocation-ledger/directory"
)

// =============================================================================
// ACTIONS
// =============================================================================

type Action string

const (
	ActionAllocateRoot     Action = "allocate_root"
	ActionAllocateChild    Action = "allocate_child"
	ActionOpenStock        Action = "open_stock"
	ActionDispatch         Action = "dispatch"
	ActionRecordLR         Action = "record_lr"
	ActionViewAdminHistory Action = "view_admin_history"
	ActionExportHistory    Action = "export_history"
	ActionViewVendorList   Action = "view_vendor_list"
	ActionViewTeam         Action = "view_team"
	ActionViewOwnStock     Action = "view_own_stock"
	ActionSearch           Action = "search"
	ActionManageUsers      Action = "manage_users"
)

// =============================================================================
// POLICY - (Role, Action) -> allowed
// =============================================================================

// Policy maps each action to the roles allowed to perform it. An action
// missing from the table is denied to everyone.
type Policy map[Action][]directory.Role

// DefaultPolicy is the authorization table of the allocation chain.
func DefaultPolicy() Policy {
	admin := directory.RoleAdmin
	return Policy{
		ActionAllocateRoot:     {admin},
		ActionOpenStock:        {admin},
		ActionViewAdminHistory: {admin},
		ActionExportHistory:    {admin},
		ActionDispatch:         {admin},
		ActionManageUsers:      {admin},
		ActionAllocateChild:    {directory.RoleRegionalManager, directory.RoleBranchManager},
		ActionRecordLR:         {admin, directory.RoleBranchManager, directory.RoleVendor},
		ActionViewVendorList:   {directory.RoleVendor, admin},
		ActionViewTeam:         {directory.RoleManager, directory.RoleBranchManager, directory.RoleRegionalManager, admin},
		ActionViewOwnStock:     directory.Roles,
		ActionSearch:           directory.Roles,
	}
}

func (p Policy) Allows(role directory.Role, action Action) bool {
	for _, r := range p[action] {
		if r == role {
			return true
		}
	}
	return false
}

// Authorize returns a ForbiddenError unless actor's role may perform action.
func (p Policy) Authorize(actor Actor, action Action) error {
	if !p.Allows(actor.Role, action) {
		return &ForbiddenError{Role: actor.Role, Action: action}
	}
	return nil
}

// =============================================================================
// SCOPES - Per-role stock pages
// =============================================================================

type Scope string

const (
	ScopeAdmin    Scope = "admin"
	ScopeRegional Scope = "regional"
	ScopeBranch   Scope = "branch"
	ScopeManager  Scope = "manager"
	ScopeEmployee Scope = "employee"
)

// scopeRoles is the role a scope page belongs to. ScopeEmployee is open to
// every role and always shows the caller's own pool.
var scopeRoles = map[Scope]directory.Role{
	ScopeAdmin:    directory.RoleAdmin,
	ScopeRegional: directory.RoleRegionalManager,
	ScopeBranch:   directory.RoleBranchManager,
	ScopeManager:  directory.RoleManager,
}

func ParseScope(s string) (Scope, bool) {
	scope := Scope(s)
	if scope == ScopeEmployee {
		return scope, true
	}
	_, ok := scopeRoles[scope]
	return scope, ok
}
