/*
view.go - Read-only projections of stock and allocation history

PURPOSE:
  What each role's stock page shows: the caller's holdings and the
  allocation records relevant to them. Nothing here writes.

WHO SEES WHAT:
  Admin:   Admin pool holdings, every record
  RM/BM/M: Own holdings, records they created or received
  Vendor:  Root records of dispatched lineages
  Anyone:  Own holdings (employee scope), search by lineage id

SEE ALSO:
  - filter.go: History filters
  - directory/team.go: Team membership for EmployeeView
*/
package allocation

import (
	"context"
	"strings"

	"github.com/warp/allocation-ledger/directory"
	"github.com/warp/allocation-ledger/stock"
)

// View is the payload of a stock page.
type View struct {
	Owner       stock.OwnerID
	Stock       []stock.Holding
	Assignments []Allocation
}

func (s *Service) pool() *stock.Pool {
	p := stock.NewPool(stock.NewLedger(s.Store))
	p.Now = s.Now
	return p
}

// StockFor lists what owner holds per item.
func (s *Service) StockFor(ctx context.Context, owner stock.OwnerID) ([]stock.Holding, error) {
	return s.pool().Holdings(ctx, owner)
}

// HistoryFor returns records created by or crediting empCode, newest first.
func (s *Service) HistoryFor(ctx context.Context, empCode string, f Filter) ([]Allocation, error) {
	all, err := s.Store.ListAllocations(ctx)
	if err != nil {
		return nil, err
	}
	mine := make([]Allocation, 0)
	for _, a := range all {
		if a.AssignedByCode == empCode || a.Credits(empCode) {
			mine = append(mine, a)
		}
	}
	return f.Apply(mine), nil
}

// AdminHistory returns every record, newest first.
func (s *Service) AdminHistory(ctx context.Context, actor Actor, f Filter) ([]Allocation, error) {
	if err := s.Policy.Authorize(actor, ActionViewAdminHistory); err != nil {
		return nil, err
	}
	all, err := s.Store.ListAllocations(ctx)
	if err != nil {
		return nil, err
	}
	return f.Apply(all), nil
}

// VendorList returns the root record of every dispatched lineage.
func (s *Service) VendorList(ctx context.Context, actor Actor, f Filter) ([]Allocation, error) {
	if err := s.Policy.Authorize(actor, ActionViewVendorList); err != nil {
		return nil, err
	}
	all, err := s.Store.ListAllocations(ctx)
	if err != nil {
		return nil, err
	}
	dispatched := make([]Allocation, 0)
	for _, a := range all {
		if a.ToVendor && a.IsRoot() {
			dispatched = append(dispatched, a)
		}
	}
	return f.Apply(dispatched), nil
}

// FindByID returns the records whose rootId, rmId or bmId equals id.
// "NA" never matches.
func (s *Service) FindByID(ctx context.Context, actor Actor, id string) ([]Allocation, error) {
	if err := s.Policy.Authorize(actor, ActionSearch); err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if id == "" || id == NotAssigned {
		return []Allocation{}, nil
	}

	all, err := s.Store.ListAllocations(ctx)
	if err != nil {
		return nil, err
	}
	found := make([]Allocation, 0)
	for _, a := range all {
		if a.RootID == id || a.RMID == id || a.BMID == id {
			found = append(found, a)
		}
	}
	return found, nil
}

// ScopeView builds the stock page of scope. The scope must belong to the
// actor's role; the employee scope is open to everyone and shows their own pool.
func (s *Service) ScopeView(ctx context.Context, actor Actor, scope Scope, f Filter) (*View, error) {
	if err := s.Policy.Authorize(actor, ActionViewOwnStock); err != nil {
		return nil, err
	}
	if want, ok := scopeRoles[scope]; ok && actor.Role != want {
		return nil, &ForbiddenError{Role: actor.Role, Action: Action("view_" + string(scope) + "_stock")}
	}

	if scope == ScopeAdmin {
		holdings, err := s.StockFor(ctx, stock.AdminPool)
		if err != nil {
			return nil, err
		}
		history, err := s.AdminHistory(ctx, actor, f)
		if err != nil {
			return nil, err
		}
		return &View{Owner: stock.AdminPool, Stock: holdings, Assignments: history}, nil
	}
	return s.ownView(ctx, actor.EmpCode, f)
}

// EmployeeView shows empCode's stock page to the employee, an Admin, or a
// manager whose team includes them.
func (s *Service) EmployeeView(ctx context.Context, actor Actor, empCode string, f Filter) (*View, error) {
	empCode = strings.TrimSpace(empCode)
	if empCode != actor.EmpCode && actor.Role != directory.RoleAdmin {
		if err := s.Policy.Authorize(actor, ActionViewTeam); err != nil {
			return nil, err
		}
		users, err := s.Users.ListUsers(ctx)
		if err != nil {
			return nil, err
		}
		if !directory.InTeam(users, actor.EmpCode, empCode) {
			return nil, &ForbiddenError{Role: actor.Role, Action: ActionViewTeam}
		}
	}
	return s.ownView(ctx, empCode, f)
}

// Team lists the users reporting to actor, directly or transitively.
func (s *Service) Team(ctx context.Context, actor Actor) ([]directory.User, error) {
	if err := s.Policy.Authorize(actor, ActionViewTeam); err != nil {
		return nil, err
	}
	return directory.TeamOf(ctx, s.Users, actor.EmpCode)
}

func (s *Service) ownView(ctx context.Context, empCode string, f Filter) (*View, error) {
	owner := stock.OwnerID(empCode)
	holdings, err := s.StockFor(ctx, owner)
	if err != nil {
		return nil, err
	}
	history, err := s.HistoryFor(ctx, empCode, f)
	if err != nil {
		return nil, err
	}
	return &View{Owner: owner, Stock: holdings, Assignments: history}, nil
}
