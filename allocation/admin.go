package allocation

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/warp/allocation-ledger/directory"
	"github.com/warp/allocation-ledger/stock"
)

// =============================================================================
// CATALOG
// =============================================================================

// OpenStock credits the Admin pool with qty of item, registering the item
// in the catalog if it is new.
func (s *Service) OpenStock(ctx context.Context, actor Actor, name stock.ItemName, unit stock.Unit, qty int64) (*stock.Item, error) {
	if err := s.Policy.Authorize(actor, ActionOpenStock); err != nil {
		return nil, err
	}
	name = stock.ItemName(strings.TrimSpace(string(name)))
	if name == "" {
		return nil, invalid("item", "required")
	}
	if qty <= 0 {
		return nil, invalid("qty", "must be positive, got %d", qty)
	}

	unlock, err := s.Locker.Lock(ctx, poolKey(stock.AdminPool, name))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var item *stock.Item
	err = s.Store.WithTx(ctx, func(tx Store) error {
		opened, openErr := s.catalog(tx).Open(ctx, name, unit, qty, stock.Reference{
			ID:     "open-" + uuid.NewString(),
			Reason: "opening stock",
			Actor:  actor.EmpCode,
		})
		item = opened
		return openErr
	})
	if err != nil {
		return nil, err
	}

	s.Logger.WithFields(logrus.Fields{"module": "catalog", "item": name, "qty": qty, "by": actor.EmpCode}).Info("stock opened")
	return item, nil
}

// SeedCatalog opens entries missing from the catalog. Safe to run at every start.
func (s *Service) SeedCatalog(ctx context.Context, entries []stock.CatalogEntry) (int, error) {
	var opened int
	err := s.Store.WithTx(ctx, func(tx Store) error {
		var err error
		opened, err = s.catalog(tx).Seed(ctx, entries, "system")
		return err
	})
	return opened, err
}

func (s *Service) Items(ctx context.Context) ([]stock.Item, error) {
	return s.Store.ListItems(ctx)
}

func (s *Service) catalog(tx Store) *stock.Catalog {
	pool := stock.NewPool(stock.NewLedger(tx))
	pool.Now = s.Now
	c := stock.NewCatalog(tx, pool)
	c.Now = s.Now
	return c
}

// =============================================================================
// DIRECTORY
// =============================================================================

// SaveUser upserts a user into the directory read model.
func (s *Service) SaveUser(ctx context.Context, actor Actor, u directory.User) error {
	if err := s.Policy.Authorize(actor, ActionManageUsers); err != nil {
		return err
	}
	u.EmpCode = strings.TrimSpace(u.EmpCode)
	if u.EmpCode == "" {
		return invalid("empCode", "required")
	}
	if !stock.ValidEmpCode(u.EmpCode) {
		return invalid("empCode", "%q may not contain ':'", u.EmpCode)
	}
	if !u.Role.Valid() {
		return invalid("role", "unknown role %q", u.Role)
	}
	for _, m := range u.ReportTo {
		if m == u.EmpCode {
			return invalid("reportTo", "%s cannot report to themselves", u.EmpCode)
		}
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.Now().UTC()
	}
	return s.Users.SaveUser(ctx, u)
}

// AllUsers lists the whole directory.
func (s *Service) AllUsers(ctx context.Context, actor Actor) ([]directory.User, error) {
	if err := s.Policy.Authorize(actor, ActionManageUsers); err != nil {
		return nil, err
	}
	return s.Users.ListUsers(ctx)
}

// User returns one directory entry, or ErrUserNotFound.
func (s *Service) User(ctx context.Context, empCode string) (*directory.User, error) {
	u, err := s.Users.GetUser(ctx, empCode)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// Audit returns the audit trail of rootID, oldest first.
func (s *Service) Audit(ctx context.Context, actor Actor, rootID string) ([]AuditEntry, error) {
	if err := s.Policy.Authorize(actor, ActionViewAdminHistory); err != nil {
		return nil, err
	}
	return s.Store.ListAudit(ctx, rootID)
}
