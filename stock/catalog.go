/*
catalog.go - Items the Admin allocates from, and their opening stock

PURPOSE:
  Root allocations may only name catalog items. The catalog is persisted
  through ItemStore so the unknown-item check survives restarts, and opening
  stock is posted to the Admin pool as ordinary ledger movements.

HOW IT WORKS:
  1. Seed() registers DefaultCatalog and opens its stock once
  2. Open() registers a new item (or tops up an existing one)
  3. Lookup() answers "is this item allocatable?"

SEE ALSO:
  - pool.go: Open posts the opening movement
  - allocation/service.go: Rejects unknown items with a ValidationError
*/
package stock

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// DEFAULT CATALOG
// =============================================================================

// CatalogEntry is an item with the stock it opens with.
type CatalogEntry struct {
	Name    ItemName
	Unit    Unit
	Opening int64
}

// DefaultCatalog is the sample-board range every new installation starts with.
func DefaultCatalog() []CatalogEntry {
	return []CatalogEntry{
		{Name: "Blenze Pro PDB", Unit: UnitPieces, Opening: 500},
		{Name: "Impact PDB", Unit: UnitPieces, Opening: 600},
		{Name: "Horizon PDB", Unit: UnitPieces, Opening: 400},
		{Name: "Evo PDB", Unit: UnitPieces, Opening: 350},
		{Name: "Orna PDB", Unit: UnitPieces, Opening: 500},
	}
}

// =============================================================================
// CATALOG
// =============================================================================

type Catalog struct {
	Items ItemStore
	Pool  *Pool
	Now   func() time.Time
}

func NewCatalog(items ItemStore, pool *Pool) *Catalog {
	return &Catalog{Items: items, Pool: pool, Now: time.Now}
}

// Lookup returns the catalog item, or ErrUnknownItem.
func (c *Catalog) Lookup(ctx context.Context, name ItemName) (*Item, error) {
	item, err := c.Items.GetItem(ctx, ItemName(strings.TrimSpace(string(name))))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownItem, name)
	}
	return item, nil
}

// Open registers the item if needed and credits the Admin pool with qty.
// A known item keeps its unit; an empty unit means "whatever it is counted in".
func (c *Catalog) Open(ctx context.Context, name ItemName, unit Unit, qty int64, ref Reference) (*Item, error) {
	name = ItemName(strings.TrimSpace(string(name)))
	if name == "" {
		return nil, fmt.Errorf("%w: empty item name", ErrUnknownItem)
	}

	existing, err := c.Items.GetItem(ctx, name)
	if err != nil {
		return nil, err
	}
	switch {
	case existing != nil && unit == "":
		unit = existing.Unit
	case existing != nil && unit != existing.Unit:
		return nil, &UnitMismatchError{Item: name, Want: existing.Unit, Got: unit}
	case existing == nil:
		if unit == "" {
			unit = UnitPieces
		}
		if err := c.Items.SaveItem(ctx, Item{Name: name, Unit: unit, CreatedAt: c.Now().UTC()}); err != nil {
			return nil, err
		}
	}

	if err := c.Pool.Open(ctx, name, NewAmount(qty, unit), ref); err != nil {
		return nil, err
	}
	return c.Lookup(ctx, name)
}

// Seed opens entries that are not yet in the catalog. Existing items are
// left alone so restarts do not double the opening stock.
func (c *Catalog) Seed(ctx context.Context, entries []CatalogEntry, actor string) (int, error) {
	opened := 0
	for _, e := range entries {
		existing, err := c.Items.GetItem(ctx, e.Name)
		if err != nil {
			return opened, err
		}
		if existing != nil {
			continue
		}
		ref := Reference{ID: "seed-" + string(e.Name), Reason: "opening stock", Actor: actor}
		if _, err := c.Open(ctx, e.Name, e.Unit, e.Opening, ref); err != nil {
			return opened, fmt.Errorf("seed %q: %w", e.Name, err)
		}
		opened++
	}
	return opened, nil
}
