/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Populates the database with a realistic org chart and allocation chain
  so the web client has something to show.

AVAILABLE SCENARIOS:
  catalog-only:    Users and opening stock, no allocations
  cascade:         Admin -> RM -> BM -> employees for one lineage
  dispatched:      Cascade, then sent to the vendor with an LR number

HOW SCENARIOS WORK:
  1. Reset database (clear all data)
  2. Save the demo directory
  3. Seed the default catalog
  4. Drive allocation.Service as the demo actors

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "cascade"}

NOTE:
  Scenarios reset the database. Only use in development/demo environments.
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/warp/allocation-ledger/allocation"
	"github.com/warp/allocation-ledger/directory"
	"github.com/warp/allocation-ledger/stock"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "catalog-only",
		Name:        "Catalog Only",
		Description: "Demo org chart and opening stock, no allocations yet",
	},
	{
		ID:          "cascade",
		Name:        "Full Cascade",
		Description: "100 Blenze boards from Admin to a Regional Manager, a Branch Manager and two employees",
	},
	{
		ID:          "dispatched",
		Name:        "Dispatched Lineage",
		Description: "The cascade, sent to the vendor with an LR number recorded",
	},
}

var (
	demoAdmin = allocation.Actor{EmpCode: "ADM1", Name: "Asha Admin", Role: directory.RoleAdmin}
	demoRM    = allocation.Actor{EmpCode: "RM1", Name: "Ravi Regional", Role: directory.RoleRegionalManager, Region: "North"}
	demoBM    = allocation.Actor{EmpCode: "BM1", Name: "Bina Branch", Role: directory.RoleBranchManager, Region: "North", Branch: "Delhi"}
)

func demoUsers() []directory.User {
	return []directory.User{
		{EmpCode: "ADM1", Name: "Asha Admin", Role: directory.RoleAdmin},
		{EmpCode: "RM1", Name: "Ravi Regional", Role: directory.RoleRegionalManager, Region: "North", ReportTo: []string{"ADM1"}},
		{EmpCode: "BM1", Name: "Bina Branch", Role: directory.RoleBranchManager, Region: "North", Branch: "Delhi", ReportTo: []string{"RM1"}},
		{EmpCode: "BM2", Name: "Bharat Branch", Role: directory.RoleBranchManager, Region: "North", Branch: "Jaipur", ReportTo: []string{"RM1"}},
		{EmpCode: "M1", Name: "Mira Manager", Role: directory.RoleManager, Region: "North", Branch: "Delhi", ReportTo: []string{"BM1"}},
		{EmpCode: "E1", Name: "Esha Employee", Role: directory.RoleEmployee, Region: "North", Branch: "Delhi", Area: "Karol Bagh", ReportTo: []string{"M1"}},
		{EmpCode: "E2", Name: "Eklavya Employee", Role: directory.RoleEmployee, Region: "North", Branch: "Delhi", Area: "Saket", ReportTo: []string{"M1", "BM1"}},
		{EmpCode: "V1", Name: "Vikram Vendor", Role: directory.RoleVendor},
	}
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario resets the database and loads a scenario (Admin).
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Policy.Authorize(actorFrom(r), allocation.ActionManageUsers); err != nil {
		h.fail(w, r, err)
		return
	}
	var req LoadScenarioRequest
	if !h.bind(w, r, &req) {
		return
	}

	if err := h.LoadScenarioByID(r.Context(), req.ScenarioID); err != nil {
		if errUnknownScenario(err) {
			writeError(w, http.StatusBadRequest, "Unknown scenario", err)
			return
		}
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

type unknownScenarioError string

func (e unknownScenarioError) Error() string { return fmt.Sprintf("unknown scenario %q", string(e)) }

func errUnknownScenario(err error) bool {
	_, ok := err.(unknownScenarioError)
	return ok
}

// LoadScenarioByID resets the database and loads id. Also used by cmd/server
// when SEED_DEMO is set.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) error {
	var loader func(context.Context) error
	switch id {
	case "catalog-only":
		loader = h.loadBase
	case "cascade":
		loader = h.loadCascadeScenario
	case "dispatched":
		loader = h.loadDispatchedScenario
	default:
		return unknownScenarioError(id)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := loader(ctx); err != nil {
		return fmt.Errorf("scenario %s: %w", id, err)
	}
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadBase(ctx context.Context) error {
	for _, u := range demoUsers() {
		if err := h.Service.SaveUser(ctx, demoAdmin, u); err != nil {
			return err
		}
	}
	_, err := h.Service.SeedCatalog(ctx, stock.DefaultCatalog())
	return err
}

func (h *Handler) loadCascadeScenario(ctx context.Context) error {
	_, err := h.cascade(ctx)
	return err
}

func (h *Handler) cascade(ctx context.Context) (*allocation.Allocation, error) {
	if err := h.loadBase(ctx); err != nil {
		return nil, err
	}

	root, err := h.Service.CreateRootAllocation(ctx, demoAdmin, allocation.AllocationRequest{
		Item:    "Blenze Pro PDB",
		Purpose: "Project Sunrise showroom launch",
		Shares:  []allocation.Share{{EmpCode: "RM1", Name: "Ravi Regional", Qty: 100}},
	})
	if err != nil {
		return nil, err
	}
	_, err = h.Service.CreateChildAllocation(ctx, demoRM, allocation.AllocationRequest{
		Item:         "Blenze Pro PDB",
		ParentRootID: root.RootID,
		Shares:       []allocation.Share{{EmpCode: "BM1", Name: "Bina Branch", Qty: 60}},
	})
	if err != nil {
		return nil, err
	}
	_, err = h.Service.CreateChildAllocation(ctx, demoBM, allocation.AllocationRequest{
		Item:         "Blenze Pro PDB",
		ParentRootID: root.RootID,
		Shares: []allocation.Share{
			{EmpCode: "E1", Name: "Esha Employee", Qty: 25, Extra: map[string]string{"Dealer": "Kapoor Tiles"}},
			{EmpCode: "E2", Name: "Eklavya Employee", Qty: 15},
		},
	})
	if err != nil {
		return nil, err
	}
	return root, nil
}

func (h *Handler) loadDispatchedScenario(ctx context.Context) error {
	root, err := h.cascade(ctx)
	if err != nil {
		return err
	}
	if _, err := h.Service.Dispatch(ctx, demoAdmin, root.RootID, ""); err != nil {
		return err
	}
	_, err = h.Service.RecordLR(ctx, demoAdmin, root.RootID, "LR-2025-0001")
	return err
}
