/*
handlers.go - HTTP API handlers for the allocation ledger

PURPOSE:
  Exposes allocation.Service via REST. Handles HTTP request/response and
  JSON serialization, and delegates every rule to the domain.

ENDPOINTS (all under /api, all behind bearer auth except /health):
  Stock pages:
    GET    /assignments/{scope}/stock         admin|regional|branch|manager|employee
    GET    /assignments/employee/{empCode}    Team member's page
    GET    /assignments/catalog               Catalog items
    POST   /assignments/admin/stock           Open stock (Admin)

  Allocation chain:
    POST   /assignments/admin                 Root allocation (Admin)
    POST   /assignments/allocate/rm           Regional Manager allocation
    POST   /assignments/allocate/bm           Branch Manager allocation

  Dispatch:
    POST   /assignments/dispatch/{rootId}     Send lineage to vendor
    PUT    /assignments/lr/{rootId}           Record LR number
    PUT    /assignments/vendor/lr/{rootId}    Record LR number (vendor page)
    GET    /assignments/vendor/list           Dispatched lineages

  History:
    GET    /assignments/history/admin         Every record, filtered
    GET    /assignments/history/admin/export  Same, as xlsx
    GET    /assignments/search/{id}           By rootId / rmId / bmId
    GET    /assignments/audit/{rootId}        Audit trail of a lineage

  Users:
    GET    /users/all, /users/team, /users/{empCode}
    POST   /users

FILTERS:
  History endpoints read q, rootId, rmId, bmId, empCode, empName, item,
  purpose and role from the query string.

ERROR HANDLING:
  See errors.go for the status mapping.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo data loader
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/warp/allocation-ledger/allocation"
	"github.com/warp/allocation-ledger/directory"
	"github.com/warp/allocation-ledger/stock"
	"github.com/warp/allocation-ledger/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *allocation.Service
	Store   *sqlite.Store
	Logger  *logrus.Logger

	validate *validator.Validate

	mu sync.Mutex // serializes scenario loads
}

func NewHandler(svc *allocation.Service, store *sqlite.Store, logger *logrus.Logger) *Handler {
	return &Handler{
		Service:  svc,
		Store:    store,
		Logger:   logger,
		validate: validator.New(),
	}
}

// bind decodes the JSON body into dst and validates it. On failure the
// response has been written and bind returns false.
func (h *Handler) bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Details: validationDetails(err)})
		return false
	}
	return true
}

func filterFrom(r *http.Request) allocation.Filter {
	q := r.URL.Query()
	return allocation.Filter{
		Query:   q.Get("q"),
		RootID:  q.Get("rootId"),
		RMID:    q.Get("rmId"),
		BMID:    q.Get("bmId"),
		EmpCode: q.Get("empCode"),
		EmpName: q.Get("empName"),
		Item:    q.Get("item"),
		Purpose: q.Get("purpose"),
		Role:    q.Get("role"),
	}
}

// =============================================================================
// STOCK PAGES
// =============================================================================

// GetScopeStock returns the caller's stock page.
// GET /api/assignments/{scope}/stock
func (h *Handler) GetScopeStock(w http.ResponseWriter, r *http.Request) {
	scope, ok := allocation.ParseScope(chi.URLParam(r, "scope"))
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown scope", nil)
		return
	}

	h.writeScopeStock(w, r, scope)
}

// ScopeStock serves a fixed scope on a path that a parameterized route
// would otherwise capture.
// GET /api/assignments/employee/stock, /api/assignments/admin/stock
func (h *Handler) ScopeStock(scope allocation.Scope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.writeScopeStock(w, r, scope)
	}
}

func (h *Handler) writeScopeStock(w http.ResponseWriter, r *http.Request, scope allocation.Scope) {
	view, err := h.Service.ScopeView(r.Context(), actorFrom(r), scope, filterFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStockPageDTO(view))
}

// GetEmployeeStock returns another user's stock page.
// GET /api/assignments/employee/{empCode}
func (h *Handler) GetEmployeeStock(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.EmployeeView(r.Context(), actorFrom(r), chi.URLParam(r, "empCode"), filterFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStockPageDTO(view))
}

// ListCatalog returns the allocatable items.
// GET /api/assignments/catalog
func (h *Handler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.Items(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]ItemDTO, len(items))
	for i, it := range items {
		dtos[i] = ItemDTO{Name: string(it.Name), Unit: string(it.Unit), CreatedAt: it.CreatedAt.Format(time.RFC3339)}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// OpenStock adds opening stock to the Admin pool.
// POST /api/assignments/admin/stock
func (h *Handler) OpenStock(w http.ResponseWriter, r *http.Request) {
	var req OpenStockRequest
	if !h.bind(w, r, &req) {
		return
	}
	item, err := h.Service.OpenStock(r.Context(), actorFrom(r), stock.ItemName(req.Item), stock.Unit(req.Unit), req.Qty)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ItemDTO{Name: string(item.Name), Unit: string(item.Unit), CreatedAt: item.CreatedAt.Format(time.RFC3339)})
}

// =============================================================================
// ALLOCATION CHAIN
// =============================================================================

// CreateRootAllocation allocates from the Admin pool and opens a lineage.
// POST /api/assignments/admin
func (h *Handler) CreateRootAllocation(w http.ResponseWriter, r *http.Request) {
	var req AllocationRequest
	if !h.bind(w, r, &req) {
		return
	}
	domainReq := req.toDomain()
	domainReq.ParentRootID, domainReq.ParentID = "", ""

	record, err := h.Service.CreateRootAllocation(r.Context(), actorFrom(r), domainReq)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAllocationDTO(*record))
}

// AllocateChild returns the handler of a manager tier's allocate endpoint.
// The caller's role must be that tier.
// POST /api/assignments/allocate/rm, /api/assignments/allocate/bm
func (h *Handler) AllocateChild(role directory.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := actorFrom(r)
		if actor.Role != role {
			h.fail(w, r, &allocation.ForbiddenError{Role: actor.Role, Action: allocation.ActionAllocateChild})
			return
		}

		var req AllocationRequest
		if !h.bind(w, r, &req) {
			return
		}
		record, err := h.Service.CreateChildAllocation(r.Context(), actor, req.toDomain())
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAllocationDTO(*record))
	}
}

// =============================================================================
// DISPATCH / LR
// =============================================================================

// Dispatch sends a lineage to the vendor. The body is optional.
// POST /api/assignments/dispatch/{rootId}
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Service.Dispatch(r.Context(), actorFrom(r), chi.URLParam(r, "rootId"), req.Purpose)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DispatchResponse{Success: true, Message: result.Message(), ToVendor: result.ToVendor})
}

// RecordLR stores the lorry-receipt number of a lineage.
// PUT /api/assignments/lr/{rootId}, PUT /api/assignments/vendor/lr/{rootId}
func (h *Handler) RecordLR(w http.ResponseWriter, r *http.Request) {
	var req LRRequest
	if !h.bind(w, r, &req) {
		return
	}
	if _, err := h.Service.RecordLR(r.Context(), actorFrom(r), chi.URLParam(r, "rootId"), req.LRNo); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// VendorList returns the root record of every dispatched lineage.
// GET /api/assignments/vendor/list
func (h *Handler) VendorList(w http.ResponseWriter, r *http.Request) {
	records, err := h.Service.VendorList(r.Context(), actorFrom(r), filterFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationDTOs(records))
}

// =============================================================================
// HISTORY
// =============================================================================

// AdminHistory returns every allocation record, newest first.
// GET /api/assignments/history/admin
func (h *Handler) AdminHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.Service.AdminHistory(r.Context(), actorFrom(r), filterFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationDTOs(records))
}

// ExportAdminHistory streams the filtered history as an xlsx workbook.
// GET /api/assignments/history/admin/export
func (h *Handler) ExportAdminHistory(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if err := h.Service.Policy.Authorize(actor, allocation.ActionExportHistory); err != nil {
		h.fail(w, r, err)
		return
	}
	records, err := h.Service.AdminHistory(r.Context(), actor, filterFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	filename := fmt.Sprintf("allocation-history-%s.xlsx", h.Service.Now().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	if err := writeHistoryWorkbook(w, records); err != nil {
		h.Logger.WithFields(logrus.Fields{"module": "api", "funcName": "ExportAdminHistory"}).WithError(err).Error("export failed")
	}
}

// Search finds records by exact rootId, rmId or bmId.
// GET /api/assignments/search/{id}
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	records, err := h.Service.FindByID(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationDTOs(records))
}

// GetAudit returns the audit trail of a lineage.
// GET /api/assignments/audit/{rootId}
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Service.Audit(r.Context(), actorFrom(r), chi.URLParam(r, "rootId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]AuditDTO, len(entries))
	for i, e := range entries {
		dtos[i] = AuditDTO{
			ID:      e.ID,
			At:      e.At.Format(time.RFC3339),
			Actor:   e.Actor,
			Action:  string(e.Action),
			RootID:  e.RootID,
			Payload: e.Payload,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// USERS
// =============================================================================

// ListUsers returns the whole directory (Admin).
// GET /api/users/all
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Service.AllUsers(r.Context(), actorFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTOs(users))
}

// ListTeam returns everyone reporting to the caller, at any depth.
// GET /api/users/team
func (h *Handler) ListTeam(w http.ResponseWriter, r *http.Request) {
	team, err := h.Service.Team(r.Context(), actorFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTOs(team))
}

// GetUser returns a single directory entry.
// GET /api/users/{empCode}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.Service.User(r.Context(), chi.URLParam(r, "empCode"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*u))
}

// SaveUser creates or updates a directory entry (Admin).
// POST /api/users
func (h *Handler) SaveUser(w http.ResponseWriter, r *http.Request) {
	var req SaveUserRequest
	if !h.bind(w, r, &req) {
		return
	}
	role, err := directory.ParseRole(req.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	u := directory.User{
		EmpCode:  req.EmpCode,
		Name:     req.Name,
		Role:     role,
		Region:   req.Region,
		Branch:   req.Branch,
		Area:     req.Area,
		ReportTo: req.ReportTo,
	}
	if err := h.Service.SaveUser(r.Context(), actorFrom(r), u); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(u))
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports whether the database answers.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
