/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON shapes of the REST contract. Field names follow the web client
  (rootId, rmId, bmId, employees[].empCode ...), so the domain types can be
  renamed without breaking it.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Small response wrappers

VALIDATION:
  Request types carry validator/v10 tags. Handlers call h.bind(), which
  decodes and validates; failures come back as 400 with a field -> tag map.
  The domain repeats its own checks regardless of transport.

SEE ALSO:
  - handlers.go: Uses these types
  - errors.go: Error body
*/
package api

import (
	"time"

	"github.com/warp/allocation-ledger/allocation"
	"github.com/warp/allocation-ledger/directory"
	"github.com/warp/allocation-ledger/stock"
)

// =============================================================================
// ALLOCATIONS
// =============================================================================

type ShareDTO struct {
	EmpCode string            `json:"empCode" validate:"required"`
	Name    string            `json:"name"`
	Qty     int64             `json:"qty" validate:"gt=0,lte=1000000"`
	Extra   map[string]string `json:"extra,omitempty"`
}

// AllocationRequest is the body of the three create endpoints. rootId and
// parentId are only read by the RM/BM endpoints.
type AllocationRequest struct {
	RootID    string     `json:"rootId,omitempty"`
	ParentID  string     `json:"parentId,omitempty"`
	Item      string     `json:"item" validate:"required"`
	Employees []ShareDTO `json:"employees" validate:"required,min=1,dive"`
	Purpose   string     `json:"purpose" validate:"max=500"`
}

func (r AllocationRequest) toDomain() allocation.AllocationRequest {
	shares := make([]allocation.Share, len(r.Employees))
	for i, s := range r.Employees {
		shares[i] = allocation.Share{EmpCode: s.EmpCode, Name: s.Name, Qty: s.Qty, Extra: s.Extra}
	}
	return allocation.AllocationRequest{
		Item:         stock.ItemName(r.Item),
		Shares:       shares,
		Purpose:      r.Purpose,
		ParentRootID: r.RootID,
		ParentID:     r.ParentID,
	}
}

type AllocationDTO struct {
	ID             string     `json:"id"`
	ParentID       string     `json:"parentId,omitempty"`
	RootID         string     `json:"rootId"`
	RMID           string     `json:"rmId,omitempty"`
	BMID           string     `json:"bmId,omitempty"`
	Item           string     `json:"item"`
	Employees      []ShareDTO `json:"employees"`
	Total          int64      `json:"total"`
	Purpose        string     `json:"purpose"`
	AssignedBy     string     `json:"assignedBy"`
	AssignedByCode string     `json:"assignedByCode"`
	Role           string     `json:"role"`
	Region         string     `json:"region,omitempty"`
	Branch         string     `json:"branch,omitempty"`
	Date           string     `json:"date"`
	ToVendor       bool       `json:"toVendor"`
	LRNo           string     `json:"lrNo"`
}

func toAllocationDTO(a allocation.Allocation) AllocationDTO {
	shares := make([]ShareDTO, len(a.Employees))
	for i, s := range a.Employees {
		shares[i] = ShareDTO{EmpCode: s.EmpCode, Name: s.Name, Qty: s.Qty, Extra: s.Extra}
	}
	return AllocationDTO{
		ID:             a.ID,
		ParentID:       a.ParentID,
		RootID:         a.RootID,
		RMID:           a.RMID,
		BMID:           a.BMID,
		Item:           string(a.Item),
		Employees:      shares,
		Total:          a.Total(),
		Purpose:        a.Purpose,
		AssignedBy:     a.AssignedBy,
		AssignedByCode: a.AssignedByCode,
		Role:           string(a.Role),
		Region:         a.Region,
		Branch:         a.Branch,
		Date:           a.Date.Format(time.RFC3339),
		ToVendor:       a.ToVendor,
		LRNo:           a.LRNo,
	}
}

func toAllocationDTOs(records []allocation.Allocation) []AllocationDTO {
	dtos := make([]AllocationDTO, len(records))
	for i, a := range records {
		dtos[i] = toAllocationDTO(a)
	}
	return dtos
}

// =============================================================================
// STOCK
// =============================================================================

type StockDTO struct {
	Name  string `json:"name"`
	Stock int64  `json:"stock"`
	Unit  string `json:"unit,omitempty"`
}

// StockPageDTO is what every stock page renders.
type StockPageDTO struct {
	Owner       string          `json:"owner"`
	Stock       []StockDTO      `json:"stock"`
	Assignments []AllocationDTO `json:"assignments"`
}

func toStockPageDTO(v *allocation.View) StockPageDTO {
	holdings := make([]StockDTO, len(v.Stock))
	for i, hld := range v.Stock {
		holdings[i] = StockDTO{Name: string(hld.Item), Stock: hld.Available.Int64(), Unit: string(hld.Available.Unit)}
	}
	return StockPageDTO{
		Owner:       string(v.Owner),
		Stock:       holdings,
		Assignments: toAllocationDTOs(v.Assignments),
	}
}

type OpenStockRequest struct {
	Item string `json:"item" validate:"required"`
	Unit string `json:"unit" validate:"omitempty,oneof=pcs boxes"`
	Qty  int64  `json:"qty" validate:"gt=0"`
}

type ItemDTO struct {
	Name      string `json:"name"`
	Unit      string `json:"unit"`
	CreatedAt string `json:"createdAt"`
}

// =============================================================================
// DISPATCH / LR
// =============================================================================

type DispatchRequest struct {
	Purpose string `json:"purpose"`
}

type DispatchResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	ToVendor bool   `json:"toVendor"`
}

type LRRequest struct {
	LRNo string `json:"lrNo" validate:"required,max=64"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type AuditDTO struct {
	ID      string            `json:"id"`
	At      string            `json:"at"`
	Actor   string            `json:"actor"`
	Action  string            `json:"action"`
	RootID  string            `json:"rootId"`
	Payload map[string]string `json:"payload,omitempty"`
}

// =============================================================================
// USERS
// =============================================================================

type UserDTO struct {
	EmpCode  string   `json:"empCode"`
	Name     string   `json:"name"`
	Role     string   `json:"role"`
	Region   string   `json:"region,omitempty"`
	Branch   string   `json:"branch,omitempty"`
	Area     string   `json:"area,omitempty"`
	ReportTo []string `json:"reportTo"`
}

func toUserDTO(u directory.User) UserDTO {
	reportTo := u.ReportTo
	if reportTo == nil {
		reportTo = []string{}
	}
	return UserDTO{
		EmpCode:  u.EmpCode,
		Name:     u.Name,
		Role:     string(u.Role),
		Region:   u.Region,
		Branch:   u.Branch,
		Area:     u.Area,
		ReportTo: reportTo,
	}
}

func toUserDTOs(users []directory.User) []UserDTO {
	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = toUserDTO(u)
	}
	return dtos
}

type SaveUserRequest struct {
	EmpCode  string   `json:"empCode" validate:"required"`
	Name     string   `json:"name" validate:"required"`
	Role     string   `json:"role" validate:"required"`
	Region   string   `json:"region"`
	Branch   string   `json:"branch"`
	Area     string   `json:"area"`
	ReportTo []string `json:"reportTo" validate:"dive,required"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}
