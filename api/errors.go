package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/warp/allocation-ledger/allocation"
	"github.com/warp/allocation-ledger/stock"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps the domain error taxonomy onto HTTP.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, allocation.ErrValidation),
		errors.Is(err, stock.ErrInvalidQuantity),
		errors.Is(err, stock.ErrUnknownItem):
		return http.StatusBadRequest, "Validation failed"
	case errors.Is(err, stock.ErrInsufficientStock):
		return http.StatusConflict, "Insufficient stock"
	case errors.Is(err, stock.ErrDuplicateIdempotencyKey):
		return http.StatusConflict, "Duplicate request"
	case errors.Is(err, allocation.ErrLockBusy):
		return http.StatusConflict, "Stock pool is busy, retry"
	case errors.Is(err, allocation.ErrPolicy):
		return http.StatusUnprocessableEntity, "Not eligible for vendor dispatch"
	case errors.Is(err, allocation.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case allocation.IsNotFound(err):
		return http.StatusNotFound, "Not found"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

// fail writes err with its mapped status. Server errors are logged and their
// details withheld from the client.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.WithFields(logrus.Fields{
			"module":     "api",
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		}).WithError(err).Error("request failed")
		writeError(w, status, message, nil)
		return
	}
	writeError(w, status, message, err)
}

// validationDetails turns validator errors into a field -> failed tag map.
func validationDetails(err error) map[string]string {
	details := make(map[string]string)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			details[fe.Namespace()] = fe.Tag()
		}
	}
	return details
}
