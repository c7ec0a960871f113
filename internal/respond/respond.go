package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/queaccounting/backend/internal/domain"
	"github.com/queaccounting/backend/internal/security/auth"
)

// Envelope is the uniform response shape for every endpoint
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Success writes {success:true, message, data} with the given status code
func Success(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	write(w, statusCode, Envelope{Success: true, Message: message, Data: data})
}

// Error writes {success:false, message, data:null} with the given status code
func Error(w http.ResponseWriter, statusCode int, message string) {
	write(w, statusCode, Envelope{Success: false, Message: message})
}

// FromError maps a domain error onto the HTTP taxonomy and writes it.
// Unanticipated errors are surfaced as a generic 500 without internal detail.
func FromError(w http.ResponseWriter, err error) {
	status, message := classify(err)
	Error(w, status, message)
}

func classify(err error) (int, string) {
	var denied *domain.PermissionDeniedError
	switch {
	case errors.Is(err, domain.ErrAuthRequired),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrTokenSignature),
		errors.Is(err, auth.ErrTokenMalformed):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, domain.ErrAccountInactive),
		errors.Is(err, domain.ErrNotAMember),
		errors.Is(err, domain.ErrMembershipDisabled),
		errors.Is(err, domain.ErrBusinessInactive),
		errors.Is(err, domain.ErrSubscriptionOff),
		errors.Is(err, domain.ErrSuperAdminOnly),
		errors.Is(err, domain.ErrAdminOnly),
		errors.Is(err, domain.ErrLastAdmin):
		return http.StatusForbidden, err.Error()
	case errors.As(err, &denied):
		return http.StatusForbidden, denied.Error()
	case errors.Is(err, domain.ErrNoActiveBusiness),
		errors.Is(err, domain.ErrDuplicate):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func write(w http.ResponseWriter, statusCode int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
