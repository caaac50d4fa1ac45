package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
	"github.com/aussiebroadwan/consent/internal/consent/service"
	"github.com/aussiebroadwan/consent/pkg/httpx"
	"github.com/aussiebroadwan/consent/pkg/slogx"
)

// writeServiceError maps service errors onto status codes. Anything not
// recognised is logged and reported as a 500 naming action.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.WriteJSON(w, http.StatusBadRequest, ValidationErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: verr.Error(),
			Fields:           verr.Fields,
		})

	case errors.Is(err, service.ErrPolicyNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrCompanyNotFound),
		errors.Is(err, service.ErrAcceptanceNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", err.Error())

	case errors.Is(err, service.ErrForbidden):
		httpx.WriteError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, service.ErrNotAuthorized):
		httpx.WriteError(w, http.StatusForbidden, "not_authorized", err.Error())
	case errors.Is(err, service.ErrIndividualRefused):
		httpx.WriteError(w, http.StatusForbidden, "individual_acceptance_disabled", err.Error())

	case errors.Is(err, service.ErrStaleVersion):
		httpx.WriteError(w, http.StatusConflict, "stale_version", err.Error())
	case errors.Is(err, service.ErrAlreadyRevoked):
		httpx.WriteError(w, http.StatusConflict, "already_revoked", err.Error())
	case errors.Is(err, service.ErrVersionExists),
		errors.Is(err, service.ErrVersionNotNewer):
		httpx.WriteError(w, http.StatusConflict, "version_conflict", err.Error())
	case errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrPolicyExists):
		httpx.WriteError(w, http.StatusConflict, "conflict", err.Error())

	default:
		slogx.FromContext(r.Context()).Error("failed to "+action, "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Failed to "+action)
	}
}

func writeBadRequest(w http.ResponseWriter, err error) {
	httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
}

// callerID is the authenticated subject. Routes behind AuthnMiddleware
// always have one.
func callerID(r *http.Request) string {
	id, _ := httpx.UserIDFromContext(r.Context())
	return id
}
