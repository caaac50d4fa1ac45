package http

import (
	"net/http"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
	"github.com/aussiebroadwan/consent/internal/consent/service"
	"github.com/aussiebroadwan/consent/pkg/httpx"
	"github.com/aussiebroadwan/consent/pkg/slogx"
)

type UserHandler struct {
	CatalogService   *service.CatalogService
	LedgerService    *service.LedgerService
	DirectoryService *service.DirectoryService
}

// HandleList handles GET /v1/users
//
//	@Summary	List users
//	@Tags		Users
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{array}		domain.User
//	@Failure	403	{object}	httpx.ErrorResponse
//	@Router		/v1/users [get].
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.DirectoryService.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "list users")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, users)
}

// HandleAcceptances handles GET /v1/users/{id}/acceptances
//
//	@Summary		Acceptance history
//	@Description	Valid acceptances of the user across all policies. Self, admin or legal.
//	@Tags			Users
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"User id"
//	@Success		200	{array}		domain.PolicyAcceptance
//	@Failure		403	{object}	httpx.ErrorResponse
//	@Router			/v1/users/{id}/acceptances [get].
func (h *UserHandler) HandleAcceptances(w http.ResponseWriter, r *http.Request) {
	list, err := h.LedgerService.UserAcceptances(r.Context(), callerID(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err, "list acceptances")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

// HandleStatus handles GET /v1/users/{id}/status
//
//	@Summary	Status of every policy for a user
//	@Tags		Users
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"User id"
//	@Success	200	{object}	map[string]string
//	@Failure	403	{object}	httpx.ErrorResponse
//	@Failure	404	{object}	httpx.ErrorResponse
//	@Router		/v1/users/{id}/status [get].
func (h *UserHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if !h.authorizeSubject(w, r, userID) {
		return
	}

	statuses, err := h.CatalogService.Status(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err, "resolve status")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, statuses)
}

// HandleRequired handles GET /v1/users/{id}/required-policies
//
//	@Summary		Policies the user still has to accept
//	@Description	Clients call this right after sign-in, so a self lookup also stamps the last login.
//	@Tags			Users
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"User id"
//	@Success		200	{array}		domain.PolicyData
//	@Failure		403	{object}	httpx.ErrorResponse
//	@Failure		404	{object}	httpx.ErrorResponse
//	@Router			/v1/users/{id}/required-policies [get].
func (h *UserHandler) HandleRequired(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("id")
	if !h.authorizeSubject(w, r, userID) {
		return
	}

	required, err := h.CatalogService.Required(ctx, userID)
	if err != nil {
		writeServiceError(w, r, err, "resolve required policies")
		return
	}

	if userID == callerID(r) {
		if err := h.DirectoryService.RecordLogin(ctx, userID); err != nil {
			slogx.FromContext(ctx).Warn("failed to record login", "error", err)
		}
	}
	httpx.WriteJSON(w, http.StatusOK, required)
}

// HandleCanAccept handles GET /v1/users/{id}/can-accept-for-company
//
//	@Summary	Whether the user may accept on behalf of a company
//	@Tags		Users
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id			path		string	true	"User id"
//	@Param		companyId	query		string	false	"Company id, defaults to the user's company"
//	@Success	200			{object}	CanAcceptResponse
//	@Failure	403			{object}	httpx.ErrorResponse
//	@Router		/v1/users/{id}/can-accept-for-company [get].
func (h *UserHandler) HandleCanAccept(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if !h.authorizeSubject(w, r, userID) {
		return
	}
	companyID := r.URL.Query().Get("companyId")

	ok, err := h.DirectoryService.CanAcceptForCompany(r.Context(), userID, companyID)
	if err != nil {
		writeServiceError(w, r, err, "check company permission")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, CanAcceptResponse{
		UserID:    userID,
		CompanyID: companyID,
		CanAccept: ok,
	})
}

// authorizeSubject lets callers read their own data; admin and legal may
// read anyone's.
func (h *UserHandler) authorizeSubject(w http.ResponseWriter, r *http.Request, userID string) bool {
	caller := callerID(r)
	if caller == userID {
		return true
	}
	role, ok := h.DirectoryService.Role(r.Context(), caller)
	if ok && (role == domain.RoleAdmin || role == domain.RoleLegal) {
		return true
	}
	writeServiceError(w, r, service.ErrForbidden, "")
	return false
}
