package http

import (
	"net/http"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
	"github.com/aussiebroadwan/consent/internal/consent/service"
	"github.com/aussiebroadwan/consent/pkg/httpx"
)

// PolicyHandler serves the policy catalog.
type PolicyHandler struct {
	CatalogService *service.CatalogService
	LedgerService  *service.LedgerService
}

// HandleList handles GET /v1/policies
//
//	@Summary		List policies
//	@Description	Returns every policy document with its versions and acceptance ledger, in creation order.
//	@Tags			Policies
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{array}		domain.PolicyData
//	@Failure		401	{object}	httpx.ErrorResponse
//	@Failure		500	{object}	httpx.ErrorResponse
//	@Router			/v1/policies [get].
func (h *PolicyHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	policies, err := h.CatalogService.ListPolicies(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "list policies")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, policies)
}

// HandleGet handles GET /v1/policies/{id}
//
//	@Summary	Get a policy
//	@Tags		Policies
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Policy id"
//	@Success	200	{object}	domain.PolicyData
//	@Failure	404	{object}	httpx.ErrorResponse
//	@Router		/v1/policies/{id} [get].
func (h *PolicyHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.CatalogService.GetPolicy(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err, "load policy")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

// HandleCreate handles POST /v1/policies
//
//	@Summary		Create a policy
//	@Description	Adds a document to the catalog. Requires the admin or legal role.
//	@Tags			Policies
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		service.NewPolicyRequest	true	"Policy"
//	@Success		201		{object}	domain.PolicyData
//	@Failure		400		{object}	ValidationErrorResponse
//	@Failure		403		{object}	httpx.ErrorResponse
//	@Failure		409		{object}	httpx.ErrorResponse
//	@Router			/v1/policies [post].
func (h *PolicyHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req service.NewPolicyRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	p, err := h.CatalogService.CreatePolicy(r.Context(), callerID(r), req)
	if err != nil {
		writeServiceError(w, r, err, "create policy")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, p)
}

// HandlePublish handles POST /v1/policies/{id}/versions
//
//	@Summary		Publish a version
//	@Description	Appends a new version and makes it current. Earlier versions are kept.
//	@Tags			Policies
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string					true	"Policy id"
//	@Param			request	body		domain.PolicyVersion	true	"Version"
//	@Success		201		{object}	domain.PolicyData
//	@Failure		400		{object}	ValidationErrorResponse
//	@Failure		404		{object}	httpx.ErrorResponse
//	@Failure		409		{object}	httpx.ErrorResponse
//	@Router			/v1/policies/{id}/versions [post].
func (h *PolicyHandler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	var v domain.PolicyVersion
	if err := httpx.DecodeJSON(w, r, &v); err != nil {
		writeBadRequest(w, err)
		return
	}

	p, err := h.CatalogService.PublishVersion(r.Context(), callerID(r), r.PathValue("id"), v)
	if err != nil {
		writeServiceError(w, r, err, "publish version")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, p)
}

// HandleDecline handles POST /v1/policies/{id}/decline
//
//	@Summary		Decline a policy
//	@Description	Reports that the caller turned the document down. The ledger is not changed.
//	@Tags			Policies
//	@Accept			json
//	@Security		BearerAuth
//	@Param			id		path	string			true	"Policy id"
//	@Param			request	body	ReasonRequest	false	"Reason"
//	@Success		204
//	@Failure		404	{object}	httpx.ErrorResponse
//	@Router			/v1/policies/{id}/decline [post].
func (h *PolicyHandler) HandleDecline(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(w, r, &req); err != nil {
			writeBadRequest(w, err)
			return
		}
	}

	if err := h.LedgerService.Decline(r.Context(), callerID(r), r.PathValue("id"), req.Reason); err != nil {
		writeServiceError(w, r, err, "decline policy")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
