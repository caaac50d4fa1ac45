package http

import (
	"net/http"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
	"github.com/aussiebroadwan/consent/internal/consent/service"
	"github.com/aussiebroadwan/consent/pkg/httpx"
)

type OrganizationHandler struct {
	DirectoryService *service.DirectoryService
}

// HandleCompanies handles GET /v1/companies
//
//	@Summary	List companies
//	@Tags		Organization
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{array}	domain.Company
//	@Router		/v1/companies [get].
func (h *OrganizationHandler) HandleCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.DirectoryService.ListCompanies(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "list companies")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, companies)
}

// HandleGetSettings handles GET /v1/organization/settings
//
//	@Summary	Organization settings
//	@Tags		Organization
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	domain.OrganizationSettings
//	@Router		/v1/organization/settings [get].
func (h *OrganizationHandler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	org, err := h.DirectoryService.OrganizationSettings(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "load organization settings")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, org)
}

// HandlePutSettings handles PUT /v1/organization/settings
//
//	@Summary	Replace organization settings
//	@Tags		Organization
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		request	body		domain.OrganizationSettings	true	"Settings"
//	@Success	200		{object}	domain.OrganizationSettings
//	@Failure	400		{object}	ValidationErrorResponse
//	@Failure	403		{object}	httpx.ErrorResponse
//	@Router		/v1/organization/settings [put].
func (h *OrganizationHandler) HandlePutSettings(w http.ResponseWriter, r *http.Request) {
	var org domain.OrganizationSettings
	if err := httpx.DecodeJSON(w, r, &org); err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := h.DirectoryService.UpdateOrganizationSettings(r.Context(), callerID(r), org); err != nil {
		writeServiceError(w, r, err, "update organization settings")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, org)
}
