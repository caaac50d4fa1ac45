package http

import (
	"net/http"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
	"github.com/aussiebroadwan/consent/internal/consent/service"
	"github.com/aussiebroadwan/consent/pkg/httpx"
)

type AcceptanceHandler struct {
	LedgerService *service.LedgerService
}

// HandleCreate handles POST /v1/acceptances
//
//	@Summary		Record an acceptance
//	@Description	Appends an acceptance of the current version for the caller. Replaying an id
//	@Description	with the same user, policy and version returns the stored record with 200.
//	@Tags			Acceptances
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		domain.PolicyAcceptance	true	"Acceptance"
//	@Success		201		{object}	domain.PolicyAcceptance	"recorded"
//	@Success		200		{object}	domain.PolicyAcceptance	"replayed"
//	@Failure		400		{object}	ValidationErrorResponse
//	@Failure		403		{object}	httpx.ErrorResponse
//	@Failure		404		{object}	httpx.ErrorResponse
//	@Failure		409		{object}	httpx.ErrorResponse
//	@Router			/v1/acceptances [post].
func (h *AcceptanceHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var a domain.PolicyAcceptance
	if err := httpx.DecodeJSON(w, r, &a); err != nil {
		writeBadRequest(w, err)
		return
	}

	// recorded from the peer address; body and forwarding headers are ignored
	a.IPAddress = httpx.RemoteIP(r)
	if a.UserAgent == "" {
		a.UserAgent = r.UserAgent()
	}

	stored, created, err := h.LedgerService.RecordAcceptance(r.Context(), callerID(r), a)
	if err != nil {
		writeServiceError(w, r, err, "record acceptance")
		return
	}

	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	httpx.WriteJSON(w, code, stored)
}

// HandleRevoke handles POST /v1/acceptances/{id}/revoke
//
//	@Summary		Revoke an acceptance
//	@Description	Marks the record revoked. Records are never deleted. Owner, admin or legal only.
//	@Tags			Acceptances
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string			true	"Acceptance id"
//	@Param			request	body		ReasonRequest	false	"Reason"
//	@Success		200		{object}	domain.PolicyAcceptance
//	@Failure		403		{object}	httpx.ErrorResponse
//	@Failure		404		{object}	httpx.ErrorResponse
//	@Failure		409		{object}	httpx.ErrorResponse
//	@Router			/v1/acceptances/{id}/revoke [post].
func (h *AcceptanceHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(w, r, &req); err != nil {
			writeBadRequest(w, err)
			return
		}
	}

	revoked, err := h.LedgerService.RevokeAcceptance(r.Context(), callerID(r), r.PathValue("id"), req.Reason)
	if err != nil {
		writeServiceError(w, r, err, "revoke acceptance")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, revoked)
}
