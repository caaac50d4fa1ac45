package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
	consenthttp "github.com/aussiebroadwan/consent/internal/consent/http"
	"github.com/aussiebroadwan/consent/internal/consent/obs"
	"github.com/aussiebroadwan/consent/internal/consent/service"
	"github.com/aussiebroadwan/consent/internal/consent/store/drivers/sqlite"
	"github.com/aussiebroadwan/consent/pkg/cryptox"
	"github.com/aussiebroadwan/consent/pkg/jwtx"
	"github.com/aussiebroadwan/consent/pkg/slogx"
)

const issuer = "https://auth.test"

var now = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

type api struct {
	router *consenthttp.Router
	signer *jwtx.Signer
}

func version(v, date string) domain.PolicyVersion {
	d, err := domain.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return domain.PolicyVersion{ID: "v-" + v, Version: v, Date: d, Content: "Terms " + v, IsActive: true, CreatedBy: "u-legal"}
}

func seed() service.Seed {
	acme := domain.NewCompany("acme", "Acme Corp", []string{"u-rep"}, nil, now)
	org := domain.HybridSettings(acme)
	return service.Seed{
		Organization: &org,
		Companies:    []domain.Company{acme},
		Users: []domain.User{
			domain.NewUser("u-admin", "admin@example.test", "Ada Admin", domain.RoleAdmin, "", false, now),
			domain.NewUser("u-legal", "legal@example.test", "Lee Legal", domain.RoleLegal, "", false, now),
			domain.NewUser("u-rep", "rep@acme.test", "Rae Rep", domain.RoleUser, "acme", false, now),
			domain.NewUser("u-solo", "solo@example.test", "Sol Solo", domain.RoleUser, "", false, now),
		},
		Policies: []domain.PolicyData{
			domain.NewPolicyData("terms", domain.PolicyTerms, "Terms of Service", []domain.PolicyVersion{
				version("2.0", "2024-06-01"), version("2.1", "2024-12-01"),
			}, nil, nil, now.Add(-48*time.Hour)),
			domain.NewPolicyData("privacy", domain.PolicyPrivacy, "Privacy Policy", []domain.PolicyVersion{
				version("1.0", "2024-03-01"),
			}, nil, nil, now.Add(-24*time.Hour)),
		},
	}
}

func newAPI(t *testing.T) *api {
	t.Helper()
	ctx := context.Background()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	clock := func() time.Time { return now }
	require.NoError(t, (&service.BootstrapService{Store: st, Now: clock}).Bootstrap(ctx, seed()))

	privPEM, _, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)
	signer, err := jwtx.NewSigner("test-key", privPEM)
	require.NoError(t, err)
	keys := jwtx.NewKeySet()
	keys.Add(signer.KID(), signer.PublicKey())
	verifier := jwtx.NewVerifierEdDSA(keys, jwtx.VerifyOptions{Issuer: issuer})

	metrics := obs.New()
	integrations := service.Integrations{Analytics: metrics}

	r := consenthttp.NewRouter(keys, verifier, "test", st, metrics, slogx.Discard())
	r.CatalogService = &service.CatalogService{Store: st, Integrations: integrations, Now: clock}
	r.LedgerService = &service.LedgerService{Store: st, Integrations: integrations, Now: clock}
	r.DirectoryService = &service.DirectoryService{Store: st, Integrations: integrations, Now: clock}
	r.ApplyRoutes()

	return &api{router: r, signer: signer}
}

func (a *api) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := a.signer.Sign(jwtx.NewClaims(userID, issuer, nil, time.Minute, time.Now()))
	require.NoError(t, err)
	return tok
}

func (a *api) do(t *testing.T, userID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+a.token(t, userID))
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestAuthentication(t *testing.T) {
	t.Parallel()
	a := newAPI(t)

	rec := a.do(t, "", http.MethodGet, "/v1/policies", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")

	rec = a.do(t, "u-solo", http.MethodGet, "/v1/policies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	policies := decode[[]domain.PolicyData](t, rec)
	require.Len(t, policies, 2)
	require.Equal(t, "terms", policies[0].ID)
	require.Equal(t, "2.1", policies[0].CurrentVersion)
}

func TestAcceptanceFlow(t *testing.T) {
	t.Parallel()
	a := newAPI(t)

	status := decode[map[string]domain.Status](t, a.do(t, "u-solo", http.MethodGet, "/v1/users/u-solo/status", nil))
	require.Equal(t, domain.StatusPending, status["terms"])

	body := domain.PolicyAcceptance{ID: "acc-1", PolicyID: "terms", Version: "2.1", IPAddress: "10.9.9.9"}
	rec := a.do(t, "u-solo", http.MethodPost, "/v1/acceptances", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	stored := decode[domain.PolicyAcceptance](t, rec)
	require.Equal(t, "u-solo", stored.UserID)
	require.Equal(t, "192.0.2.1", stored.IPAddress, "taken from the connection")
	require.NotEmpty(t, stored.ContentDigest)

	t.Run("replay", func(t *testing.T) {
		rec := a.do(t, "u-solo", http.MethodPost, "/v1/acceptances", body)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, stored.AcceptedAt, decode[domain.PolicyAcceptance](t, rec).AcceptedAt)
	})

	t.Run("id reuse for another version", func(t *testing.T) {
		other := body
		other.Version = "2.0"
		rec := a.do(t, "u-solo", http.MethodPost, "/v1/acceptances", other)
		require.Equal(t, http.StatusConflict, rec.Code)
		require.Equal(t, "conflict", decode[map[string]string](t, rec)["error"])
	})

	t.Run("stale version", func(t *testing.T) {
		rec := a.do(t, "u-solo", http.MethodPost, "/v1/acceptances",
			domain.PolicyAcceptance{PolicyID: "terms", Version: "2.0"})
		require.Equal(t, http.StatusConflict, rec.Code)
		require.Equal(t, "stale_version", decode[map[string]string](t, rec)["error"])
	})

	t.Run("on behalf of someone else", func(t *testing.T) {
		rec := a.do(t, "u-solo", http.MethodPost, "/v1/acceptances",
			domain.PolicyAcceptance{PolicyID: "privacy", Version: "1.0", UserID: "u-rep"})
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	status = decode[map[string]domain.Status](t, a.do(t, "u-solo", http.MethodGet, "/v1/users/u-solo/status", nil))
	require.Equal(t, domain.StatusAccepted, status["terms"])

	history := decode[[]domain.PolicyAcceptance](t, a.do(t, "u-solo", http.MethodGet, "/v1/users/u-solo/acceptances", nil))
	require.Len(t, history, 1)

	t.Run("revoke", func(t *testing.T) {
		rec := a.do(t, "u-rep", http.MethodPost, "/v1/acceptances/acc-1/revoke", consenthttp.ReasonRequest{Reason: "mine"})
		require.Equal(t, http.StatusForbidden, rec.Code)

		rec = a.do(t, "u-legal", http.MethodPost, "/v1/acceptances/acc-1/revoke", consenthttp.ReasonRequest{Reason: "signed in error"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		revoked := decode[domain.PolicyAcceptance](t, rec)
		require.False(t, revoked.IsValid)
		require.Equal(t, "u-legal", revoked.RevokedBy)

		rec = a.do(t, "u-legal", http.MethodPost, "/v1/acceptances/acc-1/revoke", nil)
		require.Equal(t, http.StatusConflict, rec.Code)

		rec = a.do(t, "u-legal", http.MethodPost, "/v1/acceptances/nope/revoke", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAcceptanceIgnoresForwardedFor(t *testing.T) {
	t.Parallel()
	a := newAPI(t)

	raw, err := json.Marshal(domain.PolicyAcceptance{PolicyID: "terms", Version: "2.1"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/acceptances", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token(t, "u-solo"))
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	req.Header.Set("X-Real-IP", "203.0.113.8")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, "192.0.2.1", decode[domain.PolicyAcceptance](t, rec).IPAddress)
}

func TestCompanyAcceptance(t *testing.T) {
	t.Parallel()
	a := newAPI(t)

	rec := a.do(t, "u-rep", http.MethodPost, "/v1/acceptances", domain.PolicyAcceptance{
		PolicyID: "terms", Version: "2.1", AcceptanceType: domain.AcceptanceCompany,
		CompanyInfo: &domain.CompanyInfo{CompanyName: "Acme Corp"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	verr := decode[consenthttp.ValidationErrorResponse](t, rec)
	require.Equal(t, "invalid_request", verr.Error)
	require.Contains(t, verr.Fields, "acceptorName")

	can := decode[consenthttp.CanAcceptResponse](t, a.do(t, "u-rep", http.MethodGet, "/v1/users/u-rep/can-accept-for-company", nil))
	require.True(t, can.CanAccept)

	can = decode[consenthttp.CanAcceptResponse](t, a.do(t, "u-admin", http.MethodGet, "/v1/users/u-solo/can-accept-for-company?companyId=acme", nil))
	require.False(t, can.CanAccept)
	require.Equal(t, "acme", can.CompanyID)
}

func TestReadsAreScopedToSelf(t *testing.T) {
	t.Parallel()
	a := newAPI(t)

	require.Equal(t, http.StatusForbidden, a.do(t, "u-solo", http.MethodGet, "/v1/users/u-rep/status", nil).Code)
	require.Equal(t, http.StatusForbidden, a.do(t, "u-solo", http.MethodGet, "/v1/users/u-rep/acceptances", nil).Code)
	require.Equal(t, http.StatusForbidden, a.do(t, "u-solo", http.MethodGet, "/v1/users", nil).Code)
	require.Equal(t, http.StatusUnauthorized, a.do(t, "u-ghost", http.MethodGet, "/v1/users", nil).Code)

	rec := a.do(t, "u-legal", http.MethodGet, "/v1/users/u-rep/required-policies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]domain.PolicyData](t, rec), 2)

	users := decode[[]domain.User](t, a.do(t, "u-admin", http.MethodGet, "/v1/users", nil))
	require.Len(t, users, 4)

	rec = a.do(t, "u-solo", http.MethodGet, "/v1/users/u-solo/required-policies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCatalogManagement(t *testing.T) {
	t.Parallel()
	a := newAPI(t)

	// version ids are minted server side
	unstamped := func(v, date string) domain.PolicyVersion {
		pv := version(v, date)
		pv.ID = ""
		return pv
	}
	req := service.NewPolicyRequest{
		ID: "cookies", Type: domain.PolicyCookies, Title: "Cookie Policy",
		Versions: []domain.PolicyVersion{unstamped("1.0", "2025-01-01")},
	}
	require.Equal(t, http.StatusForbidden, a.do(t, "u-solo", http.MethodPost, "/v1/policies", req).Code)

	rec := a.do(t, "u-legal", http.MethodPost, "/v1/policies", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, "1.0", decode[domain.PolicyData](t, rec).CurrentVersion)

	require.Equal(t, http.StatusConflict, a.do(t, "u-legal", http.MethodPost, "/v1/policies", req).Code)

	rec = a.do(t, "u-admin", http.MethodPost, "/v1/policies/cookies/versions", unstamped("1.1", "2025-01-05"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode[domain.PolicyData](t, rec)
	require.Equal(t, "1.1", p.CurrentVersion)
	require.Len(t, p.Versions, 2)

	rec = a.do(t, "u-admin", http.MethodPost, "/v1/policies/cookies/versions", unstamped("1.1", "2025-01-06"))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "version_conflict", decode[map[string]string](t, rec)["error"])

	require.Equal(t, http.StatusNotFound, a.do(t, "u-solo", http.MethodGet, "/v1/policies/missing", nil).Code)
}

func TestDecline(t *testing.T) {
	t.Parallel()
	a := newAPI(t)

	rec := a.do(t, "u-solo", http.MethodPost, "/v1/policies/privacy/decline", consenthttp.ReasonRequest{Reason: "later"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.do(t, "u-solo", http.MethodPost, "/v1/policies/privacy/decline", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.do(t, "u-solo", http.MethodPost, "/v1/policies/missing/decline", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrganizationSettings(t *testing.T) {
	t.Parallel()
	a := newAPI(t)

	org := decode[domain.OrganizationSettings](t, a.do(t, "u-solo", http.MethodGet, "/v1/organization/settings", nil))
	require.Equal(t, domain.ScopeBoth, org.AcceptanceScope)

	companies := decode[[]domain.Company](t, a.do(t, "u-solo", http.MethodGet, "/v1/companies", nil))
	require.Len(t, companies, 1)

	org.AcceptanceScope = "everyone"
	require.Equal(t, http.StatusForbidden, a.do(t, "u-legal", http.MethodPut, "/v1/organization/settings", org).Code)

	rec := a.do(t, "u-admin", http.MethodPut, "/v1/organization/settings", org)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decode[consenthttp.ValidationErrorResponse](t, rec).Fields, "acceptanceScope")

	org.AcceptanceScope = domain.ScopeIndividual
	rec = a.do(t, "u-admin", http.MethodPut, "/v1/organization/settings", org)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	org = decode[domain.OrganizationSettings](t, a.do(t, "u-solo", http.MethodGet, "/v1/organization/settings", nil))
	require.Equal(t, domain.ScopeIndividual, org.AcceptanceScope)
}

func TestSystemEndpoints(t *testing.T) {
	t.Parallel()
	a := newAPI(t)

	rec := a.do(t, "", http.MethodGet, "/livez", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decode[consenthttp.HealthResponse](t, rec).Status)

	rec = a.do(t, "", http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[consenthttp.HealthResponse](t, rec)
	require.Equal(t, "ok", health.Checks.Database)
	require.Equal(t, "ok", health.Checks.Keys)

	a.do(t, "u-solo", http.MethodGet, "/v1/policies/terms", nil)
	rec = a.do(t, "", http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `path="GET /v1/policies/{id}"`))
}
