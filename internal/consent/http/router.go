package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
	"github.com/aussiebroadwan/consent/internal/consent/obs"
	"github.com/aussiebroadwan/consent/internal/consent/service"
	"github.com/aussiebroadwan/consent/internal/consent/store"
	"github.com/aussiebroadwan/consent/pkg/httpx"
	"github.com/aussiebroadwan/consent/pkg/jwtx"
	"github.com/aussiebroadwan/consent/pkg/slogx"

	_ "github.com/aussiebroadwan/consent/api/consent" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	metrics      *obs.Metrics

	store            store.Store
	CatalogService   *service.CatalogService
	LedgerService    *service.LedgerService
	DirectoryService *service.DirectoryService
}

func NewRouter(
	keys *jwtx.KeySet,
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	metrics *obs.Metrics,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		metrics:      metrics,
		logger:       logger,
	}

	// slog first so the instrumented handler sees the request the mux
	// stamps with its pattern
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}
	if metrics != nil {
		r.middlewares = append(r.middlewares, metrics.Instrument)
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerPolicies()
	r.registerAcceptances()
	r.registerUsers()
	r.registerOrganization()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Consent Service API
//	@version		0.1.0
//	@description	Policy catalog, acceptance ledger and status resolution for versioned legal documents.
//	@description
//	@description				Callers authenticate with an EdDSA-signed JWT whose subject is a directory user id.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/consent
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// roleOf resolves the caller's role from the directory rather than the token.
func (r *Router) roleOf(req *http.Request) (string, bool) {
	uid, ok := httpx.UserIDFromContext(req.Context())
	if !ok {
		return "", false
	}
	role, ok := r.DirectoryService.Role(req.Context(), uid)
	return string(role), ok
}

func (r *Router) authed(h http.HandlerFunc, limit httpx.RateLimitConfig, roles ...domain.Role) http.Handler {
	mws := []httpx.Middleware{httpx.AuthnMiddleware(r.verifier)}
	if len(roles) > 0 {
		names := make([]string, len(roles))
		for i, role := range roles {
			names[i] = string(role)
		}
		mws = append(mws, httpx.RequireAnyRole(r.roleOf, names...))
	}
	mws = append(mws, httpx.RateLimitByUser(limit))
	return httpx.Chain(h, mws...)
}

func (r *Router) registerPolicies() {
	h := &PolicyHandler{
		CatalogService: r.CatalogService,
		LedgerService:  r.LedgerService,
	}

	r.Mux.Handle("GET /v1/policies", r.authed(h.HandleList, httpx.ReadLimit))
	r.Mux.Handle("GET /v1/policies/{id}", r.authed(h.HandleGet, httpx.ReadLimit))
	r.Mux.Handle("POST /v1/policies/{id}/decline", r.authed(h.HandleDecline, httpx.WriteLimit))

	// catalog changes are for admin and legal
	r.Mux.Handle("POST /v1/policies",
		r.authed(h.HandleCreate, httpx.AdminLimit, domain.RoleAdmin, domain.RoleLegal))
	r.Mux.Handle("POST /v1/policies/{id}/versions",
		r.authed(h.HandlePublish, httpx.AdminLimit, domain.RoleAdmin, domain.RoleLegal))
}

func (r *Router) registerAcceptances() {
	h := &AcceptanceHandler{LedgerService: r.LedgerService}

	r.Mux.Handle("POST /v1/acceptances", r.authed(h.HandleCreate, httpx.WriteLimit))
	r.Mux.Handle("POST /v1/acceptances/{id}/revoke", r.authed(h.HandleRevoke, httpx.WriteLimit))
}

func (r *Router) registerUsers() {
	h := &UserHandler{
		CatalogService:   r.CatalogService,
		LedgerService:    r.LedgerService,
		DirectoryService: r.DirectoryService,
	}

	r.Mux.Handle("GET /v1/users",
		r.authed(h.HandleList, httpx.ReadLimit, domain.RoleAdmin, domain.RoleLegal))
	r.Mux.Handle("GET /v1/users/{id}/acceptances", r.authed(h.HandleAcceptances, httpx.ReadLimit))
	r.Mux.Handle("GET /v1/users/{id}/status", r.authed(h.HandleStatus, httpx.ReadLimit))
	r.Mux.Handle("GET /v1/users/{id}/required-policies", r.authed(h.HandleRequired, httpx.ReadLimit))
	r.Mux.Handle("GET /v1/users/{id}/can-accept-for-company", r.authed(h.HandleCanAccept, httpx.ReadLimit))
}

func (r *Router) registerOrganization() {
	h := &OrganizationHandler{DirectoryService: r.DirectoryService}

	r.Mux.Handle("GET /v1/companies", r.authed(h.HandleCompanies, httpx.ReadLimit))
	r.Mux.Handle("GET /v1/organization/settings", r.authed(h.HandleGetSettings, httpx.ReadLimit))
	r.Mux.Handle("PUT /v1/organization/settings",
		r.authed(h.HandlePutSettings, httpx.AdminLimit, domain.RoleAdmin))
}

func (r *Router) registerSystem() {
	// probes and scrapes are polled often; keep them on the read profile by IP
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.ReadLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys),
			httpx.RateLimitByIP(httpx.ReadLimit),
		),
	)
	if r.metrics != nil {
		r.Mux.Handle("GET /metrics", r.metrics.Handler())
	}
}
