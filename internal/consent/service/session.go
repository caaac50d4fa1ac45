package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
	"github.com/aussiebroadwan/consent/internal/consent/resolver"
	"github.com/aussiebroadwan/consent/pkg/cryptox"
	"github.com/aussiebroadwan/consent/pkg/idx"
)

// Remote is the consent API as seen by a Session.
type Remote interface {
	FetchPolicies(ctx context.Context) ([]domain.PolicyData, error)
	SubmitAcceptance(ctx context.Context, a domain.PolicyAcceptance) error
}

// Result tells how an AcceptPolicy call ended.
type Result string

const (
	// Committed means the acceptance was submitted and appended locally.
	Committed Result = "committed"
	// Vetoed means BeforeAcceptance returned false. Nothing changed.
	Vetoed Result = "vetoed"
	// Discarded means the session was closed while the submission was in
	// flight. The remote may hold the record; the local ledger does not.
	Discarded Result = "discarded"
)

type Outcome struct {
	Result     Result                  `json:"result"`
	Acceptance domain.PolicyAcceptance `json:"acceptance"`
}

type SessionOption func(*Session)

func WithRemote(r Remote) SessionOption {
	return func(s *Session) { s.remote = r }
}

func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

func WithIDSource(src idx.Source) SessionOption {
	return func(s *Session) { s.ids = src }
}

func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithUserAgent sets the user agent stamped on acceptances.
func WithUserAgent(ua string) SessionOption {
	return func(s *Session) { s.userAgent = ua }
}

// Session holds one user's view of the catalog and orchestrates accepting and
// declining documents. It is safe for concurrent use; the lock is never held
// while talking to the remote.
type Session struct {
	cfg       Config
	remote    Remote
	now       func() time.Time
	ids       idx.Source
	logger    *slog.Logger
	userAgent string

	mu        sync.Mutex
	policies  []domain.PolicyData
	users     []domain.User
	companies []domain.Company
	lastErr   error
	inFlight  int
	closed    bool
}

// NewSession builds a session from cfg. For an api data source with a
// getPolicies endpoint the catalog is loaded immediately; a failed load does
// not fail construction but is visible through LastError.
func NewSession(ctx context.Context, cfg Config, opts ...SessionOption) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		cfg:    cfg,
		now:    time.Now,
		ids:    idx.Default(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	local := cfg.DataSource.LocalData
	s.policies = slices.Clone(local.Policies)
	s.users = slices.Clone(local.Users)
	s.companies = slices.Clone(local.Companies)
	if cfg.CurrentCompany != nil {
		s.companies = appendCompany(s.companies, *cfg.CurrentCompany)
	}

	if cfg.DataSource.Type == SourceAPI && cfg.DataSource.APIEndpoints.GetPolicies != "" {
		if err := s.RefreshData(ctx); err != nil {
			s.logger.Warn("initial catalog load failed", slog.Any("error", err))
		}
	}
	return s, nil
}

func appendCompany(list []domain.Company, c domain.Company) []domain.Company {
	for _, existing := range list {
		if existing.ID == c.ID {
			return list
		}
	}
	return append(list, c)
}

// Close ends the session. Submissions still in flight complete remotely but
// their results are discarded.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Session) CurrentUser() domain.User { return s.cfg.CurrentUser }

// CurrentCompany is the company configured for the session, or nil.
func (s *Session) CurrentCompany() *domain.Company { return s.cfg.CurrentCompany }

func (s *Session) Organization() domain.OrganizationSettings { return s.cfg.Organization }

// Policies returns a snapshot of the catalog.
func (s *Session) Policies() []domain.PolicyData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.policies)
}

func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// IsLoading reports whether a fetch or submission is in flight.
func (s *Session) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight > 0
}

// RefreshData reloads the catalog from getPolicies. Local data sources and
// sessions without the endpoint are left as they are.
func (s *Session) RefreshData(ctx context.Context) error {
	endpoint := s.cfg.DataSource.APIEndpoints.GetPolicies
	if s.cfg.DataSource.Type == SourceLocal || endpoint == "" {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.inFlight++
	s.lastErr = nil
	s.mu.Unlock()

	var (
		policies []domain.PolicyData
		err      error
	)
	if s.remote == nil {
		err = ErrNoRemote
	} else {
		policies, err = s.remote.FetchPolicies(ctx)
	}

	s.mu.Lock()
	s.inFlight--
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if err != nil {
		ferr := &FetchError{Endpoint: endpoint, StatusCode: statusOf(err), Err: err}
		s.lastErr = ferr
		s.mu.Unlock()
		s.reportError(ferr, "refreshData")
		return ferr
	}
	s.policies = policies
	s.mu.Unlock()
	return nil
}

// AcceptPolicy records that the current user accepts version of policyID.
// Company attestation must be validated by the caller beforehand.
func (s *Session) AcceptPolicy(
	ctx context.Context,
	policyID, version string,
	typ domain.AcceptanceType,
	info *domain.CompanyInfo,
) (Outcome, error) {
	now := s.now().UTC()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Outcome{}, ErrSessionClosed
	}
	var digest string
	if p, ok := s.findPolicy(policyID); ok {
		if v, ok := p.FindVersion(version); ok {
			digest = versionDigest(v)
		}
	}
	s.mu.Unlock()

	candidate := domain.PolicyAcceptance{
		ID:             s.ids.NewAt(now).String(),
		PolicyID:       policyID,
		Version:        version,
		UserID:         s.cfg.CurrentUser.ID,
		AcceptedAt:     now,
		UserAgent:      s.userAgent,
		AcceptanceType: typ,
		CompanyInfo:    info,
		IsValid:        true,
		ContentDigest:  digest,
	}

	ok, err := s.allow(ctx, candidate)
	if err != nil {
		s.reportError(err, "beforeAcceptance")
		return Outcome{}, err
	}
	if !ok {
		return Outcome{Result: Vetoed, Acceptance: candidate}, nil
	}

	if s.cfg.DataSource.APIEndpoints.SubmitAcceptance != "" {
		if err := s.submit(ctx, candidate); err != nil {
			return Outcome{}, err
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Outcome{Result: Discarded, Acceptance: candidate}, nil
	}
	for i, p := range s.policies {
		if p.ID == policyID {
			next := slices.Clone(s.policies)
			next[i] = p.WithAcceptance(candidate)
			s.policies = next
			break
		}
	}
	s.mu.Unlock()

	s.fire("onAcceptance", func() error {
		if s.cfg.Callbacks.OnAcceptance == nil {
			return nil
		}
		return s.cfg.Callbacks.OnAcceptance(ctx, candidate)
	})
	s.fire("analytics.trackAcceptance", func() error {
		if s.cfg.Integrations.Analytics == nil {
			return nil
		}
		return s.cfg.Integrations.Analytics.TrackAcceptance(ctx, candidate)
	})
	s.fire("audit.logAction", func() error {
		if s.cfg.Integrations.Audit == nil {
			return nil
		}
		return s.cfg.Integrations.Audit.LogAction(ctx, ActionPolicyAccepted, candidate)
	})

	return Outcome{Result: Committed, Acceptance: candidate}, nil
}

func (s *Session) submit(ctx context.Context, a domain.PolicyAcceptance) error {
	s.mu.Lock()
	s.inFlight++
	s.mu.Unlock()

	var err error
	if s.remote == nil {
		err = ErrNoRemote
	} else {
		err = s.remote.SubmitAcceptance(ctx, a)
	}

	s.mu.Lock()
	s.inFlight--
	if err == nil {
		s.mu.Unlock()
		return nil
	}
	serr := &SubmissionError{PolicyID: a.PolicyID, StatusCode: statusOf(err), Err: err}
	s.lastErr = serr
	s.mu.Unlock()

	s.reportError(serr, "acceptPolicy")
	return serr
}

// allow runs BeforeAcceptance, turning a panic into an error.
func (s *Session) allow(ctx context.Context, candidate domain.PolicyAcceptance) (ok bool, err error) {
	hook := s.cfg.Callbacks.BeforeAcceptance
	if hook == nil {
		return true, nil
	}
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("beforeAcceptance panicked: %v", r)
		}
	}()
	return hook(ctx, candidate)
}

// DeclinePolicy notifies the hooks that the current user declined policyID.
// The ledger is not changed.
func (s *Session) DeclinePolicy(ctx context.Context, policyID, reason string) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}

	event := DeclineEvent{
		PolicyID:   policyID,
		UserID:     s.cfg.CurrentUser.ID,
		Reason:     reason,
		DeclinedAt: s.now().UTC(),
	}

	s.fire("onDecline", func() error {
		if s.cfg.Callbacks.OnDecline == nil {
			return nil
		}
		return s.cfg.Callbacks.OnDecline(ctx, policyID, reason)
	})
	s.fire("analytics.trackDecline", func() error {
		if s.cfg.Integrations.Analytics == nil {
			return nil
		}
		return s.cfg.Integrations.Analytics.TrackDecline(ctx, event)
	})
	s.fire("audit.logAction", func() error {
		if s.cfg.Integrations.Audit == nil {
			return nil
		}
		return s.cfg.Integrations.Audit.LogAction(ctx, ActionPolicyDeclined, event)
	})
	return nil
}

// TrackView reports that the current user opened policyID.
func (s *Session) TrackView(ctx context.Context, policyID string) {
	s.mu.Lock()
	var version string
	if p, ok := s.findPolicy(policyID); ok {
		version = p.CurrentVersion
	}
	s.mu.Unlock()

	event := ViewEvent{
		PolicyID: policyID,
		Version:  version,
		UserID:   s.cfg.CurrentUser.ID,
		ViewedAt: s.now().UTC(),
	}
	s.fire("analytics.trackView", func() error {
		if s.cfg.Integrations.Analytics == nil {
			return nil
		}
		return s.cfg.Integrations.Analytics.TrackView(ctx, event)
	})
	s.fire("onUserAction", func() error {
		if s.cfg.Callbacks.OnUserAction != nil {
			s.cfg.Callbacks.OnUserAction(ActionPolicyViewed, event)
		}
		return nil
	})
}

// Status resolves policyID for userID. Unknown documents and users are
// not-required.
func (s *Session) Status(policyID, userID string) domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.findPolicy(policyID)
	if !ok {
		return domain.StatusNotRequired
	}
	u, ok := s.findUser(userID)
	if !ok {
		return domain.StatusNotRequired
	}
	return resolver.ResolveStatus(p, u, s.cfg.Organization, s.now().UTC())
}

// RequiredPolicies lists the documents userID still has to accept.
func (s *Session) RequiredPolicies(userID string) []domain.PolicyData {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.findUser(userID)
	if !ok {
		return []domain.PolicyData{}
	}
	return resolver.RequiredPolicies(s.policies, u, s.cfg.Organization, s.now().UTC())
}

// CanUserAcceptForCompany reports whether userID may bind companyID. An
// empty companyID means the user's own company.
func (s *Session) CanUserAcceptForCompany(userID, companyID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.findUser(userID)
	if !ok {
		return false
	}
	if companyID == "" {
		companyID = u.CompanyID
	}
	for _, c := range s.companies {
		if c.ID == companyID {
			return resolver.CanAcceptForCompany(u, c, s.cfg.Organization)
		}
	}
	return false
}

// UserAcceptances returns the valid acceptances of userID across the catalog.
func (s *Session) UserAcceptances(userID string) []domain.PolicyAcceptance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return resolver.UserAcceptances(s.policies, userID)
}

func (s *Session) findPolicy(id string) (domain.PolicyData, bool) {
	for _, p := range s.policies {
		if p.ID == id {
			return p, true
		}
	}
	return domain.PolicyData{}, false
}

func (s *Session) findUser(id string) (domain.User, bool) {
	if id == s.cfg.CurrentUser.ID {
		return s.cfg.CurrentUser, true
	}
	for _, u := range s.users {
		if u.ID == id {
			return u, true
		}
	}
	return domain.User{}, false
}

func (s *Session) reportError(err error, operation string) {
	s.fire("onError", func() error {
		if s.cfg.Callbacks.OnError != nil {
			s.cfg.Callbacks.OnError(err, operation)
		}
		return nil
	})
}

// fire runs one hook. Errors and panics are logged and swallowed so one
// failing integration never blocks the next.
func (s *Session) fire(hook string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("hook panicked", slog.String("hook", hook), slog.Any("panic", r))
		}
	}()
	if err := fn(); err != nil {
		s.logger.Warn("hook failed", slog.String("hook", hook), slog.Any("error", err))
	}
}

func versionDigest(v domain.PolicyVersion) string {
	if v.ContentDigest != "" {
		return v.ContentDigest
	}
	return cryptox.ContentDigest(v.Content)
}
