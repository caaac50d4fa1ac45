package service_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
	"github.com/aussiebroadwan/consent/internal/consent/service"
	"github.com/aussiebroadwan/consent/pkg/cryptox"
	"github.com/aussiebroadwan/consent/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func soloUser() domain.User {
	return domain.NewUser("u-solo", "solo@example.test", "Sol Solo", domain.RoleUser, "", false, now)
}

// localConfig is an individual-only session over terms and privacy with every
// hook wired to rec.
func localConfig(rec *recorder) service.Config {
	cfg := service.IndividualOnlyConfig(soloUser())
	cfg.DataSource.LocalData.Policies = []domain.PolicyData{termsPolicy(), privacyPolicy()}
	cfg.Integrations = service.Integrations{Analytics: rec, Notifications: rec, Audit: rec}
	cfg.Callbacks = service.Callbacks{
		OnAcceptance: func(context.Context, domain.PolicyAcceptance) error {
			rec.record("onAcceptance")
			return nil
		},
		OnDecline: func(context.Context, string, string) error {
			rec.record("onDecline")
			return nil
		},
		OnError: func(_ error, operation string) {
			rec.record("onError:" + operation)
		},
		OnUserAction: func(action string, _ any) {
			rec.record("onUserAction:" + action)
		},
	}
	return cfg
}

func newSession(t *testing.T, cfg service.Config, opts ...service.SessionOption) *service.Session {
	t.Helper()
	opts = append([]service.SessionOption{
		service.WithClock(clock(now)),
		service.WithLogger(slogx.Discard()),
	}, opts...)
	s, err := service.NewSession(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestSessionAcceptPolicy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec := &recorder{}
	s := newSession(t, localConfig(rec), service.WithUserAgent("consentctl/test"))

	require.Equal(t, domain.StatusPending, s.Status("terms", "u-solo"))
	before := s.Policies()

	out, err := s.AcceptPolicy(ctx, "terms", "2.1", domain.AcceptanceIndividual, nil)
	require.NoError(t, err)
	require.Equal(t, service.Committed, out.Result)

	a := out.Acceptance
	require.NotEmpty(t, a.ID)
	require.Equal(t, "u-solo", a.UserID)
	require.Equal(t, now, a.AcceptedAt)
	require.True(t, a.IsValid)
	require.Equal(t, "consentctl/test", a.UserAgent)
	require.Equal(t, cryptox.ContentDigest("Terms 2.1"), a.ContentDigest)

	t.Run("ledger updated by value", func(t *testing.T) {
		require.Equal(t, domain.StatusAccepted, s.Status("terms", "u-solo"))
		require.Empty(t, before[0].UserAcceptances, "earlier snapshot must not change")

		after := s.Policies()
		require.Len(t, after[0].UserAcceptances, 1)
		require.Empty(t, after[1].UserAcceptances)
	})

	t.Run("hooks fire in order", func(t *testing.T) {
		require.Equal(t, []string{"onAcceptance", "analytics", "audit"}, rec.snapshot())
		require.Equal(t, []string{service.ActionPolicyAccepted}, rec.actions)
	})

	t.Run("aggregates", func(t *testing.T) {
		required := s.RequiredPolicies("u-solo")
		require.Len(t, required, 1)
		require.Equal(t, "privacy", required[0].ID)

		history := s.UserAcceptances("u-solo")
		require.Len(t, history, 1)
		require.Equal(t, a.ID, history[0].ID)
	})
}

func TestSessionAcceptAppendsToExistingLedger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	earlier := domain.PolicyAcceptance{
		ID: "acc-old", PolicyID: "terms", Version: "2.0", UserID: "u-solo",
		AcceptedAt: now.AddDate(0, -3, 0), AcceptanceType: domain.AcceptanceIndividual, IsValid: true,
	}
	other := domain.PolicyAcceptance{
		ID: "acc-other", PolicyID: "terms", Version: "2.1", UserID: "u-other",
		AcceptedAt: now.AddDate(0, 0, -2), AcceptanceType: domain.AcceptanceIndividual, IsValid: true,
	}
	revoked, err := other.Revoke("u-admin", "signed in error", now.AddDate(0, 0, -1))
	require.NoError(t, err)
	prior := []domain.PolicyAcceptance{earlier, revoked}

	cfg := localConfig(&recorder{})
	terms := termsPolicy()
	terms.UserAcceptances = prior
	cfg.DataSource.LocalData.Policies = []domain.PolicyData{terms, privacyPolicy()}
	s := newSession(t, cfg)

	out, err := s.AcceptPolicy(ctx, "terms", "2.1", domain.AcceptanceIndividual, nil)
	require.NoError(t, err)
	require.Equal(t, service.Committed, out.Result)

	ledger := s.Policies()[0].UserAcceptances
	require.Len(t, ledger, len(prior)+1)
	require.Equal(t, prior, ledger[:len(prior)])
	require.Equal(t, out.Acceptance.ID, ledger[len(prior)].ID)
	require.True(t, ledger[len(prior)].IsValid)
	require.Empty(t, s.Policies()[1].UserAcceptances)
}

func TestSessionUnknownLookups(t *testing.T) {
	t.Parallel()
	s := newSession(t, localConfig(&recorder{}))

	require.Equal(t, domain.StatusNotRequired, s.Status("missing", "u-solo"))
	require.Equal(t, domain.StatusNotRequired, s.Status("terms", "nobody"))
	require.Empty(t, s.RequiredPolicies("nobody"))
	require.False(t, s.CanUserAcceptForCompany("nobody", ""))
}

func TestSessionVeto(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec := &recorder{}
	remote := &fakeRemote{}

	cfg := localConfig(rec)
	cfg.DataSource.APIEndpoints.SubmitAcceptance = "https://consent.test/v1/acceptances"
	var seen domain.PolicyAcceptance
	cfg.Callbacks.BeforeAcceptance = func(_ context.Context, c domain.PolicyAcceptance) (bool, error) {
		seen = c
		return false, nil
	}
	s := newSession(t, cfg, service.WithRemote(remote))

	out, err := s.AcceptPolicy(ctx, "terms", "2.1", domain.AcceptanceIndividual, nil)
	require.NoError(t, err)
	require.Equal(t, service.Vetoed, out.Result)
	require.Equal(t, "terms", seen.PolicyID)

	require.Equal(t, domain.StatusPending, s.Status("terms", "u-solo"))
	require.Zero(t, remote.submissions())
	require.Empty(t, rec.snapshot(), "a veto has no side effects")
	require.NoError(t, s.LastError())
}

func TestSessionBeforeAcceptanceFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("error", func(t *testing.T) {
		rec := &recorder{}
		cfg := localConfig(rec)
		cfg.Callbacks.BeforeAcceptance = func(context.Context, domain.PolicyAcceptance) (bool, error) {
			return true, errBoom
		}
		s := newSession(t, cfg)

		_, err := s.AcceptPolicy(ctx, "terms", "2.1", domain.AcceptanceIndividual, nil)
		require.ErrorIs(t, err, errBoom)
		require.Equal(t, []string{"onError:beforeAcceptance"}, rec.snapshot())
		require.Equal(t, domain.StatusPending, s.Status("terms", "u-solo"))
	})

	t.Run("panic", func(t *testing.T) {
		rec := &recorder{}
		cfg := localConfig(rec)
		cfg.Callbacks.BeforeAcceptance = func(context.Context, domain.PolicyAcceptance) (bool, error) {
			panic("hook bug")
		}
		s := newSession(t, cfg)

		_, err := s.AcceptPolicy(ctx, "terms", "2.1", domain.AcceptanceIndividual, nil)
		require.ErrorContains(t, err, "hook bug")
		require.Equal(t, domain.StatusPending, s.Status("terms", "u-solo"))
	})
}

func TestSessionSubmissionFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec := &recorder{}
	remote := &fakeRemote{submitErr: statusErr{code: 503}}

	cfg := localConfig(rec)
	cfg.DataSource.APIEndpoints.SubmitAcceptance = "https://consent.test/v1/acceptances"
	s := newSession(t, cfg, service.WithRemote(remote))

	out, err := s.AcceptPolicy(ctx, "terms", "2.1", domain.AcceptanceIndividual, nil)
	require.Error(t, err)
	require.Empty(t, out.Result)

	var serr *service.SubmissionError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, 503, serr.StatusCode)
	require.Equal(t, "terms", serr.PolicyID)

	require.ErrorAs(t, s.LastError(), &serr)
	require.Equal(t, []string{"onError:acceptPolicy"}, rec.snapshot())
	require.Equal(t, domain.StatusPending, s.Status("terms", "u-solo"))
	require.Empty(t, s.Policies()[0].UserAcceptances)
	require.False(t, s.IsLoading())
}

func TestSessionSubmitsBeforeCommitting(t *testing.T) {
	t.Parallel()
	remote := &fakeRemote{}
	cfg := localConfig(&recorder{})
	cfg.DataSource.APIEndpoints.SubmitAcceptance = "https://consent.test/v1/acceptances"
	s := newSession(t, cfg, service.WithRemote(remote))

	out, err := s.AcceptPolicy(context.Background(), "terms", "2.1", domain.AcceptanceIndividual, nil)
	require.NoError(t, err)
	require.Equal(t, service.Committed, out.Result)
	require.Equal(t, 1, remote.submissions())
	require.Equal(t, out.Acceptance.ID, remote.submitted[0].ID)
}

func TestSessionSwallowsIntegrationFailures(t *testing.T) {
	t.Parallel()
	rec := &recorder{analyticsPanic: true, auditErr: errBoom}
	s := newSession(t, localConfig(rec))

	out, err := s.AcceptPolicy(context.Background(), "terms", "2.1", domain.AcceptanceIndividual, nil)
	require.NoError(t, err)
	require.Equal(t, service.Committed, out.Result)
	require.Equal(t, []string{"onAcceptance", "audit"}, rec.snapshot())
	require.Equal(t, domain.StatusAccepted, s.Status("terms", "u-solo"))
}

func TestSessionCloseDiscardsInFlight(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	remote := &fakeRemote{started: make(chan struct{}), gate: make(chan struct{})}
	cfg := localConfig(rec)
	cfg.DataSource.APIEndpoints.SubmitAcceptance = "https://consent.test/v1/acceptances"
	s := newSession(t, cfg, service.WithRemote(remote))

	type result struct {
		out service.Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := s.AcceptPolicy(context.Background(), "terms", "2.1", domain.AcceptanceIndividual, nil)
		done <- result{out, err}
	}()

	<-remote.started
	require.True(t, s.IsLoading())
	s.Close()
	close(remote.gate)

	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.Equal(t, service.Discarded, r.out.Result)
	case <-time.After(5 * time.Second):
		t.Fatal("accept did not return")
	}

	require.Empty(t, s.Policies()[0].UserAcceptances)
	require.Empty(t, rec.snapshot())

	_, err := s.AcceptPolicy(context.Background(), "terms", "2.1", domain.AcceptanceIndividual, nil)
	require.ErrorIs(t, err, service.ErrSessionClosed)
}

func TestSessionDeclineAndView(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec := &recorder{}
	s := newSession(t, localConfig(rec))

	require.NoError(t, s.DeclinePolicy(ctx, "terms", "needs legal review"))
	require.Equal(t, []string{"onDecline", "analytics", "audit"}, rec.snapshot())
	require.Equal(t, service.DeclineEvent{
		PolicyID:   "terms",
		UserID:     "u-solo",
		Reason:     "needs legal review",
		DeclinedAt: now,
	}, rec.declines[0])
	require.Equal(t, []string{service.ActionPolicyDeclined}, rec.actions)
	require.Equal(t, domain.StatusPending, s.Status("terms", "u-solo"))

	s.TrackView(ctx, "terms")
	require.Len(t, rec.views, 1)
	require.Equal(t, "2.1", rec.views[0].Version)
	require.Contains(t, rec.snapshot(), "onUserAction:"+service.ActionPolicyViewed)
}

func TestSessionRefreshData(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	apiConfig := func(rec *recorder) service.Config {
		cfg := localConfig(rec)
		cfg.DataSource.Type = service.SourceAPI
		cfg.DataSource.LocalData.Policies = nil
		cfg.DataSource.APIEndpoints.GetPolicies = "https://consent.test/v1/policies"
		return cfg
	}

	t.Run("initial load", func(t *testing.T) {
		remote := &fakeRemote{policies: []domain.PolicyData{termsPolicy()}}
		s := newSession(t, apiConfig(&recorder{}), service.WithRemote(remote))
		require.Len(t, s.Policies(), 1)
		require.NoError(t, s.LastError())
		require.False(t, s.IsLoading())
	})

	t.Run("fetch failure", func(t *testing.T) {
		rec := &recorder{}
		remote := &fakeRemote{fetchErr: statusErr{code: 500}}
		s := newSession(t, apiConfig(rec), service.WithRemote(remote))

		var ferr *service.FetchError
		require.ErrorAs(t, s.LastError(), &ferr)
		require.Equal(t, 500, ferr.StatusCode)
		require.Equal(t, "https://consent.test/v1/policies", ferr.Endpoint)
		require.Equal(t, []string{"onError:refreshData"}, rec.snapshot())
		require.Empty(t, s.Policies())

		remote.mu.Lock()
		remote.fetchErr = nil
		remote.policies = []domain.PolicyData{termsPolicy(), privacyPolicy()}
		remote.mu.Unlock()

		require.NoError(t, s.RefreshData(ctx))
		require.NoError(t, s.LastError())
		require.Len(t, s.Policies(), 2)
	})

	t.Run("local source is a no-op", func(t *testing.T) {
		remote := &fakeRemote{fetchErr: errBoom}
		cfg := localConfig(&recorder{})
		cfg.DataSource.APIEndpoints.GetPolicies = "https://consent.test/v1/policies"
		s := newSession(t, cfg, service.WithRemote(remote))

		require.NoError(t, s.RefreshData(ctx))
		require.Len(t, s.Policies(), 2)
	})
}

func TestSessionCompanyPermissions(t *testing.T) {
	t.Parallel()
	company := acme()
	rep := domain.NewUser("u-rep", "rep@acme.test", "Rae Rep", domain.RoleUser, "acme", false, now)
	member := domain.NewUser("u-member", "member@acme.test", "Max Member", domain.RoleUser, "acme", false, now)

	cfg := service.CompanyOnlyConfig(rep, company)
	cfg.DataSource.LocalData.Users = append(cfg.DataSource.LocalData.Users, member)
	cfg.DataSource.LocalData.Policies = []domain.PolicyData{termsPolicy()}
	s := newSession(t, cfg)

	require.True(t, cfg.Behavior.BlockAccessUntilAccepted)
	require.True(t, s.CanUserAcceptForCompany("u-rep", ""))
	require.True(t, s.CanUserAcceptForCompany("u-rep", "acme"))
	require.False(t, s.CanUserAcceptForCompany("u-member", ""))
	require.False(t, s.CanUserAcceptForCompany("u-rep", "globex"))

	info := &domain.CompanyInfo{
		CompanyName:        "Acme Corp",
		AcceptorName:       "Rae Rep",
		AcceptorTitle:      "Director",
		AcceptorEmail:      "rep@acme.test",
		AuthorityConfirmed: true,
	}
	out, err := s.AcceptPolicy(context.Background(), "terms", "2.1", domain.AcceptanceCompany, info)
	require.NoError(t, err)
	require.Equal(t, service.Committed, out.Result)

	// members inherit the company acceptance
	require.Equal(t, domain.StatusAccepted, s.Status("terms", "u-member"))
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	path := filepath.Join(dir, "consent.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"dataSource": {
			"type": "api",
			"apiEndpoints": {
				"getPolicies": "https://consent.test/v1/policies",
				"submitAcceptance": "https://consent.test/v1/acceptances"
			}
		},
		"organization": {"allowIndividualAcceptance": true, "whoCanAcceptForCompany": "any-user"},
		"currentUser": {"id": "u-solo", "email": "solo@example.test", "name": "Sol Solo", "role": "user", "isActive": true},
		"behavior": {"allowLaterReview": true, "sessionTimeout": 30}
	}`), 0o600))

	cfg, err := service.LoadConfigFile(path)
	require.NoError(t, err)
	require.Equal(t, service.SourceAPI, cfg.DataSource.Type)
	require.Equal(t, "https://consent.test/v1/acceptances", cfg.DataSource.APIEndpoints.SubmitAcceptance)
	require.Equal(t, "u-solo", cfg.CurrentUser.ID)
	require.Equal(t, 30, cfg.Behavior.SessionTimeoutMinutes)
	require.Equal(t, domain.AnyUser, cfg.Organization.WhoCanAcceptForCompany)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"dataSource": {"type": "ftp"}, "currentUser": {"id": "x"}}`), 0o600))
	_, err = service.LoadConfigFile(bad)
	require.ErrorContains(t, err, "unknown dataSource.type")

	_, err = service.LoadConfigFile(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}
