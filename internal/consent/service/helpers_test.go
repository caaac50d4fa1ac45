package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
	"github.com/aussiebroadwan/consent/internal/consent/service"
	"github.com/aussiebroadwan/consent/internal/consent/store"
	"github.com/aussiebroadwan/consent/internal/consent/store/drivers/sqlite"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

func clock(t time.Time) func() time.Time { return func() time.Time { return t } }

func version(v, date string) domain.PolicyVersion {
	d, err := domain.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return domain.PolicyVersion{
		ID:        "v-" + v,
		Version:   v,
		Date:      d,
		Content:   "Terms " + v,
		IsActive:  true,
		CreatedBy: "u-legal",
	}
}

func withDeadline(v domain.PolicyVersion, deadline string, graceDays int) domain.PolicyVersion {
	d, err := domain.ParseDate(deadline)
	if err != nil {
		panic(err)
	}
	v.Deadline = &d
	v.GracePeriodDays = &graceDays
	return v
}

func termsPolicy() domain.PolicyData {
	p := domain.NewPolicyData("terms", domain.PolicyTerms, "Terms of Service", []domain.PolicyVersion{
		version("2.0", "2024-06-01"),
		withDeadline(version("2.1", "2024-12-01"), "2025-01-15T23:59:59Z", 3),
	}, nil, nil, now.Add(-48*time.Hour))
	return p
}

func privacyPolicy() domain.PolicyData {
	return domain.NewPolicyData("privacy", domain.PolicyPrivacy, "Privacy Policy", []domain.PolicyVersion{
		version("1.0", "2024-03-01"),
	}, nil, nil, now.Add(-24*time.Hour))
}

func acme() domain.Company {
	c := domain.NewCompany("acme", "Acme Corp", []string{"u-rep"}, nil, now)
	c.Settings.NotificationEmails = []string{"legal@acme.test"}
	return c
}

func fixtureUsers() []domain.User {
	return []domain.User{
		domain.NewUser("u-admin", "admin@example.test", "Ada Admin", domain.RoleAdmin, "", false, now),
		domain.NewUser("u-legal", "legal@example.test", "Lee Legal", domain.RoleLegal, "", false, now),
		domain.NewUser("u-rep", "rep@acme.test", "Rae Rep", domain.RoleUser, "acme", false, now),
		domain.NewUser("u-member", "member@acme.test", "Max Member", domain.RoleUser, "acme", false, now),
		domain.NewUser("u-solo", "solo@example.test", "Sol Solo", domain.RoleUser, "", false, now),
	}
}

func fixtureSeed(org domain.OrganizationSettings) service.Seed {
	return service.Seed{
		Organization: &org,
		Companies:    []domain.Company{acme()},
		Users:        fixtureUsers(),
		Policies:     []domain.PolicyData{termsPolicy(), privacyPolicy()},
	}
}

func newStore(t *testing.T) store.Store {
	t.Helper()
	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type env struct {
	store     store.Store
	rec       *recorder
	catalog   *service.CatalogService
	ledger    *service.LedgerService
	directory *service.DirectoryService
}

// newEnv seeds a fresh store with the fixture directory and catalog under
// org.
func newEnv(t *testing.T, org domain.OrganizationSettings) env {
	t.Helper()
	st := newStore(t)
	boot := &service.BootstrapService{Store: st, Now: clock(now)}
	require.NoError(t, boot.Bootstrap(context.Background(), fixtureSeed(org)))

	rec := &recorder{}
	integrations := service.Integrations{Analytics: rec, Notifications: rec, Audit: rec}
	return env{
		store:     st,
		rec:       rec,
		catalog:   &service.CatalogService{Store: st, Integrations: integrations, Now: clock(now)},
		ledger:    &service.LedgerService{Store: st, Integrations: integrations, Now: clock(now)},
		directory: &service.DirectoryService{Store: st, Integrations: integrations, Now: clock(now)},
	}
}

type email struct {
	To      []string
	Subject string
}

// recorder implements every integration and remembers what it saw, in call
// order.
type recorder struct {
	mu sync.Mutex

	calls    []string
	accepted []domain.PolicyAcceptance
	declines []service.DeclineEvent
	views    []service.ViewEvent
	actions  []string
	emails   []email
	slack    []string

	analyticsErr   error
	analyticsPanic bool
	auditErr       error
}

func (r *recorder) TrackAcceptance(_ context.Context, a domain.PolicyAcceptance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.analyticsPanic {
		panic("analytics down")
	}
	r.calls = append(r.calls, "analytics")
	r.accepted = append(r.accepted, a)
	return r.analyticsErr
}

func (r *recorder) TrackDecline(_ context.Context, e service.DeclineEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "analytics")
	r.declines = append(r.declines, e)
	return r.analyticsErr
}

func (r *recorder) TrackView(_ context.Context, e service.ViewEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "analytics")
	r.views = append(r.views, e)
	return nil
}

func (r *recorder) LogAction(_ context.Context, action string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "audit")
	r.actions = append(r.actions, action)
	return r.auditErr
}

func (r *recorder) SendEmail(_ context.Context, to []string, subject, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emails = append(r.emails, email{To: to, Subject: subject})
	return nil
}

func (r *recorder) SendSlack(_ context.Context, channel, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slack = append(r.slack, channel+": "+message)
	return nil
}

func (r *recorder) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// statusErr mimics a transport error carrying an HTTP status.
type statusErr struct{ code int }

func (e statusErr) Error() string   { return "remote rejected request" }
func (e statusErr) HTTPStatus() int { return e.code }

// fakeRemote is a scripted Remote. When gate is set, SubmitAcceptance
// signals started and blocks until gate is closed.
type fakeRemote struct {
	mu        sync.Mutex
	policies  []domain.PolicyData
	fetchErr  error
	submitErr error
	submitted []domain.PolicyAcceptance

	started chan struct{}
	gate    chan struct{}
}

func (f *fakeRemote) FetchPolicies(context.Context) ([]domain.PolicyData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.policies, nil
}

func (f *fakeRemote) SubmitAcceptance(ctx context.Context, a domain.PolicyAcceptance) error {
	if f.gate != nil {
		close(f.started)
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted = append(f.submitted, a)
	return nil
}

func (f *fakeRemote) submissions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

var errBoom = errors.New("boom")
