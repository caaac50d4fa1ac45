package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
	"github.com/aussiebroadwan/consent/internal/consent/store"
	"github.com/aussiebroadwan/consent/internal/consent/store/drivers/sqlite"
	"github.com/aussiebroadwan/consent/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) store.Store {
	t.Helper()
	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func version(v string, date time.Time) domain.PolicyVersion {
	content := "Terms " + v
	return domain.PolicyVersion{
		ID:            "terms-" + v,
		Version:       v,
		Date:          domain.NewDate(date),
		Content:       content,
		ContentDigest: cryptox.ContentDigest(content),
		IsActive:      true,
		CreatedBy:     "legal-team",
	}
}

func seedPolicy(t *testing.T, s store.Store) domain.PolicyData {
	t.Helper()
	v1 := version("1.0", now.AddDate(0, -6, 0))
	v2 := version("2.0", now.AddDate(0, 0, -1))
	v2.Changes = []string{"New arbitration clause"}
	v2.IsBreaking = true
	v2.Deadline = domain.DatePtr(now.AddDate(0, 0, 10))
	grace := 7
	v2.GracePeriodDays = &grace
	v2.Metadata = &domain.VersionMetadata{WordCount: 1200, ReadingTimeMinutes: 6, Language: "en", Jurisdiction: "AU"}

	p := domain.NewPolicyData("terms-001", domain.PolicyTerms, "Terms of Service",
		[]domain.PolicyVersion{v1, v2}, nil, nil, now)
	require.NoError(t, s.Policies().CreatePolicy(context.Background(), p))
	return p
}

func TestMigrationsAreIdempotent(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Ping(context.Background()))
}

func TestUsersAndCompanies(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	empty, err := s.Users().IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)

	acme := domain.NewCompany("acme", "Acme Corp", []string{"u-admin"}, nil, now)
	acme.Settings.NotificationEmails = []string{"legal@acme.test"}
	require.NoError(t, s.Companies().CreateCompany(ctx, acme))
	require.ErrorIs(t, s.Companies().CreateCompany(ctx, acme), store.ErrAlreadyExists)

	admin := domain.NewUser("u-admin", "admin@acme.test", "Ada", domain.RoleCompanyAdmin, "acme", false, now)
	solo := domain.NewUser("u-solo", "solo@example.test", "Sol", domain.RoleUser, "", false, now.Add(time.Second))
	require.NoError(t, s.Users().CreateUser(ctx, admin))
	require.NoError(t, s.Users().CreateUser(ctx, solo))

	t.Run("duplicate email", func(t *testing.T) {
		dup := domain.NewUser("u-other", "admin@acme.test", "Dup", domain.RoleUser, "", false, now)
		require.ErrorIs(t, s.Users().CreateUser(ctx, dup), store.ErrAlreadyExists)
	})

	t.Run("unknown company is rejected", func(t *testing.T) {
		bad := domain.NewUser("u-bad", "bad@x.test", "Bad", domain.RoleUser, "nope", false, now)
		require.Error(t, s.Users().CreateUser(ctx, bad))
	})

	t.Run("get", func(t *testing.T) {
		got, err := s.Users().GetUser(ctx, "u-admin")
		require.NoError(t, err)
		require.Equal(t, "acme", got.CompanyID)
		require.Equal(t, domain.RoleCompanyAdmin, got.Role)
		require.True(t, got.IsActive)
		require.True(t, got.CreatedAt.Equal(now))
		require.Nil(t, got.LastLoginAt)

		_, err = s.Users().GetUser(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("list", func(t *testing.T) {
		all, err := s.Users().ListUsers(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)

		members, err := s.Users().ListUsersByCompany(ctx, "acme")
		require.NoError(t, err)
		require.Len(t, members, 1)
		require.Equal(t, "u-admin", members[0].ID)
	})

	t.Run("touch last login", func(t *testing.T) {
		require.NoError(t, s.Users().TouchLastLogin(ctx, "u-solo", now.Add(time.Hour)))
		got, err := s.Users().GetUser(ctx, "u-solo")
		require.NoError(t, err)
		require.NotNil(t, got.LastLoginAt)
		require.True(t, got.LastLoginAt.Equal(now.Add(time.Hour)))

		require.ErrorIs(t, s.Users().TouchLastLogin(ctx, "missing", now), store.ErrNotFound)
	})

	t.Run("company round trip", func(t *testing.T) {
		got, err := s.Companies().GetCompany(ctx, "acme")
		require.NoError(t, err)
		require.Equal(t, []string{"u-admin"}, got.AdminUsers)
		require.Equal(t, []string{"legal@acme.test"}, got.Settings.NotificationEmails)
		require.True(t, got.RequiresCompanyAcceptance)
		require.False(t, got.AllowIndividualAcceptance)
		require.True(t, got.Settings.RequireAuthorityConfirmation)

		list, err := s.Companies().ListCompanies(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
	})
}

func TestPolicies(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seedPolicy(t, s)

	got, err := s.Policies().GetPolicy(ctx, "terms-001")
	require.NoError(t, err)
	require.Equal(t, "2.0", got.CurrentVersion)
	require.Len(t, got.Versions, 2)
	require.Equal(t, "2.0", got.Versions[0].Version)
	require.Empty(t, got.UserAcceptances)

	cur := got.Versions[0]
	require.True(t, cur.IsBreaking)
	require.Equal(t, []string{"New arbitration clause"}, cur.Changes)
	require.True(t, cur.HasDeadline())
	require.Equal(t, 7, *cur.GracePeriodDays)
	require.Equal(t, "AU", cur.Metadata.Jurisdiction)
	require.True(t, cryptox.VerifyContentDigest(cur.Content, cur.ContentDigest))

	old := got.Versions[1]
	require.Nil(t, old.Changes)
	require.Nil(t, old.Deadline)
	require.Nil(t, old.GracePeriodDays)
	require.Nil(t, old.Metadata)

	t.Run("add version moves current", func(t *testing.T) {
		v3 := version("3.0", now)
		require.NoError(t, s.Policies().AddVersion(ctx, "terms-001", v3, now))

		p, err := s.Policies().GetPolicy(ctx, "terms-001")
		require.NoError(t, err)
		require.Equal(t, "3.0", p.CurrentVersion)
		require.Len(t, p.Versions, 3)

		require.ErrorIs(t, s.Policies().AddVersion(ctx, "terms-001", v3, now), store.ErrAlreadyExists)
	})

	t.Run("list", func(t *testing.T) {
		list, err := s.Policies().ListPolicies(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Len(t, list[0].Versions, 3)

		empty, err := s.Policies().IsEmpty(ctx)
		require.NoError(t, err)
		require.False(t, empty)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := s.Policies().GetPolicy(ctx, "nope")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestAcceptances(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seedPolicy(t, s)

	individual := domain.PolicyAcceptance{
		ID:             "acc-1",
		PolicyID:       "terms-001",
		Version:        "2.0",
		UserID:         "u1",
		AcceptedAt:     now,
		AcceptanceType: domain.AcceptanceIndividual,
		UserAgent:      "Mozilla/5.0",
		IsValid:        true,
		Metadata:       &domain.AcceptanceMetadata{SessionID: "sess-1", DeviceType: "desktop"},
		ContentDigest:  cryptox.ContentDigest("Terms 2.0"),
	}
	company := domain.PolicyAcceptance{
		ID:             "acc-2",
		PolicyID:       "terms-001",
		Version:        "2.0",
		UserID:         "u2",
		AcceptedAt:     now.Add(time.Minute),
		AcceptanceType: domain.AcceptanceCompany,
		CompanyInfo: &domain.CompanyInfo{
			CompanyName:     "Acme Corp",
			AcceptorName:    "Jane Doe",
			AcceptorTitle:   "CTO",
			AcceptorEmail:   "jane@acme.test",
			AcceptorUserID:  "u2",
			SignatureMethod: domain.SignatureTyped,
		},
		IsValid: true,
	}
	require.NoError(t, s.Acceptances().CreateAcceptance(ctx, individual))
	require.NoError(t, s.Acceptances().CreateAcceptance(ctx, company))
	require.ErrorIs(t, s.Acceptances().CreateAcceptance(ctx, individual), store.ErrAlreadyExists)

	t.Run("unknown policy is rejected", func(t *testing.T) {
		stray := individual
		stray.ID = "acc-stray"
		stray.PolicyID = "nope"
		require.Error(t, s.Acceptances().CreateAcceptance(ctx, stray))
	})

	t.Run("round trip", func(t *testing.T) {
		got, err := s.Acceptances().GetAcceptance(ctx, "acc-2")
		require.NoError(t, err)
		require.Equal(t, domain.AcceptanceCompany, got.AcceptanceType)
		require.NotNil(t, got.CompanyInfo)
		require.Equal(t, "CTO", got.CompanyInfo.AcceptorTitle)
		require.Equal(t, domain.SignatureTyped, got.CompanyInfo.SignatureMethod)
		require.Nil(t, got.Metadata)
		require.True(t, got.BindsCompany())

		got, err = s.Acceptances().GetAcceptance(ctx, "acc-1")
		require.NoError(t, err)
		require.Nil(t, got.CompanyInfo)
		require.Equal(t, "sess-1", got.Metadata.SessionID)
		require.Equal(t, individual.ContentDigest, got.ContentDigest)
		require.True(t, got.AcceptedAt.Equal(now))
	})

	t.Run("list by policy and user", func(t *testing.T) {
		ledger, err := s.Acceptances().ListByPolicy(ctx, "terms-001")
		require.NoError(t, err)
		require.Len(t, ledger, 2)
		require.Equal(t, "acc-1", ledger[0].ID)

		mine, err := s.Acceptances().ListByUser(ctx, "u2")
		require.NoError(t, err)
		require.Len(t, mine, 1)
		require.Equal(t, "acc-2", mine[0].ID)
	})

	t.Run("revoke once", func(t *testing.T) {
		require.NoError(t, s.Acceptances().Revoke(ctx, "acc-1", "legal", "signed in error", now.Add(time.Hour)))

		got, err := s.Acceptances().GetAcceptance(ctx, "acc-1")
		require.NoError(t, err)
		require.False(t, got.IsValid)
		require.Equal(t, "legal", got.RevokedBy)
		require.Equal(t, "signed in error", got.RevokedReason)
		require.True(t, got.RevokedAt.Equal(now.Add(time.Hour)))

		require.ErrorIs(t, s.Acceptances().Revoke(ctx, "acc-1", "legal", "again", now), store.ErrNotFound)
		require.ErrorIs(t, s.Acceptances().Revoke(ctx, "missing", "legal", "", now), store.ErrNotFound)
	})
}

func TestSettingsAndReminders(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.Settings().GetOrganizationSettings(ctx)
	require.ErrorIs(t, err, store.ErrNotFound)

	acme := domain.NewCompany("acme", "Acme", []string{"u-admin"}, nil, now)
	require.NoError(t, s.Settings().PutOrganizationSettings(ctx, domain.HybridSettings(acme), now))
	require.NoError(t, s.Settings().PutOrganizationSettings(ctx, domain.CompanyOnlySettings(acme), now))

	got, err := s.Settings().GetOrganizationSettings(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.CompanyOnlySettings(acme), got)

	key := store.ReminderKey{PolicyID: "terms-001", Version: "2.0", UserID: "u1", Kind: "reminder", Day: "2025-03-01"}
	fresh, err := s.Reminders().RecordReminder(ctx, key, now)
	require.NoError(t, err)
	require.True(t, fresh)

	fresh, err = s.Reminders().RecordReminder(ctx, key, now.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, fresh)

	key.Day = "2025-03-02"
	fresh, err = s.Reminders().RecordReminder(ctx, key, now.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.True(t, fresh)
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	err := s.WithTx(ctx, func(tx store.Tx) error {
		u := domain.NewUser("u1", "u1@x.test", "U1", domain.RoleUser, "", false, now)
		if err := tx.Users().CreateUser(ctx, u); err != nil {
			return err
		}
		return tx.Users().CreateUser(ctx, u)
	})
	require.ErrorIs(t, err, store.ErrAlreadyExists)

	empty, err := s.Users().IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		return tx.Users().CreateUser(ctx, domain.NewUser("u1", "u1@x.test", "U1", domain.RoleUser, "", false, now))
	}))
	empty, err = s.Users().IsEmpty(ctx)
	require.NoError(t, err)
	require.False(t, empty)
}
