package postgres_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aussiebroadwan/consent/internal/consent/domain"
	"github.com/aussiebroadwan/consent/internal/consent/store"
	"github.com/aussiebroadwan/consent/internal/consent/store/drivers/postgres"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (store.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return postgres.NewStoreFromDB(db), mock
}

func TestCreateUserUsesNumberedPlaceholders(t *testing.T) {
	s, mock := newMock(t)
	u := domain.NewUser("u1", "u1@acme.test", "U One", domain.RoleUser, "acme", true, now)

	mock.ExpectExec(`INSERT INTO users .* VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8, \$9\)`).
		WithArgs("u1", "u1@acme.test", "U One", "user", "acme", true, true, sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Users().CreateUser(context.Background(), u))
}

func TestUniqueViolationMapsToAlreadyExists(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(`INSERT INTO acceptances`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := s.Acceptances().CreateAcceptance(context.Background(), domain.PolicyAcceptance{
		ID: "acc-1", PolicyID: "terms", Version: "1.0", UserID: "u1",
		AcceptedAt: now, AcceptanceType: domain.AcceptanceIndividual, IsValid: true,
	})
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestOtherErrorsPassThrough(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(`INSERT INTO acceptances`).
		WillReturnError(&pgconn.PgError{Code: "23503", Message: "foreign key violation"})

	err := s.Acceptances().CreateAcceptance(context.Background(), domain.PolicyAcceptance{ID: "acc-1"})
	require.Error(t, err)
	require.NotErrorIs(t, err, store.ErrAlreadyExists)
}

func TestGetUser(t *testing.T) {
	s, mock := newMock(t)
	cols := []string{"id", "email", "name", "role", "company_id", "can_accept_for_company", "is_active", "created_at", "last_login_at"}

	mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("u1", "u1@acme.test", "U One", "legal", nil, false, true, now, nil))
	mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	got, err := s.Users().GetUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, domain.RoleLegal, got.Role)
	require.Empty(t, got.CompanyID)
	require.Nil(t, got.LastLoginAt)

	_, err = s.Users().GetUser(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRevokeOnlyValidRecords(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(`UPDATE acceptances SET is_valid = \$1, .* WHERE id = \$5 AND is_valid = \$6`).
		WithArgs(false, sqlmock.AnyArg(), "legal", "mistake", "acc-1", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE acceptances`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Acceptances().Revoke(context.Background(), "acc-1", "legal", "mistake", now))
	require.ErrorIs(t, s.Acceptances().Revoke(context.Background(), "acc-1", "legal", "again", now), store.ErrNotFound)
}

func TestSettingsUpsert(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(`INSERT INTO organization_settings .* ON CONFLICT \(id\) DO UPDATE`).
		WithArgs(1, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT document FROM organization_settings WHERE id = \$1`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"document"}).AddRow(`{"allowIndividualAcceptance":true,"whoCanAcceptForCompany":"any-user"}`))

	ctx := context.Background()
	require.NoError(t, s.Settings().PutOrganizationSettings(ctx, domain.IndividualOnlySettings(), now))

	got, err := s.Settings().GetOrganizationSettings(ctx)
	require.NoError(t, err)
	require.True(t, got.AllowIndividualAcceptance)
	require.Equal(t, domain.AnyUser, got.WhoCanAcceptForCompany)
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE users SET last_login_at = \$1 WHERE id = \$2`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		return tx.Users().TouchLastLogin(ctx, "u1", now)
	}))

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE users SET last_login_at`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		return tx.Users().TouchLastLogin(ctx, "ghost", now)
	})
	require.ErrorIs(t, err, store.ErrNotFound)
}
