package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement it. Sub-repositories hang off the store so a Tx can
// hand out the same repos bound to the transaction.
type Store interface {
	Users() Users
	Companies() Companies
	Policies() Policies
	Acceptances() Acceptances
	Settings() Settings
	Reminders() Reminders

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	ListUsersByCompany(ctx context.Context, companyID string) ([]domain.User, error)

	// CreateUser returns ErrAlreadyExists when the id or email is taken.
	CreateUser(ctx context.Context, u domain.User) error

	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	IsEmpty(ctx context.Context) (bool, error)
}

type Companies interface {
	GetCompany(ctx context.Context, id string) (domain.Company, error)
	ListCompanies(ctx context.Context) ([]domain.Company, error)
	CreateCompany(ctx context.Context, c domain.Company) error
}

// Policies stores policy documents and their versions. Acceptances live in
// their own repo; the returned PolicyData has an empty ledger.
type Policies interface {
	// GetPolicy returns the policy with its versions, newest first.
	GetPolicy(ctx context.Context, id string) (domain.PolicyData, error)

	// ListPolicies returns every policy ordered by creation.
	ListPolicies(ctx context.Context) ([]domain.PolicyData, error)

	// CreatePolicy inserts the policy row and all of its versions.
	CreatePolicy(ctx context.Context, p domain.PolicyData) error

	// AddVersion inserts v and makes it the current version of policyID.
	AddVersion(ctx context.Context, policyID string, v domain.PolicyVersion, updatedAt time.Time) error

	IsEmpty(ctx context.Context) (bool, error)
}

// Acceptances is the append-only acceptance ledger. Records are never
// deleted; revocation flips them to revoked in place.
type Acceptances interface {
	// CreateAcceptance returns ErrAlreadyExists when the id is taken.
	CreateAcceptance(ctx context.Context, a domain.PolicyAcceptance) error

	GetAcceptance(ctx context.Context, id string) (domain.PolicyAcceptance, error)

	// ListByPolicy returns the ledger of a policy in acceptance order.
	ListByPolicy(ctx context.Context, policyID string) ([]domain.PolicyAcceptance, error)

	// ListByUser returns every acceptance recorded by userID.
	ListByUser(ctx context.Context, userID string) ([]domain.PolicyAcceptance, error)

	// Revoke marks a valid acceptance revoked. Returns ErrNotFound when no
	// valid record with that id exists.
	Revoke(ctx context.Context, id, by, reason string, at time.Time) error
}

type Settings interface {
	// GetOrganizationSettings returns ErrNotFound until settings are saved.
	GetOrganizationSettings(ctx context.Context) (domain.OrganizationSettings, error)
	PutOrganizationSettings(ctx context.Context, s domain.OrganizationSettings, at time.Time) error
}

// ReminderKey identifies one reminder delivery. Day is the slot the reminder
// belongs to: the days-remaining count for deadline notices, the calendar day
// in "2006-01-02" form for escalations.
type ReminderKey struct {
	PolicyID string
	Version  string
	UserID   string
	Kind     string
	Day      string
}

type Reminders interface {
	// RecordReminder stores key and reports whether it was new.
	RecordReminder(ctx context.Context, key ReminderKey, at time.Time) (bool, error)
}
