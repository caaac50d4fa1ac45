package sqlcommon

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/consent/internal/consent/store"
)

// Store implements store.Store over a *sql.DB. Drivers supply the dialect
// and their own migration routine.
type Store struct {
	db      *sql.DB
	q       *Queries
	dialect Dialect
	migrate func(*sql.DB) error
}

var _ store.Store = (*Store)(nil)

func NewStore(db *sql.DB, d Dialect, migrate func(*sql.DB) error) *Store {
	return &Store{
		db:      db,
		q:       NewQueries(db, d),
		dialect: d,
		migrate: migrate,
	}
}

// DB exposes the handle for driver specific setup and tests.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) ApplyMigrations() error {
	if s.migrate == nil {
		return nil
	}
	return s.migrate(s.db)
}

// Tx starts a read/write transaction and returns a Tx-scoped Store.
func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &txStore{tx: tx, q: NewQueries(tx, s.dialect)}, nil
}

// WithTx executes fn within a transaction, automatically handling commit/rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Users() store.Users             { return &usersRepo{q: s.q} }
func (s *Store) Companies() store.Companies     { return &companiesRepo{q: s.q} }
func (s *Store) Policies() store.Policies       { return &policiesRepo{q: s.q} }
func (s *Store) Acceptances() store.Acceptances { return &acceptancesRepo{q: s.q} }
func (s *Store) Settings() store.Settings       { return &settingsRepo{q: s.q} }
func (s *Store) Reminders() store.Reminders     { return &remindersRepo{q: s.q} }

type txStore struct {
	tx *sql.Tx
	q  *Queries
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

// Close is a no-op; the caller commits or rolls back and the outer DB stays open.
func (t *txStore) Close() error { return nil }

func (t *txStore) Ping(ctx context.Context) error { return nil }

// Migrations run before any transaction is opened.
func (t *txStore) ApplyMigrations() error { return nil }

// Nested transactions are not supported.
func (t *txStore) Tx(ctx context.Context) (store.Tx, error) { return nil, sql.ErrTxDone }

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) Users() store.Users             { return &usersRepo{q: t.q} }
func (t *txStore) Companies() store.Companies     { return &companiesRepo{q: t.q} }
func (t *txStore) Policies() store.Policies       { return &policiesRepo{q: t.q} }
func (t *txStore) Acceptances() store.Acceptances { return &acceptancesRepo{q: t.q} }
func (t *txStore) Settings() store.Settings       { return &settingsRepo{q: t.q} }
func (t *txStore) Reminders() store.Reminders     { return &remindersRepo{q: t.q} }
