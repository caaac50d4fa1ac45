package postgres

import (
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/consent/internal/consent/store/drivers/sqlcommon"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const uniqueViolation = "23505"

// Dialect is the postgres flavour of the shared queries.
var Dialect = sqlcommon.Dialect{
	Name:              "postgres",
	Numbered:          true,
	IsUniqueViolation: isUniqueViolation,
}

// NewStore connects through pgx's database/sql adapter.
func NewStore(dsn string) (*sqlcommon.Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewStoreFromDB(db), nil
}

// NewStoreFromDB wraps an existing handle.
func NewStoreFromDB(db *sql.DB) *sqlcommon.Store {
	return sqlcommon.NewStore(db, Dialect, migrateUp)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
