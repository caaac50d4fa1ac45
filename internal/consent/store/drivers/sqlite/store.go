package sqlite

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/aussiebroadwan/consent/internal/consent/store/drivers/sqlcommon"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect is the sqlite flavour of the shared queries.
var Dialect = sqlcommon.Dialect{
	Name:              "sqlite",
	IsUniqueViolation: isUniqueViolation,
}

// NewStore opens the sqlite database at dsn. Foreign keys are enforced on
// every connection. In-memory databases are pinned to a single connection
// since each connection would otherwise see its own empty database.
func NewStore(dsn string) (*sqlcommon.Store, error) {
	db, err := sql.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, err
	}
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	return sqlcommon.NewStore(db, Dialect, migrateUp), nil
}

func withPragmas(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		// Without extended result codes only the message tells them apart.
		return strings.Contains(se.Error(), "UNIQUE constraint failed")
	}
	return false
}
