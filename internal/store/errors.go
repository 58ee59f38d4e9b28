package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Permanent PostgreSQL SQLSTATE codes: a single bad row never aborts a
// batch (spec §4.1); these classify as Data errors, not Transient.
const (
	sqlstateUniqueViolation     = "23505"
	sqlstateNotNullViolation    = "23502"
	sqlstateForeignKeyViolation = "23503"
	sqlstateCheckViolation      = "23514"
)

// isPermanentDataError reports whether err represents a per-row schema
// violation (spec §7 "Data" taxonomy) rather than a transient
// infrastructure failure that should be retried.
func isPermanentDataError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlstateUniqueViolation, sqlstateNotNullViolation,
			sqlstateForeignKeyViolation, sqlstateCheckViolation:
			return true
		}
	}
	return false
}
