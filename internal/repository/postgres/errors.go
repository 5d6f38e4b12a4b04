package postgres

import (
	"errors"
	"strings"

	"github.com/lib/pq"
)

const pqUndefinedTable = "42P01"

// ErrSchemaMissing is returned when the session_states table does not exist.
var ErrSchemaMissing = errors.New("session state schema missing: run migrations")

// IsUndefinedTable reports whether err is a PostgreSQL undefined_table error.
// If table is non-empty the message must also name it.
func IsUndefinedTable(err error, table string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}

	if string(pqErr.Code) != pqUndefinedTable {
		return false
	}

	if table == "" {
		return true
	}

	return strings.Contains(pqErr.Message, `"`+table+`"`)
}
