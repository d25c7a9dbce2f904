package contact

import (
	"database/sql"
	"fmt"

	"reconcile/internal/contact/models"
	"reconcile/pkg/platform/sentinel"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// nullString maps an absent value to NULL, which never equals anything in a
// WHERE clause; an absent hint field therefore drops out of the disjunction.
func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullInt64(value *int64) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *value, Valid: true}
}

func nullPrecedence(value *models.Precedence) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*value), Valid: true}
}

func requireAffected(res sql.Result, op string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %d: %w", op, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", op, id, sentinel.ErrNotFound)
	}
	return nil
}
