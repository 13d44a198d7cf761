// Package store holds the SQL persistence for products, sales and users.
// Every store runs against a querier so the same code serves the pool and
// an open transaction.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"pharmatrack/m/domain"
	"pharmatrack/m/internal/database"
)

// Querier is satisfied by both *sqlx.DB and *sqlx.Tx.
type Querier = sqlx.ExtContext

func utcNow() time.Time { return time.Now().UTC() }

// insertReturningID runs an INSERT and reports the generated id.
func insertReturningID(ctx context.Context, q Querier, query string, args ...any) (int64, error) {
	if database.UsesReturning(q.DriverName()) {
		var id int64
		if err := sqlx.GetContext(ctx, q, &id, q.Rebind(query+" RETURNING id"), args...); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := q.ExecContext(ctx, q.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}

func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "FOREIGN KEY constraint failed") ||
		strings.Contains(msg, "a foreign key constraint fails") ||
		strings.Contains(msg, "violates foreign key constraint")
}

func offset(page, limit int) int {
	return (page - 1) * limit
}

func wrapConflict(err error, msg string) error {
	if isUniqueViolation(err) {
		return errors.Wrap(domain.ErrConflict, msg)
	}
	return errors.Wrap(err, msg)
}
