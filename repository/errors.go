package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ActiveAttemptIndex is the partial unique index that backs the
// single-active-attempt rule in postgres.
const ActiveAttemptIndex = "idx_payment_attempts_active_invoice"

// CustomerEmailIndex keeps emails unique among customers that are not deleted.
const CustomerEmailIndex = "idx_customers_email_live"

const pgUniqueViolation = "23505"

// uniqueViolation reports whether err is a unique constraint violation and,
// when the driver says so, which constraint was violated.
func uniqueViolation(err error) (constraint string, ok bool) {
	if err == nil {
		return "", false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName, pgErr.Code == pgUniqueViolation
	}
	return "", errors.Is(err, gorm.ErrDuplicatedKey)
}

func isDuplicate(err error) bool {
	_, ok := uniqueViolation(err)
	return ok
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
