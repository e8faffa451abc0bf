package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/emilythestrangee/feedbackloop/backend/internal/apperr"
)

const (
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
	pgForeignKeyViolation = "23503"

	mysqlDuplicateEntry  = 1062
	mysqlCheckViolation  = 3819
	mysqlNoReferencedRow = 1452
)

// IsUniqueViolation recognizes a duplicate-key error from any of the
// supported drivers.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	return false
}

// IsCheckViolation recognizes a failed CHECK constraint, which for this
// schema means a vote counter was about to go negative.
func IsCheckViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrCheckConstraintViolated) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgCheckViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgCheckViolation
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlCheckViolation
	}
	return false
}

// IsForeignKeyViolation recognizes a row pointing at a parent that does
// not exist, such as a vote for an unknown user.
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgForeignKeyViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgForeignKeyViolation
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlNoReferencedRow
	}
	return false
}

// translate maps driver and gorm errors onto apperr sentinels. what names
// the entity for not-found messages.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %s", apperr.ErrNotFound, what)
	case IsUniqueViolation(err):
		return fmt.Errorf("%w: %s: %v", apperr.ErrConstraintViolation, what, err)
	case IsForeignKeyViolation(err):
		return fmt.Errorf("%w: %s: %v", apperr.ErrNotFound, what, err)
	case IsCheckViolation(err):
		return fmt.Errorf("%w: %s: %v", apperr.ErrConsistencyFault, what, err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.FromContext(err)
	}
	return err
}
