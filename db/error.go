package db

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/circleci/modellr/o11y"
)

var (
	ErrNop         = o11y.NewWarning("no update or results")
	ErrConstrained = errors.New("violates constraints")
	ErrException   = errors.New("exception")
	ErrCanceled    = o11y.NewWarning("statement canceled")
	ErrBadConn     = o11y.NewWarning("bad connection")
)

const (
	pgForeignKeyConstraintErrorCode = "23503"
	pgUniqueViolationErrorCode      = "23505"
	pgExceptionRaised               = "P0001"
	pgStatementCanceled             = "57014"
)

// mapError maps a few postgres and sqlite errors to errors defined in this package, some wrapping the
// original error. If a mapping was made the returned bool will be true, if not the original error is
// returned and the bool will be false.
func mapError(err error) (bool, error) {
	if ok, e := mapBadCon(err); ok {
		return true, e
	}
	pgErr := &pgconn.PgError{}
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyConstraintErrorCode:
			return true, fmt.Errorf("%w: %s - %s", ErrConstrained, pgErr.Message, pgErr.Detail)
		case pgExceptionRaised:
			return true, fmt.Errorf("%w: %s - %s", ErrException, pgErr.Message, pgErr.Detail)
		case pgStatementCanceled:
			return true, fmt.Errorf("%w: %s - %s", ErrCanceled, pgErr.Message, pgErr.Detail)
		case pgUniqueViolationErrorCode:
			return true, fmt.Errorf("%w: %s - %s", ErrNop, pgErr.Message, pgErr.Detail)
		}
	}
	liteErr := &sqlite.Error{}
	if errors.As(err, &liteErr) && liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		// the low byte is the primary result code, the rest says which constraint
		msg := liteErr.Error()
		switch {
		case liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY || strings.Contains(msg, "FOREIGN KEY"):
			return true, fmt.Errorf("%w: %s", ErrConstrained, msg)
		case liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
			strings.Contains(msg, "UNIQUE"):
			return true, fmt.Errorf("%w: %s", ErrNop, msg)
		}
	}
	return false, err
}

func mapBadCon(err error) (bool, error) {
	if errors.Is(err, driver.ErrBadConn) {
		return true, ErrBadConn
	}
	return false, err
}
