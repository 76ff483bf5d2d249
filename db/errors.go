package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"lendshelf/lending"
	"lendshelf/models"
)

const (
	pgUniqueViolation = "23505"
	// A malformed uuid literal is rejected before any row is read.
	pgInvalidTextRepresentation = "22P02"
)

// classify maps driver errors onto lending kinds.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return lending.E(lending.KindNotFound, op, "not found", nil)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgUniqueViolation {
			switch pgErr.ConstraintName {
			case models.IndexOneActivePerItem:
				return lending.E(lending.KindAlreadyActive, op, "item already has an active borrow record", nil)
			case models.IndexRequestKey:
				return lending.E(lending.KindDuplicateRequest, op, "request key already used", nil)
			}
		}
		if pgErr.Code == pgInvalidTextRepresentation {
			return lending.E(lending.KindNotFound, op, "not found", nil)
		}
		if transientCode(pgErr.Code) {
			return lending.E(lending.KindUnavailable, op, "", err)
		}
		return lending.E(lending.KindInternal, op, "", err)
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, driver.ErrBadConn),
		pgconn.Timeout(err),
		pgconn.SafeToRetry(err),
		errors.As(err, &netErr):
		return lending.E(lending.KindUnavailable, op, "", err)
	}
	return lending.E(lending.KindInternal, op, "", err)
}

// transientCode covers connection exceptions (08), insufficient resources
// (53), operator intervention (57) and serialization failures.
func transientCode(code string) bool {
	return strings.HasPrefix(code, "08") ||
		strings.HasPrefix(code, "53") ||
		strings.HasPrefix(code, "57") ||
		code == "40001" || code == "40P01"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
