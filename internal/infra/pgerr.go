package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"donasi/internal/domain"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgAdminShutdown        = "57P01"
	pgCannotConnectNow     = "57P03"
)

// IsNoRows reports whether err means the query matched nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// IsTransient reports whether retrying the same unit of work may succeed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrTransientStorage) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable, pgAdminShutdown, pgCannotConnectNow:
			return true
		}
		// Class 08: connection exception.
		return strings.HasPrefix(pgErr.Code, "08")
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}

// ClassifyStorageError wraps transient failures in domain.ErrTransientStorage
// so callers can decide on retries without importing pgx.
func ClassifyStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) && !errors.Is(err, domain.ErrTransientStorage) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrTransientStorage, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
