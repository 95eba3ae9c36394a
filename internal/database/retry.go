package database

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// ErrConflict reports a serialization failure that survived the retry
// budget. Callers must see it rather than have the write silently dropped.
var ErrConflict = errors.New("concurrent write conflict")

const (
	retryAttempts = 3
	retryBaseWait = 50 * time.Millisecond
)

// withRetry runs fn, retrying with backoff when the driver reports a
// transient serialization conflict (SQLite busy/locked, Postgres 40001).
func withRetry(ctx context.Context, fn func() error) error {
	backoff := retryBaseWait
	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		err = fn()
		if err == nil || !isSerializationFailure(err) {
			return err
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return errors.Join(ErrConflict, err)
}

func isSerializationFailure(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// serialization_failure / deadlock_detected
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

// isUniqueViolation reports a primary-key/unique-constraint insert failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
