package db

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mattn/go-sqlite3"
)

// isBusy reports whether err means another connection holds the database lock.
func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}

// Update runs fn inside a write transaction and commits it. Transactions
// failing because the database is busy are retried up to maxRetries times.
func Update(ctx context.Context, rw ReadWriter, maxRetries uint64, fn func(tx WriteTx) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = time.Second
	return backoff.Retry(
		func() error {
			err := update(ctx, rw, fn)
			if err != nil && !isBusy(err) {
				return backoff.Permanent(err)
			}
			return err
		},
		backoff.WithContext(backoff.WithMaxRetries(policy, maxRetries), ctx),
	)
}

func update(ctx context.Context, rw ReadWriter, fn func(tx WriteTx) error) error {
	tx, err := rw.NewTx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
