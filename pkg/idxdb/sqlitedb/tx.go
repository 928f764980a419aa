package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/calvinalkan/idxdb/pkg/idxdb"
	"github.com/calvinalkan/idxdb/pkg/idxdb/txlock"
)

type tx struct {
	db    *DB
	token *txlock.Token
	sql   *sql.Tx

	mu       sync.Mutex
	finished bool
}

func (t *tx) ID() string { return t.token.ID() }
func (t *tx) StoreNames() []string { return t.token.StoreNames() }
func (t *tx) Exclusive() bool { return t.token.Exclusive() }
func (t *tx) Done() <-chan struct{} { return t.token.Done() }
func (t *tx) Wait(ctx context.Context) error { return t.token.Wait(ctx) }

func (t *tx) Store(name string) (idxdb.Store, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finished {
		return nil, idxdb.ErrTransactionDone
	}

	if !t.token.Covers(name) {
		return nil, idxdb.Annotate(idxdb.ErrStoreNotFound, name, "")
	}

	schema, _ := t.db.schema.Store(name)

	return &store{tx: t, name: name, schema: schema}, nil
}

// Commit commits the SQL transaction. When SQLite refuses, the transaction
// resolves as failed with that error.
func (t *tx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finished {
		return idxdb.ErrTransactionDone
	}

	t.finished = true

	err := t.sql.Commit()
	if err != nil {
		err = fmt.Errorf("sqlitedb: commit: %w", err)

		return errors.Join(err, t.db.sched.Fail(t.token, err))
	}

	t.db.log.Debug("sqlitedb: committed", slog.String("tx", t.token.ID()))

	err = t.db.sched.Complete(t.token)
	if err != nil {
		return fmt.Errorf("sqlitedb: commit: %w", err)
	}

	return nil
}

// Abort rolls back. Idempotent.
func (t *tx) Abort() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finished {
		return nil
	}

	t.finished = true

	rbErr := t.sql.Rollback()
	if rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
		rbErr = fmt.Errorf("sqlitedb: rollback: %w", rbErr)
	} else {
		rbErr = nil
	}

	err := t.db.sched.Fail(t.token, idxdb.ErrAborted)
	if err != nil {
		err = fmt.Errorf("sqlitedb: abort: %w", err)
	}

	return errors.Join(rbErr, err)
}

// reader returns the SQL transaction for a read.
func (t *tx) reader(ctx context.Context) (*sql.Tx, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finished {
		return nil, idxdb.ErrTransactionDone
	}

	return t.sql, nil
}

// writer returns the SQL transaction for a write.
func (t *tx) writer(ctx context.Context) (*sql.Tx, error) {
	q, err := t.reader(ctx)
	if err != nil {
		return nil, err
	}

	if !t.token.Exclusive() {
		return nil, idxdb.ErrReadOnly
	}

	return q, nil
}

// savepoint runs fn so that either all or none of its statements apply.
func savepoint(ctx context.Context, q *sql.Tx, fn func() error) error {
	_, err := q.ExecContext(ctx, "SAVEPOINT op")
	if err != nil {
		return fmt.Errorf("sqlite: savepoint: %w", err)
	}

	err = fn()
	if err != nil {
		_, rbErr := q.ExecContext(context.WithoutCancel(ctx), "ROLLBACK TO op; RELEASE op")
		if rbErr != nil {
			rbErr = fmt.Errorf("sqlite: rollback to savepoint: %w", rbErr)
		}

		return errors.Join(err, rbErr)
	}

	_, err = q.ExecContext(ctx, "RELEASE op")
	if err != nil {
		return fmt.Errorf("sqlite: release savepoint: %w", err)
	}

	return nil
}
