// Package sqlitedb is a persistent [idxdb.Provider] on SQLite.
//
// Every store is a table of JSON items keyed by encoded primary key. Every
// index is a table of (encoded key, primary key) entries, so range scans,
// ordering and paging run in SQL over the same encoded keys the in-memory
// backend compares.
//
// # Transactions
//
// An idxdb transaction is one SQLite transaction on the single pooled
// connection. The scheduler runs in single-writer mode: an exclusive
// transaction waits for every running transaction, whatever stores it
// names. Shared transactions are admitted together and queue for the
// connection.
//
// # Schema
//
// Open creates missing tables. An index added to an existing database is
// filled from the stored items unless it sets DoNotBackfill. The schema
// version is kept in PRAGMA user_version; opening with a different non-zero
// version fails with [ErrVersionMismatch].
//
// # Locking
//
// The scheduler only coordinates transactions inside one process, so a
// database file is held by one [DB] at a time: Open takes an exclusive lock
// on "<path>.lock" and fails with [ErrLocked] when another holder keeps it
// past Options.LockTimeout.
package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/calvinalkan/idxdb/internal/fslock"
	"github.com/calvinalkan/idxdb/pkg/idxdb"
	"github.com/calvinalkan/idxdb/pkg/idxdb/txlock"
)

var (
	// ErrVersionMismatch indicates a database written with another schema
	// version.
	ErrVersionMismatch = errors.New("sqlitedb: schema version mismatch")

	// ErrLocked indicates a database file held by another [DB].
	ErrLocked = errors.New("sqlitedb: database is locked")
)

// DefaultLockTimeout is how long Open waits for the database file lock.
const DefaultLockTimeout = 5 * time.Second

// Options configures [Open].
type Options struct {
	// Path is the database file. Empty opens a private in-memory database.
	Path string

	// Logger receives transaction events. Nil discards.
	Logger *slog.Logger

	// LockTimeout bounds the wait for the file lock. Zero means
	// [DefaultLockTimeout]. Unused for in-memory databases.
	LockTimeout time.Duration
}

// DB is a SQLite-backed [idxdb.Provider]. Safe for concurrent use.
type DB struct {
	schema idxdb.Schema
	sched  *txlock.Scheduler
	log    *slog.Logger
	sql    *sql.DB
	lock   *fslock.Lock // nil in memory
	closed atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

var _ idxdb.Provider = (*DB)(nil)

// Open validates schema, opens the database and brings its tables up to
// date.
func Open(ctx context.Context, schema idxdb.Schema, opts Options) (*DB, error) {
	err := schema.Validate()
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var lock *fslock.Lock

	dsn := opts.Path
	if dsn == "" {
		dsn = "file:idxdb-" + uuid.NewString() + "?mode=memory&cache=shared"
	} else {
		lock, err = acquireLock(ctx, opts.Path, opts.LockTimeout)
		if err != nil {
			return nil, err
		}
	}

	sqlDB, err := openSqlite(ctx, dsn)
	if err != nil {
		return nil, releaseWith(lock, fmt.Errorf("sqlitedb: open: %w", err))
	}

	err = ensureSchema(ctx, sqlDB, schema)
	if err != nil {
		return nil, releaseWith(lock, closeWith(sqlDB, fmt.Errorf("sqlitedb: open: %w", err)))
	}

	logger.Debug("sqlitedb: opened", slog.String("path", opts.Path), slog.Int("version", schema.Version))

	return &DB{
		schema: schema,
		log:    logger,
		sql:    sqlDB,
		lock:   lock,
		sched:  txlock.New(schema.StoreNames(), txlock.Options{SingleWriter: true, Logger: logger}),
	}, nil
}

// Schema implements [idxdb.Provider].
func (db *DB) Schema() idxdb.Schema {
	return db.schema
}

// OpenTransaction implements [idxdb.Provider].
func (db *DB) OpenTransaction(ctx context.Context, storeNames []string, exclusive bool) (idxdb.Transaction, error) {
	if db.closed.Load() {
		return nil, idxdb.ErrProviderClosing
	}

	token, err := db.sched.OpenTransaction(ctx, storeNames, exclusive)
	if err != nil {
		return nil, fmt.Errorf("sqlitedb: open transaction: %w", err)
	}

	// The SQL transaction outlives ctx; database/sql would roll it back on
	// cancellation.
	sqlTx, err := db.sql.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		_ = db.sched.Fail(token, err)

		return nil, fmt.Errorf("sqlitedb: begin: %w", err)
	}

	return &tx{db: db, token: token, sql: sqlTx}, nil
}

// Close stops admitting transactions, waits for running ones and closes the
// database. In-memory data is gone afterwards.
func (db *DB) Close(ctx context.Context) error {
	if ctx == nil {
		return errors.New("sqlitedb: context is nil")
	}

	db.closed.Store(true)

	select {
	case <-db.sched.CloseWhenPossible():
	case <-ctx.Done():
		return fmt.Errorf("sqlitedb: waiting for transactions: %w", ctx.Err())
	}

	db.closeOnce.Do(func() {
		err := db.sql.Close()
		if err != nil {
			err = fmt.Errorf("sqlitedb: close: %w", err)
		}

		db.closeErr = releaseWith(db.lock, err)
	})

	return db.closeErr
}

func acquireLock(ctx context.Context, path string, timeout time.Duration) (*fslock.Lock, error) {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	lock, err := fslock.Acquire(lockCtx, path)
	if errors.Is(err, fslock.ErrTimeout) {
		return nil, fmt.Errorf("%w: %w", ErrLocked, err)
	}

	if err != nil {
		return nil, fmt.Errorf("sqlitedb: %w", err)
	}

	return lock, nil
}

// releaseWith releases lock (if any) and joins the result to err.
func releaseWith(lock *fslock.Lock, err error) error {
	if lock == nil {
		return err
	}

	return errors.Join(err, lock.Close())
}
