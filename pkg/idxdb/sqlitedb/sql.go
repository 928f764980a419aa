package sqlitedb

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/calvinalkan/idxdb/pkg/idxdb"
	"github.com/calvinalkan/idxdb/pkg/idxdb/keycodec"
)

// sqliteBusyTimeoutMs is the time SQLite waits when the database file is
// locked by another process. After this, operations return SQLITE_BUSY.
const sqliteBusyTimeoutMs = 10000

// openSqlite opens the database at dsn and applies the connection pragmas.
func openSqlite(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	// One connection: pragmas apply consistently and an in-memory database
	// lives as long as the pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	err = db.PingContext(ctx)
	if err != nil {
		return nil, closeWith(db, fmt.Errorf("sqlite: ping: %w", err))
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf(`
		PRAGMA busy_timeout = %d;
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = FULL;
		PRAGMA cache_size = -20000;
		PRAGMA temp_store = MEMORY;
	`, sqliteBusyTimeoutMs))
	if err != nil {
		return nil, closeWith(db, fmt.Errorf("sqlite: apply pragmas: %w", err))
	}

	return db, nil
}

func closeWith(db *sql.DB, err error) error {
	closeErr := db.Close()
	if closeErr != nil {
		closeErr = fmt.Errorf("sqlite: close: %w", closeErr)
	}

	return errors.Join(err, closeErr)
}

// queryUserVersion reads the SQLite PRAGMA user_version.
func queryUserVersion(ctx context.Context, q querier) (int, error) {
	row := q.QueryRowContext(ctx, "PRAGMA user_version")

	var version int

	err := row.Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("sqlite: read user_version: %w", err)
	}

	return version, nil
}

// querier is the part of *sql.DB and *sql.Tx the backend uses.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Table names hex-encode schema names so any store or index name is a valid
// identifier.
func storeTable(store string) string {
	return `"s_` + hex.EncodeToString([]byte(store)) + `"`
}

func indexTable(store, index string) string {
	return `"x_` + hex.EncodeToString([]byte(store)) + "_" + hex.EncodeToString([]byte(index)) + `"`
}

func indexTableName(store, index string) string {
	return strings.Trim(indexTable(store, index), `"`)
}

// ensureSchema creates missing tables, backfills new indexes and records the
// schema version.
func ensureSchema(ctx context.Context, db *sql.DB, schema idxdb.Schema) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}

	committed := false

	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	stored, err := queryUserVersion(ctx, tx)
	if err != nil {
		return err
	}

	if stored != 0 && stored != schema.Version {
		return fmt.Errorf("%w: database has version %d, schema has %d", ErrVersionMismatch, stored, schema.Version)
	}

	for _, st := range schema.Stores {
		err = ensureStore(ctx, tx, st)
		if err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schema.Version))
	if err != nil {
		return fmt.Errorf("sqlite: set user_version: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}

	committed = true

	return nil
}

func ensureStore(ctx context.Context, tx *sql.Tx, st idxdb.StoreSchema) error {
	_, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS "+storeTable(st.Name)+
		" (pk TEXT NOT NULL PRIMARY KEY, item TEXT NOT NULL) WITHOUT ROWID")
	if err != nil {
		return fmt.Errorf("sqlite: create store %q: %w", st.Name, err)
	}

	for _, ix := range st.Indexes {
		created, err := ensureIndex(ctx, tx, st.Name, ix)
		if err != nil {
			return err
		}

		if created && !ix.DoNotBackfill {
			err = backfill(ctx, tx, st, ix)
			if err != nil {
				return idxdb.Annotate(fmt.Errorf("backfill: %w", err), st.Name, ix.Name)
			}
		}
	}

	return nil
}

// ensureIndex creates the entry table of ix and reports whether it was new.
func ensureIndex(ctx context.Context, tx *sql.Tx, store string, ix idxdb.IndexSchema) (bool, error) {
	name := indexTableName(store, ix.Name)

	var exists int

	err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: lookup index %q: %w", ix.Name, err)
	}

	if exists > 0 {
		return false, nil
	}

	table := indexTable(store, ix.Name)

	stmts := []string{
		"CREATE TABLE " + table + " (k TEXT NOT NULL, pk TEXT NOT NULL, PRIMARY KEY (k, pk)) WITHOUT ROWID",
		`CREATE INDEX "p_` + strings.TrimPrefix(name, "x_") + `" ON ` + table + " (pk)",
	}

	if ix.Unique {
		stmts = append(stmts, `CREATE UNIQUE INDEX "u_`+strings.TrimPrefix(name, "x_")+`" ON `+table+" (k)")
	}

	for _, stmt := range stmts {
		_, err = tx.ExecContext(ctx, stmt)
		if err != nil {
			return false, fmt.Errorf("sqlite: create index %q: %w", ix.Name, err)
		}
	}

	return true, nil
}

func backfill(ctx context.Context, tx *sql.Tx, st idxdb.StoreSchema, ix idxdb.IndexSchema) error {
	rows, err := tx.QueryContext(ctx, "SELECT pk, item FROM "+storeTable(st.Name))
	if err != nil {
		return fmt.Errorf("sqlite: scan store: %w", err)
	}

	type entry struct{ k, pk string }

	var entries []entry

	for rows.Next() {
		var pk, raw string

		err = rows.Scan(&pk, &raw)
		if err != nil {
			_ = rows.Close()

			return fmt.Errorf("sqlite: scan store: %w", err)
		}

		item, err := decodeItem(raw)
		if err != nil {
			_ = rows.Close()

			return err
		}

		for _, k := range idxdb.IndexKeys(ix, item) {
			entries = append(entries, entry{k: k, pk: pk})
		}
	}

	err = errors.Join(rows.Err(), rows.Close())
	if err != nil {
		return fmt.Errorf("sqlite: scan store: %w", err)
	}

	insert := "INSERT INTO " + indexTable(st.Name, ix.Name) + " (k, pk) VALUES (?, ?)"

	for _, e := range entries {
		_, err = tx.ExecContext(ctx, insert, e.k, e.pk)
		if err != nil {
			return mapConstraint(err)
		}
	}

	return nil
}

// mapConstraint turns a unique index violation into [idxdb.ErrConstraint].
func mapConstraint(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return idxdb.ErrConstraint
	}

	return fmt.Errorf("sqlite: %w", err)
}

// Items are stored as JSON. Numbers read back as float64. Dates are
// wrapped as {"$date": "<RFC 3339>"} so that they read back as time.Time
// and keep their key type when an index is backfilled.
const dateKey = "$date"

func encodeItem(item idxdb.Item) (string, error) {
	data, err := json.Marshal(wrapDates(item))
	if err != nil {
		return "", fmt.Errorf("%w: item is not JSON-serializable: %w", idxdb.ErrInvalidInput, err)
	}

	return string(data), nil
}

func decodeItem(raw string) (idxdb.Item, error) {
	var item idxdb.Item

	err := json.Unmarshal([]byte(raw), &item)
	if err != nil {
		return nil, fmt.Errorf("sqlitedb: corrupt item: %w", err)
	}

	for k, v := range item {
		item[k] = unwrapDates(v)
	}

	return item, nil
}

func wrapDates(v any) any {
	switch val := v.(type) {
	case time.Time:
		return map[string]any{dateKey: val.Format(time.RFC3339Nano)}
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = wrapDates(elem)
		}

		return out
	}

	if !keycodec.IsList(v) {
		return v
	}

	elems := keycodec.Elements(v)

	out := make([]any, len(elems))
	for i, elem := range elems {
		out[i] = wrapDates(elem)
	}

	return out
}

func unwrapDates(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if s, ok := val[dateKey].(string); ok && len(val) == 1 {
			t, err := time.Parse(time.RFC3339Nano, s)
			if err == nil {
				return t
			}
		}

		for k, elem := range val {
			val[k] = unwrapDates(elem)
		}

		return val
	case []any:
		for i, elem := range val {
			val[i] = unwrapDates(elem)
		}

		return val
	default:
		return v
	}
}

// rangeWhere renders er as a WHERE clause over col.
func rangeWhere(col string, er idxdb.EncodedRange) (string, []any) {
	var (
		conds []string
		args  []any
	)

	if er.HasLow {
		op := ">="
		if er.LowExclusive {
			op = ">"
		}

		conds = append(conds, col+" "+op+" ?")
		args = append(args, er.Low)
	}

	if er.HasHigh {
		op := "<="
		if er.HighExclusive {
			op = "<"
		}

		conds = append(conds, col+" "+op+" ?")
		args = append(args, er.High)
	}

	if len(conds) == 0 {
		return "", nil
	}

	return " WHERE " + strings.Join(conds, " AND "), args
}
