package devserver

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // Postgres driver
)

// writeLockKey serializes write transactions across connections.
const writeLockKey = 7_340_110

const schema = `
CREATE TABLE IF NOT EXISTS wallet_rows (
	tbl        TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	data       JSONB       NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tbl, id)
);
CREATE INDEX IF NOT EXISTS wallet_rows_tbl_idx ON wallet_rows (tbl);
ALTER TABLE wallet_rows ADD COLUMN IF NOT EXISTS seq BIGSERIAL;
`

// PGStore keeps every table as JSONB rows in one Postgres table. Rows are
// returned in insertion order.
type PGStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenPostgres connects to dsn, waits for the database to accept
// connections, and creates the schema.
func OpenPostgres(ctx context.Context, dsn string, log *slog.Logger) (*PGStore, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}

	for i := 0; i < 5; i++ {
		err = db.PingContext(ctx)
		if err == nil {
			break
		}
		log.Warn("waiting for postgres", "attempt", i+1, "error", err)
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &PGStore{db: db, now: time.Now}, nil
}

// Read runs fn inside a read-only transaction.
func (s *PGStore) Read(ctx context.Context, fn func(Tables) error) error {
	return s.run(ctx, true, fn)
}

// Write runs fn inside a transaction holding the global write lock.
func (s *PGStore) Write(ctx context.Context, fn func(Tables) error) error {
	return s.run(ctx, false, fn)
}

// Close closes the connection pool.
func (s *PGStore) Close() error {
	return s.db.Close()
}

func (s *PGStore) run(ctx context.Context, readOnly bool, fn func(Tables) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: readOnly})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if !readOnly {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, writeLockKey); err != nil {
			return fmt.Errorf("acquiring write lock: %w", err)
		}
	}

	if err := fn(&pgTables{ctx: ctx, tx: tx, readOnly: readOnly, now: s.now}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

type pgTables struct {
	ctx      context.Context
	tx       *sql.Tx
	readOnly bool
	now      func() time.Time
}

func (t *pgTables) all(table string) ([]Row, error) {
	rows, err := t.tx.QueryContext(t.ctx, `SELECT data FROM wallet_rows WHERE tbl = $1 ORDER BY seq`, table)
	if err != nil {
		return nil, fmt.Errorf("selecting %s: %w", table, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", table, err)
		}
		row, err := decodeRow(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding %s row: %w", table, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (t *pgTables) Select(table string, f Filter) ([]Row, error) {
	rows, err := t.all(table)
	if err != nil {
		return nil, err
	}
	return f.Apply(rows), nil
}

func (t *pgTables) Insert(table string, row Row) (Row, error) {
	if t.readOnly {
		return nil, ErrReadOnly
	}
	stored := prepareInsert(normalize(row), t.now())
	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("encoding %s row: %w", table, err)
	}
	if _, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO wallet_rows (tbl, id, data) VALUES ($1, $2, $3)`,
		table, str(stored, "id"), data); err != nil {
		return nil, fmt.Errorf("inserting into %s: %w", table, err)
	}
	return stored, nil
}

func (t *pgTables) Update(table string, f Filter, patch Row) ([]Row, error) {
	if t.readOnly {
		return nil, ErrReadOnly
	}
	rows, err := t.all(table)
	if err != nil {
		return nil, err
	}
	patch = normalize(patch)
	now := t.now()

	var out []Row
	for _, r := range rows {
		if !f.Match(r) {
			continue
		}
		updated := applyPatch(r, patch, now)
		data, err := json.Marshal(updated)
		if err != nil {
			return nil, fmt.Errorf("encoding %s row: %w", table, err)
		}
		if _, err := t.tx.ExecContext(t.ctx,
			`UPDATE wallet_rows SET data = $3 WHERE tbl = $1 AND id = $2`,
			table, str(updated, "id"), data); err != nil {
			return nil, fmt.Errorf("updating %s: %w", table, err)
		}
		out = append(out, updated)
	}
	return out, nil
}

func decodeRow(raw []byte) (Row, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var row Row
	if err := dec.Decode(&row); err != nil {
		return nil, err
	}
	return row, nil
}
