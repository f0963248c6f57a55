// Package export writes the final account snapshot of a run to external storage.
package export

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/txengine/internal/ledger"
)

// Schema creates the tables used by PostgresExporter.
const Schema = `
CREATE TABLE IF NOT EXISTS ledger_runs (
    id          UUID PRIMARY KEY,
    source      TEXT NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL,
    records     INTEGER NOT NULL,
    applied     INTEGER NOT NULL,
    rejected    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS client_accounts (
    run_id    UUID NOT NULL REFERENCES ledger_runs (id) ON DELETE CASCADE,
    client_id INTEGER NOT NULL,
    available NUMERIC NOT NULL,
    held      NUMERIC NOT NULL,
    total     NUMERIC NOT NULL,
    locked    BOOLEAN NOT NULL,
    PRIMARY KEY (run_id, client_id)
);`

// Run is everything exported for one processing run.
type Run struct {
	ID         uuid.UUID
	Source     string
	StartedAt  time.Time
	FinishedAt time.Time
	Stats      ledger.Stats
	Accounts   []ledger.Account
}

// DB is the subset of *pgxpool.Pool used by the exporter.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresExporter writes run snapshots to PostgreSQL. It only ever writes;
// the engine never loads state back from these tables.
type PostgresExporter struct {
	db DB
}

// NewPostgresExporter constructs a Postgres-backed exporter.
func NewPostgresExporter(db DB) *PostgresExporter {
	return &PostgresExporter{db: db}
}

// EnsureSchema creates the export tables when they do not exist.
func (e *PostgresExporter) EnsureSchema(ctx context.Context) error {
	if _, err := e.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure export schema: %w", err)
	}
	return nil
}

// Export records the run and its account snapshot in a single transaction.
func (e *PostgresExporter) Export(ctx context.Context, run Run) error {
	if run.ID == uuid.Nil {
		return fmt.Errorf("run id is required")
	}

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin export: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `INSERT INTO ledger_runs (id, source, started_at, finished_at, records, applied, rejected)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.Source, run.StartedAt.UTC(), run.FinishedAt.UTC(),
		run.Stats.Records, run.Stats.Applied, run.Stats.RejectedTotal()); err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	const insertAccount = `INSERT INTO client_accounts (run_id, client_id, available, held, total, locked)
        VALUES ($1, $2, $3, $4, $5, $6)`
	for _, acc := range run.Accounts {
		if _, err := tx.Exec(ctx, insertAccount, run.ID, int32(acc.Client),
			numeric(acc.Available), numeric(acc.Held), numeric(acc.Total()), acc.Locked); err != nil {
			return fmt.Errorf("insert account %d: %w", acc.Client, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit export: %w", err)
	}
	return nil
}

func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}
