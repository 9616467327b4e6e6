package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"PDFAnnouncer/internal/domain"
	"PDFAnnouncer/internal/ledger"
	"PDFAnnouncer/internal/ports"
)

const (
	table     = "announcements"
	batchSize = 500
)

// Schema creates the ledger table. Rows are only ever inserted or widened.
const Schema = `CREATE TABLE IF NOT EXISTS announcements (
	document_id        TEXT PRIMARY KEY,
	first_announced_at TIMESTAMPTZ NOT NULL,
	last_attempt_at    TIMESTAMPTZ NOT NULL,
	platforms          TEXT[] NOT NULL DEFAULT '{}',
	targets            TEXT[] NOT NULL DEFAULT '{}',
	attempts           INTEGER NOT NULL DEFAULT 0,
	title              TEXT NOT NULL DEFAULT '',
	legacy             BOOLEAN NOT NULL DEFAULT FALSE
)`

// targetsColumn upgrades tables created before targets were tracked.
const targetsColumn = `ALTER TABLE announcements ADD COLUMN IF NOT EXISTS targets TEXT[] NOT NULL DEFAULT '{}'`

var ledgerColumns = []string{"document_id", "first_announced_at", "last_attempt_at", "platforms", "targets", "attempts", "title", "legacy"}

// DB is the subset of a pgx pool the ledger uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresLedger persists announcement records in Postgres.
type PostgresLedger struct {
	db DB
	sb sq.StatementBuilderType
}

var _ ports.StateStore = (*PostgresLedger)(nil)

// NewPostgresLedger wires a pgx pool implementation.
func NewPostgresLedger(db DB) *PostgresLedger {
	return &PostgresLedger{db: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

// EnsureSchema creates the table when missing.
func (l *PostgresLedger) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{Schema, targetsColumn} {
		if _, err := l.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Load reads every record.
func (l *PostgresLedger) Load(ctx context.Context) (ledger.State, error) {
	query, args, err := l.sb.
		Select(ledgerColumns...).
		From(table).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := l.db.Query(ctx, query, args...)
	if err != nil {
		return nil, &domain.RetrievalError{Op: "load state", Key: table, Err: err}
	}
	defer rows.Close()

	state := ledger.New()
	for rows.Next() {
		var (
			id        string
			first     time.Time
			last      time.Time
			platforms []string
			targets   []string
			attempts  int
			title     string
			legacy    bool
		)
		if err := rows.Scan(&id, &first, &last, &platforms, &targets, &attempts, &title, &legacy); err != nil {
			return nil, &domain.RetrievalError{Op: "load state", Key: table, Err: fmt.Errorf("scan row: %w", err)}
		}
		rec := ledger.Record{
			FirstAnnouncedAt: first.UTC(),
			LastAttemptAt:    last.UTC(),
			Attempts:         attempts,
			Title:            title,
			Legacy:           legacy,
		}
		rec.Platforms = toPlatforms(platforms)
		rec.Targets = toPlatforms(targets)
		state[id] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.RetrievalError{Op: "load state", Key: table, Err: fmt.Errorf("rows iteration: %w", err)}
	}

	return state, nil
}

// Save upserts every record in one transaction.
func (l *PostgresLedger) Save(ctx context.Context, state ledger.State) error {
	ids := make([]string, 0, len(state))
	for id := range state {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tx, err := l.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))
		query, args, err := l.upsert(state, ids[start:end])
		if err == nil {
			_, err = tx.Exec(ctx, query, args...)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("upsert announcements: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (l *PostgresLedger) upsert(state ledger.State, ids []string) (string, []any, error) {
	insert := l.sb.Insert(table).
		Columns(ledgerColumns...)

	for _, id := range ids {
		rec := state[id]
		insert = insert.Values(id, rec.FirstAnnouncedAt, rec.LastAttemptAt,
			fromPlatforms(rec.Platforms), fromPlatforms(rec.Targets), rec.Attempts, rec.Title, rec.Legacy)
	}

	query, args, err := insert.Suffix(`ON CONFLICT (document_id) DO UPDATE
		SET last_attempt_at = GREATEST(announcements.last_attempt_at, EXCLUDED.last_attempt_at),
		    platforms = ARRAY(SELECT DISTINCT unnest(announcements.platforms || EXCLUDED.platforms) ORDER BY 1),
		    targets = ARRAY(SELECT DISTINCT unnest(announcements.targets || EXCLUDED.targets) ORDER BY 1),
		    attempts = GREATEST(announcements.attempts, EXCLUDED.attempts),
		    title = EXCLUDED.title,
		    legacy = announcements.legacy OR EXCLUDED.legacy`).ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build upsert: %w", err)
	}
	return query, args, nil
}

func toPlatforms(names []string) []domain.Platform {
	var out []domain.Platform
	for _, n := range names {
		out = append(out, domain.Platform(n))
	}
	return out
}

func fromPlatforms(platforms []domain.Platform) []string {
	out := make([]string, 0, len(platforms))
	for _, p := range platforms {
		out = append(out, string(p))
	}
	return out
}
