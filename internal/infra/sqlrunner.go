package infra

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// SQLExecutor is the query surface repositories depend on.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

// IsNoRows reports whether err is pgx's empty-result sentinel.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// Every inline statement starts with a "--sql <uuid>" marker line. The
// marker, not the statement text, is what ends up in logs.
var sqlMarker = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// SQLRunner executes marker-tagged SQL against the pool and logs each
// statement by its marker id with timing.
type SQLRunner struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewSQLRunner(pool *pgxpool.Pool, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{pool: pool, logger: logger}
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	id, stmt, err := splitMarker(query)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	start := time.Now()
	tag, err := r.pool.Exec(ctx, stmt, args...)
	if err != nil {
		r.logger.Error().Err(err).Str("sql", id).Msg("sql: exec failed")
		return tag, err
	}
	r.logger.Debug().Str("sql", id).Dur("took", time.Since(start)).Int64("rows", tag.RowsAffected()).Msg("sql: exec")
	return tag, nil
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	id, stmt, err := splitMarker(query)
	if err != nil {
		return failedRow{err: err}
	}
	r.logger.Debug().Str("sql", id).Msg("sql: query row")
	return taggedRow{row: r.pool.QueryRow(ctx, stmt, args...), logger: r.logger, id: id}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	id, stmt, err := splitMarker(query)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, stmt, args...)
	if err != nil {
		r.logger.Error().Err(err).Str("sql", id).Msg("sql: query failed")
		return nil, err
	}
	r.logger.Debug().Str("sql", id).Msg("sql: query")
	return rows, nil
}

// taggedRow defers error logging to Scan, where pgx surfaces query errors.
type taggedRow struct {
	row    pgx.Row
	logger zerolog.Logger
	id     string
}

func (t taggedRow) Scan(dest ...any) error {
	err := t.row.Scan(dest...)
	if err != nil && !IsNoRows(err) {
		t.logger.Error().Err(err).Str("sql", t.id).Msg("sql: scan failed")
	}
	return err
}

type failedRow struct {
	err error
}

func (f failedRow) Scan(dest ...any) error {
	return f.err
}

// splitMarker peels the marker line off a statement and returns the marker
// id plus the runnable SQL. Statements without a valid marker are rejected
// so untagged SQL never reaches the database.
func splitMarker(query string) (string, string, error) {
	trimmed := strings.TrimSpace(query)
	head, rest, ok := strings.Cut(trimmed, "\n")
	if !ok {
		return "", "", errors.New("sql statement has no body")
	}
	head = strings.TrimSpace(head)
	if !sqlMarker.MatchString(head) {
		return "", "", errors.New("sql marker missing or invalid")
	}
	return strings.TrimPrefix(head, "--sql "), rest, nil
}

var _ SQLExecutor = (*SQLRunner)(nil)
