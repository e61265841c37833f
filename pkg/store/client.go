// Package store persists journal data in PostgreSQL. Every repository method
// is scoped by the owning user id; rows of other users behave as missing.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/boogy/health-journal/pkg/config"
	"github.com/boogy/health-journal/pkg/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/boogy/health-journal/pkg/store"

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
	// ErrInvalidReference means a row refers to another row the user does not own.
	ErrInvalidReference = errors.New("invalid reference")
)

// Pool is the subset of *pgxpool.Pool used by the store. pgxmock satisfies it.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

var _ Pool = (*pgxpool.Pool)(nil)

// Client wraps a Pool with tracing and error classification.
type Client struct {
	pool         Pool
	tracer       trace.Tracer
	databaseName string
}

// NewClient opens a pool from the database URL and verifies connectivity.
func NewClient(ctx context.Context, cfg *config.Database) (*Client, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("store: database url is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("store: failed to parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("store: failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: failed to connect to database: %w", err)
	}

	dbName := poolCfg.ConnConfig.Database
	if dbName == "" {
		if u, parseErr := url.Parse(cfg.URL); parseErr == nil {
			dbName = strings.TrimPrefix(u.Path, "/")
		}
	}

	return &Client{pool: pool, tracer: otel.Tracer(tracerName), databaseName: dbName}, nil
}

// NewFromPool wraps an existing pool, typically a pgxmock pool in tests.
func NewFromPool(pool Pool) *Client {
	return &Client{pool: pool, tracer: otel.Tracer(tracerName)}
}

func (c *Client) Health(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "Health", "SELECT 1")
	err := c.pool.Ping(ctx)
	finishSpan(span, err)
	if err != nil {
		return fmt.Errorf("store: health check failed: %w", err)
	}
	return nil
}

func (c *Client) Close() {
	c.pool.Close()
}

// queryRow runs a single-row query and scans it into dest.
func (c *Client) queryRow(ctx context.Context, op, sql string, args []any, dest ...any) error {
	ctx, span := c.startSpan(ctx, op, sql)
	err := c.pool.QueryRow(ctx, sql, args...).Scan(dest...)
	err = classify(err)
	finishSpan(span, ignoreNotFound(err))
	if err != nil {
		return fmt.Errorf("store: %s: %w", op, err)
	}
	return nil
}

// queryRows runs a query and maps every row with fn.
func queryRows[T any](ctx context.Context, c *Client, op, sql string, args []any, fn pgx.RowToFunc[T]) ([]T, error) {
	ctx, span := c.startSpan(ctx, op, sql)
	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		finishSpan(span, err)
		return nil, fmt.Errorf("store: %s: %w", op, classify(err))
	}
	items, err := pgx.CollectRows(rows, fn)
	finishSpan(span, err)
	if err != nil {
		return nil, fmt.Errorf("store: %s: %w", op, classify(err))
	}
	return items, nil
}

// exec runs a statement and reports ErrNotFound when it touched no row.
func (c *Client) exec(ctx context.Context, op, sql string, args ...any) error {
	ctx, span := c.startSpan(ctx, op, sql)
	tag, err := c.pool.Exec(ctx, sql, args...)
	err = classify(err)
	if err == nil && tag.RowsAffected() == 0 {
		err = ErrNotFound
	}
	finishSpan(span, ignoreNotFound(err))
	if err != nil {
		return fmt.Errorf("store: %s: %w", op, err)
	}
	return nil
}

// inTx runs fn inside a transaction, committing only when fn succeeds.
func (c *Client) inTx(ctx context.Context, op string, fn func(tx pgx.Tx) error) (err error) {
	ctx, span := c.startSpan(ctx, op, "BEGIN")
	defer func() { finishSpan(span, ignoreNotFound(err)) }()

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: %s: begin: %w", op, classify(err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(tx); err != nil {
		return fmt.Errorf("store: %s: %w", op, classify(err))
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: %s: commit: %w", op, classify(err))
	}
	return nil
}

func (c *Client) startSpan(ctx context.Context, operationName, sql string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "store."+operationName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.name", c.databaseName),
		attribute.String("db.statement", truncateSQL(sql)),
	)
	return ctx, span
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func truncateSQL(sql string) string {
	return utils.TruncateString(strings.Join(strings.Fields(sql), " "), 256)
}

// classify maps driver errors onto ErrNotFound and ErrDuplicate, keeping the
// original in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicate) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s: %w", ErrDuplicate, pgErr.ConstraintName, err)
	}
	return err
}

// A missing row is a normal outcome, not a span error.
func ignoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
