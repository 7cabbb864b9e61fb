package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/documentdb/gatewaygw/internal/gwerror"
)

// TimeoutStrategy selects how a command's statement_timeout is applied,
// per spec.md §4.4.
type TimeoutStrategy int

const (
	// TimeoutNone runs the statement with whatever timeout the connection
	// (or an enclosing user transaction) already has in effect.
	TimeoutNone TimeoutStrategy = iota
	// TimeoutCommand wraps the statement in SET statement_timeout=T ... SET
	// statement_timeout=default, used when no transaction is wanted.
	TimeoutCommand
	// TimeoutTransaction wraps the statement in its own
	// BEGIN; SET LOCAL statement_timeout=T; ...; COMMIT (ROLLBACK on error).
	// Incompatible with persistent cursors, which it would close at commit.
	TimeoutTransaction
)

// Row is one backend result row, decoded into raw bytes per column. Every
// catalog procedure returns BSON-bearing bytea columns (plus occasional
// scalar columns for cursor metadata), so callers decode column-by-column
// rather than scanning into typed Go structs.
type Row [][]byte

// Result holds every row a backend call returned, mirroring the original
// implementation's PgResponse (which also holds ownership of the whole
// response rather than streaming it — catalog procedures return at most a
// handful of rows; cursors page explicitly via getMore instead).
type Result struct {
	Rows []Row
}

// First returns the first row, or an internal error if the backend
// returned no rows at all (every catalog procedure is expected to return
// exactly one row on success).
func (r *Result) First() (Row, error) {
	if len(r.Rows) == 0 {
		return nil, gwerror.InternalError("PG returned no rows in response")
	}
	return r.Rows[0], nil
}

// Client executes catalog-named backend procedures against one pool with
// the timeout strategy a given command requires. One Client is constructed
// per request against whichever pool (system/auth/per-credential/shared,
// or the connection bound to a live transaction) that request resolved to.
type Client struct {
	pool    *pgxpool.Pool
	catalog Catalog
}

func NewClient(pool *pgxpool.Pool, catalog Catalog) *Client {
	return &Client{pool: pool, catalog: catalog}
}

func (c *Client) Catalog() Catalog { return c.catalog }

// Query runs query with the given timeout strategy, borrowing and
// releasing a connection from the pool for the duration of the call.
// Parameters are bound positionally; BSON document parameters are passed
// as []byte (bytea), never the backend's native bson type, so the gateway
// stays compatible with multi-coordinator deployments (spec.md §4.4).
func (c *Client) Query(ctx context.Context, strategy TimeoutStrategy, timeout time.Duration, query string, args ...any) (*Result, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, wrapAcquireErr(err)
	}
	defer conn.Release()
	return c.queryOn(ctx, conn.Conn(), strategy, timeout, query, args...)
}

// QueryOnConn runs query on an already-borrowed connection (used for
// transaction-bound and cursor-owning requests, where the caller, not the
// Client, controls the connection's lifetime).
func (c *Client) QueryOnConn(ctx context.Context, conn *pgx.Conn, strategy TimeoutStrategy, timeout time.Duration, query string, args ...any) (*Result, error) {
	return c.queryOn(ctx, conn, strategy, timeout, query, args...)
}

func (c *Client) queryOn(ctx context.Context, conn *pgx.Conn, strategy TimeoutStrategy, timeout time.Duration, query string, args ...any) (*Result, error) {
	switch strategy {
	case TimeoutTransaction:
		return c.runInTransaction(ctx, conn, timeout, query, args...)
	case TimeoutCommand:
		return c.runWithStatementTimeout(ctx, conn, timeout, query, args...)
	default:
		return collect(ctx, conn, query, args...)
	}
}

func collect(ctx context.Context, conn *pgx.Conn, query string, args ...any) (*Result, error) {
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	return scanAll(rows)
}

func scanAll(rows pgx.Rows) (*Result, error) {
	result := &Result{}
	fields := rows.FieldDescriptions()
	for rows.Next() {
		raw := rows.RawValues()
		row := make(Row, len(fields))
		for i, v := range raw {
			cp := make([]byte, len(v))
			copy(cp, v)
			row[i] = cp
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr(err)
	}
	return result, nil
}

func (c *Client) runWithStatementTimeout(ctx context.Context, conn *pgx.Conn, timeout time.Duration, query string, args ...any) (*Result, error) {
	ms := timeout.Milliseconds()
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET statement_timeout = %d", ms)); err != nil {
		return nil, translateErr(err)
	}
	defer conn.Exec(context.Background(), "SET statement_timeout = default")

	return collect(ctx, conn, query, args...)
}

func (c *Client) runInTransaction(ctx context.Context, conn *pgx.Conn, timeout time.Duration, query string, args ...any) (*Result, error) {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, translateErr(err)
	}
	ms := timeout.Milliseconds()
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", ms)); err != nil {
		tx.Rollback(ctx)
		return nil, translateErr(err)
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		tx.Rollback(ctx)
		return nil, translateErr(err)
	}
	result, err := scanAll(rows)
	if err != nil {
		tx.Rollback(ctx)
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, translateErr(err)
	}
	return result, nil
}

func wrapAcquireErr(err error) error {
	return gwerror.Wrap(gwerror.KindPool, fmt.Errorf("acquiring backend connection: %w", err))
}

// translateErr converts a pgx/pgconn error into the gateway's typed error,
// consulting the known SQL-state mapping table. Transaction/replica
// context is filled in by the dispatcher via gwerror.FromPGError when it
// has more context than this package deliberately doesn't import (see
// DESIGN.md) — here we only have the raw SQL-state to offer.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return gwerror.FromPGError(gwerror.BackendErrorContext{}, pgErr.Code, pgErr.Message)
	}
	return gwerror.Wrap(gwerror.KindIO, err)
}
