package dispatch

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/documentdb/gatewaygw/internal/backend"
	"github.com/documentdb/gatewaygw/internal/gwcontext"
	"github.com/documentdb/gatewaygw/internal/gwerror"
)

// queryBound runs query against whichever backend connection this request
// should use: the pinned connection of an open transaction, or a fresh
// borrow from the authenticated user's own pool. Handlers never choose
// between Transaction.Query and Client.Query themselves — this is the one
// place that decision is made, mirroring the source's pg_data_client, which
// is itself constructed once per request already bound to the right
// connection.
func queryBound(ctx context.Context, req *gwcontext.Request, strategy backend.TimeoutStrategy, query string, args ...any) (*backend.Result, error) {
	conn := req.Connection
	if txn, ok := conn.Transaction(); ok {
		return txn.Query(ctx, query, args...)
	}
	client, err := conn.Client(ctx)
	if err != nil {
		return nil, err
	}
	timeout := conn.Service.CommandTimeout
	return client.Query(ctx, strategy, timeout, query, args...)
}

// errCtxFor builds the backend-error translation context for req, carrying
// just enough connection-scoped state (open transaction, replica cluster)
// for gwerror.KnownPGError to pick the right code for an ambiguous
// SQL-state.
func errCtxFor(req *gwcontext.Request) gwerror.BackendErrorContext {
	return gwerror.BackendErrorContext{
		InTransaction:    req.Connection.InTransaction(),
		IsReplicaCluster: req.Connection.Service.DynConfig.IsReplicaCluster(),
	}
}

// firstReplyDoc extracts the reply document (row column 0) from a backend
// result and runs it through the write-error remapping every catalog
// response is subject to.
func firstReplyDoc(req *gwcontext.Request, result *backend.Result) ([]byte, error) {
	row, err := result.First()
	if err != nil {
		return nil, err
	}
	return replyDocFromRow(req, row)
}

func replyDocFromRow(req *gwcontext.Request, row backend.Row) ([]byte, error) {
	if len(row) == 0 || row[0] == nil {
		return nil, gwerror.InternalError("the backend returned an empty reply document")
	}
	return transformWriteErrors(errCtxFor(req), row[0])
}

// runSimpleCatalogCall is the common shape for a command whose backend
// procedure is bound (db TEXT, command BYTEA) and whose first result row's
// first column is the reply document to forward as-is.
func runSimpleCatalogCall(ctx context.Context, req *gwcontext.Request, env envelope, query string, strategy backend.TimeoutStrategy) ([]byte, error) {
	result, err := queryBound(ctx, req, strategy, query, env.DB, req.Wire.Command)
	if err != nil {
		return nil, err
	}
	return firstReplyDoc(req, result)
}

// runWriteCommand is runSimpleCatalogCall's 3-argument sibling for
// insert/update/delete, whose backend procedures additionally take the
// batch's "extra" documents as a third bound bytea parameter.
func runWriteCommand(ctx context.Context, req *gwcontext.Request, env envelope, query string) ([]byte, error) {
	result, err := queryBound(ctx, req, backend.TimeoutTransaction, query, env.DB, req.Wire.Command, req.Wire.Extra)
	if err != nil {
		return nil, err
	}
	return firstReplyDoc(req, result)
}

// runCursorCommand is runSimpleCatalogCall's cursor-bearing sibling: the
// first result row carries cursor metadata in columns 1-3 (see
// extractCursorFirstPage) that must be persisted before the reply document
// is forwarded.
func runCursorCommand(ctx context.Context, req *gwcontext.Request, env envelope, query string, strategy backend.TimeoutStrategy) ([]byte, error) {
	result, err := queryBound(ctx, req, strategy, query, env.DB, req.Wire.Command)
	if err != nil {
		return nil, err
	}
	row, err := result.First()
	if err != nil {
		return nil, err
	}
	if err := saveCursor(ctx, req, env, row); err != nil {
		return nil, err
	}
	return replyDocFromRow(req, row)
}

func okResponse() ([]byte, error) {
	return bson.Marshal(bson.D{{Key: "ok", Value: float64(1)}})
}
