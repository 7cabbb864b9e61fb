package dispatch

import (
	"context"

	"github.com/documentdb/gatewaygw/internal/gwcontext"
	"github.com/documentdb/gatewaygw/internal/gwerror"
)

// handleCommitTransaction commits whatever transaction handleTransaction
// bound to this connection for the request, if any. A commitTransaction
// sent with no transaction bound (handleTransaction already resolved it as
// an already-committed retry, or the client raced its own abort) still
// reports success: matching the original implementation's process_commit,
// which always returns ok regardless of whether a commit actually ran.
func handleCommitTransaction(ctx context.Context, req *gwcontext.Request) ([]byte, error) {
	conn := req.Connection
	if conn.InTransaction() {
		if err := conn.Service.Transactions.Commit(ctx, string(conn.SessionID())); err != nil {
			return nil, err
		}
	}
	return okResponse()
}

// handleAbortTransaction requires a transaction to actually be open: unlike
// commit, there is no idempotent-retry case to special-case here.
func handleAbortTransaction(ctx context.Context, req *gwcontext.Request) ([]byte, error) {
	conn := req.Connection
	if !conn.InTransaction() {
		return nil, gwerror.InternalError("abortTransaction can only be run within a transaction")
	}
	if err := conn.Service.Transactions.Abort(ctx, string(conn.SessionID())); err != nil {
		return nil, err
	}
	return okResponse()
}

// constantPrepareTransaction answers prepareTransaction with a fixed
// response: two-phase commit across a single backend connection has no
// meaningful prepare phase of its own, so the gateway reports a timestamp
// of zero and lets the subsequent commitTransaction do the real work.
func constantPrepareTransaction() ([]byte, error) {
	return marshalD(kv{"prepareTimestamp", int64(0)}, kv{"ok", float64(1)})
}
