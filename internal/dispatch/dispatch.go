// Package dispatch routes a parsed wire request to the backend catalog
// procedure (or handful of gateway-local constants) that implements it,
// translating between the wire command document and the catalog's
// (db, document, extra) calling convention every data/schema/index
// procedure shares.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/documentdb/gatewaygw/internal/backend"
	"github.com/documentdb/gatewaygw/internal/gwcontext"
	"github.com/documentdb/gatewaygw/internal/gwerror"
	"github.com/documentdb/gatewaygw/internal/wire"
)

const defaultCommandTimeout = 60 * time.Second

// transactionScopedCommands are the data-reading/writing commands that, run
// inside a multi-statement transaction, may not target the config/admin/
// local databases or a system.* collection.
var transactionScopedCommands = map[wire.RequestType]bool{
	wire.ReqAggregate:     true,
	wire.ReqFindAndModify: true,
	wire.ReqUpdate:        true,
	wire.ReqInsert:        true,
	wire.ReqCount:         true,
	wire.ReqDistinct:      true,
	wire.ReqFind:          true,
	wire.ReqGetMore:       true,
}

// indexCommandsForbiddenInTransaction may never run inside a multi-statement
// transaction, regardless of target namespace.
var indexCommandsForbiddenInTransaction = map[wire.RequestType]bool{
	wire.ReqReIndex:       true,
	wire.ReqCreateIndexes: true,
	wire.ReqDropIndexes:   true,
}

// Dispatch decodes req's command document, resolves and validates its
// transaction envelope, runs the matching handler under the retry policy,
// and returns the already-marshaled BSON reply the connection loop should
// write back.
func Dispatch(ctx context.Context, req *gwcontext.Request) ([]byte, error) {
	cmd, err := decode(req.Wire.Command)
	if err != nil {
		return nil, err
	}
	env := parseEnvelope(cmd, req.Wire.Type)

	if err := handleTransaction(ctx, req, env, req.Wire.Type); err != nil {
		return nil, err
	}

	svc := req.Connection.Service
	timeout := svc.CommandTimeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	isReplica := svc.DynConfig.IsReplicaCluster()

	var resp []byte
	runErr := backend.WithRetry(ctx, timeout, string(req.Wire.Type), isReplica, func(ctx context.Context) error {
		var handlerErr error
		resp, handlerErr = route(ctx, req, env, cmd, req.Wire.Type)
		return handlerErr
	})
	if runErr != nil {
		if gerr, ok := runErr.(*gwerror.Error); ok && gerr.SQLState != "" {
			runErr = gwerror.FromPGError(errCtxFor(req), gerr.SQLState, gerr.Message)
		}
		abortOnDataOpFailure(ctx, req, req.Wire.Type)
		return nil, runErr
	}
	return resp, nil
}

// abortOnDataOpFailure rolls back an open transaction when a find or
// aggregate ultimately fails: those two commands open a cursor against the
// transaction's snapshot, and a client that never received a usable cursor
// id has no way to resume or release it itself.
func abortOnDataOpFailure(ctx context.Context, req *gwcontext.Request, reqType wire.RequestType) {
	if reqType != wire.ReqFind && reqType != wire.ReqAggregate {
		return
	}
	conn := req.Connection
	if !conn.InTransaction() {
		return
	}
	conn.Service.Transactions.Abort(ctx, string(conn.SessionID()))
}

// handleTransaction runs before every command, mirroring the original
// implementation's per-request transaction handshake: it clears whatever
// transaction was bound to the connection from a prior command, validates
// the new command's transaction envelope, and (for a real multi-statement
// transaction) starts or resumes the TransactionStore entry so that
// queryBound routes this and every subsequent command on the session
// through the same pinned connection.
func handleTransaction(ctx context.Context, req *gwcontext.Request, env envelope, reqType wire.RequestType) error {
	conn := req.Connection
	conn.SetSessionID(nil)

	if !env.HasTxnNumber {
		return nil
	}

	if env.AutoCommit {
		if env.LSID == nil {
			return gwerror.Typed(50768, "txnNumber may only be provided for multi-document transactions and retryable write commands. autocommit:false was not provided, and command is not a retryable write command.")
		}
		return nil
	}

	if indexCommandsForbiddenInTransaction[reqType] {
		return gwerror.Typed(gwerror.CodeOperationNotSupportedInTransaction,
			fmt.Sprintf("Cannot run command %s in a multi-document transaction.", reqType))
	}

	if transactionScopedCommands[reqType] {
		if env.DB == "config" || env.DB == "admin" || env.DB == "local" {
			return gwerror.Typed(51071, "Cannot run command against the config/admin/local database in a transaction.")
		}
		if env.HasCollection && (env.Collection == "system.profile" || strings.HasPrefix(env.Collection, "system.")) {
			return gwerror.Typed(51071, "Cannot run command against system views in transaction.")
		}
	}

	sessionID := string(env.LSID)
	if sessionID == "" {
		return gwerror.BadValue("Multi-document transactions require lsid")
	}

	if reqType == wire.ReqCommitTransaction && conn.Service.Transactions.LastCommitted(sessionID, env.TxnNumber) {
		conn.SetSessionID(env.LSID)
		return nil
	}

	pool, err := conn.Pool(ctx)
	if err != nil {
		return err
	}
	if _, err := conn.Service.Transactions.Create(ctx, pool, conn.Service.Catalog, sessionID, gwcontext.TransactionRequest{
		TransactionNumber: env.TxnNumber,
		AutoCommit:        env.AutoCommit,
		StartTransaction:  env.StartTxn,
	}); err != nil {
		return err
	}
	conn.SetSessionID(env.LSID)
	return nil
}

func route(ctx context.Context, req *gwcontext.Request, env envelope, cmd bson.M, reqType wire.RequestType) ([]byte, error) {
	switch reqType {
	case wire.ReqFind:
		return handleFind(ctx, req, env)
	case wire.ReqAggregate:
		return handleAggregate(ctx, req, env)
	case wire.ReqInsert:
		return handleInsert(ctx, req, env)
	case wire.ReqUpdate:
		return handleUpdate(ctx, req, env)
	case wire.ReqDelete:
		return handleDelete(ctx, req, env)
	case wire.ReqCount:
		return handleCount(ctx, req, env)
	case wire.ReqDistinct:
		return handleDistinct(ctx, req, env)
	case wire.ReqFindAndModify:
		return handleFindAndModify(ctx, req, env)
	case wire.ReqListDatabases:
		return handleListDatabases(ctx, req)
	case wire.ReqListCollections:
		return handleListCollections(ctx, req, env)
	case wire.ReqListIndexes:
		return handleListIndexes(ctx, req, env)
	case wire.ReqValidate:
		return handleValidate(ctx, req, env)
	case wire.ReqCollStats:
		return handleCollStats(ctx, req, env, cmd)
	case wire.ReqDbStats:
		return handleDbStats(ctx, req, env, cmd)
	case wire.ReqCurrentOp:
		return handleCurrentOp(ctx, req, env)
	case wire.ReqGetParameter:
		return handleGetParameter(ctx, req, env)
	case wire.ReqCompact:
		return handleCompact(ctx, req, env)
	case wire.ReqCollMod:
		return handleCollMod(ctx, req, env, cmd)
	case wire.ReqCreate:
		return handleCreate(ctx, req, env, cmd)
	case wire.ReqDrop:
		return handleDropCollection(ctx, req, env)
	case wire.ReqDropDatabase:
		return handleDropDatabase(ctx, req, env)
	case wire.ReqRenameCollection:
		return handleRenameCollection(ctx, req, env, cmd)
	case wire.ReqShardCollection:
		return handleShardCollection(ctx, req, env, cmd, false)
	case wire.ReqReshardCollection:
		return handleShardCollection(ctx, req, env, cmd, true)
	case wire.ReqUnshardCollection:
		return handleUnshardCollection(ctx, req, env)
	case wire.ReqCreateIndexes:
		return handleCreateIndexes(ctx, req, env)
	case wire.ReqDropIndexes:
		return handleDropIndexes(ctx, req, env)
	case wire.ReqReIndex:
		return handleReIndex(ctx, req, env)
	case wire.ReqListCommands:
		return constantListCommands()
	case wire.ReqGetMore:
		return handleGetMore(ctx, req, cmd)
	case wire.ReqKillCursors:
		return handleKillCursors(req, cmd)
	case wire.ReqCommitTransaction:
		return handleCommitTransaction(ctx, req)
	case wire.ReqAbortTransaction:
		return handleAbortTransaction(ctx, req)
	case wire.ReqPrepareTxn:
		return constantPrepareTransaction()
	case wire.ReqEndSessions:
		return handleEndSessions(ctx, req, cmd)
	case wire.ReqCreateUser:
		return handleCreateUser(ctx, req, cmd)
	case wire.ReqDropUser:
		return handleDropUser(ctx, req, cmd)
	case wire.ReqUpdateUser:
		return handleUpdateUser(ctx, req, cmd)
	case wire.ReqUsersInfo:
		return handleUsersInfo(ctx, req, cmd)
	case wire.ReqHello, wire.ReqIsMaster:
		return buildHelloResponse(req, cmd)
	case wire.ReqBuildInfo:
		return constantBuildInfo(req)
	case wire.ReqHostInfo:
		return constantHostInfo()
	case wire.ReqConnectionStatus:
		return constantConnectionStatus(req, cmd)
	case wire.ReqGetCmdLineOpts:
		return constantGetCmdLineOpts()
	case wire.ReqGetLog:
		return constantGetLog(cmd)
	case wire.ReqGetDefaultRWConcern:
		return constantGetDefaultRWConcern()
	case wire.ReqWhatsMyURI:
		return constantWhatsMyURI(req)
	case wire.ReqIsDBGrid:
		return constantIsDBGrid()
	case wire.ReqPing:
		return okResponse()
	default:
		return nil, gwerror.CommandNotSupported(fmt.Sprintf("no such command: '%s'", reqType))
	}
}
