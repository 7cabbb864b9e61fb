package dispatch

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/documentdb/gatewaygw/internal/backend"
	"github.com/documentdb/gatewaygw/internal/gwcontext"
	"github.com/documentdb/gatewaygw/internal/gwerror"
)

// handleCreateIndexes rejects the config/admin databases outright (index
// metadata for those lives in the backend's own catalogs, not a
// user-visible collection), then kicks off a background index build and
// polls it to completion before replying, matching createIndexes' documented
// synchronous-from-the-client's-view behavior.
func handleCreateIndexes(ctx context.Context, req *gwcontext.Request, env envelope) ([]byte, error) {
	if env.DB == "config" || env.DB == "admin" {
		return nil, gwerror.IllegalOperation("Cannot create indexes on the config or admin database.")
	}

	result, err := queryBound(ctx, req, backend.TimeoutTransaction, req.Connection.Service.Catalog.CreateIndexesBackground, env.DB, req.Wire.Command)
	if err != nil {
		return nil, err
	}
	row, err := result.First()
	if err != nil {
		return nil, err
	}
	if len(row) < 2 {
		return nil, gwerror.InternalError("create_indexes_background returned an unexpected row shape")
	}
	if !bytesToBool(row[1]) {
		return nil, parseCreateIndexError(req, row[0])
	}

	if err := waitForIndex(ctx, req, env, row[0]); err != nil {
		return nil, err
	}
	return replyDocFromRow(req, row)
}

// waitForIndex polls check_build_index_status until the build reports
// complete, the command's maxTimeMS elapses, or ctx is cancelled. A command
// with no maxTimeMS set waits indefinitely, mirroring a client that asked
// for no deadline of its own.
func waitForIndex(ctx context.Context, req *gwcontext.Request, env envelope, createRequestDetails []byte) error {
	sleep := time.Duration(req.Connection.Service.DynConfig.IndexBuildSleepMillis()) * time.Millisecond
	if sleep <= 0 {
		sleep = time.Second
	}

	var deadline time.Time
	hasDeadline := env.MaxTimeMS > 0
	if hasDeadline {
		deadline = time.Now().Add(time.Duration(env.MaxTimeMS) * time.Millisecond)
	}

	for {
		result, err := queryBound(ctx, req, backend.TimeoutNone, req.Connection.Service.Catalog.CheckBuildIndexStatus, createRequestDetails)
		if err != nil {
			return err
		}
		row, err := result.First()
		if err != nil {
			return err
		}
		if len(row) >= 3 {
			if !bytesToBool(row[1]) {
				return parseCreateIndexError(req, row[0])
			}
			if bytesToBool(row[2]) {
				return nil
			}
		}

		if hasDeadline && time.Now().After(deadline) {
			return gwerror.Typed(gwerror.CodeExceededTimeLimit, "Index build did not complete within the requested maxTimeMS")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// parseCreateIndexError walks a create_indexes_background/
// check_build_index_status failure reply's "raw" per-shard results looking
// for the first errmsg/code pair, and maps it through the same backend
// error table every other command's failures go through.
func parseCreateIndexError(req *gwcontext.Request, reply []byte) error {
	var top bson.M
	if err := bson.Unmarshal(reply, &top); err != nil {
		return gwerror.InternalError("Index build failed")
	}
	raw, ok := documentField(top, "raw")
	if !ok {
		return gwerror.InternalError("Index build failed")
	}
	for _, v := range raw {
		shard, ok := v.(bson.M)
		if !ok {
			continue
		}
		msg, hasMsg := stringField(shard, "errmsg")
		code, hasCode := int64Field(shard, "code")
		if !hasMsg && !hasCode {
			continue
		}
		sqlState := gwerror.Int32ToSQLState(int32(code))
		return gwerror.FromPGError(errCtxFor(req), sqlState, msg)
	}
	return gwerror.InternalError("Index build failed")
}

func handleReIndex(ctx context.Context, req *gwcontext.Request, env envelope) ([]byte, error) {
	result, err := queryBound(ctx, req, backend.TimeoutTransaction, req.Connection.Service.Catalog.ReIndex, env.DB, env.Collection)
	if err != nil {
		return nil, err
	}
	return firstReplyDoc(req, result)
}

// handleDropIndexes converts the reply's "ok" field from bool to the
// integer 1/0 clients of this command expect: the backend itself returns
// ok:true rather than ok:1, a quirk specific to this one procedure that
// every other catalog call does not share.
func handleDropIndexes(ctx context.Context, req *gwcontext.Request, env envelope) ([]byte, error) {
	reply, err := runSimpleCatalogCall(ctx, req, env, req.Connection.Service.Catalog.DropIndexes, backend.TimeoutTransaction)
	if err != nil {
		return nil, err
	}
	return normalizeOkToInt(reply)
}

func normalizeOkToInt(reply []byte) ([]byte, error) {
	var top bson.M
	if err := bson.Unmarshal(reply, &top); err != nil {
		return reply, nil
	}
	ok, isBool := top["ok"].(bool)
	if !isBool {
		return reply, nil
	}
	if ok {
		top["ok"] = int32(1)
	} else {
		top["ok"] = int32(0)
	}
	out, err := bson.Marshal(top)
	if err != nil {
		return nil, gwerror.Wrap(gwerror.KindBson, err)
	}
	return out, nil
}

func handleListIndexes(ctx context.Context, req *gwcontext.Request, env envelope) ([]byte, error) {
	catalog := req.Connection.Service.Catalog
	return runCursorCommand(ctx, req, env, catalog.ListIndexesCursorFirstPage, backend.TimeoutTransaction)
}
