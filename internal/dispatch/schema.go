package dispatch

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/documentdb/gatewaygw/internal/backend"
	"github.com/documentdb/gatewaygw/internal/gwcontext"
	"github.com/documentdb/gatewaygw/internal/gwerror"
	"github.com/documentdb/gatewaygw/internal/wire"
)

func handleCreate(ctx context.Context, req *gwcontext.Request, env envelope, _ bson.M) ([]byte, error) {
	return runSimpleCatalogCall(ctx, req, env, req.Connection.Service.Catalog.CreateCollectionView, backend.TimeoutTransaction)
}

// handleCollMod passes the batch "extra" documents through as the backend
// procedure's third argument, the same convention insert/update/delete use
// for index-related sub-documents collMod can carry alongside its primary
// options document.
func handleCollMod(ctx context.Context, req *gwcontext.Request, env envelope, _ bson.M) ([]byte, error) {
	result, err := queryBound(ctx, req, backend.TimeoutTransaction, req.Connection.Service.Catalog.CollMod, env.DB, req.Wire.Command, req.Wire.Extra)
	if err != nil {
		return nil, err
	}
	return firstReplyDoc(req, result)
}

func handleDropDatabase(ctx context.Context, req *gwcontext.Request, env envelope) ([]byte, error) {
	result, err := queryBound(ctx, req, backend.TimeoutTransaction, req.Connection.Service.Catalog.DropDatabase, env.DB)
	if err != nil {
		return nil, err
	}
	reply, err := firstReplyDoc(req, result)
	if err != nil {
		return nil, err
	}
	req.Connection.Service.Cursors.InvalidateByDatabase(env.DB)
	return reply, nil
}

func handleDropCollection(ctx context.Context, req *gwcontext.Request, env envelope) ([]byte, error) {
	reply, err := runSimpleCatalogCall(ctx, req, env, req.Connection.Service.Catalog.DropCollection, backend.TimeoutTransaction)
	if err != nil {
		return nil, err
	}
	req.Connection.Service.Cursors.InvalidateByCollection(env.DB, env.Collection)
	return reply, nil
}

// handleRenameCollection validates the source and target share a database
// (the backend has no cross-database rename primitive) before forwarding
// the dropTarget flag as the procedure's third argument.
func handleRenameCollection(ctx context.Context, req *gwcontext.Request, env envelope, cmd bson.M) ([]byte, error) {
	fromNS, err := requireStringField(cmd, "renameCollection")
	if err != nil {
		return nil, err
	}
	toNS, err := requireStringField(cmd, "to")
	if err != nil {
		return nil, err
	}
	fromDB, _, err := wire.ExtractNamespace(fromNS)
	if err != nil {
		return nil, err
	}
	toDB, _, err := wire.ExtractNamespace(toNS)
	if err != nil {
		return nil, err
	}
	if fromDB != toDB {
		return nil, gwerror.IllegalOperation("Source and target namespace must have the same database")
	}
	if fromNS == toNS {
		return nil, gwerror.IllegalOperation("Can't rename a collection to itself")
	}

	dropTarget := boolField(cmd, "dropTarget", false)
	result, err := queryBound(ctx, req, backend.TimeoutTransaction, req.Connection.Service.Catalog.RenameCollection, fromDB, req.Wire.Command, dropTarget)
	if err != nil {
		return nil, err
	}
	return firstReplyDoc(req, result)
}

// handleShardCollection serves both shardCollection and reshardCollection:
// the two share the same "key" shape and differ in which backend procedure
// name (and therefore which conflict-handling semantics) applies; the
// reshard flag is also passed to the procedure as its third argument.
func handleShardCollection(ctx context.Context, req *gwcontext.Request, env envelope, _ bson.M, reshard bool) ([]byte, error) {
	catalog := req.Connection.Service.Catalog
	query := catalog.ShardCollection
	if reshard {
		query = catalog.ReshardCollection
	}
	result, err := queryBound(ctx, req, backend.TimeoutTransaction, query, env.DB, req.Wire.Command, reshard)
	if err != nil {
		return nil, err
	}
	return firstReplyDoc(req, result)
}

func handleUnshardCollection(ctx context.Context, req *gwcontext.Request, env envelope) ([]byte, error) {
	return runSimpleCatalogCall(ctx, req, env, req.Connection.Service.Catalog.UnshardCollection, backend.TimeoutTransaction)
}
