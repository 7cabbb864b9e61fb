package dispatch

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/documentdb/gatewaygw/internal/backend"
	"github.com/documentdb/gatewaygw/internal/gwcontext"
	"github.com/documentdb/gatewaygw/internal/gwerror"
)

func handleFind(ctx context.Context, req *gwcontext.Request, env envelope) ([]byte, error) {
	catalog := req.Connection.Service.Catalog
	return runCursorCommand(ctx, req, env, catalog.FindCursorFirstPage, backend.TimeoutTransaction)
}

func handleAggregate(ctx context.Context, req *gwcontext.Request, env envelope) ([]byte, error) {
	catalog := req.Connection.Service.Catalog
	return runCursorCommand(ctx, req, env, catalog.AggregateCursorFirstPage, backend.TimeoutTransaction)
}

func handleListCollections(ctx context.Context, req *gwcontext.Request, env envelope) ([]byte, error) {
	catalog := req.Connection.Service.Catalog
	return runCursorCommand(ctx, req, env, catalog.ListCollections, backend.TimeoutTransaction)
}

func handleInsert(ctx context.Context, req *gwcontext.Request, env envelope) ([]byte, error) {
	return runWriteCommand(ctx, req, env, req.Connection.Service.Catalog.Insert)
}

func handleUpdate(ctx context.Context, req *gwcontext.Request, env envelope) ([]byte, error) {
	return runWriteCommand(ctx, req, env, req.Connection.Service.Catalog.ProcessUpdate)
}

func handleDelete(ctx context.Context, req *gwcontext.Request, env envelope) ([]byte, error) {
	return runWriteCommand(ctx, req, env, req.Connection.Service.Catalog.Delete)
}

func handleCount(ctx context.Context, req *gwcontext.Request, env envelope) ([]byte, error) {
	return runSimpleCatalogCall(ctx, req, env, req.Connection.Service.Catalog.CountQuery, backend.TimeoutCommand)
}

func handleDistinct(ctx context.Context, req *gwcontext.Request, env envelope) ([]byte, error) {
	return runSimpleCatalogCall(ctx, req, env, req.Connection.Service.Catalog.DistinctQuery, backend.TimeoutCommand)
}

func handleFindAndModify(ctx context.Context, req *gwcontext.Request, env envelope) ([]byte, error) {
	return runSimpleCatalogCall(ctx, req, env, req.Connection.Service.Catalog.FindAndModify, backend.TimeoutTransaction)
}

func handleValidate(ctx context.Context, req *gwcontext.Request, env envelope) ([]byte, error) {
	return runSimpleCatalogCall(ctx, req, env, req.Connection.Service.Catalog.Validate, backend.TimeoutCommand)
}

func handleCompact(ctx context.Context, req *gwcontext.Request, env envelope) ([]byte, error) {
	return runSimpleCatalogCall(ctx, req, env, req.Connection.Service.Catalog.Compact, backend.TimeoutTransaction)
}

// handleCollStats and handleDbStats validate the scale option gateway-side
// (the original implementation type-checks it before handing the whole
// command document to the backend, which interprets scale itself).
func handleCollStats(ctx context.Context, req *gwcontext.Request, env envelope, cmd bson.M) ([]byte, error) {
	if _, err := convertToScale(cmd); err != nil {
		return nil, err
	}
	return runSimpleCatalogCall(ctx, req, env, req.Connection.Service.Catalog.CollStats, backend.TimeoutCommand)
}

func handleDbStats(ctx context.Context, req *gwcontext.Request, env envelope, cmd bson.M) ([]byte, error) {
	if _, err := convertToScale(cmd); err != nil {
		return nil, err
	}
	return runSimpleCatalogCall(ctx, req, env, req.Connection.Service.Catalog.DbStats, backend.TimeoutCommand)
}

func handleListDatabases(ctx context.Context, req *gwcontext.Request) ([]byte, error) {
	result, err := queryBound(ctx, req, backend.TimeoutCommand, req.Connection.Service.Catalog.ListDatabases, req.Wire.Command)
	if err != nil {
		return nil, err
	}
	return firstReplyDoc(req, result)
}

// handleCurrentOp forwards the whole command document (it already carries
// the "all"/"ownOps" flags and any filter fields) rather than splitting
// them out gateway-side; the backend procedure interprets them together.
func handleCurrentOp(ctx context.Context, req *gwcontext.Request, env envelope) ([]byte, error) {
	return runSimpleCatalogCall(ctx, req, env, req.Connection.Service.Catalog.CurrentOp, backend.TimeoutCommand)
}

// handleGetParameter enforces the admin-only restriction gateway-side; the
// original implementation rejects getParameter issued against any other
// database before ever reaching the backend.
func handleGetParameter(ctx context.Context, req *gwcontext.Request, env envelope) ([]byte, error) {
	if env.DB != "admin" {
		return nil, gwerror.Unauthorized("getParameter command is only supported against the admin database.")
	}
	return runSimpleCatalogCall(ctx, req, env, req.Connection.Service.Catalog.GetParameter, backend.TimeoutCommand)
}
