package dispatch

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/documentdb/gatewaygw/internal/backend"
	"github.com/documentdb/gatewaygw/internal/gwcontext"
	"github.com/documentdb/gatewaygw/internal/gwerror"
	"github.com/documentdb/gatewaygw/internal/wire"
)

// handleCreateUser forwards the whole createUser command document and the
// batch's extra payload (the password, kept out of the primary document so
// it never ends up logged alongside it) to the backend, which owns the
// user/role catalog entirely; the gateway itself has no local user store.
func handleCreateUser(ctx context.Context, req *gwcontext.Request, cmd bson.M) ([]byte, error) {
	env := parseEnvelope(cmd, wire.ReqCreateUser)
	return runWriteCommand(ctx, req, env, req.Connection.Service.Catalog.CreateUser)
}

func handleDropUser(ctx context.Context, req *gwcontext.Request, cmd bson.M) ([]byte, error) {
	env := parseEnvelope(cmd, wire.ReqDropUser)
	return runSimpleCatalogCall(ctx, req, env, req.Connection.Service.Catalog.DropUser, backend.TimeoutCommand)
}

// handleUpdateUser is update_user's 2-argument shape: db plus the command
// document, the new password travels inside the document itself rather than
// as a separate bound parameter the way createUser's does.
func handleUpdateUser(ctx context.Context, req *gwcontext.Request, cmd bson.M) ([]byte, error) {
	env := parseEnvelope(cmd, wire.ReqUpdateUser)
	return runSimpleCatalogCall(ctx, req, env, req.Connection.Service.Catalog.UpdateUser, backend.TimeoutCommand)
}

func handleUsersInfo(ctx context.Context, req *gwcontext.Request, cmd bson.M) ([]byte, error) {
	if boolField(cmd, "showCredentials", false) {
		return nil, gwerror.Unauthorized("usersInfo does not support showCredentials on this gateway")
	}
	env := parseEnvelope(cmd, wire.ReqUsersInfo)
	return runSimpleCatalogCall(ctx, req, env, req.Connection.Service.Catalog.UsersInfo, backend.TimeoutCommand)
}
