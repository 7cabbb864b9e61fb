package auth

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/documentdb/gatewaygw/internal/gwerror"
	"github.com/documentdb/gatewaygw/internal/wire"
)

// allowedUnauthorized lists the handful of introspection commands drivers
// send before completing the handshake (e.g. as part of connection
// establishment probing), which the gateway answers without requiring an
// authorized connection.
var allowedUnauthorized = map[wire.RequestType]bool{
	wire.ReqIsMaster:  true,
	wire.ReqHello:     true,
	wire.ReqPing:      true,
	wire.ReqBuildInfo: true,
}

// AllowedUnauthorized reports whether reqType may be served before the
// connection has completed authentication.
func AllowedUnauthorized(reqType wire.RequestType) bool {
	return allowedUnauthorized[reqType]
}

// HandlesRequest reports whether this package owns the given request type
// (the SASL handshake and logout), as opposed to the dispatcher routing it
// onward to a data/schema/session handler.
func HandlesRequest(reqType wire.RequestType) bool {
	switch reqType {
	case wire.ReqSaslStart, wire.ReqSaslContinue, wire.ReqLogout:
		return true
	default:
		return false
	}
}

// Handle processes a saslStart, saslContinue, or logout command and
// returns the reply document. Callers must only invoke this when
// HandlesRequest(req.Type) is true.
func Handle(ctx context.Context, conn AuthConn, blockedPrefixes []string, state *State, req *wire.Request) (bson.D, error) {
	cmd := bson.Raw(req.Command)
	switch req.Type {
	case wire.ReqSaslStart:
		return HandleSaslStart(ctx, conn, blockedPrefixes, state, cmd)
	case wire.ReqSaslContinue:
		return HandleSaslContinue(ctx, conn, state, cmd)
	case wire.ReqLogout:
		state.reset()
		return bson.D{{Key: "ok", Value: int32(1)}}, nil
	default:
		return nil, gwerror.InternalError(fmt.Sprintf("auth.Handle called for unhandled request type %s", req.Type))
	}
}

// Gate is the entry point the connection loop calls for every request
// before handing it to the dispatcher: it serves the auth handshake
// itself, rejects anything else arriving over an unauthorized connection
// (except the small allow-list), and otherwise returns handled=false so the
// caller proceeds to normal dispatch.
func Gate(ctx context.Context, conn AuthConn, blockedPrefixes []string, state *State, req *wire.Request) (resp bson.D, handled bool, err error) {
	if HandlesRequest(req.Type) {
		resp, err = Handle(ctx, conn, blockedPrefixes, state, req)
		return resp, true, err
	}

	if state.Authorized() || AllowedUnauthorized(req.Type) {
		return nil, false, nil
	}

	return nil, true, gwerror.Unauthorized(fmt.Sprintf(
		"Command %s is not allowed as the connection is not authenticated yet.", string(req.Type)))
}
