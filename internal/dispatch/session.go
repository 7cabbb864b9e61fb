package dispatch

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/documentdb/gatewaygw/internal/gwcontext"
)

// handleEndSessions drops every cursor still open under each named session
// and aborts any transaction still pinned to it, matching a driver's
// expectation that ending a session releases everything it was holding
// open on the server. A session with no open transaction simply has nothing
// to abort; Abort returning an error for that case is not treated as fatal
// to the overall command, since the client cannot act on a per-session
// failure here anyway.
func handleEndSessions(ctx context.Context, req *gwcontext.Request, cmd bson.M) ([]byte, error) {
	ids, _ := arrayField(cmd, "endSessions")
	conn := req.Connection
	for _, v := range ids {
		entry, ok := v.(bson.M)
		if !ok {
			continue
		}
		sessionID, ok := sessionIDFromEntry(entry)
		if !ok {
			continue
		}
		conn.Service.Cursors.InvalidateBySession(sessionID)
		_ = conn.Service.Transactions.Abort(ctx, string(sessionID))
	}
	return okResponse()
}

func sessionIDFromEntry(entry bson.M) ([]byte, bool) {
	v, ok := caseInsensitiveLookup(entry, "id")
	if !ok {
		return nil, false
	}
	bin, ok := v.(primitive.Binary)
	if !ok {
		return nil, false
	}
	return bin.Data, true
}
