package dispatch

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/documentdb/gatewaygw/internal/wire"
)

// envelope is the set of fields almost every command carries regardless of
// what it otherwise does: which database and (usually) collection it
// targets, and the session/transaction metadata that governs whether it
// runs inside a pinned multi-statement transaction.
type envelope struct {
	DB            string
	Collection    string
	HasCollection bool

	LSID []byte

	TxnNumber    int64
	HasTxnNumber bool
	AutoCommit   bool
	StartTxn     bool

	MaxTimeMS int64
}

// parseEnvelope reads the envelope fields out of a decoded command
// document. $db is normally mandatory on the wire (every OP_MSG command
// carries it), but the legacy OP_QUERY path this gateway also accepts does
// not inject one, so a missing $db yields an empty string rather than an
// error — callers that need it for a backend call will simply address an
// empty-named database, which the backend itself will reject.
func parseEnvelope(m bson.M, reqType wire.RequestType) envelope {
	env := envelope{AutoCommit: true}
	env.DB, _ = stringField(m, "$db")
	// getMore is the one command whose own-name field holds the cursor id,
	// not the collection: the collection name travels in a separate field.
	if reqType == wire.ReqGetMore {
		if coll, ok := stringField(m, "collection"); ok {
			env.Collection = coll
			env.HasCollection = true
		}
	} else if coll, ok := commandCollectionName(m, reqType); ok {
		env.Collection = coll
		env.HasCollection = true
	}
	if lsid, ok := lsidBytes(m); ok {
		env.LSID = lsid
	}
	if n, ok := int64Field(m, "txnNumber"); ok {
		env.TxnNumber = n
		env.HasTxnNumber = true
	}
	env.AutoCommit = boolField(m, "autocommit", true)
	env.StartTxn = boolField(m, "startTransaction", false)
	if ms, ok := int64Field(m, "maxTimeMS"); ok {
		env.MaxTimeMS = ms
	}
	return env
}
