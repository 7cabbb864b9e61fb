package wire

import "strings"

// RequestType is the dispatcher's routing key: the lowercased command name
// taken from the first field of the command document (spec.md §4.1,
// "the command document must be unique").
type RequestType string

// Named request types the dispatcher understands (spec.md §6). Any other
// value is still a valid RequestType — the dispatcher reports
// CommandNotSupported rather than the parser rejecting it, so unsupported-
// but-well-formed commands get a typed wire error instead of a connection
// drop.
const (
	ReqAggregate         RequestType = "aggregate"
	ReqCount             RequestType = "count"
	ReqDistinct          RequestType = "distinct"
	ReqFind              RequestType = "find"
	ReqFindAndModify     RequestType = "findandmodify"
	ReqInsert            RequestType = "insert"
	ReqUpdate            RequestType = "update"
	ReqDelete            RequestType = "delete"
	ReqGetMore           RequestType = "getmore"
	ReqKillCursors       RequestType = "killcursors"
	ReqListCollections   RequestType = "listcollections"
	ReqListDatabases     RequestType = "listdatabases"
	ReqListIndexes       RequestType = "listindexes"
	ReqCollStats         RequestType = "collstats"
	ReqDbStats           RequestType = "dbstats"
	ReqValidate          RequestType = "validate"
	ReqCollMod           RequestType = "collmod"
	ReqCurrentOp         RequestType = "currentop"
	ReqGetParameter      RequestType = "getparameter"
	ReqCompact           RequestType = "compact"
	ReqCreate            RequestType = "create"
	ReqDrop              RequestType = "drop"
	ReqDropDatabase      RequestType = "dropdatabase"
	ReqCreateIndexes     RequestType = "createindexes"
	ReqDropIndexes       RequestType = "dropindexes"
	ReqReIndex           RequestType = "reindex"
	ReqRenameCollection  RequestType = "renamecollection"
	ReqShardCollection   RequestType = "shardcollection"
	ReqReshardCollection RequestType = "reshardcollection"
	ReqUnshardCollection RequestType = "unshardcollection"
	ReqEndSessions       RequestType = "endsessions"
	ReqAbortTransaction  RequestType = "aborttransaction"
	ReqCommitTransaction RequestType = "committransaction"
	ReqPrepareTxn        RequestType = "preparetransaction"
	ReqCreateUser        RequestType = "createuser"
	ReqDropUser          RequestType = "dropuser"
	ReqUpdateUser        RequestType = "updateuser"
	ReqUsersInfo         RequestType = "usersinfo"
	ReqHello             RequestType = "hello"
	ReqIsMaster          RequestType = "ismaster"
	ReqBuildInfo         RequestType = "buildinfo"
	ReqHostInfo          RequestType = "hostinfo"
	ReqConnectionStatus  RequestType = "connectionstatus"
	ReqGetCmdLineOpts    RequestType = "getcmdlineopts"
	ReqGetLog            RequestType = "getlog"
	ReqGetDefaultRWConcern RequestType = "getdefaultrwconcern"
	ReqWhatsMyURI        RequestType = "whatsmyuri"
	ReqIsDBGrid          RequestType = "isdbgrid"
	ReqListCommands      RequestType = "listcommands"
	ReqPing              RequestType = "ping"
	ReqSaslStart         RequestType = "saslstart"
	ReqSaslContinue      RequestType = "saslcontinue"
	ReqLogout            RequestType = "logout"
	ReqExplain           RequestType = "explain"
)

// RequestTypeFromCommandName lowercases a BSON command document's leading
// field name into the dispatcher's routing key.
func RequestTypeFromCommandName(name string) RequestType {
	return RequestType(strings.ToLower(name))
}

// Request is a fully parsed, typed wire request: the routing key plus the
// raw command document and optional batch documents (from an OP_MSG
// sequence section, or synthesized for OP_INSERT). Handlers read typed
// fields (db, collection, lsid, txnNumber, ...) out of Command themselves;
// wire never interprets command semantics beyond extracting the routing
// key and the envelope fields (db, collection name) needed to frame the
// backend call.
type Request struct {
	Type    RequestType
	Command []byte // raw BSON command document
	Extra   []byte // concatenated extra documents (batch ops), may be nil

	// Envelope, carried from the originating message for response framing.
	OpCode     OpCode
	RequestID  int32
	ResponseTo int32
	ActivityID string
}
