package dispatch

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/documentdb/gatewaygw/internal/gwcontext"
)

// kv is a single field for marshalD, which exists purely to keep the canned
// reply builders below from repeating bson.D{{Key: ..., Value: ...}, ...}
// boilerplate for documents that carry no conditional fields.
type kv struct {
	key string
	val any
}

func marshalD(pairs ...kv) ([]byte, error) {
	d := make(bson.D, len(pairs))
	for i, p := range pairs {
		d[i] = bson.E{Key: p.key, Value: p.val}
	}
	return bson.Marshal(d)
}

func constantBuildInfo(req *gwcontext.Request) ([]byte, error) {
	version := req.Connection.Service.DynConfig.ServerVersion()
	return marshalD(
		kv{"version", version},
		kv{"gitVersion", "unknown"},
		kv{"versionArray", bson.A{int32(7), int32(0), int32(0), int32(0)}},
		kv{"bits", int32(64)},
		kv{"maxBsonObjectSize", int32(16793600)},
		kv{"storageEngines", bson.A{"documentdb"}},
		kv{"ok", float64(1)},
	)
}

func constantHostInfo() ([]byte, error) {
	return marshalD(
		kv{"system", bson.D{
			{Key: "currentTime", Value: time.Now().UTC()},
			{Key: "hostname", Value: ""},
		}},
		kv{"os", bson.D{{Key: "type", Value: "Linux"}}},
		kv{"ok", float64(1)},
	)
}

func constantConnectionStatus(req *gwcontext.Request, cmd bson.M) ([]byte, error) {
	username := req.Connection.Auth.Username()
	users := bson.A{}
	if username != "" {
		users = bson.A{bson.D{{Key: "user", Value: username}, {Key: "db", Value: "admin"}}}
	}

	authInfo := bson.D{
		{Key: "authenticatedUsers", Value: users},
		{Key: "authenticatedUserRoles", Value: bson.A{}},
	}
	if showPrivileges, ok := documentField(cmd, "showPrivileges"); ok {
		_ = showPrivileges // accepted and ignored: the gateway has no role/privilege model of its own to report here.
	}
	return marshalD(kv{"authInfo", authInfo}, kv{"ok", float64(1)})
}

func constantGetCmdLineOpts() ([]byte, error) {
	return marshalD(
		kv{"argv", bson.A{}},
		kv{"parsed", bson.D{}},
		kv{"ok", float64(1)},
	)
}

func constantGetLog(cmd bson.M) ([]byte, error) {
	name, _ := stringField(cmd, "getLog")
	if name == "*" {
		return marshalD(kv{"names", bson.A{"global", "startupWarnings"}}, kv{"ok", float64(1)})
	}
	return marshalD(kv{"totalLinesWritten", int64(0)}, kv{"log", bson.A{}}, kv{"ok", float64(1)})
}

func constantGetDefaultRWConcern() ([]byte, error) {
	return marshalD(
		kv{"defaultWriteConcern", bson.D{{Key: "w", Value: int32(1)}}},
		kv{"defaultReadConcern", bson.D{{Key: "level", Value: "local"}}},
		kv{"ok", float64(1)},
	)
}

func constantWhatsMyURI(req *gwcontext.Request) ([]byte, error) {
	you := ""
	if req.Connection.RemoteAddr != nil {
		you = req.Connection.RemoteAddr.String()
	}
	return marshalD(kv{"you", you}, kv{"ok", float64(1)})
}

func constantIsDBGrid() ([]byte, error) {
	return marshalD(kv{"isdbgrid", int32(0)}, kv{"ok", float64(1)})
}

func constantListCommands() ([]byte, error) {
	return marshalD(kv{"commands", bson.D{}}, kv{"ok", float64(1)})
}
