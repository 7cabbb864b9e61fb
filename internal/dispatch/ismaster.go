package dispatch

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/documentdb/gatewaygw/internal/gwcontext"
)

const (
	minWireVersion = 0
	maxWireVersion = 21 // matches a 7.0-series MongoDB server's advertised range
)

// buildHelloResponse answers both "hello" and the legacy "isMaster" the
// same way modern drivers expect a standalone server to: the primary-role
// field name differs between the two (isWritablePrimary vs the older
// ismaster), everything else is identical. The gateway always reports
// itself as a standalone primary — it has no replica set topology of its
// own to describe, only whatever read/write posture the backend's dynamic
// configuration currently reports.
func buildHelloResponse(req *gwcontext.Request, cmd bson.M) ([]byte, error) {
	dyn := req.Connection.Service.DynConfig
	writable := dyn.IsPostgresWritable()

	fields := []kv{
		{"maxBsonObjectSize", int32(16793600)},
		{"maxMessageSizeBytes", int32(48000000)},
		{"maxWriteBatchSize", dyn.MaxWriteBatchSize()},
		{"localTime", time.Now().UTC()},
		{"logicalSessionTimeoutMinutes", int32(30)},
		{"connectionId", int32(req.Connection.ID)},
		{"minWireVersion", int32(minWireVersion)},
		{"maxWireVersion", int32(maxWireVersion)},
		{"readOnly", !writable},
	}

	if _, helloOk := caseInsensitiveLookup(cmd, "hello"); helloOk {
		fields = append([]kv{{"isWritablePrimary", writable}, {"helloOk", true}}, fields...)
	} else {
		fields = append([]kv{{"ismaster", writable}}, fields...)
	}
	fields = append(fields, kv{"ok", float64(1)})

	return marshalD(fields...)
}
