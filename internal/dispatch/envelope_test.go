package dispatch

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/documentdb/gatewaygw/internal/wire"
)

func TestParseEnvelopeBasicFields(t *testing.T) {
	m := bson.M{
		"find": "orders",
		"$db":  "shop",
	}
	env := parseEnvelope(m, wire.ReqFind)
	if env.DB != "shop" {
		t.Fatalf("unexpected db: %q", env.DB)
	}
	if !env.HasCollection || env.Collection != "orders" {
		t.Fatalf("unexpected collection: %q, %v", env.Collection, env.HasCollection)
	}
	if !env.AutoCommit {
		t.Fatal("expected autocommit to default to true")
	}
}

func TestParseEnvelopeMissingDbIsTolerated(t *testing.T) {
	env := parseEnvelope(bson.M{"ping": int32(1)}, wire.ReqPing)
	if env.DB != "" {
		t.Fatalf("expected empty db, got %q", env.DB)
	}
}

func TestParseEnvelopeGetMoreReadsCollectionField(t *testing.T) {
	m := bson.M{
		"getMore":    int64(123),
		"collection": "orders",
		"$db":        "shop",
	}
	env := parseEnvelope(m, wire.ReqGetMore)
	if !env.HasCollection || env.Collection != "orders" {
		t.Fatalf("expected getMore's collection field to be used, got %q, %v", env.Collection, env.HasCollection)
	}
}

func TestParseEnvelopeTransactionFields(t *testing.T) {
	id := primitive.Binary{Subtype: 0x04, Data: []byte("session-a")}
	m := bson.M{
		"find":             "orders",
		"$db":              "shop",
		"lsid":             bson.M{"id": id},
		"txnNumber":        int64(7),
		"autocommit":       false,
		"startTransaction": true,
		"maxTimeMS":        int64(5000),
	}
	env := parseEnvelope(m, wire.ReqFind)
	if string(env.LSID) != "session-a" {
		t.Fatalf("unexpected lsid: %v", env.LSID)
	}
	if !env.HasTxnNumber || env.TxnNumber != 7 {
		t.Fatalf("unexpected txn number: %d, %v", env.TxnNumber, env.HasTxnNumber)
	}
	if env.AutoCommit {
		t.Fatal("expected autocommit false to be honored")
	}
	if !env.StartTxn {
		t.Fatal("expected startTransaction to be honored")
	}
	if env.MaxTimeMS != 5000 {
		t.Fatalf("unexpected maxTimeMS: %d", env.MaxTimeMS)
	}
}
