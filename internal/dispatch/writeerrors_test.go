package dispatch

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/documentdb/gatewaygw/internal/gwerror"
)

func TestTransformWriteErrorsPassesThroughWithoutWriteErrors(t *testing.T) {
	raw, err := bson.Marshal(bson.M{"ok": float64(1), "n": int32(1)})
	if err != nil {
		t.Fatal(err)
	}
	out, err := transformWriteErrors(gwerror.BackendErrorContext{}, raw)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != string(raw) {
		t.Fatal("expected a document without writeErrors to pass through unchanged")
	}
}

func TestTransformWriteErrorsRemapsKnownCode(t *testing.T) {
	code := gwerror.SQLStateToInt32(gwerror.SQLStateUniqueViolation)
	raw, err := bson.Marshal(bson.M{
		"ok": float64(1),
		"writeErrors": bson.A{
			bson.M{"index": int32(0), "code": code, "errmsg": "duplicate key"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := transformWriteErrors(gwerror.BackendErrorContext{}, raw)
	if err != nil {
		t.Fatal(err)
	}

	var m bson.M
	if err := bson.Unmarshal(out, &m); err != nil {
		t.Fatal(err)
	}
	errs, ok := m["writeErrors"].(bson.A)
	if !ok || len(errs) != 1 {
		t.Fatalf("unexpected writeErrors: %+v", m["writeErrors"])
	}
	entry := errs[0].(bson.M)
	if entry["code"] != int32(gwerror.CodeDuplicateKey) {
		t.Fatalf("expected code to be remapped to CodeDuplicateKey, got %v", entry["code"])
	}
	if entry["errmsg"] != "Duplicate key violation on the requested collection" {
		t.Fatalf("expected overridden message, got %v", entry["errmsg"])
	}
}

func TestTransformWriteErrorsEscalatesSeriousCodes(t *testing.T) {
	code := gwerror.SQLStateToInt32(gwerror.SQLStateInsufficientPrivilege)
	raw, err := bson.Marshal(bson.M{
		"ok": float64(1),
		"writeErrors": bson.A{
			bson.M{"index": int32(0), "code": code, "errmsg": "permission denied"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = transformWriteErrors(gwerror.BackendErrorContext{}, raw)
	if err == nil {
		t.Fatal("expected an unauthorized writeError to escalate to a command-level failure")
	}
}
