package dispatch

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestNormalizeOkToInt(t *testing.T) {
	raw, err := bson.Marshal(bson.M{"ok": true, "nIndexesWas": int32(2)})
	if err != nil {
		t.Fatal(err)
	}
	out, err := normalizeOkToInt(raw)
	if err != nil {
		t.Fatal(err)
	}
	var m bson.M
	if err := bson.Unmarshal(out, &m); err != nil {
		t.Fatal(err)
	}
	if m["ok"] != int32(1) {
		t.Fatalf("expected ok to become int32(1), got %v (%T)", m["ok"], m["ok"])
	}
}

func TestNormalizeOkToIntLeavesNonBoolOkAlone(t *testing.T) {
	raw, err := bson.Marshal(bson.M{"ok": float64(1)})
	if err != nil {
		t.Fatal(err)
	}
	out, err := normalizeOkToInt(raw)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != string(raw) {
		t.Fatal("expected a document whose ok field isn't a bool to pass through unchanged")
	}
}
