package dispatch

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCaseInsensitiveLookup(t *testing.T) {
	m := bson.M{"findAndModify": "orders"}
	v, ok := caseInsensitiveLookup(m, "findandmodify")
	if !ok || v != "orders" {
		t.Fatalf("expected case-insensitive match, got %v, %v", v, ok)
	}

	if _, ok := caseInsensitiveLookup(m, "missing"); ok {
		t.Fatal("expected no match for a field that isn't present")
	}
}

func TestStringField(t *testing.T) {
	m := bson.M{"name": "orders"}
	s, ok := stringField(m, "name")
	if !ok || s != "orders" {
		t.Fatalf("unexpected result: %q, %v", s, ok)
	}

	if _, ok := stringField(m, "missing"); ok {
		t.Fatal("expected no match")
	}

	wrong := bson.M{"name": int32(1)}
	if _, ok := stringField(wrong, "name"); ok {
		t.Fatal("expected type mismatch to report no match")
	}
}

func TestRequireStringFieldMissing(t *testing.T) {
	if _, err := requireStringField(bson.M{}, "collection"); err == nil {
		t.Fatal("expected an error for a missing required field")
	}
}

func TestBoolField(t *testing.T) {
	cases := []struct {
		val      any
		fallback bool
		want     bool
	}{
		{true, false, true},
		{int32(0), true, false},
		{int64(5), false, true},
		{float64(0), true, false},
	}
	for _, c := range cases {
		got := boolField(bson.M{"x": c.val}, "x", c.fallback)
		if got != c.want {
			t.Fatalf("boolField(%v, fallback=%v) = %v, want %v", c.val, c.fallback, got, c.want)
		}
	}

	if !boolField(bson.M{}, "x", true) {
		t.Fatal("expected fallback to be returned for an absent field")
	}
}

func TestInt64Field(t *testing.T) {
	m := bson.M{"a": int32(3), "b": int64(4), "c": float64(5.9)}
	if n, ok := int64Field(m, "a"); !ok || n != 3 {
		t.Fatalf("unexpected a: %d, %v", n, ok)
	}
	if n, ok := int64Field(m, "b"); !ok || n != 4 {
		t.Fatalf("unexpected b: %d, %v", n, ok)
	}
	if n, ok := int64Field(m, "c"); !ok || n != 5 {
		t.Fatalf("unexpected c: %d, %v", n, ok)
	}
	if _, ok := int64Field(m, "missing"); ok {
		t.Fatal("expected no match")
	}
}

func TestDocumentAndArrayField(t *testing.T) {
	m := bson.M{"opts": bson.M{"w": int32(1)}, "cursors": bson.A{int64(1), int64(2)}}
	doc, ok := documentField(m, "opts")
	if !ok || doc["w"] != int32(1) {
		t.Fatalf("unexpected document: %+v, %v", doc, ok)
	}
	arr, ok := arrayField(m, "cursors")
	if !ok || len(arr) != 2 {
		t.Fatalf("unexpected array: %+v, %v", arr, ok)
	}
}

func TestLsidBytes(t *testing.T) {
	id := primitive.Binary{Subtype: 0x04, Data: []byte{1, 2, 3, 4}}
	m := bson.M{"lsid": bson.M{"id": id}}
	got, ok := lsidBytes(m)
	if !ok {
		t.Fatal("expected lsid to be found")
	}
	if string(got) != string(id.Data) {
		t.Fatalf("unexpected lsid bytes: %v", got)
	}

	if _, ok := lsidBytes(bson.M{}); ok {
		t.Fatal("expected no lsid on an empty document")
	}
}

func TestConvertToScale(t *testing.T) {
	if scale, err := convertToScale(bson.M{}); err != nil || scale != 1.0 {
		t.Fatalf("expected default scale of 1.0, got %v, %v", scale, err)
	}
	if scale, err := convertToScale(bson.M{"scale": nil}); err != nil || scale != 1.0 {
		t.Fatalf("expected null scale to default to 1.0, got %v, %v", scale, err)
	}
	if scale, err := convertToScale(bson.M{"scale": int32(1024)}); err != nil || scale != 1024 {
		t.Fatalf("unexpected scale: %v, %v", scale, err)
	}
	if _, err := convertToScale(bson.M{"scale": "big"}); err == nil {
		t.Fatal("expected a type error for a non-numeric scale")
	}
}

func TestInt64ArrayField(t *testing.T) {
	m := bson.M{"cursors": bson.A{int64(1), int32(2), "not-a-number", float64(3)}}
	ids, ok := int64ArrayField(m, "cursors")
	if !ok {
		t.Fatal("expected array to be found")
	}
	want := []int64{1, 2, 3}
	if len(ids) != len(want) {
		t.Fatalf("unexpected ids: %v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("unexpected ids: %v", ids)
		}
	}
}

func TestBytesToInt64(t *testing.T) {
	if got := bytesToInt64([]byte{0, 0, 0, 0, 0, 0, 0, 42}); got != 42 {
		t.Fatalf("expected 42 from binary encoding, got %d", got)
	}
	if got := bytesToInt64([]byte("42")); got != 42 {
		t.Fatalf("expected 42 from text encoding, got %d", got)
	}
}

func TestBytesToBool(t *testing.T) {
	if !bytesToBool([]byte{1}) {
		t.Fatal("expected single byte 0x01 to be true")
	}
	if bytesToBool([]byte{0}) {
		t.Fatal("expected single byte 0x00 to be false")
	}
	if !bytesToBool([]byte("true")) {
		t.Fatal("expected text \"true\" to be true")
	}
	if bytesToBool([]byte("false")) {
		t.Fatal("expected text \"false\" to be false")
	}
}
