package dispatch

import (
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/documentdb/gatewaygw/internal/gwerror"
	"github.com/documentdb/gatewaygw/internal/wire"
)

// decode unmarshals a raw command document into a plain map, the shape
// every helper in this package operates on. Decoding once per command up
// front, instead of threading bson.Raw lookups through each handler, keeps
// the handlers themselves readable and gives every field accessor the same
// simple bson.M to work against.
func decode(raw []byte) (bson.M, error) {
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, gwerror.Wrap(gwerror.KindBson, err)
	}
	return m, nil
}

// caseInsensitiveLookup finds a top-level field by name ignoring case, for
// the handful of places a command's own name reappears as a field whose
// casing the wire layer does not preserve in its routing key (e.g. the
// "findAndModify" field on a request routed as RequestType "findandmodify").
func caseInsensitiveLookup(m bson.M, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	target := strings.ToLower(key)
	for k, v := range m {
		if strings.ToLower(k) == target {
			return v, true
		}
	}
	return nil, false
}

func stringField(m bson.M, key string) (string, bool) {
	v, ok := caseInsensitiveLookup(m, key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func requireStringField(m bson.M, key string) (string, error) {
	s, ok := stringField(m, key)
	if !ok {
		return "", gwerror.BadValue("BSON field '" + key + "' is missing but a required field")
	}
	return s, nil
}

func boolField(m bson.M, key string, fallback bool) bool {
	v, ok := caseInsensitiveLookup(m, key)
	if !ok {
		return fallback
	}
	switch b := v.(type) {
	case bool:
		return b
	case int32:
		return b != 0
	case int64:
		return b != 0
	case float64:
		return b != 0
	default:
		return fallback
	}
}

// int64Field accepts any of BSON's numeric representations, matching the
// way MongoDB commands accept int32/int64/double interchangeably for
// numeric options.
func int64Field(m bson.M, key string) (int64, bool) {
	v, ok := caseInsensitiveLookup(m, key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func float64Field(m bson.M, key string) (float64, bool) {
	v, ok := caseInsensitiveLookup(m, key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func documentField(m bson.M, key string) (bson.M, bool) {
	v, ok := caseInsensitiveLookup(m, key)
	if !ok {
		return nil, false
	}
	doc, ok := v.(bson.M)
	return doc, ok
}

func arrayField(m bson.M, key string) (bson.A, bool) {
	v, ok := caseInsensitiveLookup(m, key)
	if !ok {
		return nil, false
	}
	a, ok := v.(bson.A)
	return a, ok
}

// commandCollectionName returns the string value of the field matching the
// command's own name (case-insensitively), which by MongoDB wire-protocol
// convention holds the target collection name, e.g. {find: "orders", ...}.
func commandCollectionName(m bson.M, reqType wire.RequestType) (string, bool) {
	return stringField(m, string(reqType))
}

// lsidBytes extracts the opaque session identifier bytes from a command's
// lsid.id subfield, used as the key for both the cursor and transaction
// stores.
func lsidBytes(m bson.M) ([]byte, bool) {
	doc, ok := documentField(m, "lsid")
	if !ok {
		return nil, false
	}
	v, ok := caseInsensitiveLookup(doc, "id")
	if !ok {
		return nil, false
	}
	bin, ok := v.(primitive.Binary)
	if !ok {
		return nil, false
	}
	return bin.Data, true
}

// convertToScale mirrors the original implementation's permissive scale
// parsing for collStats/dbStats: Double/Int32/Int64 are accepted, an absent
// or explicitly null scale defaults to 1.0, and anything else is a type
// error.
func convertToScale(m bson.M) (float64, error) {
	v, ok := caseInsensitiveLookup(m, "scale")
	if !ok || v == nil {
		return 1.0, nil
	}
	switch n := v.(type) {
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, gwerror.TypeMismatch("scale has to be a number")
	}
}

// bytesToInt64 decodes a Postgres int8 column value in either wire format
// pgx may hand back for a scalar column scanned as raw bytes: binary
// (8-byte big-endian two's complement) or text (a base-10 literal).
func bytesToInt64(raw []byte) int64 {
	if len(raw) == 8 {
		var v uint64
		for _, b := range raw {
			v = v<<8 | uint64(b)
		}
		return int64(v)
	}
	n, _ := strconv.ParseInt(string(raw), 10, 64)
	return n
}

// int64ArrayField decodes an array field of mixed BSON numeric types into
// []int64, skipping any element that isn't numeric.
func int64ArrayField(m bson.M, key string) ([]int64, bool) {
	a, ok := arrayField(m, key)
	if !ok {
		return nil, false
	}
	out := make([]int64, 0, len(a))
	for _, v := range a {
		switch n := v.(type) {
		case int32:
			out = append(out, int64(n))
		case int64:
			out = append(out, n)
		case float64:
			out = append(out, int64(n))
		}
	}
	return out, true
}

func int64sToA(ids []int64) bson.A {
	a := make(bson.A, len(ids))
	for i, id := range ids {
		a[i] = id
	}
	return a
}

// bytesToBool mirrors dynconfig's isTruthyBool for a boolean column scanned
// as raw bytes rather than through pgx's typed Scan.
func bytesToBool(raw []byte) bool {
	if len(raw) == 1 && (raw[0] == 0 || raw[0] == 1) {
		return raw[0] == 1
	}
	switch strings.ToLower(string(raw)) {
	case "t", "true", "1":
		return true
	default:
		return false
	}
}
