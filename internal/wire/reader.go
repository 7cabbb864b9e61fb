package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/documentdb/gatewaygw/internal/gwerror"
)

// ReadBody reads the remainder of a message (header.Length - HeaderLength
// bytes) off stream.
func ReadBody(header *Header, stream io.Reader) ([]byte, error) {
	size := int(header.Length) - HeaderLength
	if size < 0 {
		return nil, gwerror.BadValue("Message length could not be converted to a body size")
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(stream, buf); err != nil {
		return nil, fmt.Errorf("reading message body: %w", err)
	}
	return buf, nil
}

// ParseRequest decodes a message body into a typed Request according to
// header.OpCode. OP_INSERT is synthesized into a command document
// (spec.md §4.1); OP_QUERY's query document and OP_MSG's first section are
// used as the command document directly.
func ParseRequest(header *Header, body []byte) (*Request, error) {
	switch header.OpCode {
	case OpQuery:
		return parseOpQuery(header, body)
	case OpMsg:
		return parseOpMsg(header, body)
	case OpInsert:
		return parseOpInsert(header, body)
	default:
		return nil, gwerror.InternalError(fmt.Sprintf("Unexpected request opcode: %s", header.OpCode))
	}
}

func parseOpMsg(header *Header, body []byte) (*Request, error) {
	msg, err := readOpMsg(body)
	if err != nil {
		return nil, err
	}
	if len(msg.sections) == 0 {
		return nil, gwerror.BadValue("Message had no sections")
	}
	if len(msg.sections) > 2 {
		return nil, gwerror.BadValue("Expected at most two sections.")
	}

	first := msg.sections[0]
	if first.payloadType != 0 {
		return nil, gwerror.BadValue("Expected first section to be a single document.")
	}

	var extra []byte
	if len(msg.sections) == 2 {
		second := msg.sections[1]
		if second.payloadType == 0 {
			extra = second.doc
		} else {
			extra = second.documents
		}
	}

	return newRequestFromCommand(header, first.doc, extra)
}

func parseOpQuery(header *Header, body []byte) (*Request, error) {
	if len(body) < 4 {
		return nil, gwerror.BadValue("OP_QUERY body truncated")
	}
	collEnd := bytes.IndexByte(body[4:], 0)
	if collEnd < 0 {
		return nil, gwerror.BadValue("Message did not contain a string")
	}
	collectionPath := string(body[4 : 4+collEnd])
	pos := 4 + collEnd + 1

	if len(body) < pos+8 {
		return nil, gwerror.BadValue("OP_QUERY body truncated")
	}
	pos += 8 // numberToSkip, numberToReturn

	docLen, err := bsonDocLength(body[pos:])
	if err != nil {
		return nil, err
	}
	query := body[pos : pos+docLen]

	_, collectionName, err := extractDatabaseAndCollectionNames(collectionPath)
	if err != nil {
		return nil, err
	}
	if collectionName != "$cmd" {
		return nil, gwerror.InternalError("Unable to parse OpQuery request")
	}

	return newRequestFromCommand(header, query, nil)
}

func parseOpInsert(header *Header, body []byte) (*Request, error) {
	if len(body) < 4 {
		return nil, gwerror.BadValue("OP_INSERT body truncated")
	}
	flags := int32(binary.LittleEndian.Uint32(body[0:4]))

	collEnd := bytes.IndexByte(body[4:], 0)
	if collEnd < 0 {
		return nil, gwerror.BadValue("Message did not contain a string")
	}
	collectionPath := string(body[4 : 4+collEnd])
	docsStart := 4 + collEnd + 1

	db, coll, err := extractDatabaseAndCollectionNames(collectionPath)
	if err != nil {
		return nil, err
	}

	docs, err := splitDocuments(body[docsStart:])
	if err != nil {
		return nil, err
	}

	cmd := synthesizeInsertCommand(coll, (flags&1) == 0, db, docs)

	return &Request{
		Type:       ReqInsert,
		Command:    cmd,
		OpCode:     header.OpCode,
		RequestID:  header.RequestID,
		ResponseTo: header.ResponseTo,
		ActivityID: header.ActivityID,
	}, nil
}

func newRequestFromCommand(header *Header, command, extra []byte) (*Request, error) {
	name, err := firstFieldName(command)
	if err != nil {
		return nil, err
	}
	return &Request{
		Type:       RequestTypeFromCommandName(name),
		Command:    command,
		Extra:      extra,
		OpCode:     header.OpCode,
		RequestID:  header.RequestID,
		ResponseTo: header.ResponseTo,
		ActivityID: header.ActivityID,
	}, nil
}

// firstFieldName reads the name of the first top-level BSON element, which
// by convention of every command protocol this gateway speaks is the
// command name ("find", "insert", "saslStart", ...).
func firstFieldName(doc []byte) (string, error) {
	if len(doc) < 5 {
		return "", gwerror.BadValue("Admin command received without a command.")
	}
	// Skip the 4-byte document length; the first element is
	// `type(1) cstring(name) value...`.
	pos := 4
	if pos >= len(doc) {
		return "", gwerror.BadValue("Admin command received without a command.")
	}
	nameStart := pos + 1
	nameEnd := bytes.IndexByte(doc[nameStart:], 0)
	if nameEnd < 0 {
		return "", gwerror.BadValue("Admin command received without a command.")
	}
	return string(doc[nameStart : nameStart+nameEnd]), nil
}

// extractDatabaseAndCollectionNames splits "db.collection[.more]" into its
// database and collection parts (the collection part may itself contain
// further dots, e.g. "db.system.profile").
func extractDatabaseAndCollectionNames(ns string) (db, collection string, err error) {
	idx := strings.IndexByte(ns, '.')
	if idx < 0 {
		return "", "", gwerror.BadValue("Source namespace not valid")
	}
	return ns[:idx], ns[idx+1:], nil
}

// ExtractNamespace is the exported form used by dispatch handlers that
// receive a "db.collection" string out of a command field.
func ExtractNamespace(ns string) (db, collection string, err error) {
	return extractDatabaseAndCollectionNames(ns)
}
