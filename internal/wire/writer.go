package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/documentdb/gatewaygw/internal/gwerror"
)

// WriteResponse serializes doc (an already-marshaled BSON document) back
// to the client in the framing the original request's opcode requires
// (spec.md §4.1): OP_MSG gets OP_MSG, OP_QUERY gets legacy OP_REPLY,
// OP_INSERT gets nothing (one-way). Any other opcode reaching here is an
// internal error — the dispatcher never builds a Request for one.
func WriteResponse(header *Header, doc []byte, w io.Writer) error {
	switch header.OpCode {
	case OpMsg:
		return writeMsgReply(header, doc, w)
	case OpQuery:
		return writeLegacyReply(header, doc, w)
	case OpInsert:
		return nil
	default:
		return gwerror.InternalError(fmt.Sprintf("Unexpected response opcode: %s", header.OpCode))
	}
}

func writeMsgReply(header *Header, doc []byte, w io.Writer) error {
	totalLength := HeaderLength + 4 + 1 + len(doc) // flags + payload-type byte + doc
	out := &Header{
		Length:     int32(totalLength),
		RequestID:  header.RequestID,
		ResponseTo: header.RequestID,
		OpCode:     OpMsg,
		ActivityID: header.ActivityID,
	}
	if err := out.WriteTo(w); err != nil {
		return err
	}
	var flags [4]byte // always 0: the gateway never sets MORE_TO_COME on a reply
	if _, err := w.Write(flags[:]); err != nil {
		return err
	}
	if _, err := w.Write([]byte{0}); err != nil { // payload type 0
		return err
	}
	_, err := w.Write(doc)
	return err
}

func writeLegacyReply(header *Header, doc []byte, w io.Writer) error {
	totalLength := HeaderLength + 20 + len(doc) // responseFlags,cursorId,startingFrom,numberReturned + doc
	out := &Header{
		Length:     int32(totalLength),
		RequestID:  header.RequestID,
		ResponseTo: header.RequestID,
		OpCode:     OpReply,
		ActivityID: header.ActivityID,
	}
	if err := out.WriteTo(w); err != nil {
		return err
	}
	var rest [20]byte
	binary.LittleEndian.PutUint32(rest[0:4], 0)  // responseFlags
	binary.LittleEndian.PutUint64(rest[4:12], 0) // cursorId
	binary.LittleEndian.PutUint32(rest[12:16], 0) // startingFrom
	binary.LittleEndian.PutUint32(rest[16:20], 1) // numberReturned
	if _, err := w.Write(rest[:]); err != nil {
		return err
	}
	_, err := w.Write(doc)
	return err
}

// WriteError recovers any handler error into a CommandError document and
// writes it on the same request id, keeping the connection open (spec.md
// §7 — only transport failures break the loop).
func WriteError(header *Header, err error, w io.Writer) error {
	doc, mErr := bson.Marshal(gwerror.FromError(err))
	if mErr != nil {
		return fmt.Errorf("serializing error response: %w", mErr)
	}
	return WriteResponse(header, doc, w)
}

// WriteErrorWithoutHeader reports a failure that occurred before a request
// header could even be parsed (e.g. a malformed length prefix). It
// synthesizes a minimal OP_MSG header of its own, matching the original
// implementation's header-less error path.
func WriteErrorWithoutHeader(activityID string, err error, w io.Writer) error {
	doc, mErr := bson.Marshal(gwerror.FromError(err))
	if mErr != nil {
		return fmt.Errorf("serializing error response: %w", mErr)
	}
	header := &Header{RequestID: 0, ResponseTo: 0, OpCode: OpMsg, ActivityID: activityID}
	return WriteResponse(header, doc, w)
}
