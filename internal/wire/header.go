package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// HeaderLength is the fixed size of the wire message header: four LE int32
// fields (length, request_id, response_to, op_code).
const HeaderLength = 16

// Header is the 16-byte envelope that precedes every wire message. Request
// ids can wrap around over a long-lived connection, so ActivityID (not
// written to the stream) is generated fresh per read and used for log
// correlation across the lifetime of handling that one message.
type Header struct {
	Length     int32
	RequestID  int32
	ResponseTo int32
	OpCode     OpCode
	ActivityID string
}

// WriteTo serializes the header's four wire fields in little-endian order.
// ActivityID is never written — it exists only for the gateway's own logs.
func (h *Header) WriteTo(w io.Writer) error {
	var buf [HeaderLength]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Length))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.RequestID))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(h.ResponseTo))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(h.OpCode))
	_, err := w.Write(buf[:])
	return err
}

// ReadHeader reads one header off r. An EOF, a closed pipe, or a header
// cut short by the peer closing mid-read (io.ErrUnexpectedEOF) returns
// (nil, nil) so the connection loop treats it as "peer hung up" rather
// than a protocol error.
func ReadHeader(r io.Reader) (*Header, error) {
	var buf [HeaderLength]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading message header: %w", err)
	}
	return &Header{
		Length:     int32(binary.LittleEndian.Uint32(buf[0:4])),
		RequestID:  int32(binary.LittleEndian.Uint32(buf[4:8])),
		ResponseTo: int32(binary.LittleEndian.Uint32(buf[8:12])),
		OpCode:     OpCodeFromValue(int32(binary.LittleEndian.Uint32(buf[12:16]))),
		ActivityID: uuid.NewString(),
	}, nil
}
