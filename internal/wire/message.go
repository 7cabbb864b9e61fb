package wire

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/documentdb/gatewaygw/internal/gwerror"
)

const (
	msgFlagChecksumPresent uint32 = 0b001
	msgFlagMoreToCome      uint32 = 0b010
)

// section is one OP_MSG payload section: a single command document
// (payloadType 0) or an identifier plus a run of concatenated documents
// (payloadType 1, used for batched inserts/updates/deletes).
type section struct {
	payloadType int
	doc         []byte // payloadType 0
	identifier  string // payloadType 1
	documents   []byte // payloadType 1: concatenated raw BSON documents
}

// parsedMsg is the decoded form of an OP_MSG body (after the 16-byte
// header has already been consumed).
type parsedMsg struct {
	moreToCome bool
	sections   []section
}

// readOpMsg decodes an OP_MSG body: a u32 flags word, then sections until
// the declared length is exhausted, then an optional 4-byte checksum.
// Sections are reordered so the single-document section always precedes
// the sequence section — some drivers send them out of order.
func readOpMsg(body []byte) (*parsedMsg, error) {
	if len(body) < 4 {
		return nil, gwerror.BadValue("Message request was not the length promised")
	}
	flags := binary.LittleEndian.Uint32(body[0:4])
	rest := body[4:]

	var sections []section
	pos := 0
	for len(rest)-pos > 4 {
		sec, n, err := readSection(rest[pos:])
		if err != nil {
			return nil, err
		}
		sections = append(sections, sec)
		pos += n
	}

	remaining := len(rest) - pos
	if remaining == 4 && flags&msgFlagChecksumPresent != 0 {
		pos += 4 // checksum present, not validated (transport-level concern)
	} else if remaining != 0 {
		return nil, gwerror.BadValue("Message request was not the length promised")
	}

	sort.SliceStable(sections, func(i, j int) bool {
		return sections[i].payloadType < sections[j].payloadType
	})

	return &parsedMsg{
		moreToCome: flags&msgFlagMoreToCome != 0,
		sections:   sections,
	}, nil
}

func readSection(b []byte) (section, int, error) {
	if len(b) < 1 {
		return section{}, 0, gwerror.BadValue("Message section truncated")
	}
	payloadType := int(b[0])
	if payloadType == 0 {
		docLen, err := bsonDocLength(b[1:])
		if err != nil {
			return section{}, 0, err
		}
		return section{payloadType: 0, doc: b[1 : 1+docLen]}, 1 + docLen, nil
	}

	if len(b) < 5 {
		return section{}, 0, gwerror.BadValue("Message sequence section truncated")
	}
	size := int(int32(binary.LittleEndian.Uint32(b[1:5])))
	if size < 4 || 1+size > len(b) {
		return section{}, 0, gwerror.BadValue("Message sequence section had an invalid size")
	}
	rest := b[5 : 1+size]
	idEnd := bytes.IndexByte(rest, 0)
	if idEnd < 0 {
		return section{}, 0, gwerror.BadValue("Message sequence section had no identifier")
	}
	identifier := string(rest[:idEnd])
	documents := rest[idEnd+1:]
	return section{payloadType: 1, identifier: identifier, documents: documents}, 1 + size, nil
}

// bsonDocLength reads the 4-byte little-endian length prefix of a BSON
// document and returns the full document length (including the prefix).
func bsonDocLength(b []byte) (int, error) {
	if len(b) < 4 {
		return 0, gwerror.BadValue("BSON document truncated")
	}
	l := int(int32(binary.LittleEndian.Uint32(b[0:4])))
	if l < 5 || l > len(b) {
		return 0, gwerror.BadValue("BSON document length out of range")
	}
	return l, nil
}

// splitDocuments splits a run of concatenated raw BSON documents (as used
// in an OP_MSG sequence section or an OP_INSERT body) into individual
// document byte slices.
func splitDocuments(b []byte) ([][]byte, error) {
	var docs [][]byte
	pos := 0
	for pos < len(b) {
		l, err := bsonDocLength(b[pos:])
		if err != nil {
			return nil, err
		}
		docs = append(docs, b[pos:pos+l])
		pos += l
	}
	return docs, nil
}
