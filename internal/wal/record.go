package wal

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// RecordKind is the semantic record type written by the transaction
// layer's durability hooks (spec §4.2, §6): Begin/Commit/Abort.
// AppendLogRecord's body is empty in the original source (spec §9
// Open Question); this is the concrete framing this port supplies so
// the hooks are runnable, leaving log parsing/replay out of scope.
type RecordKind uint8

const (
	RecordBegin RecordKind = iota
	RecordCommit
	RecordAbort
)

// EncodeRecord serializes a Begin/Commit/Abort record as:
//
//	[1 byte kind][8 bytes readTs][8 bytes commitTs (0 for Begin/Abort)]
//
// Every record is exactly 17 bytes. No length prefix is written,
// neither here nor by Ring.Append, which copies the bytes as given.
func EncodeRecord(kind RecordKind, readTs, commitTs uint64) []byte {
	buf := make([]byte, 1+8+8)
	buf[0] = byte(kind)
	binary.BigEndian.PutUint64(buf[1:9], readTs)
	binary.BigEndian.PutUint64(buf[9:17], commitTs)
	return buf
}

// DecodeRecord is the inverse of EncodeRecord, provided for
// completeness and unit testing even though log replay itself is out
// of scope.
func DecodeRecord(b []byte) (kind RecordKind, readTs, commitTs uint64, err error) {
	if len(b) != 17 {
		return 0, 0, 0, errors.Errorf("wal: malformed record length %d", len(b))
	}
	kind = RecordKind(b[0])
	readTs = binary.BigEndian.Uint64(b[1:9])
	commitTs = binary.BigEndian.Uint64(b[9:17])
	return kind, readTs, commitTs, nil
}
