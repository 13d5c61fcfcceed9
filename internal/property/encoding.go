package property

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Order-preserving value encoding. Sort-key columns are encoded with
// these routines so that the byte-wise order of the encoded prefix
// matches the natural order of the underlying values; non-sort-key
// columns use plain length-prefixed encoding since their bytes are
// never compared directly, only extracted by index.
//
// Grounded on the ascending fixed-width int encoding and the
// escaped/terminated byte-string encoding in
// cockroachdb-cockroach/util/encoding (EncodeUint64Ascending /
// EncodeBytesAscending), simplified to the three value kinds this
// engine supports (Int64, Int32, String).

// encodeInt64Ascending flips the sign bit so two's-complement
// ordering becomes unsigned big-endian byte ordering, then writes 8
// bytes big-endian.
func encodeInt64Ascending(buf []byte, v int64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v)^(1<<63))
	return append(buf, tmp[:]...)
}

func decodeInt64Ascending(b []byte) (int64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, errors.New("encoding: buffer too short for int64")
	}
	u := binary.BigEndian.Uint64(b[:8])
	return int64(u ^ (1 << 63)), b[8:], nil
}

func encodeInt32Ascending(buf []byte, v int32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v)^(1<<31))
	return append(buf, tmp[:]...)
}

func decodeInt32Ascending(b []byte) (int32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, errors.New("encoding: buffer too short for int32")
	}
	u := binary.BigEndian.Uint32(b[:4])
	return int32(u ^ (1 << 31)), b[4:], nil
}

// escape/terminator bytes used by the order-preserving string
// encoding: 0x00 is escaped to 0x00 0xff, the string is terminated by
// 0x00 0x01 so that a shorter string sorts before any string it is a
// strict prefix of.
const (
	escapedTerm00 byte = 0x00
	escapedFF     byte = 0xff
	terminator01  byte = 0x01
)

func encodeStringAscending(buf []byte, v string) []byte {
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c == escapedTerm00 {
			buf = append(buf, escapedTerm00, escapedFF)
		} else {
			buf = append(buf, c)
		}
	}
	return append(buf, escapedTerm00, terminator01)
}

func decodeStringAscending(b []byte) (string, []byte, error) {
	var out []byte
	for i := 0; i < len(b); i++ {
		if b[i] == escapedTerm00 {
			if i+1 >= len(b) {
				return "", nil, errors.New("encoding: truncated string terminator")
			}
			switch b[i+1] {
			case escapedFF:
				out = append(out, escapedTerm00)
				i++
				continue
			case terminator01:
				return string(out), b[i+2:], nil
			default:
				return "", nil, errors.Errorf("encoding: invalid escape byte 0x%02x", b[i+1])
			}
		}
		out = append(out, b[i])
	}
	return "", nil, errors.New("encoding: unterminated string")
}

// encodeLenPrefixed writes a uvarint length followed by the raw
// bytes, used for non-sort-key payload columns where byte order does
// not matter.
func encodeLenPrefixed(buf []byte, v []byte) []byte {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(v)))
	buf = append(buf, lenBuf[:n]...)
	return append(buf, v...)
}

func decodeLenPrefixed(b []byte) ([]byte, []byte, error) {
	length, n := binary.Uvarint(b)
	if n <= 0 {
		return nil, nil, errors.New("encoding: invalid varint length")
	}
	b = b[n:]
	if uint64(len(b)) < length {
		return nil, nil, errors.New("encoding: buffer too short for payload")
	}
	return b[:length], b[length:], nil
}
