package property

import (
	"bytes"

	"github.com/pkg/errors"
)

// Value is a typed column value, the decoded counterpart of a Row's
// bytes for one column.
type Value struct {
	Type ValueType
	I64  int64
	I32  int32
	Str  string
}

func Int64Value(v int64) Value  { return Value{Type: Int64, I64: v} }
func Int32Value(v int32) Value  { return Value{Type: Int32, I32: v} }
func StringValue(v string) Value { return Value{Type: String, Str: v} }

// SortKey is the canonical, byte-wise comparable prefix of a row,
// derived from its leading sort-key columns.
type SortKey []byte

// Compare implements the byte-wise total order spec.md §3 requires.
func (k SortKey) Compare(other SortKey) int {
	return bytes.Compare(k, other)
}

func (k SortKey) Equal(other SortKey) bool {
	return bytes.Equal(k, other)
}

func (k SortKey) String() string { return string(k) }

// delimiterByte is reserved for lock keys (subtable_key + '#' +
// sort_key) and must not appear in a user-supplied sort key or
// subtable key.
const delimiterByte = '#'

// ValidateNoDelimiter enforces the "# is disallowed" invariant from
// spec.md §3.
func ValidateNoDelimiter(b []byte) error {
	if bytes.IndexByte(b, delimiterByte) >= 0 {
		return errors.Errorf("value %q contains reserved delimiter byte '#'", b)
	}
	return nil
}

// Row is an opaque, immutable, self-describing byte record. Its
// leading bytes are exactly its sort key, encoded order-preservingly;
// the remaining bytes are the non-sort-key columns, length-prefixed.
type Row []byte

// EncodeRow serializes values into a Row according to schema. The
// first schema.SortKeyCount values are encoded order-preservingly and
// form the row's sort key prefix; the rest are length-prefixed.
func EncodeRow(values []Value, schema *Schema) (Row, error) {
	if len(values) != len(schema.Columns) {
		return nil, errors.Errorf("property: expected %d values, got %d", len(schema.Columns), len(values))
	}
	var buf []byte
	for i, v := range values {
		col := schema.Columns[i]
		if v.Type != col.Type {
			return nil, errors.Errorf("property: column %q expects %s, got %s", col.Name, col.Type, v.Type)
		}
		sortKeyCol := i < schema.SortKeyCount
		buf = encodeValue(buf, v, sortKeyCol)
	}
	return Row(buf), nil
}

func encodeValue(buf []byte, v Value, sortKeyCol bool) []byte {
	switch v.Type {
	case Int64:
		if sortKeyCol {
			return encodeInt64Ascending(buf, v.I64)
		}
		var tmp [8]byte
		putInt64(tmp[:], v.I64)
		return encodeLenPrefixed(buf, tmp[:])
	case Int32:
		if sortKeyCol {
			return encodeInt32Ascending(buf, v.I32)
		}
		var tmp [4]byte
		putInt32(tmp[:], v.I32)
		return encodeLenPrefixed(buf, tmp[:])
	case String:
		if sortKeyCol {
			return encodeStringAscending(buf, v.Str)
		}
		return encodeLenPrefixed(buf, []byte(v.Str))
	default:
		panic("property: unknown value type")
	}
}

func putInt64(b []byte, v int64) { putUint64(b, uint64(v)) }
func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * (7 - i)))
	}
}
func putInt32(b []byte, v int32) { putUint32(b, uint32(v)) }
func putUint32(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (8 * (3 - i)))
	}
}

// SortKey extracts the row's sort-key prefix by replaying the
// encoding of its leading sort-key columns. This never allocates a
// decoded Value, it just needs to know where the prefix ends.
func (r Row) SortKey(schema *Schema) (SortKey, error) {
	b := []byte(r)
	start := b
	for i := 0; i < schema.SortKeyCount; i++ {
		col := schema.Columns[i]
		var err error
		b, err = skipSortKeyColumn(b, col.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "property: decoding sort key column %d", i)
		}
	}
	return SortKey(start[:len(start)-len(b)]), nil
}

func skipSortKeyColumn(b []byte, t ValueType) ([]byte, error) {
	switch t {
	case Int64:
		_, rest, err := decodeInt64Ascending(b)
		return rest, err
	case Int32:
		_, rest, err := decodeInt32Ascending(b)
		return rest, err
	case String:
		_, rest, err := decodeStringAscending(b)
		return rest, err
	default:
		return nil, errors.New("property: unknown sort key column type")
	}
}

// EncodeSortKey builds just the sort-key prefix from values, used for
// point lookups and deletes that don't need a full row.
func EncodeSortKey(values []Value, schema *Schema) (SortKey, error) {
	if len(values) != schema.SortKeyCount {
		return nil, errors.Errorf("property: expected %d sort key values, got %d", schema.SortKeyCount, len(values))
	}
	var buf []byte
	for i, v := range values {
		col := schema.Columns[i]
		if v.Type != col.Type {
			return nil, errors.Errorf("property: sort key column %q expects %s, got %s", col.Name, col.Type, v.Type)
		}
		buf = encodeValue(buf, v, true)
	}
	return SortKey(buf), nil
}

// GetColumn decodes the value at column index idx. Sort-key columns
// are skipped over (not decoded) to find the offset of idx if idx is
// a payload column; if idx is itself a sort-key column it is decoded
// directly.
func (r Row) GetColumn(idx int, schema *Schema) (Value, error) {
	if idx < 0 || idx >= len(schema.Columns) {
		return Value{}, errors.Errorf("property: column index %d out of range", idx)
	}
	b := []byte(r)
	for i := 0; i < schema.SortKeyCount; i++ {
		col := schema.Columns[i]
		if i == idx {
			return decodeSortKeyColumn(b, col.Type)
		}
		var err error
		b, err = skipSortKeyColumn(b, col.Type)
		if err != nil {
			return Value{}, err
		}
	}
	for i := schema.SortKeyCount; i < len(schema.Columns); i++ {
		col := schema.Columns[i]
		payload, rest, err := decodeLenPrefixed(b)
		if err != nil {
			return Value{}, errors.Wrapf(err, "property: decoding column %d", i)
		}
		if i == idx {
			return decodePayloadColumn(payload, col.Type)
		}
		b = rest
	}
	return Value{}, errors.Errorf("property: column index %d not found", idx)
}

func decodeSortKeyColumn(b []byte, t ValueType) (Value, error) {
	switch t {
	case Int64:
		v, _, err := decodeInt64Ascending(b)
		return Int64Value(v), err
	case Int32:
		v, _, err := decodeInt32Ascending(b)
		return Int32Value(v), err
	case String:
		v, _, err := decodeStringAscending(b)
		return StringValue(v), err
	default:
		return Value{}, errors.New("property: unknown sort key column type")
	}
}

func decodePayloadColumn(payload []byte, t ValueType) (Value, error) {
	switch t {
	case Int64:
		if len(payload) != 8 {
			return Value{}, errors.New("property: malformed int64 payload")
		}
		var u uint64
		for i := 0; i < 8; i++ {
			u = u<<8 | uint64(payload[i])
		}
		return Int64Value(int64(u)), nil
	case Int32:
		if len(payload) != 4 {
			return Value{}, errors.New("property: malformed int32 payload")
		}
		var u uint32
		for i := 0; i < 4; i++ {
			u = u<<8 | uint32(payload[i])
		}
		return Int32Value(int32(u)), nil
	case String:
		return StringValue(string(payload)), nil
	default:
		return Value{}, errors.New("property: unknown payload column type")
	}
}
