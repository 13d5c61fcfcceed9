// Package property implements the row/schema encoder that spec.md §6
// names as an external collaborator ("row serialization and schema
// encoding" is out of scope for the hard engineering of the repo, but
// something has to produce the self-describing byte rows the page and
// txn layers operate on). The encoding is order-preserving on the
// leading sort-key columns, grounded on the byte-wise ascending key
// encoding scheme in cockroachdb-cockroach/util/encoding.
package property

import "fmt"

// ValueType is the type tag of a column.
type ValueType int

const (
	Int64 ValueType = iota
	Int32
	String
)

func (t ValueType) String() string {
	switch t {
	case Int64:
		return "Int64"
	case Int32:
		return "Int32"
	case String:
		return "String"
	default:
		return fmt.Sprintf("ValueType(%d)", int(t))
	}
}

// ColumnID identifies a column independent of its position.
type ColumnID int32

// Column describes one field of a row.
type Column struct {
	ColumnID ColumnID
	Name     string
	Type     ValueType
}

// Schema describes a row: its columns, in encoding order, and how
// many leading columns form the sort key.
type Schema struct {
	Columns      []Column
	SortKeyCount int

	byID map[ColumnID]int
}

// NewSchema builds a Schema and its column-id index.
func NewSchema(columns []Column, sortKeyCount int) *Schema {
	s := &Schema{
		Columns:      columns,
		SortKeyCount: sortKeyCount,
		byID:         make(map[ColumnID]int, len(columns)),
	}
	for i, c := range columns {
		s.byID[c.ColumnID] = i
	}
	return s
}

// IndexByID returns the column's position, or -1 if unknown.
func (s *Schema) IndexByID(id ColumnID) int {
	if idx, ok := s.byID[id]; ok {
		return idx
	}
	return -1
}
