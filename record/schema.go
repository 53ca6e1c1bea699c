// Package record implements kdb's record codec: encoding and decoding typed
// row tuples into the key/data byte fields of a B-tree cell, driven by a
// caller-supplied schema. See spec.md §4.A.
package record

// ColType is a supported column type.
type ColType uint8

const (
	ColTypeUnknown ColType = iota
	// Integer data columns are stored as an 8-byte little-endian unsigned
	// integer. An Integer primary key becomes the cell's fixed-width 8-byte
	// key, which is big-endian (see EncodeKey).
	Integer
	// Text columns are length-prefixed with a u16, so a single TEXT value
	// is at most 65535 bytes encoded (spec.md §9 Open Questions).
	Text
)

func (t ColType) String() string {
	switch t {
	case Integer:
		return "INTEGER"
	case Text:
		return "TEXT"
	default:
		return "UNKNOWN"
	}
}

// Column describes one column of a table's schema.
type Column struct {
	Name     string
	Type     ColType
	Nullable bool
}

// Schema describes a table's row shape in declared order. The first column
// is always the primary key (spec.md §4.A): its encoded value becomes the
// cell's key and is not repeated in the cell's data.
type Schema struct {
	Columns []Column
}

// PrimaryKey returns the schema's first (primary key) column.
func (s Schema) PrimaryKey() Column {
	return s.Columns[0]
}

// DataColumns returns the columns after the primary key, i.e. the ones
// carried in a cell's data bytes.
func (s Schema) DataColumns() []Column {
	return s.Columns[1:]
}

// nullableDataColumns returns the indexes, within DataColumns, of columns
// declared Nullable. A record's leading null-bitmap byte (present only when
// this is non-empty) has one bit per entry in this list, in this order.
func (s Schema) nullableDataColumns() []int {
	var idxs []int
	for i, c := range s.DataColumns() {
		if c.Nullable {
			idxs = append(idxs, i)
		}
	}
	return idxs
}
