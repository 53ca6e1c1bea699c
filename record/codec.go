package record

import (
	"encoding/binary"
	"math"
)

// KeySize is the fixed width, in bytes, of every B-tree key (spec.md §3:
// "Keys are fixed-width unsigned integers (8 bytes) in this engine").
const KeySize = 8

// EncodeKey encodes a primary key value as the fixed 8-byte cell key.
// Unlike the record's data fields, the key is big-endian: cell_pointers
// must stay sorted by a plain byte-wise comparison (spec.md §4.C), which
// only holds for a fixed-width unsigned integer in big-endian order.
func EncodeKey(v uint64) []byte {
	b := make([]byte, KeySize)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// DecodeKey decodes a cell key previously produced by EncodeKey. It returns
// ErrTruncated if b is shorter than KeySize.
func DecodeKey(b []byte) (uint64, error) {
	if len(b) < KeySize {
		return 0, ErrTruncated
	}
	return binary.BigEndian.Uint64(b[:KeySize]), nil
}

// Encode encodes one row's values against schema into a cell's key and data
// byte fields. values must have the same length and order as
// schema.Columns; values[0] is the primary key and must not be nil. A nil
// entry for any other column requires that column's schema entry to be
// Nullable, or Encode returns ErrSchemaMismatch.
func Encode(schema Schema, values []any) (key, data []byte, err error) {
	if len(values) != len(schema.Columns) {
		return nil, nil, ErrSchemaMismatch
	}
	pk, err := toUint64(values[0])
	if err != nil {
		return nil, nil, err
	}
	key = EncodeKey(pk)

	dataCols := schema.DataColumns()
	nullable := schema.nullableDataColumns()

	buf := make([]byte, 0, 1+len(dataCols)*9)
	var bitmap byte
	bitmapPos := -1
	if len(nullable) > 0 {
		bitmapPos = len(buf)
		buf = append(buf, 0)
	}

	for i, col := range dataCols {
		v := values[i+1]
		if v == nil {
			if !col.Nullable {
				return nil, nil, ErrSchemaMismatch
			}
			bit := nullableBit(nullable, i)
			bitmap |= 1 << bit
			continue
		}
		switch col.Type {
		case Integer:
			n, err := toUint64(v)
			if err != nil {
				return nil, nil, err
			}
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], n)
			buf = append(buf, b[:]...)
		case Text:
			s, ok := v.(string)
			if !ok {
				return nil, nil, ErrSchemaMismatch
			}
			if len(s) > math.MaxUint16 {
				return nil, nil, ErrOverflow
			}
			var lb [2]byte
			binary.LittleEndian.PutUint16(lb[:], uint16(len(s)))
			buf = append(buf, lb[:]...)
			buf = append(buf, s...)
		default:
			return nil, nil, ErrSchemaMismatch
		}
	}
	if bitmapPos >= 0 {
		buf[bitmapPos] = bitmap
	}
	return key, buf, nil
}

// Decode decodes a cell's key and data byte fields back into a row of
// values ordered like schema.Columns, the inverse of Encode.
func Decode(schema Schema, key, data []byte) ([]any, error) {
	pk, err := DecodeKey(key)
	if err != nil {
		return nil, err
	}
	values := make([]any, len(schema.Columns))
	values[0] = pk

	dataCols := schema.DataColumns()
	nullable := schema.nullableDataColumns()

	offset := 0
	var bitmap byte
	if len(nullable) > 0 {
		if len(data) < 1 {
			return nil, ErrTruncated
		}
		bitmap = data[0]
		offset = 1
	}

	for i, col := range dataCols {
		if col.Nullable {
			bit := nullableBit(nullable, i)
			if bitmap&(1<<bit) != 0 {
				values[i+1] = nil
				continue
			}
		}
		switch col.Type {
		case Integer:
			if offset+8 > len(data) {
				return nil, ErrTruncated
			}
			values[i+1] = binary.LittleEndian.Uint64(data[offset : offset+8])
			offset += 8
		case Text:
			if offset+2 > len(data) {
				return nil, ErrTruncated
			}
			strLen := int(binary.LittleEndian.Uint16(data[offset : offset+2]))
			offset += 2
			if offset+strLen > len(data) {
				return nil, ErrTruncated
			}
			values[i+1] = string(data[offset : offset+strLen])
			offset += strLen
		default:
			return nil, ErrSchemaMismatch
		}
	}
	return values, nil
}

func nullableBit(nullable []int, dataColIndex int) int {
	for bit, idx := range nullable {
		if idx == dataColIndex {
			return bit
		}
	}
	return 0
}

func toUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case int64:
		return uint64(n), nil
	case int:
		return uint64(n), nil
	case uint:
		return uint64(n), nil
	case uint32:
		return uint64(n), nil
	case int32:
		return uint64(n), nil
	default:
		return 0, ErrSchemaMismatch
	}
}
