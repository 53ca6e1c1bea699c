package record

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeKeyPreservesNumericOrder(t *testing.T) {
	// cell_pointers must stay sorted by a plain byte-wise comparison of the
	// key bytes, so EncodeKey must preserve numeric order under
	// bytes.Compare for every pair, not just adjacent powers of two.
	require.True(t, bytes.Compare(EncodeKey(1), EncodeKey(256)) < 0)
	require.True(t, bytes.Compare(EncodeKey(255), EncodeKey(256)) < 0)
	require.True(t, bytes.Compare(EncodeKey(0), EncodeKey(1)) < 0)
}

func simpleSchema() Schema {
	return Schema{Columns: []Column{
		{Name: "id", Type: Integer},
		{Name: "age", Type: Integer},
		{Name: "name", Type: Text},
	}}
}

func nullableSchema() Schema {
	return Schema{Columns: []Column{
		{Name: "id", Type: Integer},
		{Name: "nickname", Type: Text, Nullable: true},
		{Name: "age", Type: Integer, Nullable: true},
	}}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	schema := simpleSchema()
	key, data, err := Encode(schema, []any{uint64(7), uint64(30), "ana"})
	require.NoError(t, err)
	require.Equal(t, EncodeKey(7), key)

	values, err := Decode(schema, key, data)
	require.NoError(t, err)
	require.Equal(t, []any{uint64(7), uint64(30), "ana"}, values)
}

func TestEncodeDecodeNullable(t *testing.T) {
	schema := nullableSchema()
	key, data, err := Encode(schema, []any{uint64(1), nil, uint64(42)})
	require.NoError(t, err)

	values, err := Decode(schema, key, data)
	require.NoError(t, err)
	require.Equal(t, []any{uint64(1), nil, uint64(42)}, values)

	key2, data2, err := Encode(schema, []any{uint64(2), "bo", nil})
	require.NoError(t, err)
	values2, err := Decode(schema, key2, data2)
	require.NoError(t, err)
	require.Equal(t, []any{uint64(2), "bo", nil}, values2)
}

func TestEncodeNonNullableNilIsSchemaMismatch(t *testing.T) {
	schema := simpleSchema()
	_, _, err := Encode(schema, []any{uint64(1), nil, "x"})
	require.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestEncodeWrongArityIsSchemaMismatch(t *testing.T) {
	schema := simpleSchema()
	_, _, err := Encode(schema, []any{uint64(1), uint64(2)})
	require.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestEncodeTextOverflow(t *testing.T) {
	schema := simpleSchema()
	huge := strings.Repeat("x", 1<<16)
	_, _, err := Encode(schema, []any{uint64(1), uint64(2), huge})
	require.ErrorIs(t, err, ErrOverflow)
}

func TestDecodeKeyTruncated(t *testing.T) {
	_, err := DecodeKey([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeTruncatedData(t *testing.T) {
	schema := simpleSchema()
	key, data, err := Encode(schema, []any{uint64(1), uint64(2), "hi"})
	require.NoError(t, err)

	_, err = Decode(schema, key, data[:len(data)-1])
	require.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeTruncatedBitmap(t *testing.T) {
	schema := nullableSchema()
	_, err := Decode(schema, EncodeKey(1), nil)
	require.ErrorIs(t, err, ErrTruncated)
}
