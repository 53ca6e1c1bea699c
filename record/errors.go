package record

import "errors"

// ErrSchemaMismatch is returned when the number or type of supplied values
// does not match the schema, or when a non-nullable column is given a nil
// value.
var ErrSchemaMismatch = errors.New("record: schema mismatch")

// ErrTruncated is returned when decoding runs out of bytes before the
// schema says it should.
var ErrTruncated = errors.New("record: truncated record")

// ErrOverflow is returned when encoding a TEXT value longer than the u16
// length prefix can address (65535 bytes).
var ErrOverflow = errors.New("record: text value too long")
