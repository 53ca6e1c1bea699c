package pager

import "errors"

// ErrBadMagic is returned by Open when an existing file does not start with
// the kdb magic bytes.
var ErrBadMagic = errors.New("pager: bad magic")

// ErrShortHeader is returned by Open when an existing file is shorter than
// the fixed-size file header.
var ErrShortHeader = errors.New("pager: file shorter than header")

// ErrReservedPage is returned when a caller asks for page 0, which is
// reserved for the file header and never holds a node.
var ErrReservedPage = errors.New("pager: page 0 is reserved for the file header")
