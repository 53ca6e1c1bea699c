package btree

import "errors"

// ErrCorruptNode is returned when a page read from the pager fails to carry
// a recognized node type (spec.md §7: "structural invariant violated when
// reading a page"). It is fatal to the current operation but never mutates
// state, since it is detected before any write to the offending page.
var ErrCorruptNode = errors.New("btree: corrupt node")
