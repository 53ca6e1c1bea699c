package catalog

import "errors"

// ErrTableExists is returned by CreateTable when the name is already taken.
var ErrTableExists = errors.New("catalog: table already exists")

// ErrTableNotFound is returned when a name names no table.
var ErrTableNotFound = errors.New("catalog: table not found")
