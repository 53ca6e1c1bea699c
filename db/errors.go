package db

import "errors"

// ErrDuplicateKey is returned by Insert when the row's primary key already
// exists in the table (spec.md §7).
var ErrDuplicateKey = errors.New("db: duplicate primary key")

// ErrTableNotFound is returned by OpenTable and TableSQL when the named
// table does not exist. Insert, SelectAll, and SelectByPKey return
// catalog.ErrTableNotFound unchanged in that case.
var ErrTableNotFound = errors.New("db: table not found")
