// Package db is the external-collaborator surface spec.md §6 names: a thin
// façade wiring pager, catalog, btree, cursor, and record together behind
// Open/CreateTable/OpenTable/Insert/SelectAll/SelectByPKey/Close, with no
// SQL parser or planner behind it (spec.md §1 places those out of scope).
package db

import (
	"github.com/pkg/errors"

	"github.com/oliverhu/kdb/btree"
	"github.com/oliverhu/kdb/catalog"
	"github.com/oliverhu/kdb/cursor"
	"github.com/oliverhu/kdb/pager"
	"github.com/oliverhu/kdb/record"
)

// DB is a single open kdb file (or in-memory database). It is not safe for
// concurrent use by multiple goroutines, matching the single-writer
// discipline spec.md §5 describes.
type DB struct {
	pager   *pager.Pager
	catalog *catalog.Catalog
}

// Open opens (or creates) the database at path. If useMemory is true, path
// is ignored and the database lives entirely in memory for the life of the
// process.
func Open(path string, useMemory bool) (*DB, error) {
	p, err := pager.Open(path, useMemory)
	if err != nil {
		return nil, err
	}
	c, err := catalog.Open(p)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	return &DB{pager: p, catalog: c}, nil
}

// Close flushes and releases the underlying file.
func (db *DB) Close() error {
	return db.pager.Close()
}

// TableNames returns the name of every table known to the catalog, in
// creation order (spec.md §8 scenario 6).
func (db *DB) TableNames() []string {
	return db.catalog.TableNames()
}

// TableSQL returns the sql_text a table was created with.
func (db *DB) TableSQL(name string) (string, error) {
	s, err := db.catalog.TableSQL(name)
	if err != nil {
		if errors.Is(err, catalog.ErrTableNotFound) {
			return "", ErrTableNotFound
		}
		return "", err
	}
	return s, nil
}

// Table is a handle onto one named table's schema and storage. Its root
// page number is never cached here: every operation re-resolves it through
// the catalog, since a table's root can move when its tree splits (spec.md
// §4.E).
type Table struct {
	db     *DB
	name   string
	schema record.Schema
}

// Name returns the table's name.
func (t *Table) Name() string { return t.name }

// Schema returns the table's column schema.
func (t *Table) Schema() record.Schema { return t.schema }

func (t *Table) tree() (*btree.Tree, error) {
	root, err := t.db.catalog.RootPageNumber(t.name)
	if err != nil {
		return nil, err
	}
	return btree.Open(t.db.pager, root), nil
}

// CreateTable defines a new table with the given schema and returns a
// handle to it. sqlText is stored alongside the table definition (spec.md
// §3) but is otherwise opaque to kdb.
func (db *DB) CreateTable(name string, schema record.Schema, sqlText string) (*Table, error) {
	if _, err := db.catalog.CreateTable(name, schema, sqlText); err != nil {
		return nil, err
	}
	return &Table{db: db, name: name, schema: schema}, nil
}

// OpenTable returns a handle to an existing table, or ErrTableNotFound.
func (db *DB) OpenTable(name string) (*Table, error) {
	schema, err := db.catalog.TableSchema(name)
	if err != nil {
		if errors.Is(err, catalog.ErrTableNotFound) {
			return nil, ErrTableNotFound
		}
		return nil, err
	}
	return &Table{db: db, name: name, schema: schema}, nil
}

// Insert encodes values against table's schema and inserts the resulting
// row. values[0] is the primary key. A row with an already-present primary
// key returns ErrDuplicateKey and inserts nothing (spec.md §7).
func (db *DB) Insert(table *Table, values []any) error {
	key, data, err := record.Encode(table.schema, values)
	if err != nil {
		return err
	}
	tr, err := table.tree()
	if err != nil {
		return err
	}
	if _, found, err := tr.Search(key); err != nil {
		return err
	} else if found {
		return ErrDuplicateKey
	}
	rootBeforeInsert := tr.Root()
	if err := tr.Insert(key, data); err != nil {
		return errors.Wrapf(err, "db: inserting into %q", table.name)
	}
	// A leaf-root or internal-root split allocates a brand new root page
	// (spec.md §4.E step 4): the catalog's stored root_page for this table
	// is now stale and must be republished, or every later lookup that
	// doesn't land in the old root's page would silently miss (spec.md §9
	// "Root-change publication").
	if newRoot := tr.Root(); newRoot != rootBeforeInsert {
		if err := db.catalog.UpdateRoot(table.name, newRoot); err != nil {
			return errors.Wrapf(err, "db: publishing new root for %q", table.name)
		}
	}
	return db.pager.Flush()
}

// Row is one decoded record, in table.Schema().Columns order.
type Row []any

// Rows is a forward-only iterator over a table's records in ascending
// primary-key order (spec.md §6 "select_all(db, table) -> iterator<Row>").
// Call Next until it returns false, reading Row() after each true result.
type Rows struct {
	schema record.Schema
	cur    *cursor.Cursor
	err    error
	row    Row
}

// Next advances to the next row and reports whether one was found. Once it
// returns false, Err reports whether that was due to exhaustion (nil) or a
// read failure.
func (r *Rows) Next() bool {
	if r.err != nil || !r.cur.Valid() {
		return false
	}
	values, err := record.Decode(r.schema, r.cur.Key(), r.cur.Value())
	if err != nil {
		r.err = err
		return false
	}
	r.row = values
	if _, err := r.cur.Advance(); err != nil {
		r.err = err
	}
	return true
}

// Row returns the row most recently produced by Next.
func (r *Rows) Row() Row { return r.row }

// Err returns the first error encountered during iteration, if any.
func (r *Rows) Err() error { return r.err }

// SelectAll returns an iterator over every row in table, in ascending
// primary-key order.
func (db *DB) SelectAll(table *Table) (*Rows, error) {
	root, err := db.catalog.RootPageNumber(table.name)
	if err != nil {
		return nil, err
	}
	cur, err := cursor.FromStart(db.pager, root)
	if err != nil {
		return nil, err
	}
	return &Rows{schema: table.schema, cur: cur}, nil
}

// SelectByPKey looks up the single row with the given primary key. found is
// false if no such row exists.
func (db *DB) SelectByPKey(table *Table, key uint64) (row Row, found bool, err error) {
	root, err := db.catalog.RootPageNumber(table.name)
	if err != nil {
		return nil, false, err
	}
	cur, found, err := cursor.Find(db.pager, root, record.EncodeKey(key))
	if err != nil || !found {
		return nil, false, err
	}
	values, err := record.Decode(table.schema, cur.Key(), cur.Value())
	if err != nil {
		return nil, false, err
	}
	return values, true, nil
}
