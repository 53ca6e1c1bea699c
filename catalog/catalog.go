// Package catalog wraps the catalog B-tree: the one table every kdb file
// has from the moment it is created, naming every other table by row
// (pkey, name, root_pagenum, schema_json, sql_text) (spec.md §3 "Catalog"). It mirrors
// the teacher's catalog.Catalog (in-memory object cache plus a version
// token) over the new page/btree/pager stack.
package catalog

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/oliverhu/kdb/btree"
	"github.com/oliverhu/kdb/cursor"
	"github.com/oliverhu/kdb/page"
	"github.com/oliverhu/kdb/pager"
	"github.com/oliverhu/kdb/record"
)

// rowSchema is the catalog's own fixed row shape, stored the same way any
// user table's rows are. sql_text carries the CREATE TABLE text the caller
// supplied (spec.md §3 "Catalog"); kdb itself never parses it back.
var rowSchema = record.Schema{Columns: []record.Column{
	{Name: "id", Type: record.Integer},
	{Name: "name", Type: record.Text},
	{Name: "root_page", Type: record.Integer},
	{Name: "schema_json", Type: record.Text},
	{Name: "sql_text", Type: record.Text},
}}

// entry is the in-memory cached form of one catalog row.
type entry struct {
	id       uint64
	name     string
	rootPage page.PageNum
	schema   record.Schema
	sqlText  string
}

// Catalog caches the set of known tables in memory, backed by the catalog
// B-tree rooted at pager.CatalogRoot.
type Catalog struct {
	pager   *pager.Pager
	tree    *btree.Tree
	entries []entry
	version string
}

// Open loads (or, on a brand new file, finds empty) the catalog B-tree and
// rebuilds the in-memory table cache from it, the equivalent of the
// teacher's ParseSchema running at KV.New.
func Open(p *pager.Pager) (*Catalog, error) {
	c := &Catalog{
		pager: p,
		tree:  btree.Open(p, pager.CatalogRoot),
	}
	if err := c.reload(); err != nil {
		return nil, err
	}
	c.bumpVersion()
	return c, nil
}

func (c *Catalog) reload() error {
	cur, err := cursor.FromStart(c.pager, pager.CatalogRoot)
	if err != nil {
		return errors.Wrap(err, "catalog: scanning catalog table")
	}
	var entries []entry
	for cur.Valid() {
		values, err := record.Decode(rowSchema, cur.Key(), cur.Value())
		if err != nil {
			return errors.Wrap(err, "catalog: decoding catalog row")
		}
		schema, err := unmarshalSchema(values[3].(string))
		if err != nil {
			return err
		}
		entries = append(entries, entry{
			id:       values[0].(uint64),
			name:     values[1].(string),
			rootPage: page.PageNum(values[2].(uint64)),
			schema:   schema,
			sqlText:  values[4].(string),
		})
		if _, err := cur.Advance(); err != nil {
			return errors.Wrap(err, "catalog: scanning catalog table")
		}
	}
	c.entries = entries
	return nil
}

// Version returns an opaque token that changes every time the catalog's
// set of tables changes, for callers that want to detect a stale cache.
func (c *Catalog) Version() string { return c.version }

func (c *Catalog) bumpVersion() { c.version = uuid.NewString() }

func (c *Catalog) find(name string) (entry, bool) {
	for _, e := range c.entries {
		if e.name == name {
			return e, true
		}
	}
	return entry{}, false
}

// TableExists reports whether name names a known table.
func (c *Catalog) TableExists(name string) bool {
	_, ok := c.find(name)
	return ok
}

// RootPageNumber returns the root page of the named table's B-tree.
func (c *Catalog) RootPageNumber(name string) (page.PageNum, error) {
	e, ok := c.find(name)
	if !ok {
		return 0, ErrTableNotFound
	}
	return e.rootPage, nil
}

// TableSchema returns the named table's schema.
func (c *Catalog) TableSchema(name string) (record.Schema, error) {
	e, ok := c.find(name)
	if !ok {
		return record.Schema{}, ErrTableNotFound
	}
	return e.schema, nil
}

// TableSQL returns the sql_text the named table was created with.
func (c *Catalog) TableSQL(name string) (string, error) {
	e, ok := c.find(name)
	if !ok {
		return "", ErrTableNotFound
	}
	return e.sqlText, nil
}

// TableNames returns every known table name, in catalog (creation) order.
func (c *Catalog) TableNames() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.name
	}
	return names
}

// CreateTable allocates a fresh table B-tree and records it in the
// catalog. It returns the new table's root page number. sqlText is stored
// verbatim (spec.md §3) and otherwise unused by kdb itself.
func (c *Catalog) CreateTable(name string, schema record.Schema, sqlText string) (page.PageNum, error) {
	if c.TableExists(name) {
		return 0, ErrTableExists
	}
	tableTree, err := btree.Create(c.pager)
	if err != nil {
		return 0, errors.Wrapf(err, "catalog: allocating table %q", name)
	}
	schemaJSON, err := marshalSchema(schema)
	if err != nil {
		return 0, err
	}

	id := c.nextID()
	key, data, err := record.Encode(rowSchema, []any{
		id, name, uint64(tableTree.Root()), schemaJSON, sqlText,
	})
	if err != nil {
		return 0, errors.Wrap(err, "catalog: encoding catalog row")
	}
	if err := c.insertRow(key, data); err != nil {
		return 0, err
	}

	c.entries = append(c.entries, entry{
		id: id, name: name, rootPage: tableTree.Root(), schema: schema, sqlText: sqlText,
	})
	c.bumpVersion()
	return tableTree.Root(), nil
}

// UpdateRoot rewrites the named table's catalog row with a new root page
// number, the case spec.md §4.E step 4/§9 "Root-change publication" calls
// out: a table's B-tree root moves whenever its root splits, and every
// handle that remembers the old root (here, the catalog row) must be
// updated or re-derived. The row is overwritten in place (same catalog
// pkey), which the underlying B-tree already supports for any caller that
// reinserts an existing key (see btree.Tree.overwrite).
func (c *Catalog) UpdateRoot(name string, newRoot page.PageNum) error {
	e, ok := c.find(name)
	if !ok {
		return ErrTableNotFound
	}
	if e.rootPage == newRoot {
		return nil
	}
	schemaJSON, err := marshalSchema(e.schema)
	if err != nil {
		return err
	}
	key, data, err := record.Encode(rowSchema, []any{
		e.id, e.name, uint64(newRoot), schemaJSON, e.sqlText,
	})
	if err != nil {
		return errors.Wrapf(err, "catalog: encoding catalog row for %q", name)
	}
	if err := c.insertRow(key, data); err != nil {
		return errors.Wrapf(err, "catalog: updating root for %q", name)
	}
	for i := range c.entries {
		if c.entries[i].name == name {
			c.entries[i].rootPage = newRoot
			break
		}
	}
	c.bumpVersion()
	return nil
}

func (c *Catalog) nextID() uint64 {
	var max uint64
	for _, e := range c.entries {
		if e.id > max {
			max = e.id
		}
	}
	return max + 1
}

// insertRow inserts into the catalog's own B-tree, then, if that insert
// forced a root split, pins the catalog's root back onto pager.CatalogRoot
// (see pinRoot).
func (c *Catalog) insertRow(key, data []byte) error {
	if err := c.tree.Insert(key, data); err != nil {
		return errors.Wrap(err, "catalog: inserting catalog row")
	}
	return c.pinRoot()
}

// pinRoot keeps the catalog B-tree's root physically at pager.CatalogRoot
// even though a root split (btree.Tree.newRoot) always allocates a brand
// new page for the new root. Every other table's root pointer lives inside
// a catalog row that can simply be updated after a split; the catalog's
// own root has nowhere else to be recorded, so instead its content is
// swapped back onto the fixed page, with the displaced node's pointers
// fixed up to match (spec.md leaves this choice to the implementer; the
// teacher's comment on keeping a root's page number stable motivates it,
// see pager.CatalogRoot's doc comment).
func (c *Catalog) pinRoot() error {
	newRootNum := c.tree.Root()
	if newRootNum == pager.CatalogRoot {
		return nil
	}

	fixedPage, err := c.pager.GetPage(pager.CatalogRoot)
	if err != nil {
		return err
	}
	newRootPage, err := c.pager.GetPage(newRootNum)
	if err != nil {
		return err
	}

	fixedPage.SwapContents(newRootPage)
	// fixedPage (page.CatalogRoot) now holds the new root's content;
	// newRootPage (newRootNum) now holds the content that used to be the
	// old root, physically relocated there.

	fixedPage.SetParent(pager.CatalogRoot)
	root := btree.New(fixedPage)
	root.SetEntryChild(0, newRootNum)

	newRootPage.SetParent(pager.CatalogRoot)
	displaced := btree.New(newRootPage)
	if err := relocateImmediateChildren(c.pager, displaced, newRootNum); err != nil {
		return err
	}

	rightChildPage, err := c.pager.GetPage(root.RightChild())
	if err != nil {
		return err
	}
	rightChildPage.SetParent(pager.CatalogRoot)

	c.tree = btree.Open(c.pager, pager.CatalogRoot)
	return nil
}

// relocateImmediateChildren fixes up the parent pointer of each direct
// child of n after n's content has been physically moved to newPageNum.
// Grandchildren are untouched: their parent field names one of n's
// children, and none of those has moved.
func relocateImmediateChildren(p *pager.Pager, n btree.Node, newPageNum page.PageNum) error {
	// n is a leaf on a table's very first root split; leaves have no
	// children to relocate.
	if !n.IsInternal() {
		return nil
	}
	for i := 0; i < n.NumKeys(); i++ {
		cp, err := p.GetPage(n.EntryChild(i))
		if err != nil {
			return err
		}
		cp.SetParent(newPageNum)
	}
	rc, err := p.GetPage(n.RightChild())
	if err != nil {
		return err
	}
	rc.SetParent(newPageNum)
	return nil
}
