// Package cursor implements ordered, forward-only traversal of a btree.Tree.
// Unlike a leaf-local scan, Advance climbs the parent chain to find the next
// leaf when the current one is exhausted, since kdb's nodes carry no
// sibling pointers (spec.md §4.F, §9).
package cursor

import (
	"github.com/pkg/errors"

	"github.com/oliverhu/kdb/btree"
	"github.com/oliverhu/kdb/page"
	"github.com/oliverhu/kdb/pager"
)

// Cursor positions a single cell within one table's (or the catalog's)
// B-tree and can be advanced in key order.
type Cursor struct {
	pager *pager.Pager
	root  page.PageNum
	leaf  btree.Node
	index int
	// ok is false once the cursor has been advanced past the last cell, or
	// when the tree was empty to begin with. Key/Value are invalid then.
	ok bool
}

// FromStart returns a cursor positioned at the first cell of the tree
// rooted at root, in key order. ok is false if the tree has no cells.
func FromStart(p *pager.Pager, root page.PageNum) (*Cursor, error) {
	leaf, err := descendLeftmost(p, root)
	if err != nil {
		return nil, err
	}
	c := &Cursor{pager: p, root: root, leaf: leaf, index: 0}
	c.ok = leaf.NumCells() > 0
	return c, nil
}

// Find returns a cursor positioned at the cell exactly matching key. found
// is false, and the cursor is unusable, if no such cell exists.
func Find(p *pager.Pager, root page.PageNum, key []byte) (c *Cursor, found bool, err error) {
	leaf, err := descendFor(p, root, btree.Uint64Key(key))
	if err != nil {
		return nil, false, err
	}
	idx, exact := leaf.FindCell(key)
	if !exact {
		return nil, false, nil
	}
	return &Cursor{pager: p, root: root, leaf: leaf, index: idx, ok: true}, true, nil
}

func descendLeftmost(p *pager.Pager, root page.PageNum) (btree.Node, error) {
	pg, err := p.GetPage(root)
	if err != nil {
		return btree.Node{}, errors.Wrap(err, "cursor: loading root page")
	}
	n, err := btree.NewChecked(pg)
	if err != nil {
		return btree.Node{}, err
	}
	for n.Page.NodeType() == page.NodeTypeInternal {
		var child page.PageNum
		if n.NumKeys() > 0 {
			child = n.EntryChild(0)
		} else {
			child = n.RightChild()
		}
		cp, err := p.GetPage(child)
		if err != nil {
			return btree.Node{}, errors.Wrap(err, "cursor: descending leftmost")
		}
		n, err = btree.NewChecked(cp)
		if err != nil {
			return btree.Node{}, err
		}
	}
	return n, nil
}

func descendFor(p *pager.Pager, root page.PageNum, key uint64) (btree.Node, error) {
	pg, err := p.GetPage(root)
	if err != nil {
		return btree.Node{}, errors.Wrap(err, "cursor: loading root page")
	}
	n, err := btree.NewChecked(pg)
	if err != nil {
		return btree.Node{}, err
	}
	for n.Page.NodeType() == page.NodeTypeInternal {
		child := n.FindChild(key)
		cp, err := p.GetPage(child)
		if err != nil {
			return btree.Node{}, errors.Wrap(err, "cursor: descending")
		}
		n, err = btree.NewChecked(cp)
		if err != nil {
			return btree.Node{}, err
		}
	}
	return n, nil
}

// Valid reports whether the cursor is positioned at a real cell.
func (c *Cursor) Valid() bool { return c.ok }

// Key returns the current cell's key bytes.
func (c *Cursor) Key() []byte { return c.leaf.CellKey(c.index) }

// Value returns the current cell's data bytes.
func (c *Cursor) Value() []byte { return c.leaf.CellData(c.index) }

// Advance moves the cursor to the next cell in ascending key order. It
// returns false (and leaves the cursor invalid) once there is no next
// cell.
func (c *Cursor) Advance() (bool, error) {
	if !c.ok {
		return false, nil
	}
	if c.index+1 < c.leaf.NumCells() {
		c.index++
		return true, nil
	}
	next, ok, err := c.nextLeaf()
	if err != nil {
		return false, err
	}
	if !ok {
		c.ok = false
		return false, nil
	}
	c.leaf = next
	c.index = 0
	c.ok = next.NumCells() > 0
	return c.ok, nil
}

// nextLeaf climbs the parent chain from the current leaf to find the next
// leaf in key order: it climbs past every ancestor the current path
// exits as the rightmost child, then descends leftmost from the first
// sibling to the right (spec.md §4.F).
func (c *Cursor) nextLeaf() (btree.Node, bool, error) {
	current := c.leaf.Page
	for {
		if current.IsRoot() {
			return btree.Node{}, false, nil
		}
		parentPage, err := c.pager.GetPage(current.Parent())
		if err != nil {
			return btree.Node{}, false, errors.Wrap(err, "cursor: loading ancestor")
		}
		parent, err := btree.NewChecked(parentPage)
		if err != nil {
			return btree.Node{}, false, err
		}
		if parent.RightChild() == current.Num {
			current = parentPage
			continue
		}
		idx := -1
		for i := 0; i < parent.NumKeys(); i++ {
			if parent.EntryChild(i) == current.Num {
				idx = i
				break
			}
		}
		if idx == -1 {
			return btree.Node{}, false, errors.Errorf("cursor: page %d not found among its parent's children", current.Num)
		}
		var sibling page.PageNum
		if idx == parent.NumKeys()-1 {
			sibling = parent.RightChild()
		} else {
			sibling = parent.EntryChild(idx + 1)
		}
		leaf, err := descendLeftmost(c.pager, sibling)
		if err != nil {
			return btree.Node{}, false, err
		}
		return leaf, true, nil
	}
}
