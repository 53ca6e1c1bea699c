package btree

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/oliverhu/kdb/page"
	"github.com/oliverhu/kdb/pager"
)

// Tree is a handle onto one B-tree rooted at a page in a Pager. Several
// Trees (the catalog, and one per user table) share the same Pager and
// underlying file.
type Tree struct {
	pager *pager.Pager
	root  page.PageNum
}

// Open returns a handle onto the B-tree already rooted at root.
func Open(p *pager.Pager, root page.PageNum) *Tree {
	return &Tree{pager: p, root: root}
}

// Create allocates a fresh, empty leaf page and returns a Tree rooted on
// it, for a brand new table or catalog.
func Create(p *pager.Pager) (*Tree, error) {
	np, err := p.NewPage()
	if err != nil {
		return nil, errors.Wrap(err, "btree: allocating root page")
	}
	InitLeaf(np, np.Num, true)
	return &Tree{pager: p, root: np.Num}, nil
}

// Root returns the tree's current root page number. A leaf-root split
// allocates a brand new root page (spec.md §4.E), so callers that persist
// a table's root page number (the catalog, primarily) must re-read this
// after every Insert.
func (t *Tree) Root() page.PageNum { return t.root }

func (t *Tree) rootNode() (Node, error) {
	p, err := t.pager.GetPage(t.root)
	if err != nil {
		return Node{}, errors.Wrap(err, "btree: loading root page")
	}
	return NewChecked(p)
}

// leafFor descends from the root to the leaf that would contain key,
// following FindChild at each internal node.
func (t *Tree) leafFor(key uint64) (Node, error) {
	n, err := t.rootNode()
	if err != nil {
		return Node{}, err
	}
	for n.Page.NodeType() == page.NodeTypeInternal {
		childNum := n.FindChild(key)
		cp, err := t.pager.GetPage(childNum)
		if err != nil {
			return Node{}, errors.Wrap(err, "btree: descending to child")
		}
		n, err = NewChecked(cp)
		if err != nil {
			return Node{}, err
		}
	}
	return n, nil
}

// Search looks up key and returns its data bytes, or found=false if no
// cell has that key.
func (t *Tree) Search(key []byte) (data []byte, found bool, err error) {
	leaf, err := t.leafFor(Uint64Key(key))
	if err != nil {
		return nil, false, err
	}
	idx, exact := leaf.FindCell(key)
	if !exact {
		return nil, false, nil
	}
	return leaf.CellData(idx), true, nil
}

// Insert adds or overwrites the cell for key with data, splitting and
// promoting up the parent chain as needed to keep every node within
// page.PageSize (spec.md §4.E).
func (t *Tree) Insert(key, data []byte) error {
	leaf, err := t.leafFor(Uint64Key(key))
	if err != nil {
		return err
	}
	idx, exact := leaf.FindCell(key)
	if exact {
		return t.overwrite(leaf, idx, key, data)
	}
	if leaf.CanInsertCell(len(key), len(data)) {
		leaf.InsertCell(idx, key, data)
		return nil
	}
	return t.splitLeafAndInsert(leaf, key, data)
}

// overwrite replaces an existing cell's data. If the new data is larger than
// the old, the cell is dropped from the pointer array and re-added as a new
// cell, splitting the leaf if it does not fit; the old cell's bytes are not
// reclaimed (see removeCell).
func (t *Tree) overwrite(leaf Node, idx int, key, data []byte) error {
	existing := leaf.CellData(idx)
	if len(data) <= len(existing) {
		off := leaf.cellPtr(idx)
		keySize := int(leaf.Page.Uint16At(off))
		leaf.Page.SetUint16At(off+2, uint16(len(data)))
		leaf.Page.CopyAt(off+cellHeaderSize+keySize, data)
		return nil
	}
	t.removeCell(leaf, idx)
	if leaf.CanInsertCell(len(key), len(data)) {
		newIdx, _ := leaf.FindCell(key)
		leaf.InsertCell(newIdx, key, data)
		return nil
	}
	return t.splitLeafAndInsert(leaf, key, data)
}

// removeCell drops the cell at idx from the pointer array. The vacated
// bytes in the cell area are not reclaimed (no compaction): a kdb page
// never shrinks its alloc_ptr except by a fresh split, matching the
// append-only cell area spec.md §4.C describes.
func (t *Tree) removeCell(n Node, idx int) {
	numCells := n.NumCells()
	for i := idx; i < numCells-1; i++ {
		n.Page.SetUint16At(n.cellPtrOffset(i), uint16(n.cellPtr(i+1)))
	}
	n.setNumCells(numCells - 1)
}

// splitLeafAndInsert splits a full leaf into two leaves, distributing the
// existing cells plus the new one, then promotes the separator into the
// parent (spec.md §4.E steps 1-3).
func (t *Tree) splitLeafAndInsert(leaf Node, key, data []byte) error {
	type cell struct{ key, data []byte }
	cells := make([]cell, 0, leaf.NumCells()+1)
	inserted := false
	for i := 0; i < leaf.NumCells(); i++ {
		k := leaf.CellKey(i)
		if !inserted && bytes.Compare(key, k) < 0 {
			cells = append(cells, cell{key, data})
			inserted = true
		}
		cells = append(cells, cell{k, leaf.CellData(i)})
	}
	if !inserted {
		cells = append(cells, cell{key, data})
	}

	// The reused left page must keep at least ceil((M+1)/2) cells (spec.md
	// §8 "Boundary behaviors"); a floor split would leave it one short
	// whenever the combined count is odd.
	mid := (len(cells) + 1) / 2

	rightPage, err := t.pager.NewPage()
	if err != nil {
		return errors.Wrap(err, "btree: allocating split sibling")
	}
	right := InitLeaf(rightPage, leaf.Page.Parent(), false)
	for _, c := range cells[mid:] {
		right.InsertCell(right.NumCells(), c.key, c.data)
	}

	// Reuse the existing leaf page as the left half: rewrite it in place
	// rather than allocating a second new page, so any page already
	// pointing at leaf's page number (a parent entry, or the catalog's
	// root pointer) stays valid without an update.
	wasRoot := leaf.Page.IsRoot()
	parent := leaf.Page.Parent()
	left := InitLeaf(leaf.Page, parent, wasRoot)
	for _, c := range cells[:mid] {
		left.InsertCell(left.NumCells(), c.key, c.data)
	}

	sep := left.CellKey(left.NumCells() - 1)

	if wasRoot {
		return t.newRoot(left, right, Uint64Key(sep))
	}
	right.Page.SetParent(parent)
	return t.parentInsert(parent, right.Page.Num, Uint64Key(sep))
}

// newRoot allocates a fresh internal root above left and right, per
// spec.md §4.E step 4: the split root keeps neither original page as the
// new root, so a caller holding the table's old root page number (the
// catalog) must be updated via Root().
func (t *Tree) newRoot(left, right Node, median uint64) error {
	rootPage, err := t.pager.NewPage()
	if err != nil {
		return errors.Wrap(err, "btree: allocating new root")
	}
	root := InitInternal(rootPage, rootPage.Num, true, right.Page.Num)
	root.InsertEntry(left.Page.Num, median)

	left.Page.SetIsRoot(false)
	left.Page.SetParent(rootPage.Num)
	right.Page.SetIsRoot(false)
	right.Page.SetParent(rootPage.Num)

	t.root = rootPage.Num
	return nil
}

// parentInsert inserts a (child, key) separator into the internal node at
// parentNum, splitting it (and recursing upward) if it is full (spec.md
// §4.E step 5).
func (t *Tree) parentInsert(parentNum page.PageNum, child page.PageNum, key uint64) error {
	pp, err := t.pager.GetPage(parentNum)
	if err != nil {
		return errors.Wrap(err, "btree: loading parent for promote")
	}
	parent, err := NewChecked(pp)
	if err != nil {
		return err
	}
	if parent.CanInsertEntry() {
		parent.InsertEntry(child, key)
		// child is the right half of a split whose left half kept its page
		// number. The left half now holds the keys <= key, so it takes the
		// new entry, and child takes over the slot that pointed at the left
		// half (the next entry, or right_child).
		idx := parent.findEntryIndex(key)
		if idx+1 < parent.NumKeys() {
			parent.setEntryChild(idx, parent.EntryChild(idx+1))
			parent.setEntryChild(idx+1, child)
		} else {
			parent.setEntryChild(idx, parent.RightChild())
			parent.SetRightChild(child)
		}
		return nil
	}
	return t.splitInternalAndInsert(parent, child, key)
}

// splitInternalAndInsert splits a full internal node, distributing its
// entries plus the new one so each half has ceil(N/2) entries, promoting
// the median key to the grandparent (spec.md §4.E step 5).
//
// An internal node with N keys has N+1 children: child_i sits to the left
// of key_i, and right_child sits to the right of the last key. newChild is
// the new right sibling produced by a child's split, so it belongs
// immediately after the existing child newKey separates from its
// neighbor.
func (t *Tree) splitInternalAndInsert(n Node, newChild page.PageNum, newKey uint64) error {
	numKeys := n.NumKeys()
	keys := make([]uint64, numKeys)
	children := make([]page.PageNum, numKeys+1)
	for i := 0; i < numKeys; i++ {
		keys[i] = n.EntryKey(i)
		children[i] = n.EntryChild(i)
	}
	children[numKeys] = n.RightChild()

	idx := 0
	for idx < len(keys) && keys[idx] < newKey {
		idx++
	}
	keys = append(keys[:idx:idx], append([]uint64{newKey}, keys[idx:]...)...)
	children = append(children[:idx+1:idx+1], append([]page.PageNum{newChild}, children[idx+1:]...)...)

	total := len(keys)     // N+1, after the insert
	leftCount := total / 2 // ceil(N/2)
	median := keys[leftCount]

	leftKeys, leftChildren := keys[:leftCount], children[:leftCount+1]
	rightKeys, rightChildren := keys[leftCount+1:], children[leftCount+1:]

	rightPage, err := t.pager.NewPage()
	if err != nil {
		return errors.Wrap(err, "btree: allocating internal split sibling")
	}
	right := InitInternal(rightPage, n.Page.Parent(), false, rightChildren[len(rightChildren)-1])
	for i, k := range rightKeys {
		right.InsertEntry(rightChildren[i], k)
	}
	for i := 0; i < right.NumKeys(); i++ {
		reparent(t.pager, right.EntryChild(i), rightPage.Num)
	}
	reparent(t.pager, right.RightChild(), rightPage.Num)

	wasRoot := n.Page.IsRoot()
	parent := n.Page.Parent()
	left := InitInternal(n.Page, parent, wasRoot, leftChildren[len(leftChildren)-1])
	for i, k := range leftKeys {
		left.InsertEntry(leftChildren[i], k)
	}
	for i := 0; i < left.NumKeys(); i++ {
		reparent(t.pager, left.EntryChild(i), n.Page.Num)
	}
	reparent(t.pager, left.RightChild(), n.Page.Num)

	if wasRoot {
		return t.newRoot(left, right, median)
	}
	right.Page.SetParent(parent)
	return t.parentInsert(parent, rightPage.Num, median)
}

// reparent updates child's stored parent pointer after it has moved to a
// new internal node, maintaining spec.md §4.C invariant 2 (every
// non-root's parent names a page that actually lists it as a child).
func reparent(p *pager.Pager, child, newParent page.PageNum) {
	cp, err := p.GetPage(child)
	if err != nil {
		return
	}
	cp.SetParent(newParent)
}
