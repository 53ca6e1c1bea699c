// Package btree implements the on-disk B-tree: a leaf/internal node layout
// over page.Page, and a Tree handle that drives search, insert, and the
// split/promote logic that keeps the tree balanced across pages. See
// spec.md §4.D/§4.E.
package btree

import (
	"bytes"
	"encoding/binary"

	"github.com/oliverhu/kdb/page"
)

// Leaf header layout, immediately after page.CommonHeaderSize:
//
//	num_cells: u16
//	alloc_ptr: u16
//	cell_pointers[num_cells]: u16, sorted by key ascending
//
// Cells are written starting from the high end of the page and grow
// downward; alloc_ptr always names the start of the most recently written
// cell.
const (
	leafNumCellsOff  = page.CommonHeaderSize
	leafAllocPtrOff  = leafNumCellsOff + 2
	leafPtrArrayOff  = leafAllocPtrOff + 2
	cellPtrSize      = 2
	cellHeaderSize   = 4 // key_size(u16) + data_size(u16)
)

// Internal header layout, immediately after page.CommonHeaderSize:
//
//	num_keys: u16
//	right_child: PageNum (u32)
//	entries[num_keys]: (child PageNum, key u64), 12 bytes each
const (
	internalNumKeysOff    = page.CommonHeaderSize
	internalRightChildOff = internalNumKeysOff + 2
	internalEntriesOff    = internalRightChildOff + 4
	internalEntrySize     = 4 + 8
)

// Node is a typed view of a page's body as either a B-tree leaf or internal
// node. It attaches no caching or allocation behavior of its own; callers
// obtain the underlying page.Page from a Pager.
type Node struct {
	Page *page.Page
}

// New wraps an existing page as a Node. The page's NodeType decides which
// accessors below are meaningful.
func New(p *page.Page) Node { return Node{Page: p} }

// NewChecked wraps a page read from the pager as a Node, rejecting one
// whose node_type header is neither Leaf nor Internal. Tree and cursor
// traversal use this at every page load off a child/parent pointer, since
// a byte-level corruption there would otherwise silently be treated as an
// empty leaf (spec.md §7: CorruptNode, "structural invariant violated when
// reading a page").
func NewChecked(p *page.Page) (Node, error) {
	switch p.NodeType() {
	case page.NodeTypeLeaf, page.NodeTypeInternal:
		return Node{Page: p}, nil
	default:
		return Node{}, ErrCorruptNode
	}
}

// IsInternal reports whether the underlying page is an internal node, as
// opposed to a leaf.
func (n Node) IsInternal() bool { return n.Page.NodeType() == page.NodeTypeInternal }

// InitLeaf resets p's body (zeroing it) and writes a fresh, empty leaf
// header.
func InitLeaf(p *page.Page, parent page.PageNum, isRoot bool) Node {
	p.Zero()
	p.SetNodeType(page.NodeTypeLeaf)
	p.SetIsRoot(isRoot)
	p.SetParent(parent)
	n := Node{Page: p}
	n.setNumCells(0)
	n.setAllocPtr(page.PageSize)
	return n
}

// InitInternal resets p's body and writes a fresh internal header with no
// entries and the given rightChild.
func InitInternal(p *page.Page, parent page.PageNum, isRoot bool, rightChild page.PageNum) Node {
	p.Zero()
	p.SetNodeType(page.NodeTypeInternal)
	p.SetIsRoot(isRoot)
	p.SetParent(parent)
	n := Node{Page: p}
	n.setNumKeys(0)
	n.SetRightChild(rightChild)
	return n
}

// --- leaf accessors ---

func (n Node) NumCells() int {
	return int(n.Page.Uint16At(leafNumCellsOff))
}

func (n Node) setNumCells(v int) {
	n.Page.SetUint16At(leafNumCellsOff, uint16(v))
}

func (n Node) allocPtr() int {
	return int(n.Page.Uint16At(leafAllocPtrOff))
}

func (n Node) setAllocPtr(v int) {
	n.Page.SetUint16At(leafAllocPtrOff, uint16(v))
}

func (n Node) cellPtrOffset(i int) int { return leafPtrArrayOff + i*cellPtrSize }

func (n Node) cellPtr(i int) int {
	return int(n.Page.Uint16At(n.cellPtrOffset(i)))
}

// CellKey returns the key bytes of the cell at index i.
func (n Node) CellKey(i int) []byte {
	off := n.cellPtr(i)
	keySize := int(n.Page.Uint16At(off))
	return n.Page.SliceAt(off+cellHeaderSize, keySize)
}

// CellData returns the data bytes of the cell at index i.
func (n Node) CellData(i int) []byte {
	off := n.cellPtr(i)
	keySize := int(n.Page.Uint16At(off))
	dataSize := int(n.Page.Uint16At(off + 2))
	return n.Page.SliceAt(off+cellHeaderSize+keySize, dataSize)
}

// FindCell returns the index of the first cell whose key is >= key, and
// whether that cell's key exactly equals key. If key is greater than every
// cell's key, index is NumCells().
func (n Node) FindCell(key []byte) (index int, exact bool) {
	lo, hi := 0, n.NumCells()
	for lo < hi {
		mid := (lo + hi) / 2
		c := bytes.Compare(n.CellKey(mid), key)
		switch {
		case c == 0:
			return mid, true
		case c < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}

// cellSize reports the footprint of a cell, header plus body, for the given
// key/data byte lengths.
func cellSize(keyLen, dataLen int) int {
	return cellHeaderSize + keyLen + dataLen
}

// CanInsertCell reports whether a cell with the given key/data byte lengths
// fits in the page alongside the existing cells and one more pointer slot
// (spec.md §4.C invariant 5: the pointer array and cell area must not
// overlap).
func (n Node) CanInsertCell(keyLen, dataLen int) bool {
	need := cellSize(keyLen, dataLen)
	newAlloc := n.allocPtr() - need
	newPtrArrayEnd := leafPtrArrayOff + (n.NumCells()+1)*cellPtrSize
	return newAlloc >= newPtrArrayEnd
}

// InsertCell inserts a new cell at index, shifting the pointer array to
// keep it sorted, and writes the cell body at the new alloc_ptr.
func (n Node) InsertCell(index int, key, data []byte) {
	numCells := n.NumCells()
	for i := numCells; i > index; i-- {
		n.Page.SetUint16At(n.cellPtrOffset(i), uint16(n.cellPtr(i-1)))
	}
	newAlloc := n.allocPtr() - cellSize(len(key), len(data))
	n.Page.SetUint16At(leafPtrArrayOff+index*cellPtrSize, uint16(newAlloc))
	n.Page.SetUint16At(newAlloc, uint16(len(key)))
	n.Page.SetUint16At(newAlloc+2, uint16(len(data)))
	n.Page.CopyAt(newAlloc+cellHeaderSize, key)
	n.Page.CopyAt(newAlloc+cellHeaderSize+len(key), data)
	n.setAllocPtr(newAlloc)
	n.setNumCells(numCells + 1)
}

// --- internal accessors ---

func (n Node) NumKeys() int {
	return int(n.Page.Uint16At(internalNumKeysOff))
}

func (n Node) setNumKeys(v int) {
	n.Page.SetUint16At(internalNumKeysOff, uint16(v))
}

func (n Node) RightChild() page.PageNum {
	return page.PageNum(n.Page.Uint32At(internalRightChildOff))
}

func (n Node) SetRightChild(p page.PageNum) {
	n.Page.SetUint32At(internalRightChildOff, uint32(p))
}

func (n Node) entryOffset(i int) int { return internalEntriesOff + i*internalEntrySize }

// EntryChild returns the child page number of the i'th internal entry.
func (n Node) EntryChild(i int) page.PageNum {
	return page.PageNum(n.Page.Uint32At(n.entryOffset(i)))
}

func (n Node) setEntryChild(i int, p page.PageNum) {
	n.Page.SetUint32At(n.entryOffset(i), uint32(p))
}

// SetEntryChild overwrites the child pointer of the i'th existing internal
// entry in place, without touching its key. Used to repoint an entry after
// its child page's content has been physically relocated (see the catalog
// package's root-pinning).
func (n Node) SetEntryChild(i int, p page.PageNum) {
	n.setEntryChild(i, p)
}

// EntryKey returns the separator key of the i'th internal entry.
func (n Node) EntryKey(i int) uint64 {
	return n.Page.Uint64At(n.entryOffset(i) + 4)
}

func (n Node) setEntryKey(i int, k uint64) {
	n.Page.SetUint64At(n.entryOffset(i)+4, k)
}

// FindChild returns the child page a search for key should descend into:
// the first child_i whose separator key_i >= key, else right_child (spec.md
// §4.C: "child_i subtree contains only keys <= key_i").
func (n Node) FindChild(key uint64) page.PageNum {
	for i := 0; i < n.NumKeys(); i++ {
		if n.EntryKey(i) >= key {
			return n.EntryChild(i)
		}
	}
	return n.RightChild()
}

// findEntryIndex returns the index a new separator key would be inserted at
// to keep entries ascending.
func (n Node) findEntryIndex(key uint64) int {
	lo, hi := 0, n.NumKeys()
	for lo < hi {
		mid := (lo + hi) / 2
		if n.EntryKey(mid) < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// CanInsertEntry reports whether one more (child, key) entry fits in the
// page.
func (n Node) CanInsertEntry() bool {
	end := internalEntriesOff + (n.NumKeys()+1)*internalEntrySize
	return end <= page.PageSize
}

// InsertEntry inserts a (child, key) separator entry in sorted position.
func (n Node) InsertEntry(child page.PageNum, key uint64) {
	index := n.findEntryIndex(key)
	numKeys := n.NumKeys()
	for i := numKeys; i > index; i-- {
		n.setEntryChild(i, n.EntryChild(i-1))
		n.setEntryKey(i, n.EntryKey(i-1))
	}
	n.setEntryChild(index, child)
	n.setEntryKey(index, key)
	n.setNumKeys(numKeys + 1)
}

// Uint64Key decodes an 8-byte big-endian key, the same encoding
// record.EncodeKey produces, without importing the record package.
func Uint64Key(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}
