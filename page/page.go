// Package page implements the fixed-size page buffer used throughout kdb.
// A Page is a typed view over PageSize raw bytes: it enforces no B-tree
// semantics of its own, it just guarantees every header accessor reads and
// writes little-endian at a documented offset. The btree package interprets
// a Page's body as a leaf or internal node.
package page

import "encoding/binary"

// PageNum addresses a page within a database file. Page 0 is reserved for
// the file header; the catalog B-tree is rooted at page 1.
type PageNum uint32

const (
	// PageSize is the fixed size, in bytes, of every page in a kdb file.
	PageSize = 4096

	// Common node header, shared by leaf and internal pages.
	offNodeType = 0
	offIsRoot   = 1
	offParent   = 2
	commonHdrSz = 6 // node_type(1) + is_root(1) + parent(4)
)

// NodeType distinguishes a leaf page (holds cells) from an internal page
// (holds child/key separator entries).
type NodeType uint8

const (
	NodeTypeUnknown NodeType = iota
	NodeTypeLeaf
	NodeTypeInternal
)

// Page owns one PageSize byte block plus the page's number and a dirty
// flag. All header-field accessors read/write in place; nothing here
// allocates per access.
type Page struct {
	Num   PageNum
	buf   [PageSize]byte
	dirty bool
}

// New returns a zeroed page for the given page number. Its contents are
// undefined (all zero) until a caller initializes it as a node.
func New(num PageNum) *Page {
	return &Page{Num: num}
}

// FromBytes wraps an existing PageSize byte slice (e.g. freshly read from
// disk) as a Page. It panics if b is not exactly PageSize bytes, which would
// indicate a corrupt read at a layer below the pager's control.
func FromBytes(num PageNum, b []byte) *Page {
	if len(b) != PageSize {
		panic("page: buffer is not PageSize bytes")
	}
	p := &Page{Num: num}
	copy(p.buf[:], b)
	return p
}

// Bytes returns the raw backing buffer. Callers must not retain the slice
// across a pager flush/evict boundary.
func (p *Page) Bytes() []byte { return p.buf[:] }

// Dirty reports whether the page has unflushed writes.
func (p *Page) Dirty() bool { return p.dirty }

// MarkDirty flags the page as needing a flush.
func (p *Page) MarkDirty() { p.dirty = true }

// ClearDirty is called by the pager once the page has been written to disk.
func (p *Page) ClearDirty() { p.dirty = false }

// SwapContents exchanges p's and other's raw bytes in place and marks both
// pages dirty, leaving each Page's own Num untouched. Used to keep a tree's root
// pinned at a fixed page number even though a root split always allocates
// a brand new page for the new root (see the catalog package).
func (p *Page) SwapContents(other *Page) {
	p.buf, other.buf = other.buf, p.buf
	p.dirty, other.dirty = true, true
}

// Zero resets the page body to all zero bytes, keeping its page number.
// Used when (re)initializing a freshly allocated page as a node.
func (p *Page) Zero() {
	for i := range p.buf {
		p.buf[i] = 0
	}
}

func (p *Page) NodeType() NodeType {
	return NodeType(p.buf[offNodeType])
}

func (p *Page) SetNodeType(t NodeType) {
	p.buf[offNodeType] = byte(t)
	p.dirty = true
}

func (p *Page) IsRoot() bool {
	return p.buf[offIsRoot] != 0
}

func (p *Page) SetIsRoot(v bool) {
	if v {
		p.buf[offIsRoot] = 1
	} else {
		p.buf[offIsRoot] = 0
	}
	p.dirty = true
}

func (p *Page) Parent() PageNum {
	return PageNum(binary.LittleEndian.Uint32(p.buf[offParent : offParent+4]))
}

func (p *Page) SetParent(n PageNum) {
	binary.LittleEndian.PutUint32(p.buf[offParent:offParent+4], uint32(n))
	p.dirty = true
}

// CommonHeaderSize is the number of bytes occupied by the fields every node,
// leaf or internal, carries at the start of the page.
const CommonHeaderSize = commonHdrSz

// --- small typed accessors used by btree to read/write its own
// type-specific header fields and cell/entry bodies, all at caller-supplied
// offsets. Page itself attaches no meaning to these offsets.

func (p *Page) Uint8At(off int) uint8 { return p.buf[off] }

func (p *Page) SetUint8At(off int, v uint8) {
	p.buf[off] = v
	p.dirty = true
}

func (p *Page) Uint16At(off int) uint16 {
	return binary.LittleEndian.Uint16(p.buf[off : off+2])
}

func (p *Page) SetUint16At(off int, v uint16) {
	binary.LittleEndian.PutUint16(p.buf[off:off+2], v)
	p.dirty = true
}

func (p *Page) Uint32At(off int) uint32 {
	return binary.LittleEndian.Uint32(p.buf[off : off+4])
}

func (p *Page) SetUint32At(off int, v uint32) {
	binary.LittleEndian.PutUint32(p.buf[off:off+4], v)
	p.dirty = true
}

func (p *Page) Uint64At(off int) uint64 {
	return binary.LittleEndian.Uint64(p.buf[off : off+8])
}

func (p *Page) SetUint64At(off int, v uint64) {
	binary.LittleEndian.PutUint64(p.buf[off:off+8], v)
	p.dirty = true
}

// CopyAt copies b into the page body starting at off, without touching
// anything else. Used to place cell/entry payloads.
func (p *Page) CopyAt(off int, b []byte) {
	copy(p.buf[off:off+len(b)], b)
	p.dirty = true
}

// SliceAt returns a copy of n bytes starting at off. Callers that only need
// to read should prefer this over touching Bytes() directly so the returned
// slice survives page reuse.
func (p *Page) SliceAt(off, n int) []byte {
	out := make([]byte, n)
	copy(out, p.buf[off:off+n])
	return out
}
