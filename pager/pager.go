// Package pager is accessed by the btree and catalog layers. It provides an
// API for reading and writing pages, and handles caching pages in memory,
// allocating new pages, and exclusive file locking.
package pager

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/oliverhu/kdb/page"
	"github.com/oliverhu/kdb/pager/cache"
)

const (
	// Magic is the fixed 4-byte identifier at the start of every kdb file.
	Magic = "kdb0"
	// HeaderSize is the fixed size, in bytes, of the file header that
	// occupies the start of page 0. Page 0 holds nothing else; the rest of
	// its PageSize bytes are unused padding (spec.md §9's packed-header
	// variant was not chosen, see SPEC_FULL.md "Resolved Open Questions").
	HeaderSize = 100

	headerMagicOff       = 0
	headerNextFreeOff    = 4
	headerHasFreeListOff = 8

	// CatalogRoot is the fixed page number of the catalog B-tree's root.
	// The catalog never moves off page 1: a catalog root split swaps the
	// new root's contents back onto page 1 (see the catalog package).
	CatalogRoot page.PageNum = 1

	// defaultCacheSize bounds how many pages are held in memory at once.
	defaultCacheSize = 1000
)

// Pager opens/creates the backing file, materializes the file header,
// hands out page buffers by page number with LRU caching, allocates new
// pages, and flushes dirty pages on close.
type Pager struct {
	store        storage
	lock         fileLock
	cache        *cache.LRU[page.PageNum, *page.Page]
	nextFreePage page.PageNum
	hasFreeList  bool
	closed       bool
}

// Open opens (or creates, if it does not yet exist) the database at path.
// If useMemory is true, path is ignored and the database lives entirely in
// memory. Open acquires exclusive access to the file for the lifetime of
// the returned Pager (spec.md §5); call Close to release it.
func Open(path string, useMemory bool) (*Pager, error) {
	var s storage
	var err error
	if useMemory {
		s = newMemoryStorage()
	} else {
		s, err = newFileStorage(path)
	}
	if err != nil {
		return nil, errors.Wrap(err, "pager: open storage")
	}

	l, err := acquireLock(s)
	if err != nil {
		return nil, err
	}

	p := &Pager{
		store: s,
		lock:  l,
		cache: cache.NewLRU[page.PageNum, *page.Page](defaultCacheSize),
	}

	size, err := s.Size()
	if err != nil {
		_ = l.Unlock()
		return nil, errors.Wrap(err, "pager: stat")
	}
	if size == 0 {
		if err := p.initializeNewFile(); err != nil {
			_ = l.Unlock()
			return nil, err
		}
		return p, nil
	}
	if size < HeaderSize {
		_ = l.Unlock()
		return nil, ErrShortHeader
	}
	if err := p.loadHeader(); err != nil {
		_ = l.Unlock()
		return nil, err
	}
	return p, nil
}

func acquireLock(s storage) (fileLock, error) {
	fd, ok := s.LockFd()
	if !ok {
		return memoryFileLock{}, nil
	}
	l := newPlatformLock(fd)
	if err := l.Lock(); err != nil {
		return nil, errors.Wrap(err, "pager: acquiring exclusive file lock")
	}
	return l, nil
}

// initializeNewFile writes the file header and an empty leaf catalog root
// to a freshly created (zero-length) file.
func (p *Pager) initializeNewFile() error {
	p.nextFreePage = CatalogRoot + 1
	p.hasFreeList = false
	if err := p.writeHeader(); err != nil {
		return err
	}
	root := page.New(CatalogRoot)
	root.SetNodeType(page.NodeTypeLeaf)
	root.SetIsRoot(true)
	root.SetParent(CatalogRoot)
	// alloc_ptr (the u16 after num_cells): an empty leaf's cell area starts
	// at the end of the page, as btree.InitLeaf writes it.
	root.SetUint16At(page.CommonHeaderSize+2, page.PageSize)
	root.MarkDirty()
	p.cache.Add(CatalogRoot, root, p.flushEvicted)
	return p.Flush()
}

func (p *Pager) loadHeader() error {
	buf := make([]byte, HeaderSize)
	if _, err := p.store.ReadAt(buf, 0); err != nil {
		return errors.Wrap(err, "pager: reading header")
	}
	if string(buf[headerMagicOff:headerMagicOff+len(Magic)]) != Magic {
		return ErrBadMagic
	}
	p.nextFreePage = page.PageNum(binary.LittleEndian.Uint32(buf[headerNextFreeOff : headerNextFreeOff+4]))
	p.hasFreeList = buf[headerHasFreeListOff] != 0
	return nil
}

func (p *Pager) writeHeader() error {
	buf := make([]byte, HeaderSize)
	copy(buf[headerMagicOff:], Magic)
	binary.LittleEndian.PutUint32(buf[headerNextFreeOff:headerNextFreeOff+4], uint32(p.nextFreePage))
	if p.hasFreeList {
		buf[headerHasFreeListOff] = 1
	}
	if _, err := p.store.WriteAt(buf, 0); err != nil {
		return errors.Wrap(err, "pager: writing header")
	}
	return nil
}

// GetPage returns the page for n, reading it from disk on a cache miss.
// Page 0 is reserved for the file header and is never a valid node page.
func (p *Pager) GetPage(n page.PageNum) (*page.Page, error) {
	if n == 0 {
		return nil, ErrReservedPage
	}
	if pg, hit := p.cache.Get(n); hit {
		return pg, nil
	}
	buf := make([]byte, page.PageSize)
	if _, err := p.store.ReadAt(buf, pageOffset(n)); err != nil {
		return nil, errors.Wrapf(err, "pager: reading page %d", n)
	}
	pg := page.FromBytes(n, buf)
	p.cache.Add(n, pg, p.flushEvicted)
	return pg, nil
}

// NewPage allocates a fresh page, numbered from the file header's
// next-free-page counter, and returns it. Its contents are undefined (all
// zero) until the caller initializes it as a node.
func (p *Pager) NewPage() (*page.Page, error) {
	n := p.nextFreePage
	p.nextFreePage++
	pg := page.New(n)
	pg.MarkDirty()
	p.cache.Add(n, pg, p.flushEvicted)
	return pg, nil
}

// flushEvicted is called by the cache right before it drops a page that has
// fallen out of the LRU window. A dirty page must never be dropped without
// being written first.
func (p *Pager) flushEvicted(n page.PageNum, pg *page.Page) {
	if !pg.Dirty() {
		return
	}
	if _, err := p.store.WriteAt(pg.Bytes(), pageOffset(n)); err != nil {
		// There is no way to surface this error from inside an eviction
		// callback; the next explicit Flush will retry writing any page
		// still marked dirty, so only clear the flag once the write
		// actually succeeds.
		return
	}
	pg.ClearDirty()
}

// Flush writes every dirty cached page and the file header to disk through
// a journal, then fsyncs, so the write is all-or-nothing even across a
// crash mid-flush. It does not clear the page cache; pages remain valid to
// read and write afterward.
func (p *Pager) Flush() error {
	if err := p.store.CreateJournal(); err != nil {
		return errors.Wrap(err, "pager: flush")
	}
	var writeErr error
	p.cache.Each(func(n page.PageNum, pg *page.Page) {
		if writeErr != nil || !pg.Dirty() {
			return
		}
		if _, err := p.store.WriteAt(pg.Bytes(), pageOffset(n)); err != nil {
			writeErr = errors.Wrapf(err, "pager: writing page %d", n)
			return
		}
		pg.ClearDirty()
	})
	if writeErr != nil {
		return writeErr
	}
	if err := p.writeHeader(); err != nil {
		return err
	}
	if err := p.store.Sync(); err != nil {
		return errors.Wrap(err, "pager: flush")
	}
	if err := p.store.DeleteJournal(); err != nil {
		return errors.Wrap(err, "pager: flush")
	}
	return nil
}

// Close flushes all dirty pages and the header, releases the exclusive file
// lock, and closes the underlying storage. Close is idempotent.
func (p *Pager) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.Flush(); err != nil {
		return err
	}
	if err := p.lock.Unlock(); err != nil {
		return errors.Wrap(err, "pager: close")
	}
	return errors.Wrap(p.store.Close(), "pager: close")
}

func pageOffset(n page.PageNum) int64 {
	return int64(n) * page.PageSize
}
