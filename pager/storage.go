// Storage provides an interface for accessing the filesystem. This allows
// the database to run on an in-memory buffer if desired.
package pager

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

type storage interface {
	io.ReaderAt
	io.WriterAt
	Size() (int64, error)
	Sync() error
	CreateJournal() error
	DeleteJournal() error
	Close() error
	// LockFd returns the file descriptor to flock, if this storage is
	// backed by a real file. ok is false for in-memory storage, which
	// needs no cross-process exclusion.
	LockFd() (fd uintptr, ok bool)
}

type memoryStorage struct {
	buf []byte
}

func newMemoryStorage() storage {
	return &memoryStorage{}
}

func (mf *memoryStorage) WriteAt(p []byte, off int64) (n int, err error) {
	end := int(off) + len(p)
	if len(mf.buf) < end {
		grown := make([]byte, end)
		copy(grown, mf.buf)
		mf.buf = grown
	}
	copy(mf.buf[off:end], p)
	return len(p), nil
}

func (mf *memoryStorage) ReadAt(p []byte, off int64) (n int, err error) {
	end := int(off) + len(p)
	if len(mf.buf) < end {
		// Reads straddling or past the logical end of an in-memory file
		// behave like reads past EOF of a sparse on-disk file: zero-filled.
		for i := range p {
			p[i] = 0
		}
		if int(off) >= len(mf.buf) {
			return len(p), nil
		}
		copy(p, mf.buf[off:])
		return len(p), nil
	}
	copy(p, mf.buf[off:end])
	return len(p), nil
}

func (mf *memoryStorage) Size() (int64, error) { return int64(len(mf.buf)), nil }

func (mf *memoryStorage) Sync() error { return nil }

func (mf *memoryStorage) CreateJournal() error {
	// A journal does not matter in memory; all data is lost on a crash
	// regardless, so there is nothing to protect against a torn write.
	return nil
}

func (mf *memoryStorage) DeleteJournal() error { return nil }

func (mf *memoryStorage) Close() error { return nil }

func (mf *memoryStorage) LockFd() (uintptr, bool) { return 0, false }

// journalSuffix names the on-disk journal kept alongside a database file.
// It is derived from the database's own path (rather than the teacher's
// static "journal.db") so two databases opened from the same directory
// never share a journal, and so a journal left behind by a crash is
// rediscoverable by name the next time the same path is opened.
const journalSuffix = ".journal"

type fileStorage struct {
	file *os.File
	path string
}

func newFileStorage(path string) (storage, error) {
	journalPath := path + journalSuffix
	if jfl, err := os.Open(journalPath); err == nil {
		// A journal from an interrupted flush survived a crash. Promote it:
		// it holds the database file as it was before that flush began, so
		// copying it over the main file rolls back to a clean state.
		jfl.Close()
		if err := promoteJournal(journalPath, path); err != nil {
			return nil, errors.Wrapf(err, "pager: promoting journal %s", journalPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "pager: checking for journal %s", journalPath)
	}
	fl, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "pager: opening db file %s", path)
	}
	return &fileStorage{file: fl, path: path}, nil
}

func promoteJournal(journalPath, dbPath string) error {
	jfl, err := os.Open(journalPath)
	if err != nil {
		return err
	}
	defer jfl.Close()
	fl, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer fl.Close()
	if _, err := io.Copy(fl, jfl); err != nil {
		return err
	}
	if err := fl.Sync(); err != nil {
		return err
	}
	return os.Remove(journalPath)
}

func (s *fileStorage) WriteAt(p []byte, off int64) (n int, err error) {
	return s.file.WriteAt(p, off)
}

func (s *fileStorage) ReadAt(p []byte, off int64) (n int, err error) {
	n, err = s.file.ReadAt(p, off)
	if err == io.EOF {
		// Reads straddling or past EOF are zero-filled; the pager treats an
		// unwritten page as a fresh, zeroed one.
		for i := n; i < len(p); i++ {
			p[i] = 0
		}
		return len(p), nil
	}
	return n, err
}

func (s *fileStorage) Size() (int64, error) {
	fi, err := s.file.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "pager: stat db file")
	}
	return fi.Size(), nil
}

func (s *fileStorage) Sync() error {
	return errors.Wrap(s.file.Sync(), "pager: fsync db file")
}

// CreateJournal snapshots the current on-disk contents of the database file
// into the journal before any dirty pages are written over it. If the
// process crashes mid-flush, the next Open finds the journal and promotes
// it back over the (possibly torn) main file.
func (s *fileStorage) CreateJournal() error {
	jfl, err := os.OpenFile(s.path+journalSuffix, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrap(err, "pager: creating journal")
	}
	defer jfl.Close()
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "pager: seeking db file for journal copy")
	}
	if _, err := io.Copy(jfl, s.file); err != nil {
		return errors.Wrap(err, "pager: copying db file into journal")
	}
	return errors.Wrap(jfl.Sync(), "pager: fsync journal")
}

func (s *fileStorage) DeleteJournal() error {
	err := os.Remove(s.path + journalSuffix)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "pager: removing journal")
	}
	return nil
}

func (s *fileStorage) Close() error {
	return errors.Wrap(s.file.Close(), "pager: closing db file")
}

func (s *fileStorage) LockFd() (uintptr, bool) { return s.file.Fd(), true }
