package pager

import (
	"fmt"
	"runtime"
	"syscall"

	"github.com/pkg/errors"
)

// fileLock guards exclusive access to the database file between Open and
// Close. Unlike the teacher's reader/writer lock (chirst-cdb's
// pager/filelock.go), spec.md §5 rules out concurrent operations of any
// kind on a handle, including concurrent readers, so this is a single
// exclusive lock rather than an RWMutex-shaped one.
type fileLock interface {
	Lock() error
	Unlock() error
}

// memoryFileLock is used when there is no backing file to lock.
type memoryFileLock struct{}

func (memoryFileLock) Lock() error   { return nil }
func (memoryFileLock) Unlock() error { return nil }

// newPlatformLock returns a fileLock implementation for the detected
// platform.
func newPlatformLock(fd uintptr) fileLock {
	if !(runtime.GOOS == "linux" || runtime.GOOS == "darwin") {
		panic(fmt.Sprintf("pager: file lock does not support %s", runtime.GOOS))
	}
	return &flockLock{fd: int(fd)}
}

// flockLock is an advisory, cross-process exclusive lock on an open file
// descriptor. Only other processes that also respect advisory locks are
// kept out; spec.md §5 accepts that as the model ("behavior is undefined if
// another process writes the file concurrently").
type flockLock struct {
	fd int
}

func (l *flockLock) Lock() error {
	if err := syscall.Flock(l.fd, syscall.LOCK_EX); err != nil {
		return errors.Wrap(err, "pager: flock LOCK_EX")
	}
	return nil
}

func (l *flockLock) Unlock() error {
	if err := syscall.Flock(l.fd, syscall.LOCK_UN); err != nil {
		return errors.Wrap(err, "pager: flock LOCK_UN")
	}
	return nil
}
