package pager

import (
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"
)

func TestMultipleExclusive(t *testing.T) {
	fl, err := os.CreateTemp("", "*.db")
	if err != nil {
		t.Fatalf("error opening db file: %s", err)
	}
	defer fl.Close()
	didErrShared := false
	didErrLocking := false
	sharedCount := 0
	wg := sync.WaitGroup{}
	criticalCount := 2

	wg.Add(criticalCount)
	for i := 0; i < criticalCount; i++ {
		go func() {
			// Each holder locks through its own descriptor of the same file,
			// as each Pager does: flock excludes separate open files, while a
			// second LOCK_EX through one shared descriptor succeeds at once.
			f, err := os.Open(fl.Name())
			if err != nil {
				didErrLocking = true
				wg.Done()
				return
			}
			defer f.Close()
			l := newPlatformLock(f.Fd())
			err = l.Lock()
			if err != nil {
				didErrLocking = true
			}
			sharedCount += 1
			if sharedCount > 1 {
				didErrShared = true
			}
			time.Sleep(time.Second * 3)
			if sharedCount > 1 {
				didErrShared = true
			}
			sharedCount -= 1
			if err := l.Unlock(); err != nil {
				didErrLocking = true
			}
			wg.Done()
		}()
	}
	wg.Wait()

	if didErrShared {
		t.Fatal("two or more in critical section")
	}
	if didErrLocking {
		t.Fatal("a lock failed")
	}
}

// TestCrossProcess uses TestCrossProcessSub to check that two "instances" or
// processes of the database maintain exclusive access to the database file.
func TestCrossProcess(t *testing.T) {
	cmd1 := exec.Command("go", "test", "-run", "^TestCrossProcessSub$", "github.com/oliverhu/kdb/pager")
	cmd1.Env = append(os.Environ(), "TEST_CROSS_PROCESS_SUB=1")
	cmd2 := exec.Command("go", "test", "-run", "^TestCrossProcessSub$", "github.com/oliverhu/kdb/pager")
	cmd2.Env = append(os.Environ(), "TEST_CROSS_PROCESS_SUB=1")
	start := time.Now()
	if err := cmd1.Start(); err != nil {
		t.Fatal(err)
	}
	if err := cmd2.Start(); err != nil {
		t.Fatal(err)
	}
	if err := cmd2.Wait(); err != nil {
		t.Fatal(err)
	}
	if err := cmd1.Wait(); err != nil {
		t.Fatal(err)
	}
	elapsed := time.Since(start)
	if elapsed < (time.Second * 6) {
		t.Fatalf("expected at least 6 seconds but got %f seconds", elapsed.Seconds())
	}
	if err := os.Remove("filelock_test.db"); err != nil {
		t.Fatal("failed to clean up filelock_test.db file")
	}
}

func TestCrossProcessSub(t *testing.T) {
	if os.Getenv("TEST_CROSS_PROCESS_SUB") == "" {
		t.Skip("skipping helper test")
	}
	fl, err := os.OpenFile("filelock_test.db", os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		t.Fatalf("error opening db file: %s", err)
	}
	defer fl.Close()
	l := newPlatformLock(fl.Fd())

	if err = l.Lock(); err != nil {
		t.Fatalf("lock failed unexpectedly with err %s", err)
	}
	time.Sleep(time.Second * 3)
	if err := l.Unlock(); err != nil {
		t.Fatalf("unlock failed unexpectedly with err %s", err)
	}
}
