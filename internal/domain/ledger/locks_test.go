package ledger

import (
	"sync"
	"testing"
)

func entryCount(l *accountLocks) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func TestAccountLocks_EntriesDroppedOnRelease(t *testing.T) {
	l := newAccountLocks()

	unlock := l.lock("acc-1")
	unlockPair := l.lockPair("acc-2", "acc-3")
	if n := entryCount(l); n != 3 {
		t.Fatalf("lock table has %d entries while held, want 3", n)
	}

	unlock()
	unlockPair()
	if n := entryCount(l); n != 0 {
		t.Errorf("lock table retained %d entries after release", n)
	}
}

func TestAccountLocks_EntryDroppedAfterLastWaiter(t *testing.T) {
	l := newAccountLocks()
	unlock := l.lock("acc-1")

	const waiters = 4
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := l.lock("acc-1")
			release()
		}()
	}
	unlock()
	wg.Wait()

	if n := entryCount(l); n != 0 {
		t.Errorf("lock table retained %d entries after all waiters released", n)
	}
}

func TestAccountLocks_LockAllDeduplicates(t *testing.T) {
	l := newAccountLocks()

	// A duplicate id must not self-deadlock.
	unlock := l.lockAll([]string{"acc-2", "acc-1", "acc-2"})
	if n := entryCount(l); n != 2 {
		t.Errorf("lock table has %d entries while held, want 2", n)
	}
	unlock()
	if n := entryCount(l); n != 0 {
		t.Errorf("lock table retained %d entries after release", n)
	}
}
