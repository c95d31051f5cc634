package ledger

import (
	"sort"
	"sync"
)

// accountLocks serializes ledger operations per account id. Entries are
// reference-counted and dropped once the last holder or waiter releases,
// so closed accounts do not pin a mutex for the life of the process.
// Multi-account operations acquire ids in lexicographic order so two
// concurrent opposite-direction transfers cannot deadlock.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]*lockEntry)}
}

// lock acquires the mutex for one account and returns the release func.
func (l *accountLocks) lock(id string) func() {
	l.mu.Lock()
	e, ok := l.locks[id]
	if !ok {
		e = &lockEntry{}
		l.locks[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// lockPair acquires both accounts' mutexes in lexicographic order.
func (l *accountLocks) lockPair(a, b string) func() {
	return l.lockAll([]string{a, b})
}

// lockAll acquires every id's mutex in lexicographic order, skipping
// duplicates, and returns a func releasing them in reverse order.
func (l *accountLocks) lockAll(ids []string) func() {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	var releases []func()
	for i, id := range sorted {
		if i > 0 && id == sorted[i-1] {
			continue
		}
		releases = append(releases, l.lock(id))
	}
	return func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
}
