package cartsync

import (
	"sort"
	"sync"
)

// OwnerLocks serializes mutations per cart owner within this process.
// Cross-process races are caught by the version check on save.
type OwnerLocks struct {
	mu    sync.Mutex
	locks map[string]*ownerLock
}

type ownerLock struct {
	mu   sync.Mutex
	refs int
}

func NewOwnerLocks() *OwnerLocks {
	return &OwnerLocks{locks: make(map[string]*ownerLock)}
}

// Lock acquires every key in sorted order and returns a func releasing
// them. Sorting keeps two multi-key callers from deadlocking.
func (l *OwnerLocks) Lock(keys ...string) (unlock func()) {
	keys = dedupe(keys)
	sort.Strings(keys)

	held := make([]*ownerLock, 0, len(keys))
	for _, key := range keys {
		lock := l.acquire(key)
		lock.mu.Lock()
		held = append(held, lock)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			l.release(keys[i])
		}
	}
}

func (l *OwnerLocks) acquire(key string) *ownerLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &ownerLock{}
		l.locks[key] = lock
	}
	lock.refs++
	return lock
}

func (l *OwnerLocks) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock := l.locks[key]
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, key)
	}
}

func dedupe(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
