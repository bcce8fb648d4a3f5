package service

import (
	"slices"
	"sync"
)

// principalLocks hands out one mutex per principal key and drops it once
// no goroutine holds or waits for it.
type principalLocks struct {
	mu    sync.Mutex
	locks map[string]*principalLock
}

type principalLock struct {
	mu   sync.Mutex
	refs int
}

func newPrincipalLocks() *principalLocks {
	return &principalLocks{locks: make(map[string]*principalLock)}
}

// lock acquires every key in sorted order and returns the matching unlock.
func (l *principalLocks) lock(keys ...string) func() {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	held := make([]*principalLock, 0, len(keys))
	for _, key := range keys {
		entry := l.acquire(key)
		entry.mu.Lock()
		held = append(held, entry)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			l.release(keys[i])
		}
	}
}

func (l *principalLocks) acquire(key string) *principalLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.locks[key]
	if !ok {
		entry = &principalLock{}
		l.locks[key] = entry
	}
	entry.refs++
	return entry
}

func (l *principalLocks) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.locks[key]
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *principalLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
