package roster

import "sync"

// LockTable hands out one mutex per key. Entries are created on first use
// and dropped once no goroutine holds or waits for them.
type LockTable struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewLockTable creates an empty lock table
func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[string]*keyLock)}
}

// Do runs fn while holding the lock for key. Calls for the same key run
// one at a time in the order they acquire the mutex.
func (t *LockTable) Do(key string, fn func() error) error {
	l := t.acquire(key)
	l.mu.Lock()
	defer t.release(key, l)
	defer l.mu.Unlock()
	return fn()
}

func (t *LockTable) acquire(key string) *keyLock {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[key]
	if !ok {
		l = &keyLock{}
		t.locks[key] = l
	}
	l.refs++
	return l
}

func (t *LockTable) release(key string, l *keyLock) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(t.locks, key)
	}
}

// Len reports how many keys currently have a live lock
func (t *LockTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
