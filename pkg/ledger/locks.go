package ledger

import "sync"

// Locks serializes mutations per book. Borrow, Return and book deletion
// hold the lock of a single book; Sync holds all of them.
type Locks struct {
	all   sync.RWMutex
	mu    sync.Mutex
	books map[uint]*sync.Mutex
}

func NewLocks() *Locks {
	return &Locks{books: make(map[uint]*sync.Mutex)}
}

// Lock blocks until bookID is free and returns the matching unlock.
func (l *Locks) Lock(bookID uint) func() {
	l.all.RLock()

	l.mu.Lock()
	m, ok := l.books[bookID]
	if !ok {
		m = &sync.Mutex{}
		l.books[bookID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.all.RUnlock()
	}
}

func (l *Locks) LockAll() func() {
	l.all.Lock()
	return l.all.Unlock
}
