package state

import "sync"

// keyedLock is a non-blocking mutex per key. Entries are removed on unlock
// so the map only holds chats with input in flight.
type keyedLock struct {
	mu   sync.Mutex
	held map[Key]struct{}
}

func newKeyedLock() *keyedLock {
	return &keyedLock{held: make(map[Key]struct{})}
}

// TryLock acquires key and reports false if it is already held.
func (l *keyedLock) TryLock(key Key) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return false
	}
	l.held[key] = struct{}{}
	return true
}

func (l *keyedLock) Unlock(key Key) {
	l.mu.Lock()
	delete(l.held, key)
	l.mu.Unlock()
}
