package dialogue

import "sync"

// keyedMutex serializes turn processing per conversation key so two
// concurrent events for one sender cannot both read the same
// currentNodeId and advance independently. Different keys proceed in
// parallel.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires the lock for key, creating it on first use.
func (k *keyedMutex) Lock(key string) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
}

// Unlock releases the lock for key and drops it once nobody waits.
func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	l := k.locks[key]
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	l.mu.Unlock()
}
