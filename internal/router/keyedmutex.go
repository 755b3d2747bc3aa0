package router

import "sync"

// KeyedMutex serializes work per key: events for the same chat (or the same
// message for point edits) execute one at a time, while different keys run
// fully in parallel. Entries are refcounted and removed when idle so the map
// does not grow with every chat ever seen.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*kmEntry
}

type kmEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*kmEntry)}
}

// Lock blocks until the key is free and returns the unlock function.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &kmEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
