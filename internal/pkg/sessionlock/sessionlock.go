// Package sessionlock serializes work on a single session. Mutating calls on
// the same session id run one at a time; different sessions proceed in
// parallel.
package sessionlock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

type KeyedMutex struct {
	mu      sync.Mutex
	entries map[uint]*entry
}

func New() *KeyedMutex {
	return &KeyedMutex{entries: make(map[uint]*entry)}
}

// Lock blocks until the caller holds the lock for id.
func (k *KeyedMutex) Lock(id uint) {
	k.mu.Lock()
	e, ok := k.entries[id]
	if !ok {
		e = &entry{}
		k.entries[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the lock for id. The entry is dropped once no goroutine is
// holding or waiting on it.
func (k *KeyedMutex) Unlock(id uint) {
	k.mu.Lock()
	e, ok := k.entries[id]
	if ok {
		e.refs--
		if e.refs == 0 {
			delete(k.entries, id)
		}
	}
	k.mu.Unlock()

	if ok {
		e.mu.Unlock()
	}
}
