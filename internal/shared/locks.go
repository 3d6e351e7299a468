package shared

import (
	"fmt"
	"sync"
)

// MaterialLockKey names a raw material's critical section.
func MaterialLockKey(materialID int64) string {
	return fmt.Sprintf("ledger:material:%d:lock", materialID)
}

// KeyedMutex serialises access per string key. Workflows lock the
// affected raw material identities so that check-then-mutate sequences
// against the same material cannot interleave.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex constructs an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyedEntry)}
}

// Lock acquires the mutex for key, blocking until it is available.
func (k *KeyedMutex) Lock(key string) {
	k.mu.Lock()
	entry, ok := k.entries[key]
	if !ok {
		entry = &keyedEntry{}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
}

// Unlock releases the mutex for key.
func (k *KeyedMutex) Unlock(key string) {
	k.mu.Lock()
	entry, ok := k.entries[key]
	if ok {
		entry.refs--
		if entry.refs == 0 {
			delete(k.entries, key)
		}
	}
	k.mu.Unlock()

	if ok {
		entry.mu.Unlock()
	}
}

// LockAll acquires every key in sorted order to avoid lock cycles
// between callers holding overlapping key sets. Keys must be pre-sorted
// by the caller.
func (k *KeyedMutex) LockAll(keys []string) {
	for _, key := range keys {
		k.Lock(key)
	}
}

// UnlockAll releases keys in reverse acquisition order.
func (k *KeyedMutex) UnlockAll(keys []string) {
	for i := len(keys) - 1; i >= 0; i-- {
		k.Unlock(keys[i])
	}
}
