package utils

import (
	"fmt"
	"sync"
)

type keyedEntry struct {
	mu      sync.Mutex
	waiters int
}

// KeyedMutex serializes callers that share a key while letting different
// keys proceed concurrently. Entries are dropped once nobody holds or waits
// for them.
type KeyedMutex struct {
	edit    sync.Mutex
	entries map[string]*keyedEntry
	maxKeys int
}

func NewKeyedMutex(maxKeys int) *KeyedMutex {
	return &KeyedMutex{
		entries: make(map[string]*keyedEntry),
		maxKeys: maxKeys,
	}
}

// Lock blocks until key is free and returns the function that releases it.
func (m *KeyedMutex) Lock(key string) (func(), error) {
	m.edit.Lock()
	entry, ok := m.entries[key]
	if !ok {
		if len(m.entries) >= m.maxKeys {
			m.edit.Unlock()
			return nil, fmt.Errorf("max number of locked keys (%d) reached", m.maxKeys)
		}
		entry = &keyedEntry{}
		m.entries[key] = entry
	}
	entry.waiters++
	m.edit.Unlock()

	entry.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() { m.release(key, entry) })
	}, nil
}

func (m *KeyedMutex) release(key string, entry *keyedEntry) {
	m.edit.Lock()
	defer m.edit.Unlock()

	entry.waiters--
	if entry.waiters == 0 {
		delete(m.entries, key)
	}
	entry.mu.Unlock()
}
