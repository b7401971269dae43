package sequence

import (
	"sync"
)

// Store is the persistence contract consumed by the Authority.
//
// Keys are short strings derived from element addresses, values are unsigned
// integers wide enough for a 56 bits SeqAuth. Implementations do not need to
// serialize concurrent calls, the Authority holds its own lock around every
// read-modify-write.
type Store interface {
	// GetUint returns the value stored under key.
	// The bool flag is false if the key is absent or the Store is unreachable.
	GetUint(key string) (uint64, bool)

	// SetUint stores value under key, replacing any previous value.
	SetUint(key string, value uint64) error

	// Remove drops the key from the Store. Removing an absent key is not an error.
	Remove(key string) error
}

// MemStore is a volatile Store keeping counters in an inner map.
// The zero value is not usable, instantiate through NewMemStore.
type MemStore struct {
	mut     sync.RWMutex
	entries map[string]uint64
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[string]uint64)}
}

// GetUint returns the value stored under key.
func (self *MemStore) GetUint(key string) (uint64, bool) {
	self.mut.RLock()
	defer self.mut.RUnlock()
	rv, ok := self.entries[key]
	return rv, ok
}

// SetUint stores value under key.
func (self *MemStore) SetUint(key string, value uint64) error {
	self.mut.Lock()
	defer self.mut.Unlock()
	self.entries[key] = value
	return nil
}

// Remove drops the key from the MemStore.
func (self *MemStore) Remove(key string) error {
	self.mut.Lock()
	defer self.mut.Unlock()
	delete(self.entries, key)
	return nil
}

var _ Store = &MemStore{}
