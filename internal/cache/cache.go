package cache

import (
	"sync"

	"github.com/gostonefire/hashdb/internal/utils"
	lru "github.com/hashicorp/golang-lru/v2"
)

// RecordCache - Bounded least recently used cache of record values keyed by record key.
// It is write-through: callers update the storage file first, so nothing is ever dirty.
// A capacity of zero disables the cache and every lookup misses.
type RecordCache struct {
	mu       sync.Mutex
	capacity int
	lru      *lru.Cache[string, []byte]
}

// New - Returns a pointer to a new RecordCache holding at most capacity entries
func New(capacity int) (rc *RecordCache, err error) {
	rc = &RecordCache{}
	err = rc.SetCapacity(capacity)

	return
}

// SetCapacity - Changes the max number of entries, evicting least recently used entries down to the new limit
func (R *RecordCache) SetCapacity(capacity int) (err error) {
	R.mu.Lock()
	defer R.mu.Unlock()

	if capacity <= 0 {
		if R.lru != nil {
			R.lru.Purge()
		}
		R.lru = nil
		R.capacity = 0
		return
	}

	if R.lru == nil {
		R.lru, err = lru.New[string, []byte](capacity)
		if err != nil {
			return
		}
	} else {
		_ = R.lru.Resize(capacity)
	}
	R.capacity = capacity

	return
}

// Capacity - Returns the max number of entries
func (R *RecordCache) Capacity() int {
	R.mu.Lock()
	defer R.mu.Unlock()

	return R.capacity
}

// Len - Returns the number of cached entries
func (R *RecordCache) Len() int {
	c := R.current()
	if c == nil {
		return 0
	}

	return c.Len()
}

// Get - Returns a copy of the cached value for key
func (R *RecordCache) Get(key []byte) (value []byte, ok bool) {
	c := R.current()
	if c == nil {
		return
	}

	value, ok = c.Get(string(key))
	if ok {
		value = utils.CopyBytes(value)
	}

	return
}

// Put - Stores a copy of value for key, refreshing any existing entry
func (R *RecordCache) Put(key, value []byte) {
	c := R.current()
	if c == nil {
		return
	}

	v := utils.CopyBytes(value)
	if v == nil {
		v = []byte{}
	}
	_ = c.Add(string(key), v)
}

// Remove - Invalidates the entry for key
func (R *RecordCache) Remove(key []byte) {
	c := R.current()
	if c == nil {
		return
	}

	_ = c.Remove(string(key))
}

// Purge - Invalidates all entries
func (R *RecordCache) Purge() {
	c := R.current()
	if c == nil {
		return
	}

	c.Purge()
}

func (R *RecordCache) current() *lru.Cache[string, []byte] {
	R.mu.Lock()
	defer R.mu.Unlock()

	return R.lru
}
