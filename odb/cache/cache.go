// Package cache implements the ODB's bounded cache of recently-read
// objects, keyed by object ID, evicted by cumulative payload byte size
// rather than entry count.
//
// Grounded on go-git's plumbing/cache package (common.go's Object interface
// and size-unit constants; object_test.go's ObjectLRU contract — byte-size
// bounded, evicting the least-recently-used entries first until the new
// entry fits, even if that means evicting several at once). The eviction
// bookkeeping itself is built on github.com/golang/groupcache/lru (also in
// go-git's go.mod) rather than reimplementing a linked-list LRU:
// groupcache's Cache is entry-count bounded, so this package wraps it with
// its own byte-size accounting and evicts via RemoveOldest() in a loop
// until the size budget is met again, recovering go-git's byte-size
// semantics on top of the real dependency.
package cache

import (
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/nullpx/gitcore/hash"
	"github.com/nullpx/gitcore/object"
)

// FileSize is a byte count, with convenience unit constants matching
// go-git's plumbing/cache.
type FileSize int64

const (
	Byte FileSize = 1 << (iota * 10)
	KiByte
	MiByte
	GiByte
)

// DefaultMaxSize is used by NewObjectLRUDefault.
const DefaultMaxSize = 96 * MiByte

// entry is the value stored in the underlying lru.Cache.
type entry struct {
	typ     object.Type
	payload []byte
}

func (e entry) size() FileSize { return FileSize(len(e.payload)) }

// ObjectLRU is a thread-safe, byte-size-bounded LRU of decoded objects.
type ObjectLRU struct {
	MaxSize FileSize

	mu         sync.Mutex
	ll         *lru.Cache
	actualSize FileSize
}

// NewObjectLRU returns a cache that evicts least-recently-used entries once
// the sum of cached payload sizes would exceed maxSize.
func NewObjectLRU(maxSize FileSize) *ObjectLRU {
	o := &ObjectLRU{MaxSize: maxSize}
	o.ll = lru.New(0) // 0: unbounded by entry count, bounded by size instead
	o.ll.OnEvicted = func(_ lru.Key, value interface{}) {
		o.actualSize -= value.(entry).size()
	}
	return o
}

// NewObjectLRUDefault returns an ObjectLRU bounded by DefaultMaxSize.
func NewObjectLRUDefault() *ObjectLRU {
	return NewObjectLRU(DefaultMaxSize)
}

// Put stores typ/payload under id, evicting older entries as needed to stay
// within MaxSize. An object larger than MaxSize on its own is not cached.
func (o *ObjectLRU) Put(id hash.ID, typ object.Type, payload []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()

	e := entry{typ: typ, payload: payload}
	size := e.size()
	if size > o.MaxSize {
		return
	}

	if _, ok := o.ll.Get(id); ok {
		o.ll.Remove(id) // OnEvicted subtracts the old entry's size
	}

	for o.actualSize+size > o.MaxSize && o.ll.Len() > 0 {
		o.ll.RemoveOldest()
	}

	o.ll.Add(id, e)
	o.actualSize += size
}

// Get returns the cached type and payload for id, if present.
func (o *ObjectLRU) Get(id hash.ID) (object.Type, []byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	v, ok := o.ll.Get(id)
	if !ok {
		return 0, nil, false
	}
	e := v.(entry)
	return e.typ, e.payload, true
}

// Clear empties the cache.
func (o *ObjectLRU) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ll.Clear()
	o.actualSize = 0
}
