// Package store implements the item index and LRU eviction engine of
// spec.md §4.5: a chained hash table with background incremental
// rehashing, per-slab-class LRU lists, reference counting, lazy
// expiration, and eviction-on-insert.
package store

import (
	"github.com/ehrlich-b/go-memkv/internal/slab"
)

// Item is the unit of cached storage (spec.md §3). Key, a formatted
// suffix, and Value all live inside chunk, the single slab allocation
// backing this item — mirroring the teacher's habit (backend/mem.go,
// internal/queue/runner.go) of carving fixed regions out of one
// contiguous buffer instead of scattering small heap allocations.
type Item struct {
	chunk   []byte
	class   *slab.Class
	Key     []byte
	Suffix  []byte // " <flags> <size>\r\n"; text replies format their VALUE line separately
	Value   []byte

	Flags      uint32
	Exptime    uint32 // seconds since process start (see NormalizeExptime); 0 = never
	CAS        uint64
	lastAccess int64 // seconds since process start, for oldest_live comparison
	lruBumpAt  int64 // seconds since process start of the last LRU reposition

	refCount int32
	linked   bool

	hNext *Item // bucket chain

	lruPrev *Item
	lruNext *Item
}

// newItem carves key/suffix/value out of a freshly allocated chunk.
func newItem(chunk []byte, class *slab.Class, key []byte, flags, exptime uint32, valueLen int, suffix []byte) *Item {
	it := &Item{chunk: chunk, class: class, Flags: flags, Exptime: exptime, refCount: 1}
	off := 0
	it.Key = chunk[off : off+len(key)]
	copy(it.Key, key)
	off += len(key)
	it.Suffix = chunk[off : off+len(suffix)]
	copy(it.Suffix, suffix)
	off += len(suffix)
	it.Value = chunk[off : off+valueLen]
	return it
}

// chunkSize returns the total bytes this item's contiguous allocation
// occupies, i.e. the owning slab class's chunk size.
func (it *Item) chunkSize() int {
	return len(it.chunk)
}
