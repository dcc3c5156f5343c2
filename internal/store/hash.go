package store

import (
	"bytes"

	"github.com/cespare/xxhash/v2"
)

// hashKey computes the non-cryptographic 32-bit-equivalent hash spec.md
// §4.5 calls for ("Jenkins one-at-a-time or equivalent"). xxhash is the
// pack's precedent for this job (aistore vendors github.com/OneOfOne/xxhash
// for the same purpose); we keep the full 64-bit digest and fold to the
// bucket index with a mask, which distributes at least as well as a
// truncated 32-bit hash would.
func hashKey(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// bucketTable is a flat array of chain heads; index 2^bits - 1 masks the
// hash down to a bucket.
type bucketTable struct {
	buckets []*Item
	bits    uint
}

func newBucketTable(bits uint) *bucketTable {
	return &bucketTable{buckets: make([]*Item, 1<<bits), bits: bits}
}

func (t *bucketTable) index(h uint64) uint64 {
	return h & (uint64(len(t.buckets)) - 1)
}

func (t *bucketTable) find(h uint64, key []byte) *Item {
	for it := t.buckets[t.index(h)]; it != nil; it = it.hNext {
		if bytes.Equal(it.Key, key) {
			return it
		}
	}
	return nil
}

func (t *bucketTable) insert(h uint64, it *Item) {
	idx := t.index(h)
	it.hNext = t.buckets[idx]
	t.buckets[idx] = it
}

func (t *bucketTable) remove(h uint64, key []byte) bool {
	idx := t.index(h)
	var prev *Item
	for it := t.buckets[idx]; it != nil; it = it.hNext {
		if bytes.Equal(it.Key, key) {
			if prev == nil {
				t.buckets[idx] = it.hNext
			} else {
				prev.hNext = it.hNext
			}
			it.hNext = nil
			return true
		}
		prev = it
	}
	return false
}
