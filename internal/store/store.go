package store

import (
	"sync"
	"time"

	"github.com/ehrlich-b/go-memkv/internal/constants"
	"github.com/ehrlich-b/go-memkv/internal/slab"
)

// Observer receives cache-level events for stats/metrics wiring
// (internal/stats). All methods must be cheap and non-blocking; they run
// under the cache mutex.
type Observer interface {
	OnHit()
	OnMiss()
	OnStored(classID int)
	OnEvicted(classID int)
	OnExpired()
	OnOutOfMemory()
}

// NoopObserver discards every event.
type NoopObserver struct{}

func (NoopObserver) OnHit()                {}
func (NoopObserver) OnMiss()               {}
func (NoopObserver) OnStored(int)          {}
func (NoopObserver) OnEvicted(int)         {}
func (NoopObserver) OnExpired()            {}
func (NoopObserver) OnOutOfMemory()        {}

// Store is the item index: a chained hash table plus per-slab-class LRU
// lists, all mutated under a single coarse cache mutex (spec.md §4.5,
// §5) — deliberately coarse, the way the original design is, rather than
// the finer per-bucket locking the design notes call a "legitimate
// redesign" that this implementation does not take on.
type Store struct {
	mu sync.Mutex

	alloc *slab.Allocator

	primary   *bucketTable
	secondary *bucketTable
	expanding bool
	migrateAt uint64 // next old-table bucket index to migrate

	lrus map[int]*lruList

	itemCount int
	casSeq    uint64

	oldestLive int64 // flush_all watermark, seconds since startedAt; -1 until the first flush
	startedAt  time.Time

	evictToFree bool
	observer    Observer

	rehashWake chan struct{}
	closed     chan struct{}
	closeOnce  sync.Once
}

// NewStore constructs a Store over alloc. If evictToFree is false, Alloc
// returns ErrOutOfMemory instead of evicting when a class is exhausted
// (spec.md §4.5, the "-M" flag's behavior).
func NewStore(alloc *slab.Allocator, evictToFree bool, observer Observer) *Store {
	if observer == nil {
		observer = NoopObserver{}
	}
	s := &Store{
		alloc:       alloc,
		primary:     newBucketTable(constants.InitialHashBits),
		lrus:        make(map[int]*lruList),
		oldestLive:  -1,
		startedAt:   time.Now(),
		evictToFree: evictToFree,
		observer:    observer,
		rehashWake:  make(chan struct{}, 1),
		closed:      make(chan struct{}),
	}
	go s.rehashLoop()
	return s
}

// Close stops the background rehash goroutine.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// Now returns seconds elapsed since the store started, the clock spec.md
// §3/§6 expirations and oldest_live are expressed in.
func (s *Store) Now() int64 {
	return int64(time.Since(s.startedAt) / time.Second)
}

// NormalizeExptime implements spec.md §6: 0 means never; values at or
// below the 30-day threshold are deltas from now; larger values are
// absolute Unix timestamps; anything at or before process start clamps
// to one second after start.
func (s *Store) NormalizeExptime(raw uint32) uint32 {
	if raw == 0 {
		return 0
	}
	if raw <= constants.FlushDeltaThreshold {
		return uint32(s.Now()) + raw
	}
	// raw is an absolute Unix timestamp; re-express relative to Now() using
	// wall-clock so comparisons against s.Now() stay in the same units.
	abs := time.Unix(int64(raw), 0)
	delta := int64(abs.Sub(s.startedAt) / time.Second)
	if delta <= 0 {
		return 1
	}
	return uint32(delta)
}

func (s *Store) lruFor(classID int) *lruList {
	l, ok := s.lrus[classID]
	if !ok {
		l = &lruList{}
		s.lrus[classID] = l
	}
	return l
}

// expired reports whether it should be treated as absent: either its own
// exptime has passed, or it was last touched at or before oldestLive
// (spec.md §4.5 step 4, the flush_all watermark).
func (s *Store) expired(it *Item, now int64) bool {
	if it.Exptime != 0 && int64(it.Exptime) <= now {
		return true
	}
	if it.lastAccess <= s.oldestLive {
		return true
	}
	return false
}

// Get implements item_get (spec.md §4.5): hash, scan the chain(s), lazily
// expire, and on a hit bump refcount and LRU position. Callers must call
// Release on the returned item when done with it.
func (s *Store) Get(key []byte) (*Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := hashKey(key)
	it := s.lookupLocked(h, key)
	if it == nil {
		s.observer.OnMiss()
		return nil, false
	}

	now := s.Now()
	if s.expired(it, now) {
		s.observer.OnExpired()
		s.unlinkLocked(it)
		s.releaseLocked(it)
		s.observer.OnMiss()
		return nil, false
	}

	it.refCount++
	it.lastAccess = now
	s.doUpdateLRULocked(it, now)
	s.observer.OnHit()
	return it, true
}

// lookupLocked scans the primary bucket, and the secondary table too if a
// migration is in flight (spec.md §3 "Hash index").
func (s *Store) lookupLocked(h uint64, key []byte) *Item {
	if it := s.primary.find(h, key); it != nil {
		return it
	}
	if s.expanding && s.secondary != nil {
		return s.secondary.find(h, key)
	}
	return nil
}

// Alloc implements item_alloc: map size to a slab class, try to allocate,
// and on exhaustion attempt bounded LRU-tail eviction before giving up.
// The returned item is not yet linked into the index.
func (s *Store) Alloc(key []byte, flags, exptime uint32, valueLen int) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocLocked(key, flags, exptime, valueLen)
}

func (s *Store) allocLocked(key []byte, flags, exptime uint32, valueLen int) (*Item, error) {
	suffix := formatSuffix(flags, valueLen)
	total := len(key) + len(suffix) + valueLen

	class, err := s.alloc.ClassFor(total)
	if err != nil {
		return nil, ErrTooLarge
	}

	chunk, err := s.alloc.Alloc(class)
	if err == slab.ErrOutOfMemory {
		if !s.evictToFree || !s.evictOneLocked(class) {
			s.observer.OnOutOfMemory()
			return nil, ErrOutOfMemory
		}
		chunk, err = s.alloc.Alloc(class)
	}
	if err != nil {
		s.observer.OnOutOfMemory()
		return nil, ErrOutOfMemory
	}

	it := newItem(chunk, class, key, flags, exptime, valueLen, suffix)
	return it, nil
}

// evictOneLocked walks the tail of class's LRU up to EvictionScanLimit
// steps, evicting the first item held by no reference beyond the index's
// own (refCount <= 1). Returns true if an item was evicted and its chunk
// freed.
func (s *Store) evictOneLocked(class *slab.Class) bool {
	l := s.lruFor(class.ID)
	it := l.tail
	for steps := 0; it != nil && steps < constants.EvictionScanLimit; steps++ {
		prev := it.lruPrev
		if it.refCount <= 1 {
			s.unlinkLocked(it)
			s.releaseLocked(it)
			s.observer.OnEvicted(class.ID)
			return true
		}
		it = prev
	}
	return false
}

// Link implements item_link: assign a fresh CAS token, mark linked,
// insert at the head of the bucket chain and the class LRU, and bump the
// item count (possibly waking the background rehash goroutine).
func (s *Store) Link(it *Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linkLocked(it)
}

func (s *Store) linkLocked(it *Item) {
	s.casSeq++
	it.CAS = s.casSeq
	it.linked = true
	it.lastAccess = s.Now()

	h := hashKey(it.Key)
	// While a migration is in flight, a primary bucket index below
	// s.migrateAt has already been emptied into s.secondary; inserting
	// into s.primary there would vanish when migrateOneBucket later does
	// s.primary = s.secondary (spec.md §8's hash-index/LRU item count
	// invariant). Route those inserts straight to secondary instead.
	if s.expanding && s.primary.index(h) < s.migrateAt {
		s.secondary.insert(h, it)
	} else {
		s.primary.insert(h, it)
	}
	s.lruFor(it.class.ID).pushFront(it)
	s.itemCount++
	s.observer.OnStored(it.class.ID)

	if !s.expanding && s.itemCount > int(float64(len(s.primary.buckets))*constants.HashExpansionLoadFactor) {
		s.beginExpansionLocked()
	}
}

// Unlink implements item_unlink: remove from the bucket chain and LRU,
// clear the linked flag, decrement the item count, and release the
// index's own reference.
func (s *Store) Unlink(it *Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unlinkLocked(it)
	s.releaseLocked(it)
}

func (s *Store) unlinkLocked(it *Item) {
	if !it.linked {
		return
	}
	h := hashKey(it.Key)
	if !s.primary.remove(h, it.Key) {
		if s.secondary != nil {
			s.secondary.remove(h, it.Key)
		}
	}
	s.lruFor(it.class.ID).remove(it)
	it.linked = false
	s.itemCount--
}

// Release implements item_remove: decrement refcount, and once it drops
// to zero on an unlinked item, return its chunk to the slab allocator.
func (s *Store) Release(it *Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked(it)
}

func (s *Store) releaseLocked(it *Item) {
	it.refCount--
	if it.refCount <= 0 && !it.linked {
		s.alloc.Free(it.class, it.chunk)
	}
}

// Replace implements item_replace: unlink old, link new, atomically from
// the caller's point of view since both happen under one mutex acquire.
func (s *Store) Replace(old, newItem *Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old != nil {
		s.unlinkLocked(old)
		s.releaseLocked(old)
	}
	s.linkLocked(newItem)
}

// doUpdateLRULocked implements item_update's coalescing: only re-bump the
// LRU position if UPDATE_INTERVAL has elapsed since the last bump, to
// bound LRU churn under hot-key workloads.
func (s *Store) doUpdateLRULocked(it *Item, now int64) {
	if time.Duration(now-it.lruBumpAt)*time.Second < constants.LRUUpdateInterval {
		return
	}
	it.lruBumpAt = now
	s.lruFor(it.class.ID).moveToFront(it)
}

// FlushAll implements flush_all: every item whose last access is at or
// before `at` (seconds since start) becomes invisible on next lookup,
// without touching each item (spec.md §4.5 "Lazy expiration").
func (s *Store) FlushAll(at int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if at > s.oldestLive {
		s.oldestLive = at
	}
}

// DumpEntry is one row of a `stats cachedump` listing.
type DumpEntry struct {
	Key     string
	Size    int
	Exptime uint32
}

// CacheDump returns up to limit items (0 means unlimited) currently in
// classID's LRU, most- to least-recently-used, for the `stats cachedump
// <id> <limit>` debug command (memcached.c:2337's item_cachedump). Unlike
// Get, it does not bump refcounts or LRU position — this is a point-in-time
// listing, not a read.
func (s *Store) CacheDump(classID, limit int) []DumpEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lrus[classID]
	if !ok {
		return nil
	}
	var out []DumpEntry
	for it := l.head; it != nil; it = it.lruNext {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, DumpEntry{Key: string(it.Key), Size: len(it.Value), Exptime: it.Exptime})
	}
	return out
}

// ItemCount returns the number of linked items.
func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.itemCount
}

// Allocator exposes the underlying slab allocator for stats reporting.
func (s *Store) Allocator() *slab.Allocator {
	return s.alloc
}

// formatSuffix builds the " <flags> <size>\r\n" suffix spec.md §3 says is
// stored contiguously with the item.
func formatSuffix(flags uint32, size int) []byte {
	return []byte(formatSuffixString(flags, size))
}
