// Package slab implements the power-of-growth size-class allocator
// described in spec.md §4.4: chunks are carved from fixed-size pages and
// served from per-class freelists, so item storage never fragments the
// heap the way ad-hoc allocation would.
//
// This generalizes the teacher's (go-ublk's internal/queue) size-bucketed
// sync.Pool buffer pool: that pool has four fixed power-of-two buckets
// backed by the Go garbage collector, fine for transient I/O buffers that
// can vanish under memory pressure. A cache item must not vanish until
// evicted, and the allocator must enforce a hard byte budget the GC knows
// nothing about — so here each class owns real pages and real freelists
// instead of a sync.Pool, and allocation/free is accounted against a
// configured memory limit.
package slab

import (
	"fmt"
	"sync"
	"unsafe"
)

// page is one fixed-size block of memory subdivided into equal chunks.
type page struct {
	buf  []byte
	used int // chunks from this page currently allocated (not on the freelist)
}

// chunk is a single allocation unit handed to callers; the byte slice
// subranges the owning page's backing array so Alloc/Free never touches
// the Go heap on the hot path once a page exists.
type chunk struct {
	data []byte
	pg   *page
}

// Class is one size class: a chunk size, the pages carved for it, and its
// freelist.
type Class struct {
	ID        int
	ChunkSize int

	pages []*page
	free  []*chunk

	allocs   uint64
	frees    uint64
	requests uint64
}

// ErrTooLarge is returned by ClassFor when size exceeds every class.
var ErrTooLarge = fmt.Errorf("slab: object too large for cache")

// ErrOutOfMemory is returned by Alloc when the class's freelist is empty
// and growing it would exceed the configured memory limit.
var ErrOutOfMemory = fmt.Errorf("slab: out of memory")

// Config configures a new Allocator.
type Config struct {
	MemoryLimit   int64
	MinChunkSize  int
	GrowthFactor  float64
	PageSize      int
	MaxClasses    int
	Preallocate   bool
}

// Allocator owns every size class and enforces the total memory budget.
// All mutating methods must be called with the caller already holding the
// single cache mutex (spec.md §4.5) — Allocator itself only adds an
// internal mutex around its own bookkeeping.
type Allocator struct {
	mu         sync.Mutex
	classes    []*Class
	pageSize   int
	memLimit   int64
	usedBytes  int64
}

// NewAllocator builds the class table per spec.md §4.4: class 1's chunk
// size is MinChunkSize rounded up to 8 bytes (an item's header is a Go
// struct kept outside its chunk, so no header size is added); each class
// grows by GrowthFactor rounded up to 8-byte alignment; growth stops once a
// class's chunk size would reach half the page size (or the class count
// reaches MaxClasses), and the final class's chunk size is forced to
// exactly PageSize.
func NewAllocator(cfg Config) *Allocator {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1024 * 1024
	}
	if cfg.GrowthFactor <= 1 {
		cfg.GrowthFactor = 1.25
	}
	if cfg.MaxClasses <= 0 {
		cfg.MaxClasses = 64
	}
	if cfg.MinChunkSize <= 0 {
		cfg.MinChunkSize = 48
	}

	a := &Allocator{pageSize: cfg.PageSize, memLimit: cfg.MemoryLimit}

	size := align8(cfg.MinChunkSize)
	id := 1
	for id <= cfg.MaxClasses {
		if size >= cfg.PageSize/2 || id == cfg.MaxClasses {
			size = cfg.PageSize
		}
		a.classes = append(a.classes, &Class{ID: id, ChunkSize: size})
		if size >= cfg.PageSize {
			break
		}
		next := align8(int(float64(size) * cfg.GrowthFactor))
		if next <= size {
			next = size + 8
		}
		size = next
		id++
	}

	if cfg.Preallocate {
		for _, c := range a.classes {
			_ = a.growClass(c)
		}
	}

	return a
}

func align8(n int) int {
	if rem := n % 8; rem != 0 {
		n += 8 - rem
	}
	return n
}

// ClassFor returns the smallest class whose chunk size is >= size.
func (a *Allocator) ClassFor(size int) (*Class, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range a.classes {
		if c.ChunkSize >= size {
			return c, nil
		}
	}
	return nil, ErrTooLarge
}

// ClassByID returns the class with the given id, or nil.
func (a *Allocator) ClassByID(id int) *Class {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range a.classes {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Classes returns every class, primary-index order, for stats reporting.
func (a *Allocator) Classes() []*Class {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Class, len(a.classes))
	copy(out, a.classes)
	return out
}

// Alloc returns a chunk from class c, growing it with a new page if the
// freelist is empty and the memory budget allows, or ErrOutOfMemory.
// Callers (internal/store) decide whether to attempt eviction on failure.
func (a *Allocator) Alloc(c *Class) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	c.requests++
	if len(c.free) == 0 {
		if err := a.growClass(c); err != nil {
			return nil, err
		}
	}
	ch := c.free[len(c.free)-1]
	c.free = c.free[:len(c.free)-1]
	ch.pg.used++
	c.allocs++
	return ch.data, nil
}

// growClass carves one new page for c, pushing every chunk onto its
// freelist, provided doing so keeps total allocated bytes within the
// configured memory limit.
func (a *Allocator) growClass(c *Class) error {
	if a.memLimit > 0 && a.usedBytes+int64(a.pageSize) > a.memLimit {
		return ErrOutOfMemory
	}

	buf := make([]byte, a.pageSize)
	pg := &page{buf: buf}
	n := a.pageSize / c.ChunkSize
	for i := 0; i < n; i++ {
		start := i * c.ChunkSize
		c.free = append(c.free, &chunk{data: buf[start : start+c.ChunkSize], pg: pg})
	}
	c.pages = append(c.pages, pg)
	a.usedBytes += int64(a.pageSize)
	return nil
}

// Free returns a chunk of class c to its freelist. The slice passed in
// must be one previously returned by Alloc for the same class; Free does
// not validate that (the caller, internal/store, owns that invariant via
// the item's recorded class id).
func (a *Allocator) Free(c *Class, buf []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pg := a.ownerPage(c, buf)
	if pg != nil {
		pg.used--
	}
	c.free = append(c.free, &chunk{data: buf, pg: pg})
	c.frees++
}

// ownerPage finds the page whose backing array contains buf's first byte,
// by comparing raw addresses. Chunks never move once carved, so a simple
// range containment check is enough to recover which page a freed chunk
// belongs to.
func (a *Allocator) ownerPage(c *Class, buf []byte) *page {
	if len(buf) == 0 {
		return nil
	}
	addr := uintptr(unsafe.Pointer(&buf[0]))
	for _, pg := range c.pages {
		if len(pg.buf) == 0 {
			continue
		}
		start := uintptr(unsafe.Pointer(&pg.buf[0]))
		end := start + uintptr(len(pg.buf))
		if addr >= start && addr < end {
			return pg
		}
	}
	return nil
}

// UsedBytes returns total bytes carved into pages across every class.
func (a *Allocator) UsedBytes() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usedBytes
}

// ReassignResult mirrors spec.md §4.4's DONE/CANT/BUSY outcomes.
type ReassignResult int

const (
	ReassignDone ReassignResult = iota
	ReassignCant
	ReassignBusy
)

// Reassign moves one fully-free page from class src to class dst,
// re-carving it into dst's chunk size. Returns ReassignCant if src has no
// page with zero items in use.
func (a *Allocator) Reassign(src, dst *Class) ReassignResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, pg := range src.pages {
		if pg.used != 0 {
			continue
		}
		// Remove every freelist entry belonging to this page.
		kept := src.free[:0]
		for _, ch := range src.free {
			if ch.pg != pg {
				kept = append(kept, ch)
			}
		}
		src.free = kept
		src.pages = append(src.pages[:i], src.pages[i+1:]...)

		n := len(pg.buf) / dst.ChunkSize
		for j := 0; j < n; j++ {
			start := j * dst.ChunkSize
			dst.free = append(dst.free, &chunk{data: pg.buf[start : start+dst.ChunkSize], pg: pg})
		}
		dst.pages = append(dst.pages, pg)
		return ReassignDone
	}
	return ReassignCant
}

// Stats is a point-in-time snapshot of one class's bookkeeping, used by
// the "stats slabs" text command.
type Stats struct {
	ClassID    int
	ChunkSize  int
	Pages      int
	FreeChunks int
	UsedChunks int
	Requests   uint64
	Allocs     uint64
	Frees      uint64
}

// Stat returns a snapshot of class c.
func (a *Allocator) Stat(c *Class) Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := 0
	for _, pg := range c.pages {
		total += len(pg.buf) / c.ChunkSize
	}
	return Stats{
		ClassID:    c.ID,
		ChunkSize:  c.ChunkSize,
		Pages:      len(c.pages),
		FreeChunks: len(c.free),
		UsedChunks: total - len(c.free),
		Requests:   c.requests,
		Allocs:     c.allocs,
		Frees:      c.frees,
	}
}
