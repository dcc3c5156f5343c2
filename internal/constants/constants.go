// Package constants holds the protocol and tuning constants shared across
// go-memkv's internal packages.
package constants

import "time"

const (
	// DefaultPort is the default TCP/UDP listening port (memcached's own
	// historical default, kept for drop-in client compatibility).
	DefaultPort = 11211

	// DefaultNumWorkers is used when the caller does not set NumWorkers.
	// Zero means "pick one worker per CPU" at Server construction time.
	DefaultNumWorkers = 0

	// ReqsPerEvent bounds how many parsed requests one DriveText/DriveBinary
	// pass handles before Conn.Drive yields the processor and starts the
	// next pass, so a pipelining client cannot starve its peers.
	ReqsPerEvent = 20

	// ReadBufBaseline is the starting (and shrink-to) size of a connection's
	// read buffer.
	ReadBufBaseline = 2 * 1024

	// ReadBufHighWatermark is the size above which an idle connection's read
	// buffer is reset to ReadBufBaseline between requests.
	ReadBufHighWatermark = 8 * 1024

	// ItemListBaseline / ItemListHighWatermark bound the reusable per-connection
	// scratch slice used to gather items for a multi-key get.
	ItemListBaseline     = 48
	ItemListHighWatermark = 512

	// IOVBaseline / IOVHighWatermark bound the reusable per-connection iovec list.
	IOVBaseline     = 64
	IOVHighWatermark = 1024

	// MaxIOVPerHeader caps iovecs per scatter/gather write so a single
	// writev call never exceeds the platform's IOV_MAX.
	MaxIOVPerHeader = 1024

	// UDPMaxPayload caps bytes per UDP response datagram. Smaller than the
	// Ethernet MTU so the datagram survives common tunneling overhead.
	UDPMaxPayload = 1400

	// UDPHeaderSize is the 8-byte request-id/seq/total/reserved UDP framing
	// header prefixed to every datagram, in and out.
	UDPHeaderSize = 8

	// MaxKeySize is the largest accepted key length in bytes.
	MaxKeySize = 250

	// BinaryMagicRequest / BinaryMagicResponse identify the binary protocol
	// on the wire and select auto-detected connections.
	BinaryMagicRequest  = 0x80
	BinaryMagicResponse = 0x81

	// BinaryHeaderSize is the fixed size of a binary protocol header.
	BinaryHeaderSize = 24

	// DefaultSlabFactor is the geometric growth factor between consecutive
	// slab classes.
	DefaultSlabFactor = 1.25

	// DefaultSlabMinChunkSize is the smallest slab class's chunk size.
	DefaultSlabMinChunkSize = 48

	// DefaultSlabPageSize is the size of one slab page, carved into equal
	// chunks of one class's size.
	DefaultSlabPageSize = 1024 * 1024

	// MaxSlabClasses bounds the number of slab classes the allocator builds.
	MaxSlabClasses = 64

	// DefaultMemoryLimit is the default total byte budget across all slab
	// pages.
	DefaultMemoryLimit = 64 * 1024 * 1024

	// EvictionScanLimit bounds how many LRU tail items item_alloc will walk
	// past pinned entries (refcount > 1, i.e. referenced beyond the index's
	// own reference) before giving up.
	EvictionScanLimit = 50

	// LRUUpdateInterval is the minimum time between LRU bumps for the same
	// item, coalescing churn under hot-key workloads.
	LRUUpdateInterval = 60 * time.Second

	// InitialHashBits is the starting power-of-two bucket count exponent
	// (2^InitialHashBits buckets) for the primary hash table.
	InitialHashBits = 16

	// HashExpansionLoadFactor triggers background rehashing once item count
	// exceeds this factor times the current bucket count.
	HashExpansionLoadFactor = 1.5

	// ConnFreelistHighWatermark bounds how many idle connections the pool
	// keeps before letting the GC reclaim them outright.
	ConnFreelistHighWatermark = 4096

	// FlushDeltaThreshold is the boundary (in seconds) at or below which an
	// exptime value is a delta from now; above it, it is an absolute Unix
	// timestamp.
	FlushDeltaThreshold = 30 * 24 * 60 * 60
)
