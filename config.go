package memkv

import (
	"os"

	"github.com/ehrlich-b/go-memkv/internal/constants"
)

// Config configures a Server: listening addresses, memory and concurrency
// limits, and the observability hooks. Grounded on the teacher's
// DeviceParams/DefaultParams split (backend.go): every knob the
// orchestration layer needs lives in one flat struct, and a zero value
// means "use the sensible default", not "disabled" — except for the three
// address fields, where empty genuinely means "don't listen on this
// transport".
type Config struct {
	// TCPAddr is the address (e.g. ":11211") to accept text/binary stream
	// connections on. Empty disables the TCP listener.
	TCPAddr string

	// UDPAddr is the address to accept framed UDP datagrams on, per
	// spec.md §6. Empty disables UDP.
	UDPAddr string

	// UnixPath is a filesystem path to listen on with a Unix stream
	// socket. Empty disables it. UnixMode, if nonzero, chmods the socket
	// file after creation.
	UnixPath string
	UnixMode os.FileMode

	// NumWorkers is the size of the worker reactor pool. 0 picks
	// runtime.NumCPU().
	NumWorkers int

	// ReusePort sets SO_REUSEPORT on the TCP/UDP listeners, letting
	// multiple go-memkv processes (or a future multi-listener topology)
	// share one port.
	ReusePort bool

	// CPUAffinity optionally pins worker goroutines to specific CPUs,
	// round-robin by worker index.
	CPUAffinity []int

	// MemoryLimit is the total byte budget across every slab page
	// (spec.md §4.4).
	MemoryLimit int64

	// SlabMinChunkSize, SlabGrowthFactor, and SlabPageSize configure the
	// size-class ladder (spec.md §4.4's power-of-growth allocator).
	SlabMinChunkSize int
	SlabGrowthFactor float64
	SlabPageSize     int

	// EvictToFree enables LRU eviction when Alloc would otherwise return
	// out-of-memory (spec.md §4.5). Disabling it makes allocation failures
	// visible to clients instead of silently evicting live data, matching
	// memcached's -M flag.
	EvictToFree bool

	// Logger and Observer are optional hooks; nil uses logging.Default()
	// and a no-op store.Observer respectively.
	Logger   Logger
	Observer Observer
}

// DefaultConfig returns the configuration go-memkv starts with when a
// caller only wants to override a few fields.
func DefaultConfig() Config {
	return Config{
		TCPAddr:          ":11211",
		UDPAddr:          ":11211",
		NumWorkers:       constants.DefaultNumWorkers,
		MemoryLimit:      constants.DefaultMemoryLimit,
		SlabMinChunkSize: constants.DefaultSlabMinChunkSize,
		SlabGrowthFactor: constants.DefaultSlabFactor,
		SlabPageSize:     constants.DefaultSlabPageSize,
		EvictToFree:      true,
	}
}
