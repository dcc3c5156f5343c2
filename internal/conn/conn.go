// Package conn implements the per-connection state machine of spec.md
// §4.1: buffered reads, protocol auto-detection, command execution against
// internal/store, and scatter/gather buffered writes.
//
// The state names and "drive until it would block" shape mirror
// internal/queue.Runner's ioLoop/processRequests/handleCompletion split in
// the teacher, generalized from three io_uring tag states to the nine
// states spec.md §4.1 names. Where the teacher's completion queue hands
// back one event per tag, a socket reactor hands back one readiness
// notification per fd, so State here tracks "where in the request
// lifecycle this connection is" rather than "which io_uring op is
// in-flight".
package conn

import (
	"github.com/ehrlich-b/go-memkv/internal/constants"
	"github.com/ehrlich-b/go-memkv/internal/logging"
	"github.com/ehrlich-b/go-memkv/internal/slab"
	"github.com/ehrlich-b/go-memkv/internal/stats"
	"github.com/ehrlich-b/go-memkv/internal/store"
)

// State is one of the connection state machine's nine states (spec.md
// §4.1). Not every state is separately materialized here: read has no
// constant, and reading, parsing and body accumulation run in one buffered
// loop tracked by pending and swallow. Only new_cmd (Drive, the reactor),
// mwrite (Drive), swallow (beginStorage) and closing (Close) are ever
// assigned, and the reactor branches only on mwrite; waiting, parse_cmd,
// nread and write are declared for their names but never entered.
type State int

const (
	StateNewCmd State = iota
	StateWaiting
	StateParseCmd
	StateNread
	StateSwallow
	StateWrite
	StateMwrite
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateNewCmd:
		return "new_cmd"
	case StateWaiting:
		return "waiting"
	case StateParseCmd:
		return "parse_cmd"
	case StateNread:
		return "nread"
	case StateSwallow:
		return "swallow"
	case StateWrite:
		return "write"
	case StateMwrite:
		return "mwrite"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Protocol selects which request layer a connection speaks.
type Protocol int

const (
	ProtoAuto Protocol = iota
	ProtoText
	ProtoBinary
)

// pendingStore holds a storage command's parsed header while its body is
// still arriving.
type pendingStore struct {
	verb      pendingVerb
	key       []byte
	flags     uint32
	exptime   uint32
	bytes     int
	cas       uint64
	noReply   bool
	bodyStart int // offset into rbuf where the body begins once buffered
}

type pendingVerb int

const (
	pendSet pendingVerb = iota
	pendAdd
	pendReplace
	pendAppend
	pendPrepend
	pendCas
)

// Conn is one client connection's state, owned exclusively by the worker
// that accepted it (spec.md §3 "only the owning worker may mutate this
// state").
type Conn struct {
	Fd       int
	UDP      bool
	Proto    Protocol
	State    State
	WriteGo  State // write_and_go: state to resume after the current write completes

	rbuf  []byte
	rHead int // parse cursor
	rTail int // valid data extends to here

	pending *pendingStore
	swallow int

	out      [][]byte // pending output buffers, in order
	outIdx   int
	outOff   int // bytes of out[outIdx] already written

	udpReqID  uint16
	udpSeq    uint16

	itemScratch []*store.Item // reusable multi-get scratch

	Store  *store.Store
	Alloc  *slab.Allocator
	WStats *stats.Worker
	GStats *stats.Global
	Logger *logging.Logger

	closed bool
}

// New constructs a connection in new_cmd with a baseline read buffer.
func New(fd int, udp bool, st *store.Store, alloc *slab.Allocator, ws *stats.Worker, gs *stats.Global, lg *logging.Logger) *Conn {
	proto := ProtoAuto
	if udp {
		proto = ProtoText // spec.md's UDP framing wraps the text protocol
	}
	c := &Conn{
		Fd:          fd,
		UDP:         udp,
		Proto:       proto,
		State:       StateNewCmd,
		WriteGo:     StateNewCmd,
		rbuf:        make([]byte, constants.ReadBufBaseline),
		itemScratch: make([]*store.Item, 0, constants.ItemListBaseline),
		Store:       st,
		Alloc:       alloc,
		WStats:      ws,
		GStats:      gs,
		Logger:      lg,
	}
	if gs != nil {
		gs.ConnOpened()
	}
	return c
}

// Closed reports whether the connection has entered its terminal state.
func (c *Conn) Closed() bool { return c.closed }

// Close releases any pinned items and marks the connection terminal. Safe
// to call more than once.
func (c *Conn) Close() {
	if c.closed {
		return
	}
	c.releaseScratch()
	c.closed = true
	c.State = StateClosing
	if c.GStats != nil {
		c.GStats.ConnClosed()
	}
}

func (c *Conn) releaseScratch() {
	for _, it := range c.itemScratch {
		if it != nil {
			c.Store.Release(it)
		}
	}
	c.itemScratch = c.itemScratch[:0]
}

// ensureReadCapacity grows rbuf by doubling when the unread region is full,
// per spec.md §4.1 "Buffer management".
func (c *Conn) ensureReadCapacity() {
	if c.rTail < len(c.rbuf) {
		return
	}
	// Compact first: drop already-consumed bytes before growing.
	if c.rHead > 0 {
		n := copy(c.rbuf, c.rbuf[c.rHead:c.rTail])
		c.rTail = n
		c.rHead = 0
		if c.rTail < len(c.rbuf) {
			return
		}
	}
	next := len(c.rbuf) * 2
	grown := make([]byte, next)
	copy(grown, c.rbuf[:c.rTail])
	c.rbuf = grown
}

// resetToBaseline shrinks the read buffer back down between requests when
// it has grown past the high watermark and little data is pending, per
// spec.md's "do not shrink mid-request" rule. Only called from new_cmd.
func (c *Conn) resetToBaseline() {
	if len(c.rbuf) <= constants.ReadBufHighWatermark {
		return
	}
	pending := c.rTail - c.rHead
	if pending > constants.ReadBufBaseline {
		return
	}
	fresh := make([]byte, constants.ReadBufBaseline)
	n := copy(fresh, c.rbuf[c.rHead:c.rTail])
	c.rbuf = fresh
	c.rHead = 0
	c.rTail = n
}

// appendOutput queues buf for transmission. It only appends; splitting into
// write batches of at most MaxIOVPerHeader buffers and UDPMaxPayload bytes
// happens in NextWriteBatch, per spec.md §4.1 "Output assembly".
func (c *Conn) appendOutput(buf []byte) {
	if len(buf) == 0 {
		return
	}
	c.out = append(c.out, buf)
}

// hasPendingOutput reports whether a write is queued.
func (c *Conn) hasPendingOutput() bool {
	return c.outIdx < len(c.out)
}

// resetOutput clears the output queue between requests.
func (c *Conn) resetOutput() {
	if cap(c.out) > constants.IOVHighWatermark {
		c.out = make([][]byte, 0, constants.IOVBaseline)
	} else {
		c.out = c.out[:0]
	}
	c.outIdx = 0
	c.outOff = 0
}

// unreadLen returns how many buffered bytes remain unparsed.
func (c *Conn) unreadLen() int { return c.rTail - c.rHead }
