// Package stats implements spec.md §4.6: per-worker counters held in
// atomics (cheap on the hot path, per the Design Notes' "can be replaced
// by relaxed atomics" allowance), a global stats mutex for connection
// counts, and a snapshot aggregator for the `stats` text command.
//
// The counter set mirrors metrics.go's atomic-field style (one field per
// counted event, a NewX constructor, RecordX methods) generalized from
// block I/O ops to cache commands.
package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// Worker holds one worker reactor's command counters. Every counter field
// is an atomic so Record* calls never block each other (only the per-class
// op map sits behind classOpsMu), but the struct is still
// read as a unit by Snapshot for a consistent-enough view per spec.md's
// "recent but not strictly consistent" aggregation contract.
type Worker struct {
	CmdGet    atomic.Uint64
	CmdSet    atomic.Uint64
	CmdDelete atomic.Uint64
	CmdIncr   atomic.Uint64
	CmdDecr   atomic.Uint64
	CmdFlush  atomic.Uint64
	CmdTouch  atomic.Uint64

	GetHits   atomic.Uint64
	GetMisses atomic.Uint64

	BytesRead    atomic.Uint64
	BytesWritten atomic.Uint64

	classOpsMu sync.Mutex
	classOps   map[int]uint64
}

// NewWorker constructs a zeroed per-worker counter block.
func NewWorker() *Worker {
	return &Worker{classOps: make(map[int]uint64)}
}

// RecordClassOp bumps the per-slab-class operation counter for classID.
func (w *Worker) RecordClassOp(classID int) {
	w.classOpsMu.Lock()
	w.classOps[classID]++
	w.classOpsMu.Unlock()
}

func (w *Worker) classOpsSnapshot() map[int]uint64 {
	w.classOpsMu.Lock()
	defer w.classOpsMu.Unlock()
	out := make(map[int]uint64, len(w.classOps))
	for k, v := range w.classOps {
		out[k] = v
	}
	return out
}

// Reset zeroes every counter, the per-worker half of `stats reset`
// (memcached.c's stats_reset calls threadlocal_stats_reset() for the
// same per-thread counters this Worker models).
func (w *Worker) Reset() {
	w.CmdGet.Store(0)
	w.CmdSet.Store(0)
	w.CmdDelete.Store(0)
	w.CmdIncr.Store(0)
	w.CmdDecr.Store(0)
	w.CmdFlush.Store(0)
	w.CmdTouch.Store(0)
	w.GetHits.Store(0)
	w.GetMisses.Store(0)
	w.BytesRead.Store(0)
	w.BytesWritten.Store(0)

	w.classOpsMu.Lock()
	w.classOps = make(map[int]uint64)
	w.classOpsMu.Unlock()
}

// Global holds process-wide counters updated by the dispatcher and workers
// under a single stats mutex, per spec.md §4.6.
type Global struct {
	mu sync.Mutex

	CurrConnections  int64
	TotalConnections uint64
	BytesStored      int64

	StartedAt time.Time

	workers []*Worker // registered via RegisterWorker, for ResetAll
}

// NewGlobal constructs the process-wide stats block.
func NewGlobal() *Global {
	return &Global{StartedAt: time.Now()}
}

// RegisterWorker records w so a later ResetAll also zeroes it. Called once
// per worker at construction time (internal/reactor.NewWorker).
func (g *Global) RegisterWorker(w *Worker) {
	g.mu.Lock()
	g.workers = append(g.workers, w)
	g.mu.Unlock()
}

// ResetAll implements `stats reset` (memcached.c:2321's stats_reset):
// zeroes TotalConnections — CurrConnections and BytesStored reflect live
// process state, not cumulative counts, so they are left alone — and every
// registered worker's counters.
func (g *Global) ResetAll() {
	g.mu.Lock()
	g.TotalConnections = 0
	workers := append([]*Worker(nil), g.workers...)
	g.mu.Unlock()

	for _, w := range workers {
		w.Reset()
	}
}

// ConnOpened records a newly accepted connection.
func (g *Global) ConnOpened() {
	g.mu.Lock()
	g.CurrConnections++
	g.TotalConnections++
	g.mu.Unlock()
}

// ConnClosed records a connection leaving the system.
func (g *Global) ConnClosed() {
	g.mu.Lock()
	g.CurrConnections--
	g.mu.Unlock()
}

// AddBytesStored adjusts the running total of bytes held by live items.
func (g *Global) AddBytesStored(delta int64) {
	g.mu.Lock()
	g.BytesStored += delta
	g.mu.Unlock()
}

// Snapshot is an aggregated point-in-time view across all workers plus
// global counters, formatted by the `stats` text command.
type Snapshot struct {
	Uptime           time.Duration
	CurrConnections  int64
	TotalConnections uint64
	BytesStored      int64

	CmdGet, CmdSet, CmdDelete, CmdIncr, CmdDecr, CmdFlush, CmdTouch uint64
	GetHits, GetMisses                                              uint64
	BytesRead, BytesWritten                                         uint64

	ClassOps map[int]uint64
}

// Aggregator snapshots Global plus a fixed set of Worker blocks (one per
// reactor worker), summing counters under each worker's own access pattern
// (atomics need no lock; classOps does).
type Aggregator struct {
	Global  *Global
	Workers []*Worker
}

// Snapshot sums every worker's counters and combines them with Global.
func (a *Aggregator) Snapshot() Snapshot {
	a.Global.mu.Lock()
	snap := Snapshot{
		Uptime:           time.Since(a.Global.StartedAt),
		CurrConnections:  a.Global.CurrConnections,
		TotalConnections: a.Global.TotalConnections,
		BytesStored:      a.Global.BytesStored,
		ClassOps:         make(map[int]uint64),
	}
	a.Global.mu.Unlock()

	for _, w := range a.Workers {
		snap.CmdGet += w.CmdGet.Load()
		snap.CmdSet += w.CmdSet.Load()
		snap.CmdDelete += w.CmdDelete.Load()
		snap.CmdIncr += w.CmdIncr.Load()
		snap.CmdDecr += w.CmdDecr.Load()
		snap.CmdFlush += w.CmdFlush.Load()
		snap.CmdTouch += w.CmdTouch.Load()
		snap.GetHits += w.GetHits.Load()
		snap.GetMisses += w.GetMisses.Load()
		snap.BytesRead += w.BytesRead.Load()
		snap.BytesWritten += w.BytesWritten.Load()
		for class, n := range w.classOpsSnapshot() {
			snap.ClassOps[class] += n
		}
	}
	return snap
}
