package memkv

import (
	"github.com/ehrlich-b/go-memkv/internal/logging"
	"github.com/ehrlich-b/go-memkv/internal/reactor"
	"github.com/ehrlich-b/go-memkv/internal/slab"
	"github.com/ehrlich-b/go-memkv/internal/stats"
	"github.com/ehrlich-b/go-memkv/internal/store"
)

// Server is the top-level go-memkv process: a slab-backed item store
// (internal/store, internal/slab) shared by a dispatcher/worker reactor
// pool (internal/reactor) that speaks the text and binary protocols
// (internal/textproto, internal/wire, internal/conn). Construct one with
// NewServer and call ListenAndServe; Close tears it down. Mirrors the way the
// teacher's top-level package wires backend.Device from a Params struct
// without exposing the queue/uring plumbing to callers.
type Server struct {
	cfg    Config
	store  *store.Store
	alloc  *slab.Allocator
	global *stats.Global
	agg    *stats.Aggregator
	srv    *reactor.Server
	logger *logging.Logger
}

// NewServer builds the slab allocator, item store, worker pool, and
// listening sockets described by cfg, but does not start serving. Returns
// an error if any configured listener fails to bind.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	lg, ok := cfg.Logger.(*logging.Logger)
	if !ok {
		lg = logging.Default()
	}

	alloc := slab.NewAllocator(slab.Config{
		MemoryLimit:  cfg.MemoryLimit,
		MinChunkSize: cfg.SlabMinChunkSize,
		GrowthFactor: cfg.SlabGrowthFactor,
		PageSize:     cfg.SlabPageSize,
	})

	var observer store.Observer
	if cfg.Observer != nil {
		observer = cfg.Observer
	}
	st := store.NewStore(alloc, cfg.EvictToFree, observer)

	global := stats.NewGlobal()

	rcfg := reactor.Config{
		TCPAddr:     cfg.TCPAddr,
		UDPAddr:     cfg.UDPAddr,
		UnixPath:    cfg.UnixPath,
		UnixMode:    cfg.UnixMode,
		NumWorkers:  cfg.NumWorkers,
		ReusePort:   cfg.ReusePort,
		CPUAffinity: cfg.CPUAffinity,
		Store:       st,
		Alloc:       alloc,
		Global:      global,
		Logger:      lg,
	}
	rsrv, err := reactor.NewServer(rcfg)
	if err != nil {
		st.Close()
		return nil, WrapError("NewServer", err)
	}

	workerStats := make([]*stats.Worker, 0, len(rsrv.Workers()))
	for _, w := range rsrv.Workers() {
		workerStats = append(workerStats, w.Stats())
	}
	agg := &stats.Aggregator{Global: global, Workers: workerStats}

	return &Server{
		cfg:    cfg,
		store:  st,
		alloc:  alloc,
		global: global,
		agg:    agg,
		srv:    rsrv,
		logger: lg,
	}, nil
}

// ListenAndServe starts the worker pool and every configured listener's
// accept loop, then returns immediately; call Close to shut down. Connections
// are driven entirely by the reactor's own goroutines after this returns.
func (s *Server) ListenAndServe() error {
	s.srv.Start()
	return nil
}

// Close stops accepting new connections, shuts down every worker, and
// stops the store's background rehash goroutine. It does not wait for
// in-flight requests to finish.
func (s *Server) Close() error {
	err := s.srv.Close()
	s.store.Close()
	return err
}

// Stats returns a point-in-time snapshot across all workers plus global
// counters, the data backing the text `stats` command and the Prometheus
// collector returned by Collector.
func (s *Server) Stats() stats.Snapshot {
	return s.agg.Snapshot()
}

// Addr returns the bound TCP listener address as a string (host:port),
// for callers (tests, mainly) that configured TCPAddr with port 0 and need
// the OS-assigned port. Returns "" if TCP is not configured.
func (s *Server) Addr() string {
	addr := s.srv.Addr()
	if addr == nil {
		return ""
	}
	return addr.String()
}

// Collector returns a prometheus.Collector exposing this Server's
// counters, for callers that want to register it with their own
// prometheus.Registry instead of using the text `stats` command.
func (s *Server) Collector() *stats.Collector {
	return stats.NewCollector(s.agg)
}
