package reactor

import (
	"context"
	"errors"
	"net"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ehrlich-b/go-memkv/internal/logging"
	"github.com/ehrlich-b/go-memkv/internal/slab"
	"github.com/ehrlich-b/go-memkv/internal/stats"
	"github.com/ehrlich-b/go-memkv/internal/store"
)

// Config configures a Server's listening sockets and worker pool. Mirrors
// the shape of the teacher's DeviceParams: one struct naming every knob the
// orchestration layer needs, with zero values meaning "pick a sensible
// default" rather than "disabled".
type Config struct {
	TCPAddr  string // empty disables the TCP listener
	UDPAddr  string // empty disables the UDP listener
	UnixPath string // empty disables the Unix stream listener
	UnixMode os.FileMode

	NumWorkers  int  // 0 means runtime.NumCPU()
	ReusePort   bool // SO_REUSEPORT on TCP/UDP listeners
	CPUAffinity []int

	Store  *store.Store
	Alloc  *slab.Allocator
	Global *stats.Global
	Logger *logging.Logger
}

// Server is the dispatcher spec.md §4.2 describes: it owns the listening
// sockets and round-robins each accepted connection to a worker. Grounded
// on backend.go's Device, which owns N queue.Runners and starts/stops them
// together; here the "runners" are Workers and the transport is sockets
// rather than an io_uring char device.
type Server struct {
	cfg     Config
	workers []*Worker

	tcpLn   net.Listener
	unixLn  net.Listener
	udp     *udpServer
	udpConn net.PacketConn

	next roundRobin

	wg     sync.WaitGroup
	logger *logging.Logger
}

// roundRobin is a tiny atomic counter; Server's TCP and Unix accept loops
// run on their own goroutines and share it.
type roundRobin struct{ n atomic.Uint64 }

func (r *roundRobin) next(mod int) int {
	return int((r.n.Add(1) - 1) % uint64(mod))
}

// NewServer builds listeners per cfg but does not yet accept connections;
// call Start for that. Returns an error if any configured listener fails
// to bind.
func NewServer(cfg Config) (*Server, error) {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = runtime.NumCPU()
	}
	s := &Server{cfg: cfg, logger: cfg.Logger}

	for i := 0; i < cfg.NumWorkers; i++ {
		s.workers = append(s.workers, NewWorker(i, cfg.Store, cfg.Alloc, cfg.Global, cfg.Logger, cfg.CPUAffinity))
	}

	if cfg.TCPAddr != "" {
		ln, err := listenConfig(cfg.ReusePort).Listen(context.Background(), "tcp", cfg.TCPAddr)
		if err != nil {
			return nil, err
		}
		s.tcpLn = ln
	}
	if cfg.UnixPath != "" {
		os.Remove(cfg.UnixPath)
		ln, err := net.Listen("unix", cfg.UnixPath)
		if err != nil {
			return nil, err
		}
		if cfg.UnixMode != 0 {
			os.Chmod(cfg.UnixPath, cfg.UnixMode)
		}
		s.unixLn = ln
	}
	if cfg.UDPAddr != "" {
		pc, err := listenConfig(cfg.ReusePort).ListenPacket(context.Background(), "udp", cfg.UDPAddr)
		if err != nil {
			return nil, err
		}
		s.udpConn = pc
		s.udp = newUDPServer(pc, s.workers, cfg.Logger)
	}
	return s, nil
}

// Start spawns every worker's Run loop and a dispatcher accept goroutine
// per configured listener. Returns immediately; call Close to shut down.
func (s *Server) Start() {
	for _, w := range s.workers {
		s.wg.Add(1)
		go func(w *Worker) {
			defer s.wg.Done()
			w.Run()
		}(w)
	}
	if s.tcpLn != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.acceptLoop(s.tcpLn)
		}()
	}
	if s.unixLn != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.acceptLoop(s.unixLn)
		}()
	}
	if s.udp != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.udp.serve()
		}()
	}
}

// acceptLoop accepts connections from ln and round-robins each to a
// worker. spec.md §4.2 describes disabling accept interest under EMFILE
// and re-enabling it once a connection closes; a net.Listener can't be
// told to stop polling readability directly, so this applies an equivalent
// backoff-and-retry instead of toggling epoll interest.
func (s *Server) acceptLoop(ln net.Listener) {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) {
				if s.logger != nil {
					s.logger.Warnf("accept: too many open files, backing off")
				}
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return
		}
		idx := s.next.next(len(s.workers))
		s.workers[idx].Assign(nc)
	}
}

// Close stops accepting new connections and closes all listening sockets.
// Workers drain their intake channels and exit once idle; Close does not
// wait for in-flight connections to finish.
func (s *Server) Close() error {
	if s.tcpLn != nil {
		s.tcpLn.Close()
	}
	if s.unixLn != nil {
		s.unixLn.Close()
		os.Remove(s.cfg.UnixPath)
	}
	if s.udp != nil {
		s.udp.close()
	}
	for _, w := range s.workers {
		w.Close()
	}
	return nil
}

// Workers exposes the worker pool's per-worker stats for Aggregator.
func (s *Server) Workers() []*Worker { return s.workers }

// Addr returns the TCP listener's bound address, useful when Config.TCPAddr
// used port 0 and the caller needs the OS-assigned port (tests, mainly).
// Returns nil if TCP is not configured.
func (s *Server) Addr() net.Addr {
	if s.tcpLn == nil {
		return nil
	}
	return s.tcpLn.Addr()
}
