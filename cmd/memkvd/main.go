package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	memkv "github.com/ehrlich-b/go-memkv"
	"github.com/ehrlich-b/go-memkv/internal/logging"
)

// Argument parsing, daemonization, PID files, and signal handling beyond
// ignoring SIGPIPE are out of scope for the core (spec.md §1); this is the
// thin external-collaborator layer spec.md says calls into it.
func main() {
	var (
		tcpPort  = flag.Int("p", 11211, "TCP port to listen on (0 disables TCP)")
		udpPort  = flag.Int("U", 11211, "UDP port to listen on (0 disables UDP)")
		listen   = flag.String("l", "", "interface to listen on (default: all)")
		sock     = flag.String("s", "", "Unix socket path to listen on instead of TCP/UDP")
		sockMask = flag.String("a", "0700", "access mask for the Unix socket, octal")
		memMB    = flag.Int("m", 64, "memory limit in megabytes")
		threads  = flag.Int("t", 0, "number of worker threads (0: one per CPU)")
		noEvict  = flag.Bool("M", false, "disable eviction; return errors instead of evicting")
		factor   = flag.Float64("f", 1.25, "slab growth factor")
		minChunk = flag.Int("n", 48, "minimum slab chunk size in bytes")
		verbose  = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	// SIGPIPE is ignored process-wide (spec.md §7); writes to closed
	// sockets surface as ordinary EPIPE errors instead of killing the
	// process.
	signal.Ignore(syscall.SIGPIPE)

	cfg := memkv.DefaultConfig()
	cfg.Logger = logger
	cfg.MemoryLimit = int64(*memMB) * 1024 * 1024
	cfg.NumWorkers = *threads
	cfg.EvictToFree = !*noEvict
	cfg.SlabGrowthFactor = *factor
	cfg.SlabMinChunkSize = *minChunk

	if *sock != "" {
		cfg.UnixPath = *sock
		cfg.TCPAddr = ""
		cfg.UDPAddr = ""
		mode, err := strconv.ParseUint(*sockMask, 8, 32)
		if err != nil {
			fmt.Fprintf(os.Stderr, "go-memkv: invalid -a mask %q: %v\n", *sockMask, err)
			os.Exit(64) // EX_USAGE
		}
		cfg.UnixMode = os.FileMode(mode)
	} else {
		cfg.TCPAddr = addr(*listen, *tcpPort)
		cfg.UDPAddr = addr(*listen, *udpPort)
	}

	srv, err := memkv.NewServer(cfg)
	if err != nil {
		logger.Errorf("failed to start: %v", err)
		os.Exit(71) // EX_OSERR
	}

	if err := srv.ListenAndServe(); err != nil {
		logger.Errorf("failed to serve: %v", err)
		os.Exit(71)
	}

	logger.Infof("go-memkv listening (tcp=%s udp=%s unix=%s, workers=%d, mem=%dMB)",
		cfg.TCPAddr, cfg.UDPAddr, cfg.UnixPath, *threads, *memMB)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("shutting down")
	if err := srv.Close(); err != nil {
		logger.Errorf("error during shutdown: %v", err)
	}
}

// addr formats a listen host and port the way net.Listen expects, leaving
// the host empty (all interfaces) unless -l was given. port == 0 disables
// that transport (an empty addr tells memkv.Config not to listen).
func addr(host string, port int) string {
	if port == 0 {
		return ""
	}
	return strings.TrimSpace(host) + ":" + strconv.Itoa(port)
}
