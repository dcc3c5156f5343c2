// Package reactor implements spec.md §4.2: a dispatcher that owns listening
// sockets and round-robins accepted connections across a pool of worker
// reactors, each of which owns its assigned connections end-to-end.
//
// The teacher drives many in-flight tags through io_uring completions on a
// dedicated, CPU-pinned OS thread per queue (internal/queue.Runner.ioLoop).
// go-memkv's worker keeps that shape — one goroutine per worker, optionally
// pinned to a CPU via the same golang.org/x/sys/unix affinity calls the
// teacher uses — but drives readiness through Go's own netpoller and
// goroutine-per-connection scheduling rather than a hand-rolled epoll loop:
// net.Buffers' WriteTo already performs the scatter/gather writev spec.md
// §4.1 calls for, and the netpoller already multiplexes many connections
// per OS thread, which is exactly what an explicit epoll loop would
// otherwise hand-roll on top of.
package reactor

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// listenConfig returns a net.ListenConfig whose Control callback sets
// SO_REUSEPORT when reuse is true, letting multiple listening sockets
// share one port the way spec.md §4.2 describes workers sharing a UDP
// socket ("all workers register the same UDP socket... the OS
// load-balances datagrams across them").
func listenConfig(reuse bool) net.ListenConfig {
	return net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			if !reuse {
				return nil
			}
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
}
