// Package memkv implements a distributed in-memory key-value cache server
// speaking both memcached's text and binary protocols over TCP, UDP, and
// Unix stream sockets.
//
// A Server owns a fixed-size slab-allocated item store (internal/store,
// internal/slab) and a pool of worker reactors (internal/reactor) that
// parse and execute client requests (internal/textproto, internal/wire,
// internal/conn) against it. Construct one with NewServer and a Config,
// then call ListenAndServe.
package memkv

import (
	"github.com/ehrlich-b/go-memkv/internal/store"
)

// Logger is the minimal logging surface go-memkv calls into. *logging.Logger
// satisfies it; callers that don't want a logrus dependency of their own
// can supply any type with these two methods instead. Mirrors the
// teacher's own decoupled internal/interfaces.Logger.
type Logger interface {
	Printf(format string, args ...any)
	Debugf(format string, args ...any)
}

// Observer receives cache-level events (hits, misses, evictions) for
// metrics wiring. It is a direct alias of internal/store.Observer; when
// none is configured the store uses store.NoopObserver, which discards
// every event.
type Observer = store.Observer
