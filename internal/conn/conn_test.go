package conn

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-memkv/internal/slab"
	"github.com/ehrlich-b/go-memkv/internal/store"
)

func testConn(t *testing.T) *Conn {
	t.Helper()
	alloc := slab.NewAllocator(slab.Config{
		MemoryLimit:  2 << 20,
		MinChunkSize: 64,
		GrowthFactor: 1.25,
		PageSize:     64 * 1024,
	})
	st := store.NewStore(alloc, true, nil)
	t.Cleanup(st.Close)
	return New(-1, false, st, alloc, nil, nil, nil)
}

func feed(c *Conn, data string) {
	// ReadSlice only grows the buffer once it is full, so copy what fits and
	// go round again for the rest.
	for len(data) > 0 {
		buf := c.ReadSlice()
		n := copy(buf, data)
		c.CommitRead(n)
		data = data[n:]
	}
}

func drainOutput(c *Conn) string {
	out := ""
	for _, b := range c.out[c.outIdx:] {
		out += string(b)
	}
	c.resetOutput()
	return out
}

func TestSetThenGet(t *testing.T) {
	c := testConn(t)
	feed(c, "set foo 0 0 5\r\nhello\r\n")
	quit := c.Drive()
	require.False(t, quit)
	require.Equal(t, "STORED\r\n", drainOutput(c))

	feed(c, "get foo\r\n")
	c.Drive()
	require.Equal(t, "VALUE foo 0 5\r\nhello\r\nEND\r\n", drainOutput(c))
}

func TestAddExclusion(t *testing.T) {
	c := testConn(t)
	feed(c, "set foo 0 0 1\r\nA\r\n")
	c.Drive()
	drainOutput(c)

	feed(c, "add foo 0 0 1\r\nB\r\n")
	c.Drive()
	require.Equal(t, "NOT_STORED\r\n", drainOutput(c))

	feed(c, "get foo\r\n")
	c.Drive()
	require.Equal(t, "VALUE foo 0 1\r\nA\r\nEND\r\n", drainOutput(c))
}

func TestDeleteMissingKey(t *testing.T) {
	c := testConn(t)
	feed(c, "delete nope\r\n")
	c.Drive()
	require.Equal(t, "NOT_FOUND\r\n", drainOutput(c))
}

func TestIncrSaturatesAtZero(t *testing.T) {
	c := testConn(t)
	feed(c, "set n 0 0 1\r\n3\r\n")
	c.Drive()
	drainOutput(c)

	feed(c, "decr n 10\r\n")
	c.Drive()
	require.Equal(t, "0\r\n", drainOutput(c))
}

func TestQuitClosesConnection(t *testing.T) {
	c := testConn(t)
	feed(c, "quit\r\n")
	quit := c.Drive()
	require.True(t, quit)
}

func TestPipelinedSets(t *testing.T) {
	c := testConn(t)
	feed(c, "set a 0 0 1\r\nX\r\nset b 0 0 1\r\nY\r\n")
	c.Drive()
	require.Equal(t, "STORED\r\nSTORED\r\n", drainOutput(c))
}

// spec.md §8's 250/251-byte key length boundary, checked at every command
// that takes a bare key rather than a storage line.

func TestKeyLengthBoundaryOnGet(t *testing.T) {
	c := testConn(t)
	key250 := strings.Repeat("k", 250)
	key251 := strings.Repeat("k", 251)

	feed(c, "get "+key250+"\r\n")
	c.Drive()
	require.Equal(t, "END\r\n", drainOutput(c))

	feed(c, "get "+key251+"\r\n")
	c.Drive()
	require.Equal(t, "CLIENT_ERROR bad command line format\r\n", drainOutput(c))
}

func TestKeyLengthBoundaryOnDelete(t *testing.T) {
	c := testConn(t)
	key251 := strings.Repeat("k", 251)

	feed(c, "delete "+key251+"\r\n")
	c.Drive()
	require.Equal(t, "CLIENT_ERROR bad command line format\r\n", drainOutput(c))

	// stream must not be corrupted by the rejection
	feed(c, "get foo\r\n")
	c.Drive()
	require.Equal(t, "END\r\n", drainOutput(c))
}

func TestKeyLengthBoundaryOnIncr(t *testing.T) {
	c := testConn(t)
	key251 := strings.Repeat("k", 251)

	feed(c, "incr "+key251+" 1\r\n")
	c.Drive()
	require.Equal(t, "CLIENT_ERROR bad command line format\r\n", drainOutput(c))
}

// TestKeyLengthBoundaryOnSet exercises the storage path's swallow of a
// rejected body: a 251-byte key is rejected before allocation, the
// unconsumed body must still be discarded, and the next pipelined command
// must parse cleanly rather than reading leftover body bytes as a line.
func TestKeyLengthBoundaryOnSet(t *testing.T) {
	c := testConn(t)
	key250 := strings.Repeat("k", 250)
	key251 := strings.Repeat("k", 251)

	feed(c, "set "+key250+" 0 0 1\r\nA\r\n")
	c.Drive()
	require.Equal(t, "STORED\r\n", drainOutput(c))

	feed(c, "set "+key251+" 0 0 1\r\nA\r\nget "+key250+"\r\n")
	c.Drive()
	require.Equal(t, "CLIENT_ERROR bad command line format\r\nVALUE "+key250+" 0 1\r\nA\r\nEND\r\n", drainOutput(c))
}
