package reactor

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-memkv/internal/slab"
	"github.com/ehrlich-b/go-memkv/internal/store"
)

func TestRoundRobinCyclesWorkers(t *testing.T) {
	var r roundRobin
	got := []int{r.next(3), r.next(3), r.next(3), r.next(3)}
	require.Equal(t, []int{0, 1, 2, 0}, got)
}

func testStore(t *testing.T) (*store.Store, *slab.Allocator) {
	t.Helper()
	alloc := slab.NewAllocator(slab.Config{
		MemoryLimit:  2 << 20,
		MinChunkSize: 64,
		GrowthFactor: 1.25,
		PageSize:     64 * 1024,
	})
	st := store.NewStore(alloc, true, nil)
	t.Cleanup(st.Close)
	return st, alloc
}

func TestExecUDPPayloadSetThenGet(t *testing.T) {
	st, alloc := testStore(t)

	reply := execUDPPayload(st, alloc, nil, nil, nil, []byte("set foo 0 0 5\r\nhello\r\n"))
	require.Equal(t, "STORED\r\n", string(reply))

	reply = execUDPPayload(st, alloc, nil, nil, nil, []byte("get foo\r\n"))
	require.Equal(t, "VALUE foo 0 5\r\nhello\r\nEND\r\n", string(reply))
}

func TestWriteUDPReplyFragmentsOversizeReply(t *testing.T) {
	big := make([]byte, 3000)
	for i := range big {
		big[i] = 'x'
	}
	pc := &fakePacketConn{}
	writeUDPReply(pc, fakeAddr{}, 42, big)

	require.Len(t, pc.writes, 3)
	for i, w := range pc.writes {
		require.Equal(t, uint16(42), be16(w[0:2]))
		require.Equal(t, uint16(i), be16(w[2:4]))
		require.Equal(t, uint16(3), be16(w[4:6]))
	}
}

func be16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }

type fakeAddr struct{}

func (fakeAddr) Network() string { return "udp" }
func (fakeAddr) String() string  { return "fake" }

// fakePacketConn implements just enough of net.PacketConn for
// writeUDPReply to exercise its fragmentation logic without a real socket.
type fakePacketConn struct{ writes [][]byte }

func (f *fakePacketConn) ReadFrom(p []byte) (int, net.Addr, error) { return 0, nil, nil }
func (f *fakePacketConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	f.writes = append(f.writes, append([]byte(nil), p...))
	return len(p), nil
}
func (f *fakePacketConn) Close() error                       { return nil }
func (f *fakePacketConn) LocalAddr() net.Addr                { return fakeAddr{} }
func (f *fakePacketConn) SetDeadline(t time.Time) error      { return nil }
func (f *fakePacketConn) SetReadDeadline(t time.Time) error  { return nil }
func (f *fakePacketConn) SetWriteDeadline(t time.Time) error { return nil }
