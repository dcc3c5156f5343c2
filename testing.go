package memkv

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"
)

// NewTestServer starts a Server on loopback TCP with small, test-friendly
// defaults (a tight memory limit, one worker) and registers t.Cleanup to
// close it. Mirrors the teacher's NewMockBackend: a one-call constructor
// tests reach for instead of hand-wiring Config/NewServer/ListenAndServe
// every time.
func NewTestServer(t *testing.T, configure func(*Config)) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.TCPAddr = "127.0.0.1:0"
	cfg.UDPAddr = ""
	cfg.NumWorkers = 1
	cfg.MemoryLimit = 4 << 20
	if configure != nil {
		configure(&cfg)
	}

	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("memkv.NewServer: %v", err)
	}
	if err := srv.ListenAndServe(); err != nil {
		t.Fatalf("ListenAndServe: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv
}

// TestClient is a minimal synchronous text-protocol client for exercising
// a Server end-to-end without pulling in a real memcached client library.
// Grounded on the teacher's MockBackend in spirit (a small hand-rolled test
// double, not a production dependency) but wraps a real net.Conn, since
// here the thing under test is the wire protocol itself.
type TestClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

// DialTestClient opens a TCP connection to addr (e.g. from Server's
// listener) for use in protocol-level tests.
func DialTestClient(t *testing.T, addr string) *TestClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	tc := &TestClient{t: t, conn: conn, r: bufio.NewReader(conn)}
	t.Cleanup(func() { conn.Close() })
	return tc
}

// Send writes raw bytes (already CRLF-terminated) to the connection.
func (c *TestClient) Send(s string) {
	c.t.Helper()
	if _, err := c.conn.Write([]byte(s)); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

// ReadLine reads one CRLF-terminated line, trimming the terminator.
func (c *TestClient) ReadLine() string {
	c.t.Helper()
	line, err := c.r.ReadString('\n')
	if err != nil {
		c.t.Fatalf("read line: %v", err)
	}
	if n := len(line); n >= 2 && line[n-2] == '\r' {
		return line[:n-2]
	}
	return line
}

// ReadN reads exactly n raw bytes (e.g. a get reply's value body).
func (c *TestClient) ReadN(n int) []byte {
	c.t.Helper()
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		c.t.Fatalf("read %d bytes: %v", n, err)
	}
	return buf
}
