package conn

import (
	"runtime"

	"github.com/ehrlich-b/go-memkv/internal/constants"
	"github.com/ehrlich-b/go-memkv/internal/wire"
)

// detectProtocol inspects the first buffered byte once, per spec.md §4.3
// "Auto-detection": 0x80 selects binary, anything else selects text.
func (c *Conn) detectProtocol() {
	if c.Proto != ProtoAuto {
		return
	}
	if c.unreadLen() == 0 {
		return
	}
	if wire.IsRequest(c.rbuf[c.rHead]) {
		c.Proto = ProtoBinary
	} else {
		c.Proto = ProtoText
	}
}

// Drive runs the connection's protocol-appropriate command loop over
// whatever is currently buffered, in passes of at most ReqsPerEvent requests
// with a yield between passes, transitioning State to mwrite if a reply
// is now queued or back to new_cmd (with a possible buffer shrink) if the
// connection is caught up. Returns true if the client issued `quit`/QUIT.
func (c *Conn) Drive() bool {
	c.detectProtocol()

	var needMore, quit bool
	for !needMore && !quit {
		switch c.Proto {
		case ProtoBinary:
			needMore, quit = c.DriveBinary()
		default:
			needMore, quit = c.DriveText()
		}
		if !needMore && !quit {
			runtime.Gosched()
		}
	}

	if c.hasPendingOutput() {
		c.State = StateMwrite
	} else {
		c.State = StateNewCmd
		c.resetToBaseline()
	}
	return quit
}

// ReadSlice returns the free tail of the read buffer for the reactor to
// read(2) into, growing it first if necessary.
func (c *Conn) ReadSlice() []byte {
	c.ensureReadCapacity()
	return c.rbuf[c.rTail:]
}

// CommitRead records n freshly read bytes as valid, buffered data.
func (c *Conn) CommitRead(n int) {
	c.rTail += n
}

// NextWriteBatch returns the next group of output buffers to hand to a
// single scattered-write call, honoring spec.md §4.1's two output-assembly
// constraints: at most MaxIOVPerHeader buffers per call, and (for UDP
// connections, or the first batch of each queued reply, i.e. while nothing
// of it has been written yet) a total byte cap of UDPMaxPayload.
func (c *Conn) NextWriteBatch() [][]byte {
	isFirstHeader := c.outIdx == 0 && c.outOff == 0
	capBytes := -1
	if c.UDP || isFirstHeader {
		capBytes = constants.UDPMaxPayload
	}

	var batch [][]byte
	total := 0
	idx, off := c.outIdx, c.outOff
	for idx < len(c.out) && len(batch) < constants.MaxIOVPerHeader {
		buf := c.out[idx][off:]
		if capBytes >= 0 && total+len(buf) > capBytes {
			if total == 0 {
				cut := capBytes - total
				if cut <= 0 {
					cut = len(buf)
				}
				batch = append(batch, buf[:cut])
			}
			break
		}
		batch = append(batch, buf)
		total += len(buf)
		idx++
		off = 0
	}
	return batch
}

// AdvanceWrite records n bytes as successfully written, advancing past
// fully-sent buffers. Returns true once every queued buffer has drained.
func (c *Conn) AdvanceWrite(n int) bool {
	for n > 0 && c.outIdx < len(c.out) {
		remain := len(c.out[c.outIdx]) - c.outOff
		if n < remain {
			c.outOff += n
			n = 0
		} else {
			n -= remain
			c.outIdx++
			c.outOff = 0
		}
	}
	done := c.outIdx >= len(c.out)
	if done {
		c.resetOutput()
	}
	return done
}

// DrainOutput concatenates and clears all queued output at once, bypassing
// the IOV/UDP-payload batching NextWriteBatch applies. UDP request handling
// has its own datagram-fragmentation rules (spec.md §6's request-id/seq/
// total framing) that don't line up with NextWriteBatch's per-header cap,
// so the reactor's UDP path drains a connection's reply whole and fragments
// it itself.
func (c *Conn) DrainOutput() []byte {
	var buf []byte
	for _, b := range c.out[c.outIdx:] {
		buf = append(buf, b...)
	}
	c.resetOutput()
	return buf
}
