package conn

import (
	"encoding/binary"

	"github.com/ehrlich-b/go-memkv/internal/constants"
	"github.com/ehrlich-b/go-memkv/internal/store"
	"github.com/ehrlich-b/go-memkv/internal/wire"
)

// DriveBinary processes as many complete binary-protocol frames as are
// buffered, up to ReqsPerEvent, mirroring DriveText's fairness bound.
func (c *Conn) DriveBinary() (needMore bool, quit bool) {
	for i := 0; i < constants.ReqsPerEvent; i++ {
		if c.unreadLen() < wire.HeaderSize {
			return true, false
		}
		hdr, err := wire.DecodeHeader(c.rbuf[c.rHead : c.rHead+wire.HeaderSize])
		if err != nil {
			return true, false
		}
		total := wire.HeaderSize + int(hdr.BodyLength)
		if c.unreadLen() < total {
			return true, false
		}
		body := c.rbuf[c.rHead+wire.HeaderSize : c.rHead+total]
		c.rHead += total

		if c.execBinaryFrame(hdr, body) {
			return false, true
		}
	}
	return false, false
}

// respondBinary queues a 24-byte response header plus extras/key/value,
// unless the request opcode is a quiet variant that succeeded (memcached
// binary protocol suppresses success replies for *Q opcodes; errors are
// always sent).
func (c *Conn) respondBinary(reqOp wire.Opcode, status wire.Status, opaque uint32, cas uint64, extras, key, value []byte) {
	if reqOp.Quiet() && status == wire.StatusOK {
		return
	}
	hdr := wire.Header{
		Opcode:       reqOp,
		KeyLength:    uint16(len(key)),
		ExtrasLength: uint8(len(extras)),
		Status:       status,
		BodyLength:   uint32(len(extras) + len(key) + len(value)),
		Opaque:       opaque,
		CAS:          cas,
	}
	buf := make([]byte, wire.HeaderSize)
	hdr.EncodeResponse(buf)
	c.appendOutput(buf)
	if len(extras) > 0 {
		c.appendOutput(extras)
	}
	if len(key) > 0 {
		c.appendOutput(key)
	}
	if len(value) > 0 {
		c.appendOutput(value)
	}
	if c.WStats != nil {
		c.WStats.BytesWritten.Add(uint64(len(extras) + len(key) + len(value)))
	}
}

func storeErrStatus(err error) wire.Status {
	switch err {
	case store.ErrNotFound:
		return wire.StatusKeyNotFound
	case store.ErrExists, store.ErrNotStored:
		return wire.StatusKeyExists
	case store.ErrTooLarge:
		return wire.StatusValueTooLarge
	case store.ErrOutOfMemory:
		return wire.StatusOutOfMemory
	case store.ErrBadDelta:
		return wire.StatusDeltaBadVal
	default:
		return wire.StatusInvalidArgs
	}
}

// execBinaryFrame validates and executes one request, queuing its response.
// Returns true if the connection should close after flushing (QUIT).
func (c *Conn) execBinaryFrame(hdr wire.Header, body []byte) bool {
	expectedExtras, known := wire.ExtrasLen(hdr.Opcode)
	if !known {
		c.respondBinary(hdr.Opcode, wire.StatusUnknownCommand, hdr.Opaque, 0, nil, nil, nil)
		return false
	}

	extrasLen := int(hdr.ExtrasLength)
	keyLen := int(hdr.KeyLength)
	if extrasLen+keyLen > len(body) {
		c.respondBinary(hdr.Opcode, wire.StatusInvalidArgs, hdr.Opaque, 0, nil, nil, nil)
		return false
	}
	// FLUSH's extras are optional (0 or 4 bytes carrying an expiration).
	if hdr.Opcode != wire.OpFlush && hdr.Opcode != wire.OpFlushQ {
		if extrasLen != expectedExtras {
			c.respondBinary(hdr.Opcode, wire.StatusInvalidArgs, hdr.Opaque, 0, nil, nil, nil)
			return false
		}
	} else if extrasLen != 0 && extrasLen != 4 {
		c.respondBinary(hdr.Opcode, wire.StatusInvalidArgs, hdr.Opaque, 0, nil, nil, nil)
		return false
	}
	if wire.RequiresKey(hdr.Opcode) && keyLen == 0 {
		c.respondBinary(hdr.Opcode, wire.StatusInvalidArgs, hdr.Opaque, 0, nil, nil, nil)
		return false
	}

	extras := body[:extrasLen]
	key := body[extrasLen : extrasLen+keyLen]
	value := body[extrasLen+keyLen:]

	switch hdr.Opcode {
	case wire.OpGet, wire.OpGetQ, wire.OpGetK, wire.OpGetKQ:
		c.binaryGet(hdr, key)
	case wire.OpSet, wire.OpSetQ:
		c.binaryStore(hdr, key, value, extras, store.Store.Set)
	case wire.OpAdd, wire.OpAddQ:
		c.binaryStore(hdr, key, value, extras, store.Store.Add)
	case wire.OpReplace, wire.OpReplaceQ:
		c.binaryStore(hdr, key, value, extras, store.Store.ReplaceCmd)
	case wire.OpAppend, wire.OpAppendQ:
		c.binaryConcat(hdr, key, value, true)
	case wire.OpPrepend, wire.OpPrependQ:
		c.binaryConcat(hdr, key, value, false)
	case wire.OpDelete, wire.OpDeleteQ:
		c.binaryDelete(hdr, key)
	case wire.OpIncrement, wire.OpIncrementQ:
		c.binaryIncrDecr(hdr, key, extras, true)
	case wire.OpDecrement, wire.OpDecrementQ:
		c.binaryIncrDecr(hdr, key, extras, false)
	case wire.OpNoop:
		c.respondBinary(hdr.Opcode, wire.StatusOK, hdr.Opaque, 0, nil, nil, nil)
	case wire.OpVersion:
		c.respondBinary(hdr.Opcode, wire.StatusOK, hdr.Opaque, 0, nil, nil, []byte("1.6.0-go-memkv"))
	case wire.OpFlush, wire.OpFlushQ:
		at := c.Store.Now()
		if len(extras) == 4 {
			exp := binary.BigEndian.Uint32(extras)
			at = int64(c.Store.NormalizeExptime(exp))
		}
		c.Store.FlushAll(at)
		c.respondBinary(hdr.Opcode, wire.StatusOK, hdr.Opaque, 0, nil, nil, nil)
	case wire.OpStat:
		c.respondBinary(hdr.Opcode, wire.StatusOK, hdr.Opaque, 0, nil, nil, nil)
	case wire.OpQuit, wire.OpQuitQ:
		c.respondBinary(hdr.Opcode, wire.StatusOK, hdr.Opaque, 0, nil, nil, nil)
		return true
	default:
		c.respondBinary(hdr.Opcode, wire.StatusUnknownCommand, hdr.Opaque, 0, nil, nil, nil)
	}
	return false
}

func (c *Conn) binaryGet(hdr wire.Header, key []byte) {
	it, ok := c.Store.Get(key)
	if c.WStats != nil {
		c.WStats.CmdGet.Add(1)
		if ok {
			c.WStats.GetHits.Add(1)
		} else {
			c.WStats.GetMisses.Add(1)
		}
	}
	if !ok {
		c.respondBinary(hdr.Opcode, wire.StatusKeyNotFound, hdr.Opaque, 0, nil, nil, nil)
		return
	}
	extrasOut := make([]byte, 4)
	wire.GetResponseExtras{Flags: it.Flags}.Encode(extrasOut)
	var keyOut []byte
	if hdr.Opcode == wire.OpGetK || hdr.Opcode == wire.OpGetKQ {
		keyOut = it.Key
	}
	valueOut := append([]byte(nil), it.Value...)
	c.respondBinary(hdr.Opcode, wire.StatusOK, hdr.Opaque, it.CAS, extrasOut, keyOut, valueOut)
	c.Store.Release(it)
}

type storeFn func(*store.Store, []byte, uint32, uint32, []byte) (*store.Item, error)

func (c *Conn) binaryStore(hdr wire.Header, key, value, extras []byte, fn storeFn) {
	se := wire.DecodeStoreExtras(extras)
	it, err := fn(c.Store, key, se.Flags, c.Store.NormalizeExptime(se.Expiration), append([]byte(nil), value...))
	if c.WStats != nil {
		c.WStats.CmdSet.Add(1)
		c.WStats.BytesRead.Add(uint64(len(value)))
	}
	if err != nil {
		c.respondBinary(hdr.Opcode, storeErrStatus(err), hdr.Opaque, 0, nil, nil, nil)
		return
	}
	c.respondBinary(hdr.Opcode, wire.StatusOK, hdr.Opaque, it.CAS, nil, nil, nil)
}

func (c *Conn) binaryConcat(hdr wire.Header, key, value []byte, prepend bool) {
	var it *store.Item
	var err error
	if prepend {
		it, err = c.Store.Prepend(key, append([]byte(nil), value...))
	} else {
		it, err = c.Store.Append(key, append([]byte(nil), value...))
	}
	if err != nil {
		c.respondBinary(hdr.Opcode, storeErrStatus(err), hdr.Opaque, 0, nil, nil, nil)
		return
	}
	c.respondBinary(hdr.Opcode, wire.StatusOK, hdr.Opaque, it.CAS, nil, nil, nil)
}

func (c *Conn) binaryDelete(hdr wire.Header, key []byte) {
	err := c.Store.Delete(key)
	if c.WStats != nil {
		c.WStats.CmdDelete.Add(1)
	}
	if err != nil {
		c.respondBinary(hdr.Opcode, storeErrStatus(err), hdr.Opaque, 0, nil, nil, nil)
		return
	}
	c.respondBinary(hdr.Opcode, wire.StatusOK, hdr.Opaque, 0, nil, nil, nil)
}

func (c *Conn) binaryIncrDecr(hdr wire.Header, key, extras []byte, incr bool) {
	de := wire.DecodeDeltaExtras(extras)
	n, err := c.Store.IncrDecr(key, de.Delta, incr)
	if c.WStats != nil {
		if incr {
			c.WStats.CmdIncr.Add(1)
		} else {
			c.WStats.CmdDecr.Add(1)
		}
	}
	if err != nil {
		c.respondBinary(hdr.Opcode, storeErrStatus(err), hdr.Opaque, 0, nil, nil, nil)
		return
	}
	valueOut := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		valueOut[i] = byte(n)
		n >>= 8
	}
	c.respondBinary(hdr.Opcode, wire.StatusOK, hdr.Opaque, 0, nil, nil, valueOut)
}
