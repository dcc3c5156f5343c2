// Package wire implements the binary protocol framing described in
// spec.md §4.3: a fixed 24-byte header followed by extras, key, and value.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Opcode identifies the binary protocol operation. Values match the
// historical memcache binary protocol so existing clients interoperate.
type Opcode uint8

const (
	OpGet       Opcode = 0x00
	OpSet       Opcode = 0x01
	OpAdd       Opcode = 0x02
	OpReplace   Opcode = 0x03
	OpDelete    Opcode = 0x04
	OpIncrement Opcode = 0x05
	OpDecrement Opcode = 0x06
	OpQuit      Opcode = 0x07
	OpFlush     Opcode = 0x08
	OpGetQ      Opcode = 0x09
	OpNoop      Opcode = 0x0A
	OpVersion   Opcode = 0x0B
	OpGetK      Opcode = 0x0C
	OpGetKQ     Opcode = 0x0D
	OpAppend    Opcode = 0x0E
	OpPrepend   Opcode = 0x0F
	OpStat      Opcode = 0x10
	OpSetQ      Opcode = 0x11
	OpAddQ      Opcode = 0x12
	OpReplaceQ  Opcode = 0x13
	OpDeleteQ   Opcode = 0x14
	OpIncrementQ Opcode = 0x15
	OpDecrementQ Opcode = 0x16
	OpQuitQ      Opcode = 0x17
	OpFlushQ     Opcode = 0x18
	OpAppendQ    Opcode = 0x19
	OpPrependQ   Opcode = 0x1A
)

// Quiet reports whether opcode is a "Q" (noreply-style) variant: on success
// no response is sent, but errors still produce one.
func (o Opcode) Quiet() bool {
	switch o {
	case OpGetQ, OpGetKQ, OpSetQ, OpAddQ, OpReplaceQ, OpDeleteQ,
		OpIncrementQ, OpDecrementQ, OpQuitQ, OpFlushQ, OpAppendQ, OpPrependQ:
		return true
	default:
		return false
	}
}

// Status is the binary protocol's response status code.
type Status uint16

const (
	StatusOK             Status = 0x0000
	StatusKeyNotFound    Status = 0x0001
	StatusKeyExists      Status = 0x0002
	StatusValueTooLarge  Status = 0x0003
	StatusInvalidArgs    Status = 0x0004
	StatusNotStored      Status = 0x0005
	StatusDeltaBadVal    Status = 0x0006
	StatusUnknownCommand Status = 0x0081
	StatusOutOfMemory    Status = 0x0082
)

const (
	magicRequest  = 0x80
	magicResponse = 0x81
)

// Header is the 24-byte binary protocol header. Field layout and sizes
// must match spec.md §4.3 exactly: any change here is a wire format
// change, not a refactor.
type Header struct {
	Magic        uint8
	Opcode       Opcode
	KeyLength    uint16
	ExtrasLength uint8
	DataType     uint8
	Status       Status // response only; reserved (0) in requests
	BodyLength   uint32
	Opaque       uint32
	CAS          uint64
}

// HeaderSize is the wire size of a binary protocol header, request or
// response. The Header struct's in-memory layout is not tied to it; the
// encode and decode functions lay the fields out by byte offset.
const HeaderSize = 24

// ErrShortHeader is returned by DecodeHeader when fewer than HeaderSize
// bytes are available.
var ErrShortHeader = fmt.Errorf("wire: header requires %d bytes", HeaderSize)

// DecodeHeader parses a 24-byte binary protocol header from buf.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrShortHeader
	}
	h := Header{
		Magic:        buf[0],
		Opcode:       Opcode(buf[1]),
		KeyLength:    binary.BigEndian.Uint16(buf[2:4]),
		ExtrasLength: buf[4],
		DataType:     buf[5],
		Status:       Status(binary.BigEndian.Uint16(buf[6:8])),
		BodyLength:   binary.BigEndian.Uint32(buf[8:12]),
		Opaque:       binary.BigEndian.Uint32(buf[12:16]),
		CAS:          binary.BigEndian.Uint64(buf[16:24]),
	}
	return h, nil
}

// EncodeRequest writes a request header (magic 0x80) into buf, which must
// be at least HeaderSize bytes.
func (h Header) EncodeRequest(buf []byte) {
	h.Magic = magicRequest
	h.encode(buf)
}

// EncodeResponse writes a response header (magic 0x81) into buf, which must
// be at least HeaderSize bytes.
func (h Header) EncodeResponse(buf []byte) {
	h.Magic = magicResponse
	h.encode(buf)
}

func (h Header) encode(buf []byte) {
	_ = buf[23] // bounds-check hint, mirrors the teacher's struct-size assertions
	buf[0] = h.Magic
	buf[1] = byte(h.Opcode)
	binary.BigEndian.PutUint16(buf[2:4], h.KeyLength)
	buf[4] = h.ExtrasLength
	buf[5] = h.DataType
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Status))
	binary.BigEndian.PutUint32(buf[8:12], h.BodyLength)
	binary.BigEndian.PutUint32(buf[12:16], h.Opaque)
	binary.BigEndian.PutUint64(buf[16:24], h.CAS)
}

// IsRequest reports whether the first byte of buf is the binary protocol's
// request magic, used by the reactor's protocol auto-detection.
func IsRequest(firstByte byte) bool {
	return firstByte == magicRequest
}

// ExtrasLen returns the fixed extras length this opcode's request carries,
// and whether the opcode is recognized. A mismatch against the header's
// ExtrasLength is a validation failure (EINVAL) per spec.md §4.3.
func ExtrasLen(op Opcode) (int, bool) {
	switch op {
	case OpGet, OpGetQ, OpGetK, OpGetKQ, OpDelete, OpDeleteQ,
		OpQuit, OpQuitQ, OpNoop, OpVersion, OpStat:
		return 0, true
	case OpSet, OpSetQ, OpAdd, OpAddQ, OpReplace, OpReplaceQ:
		return 8, true // flags[4] + expiration[4]
	case OpIncrement, OpIncrementQ, OpDecrement, OpDecrementQ:
		return 20, true // delta[8] + initial[8] + expiration[4]
	case OpAppend, OpAppendQ, OpPrepend, OpPrependQ:
		return 0, true
	case OpFlush, OpFlushQ:
		return 4, true // expiration[4], optional (0 also accepted by caller)
	default:
		return 0, false
	}
}

// RequiresKey reports whether opcode requires a non-empty key.
func RequiresKey(op Opcode) bool {
	switch op {
	case OpNoop, OpVersion, OpQuit, OpQuitQ, OpFlush, OpFlushQ, OpStat:
		return false
	default:
		return true
	}
}
