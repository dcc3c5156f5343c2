package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Opcode:       OpSet,
		KeyLength:    3,
		ExtrasLength: 8,
		BodyLength:   19,
		Opaque:       0xDEADBEEF,
		CAS:          42,
	}
	buf := make([]byte, HeaderSize)
	h.EncodeRequest(buf)
	require.Equal(t, byte(magicRequest), buf[0])

	got, err := DecodeHeader(buf)
	require.NoError(t, err)
	require.Equal(t, OpSet, got.Opcode)
	require.Equal(t, uint16(3), got.KeyLength)
	require.Equal(t, uint32(19), got.BodyLength)
	require.Equal(t, uint32(0xDEADBEEF), got.Opaque)
	require.Equal(t, uint64(42), got.CAS)
}

func TestNoopEchoesOpaque(t *testing.T) {
	req := Header{Opcode: OpNoop, Opaque: 0xDEADBEEF}
	buf := make([]byte, HeaderSize)
	req.EncodeRequest(buf)

	decoded, err := DecodeHeader(buf)
	require.NoError(t, err)

	resp := Header{Opcode: decoded.Opcode, Opaque: decoded.Opaque, Status: StatusOK}
	respBuf := make([]byte, HeaderSize)
	resp.EncodeResponse(respBuf)

	got, err := DecodeHeader(respBuf)
	require.NoError(t, err)
	require.Equal(t, byte(magicResponse), respBuf[0])
	require.Equal(t, StatusOK, got.Status)
	require.Equal(t, req.Opaque, got.Opaque)
}

func TestDecodeHeaderShort(t *testing.T) {
	_, err := DecodeHeader(make([]byte, 10))
	require.ErrorIs(t, err, ErrShortHeader)
}

func TestExtrasLenKnownOpcodes(t *testing.T) {
	n, ok := ExtrasLen(OpSet)
	require.True(t, ok)
	require.Equal(t, 8, n)

	n, ok = ExtrasLen(OpIncrement)
	require.True(t, ok)
	require.Equal(t, 20, n)

	_, ok = ExtrasLen(Opcode(0xFF))
	require.False(t, ok)
}
