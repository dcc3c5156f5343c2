package textproto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSet(t *testing.T) {
	cmd, err := ParseLine([]byte("set foo 0 0 5"))
	require.NoError(t, err)
	require.Equal(t, VerbSet, cmd.Verb)
	require.Equal(t, "foo", string(cmd.Keys[0]))
	require.Equal(t, 5, cmd.Bytes)
	require.False(t, cmd.NoReply)
}

func TestParseSetNoreply(t *testing.T) {
	cmd, err := ParseLine([]byte("set foo 1 60 3 noreply"))
	require.NoError(t, err)
	require.True(t, cmd.NoReply)
	require.EqualValues(t, 1, cmd.Flags)
	require.EqualValues(t, 60, cmd.Exptime)
}

func TestParseGetMultiKey(t *testing.T) {
	cmd, err := ParseLine([]byte("get foo bar foo"))
	require.NoError(t, err)
	require.Equal(t, VerbGet, cmd.Verb)
	require.Len(t, cmd.Keys, 3)
}

func TestParseCas(t *testing.T) {
	cmd, err := ParseLine([]byte("cas foo 0 0 5 42"))
	require.NoError(t, err)
	require.EqualValues(t, 42, cmd.CAS)
}

func TestParseIncrBadDelta(t *testing.T) {
	_, err := ParseLine([]byte("incr foo notanumber"))
	require.Error(t, err)
}

func TestParseFlushAllWithDelay(t *testing.T) {
	cmd, err := ParseLine([]byte("flush_all 30"))
	require.NoError(t, err)
	require.True(t, cmd.HasArg)
	require.EqualValues(t, 30, cmd.Exptime)
}

func TestParseSlabsReassign(t *testing.T) {
	cmd, err := ParseLine([]byte("slabs reassign 1 2"))
	require.NoError(t, err)
	require.Equal(t, VerbSlabsReassign, cmd.Verb)
	require.Equal(t, 1, cmd.SlabsSrc)
	require.Equal(t, 2, cmd.SlabsDst)
}

func TestParseEmptyLine(t *testing.T) {
	_, err := ParseLine([]byte(""))
	require.Error(t, err)
}
