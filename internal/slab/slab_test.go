package slab

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testAllocator() *Allocator {
	return NewAllocator(Config{
		MemoryLimit:  2 * 1024 * 1024,
		MinChunkSize: 64,
		GrowthFactor: 1.25,
		PageSize:     64 * 1024,
		MaxClasses:   32,
	})
}

func TestClassForPicksSmallestFit(t *testing.T) {
	a := testAllocator()
	c, err := a.ClassFor(100)
	require.NoError(t, err)
	require.GreaterOrEqual(t, c.ChunkSize, 100)

	smaller, err := a.ClassFor(10)
	require.NoError(t, err)
	require.LessOrEqual(t, smaller.ChunkSize, c.ChunkSize)
}

func TestClassForTooLarge(t *testing.T) {
	a := testAllocator()
	_, err := a.ClassFor(10 << 20)
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestAllocFreeReuse(t *testing.T) {
	a := testAllocator()
	c, err := a.ClassFor(100)
	require.NoError(t, err)

	buf, err := a.Alloc(c)
	require.NoError(t, err)
	require.Len(t, buf, c.ChunkSize)

	a.Free(c, buf)
	stat := a.Stat(c)
	require.Equal(t, 0, stat.UsedChunks)
}

func TestAllocRespectsMemoryLimit(t *testing.T) {
	a := NewAllocator(Config{
		MemoryLimit:  64 * 1024, // exactly one page
		MinChunkSize: 64,
		GrowthFactor: 1.25,
		PageSize:     64 * 1024,
	})
	c, err := a.ClassFor(64)
	require.NoError(t, err)

	// Drain the one page's worth of chunks.
	n := (64 * 1024) / c.ChunkSize
	for i := 0; i < n; i++ {
		_, err := a.Alloc(c)
		require.NoError(t, err)
	}

	_, err = a.Alloc(c)
	require.ErrorIs(t, err, ErrOutOfMemory)
}

func TestReassignMovesFreePage(t *testing.T) {
	a := testAllocator()
	src, err := a.ClassFor(64)
	require.NoError(t, err)
	dst, err := a.ClassFor(200)
	require.NoError(t, err)
	require.NotEqual(t, src.ID, dst.ID)

	// Force src to grow a page, then free everything on it.
	bufs := make([][]byte, 0)
	n := a.pageSize / src.ChunkSize
	for i := 0; i < n; i++ {
		b, err := a.Alloc(src)
		require.NoError(t, err)
		bufs = append(bufs, b)
	}
	for _, b := range bufs {
		a.Free(src, b)
	}

	dstPagesBefore := len(dst.pages)
	result := a.Reassign(src, dst)
	require.Equal(t, ReassignDone, result)
	require.Greater(t, len(dst.pages), dstPagesBefore)
}

func TestReassignCantWhenPinned(t *testing.T) {
	a := testAllocator()
	src, err := a.ClassFor(64)
	require.NoError(t, err)
	dst, err := a.ClassFor(200)
	require.NoError(t, err)

	_, err = a.Alloc(src) // pins the only page
	require.NoError(t, err)

	require.Equal(t, ReassignCant, a.Reassign(src, dst))
}
