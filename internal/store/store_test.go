package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-memkv/internal/slab"
)

func testStore(t *testing.T, memLimit int64, evictToFree bool) *Store {
	t.Helper()
	alloc := slab.NewAllocator(slab.Config{
		MemoryLimit:  memLimit,
		MinChunkSize: 64,
		GrowthFactor: 1.25,
		PageSize:     1024, // small pages so a handful of items exhausts a class
	})
	s := NewStore(alloc, evictToFree, nil)
	t.Cleanup(s.Close)
	return s
}

func TestRoundTrip(t *testing.T) {
	s := testStore(t, 1<<20, true)
	_, err := s.Set([]byte("K"), 0, 0, []byte("V"))
	require.NoError(t, err)

	it, ok := s.Get([]byte("K"))
	require.True(t, ok)
	require.Equal(t, "V", string(it.Value))
	s.Release(it)
}

func TestIdempotentSet(t *testing.T) {
	s := testStore(t, 1<<20, true)
	_, err := s.Set([]byte("K"), 0, 0, []byte("V"))
	require.NoError(t, err)
	_, err = s.Set([]byte("K"), 0, 0, []byte("V"))
	require.NoError(t, err)

	require.Equal(t, 1, s.ItemCount())
	it, ok := s.Get([]byte("K"))
	require.True(t, ok)
	require.Equal(t, "V", string(it.Value))
	s.Release(it)
}

func TestAddExclusion(t *testing.T) {
	s := testStore(t, 1<<20, true)
	_, err := s.Set([]byte("K"), 0, 0, []byte("V1"))
	require.NoError(t, err)

	_, err = s.Add([]byte("K"), 0, 0, []byte("V2"))
	require.ErrorIs(t, err, ErrNotStored)

	it, ok := s.Get([]byte("K"))
	require.True(t, ok)
	require.Equal(t, "V1", string(it.Value))
	s.Release(it)
}

func TestReplaceGating(t *testing.T) {
	s := testStore(t, 1<<20, true)
	_, err := s.ReplaceCmd([]byte("K"), 0, 0, []byte("V"))
	require.ErrorIs(t, err, ErrNotStored)

	_, err = s.Set([]byte("K"), 0, 0, []byte("V1"))
	require.NoError(t, err)
	_, err = s.ReplaceCmd([]byte("K"), 0, 0, []byte("V2"))
	require.NoError(t, err)

	it, ok := s.Get([]byte("K"))
	require.True(t, ok)
	require.Equal(t, "V2", string(it.Value))
	s.Release(it)
}

func TestCasRoundTrip(t *testing.T) {
	s := testStore(t, 1<<20, true)
	it, err := s.Set([]byte("K"), 0, 0, []byte("V"))
	require.NoError(t, err)
	tok := it.CAS
	s.Release(it)

	_, err = s.Cas([]byte("K"), 0, 0, []byte("V2"), tok)
	require.NoError(t, err)

	_, err = s.Cas([]byte("K"), 0, 0, []byte("V3"), tok)
	require.ErrorIs(t, err, ErrExists)

	_, err = s.Cas([]byte("missing"), 0, 0, []byte("V"), 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIncrSaturatesAtZero(t *testing.T) {
	s := testStore(t, 1<<20, true)
	_, err := s.Set([]byte("n"), 0, 0, []byte("3"))
	require.NoError(t, err)

	n, err := s.IncrDecr([]byte("n"), 10, false)
	require.NoError(t, err)
	require.Equal(t, uint64(0), n)

	it, ok := s.Get([]byte("n"))
	require.True(t, ok)
	require.Equal(t, "0", string(it.Value))
	s.Release(it)
}

func TestIncrNonNumericIsBadDelta(t *testing.T) {
	s := testStore(t, 1<<20, true)
	_, err := s.Set([]byte("n"), 0, 0, []byte("not-a-number"))
	require.NoError(t, err)

	_, err = s.IncrDecr([]byte("n"), 1, true)
	require.ErrorIs(t, err, ErrBadDelta)
}

func TestIncrGrowsValueLength(t *testing.T) {
	s := testStore(t, 1<<20, true)
	_, err := s.Set([]byte("n"), 0, 0, []byte("9"))
	require.NoError(t, err)

	n, err := s.IncrDecr([]byte("n"), 1, true)
	require.NoError(t, err)
	require.Equal(t, uint64(10), n)

	it, ok := s.Get([]byte("n"))
	require.True(t, ok)
	require.Equal(t, "10", string(it.Value))
	s.Release(it)
}

func TestDeleteMissingKeyIsNotFound(t *testing.T) {
	s := testStore(t, 1<<20, true)
	require.ErrorIs(t, s.Delete([]byte("nope")), ErrNotFound)
}

func TestExpirationMakesItemAbsent(t *testing.T) {
	s := testStore(t, 1<<20, true)
	_, err := s.Set([]byte("K"), 0, s.NormalizeExptime(1), []byte("V"))
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)

	_, ok := s.Get([]byte("K"))
	require.False(t, ok)
}

func TestFlushAllInvalidatesEverything(t *testing.T) {
	s := testStore(t, 1<<20, true)
	_, err := s.Set([]byte("K"), 0, 0, []byte("V"))
	require.NoError(t, err)

	s.FlushAll(s.Now())

	_, ok := s.Get([]byte("K"))
	require.False(t, ok)
}

// TestEvictionUnderPressure exercises spec.md §8 scenario 4: with a memory
// limit that holds exactly two items in the relevant class and eviction
// enabled, a third set evicts the least-recently-used survivor.
func TestEvictionUnderPressure(t *testing.T) {
	alloc := slab.NewAllocator(slab.Config{
		MemoryLimit:  2048, // two 1KiB pages, one chunk per class 1 page
		MinChunkSize: 900,
		GrowthFactor: 1.25,
		PageSize:     1024,
	})
	s := NewStore(alloc, true, nil)
	t.Cleanup(s.Close)

	val := make([]byte, 800)
	_, err := s.Set([]byte("K1"), 0, 0, val)
	require.NoError(t, err)
	_, err = s.Set([]byte("K2"), 0, 0, val)
	require.NoError(t, err)
	_, err = s.Set([]byte("K3"), 0, 0, val)
	require.NoError(t, err)

	_, ok := s.Get([]byte("K1"))
	require.False(t, ok, "oldest item should have been evicted")

	it2, ok := s.Get([]byte("K2"))
	require.True(t, ok)
	s.Release(it2)
	it3, ok := s.Get([]byte("K3"))
	require.True(t, ok)
	s.Release(it3)
}

// TestOutOfMemoryWithoutEviction exercises the -M flag's behavior: with
// eviction disabled, an allocation that would otherwise evict instead
// fails and existing items are untouched.
func TestOutOfMemoryWithoutEviction(t *testing.T) {
	alloc := slab.NewAllocator(slab.Config{
		MemoryLimit:  2048,
		MinChunkSize: 900,
		GrowthFactor: 1.25,
		PageSize:     1024,
	})
	s := NewStore(alloc, false, nil)
	t.Cleanup(s.Close)

	val := make([]byte, 800)
	_, err := s.Set([]byte("K1"), 0, 0, val)
	require.NoError(t, err)
	_, err = s.Set([]byte("K2"), 0, 0, val)
	require.NoError(t, err)

	_, err = s.Set([]byte("K3"), 0, 0, val)
	require.ErrorIs(t, err, ErrOutOfMemory)

	it1, ok := s.Get([]byte("K1"))
	require.True(t, ok)
	s.Release(it1)
	it2, ok := s.Get([]byte("K2"))
	require.True(t, ok)
	s.Release(it2)
}

func TestValueTooLargeForAnyClass(t *testing.T) {
	s := testStore(t, 1<<20, true)
	_, err := s.Set([]byte("K"), 0, 0, make([]byte, 10<<20))
	require.ErrorIs(t, err, ErrTooLarge)
}

// TestCASTokensStrictlyIncreasing checks spec.md §8 invariant 5.
func TestCASTokensStrictlyIncreasing(t *testing.T) {
	s := testStore(t, 1<<20, true)
	var last uint64
	for i := 0; i < 20; i++ {
		it, err := s.Set([]byte("K"), 0, 0, []byte("V"))
		require.NoError(t, err)
		require.Greater(t, it.CAS, last)
		last = it.CAS
		s.Release(it)
	}
}

// TestAppendPrependPreserveFlagsAndExptime checks spec.md §4.3's append/
// prepend semantics: the combined value's flags/exptime come from the
// existing item, not from the append call.
func TestAppendPrependPreserveFlagsAndExptime(t *testing.T) {
	s := testStore(t, 1<<20, true)
	_, err := s.Set([]byte("K"), 42, 0, []byte("mid"))
	require.NoError(t, err)

	it, err := s.Append([]byte("K"), []byte("-end"))
	require.NoError(t, err)
	require.Equal(t, "mid-end", string(it.Value))
	require.Equal(t, uint32(42), it.Flags)
	s.Release(it)

	it, err = s.Prepend([]byte("K"), []byte("start-"))
	require.NoError(t, err)
	require.Equal(t, "start-mid-end", string(it.Value))
	require.Equal(t, uint32(42), it.Flags)
	s.Release(it)
}

func TestAppendMissingKeyIsNotStored(t *testing.T) {
	s := testStore(t, 1<<20, true)
	_, err := s.Append([]byte("nope"), []byte("x"))
	require.ErrorIs(t, err, ErrNotStored)
}

// TestLinkDuringExpansionSurvivesMigration exercises spec.md §8's hash
// index/LRU item count invariant across a background rehash: an item
// linked while a bucket ahead of it has already been migrated out of
// primary must land in secondary, not in the stale (already-zeroed)
// primary bucket migrateOneBucket will discard when migration completes.
func TestLinkDuringExpansionSurvivesMigration(t *testing.T) {
	s := testStore(t, 1<<20, true)
	s.Close() // drive migration by hand instead of racing the background loop

	s.primary = newBucketTable(2) // 4 buckets; small enough to force expansion cheaply

	for i := 0; i < 7; i++ { // crosses the 4*1.5 load factor threshold
		_, err := s.Set([]byte(fmt.Sprintf("seed-%d", i)), 0, 0, []byte("v"))
		require.NoError(t, err)
	}
	require.True(t, s.expanding)

	require.True(t, s.migrateOneBucket())
	require.True(t, s.migrateOneBucket())
	require.EqualValues(t, 2, s.migrateAt)

	var lateKey []byte
	for i := 0; ; i++ {
		k := []byte(fmt.Sprintf("late-%d", i))
		if s.primary.index(hashKey(k)) < s.migrateAt {
			lateKey = k
			break
		}
	}
	_, err := s.Set(lateKey, 0, 0, []byte("late-value"))
	require.NoError(t, err)

	h := hashKey(lateKey)
	require.Nil(t, s.primary.find(h, lateKey), "already-migrated bucket must not receive new inserts")
	require.NotNil(t, s.secondary.find(h, lateKey), "insert during migration must route to secondary")

	for s.migrateOneBucket() {
	}
	require.False(t, s.expanding)

	it, ok := s.Get(lateKey)
	require.True(t, ok, "item linked during migration must survive the primary/secondary swap")
	require.Equal(t, "late-value", string(it.Value))
	s.Release(it)

	var lruTotal int
	for _, l := range s.lrus {
		lruTotal += l.n
	}
	require.Equal(t, s.itemCount, lruTotal)
}
