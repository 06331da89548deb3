package refcount

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/pagealloc/mem"
)

func withPages(t *testing.T, n int) mem.Layout {
	t.Helper()
	l, err := mem.DefaultLayout.WithPages(n)
	require.NoError(t, err)
	return l
}

func Test_New_ZeroInitialized(t *testing.T) {
	l := withPages(t, 8)
	tbl := New(l)

	require.Equal(t, l.MaxIndex(), tbl.Len())
	assert.True(t, tbl.Zeroed(l.KernBase, l.PhysTop))
	for i := 0; i < tbl.Len(); i++ {
		assert.Zero(t, tbl.Read(l.Addr(i)))
	}
}

func Test_IncrementDecrement(t *testing.T) {
	l := withPages(t, 4)
	tbl := New(l)
	pa := l.FirstPage()

	tbl.Set(pa, 1)
	tbl.Increment(pa)
	tbl.Increment(pa)
	assert.Equal(t, int32(3), tbl.Read(pa))

	tbl.Lock()
	assert.Equal(t, int32(2), tbl.DecrementLocked(pa))
	assert.Equal(t, int32(1), tbl.DecrementLocked(pa))
	tbl.Unlock()

	assert.Equal(t, int32(1), tbl.Read(pa))
	assert.Zero(t, tbl.Read(pa+mem.PageSize), "neighbouring frame is untouched")
}

func Test_AddressesWithinFrameShareCount(t *testing.T) {
	l := withPages(t, 2)
	tbl := New(l)
	pa := l.FirstPage()

	tbl.Increment(pa + 17)
	assert.Equal(t, int32(1), tbl.Read(pa))
	assert.Equal(t, int32(1), tbl.Read(pa+mem.PageSize-1))
}

func Test_Zeroed(t *testing.T) {
	l := withPages(t, 4)
	tbl := New(l)
	first := l.FirstPage()

	tbl.Increment(first + 2*mem.PageSize)
	assert.False(t, tbl.Zeroed(first, l.PhysTop))
	assert.True(t, tbl.Zeroed(first, first+2*mem.PageSize))
	assert.True(t, tbl.Zeroed(first+3*mem.PageSize, l.PhysTop))
	assert.True(t, tbl.Zeroed(l.PhysTop, l.PhysTop), "empty range")
}

func Test_ConcurrentIncrement(t *testing.T) {
	l := withPages(t, 1)
	tbl := New(l)
	pa := l.FirstPage()

	const workers, perWorker = 8, 1000
	var wg sync.WaitGroup
	for _i := 0; _i < workers; _i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _i := 0; _i < perWorker; _i++ {
				tbl.Increment(pa)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(workers*perWorker), tbl.Read(pa))
}

func Test_ConcurrentDecrementSeesEachValueOnce(t *testing.T) {
	l := withPages(t, 1)
	tbl := New(l)
	pa := l.FirstPage()

	const n = 512
	tbl.Set(pa, n)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		seen  = make(map[int32]int)
		zeros int
	)
	for _i := 0; _i < n; _i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tbl.Lock()
			v := tbl.DecrementLocked(pa)
			tbl.Unlock()

			mu.Lock()
			seen[v]++
			if v == 0 {
				zeros++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, zeros, "exactly one decrementer observes the last reference")
	assert.Len(t, seen, n)
	for v, c := range seen {
		assert.Equal(t, 1, c, "value %d observed more than once", v)
	}
}
