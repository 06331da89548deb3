package kalloc

import (
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/pagealloc/mem"
)

// Test_Concurrent_AllocUntilEmpty has workers race to drain the pool. Every
// page must be handed out exactly once.
func Test_Concurrent_AllocUntilEmpty(t *testing.T) {
	const pages, workers = 512, 8
	a := newAllocator(t, pages)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		got = make(map[mem.Addr]int)
	)
	for _i := 0; _i < workers; _i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				pa, err := a.Alloc()
				if errors.Is(err, ErrOutOfMemory) {
					return
				}
				mu.Lock()
				got[pa]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, got, pages)
	for pa, n := range got {
		require.Equal(t, 1, n, "page %s handed out %d times", pa, n)
	}
	assert.Zero(t, a.FreePages())
}

// Test_Concurrent_SharedPageRelease has many owners of one page drop their
// references at once, half by Free and half by a COW fault followed by
// freeing the private copy. The page is reclaimed exactly once.
func Test_Concurrent_SharedPageRelease(t *testing.T) {
	const owners = 64
	a := newAllocator(t, owners+1)

	pa, err := a.Alloc()
	require.NoError(t, err)
	for _i := 0; _i < owners-1; _i++ {
		a.IncRef(pa)
	}
	require.Equal(t, int32(owners), a.Refs(pa))

	var wg sync.WaitGroup
	for i := 0; i < owners; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				a.Free(pa)
				return
			}
			npa, err := a.ResolveCOW(pa)
			if !assert.NoError(t, err) {
				return
			}
			a.Free(npa)
		}()
	}
	wg.Wait()

	s := a.Stats()
	assert.Equal(t, owners+1, a.FreePages(), "every page is back")
	assert.Zero(t, a.Refs(pa))
	assert.Equal(t, uint64(owners/2), s.COWFaults)
	assert.Equal(t, s.COWFaults, s.COWCopies+s.COWReused)
	assert.LessOrEqual(t, s.COWReused, uint64(1), "only the last owner can fault without copying")
}

// Test_Concurrent_RandomWorkload runs workers that allocate, share pages with
// each other through a channel, take COW faults and free. When everything
// is released the pool must be whole again.
func Test_Concurrent_RandomWorkload(t *testing.T) {
	const pages, workers, ops = 256, 8, 2000
	a := newAllocator(t, pages)
	handoff := make(chan mem.Addr, pages)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(w) + 1))
			var held []mem.Addr

			for _i := 0; _i < ops; _i++ {
				switch op := rng.Intn(5); {
				case op == 0 || len(held) == 0:
					pa, err := a.Alloc()
					if err == nil {
						held = append(held, pa)
					}
				case op == 1:
					pa := held[rng.Intn(len(held))]
					a.IncRef(pa)
					select {
					case handoff <- pa:
					default:
						a.Free(pa)
					}
				case op == 2:
					select {
					case pa := <-handoff:
						held = append(held, pa)
					default:
					}
				case op == 3:
					i := rng.Intn(len(held))
					npa, err := a.ResolveCOW(held[i])
					if err == nil {
						held[i] = npa
					}
				default:
					i := rng.Intn(len(held))
					a.Free(held[i])
					held[i] = held[len(held)-1]
					held = held[:len(held)-1]
				}
			}
			for _, pa := range held {
				a.Free(pa)
			}
		}()
	}
	wg.Wait()

	close(handoff)
	for pa := range handoff {
		a.Free(pa)
	}

	assert.Equal(t, pages, a.FreePages(), "no page leaked")
	l := a.Layout()
	for p := l.FirstPage(); p < l.PhysTop; p += mem.PageSize {
		require.Zero(t, a.Refs(p), "page %s still referenced", p)
	}
}
