package main

import (
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshuapare/pagealloc/internal/logger"
	"github.com/joshuapare/pagealloc/mem"
	"github.com/joshuapare/pagealloc/mem/kalloc"
	"github.com/joshuapare/pagealloc/mem/physmem"
)

var (
	stressWorkers int
	stressOps     int
	stressSeed    int64
)

func init() {
	cmd := newStressCmd()
	cmd.Flags().IntVar(&stressWorkers, "workers", runtime.GOMAXPROCS(0), "Number of concurrent workers")
	cmd.Flags().IntVar(&stressOps, "ops", 100000, "Operations per worker")
	cmd.Flags().Int64Var(&stressSeed, "seed", 1, "Random seed; worker i uses seed+i")
	rootCmd.AddCommand(cmd)
}

func newStressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run a concurrent allocate/share/fault/free workload",
		Long: `The stress command runs workers that allocate pages, share them with
themselves and with other workers, take copy-on-write faults on shared pages
and free them, all against one allocator. When the workers finish, every
reference they still hold is dropped and the command checks that every page
is back on the free list.

Example:
  pagectl stress
  pagectl stress --pages 256 --workers 16 --ops 50000 --seed 7
  pagectl stress --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress()
		},
	}
	return cmd
}

type stressReport struct {
	Pages     int          `json:"pages"`
	Workers   int          `json:"workers"`
	Ops       int          `json:"ops_per_worker"`
	Seed      int64        `json:"seed"`
	Elapsed   string       `json:"elapsed"`
	OpsPerSec float64      `json:"ops_per_sec"`
	Leaked    int          `json:"leaked_pages"`
	Stats     kalloc.Stats `json:"stats"`
}

var errLeak = errors.New("pages leaked")

// exchange passes references between workers.
type exchange struct {
	mu   sync.Mutex
	refs []mem.Addr
}

func (x *exchange) put(pa mem.Addr) {
	x.mu.Lock()
	x.refs = append(x.refs, pa)
	x.mu.Unlock()
}

func (x *exchange) take() (mem.Addr, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if len(x.refs) == 0 {
		return 0, false
	}
	pa := x.refs[len(x.refs)-1]
	x.refs = x.refs[:len(x.refs)-1]
	return pa, true
}

func runStress() (err error) {
	if stressWorkers < 1 {
		return fmt.Errorf("--workers must be at least 1, got %d", stressWorkers)
	}
	if stressOps < 0 {
		return fmt.Errorf("--ops must not be negative, got %d", stressOps)
	}

	l, err := resolveLayout()
	if err != nil {
		return err
	}
	arena, err := physmem.New(l)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := arena.Close(); err == nil {
			err = cerr
		}
	}()

	a := kalloc.New(arena, nil)
	a.Init()
	total := a.FreePages()
	printVerbose("Seeded %s pages, starting %d workers\n", formatNumber(int64(total)), stressWorkers)

	var (
		wg sync.WaitGroup
		x  exchange
	)
	start := time.Now()
	for w := 0; w < stressWorkers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			stressWorker(a, &x, rand.New(rand.NewSource(stressSeed+int64(w))), stressOps)
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	for {
		pa, ok := x.take()
		if !ok {
			break
		}
		a.Free(pa)
	}

	stats := a.Stats()
	r := stressReport{
		Pages:   total,
		Workers: stressWorkers,
		Ops:     stressOps,
		Seed:    stressSeed,
		Elapsed: elapsed.Round(time.Microsecond).String(),
		Leaked:  total - stats.FreePages,
		Stats:   stats,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		r.OpsPerSec = float64(stressWorkers*stressOps) / secs
	}

	if jsonOut {
		if err := printJSON(r); err != nil {
			return err
		}
	} else {
		printStressReport(r)
	}

	logger.Info("stress run finished",
		"pages", total, "workers", stressWorkers, "ops", stressOps, "seed", stressSeed, "elapsed", elapsed)
	if r.Leaked != 0 {
		logger.Warn("stress run leaked pages", "leaked", r.Leaked, "free", stats.FreePages)
		return fmt.Errorf("%w: %d of %d pages not returned", errLeak, r.Leaked, total)
	}
	return nil
}

// stressWorker runs ops random operations. held has one entry per reference
// the worker owns; whatever is left at the end is freed.
func stressWorker(a *kalloc.Allocator, x *exchange, rng *rand.Rand, ops int) {
	var held []mem.Addr
	drop := func(i int) {
		held[i] = held[len(held)-1]
		held = held[:len(held)-1]
	}

	for _i := 0; _i < ops; _i++ {
		op := rng.Intn(6)
		if len(held) == 0 && op != 4 {
			op = 0
		}
		switch op {
		case 0: // alloc
			pa, err := a.Alloc()
			if err != nil {
				continue
			}
			a.Page(pa)[0] = byte(rng.Intn(256))
			held = append(held, pa)

		case 1: // share with self, as fork would
			pa := held[rng.Intn(len(held))]
			a.IncRef(pa)
			held = append(held, pa)

		case 2: // write fault
			i := rng.Intn(len(held))
			npa, err := a.ResolveCOW(held[i])
			if err != nil {
				continue
			}
			held[i] = npa
			a.Page(npa)[0]++

		case 3: // free
			i := rng.Intn(len(held))
			a.Free(held[i])
			drop(i)

		case 4: // take a reference another worker gave away
			if pa, ok := x.take(); ok {
				held = append(held, pa)
			}

		case 5: // give a reference away
			i := rng.Intn(len(held))
			x.put(held[i])
			drop(i)
		}
	}

	for _, pa := range held {
		a.Free(pa)
	}
}

func printStressReport(r stressReport) {
	printInfo("Stress run\n")
	printInfo("  Pages:           %s\n", formatNumber(int64(r.Pages)))
	printInfo("  Workers:         %d\n", r.Workers)
	printInfo("  Ops per worker:  %s\n", formatNumber(int64(r.Ops)))
	printInfo("  Seed:            %d\n", r.Seed)
	printInfo("  Elapsed:         %s\n", r.Elapsed)
	printInfo("  Throughput:      %s ops/s\n", formatNumber(int64(r.OpsPerSec)))

	s := r.Stats
	printInfo("\nAllocator\n")
	printInfo("  Alloc calls:     %s (%s failed)\n",
		formatNumber(int64(s.AllocCalls)), formatNumber(int64(s.AllocFailures)))
	printInfo("  Free calls:      %s (%s reclaimed, %s still shared)\n",
		formatNumber(int64(s.FreeCalls)), formatNumber(int64(s.FreeReclaimed)), formatNumber(int64(s.FreeShared)))
	printInfo("  IncRef calls:    %s\n", formatNumber(int64(s.IncRefs)))
	printInfo("  COW faults:      %s (%s copied, %s reused, %s out of memory)\n",
		formatNumber(int64(s.COWFaults)), formatNumber(int64(s.COWCopies)),
		formatNumber(int64(s.COWReused)), formatNumber(int64(s.COWOutOfMemory)))
	printInfo("  Free pages:      %s of %s\n", formatNumber(int64(s.FreePages)), formatNumber(int64(s.TotalPages)))

	if r.Leaked != 0 {
		printError("%d pages leaked\n", r.Leaked)
	} else {
		printInfo("\nNo pages leaked\n")
	}
}
