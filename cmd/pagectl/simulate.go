package main

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/pagealloc/internal/logger"
	"github.com/joshuapare/pagealloc/mem"
	"github.com/joshuapare/pagealloc/mem/kalloc"
	"github.com/joshuapare/pagealloc/mem/physmem"
)

func init() {
	rootCmd.AddCommand(newSimulateCmd())
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay the allocation and copy-on-write walkthrough",
		Long: `The simulate command runs two fixed walkthroughs on fresh allocators.

exhaustion (10 pages): allocate every page, share page 3, fault on it with
no page left for the copy, then free it twice so it is reclaimed and handed
out again.

cow (11 pages): the same walk with one spare page, so the fault copies page
3 to a private page and both end up with a single reference.

Only the base address and kernel end of the resolved layout are used; the
page count of each walkthrough is fixed. The command fails if any step does
not behave as expected.

Example:
  pagectl simulate
  pagectl simulate --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate()
		},
	}
	return cmd
}

type simStep struct {
	Step   string `json:"step"`
	Result string `json:"result"`
	OK     bool   `json:"ok"`
}

type scenarioResult struct {
	Name  string       `json:"name"`
	Pages int          `json:"pages"`
	Steps []simStep    `json:"steps"`
	Stats kalloc.Stats `json:"stats"`
}

func (s *scenarioResult) expect(step string, ok bool, format string, args ...interface{}) bool {
	s.Steps = append(s.Steps, simStep{Step: step, Result: fmt.Sprintf(format, args...), OK: ok})
	return ok
}

type simReport struct {
	Scenarios []scenarioResult `json:"scenarios"`
	Passed    bool             `json:"passed"`
}

var errSimulationFailed = errors.New("simulation failed")

func runSimulate() error {
	base, err := resolveLayout()
	if err != nil {
		return err
	}

	var report simReport
	for _, sc := range []struct {
		name  string
		pages int
		run   func(*kalloc.Allocator, *scenarioResult)
	}{
		{"exhaustion", 10, simulateExhaustion},
		{"cow", 11, simulateCOW},
	} {
		l, err := base.WithPages(sc.pages)
		if err != nil {
			return fmt.Errorf("%s: %w", sc.name, err)
		}
		res, err := runScenario(l, sc.name, sc.run)
		if err != nil {
			return fmt.Errorf("%s: %w", sc.name, err)
		}
		report.Scenarios = append(report.Scenarios, res)
	}

	failed := 0
	for _, sc := range report.Scenarios {
		for _, st := range sc.Steps {
			if !st.OK {
				failed++
				logger.Error("simulation step failed", "scenario", sc.Name, "step", st.Step, "result", st.Result)
			}
		}
	}
	report.Passed = failed == 0

	if jsonOut {
		if err := printJSON(report); err != nil {
			return err
		}
	} else {
		printSimReport(report)
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d step(s) did not behave as expected", errSimulationFailed, failed)
	}
	return nil
}

func runScenario(l mem.Layout, name string, run func(*kalloc.Allocator, *scenarioResult)) (res scenarioResult, err error) {
	arena, err := physmem.New(l)
	if err != nil {
		return res, err
	}
	defer func() {
		if cerr := arena.Close(); err == nil {
			err = cerr
		}
	}()

	a := kalloc.New(arena, nil)
	a.Init()

	res = scenarioResult{Name: name, Pages: l.NumPages()}
	run(a, &res)
	res.Stats = a.Stats()
	return res, nil
}

func simulateExhaustion(a *kalloc.Allocator, s *scenarioResult) {
	total := a.FreePages()
	var pages []mem.Addr
	for {
		pa, err := a.Alloc()
		if err != nil {
			break
		}
		pages = append(pages, pa)
	}
	allOne := true
	for _, pa := range pages {
		allOne = allOne && a.Refs(pa) == 1
	}
	if !s.expect("allocate all", len(pages) == total && allOne,
		"%d of %d pages allocated, each with refs 1: %t", len(pages), total, allOne) {
		return
	}

	_, err := a.Alloc()
	s.expect("allocate from empty pool", errors.Is(err, kalloc.ErrOutOfMemory), "err=%v", err)

	if !s.expect("pick page 3", len(pages) > 3, "%d pages", len(pages)) {
		return
	}
	addr3 := pages[3]

	a.IncRef(addr3)
	s.expect("share page 3", a.Refs(addr3) == 2, "%s refs=%d", addr3, a.Refs(addr3))

	_, err = a.ResolveCOW(addr3)
	s.expect("cow fault with no free page", errors.Is(err, kalloc.ErrOutOfMemory) && a.Refs(addr3) == 2,
		"err=%v refs=%d", err, a.Refs(addr3))

	a.Free(addr3)
	s.expect("free one share", a.Refs(addr3) == 1 && a.FreePages() == 0,
		"refs=%d free=%d", a.Refs(addr3), a.FreePages())

	a.Free(addr3)
	s.expect("free last share", a.Refs(addr3) == 0 && a.FreePages() == 1,
		"refs=%d free=%d", a.Refs(addr3), a.FreePages())

	got, err := a.Alloc()
	s.expect("reallocate", err == nil && got == addr3, "got %s err=%v", got, err)
}

func simulateCOW(a *kalloc.Allocator, s *scenarioResult) {
	pages := make([]mem.Addr, 0, a.FreePages()-1)
	for len(pages) < cap(pages) {
		pa, err := a.Alloc()
		if err != nil {
			s.expect("allocate all but one", false, "after %d pages: %v", len(pages), err)
			return
		}
		pages = append(pages, pa)
	}
	s.expect("allocate all but one", a.FreePages() == 1, "%d allocated, %d free", len(pages), a.FreePages())

	if !s.expect("pick page 3", len(pages) > 3, "%d pages", len(pages)) {
		return
	}
	addr3 := pages[3]
	pg := a.Page(addr3)
	for i := range pg {
		pg[i] = byte(i*7 + 3)
	}
	a.IncRef(addr3)
	s.expect("share page 3", a.Refs(addr3) == 2, "%s refs=%d", addr3, a.Refs(addr3))

	addrNew, err := a.ResolveCOW(addr3)
	if !s.expect("cow fault", err == nil && addrNew != addr3, "%s -> %s err=%v", addr3, addrNew, err) {
		return
	}
	s.expect("copy matches", bytes.Equal(a.Page(addr3), a.Page(addrNew)), "%s == %s", addr3, addrNew)
	s.expect("both private", a.Refs(addr3) == 1 && a.Refs(addrNew) == 1 && a.FreePages() == 0,
		"refs %d/%d free=%d", a.Refs(addr3), a.Refs(addrNew), a.FreePages())

	a.Free(addr3)
	s.expect("free original", a.FreePages() == 1, "free=%d", a.FreePages())
}

func printSimReport(r simReport) {
	for _, sc := range r.Scenarios {
		printInfo("Scenario %s (%d pages)\n", sc.Name, sc.Pages)
		for _, st := range sc.Steps {
			mark := "ok  "
			if !st.OK {
				mark = "FAIL"
			}
			printInfo("  [%s] %-28s %s\n", mark, st.Step, st.Result)
		}
		printVerbose("  allocs=%d frees=%d cow faults=%d copies=%d out of memory=%d\n",
			sc.Stats.AllocCalls, sc.Stats.FreeCalls, sc.Stats.COWFaults,
			sc.Stats.COWCopies, sc.Stats.COWOutOfMemory)
		printInfo("\n")
	}
	if r.Passed {
		printInfo("All steps passed\n")
	}
}
