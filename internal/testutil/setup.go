// Package testutil holds helpers shared by the allocator test suites.
package testutil

import (
	"errors"
	"testing"

	"github.com/joshuapare/pagealloc/mem"
	"github.com/joshuapare/pagealloc/mem/physmem"
)

// Layout returns DefaultLayout trimmed to exactly pages managed pages.
func Layout(t testing.TB, pages int) mem.Layout {
	t.Helper()

	l, err := mem.DefaultLayout.WithPages(pages)
	if err != nil {
		t.Fatalf("Failed to build layout: %v", err)
	}
	return l
}

// SetupArena maps an arena with pages managed pages and closes it when the
// test ends.
//
// Example:
//
//	arena := testutil.SetupArena(t, 10)
//	pg := arena.Page(arena.Layout().FirstPage())
func SetupArena(t testing.TB, pages int) *physmem.Arena {
	t.Helper()

	arena, err := physmem.New(Layout(t, pages))
	if err != nil {
		t.Fatalf("Failed to map arena: %v", err)
	}
	t.Cleanup(func() {
		if err := arena.Close(); err != nil {
			t.Errorf("Failed to close arena: %v", err)
		}
	})
	return arena
}

// Pattern fills pg with a byte pattern derived from seed so two pages
// written with different seeds never compare equal.
func Pattern(pg []byte, seed byte) {
	for i := range pg {
		pg[i] = byte(i) ^ seed
	}
}

// RequirePanicIs runs fn and fails the test unless it panics with an error
// matching target under errors.Is. It returns the recovered error.
func RequirePanicIs(t testing.TB, target error, fn func()) (err error) {
	t.Helper()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic matching %v, got none", target)
			return
		}
		e, ok := r.(error)
		if !ok {
			t.Fatalf("expected error panic, got %T: %v", r, r)
			return
		}
		if !errors.Is(e, target) {
			t.Fatalf("panic %v does not match %v", e, target)
			return
		}
		err = e
	}()
	fn()
	return nil
}
