package physmem

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/pagealloc/mem"
)

func newArena(t *testing.T, pages int) *Arena {
	t.Helper()
	l, err := mem.DefaultLayout.WithPages(pages)
	require.NoError(t, err)
	a, err := New(l)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func Test_New_RejectsBadLayout(t *testing.T) {
	l := mem.DefaultLayout
	l.PageSize = 1000
	_, err := New(l)
	require.ErrorIs(t, err, mem.ErrBadLayout)
}

func Test_Page_SizeAndIsolation(t *testing.T) {
	a := newArena(t, 4)
	l := a.Layout()

	p0 := a.Page(l.FirstPage())
	p1 := a.Page(l.FirstPage() + mem.PageSize)
	require.Len(t, p0, mem.PageSize)
	require.Len(t, p1, mem.PageSize)
	require.Equal(t, mem.PageSize, cap(p0), "page slice must not reach into the next page")

	for i := range p0 {
		p0[i] = 0xAA
	}
	assert.Equal(t, byte(0), p1[0], "writing one page must not touch its neighbour")
}

func Test_Page_BadAddressPanics(t *testing.T) {
	a := newArena(t, 2)
	l := a.Layout()

	for _, pa := range []mem.Addr{l.FirstPage() + 1, l.PhysTop, l.KernBase - mem.PageSize} {
		func() {
			defer func() {
				r := recover()
				require.NotNil(t, r, "Page(%s) should panic", pa)
				err, ok := r.(error)
				require.True(t, ok)
				assert.True(t, errors.Is(err, mem.ErrBadAddr))
			}()
			a.Page(pa)
		}()
	}
}

func Test_Fill(t *testing.T) {
	a := newArena(t, 2)
	pa := a.Layout().FirstPage()

	a.Fill(pa, 5)
	assert.Equal(t, bytes.Repeat([]byte{5}, mem.PageSize), a.Page(pa))

	a.Fill(pa, 0)
	assert.Equal(t, make([]byte, mem.PageSize), a.Page(pa))

	// The next page is untouched.
	assert.Equal(t, make([]byte, mem.PageSize), a.Page(pa+mem.PageSize))
}

func Test_Copy(t *testing.T) {
	a := newArena(t, 2)
	src := a.Layout().FirstPage()
	dst := src + mem.PageSize

	pg := a.Page(src)
	for i := range pg {
		pg[i] = byte(i * 7)
	}
	a.Copy(dst, src)
	assert.Equal(t, a.Page(src), a.Page(dst))

	// Copies are independent afterwards.
	pg[0] ^= 0xFF
	assert.NotEqual(t, a.Page(src)[0], a.Page(dst)[0])
}

func Test_Close_Idempotent(t *testing.T) {
	l, err := mem.DefaultLayout.WithPages(1)
	require.NoError(t, err)
	a, err := New(l)
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}
