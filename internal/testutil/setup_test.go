package testutil

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_SetupArena(t *testing.T) {
	arena := SetupArena(t, 3)
	l := arena.Layout()
	require.Equal(t, 3, l.NumPages())
	require.Len(t, arena.Page(l.FirstPage()), 4096)
}

func Test_Pattern_DistinctSeeds(t *testing.T) {
	a := make([]byte, 64)
	b := make([]byte, 64)
	Pattern(a, 1)
	Pattern(b, 2)
	assert.NotEqual(t, a, b)
}

func Test_RequirePanicIs(t *testing.T) {
	sentinel := errors.New("boom")
	err := RequirePanicIs(t, sentinel, func() {
		panic(fmt.Errorf("wrapped: %w", sentinel))
	})
	require.ErrorIs(t, err, sentinel)
}
