package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_LayoutCommand(t *testing.T) {
	tests := []struct {
		name     string
		pages    int
		jsonOut  bool
		expected []string
	}{
		{
			name:     "default layout",
			expected: []string{"Physical memory layout", "0x80000000", "0x80021b40", "0x80022000", "32,734", "4.0 KB", "Frame indexes: [34, 32,768)"},
		},
		{
			name:     "eleven pages",
			pages:    11,
			expected: []string{"Pages:         11", "44.0 KB"},
		},
		{
			name:     "json output",
			pages:    10,
			jsonOut:  true,
			expected: []string{`"managed_pages": 10`, `"kern_base": 2147483648`, `"page_size": 4096`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags()
			pages = tt.pages
			jsonOut = tt.jsonOut

			output, err := captureOutput(t, runLayout)
			require.NoError(t, err)
			if tt.jsonOut {
				assertJSON(t, output)
			}
			assertContains(t, output, tt.expected)
		})
	}
}

func Test_LayoutCommand_JSONFields(t *testing.T) {
	resetFlags()
	pages = 3
	jsonOut = true

	output, err := captureOutput(t, runLayout)
	require.NoError(t, err)

	var r layoutReport
	require.NoError(t, json.Unmarshal([]byte(output), &r))
	assert.Equal(t, 3, r.ManagedPage)
	assert.Equal(t, uint64(3*4096), r.ManagedSize)
	assert.Equal(t, r.Layout.FirstPage(), r.FirstPage)
	assert.Equal(t, r.Layout.Size(), r.ArenaSize)
	assert.Equal(t, 34, r.FirstIndex)
	assert.Equal(t, 37, r.MaxIndex)
}

func Test_LayoutCommand_Quiet(t *testing.T) {
	resetFlags()
	quiet = true

	output, err := captureOutput(t, runLayout)
	require.NoError(t, err)
	assert.Empty(t, output)
}
