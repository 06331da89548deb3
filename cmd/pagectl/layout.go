package main

import (
	"github.com/spf13/cobra"

	"github.com/joshuapare/pagealloc/mem"
)

func init() {
	rootCmd.AddCommand(newLayoutCmd())
}

func newLayoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Describe the physical memory layout",
		Long: `The layout command resolves the memory layout from the defaults, an
optional --layout file and the individual layout flags, validates it and
reports the range of pages the allocator would manage.

Example:
  pagectl layout
  pagectl layout --pages 11
  pagectl layout --phys-top 0x80400000 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLayout()
		},
	}
	return cmd
}

type layoutReport struct {
	mem.Layout
	FirstPage   mem.Addr `json:"first_page"`
	FirstIndex  int      `json:"first_index"`
	MaxIndex    int      `json:"max_index"`
	ManagedPage int      `json:"managed_pages"`
	ManagedSize uint64   `json:"managed_bytes"`
	ArenaSize   uint64   `json:"arena_bytes"`
}

func runLayout() error {
	l, err := resolveLayout()
	if err != nil {
		return err
	}

	r := layoutReport{
		Layout:      l,
		FirstPage:   l.FirstPage(),
		FirstIndex:  l.Index(l.FirstPage()),
		MaxIndex:    l.MaxIndex(),
		ManagedPage: l.NumPages(),
		ManagedSize: uint64(l.NumPages()) * l.PageSize,
		ArenaSize:   l.Size(),
	}

	if jsonOut {
		return printJSON(r)
	}

	printInfo("Physical memory layout\n")
	printInfo("  Kernel base:   %s\n", l.KernBase)
	printInfo("  Kernel end:    %s\n", l.KernEnd)
	printInfo("  Phys top:      %s\n", l.PhysTop)
	printInfo("  Page size:     %s\n", formatBytes(int64(l.PageSize)))
	printInfo("\nManaged range\n")
	printInfo("  First page:    %s\n", r.FirstPage)
	printInfo("  Pages:         %s\n", formatNumber(int64(r.ManagedPage)))
	printInfo("  Frame indexes: [%s, %s)\n", formatNumber(int64(r.FirstIndex)), formatNumber(int64(r.MaxIndex)))
	printInfo("  Size:          %s\n", formatBytes(int64(r.ManagedSize)))
	printVerbose("  Arena size:    %s\n", formatBytes(int64(r.ArenaSize)))
	return nil
}
