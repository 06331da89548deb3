package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joshuapare/pagealloc/internal/logger"
	"github.com/joshuapare/pagealloc/mem"
)

var (
	// Global flags
	verbose  bool
	quiet    bool
	jsonOut  bool
	logLevel string

	// Layout flags
	layoutFile string
	pages      int
	kernBase   addrFlag
	kernEnd    addrFlag
	physTop    addrFlag
)

var rootCmd = &cobra.Command{
	Use:   "pagectl",
	Short: "Exercise and inspect the physical page allocator",
	Long: `pagectl drives the physical page allocator over a simulated physical
memory range. It can describe a memory layout, replay the reference
allocation/copy-on-write scenario, and run a concurrent stress workload.`,
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
	SilenceUsage: true,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().
		StringVar(&logLevel, "log-level", "", "Allocator log level on stderr (debug, info, warn, error)")

	// Layout flags
	rootCmd.PersistentFlags().StringVar(&layoutFile, "layout", "", "JSON layout file")
	rootCmd.PersistentFlags().IntVar(&pages, "pages", 0, "Number of managed pages (overrides phys top)")
	rootCmd.PersistentFlags().Var(&kernBase, "kern-base", "Physical address of the start of RAM")
	rootCmd.PersistentFlags().Var(&kernEnd, "kern-end", "First address after the kernel image")
	rootCmd.PersistentFlags().Var(&physTop, "phys-top", "Top of physical memory")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogging installs the allocator logger. --log-level wins over
// --verbose; without either the PAGEALLOC_LOG environment variable decides.
func setupLogging() error {
	level := slog.LevelInfo
	switch {
	case logLevel != "":
		var err error
		if level, err = logger.ParseLevel(logLevel); err != nil {
			return err
		}
	case verbose && !quiet:
	default:
		return nil
	}
	logger.Init(logger.Options{Enabled: true, Level: level, JSON: jsonOut})
	logger.Debug("logging enabled", "level", level)
	return nil
}

// resolveLayout builds the layout from DefaultLayout, the --layout file and
// the individual layout flags, in that order.
func resolveLayout() (mem.Layout, error) {
	l := mem.DefaultLayout
	if layoutFile != "" {
		var err error
		if l, err = mem.LoadLayout(layoutFile); err != nil {
			return mem.Layout{}, err
		}
	}
	if kernBase.set {
		l.KernBase = kernBase.addr
	}
	if kernEnd.set {
		l.KernEnd = kernEnd.addr
	}
	if physTop.set {
		l.PhysTop = physTop.addr
	}
	if pages < 0 {
		return mem.Layout{}, fmt.Errorf("--pages must not be negative, got %d", pages)
	}
	if pages > 0 {
		var err error
		if l, err = l.WithPages(pages); err != nil {
			return mem.Layout{}, fmt.Errorf("--pages %d: %w", pages, err)
		}
	}
	if err := l.Validate(); err != nil {
		return mem.Layout{}, err
	}
	printVerbose("Layout: [%s, %s) kernel end %s\n", l.KernBase, l.PhysTop, l.KernEnd)
	return l, nil
}

// addrFlag is a physical address flag accepting decimal or 0x-prefixed hex.
type addrFlag struct {
	addr mem.Addr
	set  bool
}

func (f *addrFlag) String() string {
	if !f.set {
		return ""
	}
	return f.addr.String()
}

func (f *addrFlag) Set(s string) error {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", s, err)
	}
	f.addr, f.set = mem.Addr(v), true
	return nil
}

func (f *addrFlag) Type() string { return "addr" }

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printError prints an error message
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format, args...)
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
