package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/bootalloc/alloc"
)

var (
	layoutStart    uint64
	layoutSize     uint64
	layoutPageSize uint64
)

func init() {
	cmd := newLayoutCmd()
	cmd.Flags().Uint64Var(&layoutStart, "start", 0x1000, "Start address of the span")
	cmd.Flags().Uint64Var(&layoutSize, "size", 0x100000, "Size of the span in bytes")
	cmd.Flags().Uint64Var(&layoutPageSize, "page-size", alloc.DefaultPageSize, "Page size (power of two)")
	rootCmd.AddCommand(cmd)
}

func newLayoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Show the accounting of a freshly initialized span",
		Long: `The layout command initializes an early allocator over the given span
and prints its byte and page capacity before any allocation.

Example:
  earlyctl layout --start 0x80000000 --size 0x800000
  earlyctl layout --size 0x3000 --page-size 0x1000 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLayout()
		},
	}
	return cmd
}

func runLayout() error {
	ea, err := alloc.NewEarly(uintptr(layoutPageSize), &alloc.Options{Logger: newLogger()})
	if err != nil {
		return err
	}
	if err := ea.Init(alloc.Addr(layoutStart), uintptr(layoutSize)); err != nil {
		return fmt.Errorf("failed to initialize span: %w", err)
	}

	st := ea.Stats()
	if jsonOut {
		return printJSON(st)
	}

	printInfo("\nSpan: [%s, %s)\n", st.Start, st.End)
	printInfo("  %s\n", st)
	printInfo("  Byte capacity: %#x\n", st.TotalBytes)
	printInfo("  Page capacity: %d\n", st.TotalPages)
	return nil
}
