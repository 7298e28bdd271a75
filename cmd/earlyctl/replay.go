package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshuapare/bootalloc/alloc"
	"github.com/joshuapare/bootalloc/internal/format"
	"github.com/joshuapare/bootalloc/trace"
)

var (
	replayBacked bool
)

func init() {
	cmd := newReplayCmd()
	cmd.Flags().BoolVar(&replayBacked, "backed", false, "Run against real mapped memory and verify allocations are not overwritten")
	rootCmd.AddCommand(cmd)
}

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <scenario.yaml>",
		Short: "Replay an allocation scenario",
		Long: `The replay command runs every step of a scenario file against a fresh
early allocator, checks each step's expectation, and prints the final
accounting and the regions that would be handed off.

Example:
  earlyctl replay boot.yaml
  earlyctl replay boot.yaml --backed
  earlyctl replay boot.yaml --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(args)
		},
	}
	return cmd
}

func runReplay(args []string) error {
	path := args[0]

	printVerbose("Loading scenario: %s\n", path)

	sc, err := trace.LoadFile(path)
	if err != nil {
		return fmt.Errorf("failed to load scenario: %w", err)
	}

	opts := &trace.Options{Logger: newLogger()}
	var rep *trace.Report
	if replayBacked {
		rep, err = trace.ReplayBacked(sc, opts)
	} else {
		rep, err = trace.ReplayEarly(sc, opts)
	}
	if rep == nil {
		return fmt.Errorf("replay failed: %w", err)
	}

	// Output as JSON if requested
	if jsonOut {
		if jerr := printJSON(rep); jerr != nil {
			return jerr
		}
		return err
	}

	printReport(rep)

	if errors.Is(err, trace.ErrExpectation) || errors.Is(err, trace.ErrCorruption) {
		return err
	}
	return nil
}

func printReport(rep *trace.Report) {
	name := rep.Name
	if name == "" {
		name = "(unnamed)"
	}
	mode := "simulated"
	if rep.Backed {
		mode = "backed"
	}
	printInfo("\nScenario: %s (%s)\n", name, mode)
	printInfo("%s\n", strings.Repeat("=", 40))

	for _, st := range rep.Steps {
		var outcome string
		switch {
		case st.Addr != nil:
			outcome = "-> " + st.Addr.String()
		case st.ErrorKind != "":
			outcome = "!! " + st.ErrorKind
		default:
			outcome = "ok"
		}
		label := st.Op
		if st.ID != "" {
			label += " [" + st.ID + "]"
		}
		printInfo("  #%-3d %-22s %-32s %s\n", st.Index, label, st.Args, outcome)
		if st.Mismatch != "" {
			printInfo("       MISMATCH: %s\n", st.Mismatch)
		}
		if st.Error != "" {
			printVerbose("       error: %s\n", st.Error)
		}
	}

	f := rep.Final
	printInfo("\nFinal accounting (page size %s):\n", format.FormatBytes(uint64(f.PageSize)))
	printInfo("  Bytes: %s used, %s available, %s total\n",
		format.FormatBytes(uint64(f.UsedBytes)),
		format.FormatBytes(uint64(f.AvailableBytes)),
		format.FormatBytes(uint64(f.TotalBytes)))
	printInfo("  Pages: %s used, %s available, %s total\n",
		format.FormatCount(uint64(f.UsedPages)),
		format.FormatCount(uint64(f.AvailablePages)),
		format.FormatCount(uint64(f.TotalPages)))

	if rep.Handoff != nil {
		printHandoff(*rep.Handoff)
	}

	if rep.Mismatches > 0 {
		printInfo("\n%d step(s) did not match their expectation\n", rep.Mismatches)
	}
	for _, c := range rep.Corruptions {
		printInfo("  CORRUPTED: %s\n", c)
	}
}

func printHandoff(h alloc.Handoff) {
	printInfo("\nHandoff:\n")
	printInfo("  Live bytes: %s (%s)\n", h.Bytes, format.FormatBytes(uint64(h.Bytes.Size)))
	printInfo("  Free gap:   %s (%s)\n", h.Free, format.FormatBytes(uint64(h.Free.Size)))
	printInfo("  Pages:      %s (%s)\n", h.Pages, format.FormatBytes(uint64(h.Pages.Size)))
}
