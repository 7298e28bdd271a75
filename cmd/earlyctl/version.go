package main

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/joshuapare/bootalloc/alloc"
	"github.com/joshuapare/bootalloc/internal/format"
)

// version is overridden at link time with -ldflags "-X main.version=...".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.Version = buildVersion()
	rootCmd.AddCommand(versionCmd)
}

// buildVersion prefers the link-time version, then the module version
// recorded by "go install".
func buildVersion() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return version
}

func buildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, s := range info.Settings {
		if s.Key == key && s.Value != "" {
			return s.Value
		}
	}
	return "unknown"
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "earlyctl %s\n", buildVersion())
	fmt.Fprintf(w, "  commit: %s\n", buildSetting("vcs.revision"))
	fmt.Fprintf(w, "  built with: %s\n", runtime.Version())
	fmt.Fprintf(w, "  default page size: %s\n", format.FormatBytes(alloc.DefaultPageSize))
}
