package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// cmdRoot is the base command. Without a subcommand it runs the build step
// in the current directory.
var cmdRoot = &cobra.Command{
	Use:   "strvct",
	Short: "Build and boot content-addressed application bundles",
	Long: `
strvct publishes an application as an ordered, hash-annotated index of its
resources plus a bundled content-addressable map, and boots it again through
a persistent local hash cache.

Running strvct without a command is the same as "strvct build".
`,
	Version:           version,
	SilenceErrors:     true,
	SilenceUsage:      true,
	DisableAutoGenTag: true,
	Args:              cobra.NoArgs,

	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return globalOptions.load(cmd)
	},

	RunE: func(cmd *cobra.Command, _ []string) error {
		return runBuild(cmd.Context(), cmd, ".")
	},
}

// execute runs the command line args and returns the exit code.
func execute(ctx context.Context, args []string) int {
	cmdRoot.SetArgs(args)
	if err := cmdRoot.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(context.Background(), os.Args[1:]))
}
