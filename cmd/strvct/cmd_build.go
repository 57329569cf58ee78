package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/skyline93/strvct/internal/indexer"
	"github.com/spf13/cobra"
)

var cmdBuild = &cobra.Command{
	Use:   "build [flags] [dir]",
	Short: "Write the index and CAM artifacts for an app",
	Long: `
The "build" command resolves the manifest tree starting at _imports.json in
dir (default: the current directory), hashes every listed file and writes
build/_index.json, build/_cam.json, build/_cam.json.zip and a .hash sidecar
for each of them.

EXIT STATUS
===========

Exit status is 0 if the artifacts were written.
Exit status is 1 if there was any error. Artifacts are replaced one at a
time, so a failed build can leave artifacts of the previous build next to new
ones. An artifact is never left next to a .hash sidecar it does not match.
`,
	DisableAutoGenTag: true,
	Args:              cobra.MaximumNArgs(1),
}

// BuildOptions bundles all options for the build command.
type BuildOptions struct {
	Manifest string
	OutDir   string
	Workers  uint
	Watch    bool
	Debounce time.Duration
}

var buildOptions BuildOptions

func init() {
	// RunE is assigned here because runBuild refers to cmdBuild, which
	// would otherwise form an initialization cycle.
	cmdBuild.RunE = func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		return runBuild(cmd.Context(), cmd, dir)
	}
	cmdRoot.AddCommand(cmdBuild)

	f := cmdBuild.Flags()
	f.StringVar(&buildOptions.Manifest, "manifest", "", "root manifest relative to dir (default: _imports.json)")
	f.StringVar(&buildOptions.OutDir, "out", "", "output directory relative to dir (default: build)")
	f.UintVar(&buildOptions.Workers, "workers", 0, "hash `n` files concurrently (default: GOMAXPROCS)")
	f.BoolVar(&buildOptions.Watch, "watch", false, "rebuild whenever a listed file changes")
	f.DurationVar(&buildOptions.Debounce, "debounce", indexer.DefaultDebounce, "wait `duration` for further changes before rebuilding")
}

func newIndexer(cmd *cobra.Command, dir string) *indexer.Indexer {
	cfg := globalOptions.cfg.Build
	return indexer.New(dir, indexer.Options{
		Manifest: flagOr(cmd, "manifest", buildOptions.Manifest, cfg.Manifest),
		OutDir:   flagOr(cmd, "out", buildOptions.OutDir, cfg.OutDir),
		Workers:  flagOr(cmd, "workers", buildOptions.Workers, cfg.Workers),
	})
}

func runBuild(ctx context.Context, cmd *cobra.Command, dir string) error {
	ix := newIndexer(cmd, dir)

	if !buildOptions.Watch || cmd != cmdBuild {
		_, err := ix.Run(ctx)
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	debounce := flagOr(cmd, "debounce", buildOptions.Debounce, globalOptions.cfg.Build.Debounce)
	return ix.Watch(ctx, debounce, nil, func(err error) {
		log.Errorf("build failed: %v", err)
	})
}
