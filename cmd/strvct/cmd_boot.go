package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/skyline93/strvct/internal/backend"
	"github.com/skyline93/strvct/internal/boot"
	"github.com/skyline93/strvct/internal/evaluator"
	"github.com/skyline93/strvct/internal/repository"
	"github.com/skyline93/strvct/internal/store"
	"github.com/skyline93/strvct/internal/strvct"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var cmdBoot = &cobra.Command{
	Use:   "boot [flags]",
	Short: "Boot an app: load its index, prime the cache and evaluate it",
	Long: `
The "boot" command loads the published index from the source, primes an empty
hash store from the CAM, applies all stylesheets and evaluates all scripts in
index order.

EXIT STATUS
===========

Exit status is 0 if the boot reached the done state.
Exit status is 1 if the boot halted; the failing resource is reported.
`,
	DisableAutoGenTag: true,
	Args:              cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runBoot(cmd.Context(), cmd, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

// BootOptions bundles all options for the boot command.
type BootOptions struct {
	Source            string
	Store             string
	Timeout           time.Duration
	Retries           int
	VerifyCache       bool
	NoVerifyArtifacts bool
	Prefetch          bool
	PrefetchWorkers   uint
	StylesheetOut     string
	Quiet             bool
}

var bootOptions BootOptions

func init() {
	cmdRoot.AddCommand(cmdBoot)

	f := cmdBoot.Flags()
	f.StringVar(&bootOptions.Source, "source", "", "load the app from `uri`: local:/dir or http(s)://host/path (default: local:.)")
	f.StringVar(&bootOptions.Store, "store", "", "hash store `uri`: local:/dir, badger:/dir or mem:")
	f.DurationVar(&bootOptions.Timeout, "timeout", repository.DefaultTimeout, "give up on a single resource after `duration`")
	f.IntVar(&bootOptions.Retries, "retries", 3, "retry a failed fetch `n` times")
	f.BoolVar(&bootOptions.VerifyCache, "verify-cache", false, "re-hash content read from the hash store")
	f.BoolVar(&bootOptions.NoVerifyArtifacts, "no-verify-artifacts", false, "do not check artifacts against their .hash sidecars")
	f.BoolVar(&bootOptions.Prefetch, "prefetch", false, "fetch stylesheets and scripts concurrently before evaluating them")
	f.UintVar(&bootOptions.PrefetchWorkers, "prefetch-workers", 0, "prefetch `n` resources concurrently (default: backend connections)")
	f.StringVar(&bootOptions.StylesheetOut, "stylesheet-out", "", "write the resulting document style to `file`")
	f.BoolVarP(&bootOptions.Quiet, "quiet", "q", false, "do not print progress")
}

func runBoot(ctx context.Context, cmd *cobra.Command, stdout, stderr io.Writer) error {
	cfg := globalOptions.cfg
	timeout := flagOr(cmd, "timeout", bootOptions.Timeout, cfg.Boot.Timeout)
	retries := flagOr(cmd, "retries", bootOptions.Retries, cfg.Boot.Retries)

	be, err := openBackend(ctx, flagOr(cmd, "source", bootOptions.Source, cfg.Source), timeout, retries)
	if err != nil {
		return err
	}
	defer func() {
		_ = be.Close()
	}()

	st, err := openStore(ctx, flagOr(cmd, "store", bootOptions.Store, cfg.Store))
	if err != nil {
		var openErr *strvct.StoreOpenError
		if !errors.As(err, &openErr) {
			return err
		}
		log.Warnf("%v, continuing without a cache", err)
		st = nil
	}
	if st != nil {
		defer func() {
			if err := st.Close(); err != nil {
				log.Warnf("closing hash store: %v", err)
			}
		}()
	}

	return bootApp(ctx, cmd, be, st, stdout, stderr)
}

func bootApp(ctx context.Context, cmd *cobra.Command, be backend.Backend, st store.Store, stdout, stderr io.Writer) error {
	cfg := globalOptions.cfg

	repo := repository.New(be, st, repository.Options{
		Timeout:     flagOr(cmd, "timeout", bootOptions.Timeout, cfg.Boot.Timeout),
		VerifyCache: flagOr(cmd, "verify-cache", bootOptions.VerifyCache, cfg.Boot.VerifyCache),
		Registerer:  prometheus.NewRegistry(),
	})

	wg, wgCtx := errgroup.WithContext(ctx)
	repo.StartStoreWriter(wgCtx, wg)

	css := evaluator.NewStylesheet()
	opts := boot.Options{
		VerifyArtifacts: !flagOr(cmd, "no-verify-artifacts", bootOptions.NoVerifyArtifacts, !cfg.Boot.VerifyArtifacts),
		Prefetch:        flagOr(cmd, "prefetch", bootOptions.Prefetch, cfg.Boot.Prefetch),
		PrefetchWorkers: flagOr(cmd, "prefetch-workers", bootOptions.PrefetchWorkers, cfg.Boot.PrefetchWorkers),
		Done: func(r boot.Report) {
			printReport(stdout, r)
		},
	}
	if !bootOptions.Quiet {
		opts.Progress = func(ev boot.Event) {
			if ev.State == boot.MaybePrimingCam {
				return
			}
			fmt.Fprintf(stderr, "[%3.0f%%] %v %v\n", ev.Progress*100, ev.State, ev.Path)
		}
	}

	m := boot.New(repo, evaluator.NewJS(), css, opts)
	bootErr := m.Run(ctx)

	if err := repo.Flush(ctx); err != nil {
		log.Warnf("flushing cache writes: %v", err)
	}
	if err := wg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Warnf("cache writer: %v", err)
	}

	if bootErr != nil {
		return bootErr
	}

	if bootOptions.StylesheetOut != "" {
		if err := os.WriteFile(bootOptions.StylesheetOut, []byte(css.String()), 0644); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

func printReport(w io.Writer, r boot.Report) {
	if r.Err != nil {
		fmt.Fprintf(w, "boot failed after %v: %v\n", r.Duration.Round(time.Millisecond), r.Err)
		return
	}
	fmt.Fprintf(w, "booted %d resources in %v: %d fetches, %d bytes loaded, %d cache hits\n",
		r.Resources, r.Duration.Round(time.Millisecond), r.Stats.Fetches, r.Stats.BytesLoaded, r.Stats.CacheHits)
}
