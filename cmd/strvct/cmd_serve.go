package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/skyline93/strvct/internal/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var cmdServe = &cobra.Command{
	Use:   "serve [flags] [dir]",
	Short: "Serve an app directory over HTTP for development",
	Long: `
The "serve" command serves dir (default: the current directory), including the
build artifacts, so that "strvct boot --source http://..." can load it. With
--watch the artifacts are rebuilt whenever a listed file changes.

Health and metrics are available at /-/healthz and /-/metrics.
`,
	DisableAutoGenTag: true,
	Args:              cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		return runServe(cmd.Context(), cmd, dir)
	},
}

// ServeOptions bundles all options for the serve command.
type ServeOptions struct {
	Listen string
	Watch  bool
}

var serveOptions ServeOptions

func init() {
	cmdRoot.AddCommand(cmdServe)

	f := cmdServe.Flags()
	f.StringVar(&serveOptions.Listen, "listen", "localhost:8080", "listen on `addr`")
	f.BoolVar(&serveOptions.Watch, "watch", false, "build the artifacts and rebuild them on changes")
}

func runServe(ctx context.Context, cmd *cobra.Command, dir string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	gin.SetMode(gin.ReleaseMode)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv := server.New(dir, reg)
	listen := flagOr(cmd, "listen", serveOptions.Listen, globalOptions.cfg.Serve.Listen)

	wg, ctx := errgroup.WithContext(ctx)
	if serveOptions.Watch {
		ix := newIndexer(cmd, dir)
		wg.Go(func() error {
			return ix.Watch(ctx, globalOptions.cfg.Build.Debounce, nil, func(err error) {
				log.Errorf("build failed: %v", err)
			})
		})
	}
	wg.Go(func() error {
		return srv.ListenAndServe(ctx, listen)
	})

	return wg.Wait()
}
