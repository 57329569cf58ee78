package main

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/skyline93/strvct/internal/backend"
	"github.com/skyline93/strvct/internal/backend/local"
	"github.com/skyline93/strvct/internal/backend/retry"
	"github.com/skyline93/strvct/internal/backend/web"
	"github.com/skyline93/strvct/internal/config"
	"github.com/skyline93/strvct/internal/store"
	"github.com/skyline93/strvct/internal/store/badger"
	localstore "github.com/skyline93/strvct/internal/store/local"
	"github.com/skyline93/strvct/internal/strvct"
	"github.com/spf13/cobra"
)

// GlobalOptions hold all global options for strvct.
type GlobalOptions struct {
	ConfigFile string
	LogLevel   string
	LogFormat  string

	cfg config.Config
}

var globalOptions = GlobalOptions{
	cfg: config.Default(),
}

func init() {
	f := cmdRoot.PersistentFlags()
	f.StringVar(&globalOptions.ConfigFile, "config", "", "read defaults from the YAML `file`")
	f.StringVar(&globalOptions.LogLevel, "log-level", "info", "log `level` (debug, info, warn, error)")
	f.StringVar(&globalOptions.LogFormat, "log-format", "text", "log `format` (text, json)")
}

// load reads the config file, if any, and configures the logger. Flags set on
// the command line win over the file.
func (opts *GlobalOptions) load(cmd *cobra.Command) error {
	cfg := config.Default()
	if opts.ConfigFile != "" {
		var err error
		cfg, err = config.Load(opts.ConfigFile)
		if err != nil {
			return err
		}
	}
	opts.cfg = cfg

	level := flagOr(cmd, "log-level", opts.LogLevel, cfg.Log.Level)
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return errors.Wrap(err, "log level")
	}
	log.SetLevel(lvl)

	format := flagOr(cmd, "log-format", opts.LogFormat, cfg.Log.Format)
	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return errors.Errorf("unknown log format %q", format)
	}

	return nil
}

// flagOr returns flagVal if the flag name was given on the command line and
// cfgVal otherwise.
func flagOr[T any](cmd *cobra.Command, name string, flagVal, cfgVal T) T {
	if cmd.Flags().Changed(name) {
		return flagVal
	}
	return cfgVal
}

// openBackend opens the backend described by uri: "local:/dir" or an http(s)
// URL. With retries > 0 failed loads are retried.
func openBackend(ctx context.Context, uri string, timeout time.Duration, retries int) (backend.Backend, error) {
	var be backend.Backend

	switch {
	case strings.HasPrefix(uri, "local:"):
		cfg, err := local.ParseConfig(uri)
		if err != nil {
			return nil, err
		}
		be, err = local.Open(ctx, *cfg)
		if err != nil {
			return nil, err
		}
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		cfg, err := web.ParseConfig(uri)
		if err != nil {
			return nil, err
		}
		if timeout > 0 {
			cfg.Timeout = timeout
		}
		be, err = web.Open(ctx, *cfg, nil)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("invalid source %q, use local:/dir or an http(s) URL", uri)
	}

	if retries > 0 {
		be = retry.New(be, retries+1, func(msg string, err error, d time.Duration) {
			log.Warnf("%v returned error, retrying after %v: %v", msg, d, err)
		})
	}
	return be, nil
}

// openStore opens the hash store described by uri: "local:/dir",
// "badger:/dir" or "mem:". An empty uri means no store. Failures are returned
// as *strvct.StoreOpenError.
func openStore(ctx context.Context, uri string) (store.Store, error) {
	switch {
	case uri == "":
		return nil, nil
	case uri == "mem:":
		return store.NewMemory(), nil
	case strings.HasPrefix(uri, "local:"):
		cfg, err := localstore.ParseConfig(uri)
		if err != nil {
			return nil, &strvct.StoreOpenError{Location: uri, Err: err}
		}
		st, err := localstore.Open(ctx, *cfg)
		if err != nil {
			return nil, err
		}
		return st, nil
	case strings.HasPrefix(uri, "badger:"):
		cfg, err := badger.ParseConfig(uri)
		if err != nil {
			return nil, &strvct.StoreOpenError{Location: uri, Err: err}
		}
		st, err := badger.Open(ctx, *cfg)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	return nil, &strvct.StoreOpenError{Location: uri, Err: errors.New("unknown store type")}
}
