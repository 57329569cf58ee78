package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/skyline93/strvct/internal/store"
	"github.com/spf13/cobra"
)

var cmdCache = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the persistent hash store",
	Long: `
The "cache" command operates on the local hash store that boot fills.
`,
	DisableAutoGenTag: true,
}

var cmdCacheCount = &cobra.Command{
	Use:               "count",
	Short:             "Print the number of cached entries",
	DisableAutoGenTag: true,
	Args:              cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd, func(ctx context.Context, st store.Store) error {
			n, err := st.Count(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d\n", n)
			return err
		})
	},
}

var cmdCacheClear = &cobra.Command{
	Use:               "clear",
	Short:             "Remove all cached entries",
	DisableAutoGenTag: true,
	Args:              cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd, func(ctx context.Context, st store.Store) error {
			return st.Clear(ctx)
		})
	},
}

// CacheOptions bundles all options for the cache commands.
type CacheOptions struct {
	Store string
}

var cacheOptions CacheOptions

func init() {
	cmdRoot.AddCommand(cmdCache)
	cmdCache.AddCommand(cmdCacheCount, cmdCacheClear)

	f := cmdCache.PersistentFlags()
	f.StringVar(&cacheOptions.Store, "store", "", "hash store `uri`: local:/dir, badger:/dir or mem:")
}

func withStore(cmd *cobra.Command, fn func(ctx context.Context, st store.Store) error) error {
	ctx := cmd.Context()
	uri := flagOr(cmd, "store", cacheOptions.Store, globalOptions.cfg.Store)

	st, err := openStore(ctx, uri)
	if err != nil {
		return err
	}
	if st == nil {
		return errors.New("no hash store configured")
	}

	err = fn(ctx, st)
	if cerr := st.Close(); err == nil {
		err = cerr
	}
	return err
}
