package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blitz-test/blitz/packages/cache"
	"github.com/blitz-test/blitz/packages/core/config"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the persisted result cache",
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show persisted cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		rc, err := openCache()
		if err != nil {
			return err
		}
		defer rc.Close()

		entries, err := rc.Entries()
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-7s  %8s  %s\n",
				e.Digest[:12], e.Outcome, e.Duration.Round(1e5), e.Timestamp.Format("2006-01-02 15:04:05"))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d entries\n", len(entries))
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every persisted cache entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		rc, err := openCache()
		if err != nil {
			return err
		}
		defer rc.Close()

		if err := rc.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "result cache cleared")
		return nil
	},
}

func openCache() (*cache.Cache, error) {
	fileConfig, err := config.LoadConfig(configFlag)
	if err != nil {
		return nil, err
	}
	path := fileConfig.CachePath
	if cachePathFlag != "" {
		path = cachePathFlag
	}
	return cache.Open(path, fileConfig.CacheCapacity)
}

func init() {
	cacheCmd.PersistentFlags().StringVar(&cachePathFlag, "cache-path", getEnvString("BLITZ_CACHE_PATH", ""), "Result cache database path (env: BLITZ_CACHE_PATH)")
	cacheCmd.AddCommand(cacheShowCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
