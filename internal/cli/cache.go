package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewCacheCmd creates the cache command with subcommands.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the response and download caches",
	}

	cmd.AddCommand(
		newCacheCleanCmd(),
		newCacheDirCmd(),
	)

	return cmd
}

func newCacheCleanCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Clean cached API responses",
		Long: `Remove expired entries from the response cache. With --all every
cached entry is dropped, forcing the next check to hit the API.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCacheClean(cmd, all)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "drop all cached entries, not just expired ones")

	return cmd
}

func newCacheDirCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dir",
		Short: "Show the download cache directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Println(cfg.Settings.DownloadDir)
			return nil
		},
	}

	return cmd
}

func runCacheClean(cmd *cobra.Command, all bool) error {
	rt, err := newRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	if all {
		if err := rt.store.CacheClear(cmd.Context()); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		fmt.Println("Cache cleared.")
		return nil
	}
	n, err := rt.store.CacheDeleteExpired(cmd.Context(), time.Now())
	if err != nil {
		return fmt.Errorf("failed to clean cache: %w", err)
	}
	fmt.Printf("Removed %d expired cache entries.\n", n)
	return nil
}
