package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/glimpse/pkg/cache"
	cachestore "github.com/pario-ai/glimpse/pkg/cache/sqlite"
)

func newCacheCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the answer cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			s, err := cachestore.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			entries, err := s.LoadAll()
			if err != nil {
				return err
			}
			var hits int64
			var oldest, newest time.Time
			for _, e := range entries {
				hits += e.HitCount
				if oldest.IsZero() || e.CreatedAt.Before(oldest) {
					oldest = e.CreatedAt
				}
				if e.LastUsed.After(newest) {
					newest = e.LastUsed
				}
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Entries:   %d / %d\nHits:      %d\n", len(entries), cfg.Cache.Capacity, hits)
			if len(entries) > 0 {
				fmt.Fprintf(out, "Oldest:    %s\nLast used: %s\n",
					oldest.Local().Format(time.DateTime), newest.Local().Format(time.DateTime))
			}
			return nil
		},
	}

	var expiredOnly bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			s, err := cachestore.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			out := cmd.OutOrStdout()
			if !expiredOnly {
				if err := s.Clear(); err != nil {
					return err
				}
				fmt.Fprintln(out, "All cache entries cleared.")
				return nil
			}
			if cfg.Cache.MaxAge <= 0 {
				fmt.Fprintln(out, "No cache.max_age configured; nothing expires.")
				return nil
			}
			c, err := cache.New(cache.Options{
				Capacity: cfg.Cache.Capacity,
				MaxAge:   cfg.Cache.MaxAge,
				Store:    s,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d expired cache entries cleared.\n", c.Sweep())
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&expiredOnly, "expired", false, "only clear entries older than cache.max_age")

	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}
