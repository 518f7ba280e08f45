package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"aetherlib.ai/internal/persistence/indexdb"
)

func dbCmd() *cobra.Command {
	var (
		dbPath    string
		limit     int
		kind      string
		sinceTick uint64
	)
	cmd := &cobra.Command{
		Use:       "db {snapshots|events|rules}",
		Short:     "Query the sqlite index",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"snapshots", "events", "rules"},
		RunE: func(cmd *cobra.Command, args []string) error {
			q := "snapshots"
			if len(args) == 1 {
				q = args[0]
			}
			path := strings.TrimSpace(dbPath)
			if path == "" {
				path = filepath.Join(worldDir(), "index", "world.sqlite")
			}
			rd, err := indexdb.OpenReader(path)
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
			defer rd.Close()

			ctx := cmd.Context()
			var rows any
			switch q {
			case "snapshots":
				rows, err = rd.Snapshots(ctx, limit)
			case "events":
				rows, err = rd.Events(ctx, strings.ToUpper(kind), sinceTick, limit)
			case "rules":
				rows, err = rd.RuleLoads(ctx, limit)
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite db path (default: <data>/worlds/<world>/index/world.sqlite)")
	cmd.Flags().IntVar(&limit, "limit", 20, "result limit")
	cmd.Flags().StringVar(&kind, "kind", "", "event kind filter (events)")
	cmd.Flags().Uint64Var(&sinceTick, "since_tick", 0, "first tick (events)")
	return cmd
}
