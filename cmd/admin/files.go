package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"aetherlib.ai/internal/persistence/archive"
	persistlog "aetherlib.ai/internal/persistence/log"
	"aetherlib.ai/internal/persistence/snapshot"
	"aetherlib.ai/internal/sim/aether"
)

func snapshotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List snapshot files, newest last",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir := filepath.Join(worldDir(), "snapshots")
			ticks, err := snapshot.List(dir)
			if err != nil {
				return err
			}
			for _, tick := range ticks {
				h, err := snapshot.ReadHeader(filepath.Join(dir, snapshot.FileName(tick)))
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%d\tunreadable: %v\n", tick, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\tv%d\t%s\n", h.Tick, h.Version, h.WorldID)
			}
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "inspect [path]",
		Short: "Summarize a snapshot (default: latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := snapshotArg(args)
			if err != nil {
				return err
			}
			snap, err := snapshot.ReadSnapshot(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "snapshot v%d world=%s tick=%d seed=%d tick_rate=%d rules=%s\n",
				snap.Header.Version, snap.Header.WorldID, snap.Header.Tick, snap.Seed, snap.TickRate, snap.RulesDigest)
			fmt.Fprintf(out, "regions=%d sources=%d nodes=%d\n", len(snap.Deltas), len(snap.Sources), len(snap.Nodes))
			for _, rd := range snap.Deltas {
				parts := make([]string, 0, len(rd.Aspects))
				for _, a := range rd.Aspects {
					parts = append(parts, fmt.Sprintf("%s=%g", a.Aspect, a.Amount))
				}
				fmt.Fprintf(out, "  delta %s: %s\n", rd.Region, strings.Join(parts, " "))
			}
			for _, n := range snap.Nodes {
				fmt.Fprintf(out, "  node %s %s at %v age=%d instability=%d hunger=%d aspects=%d\n",
					n.ID, n.Type, n.Pos, n.Age, n.Instability, n.Hunger, len(n.Aspects))
			}
			return nil
		},
	})
	return cmd
}

func archivesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archives",
		Short: "List archived epoch snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			metas, err := archive.ReadEpochs(worldDir())
			if err != nil {
				return err
			}
			for _, m := range metas {
				fmt.Fprintf(cmd.OutOrStdout(), "epoch %03d\ttick=%d\trules=%s\tregions=%d\tnodes=%d\t%s\n",
					m.Epoch, m.Tick, m.RulesDigest, m.Regions, m.Nodes, m.Snapshot)
			}
			return nil
		},
	}
}

func snapshotArg(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	path, ok, err := snapshot.Latest(filepath.Join(worldDir(), "snapshots"))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("no snapshot found for world %s", worldID)
	}
	return path, nil
}

func eventsCmd() *cobra.Command {
	var (
		kind     string
		from, to uint64
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print tick events from the JSONL logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			files, err := persistlog.Files(filepath.Join(worldDir(), "events"), "events")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, f := range files {
				entries, err := persistlog.ReadFile[aether.TickLogEntry](f)
				if err != nil {
					return fmt.Errorf("%s: %w", filepath.Base(f), err)
				}
				for _, e := range entries {
					if !tickInRange(e.Tick, from, to) {
						continue
					}
					for _, ev := range e.Events {
						if kind != "" && !strings.EqualFold(kind, ev.Kind) {
							continue
						}
						fmt.Fprintf(out, "%d\t%s\t%s\t%s\t%v\t%s\n", e.Tick, ev.Kind, ev.NodeID, ev.NodeType, ev.Pos, ev.Reason)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "only events of this kind")
	cmd.Flags().Uint64Var(&from, "from_tick", 0, "first tick (inclusive)")
	cmd.Flags().Uint64Var(&to, "to_tick", 0, "last tick (inclusive, 0 = no limit)")
	return cmd
}

func auditCmd() *cobra.Command {
	var action string
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Print operator and rule-change audit entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			files, err := persistlog.Files(filepath.Join(worldDir(), "audit"), "audit")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, f := range files {
				entries, err := persistlog.ReadFile[aether.AuditEntry](f)
				if err != nil {
					return fmt.Errorf("%s: %w", filepath.Base(f), err)
				}
				for _, e := range entries {
					if action != "" && !strings.EqualFold(action, e.Action) {
						continue
					}
					fmt.Fprintf(out, "%d\t%s\t%s\t%v\n", e.Tick, e.Actor, e.Action, e.Pos)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&action, "action", "", "only entries with this action")
	return cmd
}

func tickInRange(tick, from, to uint64) bool {
	if tick < from {
		return false
	}
	return to == 0 || tick <= to
}
