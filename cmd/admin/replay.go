package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"aetherlib.ai/internal/persistence/snapshot"
	"aetherlib.ai/internal/sim/aether"
	"aetherlib.ai/internal/sim/catalogs"
	"aetherlib.ai/internal/sim/density"
	"aetherlib.ai/internal/sim/tuning"
	"aetherlib.ai/internal/sim/worldgen"
)

type replayOptions struct {
	configDir  string
	tuningPath string
	ticks      int
	out        string
}

// replayCmd restores a snapshot offline and advances it without a server.
func replayCmd() *cobra.Command {
	var opts replayOptions
	cmd := &cobra.Command{
		Use:   "replay [snapshot]",
		Short: "Load a snapshot and advance the simulation offline",
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
			rt, err := restore(snap, opts)
			if err != nil {
				return err
			}
			counts, err := advance(cmd.Context(), rt, opts.ticks)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "replayed %s: tick %d -> %d, nodes=%d\n",
				filepath.Base(path), snap.Header.Tick, rt.CurrentTick(), len(rt.Nodes()))
			keys := make([]string, 0, len(counts))
			for k := range counts {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "  %s=%d\n", k, counts[k])
			}
			if opts.out != "" {
				if err := snapshot.WriteSnapshot(opts.out, rt.ExportSnapshot()); err != nil {
					return err
				}
				fmt.Fprintf(out, "wrote %s\n", opts.out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.configDir, "configs", "./configs", "config directory")
	cmd.Flags().StringVar(&opts.tuningPath, "tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
	cmd.Flags().IntVar(&opts.ticks, "ticks", 100, "ticks to advance")
	cmd.Flags().StringVar(&opts.out, "out", "", "write the resulting snapshot here (optional)")
	return cmd
}

func restore(snap snapshot.SnapshotV1, opts replayOptions) (*aether.Runtime, error) {
	tp := opts.tuningPath
	if tp == "" {
		tp = filepath.Join(opts.configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if errors.Is(err, os.ErrNotExist) {
		tune, err = tuning.Load("")
	}
	if err != nil {
		return nil, fmt.Errorf("tuning: %w", err)
	}
	wcfg, err := tune.WorldConfig(snap.Seed)
	if err != nil {
		return nil, err
	}
	corrCfg, err := tune.CorruptionConfig()
	if err != nil {
		return nil, err
	}
	nodeCfg, err := tune.NodeConfig()
	if err != nil {
		return nil, err
	}
	cats, err := catalogs.Load(opts.configDir, zap.NewNop())
	if err != nil {
		return nil, fmt.Errorf("catalogs: %w", err)
	}

	log := zap.NewNop()
	rt, err := aether.New(aether.Config{
		WorldID:    snap.Header.WorldID,
		Seed:       wcfg.Seed,
		TickRateHz: snap.TickRate,
		Workers:    tune.Workers,
		Density:    density.Options{ClampNegative: tune.ClampNegative},
		Corruption: corrCfg,
		Node:       nodeCfg,
	}, worldgen.New(wcfg, log), aether.NewMetrics(prometheus.NewRegistry()), log)
	if err != nil {
		return nil, err
	}
	rt.Reload(cats)
	if err := rt.ImportSnapshot(snap); err != nil {
		return nil, err
	}
	return rt, nil
}

// advance steps rt n times and tallies terminations by reason along with
// corruption activity.
func advance(ctx context.Context, rt *aether.Runtime, n int) (map[string]int, error) {
	counts := map[string]int{}
	for i := 0; i < n; i++ {
		rep, err := rt.Step(ctx)
		if err != nil {
			return counts, err
		}
		for _, term := range rep.Terminated {
			counts["terminated_"+term.Reason.String()]++
		}
		counts["regions_converted"] += rep.Corruption.RegionsConverted
		counts["mutations_attempted"] += rep.Corruption.MutationsAttempted
	}
	return counts, nil
}
