package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	dataDir string
	worldID string

	rootCmd = &cobra.Command{
		Use:          "aether-admin",
		Short:        "Inspect and operate an aether world",
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "./data", "runtime data directory")
	rootCmd.PersistentFlags().StringVar(&worldID, "world", "overworld", "world id")

	rootCmd.AddCommand(worldsCmd(), snapshotsCmd(), archivesCmd(), eventsCmd(), auditCmd(), replayCmd(), dbCmd())
	addHTTPCommands(rootCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func worldDir() string { return filepath.Join(dataDir, "worlds", worldID) }

func worldsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worlds",
		Short: "List worlds under the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := os.ReadDir(filepath.Join(dataDir, "worlds"))
			if err != nil {
				return err
			}
			for _, e := range entries {
				if e.IsDir() {
					fmt.Fprintln(cmd.OutOrStdout(), e.Name())
				}
			}
			return nil
		},
	}
}
