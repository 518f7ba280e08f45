package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var baseURL string

// addHTTPCommands registers commands that talk to a running server's
// loopback admin API.
func addHTTPCommands(root *cobra.Command) {
	root.PersistentFlags().StringVar(&baseURL, "url", "http://127.0.0.1:8080", "server base url")

	var pos [3]int
	posFlags := func(c *cobra.Command) {
		c.Flags().IntVar(&pos[0], "x", 0, "x")
		c.Flags().IntVar(&pos[1], "y", 64, "y")
		c.Flags().IntVar(&pos[2], "z", 0, "z")
	}
	posQuery := func() url.Values {
		return url.Values{
			"x": {strconv.Itoa(pos[0])},
			"y": {strconv.Itoa(pos[1])},
			"z": {strconv.Itoa(pos[2])},
		}
	}

	state := &cobra.Command{
		Use:   "state",
		Short: "Show world id, tick and session count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return call(cmd, http.MethodGet, "state", nil)
		},
	}

	report := &cobra.Command{
		Use:   "report",
		Short: "Report the aether density at a position",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return call(cmd, http.MethodGet, "density", posQuery())
		},
	}
	posFlags(report)

	densities := &cobra.Command{
		Use:   "densities",
		Short: "List every loaded region's base density",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return call(cmd, http.MethodGet, "densities", nil)
		},
	}

	var amount float64
	inject := &cobra.Command{
		Use:   "inject",
		Short: "Inject vitium into the region at a position",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := posQuery()
			if amount > 0 {
				q.Set("amount", strconv.FormatFloat(amount, 'f', -1, 64))
			}
			return call(cmd, http.MethodPost, "corruption", q)
		},
	}
	posFlags(inject)
	inject.Flags().Float64Var(&amount, "amount", 0, "amount to inject (default: server default)")

	nodes := &cobra.Command{
		Use:   "nodes",
		Short: "List aura nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return call(cmd, http.MethodGet, "nodes", nil)
		},
	}
	var nodeType string
	spawn := &cobra.Command{
		Use:   "spawn",
		Short: "Spawn a node of a given type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := posQuery()
			q.Set("type", nodeType)
			return call(cmd, http.MethodPost, "nodes", q)
		},
	}
	posFlags(spawn)
	spawn.Flags().StringVar(&nodeType, "type", "", "node type (normal, pure, sinister, unstable, hungry)")
	_ = spawn.MarkFlagRequired("type")
	nodes.AddCommand(spawn, &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodDelete, "nodes", url.Values{"id": {args[0]}})
		},
	})

	reload := &cobra.Command{
		Use:   "reload",
		Short: "Reload catalogs from the server's config directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return call(cmd, http.MethodPost, "reload", nil)
		},
	}

	snap := &cobra.Command{
		Use:   "snapshot",
		Short: "Ask the server to write a snapshot now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return call(cmd, http.MethodPost, "snapshot", nil)
		},
	}

	root.AddCommand(state, report, densities, inject, nodes, reload, snap)
}

func call(cmd *cobra.Command, method, endpoint string, q url.Values) error {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/admin/v1/" + endpoint
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(cmd.Context(), method, u, nil)
	if err != nil {
		return err
	}
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		cmd.SilenceErrors = true
		os.Exit(1)
	}
	return nil
}
