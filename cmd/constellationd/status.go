package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newStatusCmd(configPath *string) *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the effective config, and a running node's consensus metrics if --target is set",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(*configPath)
			if err != nil {
				return err
			}
			printConfigTable(cfg)
			printPeerTable(cfg)

			if target == "" {
				return nil
			}
			status, err := fetchConsensusStatus(cmd.Context(), target)
			if err != nil {
				return fmt.Errorf("fetch consensus status from %s: %w", target, err)
			}
			printMetricsTable(status.Metrics)
			printLastAcceptedTable(status.LastAccepted)
			return nil
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "base URL of a running node to query for live consensus status (e.g. http://localhost:7391)")
	return cmd
}

// fetchConsensusStatus queries a running node's /consensus/status endpoint,
// the same one cmd/constellationd/run.go serves alongside the peer surface.
func fetchConsensusStatus(ctx context.Context, target string) (consensusStatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target+"/consensus/status", nil)
	if err != nil {
		return consensusStatusResponse{}, err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return consensusStatusResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return consensusStatusResponse{}, fmt.Errorf("status %d", resp.StatusCode)
	}

	var out consensusStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return consensusStatusResponse{}, err
	}
	return out, nil
}

func printConfigTable(cfg Config) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Setting", "Value"})
	t.AppendRows([]table.Row{
		{"listen_addr", cfg.ListenAddr},
		{"substore_capacity", cfg.SubstoreCapacity},
		{"recent_snapshot_number", cfg.RecentSnapshotNumber},
		{"snapshot_height_redownload_delay_interval", cfg.SnapshotHeightRedownloadDelayInterval},
		{"max_invalid_snapshot_rate", fmt.Sprintf("%d%%", cfg.MaxInvalidSnapshotRate)},
		{"peer_fanout_per_second", cfg.PeerFanoutPerSecond},
		{"health_check_interval", cfg.HealthCheckInterval.Round(time.Second)},
	})
	t.Render()
}

func printPeerTable(cfg Config) {
	if len(cfg.Peers) == 0 {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Endpoint", "Full"})
	for _, p := range cfg.Peers {
		t.AppendRow(table.Row{p.ID, p.Endpoint, p.Full})
	}
	t.Render()
}

// printMetricsTable renders the target node's LifecycleStore.GetMetricsMap.
func printMetricsTable(metrics map[string]int) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Status", "Count"})
	for _, status := range []string{"pending", "inConsensus", "accepted", "unknown"} {
		t.AppendRow(table.Row{status, metrics[status]})
	}
	t.Render()
}

// printLastAcceptedTable renders the target node's
// LifecycleStore.GetLast20Accepted, oldest first.
func printLastAcceptedTable(accepted []snapshotRecord) {
	if len(accepted) == 0 {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Hash", "Height"})
	for _, a := range accepted {
		t.AppendRow(table.Row{a.HashValue, a.Height})
	}
	t.Render()
}
