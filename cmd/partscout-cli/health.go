package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/elabx-org/partscout/internal/api"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check service health and provider status (exits 1 if degraded)",
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	c := newAPIClient(10 * time.Second)
	c.retries = 0

	var h api.HealthResponse
	if err := c.call("GET", "/v1/health", nil, &h); err != nil {
		return fmt.Errorf("cannot reach partscout: %w", err)
	}

	w := cmd.OutOrStdout()
	started := time.Now().Add(-time.Duration(h.Uptime) * time.Second)
	fmt.Fprintf(w, "status: %s  started %s\n", h.Status, humanize.Time(started))
	for _, p := range h.Providers {
		fmt.Fprintf(w, "  %-16s  %-12s  %-8s  %-15s  priority %d\n", p.Name, p.Kind, p.Auth, p.Status, p.Priority)
	}
	if h.Credentials != nil {
		fmt.Fprintf(w, "credentials: %s loads, %s cache hits\n", humanize.Comma(h.Credentials.Loads), humanize.Comma(h.Credentials.Hits))
	}
	if h.Secrets != nil {
		line := fmt.Sprintf("secrets: %s", h.Secrets.Status)
		if h.Secrets.LatencyMs > 0 {
			line += fmt.Sprintf(" (%dms)", h.Secrets.LatencyMs)
		}
		if h.Secrets.Error != "" {
			line += "  error: " + h.Secrets.Error
		}
		fmt.Fprintln(w, line)
	}

	if h.Status != "ok" {
		return fmt.Errorf("partscout status: %s", h.Status)
	}
	return nil
}
