package main

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/responsa-ai/responsa/pkg/models"
)

func newStatusCmd() *cobra.Command {
	var (
		addr      string
		withStats bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show gateway health, optionally with dataset stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			var rep models.HealthReport
			if err := callGateway(cmd.Context(), http.MethodGet, addr, "/health", nil, &rep); err != nil {
				return err
			}

			fmt.Printf("Status:      %s\n", rep.Status)
			fmt.Printf("Environment: %s\n", rep.Environment)
			if rep.Version != "" {
				fmt.Printf("Version:     %s\n", rep.Version)
			}
			fmt.Printf("Dataset:     loaded=%v rows=%d\n", rep.DatasetLoaded, rep.RowCount)

			names := make([]string, 0, len(rep.Dependencies))
			for name := range rep.Dependencies {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				dep := rep.Dependencies[name]
				fmt.Printf("  %-10s %-5s %6dms", name, dep.Status, dep.LatencyMs)
				if dep.Error != "" {
					fmt.Printf("  %s", dep.Error)
				}
				fmt.Println()
			}

			// Stats force a dataset load on a freshly started gateway,
			// so they stay behind a flag.
			if !withStats {
				return nil
			}

			var st models.StatsSnapshot
			if err := callGateway(cmd.Context(), http.MethodGet, addr, "/stats", nil, &st); err != nil {
				return err
			}
			fmt.Printf("\nTable:        %s\n", st.Table)
			fmt.Printf("Rows:         %d\n", st.RowCount)
			fmt.Printf("Last updated: %s\n", st.LastUpdated.Format("2006-01-02 15:04:05 MST"))
			fmt.Printf("Columns:      %s\n", strings.Join(st.Columns, ", "))
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "gateway address")
	cmd.Flags().BoolVar(&withStats, "stats", false, "also fetch dataset stats")
	return cmd
}
