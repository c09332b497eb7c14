package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/responsa-ai/responsa/pkg/usage"
)

func newUsageCmd() *cobra.Command {
	var (
		configPath string
		since      string
		recent     bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show recorded token usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := localConfig(configPath)
			if err != nil {
				return err
			}

			tr, err := usage.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = tr.Close() }()

			sinceTime := beginningOfMonth()
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				sinceTime = t
			}

			ctx := cmd.Context()

			// Per-question view
			if recent {
				recs, err := tr.Recent(ctx, sinceTime, limit)
				if err != nil {
					return err
				}
				if len(recs) == 0 {
					fmt.Println("No usage records found.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tMODEL\tOUTCOME\tPROMPT\tCOMPLETION\tTOTAL\tCACHE\tLATENCY")
				for _, r := range recs {
					cache := ""
					if r.CacheHit {
						cache = "hit"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%dms\n",
						r.CreatedAt.Format("2006-01-02T15:04:05"), r.Model, r.Outcome,
						r.PromptTokens, r.CompletionTokens, r.TotalTokens, cache, r.LatencyMs)
				}
				return w.Flush()
			}

			// Default: daily summary per model
			summaries, err := tr.Summary(ctx, sinceTime)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println("No usage data found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DAY\tMODEL\tREQUESTS\tCACHED\tPROMPT\tCOMPLETION\tTOTAL")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
					s.Day, s.Model, s.RequestCount, s.CacheHits, s.TotalPrompt, s.TotalCompletion, s.TotalTokens)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD, default: start of month)")
	cmd.Flags().BoolVar(&recent, "recent", false, "list individual records instead of the summary")
	cmd.Flags().IntVar(&limit, "limit", 50, "max records with --recent")
	return cmd
}

func beginningOfMonth() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
