package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/responsa-ai/responsa/pkg/dataset"
	"github.com/responsa-ai/responsa/pkg/fault"
	"github.com/responsa-ai/responsa/pkg/inference"
)

func newCheckCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify connectivity to the data and inference providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			data := dataset.New(cfg.Dataset)
			provider, err := inference.New(cfg.Inference)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Health.ProbeTimeout)
			defer cancel()

			failed := false
			probe := func(name string, fn func(context.Context) error) {
				start := time.Now()
				if err := fn(ctx); err != nil {
					failed = true
					fmt.Printf("%-10s FAIL  %s\n", name, fault.Message(err))
					return
				}
				fmt.Printf("%-10s OK    %s\n", name, time.Since(start).Round(time.Millisecond))
			}
			probe("data", data.Probe)
			probe("inference", provider.Probe)

			if failed {
				return fmt.Errorf("one or more dependency checks failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (default: environment only)")
	return cmd
}
