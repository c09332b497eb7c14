package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/responsa-ai/responsa/pkg/gateway"
	"github.com/responsa-ai/responsa/pkg/metric"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the question gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			slog.SetDefault(log)

			m := metric.New()
			eng, cleanup, err := buildEngine(cfg, log, m)
			if err != nil {
				return err
			}
			defer cleanup()

			srv := gateway.New(cfg, eng, m, log)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info("starting responsa", "version", version, "config", cfg.String())
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (default: environment only)")
	return cmd
}
