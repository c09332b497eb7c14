package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/responsa-ai/responsa/pkg/models"
)

func newReloadCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Drop the gateway's cached state",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp models.ReloadResponse
			if err := callGateway(cmd.Context(), http.MethodPost, addr, "/reload", nil, &resp); err != nil {
				return err
			}
			fmt.Println("Cached state cleared. The next question reloads the dataset.")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "gateway address")
	return cmd
}
