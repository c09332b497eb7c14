package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/responsa-ai/responsa/pkg/models"
)

func newAskCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the running gateway a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")

			var resp models.AskResponse
			err := callGateway(cmd.Context(), http.MethodPost, addr, "/ask",
				models.AskRequest{Question: question}, &resp)
			if err != nil {
				return err
			}
			fmt.Println(resp.Answer)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "gateway address")
	return cmd
}
