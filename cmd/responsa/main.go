package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "responsa",
		Short:   "Question gateway over a hosted dataset",
		Version: version,
	}

	root.AddCommand(
		newServeCmd(),
		newCheckCmd(),
		newAskCmd(),
		newStatusCmd(),
		newReloadCmd(),
		newUsageCmd(),
		newCacheCmd(),
		newAuditCmd(),
		newBudgetCmd(),
		newMCPCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
