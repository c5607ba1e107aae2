package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/paysettle/paysettle/internal/interfaces/cli/migrate"
	"github.com/paysettle/paysettle/internal/interfaces/cli/server"
	"github.com/paysettle/paysettle/internal/interfaces/cli/worker"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "paysettle",
		Short: "PaySettle - checkout and payment settlement service",
		Long:  `PaySettle takes storefront orders, opens card and crypto payment intents, and settles orders once processors or the chain confirm payment.`,
	}

	rootCmd.AddCommand(
		server.NewCommand(),
		worker.NewCommand(),
		migrate.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
