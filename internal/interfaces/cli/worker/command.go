package worker

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/paysettle/paysettle/internal/infrastructure/database"
	"github.com/paysettle/paysettle/internal/interfaces/cli/bootstrap"
	httpRouter "github.com/paysettle/paysettle/internal/interfaces/http"
)

var env string

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the background reconciler",
		Long:  `Run the checkout scheduler and payment pollers without serving HTTP. Pair it with "server --no-background".`,
		RunE:  run,
	}

	cmd.Flags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	env = bootstrap.ResolveEnv(env)

	cfg, log, err := bootstrap.Init(env)
	if err != nil {
		return err
	}
	defer database.Close()

	log.Infow("starting worker", "environment", env)

	container, err := httpRouter.NewContainer(database.Get(), cfg, log)
	if err != nil {
		return fmt.Errorf("failed to build container: %w", err)
	}
	defer container.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container.StartBackground(ctx)
	<-ctx.Done()

	log.Infow("worker stopping")
	return nil
}
