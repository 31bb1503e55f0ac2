package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gitmirror/gitmirror/internal/service"
)

func init() {
	var (
		addr string
		once bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the built-in scheduler, executing sync and push on the configured interval",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err = service.New(cfg, logger).
				WithMetricsAddr(addr).
				WithSingleShot(once).
				Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "serve Prometheus metrics on this address (empty disables)")
	cmd.Flags().BoolVar(&once, "once", false, "run a single iteration and exit")

	RootCmd.AddCommand(cmd)
}
