package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/prequal-cli/internal/jobs"
	"github.com/sells-group/prequal-cli/internal/webhook"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background worker",
	Long:  "Polls the Temporal task queue for fetch and sync workflows and runs the periodic retry sweep for failed webhook deliveries.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		tc, err := jobs.Dial(ctx, cfg.Temporal)
		if err != nil {
			return err
		}
		defer tc.Close()

		scheduler := webhook.NewScheduler(e.Store, e.Deliverer, e.Alerter, cfg.Webhook)
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		defer scheduler.Stop()

		w := jobs.NewWorker(tc, cfg.Temporal, &jobs.Activities{
			Store:     e.Store,
			Runner:    e.Runner,
			Attrs:     e.Attrs,
			Deliverer: e.Deliverer,
			Alerter:   e.Alerter,
		})
		return w.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
