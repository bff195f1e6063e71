package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/prequal-cli/internal/jobs"
)

var syncLocal bool

var syncCmd = &cobra.Command{
	Use:   "sync <application-id>",
	Short: "Deliver a completed application to the integrators",
	Long:  "Manually drives the webhook sync. A sync stuck in failed is reset and retried; an already delivered application is a no-op.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		applicationID := args[0]

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if syncLocal {
			return e.Deliverer.Sync(ctx, applicationID)
		}

		tc, err := jobs.Dial(ctx, cfg.Temporal)
		if err != nil {
			return err
		}
		defer tc.Close()

		runID, err := jobs.NewStarter(tc, cfg).StartSync(ctx, jobs.SyncInput{ApplicationID: applicationID})
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(map[string]string{"run_id": runID})
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncLocal, "local", false, "deliver in-process instead of via the worker")
	rootCmd.AddCommand(syncCmd)
}
