package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var completeNoSync bool

var completeCmd = &cobra.Command{
	Use:   "complete <application-id>",
	Short: "Mark an application completed and deliver it to integrators",
	Long:  "Completing an application freezes it: later fetch attempts become no-ops and only the webhook sync machinery touches it afterwards.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		applicationID := args[0]

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.Store.CompleteApplication(ctx, applicationID); err != nil {
			return err
		}
		zap.L().Info("application completed", zap.String("application_id", applicationID))

		if completeNoSync {
			return nil
		}
		return e.Deliverer.Sync(ctx, applicationID)
	},
}

func init() {
	completeCmd.Flags().BoolVar(&completeNoSync, "no-sync", false, "skip the immediate webhook delivery")
	rootCmd.AddCommand(completeCmd)
}
