package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prequal-cli/internal/report"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <application-id>",
	Short: "Export an application to an XLSX workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if exportOut == "" {
			return eris.New("--out is required")
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := report.NewExporter(e.Store).Export(ctx, args[0], exportOut); err != nil {
			return err
		}
		zap.L().Info("export written",
			zap.String("application_id", args[0]),
			zap.String("path", exportOut),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output .xlsx path (required)")
	rootCmd.AddCommand(exportCmd)
}
