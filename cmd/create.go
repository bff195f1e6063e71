package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prequal-cli/internal/model"
)

var (
	createCompanyID string
	createName      string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new prequalification application",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if createCompanyID == "" {
			return eris.New("--company-id is required")
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		app := &model.Application{
			CompanyID: createCompanyID,
			Name:      createName,
		}
		if err := e.Store.CreateApplication(ctx, app); err != nil {
			return err
		}

		zap.L().Info("application created",
			zap.String("application_id", app.ID),
			zap.String("company_id", app.CompanyID),
		)
		return json.NewEncoder(os.Stdout).Encode(app)
	},
}

func init() {
	createCmd.Flags().StringVar(&createCompanyID, "company-id", "", "company reference number (required)")
	createCmd.Flags().StringVar(&createName, "name", "", "application display name")
	rootCmd.AddCommand(createCmd)
}
