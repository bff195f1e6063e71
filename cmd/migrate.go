package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/prequal-cli/internal/model"
)

var migrateAttributesFile string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema and seed the attribute catalogue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		attrs := model.DefaultAttributes()
		if migrateAttributesFile != "" {
			attrs, err = readAttributesFile(migrateAttributesFile)
			if err != nil {
				return err
			}
		}
		if err := st.SeedAttributes(ctx, attrs); err != nil {
			return err
		}

		zap.L().Info("migration complete",
			zap.String("driver", cfg.Store.Driver),
			zap.Int("attributes", len(attrs)),
		)
		return nil
	},
}

// readAttributesFile loads a YAML attribute catalogue, for deployments that
// extend or trim the built-in form fields.
func readAttributesFile(path string) ([]model.Attribute, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read attributes file %s", path)
	}
	var attrs []model.Attribute
	if err := yaml.Unmarshal(data, &attrs); err != nil {
		return nil, eris.Wrapf(err, "parse attributes file %s", path)
	}
	if len(attrs) == 0 {
		return nil, eris.Errorf("attributes file %s is empty", path)
	}
	for _, a := range attrs {
		if a.Key == "" {
			return nil, eris.Errorf("attributes file %s has an entry without a key", path)
		}
	}
	return attrs, nil
}

func init() {
	migrateCmd.Flags().StringVar(&migrateAttributesFile, "attributes", "", "YAML file overriding the built-in attribute catalogue")
	rootCmd.AddCommand(migrateCmd)
}
