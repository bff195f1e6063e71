package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prequal-cli/internal/jobs"
	"github.com/sells-group/prequal-cli/internal/model"
	"github.com/sells-group/prequal-cli/internal/pipeline"
	"github.com/sells-group/prequal-cli/internal/resilience"
)

var (
	fetchProvider string
	fetchLocal    bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <application-id>",
	Short: "Fetch provider data into an application",
	Long:  "Enqueues fetch workflows for one or all providers. With --local the pipeline runs in-process without a Temporal server, applying the same bounded retry before failed fields fall back to manual entry.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		applicationID := args[0]

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		app, err := e.Store.GetApplication(ctx, applicationID)
		if err != nil {
			return err
		}
		if app.Finalized() {
			return eris.Errorf("application %s is already completed", applicationID)
		}

		providers := e.Runner.Providers()
		if fetchProvider != "" {
			providers = []string{fetchProvider}
		}

		if fetchLocal {
			return fetchInProcess(ctx, os.Stdout, e, app, providers)
		}

		tc, err := jobs.Dial(ctx, cfg.Temporal)
		if err != nil {
			return err
		}
		defer tc.Close()
		starter := jobs.NewStarter(tc, cfg)

		if fetchProvider != "" {
			runID, err := starter.StartFetch(ctx, jobs.FetchInput{
				ApplicationID: app.ID,
				CompanyID:     app.CompanyID,
				Provider:      fetchProvider,
			})
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(map[string]string{"run_id": runID})
		}

		runID, err := starter.StartFetchAll(ctx, jobs.FetchAllInput{
			ApplicationID: app.ID,
			CompanyID:     app.CompanyID,
			Providers:     providers,
		})
		if err != nil {
			return err
		}
		result, err := starter.AwaitFetchAll(ctx, app.ID, runID)
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(result)
	},
}

// fetchInProcess runs provider pipelines directly, one at a time, retrying
// retryable failures with the configured backoff. Failures are isolated per
// provider and recorded in the fetch status map the same way the worker path
// records them.
func fetchInProcess(ctx context.Context, out io.Writer, e *env, app *model.Application, providers []string) error {
	summary := make(map[string]string, len(providers))

	for _, provider := range providers {
		if err := e.Store.SetFetchStatus(ctx, app.ID, provider, model.FetchStatus{
			State: model.FetchProcessing,
		}); err != nil {
			return err
		}

		retryCfg := e.Retry
		retryCfg.ShouldRetry = pipeline.Retryable
		retryCfg.OnRetry = resilience.RetryLogger("fetch", provider)

		// run.Err carries the terminal failure, so Do's return is redundant.
		var run pipeline.RunResult
		_ = resilience.Do(ctx, retryCfg, func(ctx context.Context) error {
			run = e.Runner.Run(ctx, provider, pipeline.Input{
				ApplicationID: app.ID,
				CompanyID:     app.CompanyID,
			})
			if run.Failed() {
				return run.Err
			}
			return nil
		})
		if run.Failed() {
			summary[provider] = "failed: " + run.Err.Message
			keys := e.Attrs.KeysByProvider(provider)
			if err := e.Store.RollbackProvider(ctx, app.ID, keys); err != nil {
				return err
			}
			if err := e.Store.SetFetchStatus(ctx, app.ID, provider, model.FetchStatus{
				State: model.FetchFailed,
				Error: run.Err.Error(),
			}); err != nil {
				return err
			}
			zap.L().Warn("fetch failed, fields switched to manual entry",
				zap.String("provider", provider),
				zap.Error(run.Err),
			)
			continue
		}

		summary[provider] = "completed"
		if err := e.Store.SetFetchStatus(ctx, app.ID, provider, model.FetchStatus{
			State:        model.FetchCompleted,
			FieldsFilled: run.FieldsFilled,
		}); err != nil {
			return err
		}
	}
	return json.NewEncoder(out).Encode(summary)
}

func init() {
	fetchCmd.Flags().StringVar(&fetchProvider, "provider", "", "fetch a single provider instead of all")
	fetchCmd.Flags().BoolVar(&fetchLocal, "local", false, "run the pipeline in-process instead of via the worker")
	rootCmd.AddCommand(fetchCmd)
}
