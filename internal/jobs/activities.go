package jobs

import (
	"context"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/sells-group/prequal-cli/internal/model"
	"github.com/sells-group/prequal-cli/internal/monitoring"
	"github.com/sells-group/prequal-cli/internal/pipeline"
	"github.com/sells-group/prequal-cli/internal/store"
	"github.com/sells-group/prequal-cli/internal/webhook"
)

// Activities bundles the collaborators fetch and sync activities run
// against. The alerter may be nil.
type Activities struct {
	Store     store.Store
	Runner    *pipeline.Runner
	Attrs     *model.AttributeRegistry
	Deliverer *webhook.Deliverer
	Alerter   *monitoring.Alerter
}

// FetchProvider runs one provider pipeline for one application and records
// the fetch status. Fatal pipeline failures come back as non-retryable
// application errors so Temporal stops the retry loop.
func (a *Activities) FetchProvider(ctx context.Context, in FetchInput) (FetchResult, error) {
	result := FetchResult{Provider: in.Provider}

	app, err := a.Store.GetApplication(ctx, in.ApplicationID)
	if err != nil {
		return result, err
	}
	if app.Finalized() {
		zap.L().Info("jobs: application already completed, skipping fetch",
			zap.String("application_id", in.ApplicationID),
			zap.String("provider", in.Provider),
		)
		result.Skipped = true
		return result, nil
	}

	if err := a.Store.SetFetchStatus(ctx, in.ApplicationID, in.Provider, model.FetchStatus{
		State: model.FetchProcessing,
	}); err != nil {
		return result, err
	}

	run := a.Runner.Run(ctx, in.Provider, pipeline.Input{
		ApplicationID: in.ApplicationID,
		CompanyID:     in.CompanyID,
	})
	if run.Failed() {
		if !pipeline.Retryable(run.Err) {
			if run.Err.Kind == pipeline.KindContract && a.Alerter != nil {
				a.Alerter.ContractViolation(ctx, in.ApplicationID, in.Provider, run.Err)
			}
			return result, temporal.NewNonRetryableApplicationError(run.Err.Error(), ErrTypeFatal, run.Err)
		}
		return result, run.Err
	}

	if err := a.Store.SetFetchStatus(ctx, in.ApplicationID, in.Provider, model.FetchStatus{
		State:        model.FetchCompleted,
		FieldsFilled: run.FieldsFilled,
	}); err != nil {
		return result, err
	}
	result.FieldsFilled = run.FieldsFilled
	return result, nil
}

// Rollback clears the provider's auto-filled fields after the fetch retry
// budget is spent, marks them for manual entry and records the failed fetch
// status. Values a human already entered stay untouched.
func (a *Activities) Rollback(ctx context.Context, in RollbackInput) error {
	keys := a.Attrs.KeysByProvider(in.Provider)
	if err := a.Store.RollbackProvider(ctx, in.ApplicationID, keys); err != nil {
		return err
	}
	if err := a.Store.SetFetchStatus(ctx, in.ApplicationID, in.Provider, model.FetchStatus{
		State: model.FetchFailed,
		Error: "retries exhausted, fields switched to manual entry",
	}); err != nil {
		return err
	}

	zap.L().Warn("jobs: provider fetch rolled back to manual entry",
		zap.String("application_id", in.ApplicationID),
		zap.String("provider", in.Provider),
		zap.Int("fields", len(keys)),
	)
	if a.Alerter != nil {
		a.Alerter.FetchExhausted(ctx, in.ApplicationID, in.Provider, in.Attempts, eris.New(in.Cause))
	}
	return nil
}

// Deliver posts a completed application to the integrators. Non-retryable
// delivery failures (4xx other than 408/429) stop the Temporal retry loop.
func (a *Activities) Deliver(ctx context.Context, in SyncInput) error {
	err := a.Deliverer.Sync(ctx, in.ApplicationID)
	if err == nil {
		return nil
	}
	if !webhook.Retryable(err) {
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeFatal, err)
	}
	return err
}
