package jobs

import (
	"context"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/sells-group/prequal-cli/internal/config"
)

// Starter enqueues fetch and sync workflows. Workflow IDs are derived from
// the application so duplicate submissions of the same work dedupe on the
// server.
type Starter struct {
	client client.Client
	cfg    *config.Config
}

// NewStarter creates a Starter.
func NewStarter(c client.Client, cfg *config.Config) *Starter {
	return &Starter{client: c, cfg: cfg}
}

// StartFetch enqueues a single-provider fetch and returns the run id.
func (s *Starter) StartFetch(ctx context.Context, in FetchInput) (string, error) {
	run, err := s.client.ExecuteWorkflow(ctx, s.options(in.ApplicationID+"/fetch/"+in.Provider), FetchWorkflowName, in)
	if err != nil {
		return "", eris.Wrapf(err, "jobs: start fetch for %s", in.Provider)
	}
	zap.L().Info("jobs: fetch enqueued",
		zap.String("application_id", in.ApplicationID),
		zap.String("provider", in.Provider),
		zap.String("run_id", run.GetRunID()),
	)
	return run.GetRunID(), nil
}

// StartFetchAll enqueues the full-provider fan-out and returns the run id.
func (s *Starter) StartFetchAll(ctx context.Context, in FetchAllInput) (string, error) {
	run, err := s.client.ExecuteWorkflow(ctx, s.options(in.ApplicationID+"/fetch-all"), FetchAllWorkflowName, in)
	if err != nil {
		return "", eris.Wrap(err, "jobs: start fetch-all")
	}
	zap.L().Info("jobs: fetch-all enqueued",
		zap.String("application_id", in.ApplicationID),
		zap.Int("providers", len(in.Providers)),
		zap.String("run_id", run.GetRunID()),
	)
	return run.GetRunID(), nil
}

// StartSync enqueues a webhook delivery and returns the run id.
func (s *Starter) StartSync(ctx context.Context, in SyncInput) (string, error) {
	run, err := s.client.ExecuteWorkflow(ctx, s.options(in.ApplicationID+"/sync"), SyncWorkflowName, in)
	if err != nil {
		return "", eris.Wrap(err, "jobs: start sync")
	}
	return run.GetRunID(), nil
}

// AwaitFetchAll blocks until a fetch-all run finishes and returns its
// summary. Used by the CLI foreground path.
func (s *Starter) AwaitFetchAll(ctx context.Context, applicationID, runID string) (FetchAllResult, error) {
	var out FetchAllResult
	wf := s.client.GetWorkflow(ctx, applicationID+"/fetch-all", runID)
	if err := wf.Get(ctx, &out); err != nil {
		return out, eris.Wrap(err, "jobs: await fetch-all")
	}
	return out, nil
}

func (s *Starter) options(workflowID string) client.StartWorkflowOptions {
	return client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: s.cfg.Temporal.TaskQueue,
		Memo: map[string]any{
			memoRetryKey: s.cfg.Retry,
		},
	}
}
