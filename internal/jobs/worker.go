package jobs

import (
	"context"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/sells-group/prequal-cli/internal/config"
)

// Worker polls the task queue and executes fetch and sync workflows.
type Worker struct {
	w worker.Worker
}

// NewWorker builds a worker with all workflows and activities registered.
func NewWorker(c client.Client, cfg config.TemporalConfig, acts *Activities) *Worker {
	w := worker.New(c, cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     8,
		MaxConcurrentWorkflowTaskExecutionSize: 8,
	})

	w.RegisterWorkflowWithOptions(FetchWorkflow, workflow.RegisterOptions{Name: FetchWorkflowName})
	w.RegisterWorkflowWithOptions(FetchAllWorkflow, workflow.RegisterOptions{Name: FetchAllWorkflowName})
	w.RegisterWorkflowWithOptions(SyncWorkflow, workflow.RegisterOptions{Name: SyncWorkflowName})

	w.RegisterActivityWithOptions(acts.FetchProvider, activity.RegisterOptions{Name: ActivityFetchProvider})
	w.RegisterActivityWithOptions(acts.Rollback, activity.RegisterOptions{Name: ActivityRollback})
	w.RegisterActivityWithOptions(acts.Deliver, activity.RegisterOptions{Name: ActivityDeliver})

	return &Worker{w: w}
}

// Run starts the worker and blocks until the context is canceled.
func (wk *Worker) Run(ctx context.Context) error {
	if err := wk.w.Start(); err != nil {
		return eris.Wrap(err, "jobs: start worker")
	}
	zap.L().Info("jobs: worker started")
	<-ctx.Done()
	wk.w.Stop()
	zap.L().Info("jobs: worker stopped")
	return nil
}
