package jobs

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/sells-group/prequal-cli/internal/config"
)

// FetchWorkflow runs one provider fetch with automated retry. Temporal owns
// the retry loop: retryable pipeline failures (timeouts, 5xx, rate limits)
// are re-attempted with backoff, fatal ones (credentials, contract
// violations, invalid documents) stop immediately. When the retry budget is
// exhausted the affected form fields are rolled back to manual entry so the
// applicant is never blocked on a dead upstream.
func FetchWorkflow(ctx workflow.Context, in FetchInput) (FetchResult, error) {
	cfg := retryPolicyFromMemo(ctx)

	actCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		HeartbeatTimeout:    90 * time.Second,
		RetryPolicy:         cfg,
	})

	var result FetchResult
	err := workflow.ExecuteActivity(actCtx, ActivityFetchProvider, in).Get(actCtx, &result)
	if err == nil || result.Skipped {
		return result, nil
	}

	// Retries are spent. Roll the provider's fields back to manual entry;
	// the rollback itself gets a short unconditional retry so a transient
	// store hiccup cannot leave half-written values behind.
	rollbackCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 5,
		},
	})
	rollback := RollbackInput{
		FetchInput: in,
		Attempts:   int(cfg.MaximumAttempts),
		Cause:      err.Error(),
	}
	if rbErr := workflow.ExecuteActivity(rollbackCtx, ActivityRollback, rollback).Get(rollbackCtx, nil); rbErr != nil {
		workflow.GetLogger(ctx).Error("rollback failed",
			"application_id", in.ApplicationID, "provider", in.Provider, "error", rbErr)
	}
	return result, err
}

// FetchAllWorkflow fans out one child FetchWorkflow per provider. Providers
// fail independently: one dead upstream never aborts the others.
func FetchAllWorkflow(ctx workflow.Context, in FetchAllInput) (FetchAllResult, error) {
	futures := make(map[string]workflow.ChildWorkflowFuture, len(in.Providers))
	for _, provider := range in.Providers {
		childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
			WorkflowID: in.ApplicationID + "/fetch/" + provider,
		})
		futures[provider] = workflow.ExecuteChildWorkflow(childCtx, FetchWorkflowName, FetchInput{
			ApplicationID: in.ApplicationID,
			CompanyID:     in.CompanyID,
			Provider:      provider,
		})
	}

	var out FetchAllResult
	for _, provider := range in.Providers {
		var result FetchResult
		if err := futures[provider].Get(ctx, &result); err != nil {
			out.Failed = append(out.Failed, provider)
			continue
		}
		out.Succeeded = append(out.Succeeded, provider)
	}
	return out, nil
}

// SyncWorkflow delivers a completed application to the configured
// integrators, retrying transient delivery failures.
func SyncWorkflow(ctx workflow.Context, in SyncInput) error {
	actCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy:         retryPolicyFromMemo(ctx),
	})
	return workflow.ExecuteActivity(actCtx, ActivityDeliver, in).Get(actCtx, nil)
}

// retryPolicyFromMemo builds the activity retry policy from the retry
// settings the starter recorded in the workflow memo, falling back to the
// compiled-in defaults when absent. Keeping the policy in the memo makes
// tuning visible in the Temporal UI per execution.
func retryPolicyFromMemo(ctx workflow.Context) *temporal.RetryPolicy {
	policy := &temporal.RetryPolicy{
		InitialInterval:        time.Second,
		BackoffCoefficient:     2.0,
		MaximumInterval:        30 * time.Second,
		MaximumAttempts:        3,
		NonRetryableErrorTypes: []string{ErrTypeFatal},
	}

	memo := workflow.GetInfo(ctx).Memo
	if memo == nil {
		return policy
	}
	payload, ok := memo.Fields[memoRetryKey]
	if !ok {
		return policy
	}
	var rc config.RetryConfig
	if err := payloadConverter().FromPayload(payload, &rc); err != nil {
		return policy
	}
	if rc.MaxAttempts > 0 {
		policy.MaximumAttempts = int32(rc.MaxAttempts)
	}
	if rc.InitialBackoffMs > 0 {
		policy.InitialInterval = time.Duration(rc.InitialBackoffMs) * time.Millisecond
	}
	if rc.MaxBackoffMs > 0 {
		policy.MaximumInterval = time.Duration(rc.MaxBackoffMs) * time.Millisecond
	}
	if rc.Multiplier > 0 {
		policy.BackoffCoefficient = rc.Multiplier
	}
	return policy
}
