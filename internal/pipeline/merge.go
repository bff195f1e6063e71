package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prequal-cli/internal/model"
)

// MergeStatus describes the combined outcome of two providers answering the
// same logical question.
type MergeStatus string

const (
	MergeSuccessBoth    MergeStatus = "success_both"
	MergeSuccessPartial MergeStatus = "success_partial"
	MergeFailureBoth    MergeStatus = "failure_both"
)

type mergeLeg struct {
	provider string
	docs     []model.Document
	err      *Error
}

// runPensionMerge runs the two pension registries independently and merges
// whatever retirement-contribution certificates were obtained. One registry
// failing must not prevent the other's result from being used; only both
// coming up empty fails the stage.
func (r *Runner) runPensionMerge(ctx context.Context, in Input) RunResult {
	legs := [2]mergeLeg{
		{provider: ProviderPensionFundA},
		{provider: ProviderPensionFundB},
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range legs {
		leg := &legs[i]
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					leg.err = failf(leg.provider, StageMerge, KindMapping, nil,
						"unexpected %T during sub-pipeline: %v", rec, rec)
				}
			}()

			desc, ok := r.registry.Get(leg.provider)
			if !ok {
				leg.err = failf(leg.provider, StageMerge, KindContract, nil,
					"provider %q not registered", leg.provider)
				return nil
			}
			bd, ferr := r.fetchBundle(gctx, desc, in)
			if ferr != nil {
				leg.err = ferr
				return nil
			}
			for _, doc := range bd.Resource.Get("certificate").Documents() {
				doc.Provider = leg.provider
				leg.docs = append(leg.docs, doc)
			}
			return nil
		})
	}
	_ = g.Wait() // sub-pipeline failures are carried per leg, never as group errors

	var docs []model.Document
	obtained := 0
	for _, leg := range legs {
		if len(leg.docs) > 0 {
			obtained++
			docs = append(docs, leg.docs...)
		}
	}

	var status MergeStatus
	switch obtained {
	case 2:
		status = MergeSuccessBoth
	case 1:
		status = MergeSuccessPartial
	default:
		return RunResult{
			Provider: ProviderPensionFunds,
			Err:      mergeFailure(legs),
		}
	}

	merged := model.BundledData{
		Resource: model.Resource{
			"certificates": model.DocsValue(docs),
			"merge_status": model.ScalarValue(string(status)),
		},
		Context: map[string]any{ContextMergeStatus: string(status)},
	}

	filled, ferr := r.mapper.Apply(ctx, ProviderPensionFunds, in.ApplicationID, merged)
	if ferr != nil {
		return RunResult{Provider: ProviderPensionFunds, Data: merged, Err: ferr}
	}
	return RunResult{Provider: ProviderPensionFunds, Data: merged, FieldsFilled: filled}
}

// mergeFailure surfaces both legs' errors. When either leg failed for a
// retryable reason the combined failure keeps that classification so the job
// layer retries; otherwise the merge is fatal.
func mergeFailure(legs [2]mergeLeg) *Error {
	msg := ""
	for _, leg := range legs {
		detail := "no certificate on file"
		if leg.err != nil {
			detail = leg.err.Error()
		}
		if msg != "" {
			msg += "; "
		}
		msg += fmt.Sprintf("%s: %s", leg.provider, detail)
	}

	for _, leg := range legs {
		if leg.err != nil && Retryable(leg.err) {
			return &Error{
				Provider:   ProviderPensionFunds,
				Stage:      StageMerge,
				Kind:       leg.err.Kind,
				Transport:  leg.err.Transport,
				StatusCode: leg.err.StatusCode,
				Message:    msg,
				Err:        leg.err,
			}
		}
	}
	return failf(ProviderPensionFunds, StageMerge, KindDocument, nil, "%s", msg)
}
