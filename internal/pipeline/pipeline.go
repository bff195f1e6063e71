package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/prequal-cli/internal/config"
	"github.com/sells-group/prequal-cli/internal/model"
)

// Input identifies one pipeline run: which application, which company.
type Input struct {
	ApplicationID string
	CompanyID     string
}

// RunResult is the terminal outcome of one provider pipeline run. Err is nil
// on success; FieldsFilled counts attributes that received a value.
type RunResult struct {
	Provider     string
	Data         model.BundledData
	FieldsFilled int
	Duration     time.Duration
	Err          *Error
}

// Failed reports whether the run ended in a terminal failure.
func (r RunResult) Failed() bool { return r.Err != nil }

// Runner chains Requester, resource builder, document fetcher and data
// mapper for every registered provider, short-circuiting on the first stage
// failure.
type Runner struct {
	registry  *Registry
	cfg       *config.Config
	requester *Requester
	documents *DocumentFetcher
	mapper    *DataMapper
}

// NewRunner wires the pipeline stages.
func NewRunner(registry *Registry, cfg *config.Config, store ResponseStore, attrs *model.AttributeRegistry) *Runner {
	return &Runner{
		registry:  registry,
		cfg:       cfg,
		requester: NewRequester(),
		documents: NewDocumentFetcher(),
		mapper:    NewDataMapper(store, attrs),
	}
}

// Run executes the named provider pipeline for one application. The merged
// pension organizer is addressed by its own canonical name.
func (r *Runner) Run(ctx context.Context, providerName string, in Input) RunResult {
	start := time.Now()
	result := r.call(ctx, providerName, in)
	result.Duration = time.Since(start)

	log := zap.L().With(
		zap.String("provider", providerName),
		zap.String("application", in.ApplicationID),
		zap.String("company", in.CompanyID),
		zap.Duration("duration", result.Duration),
	)
	if result.Failed() {
		log.Warn("pipeline failed",
			zap.String("stage", string(result.Err.Stage)),
			zap.String("kind", string(result.Err.Kind)),
			zap.Error(result.Err),
		)
	} else {
		log.Info("pipeline complete", zap.Int("fields_filled", result.FieldsFilled))
	}
	return result
}

func (r *Runner) call(ctx context.Context, providerName string, in Input) RunResult {
	if providerName == ProviderPensionFunds {
		return r.runPensionMerge(ctx, in)
	}

	desc, ok := r.registry.Get(providerName)
	if !ok {
		return RunResult{Provider: providerName, Err: failf(providerName, StageRequest, KindContract, nil,
			"unknown provider %q", providerName)}
	}

	bd, ferr := r.fetchBundle(ctx, desc, in)
	if ferr != nil {
		return RunResult{Provider: providerName, Err: ferr}
	}

	filled, ferr := r.mapper.Apply(ctx, desc.Name, in.ApplicationID, bd)
	if ferr != nil {
		return RunResult{Provider: providerName, Data: bd, Err: ferr}
	}

	return RunResult{Provider: providerName, Data: bd, FieldsFilled: filled}
}

// fetchBundle runs the request, build and document stages, stopping at the
// first failure. Mapping is left to the caller so the merge organizer can
// combine two bundles before writing.
func (r *Runner) fetchBundle(ctx context.Context, desc Descriptor, in Input) (model.BundledData, *Error) {
	pc := r.cfg.Provider(desc.Name)

	resp, ferr := r.requester.Fetch(ctx, desc, pc, in.CompanyID)
	if ferr != nil {
		return model.BundledData{}, ferr
	}

	header := resp.Header
	if !desc.UseHeaders {
		header = nil
	}
	bd, err := desc.Build(resp.Body, header)
	if err != nil {
		return model.BundledData{}, failf(desc.Name, StageBuild, KindContract, err,
			"parse response for company %s", in.CompanyID)
	}

	if ferr := r.documents.Resolve(ctx, desc, pc, in.CompanyID, bd); ferr != nil {
		return model.BundledData{}, ferr
	}

	return bd, nil
}

// Providers returns every runnable organizer name: all registered providers
// minus the merge members, plus the merged organizer.
func (r *Runner) Providers() []string {
	var names []string
	for _, name := range r.registry.List() {
		if name == ProviderPensionFundA || name == ProviderPensionFundB {
			continue
		}
		names = append(names, name)
	}
	names = append(names, ProviderPensionFunds)
	return names
}
