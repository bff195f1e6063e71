package jobs

// Workflow and activity names are registered explicitly so renames in code
// never break running executions.
const (
	FetchWorkflowName    = "prequal.fetch"
	FetchAllWorkflowName = "prequal.fetch_all"
	SyncWorkflowName     = "prequal.sync"

	ActivityFetchProvider = "prequal.fetch_provider"
	ActivityRollback      = "prequal.rollback_provider"
	ActivityDeliver       = "prequal.deliver_application"
)

// ErrTypeFatal is the application error type Temporal uses to stop retrying
// failures no repeat attempt can fix (bad credentials, contract violations,
// invalid documents, mapping bugs).
const ErrTypeFatal = "fatal_pipeline_error"

// FetchInput identifies one provider fetch for one application.
type FetchInput struct {
	ApplicationID string `json:"application_id"`
	CompanyID     string `json:"company_id"`
	Provider      string `json:"provider"`
}

// FetchResult is the activity outcome of a provider fetch.
type FetchResult struct {
	Provider     string `json:"provider"`
	FieldsFilled int    `json:"fields_filled"`
	Skipped      bool   `json:"skipped"` // application already completed
}

// RollbackInput asks for a provider's fields to be switched to manual entry
// after the fetch retry budget ran out.
type RollbackInput struct {
	FetchInput
	Attempts int    `json:"attempts"`
	Cause    string `json:"cause"`
}

// FetchAllInput fans a fetch out to every registered provider.
type FetchAllInput struct {
	ApplicationID string   `json:"application_id"`
	CompanyID     string   `json:"company_id"`
	Providers     []string `json:"providers"`
}

// FetchAllResult summarizes a fan-out run.
type FetchAllResult struct {
	Succeeded []string `json:"succeeded"`
	Failed    []string `json:"failed"`
}

// SyncInput identifies one webhook delivery run.
type SyncInput struct {
	ApplicationID string `json:"application_id"`
}
