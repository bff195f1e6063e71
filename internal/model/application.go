package model

import "time"

// ApplicationStatus is the lifecycle state of a prequalification application.
type ApplicationStatus string

const (
	ApplicationDraft     ApplicationStatus = "draft"
	ApplicationCompleted ApplicationStatus = "completed"
)

// FetchState tracks a single provider's API fetch progress for an application.
type FetchState string

const (
	FetchPending    FetchState = "pending"
	FetchProcessing FetchState = "processing"
	FetchCompleted  FetchState = "completed"
	FetchFailed     FetchState = "failed"
)

// FetchStatus is the per-provider progress marker stored on an application.
type FetchStatus struct {
	State        FetchState `json:"state"`
	FieldsFilled int        `json:"fields_filled"`
	Error        string     `json:"error,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// SyncState is the webhook-delivery progress marker for a completed
// application.
type SyncState string

const (
	SyncPending    SyncState = "pending"
	SyncProcessing SyncState = "processing"
	SyncCompleted  SyncState = "completed"
	SyncFailed     SyncState = "failed"
)

// ValidSyncTransition reports whether the sync state machine permits moving
// from one state to another. Failed is not terminal: an operator or the
// retry scheduler may re-enter pending.
func ValidSyncTransition(from, to SyncState) bool {
	switch from {
	case SyncPending:
		return to == SyncProcessing
	case SyncProcessing:
		return to == SyncCompleted || to == SyncFailed
	case SyncFailed:
		return to == SyncPending
	default:
		return false
	}
}

// Application is a candidate company's prequalification application.
type Application struct {
	ID        string                 `json:"id"`
	CompanyID string                 `json:"company_id"` // tax/company reference number
	Name      string                 `json:"name,omitempty"`
	Status    ApplicationStatus      `json:"status"`
	Fetches   map[string]FetchStatus `json:"fetches,omitempty"` // provider name -> status
	SyncState SyncState              `json:"sync_state"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Finalized reports whether the application has been completed and must not
// be mutated by fetch or retry jobs anymore.
func (a *Application) Finalized() bool {
	return a.Status == ApplicationCompleted
}

// Delivery records one webhook delivery attempt for diagnostics.
type Delivery struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	Integrator    string    `json:"integrator"`
	URL           string    `json:"url"`
	StatusCode    int       `json:"status_code"`
	ResponseBody  string    `json:"response_body,omitempty"`
	Error         string    `json:"error,omitempty"`
	Succeeded     bool      `json:"succeeded"`
	AttemptedAt   time.Time `json:"attempted_at"`
}
