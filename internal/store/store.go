package store

import (
	"context"

	"github.com/sells-group/prequal-cli/internal/model"
)

// Store defines the persistence contract for the aggregation pipeline, the
// job layer and the webhook synchronizer.
type Store interface {
	// Applications
	CreateApplication(ctx context.Context, app *model.Application) error
	GetApplication(ctx context.Context, id string) (*model.Application, error)
	CompleteApplication(ctx context.Context, id string) error

	// Attribute catalogue
	ListAttributes(ctx context.Context) ([]model.Attribute, error)
	SeedAttributes(ctx context.Context, attrs []model.Attribute) error

	// Field responses. GetResponse returns nil when the field was never
	// touched; UpsertResponse is keyed by (application, attribute) so the
	// latest write wins.
	GetResponse(ctx context.Context, applicationID, attributeKey string) (*model.AttributeResponse, error)
	UpsertResponse(ctx context.Context, resp *model.AttributeResponse) error
	ListResponses(ctx context.Context, applicationID string) ([]model.AttributeResponse, error)

	// RollbackProvider clears auto-written values and documents for the
	// given attribute keys and marks them manual_after_api_failure, creating
	// rows as needed. Rows a human answered (source=manual) are never
	// touched.
	RollbackProvider(ctx context.Context, applicationID string, attributeKeys []string) error

	// Per-provider fetch status
	SetFetchStatus(ctx context.Context, applicationID, provider string, status model.FetchStatus) error
	GetFetchStatus(ctx context.Context, applicationID, provider string) (model.FetchStatus, error)
	ListFetchStatuses(ctx context.Context, applicationID string) (map[string]model.FetchStatus, error)

	// Webhook sync state machine. TransitionSync performs a guarded
	// compare-and-set and reports whether the transition was applied.
	GetSyncState(ctx context.Context, applicationID string) (model.SyncState, error)
	TransitionSync(ctx context.Context, applicationID string, from, to model.SyncState) (bool, error)
	ListSyncsInState(ctx context.Context, state model.SyncState, limit int) ([]string, error)
	RecordDelivery(ctx context.Context, d *model.Delivery) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
