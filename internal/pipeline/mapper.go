package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prequal-cli/internal/model"
)

// ResponseStore is the narrow persistence contract the data mapper needs.
// The full store implements it.
type ResponseStore interface {
	// GetResponse returns the persisted answer for one field, or nil when the
	// field has never been touched on this application.
	GetResponse(ctx context.Context, applicationID, attributeKey string) (*model.AttributeResponse, error)
	// UpsertResponse writes an answer keyed by (application, attribute), so
	// the latest write wins against concurrent edits.
	UpsertResponse(ctx context.Context, resp *model.AttributeResponse) error
}

// DataMapper writes resource fields into persisted form-field responses.
type DataMapper struct {
	store    ResponseStore
	registry *model.AttributeRegistry
}

// NewDataMapper creates a mapper over the attribute catalogue.
func NewDataMapper(store ResponseStore, registry *model.AttributeRegistry) *DataMapper {
	return &DataMapper{store: store, registry: registry}
}

// Apply upserts every attribute the provider is responsible for and returns
// how many fields received a value. Absent API answers never manufacture
// empty rows; they only clear rows that already exist.
func (m *DataMapper) Apply(ctx context.Context, providerName, applicationID string, bd model.BundledData) (int, *Error) {
	filled := 0
	for _, attr := range m.registry.ByProvider(providerName) {
		wrote, err := m.applyOne(ctx, providerName, applicationID, attr, bd)
		if err != nil {
			return filled, failf(providerName, StageMap, KindMapping, err,
				"map field %s", attr.Key)
		}
		if wrote {
			filled++
		}
	}
	return filled, nil
}

// applyOne maps a single attribute. Unexpected shape mismatches surface as
// errors carrying the provider, the field key and the original error's type
// so operators can tell data drift from code bugs.
func (m *DataMapper) applyOne(ctx context.Context, providerName, applicationID string, attr *model.Attribute, bd model.BundledData) (wrote bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = eris.Errorf("mapper: provider %s field %s: unexpected %T: %v",
				providerName, attr.Key, rec, rec)
		}
	}()

	val := bd.Resource.Get(attr.APIKey)
	formValue := val.FormValue()
	docs := val.Documents()
	empty := formValue == nil && len(docs) == 0

	existing, err := m.store.GetResponse(ctx, applicationID, attr.Key)
	if err != nil {
		return false, eris.Wrapf(err, "mapper: provider %s field %s: load response", providerName, attr.Key)
	}

	// An absent API answer for a never-seen field must not manufacture an
	// empty auto answer.
	if empty && existing == nil {
		return false, nil
	}

	resp := &model.AttributeResponse{
		ApplicationID: applicationID,
		AttributeKey:  attr.Key,
		Value:         formValue,
		Documents:     docs,
		Source:        model.SourceAuto,
		UpdatedAt:     time.Now().UTC(),
	}
	if existing != nil {
		resp.ID = existing.ID
		resp.CreatedAt = existing.CreatedAt
	} else {
		resp.CreatedAt = resp.UpdatedAt
	}

	if empty {
		// The provider retracted data, or a document failed to resolve:
		// clear the stale auto-filled value rather than leave it outdated.
		zap.L().Info("clearing stale auto-filled field",
			zap.String("provider", providerName),
			zap.String("application", applicationID),
			zap.String("field", attr.Key),
		)
	}

	if err := m.store.UpsertResponse(ctx, resp); err != nil {
		return false, eris.Wrapf(err, "mapper: provider %s field %s: upsert (%s)",
			providerName, attr.Key, fmt.Sprintf("%T", err))
	}
	return !empty, nil
}
